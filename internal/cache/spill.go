package cache

import (
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"

	"github.com/natefinch/atomic"
)

// spillStore keeps oversized payloads as one file per entry id.
type spillStore struct {
	dir string
}

func (s *spillStore) path(id uint64) string {
	return filepath.Join(s.dir, strconv.FormatUint(id, 10))
}

// write replaces the file for id with the contents of r. The data is
// fsynced before the file is renamed into place.
func (s *spillStore) write(id uint64, r io.Reader) (int64, error) {
	cr := &countingReader{r: r}
	if err := atomic.WriteFile(s.path(id), cr); err != nil {
		return cr.n, err
	}
	return cr.n, nil
}

func (s *spillStore) open(id uint64) (*os.File, error) {
	f, err := os.Open(s.path(id))
	if err != nil {
		return nil, storageFault("open spill file "+strconv.FormatUint(id, 10), err)
	}
	return f, nil
}

func (s *spillStore) remove(id uint64) error {
	if err := os.Remove(s.path(id)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
