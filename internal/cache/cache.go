package cache

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// Store is a persistent key/value cache with time based expiry. Small
// payloads live inline in a bolt catalog, large ones in one file each.
// It is safe for concurrent use by multiple goroutines, but concurrent
// Puts of the same key race: the last commit wins.
type Store struct {
	dir     string
	catalog *catalog
	spill   *spillStore
	log     logrus.FieldLogger
	expiry  atomic.Int64
	now     func() time.Time

	mu     sync.RWMutex
	closed bool
}

// Options configures Open.
type Options struct {
	// Dir is the root storage directory. Defaults to DefaultDir().
	Dir string
	// Name selects the instance below Dir. Defaults to DefaultName.
	Name string
	// Reinit wipes an existing instance before opening it.
	Reinit bool
	// DefaultExpiry is used by Get and GetStream. Defaults to DefaultExpiry.
	DefaultExpiry time.Duration
	// Logger receives debug output. Nil discards it.
	Logger logrus.FieldLogger
}

// DefaultDir returns the per-user location used when Options.Dir is empty.
func DefaultDir() string {
	dir, _ := os.UserConfigDir()
	if dir == "" {
		dir = "."
	}
	return filepath.Join(dir, "diskcache")
}

// ValidateName reports whether name is usable as an instance directory name.
func ValidateName(name string) error {
	if name == "." || name == ".." || strings.ContainsAny(name, `/\:;`+string(os.PathSeparator)) {
		return fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	return nil
}

// Open initializes or opens the instance opts.Name below opts.Dir.
func Open(opts Options) (*Store, error) {
	if opts.Name == "" {
		opts.Name = DefaultName
	}
	if err := ValidateName(opts.Name); err != nil {
		return nil, err
	}
	if opts.Dir == "" {
		opts.Dir = DefaultDir()
	}
	if opts.DefaultExpiry == 0 {
		opts.DefaultExpiry = DefaultExpiry
	}
	log := opts.Logger
	if log == nil {
		l := logrus.New()
		l.SetOutput(io.Discard)
		log = l
	}

	dir := filepath.Join(opts.Dir, opts.Name)
	log = log.WithField("cache", dir)
	if opts.Reinit {
		if _, err := os.Stat(dir); err == nil {
			log.Info("reinit: deleting instance directory")
			if err := os.RemoveAll(dir); err != nil {
				return nil, storageFault("reinit", err)
			}
		}
	}
	filesDir := filepath.Join(dir, "files")
	if err := os.MkdirAll(filesDir, 0o755); err != nil {
		return nil, storageFault("create storage dir", err)
	}
	cat, err := openCatalog(filepath.Join(dir, "catalog.db"))
	if err != nil {
		return nil, storageFault("open catalog", err)
	}

	s := &Store{
		dir:     dir,
		catalog: cat,
		spill:   &spillStore{dir: filesDir},
		log:     log,
		now:     time.Now,
	}
	s.expiry.Store(int64(opts.DefaultExpiry))
	log.Debug("opened")
	return s, nil
}

// Dir returns the instance directory.
func (s *Store) Dir() string { return s.dir }

// DefaultExpiry returns the TTL applied by Get and GetStream.
func (s *Store) DefaultExpiry() time.Duration {
	return time.Duration(s.expiry.Load())
}

// SetDefaultExpiry changes the TTL applied by subsequent Get and GetStream calls.
func (s *Store) SetDefaultExpiry(d time.Duration) {
	s.expiry.Store(int64(d))
}

// Close closes the catalog. Closing twice is a no-op.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.catalog.close()
	s.log.Debug("closed")
	return err
}

// PutBytes stores value under key. A nil value is rejected; use an empty
// slice to store an empty payload.
func (s *Store) PutBytes(key string, value []byte) error {
	if value == nil {
		if err := validateKey(key); err != nil {
			return err
		}
		return fmt.Errorf("%w: nil value", ErrInvalidInput)
	}
	return s.Put(key, bytes.NewReader(value))
}

// Put stores everything read from r under key, replacing any previous
// entry. Payloads up to MaxBlobSize bytes are kept in the catalog; larger
// ones are streamed into a spill file which is synced before the entry
// becomes visible. On error the previous entry stays readable.
func (s *Store) Put(key string, r io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: nil reader", ErrInvalidInput)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrClosed
	}

	buf := make([]byte, MaxBlobSize+1)
	n, err := io.ReadFull(r, buf)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
		return storageFault("read payload", err)
	}
	if n <= MaxBlobSize {
		return s.putInline(key, buf[:n])
	}
	return s.putSpilled(key, io.MultiReader(bytes.NewReader(buf), r))
}

func (s *Store) putInline(key string, data []byte) error {
	inline := make([]byte, len(data))
	copy(inline, data)
	e := &Entry{
		Key:       key,
		Inline:    inline,
		Size:      int64(len(inline)),
		CreatedAt: s.now().UnixMilli(),
	}
	prev, err := s.catalog.commit(e)
	if err != nil {
		return storageFault("commit entry", err)
	}
	s.release(prev, e)
	s.log.WithFields(logrus.Fields{"key": key, "id": e.ID, "size": e.Size}).Debug("stored inline")
	return nil
}

func (s *Store) putSpilled(key string, src io.Reader) error {
	id, err := s.catalog.reserve(key)
	if err != nil {
		return storageFault("reserve entry", err)
	}
	size, err := s.spill.write(id, src)
	if err != nil {
		s.abandon(id)
		return storageFault(fmt.Sprintf("write spill file %d", id), err)
	}

	e := &Entry{
		ID:        id,
		Key:       key,
		Size:      size,
		CreatedAt: s.now().UnixMilli(),
	}
	prev, err := s.catalog.commit(e)
	if err != nil {
		s.abandon(id)
		return storageFault("commit entry", err)
	}
	s.release(prev, e)
	s.log.WithFields(logrus.Fields{"key": key, "id": id, "size": size}).Debug("stored spill file")
	return nil
}

// release removes the spill file of a superseded entry once nothing
// refers to it anymore.
func (s *Store) release(prev, cur *Entry) {
	if prev == nil || !prev.Spilled() {
		return
	}
	if prev.ID == cur.ID && cur.Spilled() {
		return
	}
	if err := s.spill.remove(prev.ID); err != nil {
		s.log.WithError(err).WithField("id", prev.ID).Warn("remove superseded spill file")
	}
}

// abandon drops the placeholder row and partial file of a failed spill write.
func (s *Store) abandon(id uint64) {
	if err := s.catalog.discard(id); err != nil {
		s.log.WithError(err).WithField("id", id).Warn("discard placeholder entry")
	}
	if err := s.spill.remove(id); err != nil {
		s.log.WithError(err).WithField("id", id).Warn("remove partial spill file")
	}
}

// Get returns the value for key if present and younger than the default expiry.
func (s *Store) Get(key string) ([]byte, error) {
	return s.GetTTL(key, s.DefaultExpiry())
}

// GetTTL returns the value for key if present and younger than ttl.
// A negative ttl returns the value regardless of its age.
func (s *Store) GetTTL(key string, ttl time.Duration) ([]byte, error) {
	rc, err := s.GetStreamTTL(key, ttl)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	out, err := io.ReadAll(rc)
	if err != nil {
		return nil, storageFault("read value", err)
	}
	return out, nil
}

// GetStream is GetTTL without buffering the value. The caller must close
// the returned reader.
func (s *Store) GetStream(key string) (io.ReadCloser, error) {
	return s.GetStreamTTL(key, s.DefaultExpiry())
}

// GetStreamTTL is GetTTL without buffering the value.
func (s *Store) GetStreamTTL(key string, ttl time.Duration) (io.ReadCloser, error) {
	if err := validateKey(key); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}

	e, err := s.catalog.findLiveByKey(key)
	if err != nil {
		return nil, storageFault("lookup", err)
	}
	if e == nil {
		return nil, ErrNotFound
	}
	if e.expired(s.now().UnixMilli(), ttl) {
		s.log.WithFields(logrus.Fields{"key": key, "created_at": e.CreatedAt}).Debug("expired")
		return nil, ErrNotFound
	}
	if !e.Spilled() {
		return io.NopCloser(bytes.NewReader(e.Inline)), nil
	}
	f, err := s.spill.open(e.ID)
	if err != nil {
		return nil, err
	}
	return f, nil
}
