package cache

import (
	"encoding/binary"
	"errors"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var (
	entriesBucket = []byte("entries")
	keysBucket    = []byte("keys")
)

// Record layout, big endian:
//
//	format(1) createdAt(8) size(8) version(8) flags(1) keyLen(2) key payload
const (
	recordFormat     = 1
	recordHeaderSize = 1 + 8 + 8 + 8 + 1 + 2
	flagInline       = 1 << 0
)

var errCorruptRecord = errors.New("corrupt catalog record")

// catalog maps keys to entries inside one bolt database. Every mutation
// runs in a single Update transaction and is rolled back on error.
type catalog struct {
	db *bolt.DB
}

func openCatalog(path string) (*catalog, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(entriesBucket); err != nil {
			return err
		}
		_, err := tx.CreateBucketIfNotExists(keysBucket)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &catalog{db: db}, nil
}

func (c *catalog) close() error {
	return c.db.Close()
}

// findLiveByKey returns the committed entry for key, or nil.
func (c *catalog) findLiveByKey(key string) (*Entry, error) {
	var out *Entry
	err := c.db.View(func(tx *bolt.Tx) error {
		e, err := lookup(tx, key)
		if err != nil || e == nil || !e.Live() {
			return err
		}
		out = e
		return nil
	})
	return out, err
}

// reserve durably inserts a placeholder row for key and returns its id.
// The key index is left alone so readers keep seeing the previous entry.
func (c *catalog) reserve(key string) (uint64, error) {
	var id uint64
	err := c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		seq, err := b.NextSequence()
		if err != nil {
			return err
		}
		id = seq
		return putRecord(b, &Entry{ID: id, Key: key, Size: placeholderSize, Version: 1})
	})
	return id, err
}

// commit makes e the live entry for e.Key and returns the entry it
// superseded, if any. A zero e.ID reuses the superseded id or allocates one.
func (c *catalog) commit(e *Entry) (*Entry, error) {
	var prev *Entry
	assigned := e.ID == 0
	err := c.db.Update(func(tx *bolt.Tx) error {
		entries := tx.Bucket(entriesBucket)
		old, err := lookup(tx, e.Key)
		if err != nil {
			return err
		}
		prev = old

		if e.ID == 0 && old != nil {
			e.ID = old.ID
		}
		if e.ID == 0 {
			seq, err := entries.NextSequence()
			if err != nil {
				return err
			}
			e.ID = seq
		}

		e.Version = 1
		if cur, err := getRecord(entries, e.ID); err != nil {
			return err
		} else if cur != nil {
			e.Version = cur.Version + 1
		}
		if err := putRecord(entries, e); err != nil {
			return err
		}
		if err := tx.Bucket(keysBucket).Put([]byte(e.Key), idBytes(e.ID)); err != nil {
			return err
		}
		if old != nil && old.ID != e.ID {
			return entries.Delete(idBytes(old.ID))
		}
		return nil
	})
	if err != nil {
		if assigned {
			e.ID = 0
		}
		return nil, err
	}
	return prev, nil
}

// discard removes a placeholder row left by a failed spill write.
// Rows that went live are kept.
func (c *catalog) discard(id uint64) error {
	return c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(entriesBucket)
		e, err := getRecord(b, id)
		if err != nil || e == nil || e.Live() {
			return err
		}
		return b.Delete(idBytes(id))
	})
}

func lookup(tx *bolt.Tx, key string) (*Entry, error) {
	raw := tx.Bucket(keysBucket).Get([]byte(key))
	if raw == nil {
		return nil, nil
	}
	if len(raw) != 8 {
		return nil, fmt.Errorf("%w: key index for %q", errCorruptRecord, key)
	}
	return getRecord(tx.Bucket(entriesBucket), binary.BigEndian.Uint64(raw))
}

func getRecord(b *bolt.Bucket, id uint64) (*Entry, error) {
	raw := b.Get(idBytes(id))
	if raw == nil {
		return nil, nil
	}
	e, err := decodeEntry(raw)
	if err != nil {
		return nil, fmt.Errorf("entry %d: %w", id, err)
	}
	e.ID = id
	return e, nil
}

func putRecord(b *bolt.Bucket, e *Entry) error {
	return b.Put(idBytes(e.ID), encodeEntry(e))
}

func idBytes(id uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], id)
	return b[:]
}

func encodeEntry(e *Entry) []byte {
	buf := make([]byte, recordHeaderSize+len(e.Key)+len(e.Inline))
	buf[0] = recordFormat
	binary.BigEndian.PutUint64(buf[1:9], uint64(e.CreatedAt))
	binary.BigEndian.PutUint64(buf[9:17], uint64(e.Size))
	binary.BigEndian.PutUint64(buf[17:25], e.Version)
	if e.Inline != nil {
		buf[25] = flagInline
	}
	binary.BigEndian.PutUint16(buf[26:28], uint16(len(e.Key)))
	n := copy(buf[recordHeaderSize:], e.Key)
	copy(buf[recordHeaderSize+n:], e.Inline)
	return buf
}

// decodeEntry copies everything out of raw, which bolt only keeps valid
// for the life of the transaction.
func decodeEntry(raw []byte) (*Entry, error) {
	if len(raw) < recordHeaderSize || raw[0] != recordFormat {
		return nil, errCorruptRecord
	}
	keyLen := int(binary.BigEndian.Uint16(raw[26:28]))
	if len(raw) < recordHeaderSize+keyLen {
		return nil, errCorruptRecord
	}
	e := &Entry{
		CreatedAt: int64(binary.BigEndian.Uint64(raw[1:9])),
		Size:      int64(binary.BigEndian.Uint64(raw[9:17])),
		Version:   binary.BigEndian.Uint64(raw[17:25]),
		Key:       string(raw[recordHeaderSize : recordHeaderSize+keyLen]),
	}
	if raw[25]&flagInline != 0 {
		payload := raw[recordHeaderSize+keyLen:]
		e.Inline = make([]byte, len(payload))
		copy(e.Inline, payload)
	}
	return e, nil
}
