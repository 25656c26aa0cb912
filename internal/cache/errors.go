package cache

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned by Get for missing and expired keys alike.
	ErrNotFound     = errors.New("cache: not found")
	ErrInvalidKey   = errors.New("cache: invalid key")
	ErrInvalidInput = errors.New("cache: invalid input")
	ErrInvalidName  = errors.New("cache: invalid instance name")
	// ErrStorage wraps every catalog or filesystem failure.
	ErrStorage = errors.New("cache: storage fault")
	ErrClosed  = errors.New("cache: closed")
)

func storageFault(op string, err error) error {
	return fmt.Errorf("%w: %s: %w", ErrStorage, op, err)
}

func validateKey(key string) error {
	if key == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	if len(key) > MaxKeyLength {
		return fmt.Errorf("%w: %d bytes exceeds %d", ErrInvalidKey, len(key), MaxKeyLength)
	}
	return nil
}
