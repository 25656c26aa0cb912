package cache

import (
	"errors"
	"fmt"
)

// Simple JSON protocol for the cache daemon over a Unix domain socket.
// A connection carries any number of request/response pairs.

type Request struct {
	Op    string `json:"op"` // "get" | "put"
	Key   string `json:"key"`
	Value []byte `json:"value,omitempty"`
	// TTLMillis overrides the daemon's default expiry on get. Negative
	// values skip the expiry check.
	TTLMillis *int64 `json:"ttl_millis,omitempty"`
}

type Response struct {
	OK    bool   `json:"ok"`
	Value []byte `json:"value,omitempty"`
	Error string `json:"error,omitempty"`
	Code  string `json:"code,omitempty"`
}

// Error codes carried in Response.Code.
const (
	codeNotFound     = "not_found"
	codeInvalidKey   = "invalid_key"
	codeInvalidInput = "invalid_input"
	codeStorage      = "storage"
	codeClosed       = "closed"
)

var codeErrors = []struct {
	code string
	err  error
}{
	{codeNotFound, ErrNotFound},
	{codeInvalidKey, ErrInvalidKey},
	{codeInvalidInput, ErrInvalidInput},
	{codeStorage, ErrStorage},
	{codeClosed, ErrClosed},
}

func errorResponse(err error) Response {
	resp := Response{OK: false, Error: err.Error()}
	for _, ce := range codeErrors {
		if errors.Is(err, ce.err) {
			resp.Code = ce.code
			break
		}
	}
	return resp
}

// responseError turns a failed response back into an error matching the
// sentinel the daemon saw.
func responseError(resp Response) error {
	for _, ce := range codeErrors {
		if resp.Code != ce.code {
			continue
		}
		if resp.Error == ce.err.Error() {
			return ce.err
		}
		return fmt.Errorf("%w: %s", ce.err, resp.Error)
	}
	return errors.New(resp.Error)
}
