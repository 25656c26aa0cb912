package cache

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"time"
)

// Client implements KV over a Unix socket served by Serve.
type Client struct {
	socketPath string
}

func NewClient(socketPath string) *Client {
	return &Client{socketPath: socketPath}
}

func (c *Client) withConn(fn func(conn net.Conn) error) error {
	conn, err := net.DialTimeout("unix", c.socketPath, 500*time.Millisecond)
	if err != nil {
		return err
	}
	defer conn.Close()
	return fn(conn)
}

func (c *Client) roundTrip(req Request) (Response, error) {
	var resp Response
	err := c.withConn(func(conn net.Conn) error {
		if err := json.NewEncoder(conn).Encode(&req); err != nil {
			return err
		}
		return json.NewDecoder(conn).Decode(&resp)
	})
	if err != nil {
		return resp, fmt.Errorf("cache daemon %s: %w", req.Op, err)
	}
	if !resp.OK {
		return resp, responseError(resp)
	}
	return resp, nil
}

// Get uses the daemon's default expiry.
func (c *Client) Get(key string) ([]byte, error) {
	return c.get(Request{Op: "get", Key: key})
}

// GetTTL sends ttl in whole milliseconds. Any negative ttl is sent as -1
// so that it still disables the expiry check.
func (c *Client) GetTTL(key string, ttl time.Duration) ([]byte, error) {
	ms := ttl.Milliseconds()
	if ttl < 0 {
		ms = -1
	}
	return c.get(Request{Op: "get", Key: key, TTLMillis: &ms})
}

func (c *Client) get(req Request) ([]byte, error) {
	if err := validateKey(req.Key); err != nil {
		return nil, err
	}
	resp, err := c.roundTrip(req)
	if err != nil {
		return nil, err
	}
	return append([]byte{}, resp.Value...), nil
}

// Put reads r fully and sends it in a single request.
func (c *Client) Put(key string, r io.Reader) error {
	if err := validateKey(key); err != nil {
		return err
	}
	if r == nil {
		return fmt.Errorf("%w: nil reader", ErrInvalidInput)
	}
	value, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("read payload: %w", err)
	}
	_, err = c.roundTrip(Request{Op: "put", Key: key, Value: value})
	return err
}
