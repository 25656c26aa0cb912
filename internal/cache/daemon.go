package cache

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Serve answers protocol requests on l using kv until ctx is done or l
// fails. It closes l before returning.
func Serve(ctx context.Context, l net.Listener, kv KV, log logrus.FieldLogger) error {
	go func() {
		<-ctx.Done()
		_ = l.Close()
	}()
	for {
		conn, err := l.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if errors.Is(err, net.ErrClosed) {
				return err
			}
			log.WithError(err).Warn("accept")
			continue
		}
		go handleConn(conn, kv, log.WithField("conn", uuid.NewString()))
	}
}

func handleConn(conn net.Conn, kv KV, log logrus.FieldLogger) {
	defer conn.Close()
	dec := json.NewDecoder(conn)
	enc := json.NewEncoder(conn)
	for {
		var req Request
		if err := dec.Decode(&req); err != nil {
			return
		}
		resp := dispatch(kv, req)
		if !resp.OK && resp.Code != codeNotFound {
			log.WithFields(logrus.Fields{"op": req.Op, "key": req.Key}).Warn(resp.Error)
		}
		if err := enc.Encode(resp); err != nil {
			log.WithError(err).Debug("write response")
			return
		}
	}
}

func dispatch(kv KV, req Request) Response {
	switch req.Op {
	case "get":
		var v []byte
		var err error
		if req.TTLMillis != nil {
			v, err = kv.GetTTL(req.Key, time.Duration(*req.TTLMillis)*time.Millisecond)
		} else {
			v, err = kv.Get(req.Key)
		}
		if err != nil {
			return errorResponse(err)
		}
		return Response{OK: true, Value: v}
	case "put":
		if err := kv.Put(req.Key, bytes.NewReader(req.Value)); err != nil {
			return errorResponse(err)
		}
		return Response{OK: true}
	default:
		return Response{OK: false, Error: "unknown op"}
	}
}
