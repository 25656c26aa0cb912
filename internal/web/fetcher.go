package web

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gocolly/colly/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"
	"golang.org/x/sync/singleflight"

	"github.com/jjYBdx4IL/diskcache/internal/cache"
)

const DefaultRequestTimeout = 20 * time.Second

// ErrFetchFailed is matched by every download failure: transport errors
// and non-2xx responses.
var ErrFetchFailed = errors.New("web: fetch failed")

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	URL        string
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("web: fetch %s: unexpected status %d %s", e.URL, e.StatusCode, http.StatusText(e.StatusCode))
}

func (e *StatusError) Is(target error) bool { return target == ErrFetchFailed }

type Options struct {
	// Timeout bounds a single download. Defaults to DefaultRequestTimeout.
	Timeout time.Duration
	// UserAgent is sent with every request when set.
	UserAgent string
	// MaxBodySize limits downloaded bodies in bytes; 0 means unlimited.
	MaxBodySize int
	// TokenSource, when set, authorizes requests with OAuth2 bearer tokens.
	TokenSource oauth2.TokenSource
	Logger      logrus.FieldLogger
}

// Fetcher returns URL bodies from the cache, downloading and storing
// them on a miss.
type Fetcher struct {
	c       *colly.Collector
	cache   cache.KV
	group   singleflight.Group
	timeout time.Duration
	log     logrus.FieldLogger
}

func NewFetcher(kv cache.KV, opts Options) *Fetcher {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultRequestTimeout
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}
	c := colly.NewCollector(
		colly.AllowURLRevisit(),
		colly.Async(false),
		colly.ParseHTTPErrorResponse(),
		colly.MaxBodySize(opts.MaxBodySize),
	)
	if opts.UserAgent != "" {
		c.UserAgent = opts.UserAgent
	}
	if opts.TokenSource != nil {
		c.SetClient(oauth2.NewClient(context.Background(), opts.TokenSource))
	}
	c.SetRequestTimeout(opts.Timeout)
	return &Fetcher{c: c, cache: kv, timeout: opts.Timeout, log: log}
}

// Retrieve returns the cached body for rawURL, downloading it on a miss.
// Concurrent calls for the same URL share one download.
func (f *Fetcher) Retrieve(ctx context.Context, rawURL string) ([]byte, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if !strings.HasPrefix(rawURL, "http://") && !strings.HasPrefix(rawURL, "https://") {
		return nil, errors.New("url must start with http:// or https://")
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if v, err := f.cache.Get(rawURL); err == nil {
		f.log.WithField("url", rawURL).Debug("cache hit")
		return v, nil
	} else if !errors.Is(err, cache.ErrNotFound) {
		return nil, err
	}

	// The shared download outlives any single caller: it keeps the
	// first caller's context values but only stops on f.timeout.
	dctx := context.WithoutCancel(ctx)
	ch := f.group.DoChan(rawURL, func() (interface{}, error) {
		ctx, cancel := context.WithTimeout(dctx, f.timeout)
		defer cancel()
		body, err := f.download(ctx, rawURL)
		if err != nil {
			return nil, err
		}
		if err := f.cache.Put(rawURL, bytes.NewReader(body)); err != nil {
			return nil, fmt.Errorf("store %s: %w", rawURL, err)
		}
		f.log.WithFields(logrus.Fields{"url": rawURL, "size": len(body)}).Info("fetched")
		return body, nil
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.([]byte), nil
	}
}

func (f *Fetcher) download(ctx context.Context, rawURL string) ([]byte, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	c := f.c.Clone()
	c.Context = ctx

	var body []byte
	status := 0
	c.OnResponse(func(r *colly.Response) {
		status = r.StatusCode
		body = append([]byte{}, r.Body...)
	})
	if err := c.Visit(rawURL); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrFetchFailed, rawURL, err)
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if status < 200 || status > 299 {
		return nil, &StatusError{URL: rawURL, StatusCode: status}
	}
	return body, nil
}
