package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/pflag"

	"github.com/jjYBdx4IL/diskcache/internal/cache"
	"github.com/jjYBdx4IL/diskcache/internal/config"
	"github.com/jjYBdx4IL/diskcache/internal/logger"
	web "github.com/jjYBdx4IL/diskcache/internal/web"
)

const usage = `usage: diskcache [flags] <command> [args]

commands:
  get <key>            write the cached value to stdout
  put <key> [file|-]   store a file (or stdin) under key
  fetch <url>          download a URL through the cache and print the body
`

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "diskcache:", err)
		if errors.Is(err, cache.ErrNotFound) {
			os.Exit(2)
		}
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout io.Writer) error {
	fs := pflag.NewFlagSet("diskcache", pflag.ContinueOnError)
	fs.SetInterspersed(true)
	fs.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		fs.PrintDefaults()
	}
	configPath := fs.String("config", os.Getenv("DISKCACHE_CONFIG"), "config file (toml, yaml or json)")
	ttl := fs.Duration("ttl", 0, "maximum age for get (default expiry when unset, negative disables expiry)")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
	}
	rest := fs.Args()
	if len(rest) < 2 {
		fs.Usage()
		return errors.New("missing command or argument")
	}

	cfg, err := config.Load(*configPath, fs)
	if err != nil {
		return err
	}
	log, err := logger.Init(cfg.LoggerOptions())
	if err != nil {
		return err
	}
	defer logger.Close()

	store, err := cache.Open(cfg.CacheOptions(log))
	if err != nil {
		return err
	}
	defer store.Close()

	switch cmd, arg := rest[0], rest[1]; cmd {
	case "get":
		if !fs.Changed("ttl") {
			*ttl = store.DefaultExpiry()
		}
		return get(store, arg, *ttl, stdout)
	case "put":
		src := "-"
		if len(rest) > 2 {
			src = rest[2]
		}
		return put(store, arg, src, stdin)
	case "fetch":
		f := web.NewFetcher(store, cfg.FetcherOptions(log))
		ctx, cancel := context.WithTimeout(context.Background(), cfg.FetchTimeout+5*time.Second)
		defer cancel()
		body, err := f.Retrieve(ctx, arg)
		if err != nil {
			return err
		}
		_, err = stdout.Write(body)
		return err
	default:
		fs.Usage()
		return fmt.Errorf("unknown command %q", cmd)
	}
}

func get(store *cache.Store, key string, ttl time.Duration, stdout io.Writer) error {
	rc, err := store.GetStreamTTL(key, ttl)
	if err != nil {
		return err
	}
	defer rc.Close()
	_, err = io.Copy(stdout, rc)
	return err
}

func put(store *cache.Store, key, src string, stdin io.Reader) error {
	if src == "-" {
		return store.Put(key, stdin)
	}
	f, err := os.Open(src)
	if err != nil {
		return err
	}
	defer f.Close()
	return store.Put(key, f)
}
