package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/jjYBdx4IL/diskcache/internal/cache"
	"github.com/jjYBdx4IL/diskcache/internal/config"
	"github.com/jjYBdx4IL/diskcache/internal/logger"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "diskcache-server:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	fs := pflag.NewFlagSet("diskcache-server", pflag.ContinueOnError)
	configPath := fs.String("config", os.Getenv("DISKCACHE_CONFIG"), "config file (toml, yaml or json)")
	config.RegisterFlags(fs)
	if err := fs.Parse(args); err != nil {
		return err
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

	// Ensure socket dir exists and remove stale socket
	if err := os.MkdirAll(filepath.Dir(cfg.Socket), 0o755); err != nil {
		return err
	}
	_ = os.Remove(cfg.Socket)

	l, err := net.Listen("unix", cfg.Socket)
	if err != nil {
		return err
	}
	_ = os.Chmod(cfg.Socket, 0o600)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(logrus.Fields{"socket": cfg.Socket, "dir": store.Dir()}).Info("cache daemon listening")
	err = cache.Serve(ctx, l, store, log)
	_ = os.Remove(cfg.Socket)
	log.Info("cache daemon stopped")
	return err
}
