package main

import (
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/jjYBdx4IL/diskcache/internal/cache"
	"github.com/jjYBdx4IL/diskcache/internal/config"
	"github.com/jjYBdx4IL/diskcache/internal/logger"
	tools "github.com/jjYBdx4IL/diskcache/internal/tools"
	web "github.com/jjYBdx4IL/diskcache/internal/web"
)

const daemonBinary = "diskcache-server"

func main() {
	if err := logger.InitFromEnv(); err != nil {
		panic(err)
	}
	defer logger.Close()

	logger.Infof("Starting diskcache MCP server")

	cfg, err := config.Load(os.Getenv("DISKCACHE_CONFIG"), nil)
	if err != nil {
		logger.Errorf("config: %v", err)
		panic(err)
	}

	kv, closeCache := openCache(cfg)
	defer closeCache()

	fetcher := web.NewFetcher(kv, cfg.FetcherOptions(logger.L()))
	logger.Infof("Initialized cache-backed fetcher")

	s := server.NewMCPServer(
		"diskcache",
		"0.1.0",
		server.WithRecovery(),
		server.WithToolCapabilities(false),
	)

	toolFetch := mcp.NewTool("web-fetch",
		mcp.WithDescription(multiline(
			"Fetches content from a specified URL and returns the parsed content",
			"\nFunctionality:",
			"- Takes a URL as input",
			"- Returns the body from the local disk cache when a fresh copy exists, otherwise downloads and caches it",
			"- Returns the structured content including title, description, text, and links",
			"\nUsage notes:",
			"- The URL must be a fully-formed valid URL starting with http:// or https://",
			"- Cached copies are reused until the configured default expiry elapses (24 hours unless configured)",
			"- Binary content such as images or PDFs is rejected",
		)),
		mcp.WithString("url", mcp.Required(), mcp.Description("The URL to fetch content from")),
	)
	s.AddTool(toolFetch, tools.WebFetchHandler(fetcher))
	logger.Infof("Registered web-fetch tool")

	logger.Infof("Starting MCP server on stdio")
	if err := server.ServeStdio(s); err != nil {
		logger.Errorf("server error: %v", err)
	}
}

// openCache connects to the cache daemon, starting it if needed. When the
// daemon stays unreachable the instance is opened in process instead.
func openCache(cfg *config.Config) (cache.KV, func() error) {
	noop := func() error { return nil }

	logger.Infof("Attempting to connect to cache daemon at %s", cfg.Socket)
	client, err := connectCache(cfg.Socket)
	if err == nil {
		logger.Infof("Connected to cache daemon")
		return client, noop
	}
	logger.Warnf("Failed to connect to cache daemon: %v, attempting to start daemon", err)

	if err := startCacheDaemon(); err != nil {
		logger.Errorf("Failed to start cache daemon: %v", err)
	} else {
		deadline := time.Now().Add(5 * time.Second)
		for time.Now().Before(deadline) {
			if client, err := connectCache(cfg.Socket); err == nil {
				logger.Infof("Connected to freshly started cache daemon")
				return client, noop
			}
			time.Sleep(200 * time.Millisecond)
		}
		logger.Errorf("Cache daemon did not come up within 5s")
	}

	store, err := cache.Open(cfg.CacheOptions(logger.L()))
	if err != nil {
		logger.Errorf("Failed to open cache in process: %v", err)
		panic(err)
	}
	logger.Infof("Using in-process cache at %s", store.Dir())
	return store, store.Close
}

func connectCache(sock string) (*cache.Client, error) {
	// quick probe
	conn, err := net.DialTimeout("unix", sock, 200*time.Millisecond)
	if err != nil {
		return nil, err
	}
	_ = conn.Close()
	return cache.NewClient(sock), nil
}

func startCacheDaemon() error {
	// 1) Try daemon binary next to this server executable
	if exePath, err := os.Executable(); err == nil {
		sibling := filepath.Join(filepath.Dir(exePath), daemonBinary)
		if _, statErr := os.Stat(sibling); statErr == nil {
			return spawn(sibling)
		}
	}

	// 2) Try PATH binary
	if path, err := exec.LookPath(daemonBinary); err == nil {
		return spawn(path)
	}

	return exec.ErrNotFound
}

func spawn(path string) error {
	cmd := exec.Command(path)
	cmd.Stdout = nil
	cmd.Stderr = nil
	cmd.Env = os.Environ()
	return cmd.Start()
}

// multiline joins lines with newlines for tool descriptions.
func multiline(lines ...string) string { return strings.Join(lines, "\n") }
