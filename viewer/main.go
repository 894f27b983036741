package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/brensch/raysnek/game"
	"github.com/brensch/raysnek/internal/env"
	"github.com/brensch/raysnek/logging"
)

func main() {
	fs := flag.NewFlagSet(os.Args[0], flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	cfg := game.DefaultConfig()
	env.BindConfig(fs, &cfg)

	listen := fs.String("listen", env.StringOrDefault("RAYSNEK_LISTEN", "127.0.0.1:8080"), "HTTP listen address")
	dataDirs := fs.String("data-dirs", env.StringOrDefault("RAYSNEK_DATA_DIRS", filepath.Join("data", "generated")), "Comma-separated executor output dirs (each with ticks/ and rounds/)")
	championLog := fs.String("champion-log", env.StringOrDefault("RAYSNEK_CHAMPION_LOG", filepath.Join("data", "champions.jsonl")), "Champion log streamed by /ws/live")
	staticDir := fs.String("static-dir", env.StringOrDefault("RAYSNEK_STATIC_DIR", ""), "Optional directory to serve as SPA static")
	refresh := fs.Duration("db-refresh", env.DurationOrDefault("RAYSNEK_DB_REFRESH", 10*time.Second), "How often to rescan parquet shards")
	liveMaxTicks := fs.Int("live-max-ticks", env.IntOrDefault("RAYSNEK_LIVE_MAX_TICKS", 20000), "Tick cap for streamed rounds")
	logFormat := fs.String("log-format", env.StringOrDefault("RAYSNEK_LOG_FORMAT", "pretty"), "Log format: pretty, json or text")
	logLevel := fs.String("log-level", env.StringOrDefault("RAYSNEK_LOG_LEVEL", "info"), "Log level")
	if err := fs.Parse(os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "flag parse: %v\n", err)
		os.Exit(2)
	}

	logger, err := logging.New(os.Stderr, *logFormat, *logLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("invalid arena config", "error", err)
		os.Exit(1)
	}

	roots := parseDataRoots(*dataDirs)
	slog.Info("viewer data roots", "roots", strings.Join(roots, ","))

	dbCache := NewDBCache(roots, *refresh)
	defer dbCache.Close()

	srvState := NewServer(roots, dbCache, *championLog, LiveConfig{Config: cfg, MaxTicks: *liveMaxTicks})
	mux := http.NewServeMux()
	srvState.RegisterRoutes(mux)
	if strings.TrimSpace(*staticDir) != "" {
		mux.Handle("/", spaHandler{staticPath: *staticDir, indexPath: filepath.Join(*staticDir, "index.html")})
		slog.Info("serving SPA", "dir", *staticDir)
	}

	srv := &http.Server{
		Addr:              *listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	slog.Info("viewer API listening", "addr", "http://"+*listen)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func parseDataRoots(csv string) []string {
	parts := strings.Split(csv, ",")
	out := make([]string, 0, len(parts))
	seen := make(map[string]bool, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

type spaHandler struct {
	staticPath string
	indexPath  string
}

func (h spaHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	// Serve exact static asset if exists; otherwise serve index.html for client-side routing.
	path := filepath.Clean(r.URL.Path)
	if path == "/" {
		http.ServeFile(w, r, h.indexPath)
		return
	}
	candidate := filepath.Join(h.staticPath, strings.TrimPrefix(path, "/"))
	if fi, err := os.Stat(candidate); err == nil && !fi.IsDir() {
		http.ServeFile(w, r, candidate)
		return
	}
	http.ServeFile(w, r, h.indexPath)
}
