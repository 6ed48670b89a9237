package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/howdo/internal/api"
	"github.com/kalambet/howdo/internal/auth"
	"github.com/kalambet/howdo/internal/config"
	"github.com/kalambet/howdo/internal/layout"
	"github.com/kalambet/howdo/internal/metrics"
	"github.com/kalambet/howdo/internal/prerender"
	"github.com/kalambet/howdo/internal/render"
	"github.com/kalambet/howdo/internal/storage"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the PDF prerender worker (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show howdo server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus()
	},
}

// services are the long-lived components shared by serve and mcp.
type services struct {
	store    storage.Backend
	sqlite   *storage.Store // nil with the memory backend
	renderer *render.Renderer
	chrome   *render.ChromeConverter
	metrics  *metrics.Metrics
}

func setupLogging(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
	return logger
}

func openServices(cfg config.Config, logger *slog.Logger) (*services, error) {
	svc := &services{metrics: metrics.New()}

	switch cfg.Storage.Backend {
	case "memory":
		svc.store = storage.NewMemoryStore()
		logger.Warn("using in-memory storage; data is lost on exit")
	default:
		s, err := storage.Open(cfg.Storage.DataDir)
		if err != nil {
			return nil, fmt.Errorf("opening storage: %w", err)
		}
		svc.store = s
		svc.sqlite = s
	}

	layouts, err := layout.Default()
	if err != nil {
		svc.Close()
		return nil, fmt.Errorf("loading layouts: %w", err)
	}
	fallback, err := render.ParseFallbackPolicy(cfg.Render.Fallback)
	if err != nil {
		svc.Close()
		return nil, err
	}

	opts := render.Options{
		Fallback:   fallback,
		PDFTimeout: cfg.Render.PDFTimeout,
		Metrics:    svc.metrics,
		Logger:     logger,
	}
	if cfg.Render.PDFEnabled {
		svc.chrome = render.NewChromeConverter(cfg.Render.ChromeBin, logger)
		opts.PDF = svc.chrome
	}
	svc.renderer = render.New(layouts, opts)
	return svc, nil
}

// prerenders reports whether new documents should get a background PDF.
func (s *services) prerenders(cfg config.Config) bool {
	return s.sqlite != nil && s.chrome != nil && cfg.Render.Prerender
}

func (s *services) Close() {
	if s.chrome != nil {
		if err := s.chrome.Close(); err != nil {
			slog.Warn("closing browser", "error", err)
		}
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}
}

func openAccessLog(dest string) (io.Writer, func(), error) {
	switch dest {
	case "":
		return nil, func() {}, nil
	case "stderr":
		return os.Stderr, func() {}, nil
	case "stdout":
		return os.Stdout, func() {}, nil
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, nil, fmt.Errorf("opening access log: %w", err)
	}
	return f, func() { f.Close() }, nil
}

func buildAppDeps(cfg config.Config, svc *services, logger *slog.Logger) (api.AppDeps, error) {
	issuer, err := auth.NewIssuer([]byte(cfg.Auth.TokenSecret), cfg.Auth.TokenTTL)
	if err != nil {
		return api.AppDeps{}, fmt.Errorf("creating token issuer: %w", err)
	}
	deps := api.AppDeps{
		Store:        svc.store,
		Renderer:     svc.renderer,
		Issuer:       issuer,
		RequireToken: cfg.Auth.RequireToken,
		CORSOrigins:  cfg.CORSOriginList(),
		Metrics:      svc.metrics,
		Logger:       logger,
	}
	// Assigned only when set: a nil *storage.Store in an interface is not nil.
	if svc.sqlite != nil {
		deps.Renditions = svc.sqlite
		if svc.prerenders(cfg) {
			deps.Jobs = svc.sqlite
		}
	}
	return deps, nil
}

func runServer() error {
	fmt.Fprintf(os.Stderr, "howdo version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	logger := setupLogging(cfg.Log.Level)

	svc, err := openServices(cfg, logger)
	if err != nil {
		return err
	}
	defer svc.Close()

	accessLog, closeAccessLog, err := openAccessLog(cfg.Log.Access)
	if err != nil {
		return err
	}
	defer closeAccessLog()

	deps, err := buildAppDeps(cfg, svc, logger)
	if err != nil {
		return err
	}
	deps.AccessLog = accessLog

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           api.NewAppHandler(deps),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return gctx
		},
	}

	g.Go(func() error {
		fmt.Fprintf(os.Stderr, "howdo listening on %s\n", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	if svc.prerenders(cfg) {
		worker := prerender.NewWorker(svc.sqlite, svc.renderer, svc.metrics, 0)
		g.Go(func() error {
			worker.Run(gctx)
			return nil
		})
		slog.Info("PDF prerender worker started")
	}

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func showStatus() error {
	cfg, err := config.Load()
	if err != nil {
		printError("config error: %v", err)
		return nil
	}

	client := &http.Client{Timeout: 2 * time.Second}
	resp, err := client.Get(serverURL(cfg) + "/health")
	if err != nil {
		printStatus("Server", "stopped")
	} else {
		resp.Body.Close()
		if resp.StatusCode == http.StatusOK {
			printStatus("Server", "running on %s", cfg.Addr())
		} else {
			printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		}
	}

	printStatus("Storage", "%s", cfg.Storage.Backend)
	printStatus("Data dir", "%s", cfg.Storage.DataDir)
	pdf := "disabled"
	if cfg.Render.PDFEnabled {
		pdf = fmt.Sprintf("enabled (fallback: %s, timeout: %s)", cfg.Render.Fallback, cfg.Render.PDFTimeout)
	}
	printStatus("PDF", "%s", pdf)
	return nil
}

// serverURL is the base URL a local client uses to reach the configured
// server.
func serverURL(cfg config.Config) string {
	host := cfg.Server.Host
	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}
	return "http://" + net.JoinHostPort(host, fmt.Sprint(cfg.Server.Port))
}
