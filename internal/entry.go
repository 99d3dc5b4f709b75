// Package internal provides the main application initialization and runtime logic.
package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/sync/errgroup"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/starford/inkmirror/internal/api"
	"github.com/starford/inkmirror/internal/decoder"
	"github.com/starford/inkmirror/internal/destination"
	"github.com/starford/inkmirror/internal/journal"
	"github.com/starford/inkmirror/internal/mcpserver"
	"github.com/starford/inkmirror/internal/models"
	"github.com/starford/inkmirror/internal/notify"
	"github.com/starford/inkmirror/internal/reconcile"
	"github.com/starford/inkmirror/internal/scheduler"
	"github.com/starford/inkmirror/internal/settings"
	"github.com/starford/inkmirror/internal/sse"
)

// runtime holds the components shared by every run mode.
type runtime struct {
	cfg     *Config
	logger  *slog.Logger
	dest    *destination.Joplin
	journal *journal.DB
	broker  *sse.Broker
	syncer  *reconcile.Syncer
	closers []io.Closer
}

func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
}

func newApplication(opts []Option) (*application, error) {
	app := &application{version: "dev", logOutput: os.Stdout}
	for _, opt := range opts {
		opt(app)
	}
	if app.config == nil {
		return nil, fmt.Errorf("config is required")
	}
	return app, nil
}

// newLogger builds the JSON logger, tee'd into a rotated file when one is configured.
func newLogger(cfg ApplicationConfig, out io.Writer) (*slog.Logger, *lumberjack.Logger) {
	var lj *lumberjack.Logger
	if cfg.LogFile.Path != "" {
		lj = &lumberjack.Logger{
			Filename:   cfg.LogFile.Path,
			MaxSize:    cfg.LogFile.MaxSizeMB,
			MaxBackups: cfg.LogFile.MaxBackups,
			MaxAge:     cfg.LogFile.MaxAgeDays,
			Compress:   true,
		}
		out = io.MultiWriter(out, lj)
	}
	logger := slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{
		Level: cfg.LogLevel,
	}))
	return logger, lj
}

func (app *application) build(withEvents bool) (*runtime, error) {
	cfg := app.config
	rt := &runtime{cfg: cfg}

	logger, logFile := newLogger(cfg.App, app.logOutput)
	slog.SetDefault(logger)
	rt.logger = logger
	if logFile != nil {
		rt.closers = append(rt.closers, logFile)
	}

	logger.Info("Configuration loaded",
		slog.String("source_path", cfg.Source.Path),
		slog.String("destination", cfg.Destination.BaseURL),
		slog.String("journal_path", cfg.Journal.Path),
		slog.Duration("interval", cfg.Sync.Interval()),
		slog.Bool("reflow", cfg.Sync.Reflow),
		slog.String("log_level", cfg.App.LogLevel.String()))

	dest, err := destination.NewJoplin(destination.JoplinOptions{
		BaseURL:  cfg.Destination.BaseURL,
		Token:    cfg.Destination.Token,
		PageSize: cfg.Destination.PageSize,
		Timeout:  cfg.Destination.Timeout(),
	})
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init destination: %w", err)
	}
	rt.dest = dest

	if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
		rt.Close()
		return nil, fmt.Errorf("create journal dir: %w", err)
	}
	db, err := journal.Open(cfg.Journal.Path)
	if err != nil {
		rt.Close()
		return nil, fmt.Errorf("init journal: %w", err)
	}
	rt.journal = db
	rt.closers = append(rt.closers, db)

	sinks := notify.Multi{notify.Log{Logger: logger}}
	var events reconcile.Publisher
	if withEvents {
		rt.broker = sse.NewBroker(time.Second)
		sinks = append(sinks, notify.Broker{B: rt.broker})
		events = rt.broker
	}

	dec := &decoder.Command{Path: cfg.Decoder.Command, Args: cfg.Decoder.Args}
	rt.syncer = reconcile.NewSyncer(reconcile.Options{
		SourceRoot: cfg.Source.Path,
		RootLink:   cfg.Destination.RootLink,
		Extension:  cfg.Source.Extension,
		ScratchDir: cfg.Source.ScratchDir,
		Reflow:     cfg.Sync.Reflow,
	}, dest, dec, db, events, sinks, logger)

	return rt, nil
}

func (rt *runtime) newScheduler() *scheduler.Scheduler {
	return scheduler.New(func(ctx context.Context) error {
		_, err := rt.syncer.Run(ctx)
		return err
	}, rt.logger)
}

// Run starts the sync daemon: the scheduler, the status API and the config
// watcher. It returns after SIGINT/SIGTERM or when ctx is cancelled.
func Run(ctx context.Context, opts ...Option) error {
	app, err := newApplication(opts)
	if err != nil {
		return err
	}
	rt, err := app.build(true)
	if err != nil {
		return err
	}
	defer rt.Close()
	defer rt.broker.Close()

	cfg := rt.cfg
	logger := rt.logger
	sched := rt.newScheduler()

	// Build chi router.
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	// Health check endpoints (unauthenticated).
	api.MountHealth(r, rt.dest)

	// Mount API routes under /api, including the SSE stream at /api/events.
	r.Mount("/api", api.NewRouter(api.NewHandler(sched, rt.journal), cfg.Auth.AuthEnabled(), cfg.Auth.Token, rt.broker))

	httpServer := &http.Server{
		Addr:              cfg.App.HTTP.Address(),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gCtx, cfg.Sync.Interval())
	})

	if app.configPath != "" {
		g.Go(func() error {
			if err := settings.Watch(gCtx, app.configPath, logger, reloader(app.configPath, sched, rt.syncer, logger)); err != nil {
				logger.Warn("config watcher unavailable", slog.String("error", err.Error()))
			}
			return nil
		})
	}

	g.Go(func() error {
		logger.Info("Starting HTTP server", slog.String("address", cfg.App.HTTP.Address()))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("HTTP server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gCtx.Done()
		logger.Info("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP server shutdown error", slog.String("error", err.Error()))
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Application error", slog.String("error", err.Error()))
		return err
	}

	logger.Info("Server stopped successfully")
	return nil
}

// RunOnce performs a single reconciliation pass and returns its report.
func RunOnce(ctx context.Context, opts ...Option) (*models.Report, error) {
	app, err := newApplication(opts)
	if err != nil {
		return nil, err
	}
	rt, err := app.build(false)
	if err != nil {
		return nil, err
	}
	defer rt.Close()

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return rt.syncer.Run(ctx)
}

// ServeMCP runs the scheduler in the background and serves the MCP tools
// on stdin/stdout until the client disconnects. Logs must not go to stdout
// in this mode.
func ServeMCP(ctx context.Context, opts ...Option) error {
	app, err := newApplication(append([]Option{WithLogOutput(os.Stderr)}, opts...))
	if err != nil {
		return err
	}
	rt, err := app.build(false)
	if err != nil {
		return err
	}
	defer rt.Close()

	sched := rt.newScheduler()
	ctx, cancel := context.WithCancel(ctx)
	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return sched.Run(gCtx, rt.cfg.Sync.Interval())
	})
	g.Go(func() error {
		defer cancel()
		return mcpserver.New(sched, rt.journal, app.version).ServeStdio()
	})

	return g.Wait()
}
