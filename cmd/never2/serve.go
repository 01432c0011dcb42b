package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/gyaneshwarpardhi/never2/internal/api"
	"github.com/gyaneshwarpardhi/never2/internal/catalog"
	"github.com/gyaneshwarpardhi/never2/internal/config"
	"github.com/gyaneshwarpardhi/never2/internal/jobs"
	"github.com/gyaneshwarpardhi/never2/internal/project"
	"github.com/gyaneshwarpardhi/never2/internal/session"
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the editing session behind the HTTP API",
	Args:  cobra.NoArgs,
	RunE:  runServe,
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "HTTP listen address (overrides server.addr)")
}

func runServe(_ *cobra.Command, _ []string) error {
	// ── Load config ──────────────────────────────────────────────────────────
	loader, err := config.NewLoader(configPath)
	if err != nil {
		slog.Error("failed to load config", "err", err)
		return err
	}
	cfg := loader.Config()
	if err := config.Validate(cfg); err != nil {
		slog.Error("config validation failed", "err", err)
		return err
	}

	level := new(slog.LevelVar)
	level.Set(cfg.Log.SlogLevel())
	logger := newLogger(os.Stdout, cfg.Log.Format, level)
	slog.SetDefault(logger)

	sceneConf, err := cfg.SceneConfig()
	if err != nil {
		return err
	}
	cat, err := loadCatalog(cfg.Editor.CatalogPath)
	if err != nil {
		slog.Error("failed to load block catalog", "err", err)
		return err
	}
	slog.Info("catalog loaded", "blocks", len(cat.Blocks()))

	// ── Session ──────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	sessCtx, stopSession := context.WithCancel(context.Background())
	defer stopSession()

	sess := session.New(sessCtx, cat, project.DefaultRegistry(), session.Config{
		Scene:          sceneConf,
		CommandTimeout: cfg.CommandTimeout(),
		JobTimeout:     cfg.JobTimeout(),
		QueueDepth:     cfg.Editor.QueueDepth,
		Logger:         logger,
	})
	registerStrategies(sess.Runner(), cfg.Jobs)

	// ── Hot-reload watcher ───────────────────────────────────────────────────
	loader.OnChange(func(newCfg *config.Config) {
		level.Set(newCfg.Log.SlogLevel())
		next, err := loadCatalog(newCfg.Editor.CatalogPath)
		if err != nil {
			slog.Warn("hot-reload skipped: catalog invalid", "err", err)
			return
		}
		cat.Swap(next)
		slog.Info("config hot-reloaded", "blocks", len(cat.Blocks()), "log_level", newCfg.Log.Level)
	})
	stopWatch, err := loader.Watch()
	if err != nil {
		slog.Warn("config watcher unavailable (hot-reload disabled)", "err", err)
	} else {
		defer stopWatch()
	}

	// ── HTTP server ──────────────────────────────────────────────────────────
	addr := cfg.Server.Addr
	if serveAddr != "" {
		addr = serveAddr
	}
	srv := &http.Server{
		Addr:         addr,
		Handler:      api.New(sess),
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
		IdleTimeout:  60 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server starting", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	// ── Graceful shutdown ────────────────────────────────────────────────────
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutting down…")
		shutCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	err = g.Wait()
	stopSession()
	sess.Close()
	if err != nil {
		slog.Error("server error", "err", err)
		return err
	}
	slog.Info("goodbye")
	return nil
}

// newLogger picks the handler for format; "auto" writes text to a terminal
// and JSON otherwise.
func newLogger(out *os.File, format string, level slog.Leveler) *slog.Logger {
	opts := &slog.HandlerOptions{Level: level}
	if format == "auto" {
		format = "json"
		if isatty.IsTerminal(out.Fd()) || isatty.IsCygwinTerminal(out.Fd()) {
			format = "text"
		}
	}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(out, opts))
	}
	return slog.New(slog.NewTextHandler(out, opts))
}

func loadCatalog(path string) (*catalog.Catalog, error) {
	if path == "" {
		return catalog.Default(), nil
	}
	return catalog.LoadFile(path)
}

func registerStrategies(r *jobs.Runner, conf config.JobsConf) {
	for name, st := range conf.Verifiers {
		r.RegisterVerifier(name, jobs.ExecVerifier{Command: jobs.Command{Path: st.Command, Args: st.Args}})
		slog.Info("verifier registered", "name", name, "command", st.Command)
	}
	for name, st := range conf.Trainers {
		r.RegisterTrainer(name, jobs.ExecTrainer{Command: jobs.Command{Path: st.Command, Args: st.Args}})
		slog.Info("trainer registered", "name", name, "command", st.Command)
	}
}
