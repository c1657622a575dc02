package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/obsidianstack/routepulse/internal/alerts"
	"github.com/obsidianstack/routepulse/internal/api"
	"github.com/obsidianstack/routepulse/internal/auth"
	"github.com/obsidianstack/routepulse/internal/config"
	"github.com/obsidianstack/routepulse/internal/middleware"
	"github.com/obsidianstack/routepulse/internal/reporter"
	"github.com/obsidianstack/routepulse/internal/store"
	"github.com/obsidianstack/routepulse/internal/ws"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to config file; built-in defaults are used if it does not exist")
	flag.Parse()

	if err := config.LoadEnv(*configPath); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	watch := err == nil
	if errors.Is(err, fs.ErrNotExist) {
		cfg, err = config.Defaults(), nil
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	// Logs go to stderr so they do not interleave with the console report.
	level := new(slog.LevelVar)
	level.Set(cfg.Server.SlogLevel())
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})))

	slog.Info("routepulse starting",
		"config", *configPath,
		"http_port", cfg.Server.HTTPPort,
		"base_path", cfg.Server.BasePath,
		"auth_mode", cfg.Server.Auth.Mode,
		"report_interval", cfg.Reporter.Interval,
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	st := store.New()

	var console io.Writer
	if cfg.Reporter.Console {
		console = os.Stdout
	}
	rep := reporter.New(st, console, cfg.Reporter.Interval)

	alertEngine := alerts.New(cfg)
	rep.OnReport(alertEngine.Evaluate)
	go rep.Run(ctx)

	hub := ws.New(rep, cfg.Dashboard.StreamInterval)
	go hub.Run(ctx)

	if watch {
		go func() {
			err := config.Watch(ctx, *configPath, func(next *config.Config) {
				level.Set(next.Server.SlogLevel())
				rep.SetInterval(next.Reporter.Interval)
				alertEngine.Update(next)
			})
			if err != nil {
				slog.Error("config watcher stopped", "err", err)
			}
		}()
	}

	base := cfg.Server.BasePath
	protect := auth.APIKey(cfg.Server.Auth.Mode, cfg.Server.Auth.EffectiveHeader(), cfg.Server.Auth.Key())

	mux := http.NewServeMux()
	registerDemo(mux)
	mux.Handle(base+"/", protect(api.New(base, rep, alertEngine, cfg.Dashboard.PollInterval)))
	mux.Handle(base+"/stream", protect(hub))

	// Own endpoints are not recorded.
	track := middleware.HTTP(st, middleware.WithSkip(middleware.SkipPrefix(base)))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.HTTPPort),
		Handler:           track(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		slog.Info("HTTP server listening",
			"port", cfg.Server.HTTPPort,
			"dashboard", base+"/dashboard",
			"api", base+"/api",
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("HTTP server stopped", "err", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("routepulse shutting down")

	shutdownCtx, stop := context.WithTimeout(context.Background(), 5*time.Second)
	defer stop()
	srv.Shutdown(shutdownCtx) //nolint:errcheck
	alertEngine.Wait()
}
