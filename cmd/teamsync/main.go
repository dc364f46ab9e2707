package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"teamsync/internal/config"
	"teamsync/internal/history"
	"teamsync/internal/hub"
	"teamsync/internal/liveness"
	"teamsync/internal/metrics"
	"teamsync/internal/note"
	"teamsync/internal/presence"
	"teamsync/internal/room"
	"teamsync/internal/websocket"
)

// Application wires the components in dependency order:
// history store, stores and registry, hub, liveness monitor, HTTP server.
type Application struct {
	cfg      *config.Config
	logger   *slog.Logger
	registry *room.Registry
	notes    *note.Store
	events   *history.Store
	hub      *hub.Hub
	monitor  *liveness.Monitor
	promReg  *prometheus.Registry
	server   *http.Server
}

func NewApplication(cfg *config.Config, logger *slog.Logger) (*Application, error) {
	promReg := prometheus.NewRegistry()
	promReg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	m := metrics.New(promReg)

	var events *history.Store
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.Path, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to open history store: %w", err)
		}
		events = store
	}

	registry := room.NewRegistry()
	tracker := presence.NewTracker()
	notes := note.NewStore()

	sessionHub := hub.New(registry, tracker, notes, events, m, logger)

	monitor := liveness.NewMonitor(registry, sessionHub.Disconnect, liveness.Config{
		ProbeInterval: cfg.WebSocket.ProbeInterval,
		SweepInterval: cfg.WebSocket.SweepInterval,
		IdleTimeout:   cfg.WebSocket.IdleTimeout,
	}, m, logger)

	wsHandler := websocket.NewHandler(sessionHub, cfg.WebSocket.ReadWait, logger)

	app := &Application{
		cfg:      cfg,
		logger:   logger,
		registry: registry,
		notes:    notes,
		events:   events,
		hub:      sessionHub,
		monitor:  monitor,
		promReg:  promReg,
	}

	router := chi.NewRouter()
	router.Use(middleware.RequestID)
	router.Use(middleware.Recoverer)

	router.Get("/ws", wsHandler.HandleWebSocket)
	router.Get("/healthz", app.handleHealth)
	router.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	router.Route("/api/teams/{teamID}", func(r chi.Router) {
		r.Get("/note", app.handleNote)
		r.Get("/events", app.handleEvents)
	})

	app.server = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.HTTP.Host, cfg.HTTP.Port),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	return app, nil
}

func (app *Application) Start(ctx context.Context) error {
	if err := app.monitor.Start(ctx); err != nil {
		return fmt.Errorf("failed to start liveness monitor: %w", err)
	}

	app.logger.Info("server listening", "addr", app.server.Addr)

	serverErrCh := make(chan error, 1)
	go func() {
		if err := app.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErrCh <- err
		}
	}()

	select {
	case err := <-serverErrCh:
		_ = app.monitor.Stop()
		return err
	case <-time.After(100 * time.Millisecond):
		return nil
	case <-ctx.Done():
		_ = app.monitor.Stop()
		return ctx.Err()
	}
}

// Stop shuts components down in reverse order: HTTP server first so no new
// connections arrive, then the monitor, then the history store.
func (app *Application) Stop(ctx context.Context) error {
	app.logger.Info("shutting down")

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Warn("http shutdown error", "error", err)
	}
	if err := app.monitor.Stop(); err != nil && !errors.Is(err, liveness.ErrNotRunning) {
		app.logger.Warn("monitor shutdown error", "error", err)
	}
	if app.events != nil {
		if err := app.events.Close(); err != nil {
			app.logger.Warn("history shutdown error", "error", err)
		}
	}

	app.logger.Info("shutdown complete")
	return nil
}

func (app *Application) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"stats":  app.registry.Stats(),
	})
}

func (app *Application) handleNote(w http.ResponseWriter, r *http.Request) {
	teamID := chi.URLParam(r, "teamID")
	content, updatedBy := app.notes.Snapshot(teamID)
	writeJSON(w, http.StatusOK, map[string]any{
		"teamId":    teamID,
		"content":   content,
		"updatedBy": updatedBy,
	})
}

func (app *Application) handleEvents(w http.ResponseWriter, r *http.Request) {
	if app.events == nil {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "history disabled"})
		return
	}

	teamID := chi.URLParam(r, "teamID")
	events, err := app.events.Recent(r.Context(), teamID, 100)
	if err != nil {
		app.logger.Warn("history query failed", "error", err, "teamId", teamID)
		writeJSON(w, http.StatusInternalServerError, map[string]any{"error": "query failed"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"teamId": teamID,
		"events": events,
	})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "", "path to JSON config file")
	port := flag.Int("port", 0, "listen port (overrides config)")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}

	app, err := NewApplication(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to build application: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalCh := make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		return fmt.Errorf("failed to start: %w", err)
	}

	sig := <-signalCh
	logger.Info("signal received", "signal", sig.String())

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.HTTP.ShutdownTimeout)
	defer shutdownCancel()
	return app.Stop(shutdownCtx)
}
