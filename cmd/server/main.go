package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"presentsync/internal/display"
	"presentsync/internal/platform/config"
	"presentsync/internal/platform/logger"
	"presentsync/internal/platform/metrics"
	"presentsync/internal/presentation"
	"presentsync/internal/room"
	"presentsync/internal/storage"
	"presentsync/internal/storage/memory"
	"presentsync/internal/storage/valkey"

	"github.com/go-chi/chi/v5"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = config.Load()

	port := config.GetEnv("PORT", "8080")
	logLevel := config.GetEnv("LOG_LEVEL", "info")
	logFormat := config.GetEnv("LOG_FORMAT", "json")
	valkeyAddr := config.GetEnv("VALKEY_ADDR", "")
	capacity := config.GetEnvInt("ROOM_CAPACITY", room.DefaultCapacity)
	ttl := config.GetEnvDuration("SESSION_TTL", room.DefaultTTL)
	syncDelay := config.GetEnvDuration("SYNC_DELAY", display.DefaultSyncDelay)
	sweepInterval := config.GetEnvDuration("SWEEP_INTERVAL", room.DefaultSweepInterval)

	log := logger.New(logLevel, logFormat)

	var (
		sessions storage.SessionRepository
		content  storage.ContentRepository
		themes   storage.ThemeRepository
	)
	if valkeyAddr != "" {
		store, err := valkey.New(valkeyAddr)
		if err != nil {
			log.Error("valkey connection failed", "addr", valkeyAddr, "error", err)
			os.Exit(1)
		}
		defer store.Close()
		sessions, content, themes = store, store.Content(), store.Themes()
		log.Info("using valkey storage", "addr", valkeyAddr)
	} else {
		sessions = memory.NewSessionRepository()
		content = memory.NewContentRepository()
		themes = memory.NewThemeRepository()
		log.Info("using in-memory storage")
	}

	met := metrics.New()

	hub := room.NewHub()
	go hub.Run()
	defer hub.Stop()

	svc := room.NewService(sessions, content, hub, capacity, ttl, log, met)

	// Per-output theme overrides come from the theme catalogs; there is no
	// override source wired on a plain server instance.
	resolver := presentation.NewResolver(nil, func(tt presentation.ThemeType, id string) (*presentation.Theme, bool) {
		theme, err := themes.Get(context.Background(), tt, id)
		if err != nil {
			return nil, false
		}
		return theme, true
	})
	displays := display.NewManager(presentation.NewStore(), resolver, syncDelay, log, met)

	h := room.NewHandler(svc, displays, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go room.NewSweeper(svc, sessions, sweepInterval, log).Run(ctx)

	r := chi.NewRouter()
	r.Use(logger.RequestLogger(log))
	r.Use(metrics.RequestMiddleware(met))
	r.Get("/metrics", func(w http.ResponseWriter, req *http.Request) {
		met.Handler(func() {
			met.SetConnectedViewers(hub.TotalConnections())
			met.SetReadyOutputs(displays.ReadyCount())
			met.SetActiveRooms(svc.ActiveRoomCount(req.Context()))
		}).ServeHTTP(w, req)
	})
	h.Routes(r)

	addr := ":" + port
	srv := &http.Server{Addr: addr, Handler: r}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	log.Info("server starting",
		"port", port,
		"room_capacity", capacity,
		"session_ttl", ttl.String(),
		"log_level", logLevel,
	)

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	log.Info("shutdown signal received, draining connections")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("shutdown error", "error", err)
		os.Exit(1)
	}

	log.Info("server stopped")
}
