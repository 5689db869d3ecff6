package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"

	"card-room-server/api"
	"card-room-server/auth"
	"card-room-server/config"
	"card-room-server/game"
	"card-room-server/loghandler"
	"card-room-server/pubsub"
	"card-room-server/storage"
	"card-room-server/ws"
)

func main() {
	envErr := godotenv.Load()

	cfg := config.Load()
	slog.SetDefault(slog.New(loghandler.NewCompactHandler(os.Stderr, cfg.SlogLevel())))
	if envErr != nil {
		slog.Info("no .env file found; using environment variables", "tag", "main")
	}

	slog.Info("configuration", "tag", "main",
		"port", cfg.Port, "mode", cfg.DefaultMode, "max_boosts", cfg.DefaultMaxBoosts,
		"decks", cfg.DefaultDecks, "retention_h", cfg.RoomRetentionHours, "action_timeout_ms", cfg.ActionTimeoutMS)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("storage unavailable", "tag", "main", "error", err)
		os.Exit(1)
	}
	defer store.Close()

	hub := ws.NewHub()
	go hub.Run(ctx)

	var delivery game.Delivery = hub
	if cfg.NATSURL != "" {
		nc, err := pubsub.Connect(cfg.NATSURL)
		if err != nil {
			slog.Warn("NATS unavailable; room events will not be mirrored", "tag", "main", "error", err)
		} else {
			defer nc.Drain()
			delivery = pubsub.NewMirror(hub, nc)
			slog.Info("mirroring room events to NATS", "tag", "main", "url", cfg.NATSURL)
		}
	}

	manager := game.NewManager(ctx, cfg, store, delivery)
	defer manager.Shutdown()
	hub.Rooms = manager

	janitor := game.NewJanitor(manager, cfg.RoomRetention(), cfg.CleanupInterval())
	janitor.Start()
	defer janitor.Stop()

	var authz api.Authorizer
	if cfg.AuthBaseURL == "" {
		slog.Warn("AUTH_BASE_URL is not set; system calls are unauthenticated", "tag", "main")
	} else {
		v, err := auth.NewVerifier(cfg.AuthBaseURL)
		if err != nil {
			slog.Error("auth setup failed", "tag", "main", "error", err)
			os.Exit(1)
		}
		authz = v
	}

	gin.SetMode(gin.ReleaseMode)
	handler := api.NewHandler(manager, authz, hub.ServeWS)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           handler.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		slog.Info("card room server listening", "tag", "main", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server failed", "tag", "main", "error", err)
			stop()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down", "tag", "main")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("http shutdown", "tag", "main", "error", err)
	}
}

// openStore picks Postgres when DATABASE_URL is set, memory otherwise.
func openStore(ctx context.Context, cfg *config.Config) (storage.Store, error) {
	if cfg.DatabaseURL == "" {
		slog.Info("DATABASE_URL not set; rooms are kept in memory", "tag", "main")
		return storage.NewMemoryStore(), nil
	}
	pg, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, err
	}
	return pg, nil
}
