// cmd/main.go is the application entry point.
// It wires together all layers and starts the HTTP server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/jk-7-dev/event-manager/internal/auth"
	"github.com/jk-7-dev/event-manager/internal/config"
	"github.com/jk-7-dev/event-manager/internal/database"
	"github.com/jk-7-dev/event-manager/internal/handler"
	"github.com/jk-7-dev/event-manager/internal/logger"
	"github.com/jk-7-dev/event-manager/internal/repository"
	"github.com/jk-7-dev/event-manager/internal/repository/docstore"
	"github.com/jk-7-dev/event-manager/internal/repository/memory"
	"github.com/jk-7-dev/event-manager/internal/service"
)

// stores bundles the three storage contracts of whichever driver is active.
type stores struct {
	events   repository.EventStore
	bookings repository.BookingStore
	users    repository.UserStore
	close    func()
}

func main() {
	configPath := pflag.StringP("config", "c", "./cmd/config.yml", "path to the YAML config file")
	pflag.Parse()

	conf, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	if err := logger.Init(conf.API.Environment); err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	if err := run(conf); err != nil {
		zap.L().Fatal("server exited", zap.Error(err))
	}
}

func run(conf *config.AppConfig) error {
	ctx := context.Background()

	// ── 1. Open the configured store ─────────────────────────────────────
	st, err := openStores(ctx, conf)
	if err != nil {
		return err
	}
	defer st.close()

	// ── 2. Wire up layers ────────────────────────────────────────────────
	lg := zap.L()
	tokens := auth.NewTokens([]byte(conf.Auth.JWTSigningKey), conf.Auth.TokenTTL)
	router := handler.NewRouter(handler.Services{
		Events:   service.NewEventService(st.events, lg),
		Bookings: service.NewBookingService(st.bookings, conf.Booking.MaxPerBooking, conf.API.PublicBaseURL, lg),
		Auth:     service.NewAuthService(st.users, tokens, conf.Auth.AdminEmail, lg),
	}, conf.API.AllowedCORSOrigins, lg)

	// ── 3. Start server with graceful shutdown ────────────────────────────
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%s", conf.API.Port),
		Handler:      router,
		ReadTimeout:  conf.API.ReadTimeout,
		WriteTimeout: conf.API.WriteTimeout,
		IdleTimeout:  conf.API.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		lg.Info("server listening",
			zap.String("addr", srv.Addr),
			zap.String("store", conf.Store.Driver),
			zap.String("environment", conf.API.Environment),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case err := <-serverErr:
		return fmt.Errorf("listen: %w", err)
	case <-quit:
	}

	lg.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	lg.Info("server stopped")
	return nil
}

func openStores(ctx context.Context, conf *config.AppConfig) (stores, error) {
	switch conf.Store.Driver {
	case config.StorePostgres:
		pool, err := database.NewPool(ctx, *conf.Postgres)
		if err != nil {
			return stores{}, fmt.Errorf("database: %w", err)
		}
		if err := database.Migrate(ctx, pool); err != nil {
			pool.Close()
			return stores{}, fmt.Errorf("database: %w", err)
		}
		zap.L().Info("connected to postgres", zap.String("host", conf.Postgres.Host))
		return stores{
			events:   repository.NewEventRepository(pool),
			bookings: repository.NewBookingRepository(pool),
			users:    repository.NewUserRepository(pool),
			close:    pool.Close,
		}, nil

	case config.StoreMongo:
		client, err := docstore.Connect(ctx, *conf.Mongo)
		if err != nil {
			return stores{}, fmt.Errorf("mongo: %w", err)
		}
		st := docstore.New(client, conf.Mongo.Database)
		if err := st.EnsureIndexes(ctx); err != nil {
			_ = client.Disconnect(context.Background())
			return stores{}, fmt.Errorf("mongo: %w", err)
		}
		return stores{
			events:   st,
			bookings: st,
			users:    st,
			close:    func() { _ = client.Disconnect(context.Background()) },
		}, nil

	default:
		zap.L().Warn("using the in-memory store; data is lost on restart")
		st := memory.New()
		return stores{events: st, bookings: st, users: st, close: func() {}}, nil
	}
}
