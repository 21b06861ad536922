package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"

	"github.com/example/backhaul-matching/internal/auth"
	"github.com/example/backhaul-matching/internal/booking"
	"github.com/example/backhaul-matching/internal/config"
	"github.com/example/backhaul-matching/internal/dispatch"
	"github.com/example/backhaul-matching/internal/geo"
	httpapi "github.com/example/backhaul-matching/internal/http"
	"github.com/example/backhaul-matching/internal/ingest"
	"github.com/example/backhaul-matching/internal/logging"
	"github.com/example/backhaul-matching/internal/matcher"
	"github.com/example/backhaul-matching/internal/models"
	"github.com/example/backhaul-matching/internal/payments"
	"github.com/example/backhaul-matching/internal/routes"
	"github.com/example/backhaul-matching/internal/storage"
)

func main() {
	cfg, err := config.LoadServerConfig()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, "backhaul-api")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	if err := run(cfg, logger); err != nil {
		logger.Error("server stopped", "error", err)
		os.Exit(1)
	}
}

// routeBackend is what the route and booking services need from storage.
type routeBackend interface {
	storage.RouteStore
	httpapi.DriverDirectory
	geo.DriverLookup
}

func run(cfg config.ServerConfig, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ready := map[string]httpapi.Pinger{}

	var store routeBackend
	if cfg.PGDSN != "" {
		pg, err := storage.NewPostgresStore(ctx, cfg.PGDSN)
		if err != nil {
			return err
		}
		defer pg.Close()
		if cfg.RunMigrations {
			if err := pg.Migrate(ctx); err != nil {
				return err
			}
			logger.Info("migrations applied")
		}
		store = pg
		ready["postgres"] = pg
	} else {
		logger.Warn("PG_DSN not set, routes are kept in memory")
		store = storage.NewMemoryStore()
	}

	// Search reads from the Redis index when one is configured. The route
	// consumer keeps it in sync from the route event stream; driver profiles
	// still come from the store.
	var finder matcher.Finder = store
	if cfg.RedisAddr != "" {
		rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
		defer rc.Close()
		idx := geo.NewRedisIndex(rc, cfg.RedisRoutePrefix).WithDrivers(store)
		finder = idx
		ready["redis"] = idx
	}

	search, err := matcher.NewService(finder, cfg.MatcherConfig(), logger)
	if err != nil {
		return err
	}

	var (
		routeEvents   routes.EventPublisher
		bookingEvents booking.EventPublisher = logPublisher{logger: logger}
	)
	if len(cfg.KafkaBrokers) > 0 {
		producer := ingest.NewKafkaProducer(cfg.KafkaBrokers, cfg.KafkaRouteTopic, cfg.KafkaBookingTopic)
		defer func() {
			if err := producer.Close(); err != nil {
				logger.Warn("kafka producer close", "error", err)
			}
		}()
		routeEvents = producer
		bookingEvents = producer
	} else {
		logger.Warn("KAFKA_BROKERS not set, route events are not published")
	}

	var holder booking.PaymentHolder
	if cfg.StripeAPIKey != "" {
		holder = payments.NewStripeClient(cfg.StripeAPIKey)
	}

	wsreg := dispatch.NewWSRegistry(logger)
	var notifier dispatch.Notifier = wsreg
	if cfg.DriverPushEndpoint != "" {
		notifier = dispatch.NewPushDispatcher(cfg.DriverPushEndpoint, wsreg)
	}

	api := httpapi.NewServer(httpapi.Deps{
		Search:        search,
		Routes:        routes.NewService(store, routeEvents, logger),
		Bookings:      booking.NewService(store, bookingEvents, holder, notifier, cfg.PlatformCommissionPercent, logger),
		Drivers:       store,
		Auth:          auth.NewAuthenticator(cfg.JWTSecret, logger),
		WSReg:         wsreg,
		Ready:         ready,
		SearchTimeout: cfg.SearchTimeout,
		Logger:        logger,
	})

	srv := &http.Server{
		Addr:         cfg.HTTPAddr,
		Handler:      api,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
		IdleTimeout:  cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("backhaul api listening", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// logPublisher records booking requests in the log when no broker is
// configured, so local runs still show what would have been emitted.
type logPublisher struct{ logger *slog.Logger }

func (p logPublisher) PublishBookingEvent(_ context.Context, ev models.BookingEvent) error {
	p.logger.Info("booking event", "type", ev.Type, "booking_id", ev.Booking.ID, "route_id", ev.Booking.RouteID, "driver_id", ev.Booking.DriverID)
	return nil
}
