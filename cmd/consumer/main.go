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

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/segmentio/kafka-go"

	"github.com/example/backhaul-matching/internal/config"
	"github.com/example/backhaul-matching/internal/geo"
	"github.com/example/backhaul-matching/internal/ingest"
	"github.com/example/backhaul-matching/internal/logging"
	"github.com/example/backhaul-matching/internal/models"
)

var (
	msgsConsumed = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backhaul_matching",
		Name:      "consumer_messages_consumed_total",
		Help:      "Total route event messages consumed",
	})
	msgsInvalid = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backhaul_matching",
		Name:      "consumer_messages_invalid_total",
		Help:      "Total invalid messages received",
	})
	indexUpdates = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "backhaul_matching",
		Name:      "consumer_index_updates_total",
		Help:      "Total successful route index updates by event type",
	}, []string{"type"})
	indexErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "backhaul_matching",
		Name:      "consumer_index_errors_total",
		Help:      "Total route index updates that failed after retries",
	})
)

func init() {
	prometheus.MustRegister(msgsConsumed, msgsInvalid, indexUpdates, indexErrors)
}

func main() {
	cfg, err := config.LoadConsumerConfig()
	logger := logging.NewLogger(cfg.LogLevel, cfg.LogFormat, "route-indexer")
	if err != nil {
		logger.Error("invalid configuration", "error", err)
		os.Exit(1)
	}

	rc := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr, Password: cfg.RedisPassword})
	idx := geo.NewRedisIndex(rc, cfg.RedisRoutePrefix)

	// start metrics and health server
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ok"))
		})
		mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
			if err := idx.Ping(r.Context()); err != nil {
				http.Error(w, "redis not ready", http.StatusServiceUnavailable)
				return
			}
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
		})
		logger.Info("metrics/health listening", "addr", cfg.MetricsAddr)
		if err := http.ListenAndServe(cfg.MetricsAddr, mux); err != nil {
			logger.Warn("metrics server stopped", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.KafkaBrokers,
		Topic:    cfg.KafkaRouteTopic,
		GroupID:  cfg.KafkaGroupID,
		MinBytes: 10e3,
		MaxBytes: 10e6,
	})
	defer func() {
		_ = r.Close()
		_ = rc.Close()
	}()

	logger.Info("consumer listening", "topic", cfg.KafkaRouteTopic, "brokers", cfg.KafkaBrokers, "group", cfg.KafkaGroupID)
	consume(ctx, r, idx, cfg, logger)
	logger.Info("shutting down consumer")
}

// messageReader is the subset of *kafka.Reader the loop needs.
type messageReader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
}

// RouteIndexer applies a route snapshot to the search index. Routes that are
// no longer searchable are removed by the same call.
type RouteIndexer interface {
	Upsert(ctx context.Context, route models.PostedRoute) error
}

func consume(ctx context.Context, r messageReader, idx RouteIndexer, cfg config.ConsumerConfig, logger *slog.Logger) {
	backoff := time.Second
	const maxBackoff = 30 * time.Second

	for {
		m, err := r.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Warn("kafka read error", "error", err, "backoff", backoff)
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}
			backoff *= 2
			if backoff > maxBackoff {
				backoff = maxBackoff
			}
			continue
		}
		// reset backoff on success
		backoff = time.Second

		msgsConsumed.Inc()

		ev, err := ingest.DecodeRouteEvent(m)
		if err != nil {
			msgsInvalid.Inc()
			logger.Warn("invalid message", "error", err)
			continue
		}

		if err := applyWithRetry(ctx, idx, ev, cfg.RetryAttempts, cfg.RetryDelay); err != nil {
			indexErrors.Inc()
			logger.Error("route index update failed", "route_id", ev.Route.ID, "type", ev.Type, "error", err)
			continue
		}
		indexUpdates.WithLabelValues(string(ev.Type)).Inc()
		logger.Debug("route indexed", "route_id", ev.Route.ID, "type", ev.Type, "status", ev.Route.Status)
	}
}

// applyWithRetry writes the event's route snapshot to the index, doubling
// the delay between attempts.
func applyWithRetry(ctx context.Context, idx RouteIndexer, ev models.RouteEvent, attempts int, delay time.Duration) error {
	var err error
	for i := 0; i < attempts; i++ {
		if err = idx.Upsert(ctx, ev.Route); err == nil {
			return nil
		}
		if i == attempts-1 {
			break
		}
		select {
		case <-ctx.Done():
			return errors.Join(err, ctx.Err())
		case <-time.After(delay):
		}
		delay *= 2
	}
	return err
}
