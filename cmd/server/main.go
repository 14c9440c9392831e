// Command server wires the detection engine: MQTT location stream in,
// transition events out to the event store and the notifier fan-out.
// Business logic lives in the internal packages; main stays declarative.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	_ "github.com/lib/pq"
	amqp "github.com/rabbitmq/amqp091-go"
	"golang.org/x/sync/errgroup"

	"github.com/geotrackd/fencewatch/internal/catalog"
	"github.com/geotrackd/fencewatch/internal/detector"
	"github.com/geotrackd/fencewatch/internal/detector/metrics"
	"github.com/geotrackd/fencewatch/internal/events"
	"github.com/geotrackd/fencewatch/internal/ingest"
	"github.com/geotrackd/fencewatch/internal/notify"
	"github.com/geotrackd/fencewatch/internal/ops"
	"github.com/geotrackd/fencewatch/internal/platform/config"
	"github.com/geotrackd/fencewatch/internal/platform/httpserver"
	"github.com/geotrackd/fencewatch/internal/platform/logger"
	platformredis "github.com/geotrackd/fencewatch/internal/platform/redis"
	"github.com/geotrackd/fencewatch/internal/state"
)

func main() {
	cfg := config.Load()
	log := logger.New(logger.ParseLevel(cfg.LogLevel))

	if err := run(cfg, log); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("server exited", "error", err)
		os.Exit(1)
	}
}

func run(cfg config.Config, log *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	checks := map[string]ops.HealthCheck{}

	// Postgres backs the catalog and both event trails when configured;
	// otherwise everything runs in memory.
	var db *sql.DB
	if cfg.PostgresDSN != "" {
		var err error
		db, err = sql.Open("postgres", cfg.PostgresDSN)
		if err != nil {
			return fmt.Errorf("open postgres: %w", err)
		}
		defer func() { _ = db.Close() }()
		if err := db.PingContext(ctx); err != nil {
			return fmt.Errorf("ping postgres: %w", err)
		}
		checks["postgres"] = db.PingContext
	}

	redisClient, err := platformredis.New(ctx, cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	if redisClient != nil {
		defer func() { _ = redisClient.Close() }()
		checks["redis"] = redisClient.Health
	}

	var catalogProvider catalog.Provider
	var sink events.Sink
	var locations events.LocationStore
	if db != nil {
		catalogProvider = catalog.NewPostgresStore(db)
		sink = events.NewPostgresStore(db)
		locations = events.NewPostgresLocationStore(db)
	} else {
		log.Warn("no postgres configured, running with in-memory stores")
		catalogProvider = catalog.NewMemoryStore()
		sink = events.NewMemoryStore()
		locations = events.NewMemoryLocationStore()
	}
	if redisClient != nil {
		catalogProvider = catalog.NewCachedProvider(
			catalogProvider, catalog.NewRedisCache(redisClient.Client), cfg.CatalogCacheTTL, log)
	}

	notifier, closeNotifier, err := buildNotifier(cfg, redisClient, log)
	if err != nil {
		return err
	}
	defer closeNotifier()

	states := state.NewStore(
		state.WithTTL(cfg.StateTTL),
		state.WithMaxUsers(cfg.MaxTrackedUsers),
		state.WithSweepInterval(cfg.StateSweepEvery),
	)

	det := detector.New(catalogProvider, states, sink, notifier, log,
		detector.WithMetrics(metrics.New()))

	dispatcher := ingest.NewDispatcher(det, cfg.PerUserQueueDepth, log)

	srv := httpserver.New(cfg.OpsAddr, ops.NewRouter(checks))

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error { return states.Run(ctx) })
	g.Go(func() error { return dispatcher.Run(ctx) })

	g.Go(func() error {
		log.Info("ops server listening", "addr", cfg.OpsAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("ops server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if cfg.MQTTBroker != "" {
		subscriber, err := startMQTT(cfg, locations, dispatcher, log)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-ctx.Done()
			return subscriber.Stop()
		})
	} else {
		log.Warn("no MQTT broker configured, ingest boundary is idle")
	}

	log.Info("fencewatch started")
	return g.Wait()
}

func buildNotifier(cfg config.Config, redisClient *platformredis.Client, log *slog.Logger) (notify.Notifier, func(), error) {
	var notifiers []notify.Notifier
	closers := []func(){}

	if redisClient != nil {
		notifiers = append(notifiers, notify.NewRedisNotifier(redisClient.Client))
	}
	if cfg.AMQPURL != "" {
		conn, err := amqp.Dial(cfg.AMQPURL)
		if err != nil {
			return nil, nil, fmt.Errorf("amqp connect: %w", err)
		}
		amqpNotifier, err := notify.NewAMQPNotifier(conn)
		if err != nil {
			_ = conn.Close()
			return nil, nil, fmt.Errorf("amqp notifier: %w", err)
		}
		notifiers = append(notifiers, amqpNotifier)
		closers = append(closers, func() {
			_ = amqpNotifier.Close()
			_ = conn.Close()
		})
	}

	closeAll := func() {
		for _, fn := range closers {
			fn()
		}
	}

	switch len(notifiers) {
	case 0:
		log.Warn("no notifier transport configured, events will not be published")
		return notify.Noop{}, closeAll, nil
	case 1:
		return notifiers[0], closeAll, nil
	default:
		return notify.NewMulti(notifiers...), closeAll, nil
	}
}

func startMQTT(cfg config.Config, locations events.LocationStore, dispatcher *ingest.Dispatcher, log *slog.Logger) (*ingest.Subscriber, error) {
	opts := mqtt.NewClientOptions().
		AddBroker(cfg.MQTTBroker).
		SetClientID(cfg.MQTTClientID).
		SetAutoReconnect(true)

	client := mqtt.NewClient(opts)
	if token := client.Connect(); token.Wait() && token.Error() != nil {
		return nil, fmt.Errorf("mqtt connect: %w", token.Error())
	}

	subscriber := ingest.NewSubscriber(client, cfg.MQTTTopic, locations, dispatcher, log)
	if err := subscriber.Start(); err != nil {
		client.Disconnect(250)
		return nil, fmt.Errorf("mqtt subscribe: %w", err)
	}
	log.Info("subscribed to location stream", "broker", cfg.MQTTBroker, "topic", cfg.MQTTTopic)
	return subscriber, nil
}
