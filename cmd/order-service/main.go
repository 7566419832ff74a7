package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
	"golang.org/x/sync/errgroup"

	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/address"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/cart"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/checkout"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/config"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/db"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/events"
	httpapi "github.com/alperenhakverdi/ecommerce/order-service-go/internal/http"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/inventory"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/logging"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/metrics"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/notify"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/order"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/payment"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/product"
	"github.com/alperenhakverdi/ecommerce/order-service-go/internal/sequence"
)

const shutdownTimeout = 10 * time.Second

func main() {
	app := &cli.App{
		Name:  "order-service",
		Usage: "cart, checkout and order lifecycle service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP API and the notification dispatcher",
				Action: serve,
			},
			{
				Name:  "migrate",
				Usage: "apply or roll back database migrations",
				Subcommands: []*cli.Command{
					{
						Name:   "up",
						Action: migrateUp,
					},
					{
						Name: "down",
						Flags: []cli.Flag{
							&cli.IntFlag{Name: "steps", Value: 1, Usage: "number of migrations to roll back"},
						},
						Action: migrateDown,
					},
				},
			},
		},
		DefaultCommand: "serve",
	}

	if err := app.Run(os.Args); err != nil {
		logrus.WithError(err).Fatal("order-service stopped")
	}
}

func setup() (config.Config, *logrus.Logger, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, nil, err
	}
	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		return config.Config{}, nil, err
	}
	return cfg, logger, nil
}

func migrateUp(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	return db.RunMigrations(cfg.DatabaseDSN, logger)
}

func migrateDown(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}
	return db.RollbackMigrations(cfg.DatabaseDSN, c.Int("steps"), logger)
}

func serve(c *cli.Context) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- DB ---
	pool, err := db.NewPool(ctx, cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	if cfg.RunMigrations {
		if err := db.RunMigrations(cfg.DatabaseDSN, logger); err != nil {
			return err
		}
	}

	m := metrics.New("order_service")

	// --- notifications ---
	sink, closeSink, err := newSink(ctx, cfg, pool, logger)
	if err != nil {
		return err
	}
	defer closeSink()

	dispatcher := notify.NewDispatcher(sink, notify.Options{
		Workers:    cfg.NotifyWorkers,
		QueueSize:  cfg.NotifyQueueSize,
		MaxRetries: cfg.NotifyMaxRetries,
		Timeout:    cfg.NotifyTimeout,
	}, logger.WithField("component", "notify"), m)

	// --- domain ---
	products := product.NewPostgresRepository(pool)
	stock := inventory.NewPostgresRepository(pool)
	carts := cart.NewPostgresRepository(pool)
	addresses := address.NewPostgresRepository(pool)
	orders := order.NewPostgresRepository(pool)

	orderSvc := order.NewService(orders, logger.WithField("component", "orders"), nil)
	threshold, err := cfg.DeclineThreshold()
	if err != nil {
		return err
	}

	checkoutSvc := checkout.NewService(
		pool, carts, addresses, stock, orders,
		checkout.NewPostgresRequestRepository(pool),
		dispatcher,
		logger.WithField("component", "checkout"),
		checkout.WithObserver(m),
	)

	// --- HTTP ---
	h := httpapi.NewHandler(httpapi.Services{
		Carts:     cart.NewService(carts, products, logger.WithField("component", "cart")),
		Checkout:  checkoutSvc,
		Orders:    orderSvc,
		Payments:  payment.NewService(orderSvc, threshold, logger.WithField("component", "payment")),
		Products:  products,
		Inventory: stock,
		Addresses: addresses,
	}, m, logger)

	server := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           httpapi.NewRouter(h, m, logger, cfg.RequestTimeout),
		ReadHeaderTimeout: 5 * time.Second,
	}

	// The dispatcher outlives the HTTP server so confirmations queued by the
	// last requests are still delivered.
	dispatchCtx, stopDispatch := context.WithCancel(context.Background())
	defer stopDispatch()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return dispatcher.Run(dispatchCtx)
	})
	g.Go(func() error {
		logger.WithField("addr", cfg.HTTPAddr).Info("http listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return errors.Wrap(err, "http server")
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		defer stopDispatch()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("shutdown complete")
	return err
}

func newSink(ctx context.Context, cfg config.Config, pool *pgxpool.Pool, logger logrus.FieldLogger) (notify.Sink, func(), error) {
	seq := sequence.NewPostgresRepository(pool)

	switch cfg.NotifySink {
	case config.SinkRabbitMQ:
		conn, err := events.DialRabbit(ctx, cfg.RabbitURL, logger)
		if err != nil {
			return nil, nil, err
		}
		sink, err := notify.NewRabbitSink(conn, seq)
		if err != nil {
			_ = conn.Close()
			return nil, nil, err
		}
		return sink, func() {
			_ = sink.Close()
			_ = conn.Close()
		}, nil
	case config.SinkKafka:
		sink := notify.NewKafkaSink(cfg.KafkaBrokers, cfg.KafkaTopic, seq)
		return sink, func() { _ = sink.Close() }, nil
	default:
		return notify.NewLogSink(logger.WithField("component", "notify")), func() {}, nil
	}
}
