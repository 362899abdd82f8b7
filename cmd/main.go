package main

import (
	"context"
	"errors"
	"fulfillment-service/app/domain"
	handler "fulfillment-service/app/handler/api"
	"fulfillment-service/app/handler/event"
	"fulfillment-service/app/middleware"
	"fulfillment-service/app/repository/broker"
	"fulfillment-service/app/repository/db"
	"fulfillment-service/app/repository/lock"
	"fulfillment-service/app/usecase"
	"fulfillment-service/config"
	"fulfillment-service/pkg/logger"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/healthcheck"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	slogfiber "github.com/samber/slog-fiber"
	"golang.org/x/sync/errgroup"
)

type eventBus interface {
	domain.BrokerPublisher
	domain.BrokerSubscriber
}

func newEventBus(ctx context.Context, cfg *config.Config) (eventBus, func(), error) {
	if cfg.Broker.Driver == "kafka" {
		bus := broker.NewKafkaBroker(broker.KafkaOptions{
			Brokers:    cfg.Kafka.BrokerList(),
			GroupID:    cfg.Kafka.GroupID,
			MaxDeliver: cfg.Broker.EventMaxDeliver,
			RetryDelay: cfg.Broker.EventRetryDelay,
		})
		return bus, func() {}, nil
	}

	// Connect to NATS server
	nc, err := nats.Connect(cfg.Nats.Url)
	if err != nil {
		return nil, nil, err
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, nil, err
	}

	bus := broker.NewNatsBroker(js, broker.NatsOptions{
		StreamName:  cfg.Nats.StreamName,
		DurableName: cfg.Nats.DurableName,
		MaxDeliver:  cfg.Broker.EventMaxDeliver,
		RetryDelay:  cfg.Broker.EventRetryDelay,
	})
	if err := bus.EnsureStream(ctx); err != nil {
		nc.Close()
		return nil, nil, err
	}
	return bus, func() { nc.Drain() }, nil
}

func main() {
	// init logger
	logger.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// init config
	cfg, err := config.InitConfig(ctx)
	if err != nil {
		slog.Error("failed to init config", "error", err)
		return
	}

	// init database
	dbConn, err := db.NewPostgres(cfg.Db)
	if err != nil {
		slog.Error("DB connection failed", "error", err)
		return
	}
	defer dbConn.Close()

	if err := db.Migrate(ctx, dbConn); err != nil {
		slog.Error("DB migration failed", "error", err)
		return
	}

	bus, closeBus, err := newEventBus(ctx, cfg)
	if err != nil {
		slog.Error("event bus init failed", "driver", cfg.Broker.Driver, "error", err)
		return
	}
	defer closeBus()

	var locker domain.Locker
	redisClient, err := lock.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		slog.Error("Redis connection failed", "addr", cfg.Redis.Addr, "error", err)
		return
	}
	if redisClient != nil {
		defer redisClient.Close()
		locker = lock.NewRedisLocker(redisClient)
	}

	reqValidator := validator.New()
	inventoryRepo := db.NewInventoryRepository(dbConn)
	txnRepo := db.NewInventoryTransactionRepository(dbConn)
	reservationRepo := db.NewReservationRepository(dbConn)
	orderRepo := db.NewOrderRepository(dbConn)
	outboxRepo := db.NewOutboxRepository(dbConn)

	inventoryUsecase := usecase.NewInventoryUsecase(inventoryRepo, txnRepo, reservationRepo, outboxRepo, cfg)
	orderUsecase := usecase.NewOrderUsecase(orderRepo, reservationRepo, outboxRepo, inventoryUsecase)
	sweeperUsecase := usecase.NewSweeperUsecase(reservationRepo, inventoryUsecase, locker, cfg)
	outboxRelay := usecase.NewOutboxRelay(outboxRepo, bus, cfg)

	inventoryHandler := handler.NewInventoryHandler(inventoryUsecase, sweeperUsecase, reqValidator)
	orderHandler := handler.NewOrderHandler(orderUsecase, reqValidator)
	eventHandler := event.NewEventHandler(orderUsecase, reqValidator)

	if err := eventHandler.Register(ctx, bus); err != nil {
		slog.Error("event subscription failed", "error", err)
		return
	}

	// Initialize HTTP web framework
	app := fiber.New()
	app.Use(healthcheck.New(healthcheck.Config{
		LivenessProbe: func(c *fiber.Ctx) bool {
			return true
		},
		LivenessEndpoint: "/live",
		ReadinessProbe: func(c *fiber.Ctx) bool {
			return dbConn.PingContext(c.UserContext()) == nil
		},
		ReadinessEndpoint: "/ready",
	}))
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.Handler()))
	app.Use(slogfiber.New(logger.New(os.Stdout, slog.LevelInfo)))
	app.Use(recover.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
	}))
	app.Use(middleware.RequestIDMiddleware())

	handler.SetupRouter(app, orderHandler, inventoryHandler, cfg)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		outboxRelay.Start(gctx)
		return nil
	})
	g.Go(func() error {
		sweeperUsecase.Start(gctx)
		return nil
	})
	g.Go(func() error {
		if err := app.Listen(":" + cfg.Port); err != nil {
			slog.Error("Failed to listen", "port", cfg.Port, "error", err)
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("Gracefully shutdown")
		if err := app.Shutdown(); err != nil {
			slog.Warn("Unfortunately the shutdown wasn't smooth", "err", err)
		}
		return bus.Close()
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		slog.Error("service stopped with error", "error", err)
	}
}
