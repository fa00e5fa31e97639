package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"festival-booking/config"
	"festival-booking/internal/api"
	"festival-booking/internal/broker"
	"festival-booking/internal/redisclient"
	"festival-booking/internal/service"
	"festival-booking/internal/store"
	"festival-booking/internal/store/memstore"
	"festival-booking/internal/ticket"
	"festival-booking/internal/util"
	"festival-booking/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

func main() {

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	if err := util.InitLogger(cfg.Server.Env, cfg.Server.LogLevel); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting festival booking service", zap.String("event_id", cfg.Event.ID))

	tp, err := util.InitTracer(cfg.Server.Env, cfg.Observ.JaegerEndpoint)
	if err != nil {
		log.Fatalf("Failed to initialize tracer: %v", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			log.Printf("Error shutting down tracer: %v", err)
		}
	}()

	var db service.Store
	switch cfg.Database.Driver {
	case "memory":
		db = memstore.New()
		logger.Warn("Using the in-memory store; data is lost on restart")
	default:
		pg, err := store.NewStore(cfg.Database.URL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer pg.Close()
		log.Println("Database connected")

		if cfg.Database.AutoMigrate {
			if err := pg.RunMigrations(context.Background()); err != nil {
				log.Fatalf("Failed to run migrations: %v", err)
			}
		}
		db = pg
	}

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redisClient.Close()
	log.Println("Redis connected")

	orderProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder)
	defer orderProducer.Close()
	notificationProducer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicNotifications)
	defer notificationProducer.Close()
	log.Println("Kafka producers initialized")

	eventPublisher := broker.NewEventPublisher(orderProducer, notificationProducer)

	clock, err := service.NewClock(cfg.Event.Timezone)
	if err != nil {
		log.Fatalf("Failed to load event timezone: %v", err)
	}

	ledger := service.NewInventoryLedger(db, redisClient, store.ResetMode(cfg.Business.InventoryResetMode))
	catalogService := service.NewCatalogService(db, ledger, cfg.Event.ID)
	couponService := service.NewCouponService(db, clock, cfg.Business.CurrencySymbol)
	gateway := service.NewSimulatedGateway(redisClient, db, eventPublisher, clock, service.GatewayConfig{
		BaseURL:       cfg.Payment.BaseURL,
		StorefrontURL: cfg.Payment.StorefrontURL,
		SuccessRate:   cfg.Payment.SuccessRate,
		SessionTTL:    cfg.PaymentSessionTTL(),
	})
	orderService := service.NewOrderService(db, ledger, couponService, gateway, eventPublisher, clock,
		service.OrderServiceConfig{
			Event:          ticket.Event{ID: cfg.Event.ID, Name: cfg.Event.Name, Venue: cfg.Event.Venue},
			ReservationTTL: cfg.OrderTimeout(),
		})
	sagaOrchestrator := service.NewSagaOrchestrator(db, orderService)

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicOrder, cfg.Kafka.ConsumerGroup)
	orderWorker := worker.NewOrderWorker(orderConsumer, sagaOrchestrator)
	sweeper := worker.NewExpirySweeper(orderService, redisClient, cfg.SweepInterval())

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(api.Services{
		Catalog: catalogService,
		Ledger:  ledger,
		Coupons: couponService,
		Orders:  orderService,
		Gateway: gateway,
	}, cfg.Event.ID, map[string]api.Pinger{
		"store":    db,
		"redis":    redisClient,
	})
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Printf("Starting HTTP server on port %s", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		return orderWorker.Start(gctx)
	})
	g.Go(func() error {
		return sweeper.Start(gctx)
	})
	g.Go(func() error {
		<-gctx.Done()
		log.Println("Shutting down server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Printf("Server forced to shutdown: %v", err)
		}
		if err := orderWorker.Stop(); err != nil {
			log.Printf("Error stopping order worker: %v", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		logger.Error("Service stopped with error", zap.Error(err))
	}

	log.Println("Server exited")
}
