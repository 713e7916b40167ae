package main

import (
	"context"
	"database/sql"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/cors"
	"github.com/gorilla/mux"
	_ "github.com/lib/pq"
	"github.com/sirupsen/logrus"

	"github.com/urbancocoa/koowhips-orders/internal/config"
	"github.com/urbancocoa/koowhips-orders/internal/dispatch"
	"github.com/urbancocoa/koowhips-orders/internal/events"
	"github.com/urbancocoa/koowhips-orders/internal/feed"
	"github.com/urbancocoa/koowhips-orders/internal/notification"
	"github.com/urbancocoa/koowhips-orders/internal/numbering"
	"github.com/urbancocoa/koowhips-orders/internal/orders"
)

func main() {
	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})

	cfg, err := config.Load()
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}

	level, err := logrus.ParseLevel(strings.ToLower(cfg.LogLevel))
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	loc, err := time.LoadLocation(cfg.Merchant.Timezone)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load merchant time zone")
	}

	// Durable counter store is optional; without it the generator keeps
	// the day sequence in process memory.
	var store numbering.Store
	if cfg.Counter.DatabaseURL != "" {
		db, err := sql.Open("postgres", cfg.Counter.DatabaseURL)
		if err != nil {
			logger.WithError(err).Fatal("Failed to open counter database")
		}
		defer db.Close()

		for i := 0; i < 30; i++ {
			if err := db.Ping(); err == nil {
				logger.Info("Counter database connection established")
				break
			}
			logger.Info("Waiting for counter database...")
			time.Sleep(2 * time.Second)
		}

		pgStore, err := numbering.NewPostgresStore(db)
		if err != nil {
			logger.WithError(err).Fatal("Failed to initialize counter store")
		}
		store = pgStore
	} else {
		logger.Warn("DATABASE_URL not set, order sequence will not survive restarts")
	}

	generator := numbering.NewGenerator(cfg.Merchant.OrderPrefix, loc, store, logger)
	renderer := notification.NewRenderer(loc)

	var transport dispatch.Transport = dispatch.NewSendGridTransport(cfg.Mail.SendGridAPIKey, logger)
	transport = dispatch.NewBreakerTransport(transport, cfg.Mail.BreakerMaxFailures, cfg.Mail.BreakerTimeout, logger)
	gateway := dispatch.NewGateway(transport, cfg.Mail.OperatorEmail, cfg.Mail.SenderEmail, cfg.Mail.SenderName, logger)

	handler := orders.NewHandler(generator, renderer, gateway, logger)

	if cfg.Events.KafkaBrokers != "" {
		producer, err := events.NewKafkaProducer(cfg.Events.KafkaBrokers, logger)
		if err != nil {
			logger.WithError(err).Fatal("Failed to create Kafka producer")
		}
		defer producer.Close()
		handler.SetAuditPublisher(producer)
		logger.WithField("brokers", cfg.Events.KafkaBrokers).Info("Dispatch audit events enabled")
	}

	hub := feed.NewHub(logger)
	go hub.Run()
	handler.SetFeedHub(hub)

	router := mux.NewRouter()
	router.HandleFunc("/health", handler.HealthCheck).Methods("GET")
	router.HandleFunc("/send-order", handler.SendOrder).Methods("POST", "OPTIONS")
	router.HandleFunc("/ws", hub.HandleWebSocket)

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.Server.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))
	router.Use(orders.LoggingMiddleware(logger))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.WithField("port", cfg.Server.Port).Info("Starting order service")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.WithError(err).Fatal("Failed to start server")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Info("Shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.WithError(err).Error("Server forced to shutdown")
	}

	logger.Info("Server gracefully stopped")
}
