package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/ukydev/workorder-safety/internal/attachments"
	"github.com/ukydev/workorder-safety/internal/auth"
	"github.com/ukydev/workorder-safety/internal/catalog"
	"github.com/ukydev/workorder-safety/internal/completion"
	"github.com/ukydev/workorder-safety/internal/config"
	"github.com/ukydev/workorder-safety/internal/db"
	"github.com/ukydev/workorder-safety/internal/events"
	"github.com/ukydev/workorder-safety/internal/handlers"
	"github.com/ukydev/workorder-safety/internal/middleware"
	"github.com/ukydev/workorder-safety/internal/workorder"
)

type app struct {
	handler http.Handler
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func setup(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	logger := log.NewEntry(log.StandardLogger())

	var store db.Backend
	if cfg.UsesMongo() {
		client, err := db.ConnectMongo(ctx, cfg.MongoURI)
		if err != nil {
			return nil, fmt.Errorf("connect to MongoDB: %w", err)
		}
		a.closers = append(a.closers, func() { _ = client.Disconnect(context.Background()) })
		store = db.NewStore(client.Database(cfg.MongoDB))
		log.WithField("database", cfg.MongoDB).Info("Connected to MongoDB")
	} else {
		log.Warn("MONGO_URI not set, using in-memory store")
		store = db.NewMemoryStore()
	}

	cat, err := catalog.Load(cfg.CatalogPath)
	if err != nil {
		a.Close()
		return nil, err
	}

	var publisher events.Publisher = events.NopPublisher{}
	if cfg.UsesMQTT() {
		client, err := events.Connect(cfg.MQTTBroker, cfg.MQTTClientID, 10*time.Second)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect to MQTT broker: %w", err)
		}
		a.closers = append(a.closers, func() { client.Disconnect(250) })
		publisher = events.Logged(events.NewMQTTPublisher(client, cfg.MQTTTopicPrefix, 5*time.Second, logger), logger)
		log.WithField("broker", cfg.MQTTBroker).Info("Publishing work order events over MQTT")
	}

	var files *attachments.Store
	if cfg.UsesMinio() {
		client, err := attachments.NewMinioClient(cfg.MinioEndpoint, cfg.MinioAccessKey, cfg.MinioSecretKey, cfg.MinioUseSSL)
		if err != nil {
			a.Close()
			return nil, err
		}
		if err := attachments.EnsureBucket(ctx, client, cfg.MinioBucket); err != nil {
			a.Close()
			return nil, err
		}
		files = attachments.NewStore(client, cfg.MinioBucket, store, logger)
	}

	authService, err := auth.NewService(cfg.JWTSecret, cfg.JWTExpiry)
	if err != nil {
		a.Close()
		return nil, err
	}

	h := handlers.NewWorkOrderHandler(handlers.Config{
		Sessions: workorder.NewRegistry(store, workorder.Options{
			Catalogs:  cat,
			LaborRate: cfg.LaborRate,
			Publisher: publisher,
			Logger:    logger,
		}),
		Completion:  completion.NewOrchestrator(store, publisher, nil, logger),
		Catalogs:    cat,
		Reference:   store,
		Attachments: files,
		Logger:      logger,
	})
	a.handler = h.Routes(
		middleware.NewAuthMiddleware(authService),
		middleware.NewRateLimiter(cfg.RateLimitRequests, cfg.RateLimitWindow),
	)
	return a, nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	log.SetLevel(cfg.LogLevel)
	log.SetFormatter(&log.JSONFormatter{})

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	a, err := setup(ctx, cfg)
	cancel()
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}
	defer a.Close()

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		log.WithField("port", cfg.Port).Info("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatalf("HTTP server failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("Shutting down server...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.WithError(err).Error("Server forced to shutdown")
	}
	log.Info("Server exited")
}
