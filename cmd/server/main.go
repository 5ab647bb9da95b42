package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	ginlog "github.com/gin-contrib/logger"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"dispatch_tracker/internal/cache"
	"dispatch_tracker/internal/config"
	"dispatch_tracker/internal/controllers"
	"dispatch_tracker/internal/events"
	"dispatch_tracker/internal/logger"
	"dispatch_tracker/internal/middleware"
	"dispatch_tracker/internal/notify"
	"dispatch_tracker/internal/planning"
	"dispatch_tracker/internal/routes"
	"dispatch_tracker/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("invalid configuration")
	}

	// Initialize structured logging to file
	logger.Setup(logger.Options{File: cfg.Log.File, Level: cfg.Log.Level, Stdout: cfg.Log.Stdout})
	middleware.Configure(cfg.JWTSecret)

	// Connect to the database
	if err := config.InitDB(cfg.Database, cfg.Log.SQLLevel); err != nil {
		logrus.WithError(err).Fatal("database unavailable")
	}

	ctx := context.Background()

	var itineraries *cache.ItineraryCache
	if cfg.Redis.Addr != "" {
		itineraries, err = cache.Connect(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.TTL)
		if err != nil {
			logrus.WithError(err).Warn("redis unavailable, itinerary cache disabled")
		} else {
			defer itineraries.Close()
		}
	}

	var notifier notify.Notifier = notify.LogNotifier{}
	if cfg.RabbitMQ.URL != "" {
		amqp, err := notify.DialAMQP(cfg.RabbitMQ.URL, cfg.RabbitMQ.Queue)
		if err != nil {
			logrus.WithError(err).Fatal("rabbitmq unavailable")
		}
		defer amqp.Close()
		notifier = amqp
	}

	var publisher events.Publisher = events.Nop{}
	if len(cfg.Kafka.Brokers) > 0 {
		publisher = events.NewKafka(cfg.Kafka.Brokers, cfg.Kafka.Topic)
	}
	defer publisher.Close()

	tripStops := &controllers.TripStopController{
		Planner:  planning.NewService(store.NewGorm(config.GetDB())),
		Cache:    itineraries,
		Events:   publisher,
		Notifier: notifier,
		Access:   controllers.DBTripAccess{DB: config.DB},
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ginlog.SetLogger(ginlog.WithSkipPath([]string{"/health"})))
	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })
	routes.SetupRouter(r, routes.Deps{
		TripStops: tripStops,
		Limiter:   middleware.NewRateLimiter(cfg.RateLimit.PerSecond, cfg.RateLimit.Burst),
	})

	// Wrap with CORS
	srv := &http.Server{
		Addr:              "0.0.0.0:" + cfg.Port,
		Handler:           middleware.EnableCORS(r),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logrus.WithField("port", cfg.Port).Info("server running")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logrus.WithError(err).Fatal("server stopped")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Error("graceful shutdown failed")
	}
}
