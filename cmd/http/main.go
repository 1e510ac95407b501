package main

import (
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/container"
	"discharge-export-service/internal/app/delivery/http/controllers"
	"discharge-export-service/internal/app/delivery/http/middlewares"
	"discharge-export-service/internal/app/delivery/http/routers"
	"discharge-export-service/internal/app/drivers/database"
	"discharge-export-service/internal/app/drivers/logger"
	"discharge-export-service/internal/app/drivers/messaging"
	"discharge-export-service/internal/app/drivers/storage"
	"discharge-export-service/internal/pkg/constvars"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

func main() {
	driverConfig := config.NewDriverConfig()
	internalConfig := config.NewInternalConfig()

	log := logger.NewZapLogger(driverConfig, internalConfig)

	location, err := time.LoadLocation(internalConfig.App.Timezone)
	if err != nil {
		log.Fatal("Error loading location", zap.Error(err))
	}
	time.Local = location

	mongoDB := database.NewMongoDB(driverConfig)
	redis := database.NewRedisClient(driverConfig)
	rabbitMQ := messaging.NewRabbitMQ(driverConfig)
	minio := storage.NewMinio(driverConfig)

	bootstrap := &config.Bootstrap{
		Router:         chi.NewRouter(),
		MongoDB:        mongoDB,
		Redis:          redis,
		Logger:         log,
		RabbitMQ:       rabbitMQ,
		Minio:          minio,
		DriverConfig:   driverConfig,
		InternalConfig: internalConfig,
	}
	if strings.EqualFold(internalConfig.Export.EventTransport, constvars.EventTransportKafka) {
		bootstrap.Kafka = messaging.NewKafkaWriter(driverConfig)
	}

	if err := bootstrapingTheApp(bootstrap); err != nil {
		log.Fatal("Error bootstraping the app", zap.Error(err))
	}

	server := &http.Server{
		Addr:    internalConfig.App.Port,
		Handler: bootstrap.Router,
	}

	go func() {
		log.Info("Server started", zap.String("address", internalConfig.App.Port))
		err := server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)

	<-c

	log.Info("Waiting for pending requests that already received by server to be processed..")

	shutdownCtx, cancel := context.WithTimeout(
		context.Background(),
		time.Second*time.Duration(internalConfig.App.ShutdownTimeoutInSeconds),
	)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	if err := bootstrap.Shutdown(shutdownCtx); err != nil {
		log.Error("Error while shutting down dependencies", zap.Error(err))
	}

	log.Info("Server exiting")
}

func bootstrapingTheApp(bootstrap *config.Bootstrap) error {
	ctx := context.Background()

	// Export pipeline
	exports, err := container.Build(ctx, bootstrap, container.Options{WithJobQueue: true})
	if err != nil {
		return err
	}

	// Worker
	if exports.Worker != nil {
		bootstrap.WorkerStop = exports.Worker.Start(ctx)
	}

	// Middlewares
	middlewares := middlewares.NewMiddlewares(bootstrap.Logger, bootstrap.InternalConfig)

	// Controllers
	exportController := controllers.NewExportController(bootstrap.Logger, exports.ExportUsecase)

	routers.SetupRoutes(bootstrap.Router, bootstrap.InternalConfig, middlewares, exportController)
	return nil
}
