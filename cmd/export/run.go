package main

import (
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/container"
	"discharge-export-service/internal/app/drivers/database"
	"discharge-export-service/internal/app/drivers/logger"
	"discharge-export-service/internal/app/drivers/messaging"
	"discharge-export-service/internal/app/drivers/storage"
	"discharge-export-service/internal/app/models"
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/utils"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var errExportFailed = errors.New("export failed")

func newRunCmd() *cobra.Command {
	runCmd := &cobra.Command{
		Use:   "run",
		Short: "Run a single export job and print the result as JSON",
		Long: `Run a single export job synchronously.

For example:

export run --tenant hospital-a --patient 12345 --document doc-987 --encounter enc-1

The process exits non-zero when the export does not succeed.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			job := &models.ExportJob{
				TenantID:         viper.GetString("tenant"),
				SourcePatientID:  viper.GetString("patient"),
				SourceDocumentID: viper.GetString("document"),
				EncounterID:      viper.GetString("encounter"),
			}
			if err := utils.ValidateStruct(job); err != nil {
				return err
			}
			return runExport(cmd, job)
		},
	}

	flags := []struct{ name, usage string }{
		{"tenant", "Tenant identifier"},
		{"patient", "Source patient id"},
		{"document", "Source DocumentReference id"},
		{"encounter", "Encounter id (optional)"},
	}
	for _, f := range flags {
		runCmd.Flags().String(f.name, "", f.usage)
		viper.BindPFlag(f.name, runCmd.Flags().Lookup(f.name))
	}
	return runCmd
}

func runExport(cmd *cobra.Command, job *models.ExportJob) error {
	driverConfig := config.NewDriverConfig()
	internalConfig := config.NewInternalConfig()
	log := logger.NewZapLogger(driverConfig, internalConfig)

	bootstrap := &config.Bootstrap{
		MongoDB:        database.NewMongoDB(driverConfig),
		Redis:          database.NewRedisClient(driverConfig),
		Logger:         log,
		Minio:          storage.NewMinio(driverConfig),
		DriverConfig:   driverConfig,
		InternalConfig: internalConfig,
	}
	if strings.EqualFold(internalConfig.Export.EventTransport, constvars.EventTransportKafka) {
		bootstrap.Kafka = messaging.NewKafkaWriter(driverConfig)
	} else {
		bootstrap.RabbitMQ = messaging.NewRabbitMQ(driverConfig)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(internalConfig.App.ShutdownTimeoutInSeconds)*time.Second)
		defer cancel()
		if err := bootstrap.Shutdown(shutdownCtx); err != nil {
			log.Error("export.run shutdown error", zap.Error(err))
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	exports, err := container.Build(ctx, bootstrap, container.Options{})
	if err != nil {
		return err
	}

	requestID := utils.GenerateRequestID()
	ctx = utils.ContextWithRequestID(ctx, requestID)
	log.Info("export.run called",
		zap.String(constvars.LoggingRequestIDKey, requestID),
		zap.Any("job", job),
	)

	result := exports.ExportUsecase.RunExport(ctx, job)
	if err := printResult(cmd, result); err != nil {
		return err
	}
	if !result.Success {
		return fmt.Errorf("%w: %s", errExportFailed, result.Error)
	}
	return nil
}

func printResult(cmd *cobra.Command, result *models.ExportResult) error {
	var (
		out []byte
		err error
	)
	if viper.GetBool("pretty") {
		out, err = json.MarshalIndent(result, "", "  ")
	} else {
		out, err = json.Marshal(result)
	}
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(out))
	return err
}
