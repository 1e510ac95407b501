// Package container wires the export pipeline from a config.Bootstrap so the
// HTTP server and the CLI build the same object graph.
package container

import (
	"context"
	"discharge-export-service/internal/app/config"
	"discharge-export-service/internal/app/contracts"
	"discharge-export-service/internal/app/services/core/document_writer"
	"discharge-export-service/internal/app/services/core/duplicates"
	"discharge-export-service/internal/app/services/core/exports"
	"discharge-export-service/internal/app/services/core/patient_identity"
	"discharge-export-service/internal/app/services/fhir_destination"
	"discharge-export-service/internal/app/services/fhir_source"
	"discharge-export-service/internal/app/services/patient_mappings"
	"discharge-export-service/internal/app/services/shared/events"
	"discharge-export-service/internal/app/services/shared/exportqueue"
	"discharge-export-service/internal/app/services/shared/fhirclient"
	"discharge-export-service/internal/app/services/shared/locker"
	"discharge-export-service/internal/app/services/shared/ratelimiter"
	"discharge-export-service/internal/app/services/shared/redis"
	"discharge-export-service/internal/app/services/shared/retry"
	"discharge-export-service/internal/app/services/shared/storage"
	"discharge-export-service/internal/app/services/shared/tenants"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type Container struct {
	ExportUsecase contracts.ExportUsecase
	// Worker is nil when no job queue is configured.
	Worker *exports.Worker
}

type Options struct {
	// WithJobQueue declares the job queues and builds the worker.
	WithJobQueue bool
}

// Build constructs every component and registers the ones owning resources
// on bootstrap.Closers.
func Build(ctx context.Context, bootstrap *config.Bootstrap, options Options) (*Container, error) {
	cfg := bootstrap.InternalConfig
	log := bootstrap.Logger
	callTimeout := time.Duration(cfg.Export.CallTimeoutInSeconds) * time.Second
	retryPolicy := retry.NewPolicy(cfg)

	// Patient mappings
	mappingRepository := patient_mappings.NewPatientMappingMongoRepository(bootstrap.MongoDB, bootstrap.DriverConfig.MongoDB.DbName)
	if err := mappingRepository.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("ensure patient mapping indexes: %w", err)
	}

	var (
		mappingCache  contracts.PatientMappingCache
		lockerService contracts.LockerService
		tenantLimiter exports.TenantLimiter
	)
	if bootstrap.Redis != nil {
		redisRepository := redis.NewRedisRepository(bootstrap.Redis)
		mappingCache = patient_mappings.NewPatientMappingRedisCache(redisRepository)
		lockerService = locker.NewLockService(redisRepository, log)
		if quota := ratelimiter.NewTenantQuota(redisRepository, cfg, log); quota != nil {
			tenantLimiter = quota
		}
	}

	// Source EHR
	tenantDirectory, err := tenants.NewTenantDirectory(cfg, log)
	if err != nil {
		return nil, fmt.Errorf("load tenant directory: %w", err)
	}
	sourceEHRClient := fhir_source.NewSourceEHRClient(tenantDirectory, retryPolicy, callTimeout, fhir_source.DefaultBreakerSettings(), log)

	// Destination FHIR
	destinationClient := fhirclient.NewClient(cfg.Destination.BaseUrl, callTimeout, log)
	if token := cfg.Destination.BearerToken; token != "" {
		destinationClient.Authorization = func(context.Context) (string, error) {
			return "Bearer " + token, nil
		}
	}
	patientFhirClient := fhir_destination.NewPatientFhirClient(destinationClient, retryPolicy, log)
	binaryFhirClient := fhir_destination.NewBinaryFhirClient(destinationClient, retryPolicy, log)
	documentReferenceFhirClient := fhir_destination.NewDocumentReferenceFhirClient(destinationClient, retryPolicy, log)
	compositionFhirClient := fhir_destination.NewCompositionFhirClient(destinationClient, retryPolicy, log)

	// Pipeline
	identifierSystem := cfg.Export.IdentifierSystem
	resolver := patient_identity.NewPatientIdentityResolver(mappingRepository, mappingCache, sourceEHRClient, patientFhirClient, identifierSystem, callTimeout, log)
	detector := duplicates.NewDuplicateDetector(documentReferenceFhirClient, compositionFhirClient, identifierSystem, log)
	writer := document_writer.NewDocumentWriter(binaryFhirClient, documentReferenceFhirClient, compositionFhirClient, identifierSystem, log)

	// Events
	publisher, closePublisher, err := events.NewEventPublisher(cfg, bootstrap.RabbitMQ, bootstrap.Kafka, retryPolicy, log)
	if err != nil {
		return nil, fmt.Errorf("build event publisher: %w", err)
	}
	bootstrap.Closers = append(bootstrap.Closers, closePublisher)

	// Archive
	var archive contracts.DocumentArchive
	if bootstrap.Minio != nil && cfg.Export.ArchiveBucket != "" {
		if err := storage.EnsureBucket(ctx, bootstrap.Minio, cfg.Export.ArchiveBucket); err != nil {
			return nil, fmt.Errorf("ensure archive bucket: %w", err)
		}
		archive = storage.NewMinioDocumentArchive(bootstrap.Minio, cfg.Export.ArchiveBucket, log)
	}

	// Job queue
	var (
		jobQueue contracts.ExportJobQueue
		queue    *exportqueue.Service
	)
	if options.WithJobQueue && bootstrap.RabbitMQ != nil {
		queue, err = exportqueue.NewService(bootstrap.RabbitMQ, log, cfg.Export.JobQueue, cfg.Export.JobDLQ, cfg.Export.WorkerConcurrency)
		if err != nil {
			return nil, fmt.Errorf("build export job queue: %w", err)
		}
		bootstrap.Closers = append(bootstrap.Closers, queue.Close)
		jobQueue = queue
	}

	usecase := exports.NewExportUsecase(sourceEHRClient, resolver, detector, writer, publisher, archive, jobQueue, cfg, log)

	c := &Container{ExportUsecase: usecase}
	if queue != nil {
		c.Worker = exports.NewWorker(log, cfg, lockerService, tenantLimiter, queue, usecase)
	}

	log.Info("container.Build succeeded",
		zap.Bool("archive_enabled", archive != nil),
		zap.Bool("job_queue_enabled", queue != nil),
		zap.Bool("mapping_cache_enabled", mappingCache != nil),
		zap.Bool("tenant_quota_enabled", tenantLimiter != nil),
		zap.String("event_transport", cfg.Export.EventTransport),
	)
	return c, nil
}
