package config

import (
	"discharge-export-service/internal/pkg/constvars"
	"discharge-export-service/internal/pkg/utils"

	"github.com/joho/godotenv"
)

func init() {
	godotenv.Load()
}

func NewDriverConfig() *DriverConfig {
	return &DriverConfig{
		MongoDB: MongoDB{
			Port:     utils.GetEnvString("MONGODB_PORT", "27017"),
			Host:     utils.GetEnvString("MONGODB_HOST", "localhost"),
			DbName:   utils.GetEnvString("MONGODB_DB_NAME", "discharge_export"),
			Username: utils.GetEnvString("MONGODB_USERNAME", "defaultUsername"),
			Password: utils.GetEnvString("MONGODB_PASSWORD", "defaultPassword"),

			OperationTimeoutInSeconds: utils.GetEnvInt("MONGODB_OPERATION_TIMEOUT_IN_SECONDS", 15),
		},
		Redis: Redis{
			Host:     utils.GetEnvString("REDIS_HOST", "localhost"),
			Port:     utils.GetEnvString("REDIS_PORT", "6379"),
			Password: utils.GetEnvString("REDIS_PASSWORD", ""),
		},
		Logger: Logger{
			Level:               utils.GetEnvString("LOGGER_LEVEL", "debug"),
			OutputFileName:      utils.GetEnvString("LOGGER_OUTPUT_FILENAME", "logger.log"),
			OutputErrorFileName: utils.GetEnvString("LOGGER_OUTPUT_ERROR_FILENAME", "logger_error.log"),
		},
		RabbitMQ: RabbitMQ{
			Port:     utils.GetEnvString("RABBITMQ_PORT", "5672"),
			Host:     utils.GetEnvString("RABBITMQ_HOST", "localhost"),
			Username: utils.GetEnvString("RABBITMQ_USERNAME", "guest"),
			Password: utils.GetEnvString("RABBITMQ_PASSWORD", "guest"),
		},
		Kafka: Kafka{
			Brokers: utils.GetEnvStringSlice("KAFKA_BROKERS", []string{"localhost:9092"}),
		},
		Minio: Minio{
			Port:     utils.GetEnvString("MINIO_PORT", "9000"),
			Host:     utils.GetEnvString("MINIO_HOST", ""),
			Username: utils.GetEnvString("MINIO_USERNAME", "defaultUsername"),
			Password: utils.GetEnvString("MINIO_PASSWORD", "defaultPassword"),
			UseSSL:   utils.GetEnvBool("MINIO_USE_SSL", false),
		},
	}
}

func NewInternalConfig() *InternalConfig {
	return &InternalConfig{
		App: App{
			Env:                        utils.GetEnvString("APP_ENV", "development"),
			Port:                       utils.GetEnvString("APP_PORT", ":8080"),
			Version:                    utils.GetEnvString("APP_VERSION", "v1"),
			Address:                    utils.GetEnvString("APP_ADDRESS", "localhost"),
			Timezone:                   utils.GetEnvString("APP_TIMEZONE", "UTC"),
			EndpointPrefix:             utils.GetEnvString("APP_ENDPOINT_PREFIX", "api"),
			MaxRequests:                utils.GetEnvInt("APP_MAX_REQUESTS", 100),
			ShutdownTimeoutInSeconds:   utils.GetEnvInt("APP_SHUTDOWN_TIMEOUT", 10),
			MaxTimeRequestsPerSeconds:  utils.GetEnvInt("APP_MAX_TIME_REQUESTS_PER_SECONDS", 60),
			RequestBodyLimitInMegabyte: utils.GetEnvInt("APP_REQUEST_BODY_LIMIT_IN_MEGABYTE", 2),
			APIKey:                     utils.GetEnvString("APP_API_KEY", ""),
			APIKeyRateLimit:            utils.GetEnvInt("APP_API_KEY_RATE_LIMIT", 500),
		},
		Source: AppSourceFHIR{
			BaseUrl:       utils.GetEnvString("SOURCE_FHIR_BASE_URL", "http://localhost:8081/fhir"),
			TokenUrl:      utils.GetEnvString("SOURCE_FHIR_TOKEN_URL", ""),
			ClientID:      utils.GetEnvString("SOURCE_FHIR_CLIENT_ID", ""),
			ClientSecret:  utils.GetEnvString("SOURCE_FHIR_CLIENT_SECRET", ""),
			PrivateKey:    utils.GetEnvString("SOURCE_FHIR_PRIVATE_KEY", ""),
			KeyID:         utils.GetEnvString("SOURCE_FHIR_KEY_ID", ""),
			Scopes:        utils.GetEnvStringSlice("SOURCE_FHIR_SCOPES", []string{"system/DocumentReference.read", "system/Binary.read", "system/Patient.read"}),
			RatePerSecond: utils.GetEnvFloat("SOURCE_FHIR_RATE_PER_SECOND", 10),
			Burst:         utils.GetEnvInt("SOURCE_FHIR_BURST", 5),
		},
		Destination: AppDestination{
			BaseUrl:     utils.GetEnvString("DESTINATION_FHIR_BASE_URL", "http://localhost:8082/fhir"),
			BearerToken: utils.GetEnvString("DESTINATION_FHIR_BEARER_TOKEN", ""),
		},
		Export: AppExport{
			CallTimeoutInSeconds:      utils.GetEnvInt("EXPORT_CALL_TIMEOUT_IN_SECONDS", 15),
			RetryMaxAttempts:          utils.GetEnvInt("EXPORT_RETRY_MAX_ATTEMPTS", 3),
			RetryBaseDelayInMillis:    utils.GetEnvInt("EXPORT_RETRY_BASE_DELAY_IN_MILLISECONDS", 200),
			RetryMaxDelayInMillis:     utils.GetEnvInt("EXPORT_RETRY_MAX_DELAY_IN_MILLISECONDS", 5000),
			WorkerConcurrency:         utils.GetEnvInt("EXPORT_WORKER_CONCURRENCY", 4),
			WorkerPollIntervalInMills: utils.GetEnvInt("EXPORT_WORKER_POLL_INTERVAL_IN_MILLISECONDS", 1000),
			IdentifierSystem:          utils.GetEnvString("EXPORT_IDENTIFIER_SYSTEM", constvars.DefaultExportIdentifierSystem),
			EventTransport:            utils.GetEnvString("EXPORT_EVENT_TRANSPORT", constvars.EventTransportRabbitMQ),
			EventQueue:                utils.GetEnvString("EXPORT_EVENT_QUEUE", constvars.DefaultExportEventQueue),
			EventTopic:                utils.GetEnvString("EXPORT_EVENT_TOPIC", constvars.DefaultExportEventTopic),
			JobQueue:                  utils.GetEnvString("EXPORT_JOB_QUEUE", constvars.DefaultExportJobQueue),
			JobDLQ:                    utils.GetEnvString("EXPORT_JOB_DLQ", constvars.DefaultExportJobDLQ),
			JobMaxDeliveries:          utils.GetEnvInt("EXPORT_JOB_MAX_DELIVERIES", 5),
			JobLockTTLInSeconds:       utils.GetEnvInt("EXPORT_JOB_LOCK_TTL_IN_SECONDS", 120),
			TenantJobsPerWindow:       utils.GetEnvInt("EXPORT_TENANT_JOBS_PER_WINDOW", 0),
			TenantWindowInSeconds:     utils.GetEnvInt("EXPORT_TENANT_WINDOW_IN_SECONDS", 60),
			ArchiveBucket:             utils.GetEnvString("EXPORT_ARCHIVE_BUCKET", ""),
			TenantsConfigFile:         utils.GetEnvString("TENANTS_CONFIG_FILE", ""),
		},
	}
}
