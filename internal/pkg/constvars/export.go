package constvars

const ServiceName = "discharge-export-service"

const (
	PatientMappingFound   = "found"
	PatientMappingCreated = "created"

	DuplicateCheckNew       = "new"
	DuplicateCheckDuplicate = "duplicate"

	EventStatusSuccess = "success"
	EventStatusFailed  = "failed"
)

const (
	// DefaultExportIdentifierSystem namespaces the identifiers this pipeline stamps on destination resources.
	DefaultExportIdentifierSystem = "urn:discharge-export"
	SourceDocumentIdentifierPath  = "source-document"
	SourcePatientIdentifierPath   = "source-patient"
	FingerprintIdentifierPath     = "fingerprint"
	FingerprintTagCode            = "export-fingerprint"
	ExportAuthorDisplay           = "Discharge Export Service"
)

const (
	EventTransportRabbitMQ = "rabbitmq"
	EventTransportKafka    = "kafka"

	DefaultExportEventQueue = "discharge_document_export_events"
	DefaultExportEventTopic = "discharge-document-export-events"
	DefaultExportJobQueue   = "discharge_export_jobs"
	DefaultExportJobDLQ     = "discharge_export_jobs_dlq"

	MongoCollectionPatientMappings = "patient_mappings"

	RedisPatientMappingKeyFormat = "patient-mapping:%s:%s"
	RedisExportJobLockKeyFormat  = "export-job:lock:%s:%s"
	RedisTenantQuotaKeyFormat    = "export-job:quota:%s:%d"

	MaxExportBatchSize = 100
)

const (
	ExportSucceededMessage      = "document exported successfully"
	ExportAlreadyExistedMessage = "document was already exported"
	ExportFailedMessage         = "document export failed"
	ExportEnqueuedMessage       = "export job accepted"
	ExportBatchFinishedMessage  = "export batch finished"
)

const HealthyMessage = "ok"
