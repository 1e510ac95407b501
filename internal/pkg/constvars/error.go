package constvars

// Validation messages for users, map it with respective tag field
var CustomValidationErrorMessages = map[string]string{
	"required": "is required",
	"max":      "maximum at %s characters long",
	"excludes": "must not contain %s",
}

// Error messages for clients
const (
	ErrClientCannotProcessRequest          = "failed to process your request"
	ErrClientSomethingWrongWithApplication = "there is something wrong with the application"
	ErrClientServerLongRespond             = "the app taking too long to respond"
	ErrClientExportFailed                  = "document export failed"
	ErrClientExportQueueUnavailable        = "export queue is unavailable, please retry later"
	ErrClientExportBatchInvalid            = "export batch must contain between 1 and %d jobs"
	ErrClientInvalidAPIKey                 = "invalid API key"
	ErrClientRequestTooLarge               = "request body is too large"
)

// Error messages for developers
const (
	ErrDevCannotParseJSON        = "cannot parse JSON"
	ErrDevCannotMarshalJSON      = "cannot marshal JSON"
	ErrDevValidationFailed       = "validation failed"
	ErrDevCreateHTTPRequest      = "failed to create HTTP request"
	ErrDevSendHTTPRequest        = "failed to send HTTP request"
	ErrDevReadBody               = "failed to read request body"
	ErrDevServerProcess          = "failed to process the request on server"
	ErrDevServerDeadlineExceeded = "deadline exceeded"
	ErrDevInvalidAPIKey          = "api key missing or mismatched"
	ErrDevRequestTooLarge        = "request body exceeds configured limit"
	ErrDevPanicRecovered         = "recovered from panic while serving request"
	ErrDevMissingRequestID       = "request id missing from context"

	// FHIR messages
	ErrDevFHIRCreateResource = "failed to create FHIR %s resource"
	ErrDevFHIRGetResource    = "failed to get FHIR %s resource"
	ErrDevFHIRSearchResource = "failed to search FHIR %s resources"
	ErrDevFHIRDeleteResource = "failed to delete FHIR %s resource"
	ErrDevFHIRDecodeResource = "failed to decode FHIR %s response"

	// Database messages
	ErrDevDBFailedToInsertDocument = "failed to insert document into database"
	ErrDevDBFailedToFindDocument   = "failed when do find document on database"
	ErrDevDBFailedToCreateIndex    = "failed to create index on database"

	// Redis messages
	ErrDevRedisGetNoData  = "failed to get data from redis with key %s"
	ErrDevRedisSetData    = "failed to set data into redis"
	ErrDevRedisDeleteData = "failed to delete data from redis"
	ErrDevRedisUnlock     = "failed to unlock redis lock"

	// Messaging messages
	ErrDevRabbitMQPublishMessage = "failed to publish message to rabbitMQ queue %s"
	ErrDevKafkaPublishMessage    = "failed to publish message to kafka topic %s"
	ErrDevExportQueueDisabled    = "export job queue is not configured"
	ErrDevExportBatchInvalid     = "export batch size out of range"

	// Minio messages
	ErrDevMinioFailedToCreateObject = "failed to create object on bucket %s"
)

const (
	ResponseUnknown = "unknown"
)
