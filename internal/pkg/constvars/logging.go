package constvars

const LoggingServiceKey = "service"

const (
	LoggingRequestIDKey      = "request_id"
	LoggingDataKey           = "data"
	LoggingRequestKey        = "request"
	LoggingResponseKey       = "response"
	LoggingResponseLengthKey = "response_length"
	LoggingStepsKey          = "steps"

	LoggingMethodKey     = "method"
	LoggingEndpointKey   = "endpoint"
	LoggingRemoteAddrKey = "remote_addr"
	LoggingUserAgentKey  = "user_agent"
	LoggingQueryKey      = "query"
	LoggingStatusCodeKey = "status_code"
	LoggingDurationKey   = "duration"
	LoggingSuccessKey    = "success"
	LoggingURLKey        = "url"

	LoggingRedisKey              = "redis_key"
	LoggingLockValueKey          = "lock_value"
	LoggingLockExpirationTimeKey = "lock_expiration"
	LoggingLockStoredValueKey    = "lock_stored_value"
	LoggingLockExpectedValueKey  = "lock_expected_value"

	LoggingQueueNameKey   = "queue_name"
	LoggingTopicKey       = "topic"
	LoggingMessageIDKey   = "message_id"
	LoggingDeliveryTagKey = "delivery_tag"
	LoggingBucketNameKey  = "bucket_name"
	LoggingObjectKey      = "object_key"

	LoggingTenantIDKey             = "tenant_id"
	LoggingSourcePatientIDKey      = "source_patient_id"
	LoggingSourceDocumentIDKey     = "source_document_id"
	LoggingDestinationPatientIDKey = "destination_patient_id"
	LoggingEncounterIDKey          = "encounter_id"
	LoggingResourceTypeKey         = "resource_type"
	LoggingResourceIDKey           = "resource_id"
	LoggingBinaryIDKey             = "binary_id"
	LoggingDocumentReferenceIDKey  = "document_reference_id"
	LoggingCompositionIDKey        = "composition_id"
	LoggingFingerprintKey          = "fingerprint"
	LoggingExportStateKey          = "export_state"
	LoggingFailureKindKey          = "failure_kind"
	LoggingFailureClassKey         = "failure_class"
	LoggingAttemptKey              = "attempt"
	LoggingContentTypeKey          = "content_type"
	LoggingContentSizeKey          = "content_size"
	LoggingPatientMappingKey       = "patient_mapping"
	LoggingDuplicateCheckKey       = "duplicate_check"
	LoggingCountKey                = "count"
)
