package config

type InternalConfig struct {
	App         App            `mapstructure:"app"`
	Source      AppSourceFHIR  `mapstructure:"source_fhir"`
	Destination AppDestination `mapstructure:"destination_fhir"`
	Export      AppExport      `mapstructure:"export"`
}

type App struct {
	Env                        string `mapstructure:"env"`
	Port                       string `mapstructure:"port"`
	Version                    string `mapstructure:"version"`
	Address                    string `mapstructure:"address"`
	Timezone                   string `mapstructure:"timezone"`
	EndpointPrefix             string `mapstructure:"endpoint_prefix"`
	MaxRequests                int    `mapstructure:"max_requests"`
	ShutdownTimeoutInSeconds   int    `mapstructure:"shutdown_timeout_in_seconds"`
	MaxTimeRequestsPerSeconds  int    `mapstructure:"max_time_requests_per_seconds"`
	RequestBodyLimitInMegabyte int    `mapstructure:"request_body_limit_in_megabyte"`
	APIKey                     string `mapstructure:"api_key"`
	APIKeyRateLimit            int    `mapstructure:"api_key_rate_limit"`
}

// AppSourceFHIR is the default source EHR connection. Tenants listed in the
// tenants file may override it.
type AppSourceFHIR struct {
	BaseUrl       string   `mapstructure:"base_url"`
	TokenUrl      string   `mapstructure:"token_url"`
	ClientID      string   `mapstructure:"client_id"`
	ClientSecret  string   `mapstructure:"client_secret"`
	PrivateKey    string   `mapstructure:"private_key"`
	KeyID         string   `mapstructure:"key_id"`
	Scopes        []string `mapstructure:"scopes"`
	RatePerSecond float64  `mapstructure:"rate_per_second"`
	Burst         int      `mapstructure:"burst"`
}

type AppDestination struct {
	BaseUrl     string `mapstructure:"base_url"`
	BearerToken string `mapstructure:"bearer_token"`
}

type AppExport struct {
	CallTimeoutInSeconds      int    `mapstructure:"call_timeout_in_seconds"`
	RetryMaxAttempts          int    `mapstructure:"retry_max_attempts"`
	RetryBaseDelayInMillis    int    `mapstructure:"retry_base_delay_in_milliseconds"`
	RetryMaxDelayInMillis     int    `mapstructure:"retry_max_delay_in_milliseconds"`
	WorkerConcurrency         int    `mapstructure:"worker_concurrency"`
	WorkerPollIntervalInMills int    `mapstructure:"worker_poll_interval_in_milliseconds"`
	IdentifierSystem          string `mapstructure:"identifier_system"`
	EventTransport            string `mapstructure:"event_transport"`
	EventQueue                string `mapstructure:"event_queue"`
	EventTopic                string `mapstructure:"event_topic"`
	JobQueue                  string `mapstructure:"job_queue"`
	JobDLQ                    string `mapstructure:"job_dlq"`
	JobMaxDeliveries          int    `mapstructure:"job_max_deliveries"`
	JobLockTTLInSeconds       int    `mapstructure:"job_lock_ttl_in_seconds"`
	TenantJobsPerWindow       int    `mapstructure:"tenant_jobs_per_window"`
	TenantWindowInSeconds     int    `mapstructure:"tenant_window_in_seconds"`
	ArchiveBucket             string `mapstructure:"archive_bucket"`
	TenantsConfigFile         string `mapstructure:"tenants_config_file"`
}
