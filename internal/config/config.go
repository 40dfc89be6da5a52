package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the PO voice dispatch engine
type Config struct {
	// HTTP server configuration
	HTTP HTTPConfig

	// Database (durable store) configuration
	Database DatabaseConfig

	// QueueStore (Redis) configuration
	QueueStore QueueStoreConfig

	// EventBus (NATS) configuration
	EventBus EventBusConfig

	// Agent provider configuration
	Agent AgentConfig

	// Dispatch loop configuration
	Dispatch DispatchConfig

	// Upload / batch building configuration
	Upload UploadConfig

	// Leader election configuration
	Leader LeaderConfig

	// AppURL is the externally reachable base URL, used to build the
	// webhook callback URL handed to the agent provider
	AppURL string

	// Development mode
	DevMode bool
}

// HTTPConfig holds HTTP server configuration
type HTTPConfig struct {
	Port        int
	CORSOrigins []string
}

// DatabaseConfig holds MongoDB connection configuration
type DatabaseConfig struct {
	URL      string
	Database string
}

// QueueStoreConfig holds Redis queue store configuration
type QueueStoreConfig struct {
	URL string

	// KeyPrefix namespaces all queue store keys
	KeyPrefix string
}

// EventBusConfig holds event bus configuration
type EventBusConfig struct {
	// URL is a NATS URL, or "embedded" to run an in-process server
	URL string

	// DataDir for the embedded server
	DataDir string
}

// AgentConfig holds voice-agent provider configuration
type AgentConfig struct {
	// ProviderURL is the endpoint that accepts call requests.
	// Empty means no provider is configured.
	ProviderURL string

	// APIKey sent to the provider on call requests
	APIKey string

	// WebhookSecret expected in the x-api-key header of inbound webhooks
	WebhookSecret string

	// CallTimeout bounds a single trigger-call request
	CallTimeout time.Duration

	// CallsPerSecond rate-limits outbound provider calls
	CallsPerSecond float64
}

// DispatchConfig holds dispatcher and callback scheduler configuration
type DispatchConfig struct {
	// PollInterval is how often the dispatcher and callback scheduler tick
	PollInterval time.Duration

	// MaxConcurrentCalls is the max batches dispatched per tick
	MaxConcurrentCalls int

	// MaxAttempts is the default retry budget per batch
	MaxAttempts int

	// ContentionRequeueDelay is how far a batch is pushed out when its
	// supplier is already in a call
	ContentionRequeueDelay time.Duration

	// StaleProcessingThreshold is how long a batch may sit in the
	// processing set before the sweeper inspects it
	StaleProcessingThreshold time.Duration

	// BusinessHoursStart/End gate dispatching ("HH:MM", empty disables)
	BusinessHoursStart string
	BusinessHoursEnd   string

	// BusinessTimezone is the IANA zone for business hours
	BusinessTimezone string
}

// UploadConfig holds upload and batch building configuration
type UploadConfig struct {
	// MaxPOsPerBatch caps the POs bundled into one supplier batch
	MaxPOsPerBatch int

	// ChunkSize is how many proposed batches are persisted in parallel
	ChunkSize int

	// MaxUploadBytes caps the multipart upload size
	MaxUploadBytes int64

	// JobTTL is how long finished upload jobs remain queryable
	JobTTL time.Duration
}

// LeaderConfig holds leader election configuration
type LeaderConfig struct {
	// Enabled controls whether leader election is active
	Enabled bool

	// InstanceID uniquely identifies this instance (defaults to HOSTNAME)
	InstanceID string

	// TTL is how long the lock is valid before expiring
	TTL time.Duration

	// RefreshInterval is how often to refresh the lock while primary
	RefreshInterval time.Duration
}

// Load loads configuration from environment variables with sensible defaults
func Load() (*Config, error) {
	cfg := &Config{
		HTTP: HTTPConfig{
			Port:        getEnvInt("HTTP_PORT", 8080),
			CORSOrigins: getEnvSlice("CORS_ORIGINS", []string{"http://localhost:5173"}),
		},

		Database: DatabaseConfig{
			URL:      getEnv("DATABASE_URL", "mongodb://localhost:27017/?replicaSet=rs0&directConnection=true"),
			Database: getEnv("DATABASE_NAME", "povoice"),
		},

		QueueStore: QueueStoreConfig{
			URL:       getEnv("QUEUE_STORE_URL", "redis://localhost:6379/0"),
			KeyPrefix: getEnv("QUEUE_STORE_PREFIX", "povoice"),
		},

		EventBus: EventBusConfig{
			URL:     getEnv("EVENT_BUS_URL", "embedded"),
			DataDir: getEnv("EVENT_BUS_DATA_DIR", "./data/nats"),
		},

		Agent: AgentConfig{
			ProviderURL:    getEnv("AGENT_PROVIDER_URL", ""),
			APIKey:         getEnv("AGENT_PROVIDER_API_KEY", ""),
			WebhookSecret:  getEnv("AGENT_WEBHOOK_SECRET", ""),
			CallTimeout:    getEnvDuration("AGENT_CALL_TIMEOUT", 30*time.Second),
			CallsPerSecond: getEnvFloat("AGENT_CALLS_PER_SECOND", 5),
		},

		Dispatch: DispatchConfig{
			PollInterval:             time.Duration(getEnvInt("QUEUE_POLL_INTERVAL_MS", 5000)) * time.Millisecond,
			MaxConcurrentCalls:       getEnvInt("MAX_CONCURRENT_CALLS", 5),
			MaxAttempts:              getEnvInt("MAX_ATTEMPTS", 5),
			ContentionRequeueDelay:   getEnvDuration("CONTENTION_REQUEUE_DELAY", 30*time.Second),
			StaleProcessingThreshold: getEnvDuration("STALE_PROCESSING_THRESHOLD", 30*time.Minute),
			BusinessHoursStart:       getEnv("BUSINESS_HOURS_START", ""),
			BusinessHoursEnd:         getEnv("BUSINESS_HOURS_END", ""),
			BusinessTimezone:         getEnv("BUSINESS_TIMEZONE", "UTC"),
		},

		Upload: UploadConfig{
			MaxPOsPerBatch: getEnvInt("MAX_POS_PER_BATCH", 10),
			ChunkSize:      getEnvInt("BATCH_PROCESSING_CHUNK_SIZE", 50),
			MaxUploadBytes: getEnvInt64("MAX_UPLOAD_BYTES", 50<<20),
			JobTTL:         getEnvDuration("UPLOAD_JOB_TTL", time.Hour),
		},

		Leader: LeaderConfig{
			Enabled:         getEnvBool("LEADER_ELECTION_ENABLED", false),
			InstanceID:      getEnv("HOSTNAME", ""),
			TTL:             getEnvDuration("LEADER_TTL", 30*time.Second),
			RefreshInterval: getEnvDuration("LEADER_REFRESH_INTERVAL", 10*time.Second),
		},

		AppURL:  getEnv("APP_URL", "http://localhost:8080"),
		DevMode: getEnvBool("POVOICE_DEV", false),
	}

	// Optional TOML file; env values above take precedence
	if path := getEnv("POVOICE_CONFIG", ""); path != "" {
		if err := applyFile(cfg, path); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}

// WebhookCallbackURL returns the absolute URL the agent provider should
// push events to.
func (c *Config) WebhookCallbackURL() string {
	return strings.TrimRight(c.AppURL, "/") + "/api/webhooks/agent"
}

// Helper functions for environment variable parsing

func getEnv(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvInt64(key string, defaultValue int64) int64 {
	if value, ok := os.LookupEnv(key); ok {
		if intVal, err := strconv.ParseInt(value, 10, 64); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value, ok := os.LookupEnv(key); ok {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value, ok := os.LookupEnv(key); ok {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value, ok := os.LookupEnv(key); ok {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvSlice(key string, defaultValue []string) []string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.Split(value, ",")
	}
	return defaultValue
}
