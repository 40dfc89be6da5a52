package config

import (
	"fmt"
	"os"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig is the TOML configuration file structure. Only a subset of
// settings makes sense in a file; secrets stay in the environment or a
// secrets provider.
type fileConfig struct {
	HTTP       fileHTTPConfig       `toml:"http"`
	Database   fileDatabaseConfig   `toml:"database"`
	QueueStore fileQueueStoreConfig `toml:"queue_store"`
	EventBus   fileEventBusConfig   `toml:"event_bus"`
	Agent      fileAgentConfig      `toml:"agent"`
	Dispatch   fileDispatchConfig   `toml:"dispatch"`
	Upload     fileUploadConfig     `toml:"upload"`
	Leader     fileLeaderConfig     `toml:"leader"`
	AppURL     string               `toml:"app_url"`
	DevMode    bool                 `toml:"dev_mode"`
}

type fileHTTPConfig struct {
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

type fileDatabaseConfig struct {
	URL      string `toml:"url"`
	Database string `toml:"database"`
}

type fileQueueStoreConfig struct {
	URL       string `toml:"url"`
	KeyPrefix string `toml:"key_prefix"`
}

type fileEventBusConfig struct {
	URL     string `toml:"url"`
	DataDir string `toml:"data_dir"`
}

type fileAgentConfig struct {
	ProviderURL    string  `toml:"provider_url"`
	CallTimeout    string  `toml:"call_timeout"`
	CallsPerSecond float64 `toml:"calls_per_second"`
}

type fileDispatchConfig struct {
	PollIntervalMS     int    `toml:"poll_interval_ms"`
	MaxConcurrentCalls int    `toml:"max_concurrent_calls"`
	MaxAttempts        int    `toml:"max_attempts"`
	BusinessHoursStart string `toml:"business_hours_start"`
	BusinessHoursEnd   string `toml:"business_hours_end"`
	BusinessTimezone   string `toml:"business_timezone"`
}

type fileUploadConfig struct {
	MaxPOsPerBatch int   `toml:"max_pos_per_batch"`
	ChunkSize      int   `toml:"chunk_size"`
	MaxUploadBytes int64 `toml:"max_upload_bytes"`
}

type fileLeaderConfig struct {
	Enabled         bool   `toml:"enabled"`
	InstanceID      string `toml:"instance_id"`
	TTL             string `toml:"ttl"`
	RefreshInterval string `toml:"refresh_interval"`
}

// applyFile overlays values from a TOML file onto cfg. Values already set
// via environment variables are kept: a file value is applied only where
// the corresponding env var was absent.
func applyFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file %s: %w", path, err)
	}

	var fc fileConfig
	if err := toml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file %s: %w", path, err)
	}

	if fc.HTTP.Port != 0 && !envSet("HTTP_PORT") {
		cfg.HTTP.Port = fc.HTTP.Port
	}
	if len(fc.HTTP.CORSOrigins) > 0 && !envSet("CORS_ORIGINS") {
		cfg.HTTP.CORSOrigins = fc.HTTP.CORSOrigins
	}
	if fc.Database.URL != "" && !envSet("DATABASE_URL") {
		cfg.Database.URL = fc.Database.URL
	}
	if fc.Database.Database != "" && !envSet("DATABASE_NAME") {
		cfg.Database.Database = fc.Database.Database
	}
	if fc.QueueStore.URL != "" && !envSet("QUEUE_STORE_URL") {
		cfg.QueueStore.URL = fc.QueueStore.URL
	}
	if fc.QueueStore.KeyPrefix != "" && !envSet("QUEUE_STORE_PREFIX") {
		cfg.QueueStore.KeyPrefix = fc.QueueStore.KeyPrefix
	}
	if fc.EventBus.URL != "" && !envSet("EVENT_BUS_URL") {
		cfg.EventBus.URL = fc.EventBus.URL
	}
	if fc.EventBus.DataDir != "" && !envSet("EVENT_BUS_DATA_DIR") {
		cfg.EventBus.DataDir = fc.EventBus.DataDir
	}
	if fc.Agent.ProviderURL != "" && !envSet("AGENT_PROVIDER_URL") {
		cfg.Agent.ProviderURL = fc.Agent.ProviderURL
	}
	if fc.Agent.CallTimeout != "" && !envSet("AGENT_CALL_TIMEOUT") {
		if d, err := time.ParseDuration(fc.Agent.CallTimeout); err == nil {
			cfg.Agent.CallTimeout = d
		}
	}
	if fc.Agent.CallsPerSecond != 0 && !envSet("AGENT_CALLS_PER_SECOND") {
		cfg.Agent.CallsPerSecond = fc.Agent.CallsPerSecond
	}
	if fc.Dispatch.PollIntervalMS != 0 && !envSet("QUEUE_POLL_INTERVAL_MS") {
		cfg.Dispatch.PollInterval = time.Duration(fc.Dispatch.PollIntervalMS) * time.Millisecond
	}
	if fc.Dispatch.MaxConcurrentCalls != 0 && !envSet("MAX_CONCURRENT_CALLS") {
		cfg.Dispatch.MaxConcurrentCalls = fc.Dispatch.MaxConcurrentCalls
	}
	if fc.Dispatch.MaxAttempts != 0 && !envSet("MAX_ATTEMPTS") {
		cfg.Dispatch.MaxAttempts = fc.Dispatch.MaxAttempts
	}
	if fc.Dispatch.BusinessHoursStart != "" && !envSet("BUSINESS_HOURS_START") {
		cfg.Dispatch.BusinessHoursStart = fc.Dispatch.BusinessHoursStart
	}
	if fc.Dispatch.BusinessHoursEnd != "" && !envSet("BUSINESS_HOURS_END") {
		cfg.Dispatch.BusinessHoursEnd = fc.Dispatch.BusinessHoursEnd
	}
	if fc.Dispatch.BusinessTimezone != "" && !envSet("BUSINESS_TIMEZONE") {
		cfg.Dispatch.BusinessTimezone = fc.Dispatch.BusinessTimezone
	}
	if fc.Upload.MaxPOsPerBatch != 0 && !envSet("MAX_POS_PER_BATCH") {
		cfg.Upload.MaxPOsPerBatch = fc.Upload.MaxPOsPerBatch
	}
	if fc.Upload.ChunkSize != 0 && !envSet("BATCH_PROCESSING_CHUNK_SIZE") {
		cfg.Upload.ChunkSize = fc.Upload.ChunkSize
	}
	if fc.Upload.MaxUploadBytes != 0 && !envSet("MAX_UPLOAD_BYTES") {
		cfg.Upload.MaxUploadBytes = fc.Upload.MaxUploadBytes
	}
	if fc.Leader.Enabled && !envSet("LEADER_ELECTION_ENABLED") {
		cfg.Leader.Enabled = true
	}
	if fc.Leader.InstanceID != "" && !envSet("HOSTNAME") {
		cfg.Leader.InstanceID = fc.Leader.InstanceID
	}
	if fc.Leader.TTL != "" && !envSet("LEADER_TTL") {
		if d, err := time.ParseDuration(fc.Leader.TTL); err == nil {
			cfg.Leader.TTL = d
		}
	}
	if fc.Leader.RefreshInterval != "" && !envSet("LEADER_REFRESH_INTERVAL") {
		if d, err := time.ParseDuration(fc.Leader.RefreshInterval); err == nil {
			cfg.Leader.RefreshInterval = d
		}
	}
	if fc.AppURL != "" && !envSet("APP_URL") {
		cfg.AppURL = fc.AppURL
	}
	if fc.DevMode && !envSet("POVOICE_DEV") {
		cfg.DevMode = true
	}

	return nil
}

func envSet(key string) bool {
	_, ok := os.LookupEnv(key)
	return ok
}
