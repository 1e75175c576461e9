package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"

	"courier/internal/constants"
	"courier/internal/models"
	"courier/internal/security"
)

var (
	ErrMissingDBPath     = models.ConfigError{Message: "missing database path"}
	ErrMissingQueuePath  = models.ConfigError{Message: "missing fallback queue path"}
	ErrMissingChannelURL = models.ConfigError{Message: "missing channel API URL"}
)

func LoadConfig(path string) (*models.Config, error) {
	// Validate config file path to prevent directory traversal
	if err := security.ValidateStatePath(path); err != nil {
		return nil, fmt.Errorf("invalid config path: %w", err)
	}

	file, err := os.ReadFile(path) // #nosec G304 - Path validated by security.ValidateStatePath above
	if err != nil {
		return nil, err
	}

	var config models.Config
	if err := json.Unmarshal(file, &config); err != nil {
		return nil, err
	}

	applyEnvironmentOverrides(&config)

	if err := validate(&config); err != nil {
		return nil, err
	}

	return &config, nil
}

func validate(c *models.Config) error {
	if c.Database.Path == "" {
		return ErrMissingDBPath
	}
	if c.Queue.Path == "" {
		return ErrMissingQueuePath
	}
	if c.Channel.APIBaseURL == "" {
		return ErrMissingChannelURL
	}
	if err := security.ValidateStatePath(c.Database.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid database path: %v", err)}
	}
	if err := security.ValidateStatePath(c.Queue.Path); err != nil {
		return models.ConfigError{Message: fmt.Sprintf("invalid fallback queue path: %v", err)}
	}

	if c.Queue.FlushIntervalSec <= 0 {
		c.Queue.FlushIntervalSec = constants.DefaultFlushIntervalSec
	}
	if c.Queue.MaxReplayAttempts <= 0 {
		c.Queue.MaxReplayAttempts = constants.DefaultQueueReplayMaxAttempts
	}
	if c.Channel.TimeoutSec <= 0 {
		c.Channel.TimeoutSec = constants.DefaultHTTPTimeoutSec
	}
	if c.Dispatch.PollIntervalSec <= 0 {
		c.Dispatch.PollIntervalSec = constants.DefaultPollIntervalSec
	}
	if c.Dispatch.BatchSize <= 0 {
		c.Dispatch.BatchSize = constants.DefaultBatchSize
	}
	if c.Dispatch.MaxAttempts <= 0 {
		c.Dispatch.MaxAttempts = constants.DefaultMaxAttempts
	}
	if c.Retry.InitialBackoffMs <= 0 {
		c.Retry.InitialBackoffMs = constants.DefaultBackoffInitialMs
	}
	if c.Retry.MaxBackoffMs <= 0 {
		c.Retry.MaxBackoffMs = constants.DefaultMaxBackoffMs
	}
	if c.Retry.MaxAttempts <= 0 {
		c.Retry.MaxAttempts = constants.DefaultStoreConnectAttempts
	}
	if c.Server.Port <= 0 {
		c.Server.Port = constants.DefaultServerPort
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	return nil
}

func applyEnvironmentOverrides(c *models.Config) {
	if path := os.Getenv("COURIER_DB_PATH"); path != "" {
		c.Database.Path = path
	}
	if path := os.Getenv("COURIER_QUEUE_PATH"); path != "" {
		c.Queue.Path = path
	}
	if url := os.Getenv("COURIER_CHANNEL_URL"); url != "" {
		c.Channel.APIBaseURL = url
	}
	if url := os.Getenv("COURIER_CHANNEL_EVENTS_URL"); url != "" {
		c.Channel.EventsURL = url
	}
	if url := os.Getenv("COURIER_OBJECT_STORE_URL"); url != "" {
		c.ObjectStore.BaseURL = url
	}
	if bucket := os.Getenv("COURIER_BUCKET"); bucket != "" {
		c.ObjectStore.Bucket = bucket
	}
	if v := envInt("COURIER_POLL_INTERVAL_SEC"); v > 0 {
		c.Dispatch.PollIntervalSec = v
	}
	if v := envInt("COURIER_FLUSH_INTERVAL_SEC"); v > 0 {
		c.Queue.FlushIntervalSec = v
	}
	if v := envInt("COURIER_BATCH_SIZE"); v > 0 {
		c.Dispatch.BatchSize = v
	}
	if v := envInt("COURIER_MAX_ATTEMPTS"); v > 0 {
		c.Dispatch.MaxAttempts = v
	}
	if level := os.Getenv("COURIER_LOG_LEVEL"); level != "" {
		c.LogLevel = level
	}
}

func envInt(name string) int {
	raw := os.Getenv(name)
	if raw == "" {
		return 0
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0
	}
	return v
}
