package models

// Config is the full daemon configuration, loaded from a JSON file with
// environment overrides applied afterwards.
type Config struct {
	LogLevel    string            `json:"logLevel"`
	Database    DatabaseConfig    `json:"database"`
	Queue       QueueConfig       `json:"queue"`
	Channel     ChannelConfig     `json:"channel"`
	ObjectStore ObjectStoreConfig `json:"objectStore"`
	Dispatch    DispatchConfig    `json:"dispatch"`
	Retry       RetryConfig       `json:"retry"`
	Server      ServerConfig      `json:"server"`
	Tracing     TracingConfig     `json:"tracing"`
}

type DatabaseConfig struct {
	Path string `json:"path"`
}

type QueueConfig struct {
	Path              string `json:"path"`
	FlushIntervalSec  int    `json:"flushIntervalSec"`
	MaxReplayAttempts int    `json:"maxReplayAttempts"`
}

type ChannelConfig struct {
	APIBaseURL string `json:"apiBaseUrl"`
	EventsURL  string `json:"eventsUrl"`
	TimeoutSec int    `json:"timeoutSec"`
}

type ObjectStoreConfig struct {
	BaseURL string `json:"baseUrl"`
	Bucket  string `json:"bucket"`
}

type DispatchConfig struct {
	PollIntervalSec int `json:"pollIntervalSec"`
	BatchSize       int `json:"batchSize"`
	MaxAttempts     int `json:"maxAttempts"`
}

type RetryConfig struct {
	InitialBackoffMs int `json:"initialBackoffMs"`
	MaxBackoffMs     int `json:"maxBackoffMs"`
	MaxAttempts      int `json:"maxAttempts"`
}

type ServerConfig struct {
	Port int `json:"port"`
}

type TracingConfig struct {
	Enabled      bool    `json:"enabled"`
	ServiceName  string  `json:"serviceName"`
	Environment  string  `json:"environment"`
	OTLPEndpoint string  `json:"otlpEndpoint"`
	SampleRate   float64 `json:"sampleRate"`
	UseStdout    bool    `json:"useStdout"`
}

// ConfigError indicates invalid or missing required configuration. The
// process refuses to start its loops when one is returned.
type ConfigError struct {
	Message string
}

func (e ConfigError) Error() string {
	return "config error: " + e.Message
}
