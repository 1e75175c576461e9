package constants

// Default worker configuration values
const (
	DefaultPollIntervalSec  = 5
	DefaultFlushIntervalSec = 15
	DefaultBatchSize        = 10
	DefaultMaxAttempts      = 5

	DefaultQueueReplayMaxAttempts = 20
)

// Default retry/backoff values
const (
	DefaultBackoffInitialMs     = 500
	DefaultMaxBackoffMs         = 60000
	DefaultStoreConnectAttempts = 3
)

// Default timeout values
const (
	DefaultHTTPTimeoutSec        = 30
	DefaultGracefulShutdownSec   = 30
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultServerPort            = 8084
	OutcomeWriteTimeoutSec       = 10
)

// Destination address bounds
const (
	MinDestinationLength = 7
	MaxDestinationLength = 20
)

// Listing limits for the read-only surface
const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// Privacy settings
const (
	DefaultPhoneMaskLength = 4
)
