package constants

// Default server configuration values
const (
	DefaultServerHost            = "0.0.0.0"
	DefaultServerPort            = 8082
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
	ServerErrorChannelSize       = 1
)

// Default retry configuration values
const (
	DefaultRetryBackoffMs        = 1000
	DefaultMaxBackoffMs          = 60000
	DefaultMaxAttempts           = 5
	DefaultDatabaseRetryAttempts = 3
	DefaultBackoffInitialMs      = 500
	DefaultBackoffMaxSec         = 5
)

// Default ingestion and query values
const (
	DefaultMaxContentLength = 65536
	DefaultPageLimit        = 50
	MaxPageLimit            = 100
	DefaultOperatorIdentity = "system"
)

// Default retention and scheduling values
const (
	DefaultRetentionDays      = 30
	DefaultCleanupIntervalSec = 86400
)

// Analytics values
const (
	SLAThresholdMinutes = 1440
	DaysPerWeek         = 7
)

// Default event stream values
const (
	DefaultEventBufferSize = 64
)

// Default rate limit values
const (
	DefaultRateLimitPerMinute = 120
)

// Privacy settings
const (
	DefaultIdentifierMaskLength = 4
	DefaultMessageIDLength      = 8
)

// Encryption salts. Changing either one orphans every row written with the
// old value, so they are versioned rather than configurable.
const (
	EncryptionSalt       = "unibox-encryption-salt-v1"
	EncryptionLookupSalt = "unibox-lookup-salt-v1"
)

// File permission constants
const (
	DefaultFilePermissions      = 0600
	DefaultDirectoryPermissions = 0750
)

// Validation limits
const (
	MaxExternalIDLength  = 256
	MaxChannelNameLength = 64
	MaxSenderLength      = 256
	MaxMessageTypeLength = 32
)
