package constants

// Broker routing defaults
const (
	DefaultEndpoint            = "ws://localhost:8080/ws"
	DefaultInboundTopic        = "/topic/public-chat"
	DefaultSendDestination     = "/app/chat.sendMessage"
	DefaultJoinDestination     = "/app/chat.addUser"
	DefaultRoomName            = "Public Group"
	DefaultConnectTimeoutSec   = 10
	DefaultCloseTimeoutSec     = 2
	DefaultUsernamePrefix      = "User_"
	DefaultUsernameSuffixRange = 1000
)

// Reconnection defaults
const (
	DefaultReconnectFloorMs    = 3000
	DefaultReconnectFactor     = 1.5
	DefaultReconnectCeilingMs  = 30000
	DefaultReconnectMaxRetries = 5
)

// Delivery status simulation offsets, measured from the publish
const (
	DefaultStatusSentDelayMs      = 500
	DefaultStatusDeliveredDelayMs = 1500
	DefaultStatusReadDelayMs      = 3000
)

// Typing simulation defaults
const (
	DefaultTypingIntervalMs    = 8000
	DefaultTypingProbability   = 0.3
	DefaultTypingDisplayMs     = 3000
	DefaultLoopQueueSize       = 256
	DefaultAttachReadTimeoutMs = 5000
)

// DefaultParticipants seeds the typing simulator roster.
var DefaultParticipants = []string{"John Doe", "Jane Smith", "Alice Johnson"}

// Status server defaults
const (
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 10
)

// Validation limits
const (
	MaxContentLength  = 4096
	MaxUsernameLength = 64
	MaxEmojiLength    = 32
)

// Privacy settings
const (
	DefaultSenderMaskLength = 2
)

// Config watcher settings
const (
	DefaultConfigReloadDebounceMs = 100
)

// Status server request limits
const (
	MaxRequestBodyBytes = 16 * 1024
	MaxVoiceSeconds     = 600
)

// Attachment defaults
const (
	DefaultMediaMaxSizeMB = 25
	DefaultMimeType       = "application/octet-stream"
	MimeSniffLength       = 512 // leading bytes read to detect content type
)
