package models

// Config holds the application configuration
type Config struct {
	Broker    BrokerConfig    `json:"broker" yaml:"broker"`
	Reconnect ReconnectConfig `json:"reconnect" yaml:"reconnect"`
	Chat      ChatConfig      `json:"chat" yaml:"chat"`
	Status    StatusConfig    `json:"status" yaml:"status"`
	Typing    TypingConfig    `json:"typing" yaml:"typing"`
	Media     MediaConfig     `json:"media" yaml:"media"`
	Server    ServerConfig    `json:"server" yaml:"server"`
	Tracing   TracingConfig   `json:"tracing" yaml:"tracing"`
	LogLevel  string          `json:"log_level" yaml:"log_level"`
}

// BrokerConfig holds the STOMP endpoint and routing
type BrokerConfig struct {
	Endpoint          string `json:"endpoint" yaml:"endpoint"`
	Host              string `json:"host" yaml:"host"`
	InboundTopic      string `json:"inbound_topic" yaml:"inbound_topic"`
	SendDestination   string `json:"send_destination" yaml:"send_destination"`
	JoinDestination   string `json:"join_destination" yaml:"join_destination"`
	ConnectTimeoutSec int    `json:"connect_timeout_sec" yaml:"connect_timeout_sec"`
}

// ReconnectConfig holds the backoff schedule
type ReconnectConfig struct {
	FloorMs    int     `json:"floor_ms" yaml:"floor_ms"`
	Factor     float64 `json:"factor" yaml:"factor"`
	CeilingMs  int     `json:"ceiling_ms" yaml:"ceiling_ms"`
	MaxRetries int     `json:"max_retries" yaml:"max_retries"`
	Jitter     bool    `json:"jitter" yaml:"jitter"`
}

// ChatConfig identifies the local user and the room
type ChatConfig struct {
	Username     string   `json:"username" yaml:"username"`
	RoomName     string   `json:"room_name" yaml:"room_name"`
	Participants []string `json:"participants" yaml:"participants"`
}

// StatusConfig holds the simulated delivery offsets
type StatusConfig struct {
	SentDelayMs      int `json:"sent_delay_ms" yaml:"sent_delay_ms"`
	DeliveredDelayMs int `json:"delivered_delay_ms" yaml:"delivered_delay_ms"`
	ReadDelayMs      int `json:"read_delay_ms" yaml:"read_delay_ms"`
}

// TypingConfig controls the typing indicator simulation
type TypingConfig struct {
	Enabled     *bool   `json:"enabled" yaml:"enabled"`
	IntervalMs  int     `json:"interval_ms" yaml:"interval_ms"`
	Probability float64 `json:"probability" yaml:"probability"`
	DisplayMs   int     `json:"display_ms" yaml:"display_ms"`
}

// IsEnabled defaults to true when the flag is absent
func (c TypingConfig) IsEnabled() bool {
	return c.Enabled == nil || *c.Enabled
}

// MediaConfig controls local file attachments
type MediaConfig struct {
	BaseDir      string            `json:"base_dir" yaml:"base_dir"`
	MaxSizeMB    int               `json:"max_size_mb" yaml:"max_size_mb"`
	AllowedTypes MediaAllowedTypes `json:"allowed_types" yaml:"allowed_types"`
}

// MediaAllowedTypes lists file extensions per media kind
type MediaAllowedTypes struct {
	Image    []string `json:"image" yaml:"image"`
	Video    []string `json:"video" yaml:"video"`
	Document []string `json:"document" yaml:"document"`
}

// ServerConfig holds the local status server settings. An empty Addr disables it.
type ServerConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// TracingConfig holds OpenTelemetry settings
type TracingConfig struct {
	Enabled        bool    `json:"enabled" yaml:"enabled"`
	ServiceName    string  `json:"service_name" yaml:"service_name"`
	ServiceVersion string  `json:"service_version" yaml:"service_version"`
	Environment    string  `json:"environment" yaml:"environment"`
	OTLPEndpoint   string  `json:"otlp_endpoint" yaml:"otlp_endpoint"`
	SampleRate     float64 `json:"sample_rate" yaml:"sample_rate"`
	UseStdout      bool    `json:"use_stdout" yaml:"use_stdout"`
}
