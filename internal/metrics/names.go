package metrics

// Metric names recorded by the chat engine
const (
	MessagesSent          = "messages_sent_total"
	MessagesReceived      = "messages_received_total"
	MessagesDeduplicated  = "messages_deduplicated_total"
	DecodeFailures        = "decode_failures_total"
	PublishSkipped        = "publish_skipped_total"
	PublishFailures       = "publish_failures_total"
	ReconnectAttempts     = "reconnect_attempts_total"
	ConnectionState       = "connection_state"
	StoreMessages         = "store_messages"
	ConnectDuration       = "connect_duration"
	HTTPRequests          = "http_requests_total"
	HTTPRequestDuration   = "http_request_duration"
	ConfigReloads         = "config_reloads_total"
	TypingIndicatorsShown = "typing_indicators_total"
	StatusTransitions     = "status_transitions_total"
)
