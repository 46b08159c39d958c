package service

// Logging Standards for chatline
//
// This file defines standard field names, log levels, and patterns
// to ensure consistent logging across the application.

// Standard Field Names
// Use these exact field names for consistency across all logging calls
const (
	// Core identifiers
	LogFieldMessageID = "message_id"
	LogFieldSender    = "sender"
	LogFieldUsername  = "username"
	LogFieldRoom      = "room"

	// Service and operation fields
	LogFieldService   = "service"
	LogFieldOperation = "operation"
	LogFieldComponent = "component"

	// Message and event fields
	LogFieldEvent       = "event"
	LogFieldMessageKind = "message_kind"
	LogFieldStatus      = "status"
	LogFieldDirection   = "direction" // "inbound" or "outbound"
	LogFieldContent     = "content"

	// Connection fields
	LogFieldState        = "state"
	LogFieldPrevState    = "previous_state"
	LogFieldEndpoint     = "endpoint"
	LogFieldDestination  = "destination"
	LogFieldSubscription = "subscription"
	LogFieldGeneration   = "generation"

	// Performance and metrics
	LogFieldDuration = "duration_ms"
	LogFieldDelay    = "delay_ms"
	LogFieldCount    = "count"

	// File and media
	LogFieldFilePath  = "file_path"
	LogFieldMediaType = "media_type"
	LogFieldFileSize  = "file_size"

	// HTTP status server
	LogFieldRequestID  = "request_id"
	LogFieldTraceID    = "trace_id"
	LogFieldMethod     = "method"
	LogFieldURL        = "url"
	LogFieldRoute      = "route"
	LogFieldRemoteIP   = "remote_ip"
	LogFieldUserAgent  = "user_agent"
	LogFieldStatusCode = "status_code"
	LogFieldSize       = "response_size"

	// Error and debugging
	LogFieldErrorCode  = "error_code"
	LogFieldRetryCount = "retry_count"
	LogFieldAttempt    = "attempt"
)

// Log Level Usage Guidelines
//
// DEBUG: Detailed information for diagnosing problems. Only use in development or verbose mode.
//   - Frame-level transport activity
//   - Status transitions of individual messages
//   - Typing indicator ticks
//
// INFO: General information about application flow and key events.
//   - Application startup/shutdown
//   - Connection state changes
//   - Configuration loaded or reloaded
//
// WARN: Something unexpected happened, but the application can continue.
//   - Connection lost, reconnect scheduled
//   - Publish skipped while disconnected
//   - Malformed inbound payload discarded
//
// ERROR: Error events that might still allow the application to continue.
//   - Retry budget exhausted
//   - Failed to read an attachment
//   - Status server failures

// Standard Log Message Patterns
//
// Starting operations: "Starting [operation]"
// Completed operations: "Completed [operation]" or "[Operation] completed successfully"
// Failed operations: "Failed to [operation]"
// Retrying operations: "Retrying [operation] (attempt X/Y)"
// Skipping operations: "Skipping [operation]: [reason]"
// Configuration: "Loaded [config type] configuration" / "Using default [setting]"

// Example Usage:
//
// logger.WithFields(logrus.Fields{
//     LogFieldEndpoint: privacy.MaskEndpoint(endpoint),
//     LogFieldAttempt:  attempt,
//     LogFieldDelay:    delay.Milliseconds(),
// }).Warn("Connection lost, reconnect scheduled")
