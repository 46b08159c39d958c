package validation

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"unicode"
	"unicode/utf8"

	"chatline/internal/constants"
	"chatline/internal/errors"
)

// ValidateUsername checks a display name used as the STOMP sender
func ValidateUsername(username string) error {
	if strings.TrimSpace(username) == "" {
		return errors.NewValidationError("username", "username cannot be empty")
	}

	if utf8.RuneCountInString(username) > constants.MaxUsernameLength {
		return errors.NewValidationError("username",
			fmt.Sprintf("username too long (max %d characters)", constants.MaxUsernameLength))
	}

	for _, char := range username {
		if unicode.IsControl(char) {
			return errors.NewValidationError("username", "username contains control characters")
		}
	}

	return nil
}

// ValidateContent checks outgoing message text. Blank text is rejected; newlines and tabs are fine.
func ValidateContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.NewValidationError("content", "message cannot be empty")
	}

	if !utf8.ValidString(content) {
		return errors.NewValidationError("content", "message is not valid UTF-8")
	}

	if utf8.RuneCountInString(content) > constants.MaxContentLength {
		return errors.NewValidationError("content",
			fmt.Sprintf("message too long (max %d characters)", constants.MaxContentLength))
	}

	if strings.ContainsRune(content, '\x00') {
		return errors.NewValidationError("content", "message contains invalid characters")
	}

	return nil
}

// ValidateEmoji checks a reaction key
func ValidateEmoji(emoji string) error {
	if strings.TrimSpace(emoji) == "" {
		return errors.NewValidationError("emoji", "reaction cannot be empty")
	}

	if len(emoji) > constants.MaxEmojiLength {
		return errors.NewValidationError("emoji",
			fmt.Sprintf("reaction too long (max %d bytes)", constants.MaxEmojiLength))
	}

	for _, char := range emoji {
		if unicode.IsSpace(char) || unicode.IsControl(char) {
			return errors.NewValidationError("emoji", "reaction contains whitespace or control characters")
		}
	}

	return nil
}

// ValidateEndpoint checks a broker WebSocket URL
func ValidateEndpoint(endpoint string) error {
	if endpoint == "" {
		return errors.NewValidationError("endpoint", "endpoint cannot be empty")
	}

	u, err := url.Parse(endpoint)
	if err != nil {
		return errors.NewValidationError("endpoint", fmt.Sprintf("invalid URL: %v", err))
	}

	switch strings.ToLower(u.Scheme) {
	case "ws", "wss", "http", "https":
	default:
		return errors.NewValidationError("endpoint",
			fmt.Sprintf("unsupported scheme %q (use ws, wss, http or https)", u.Scheme))
	}

	if u.Host == "" {
		return errors.NewValidationError("endpoint", "endpoint must include a host")
	}

	return nil
}

// ValidateDestination checks a STOMP destination such as /app/chat.sendMessage
func ValidateDestination(destination, fieldName string) error {
	if !strings.HasPrefix(destination, "/") {
		return errors.NewValidationError(fieldName, fmt.Sprintf("%s must start with '/'", fieldName))
	}

	if strings.ContainsAny(destination, "\x00\n\r: ") {
		return errors.NewValidationError(fieldName, fmt.Sprintf("%s contains invalid characters", fieldName))
	}

	return nil
}

// ValidateHTTPRequestSize validates incoming HTTP request size
func ValidateHTTPRequestSize(r *http.Request, maxSizeBytes int64) error {
	if r.ContentLength > maxSizeBytes {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("request too large: %d bytes (max %d bytes)", r.ContentLength, maxSizeBytes))
	}

	return nil
}

// ValidateStringLength validates string length against bounds
func ValidateStringLength(value, fieldName string, minLength, maxLength int) error {
	if len(value) < minLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too short (min %d characters)", fieldName, minLength))
	}

	if len(value) > maxLength {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too long (max %d characters)", fieldName, maxLength))
	}

	return nil
}

// ValidateNumericRange validates numeric values against bounds
func ValidateNumericRange(value int, fieldName string, min, max int) error {
	if value < min {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too small (min %d)", fieldName, min))
	}

	if value > max {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max %d)", fieldName, max))
	}

	return nil
}

// ValidateTimeout validates timeout values
func ValidateTimeout(timeoutSec int, fieldName string) error {
	if timeoutSec < 1 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s must be at least 1 second", fieldName))
	}

	if timeoutSec > 3600 {
		return errors.New(errors.ErrCodeInvalidInput,
			fmt.Sprintf("%s too large (max 3600 seconds)", fieldName))
	}

	return nil
}
