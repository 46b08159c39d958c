package privacy

import (
	"fmt"
	"net/url"
	"strings"
	"unicode/utf8"

	"chatline/internal/constants"
)

// MaskSender masks a display name showing only its last characters
// Example: "Jane Smith" -> "********th"
func MaskSender(sender string) string {
	return maskString(sender, constants.DefaultSenderMaskLength)
}

// MaskContent hides message text, keeping only its length for debugging
// Example: "hello" -> "[hidden:5]"
func MaskContent(content string) string {
	if content == "" {
		return ""
	}
	return fmt.Sprintf("[hidden:%d]", utf8.RuneCountInString(content))
}

// MaskEndpoint strips credentials and query parameters from a broker URL
// Example: "wss://user:pw@chat.example.com/ws?token=x" -> "wss://chat.example.com/ws"
func MaskEndpoint(endpoint string) string {
	if endpoint == "" {
		return ""
	}

	u, err := url.Parse(endpoint)
	if err != nil || u.Host == "" {
		return maskString(endpoint, 4)
	}

	u.User = nil
	u.RawQuery = ""
	u.Fragment = ""
	return u.String()
}

// MaskFilePath keeps only the file name of a local path
// Example: "/home/jane/photos/cat.png" -> ".../cat.png"
func MaskFilePath(path string) string {
	if path == "" {
		return ""
	}
	i := strings.LastIndexAny(path, `/\`)
	if i < 0 {
		return path
	}
	return ".../" + path[i+1:]
}

// maskString masks a string showing only the last n characters
func maskString(s string, keepLast int) string {
	if s == "" {
		return ""
	}

	runes := []rune(s)
	if len(runes) <= keepLast {
		return strings.Repeat("*", len(runes))
	}

	return strings.Repeat("*", len(runes)-keepLast) + string(runes[len(runes)-keepLast:])
}

// MaskSensitiveFields applies appropriate masking to common logging fields
func MaskSensitiveFields(fields map[string]interface{}) map[string]interface{} {
	if fields == nil {
		return nil
	}

	masked := make(map[string]interface{}, len(fields))
	for k, v := range fields {
		s, isString := v.(string)
		if !isString {
			masked[k] = v
			continue
		}

		switch k {
		case "sender", "username", "user", "actor":
			masked[k] = MaskSender(s)
		case "content", "text", "body":
			masked[k] = MaskContent(s)
		case "endpoint", "url":
			masked[k] = MaskEndpoint(s)
		case "file_path", "path":
			masked[k] = MaskFilePath(s)
		default:
			masked[k] = v
		}
	}

	return masked
}
