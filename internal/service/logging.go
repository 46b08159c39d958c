package service

import (
	"context"

	"chatline/internal/models"
	"chatline/internal/privacy"

	"github.com/sirupsen/logrus"
)

// ContextKey is a package-local type to prevent context key collisions
// See staticcheck SA1029 guidance
type ContextKey string

// VerboseContextKey is the strongly-typed context key for verbose logging flag
const VerboseContextKey ContextKey = "verbose"

// WithVerbose marks ctx for unmasked logging
func WithVerbose(ctx context.Context, verbose bool) context.Context {
	return context.WithValue(ctx, VerboseContextKey, verbose)
}

// IsVerboseLogging checks if verbose logging is enabled from context
func IsVerboseLogging(ctx context.Context) bool {
	if verbose, ok := ctx.Value(VerboseContextKey).(bool); ok {
		return verbose
	}
	return false
}

// LogWithContext creates a logger entry with optional sensitive information
func LogWithContext(ctx context.Context, logger *logrus.Logger) *logrus.Entry {
	return logger.WithField("verbose", IsVerboseLogging(ctx))
}

// messageFields builds log fields for a message, masking sender and content unless verbose
func messageFields(ctx context.Context, direction string, msg models.Message) logrus.Fields {
	fields := logrus.Fields{
		LogFieldDirection:   direction,
		LogFieldMessageID:   msg.ID,
		LogFieldMessageKind: string(msg.Kind),
		LogFieldStatus:      msg.Status.String(),
	}
	if IsVerboseLogging(ctx) {
		fields[LogFieldSender] = msg.Sender
		fields[LogFieldContent] = msg.Content
	} else {
		fields[LogFieldSender] = privacy.MaskSender(msg.Sender)
		fields[LogFieldContent] = privacy.MaskContent(msg.Content)
	}
	return fields
}

// LogMessageProcessing logs message processing with appropriate privacy controls
func LogMessageProcessing(ctx context.Context, logger *logrus.Logger, direction string, msg models.Message) {
	logger.WithFields(messageFields(ctx, direction, msg)).Debug("Processing message")
}
