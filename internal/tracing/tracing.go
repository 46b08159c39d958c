package tracing

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	oteltrace "go.opentelemetry.io/otel/trace"
)

type contextKey int

const (
	requestIDKey contextKey = iota
	startTimeKey
	actionKey
)

const actionSpanPrefix = "chat."

// RequestInfo describes one status server request or chat action
type RequestInfo struct {
	RequestID string    `json:"request_id"`
	Action    string    `json:"action,omitempty"`
	TraceID   string    `json:"trace_id,omitempty"`
	SpanID    string    `json:"span_id,omitempty"`
	StartTime time.Time `json:"start_time"`
}

// GenerateRequestID returns a fresh id of the form req_<uuid>
func GenerateRequestID() string {
	return "req_" + uuid.NewString()
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, requestID)
}

func WithStartTime(ctx context.Context, startTime time.Time) context.Context {
	return context.WithValue(ctx, startTimeKey, startTime)
}

func GetRequestID(ctx context.Context) string {
	requestID, _ := ctx.Value(requestIDKey).(string)
	return requestID
}

func GetStartTime(ctx context.Context) time.Time {
	startTime, _ := ctx.Value(startTimeKey).(time.Time)
	return startTime
}

// GetAction returns the chat action recorded by StartAction, if any
func GetAction(ctx context.Context) string {
	action, _ := ctx.Value(actionKey).(string)
	return action
}

// StartAction opens a span for a user-initiated chat action such as send or delete.
// An existing request id (set by the status server) is kept; otherwise one is generated,
// so console actions and API calls share the same log fields.
func StartAction(ctx context.Context, action string, attributes ...attribute.KeyValue) (context.Context, oteltrace.Span) {
	if GetRequestID(ctx) == "" {
		ctx = WithRequestID(ctx, GenerateRequestID())
	}
	if GetStartTime(ctx).IsZero() {
		ctx = WithStartTime(ctx, time.Now())
	}
	ctx = context.WithValue(ctx, actionKey, action)

	attributes = append(attributes,
		attribute.String("chat.action", action),
		attribute.String("request.id", GetRequestID(ctx)),
	)
	return StartSpan(ctx, actionSpanPrefix+action, attributes...)
}

// GetRequestInfo collects everything the context knows about the current request
func GetRequestInfo(ctx context.Context) *RequestInfo {
	return &RequestInfo{
		RequestID: GetRequestID(ctx),
		Action:    GetAction(ctx),
		TraceID:   TraceID(ctx),
		SpanID:    SpanID(ctx),
		StartTime: GetStartTime(ctx),
	}
}

// Duration is the time elapsed since WithStartTime, or zero when no start was recorded
func Duration(ctx context.Context) time.Duration {
	startTime := GetStartTime(ctx)
	if startTime.IsZero() {
		return 0
	}
	return time.Since(startTime)
}
