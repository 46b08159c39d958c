// Package middleware wraps the status server's handlers with request ids, access logs, metrics and spans.
package middleware

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chatline/internal/httputil"
	"chatline/internal/metrics"
	"chatline/internal/service"
	"chatline/internal/tracing"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// RequestIDHeader carries the request id back to the caller
const RequestIDHeader = "X-Request-ID"

const spanHTTPRequest = "http.request"

var sensitiveHeaders = []string{"authorization", "cookie", "x-api-key", "x-auth-token"}

// Observability adds a request id, a span, an access log line and request metrics to every request.
// Request headers are logged, masked, when the logger is at debug level.
func Observability(registry *metrics.Registry, logger *logrus.Logger) func(http.Handler) http.Handler {
	if registry == nil {
		registry = metrics.GetRegistry()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx, span := tracing.StartSpan(r.Context(), spanHTTPRequest)
			defer span.End()

			requestID := tracing.GenerateRequestID()
			ctx = tracing.WithRequestID(ctx, requestID)
			ctx = tracing.WithStartTime(ctx, time.Now())
			r = r.WithContext(ctx)

			route := routeOf(r)
			clientIP := httputil.GetClientIP(r)

			tracing.AddSpanAttributes(ctx,
				attribute.String("http.method", r.Method),
				attribute.String("http.route", route),
				attribute.String("url.path", r.URL.Path),
				attribute.String("client.address", clientIP),
				attribute.String("user_agent.original", r.Header.Get("User-Agent")),
			)

			requestInfo := tracing.GetRequestInfo(ctx)
			if logger.IsLevelEnabled(logrus.DebugLevel) {
				logger.WithFields(logrus.Fields{
					service.LogFieldRequestID: requestInfo.RequestID,
					service.LogFieldTraceID:   requestInfo.TraceID,
					service.LogFieldMethod:    r.Method,
					service.LogFieldURL:       r.URL.String(),
					service.LogFieldUserAgent: r.Header.Get("User-Agent"),
					"request_headers":         maskHeaders(r.Header),
				}).Debug("HTTP request started")
			}

			wrapper := &responseWrapper{ResponseWriter: w, statusCode: http.StatusOK}
			wrapper.Header().Set(RequestIDHeader, requestID)

			next.ServeHTTP(wrapper, r)

			duration := tracing.Duration(ctx)
			status := strconv.Itoa(wrapper.statusCode)

			tracing.AddSpanAttributes(ctx,
				attribute.Int("http.response.status_code", wrapper.statusCode),
				attribute.Int64("http.response.size", wrapper.responseSize),
			)
			if wrapper.statusCode >= 400 {
				tracing.SetSpanStatus(ctx, codes.Error, fmt.Sprintf("HTTP %d", wrapper.statusCode))
			} else {
				tracing.SetSpanStatus(ctx, codes.Ok, "")
			}

			registry.IncrementCounter(metrics.HTTPRequests, map[string]string{
				"method":      r.Method,
				"route":       route,
				"status_code": status,
			}, "Status server requests")
			registry.RecordTimer(metrics.HTTPRequestDuration, duration, map[string]string{
				"method": r.Method,
				"route":  route,
			}, "Status server request duration")

			logLevel := logrus.InfoLevel
			if wrapper.statusCode >= 400 && wrapper.statusCode < 500 {
				logLevel = logrus.WarnLevel
			} else if wrapper.statusCode >= 500 {
				logLevel = logrus.ErrorLevel
			}

			logger.WithFields(logrus.Fields{
				service.LogFieldRequestID:  requestInfo.RequestID,
				service.LogFieldTraceID:    requestInfo.TraceID,
				service.LogFieldMethod:     r.Method,
				service.LogFieldRoute:      route,
				service.LogFieldStatusCode: wrapper.statusCode,
				service.LogFieldDuration:   duration.Milliseconds(),
				service.LogFieldRemoteIP:   clientIP,
				service.LogFieldSize:       wrapper.responseSize,
			}).Log(logLevel, "HTTP request completed")
		})
	}
}

// routeOf prefers the matched mux template so metric labels stay bounded
func routeOf(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tmpl, err := route.GetPathTemplate(); err == nil {
			return tmpl
		}
	}
	return r.URL.Path
}

func maskHeaders(h http.Header) map[string]string {
	out := make(map[string]string, len(h))
	for name, values := range h {
		if isSensitiveHeader(name) {
			out[name] = "***MASKED***"
			continue
		}
		out[name] = strings.Join(values, ", ")
	}
	return out
}

func isSensitiveHeader(name string) bool {
	for _, sensitive := range sensitiveHeaders {
		if strings.EqualFold(name, sensitive) {
			return true
		}
	}
	return false
}

// responseWrapper captures response metrics
type responseWrapper struct {
	http.ResponseWriter
	statusCode   int
	responseSize int64
	wroteHeader  bool
}

func (rw *responseWrapper) WriteHeader(statusCode int) {
	if rw.wroteHeader {
		return
	}
	rw.wroteHeader = true
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWrapper) Write(data []byte) (int, error) {
	if !rw.wroteHeader {
		rw.WriteHeader(http.StatusOK)
	}
	n, err := rw.ResponseWriter.Write(data)
	rw.responseSize += int64(n)
	return n, err
}
