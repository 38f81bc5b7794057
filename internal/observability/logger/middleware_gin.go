package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	obscontext "github.com/smallbiznis/bursar/internal/observability/context"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const headerRequestID = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug           bool
	ErrorClassifier func(err error) (string, string)
}

// GinMiddleware assigns a request id and writes one http_request line per
// request once the handler chain has finished.
func GinMiddleware(cfg MiddlewareConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		requestID := requestIDFor(c)
		c.Request = c.Request.WithContext(obscontext.WithRequestID(c.Request.Context(), requestID))

		c.Next()

		summary := summarize(c, time.Since(start))
		if lastErr := c.Errors.Last(); lastErr != nil && cfg.ErrorClassifier != nil {
			summary.errorType, summary.errorCode = cfg.ErrorClassifier(lastErr.Err)
		}
		fields := summary.fields()
		if summary.errorCode != "" && cfg.Debug {
			fields = append(fields, zap.Stack("stack"))
		}

		if ce := FromContext(c.Request.Context()).Check(summary.level(), "http_request"); ce != nil {
			ce.Write(fields...)
		}
	}
}

type requestSummary struct {
	method    string
	path      string
	route     string
	status    int
	elapsed   time.Duration
	bytesIn   int64
	bytesOut  int
	schoolID  string
	provider  string
	errorType string
	errorCode string
}

func summarize(c *gin.Context, elapsed time.Duration) requestSummary {
	route := strings.TrimSpace(c.FullPath())
	if route == "" {
		route = "unknown"
	}
	return requestSummary{
		method:   c.Request.Method,
		path:     c.Request.URL.Path,
		route:    route,
		status:   c.Writer.Status(),
		elapsed:  elapsed,
		bytesIn:  max(c.Request.ContentLength, 0),
		bytesOut: max(c.Writer.Size(), 0),
		schoolID: obscontext.SchoolIDFromContext(c.Request.Context()),
		provider: strings.TrimSpace(c.GetString(obscontext.GinProviderKey)),
	}
}

func (s requestSummary) fields() []zap.Field {
	fields := []zap.Field{
		zap.String("method", s.method),
		zap.String("path", s.path),
		zap.String("route", s.route),
		zap.Int("status", s.status),
		zap.Int64("duration_ms", s.elapsed.Milliseconds()),
		zap.Int64("bytes_in", s.bytesIn),
		zap.Int("bytes_out", s.bytesOut),
	}
	if s.schoolID != "" {
		fields = append(fields, zap.String("school_id", s.schoolID))
	}
	if s.provider != "" {
		fields = append(fields, zap.String("provider", s.provider))
	}
	if s.errorCode != "" {
		fields = append(fields,
			zap.String("error_type", s.errorType),
			zap.String("error_code", s.errorCode),
		)
	}
	return fields
}

// level keeps health checks quiet and raises rejected provider webhooks to warn.
func (s requestSummary) level() zapcore.Level {
	switch {
	case s.route == "/health" || s.route == "/metrics":
		return zapcore.DebugLevel
	case s.status >= http.StatusInternalServerError:
		return zapcore.ErrorLevel
	case s.status == http.StatusUnauthorized && s.provider != "":
		return zapcore.WarnLevel
	default:
		return zapcore.InfoLevel
	}
}

func requestIDFor(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(headerRequestID))
	if requestID == "" {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(headerRequestID, requestID)
	return requestID
}
