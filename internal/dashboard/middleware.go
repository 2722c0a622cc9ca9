package dashboard

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/otel/attribute"

	"chainwatch/internal/logging"
	"chainwatch/internal/observability"
	"chainwatch/internal/utils/id"
)

const logIDHeader = "X-Log-Id"

// JSONMiddleware rejects bodies that are not JSON.
func JSONMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		switch c.Request.Method {
		case http.MethodPost, http.MethodPut, http.MethodPatch:
			contentType := c.GetHeader("Content-Type")
			if contentType != "" && !strings.HasPrefix(contentType, "application/json") {
				c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, APIResponse{
					Success: false,
					Error:   "Content-Type must be application/json",
				})
				return
			}
		}
		c.Next()
	}
}

// RequestContextMiddleware assigns a log id, opens a server span and logs
// the request once it completes.
func RequestContextMiddleware(tracer *observability.TracerProvider, logger logging.Logger) gin.HandlerFunc {
	logger = logging.OrNop(logger)
	return func(c *gin.Context) {
		start := time.Now()

		ctx := c.Request.Context()
		if incoming := strings.TrimSpace(c.GetHeader(logIDHeader)); incoming != "" {
			ctx = id.WithLogID(ctx, incoming)
		}
		ctx, logID := id.EnsureLogID(ctx, id.NewLogID)
		if sessionID := c.Param("id"); sessionID != "" {
			ctx = id.WithSessionID(ctx, sessionID)
		}

		ctx, span := tracer.StartSpan(ctx, observability.SpanHTTPServer,
			attribute.String("http.method", c.Request.Method),
			attribute.String("http.route", c.FullPath()),
		)
		c.Request = c.Request.WithContext(ctx)
		c.Header(logIDHeader, logID)

		c.Next()

		status := c.Writer.Status()
		span.SetAttributes(attribute.Int(observability.AttrHTTPStatus, status))
		var err error
		if len(c.Errors) > 0 {
			err = c.Errors.Last()
		}
		observability.EndSpan(span, err)

		logging.FromContext(ctx, logger).Debug("%s %s -> %d (%s)",
			c.Request.Method, c.Request.URL.Path, status, time.Since(start).Round(time.Millisecond))
	}
}
