// Package middleware provides the request isolation boundary and route guards.
package middleware

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"time"

	"github.com/gin-gonic/gin"

	"auth_backend/internal/platform/http/apierror"
	"auth_backend/internal/platform/idx"
	"auth_backend/internal/platform/logging"
	"auth_backend/internal/shared/apperr"
)

const (
	// HeaderRequestID carries the correlation id in both directions.
	HeaderRequestID = "X-Request-ID"
	// ContextCorrelationID is the gin context key of the correlation id.
	ContextCorrelationID = "correlationID"
)

// State is the outcome of one request as seen by the isolation boundary.
type State string

const (
	StateReceived    State = "received"
	StateDispatching State = "dispatching"
	StateSucceeded   State = "succeeded"
	StateRecovered   State = "recovered"
	StateFatal       State = "fatal"
)

// CorrelationID returns the id assigned by Isolation, or "" outside of it.
func CorrelationID(c *gin.Context) string {
	return c.GetString(ContextCorrelationID)
}

// Isolation wraps every handler. It assigns a correlation id, attaches a request
// scoped logger, recovers panics and turns errors recorded with c.Error into the
// uniform envelope. Nothing a handler does can take the process down through here.
func Isolation(base *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		cid := idx.FromHeader(c.GetHeader(HeaderRequestID))
		c.Set(ContextCorrelationID, cid)
		c.Header(HeaderRequestID, cid)

		operation := c.FullPath()
		if operation == "" {
			operation = c.Request.URL.Path
		}
		logger := base.With(
			"correlation_id", cid,
			"method", c.Request.Method,
			"operation", operation,
		)
		c.Request = c.Request.WithContext(logging.WithContext(c.Request.Context(), logger))
		logger.Debug("request received", "state", StateReceived, "remote_addr", c.ClientIP())

		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			if rec == http.ErrAbortHandler {
				panic(rec)
			}
			logger.Error("handler panicked",
				"state", StateRecovered,
				"cause", fmt.Sprint(rec),
				"stack", string(debug.Stack()),
			)
			respond(c, apperr.New(apperr.KindUnexpected, "panic"), cid)
			logOutcome(logger, c, StateRecovered, start)
		}()

		c.Next()

		state := StateSucceeded
		if last := c.Errors.Last(); last != nil {
			kind := apperr.KindOf(last.Err)
			switch kind {
			case apperr.KindUnexpected, "":
				state = StateRecovered
				logger.Error("request failed with unexpected error", "state", state, "cause", last.Err)
			case apperr.KindServiceUnavailable:
				logger.Warn("request failed, store unavailable", "cause", last.Err)
			default:
				logger.Debug("request rejected", "error_kind", kind, "cause", last.Err)
			}
			respond(c, last.Err, cid)
		}
		logOutcome(logger, c, state, start)
	}
}

// respond writes the envelope unless the handler already wrote a body.
func respond(c *gin.Context, err error, cid string) {
	if c.Writer.Written() {
		c.Abort()
		return
	}
	status, body := apierror.FromError(err, cid)
	if status == http.StatusUnauthorized {
		c.Header("WWW-Authenticate", "Bearer")
	}
	c.AbortWithStatusJSON(status, body)
}

func logOutcome(logger *slog.Logger, c *gin.Context, state State, start time.Time) {
	logger.Info("http_request",
		"state", state,
		"status", c.Writer.Status(),
		"duration_ms", time.Since(start).Milliseconds(),
		"user_agent", c.Request.UserAgent(),
	)
}

// NotFound answers unknown routes.
func NotFound(c *gin.Context) {
	_ = c.Error(apperr.New(apperr.KindNotFound, "route not found"))
}

// MethodNotAllowed answers known routes called with an unsupported method.
func MethodNotAllowed(c *gin.Context) {
	_ = c.Error(apperr.New(apperr.KindMethodNotAllowed, "method not allowed"))
}
