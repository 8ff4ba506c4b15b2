package middleware

import (
	"context"

	"github.com/gin-gonic/gin"
)

// SchemaEnsurer makes sure the tables a route depends on exist.
type SchemaEnsurer interface {
	EnsureSchema(ctx context.Context) error
}

// RequireSchema rejects the request with ServiceUnavailable while the schema cannot be initialized.
// Once initialization succeeded this is a single atomic load.
func RequireSchema(schema SchemaEnsurer) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := schema.EnsureSchema(c.Request.Context()); err != nil {
			_ = c.Error(err)
			c.Abort()
			return
		}
		c.Next()
	}
}
