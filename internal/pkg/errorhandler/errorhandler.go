package errorhandler

import (
	"context"
	"net/http"

	"github.com/qahwa/cafe-api/internal/pkg/logger"
	"github.com/qahwa/cafe-api/internal/pkg/response"
)

// Internal logs err with the request-scoped logger and sends a generic 500.
// The client never sees err itself.
func Internal(ctx context.Context, w http.ResponseWriter, err error, msg string, fields ...interface{}) {
	logger.LogError(ctx, err, msg, fields...)
	response.InternalError(w)
}

// HandlePanic logs a recovered panic with its stack and sends a generic 500
func HandlePanic(ctx context.Context, w http.ResponseWriter, recovered interface{}, stack []byte) {
	logger.FromContext(ctx).Error().
		Interface("panic", recovered).
		Bytes("stack", stack).
		Msg("Panic recovered")

	response.InternalError(w)
}
