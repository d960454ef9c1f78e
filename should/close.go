// Package should runs cleanup calls whose failure is worth logging but not
// worth returning.
package should

import (
	"context"
	"io"

	"github.com/amp-labs/amp-fsm/logger"
)

// Close closes closer and logs msg with the error if it fails.
func Close(ctx context.Context, closer io.Closer, msg string) {
	if closer == nil {
		return
	}

	if err := closer.Close(); err != nil {
		logger.Get(ctx).Error(msg, "error", err)
	}
}
