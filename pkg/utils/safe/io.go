// Package safe wraps cleanup calls whose errors can only be logged
package safe

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

// Close closes closer and logs a failure. nil closers are ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Error("Failed to close",
			slog.String("type", fmt.Sprintf("%T", closer)),
			slog.Any("error", err))
	}
}

// CloseFunc runs a named cleanup function and logs a failure
func CloseFunc(ctx context.Context, name string, fn func() error) {
	if fn == nil {
		return
	}
	if err := fn(); err != nil {
		logging.From(ctx).Error("Failed to close", slog.String("resource", name), slog.Any("error", err))
	}
}

// Write writes data to w and logs a failure. Used for response bodies where
// the status is already sent.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil {
		return
	}
	if _, err := w.Write(data); err != nil {
		logging.From(ctx).Error("Failed to write", slog.Any("error", err))
	}
}
