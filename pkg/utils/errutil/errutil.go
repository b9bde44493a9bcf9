package errutil

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

// Handle logs the error with its goerr context and reports it to Sentry when a
// client is configured. The error is returned unchanged.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	logger := logging.From(ctx)
	logger.Error(msg, attrs(err)...)
	capture(ctx, err)

	return err
}

// HandleHTTP logs the error and writes an HTTP error response. Only 5xx errors
// are reported to Sentry; the response body never includes internal details
// for them.
func HandleHTTP(ctx context.Context, w http.ResponseWriter, err error, statusCode int) {
	if err == nil {
		return
	}

	logger := logging.From(ctx)
	logger.Error("HTTP error", append([]any{slog.Int("status", statusCode)}, attrs(err)...)...)

	msg := err.Error()
	if statusCode >= http.StatusInternalServerError {
		capture(ctx, err)
		msg = http.StatusText(statusCode)
	}

	http.Error(w, msg, statusCode)
}

func attrs(err error) []any {
	var ge *goerr.Error
	if errors.As(err, &ge) {
		return []any{
			slog.String("error", err.Error()),
			slog.Any("values", ge.Values()),
			slog.Any("stack", ge.Stacks()),
		}
	}
	return []any{slog.String("error", err.Error())}
}

func capture(ctx context.Context, err error) {
	hub := sentry.GetHubFromContext(ctx)
	if hub == nil {
		hub = sentry.CurrentHub()
	}
	if hub.Client() == nil {
		return
	}

	hub.WithScope(func(scope *sentry.Scope) {
		var ge *goerr.Error
		if errors.As(err, &ge) {
			scope.SetContext("goerr", sentry.Context(ge.Values()))
		}
		hub.CaptureException(err)
	})
}
