package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/moderato/pkg/utils/logging"
)

func TestFrom(t *testing.T) {
	t.Run("falls back to default logger", func(t *testing.T) {
		gt.Value(t, logging.From(context.Background())).Equal(logging.Default())
	})

	t.Run("returns logger embedded in context", func(t *testing.T) {
		var buf bytes.Buffer
		logger := slog.New(slog.NewTextHandler(&buf, nil))
		ctx := logging.With(context.Background(), logger)

		logging.From(ctx).Info("hello", "guild_id", "G1")
		gt.String(t, buf.String()).Contains("guild_id=G1")
	})

	t.Run("SetDefault ignores nil", func(t *testing.T) {
		before := logging.Default()
		logging.SetDefault(nil)
		gt.Value(t, logging.Default()).Equal(before)
	})
}
