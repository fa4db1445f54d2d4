package activity

import (
	"context"
	"log/slog"

	"github.com/rl1809/scan-sync/internal/core/domain"
)

// SlogSink writes activity as structured log lines.
type SlogSink struct {
	logger *slog.Logger
}

func NewSlogSink(logger *slog.Logger) *SlogSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &SlogSink{logger: logger.With("component", "activity")}
}

func (s *SlogSink) RecordActivity(ctx context.Context, e domain.ActivityEntry) error {
	s.logger.InfoContext(ctx, "inventory activity",
		"user_id", e.UserID,
		"action", string(e.Action),
		"barcode", e.Barcode,
		"zone", e.Zone,
		"quantity", e.Quantity,
		"is_new_item", e.IsNewItem,
		"at", e.At,
	)
	return nil
}
