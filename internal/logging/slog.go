package logging

import (
	"context"
	"log/slog"
)

// SlogSink writes events to an slog.Logger. Intended for development,
// where seeing supervisor activity in the console matters more than
// durable storage.
type SlogSink struct {
	logger *slog.Logger
}

// NewSlogSink returns a Logger backed by logger.
func NewSlogSink(logger *slog.Logger) *SlogSink {
	return &SlogSink{logger: logger}
}

// Log writes event at Debug level, flattening its payload into attrs.
func (s *SlogSink) Log(event Event) {
	attrs := []slog.Attr{
		slog.String("category", event.Category.String()),
		slog.Time("ts", event.Timestamp),
	}

	switch {
	case event.StateChange != nil:
		attrs = append(attrs,
			slog.String("old_status", event.StateChange.OldStatus),
			slog.String("new_status", event.StateChange.NewStatus),
		)
		if event.StateChange.Reason != "" {
			attrs = append(attrs, slog.String("reason", event.StateChange.Reason))
		}
	case event.Attempt != nil:
		attrs = append(attrs,
			slog.Int("attempt", event.Attempt.Index),
			slog.String("phase", event.Attempt.Phase),
		)
		if event.Attempt.Err != "" {
			attrs = append(attrs, slog.String("err", event.Attempt.Err))
		}
		if event.Attempt.Outcome != "" {
			attrs = append(attrs, slog.String("outcome", event.Attempt.Outcome))
		}
	case event.Resource != nil:
		attrs = append(attrs,
			slog.String("slot", event.Resource.Slot),
			slog.String("archive", event.Resource.Archive),
		)
		if event.Resource.Err != "" {
			attrs = append(attrs, slog.String("err", event.Resource.Err))
		}
	case event.Incident != nil:
		attrs = append(attrs,
			slog.String("incident_reason", event.Incident.Reason),
			slog.String("detail", event.Incident.Detail),
		)
	case event.Network != nil:
		attrs = append(attrs,
			slog.String("source", event.Network.Source),
			slog.String("result", event.Network.Result),
		)
		if event.Network.Err != "" {
			attrs = append(attrs, slog.String("err", event.Network.Err))
		}
	}

	s.logger.LogAttrs(context.Background(), slog.LevelDebug, "session", attrs...)
}

var _ Logger = (*SlogSink)(nil)
