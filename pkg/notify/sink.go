package notify

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/models"
)

// Sink delivers a shift transition to an outbound channel. Implementations
// must honor the context deadline; the scheduler treats a transition as fired
// whether or not delivery succeeds.
type Sink interface {
	Deliver(ctx context.Context, transition models.ShiftTransition) error
}

// FormatSummary renders the human-readable transition message shared by the
// text-oriented sinks.
func FormatSummary(t models.ShiftTransition) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s: %s is on call until %s.",
		t.LayerName, t.CurrentAssignee, t.ShiftEnd.Format("Mon 02 Jan 15:04 MST"))
	if len(t.Upcoming) > 0 {
		b.WriteString(" Next up:")
		for i, up := range t.Upcoming {
			if i > 0 {
				b.WriteString(",")
			}
			fmt.Fprintf(&b, " %s (%s)", up.Person, up.Start.Format("Mon 15:04"))
		}
		b.WriteString(".")
	}
	for _, sp := range t.Spillover {
		fmt.Fprintf(&b, " After boundary: %s on %s at %s.", sp.Person, sp.LayerKey, sp.Start.Format("Mon 15:04"))
	}
	return b.String()
}

// LogSink writes transitions to the application log. Default sink for
// development environments.
type LogSink struct {
	logger *zap.Logger
}

// NewLogSink builds a log-backed sink.
func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

// Deliver implements Sink.
func (s *LogSink) Deliver(_ context.Context, t models.ShiftTransition) error {
	s.logger.Info("shift_transition",
		zap.String("layer", t.LayerKey),
		zap.String("assignee", t.CurrentAssignee),
		zap.Time("occurrence", t.Occurrence),
		zap.Time("shift_end", t.ShiftEnd),
		zap.String("summary", FormatSummary(t)),
	)
	return nil
}
