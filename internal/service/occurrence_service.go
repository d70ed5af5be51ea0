package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/models"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
)

// occurrenceSearchBound caps the forward day-by-day probe. Exceeding it means
// the layer is misconfigured; the search fails instead of looping.
const occurrenceSearchBound = 7

// earlyMorningHour marks shifts that logically belong to the previous night.
// A weekday layer starting before this local hour also accepts a Saturday
// candidate (Friday night into Saturday morning).
const earlyMorningHour = 10

// OccurrenceService computes the next concrete start instant of a layer's
// shift.
type OccurrenceService struct {
	logger *zap.Logger

	// workday classifies days eligible for weekday occurrences. Swappable
	// in tests to simulate pathological calendars.
	workday func(time.Weekday) bool
}

// NewOccurrenceService builds the finder.
func NewOccurrenceService(logger *zap.Logger) *OccurrenceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OccurrenceService{logger: logger, workday: isWeekdayDay}
}

// Next returns the next occurrence of layer strictly after from. It returns
// ErrNoOccurrence when the bounded search finds no eligible day.
func (s *OccurrenceService) Next(layer *models.Layer, from time.Time) (time.Time, error) {
	if layer == nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrLayerConfig, "nil layer")
	}

	switch layer.Kind {
	case models.KindWeekend:
		return s.nextWeekend(layer, from), nil
	default:
		return s.nextWeekday(layer, from)
	}
}

func (s *OccurrenceService) nextWeekday(layer *models.Layer, from time.Time) (time.Time, error) {
	loc := layer.Location()
	local := from.In(loc)
	hour, minute := layer.StartClock()

	today := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	if today.After(from) && s.workday(today.Weekday()) {
		return today, nil
	}

	for add := 1; add <= occurrenceSearchBound; add++ {
		candidate := today.AddDate(0, 0, add)
		wd := candidate.Weekday()
		if s.workday(wd) {
			return candidate, nil
		}
		if wd == time.Saturday && hour < earlyMorningHour {
			return candidate, nil
		}
	}

	s.logger.Warn("no occurrence within search bound",
		zap.String("layer", layer.Key),
		zap.Time("from", from),
	)
	return time.Time{}, appErrors.Clone(appErrors.ErrNoOccurrence, fmt.Sprintf("layer %s: no eligible day within %d days", layer.Key, occurrenceSearchBound))
}

// Candidates enumerates every eligible weekday start instant strictly after
// from within the next days calendar days, in chronological order. The same
// eligibility rules apply as in Next, including the early-morning Saturday
// acceptance.
func (s *OccurrenceService) Candidates(layer *models.Layer, from time.Time, days int) []time.Time {
	loc := layer.Location()
	local := from.In(loc)
	hour, minute := layer.StartClock()

	base := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc)
	var out []time.Time
	for add := 0; add <= days; add++ {
		candidate := base.AddDate(0, 0, add)
		if !candidate.After(from) {
			continue
		}
		wd := candidate.Weekday()
		if s.workday(wd) || (wd == time.Saturday && hour < earlyMorningHour) {
			out = append(out, candidate)
		}
	}
	return out
}

// nextWeekend returns the coming Saturday at the layer's clock time. When
// from already falls on the weekend before the shift's clock time, the same
// weekend's Saturday is kept.
func (s *OccurrenceService) nextWeekend(layer *models.Layer, from time.Time) time.Time {
	loc := layer.Location()
	local := from.In(loc)
	hour, minute := layer.StartClock()

	daysUntilSaturday := (int(time.Saturday) - int(local.Weekday()) + 7) % 7
	candidate := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc).
		AddDate(0, 0, daysUntilSaturday)
	if !candidate.After(from) {
		candidate = candidate.AddDate(0, 0, 7)
	}
	return candidate
}
