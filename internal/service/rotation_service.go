package service

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/models"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
)

// RotationService resolves who is on call for a layer at a given instant.
// It is a pure calculation over the layer definition and the override set;
// it holds no mutable state and is safe for concurrent use.
type RotationService struct {
	logger *zap.Logger
}

// NewRotationService builds the calculator.
func NewRotationService(logger *zap.Logger) *RotationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RotationService{logger: logger}
}

// Assign determines the assignee for layer at instant. Overrides take strict
// precedence over the computed rotation; they never advance the rotation
// sequence itself.
func (s *RotationService) Assign(layer *models.Layer, instant time.Time, overrides *models.OverrideSet) (models.Assignment, error) {
	if layer == nil {
		return models.Assignment{}, appErrors.Clone(appErrors.ErrLayerConfig, "nil layer")
	}
	if len(layer.Members) == 0 {
		return models.Assignment{}, appErrors.Clone(appErrors.ErrLayerConfig, fmt.Sprintf("layer %s has no members", layer.Key))
	}

	dateKey := layer.DateKey(instant)
	if ov, ok := overrides.Lookup(dateKey, layer.Key); ok {
		id := ov.ID
		return models.Assignment{
			Person:     ov.Person,
			IsOverride: true,
			Reason:     ov.Reason,
			OverrideID: &id,
		}, nil
	}

	if layer.RotationPeriodDays == 0 {
		return models.Assignment{Person: layer.Members[0]}, nil
	}

	days := s.daysSinceStart(layer, instant)
	cycle := rotationCycle(days, layer.RotationPeriodDays)
	index := cycle % len(layer.Members)
	return models.Assignment{Person: layer.Members[index]}, nil
}

// daysSinceStart counts rotation-relevant days between the layer's start date
// and the instant's date, both taken in the layer's own offset.
func (s *RotationService) daysSinceStart(layer *models.Layer, instant time.Time) int {
	loc := layer.Location()
	start := midnight(layer.Start.In(loc))
	date := midnight(instant.In(loc))

	switch layer.Kind {
	case models.KindWeekday:
		// Mon-Fri days in [start, date], inclusive of both ends.
		return countDays(start, date.AddDate(0, 0, 1), isWeekdayDay)
	case models.KindWeekend:
		// Sat/Sun days strictly before date.
		return countDays(start, date, isWeekendDay)
	default:
		return int(date.Sub(start).Hours() / 24)
	}
}

// rotationCycle maps a day count onto a rotation cycle index. Any count <= 0
// resolves to cycle 0: dates before the layer's start deliberately collapse
// onto the first cycle, matching the historical behaviour of the formula.
func rotationCycle(daysSinceStart, periodDays int) int {
	if daysSinceStart <= 0 || periodDays <= 0 {
		return 0
	}
	return (daysSinceStart - 1) / periodDays
}

// countDays counts calendar days in [from, to) accepted by the predicate.
// Both bounds must be local midnights in the same location.
func countDays(from, to time.Time, accept func(time.Weekday) bool) int {
	if to.Equal(from) {
		return 0
	}
	if to.Before(from) {
		// Negative spans keep their sign so callers can detect
		// before-start dates.
		return -countDays(to, from, accept)
	}
	n := 0
	for d := from; d.Before(to); d = d.AddDate(0, 0, 1) {
		if accept(d.Weekday()) {
			n++
		}
	}
	return n
}

func isWeekdayDay(d time.Weekday) bool {
	return d != time.Saturday && d != time.Sunday
}

func isWeekendDay(d time.Weekday) bool {
	return d == time.Saturday || d == time.Sunday
}

func midnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
