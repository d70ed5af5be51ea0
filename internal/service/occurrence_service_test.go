package service

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oncall-api/internal/models"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
)

func clockLayer(kind models.LayerKind, hour, minute int) *models.Layer {
	return &models.Layer{
		Key:                "layer1",
		Kind:               kind,
		Start:              time.Date(2025, 9, 1, hour, minute, 0, 0, ist),
		End:                time.Date(2025, 9, 1, hour, minute, 0, 0, ist),
		Hours:              9,
		RotationPeriodDays: 1,
		Members:            []string{"alice"},
	}
}

func TestNextWeekdaySameDay(t *testing.T) {
	svc := NewOccurrenceService(nil)
	layer := clockLayer(models.KindWeekday, 9, 0)

	// Wednesday 08:00, shift at 09:00 the same day.
	got, err := svc.Next(layer, at(2025, 9, 24, 8))
	require.NoError(t, err)
	assert.Equal(t, at(2025, 9, 24, 9), got)
}

func TestNextWeekdaySkipsWeekend(t *testing.T) {
	svc := NewOccurrenceService(nil)
	layer := clockLayer(models.KindWeekday, 21, 30)

	// Friday 22:00, past today's start. Saturday and Sunday are skipped for
	// an evening shift; Monday 21:30 is next.
	got, err := svc.Next(layer, time.Date(2025, 9, 26, 22, 0, 0, 0, ist))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 9, 29, 21, 30, 0, 0, ist), got)
}

func TestNextWeekdayAcceptsEarlySaturday(t *testing.T) {
	svc := NewOccurrenceService(nil)
	layer := clockLayer(models.KindWeekday, 3, 30)

	// A pre-dawn shift belongs to the previous night: the Saturday morning
	// candidate is the Friday-night handover and is accepted.
	got, err := svc.Next(layer, time.Date(2025, 9, 26, 4, 0, 0, 0, ist))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 9, 27, 3, 30, 0, 0, ist), got)
}

func TestNextWeekdayBoundedSearchFails(t *testing.T) {
	svc := NewOccurrenceService(nil)
	svc.workday = func(time.Weekday) bool { return false }
	layer := clockLayer(models.KindWeekday, 21, 30)

	_, err := svc.Next(layer, at(2025, 9, 24, 12))
	assert.True(t, appErrors.Is(err, appErrors.ErrNoOccurrence))
}

func TestNextWeekendComingSaturday(t *testing.T) {
	svc := NewOccurrenceService(nil)
	layer := clockLayer(models.KindWeekend, 10, 0)

	// Wednesday resolves to the coming Saturday's clock time.
	got, err := svc.Next(layer, at(2025, 9, 24, 12))
	require.NoError(t, err)
	assert.Equal(t, at(2025, 9, 27, 10), got)
}

func TestNextWeekendSameSaturdayBeforeClock(t *testing.T) {
	svc := NewOccurrenceService(nil)
	layer := clockLayer(models.KindWeekend, 10, 0)

	got, err := svc.Next(layer, at(2025, 9, 27, 8))
	require.NoError(t, err)
	assert.Equal(t, at(2025, 9, 27, 10), got)
}

func TestNextWeekendRollsAfterClock(t *testing.T) {
	svc := NewOccurrenceService(nil)
	layer := clockLayer(models.KindWeekend, 10, 0)

	got, err := svc.Next(layer, at(2025, 9, 27, 11))
	require.NoError(t, err)
	assert.Equal(t, at(2025, 10, 4, 10), got)
}

func TestCandidatesOrderedAndBounded(t *testing.T) {
	svc := NewOccurrenceService(nil)
	layer := clockLayer(models.KindWeekday, 10, 0)

	// From Thursday noon over seven days: Fri, Mon, Tue, Wed, Thu.
	got := svc.Candidates(layer, at(2025, 9, 25, 12), 7)
	require.Len(t, got, 5)
	assert.Equal(t, at(2025, 9, 26, 10), got[0])
	assert.Equal(t, at(2025, 9, 29, 10), got[1])
	for i := 1; i < len(got); i++ {
		assert.True(t, got[i].After(got[i-1]))
	}
}
