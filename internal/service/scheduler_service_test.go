package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oncall-api/internal/models"
	"github.com/noah-isme/oncall-api/internal/source"
)

type loaderStub struct {
	doc       *models.ScheduleDocument
	overrides *models.OverrideSet
	err       error
}

func (l *loaderStub) LoadSchedule() (*models.ScheduleDocument, error) {
	if l.err != nil {
		return nil, l.err
	}
	return l.doc, nil
}

func (l *loaderStub) LoadOverrides() (*models.OverrideSet, error) {
	if l.overrides == nil {
		return models.NewOverrideSet(), nil
	}
	return l.overrides, nil
}

type dispatcherStub struct {
	mu          sync.Mutex
	transitions []models.ShiftTransition
	err         error
}

func (d *dispatcherStub) Dispatch(transition models.ShiftTransition) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.transitions = append(d.transitions, transition)
	return d.err
}

func (d *dispatcherStub) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transitions)
}

type recorderStub struct {
	mu      sync.Mutex
	records []models.ShiftTransition
	err     error
}

func (r *recorderStub) RecordTransition(ctx context.Context, transition models.ShiftTransition, assignment models.Assignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, transition)
	return r.err
}

type guardStub struct {
	allow bool
}

func (g *guardStub) FirstFire(ctx context.Context, layerKey string, occurrence time.Time) bool {
	return g.allow
}

func newTestStore(t *testing.T, doc *models.ScheduleDocument, overrides *models.OverrideSet) *source.DocumentStore {
	t.Helper()
	store := source.NewDocumentStore(&loaderStub{doc: doc, overrides: overrides}, nil)
	require.NoError(t, store.Reload())
	return store
}

func testDocument() *models.ScheduleDocument {
	return &models.ScheduleDocument{
		Weekday: []models.Layer{*weekdayLayer("alice", "bob")},
		Weekend: []models.Layer{*weekendLayer("xavier", "yuki")},
	}
}

func newTestScheduler(t *testing.T, store *source.DocumentStore, dispatcher *dispatcherStub, recorder *recorderStub) *SchedulerService {
	t.Helper()
	svc := NewSchedulerService(
		store,
		NewRotationService(nil),
		NewOccurrenceService(nil),
		dispatcher,
		recorder,
		&guardStub{allow: true},
		nil,
		nil,
		SchedulerConfig{TickInterval: time.Minute, LookAhead: 24 * time.Hour, NotifyLead: 10 * time.Minute},
	)
	// Timers never fire on their own in tests; firing is driven explicitly.
	svc.afterFunc = func(d time.Duration, f func()) *time.Timer {
		return time.NewTimer(time.Hour)
	}
	return svc
}

func TestTickArmsWithinLookAhead(t *testing.T) {
	store := newTestStore(t, testDocument(), nil)
	svc := newTestScheduler(t, store, &dispatcherStub{}, &recorderStub{})
	// Wednesday 2025-09-24 06:00 local; weekday occurrence at 09:00 is inside
	// the look-ahead, the weekend occurrence on Saturday is not.
	svc.now = func() time.Time { return at(2025, 9, 24, 6) }

	svc.Tick()
	assert.Equal(t, 1, svc.ArmedCount())
}

func TestTickIsIdempotent(t *testing.T) {
	store := newTestStore(t, testDocument(), nil)
	svc := newTestScheduler(t, store, &dispatcherStub{}, &recorderStub{})
	svc.now = func() time.Time { return at(2025, 9, 24, 6) }

	svc.Tick()
	svc.Tick()
	svc.Tick()
	assert.Equal(t, 1, svc.ArmedCount())
}

func TestTickWithoutDocumentArmsNothing(t *testing.T) {
	store := source.NewDocumentStore(&loaderStub{err: assert.AnError}, nil)
	svc := newTestScheduler(t, store, &dispatcherStub{}, &recorderStub{})
	svc.now = func() time.Time { return at(2025, 9, 24, 6) }

	svc.Tick()
	assert.Zero(t, svc.ArmedCount())
}

func TestFireDispatchesAndRecordsOnce(t *testing.T) {
	dispatcher := &dispatcherStub{}
	recorder := &recorderStub{}
	store := newTestStore(t, testDocument(), nil)
	svc := newTestScheduler(t, store, dispatcher, recorder)
	svc.now = func() time.Time { return at(2025, 9, 24, 6) }

	layer := *weekdayLayer("alice", "bob")
	occ := at(2025, 9, 24, 10)

	svc.fire(layer, occ)
	svc.fire(layer, occ)

	require.Equal(t, 1, dispatcher.count())
	transition := dispatcher.transitions[0]
	assert.Equal(t, "layer1", transition.LayerKey)
	assert.Equal(t, "alice", transition.CurrentAssignee)
	assert.Equal(t, occ, transition.Occurrence)
	assert.Equal(t, occ.Add(9*time.Hour), transition.ShiftEnd)
	require.Len(t, recorder.records, 1)
}

func TestFireSuppressedByGuard(t *testing.T) {
	dispatcher := &dispatcherStub{}
	store := newTestStore(t, testDocument(), nil)
	svc := newTestScheduler(t, store, dispatcher, &recorderStub{})
	svc.guard = &guardStub{allow: false}
	svc.now = func() time.Time { return at(2025, 9, 24, 6) }

	svc.fire(*weekdayLayer("alice", "bob"), at(2025, 9, 24, 10))
	assert.Zero(t, dispatcher.count())
}

func TestFiredOccurrenceNotRearmed(t *testing.T) {
	dispatcher := &dispatcherStub{}
	store := newTestStore(t, testDocument(), nil)
	svc := newTestScheduler(t, store, dispatcher, &recorderStub{})
	svc.now = func() time.Time { return at(2025, 9, 24, 6) }

	svc.Tick()
	require.Equal(t, 1, svc.ArmedCount())

	svc.fire(*weekdayLayer("alice", "bob"), at(2025, 9, 24, 10))
	svc.Tick()
	assert.Zero(t, svc.ArmedCount())
	assert.Equal(t, 1, dispatcher.count())
}

func TestActiveLayerMidnightWindow(t *testing.T) {
	night := weekdayLayer("alice", "bob")
	night.Start = time.Date(2025, 9, 25, 21, 30, 0, 0, ist)
	night.End = time.Date(2025, 9, 26, 3, 30, 0, 0, ist)
	night.Hours = 6
	doc := &models.ScheduleDocument{Weekday: []models.Layer{*night}}
	store := newTestStore(t, doc, nil)
	svc := newTestScheduler(t, store, &dispatcherStub{}, &recorderStub{})

	active, err := svc.ActiveLayerAt(at(2025, 9, 25, 23))
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "layer1", active.Key)

	active, err = svc.ActiveLayerAt(at(2025, 9, 26, 1))
	require.NoError(t, err)
	require.NotNil(t, active)

	active, err = svc.ActiveLayerAt(at(2025, 9, 26, 10))
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestActiveLayerWeekendWindow(t *testing.T) {
	store := newTestStore(t, testDocument(), nil)
	svc := newTestScheduler(t, store, &dispatcherStub{}, &recorderStub{})

	// The 48-hour weekend window starts Saturday 2025-09-27 10:00 local.
	active, err := svc.ActiveLayerAt(at(2025, 9, 28, 12))
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, "weekend1", active.Key)

	// Tuesday midnight is 62.5 hours past the Saturday start: inactive.
	active, err = svc.ActiveLayerAt(at(2025, 9, 30, 0))
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestAssignmentAtOffShift(t *testing.T) {
	store := newTestStore(t, testDocument(), nil)
	svc := newTestScheduler(t, store, &dispatcherStub{}, &recorderStub{})

	// Wednesday 05:00 is before the weekday window and outside any weekend.
	layer, assignment, err := svc.AssignmentAt(at(2025, 9, 24, 5))
	require.NoError(t, err)
	assert.Nil(t, layer)
	assert.Nil(t, assignment)
}

func TestUpcomingOrderedAcrossDays(t *testing.T) {
	store := newTestStore(t, testDocument(), nil)
	svc := newTestScheduler(t, store, &dispatcherStub{}, &recorderStub{})

	entries := svc.Upcoming(at(2025, 9, 24, 12), 3)
	require.Len(t, entries, 3)
	assert.Equal(t, at(2025, 9, 25, 10), entries[0].Start)
	assert.Equal(t, "alice", entries[0].Person)
	assert.Equal(t, at(2025, 9, 26, 10), entries[1].Start)
	assert.Equal(t, "alice", entries[1].Person)
	assert.Equal(t, at(2025, 9, 29, 10), entries[2].Start)
	assert.Equal(t, "bob", entries[2].Person)
}

func TestRunDisarmsOnCancel(t *testing.T) {
	store := newTestStore(t, testDocument(), nil)
	svc := newTestScheduler(t, store, &dispatcherStub{}, &recorderStub{})
	svc.now = func() time.Time { return at(2025, 9, 24, 6) }

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		svc.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return svc.ArmedCount() == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	<-done
	assert.Zero(t, svc.ArmedCount())
}
