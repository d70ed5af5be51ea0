package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/models"
	"github.com/noah-isme/oncall-api/internal/source"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
)

// transitionDispatcher hands a fired transition to the notification pipeline.
type transitionDispatcher interface {
	Dispatch(transition models.ShiftTransition) error
}

// transitionRecorder freezes the fired assignment into the historical ledger.
type transitionRecorder interface {
	RecordTransition(ctx context.Context, transition models.ShiftTransition, assignment models.Assignment) error
}

// fireGuard deduplicates firing across process restarts. FirstFire reports
// whether this process is the first to claim the occurrence.
type fireGuard interface {
	FirstFire(ctx context.Context, layerKey string, occurrence time.Time) bool
}

// SchedulerConfig tunes the scheduling loop.
type SchedulerConfig struct {
	TickInterval  time.Duration
	LookAhead     time.Duration
	NotifyLead    time.Duration
	UpcomingCount int
}

// SchedulerService owns the in-memory timer set. It is the single scheduling
// authority: arming and disarming is a check-then-act sequence keyed by
// (layerKey, occurrence), serialized behind one mutex. All of its state is
// transient and re-derivable from the schedule document plus the ledger.
type SchedulerService struct {
	store       *source.DocumentStore
	rotation    *RotationService
	occurrences *OccurrenceService
	dispatcher  transitionDispatcher
	recorder    transitionRecorder
	guard       fireGuard
	metrics     *MetricsService
	logger      *zap.Logger
	cfg         SchedulerConfig

	now       func() time.Time
	afterFunc func(d time.Duration, f func()) *time.Timer

	mu    sync.Mutex
	armed map[string]*armedOccurrence
	fired map[string]time.Time
}

type armedOccurrence struct {
	layer      models.Layer
	occurrence time.Time
	timer      *time.Timer
}

// NewSchedulerService wires the scheduler.
func NewSchedulerService(
	store *source.DocumentStore,
	rotation *RotationService,
	occurrences *OccurrenceService,
	dispatcher transitionDispatcher,
	recorder transitionRecorder,
	guard fireGuard,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg SchedulerConfig,
) *SchedulerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.TickInterval <= 0 {
		cfg.TickInterval = time.Minute
	}
	if cfg.LookAhead <= 0 {
		cfg.LookAhead = 24 * time.Hour
	}
	if cfg.NotifyLead < 0 {
		cfg.NotifyLead = 0
	}
	if cfg.UpcomingCount <= 0 {
		cfg.UpcomingCount = 3
	}
	return &SchedulerService{
		store:       store,
		rotation:    rotation,
		occurrences: occurrences,
		dispatcher:  dispatcher,
		recorder:    recorder,
		guard:       guard,
		metrics:     metrics,
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
		afterFunc:   time.AfterFunc,
		armed:       make(map[string]*armedOccurrence),
		fired:       make(map[string]time.Time),
	}
}

// Run drives the periodic re-evaluation loop until ctx is cancelled.
func (s *SchedulerService) Run(ctx context.Context) {
	s.Tick()
	ticker := time.NewTicker(s.cfg.TickInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			s.disarmAll()
			return
		case <-ticker.C:
			s.Tick()
		}
	}
}

// Tick re-evaluates every layer: stale timers are discarded and occurrences
// inside the look-ahead window are armed. Without a loaded schedule document
// the scheduler arms nothing.
func (s *SchedulerService) Tick() {
	now := s.now()
	s.metrics.ObserveSchedulerTick()

	doc, err := s.store.Current()
	if err != nil {
		s.logger.Warn("tick skipped: no schedule document")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.pruneLocked(now)

	for _, layer := range doc.Layers() {
		layer := layer
		occ, err := s.occurrences.Next(&layer, now)
		if err != nil {
			// Configuration error: the layer is skipped, the
			// scheduler stays live.
			s.logger.Warn("layer skipped for scheduling", zap.String("layer", layer.Key), zap.Error(err))
			continue
		}
		if occ.Sub(now) > s.cfg.LookAhead {
			continue
		}

		key := occurrenceKey(layer.Key, occ)
		if _, ok := s.armed[key]; ok {
			continue
		}
		if _, ok := s.fired[key]; ok {
			continue
		}

		delay := occ.Add(-s.cfg.NotifyLead).Sub(now)
		if delay < 0 {
			delay = 0
		}
		entry := &armedOccurrence{layer: layer, occurrence: occ}
		entry.timer = s.afterFunc(delay, func() { s.fire(layer, occ) })
		s.armed[key] = entry
		s.metrics.ObserveTimerArmed()
		s.logger.Info("occurrence armed",
			zap.String("layer", layer.Key),
			zap.Time("occurrence", occ),
			zap.Duration("fires_in", delay),
		)
	}
}

// pruneLocked drops armed timers whose occurrence already passed and forgets
// fired markers once they are old enough to never recur.
func (s *SchedulerService) pruneLocked(now time.Time) {
	for key, entry := range s.armed {
		if !entry.occurrence.After(now) {
			entry.timer.Stop()
			delete(s.armed, key)
			s.logger.Debug("stale timer discarded", zap.String("key", key))
		}
	}
	for key, occ := range s.fired {
		if now.Sub(occ) > 48*time.Hour {
			delete(s.fired, key)
		}
	}
}

func (s *SchedulerService) disarmAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for key, entry := range s.armed {
		entry.timer.Stop()
		delete(s.armed, key)
	}
}

// fire resolves the transition for one occurrence and hands it off. The
// armed→fired move is the idempotence barrier: a duplicate timer for an
// already-fired occurrence is a no-op.
func (s *SchedulerService) fire(layer models.Layer, occ time.Time) {
	key := occurrenceKey(layer.Key, occ)

	s.mu.Lock()
	if _, done := s.fired[key]; done {
		s.mu.Unlock()
		return
	}
	delete(s.armed, key)
	s.fired[key] = occ
	s.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if s.guard != nil && !s.guard.FirstFire(ctx, layer.Key, occ) {
		s.logger.Info("occurrence already fired elsewhere", zap.String("key", key))
		return
	}

	transition, assignment, err := s.buildTransition(&layer, occ)
	if err != nil {
		s.logger.Error("transition resolution failed", zap.String("layer", layer.Key), zap.Error(err))
		return
	}

	s.metrics.ObserveTransitionFired(layer.Key)
	if err := s.dispatcher.Dispatch(transition); err != nil {
		// Reported, not retried: the transition stays fired either way.
		s.logger.Error("transition dispatch failed", zap.String("layer", layer.Key), zap.Error(err))
	}
	if s.recorder != nil {
		if err := s.recorder.RecordTransition(ctx, transition, assignment); err != nil {
			s.logger.Error("ledger write failed", zap.String("layer", layer.Key), zap.Error(err))
		}
	}
}

func (s *SchedulerService) buildTransition(layer *models.Layer, occ time.Time) (models.ShiftTransition, models.Assignment, error) {
	assignment, err := s.rotation.Assign(layer, occ, s.store.Overrides())
	if err != nil {
		return models.ShiftTransition{}, models.Assignment{}, err
	}

	end := occ.Add(layer.Duration())
	upcoming := s.Upcoming(occ, s.cfg.UpcomingCount)

	transition := models.ShiftTransition{
		LayerKey:        layer.Key,
		LayerName:       layer.Name,
		CurrentAssignee: assignment.Person,
		Occurrence:      occ,
		ShiftEnd:        end,
	}
	for _, up := range upcoming {
		if up.Start.Before(end) {
			transition.Upcoming = append(transition.Upcoming, up)
		} else {
			transition.Spillover = append(transition.Spillover, up)
		}
	}
	return transition, assignment, nil
}

// ActiveLayerAt returns the layer whose window contains instant, or nil when
// no layer is active (a valid outcome, not an error). Weekend layers are
// evaluated first: their windows span multiple calendar days and take
// priority over weekday boundary math.
func (s *SchedulerService) ActiveLayerAt(instant time.Time) (*models.Layer, error) {
	doc, err := s.store.Current()
	if err != nil {
		return nil, err
	}

	for i := range doc.Weekend {
		if weekendWindowContains(&doc.Weekend[i], instant) {
			return &doc.Weekend[i], nil
		}
	}
	for i := range doc.Weekday {
		if doc.Weekday[i].ContainsClock(instant) {
			return &doc.Weekday[i], nil
		}
	}
	return nil, nil
}

// AssignmentAt resolves the active layer and its assignee at instant.
func (s *SchedulerService) AssignmentAt(instant time.Time) (*models.Layer, *models.Assignment, error) {
	layer, err := s.ActiveLayerAt(instant)
	if err != nil || layer == nil {
		return nil, nil, err
	}
	assignment, err := s.rotation.Assign(layer, instant, s.store.Overrides())
	if err != nil {
		return nil, nil, err
	}
	return layer, &assignment, nil
}

// weekendWindowContains tests the bounded Saturday-start window: the shift
// runs from the most recent Saturday's clock time for the layer's duration
// (typically into Monday morning). Instants outside that span, including
// mid-week, are inactive.
func weekendWindowContains(layer *models.Layer, instant time.Time) bool {
	loc := layer.Location()
	local := instant.In(loc)
	hour, minute := layer.StartClock()

	daysBack := (int(local.Weekday()) - int(time.Saturday) + 7) % 7
	satStart := time.Date(local.Year(), local.Month(), local.Day(), hour, minute, 0, 0, loc).
		AddDate(0, 0, -daysBack)
	if instant.Before(satStart) {
		satStart = satStart.AddDate(0, 0, -7)
	}
	end := satStart.Add(layer.Duration())
	return !instant.Before(satStart) && instant.Before(end)
}

// Upcoming enumerates candidate occurrences for all weekday layers over the
// coming days, keeps those strictly after now, and returns the first n in
// absolute start order. Sequencing across layers, not per layer, yields the
// real-world handover order.
func (s *SchedulerService) Upcoming(now time.Time, n int) []models.UpcomingAssignment {
	doc, err := s.store.Current()
	if err != nil {
		return nil
	}
	if n <= 0 {
		n = s.cfg.UpcomingCount
	}

	overrides := s.store.Overrides()
	var entries []models.UpcomingAssignment
	for i := range doc.Weekday {
		layer := &doc.Weekday[i]
		for _, start := range s.occurrences.Candidates(layer, now, occurrenceSearchBound) {
			assignment, err := s.rotation.Assign(layer, start, overrides)
			if err != nil {
				continue
			}
			entries = append(entries, models.UpcomingAssignment{
				LayerKey: layer.Key,
				Person:   assignment.Person,
				Start:    start,
			})
		}
	}

	sort.Slice(entries, func(i, j int) bool { return entries[i].Start.Before(entries[j].Start) })
	if len(entries) > n {
		entries = entries[:n]
	}
	return entries
}

// ArmedCount reports the current number of armed timers.
func (s *SchedulerService) ArmedCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.armed)
}

// Ready reports whether the scheduler has a document to work from.
func (s *SchedulerService) Ready() bool {
	_, err := s.store.Current()
	return !appErrors.Is(err, appErrors.ErrSourceUnavailable)
}

func occurrenceKey(layerKey string, occ time.Time) string {
	return layerKey + "|" + occ.UTC().Format(time.RFC3339)
}
