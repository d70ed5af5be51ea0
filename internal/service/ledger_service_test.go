package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/oncall-api/internal/models"
	"github.com/noah-isme/oncall-api/internal/source"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
)

type versionStoreStub struct {
	versions []models.ScheduleVersion
	nextID   int64
}

func (s *versionStoreStub) Create(ctx context.Context, version *models.ScheduleVersion) error {
	s.nextID++
	version.ID = s.nextID
	s.versions = append(s.versions, *version)
	return nil
}

func (s *versionStoreStub) EffectiveFor(ctx context.Context, date string) (*models.ScheduleVersion, error) {
	var best *models.ScheduleVersion
	for i := range s.versions {
		v := &s.versions[i]
		if v.EffectiveDate > date {
			continue
		}
		if best == nil || v.EffectiveDate > best.EffectiveDate || (v.EffectiveDate == best.EffectiveDate && v.ID > best.ID) {
			best = v
		}
	}
	if best == nil {
		return nil, sql.ErrNoRows
	}
	out := *best
	return &out, nil
}

func (s *versionStoreStub) List(ctx context.Context, limit int) ([]models.ScheduleVersion, error) {
	return s.versions, nil
}

func (s *versionStoreStub) DeactivateBefore(ctx context.Context, cutoffDate string) (int64, error) {
	var n int64
	for i := range s.versions {
		if s.versions[i].EffectiveDate < cutoffDate && s.versions[i].Active {
			s.versions[i].Active = false
			n++
		}
	}
	return n, nil
}

type assignmentStoreStub struct {
	recs    map[string]models.HistoricalAssignment
	inserts int
}

func newAssignmentStoreStub() *assignmentStoreStub {
	return &assignmentStoreStub{recs: make(map[string]models.HistoricalAssignment)}
}

func (s *assignmentStoreStub) key(date, layerKey string) string { return date + "|" + layerKey }

func (s *assignmentStoreStub) Insert(ctx context.Context, rec *models.HistoricalAssignment) (bool, error) {
	k := s.key(rec.Date, rec.LayerKey)
	if _, ok := s.recs[k]; ok {
		return false, nil
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	s.recs[k] = *rec
	s.inserts++
	return true, nil
}

func (s *assignmentStoreStub) Find(ctx context.Context, date, layerKey string) (*models.HistoricalAssignment, error) {
	rec, ok := s.recs[s.key(date, layerKey)]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &rec, nil
}

func (s *assignmentStoreStub) ListMonth(ctx context.Context, month string) ([]models.HistoricalAssignment, error) {
	var out []models.HistoricalAssignment
	for _, rec := range s.recs {
		if rec.Date[:7] == month {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *assignmentStoreStub) DeleteBefore(ctx context.Context, cutoffDate string) (int64, error) {
	var n int64
	for k, rec := range s.recs {
		if rec.Date < cutoffDate {
			delete(s.recs, k)
			n++
		}
	}
	return n, nil
}

type overrideStoreStub struct {
	sets map[string]*models.MonthlyOverrideSet
}

func newOverrideStoreStub() *overrideStoreStub {
	return &overrideStoreStub{sets: make(map[string]*models.MonthlyOverrideSet)}
}

func (s *overrideStoreStub) Upsert(ctx context.Context, month string, overrides []models.Override) error {
	s.sets[month] = &models.MonthlyOverrideSet{Month: month, Overrides: overrides}
	return nil
}

func (s *overrideStoreStub) Get(ctx context.Context, month string) (*models.MonthlyOverrideSet, error) {
	set, ok := s.sets[month]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return set, nil
}

func (s *overrideStoreStub) DeleteBefore(ctx context.Context, cutoffMonth string) (int64, error) {
	var n int64
	for month := range s.sets {
		if month < cutoffMonth {
			delete(s.sets, month)
			n++
		}
	}
	return n, nil
}

type metadataStoreStub struct {
	values map[string]string
}

func newMetadataStoreStub() *metadataStoreStub {
	return &metadataStoreStub{values: make(map[string]string)}
}

func (s *metadataStoreStub) Set(ctx context.Context, key, value string) error {
	s.values[key] = value
	return nil
}

func (s *metadataStoreStub) Get(ctx context.Context, key string) (string, error) {
	v, ok := s.values[key]
	if !ok {
		return "", sql.ErrNoRows
	}
	return v, nil
}

type ledgerFixture struct {
	svc         *LedgerService
	versions    *versionStoreStub
	assignments *assignmentStoreStub
	overrides   *overrideStoreStub
	metadata    *metadataStoreStub
	loader      *loaderStub
	store       *source.DocumentStore
}

func newLedgerFixture(t *testing.T) *ledgerFixture {
	t.Helper()
	f := &ledgerFixture{
		versions:    &versionStoreStub{},
		assignments: newAssignmentStoreStub(),
		overrides:   newOverrideStoreStub(),
		metadata:    newMetadataStoreStub(),
		loader:      &loaderStub{doc: testDocument()},
	}
	f.store = source.NewDocumentStore(f.loader, nil)
	require.NoError(t, f.store.Reload())
	f.svc = NewLedgerService(
		f.versions,
		f.assignments,
		f.overrides,
		f.metadata,
		f.store,
		NewRotationService(nil),
		nil,
		nil,
		nil,
		LedgerConfig{RetentionMonths: 12, AutoVersion: true},
	)
	f.svc.now = func() time.Time { return time.Date(2025, 9, 29, 12, 0, 0, 0, time.UTC) }
	return f
}

func TestEnsureVersionCreatesThenReuses(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	v1, created, err := f.svc.EnsureVersion(ctx, "test", "initial")
	require.NoError(t, err)
	assert.True(t, created)
	assert.Equal(t, "2025-09-29", v1.EffectiveDate)
	assert.NotEmpty(t, v1.ContentHash)

	v2, created, err := f.svc.EnsureVersion(ctx, "test", "repeat")
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, v1.ID, v2.ID)
	require.Len(t, f.versions.versions, 1)
}

func TestHashDocumentOrderIndependent(t *testing.T) {
	a := testDocument()
	b := testDocument()
	b.Weekday[0].Members = append([]string(nil), a.Weekday[0].Members...)

	ha, err := HashDocument(a)
	require.NoError(t, err)
	hb, err := HashDocument(b)
	require.NoError(t, err)
	assert.Equal(t, ha, hb)

	b.Weekday[0].Members = []string{"someone", "else"}
	hc, err := HashDocument(b)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hc)

	// Shifting a layer's clock must also register as a content change.
	c := testDocument()
	c.Weekday[0].Start = c.Weekday[0].Start.Add(time.Hour)
	hd, err := HashDocument(c)
	require.NoError(t, err)
	assert.NotEqual(t, ha, hd)
}

func TestAssignmentForFreezesOnFirstQuery(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.EnsureVersion(ctx, "test", "initial")
	require.NoError(t, err)

	rec, err := f.svc.AssignmentFor(ctx, "2025-09-29", "layer1")
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Person)
	assert.Equal(t, int64(1), rec.VersionID)
	assert.Equal(t, 1, f.assignments.inserts)

	again, err := f.svc.AssignmentFor(ctx, "2025-09-29", "layer1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, again.ID)
	assert.Equal(t, 1, f.assignments.inserts)
}

func TestAssignmentForHonorsStoredOverrides(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.EnsureVersion(ctx, "test", "initial")
	require.NoError(t, err)

	require.NoError(t, f.svc.StoreMonthlyOverrides(ctx, "2025-09", []models.Override{
		{Date: "2025-09-29", LayerKey: "layer1", Person: "carol", Reason: "swap"},
	}))

	rec, err := f.svc.AssignmentFor(ctx, "2025-09-29", "layer1")
	require.NoError(t, err)
	assert.Equal(t, "carol", rec.Person)
	assert.NotNil(t, rec.OverrideID)
}

func TestAssignmentForUnknownLayer(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.EnsureVersion(ctx, "test", "initial")
	require.NoError(t, err)

	_, err = f.svc.AssignmentFor(ctx, "2025-09-29", "nope")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestAssignmentForWithoutAnyVersion(t *testing.T) {
	f := newLedgerFixture(t)

	_, err := f.svc.AssignmentFor(context.Background(), "2025-09-29", "layer1")
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestRecordTransitionIsIdempotent(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	transition := models.ShiftTransition{
		LayerKey:   "layer1",
		Occurrence: time.Date(2025, 9, 29, 10, 0, 0, 0, time.UTC),
	}
	assignment := models.Assignment{Person: "bob"}

	require.NoError(t, f.svc.RecordTransition(ctx, transition, assignment))
	require.NoError(t, f.svc.RecordTransition(ctx, transition, assignment))
	assert.Equal(t, 1, f.assignments.inserts)

	rec, err := f.svc.AssignmentFor(ctx, "2025-09-29", "layer1")
	require.NoError(t, err)
	assert.Equal(t, "bob", rec.Person)
}

func TestFrozenAssignmentSurvivesScheduleChange(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.EnsureVersion(ctx, "test", "initial")
	require.NoError(t, err)

	rec, err := f.svc.AssignmentFor(ctx, "2025-09-29", "layer1")
	require.NoError(t, err)
	frozen := rec.Person

	// A later roster change must not rewrite history.
	changed := testDocument()
	changed.Weekday[0].Members = []string{"zoe"}
	f.loader.doc = changed
	require.NoError(t, f.store.Reload())
	_, _, err = f.svc.EnsureVersion(ctx, "test", "roster change")
	require.NoError(t, err)

	again, err := f.svc.AssignmentFor(ctx, "2025-09-29", "layer1")
	require.NoError(t, err)
	assert.Equal(t, frozen, again.Person)
}

func TestCleanupDeletesBeyondRetention(t *testing.T) {
	f := newLedgerFixture(t)
	ctx := context.Background()

	_, _, err := f.svc.EnsureVersion(ctx, "test", "initial")
	require.NoError(t, err)

	old := &models.HistoricalAssignment{ID: "a1", Date: "2024-01-15", LayerKey: "layer1", Person: "alice", VersionID: 1}
	recent := &models.HistoricalAssignment{ID: "a2", Date: "2025-09-01", LayerKey: "layer1", Person: "bob", VersionID: 1}
	_, err = f.assignments.Insert(ctx, old)
	require.NoError(t, err)
	_, err = f.assignments.Insert(ctx, recent)
	require.NoError(t, err)
	require.NoError(t, f.overrides.Upsert(ctx, "2024-01", nil))
	require.NoError(t, f.overrides.Upsert(ctx, "2025-09", nil))

	result, err := f.svc.Cleanup(ctx, 12)
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.AssignmentsDeleted)
	assert.Equal(t, int64(1), result.OverrideSetsDeleted)
	assert.Equal(t, "2024-09-01", result.CutoffDate)

	_, err = f.assignments.Find(ctx, "2025-09-01", "layer1")
	assert.NoError(t, err)
	_, ok := f.metadata.values["last_cleanup_at"]
	assert.True(t, ok)
}
