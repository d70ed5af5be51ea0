package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx/types"
	"github.com/mitchellh/hashstructure/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/models"
	"github.com/noah-isme/oncall-api/internal/source"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
)

var (
	dateKeyPattern  = regexp.MustCompile(`^\d{4}-\d{2}-\d{2}$`)
	monthKeyPattern = regexp.MustCompile(`^\d{4}-\d{2}$`)
)

type versionStore interface {
	Create(ctx context.Context, version *models.ScheduleVersion) error
	EffectiveFor(ctx context.Context, date string) (*models.ScheduleVersion, error)
	List(ctx context.Context, limit int) ([]models.ScheduleVersion, error)
	DeactivateBefore(ctx context.Context, cutoffDate string) (int64, error)
}

type assignmentStore interface {
	Insert(ctx context.Context, rec *models.HistoricalAssignment) (bool, error)
	Find(ctx context.Context, date, layerKey string) (*models.HistoricalAssignment, error)
	ListMonth(ctx context.Context, month string) ([]models.HistoricalAssignment, error)
	DeleteBefore(ctx context.Context, cutoffDate string) (int64, error)
}

type overrideStore interface {
	Upsert(ctx context.Context, month string, overrides []models.Override) error
	Get(ctx context.Context, month string) (*models.MonthlyOverrideSet, error)
	DeleteBefore(ctx context.Context, cutoffMonth string) (int64, error)
}

type metadataStore interface {
	Set(ctx context.Context, key, value string) error
	Get(ctx context.Context, key string) (string, error)
}

// LedgerConfig governs retention and automatic version capture.
type LedgerConfig struct {
	RetentionMonths int
	AutoVersion     bool
	CacheTTL        time.Duration
}

// LedgerService is the versioned historical store. It owns schedule version
// snapshots and frozen historical assignments; past assignments stay true
// even after later schedule edits.
type LedgerService struct {
	versions    versionStore
	assignments assignmentStore
	overrides   overrideStore
	metadata    metadataStore
	store       *source.DocumentStore
	rotation    *RotationService
	cache       *redis.Client
	metrics     *MetricsService
	validator   *validator.Validate
	logger      *zap.Logger
	cfg         LedgerConfig

	now func() time.Time
}

// NewLedgerService wires the ledger.
func NewLedgerService(
	versions versionStore,
	assignments assignmentStore,
	overrides overrideStore,
	metadata metadataStore,
	store *source.DocumentStore,
	rotation *RotationService,
	cache *redis.Client,
	metrics *MetricsService,
	logger *zap.Logger,
	cfg LedgerConfig,
) *LedgerService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.RetentionMonths <= 0 {
		cfg.RetentionMonths = 12
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = 5 * time.Minute
	}
	return &LedgerService{
		versions:    versions,
		assignments: assignments,
		overrides:   overrides,
		metadata:    metadata,
		store:       store,
		rotation:    rotation,
		cache:       cache,
		metrics:     metrics,
		validator:   validator.New(),
		logger:      logger,
		cfg:         cfg,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// HashDocument produces the order-independent content hash used for version
// change detection.
func HashDocument(doc *models.ScheduleDocument) (string, error) {
	h, err := hashstructure.Hash(doc, hashstructure.FormatV2, nil)
	if err != nil {
		return "", fmt.Errorf("hash schedule document: %w", err)
	}
	return fmt.Sprintf("%016x", h), nil
}

// EnsureVersion captures a new version of the live document when its content
// hash differs from the version currently effective for today; otherwise the
// existing version is reused. Returns the governing version and whether a new
// one was created.
func (s *LedgerService) EnsureVersion(ctx context.Context, actor, description string) (*models.ScheduleVersion, bool, error) {
	doc, err := s.store.Current()
	if err != nil {
		return nil, false, err
	}
	hash, err := HashDocument(doc)
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "hash schedule document")
	}

	today := s.now().Format("2006-01-02")
	current, err := s.versions.EffectiveFor(ctx, today)
	if err == nil && current.ContentHash == hash {
		return current, false, nil
	}
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolve current version")
	}

	created, err := s.appendVersion(ctx, doc, hash, today, actor, description)
	if err != nil {
		return nil, false, err
	}
	s.logger.Info("schedule version created",
		zap.Int64("version_id", created.ID),
		zap.String("effective_date", created.EffectiveDate),
		zap.String("hash", hash),
	)
	return created, true, nil
}

// CreateVersion unconditionally appends a snapshot of the live document,
// effective today.
func (s *LedgerService) CreateVersion(ctx context.Context, description, actor string) (*models.ScheduleVersion, error) {
	doc, err := s.store.Current()
	if err != nil {
		return nil, err
	}
	hash, err := HashDocument(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "hash schedule document")
	}
	return s.appendVersion(ctx, doc, hash, s.now().Format("2006-01-02"), actor, description)
}

func (s *LedgerService) appendVersion(ctx context.Context, doc *models.ScheduleDocument, hash, effectiveDate, actor, description string) (*models.ScheduleVersion, error) {
	payload, err := json.Marshal(doc)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "encode schedule document")
	}
	version := &models.ScheduleVersion{
		EffectiveDate: effectiveDate,
		ContentHash:   hash,
		Document:      types.JSONText(payload),
		Description:   description,
		CreatedBy:     actor,
	}
	if err := s.versions.Create(ctx, version); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "create schedule version")
	}
	return version, nil
}

// VersionFor returns the version governing the given date.
func (s *LedgerService) VersionFor(ctx context.Context, date string) (*models.ScheduleVersion, error) {
	if !dateKeyPattern.MatchString(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	version, err := s.versions.EffectiveFor(ctx, date)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("no schedule version effective for %s", date))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "resolve schedule version")
	}
	return version, nil
}

// ScheduleFor returns the version and decoded document governing a date.
func (s *LedgerService) ScheduleFor(ctx context.Context, date string) (*models.ScheduleVersion, *models.ScheduleDocument, error) {
	version, err := s.VersionFor(ctx, date)
	if err != nil {
		return nil, nil, err
	}
	var doc models.ScheduleDocument
	if err := json.Unmarshal(version.Document, &doc); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "decode versioned document")
	}
	return version, &doc, nil
}

// VersionHistory lists recent versions, newest first.
func (s *LedgerService) VersionHistory(ctx context.Context, limit int) ([]models.ScheduleVersion, error) {
	versions, err := s.versions.List(ctx, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list schedule versions")
	}
	return versions, nil
}

// AssignmentFor answers who was on call for date and layer. The first query
// for any (date, layer) resolves the assignment against the version frozen
// for that date and writes it as the permanent record; every later query
// returns that first write.
func (s *LedgerService) AssignmentFor(ctx context.Context, date, layerKey string) (*models.HistoricalAssignment, error) {
	if !dateKeyPattern.MatchString(date) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	if layerKey == "" {
		return nil, appErrors.Clone(appErrors.ErrValidation, "layer key required")
	}

	if rec := s.cachedAssignment(ctx, date, layerKey); rec != nil {
		return rec, nil
	}

	rec, err := s.assignments.Find(ctx, date, layerKey)
	if err == nil {
		s.cacheAssignment(ctx, rec)
		return rec, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "find historical assignment")
	}

	version, doc, err := s.ScheduleFor(ctx, date)
	if err != nil {
		return nil, err
	}
	layer, ok := doc.Layer(layerKey)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, fmt.Sprintf("layer %s not in schedule effective for %s", layerKey, date))
	}

	overrides, err := s.OverridesFor(ctx, date[:7])
	if err != nil {
		return nil, err
	}

	instant, err := layerInstant(layer, date)
	if err != nil {
		return nil, err
	}
	assignment, err := s.rotation.Assign(layer, instant, overrides)
	if err != nil {
		return nil, err
	}

	candidate := &models.HistoricalAssignment{
		ID:         uuid.NewString(),
		Date:       date,
		LayerKey:   layerKey,
		Person:     assignment.Person,
		VersionID:  version.ID,
		OverrideID: assignment.OverrideID,
	}
	inserted, err := s.assignments.Insert(ctx, candidate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "freeze historical assignment")
	}
	if inserted {
		s.metrics.ObserveLedgerWrite("insert")
	} else {
		// A concurrent writer got there first; their record wins.
		s.metrics.ObserveLedgerWrite("duplicate")
	}

	rec, err = s.assignments.Find(ctx, date, layerKey)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "read back historical assignment")
	}
	s.cacheAssignment(ctx, rec)
	return rec, nil
}

// RecordTransition freezes a fired occurrence's assignment. A repeat call
// for the same date and layer is a silent no-op.
func (s *LedgerService) RecordTransition(ctx context.Context, transition models.ShiftTransition, assignment models.Assignment) error {
	date := transition.Occurrence.Format("2006-01-02")

	var version *models.ScheduleVersion
	var err error
	if s.cfg.AutoVersion {
		version, _, err = s.EnsureVersion(ctx, "scheduler", "auto-captured on shift transition")
	} else {
		version, err = s.VersionFor(ctx, date)
	}
	if err != nil {
		return err
	}

	rec := &models.HistoricalAssignment{
		ID:         uuid.NewString(),
		Date:       date,
		LayerKey:   transition.LayerKey,
		Person:     assignment.Person,
		VersionID:  version.ID,
		OverrideID: assignment.OverrideID,
	}
	inserted, err := s.assignments.Insert(ctx, rec)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "record transition")
	}
	if inserted {
		s.metrics.ObserveLedgerWrite("insert")
	} else {
		s.metrics.ObserveLedgerWrite("duplicate")
	}
	return nil
}

// StoreMonthlyOverrides replaces the stored override set for a month.
func (s *LedgerService) StoreMonthlyOverrides(ctx context.Context, month string, overrides []models.Override) error {
	if !monthKeyPattern.MatchString(month) {
		return appErrors.Clone(appErrors.ErrValidation, "month must be YYYY-MM")
	}
	for i := range overrides {
		if err := s.validator.Struct(&overrides[i]); err != nil {
			return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid override entry")
		}
		if overrides[i].ID == "" {
			overrides[i].ID = uuid.NewString()
		}
		if overrides[i].CreatedAt.IsZero() {
			overrides[i].CreatedAt = s.now()
		}
	}
	if err := s.overrides.Upsert(ctx, month, overrides); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "store monthly overrides")
	}
	return nil
}

// MonthlyOverrides returns the stored set for a month, nil when absent.
func (s *LedgerService) MonthlyOverrides(ctx context.Context, month string) (*models.MonthlyOverrideSet, error) {
	if !monthKeyPattern.MatchString(month) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be YYYY-MM")
	}
	set, err := s.overrides.Get(ctx, month)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "load monthly overrides")
	}
	return set, nil
}

// OverridesFor returns the indexed override set recorded for a month; an
// empty set when none was stored.
func (s *LedgerService) OverridesFor(ctx context.Context, month string) (*models.OverrideSet, error) {
	set, err := s.MonthlyOverrides(ctx, month)
	if err != nil {
		return nil, err
	}
	return set.Set(), nil
}

// CleanupResult summarizes one retention pass.
type CleanupResult struct {
	AssignmentsDeleted  int64  `json:"assignments_deleted"`
	OverrideSetsDeleted int64  `json:"override_sets_deleted"`
	VersionsDeactivated int64  `json:"versions_deactivated"`
	CutoffDate          string `json:"cutoff_date"`
	RetentionMonthsUsed int    `json:"retention_months"`
}

// Cleanup deletes historical assignments and monthly overrides older than
// the retention cutoff and marks older schedule versions inactive. Versions
// are never deleted.
func (s *LedgerService) Cleanup(ctx context.Context, retentionMonths int) (*CleanupResult, error) {
	if retentionMonths <= 0 {
		retentionMonths = s.cfg.RetentionMonths
	}
	cutoff := s.now().AddDate(0, -retentionMonths, 0)
	cutoffMonth := cutoff.Format("2006-01")
	cutoffDate := cutoffMonth + "-01"

	deletedAssignments, err := s.assignments.DeleteBefore(ctx, cutoffDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "cleanup assignments")
	}
	deletedOverrides, err := s.overrides.DeleteBefore(ctx, cutoffMonth)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "cleanup overrides")
	}
	deactivated, err := s.versions.DeactivateBefore(ctx, cutoffDate)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "deactivate versions")
	}

	if err := s.metadata.Set(ctx, "last_cleanup_at", s.now().Format(time.RFC3339)); err != nil {
		s.logger.Warn("failed to record cleanup timestamp", zap.Error(err))
	}

	result := &CleanupResult{
		AssignmentsDeleted:  deletedAssignments,
		OverrideSetsDeleted: deletedOverrides,
		VersionsDeactivated: deactivated,
		CutoffDate:          cutoffDate,
		RetentionMonthsUsed: retentionMonths,
	}
	s.logger.Info("ledger cleanup finished",
		zap.Int64("assignments_deleted", result.AssignmentsDeleted),
		zap.Int64("override_sets_deleted", result.OverrideSetsDeleted),
		zap.Int64("versions_deactivated", result.VersionsDeactivated),
		zap.String("cutoff", cutoffDate),
	)
	return result, nil
}

// MonthAssignments lists the frozen assignments for a month.
func (s *LedgerService) MonthAssignments(ctx context.Context, month string) ([]models.HistoricalAssignment, error) {
	if !monthKeyPattern.MatchString(month) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "month must be YYYY-MM")
	}
	recs, err := s.assignments.ListMonth(ctx, month)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "list month assignments")
	}
	return recs, nil
}

// layerInstant pins a calendar date to the layer's daily start clock in the
// layer's own offset, the canonical instant for historical resolution.
func layerInstant(layer *models.Layer, date string) (time.Time, error) {
	day, err := time.ParseInLocation("2006-01-02", date, layer.Location())
	if err != nil {
		return time.Time{}, appErrors.Clone(appErrors.ErrValidation, "date must be YYYY-MM-DD")
	}
	hour, minute := layer.StartClock()
	return time.Date(day.Year(), day.Month(), day.Day(), hour, minute, 0, 0, layer.Location()), nil
}

func (s *LedgerService) cachedAssignment(ctx context.Context, date, layerKey string) *models.HistoricalAssignment {
	if s.cache == nil {
		return nil
	}
	raw, err := s.cache.Get(ctx, assignmentCacheKey(date, layerKey)).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			s.logger.Debug("assignment cache read failed", zap.Error(err))
		}
		s.metrics.RecordCacheOperation(false)
		return nil
	}
	var rec models.HistoricalAssignment
	if err := json.Unmarshal(raw, &rec); err != nil {
		s.metrics.RecordCacheOperation(false)
		return nil
	}
	s.metrics.RecordCacheOperation(true)
	return &rec
}

func (s *LedgerService) cacheAssignment(ctx context.Context, rec *models.HistoricalAssignment) {
	if s.cache == nil || rec == nil {
		return
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return
	}
	if err := s.cache.Set(ctx, assignmentCacheKey(rec.Date, rec.LayerKey), raw, s.cfg.CacheTTL).Err(); err != nil {
		s.logger.Debug("assignment cache write failed", zap.Error(err))
	}
}

func assignmentCacheKey(date, layerKey string) string {
	return fmt.Sprintf("oncall:assignment:%s:%s", date, layerKey)
}
