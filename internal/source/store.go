package source

import (
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/noah-isme/oncall-api/internal/models"
	appErrors "github.com/noah-isme/oncall-api/pkg/errors"
)

// Loader produces fresh schedule and override documents on demand.
type Loader interface {
	LoadSchedule() (*models.ScheduleDocument, error)
	LoadOverrides() (*models.OverrideSet, error)
}

// DocumentStore holds the live schedule document behind an atomic pointer.
// Reload swaps in a complete new document or keeps the previous one on
// failure; readers always observe a consistent snapshot.
type DocumentStore struct {
	loader    Loader
	logger    *zap.Logger
	document  atomic.Pointer[models.ScheduleDocument]
	overrides atomic.Pointer[models.OverrideSet]
}

// NewDocumentStore wires a store around the given loader.
func NewDocumentStore(loader Loader, logger *zap.Logger) *DocumentStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DocumentStore{loader: loader, logger: logger}
}

// Reload fetches both documents from the source. On failure the previously
// loaded snapshot stays live and the error is returned for reporting.
func (s *DocumentStore) Reload() error {
	doc, err := s.loader.LoadSchedule()
	if err != nil {
		s.logger.Error("schedule reload failed, keeping previous document", zap.Error(err))
		return err
	}

	overrides, err := s.loader.LoadOverrides()
	if err != nil {
		s.logger.Error("override reload failed, keeping previous set", zap.Error(err))
		return err
	}

	s.document.Store(doc)
	s.overrides.Store(overrides)
	s.logger.Info("schedule document reloaded",
		zap.Int("weekday_layers", len(doc.Weekday)),
		zap.Int("weekend_layers", len(doc.Weekend)),
		zap.Int("overrides", overrides.Len()),
	)
	return nil
}

// Current returns the live document. The error case means no document was
// ever loaded; callers must refuse to schedule rather than guess.
func (s *DocumentStore) Current() (*models.ScheduleDocument, error) {
	doc := s.document.Load()
	if doc == nil {
		return nil, appErrors.Clone(appErrors.ErrSourceUnavailable, "no schedule document loaded")
	}
	return doc, nil
}

// Overrides returns the live override set; an empty set when none loaded.
func (s *DocumentStore) Overrides() *models.OverrideSet {
	set := s.overrides.Load()
	if set == nil {
		return models.NewOverrideSet()
	}
	return set
}
