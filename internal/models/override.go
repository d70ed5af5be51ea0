package models

import "time"

// Override is a manual assignment correction for one date and layer.
type Override struct {
	ID             string     `db:"id" json:"id"`
	Date           string     `db:"date" json:"date" validate:"required,datetime=2006-01-02"`
	LayerKey       string     `db:"layer_key" json:"layer_key" validate:"required,max=100"`
	Person         string     `db:"person" json:"person" validate:"required,max=100"`
	Reason         string     `db:"reason" json:"reason,omitempty" validate:"max=500"`
	StartTime      *string    `db:"start_time" json:"start_time,omitempty"`
	EndTime        *string    `db:"end_time" json:"end_time,omitempty"`
	OriginalPerson *string    `db:"original_person" json:"original_person,omitempty"`
	CreatedAt      time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt      *time.Time `db:"updated_at" json:"updated_at,omitempty"`
}

// OverrideSet indexes overrides by calendar date (YYYY-MM-DD, in the layer's
// own offset) and layer key. This is the canonical structured format; legacy
// locale-keyed entries are normalized into it at load time.
type OverrideSet struct {
	byDate map[string]map[string]Override
}

// NewOverrideSet builds an empty set.
func NewOverrideSet() *OverrideSet {
	return &OverrideSet{byDate: make(map[string]map[string]Override)}
}

// Put stores an override, replacing any previous entry for the same date and
// layer.
func (s *OverrideSet) Put(ov Override) {
	if s.byDate == nil {
		s.byDate = make(map[string]map[string]Override)
	}
	layers, ok := s.byDate[ov.Date]
	if !ok {
		layers = make(map[string]Override)
		s.byDate[ov.Date] = layers
	}
	layers[ov.LayerKey] = ov
}

// Lookup returns the override for a date and layer, if any.
func (s *OverrideSet) Lookup(dateKey, layerKey string) (Override, bool) {
	if s == nil || s.byDate == nil {
		return Override{}, false
	}
	layers, ok := s.byDate[dateKey]
	if !ok {
		return Override{}, false
	}
	ov, ok := layers[layerKey]
	return ov, ok
}

// Len reports the number of stored overrides.
func (s *OverrideSet) Len() int {
	if s == nil {
		return 0
	}
	n := 0
	for _, layers := range s.byDate {
		n += len(layers)
	}
	return n
}

// All returns every override in the set, in unspecified order.
func (s *OverrideSet) All() []Override {
	if s == nil {
		return nil
	}
	out := make([]Override, 0, s.Len())
	for _, layers := range s.byDate {
		for _, ov := range layers {
			out = append(out, ov)
		}
	}
	return out
}

// MonthlyOverrideSet groups override data by calendar month (YYYY-MM) so that
// override history survives schedule version churn.
type MonthlyOverrideSet struct {
	Month     string     `db:"month" json:"month"`
	Overrides []Override `json:"overrides"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
	UpdatedAt time.Time  `db:"updated_at" json:"updated_at"`
}

// Set converts the stored slice into an indexed OverrideSet.
func (m *MonthlyOverrideSet) Set() *OverrideSet {
	set := NewOverrideSet()
	if m == nil {
		return set
	}
	for _, ov := range m.Overrides {
		set.Put(ov)
	}
	return set
}
