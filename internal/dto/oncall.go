package dto

import "time"

// CurrentOnCallResponse answers "who is on call right now".
type CurrentOnCallResponse struct {
	LayerKey    string    `json:"layer_key"`
	LayerName   string    `json:"layer_name"`
	Person      string    `json:"person"`
	IsOverride  bool      `json:"is_override"`
	Reason      string    `json:"reason,omitempty"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// OffShiftResponse is returned when no layer's window covers the instant.
type OffShiftResponse struct {
	OnShift     bool      `json:"on_shift"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// UpcomingEntry is one future shift occurrence with its resolved assignee.
type UpcomingEntry struct {
	LayerKey string    `json:"layer_key"`
	Person   string    `json:"person"`
	Start    time.Time `json:"start"`
}

// UpcomingResponse lists the next shift occurrences across all layers.
type UpcomingResponse struct {
	Upcoming []UpcomingEntry `json:"upcoming"`
}
