package models

import "time"

// Assignment is the outcome of resolving who is on call for a layer at an
// instant.
type Assignment struct {
	Person     string  `json:"person"`
	IsOverride bool    `json:"is_override"`
	Reason     string  `json:"reason,omitempty"`
	OverrideID *string `json:"override_id,omitempty"`
}

// UpcomingAssignment is one entry of the cross-layer handover sequence.
type UpcomingAssignment struct {
	LayerKey string    `json:"layer_key"`
	Person   string    `json:"person"`
	Start    time.Time `json:"start"`
}

// ShiftTransition is the value handed to the Notification Sink when a shift
// occurrence fires. At most one transition is emitted per real-world
// occurrence.
type ShiftTransition struct {
	LayerKey        string               `json:"layer_key"`
	LayerName       string               `json:"layer_name"`
	CurrentAssignee string               `json:"current_assignee"`
	Occurrence      time.Time            `json:"occurrence"`
	ShiftEnd        time.Time            `json:"shift_end"`
	Upcoming        []UpcomingAssignment `json:"upcoming,omitempty"`
	Spillover       []UpcomingAssignment `json:"spillover,omitempty"`
}
