package dto

// OverrideEntry is one manual assignment correction in a PUT payload.
type OverrideEntry struct {
	Date           string  `json:"date" binding:"required,datetime=2006-01-02"`
	LayerKey       string  `json:"layer_key" binding:"required,max=100"`
	Person         string  `json:"person" binding:"required,max=100"`
	Reason         string  `json:"reason" binding:"max=500"`
	StartTime      *string `json:"start_time"`
	EndTime        *string `json:"end_time"`
	OriginalPerson *string `json:"original_person"`
}

// PutOverridesRequest replaces the stored override set for a month.
type PutOverridesRequest struct {
	Overrides []OverrideEntry `json:"overrides" binding:"required,dive"`
}
