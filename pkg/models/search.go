package models

// SearchResult is one row from the search materialized view.
type SearchResult struct {
	EntityType string  `json:"entity_type" db:"entity_type"`
	EntityID   string  `json:"entity_id" db:"entity_id"`
	Name       string  `json:"name" db:"name"`
	Detail     *string `json:"detail,omitempty" db:"detail"`
	Rank       float64 `json:"rank" db:"rank"`
}

// IndicationFunnel summarizes the development pipeline for one indication.
type IndicationFunnel struct {
	Indication Indication   `json:"indication"`
	PhaseCount []PhaseCount `json:"phase_counts"`
	LateStage  []Trial      `json:"late_stage_trials"`
}

// PhaseCount is the number of active trials at one phase.
type PhaseCount struct {
	Phase string `json:"phase" db:"phase"`
	Count int    `json:"count" db:"count"`
}
