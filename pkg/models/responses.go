package models

// RunRequest is the optional body for triggering an ingestion run.
type RunRequest struct {
	TriggeredBy string `json:"triggered_by" validate:"omitempty,min=2,max=120"`
}

// ExecutionResponse wraps a single execution.
type ExecutionResponse struct {
	Execution Execution `json:"execution"`
}

// ExecutionListResponse is the ingestion history payload.
type ExecutionListResponse struct {
	Items []Execution `json:"items"`
	Limit int         `json:"limit"`
}

// SearchResponse is the search endpoint payload.
type SearchResponse struct {
	Query   string         `json:"query"`
	Results []SearchResult `json:"results"`
}
