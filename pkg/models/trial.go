package models

import "time"

// Trial phases as stored. Combined phases are joined with a slash.
const (
	PhaseOne      = "1"
	PhaseOneTwo   = "1/2"
	PhaseTwo      = "2"
	PhaseTwoThree = "2/3"
	PhaseThree    = "3"
	PhaseFour     = "4"
	PhaseNA       = "N/A"
)

// Trial is a clinical trial keyed by its ClinicalTrials.gov NCT number.
type Trial struct {
	ID             string     `json:"id" db:"id"`
	Title          string     `json:"title" db:"title"`
	Phase          string     `json:"phase" db:"phase"`
	Status         string     `json:"status" db:"status"`
	DrugID         *string    `json:"drug_id,omitempty" db:"drug_id"`
	CompanyID      *string    `json:"company_id,omitempty" db:"company_id"`
	Enrollment     *int       `json:"enrollment,omitempty" db:"enrollment"`
	StartDate      *time.Time `json:"start_date,omitempty" db:"start_date"`
	CompletionDate *time.Time `json:"completion_date,omitempty" db:"completion_date"`
	URL            string     `json:"url" db:"url"`
	Source         string     `json:"source" db:"source"`
	LastUpdated    *time.Time `json:"last_updated,omitempty" db:"last_updated"`
	FetchedAt      time.Time  `json:"fetched_at" db:"fetched_at"`
	UpdatedAt      time.Time  `json:"updated_at" db:"updated_at"`
}
