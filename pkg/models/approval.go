package models

import "time"

// Approval is a regulatory approval event for a drug application.
type Approval struct {
	ID                string    `json:"id" db:"id"`
	DrugID            string    `json:"drug_id" db:"drug_id"`
	CompanyID         *string   `json:"company_id,omitempty" db:"company_id"`
	IndicationID      *string   `json:"indication_id,omitempty" db:"indication_id"`
	Agency            string    `json:"agency" db:"agency"`
	ApplicationNumber string    `json:"application_number" db:"application_number"`
	ApprovalDate      time.Time `json:"approval_date" db:"approval_date"`
	DocumentURL       *string   `json:"document_url,omitempty" db:"document_url"`
	CreatedAt         time.Time `json:"created_at" db:"created_at"`
}
