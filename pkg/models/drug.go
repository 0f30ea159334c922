package models

import "time"

type Drug struct {
	ID               string    `json:"id" db:"id"`
	Name             string    `json:"name" db:"name"`
	ActiveIngredient *string   `json:"active_ingredient,omitempty" db:"active_ingredient"`
	Mechanism        *string   `json:"mechanism,omitempty" db:"mechanism"`
	CompanyID        *string   `json:"company_id,omitempty" db:"company_id"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}

// Indication is a disease or condition a drug is developed for. MeshID and
// ICD10 are standardized vocabulary codes when known.
type Indication struct {
	ID          string    `json:"id" db:"id"`
	Name        string    `json:"name" db:"name"`
	MeshID      *string   `json:"mesh_id,omitempty" db:"mesh_id"`
	ICD10       *string   `json:"icd10,omitempty" db:"icd10"`
	Description *string   `json:"description,omitempty" db:"description"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

// Target is a molecular target (gene, protein, pathway).
type Target struct {
	ID        string    `json:"id" db:"id"`
	Name      string    `json:"name" db:"name"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}
