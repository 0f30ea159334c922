package models

import "time"

// Entity types tracked in the synonyms table.
const (
	EntityTypeCompany    = "company"
	EntityTypeDrug       = "drug"
	EntityTypeIndication = "indication"
	EntityTypeTarget     = "target"
)

// Synonym maps an alternate name to a canonical entity. The (entity_type, name)
// pair is unique so a name can only ever resolve to one entity of a given type.
type Synonym struct {
	ID         string    `json:"id" db:"id"`
	EntityType string    `json:"entity_type" db:"entity_type"`
	EntityID   string    `json:"entity_id" db:"entity_id"`
	Name       string    `json:"name" db:"name"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
