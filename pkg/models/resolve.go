package models

// EntityRef is a minimal view of an entity used during resolution.
// ExternalKey is the source-system identifier for the entity type
// (CIK for companies) when one is recorded.
type EntityRef struct {
	ID          string  `db:"id"`
	Name        string  `db:"name"`
	ExternalKey *string `db:"external_key"`
}

// Lookup is a resolution request for one entity reference found in a record.
type Lookup struct {
	EntityType  string
	Name        string
	ExternalKey string
}
