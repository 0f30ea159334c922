// Package resolver maps entity names found in source records onto canonical
// entity rows. It is the only place companies, drugs, indications, and
// targets are created, so every spelling of a name converges on one row.
package resolver

import (
	"context"
	"net/http"
	"strings"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/normalizers"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// EntityStore is the per-type persistence surface the resolver works
// against. The entity repositories implement it.
type EntityStore interface {
	EntityType() string
	FindByExternalKey(ctx context.Context, tx database.Tx, key string) (*models.EntityRef, error)
	FindByName(ctx context.Context, tx database.Tx, name string) ([]models.EntityRef, error)
	FindByNormalizedName(ctx context.Context, tx database.Tx, normalized string) ([]models.EntityRef, error)
	Create(ctx context.Context, tx database.Tx, lookup models.Lookup) (*models.EntityRef, error)
	SetExternalKey(ctx context.Context, tx database.Tx, id, key string) error
}

// SynonymStore records and looks up alternate names.
type SynonymStore interface {
	Find(ctx context.Context, tx database.Tx, entityType, name string) (*string, error)
	FindNormalized(ctx context.Context, tx database.Tx, entityType, normalized string) (*string, error)
	Create(ctx context.Context, tx database.Tx, entityType, entityID, name, normalized string) error
}

// Result is the outcome of one resolution.
type Result struct {
	ID      string
	Created bool
}

// Resolver resolves lookups through a fixed precedence chain:
// external key, exact name, synonym, normalized name, then create.
type Resolver struct {
	stores   map[string]EntityStore
	synonyms SynonymStore
	logger   ectologger.Logger
}

// New creates a resolver over the given entity stores.
func New(synonyms SynonymStore, logger ectologger.Logger, stores ...EntityStore) *Resolver {
	byType := make(map[string]EntityStore, len(stores))
	for _, s := range stores {
		byType[s.EntityType()] = s
	}
	return &Resolver{
		stores:   byType,
		synonyms: synonyms,
		logger:   logger,
	}
}

// Resolve returns the canonical entity ID for a lookup, creating the entity
// when nothing matches. Runs inside the caller's transaction so entities
// created earlier in the same chunk are visible.
func (r *Resolver) Resolve(ctx context.Context, tx database.Tx, lookup models.Lookup) (*Result, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.Resolver.Resolve")
	defer span.End()

	store, ok := r.stores[lookup.EntityType]
	if !ok {
		return nil, httperror.NewHTTPErrorf(http.StatusInternalServerError, "no store for entity type %q", lookup.EntityType)
	}

	lookup.Name = strings.TrimSpace(lookup.Name)
	if lookup.Name == "" {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "cannot resolve an empty name")
	}

	// 1. External key.
	if lookup.ExternalKey != "" {
		ref, err := store.FindByExternalKey(ctx, tx, lookup.ExternalKey)
		if err != nil {
			return nil, err
		}
		if ref != nil {
			return &Result{ID: ref.ID}, nil
		}
	}

	// 2. Exact canonical name.
	refs, err := store.FindByName(ctx, tx, lookup.Name)
	if err != nil {
		return nil, err
	}
	if ref := r.pick(ctx, lookup, refs); ref != nil {
		r.backfillKey(ctx, tx, store, lookup, ref)
		return &Result{ID: ref.ID}, nil
	}

	// 3. Synonym table.
	entityID, err := r.synonyms.Find(ctx, tx, lookup.EntityType, lookup.Name)
	if err != nil {
		return nil, err
	}
	if entityID != nil {
		return &Result{ID: *entityID}, nil
	}

	// 4. Normalized name, against both entities and synonyms. A hit records
	// the exact spelling as a synonym so the next run resolves it earlier.
	normalized := normalizers.ForEntity(lookup.EntityType)(lookup.Name)
	refs, err = store.FindByNormalizedName(ctx, tx, normalized)
	if err != nil {
		return nil, err
	}
	if ref := r.pick(ctx, lookup, refs); ref != nil {
		r.backfillKey(ctx, tx, store, lookup, ref)
		if err := r.synonyms.Create(ctx, tx, lookup.EntityType, ref.ID, lookup.Name, normalized); err != nil {
			return nil, err
		}
		return &Result{ID: ref.ID}, nil
	}

	entityID, err = r.synonyms.FindNormalized(ctx, tx, lookup.EntityType, normalized)
	if err != nil {
		return nil, err
	}
	if entityID != nil {
		if err := r.synonyms.Create(ctx, tx, lookup.EntityType, *entityID, lookup.Name, normalized); err != nil {
			return nil, err
		}
		return &Result{ID: *entityID}, nil
	}

	// 5. Nothing matched; mint the entity and register its name.
	ref, err := store.Create(ctx, tx, lookup)
	if err != nil {
		return nil, err
	}
	if err := r.synonyms.Create(ctx, tx, lookup.EntityType, ref.ID, lookup.Name, normalized); err != nil {
		return nil, err
	}

	return &Result{ID: ref.ID, Created: true}, nil
}

// pick chooses among name-match candidates. Ambiguity prefers a row that
// carries an external key and is logged, never fatal.
func (r *Resolver) pick(ctx context.Context, lookup models.Lookup, refs []models.EntityRef) *models.EntityRef {
	if len(refs) == 0 {
		return nil
	}

	chosen := &refs[0]
	if len(refs) > 1 {
		for i := range refs {
			if refs[i].ExternalKey != nil {
				chosen = &refs[i]
				break
			}
		}
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"entity_type": lookup.EntityType,
			"name":        lookup.Name,
			"candidates":  len(refs),
			"chosen_id":   chosen.ID,
		}).Warn("Ambiguous name match during resolution")
	}
	return chosen
}

// backfillKey attaches the lookup's external key to an entity resolved by
// name that doesn't have one yet.
func (r *Resolver) backfillKey(ctx context.Context, tx database.Tx, store EntityStore, lookup models.Lookup, ref *models.EntityRef) {
	if lookup.ExternalKey == "" || ref.ExternalKey != nil {
		return
	}
	if err := store.SetExternalKey(ctx, tx, ref.ID, lookup.ExternalKey); err != nil {
		r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"entity_type": lookup.EntityType, "id": ref.ID}).Warn("Failed to backfill external key")
	}
}
