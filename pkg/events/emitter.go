// Package events handles event emission for ingestion lifecycle changes
package events

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/pharmaintel/helix/pkg/kafka"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// EntityCreatedEvent announces a newly minted canonical entity.
type EntityCreatedEvent struct {
	SchemaVersion string    `json:"schema_version"`
	EntityType    string    `json:"entity_type"`
	EntityID      string    `json:"entity_id"`
	Name          string    `json:"name"`
	Source        string    `json:"source"`
	ExecutionID   string    `json:"execution_id"`
	Timestamp     time.Time `json:"timestamp"`
}

// RunCompletedEvent announces a finished ingestion run.
type RunCompletedEvent struct {
	SchemaVersion    string     `json:"schema_version"`
	ExecutionID      string     `json:"execution_id"`
	Source           string     `json:"source"`
	Status           string     `json:"status"`
	StartedAt        time.Time  `json:"started_at"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	RecordsProcessed int        `json:"records_processed"`
	RecordsSkipped   int        `json:"records_skipped"`
	Error            *string    `json:"error,omitempty"`
}

// Emitter publishes ingestion events to Kafka. A nil producer disables
// emission silently so the service runs without a broker.
type Emitter struct {
	producer    *kafka.Producer
	runTopic    string
	entityTopic string
	logger      ectologger.Logger
}

// NewEmitter creates a new event emitter.
func NewEmitter(producer *kafka.Producer, runTopic, entityTopic string, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer:    producer,
		runTopic:    runTopic,
		entityTopic: entityTopic,
		logger:      logger,
	}
}

// Enabled reports whether events will actually be published.
func (e *Emitter) Enabled() bool {
	return e != nil && e.producer != nil
}

// EmitEntityCreated emits an entity.created event.
func (e *Emitter) EmitEntityCreated(ctx context.Context, source, executionID, entityType, entityID, name string) error {
	if !e.Enabled() {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitEntityCreated")
	defer span.End()

	event := &EntityCreatedEvent{
		SchemaVersion: SchemaVersion,
		EntityType:    entityType,
		EntityID:      entityID,
		Name:          name,
		Source:        source,
		ExecutionID:   executionID,
		Timestamp:     time.Now().UTC(),
	}

	if err := e.producer.Publish(ctx, e.entityTopic, "entity.created", entityID, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit entity.created event")
		return err
	}
	return nil
}

// EmitRunCompleted emits a run.completed event for a finished execution.
func (e *Emitter) EmitRunCompleted(ctx context.Context, exec *models.Execution) error {
	if !e.Enabled() {
		return nil
	}

	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitRunCompleted")
	defer span.End()

	event := &RunCompletedEvent{
		SchemaVersion:    SchemaVersion,
		ExecutionID:      exec.ID,
		Source:           exec.Source,
		Status:           exec.Status,
		StartedAt:        exec.StartedAt,
		CompletedAt:      exec.CompletedAt,
		RecordsProcessed: exec.RecordsProcessed,
		RecordsSkipped:   exec.RecordsSkipped,
		Error:            exec.Error,
	}

	if err := e.producer.Publish(ctx, e.runTopic, "run.completed", exec.ID, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).Error("Failed to emit run.completed event")
		return err
	}
	return nil
}
