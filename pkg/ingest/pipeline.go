package ingest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/pharmaintel/helix/pkg/events"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/normalize"
	"github.com/pharmaintel/helix/pkg/sources"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// ExecutionStore tracks ingestion runs.
type ExecutionStore interface {
	Create(ctx context.Context, source, executedBy string) (*models.Execution, error)
	Complete(ctx context.Context, id, status string, processed, skipped, failed int, errMessage *string) error
}

// CompanyTracker lists the CIKs of companies tracked for EDGAR ingestion.
type CompanyTracker interface {
	TrackedCIKs(ctx context.Context) (map[string]string, error)
}

// SearchRefresher rebuilds the search view after a successful run.
type SearchRefresher interface {
	Refresh(ctx context.Context) error
}

// Pipeline drives one ingestion run end to end: fetch, normalize, resolve,
// write, and finalize the execution record.
type Pipeline struct {
	executions ExecutionStore
	writer     *Writer
	ctgov      *sources.CTGovClient
	fda        *sources.FDAClient
	edgar      *sources.EdgarClient
	companies  CompanyTracker
	search     SearchRefresher
	emitter    *events.Emitter
	daysBack   int
	logger     ectologger.Logger
}

// NewPipeline creates an ingestion pipeline.
func NewPipeline(
	executions ExecutionStore,
	writer *Writer,
	ctgov *sources.CTGovClient,
	fda *sources.FDAClient,
	edgar *sources.EdgarClient,
	companies CompanyTracker,
	search SearchRefresher,
	emitter *events.Emitter,
	daysBack int,
	logger ectologger.Logger,
) *Pipeline {
	if daysBack < 1 {
		daysBack = 30
	}
	return &Pipeline{
		executions: executions,
		writer:     writer,
		ctgov:      ctgov,
		fda:        fda,
		edgar:      edgar,
		companies:  companies,
		search:     search,
		emitter:    emitter,
		daysBack:   daysBack,
		logger:     logger,
	}
}

// Start records a new execution and runs it in the background. The returned
// execution is already persisted with status running.
func (p *Pipeline) Start(ctx context.Context, source, triggeredBy string) (*models.Execution, error) {
	if !models.ValidSource(source) {
		return nil, httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown source %q", source)
	}

	exec, err := p.executions.Create(ctx, source, triggeredBy)
	if err != nil {
		return nil, err
	}

	// The run outlives the triggering request.
	go p.Execute(context.Background(), exec)

	return exec, nil
}

// Execute runs an already-created execution to completion and finalizes its
// record. Exposed so callers can also run synchronously.
func (p *Pipeline) Execute(ctx context.Context, exec *models.Execution) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Pipeline.Execute")
	defer span.End()

	log := p.logger.WithContext(ctx).WithFields(map[string]any{"execution_id": exec.ID, "source": exec.Source})
	log.Info("Ingestion run started")

	defer func() {
		if r := recover(); r != nil {
			msg := fmt.Sprintf("panic: %v", r)
			log.WithField("panic", msg).Error("Ingestion run panicked")
			p.finalize(ctx, exec, models.ExecutionStatusFailed, 0, 0, 0, &msg)
		}
	}()

	window := sources.LastDays(p.daysBack)

	var tot *runTotals
	var runErr error

	switch exec.Source {
	case models.SourceCTGov:
		tot, runErr = p.runCTGov(ctx, window)
	case models.SourceFDA:
		tot, runErr = p.runFDA(ctx, window)
	case models.SourceEdgar:
		tot, runErr = p.runEdgar(ctx, window)
	default:
		tot = &runTotals{}
		runErr = httperror.NewHTTPErrorf(http.StatusBadRequest, "unknown source %q", exec.Source)
	}

	if runErr != nil {
		msg := runErr.Error()
		log.WithError(runErr).WithFields(map[string]any{"written": tot.written, "skipped": tot.skipped, "failed": tot.failed}).Error("Ingestion run failed")
		p.finalize(ctx, exec, models.ExecutionStatusFailed, tot.written, tot.skipped, tot.failed, &msg)
		return
	}

	// Committed chunks are real even when a sibling chunk rolled back, so
	// their entities and search rows are published either way.
	for _, entity := range tot.created {
		_ = p.emitter.EmitEntityCreated(ctx, exec.Source, exec.ID, entity.EntityType, entity.EntityID, entity.Name)
	}

	if p.search != nil && tot.written > 0 {
		if err := p.search.Refresh(ctx); err != nil {
			log.WithError(err).Warn("Search view refresh failed after run")
		}
	}

	if len(tot.failures) > 0 {
		msg := chunkFailureMessage(tot.failures)
		log.WithFields(map[string]any{"written": tot.written, "skipped": tot.skipped, "failed": tot.failed, "error": msg}).Error("Ingestion run had failed chunks")
		p.finalize(ctx, exec, models.ExecutionStatusFailed, tot.written, tot.skipped, tot.failed, &msg)
		return
	}

	log.WithFields(map[string]any{"written": tot.written, "skipped": tot.skipped, "entities_created": len(tot.created)}).Info("Ingestion run succeeded")
	p.finalize(ctx, exec, models.ExecutionStatusSuccess, tot.written, tot.skipped, 0, nil)
}

// runTotals accumulates counts across pages. Skipped counts records the
// normalizers rejected; failed counts records lost to rolled-back chunks.
type runTotals struct {
	written  int
	skipped  int
	failed   int
	created  []CreatedEntity
	failures []ChunkFailure
}

func (t *runTotals) absorb(stats *WriteStats) {
	t.written += stats.Written
	t.failed += stats.Failed
	t.created = append(t.created, stats.Created...)
	t.failures = append(t.failures, stats.Failures...)
}

func chunkFailureMessage(failures []ChunkFailure) string {
	msg := fmt.Sprintf("chunk %d failed: %v", failures[0].Chunk, failures[0].Cause)
	if len(failures) > 1 {
		msg = fmt.Sprintf("%s (and %d more failed chunks)", msg, len(failures)-1)
	}
	return msg
}

func (p *Pipeline) finalize(ctx context.Context, exec *models.Execution, status string, processed, skipped, failed int, errMessage *string) {
	if err := p.executions.Complete(ctx, exec.ID, status, processed, skipped, failed, errMessage); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithField("execution_id", exec.ID).Error("Failed to finalize execution")
	}

	now := time.Now().UTC()
	exec.Status = status
	exec.CompletedAt = &now
	exec.RecordsProcessed = processed
	exec.RecordsSkipped = skipped
	exec.RecordsFailed = failed
	exec.Error = errMessage

	_ = p.emitter.EmitRunCompleted(ctx, exec)
}

func (p *Pipeline) runCTGov(ctx context.Context, window sources.Window) (*runTotals, error) {
	tot := &runTotals{}

	it := p.ctgov.Fetch(window)
	for {
		page, more, err := it.Next(ctx)
		if err != nil {
			return tot, err
		}

		records := make([]normalize.Record, 0, len(page))
		for _, study := range page {
			rec, reason := normalize.Trial(study)
			if reason != "" {
				tot.skipped++
				p.logSkip(ctx, models.SourceCTGov, reason)
				continue
			}
			records = append(records, *rec)
		}

		stats, err := p.writer.Write(ctx, records)
		tot.absorb(stats)
		if err != nil {
			return tot, err
		}

		if !more {
			return tot, nil
		}
	}
}

func (p *Pipeline) runFDA(ctx context.Context, window sources.Window) (*runTotals, error) {
	tot := &runTotals{}

	it := p.fda.Fetch(window)
	for {
		page, more, err := it.Next(ctx)
		if err != nil {
			return tot, err
		}

		var records []normalize.Record
		for _, app := range page {
			recs, reason := normalize.Approvals(app)
			if reason != "" {
				tot.skipped++
				p.logSkip(ctx, models.SourceFDA, reason)
				continue
			}
			records = append(records, recs...)
		}

		stats, err := p.writer.Write(ctx, records)
		tot.absorb(stats)
		if err != nil {
			return tot, err
		}

		if !more {
			return tot, nil
		}
	}
}

func (p *Pipeline) runEdgar(ctx context.Context, window sources.Window) (*runTotals, error) {
	tot := &runTotals{}

	tracked, err := p.companies.TrackedCIKs(ctx)
	if err != nil {
		return tot, err
	}

	it := p.edgar.Fetch(window)
	for {
		page, more, err := it.Next(ctx)
		if err != nil {
			return tot, err
		}

		records := make([]normalize.Record, 0, len(page))
		for _, entry := range page {
			rec, reason := normalize.Filing(entry, tracked)
			if reason != "" {
				tot.skipped++
				p.logSkip(ctx, models.SourceEdgar, reason)
				continue
			}
			records = append(records, *rec)
		}

		stats, err := p.writer.Write(ctx, records)
		tot.absorb(stats)
		if err != nil {
			return tot, err
		}

		if !more {
			return tot, nil
		}
	}
}

func (p *Pipeline) logSkip(ctx context.Context, source, reason string) {
	p.logger.WithContext(ctx).WithFields(map[string]any{"source": source, "reason": reason}).Debug("Skipped record")
}
