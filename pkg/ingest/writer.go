package ingest

import (
	"context"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/normalize"
	"github.com/pharmaintel/helix/pkg/resolver"
	"github.com/pharmaintel/helix/pkg/tracing"
)

// TrialStore persists trials and their indication links.
type TrialStore interface {
	Upsert(ctx context.Context, tx database.Tx, trial models.Trial) (bool, error)
	LinkIndication(ctx context.Context, tx database.Tx, trialID, indicationID string) error
	UnlinkIndicationsExcept(ctx context.Context, tx database.Tx, trialID string, keep []string) error
}

// ApprovalStore persists approval events.
type ApprovalStore interface {
	Upsert(ctx context.Context, tx database.Tx, approval models.Approval) (bool, error)
}

// FilingStore persists SEC filings.
type FilingStore interface {
	Upsert(ctx context.Context, tx database.Tx, filing models.Filing) (bool, error)
}

// DrugLinker attaches sponsors, indications, targets, and label details to drugs.
type DrugLinker interface {
	SetCompany(ctx context.Context, tx database.Tx, id, companyID string) error
	SetDetails(ctx context.Context, tx database.Tx, id string, activeIngredient, mechanism *string) error
	LinkIndication(ctx context.Context, tx database.Tx, drugID, indicationID string) error
	LinkTarget(ctx context.Context, tx database.Tx, drugID, targetID string) error
}

// Resolver resolves entity names to canonical IDs.
type Resolver interface {
	Resolve(ctx context.Context, tx database.Tx, lookup models.Lookup) (*resolver.Result, error)
}

// CreatedEntity is an entity minted while writing a committed chunk.
type CreatedEntity struct {
	EntityType string
	EntityID   string
	Name       string
}

// ChunkFailure records why one chunk rolled back.
type ChunkFailure struct {
	Chunk   int
	Records int
	Cause   error
}

// WriteStats summarizes one Write call. Only records from committed chunks
// count as written; a failed chunk's records are all counted failed, and its
// cause is kept so the run can report which chunk broke.
type WriteStats struct {
	Written  int
	Failed   int
	Created  []CreatedEntity
	Failures []ChunkFailure
}

// Writer persists normalized records in chunked transactions. Each chunk
// commits or rolls back as a unit; a failed chunk never aborts the batch.
type Writer struct {
	db        database.DB
	resolver  Resolver
	trials    TrialStore
	approvals ApprovalStore
	filings   FilingStore
	drugs     DrugLinker
	chunkSize int
	logger    ectologger.Logger
}

// NewWriter creates an ingestion writer.
func NewWriter(db database.DB, res Resolver, trials TrialStore, approvals ApprovalStore, filings FilingStore, drugs DrugLinker, chunkSize int, logger ectologger.Logger) *Writer {
	if chunkSize < 1 {
		chunkSize = 50
	}
	return &Writer{
		db:        db,
		resolver:  res,
		trials:    trials,
		approvals: approvals,
		filings:   filings,
		drugs:     drugs,
		chunkSize: chunkSize,
		logger:    logger,
	}
}

// Write persists a batch of records. Cancellation is honored between chunks;
// an in-flight chunk runs to completion.
func (w *Writer) Write(ctx context.Context, records []normalize.Record) (*WriteStats, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Writer.Write")
	defer span.End()

	stats := &WriteStats{}
	for start, index := 0, 0; start < len(records); start, index = start+w.chunkSize, index+1 {
		if err := ctx.Err(); err != nil {
			return stats, err
		}

		end := start + w.chunkSize
		if end > len(records) {
			end = len(records)
		}
		chunk := records[start:end]

		created, err := w.writeChunk(ctx, chunk)
		if err != nil {
			w.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{"chunk": index, "chunk_size": len(chunk)}).Error("Chunk failed, rolled back")
			stats.Failed += len(chunk)
			stats.Failures = append(stats.Failures, ChunkFailure{Chunk: index, Records: len(chunk), Cause: err})
			continue
		}

		stats.Written += len(chunk)
		stats.Created = append(stats.Created, created...)
	}

	return stats, nil
}

// writeChunk writes one chunk inside a single transaction.
func (w *Writer) writeChunk(ctx context.Context, chunk []normalize.Record) ([]CreatedEntity, error) {
	ctx, span := tracing.StartSpan(ctx, "ingest.Writer.writeChunk")
	defer span.End()

	sqlxTx, err := w.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, err
	}
	tx := database.NewTx(sqlxTx, w.logger)
	defer tx.Rollback(ctx)

	var created []CreatedEntity
	track := func(entityType, name string, res *resolver.Result) {
		if res.Created {
			created = append(created, CreatedEntity{EntityType: entityType, EntityID: res.ID, Name: name})
		}
	}

	for i := range chunk {
		if err := w.writeRecord(ctx, tx, &chunk[i], track); err != nil {
			w.logRecord(ctx, &chunk[i], err)
			return nil, err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}
	return created, nil
}

func (w *Writer) writeRecord(ctx context.Context, tx database.Tx, rec *normalize.Record, track func(string, string, *resolver.Result)) error {
	switch rec.Kind {
	case normalize.KindTrial:
		return w.writeTrial(ctx, tx, rec.Trial, track)
	case normalize.KindApproval:
		return w.writeApproval(ctx, tx, rec.Approval, track)
	case normalize.KindFiling:
		return w.writeFiling(ctx, tx, rec.Filing, track)
	}
	return nil
}

func (w *Writer) writeTrial(ctx context.Context, tx database.Tx, rec *normalize.TrialRecord, track func(string, string, *resolver.Result)) error {
	var companyID *string
	if rec.Sponsor != "" {
		res, err := w.resolver.Resolve(ctx, tx, models.Lookup{EntityType: models.EntityTypeCompany, Name: rec.Sponsor})
		if err != nil {
			return err
		}
		track(models.EntityTypeCompany, rec.Sponsor, res)
		companyID = &res.ID
	}

	indicationIDs := make([]string, 0, len(rec.Conditions))
	for _, condition := range rec.Conditions {
		res, err := w.resolver.Resolve(ctx, tx, models.Lookup{EntityType: models.EntityTypeIndication, Name: condition})
		if err != nil {
			return err
		}
		track(models.EntityTypeIndication, condition, res)
		indicationIDs = append(indicationIDs, res.ID)
	}

	var drugID *string
	for _, intervention := range rec.Interventions {
		res, err := w.resolver.Resolve(ctx, tx, models.Lookup{EntityType: models.EntityTypeDrug, Name: intervention})
		if err != nil {
			return err
		}
		track(models.EntityTypeDrug, intervention, res)
		if drugID == nil {
			id := res.ID
			drugID = &id
		}

		if companyID != nil {
			if err := w.drugs.SetCompany(ctx, tx, res.ID, *companyID); err != nil {
				return err
			}
		}
		for _, indicationID := range indicationIDs {
			if err := w.drugs.LinkIndication(ctx, tx, res.ID, indicationID); err != nil {
				return err
			}
		}
	}

	trial := models.Trial{
		ID:             rec.NCTID,
		Title:          rec.Title,
		Phase:          rec.Phase,
		Status:         rec.Status,
		DrugID:         drugID,
		CompanyID:      companyID,
		Enrollment:     rec.Enrollment,
		StartDate:      rec.StartDate,
		CompletionDate: rec.CompletionDate,
		URL:            rec.URL,
		Source:         models.SourceCTGov,
		LastUpdated:    rec.LastUpdated,
		FetchedAt:      time.Now().UTC(),
	}
	if _, err := w.trials.Upsert(ctx, tx, trial); err != nil {
		return err
	}

	// A re-fetched study may have dropped conditions, so stale links go first.
	if err := w.trials.UnlinkIndicationsExcept(ctx, tx, rec.NCTID, indicationIDs); err != nil {
		return err
	}
	for _, indicationID := range indicationIDs {
		if err := w.trials.LinkIndication(ctx, tx, rec.NCTID, indicationID); err != nil {
			return err
		}
	}
	return nil
}

func (w *Writer) writeApproval(ctx context.Context, tx database.Tx, rec *normalize.ApprovalRecord, track func(string, string, *resolver.Result)) error {
	var companyID *string
	if rec.Sponsor != "" {
		res, err := w.resolver.Resolve(ctx, tx, models.Lookup{EntityType: models.EntityTypeCompany, Name: rec.Sponsor})
		if err != nil {
			return err
		}
		track(models.EntityTypeCompany, rec.Sponsor, res)
		companyID = &res.ID
	}

	drugRes, err := w.resolver.Resolve(ctx, tx, models.Lookup{EntityType: models.EntityTypeDrug, Name: rec.DrugName})
	if err != nil {
		return err
	}
	track(models.EntityTypeDrug, rec.DrugName, drugRes)

	if companyID != nil {
		if err := w.drugs.SetCompany(ctx, tx, drugRes.ID, *companyID); err != nil {
			return err
		}
	}
	if rec.ActiveIngredient != nil || rec.Mechanism != nil {
		if err := w.drugs.SetDetails(ctx, tx, drugRes.ID, rec.ActiveIngredient, rec.Mechanism); err != nil {
			return err
		}
	}

	for _, targetName := range rec.Targets {
		res, err := w.resolver.Resolve(ctx, tx, models.Lookup{EntityType: models.EntityTypeTarget, Name: targetName})
		if err != nil {
			return err
		}
		track(models.EntityTypeTarget, targetName, res)
		if err := w.drugs.LinkTarget(ctx, tx, drugRes.ID, res.ID); err != nil {
			return err
		}
	}

	approval := models.Approval{
		DrugID:            drugRes.ID,
		CompanyID:         companyID,
		Agency:            rec.Agency,
		ApplicationNumber: rec.ApplicationNumber,
		ApprovalDate:      rec.ApprovalDate,
		DocumentURL:       rec.DocumentURL,
	}
	if _, err := w.approvals.Upsert(ctx, tx, approval); err != nil {
		return err
	}
	return nil
}

func (w *Writer) writeFiling(ctx context.Context, tx database.Tx, rec *normalize.FilingRecord, track func(string, string, *resolver.Result)) error {
	res, err := w.resolver.Resolve(ctx, tx, models.Lookup{
		EntityType:  models.EntityTypeCompany,
		Name:        rec.CompanyName,
		ExternalKey: rec.CIK,
	})
	if err != nil {
		return err
	}
	track(models.EntityTypeCompany, rec.CompanyName, res)

	filing := models.Filing{
		CompanyID:     res.ID,
		CIK:           rec.CIK,
		FormType:      rec.FormType,
		FilingDate:    rec.FilingDate,
		Title:         rec.Title,
		URL:           rec.URL,
		CashUSD:       rec.CashUSD,
		RnDExpenseUSD: rec.RnDExpenseUSD,
		RevenueUSD:    rec.RevenueUSD,
	}
	if _, err := w.filings.Upsert(ctx, tx, filing); err != nil {
		return err
	}
	return nil
}

func (w *Writer) logRecord(ctx context.Context, rec *normalize.Record, err error) {
	fields := map[string]any{"kind": rec.Kind}
	switch rec.Kind {
	case normalize.KindTrial:
		fields["id"] = rec.Trial.NCTID
	case normalize.KindApproval:
		fields["application_number"] = rec.Approval.ApplicationNumber
	case normalize.KindFiling:
		fields["url"] = rec.Filing.URL
	}
	w.logger.WithContext(ctx).WithError(err).WithFields(fields).Error("Failed to write record")
}
