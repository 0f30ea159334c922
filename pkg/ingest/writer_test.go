package ingest

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pharmaintel/helix/pkg/database"
	"github.com/pharmaintel/helix/pkg/models"
	"github.com/pharmaintel/helix/pkg/normalize"
	"github.com/pharmaintel/helix/pkg/resolver"
)

// countingDriver backs a real *sqlx.DB so chunk transactions run through
// database/sql. It counts begins and commits and can refuse the nth begin.
type countingDriver struct {
	mu         sync.Mutex
	begins     int
	commits    int
	failBegins map[int]bool
}

func (d *countingDriver) Open(name string) (driver.Conn, error) {
	return &countingConn{drv: d}, nil
}

type countingConnector struct {
	drv *countingDriver
}

func (c *countingConnector) Connect(context.Context) (driver.Conn, error) {
	return &countingConn{drv: c.drv}, nil
}

func (c *countingConnector) Driver() driver.Driver {
	return c.drv
}

type countingConn struct {
	drv *countingDriver
}

func (c *countingConn) Prepare(query string) (driver.Stmt, error) {
	return nil, fmt.Errorf("unexpected statement: %s", query)
}

func (c *countingConn) Close() error {
	return nil
}

func (c *countingConn) Begin() (driver.Tx, error) {
	c.drv.mu.Lock()
	defer c.drv.mu.Unlock()
	index := c.drv.begins
	c.drv.begins++
	if c.drv.failBegins[index] {
		return nil, fmt.Errorf("connection reset by peer")
	}
	return &countingTx{drv: c.drv}, nil
}

type countingTx struct {
	drv *countingDriver
}

func (t *countingTx) Commit() error {
	t.drv.mu.Lock()
	defer t.drv.mu.Unlock()
	t.drv.commits++
	return nil
}

func (t *countingTx) Rollback() error {
	return nil
}

func (d *countingDriver) stats() (int, int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.begins, d.commits
}

func countingDB(drv *countingDriver) database.DB {
	sqlDB := sql.OpenDB(&countingConnector{drv: drv})
	return database.NewDatabaseInstance(sqlx.NewDb(sqlDB, "postgres"), testLogger())
}

// memResolver mints an ID per distinct entity name, created on first sight.
type memResolver struct {
	mu     sync.Mutex
	ids    map[string]string
	counts map[string]int
}

func newMemResolver() *memResolver {
	return &memResolver{ids: map[string]string{}, counts: map[string]int{}}
}

func (r *memResolver) Resolve(ctx context.Context, tx database.Tx, lookup models.Lookup) (*resolver.Result, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := lookup.EntityType + ":" + strings.ToLower(lookup.Name)
	if id, ok := r.ids[key]; ok {
		return &resolver.Result{ID: id}, nil
	}
	r.counts[lookup.EntityType]++
	id := fmt.Sprintf("%s-%d", lookup.EntityType, r.counts[lookup.EntityType])
	r.ids[key] = id
	return &resolver.Result{ID: id, Created: true}, nil
}

type memTrials struct {
	mu    sync.Mutex
	rows  map[string]models.Trial
	links map[string]map[string]bool
}

func newMemTrials() *memTrials {
	return &memTrials{rows: map[string]models.Trial{}, links: map[string]map[string]bool{}}
}

func (s *memTrials) Upsert(ctx context.Context, tx database.Tx, trial models.Trial) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, exists := s.rows[trial.ID]
	s.rows[trial.ID] = trial
	return !exists, nil
}

func (s *memTrials) LinkIndication(ctx context.Context, tx database.Tx, trialID, indicationID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.links[trialID] == nil {
		s.links[trialID] = map[string]bool{}
	}
	s.links[trialID][indicationID] = true
	return nil
}

func (s *memTrials) UnlinkIndicationsExcept(ctx context.Context, tx database.Tx, trialID string, keep []string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := map[string]bool{}
	for _, id := range keep {
		kept[id] = true
	}
	for id := range s.links[trialID] {
		if !kept[id] {
			delete(s.links[trialID], id)
		}
	}
	return nil
}

type memApprovals struct {
	mu   sync.Mutex
	rows map[string]models.Approval
}

func newMemApprovals() *memApprovals {
	return &memApprovals{rows: map[string]models.Approval{}}
}

func (s *memApprovals) Upsert(ctx context.Context, tx database.Tx, approval models.Approval) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s|%s", approval.Agency, approval.ApplicationNumber, approval.ApprovalDate.Format("2006-01-02"), approval.DrugID)
	if _, exists := s.rows[key]; exists {
		return false, nil
	}
	s.rows[key] = approval
	return true, nil
}

type memFilings struct {
	mu   sync.Mutex
	rows map[string]models.Filing
}

func newMemFilings() *memFilings {
	return &memFilings{rows: map[string]models.Filing{}}
}

func (s *memFilings) Upsert(ctx context.Context, tx database.Tx, filing models.Filing) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fmt.Sprintf("%s|%s|%s|%s|%s", filing.CompanyID, filing.CIK, filing.FormType, filing.FilingDate.Format("2006-01-02"), filing.URL)
	_, exists := s.rows[key]
	s.rows[key] = filing
	return !exists, nil
}

type detailCall struct {
	drugID           string
	activeIngredient *string
	mechanism        *string
}

type memDrugLinks struct {
	mu        sync.Mutex
	companies map[string]string
	details   []detailCall
	targets   map[string]map[string]bool
}

func newMemDrugLinks() *memDrugLinks {
	return &memDrugLinks{companies: map[string]string{}, targets: map[string]map[string]bool{}}
}

func (s *memDrugLinks) SetCompany(ctx context.Context, tx database.Tx, id, companyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.companies[id] = companyID
	return nil
}

func (s *memDrugLinks) SetDetails(ctx context.Context, tx database.Tx, id string, activeIngredient, mechanism *string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.details = append(s.details, detailCall{drugID: id, activeIngredient: activeIngredient, mechanism: mechanism})
	return nil
}

func (s *memDrugLinks) LinkIndication(ctx context.Context, tx database.Tx, drugID, indicationID string) error {
	return nil
}

func (s *memDrugLinks) LinkTarget(ctx context.Context, tx database.Tx, drugID, targetID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.targets[drugID] == nil {
		s.targets[drugID] = map[string]bool{}
	}
	s.targets[drugID][targetID] = true
	return nil
}

func trialRecord(n int) normalize.Record {
	return normalize.Record{
		Kind: normalize.KindTrial,
		Trial: &normalize.TrialRecord{
			NCTID:         fmt.Sprintf("NCT%08d", n),
			Title:         fmt.Sprintf("Study %d", n),
			Phase:         models.PhaseTwo,
			Status:        "RECRUITING",
			URL:           fmt.Sprintf("https://clinicaltrials.gov/study/NCT%08d", n),
			Sponsor:       "Alpha Bio Inc",
			Conditions:    []string{"Melanoma"},
			Interventions: []string{fmt.Sprintf("HLX-%d", n)},
		},
	}
}

func TestWriterWrite(t *testing.T) {
	ctx := context.Background()

	t.Run("should commit each chunk in its own transaction", func(t *testing.T) {
		drv := &countingDriver{}
		trials := newMemTrials()
		writer := NewWriter(countingDB(drv), newMemResolver(), trials, newMemApprovals(), newMemFilings(), newMemDrugLinks(), 2, testLogger())

		records := []normalize.Record{trialRecord(1), trialRecord(2), trialRecord(3), trialRecord(4), trialRecord(5)}
		stats, err := writer.Write(ctx, records)
		require.NoError(t, err)

		assert.Equal(t, 5, stats.Written)
		assert.Equal(t, 0, stats.Failed)
		assert.Empty(t, stats.Failures)
		assert.Len(t, trials.rows, 5)

		begins, commits := drv.stats()
		assert.Equal(t, 3, begins)
		assert.Equal(t, 3, commits)
	})

	t.Run("should roll back a failed chunk and keep writing the rest", func(t *testing.T) {
		drv := &countingDriver{failBegins: map[int]bool{1: true}}
		trials := newMemTrials()
		writer := NewWriter(countingDB(drv), newMemResolver(), trials, newMemApprovals(), newMemFilings(), newMemDrugLinks(), 2, testLogger())

		records := []normalize.Record{
			trialRecord(1), trialRecord(2),
			trialRecord(3), trialRecord(4),
			trialRecord(5), trialRecord(6),
		}
		stats, err := writer.Write(ctx, records)
		require.NoError(t, err)

		assert.Equal(t, 4, stats.Written)
		assert.Equal(t, 2, stats.Failed)
		require.Len(t, stats.Failures, 1)
		assert.Equal(t, 1, stats.Failures[0].Chunk)
		assert.Equal(t, 2, stats.Failures[0].Records)
		assert.ErrorContains(t, stats.Failures[0].Cause, "connection reset")

		// The middle chunk never reached its stores.
		assert.Len(t, trials.rows, 4)
		assert.NotContains(t, trials.rows, "NCT00000003")
		assert.NotContains(t, trials.rows, "NCT00000004")

		_, commits := drv.stats()
		assert.Equal(t, 2, commits)
	})

	t.Run("should report the same counts when the same batch is written twice", func(t *testing.T) {
		drv := &countingDriver{}
		trials := newMemTrials()
		approvals := newMemApprovals()
		writer := NewWriter(countingDB(drv), newMemResolver(), trials, approvals, newMemFilings(), newMemDrugLinks(), 50, testLogger())

		records := []normalize.Record{
			trialRecord(1),
			{
				Kind: normalize.KindApproval,
				Approval: &normalize.ApprovalRecord{
					Agency:            "FDA",
					ApplicationNumber: "BLA761000",
					ApprovalDate:      time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
					Sponsor:           "Alpha Bio Inc",
					DrugName:          "Helixumab",
				},
			},
		}

		first, err := writer.Write(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, 2, first.Written)
		assert.NotEmpty(t, first.Created)

		second, err := writer.Write(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, 2, second.Written)
		assert.Equal(t, 0, second.Failed)
		assert.Empty(t, second.Created)

		assert.Len(t, trials.rows, 1)
		assert.Len(t, approvals.rows, 1)
	})

	t.Run("should route record details to the entity stores", func(t *testing.T) {
		drv := &countingDriver{}
		trials := newMemTrials()
		filings := newMemFilings()
		links := newMemDrugLinks()
		writer := NewWriter(countingDB(drv), newMemResolver(), trials, newMemApprovals(), filings, links, 50, testLogger())

		ingredient := "pembrolizumab"
		moa := "PD-1 inhibitor"
		cash := 12_500_000.0
		records := []normalize.Record{
			trialRecord(7),
			{
				Kind: normalize.KindApproval,
				Approval: &normalize.ApprovalRecord{
					Agency:            "FDA",
					ApplicationNumber: "NDA215000",
					ApprovalDate:      time.Date(2026, 1, 15, 0, 0, 0, 0, time.UTC),
					Sponsor:           "Alpha Bio Inc",
					DrugName:          "Helixumab",
					ActiveIngredient:  &ingredient,
					Mechanism:         &moa,
					Targets:           []string{"PD-1"},
				},
			},
			{
				Kind: normalize.KindFiling,
				Filing: &normalize.FilingRecord{
					CIK:         "0000099999",
					CompanyName: "Alpha Bio Inc",
					FormType:    "10-K",
					FilingDate:  time.Date(2026, 2, 20, 0, 0, 0, 0, time.UTC),
					Title:       "10-K - ALPHA BIO INC",
					URL:         "https://www.sec.gov/Archives/edgar/data/99999/index.htm",
					CashUSD:     &cash,
				},
			},
		}

		stats, err := writer.Write(ctx, records)
		require.NoError(t, err)
		assert.Equal(t, 3, stats.Written)

		require.Len(t, links.details, 1)
		require.NotNil(t, links.details[0].activeIngredient)
		assert.Equal(t, "pembrolizumab", *links.details[0].activeIngredient)
		require.NotNil(t, links.details[0].mechanism)
		assert.Equal(t, "PD-1 inhibitor", *links.details[0].mechanism)
		assert.Len(t, links.targets, 1)

		require.Len(t, filings.rows, 1)
		for _, filing := range filings.rows {
			require.NotNil(t, filing.CashUSD)
			assert.Equal(t, 12_500_000.0, *filing.CashUSD)
			assert.Nil(t, filing.RevenueUSD)
		}

		trial, ok := trials.rows["NCT00000007"]
		require.True(t, ok)
		assert.Equal(t, models.SourceCTGov, trial.Source)
		assert.False(t, trial.FetchedAt.IsZero())
		assert.Equal(t, []string{"indication-1"}, linkedIndications(trials, "NCT00000007"))
	})
}

func linkedIndications(s *memTrials, trialID string) []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id := range s.links[trialID] {
		ids = append(ids, id)
	}
	return ids
}
