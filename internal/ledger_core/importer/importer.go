// Package importer commits bank statement CSV files as ledger transactions, one
// atomic scope per row, on a bounded worker pool.
package importer

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/panjf2000/ants/v2"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/ledger_core/service"
	"github.com/personal-finance-ledger/internal/platform/persistence"
)

// Row outcomes, used as the metrics label
const (
	RowImported = "imported"
	RowFailed   = "failed"
)

// Request describes one uploaded statement
type Request struct {
	// BatchID scopes the per-row idempotency keys. Re-uploading a file under the
	// same batch id does not duplicate rows. Generated when empty.
	BatchID       string
	CorrelationID string
}

// Report summarises an import. Total counts every data line, parsed or not.
type Report struct {
	BatchID  string     `json:"batch_id"`
	Total    int        `json:"total"`
	Imported int        `json:"imported"`
	Failed   int        `json:"failed"`
	Errors   []RowError `json:"errors"`
}

// Deps groups the ledger collaborators of an Importer
type Deps struct {
	TxManager  persistence.TxManager
	Registry   service.AccountRegistry
	Committer  service.TransactionCommitter
	Categories *CategoryMap
	Metrics    service.Metrics
}

type Config struct {
	PoolSize int
	MaxRows  int
}

type Importer struct {
	txManager  persistence.TxManager
	registry   service.AccountRegistry
	committer  service.TransactionCommitter
	categories *CategoryMap
	metrics    service.Metrics
	pool       *ants.Pool
	maxRows    int
	logger     *slog.Logger
}

type rowResult struct {
	line int
	err  error
}

func NewImporter(deps Deps, cfg Config, logger *slog.Logger) (*Importer, error) {
	pool, err := ants.NewPool(cfg.PoolSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create import worker pool: %w", err)
	}
	categories := deps.Categories
	if categories == nil {
		categories = IdentityCategoryMap()
	}
	metrics := deps.Metrics
	if metrics == nil {
		metrics = service.NoopMetrics
	}
	return &Importer{
		txManager:  deps.TxManager,
		registry:   deps.Registry,
		committer:  deps.Committer,
		categories: categories,
		metrics:    metrics,
		pool:       pool,
		maxRows:    cfg.MaxRows,
		logger:     logger,
	}, nil
}

// Import parses r and commits every valid row against the owner's checking
// account. Row failures are collected in the report and never abort the batch.
func (i *Importer) Import(ctx context.Context, ownerID uuid.UUID, r io.Reader, req Request) (*Report, error) {
	batchID := strings.TrimSpace(req.BatchID)
	if batchID == "" {
		batchID = uuid.NewString()
	}
	logger := i.logger.With("batch_id", batchID, "owner_id", ownerID.String())
	if req.CorrelationID != "" {
		logger = logger.With("correlation_id", req.CorrelationID)
	}

	records, parseErrs, err := Parse(r, i.maxRows)
	if err != nil {
		return nil, err
	}

	var checking *account.Account
	err = i.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		var err error
		checking, err = i.registry.ResolveOrCreate(ctx, tx, ownerID, account.TypeAsset, account.CategoryChecking)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to resolve checking account: %w", err)
	}

	report := &Report{
		BatchID: batchID,
		Total:   len(records) + len(parseErrs),
		Errors:  append([]RowError{}, parseErrs...),
	}
	report.Failed = len(parseErrs)
	for range parseErrs {
		i.metrics.IncrImportRow(RowFailed)
	}

	logger.Info("Importing statement", "rows", len(records), "unparseable", len(parseErrs))

	results := make(chan rowResult, len(records))
	for _, rec := range records {
		err := i.pool.Submit(func() {
			results <- rowResult{line: rec.Line, err: i.importRow(ctx, ownerID, checking, batchID, req.CorrelationID, rec)}
		})
		if err != nil {
			logger.Error("Failed to submit import row to worker pool", "line", rec.Line, "error", err)
			results <- rowResult{line: rec.Line, err: err}
		}
	}

	for range records {
		res := <-results
		if res.err != nil {
			report.Failed++
			report.Errors = append(report.Errors, RowError{Line: res.line, Error: res.err.Error()})
			i.metrics.IncrImportRow(RowFailed)
			continue
		}
		report.Imported++
		i.metrics.IncrImportRow(RowImported)
	}
	sort.Slice(report.Errors, func(a, b int) bool { return report.Errors[a].Line < report.Errors[b].Line })

	logger.Info("Statement imported",
		"total", report.Total,
		"imported", report.Imported,
		"failed", report.Failed,
	)
	return report, nil
}

// importRow resolves the row's category account and commits the pair in one
// scope, so a failed row leaves no provisioned account behind
func (i *Importer) importRow(ctx context.Context, ownerID uuid.UUID, checking *account.Account, batchID, correlationID string, rec Record) error {
	category, err := i.categories.Resolve(rec.Label, rec.Amount)
	if err != nil {
		return err
	}

	amount := rec.Amount
	if amount < 0 {
		amount = -amount
	}
	description := rec.Description
	if description == "" {
		description = category.DisplayName()
	}
	meta := ledger.Meta{
		Date:           rec.Date,
		Description:    description,
		Category:       string(category),
		Notes:          rec.Notes,
		IdempotencyKey: "import:" + batchID + ":" + strconv.Itoa(rec.Line),
		CorrelationID:  correlationID,
	}

	start := time.Now()
	err = i.txManager.ExecuteTx(ctx, func(tx pgx.Tx) error {
		target, err := i.registry.ResolveOrCreate(ctx, tx, ownerID, category.AccountType(), category)
		if err != nil {
			return err
		}

		entries := []ledger.Entry{
			{AccountID: target.ID, Kind: ledger.Debit, Amount: amount},
			{AccountID: checking.ID, Kind: ledger.Credit, Amount: amount},
		}
		if rec.Amount > 0 {
			entries = []ledger.Entry{
				{AccountID: checking.ID, Kind: ledger.Debit, Amount: amount},
				{AccountID: target.ID, Kind: ledger.Credit, Amount: amount},
			}
		}
		_, err = i.committer.CommitInTx(ctx, tx, ownerID, meta, entries)
		return err
	})
	i.metrics.RecordCommit(service.FlowImport, err, time.Since(start))
	return err
}

// Shutdown releases the worker pool
func (i *Importer) Shutdown() {
	i.logger.Info("Shutting down import worker pool", "running_workers", i.pool.Running())
	i.pool.Release()
}

// Running returns the number of busy workers
func (i *Importer) Running() int {
	return i.pool.Running()
}

// Capacity returns the size of the worker pool
func (i *Importer) Capacity() int {
	return i.pool.Cap()
}
