package service_test

import (
	"io"
	"log/slog"
	"strconv"
	"sync"
	"time"

	"github.com/personal-finance-ledger/internal/config"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/components"
	"github.com/personal-finance-ledger/internal/ledger_core/ledgertest"
)

var fixedNow = time.Date(2024, 6, 3, 12, 0, 0, 0, time.UTC)

type recordingMetrics struct {
	mu            sync.Mutex
	commits       map[string]int
	contributions map[string]int
	milestones    []string
	importRows    map[string]int
}

func newRecordingMetrics() *recordingMetrics {
	return &recordingMetrics{
		commits:       map[string]int{},
		contributions: map[string]int{},
		importRows:    map[string]int{},
	}
}

func (m *recordingMetrics) RecordCommit(flow string, err error, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.commits[flow+"/"+strconv.FormatBool(err == nil)]++
}

func (m *recordingMetrics) IncrContribution(status string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.contributions[status]++
}

func (m *recordingMetrics) IncrMilestone(milestone string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.milestones = append(m.milestones, milestone)
}

func (m *recordingMetrics) IncrImportRow(result string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.importRows[result]++
}

type fixture struct {
	store   *ledgertest.Store
	core    *components.LedgerCore
	metrics *recordingMetrics
	now     time.Time
}

// newFixture wires the ledger core over an in-memory store. The clock reads
// f.now so tests can move time forward.
func newFixture() *fixture {
	f := &fixture{
		store:   ledgertest.New(),
		metrics: newRecordingMetrics(),
		now:     fixedNow,
	}
	clock := shared.ClockFunc(func() time.Time { return f.now })
	cfg := &config.Config{Application: config.ApplicationConfig{Currency: "USD"}}
	f.core = components.CreateLedgerCore(f.store, components.Repositories{
		Accounts:     f.store.Accounts(),
		Transactions: f.store.Transactions(),
		Goals:        f.store.Goals(),
		Outbox:       f.store.Outbox(),
	}, f.metrics, clock, slog.New(slog.NewTextHandler(io.Discard, nil)), cfg)
	return f
}
