// Package ledgertest provides an in-memory ledger store for service tests. Every
// ExecuteTx scope is serialised and rolled back from a snapshot on error, so
// tests can assert that failed flows leave no rows behind.
package ledgertest

import (
	"bytes"
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/outbox"
	"github.com/personal-finance-ledger/internal/domain/shared"
)

type state struct {
	accounts      map[uuid.UUID]account.Account
	accountOrder  []uuid.UUID
	transactions  map[uuid.UUID]ledger.Transaction
	entries       []ledger.Entry
	goals         map[uuid.UUID]goal.Goal
	goalOrder     []uuid.UUID
	contributions []goal.Contribution
	outbox        []outbox.Message
	nextOutboxID  int64
}

func (s state) clone() state {
	c := state{
		accounts:      make(map[uuid.UUID]account.Account, len(s.accounts)),
		accountOrder:  slices.Clone(s.accountOrder),
		transactions:  make(map[uuid.UUID]ledger.Transaction, len(s.transactions)),
		entries:       slices.Clone(s.entries),
		goals:         make(map[uuid.UUID]goal.Goal, len(s.goals)),
		goalOrder:     slices.Clone(s.goalOrder),
		contributions: slices.Clone(s.contributions),
		outbox:        slices.Clone(s.outbox),
		nextOutboxID:  s.nextOutboxID,
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.goals {
		c.goals[k] = cloneGoal(v)
	}
	return c
}

func cloneGoal(g goal.Goal) goal.Goal {
	g.MilestonesReached = slices.Clone(g.MilestonesReached)
	if g.MilestonesReached == nil {
		g.MilestonesReached = []int{}
	}
	return g
}

// Store is an in-memory implementation of the ledger repositories and of
// persistence.TxManager
type Store struct {
	scopeMu sync.Mutex
	mu      sync.Mutex
	data    state

	// FailUpdateBalance, when set, is returned by every balance update
	FailUpdateBalance error
	// FailOutbox, when set, is returned by every outbox insert
	FailOutbox error

	Commits   int
	Rollbacks int
}

func New() *Store {
	return &Store{data: state{
		accounts:     make(map[uuid.UUID]account.Account),
		transactions: make(map[uuid.UUID]ledger.Transaction),
		goals:        make(map[uuid.UUID]goal.Goal),
	}}
}

// ExecuteTx runs fn with a nil tx; the repositories ignore it. Scopes run one at
// a time and are undone on error.
func (s *Store) ExecuteTx(ctx context.Context, fn func(tx pgx.Tx) error) error {
	s.scopeMu.Lock()
	defer s.scopeMu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	snapshot := s.data.clone()
	s.mu.Unlock()

	if err := fn(nil); err != nil {
		s.mu.Lock()
		s.data = snapshot
		s.Rollbacks++
		s.mu.Unlock()
		return err
	}

	s.mu.Lock()
	s.Commits++
	s.mu.Unlock()
	return nil
}

func uniqueViolation(constraint string) error {
	return &pgconn.PgError{Code: "23505", ConstraintName: constraint}
}

// Accounts returns an account.Repository over the store
func (s *Store) Accounts() account.Repository { return accountRepo{s} }

// Transactions returns a ledger.Repository over the store
func (s *Store) Transactions() ledger.Repository { return transactionRepo{s} }

// Goals returns a goal.Repository over the store
func (s *Store) Goals() goal.Repository { return goalRepo{s} }

// Outbox returns an outbox.Repository over the store
func (s *Store) Outbox() outbox.Repository { return outboxRepo{s} }

// SeedAccount stores an active account with the given opening balance
func (s *Store) SeedAccount(ownerID uuid.UUID, category account.Category, balance int64) *account.Account {
	acc, err := account.NewAccount(ownerID, category.AccountType(), category, "", time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	if err != nil {
		panic(err)
	}
	acc.Balance = balance

	s.mu.Lock()
	defer s.mu.Unlock()
	s.data.accounts[acc.ID] = *acc
	s.data.accountOrder = append(s.data.accountOrder, acc.ID)
	copied := *acc
	return &copied
}

// SeedGoal stores g as is, replacing any stored goal with the same id
func (s *Store) SeedGoal(g *goal.Goal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.data.goals[g.ID]; !ok {
		s.data.goalOrder = append(s.data.goalOrder, g.ID)
	}
	s.data.goals[g.ID] = cloneGoal(*g)
}

// Balance returns the stored balance of an account
func (s *Store) Balance(id uuid.UUID) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.accounts[id].Balance
}

// AccountCount counts stored accounts, active or not
func (s *Store) AccountCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.accounts)
}

func (s *Store) TransactionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.transactions)
}

func (s *Store) EntryCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.entries)
}

func (s *Store) ContributionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.data.contributions)
}

// Messages returns copies of the outbox in insertion order
func (s *Store) Messages() []outbox.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.data.outbox)
}

// EventTypes lists the outbox event types in insertion order
func (s *Store) EventTypes() []outbox.EventType {
	var out []outbox.EventType
	for _, m := range s.Messages() {
		out = append(out, m.EventType)
	}
	return out
}

type accountRepo struct{ s *Store }

func (r accountRepo) WithTx(pgx.Tx) account.Repository { return r }

func (r accountRepo) Create(_ context.Context, acc *account.Account) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.accounts[acc.ID]; ok {
		return uniqueViolation("accounts_pkey")
	}
	r.s.data.accounts[acc.ID] = *acc
	r.s.data.accountOrder = append(r.s.data.accountOrder, acc.ID)
	return nil
}

func (r accountRepo) CreateIfAbsent(ctx context.Context, acc *account.Account) (bool, error) {
	if existing, _ := r.FindActive(ctx, acc.OwnerID, acc.Type, acc.Category); existing != nil && acc.Category != account.CategoryGoal {
		return false, nil
	}
	if err := r.Create(ctx, acc); err != nil {
		return false, err
	}
	return true, nil
}

func (r accountRepo) GetByID(_ context.Context, id uuid.UUID) (*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	acc, ok := r.s.data.accounts[id]
	if !ok {
		return nil, account.ErrAccountNotFound{AccountID: id}
	}
	return &acc, nil
}

func (r accountRepo) FindActive(_ context.Context, ownerID uuid.UUID, accountType account.Type, category account.Category) (*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, id := range r.s.data.accountOrder {
		acc := r.s.data.accounts[id]
		if acc.OwnerID == ownerID && acc.Type == accountType && acc.Category == category && acc.Active {
			return &acc, nil
		}
	}
	return nil, nil
}

func (r accountRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*account.Account, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*account.Account{}
	for _, id := range r.s.data.accountOrder {
		if acc := r.s.data.accounts[id]; acc.OwnerID == ownerID {
			out = append(out, &acc)
		}
	}
	return out, nil
}

func (r accountRepo) UpdateBalance(_ context.Context, id uuid.UUID, delta int64) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailUpdateBalance != nil {
		return shared.NewPersistenceError("update account balance", r.s.FailUpdateBalance)
	}
	acc, ok := r.s.data.accounts[id]
	if !ok {
		return account.ErrAccountNotFound{AccountID: id}
	}
	acc.Balance += delta
	acc.Version++
	r.s.data.accounts[id] = acc
	return nil
}

func (r accountRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*account.Account, error) {
	return r.GetByID(ctx, id)
}

func (r accountRepo) Deactivate(_ context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	acc, ok := r.s.data.accounts[id]
	if !ok || !acc.Active {
		return account.ErrAccountNotFound{AccountID: id}
	}
	acc.Active = false
	acc.Version++
	r.s.data.accounts[id] = acc
	return nil
}

type transactionRepo struct{ s *Store }

func (r transactionRepo) WithTx(pgx.Tx) ledger.Repository { return r }

func (r transactionRepo) Create(_ context.Context, tx *ledger.Transaction) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if tx.IdempotencyKey != "" {
		for _, existing := range r.s.data.transactions {
			if existing.OwnerID == tx.OwnerID && existing.IdempotencyKey == tx.IdempotencyKey {
				return shared.NewPersistenceError("create transaction", uniqueViolation("transactions_owner_idempotency_key"))
			}
		}
	}
	stored := *tx
	stored.Entries = nil
	r.s.data.transactions[tx.ID] = stored
	return nil
}

func (r transactionRepo) CreateEntries(_ context.Context, entries []ledger.Entry) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.entries = append(r.s.data.entries, entries...)
	return nil
}

func (r transactionRepo) load(tx ledger.Transaction) *ledger.Transaction {
	tx.Entries = []ledger.Entry{}
	for _, e := range r.s.data.entries {
		if e.TransactionID == tx.ID {
			tx.Entries = append(tx.Entries, e)
		}
	}
	sort.Slice(tx.Entries, func(i, j int) bool { return tx.Entries[i].Position < tx.Entries[j].Position })
	return &tx
}

func (r transactionRepo) GetByID(_ context.Context, id uuid.UUID) (*ledger.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.data.transactions[id]
	if !ok {
		return nil, ledger.ErrTransactionNotFound{TransactionID: id}
	}
	return r.load(tx), nil
}

func (r transactionRepo) GetByIdempotencyKey(_ context.Context, ownerID uuid.UUID, key string) (*ledger.Transaction, error) {
	if key == "" {
		return nil, nil
	}
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, tx := range r.s.data.transactions {
		if tx.OwnerID == ownerID && tx.IdempotencyKey == key {
			return r.load(tx), nil
		}
	}
	return nil, nil
}

func (r transactionRepo) ListByOwner(_ context.Context, ownerID uuid.UUID, from, to time.Time) ([]*ledger.Transaction, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*ledger.Transaction{}
	for _, tx := range r.s.data.transactions {
		if tx.OwnerID == ownerID && !tx.Date.Before(from) && !tx.Date.After(to) {
			out = append(out, r.load(tx))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.After(out[j].Date)
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (r transactionRepo) MarkReversed(_ context.Context, id, reversalID uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	tx, ok := r.s.data.transactions[id]
	if !ok || tx.ReversedBy != nil {
		return ledger.ErrAlreadyReversed{TransactionID: id}
	}
	tx.ReversedBy = &reversalID
	r.s.data.transactions[id] = tx
	return nil
}

type goalRepo struct{ s *Store }

func (r goalRepo) WithTx(pgx.Tx) goal.Repository { return r }

func (r goalRepo) Create(_ context.Context, g *goal.Goal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	r.s.data.goals[g.ID] = cloneGoal(*g)
	r.s.data.goalOrder = append(r.s.data.goalOrder, g.ID)
	return nil
}

func (r goalRepo) GetByID(_ context.Context, id uuid.UUID) (*goal.Goal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	g, ok := r.s.data.goals[id]
	if !ok {
		return nil, goal.ErrGoalNotFound{GoalID: id}
	}
	g = cloneGoal(g)
	return &g, nil
}

func (r goalRepo) LockForUpdate(ctx context.Context, id uuid.UUID) (*goal.Goal, error) {
	return r.GetByID(ctx, id)
}

func (r goalRepo) ListByOwner(_ context.Context, ownerID uuid.UUID) ([]*goal.Goal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*goal.Goal{}
	for _, id := range r.s.data.goalOrder {
		if g := cloneGoal(r.s.data.goals[id]); g.OwnerID == ownerID {
			out = append(out, &g)
		}
	}
	return out, nil
}

// ListDue orders by the id bytes, which is how Postgres compares uuids
func (r goalRepo) ListDue(_ context.Context, day time.Time, after uuid.UUID, limit int) ([]*goal.Goal, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := []*goal.Goal{}
	for _, id := range r.s.data.goalOrder {
		g := cloneGoal(r.s.data.goals[id])
		if g.Status == goal.StatusActive && g.Frequency != goal.FrequencyNone && g.ContributionAmount > 0 &&
			g.NextContributionDate != nil && !g.NextContributionDate.After(day) &&
			bytes.Compare(g.ID[:], after[:]) > 0 {
			out = append(out, &g)
		}
	}
	sort.Slice(out, func(i, j int) bool { return bytes.Compare(out[i].ID[:], out[j].ID[:]) < 0 })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r goalRepo) Update(_ context.Context, g *goal.Goal) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.data.goals[g.ID]; !ok {
		return goal.ErrGoalNotFound{GoalID: g.ID}
	}
	g.Version++
	r.s.data.goals[g.ID] = cloneGoal(*g)
	return nil
}

func (r goalRepo) CreateContribution(_ context.Context, c *goal.Contribution) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if c.IdempotencyKey != "" {
		for _, existing := range r.s.data.contributions {
			if existing.GoalID == c.GoalID && existing.IdempotencyKey == c.IdempotencyKey {
				return shared.NewPersistenceError("create goal contribution", uniqueViolation("goal_contributions_goal_idempotency_key"))
			}
		}
	}
	r.s.data.contributions = append(r.s.data.contributions, *c)
	return nil
}

func (r goalRepo) GetContributionByIdempotencyKey(_ context.Context, goalID uuid.UUID, key string) (*goal.Contribution, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.data.contributions {
		if c.GoalID == goalID && c.IdempotencyKey == key {
			return &c, nil
		}
	}
	return nil, nil
}

type outboxRepo struct{ s *Store }

func (r outboxRepo) WithTx(pgx.Tx) outbox.Repository { return r }

func (r outboxRepo) Create(_ context.Context, m *outbox.Message) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.FailOutbox != nil {
		return shared.NewPersistenceError("create outbox message", r.s.FailOutbox)
	}
	r.s.data.nextOutboxID++
	m.ID = r.s.data.nextOutboxID
	r.s.data.outbox = append(r.s.data.outbox, *m)
	return nil
}

func (r outboxRepo) GetPending(_ context.Context, limit int) ([]*outbox.Message, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []*outbox.Message
	for _, m := range r.s.data.outbox {
		if m.Status == shared.OutboxStatusPending {
			out = append(out, &m)
		}
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (r outboxRepo) UpdateStatus(_ context.Context, id int64, status shared.OutboxStatus) error {
	return r.update(id, func(m *outbox.Message) { m.Status = status })
}

func (r outboxRepo) IncrementAttempts(_ context.Context, id int64) error {
	return r.update(id, func(m *outbox.Message) { m.Attempts++ })
}

func (r outboxRepo) update(id int64, fn func(*outbox.Message)) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for i := range r.s.data.outbox {
		if r.s.data.outbox[i].ID == id {
			fn(&r.s.data.outbox[i])
			return nil
		}
	}
	return outbox.ErrMessageNotFound{ID: id}
}
