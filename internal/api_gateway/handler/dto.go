package handler

import (
	"time"

	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/shared"
	ledgersvc "github.com/personal-finance-ledger/internal/ledger_core/service"
)

// Amounts cross the API as decimal strings ("12.50") and are stored as cents.
// Dates are calendar days in YYYY-MM-DD.

// LocationRequest is optional place metadata
type LocationRequest struct {
	Name      string   `json:"name"`
	Latitude  *float64 `json:"lat" binding:"omitempty,min=-90,max=90"`
	Longitude *float64 `json:"lng" binding:"omitempty,min=-180,max=180"`
}

// EntryRequest is one debit or credit line
type EntryRequest struct {
	AccountID string `json:"account_id" binding:"required,uuid"`
	Kind      string `json:"kind" binding:"required,oneof=debit credit"`
	Amount    string `json:"amount" binding:"required"`
}

// CommitTransactionRequest commits an arbitrary balanced set of entries
type CommitTransactionRequest struct {
	Date        string           `json:"date"`
	Description string           `json:"description" binding:"required,max=255"`
	Category    string           `json:"category"`
	Notes       string           `json:"notes" binding:"max=1000"`
	Location    *LocationRequest `json:"location"`
	Entries     []EntryRequest   `json:"entries" binding:"required,min=2,dive"`
}

// QuickDealRequest records a one-step income or expense
type QuickDealRequest struct {
	Type        string           `json:"type" binding:"required,oneof=income expense"`
	Amount      string           `json:"amount" binding:"required"`
	Category    string           `json:"category" binding:"required"`
	AccountID   string           `json:"account_id" binding:"required,uuid"`
	Date        string           `json:"date"`
	Description string           `json:"description" binding:"max=255"`
	Notes       string           `json:"notes" binding:"max=1000"`
	Location    *LocationRequest `json:"location"`
}

type ReverseTransactionRequest struct {
	Reason string `json:"reason" binding:"max=255"`
}

// ResolveAccountRequest names the account to find or create
type ResolveAccountRequest struct {
	Type     string `json:"type" binding:"required"`
	Category string `json:"category" binding:"required"`
}

type CreateGoalRequest struct {
	Name               string `json:"name" binding:"required,max=100"`
	TargetAmount       string `json:"target_amount" binding:"required"`
	SourceAccountID    string `json:"source_account_id" binding:"omitempty,uuid"`
	Deadline           string `json:"deadline"`
	Frequency          string `json:"frequency"`
	DayOfWeek          *int   `json:"day_of_week" binding:"omitempty,min=0,max=6"`
	DayOfMonth         *int   `json:"day_of_month" binding:"omitempty,min=1,max=31"`
	ContributionAmount string `json:"contribution_amount"`
}

type ContributeRequest struct {
	Amount          string `json:"amount" binding:"required"`
	SourceAccountID string `json:"source_account_id" binding:"omitempty,uuid"`
	Notes           string `json:"notes" binding:"max=1000"`
}

// DateRangeParams bounds list queries; both ends are inclusive days
type DateRangeParams struct {
	From string `form:"from"`
	To   string `form:"to"`
}

// PaginationParams represents pagination parameters for list endpoints
type PaginationParams struct {
	Page    int `form:"page,default=1" binding:"min=1"`
	PerPage int `form:"per_page,default=20" binding:"min=1,max=100"`
}

type AccountResponse struct {
	ID             string `json:"id"`
	Name           string `json:"name"`
	Type           string `json:"type"`
	Category       string `json:"category"`
	Balance        int64  `json:"balance"`
	BalanceDisplay string `json:"balance_display"`
	Active         bool   `json:"active"`
	CreatedAt      string `json:"created_at"`
	UpdatedAt      string `json:"updated_at"`
}

type EntryResponse struct {
	AccountID string `json:"account_id"`
	Kind      string `json:"kind"`
	Amount    int64  `json:"amount"`
}

type TransactionResponse struct {
	ID          string           `json:"id"`
	Date        string           `json:"date"`
	Description string           `json:"description"`
	Category    string           `json:"category,omitempty"`
	SignedTotal int64            `json:"signed_total"`
	Display     string           `json:"display"`
	Notes       string           `json:"notes,omitempty"`
	Location    *ledger.Location `json:"location,omitempty"`
	ReversalOf  string           `json:"reversal_of,omitempty"`
	ReversedBy  string           `json:"reversed_by,omitempty"`
	Entries     []EntryResponse  `json:"entries"`
	CreatedAt   string           `json:"created_at"`
}

type GoalResponse struct {
	ID                   string `json:"id"`
	Name                 string `json:"name"`
	TargetAmount         int64  `json:"target_amount"`
	CurrentAmount        int64  `json:"current_amount"`
	ProgressPercent      int64  `json:"progress_percent"`
	Display              string `json:"display"`
	Status               string `json:"status"`
	SourceAccountID      string `json:"source_account_id,omitempty"`
	AccountID            string `json:"account_id,omitempty"`
	Deadline             string `json:"deadline,omitempty"`
	Frequency            string `json:"frequency"`
	ContributionAmount   int64  `json:"contribution_amount"`
	NextContributionDate string `json:"next_contribution_date,omitempty"`
	MilestonesReached    []int  `json:"milestones_reached"`
	CreatedAt            string `json:"created_at"`
}

type ContributionResponse struct {
	Goal           GoalResponse `json:"goal"`
	ContributionID string       `json:"contribution_id"`
	TransactionID  string       `json:"transaction_id"`
	Amount         int64        `json:"amount"`
	Display        string       `json:"display"`
	NewMilestones  []int        `json:"new_milestones"`
	IsCompleted    bool         `json:"is_completed"`
	Replayed       bool         `json:"replayed"`
}

const dateLayout = time.DateOnly

func formatDay(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(dateLayout)
}

func (l *LocationRequest) toDomain() *ledger.Location {
	if l == nil {
		return nil
	}
	return &ledger.Location{Name: l.Name, Latitude: l.Latitude, Longitude: l.Longitude}
}

func mapAccountToResponse(acc *account.Account, currency string) AccountResponse {
	return AccountResponse{
		ID:             acc.ID.String(),
		Name:           acc.Name,
		Type:           string(acc.Type),
		Category:       string(acc.Category),
		Balance:        acc.Balance,
		BalanceDisplay: shared.DisplayAmount(acc.Balance, currency),
		Active:         acc.Active,
		CreatedAt:      acc.CreatedAt.Format(time.RFC3339),
		UpdatedAt:      acc.UpdatedAt.Format(time.RFC3339),
	}
}

func mapTransactionToResponse(tx *ledger.Transaction, currency string) TransactionResponse {
	response := TransactionResponse{
		ID:          tx.ID.String(),
		Date:        tx.Date.Format(dateLayout),
		Description: tx.Description,
		Category:    tx.Category,
		SignedTotal: tx.SignedTotal,
		Display:     shared.DisplayAmount(tx.SignedTotal, currency),
		Notes:       tx.Notes,
		Location:    tx.Location,
		Entries:     make([]EntryResponse, 0, len(tx.Entries)),
		CreatedAt:   tx.CreatedAt.Format(time.RFC3339),
	}
	if tx.ReversalOf != nil {
		response.ReversalOf = tx.ReversalOf.String()
	}
	if tx.ReversedBy != nil {
		response.ReversedBy = tx.ReversedBy.String()
	}
	for _, e := range tx.Entries {
		response.Entries = append(response.Entries, EntryResponse{
			AccountID: e.AccountID.String(),
			Kind:      string(e.Kind),
			Amount:    e.Amount,
		})
	}
	return response
}

func mapGoalToResponse(g *goal.Goal, currency string) GoalResponse {
	response := GoalResponse{
		ID:                   g.ID.String(),
		Name:                 g.Name,
		TargetAmount:         g.TargetAmount,
		CurrentAmount:        g.CurrentAmount,
		ProgressPercent:      g.ProgressPercent(),
		Display:              shared.DisplayAmount(g.CurrentAmount, currency) + " / " + shared.DisplayAmount(g.TargetAmount, currency),
		Status:               string(g.Status),
		Deadline:             formatDay(g.Deadline),
		Frequency:            string(g.Frequency),
		ContributionAmount:   g.ContributionAmount,
		NextContributionDate: formatDay(g.NextContributionDate),
		MilestonesReached:    g.MilestonesReached,
		CreatedAt:            g.CreatedAt.Format(time.RFC3339),
	}
	if response.MilestonesReached == nil {
		response.MilestonesReached = []int{}
	}
	if g.SourceAccountID != nil {
		response.SourceAccountID = g.SourceAccountID.String()
	}
	if g.AccountID != nil {
		response.AccountID = g.AccountID.String()
	}
	return response
}

func mapContributionToResponse(result *ledgersvc.ContributionResult, currency string) ContributionResponse {
	response := ContributionResponse{
		Goal:           mapGoalToResponse(result.Goal, currency),
		ContributionID: result.Contribution.ID.String(),
		TransactionID:  result.Contribution.TransactionID.String(),
		Amount:         result.Contribution.Amount,
		Display:        shared.DisplayAmount(result.Contribution.Amount, currency),
		NewMilestones:  result.NewMilestones,
		IsCompleted:    result.IsCompleted,
		Replayed:       result.Replayed,
	}
	if response.NewMilestones == nil {
		response.NewMilestones = []int{}
	}
	return response
}
