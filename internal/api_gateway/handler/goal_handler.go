package handler

import (
	"context"
	"errors"
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/api_gateway/middleware"
	"github.com/personal-finance-ledger/internal/api_gateway/service"
	"github.com/personal-finance-ledger/internal/domain/goal"
	"github.com/personal-finance-ledger/internal/domain/shared"
	ledgersvc "github.com/personal-finance-ledger/internal/ledger_core/service"
)

// GoalHandler handles savings goals and their contributions
type GoalHandler struct {
	goalService service.GoalService
	currency    string
	logger      *slog.Logger
}

func NewGoalHandler(logger *slog.Logger, goalService service.GoalService, currency string) *GoalHandler {
	return &GoalHandler{
		goalService: goalService,
		currency:    currency,
		logger:      logger,
	}
}

func (h *GoalHandler) Create(c *gin.Context) {
	var req CreateGoalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	params, err := req.toParams()
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "create goal", err)
		return
	}

	g, err := h.goalService.CreateGoal(c.Request.Context(), middleware.GetOwnerID(c), params)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "create goal", err)
		return
	}

	RespondCreated(c, mapGoalToResponse(g, h.currency))
}

func (h *GoalHandler) List(c *gin.Context) {
	goals, err := h.goalService.ListGoals(c.Request.Context(), middleware.GetOwnerID(c))
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "list goals", err)
		return
	}

	response := make([]GoalResponse, 0, len(goals))
	for _, g := range goals {
		response = append(response, mapGoalToResponse(g, h.currency))
	}
	RespondOK(c, response)
}

func (h *GoalHandler) GetByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	g, err := h.goalService.GetGoal(c.Request.Context(), middleware.GetOwnerID(c), id)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "get goal", err)
		return
	}

	RespondOK(c, mapGoalToResponse(g, h.currency))
}

// Contribute moves money from the source account into the goal. A replayed
// idempotency key answers 200 with the original contribution.
func (h *GoalHandler) Contribute(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ContributeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	amount, err := shared.ParseAmount(req.Amount)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "contribute", err)
		return
	}
	source, err := parseOptionalUUID("source_account_id", req.SourceAccountID)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "contribute", err)
		return
	}

	result, err := h.goalService.Contribute(c.Request.Context(), middleware.GetOwnerID(c), ledgersvc.ContributionRequest{
		GoalID:          id,
		Amount:          amount,
		SourceAccountID: source,
		Notes:           req.Notes,
		IdempotencyKey:  c.GetHeader(IdempotencyKeyHeader),
		CorrelationID:   middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "contribute", err)
		return
	}

	if result.Replayed {
		RespondOK(c, mapContributionToResponse(result, h.currency))
		return
	}
	RespondCreated(c, mapContributionToResponse(result, h.currency))
}

func (h *GoalHandler) Pause(c *gin.Context) {
	h.transition(c, "pause goal", h.goalService.PauseGoal)
}

func (h *GoalHandler) Resume(c *gin.Context) {
	h.transition(c, "resume goal", h.goalService.ResumeGoal)
}

func (h *GoalHandler) Cancel(c *gin.Context) {
	h.transition(c, "cancel goal", h.goalService.CancelGoal)
}

type goalTransition func(ctx context.Context, ownerID, goalID uuid.UUID) (*goal.Goal, error)

func (h *GoalHandler) transition(c *gin.Context, op string, apply goalTransition) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	g, err := apply(c.Request.Context(), middleware.GetOwnerID(c), id)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, op, err)
		return
	}

	RespondOK(c, mapGoalToResponse(g, h.currency))
}

func (r CreateGoalRequest) toParams() (goal.Params, error) {
	target, err := shared.ParseAmount(r.TargetAmount)
	if err != nil {
		return goal.Params{}, withField(err, "target_amount")
	}
	source, err := parseOptionalUUID("source_account_id", r.SourceAccountID)
	if err != nil {
		return goal.Params{}, err
	}
	deadline, err := parseDay("deadline", r.Deadline)
	if err != nil {
		return goal.Params{}, err
	}
	frequency, err := goal.ParseFrequency(r.Frequency)
	if err != nil {
		return goal.Params{}, err
	}

	var contribution int64
	if r.ContributionAmount != "" {
		contribution, err = shared.ParseAmount(r.ContributionAmount)
		if err != nil {
			return goal.Params{}, withField(err, "contribution_amount")
		}
	}

	return goal.Params{
		Name:               r.Name,
		TargetAmount:       target,
		SourceAccountID:    source,
		Deadline:           deadline,
		Frequency:          frequency,
		DayOfWeek:          r.DayOfWeek,
		DayOfMonth:         r.DayOfMonth,
		ContributionAmount: contribution,
	}, nil
}

// withField renames the field of an amount validation error
func withField(err error, field string) error {
	var ve shared.ValidationError
	if errors.As(err, &ve) {
		ve.Field = field
		return ve
	}
	return err
}
