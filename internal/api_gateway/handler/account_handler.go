package handler

import (
	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/personal-finance-ledger/internal/api_gateway/middleware"
	"github.com/personal-finance-ledger/internal/api_gateway/service"
	"github.com/personal-finance-ledger/internal/domain/account"
)

// AccountHandler handles HTTP requests for account operations
type AccountHandler struct {
	accountService service.AccountService
	currency       string
	logger         *slog.Logger
}

// NewAccountHandler creates a new account handler
func NewAccountHandler(logger *slog.Logger, accountService service.AccountService, currency string) *AccountHandler {
	return &AccountHandler{
		accountService: accountService,
		currency:       currency,
		logger:         logger,
	}
}

// Resolve returns the owner's account for a type and category, creating it on first use
func (h *AccountHandler) Resolve(c *gin.Context) {
	var req ResolveAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	accountType, err := account.ParseType(req.Type)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "resolve account", err)
		return
	}
	category, err := account.ParseCategory(req.Category)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "resolve account", err)
		return
	}

	acc, err := h.accountService.ResolveAccount(c.Request.Context(), middleware.GetOwnerID(c), accountType, category)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "resolve account", err)
		return
	}

	RespondOK(c, mapAccountToResponse(acc, h.currency))
}

func (h *AccountHandler) List(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts(c.Request.Context(), middleware.GetOwnerID(c))
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "list accounts", err)
		return
	}

	response := make([]AccountResponse, 0, len(accounts))
	for _, acc := range accounts {
		response = append(response, mapAccountToResponse(acc, h.currency))
	}
	RespondOK(c, response)
}

// GetByID retrieves an account by its ID, returning 404 if not found
func (h *AccountHandler) GetByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	acc, err := h.accountService.GetAccount(c.Request.Context(), middleware.GetOwnerID(c), id)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "get account", err)
		return
	}

	RespondOK(c, mapAccountToResponse(acc, h.currency))
}

// Deactivate hides an account from new entries; its history is kept
func (h *AccountHandler) Deactivate(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	if err := h.accountService.DeactivateAccount(c.Request.Context(), middleware.GetOwnerID(c), id); err != nil {
		respondLedgerError(c, h.logger, h.currency, "deactivate account", err)
		return
	}

	RespondNoContent(c)
}
