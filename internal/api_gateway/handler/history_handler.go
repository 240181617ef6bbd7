package handler

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/personal-finance-ledger/internal/api_gateway/middleware"
	"github.com/personal-finance-ledger/internal/api_gateway/service"
)

// HistoryHandler serves the transaction history read model
type HistoryHandler struct {
	historyService service.HistoryService
	logger         *slog.Logger
}

func NewHistoryHandler(logger *slog.Logger, historyService service.HistoryService) *HistoryHandler {
	return &HistoryHandler{
		historyService: historyService,
		logger:         logger,
	}
}

// List returns one page of the owner's history between two inclusive days
func (h *HistoryHandler) List(c *gin.Context) {
	var rng DateRangeParams
	if err := c.ShouldBindQuery(&rng); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	var pagination PaginationParams
	if err := c.ShouldBindQuery(&pagination); err != nil {
		RespondBadRequest(c, "Invalid pagination parameters: "+err.Error())
		return
	}

	from, to, err := parseRange(rng)
	if err != nil {
		respondLedgerError(c, h.logger, "", "read history", err)
		return
	}

	records, total, err := h.historyService.GetHistory(c.Request.Context(), middleware.GetOwnerID(c), from, to, pagination.Page, pagination.PerPage)
	if err != nil {
		respondLedgerError(c, h.logger, "", "read history", err)
		return
	}

	RespondWithPaginatedData(c, http.StatusOK, records, pagination.Page, pagination.PerPage, int(total))
}
