package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/api_gateway/middleware"
	"github.com/personal-finance-ledger/internal/api_gateway/service"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/ledger"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/personal-finance-ledger/internal/ledger_core/importer"
	ledgersvc "github.com/personal-finance-ledger/internal/ledger_core/service"
)

// TransactionHandler handles HTTP requests for transaction operations
type TransactionHandler struct {
	transactionService service.TransactionService
	currency           string
	maxUploadBytes     int64
	logger             *slog.Logger
}

// NewTransactionHandler creates a new transaction handler
func NewTransactionHandler(logger *slog.Logger, transactionService service.TransactionService, currency string, maxUploadBytes int64) *TransactionHandler {
	return &TransactionHandler{
		transactionService: transactionService,
		currency:           currency,
		maxUploadBytes:     maxUploadBytes,
		logger:             logger,
	}
}

// Create commits a balanced set of entries as one transaction
func (h *TransactionHandler) Create(c *gin.Context) {
	var req CommitTransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	date, err := parseDay("date", req.Date)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "commit transaction", err)
		return
	}

	entries := make([]ledger.Entry, 0, len(req.Entries))
	for _, e := range req.Entries {
		kind, err := ledger.ParseEntryKind(e.Kind)
		if err != nil {
			respondLedgerError(c, h.logger, h.currency, "commit transaction", err)
			return
		}
		amount, err := shared.ParseAmount(e.Amount)
		if err != nil {
			respondLedgerError(c, h.logger, h.currency, "commit transaction", err)
			return
		}
		entries = append(entries, ledger.Entry{AccountID: uuid.MustParse(e.AccountID), Kind: kind, Amount: amount})
	}

	meta := ledger.Meta{
		Description:    req.Description,
		Category:       req.Category,
		Notes:          req.Notes,
		Location:       req.Location.toDomain(),
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
		CorrelationID:  middleware.GetCorrelationID(c),
	}
	if date != nil {
		meta.Date = *date
	}

	tx, err := h.transactionService.CommitTransaction(c.Request.Context(), middleware.GetOwnerID(c), meta, entries)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "commit transaction", err)
		return
	}

	RespondCreated(c, mapTransactionToResponse(tx, h.currency))
}

// QuickDeal records a one-step income or expense against a cash account
func (h *TransactionHandler) QuickDeal(c *gin.Context) {
	var req QuickDealRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.logger.Error("Invalid request body", "error", err)
		RespondBadRequest(c, "Invalid request body: "+err.Error())
		return
	}

	amount, err := shared.ParseAmount(req.Amount)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "quick deal", err)
		return
	}
	category, err := account.ParseCategory(req.Category)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "quick deal", err)
		return
	}
	date, err := parseDay("date", req.Date)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "quick deal", err)
		return
	}

	deal := ledgersvc.QuickDealRequest{
		Type:           ledgersvc.DealType(req.Type),
		Amount:         amount,
		Category:       category,
		AccountID:      uuid.MustParse(req.AccountID),
		Description:    req.Description,
		Notes:          req.Notes,
		Location:       req.Location.toDomain(),
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
		CorrelationID:  middleware.GetCorrelationID(c),
	}
	if date != nil {
		deal.Date = *date
	}

	tx, err := h.transactionService.QuickDeal(c.Request.Context(), middleware.GetOwnerID(c), deal)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "quick deal", err)
		return
	}

	RespondCreated(c, mapTransactionToResponse(tx, h.currency))
}

// Reverse commits the compensating transaction of a committed one
func (h *TransactionHandler) Reverse(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	var req ReverseTransactionRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			RespondBadRequest(c, "Invalid request body: "+err.Error())
			return
		}
	}

	tx, err := h.transactionService.ReverseTransaction(c.Request.Context(), middleware.GetOwnerID(c), ledgersvc.ReversalRequest{
		TransactionID:  id,
		Reason:         req.Reason,
		IdempotencyKey: c.GetHeader(IdempotencyKeyHeader),
		CorrelationID:  middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "reverse transaction", err)
		return
	}

	RespondCreated(c, mapTransactionToResponse(tx, h.currency))
}

// GetByID retrieves a transaction with its entries
func (h *TransactionHandler) GetByID(c *gin.Context) {
	id, ok := parseIDParam(c, "id")
	if !ok {
		return
	}

	tx, err := h.transactionService.GetTransaction(c.Request.Context(), middleware.GetOwnerID(c), id)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "get transaction", err)
		return
	}

	RespondOK(c, mapTransactionToResponse(tx, h.currency))
}

// List returns the owner's transactions between two inclusive days
func (h *TransactionHandler) List(c *gin.Context) {
	var params DateRangeParams
	if err := c.ShouldBindQuery(&params); err != nil {
		RespondBadRequest(c, "Invalid query parameters: "+err.Error())
		return
	}
	from, to, err := parseRange(params)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "list transactions", err)
		return
	}

	txs, err := h.transactionService.ListTransactions(c.Request.Context(), middleware.GetOwnerID(c), from, to)
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "list transactions", err)
		return
	}

	response := make([]TransactionResponse, 0, len(txs))
	for _, tx := range txs {
		response = append(response, mapTransactionToResponse(tx, h.currency))
	}
	RespondOK(c, response)
}

// ImportCSV commits an uploaded bank statement. The optional batch_id form
// field makes re-uploads idempotent.
func (h *TransactionHandler) ImportCSV(c *gin.Context) {
	if h.maxUploadBytes > 0 {
		if c.Request.ContentLength > h.maxUploadBytes {
			RespondWithError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "statement exceeds the upload limit")
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxUploadBytes)
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			RespondWithError(c, http.StatusRequestEntityTooLarge, "PAYLOAD_TOO_LARGE", "statement exceeds the upload limit")
			return
		}
		RespondBadRequest(c, "missing multipart file field \"file\"")
		return
	}

	file, err := fileHeader.Open()
	if err != nil {
		h.logger.Error("Failed to open uploaded statement", "error", err)
		RespondInternalError(c)
		return
	}
	defer file.Close()

	report, err := h.transactionService.ImportCSV(c.Request.Context(), middleware.GetOwnerID(c), file, importer.Request{
		BatchID:       c.PostForm("batch_id"),
		CorrelationID: middleware.GetCorrelationID(c),
	})
	if err != nil {
		respondLedgerError(c, h.logger, h.currency, "import statement", err)
		return
	}

	RespondOK(c, report)
}
