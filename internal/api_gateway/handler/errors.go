package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/personal-finance-ledger/internal/api_gateway/middleware"
	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/shared"
	applog "github.com/personal-finance-ledger/internal/logger"
)

const IdempotencyKeyHeader = middleware.IdempotencyKeyHeader

// InsufficientFundsDetails is the body of a 422 response
type InsufficientFundsDetails struct {
	AccountID        string `json:"account_id"`
	Balance          int64  `json:"balance"`
	Requested        int64  `json:"requested"`
	Shortfall        int64  `json:"shortfall"`
	ShortfallDisplay string `json:"shortfall_display"`
}

// respondLedgerError maps a classified ledger error onto its HTTP status
func respondLedgerError(c *gin.Context, logger *slog.Logger, currency, op string, err error) {
	logger = applog.WithCorrelationID(logger, middleware.GetCorrelationID(c)).With("operation", op)

	switch shared.KindOf(err) {
	case shared.KindValidation:
		logger.Info("Request rejected", "error", err)
		RespondWithError(c, http.StatusBadRequest, string(shared.KindValidation), err.Error())
	case shared.KindNotFound:
		RespondNotFound(c, err.Error())
	case shared.KindAuthorization:
		applog.SecurityEvent(logger, "Owner mismatch", "owner_id", middleware.GetOwnerID(c).String(), "error", err)
		RespondForbidden(c, "")
	case shared.KindInsufficientFunds:
		var insufficient account.ErrInsufficientFunds
		if errors.As(err, &insufficient) {
			RespondUnprocessable(c, string(shared.KindInsufficientFunds), err.Error(), InsufficientFundsDetails{
				AccountID:        insufficient.AccountID.String(),
				Balance:          insufficient.Balance,
				Requested:        insufficient.Requested,
				Shortfall:        insufficient.Shortfall(),
				ShortfallDisplay: shared.DisplayAmount(insufficient.Shortfall(), currency),
			})
			return
		}
		RespondUnprocessable(c, string(shared.KindInsufficientFunds), err.Error(), nil)
	default:
		logger.Error("Request failed", "error", err)
		RespondInternalError(c)
	}
}

func parseIDParam(c *gin.Context, name string) (uuid.UUID, bool) {
	raw := c.Param(name)
	id, err := uuid.Parse(raw)
	if err != nil {
		RespondBadRequest(c, "Invalid "+strings.ReplaceAll(name, "_", " ")+": "+raw)
		return uuid.Nil, false
	}
	return id, true
}

// parseDay accepts an empty string as "not given"
func parseDay(field, raw string) (*time.Time, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, nil
	}
	day, err := time.Parse(dateLayout, raw)
	if err != nil {
		return nil, shared.ValidationError{Field: field, Reason: "expected YYYY-MM-DD, got " + raw}
	}
	return &day, nil
}

func parseOptionalUUID(field, raw string) (*uuid.UUID, error) {
	if raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, shared.ValidationError{Field: field, Reason: "not a uuid"}
	}
	return &id, nil
}

// parseRange defaults a missing bound to the open end of the calendar
func parseRange(params DateRangeParams) (time.Time, time.Time, error) {
	from, err := parseDay("from", params.From)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	to, err := parseDay("to", params.To)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}

	start := time.Time{}
	if from != nil {
		start = *from
	}
	end := time.Date(9999, 12, 31, 0, 0, 0, 0, time.UTC)
	if to != nil {
		end = *to
	}
	return start, end, nil
}
