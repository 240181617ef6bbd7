package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/personal-finance-ledger/internal/domain/shared"
)

var dateLayouts = []string{"2006-01-02", "01/02/2006", "2006/01/02"}

// Record is one parsed statement line. Amount is signed: negative is money
// leaving the account.
type Record struct {
	Line        int
	Date        time.Time
	Description string
	Amount      int64
	Label       string
	Notes       string
}

// RowError reports why a statement line was not imported
type RowError struct {
	Line  int    `json:"line"`
	Error string `json:"error"`
}

// Parse reads date,description,amount,category[,notes] lines. A first line whose
// first field is "date" is treated as a header. Malformed lines are returned as
// row errors; only an unreadable stream or too many lines fail the whole parse.
func Parse(r io.Reader, maxRows int) ([]Record, []RowError, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.LazyQuotes = true

	var (
		records []Record
		rowErrs []RowError
	)
	for first := true; ; first = false {
		fields, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read csv: %w", err)
		}
		line, _ := reader.FieldPos(0)

		if first && strings.EqualFold(strings.TrimSpace(fields[0]), "date") {
			continue
		}
		if isBlank(fields) {
			continue
		}
		if maxRows > 0 && len(records)+len(rowErrs) >= maxRows {
			return nil, nil, shared.ValidationError{Field: "file", Reason: fmt.Sprintf("more than %d rows", maxRows)}
		}

		rec, err := parseRecord(line, fields)
		if err != nil {
			rowErrs = append(rowErrs, RowError{Line: line, Error: err.Error()})
			continue
		}
		records = append(records, rec)
	}
	return records, rowErrs, nil
}

func isBlank(fields []string) bool {
	for _, f := range fields {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}

func parseRecord(line int, fields []string) (Record, error) {
	if len(fields) < 4 {
		return Record{}, shared.ValidationError{Reason: fmt.Sprintf("expected at least 4 fields, got %d", len(fields))}
	}

	date, err := parseDate(fields[0])
	if err != nil {
		return Record{}, err
	}
	amount, err := shared.ParseCents(fields[2])
	if err != nil {
		return Record{}, err
	}
	if amount == 0 {
		return Record{}, shared.ValidationError{Field: "amount", Reason: "must not be zero"}
	}

	rec := Record{
		Line:        line,
		Date:        date,
		Description: strings.TrimSpace(fields[1]),
		Amount:      amount,
		Label:       fields[3],
	}
	if len(fields) > 4 {
		rec.Notes = strings.TrimSpace(fields[4])
	}
	return rec, nil
}

func parseDate(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t, nil
		}
	}
	return time.Time{}, shared.ValidationError{Field: "date", Reason: fmt.Sprintf("unrecognised date %q", raw)}
}
