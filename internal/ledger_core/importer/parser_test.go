package importer

import (
	"strings"
	"testing"
	"time"

	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	input := strings.Join([]string{
		"Date,Description,Amount,Category,Notes",
		"2024-06-01,Coffee,-4.50,food",
		`2024-06-02,"Salary, June",2500.00,salary,monthly`,
		"06/03/2024,Bus,-2.75,transport",
		"",
		"not-a-date,Broken,-1.00,food",
		"2024-06-04,Zero,0,food",
		"2024-06-05,Short,-1.00",
		"2024-06-06,Lunch,12.5x,food",
	}, "\n")

	records, rowErrs, err := Parse(strings.NewReader(input), 100)

	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, Record{
		Line:        2,
		Date:        time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		Description: "Coffee",
		Amount:      -450,
		Label:       "food",
	}, records[0])
	assert.Equal(t, "Salary, June", records[1].Description)
	assert.Equal(t, int64(250000), records[1].Amount)
	assert.Equal(t, "monthly", records[1].Notes)
	assert.Equal(t, time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC), records[2].Date)

	require.Len(t, rowErrs, 4)
	assert.Equal(t, 6, rowErrs[0].Line)
	assert.Contains(t, rowErrs[0].Error, "unrecognised date")
	assert.Contains(t, rowErrs[1].Error, "must not be zero")
	assert.Contains(t, rowErrs[2].Error, "expected at least 4 fields")
	assert.Contains(t, rowErrs[3].Error, "malformed decimal")
}

func TestParse_WithoutHeader(t *testing.T) {
	records, rowErrs, err := Parse(strings.NewReader("2024-06-01,Coffee,-4.50,food\n"), 10)

	require.NoError(t, err)
	assert.Empty(t, rowErrs)
	require.Len(t, records, 1)
	assert.Equal(t, 1, records[0].Line)
}

func TestParse_TooManyRows(t *testing.T) {
	input := "2024-06-01,A,-1,food\n2024-06-01,B,-1,food\n2024-06-01,C,-1,food\n"

	_, _, err := Parse(strings.NewReader(input), 2)

	assert.Equal(t, shared.KindValidation, shared.KindOf(err))
}
