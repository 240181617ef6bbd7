package importer

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleMap = `
categories:
  "STARBUCKS": food
  "Payroll ACME": salary
  " uber ": transport
`

func TestParseCategoryMap(t *testing.T) {
	t.Run("valid", func(t *testing.T) {
		m, err := ParseCategoryMap([]byte(sampleMap))
		require.NoError(t, err)
		assert.Equal(t, 3, m.Len())
	})

	t.Run("unknown target", func(t *testing.T) {
		_, err := ParseCategoryMap([]byte("categories:\n  SHELL: fuel\n"))
		assert.ErrorContains(t, err, `category map label "SHELL"`)
	})

	t.Run("goal target", func(t *testing.T) {
		_, err := ParseCategoryMap([]byte("categories:\n  VAULT: goal\n"))
		assert.ErrorContains(t, err, "not an income or expense category")
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := ParseCategoryMap([]byte("categories: [food"))
		assert.ErrorContains(t, err, "failed to parse category map")
	})
}

func TestLoadCategoryMap(t *testing.T) {
	t.Run("empty path is identity", func(t *testing.T) {
		m, err := LoadCategoryMap("")
		require.NoError(t, err)
		assert.Zero(t, m.Len())
	})

	t.Run("reads file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "categories.yaml")
		require.NoError(t, os.WriteFile(path, []byte(sampleMap), 0o600))

		m, err := LoadCategoryMap(path)
		require.NoError(t, err)
		assert.Equal(t, 3, m.Len())
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadCategoryMap(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorContains(t, err, "failed to read category map")
	})
}

func TestCategoryMap_Resolve(t *testing.T) {
	m, err := ParseCategoryMap([]byte(sampleMap))
	require.NoError(t, err)

	tests := []struct {
		label    string
		amount   int64
		expected account.Category
		invalid  bool
	}{
		{"starbucks", -450, account.CategoryFood, false},
		{"UBER", -1200, account.CategoryTransport, false},
		{"Payroll ACME", 250000, account.CategorySalary, false},
		{"groceries", -3000, account.CategoryGroceries, false},
		{"", -100, account.CategoryOtherExpense, false},
		{"  ", 100, account.CategoryOtherIncome, false},
		{"STARBUCKS", 450, "", true},
		{"checking", -100, "", true},
		{"goal", -100, "", true},
		{"lottery", 100, "", true},
	}

	for _, tt := range tests {
		t.Run(tt.label, func(t *testing.T) {
			got, err := m.Resolve(tt.label, tt.amount)
			if tt.invalid {
				assert.Equal(t, shared.KindValidation, shared.KindOf(err))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}
