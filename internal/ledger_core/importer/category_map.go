package importer

import (
	"fmt"
	"os"
	"strings"

	"github.com/personal-finance-ledger/internal/domain/account"
	"github.com/personal-finance-ledger/internal/domain/shared"
	"gopkg.in/yaml.v3"
)

// CategoryMapConfig is the YAML shape of a bank label mapping file:
//
//	categories:
//	  "STARBUCKS": food
//	  "PAYROLL ACME": salary
type CategoryMapConfig struct {
	Categories map[string]string `yaml:"categories"`
}

// CategoryMap turns raw bank category labels into income or expense categories
type CategoryMap struct {
	labels map[string]account.Category
}

// IdentityCategoryMap accepts only labels that already name a category
func IdentityCategoryMap() *CategoryMap {
	return &CategoryMap{labels: map[string]account.Category{}}
}

// LoadCategoryMap reads the mapping file at path. An empty path yields the
// identity mapping.
func LoadCategoryMap(path string) (*CategoryMap, error) {
	if path == "" {
		return IdentityCategoryMap(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read category map: %w", err)
	}
	return ParseCategoryMap(data)
}

// ParseCategoryMap validates every mapping target up front, so an unknown or
// non-importable category fails here rather than on the first matching row
func ParseCategoryMap(data []byte) (*CategoryMap, error) {
	var cfg CategoryMapConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse category map: %w", err)
	}

	m := &CategoryMap{labels: make(map[string]account.Category, len(cfg.Categories))}
	for label, target := range cfg.Categories {
		category, err := account.ParseCategory(target)
		if err != nil {
			return nil, fmt.Errorf("category map label %q: %w", label, err)
		}
		if !importable(category) {
			return nil, fmt.Errorf("category map label %q: %q is not an income or expense category", label, category)
		}
		m.labels[normalizeLabel(label)] = category
	}
	return m, nil
}

func normalizeLabel(label string) string {
	return strings.ToLower(strings.TrimSpace(label))
}

func importable(c account.Category) bool {
	t := c.AccountType()
	return t == account.TypeIncome || t == account.TypeExpense
}

// Len is the number of mapped labels
func (m *CategoryMap) Len() int {
	return len(m.labels)
}

// Resolve maps label to a category whose direction matches the sign of amount:
// outflows need an expense category, inflows an income category. A blank label
// falls back to other_expense or other_income.
func (m *CategoryMap) Resolve(label string, amount int64) (account.Category, error) {
	want := account.TypeExpense
	if amount > 0 {
		want = account.TypeIncome
	}

	key := normalizeLabel(label)
	if key == "" {
		if want == account.TypeIncome {
			return account.CategoryOtherIncome, nil
		}
		return account.CategoryOtherExpense, nil
	}

	category, ok := m.labels[key]
	if !ok {
		var err error
		if category, err = account.ParseCategory(key); err != nil {
			return "", err
		}
	}
	if !importable(category) {
		return "", shared.ValidationError{Field: "category", Reason: fmt.Sprintf("%q cannot be imported", category)}
	}
	if err := category.CheckType(want); err != nil {
		return "", err
	}
	return category, nil
}
