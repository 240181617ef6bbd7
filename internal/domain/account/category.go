package account

import (
	"fmt"
	"strings"

	"github.com/personal-finance-ledger/internal/domain/shared"
)

// Category is the semantic tag used to resolve a concrete account, e.g. "food"
type Category string

const (
	CategoryChecking    Category = "checking"
	CategorySavings     Category = "savings"
	CategoryCash        Category = "cash"
	CategoryInvestments Category = "investments"
	CategoryGoal        Category = "goal"

	CategoryCreditCard Category = "credit_card"
	CategoryLoan       Category = "loan"
	CategoryMortgage   Category = "mortgage"

	CategorySalary           Category = "salary"
	CategoryFreelance        Category = "freelance"
	CategoryInvestmentIncome Category = "investment_income"
	CategoryGift             Category = "gift"
	CategoryOtherIncome      Category = "other_income"

	CategoryFood          Category = "food"
	CategoryGroceries     Category = "groceries"
	CategoryTransport     Category = "transport"
	CategoryHousing       Category = "housing"
	CategoryUtilities     Category = "utilities"
	CategoryEntertainment Category = "entertainment"
	CategoryHealth        Category = "health"
	CategoryShopping      Category = "shopping"
	CategoryEducation     Category = "education"
	CategoryTravel        Category = "travel"
	CategorySubscriptions Category = "subscriptions"
	CategoryOtherExpense  Category = "other_expense"
)

type categoryInfo struct {
	accountType Type
	displayName string
}

// AllCategories lists every declared category. Each must appear in categoryTable.
var AllCategories = []Category{
	CategoryChecking, CategorySavings, CategoryCash, CategoryInvestments, CategoryGoal,
	CategoryCreditCard, CategoryLoan, CategoryMortgage,
	CategorySalary, CategoryFreelance, CategoryInvestmentIncome, CategoryGift, CategoryOtherIncome,
	CategoryFood, CategoryGroceries, CategoryTransport, CategoryHousing, CategoryUtilities,
	CategoryEntertainment, CategoryHealth, CategoryShopping, CategoryEducation, CategoryTravel,
	CategorySubscriptions, CategoryOtherExpense,
}

var categoryTable = map[Category]categoryInfo{
	CategoryChecking:    {TypeAsset, "Checking"},
	CategorySavings:     {TypeAsset, "Savings"},
	CategoryCash:        {TypeAsset, "Cash"},
	CategoryInvestments: {TypeAsset, "Investments"},
	CategoryGoal:        {TypeAsset, "Goal"},

	CategoryCreditCard: {TypeLiability, "Credit Card"},
	CategoryLoan:       {TypeLiability, "Loan"},
	CategoryMortgage:   {TypeLiability, "Mortgage"},

	CategorySalary:           {TypeIncome, "Salary"},
	CategoryFreelance:        {TypeIncome, "Freelance"},
	CategoryInvestmentIncome: {TypeIncome, "Investment Income"},
	CategoryGift:             {TypeIncome, "Gifts"},
	CategoryOtherIncome:      {TypeIncome, "Other Income"},

	CategoryFood:          {TypeExpense, "Food & Dining"},
	CategoryGroceries:     {TypeExpense, "Groceries"},
	CategoryTransport:     {TypeExpense, "Transport"},
	CategoryHousing:       {TypeExpense, "Housing"},
	CategoryUtilities:     {TypeExpense, "Utilities"},
	CategoryEntertainment: {TypeExpense, "Entertainment"},
	CategoryHealth:        {TypeExpense, "Health"},
	CategoryShopping:      {TypeExpense, "Shopping"},
	CategoryEducation:     {TypeExpense, "Education"},
	CategoryTravel:        {TypeExpense, "Travel"},
	CategorySubscriptions: {TypeExpense, "Subscriptions"},
	CategoryOtherExpense:  {TypeExpense, "Other Expenses"},
}

func init() {
	if err := checkCategoryTable(AllCategories, categoryTable); err != nil {
		panic(err)
	}
}

// checkCategoryTable fails when a declared category has no type mapping or the
// table carries an undeclared one
func checkCategoryTable(declared []Category, table map[Category]categoryInfo) error {
	seen := make(map[Category]bool, len(declared))
	for _, c := range declared {
		info, ok := table[c]
		if !ok {
			return fmt.Errorf("category %q has no account type mapping", c)
		}
		if _, err := ParseType(string(info.accountType)); err != nil {
			return fmt.Errorf("category %q maps to invalid type %q", c, info.accountType)
		}
		seen[c] = true
	}
	for c := range table {
		if !seen[c] {
			return fmt.Errorf("category %q is mapped but not declared", c)
		}
	}
	return nil
}

// ParseCategory validates a raw category tag. Unknown tags are rejected.
func ParseCategory(raw string) (Category, error) {
	c := Category(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := categoryTable[c]; !ok {
		return "", shared.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", raw)}
	}
	return c, nil
}

// AccountType returns the account type the category belongs to
func (c Category) AccountType() Type {
	return categoryTable[c].accountType
}

// DisplayName returns the generated name for auto-provisioned accounts
func (c Category) DisplayName() string {
	if info, ok := categoryTable[c]; ok {
		return info.displayName
	}
	return string(c)
}

// CheckType ensures the category is known and belongs to accountType
func (c Category) CheckType(accountType Type) error {
	info, ok := categoryTable[c]
	if !ok {
		return shared.ValidationError{Field: "category", Reason: fmt.Sprintf("unknown category %q", string(c))}
	}
	if info.accountType != accountType {
		return shared.ValidationError{
			Field:  "category",
			Reason: fmt.Sprintf("category %q belongs to %s accounts, not %s", string(c), info.accountType, accountType),
		}
	}
	return nil
}

// CategoriesOf lists the categories mapped to accountType, in declaration order
func CategoriesOf(accountType Type) []Category {
	var out []Category
	for _, c := range AllCategories {
		if categoryTable[c].accountType == accountType {
			out = append(out, c)
		}
	}
	return out
}
