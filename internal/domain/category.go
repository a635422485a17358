package domain

import "time"

// Category classifies ledger rows of one account.
type Category struct {
	ID        string          `json:"id"`
	AccountID string          `json:"accountId"`
	Name      string          `json:"name"`
	Type      TransactionType `json:"type"`
	Color     string          `json:"color"`
	Icon      string          `json:"icon"`
	CreatedAt time.Time       `json:"createdAt"`
}

// CategorySpec describes a category to look up by (name, type) or create.
type CategorySpec struct {
	Name  string
	Type  TransactionType
	Color string
	Icon  string
}

// InvoiceCategory is the fallback expense category that every synthetic
// invoice transaction is filed under.
var InvoiceCategory = CategorySpec{
	Name:  "Faturas de Cartão",
	Type:  TransactionExpense,
	Color: "#8B5CF6",
	Icon:  "credit-card",
}
