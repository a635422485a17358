package domain

import "github.com/shopspring/decimal"

// ============================================================
// Stats (aggregations over the materialized ledger)
// ============================================================

// AccountStats summarizes one account over one month.
type AccountStats struct {
	AccountID      string          `json:"accountId"`
	Month          string          `json:"month"`
	Income         decimal.Decimal `json:"income"`
	Expense        decimal.Decimal `json:"expense"`
	Balance        decimal.Decimal `json:"balance"`
	PaidIncome     decimal.Decimal `json:"paidIncome"`
	PendingIncome  decimal.Decimal `json:"pendingIncome"`
	PaidExpense    decimal.Decimal `json:"paidExpense"`
	PendingExpense decimal.Decimal `json:"pendingExpense"`
	Transactions   int             `json:"transactions"`
	Virtual        int             `json:"virtual"`
}

// CategoryStat is the total of one category within a month.
type CategoryStat struct {
	CategoryID   string          `json:"categoryId"`
	CategoryName string          `json:"categoryName"`
	Type         TransactionType `json:"type"`
	Total        decimal.Decimal `json:"total"`
	Count        int             `json:"count"`
	Percentage   float64         `json:"percentage"`
}

// CategoryStats groups category totals of one month.
type CategoryStats struct {
	AccountID string         `json:"accountId"`
	Month     string         `json:"month"`
	Expense   []CategoryStat `json:"expense"`
	Income    []CategoryStat `json:"income"`
}
