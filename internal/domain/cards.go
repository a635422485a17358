package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Credit Cards & Invoices
// ============================================================

// CreditCard is a card whose purchases are grouped into monthly invoices.
type CreditCard struct {
	ID         string    `json:"id"`
	AccountID  string    `json:"accountId"`
	Name       string    `json:"name"`
	Brand      string    `json:"brand,omitempty"`
	LastFour   string    `json:"lastFourDigits,omitempty"`
	DueDay     int       `json:"dueDay"`     // 1-31
	ClosingDay int       `json:"closingDay"` // 1-31
	CreatedAt  time.Time `json:"createdAt"`
}

// NewCreditCard is the validated input for registering a card.
type NewCreditCard struct {
	AccountID  string
	Name       string
	Brand      string
	LastFour   string
	DueDay     int
	ClosingDay int
}

// CreditCardTransaction is a purchase on a card. InvoiceMonth ("2024-02")
// is fixed at insertion time.
type CreditCardTransaction struct {
	ID                  string          `json:"id"`
	AccountID           string          `json:"accountId"`
	CreditCardID        string          `json:"creditCardId"`
	Description         string          `json:"description"`
	Amount              decimal.Decimal `json:"amount"`
	Date                time.Time       `json:"date"`
	CategoryID          string          `json:"categoryId"`
	InvoiceMonth        string          `json:"invoiceMonth"`
	Installments        int             `json:"installments"`
	CurrentInstallment  int             `json:"currentInstallment"`
	InstallmentsGroupID *string         `json:"installmentsGroupId,omitempty"`
	CreatedAt           time.Time       `json:"createdAt"`
	UpdatedAt           time.Time       `json:"updatedAt"`
}

// NewCardTransaction is the input for a card purchase. An empty InvoiceMonth
// is derived from the card's closing day.
type NewCardTransaction struct {
	AccountID    string
	CreditCardID string
	Description  string
	Amount       decimal.Decimal
	Date         time.Time
	CategoryID   string
	InvoiceMonth string
	Installments int
}

// CardTransactionPatch is a partial update of a card purchase.
type CardTransactionPatch struct {
	Description  *string
	Amount       *decimal.Decimal
	Date         *time.Time
	CategoryID   *string
	InvoiceMonth *string
}

// ApplyTo merges the patch into t.
func (p CardTransactionPatch) ApplyTo(t *CreditCardTransaction) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.InvoiceMonth != nil {
		t.InvoiceMonth = *p.InvoiceMonth
	}
}

// InvoiceStatus is the payment state of a monthly invoice.
type InvoiceStatus string

const (
	InvoicePending InvoiceStatus = "pending"
	InvoicePaid    InvoiceStatus = "paid"
	InvoiceOverdue InvoiceStatus = "overdue"
)

// InvoicePayment tracks the payment state of one (card, month) invoice and
// points at its synthetic ledger transaction.
type InvoicePayment struct {
	ID            string        `json:"id"`
	AccountID     string        `json:"accountId"`
	CreditCardID  string        `json:"creditCardId"`
	InvoiceMonth  string        `json:"invoiceMonth"`
	Status        InvoiceStatus `json:"status"`
	DueDate       time.Time     `json:"dueDate"`
	TransactionID *string       `json:"transactionId,omitempty"`
	PaidAt        *time.Time    `json:"paidAt,omitempty"`
	CreatedAt     time.Time     `json:"createdAt"`
	UpdatedAt     time.Time     `json:"updatedAt"`
}

// InvoiceKey identifies one invoice of one card.
type InvoiceKey struct {
	CreditCardID string
	InvoiceMonth string
}

// InvoiceID is the identifier stored on synthetic invoice transactions.
func (k InvoiceKey) InvoiceID() string {
	return fmt.Sprintf("%s-%s", k.CreditCardID, k.InvoiceMonth)
}

// InvoiceSummary is one grouped invoice as shown to the user.
type InvoiceSummary struct {
	InvoiceID     string                  `json:"invoiceId"`
	CreditCardID  string                  `json:"creditCardId"`
	CardName      string                  `json:"cardName"`
	InvoiceMonth  string                  `json:"invoiceMonth"`
	Total         decimal.Decimal         `json:"total"`
	PeriodStart   time.Time               `json:"periodStart"`
	PeriodEnd     time.Time               `json:"periodEnd"`
	DueDate       time.Time               `json:"dueDate"`
	Status        InvoiceStatus           `json:"status"`
	TransactionID *string                 `json:"transactionId,omitempty"`
	PaidAt        *time.Time              `json:"paidAt,omitempty"`
	Transactions  []CreditCardTransaction `json:"transactions"`
}

// ResyncReport describes what one invoice resync changed.
type ResyncReport struct {
	Created  int `json:"created"`
	Updated  int `json:"updated"`
	Removed  int `json:"removed"`
	Repaired int `json:"repaired"`
}
