package domain

import "encoding/json"

// ============================================================
// API payloads (match the frontend contract)
// ============================================================
// Dates travel as "2006-01-02" strings and amounts as JSON numbers or
// numeric strings; handlers convert them into the typed service inputs.

// CreateTransactionRequest is the body for POST /v1/accounts/{accountId}/transactions.
type CreateTransactionRequest struct {
	Description         string          `json:"description"`
	Amount              json.RawMessage `json:"amount"`
	Type                string          `json:"type"`
	Date                string          `json:"date"`
	CategoryID          string          `json:"categoryId"`
	BankAccountID       *string         `json:"bankAccountId,omitempty"`
	PaymentMethod       *string         `json:"paymentMethod,omitempty"`
	ClientName          *string         `json:"clientName,omitempty"`
	ProjectName         *string         `json:"projectName,omitempty"`
	CostCenter          *string         `json:"costCenter,omitempty"`
	LaunchType          string          `json:"launchType,omitempty"`
	Installments        int             `json:"installments,omitempty"`
	RecurrenceFrequency string          `json:"recurrenceFrequency,omitempty"`
	RecurrenceEndDate   *string         `json:"recurrenceEndDate,omitempty"`
	Paid                bool            `json:"paid"`
}

// UpdateTransactionRequest is the body for PATCH /v1/accounts/{accountId}/transactions/{id}.
type UpdateTransactionRequest struct {
	Description       *string          `json:"description,omitempty"`
	Amount            json.RawMessage  `json:"amount,omitempty"`
	Type              *string          `json:"type,omitempty"`
	Date              *string          `json:"date,omitempty"`
	CategoryID        *string          `json:"categoryId,omitempty"`
	Paid              *bool            `json:"paid,omitempty"`
	BankAccountID     Nullable[string] `json:"bankAccountId"`
	PaymentMethod     Nullable[string] `json:"paymentMethod"`
	ClientName        Nullable[string] `json:"clientName"`
	ProjectName       Nullable[string] `json:"projectName"`
	CostCenter        Nullable[string] `json:"costCenter"`
	RecurrenceEndDate Nullable[string] `json:"recurrenceEndDate"`

	Scope               string `json:"scope,omitempty"`
	InstallmentsGroupID string `json:"installmentsGroupId,omitempty"`
	RecurrenceGroupID   string `json:"recurrenceGroupId,omitempty"`
	ExceptionForDate    string `json:"exceptionForDate,omitempty"`
}

// CreateCardRequest is the body for POST /v1/accounts/{accountId}/cards.
type CreateCardRequest struct {
	Name       string `json:"name"`
	Brand      string `json:"brand,omitempty"`
	LastFour   string `json:"lastFourDigits,omitempty"`
	DueDay     int    `json:"dueDay"`
	ClosingDay int    `json:"closingDay"`
}

// CreateCardTransactionRequest is the body for POST /v1/accounts/{accountId}/card-transactions.
type CreateCardTransactionRequest struct {
	CreditCardID string          `json:"creditCardId"`
	Description  string          `json:"description"`
	Amount       json.RawMessage `json:"amount"`
	Date         string          `json:"date"`
	CategoryID   string          `json:"categoryId"`
	InvoiceMonth string          `json:"invoiceMonth,omitempty"`
	Installments int             `json:"installments,omitempty"`
}

// UpdateCardTransactionRequest is the body for PATCH /v1/accounts/{accountId}/card-transactions/{id}.
type UpdateCardTransactionRequest struct {
	Description  *string         `json:"description,omitempty"`
	Amount       json.RawMessage `json:"amount,omitempty"`
	Date         *string         `json:"date,omitempty"`
	CategoryID   *string         `json:"categoryId,omitempty"`
	InvoiceMonth *string         `json:"invoiceMonth,omitempty"`
}

// PayInvoiceRequest is the body for POST /v1/accounts/{accountId}/invoices/{cardId}/{month}/pay.
type PayInvoiceRequest struct {
	PaidAt string `json:"paidAt,omitempty"`
}
