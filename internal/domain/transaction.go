package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ============================================================
// Ledger transactions
// ============================================================

// TransactionType is the direction of a ledger entry.
type TransactionType string

const (
	TransactionIncome  TransactionType = "income"
	TransactionExpense TransactionType = "expense"
)

// Valid reports whether t is a known transaction type.
func (t TransactionType) Valid() bool {
	return t == TransactionIncome || t == TransactionExpense
}

// LaunchType describes how a transaction was launched into the ledger.
// The empty value is the legacy "null" launch and behaves like LaunchSingle.
type LaunchType string

const (
	LaunchNone        LaunchType = ""
	LaunchSingle      LaunchType = "unica"
	LaunchInstallment LaunchType = "parcelada"
	LaunchRecurring   LaunchType = "recorrente"
)

// FrequencyMonthly is the only recurrence frequency that is materialized.
const FrequencyMonthly = "mensal"

// Transaction is a physical ledger row. Materialized listings also carry
// virtual occurrences of recurring definitions, which reuse this shape with
// VirtualDate set.
type Transaction struct {
	ID          string          `json:"id"`
	AccountID   string          `json:"accountId"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Type        TransactionType `json:"type"`
	Date        time.Time       `json:"date"`
	CategoryID  string          `json:"categoryId"`

	BankAccountID *string `json:"bankAccountId,omitempty"`
	PaymentMethod *string `json:"paymentMethod,omitempty"`
	ClientName    *string `json:"clientName,omitempty"`
	ProjectName   *string `json:"projectName,omitempty"`
	CostCenter    *string `json:"costCenter,omitempty"`

	Installments        int     `json:"installments"`
	CurrentInstallment  int     `json:"currentInstallment"`
	InstallmentsGroupID *string `json:"installmentsGroupId,omitempty"`

	LaunchType          LaunchType `json:"launchType,omitempty"`
	RecurrenceFrequency *string    `json:"recurrenceFrequency,omitempty"`
	RecurrenceEndDate   *time.Time `json:"recurrenceEndDate,omitempty"`
	RecurrenceGroupID   *string    `json:"recurrenceGroupId,omitempty"`

	CreditCardInvoiceID  *string `json:"creditCardInvoiceId,omitempty"`
	CreditCardID         *string `json:"creditCardId,omitempty"`
	IsInvoiceTransaction bool    `json:"isInvoiceTransaction"`

	Paid             bool       `json:"paid"`
	IsException      bool       `json:"isException"`
	ExceptionForDate *time.Time `json:"exceptionForDate,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`

	// VirtualDate is only set on materialized output: the occurrence date a
	// virtual row stands for, or the original date an exception overrides.
	VirtualDate *time.Time `json:"virtualDate,omitempty"`
}

// Frequency returns the recurrence frequency or "" when unset.
func (t *Transaction) Frequency() string {
	if t.RecurrenceFrequency == nil {
		return ""
	}
	return *t.RecurrenceFrequency
}

// RecurrenceGroup returns the recurrence group id or "".
func (t *Transaction) RecurrenceGroup() string {
	if t.RecurrenceGroupID == nil {
		return ""
	}
	return *t.RecurrenceGroupID
}

// InstallmentGroup returns the installments group id or "".
func (t *Transaction) InstallmentGroup() string {
	if t.InstallmentsGroupID == nil {
		return ""
	}
	return *t.InstallmentsGroupID
}

// BelongsToRecurrence reports whether the row is part of a recurring series,
// either as its definition or through a group id.
func (t *Transaction) BelongsToRecurrence() bool {
	return t.LaunchType == LaunchRecurring || t.Frequency() != "" || t.RecurrenceGroup() != ""
}

// IsRecurrenceDefinition reports whether the row is a monthly template that
// generates virtual occurrences.
func (t *Transaction) IsRecurrenceDefinition() bool {
	return !t.IsException && t.LaunchType == LaunchRecurring && t.Frequency() == FrequencyMonthly
}

// IsPhysicalListing reports whether the row is listed as-is by the
// materializer: non-exceptions launched as single, installment, or as a
// recurring launch without a frequency.
func (t *Transaction) IsPhysicalListing() bool {
	if t.IsException {
		return false
	}
	switch t.LaunchType {
	case LaunchNone, LaunchSingle, LaunchInstallment:
		return true
	case LaunchRecurring:
		return t.Frequency() == ""
	}
	return false
}

// Clone returns a deep copy, so pointer fields can be changed independently.
func (t Transaction) Clone() Transaction {
	c := t
	c.BankAccountID = cloneStr(t.BankAccountID)
	c.PaymentMethod = cloneStr(t.PaymentMethod)
	c.ClientName = cloneStr(t.ClientName)
	c.ProjectName = cloneStr(t.ProjectName)
	c.CostCenter = cloneStr(t.CostCenter)
	c.InstallmentsGroupID = cloneStr(t.InstallmentsGroupID)
	c.RecurrenceFrequency = cloneStr(t.RecurrenceFrequency)
	c.RecurrenceEndDate = cloneTime(t.RecurrenceEndDate)
	c.RecurrenceGroupID = cloneStr(t.RecurrenceGroupID)
	c.CreditCardInvoiceID = cloneStr(t.CreditCardInvoiceID)
	c.CreditCardID = cloneStr(t.CreditCardID)
	c.ExceptionForDate = cloneTime(t.ExceptionForDate)
	c.VirtualDate = cloneTime(t.VirtualDate)
	return c
}

// NewTransaction is the validated input for creating ledger rows.
type NewTransaction struct {
	AccountID           string
	Description         string
	Amount              decimal.Decimal
	Type                TransactionType
	Date                time.Time
	CategoryID          string
	BankAccountID       *string
	PaymentMethod       *string
	ClientName          *string
	ProjectName         *string
	CostCenter          *string
	LaunchType          LaunchType
	Installments        int
	RecurrenceFrequency string
	RecurrenceEndDate   *time.Time
	Paid                bool
}

// EditScope selects which members of a series an edit or delete touches.
type EditScope string

const (
	ScopeSingle EditScope = "single"
	ScopeFuture EditScope = "future"
	ScopeAll    EditScope = "all"
)

// Valid reports whether s is empty or a known scope.
func (s EditScope) Valid() bool {
	switch s {
	case "", ScopeSingle, ScopeFuture, ScopeAll:
		return true
	}
	return false
}

// GroupRef carries the caller's view of which series a row belongs to.
// Virtual occurrences are re-targeted through ExceptionForDate.
type GroupRef struct {
	InstallmentsGroupID string
	RecurrenceGroupID   string
	ExceptionForDate    *time.Time
}

// DateRange is an inclusive range of UTC calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether d falls within the range, both ends inclusive.
func (r DateRange) Contains(d time.Time) bool {
	return !d.Before(r.Start) && !d.After(r.End)
}

// StrPtr returns a pointer to s.
func StrPtr(s string) *string { return &s }

// TimePtr returns a pointer to t.
func TimePtr(t time.Time) *time.Time { return &t }

// DecimalPtr returns a pointer to d.
func DecimalPtr(d decimal.Decimal) *decimal.Decimal { return &d }

func cloneStr(s *string) *string {
	if s == nil {
		return nil
	}
	v := *s
	return &v
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
