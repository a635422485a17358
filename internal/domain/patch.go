package domain

import (
	"bytes"
	"encoding/json"
	"time"

	"github.com/shopspring/decimal"
)

// Nullable is a patch field that distinguishes "absent" from "set to null".
// Set is true whenever the key was present in the payload; Value is nil when
// the caller explicitly cleared the field.
type Nullable[T any] struct {
	Set   bool
	Value *T
}

// NullableOf returns a set Nullable holding v.
func NullableOf[T any](v T) Nullable[T] {
	return Nullable[T]{Set: true, Value: &v}
}

// NullableClear returns a set Nullable holding null.
func NullableClear[T any]() Nullable[T] {
	return Nullable[T]{Set: true}
}

func (n *Nullable[T]) UnmarshalJSON(data []byte) error {
	n.Set = true
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		n.Value = nil
		return nil
	}
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	n.Value = &v
	return nil
}

// TransactionPatch is a partial update of a ledger row. Nil pointers and
// unset Nullables leave the stored value untouched.
//
// Merge rules:
//   - Date is never applied by ApplyTo; group edits re-derive each member's
//     date from its offset to the reference row (see the edit-scope resolver).
//   - Paid is applied as given; virtual occurrences never expose it.
//   - Nullable fields clear the column when Set with a nil Value.
type TransactionPatch struct {
	Description *string
	Amount      *decimal.Decimal
	Type        *TransactionType
	Date        *time.Time
	CategoryID  *string
	Paid        *bool

	BankAccountID     Nullable[string]
	PaymentMethod     Nullable[string]
	ClientName        Nullable[string]
	ProjectName       Nullable[string]
	CostCenter        Nullable[string]
	RecurrenceEndDate Nullable[time.Time]
}

// IsEmpty reports whether the patch changes nothing.
func (p TransactionPatch) IsEmpty() bool {
	return p.Description == nil && p.Amount == nil && p.Type == nil && p.Date == nil &&
		p.CategoryID == nil && p.Paid == nil && !p.BankAccountID.Set && !p.PaymentMethod.Set &&
		!p.ClientName.Set && !p.ProjectName.Set && !p.CostCenter.Set && !p.RecurrenceEndDate.Set
}

// OnlyTouchesPaymentFields reports whether the patch sets nothing beyond Paid and Date.
func (p TransactionPatch) OnlyTouchesPaymentFields() bool {
	rest := p
	rest.Paid = nil
	rest.Date = nil
	return rest.IsEmpty()
}

// ApplyTo merges every field except Date into t.
func (p TransactionPatch) ApplyTo(t *Transaction) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Paid != nil {
		t.Paid = *p.Paid
	}
	applyNullable(&t.BankAccountID, p.BankAccountID)
	applyNullable(&t.PaymentMethod, p.PaymentMethod)
	applyNullable(&t.ClientName, p.ClientName)
	applyNullable(&t.ProjectName, p.ProjectName)
	applyNullable(&t.CostCenter, p.CostCenter)
	applyNullable(&t.RecurrenceEndDate, p.RecurrenceEndDate)
}

// ApplyToException merges the subset of fields an existing exception row
// accepts: description, amount, type, date, category, bank account and paid.
func (p TransactionPatch) ApplyToException(t *Transaction) {
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.Date != nil {
		t.Date = *p.Date
	}
	if p.CategoryID != nil {
		t.CategoryID = *p.CategoryID
	}
	if p.Paid != nil {
		t.Paid = *p.Paid
	}
	applyNullable(&t.BankAccountID, p.BankAccountID)
}

// Validate checks the values carried by the patch.
func (p TransactionPatch) Validate() error {
	errs := &ErrValidationFields{}
	if p.Description != nil && *p.Description == "" {
		errs.Add("description", "must not be empty")
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		errs.Add("amount", "must be greater than zero")
	}
	if p.Type != nil && !p.Type.Valid() {
		errs.Add("type", "must be income or expense")
	}
	if p.CategoryID != nil && *p.CategoryID == "" {
		errs.Add("categoryId", "must not be empty")
	}
	return errs.OrNil()
}

func applyNullable[T any](dst **T, n Nullable[T]) {
	if !n.Set {
		return
	}
	if n.Value == nil {
		*dst = nil
		return
	}
	v := *n.Value
	*dst = &v
}
