package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/cache"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/memory"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/observability"
	"github.com/boddenberg/pj-finance-ledger/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type invoiceFixture struct {
	store    *memory.Store
	invoices *service.InvoiceService
	card     *domain.CreditCard
}

func newInvoiceFixture(t *testing.T) *invoiceFixture {
	t.Helper()
	store := memory.New()
	metrics := observability.NewMetrics()
	categories := service.NewCategoryService(store, cache.New[string](time.Minute), metrics, zap.NewNop())
	svc := service.NewInvoiceService(store, categories, metrics, zap.NewNop())

	card, err := svc.CreateCard(context.Background(), domain.NewCreditCard{
		AccountID:  testAccount,
		Name:       "Nubank",
		Brand:      "mastercard",
		LastFour:   "1234",
		DueDay:     10,
		ClosingDay: 5,
	})
	if err != nil {
		t.Fatalf("create card: %v", err)
	}
	return &invoiceFixture{store: store, invoices: svc, card: card}
}

func (f *invoiceFixture) purchase(t *testing.T, amount int64, date time.Time, installments int) []domain.CreditCardTransaction {
	t.Helper()
	rows, err := f.invoices.CreateCardTransaction(context.Background(), domain.NewCardTransaction{
		AccountID:    testAccount,
		CreditCardID: f.card.ID,
		Description:  "Compra",
		Amount:       decimal.NewFromInt(amount),
		Date:         date,
		CategoryID:   "cat-shopping",
		Installments: installments,
	})
	if err != nil {
		t.Fatalf("create card transaction: %v", err)
	}
	return rows
}

func (f *invoiceFixture) invoiceRows(t *testing.T) []domain.Transaction {
	t.Helper()
	rows, err := f.store.ListInvoiceTransactions(context.Background(), testAccount)
	if err != nil {
		t.Fatalf("list invoice transactions: %v", err)
	}
	return rows
}

func TestCreateCardTransaction_CreatesInvoiceTransaction(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()

	rows := f.purchase(t, 100, datemath.Date(2024, 3, 2), 0)
	if rows[0].InvoiceMonth != "2024-03" {
		t.Fatalf("expected invoice month 2024-03 before closing day, got %s", rows[0].InvoiceMonth)
	}
	f.purchase(t, 50, datemath.Date(2024, 3, 3), 0)

	inv := f.invoiceRows(t)
	if len(inv) != 1 {
		t.Fatalf("expected one synthetic transaction, got %d", len(inv))
	}
	row := inv[0]
	if !row.Amount.Equal(decimal.NewFromInt(150)) {
		t.Errorf("expected total 150, got %s", row.Amount)
	}
	if !row.Date.Equal(datemath.Date(2024, 3, 10)) {
		t.Errorf("expected due date 2024-03-10, got %s", datemath.FormatDate(row.Date))
	}
	if row.Description != "Fatura Nubank - Março 2024" {
		t.Errorf("unexpected description %q", row.Description)
	}
	if row.Type != domain.TransactionExpense || row.Paid || !row.IsInvoiceTransaction {
		t.Errorf("unexpected synthetic row %+v", row)
	}
	if row.CreditCardInvoiceID == nil || *row.CreditCardInvoiceID != f.card.ID+"-2024-03" {
		t.Errorf("unexpected invoice id %v", row.CreditCardInvoiceID)
	}

	cat, err := f.store.FindCategory(ctx, testAccount, domain.InvoiceCategory.Name, domain.TransactionExpense)
	if err != nil {
		t.Fatalf("expected invoice category, got %v", err)
	}
	if row.CategoryID != cat.ID {
		t.Errorf("expected synthetic row in %q", domain.InvoiceCategory.Name)
	}

	p, err := f.store.GetInvoicePayment(ctx, testAccount, domain.InvoiceKey{CreditCardID: f.card.ID, InvoiceMonth: "2024-03"})
	if err != nil {
		t.Fatalf("expected invoice payment, got %v", err)
	}
	if p.Status != domain.InvoicePending || p.TransactionID == nil || *p.TransactionID != row.ID {
		t.Errorf("unexpected payment %+v", p)
	}
}

func TestCreateCardTransaction_AfterClosingGoesToNextInvoice(t *testing.T) {
	f := newInvoiceFixture(t)
	rows := f.purchase(t, 80, datemath.Date(2024, 3, 5), 0)
	if rows[0].InvoiceMonth != "2024-04" {
		t.Fatalf("expected 2024-04, got %s", rows[0].InvoiceMonth)
	}
}

func TestCreateCardTransaction_InstallmentsSpreadAcrossInvoices(t *testing.T) {
	f := newInvoiceFixture(t)
	rows := f.purchase(t, 200, datemath.Date(2024, 1, 2), 3)
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	wantMonths := []string{"2024-01", "2024-02", "2024-03"}
	for i, r := range rows {
		if r.InvoiceMonth != wantMonths[i] || r.CurrentInstallment != i+1 {
			t.Errorf("row %d: got month %s installment %d", i, r.InvoiceMonth, r.CurrentInstallment)
		}
	}
	if got := len(f.invoiceRows(t)); got != 3 {
		t.Errorf("expected 3 synthetic transactions, got %d", got)
	}
}

func TestResync_IsIdempotent(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, datemath.Date(2024, 3, 2), 2)

	before := f.invoiceRows(t)
	report, err := f.invoices.Resync(ctx, testAccount)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if *report != (domain.ResyncReport{}) {
		t.Errorf("expected no changes on second resync, got %+v", report)
	}
	after := f.invoiceRows(t)
	if len(before) != len(after) {
		t.Fatalf("expected %d rows, got %d", len(before), len(after))
	}
	for i := range before {
		if before[i].ID != after[i].ID || !before[i].Amount.Equal(after[i].Amount) || !before[i].UpdatedAt.Equal(after[i].UpdatedAt) {
			t.Errorf("row %d changed across resync", i)
		}
	}
}

func TestResync_RepairsDuplicatesAndOrphans(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, datemath.Date(2024, 3, 2), 0)

	original := f.invoiceRows(t)[0]
	dup := original.Clone()
	dup.ID = "dup-1"
	orphan := original.Clone()
	orphan.ID = "orphan-1"
	orphan.CreditCardInvoiceID = nil
	if err := f.store.CreateTransactions(ctx, []domain.Transaction{dup, orphan}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	report, err := f.invoices.Resync(ctx, testAccount)
	if err != nil {
		t.Fatalf("resync: %v", err)
	}
	if report.Repaired != 2 {
		t.Errorf("expected 2 repaired rows, got %d", report.Repaired)
	}
	rows := f.invoiceRows(t)
	if len(rows) != 1 || rows[0].ID != original.ID {
		t.Fatalf("expected only the original synthetic row, got %d rows", len(rows))
	}
}

func TestDeleteCardTransaction_RemovesInvoiceAndReleasesPayment(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	rows := f.purchase(t, 100, datemath.Date(2024, 3, 2), 0)

	if _, err := f.invoices.PayInvoice(ctx, testAccount, f.card.ID, "2024-03", nil); err != nil {
		t.Fatalf("pay: %v", err)
	}

	if err := f.invoices.DeleteCardTransaction(ctx, testAccount, rows[0].ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if got := len(f.invoiceRows(t)); got != 0 {
		t.Fatalf("expected synthetic row to be removed, got %d", got)
	}
	p, err := f.store.GetInvoicePayment(ctx, testAccount, domain.InvoiceKey{CreditCardID: f.card.ID, InvoiceMonth: "2024-03"})
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.TransactionID != nil || p.Status != domain.InvoicePending || p.PaidAt != nil {
		t.Errorf("expected released payment, got %+v", p)
	}
}

func TestPayInvoice_MarksRowPaid(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, datemath.Date(2024, 3, 2), 0)

	paidAt := datemath.Date(2024, 3, 8)
	p, err := f.invoices.PayInvoice(ctx, testAccount, f.card.ID, "2024-03", &paidAt)
	if err != nil {
		t.Fatalf("pay: %v", err)
	}
	if p.Status != domain.InvoicePaid || p.PaidAt == nil || !p.PaidAt.Equal(paidAt) {
		t.Fatalf("unexpected payment %+v", p)
	}

	row := f.invoiceRows(t)[0]
	if !row.Paid || !row.Date.Equal(paidAt) {
		t.Errorf("expected paid row dated %s, got paid=%v date=%s", datemath.FormatDate(paidAt), row.Paid, datemath.FormatDate(row.Date))
	}

	// a later purchase in the same invoice keeps it paid
	f.purchase(t, 20, datemath.Date(2024, 3, 4), 0)
	row = f.invoiceRows(t)[0]
	if !row.Paid || !row.Amount.Equal(decimal.NewFromInt(120)) {
		t.Errorf("expected paid row with total 120, got paid=%v amount=%s", row.Paid, row.Amount)
	}

	invs, err := f.invoices.ListInvoices(ctx, testAccount, service.InvoiceFilter{Month: "2024-03"})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(invs) != 1 || invs[0].Status != domain.InvoicePaid {
		t.Fatalf("expected one paid invoice, got %+v", invs)
	}
}

func TestPayInvoice_UnknownInvoice(t *testing.T) {
	f := newInvoiceFixture(t)
	_, err := f.invoices.PayInvoice(context.Background(), testAccount, f.card.ID, "2024-03", nil)
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListInvoices_ReportsOverdue(t *testing.T) {
	f := newInvoiceFixture(t)
	f.purchase(t, 100, datemath.Date(2024, 3, 2), 0)

	invs, err := f.invoices.ListInvoices(context.Background(), testAccount, service.InvoiceFilter{})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(invs) != 1 {
		t.Fatalf("expected one invoice, got %d", len(invs))
	}
	inv := invs[0]
	if inv.Status != domain.InvoiceOverdue {
		t.Errorf("expected past pending invoice to be overdue, got %s", inv.Status)
	}
	if inv.CardName != "Nubank" || len(inv.Transactions) != 1 || !inv.Total.Equal(decimal.NewFromInt(100)) {
		t.Errorf("unexpected summary %+v", inv)
	}
}

func TestInvoiceRowEdit_MirrorsPaidFlag(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, datemath.Date(2024, 3, 2), 0)
	ledger := newLedger(f.store)

	row := f.invoiceRows(t)[0]
	desc := "renamed"
	_, err := ledger.UpdateTransaction(ctx, testAccount, row.ID, domain.TransactionPatch{Description: &desc}, "", domain.GroupRef{})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected description edit to be rejected, got %v", err)
	}

	paid := true
	if _, err := ledger.UpdateTransaction(ctx, testAccount, row.ID, domain.TransactionPatch{Paid: &paid}, "", domain.GroupRef{}); err != nil {
		t.Fatalf("mark paid: %v", err)
	}
	p, err := f.store.GetInvoicePayment(ctx, testAccount, domain.InvoiceKey{CreditCardID: f.card.ID, InvoiceMonth: "2024-03"})
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.Status != domain.InvoicePaid {
		t.Errorf("expected payment mirrored as paid, got %s", p.Status)
	}

	if err := ledger.DeleteTransaction(ctx, testAccount, row.ID, "", domain.GroupRef{}); err == nil {
		t.Error("expected delete of a synthetic row to be rejected")
	}
}

func TestInvoiceRowEdit_DateSurvivesResync(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, datemath.Date(2024, 3, 2), 0)
	ledger := newLedger(f.store)

	row := f.invoiceRows(t)[0]
	moved := datemath.Date(2024, 3, 20)
	_, err := ledger.UpdateTransaction(ctx, testAccount, row.ID, domain.TransactionPatch{Date: &moved}, "", domain.GroupRef{})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) || verr.Field != "date" {
		t.Fatalf("expected date edit of an unpaid invoice to be rejected, got %v", err)
	}

	paid := true
	if _, err := ledger.UpdateTransaction(ctx, testAccount, row.ID,
		domain.TransactionPatch{Paid: &paid, Date: &moved}, "", domain.GroupRef{}); err != nil {
		t.Fatalf("pay with date: %v", err)
	}
	if _, err := f.invoices.Resync(ctx, testAccount); err != nil {
		t.Fatalf("resync: %v", err)
	}

	got, err := ledger.GetTransaction(ctx, testAccount, row.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Date.Equal(moved) || !got.Paid {
		t.Errorf("expected paid row on %s after resync, got %s paid=%v", datemath.FormatDate(moved), datemath.FormatDate(got.Date), got.Paid)
	}
	p, err := f.store.GetInvoicePayment(ctx, testAccount, domain.InvoiceKey{CreditCardID: f.card.ID, InvoiceMonth: "2024-03"})
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if p.PaidAt == nil || !p.PaidAt.Equal(moved) {
		t.Errorf("expected payment date %s, got %v", datemath.FormatDate(moved), p.PaidAt)
	}

	// an already paid row can be moved without resending paid
	later := datemath.Date(2024, 3, 22)
	if _, err := ledger.UpdateTransaction(ctx, testAccount, row.ID, domain.TransactionPatch{Date: &later}, "", domain.GroupRef{}); err != nil {
		t.Fatalf("move paid row: %v", err)
	}
	if _, err := f.invoices.Resync(ctx, testAccount); err != nil {
		t.Fatalf("resync: %v", err)
	}
	got, _ = ledger.GetTransaction(ctx, testAccount, row.ID)
	if !got.Date.Equal(later) {
		t.Errorf("expected %s after resync, got %s", datemath.FormatDate(later), datemath.FormatDate(got.Date))
	}
}

func TestCreateCardTransaction_RollsBackOnFailure(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	boom := errors.New("connection reset")
	f.store.FailOn = func(op string) error {
		if op == "SaveInvoicePayment" {
			return boom
		}
		return nil
	}

	_, err := f.invoices.CreateCardTransaction(ctx, domain.NewCardTransaction{
		AccountID:    testAccount,
		CreditCardID: f.card.ID,
		Description:  "Compra",
		Amount:       decimal.NewFromInt(10),
		Date:         datemath.Date(2024, 3, 2),
		CategoryID:   "cat-shopping",
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	f.store.FailOn = nil

	txs, _ := f.invoices.ListCardTransactions(ctx, testAccount, "")
	if len(txs) != 0 {
		t.Errorf("expected purchase to be rolled back, got %d", len(txs))
	}
	if got := len(f.invoiceRows(t)); got != 0 {
		t.Errorf("expected no synthetic row, got %d", got)
	}
}

func TestDeleteCard_RemovesEverything(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	f.purchase(t, 100, datemath.Date(2024, 3, 2), 2)

	if err := f.invoices.DeleteCard(ctx, testAccount, f.card.ID); err != nil {
		t.Fatalf("delete card: %v", err)
	}
	if got := len(f.invoiceRows(t)); got != 0 {
		t.Errorf("expected synthetic rows removed, got %d", got)
	}
	payments, _ := f.store.ListInvoicePayments(ctx, testAccount)
	if len(payments) != 0 {
		t.Errorf("expected payments removed, got %d", len(payments))
	}
	if _, err := f.invoices.GetCard(ctx, testAccount, f.card.ID); err == nil {
		t.Error("expected card to be gone")
	}
}

func TestCreateCard_Validation(t *testing.T) {
	f := newInvoiceFixture(t)
	_, err := f.invoices.CreateCard(context.Background(), domain.NewCreditCard{
		AccountID:  testAccount,
		Name:       "",
		DueDay:     0,
		ClosingDay: 40,
	})
	var verr *domain.ErrValidationFields
	if !errors.As(err, &verr) || len(verr.Fields) != 3 {
		t.Fatalf("expected 3 field errors, got %v", err)
	}
}

func TestUpdateCardTransaction_MovesBetweenInvoices(t *testing.T) {
	f := newInvoiceFixture(t)
	ctx := context.Background()
	rows := f.purchase(t, 100, datemath.Date(2024, 3, 2), 0)

	month := "2024-05"
	updated, err := f.invoices.UpdateCardTransaction(ctx, testAccount, rows[0].ID, domain.CardTransactionPatch{InvoiceMonth: &month})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if updated.InvoiceMonth != month {
		t.Errorf("expected %s, got %s", month, updated.InvoiceMonth)
	}
	inv := f.invoiceRows(t)
	if len(inv) != 1 || *inv[0].CreditCardInvoiceID != f.card.ID+"-2024-05" {
		t.Fatalf("expected a single invoice for 2024-05, got %d", len(inv))
	}
}
