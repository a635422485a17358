package postgres_test

import (
	"context"
	"errors"
	"os"
	"testing"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/postgres"
	"github.com/boddenberg/pj-finance-ledger/internal/port"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// newStore connects to LEDGER_TEST_DATABASE_URL, applies migrations and
// returns a store scoped to a fresh account id. The test is skipped when
// the variable is unset.
func newStore(t *testing.T) (*postgres.Store, string) {
	t.Helper()
	dsn := os.Getenv("LEDGER_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("LEDGER_TEST_DATABASE_URL not set")
	}
	db, err := postgres.Open(postgres.Options{DSN: dsn, MaxOpenConns: 4}, zap.NewNop())
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if err := postgres.RunMigrations(db, zap.NewNop()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return postgres.NewStore(db), "test-" + uuid.NewString()[:8]
}

func definition(accountID string) domain.Transaction {
	return domain.Transaction{
		ID:                  uuid.NewString(),
		AccountID:           accountID,
		Description:         "Aluguel",
		Amount:              decimal.RequireFromString("1500.00"),
		Type:                domain.TransactionExpense,
		Date:                datemath.Date(2024, 1, 15),
		CategoryID:          "cat-rent",
		Installments:        1,
		CurrentInstallment:  1,
		LaunchType:          domain.LaunchRecurring,
		RecurrenceFrequency: domain.StrPtr(domain.FrequencyMonthly),
		RecurrenceGroupID:   domain.StrPtr(uuid.NewString()),
	}
}

func TestStore_TransactionRoundTrip(t *testing.T) {
	store, acc := newStore(t)
	ctx := context.Background()

	def := definition(acc)
	if err := store.CreateTransactions(ctx, []domain.Transaction{def}); err != nil {
		t.Fatalf("create: %v", err)
	}

	got, err := store.GetTransaction(ctx, acc, def.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if !got.Date.Equal(def.Date) || !got.Amount.Equal(def.Amount) || got.Frequency() != domain.FrequencyMonthly {
		t.Errorf("unexpected row %+v", got)
	}

	defs, err := store.ListRecurrenceDefinitions(ctx, acc)
	if err != nil || len(defs) != 1 {
		t.Fatalf("expected 1 definition, got %d (%v)", len(defs), err)
	}

	_, err = store.GetTransaction(ctx, acc, uuid.NewString())
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestStore_SecondDefinitionConflicts(t *testing.T) {
	store, acc := newStore(t)
	ctx := context.Background()

	def := definition(acc)
	if err := store.CreateTransactions(ctx, []domain.Transaction{def}); err != nil {
		t.Fatalf("create: %v", err)
	}
	dup := definition(acc)
	dup.RecurrenceGroupID = def.RecurrenceGroupID

	err := store.CreateTransactions(ctx, []domain.Transaction{dup})
	var conflict *domain.ErrConflict
	if !errors.As(err, &conflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestStore_WithinTxRollsBack(t *testing.T) {
	store, acc := newStore(t)
	ctx := context.Background()

	def := definition(acc)
	boom := errors.New("boom")
	err := store.WithinTx(ctx, func(tx port.LedgerStore) error {
		if err := tx.CreateTransactions(ctx, []domain.Transaction{def}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if _, err := store.GetTransaction(ctx, acc, def.ID); err == nil {
		t.Error("expected row to be rolled back")
	}
}

func TestStore_InvoicePaymentUpsert(t *testing.T) {
	store, acc := newStore(t)
	ctx := context.Background()

	card := &domain.CreditCard{ID: uuid.NewString(), AccountID: acc, Name: "Nubank", DueDay: 10, ClosingDay: 3}
	if err := store.CreateCreditCard(ctx, card); err != nil {
		t.Fatalf("create card: %v", err)
	}

	p := &domain.InvoicePayment{
		ID:           uuid.NewString(),
		AccountID:    acc,
		CreditCardID: card.ID,
		InvoiceMonth: "2024-03",
		Status:       domain.InvoicePending,
		DueDate:      datemath.Date(2024, 3, 10),
	}
	if err := store.SaveInvoicePayment(ctx, p); err != nil {
		t.Fatalf("insert payment: %v", err)
	}
	p.Status = domain.InvoicePaid
	p.PaidAt = domain.TimePtr(datemath.Date(2024, 3, 9))
	if err := store.SaveInvoicePayment(ctx, p); err != nil {
		t.Fatalf("update payment: %v", err)
	}

	got, err := store.GetInvoicePayment(ctx, acc, domain.InvoiceKey{CreditCardID: card.ID, InvoiceMonth: "2024-03"})
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if got.Status != domain.InvoicePaid || got.PaidAt == nil || !got.PaidAt.Equal(*p.PaidAt) {
		t.Errorf("unexpected payment %+v", got)
	}

	if err := store.DeleteInvoicePaymentsByCard(ctx, acc, card.ID); err != nil {
		t.Fatalf("delete payments: %v", err)
	}
	if err := store.DeleteCreditCard(ctx, acc, card.ID); err != nil {
		t.Fatalf("delete card: %v", err)
	}
}

func TestStore_CreateCategoryIsIdempotent(t *testing.T) {
	store, acc := newStore(t)
	ctx := context.Background()

	first := &domain.Category{ID: uuid.NewString(), AccountID: acc, Name: "Faturas de Cartão", Type: domain.TransactionExpense}
	if err := store.CreateCategory(ctx, first); err != nil {
		t.Fatalf("create: %v", err)
	}
	second := &domain.Category{ID: uuid.NewString(), AccountID: acc, Name: "Faturas de Cartão", Type: domain.TransactionExpense}
	if err := store.CreateCategory(ctx, second); err != nil {
		t.Fatalf("create again: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("expected existing category id %s, got %s", first.ID, second.ID)
	}
}
