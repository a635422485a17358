package service_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/memory"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/observability"
	"github.com/boddenberg/pj-finance-ledger/internal/service"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const testAccount = "acc-1"

func newLedger(store *memory.Store) *service.LedgerService {
	return service.NewLedgerService(store, observability.NewMetrics(), zap.NewNop())
}

func newTransaction(launch domain.LaunchType, date time.Time) domain.NewTransaction {
	return domain.NewTransaction{
		AccountID:   testAccount,
		Description: "Assinatura",
		Amount:      decimal.NewFromInt(100),
		Type:        domain.TransactionExpense,
		Date:        date,
		CategoryID:  "cat-1",
		LaunchType:  launch,
	}
}

func assertNoDuplicateDates(t *testing.T, txs []domain.Transaction) {
	t.Helper()
	seen := make(map[string]bool)
	for _, tx := range txs {
		if tx.RecurrenceGroup() == "" {
			continue
		}
		key := tx.RecurrenceGroup() + "|" + datemath.FormatDate(tx.Date)
		if seen[key] {
			t.Fatalf("duplicate occurrence %s", key)
		}
		seen[key] = true
	}
}

func TestCreateTransaction_Recurring(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newLedger(store)

	in := newTransaction(domain.LaunchRecurring, datemath.Date(2024, 1, 15))
	in.Paid = true
	rows, err := svc.CreateTransaction(ctx, in)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected a single definition row, got %d", len(rows))
	}
	def := rows[0]
	if def.Frequency() != domain.FrequencyMonthly || def.RecurrenceGroup() == "" {
		t.Errorf("expected monthly definition with a group, got %+v", def)
	}

	list, err := svc.ListTransactions(ctx, testAccount, firstHalf2024())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 6 {
		t.Fatalf("expected 6 occurrences Jan-Jun, got %d", len(list))
	}
	for _, tx := range list {
		if tx.Paid {
			t.Errorf("occurrence %s should be unpaid", datemath.FormatDate(tx.Date))
		}
	}
	assertNoDuplicateDates(t, list)
}

func TestCreateTransaction_Installments(t *testing.T) {
	ctx := context.Background()
	svc := newLedger(memory.New())

	in := newTransaction(domain.LaunchInstallment, datemath.Date(2024, 1, 31))
	in.Installments = 5
	rows, err := svc.CreateTransaction(ctx, in)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	want := []time.Time{
		datemath.Date(2024, 1, 31),
		datemath.Date(2024, 2, 29),
		datemath.Date(2024, 3, 31),
		datemath.Date(2024, 4, 30),
		datemath.Date(2024, 5, 31),
	}
	if len(rows) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(rows))
	}
	group := rows[0].InstallmentGroup()
	for i, r := range rows {
		if r.CurrentInstallment != i+1 || r.Installments != 5 {
			t.Errorf("row %d: expected installment %d/5, got %d/%d", i, i+1, r.CurrentInstallment, r.Installments)
		}
		if r.InstallmentGroup() != group || group == "" {
			t.Errorf("row %d: expected shared group id", i)
		}
		if !r.Date.Equal(want[i]) {
			t.Errorf("row %d: expected %s, got %s", i, datemath.FormatDate(want[i]), datemath.FormatDate(r.Date))
		}
		if !r.Amount.Equal(decimal.NewFromInt(100)) {
			t.Errorf("row %d: amount is per installment, got %s", i, r.Amount)
		}
	}
}

func TestCreateTransaction_Validation(t *testing.T) {
	svc := newLedger(memory.New())

	tests := []struct {
		name   string
		modify func(in *domain.NewTransaction)
	}{
		{"zero amount", func(in *domain.NewTransaction) { in.Amount = decimal.Zero }},
		{"bad type", func(in *domain.NewTransaction) { in.Type = "transfer" }},
		{"one installment", func(in *domain.NewTransaction) {
			in.LaunchType = domain.LaunchInstallment
			in.Installments = 1
		}},
		{"weekly recurrence", func(in *domain.NewTransaction) {
			in.LaunchType = domain.LaunchRecurring
			in.RecurrenceFrequency = "semanal"
		}},
		{"missing description", func(in *domain.NewTransaction) { in.Description = "" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := newTransaction(domain.LaunchSingle, datemath.Date(2024, 1, 1))
			tt.modify(&in)
			_, err := svc.CreateTransaction(context.Background(), in)
			var verr *domain.ErrValidationFields
			if !errors.As(err, &verr) {
				t.Fatalf("expected validation error, got %v", err)
			}
		})
	}
}

func TestUpdateTransaction_SingleOccurrenceCreatesException(t *testing.T) {
	ctx := context.Background()
	svc := newLedger(memory.New())

	rows, err := svc.CreateTransaction(ctx, newTransaction(domain.LaunchRecurring, datemath.Date(2024, 1, 15)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	def := rows[0]
	march := datemath.Date(2024, 3, 15)
	amount := decimal.NewFromInt(999)

	ex, err := svc.UpdateTransaction(ctx, testAccount, def.ID,
		domain.TransactionPatch{Amount: &amount},
		domain.ScopeSingle,
		domain.GroupRef{RecurrenceGroupID: def.RecurrenceGroup(), ExceptionForDate: &march},
	)
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !ex.IsException || ex.ExceptionForDate == nil || !ex.ExceptionForDate.Equal(march) {
		t.Fatalf("expected exception for %s, got %+v", datemath.FormatDate(march), ex)
	}
	if ex.ID == def.ID {
		t.Fatal("expected a new exception row")
	}

	list, err := svc.ListTransactions(ctx, testAccount, firstHalf2024())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(list))
	}
	assertNoDuplicateDates(t, list)
	for _, tx := range list {
		isMarch := tx.Date.Equal(march)
		switch {
		case isMarch && !tx.Amount.Equal(amount):
			t.Errorf("march should carry 999, got %s", tx.Amount)
		case !isMarch && !tx.Amount.Equal(decimal.NewFromInt(100)):
			t.Errorf("%s should keep 100, got %s", datemath.FormatDate(tx.Date), tx.Amount)
		case !isMarch && (tx.IsException || tx.VirtualDate == nil):
			t.Errorf("%s should still be virtual", datemath.FormatDate(tx.Date))
		}
	}

	// a second single edit of the same occurrence updates the exception
	desc := "Aluguel março"
	again, err := svc.UpdateTransaction(ctx, testAccount, def.ID,
		domain.TransactionPatch{Description: &desc},
		domain.ScopeSingle,
		domain.GroupRef{ExceptionForDate: &march},
	)
	if err != nil {
		t.Fatalf("second update: %v", err)
	}
	if again.ID != ex.ID || again.Description != desc || !again.Amount.Equal(amount) {
		t.Errorf("expected existing exception to be updated, got %+v", again)
	}
}

func TestUpdateTransaction_FutureInstallmentsShiftDates(t *testing.T) {
	ctx := context.Background()
	svc := newLedger(memory.New())

	in := newTransaction(domain.LaunchInstallment, datemath.Date(2024, 1, 10))
	in.Installments = 5
	rows, err := svc.CreateTransaction(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	third := rows[2]
	newDate := datemath.AddDays(third.Date, 10)
	desc := "Notebook (renegociado)"
	if _, err := svc.UpdateTransaction(ctx, testAccount, third.ID,
		domain.TransactionPatch{Date: &newDate, Description: &desc},
		domain.ScopeFuture, domain.GroupRef{},
	); err != nil {
		t.Fatalf("update: %v", err)
	}

	want := []time.Time{
		datemath.Date(2024, 1, 10),
		datemath.Date(2024, 2, 10),
		datemath.Date(2024, 3, 20),
		datemath.Date(2024, 4, 20),
		datemath.Date(2024, 5, 20),
	}
	for i, r := range rows {
		got, err := svc.GetTransaction(ctx, testAccount, r.ID)
		if err != nil {
			t.Fatalf("get %d: %v", i, err)
		}
		if !got.Date.Equal(want[i]) {
			t.Errorf("installment %d: expected %s, got %s", i+1, datemath.FormatDate(want[i]), datemath.FormatDate(got.Date))
		}
		changed := got.Description == desc
		if changed != (i >= 2) {
			t.Errorf("installment %d: unexpected description %q", i+1, got.Description)
		}
	}
}

func TestUpdateTransaction_AllRecurrenceMembers(t *testing.T) {
	ctx := context.Background()
	svc := newLedger(memory.New())

	rows, err := svc.CreateTransaction(ctx, newTransaction(domain.LaunchRecurring, datemath.Date(2024, 1, 15)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	def := rows[0]
	march := datemath.Date(2024, 3, 15)
	paid := true
	if _, err := svc.UpdateTransaction(ctx, testAccount, def.ID,
		domain.TransactionPatch{Paid: &paid}, domain.ScopeSingle,
		domain.GroupRef{ExceptionForDate: &march},
	); err != nil {
		t.Fatalf("exception: %v", err)
	}

	amount := decimal.NewFromInt(120)
	if _, err := svc.UpdateTransaction(ctx, testAccount, def.ID,
		domain.TransactionPatch{Amount: &amount}, domain.ScopeAll, domain.GroupRef{},
	); err != nil {
		t.Fatalf("update all: %v", err)
	}

	list, err := svc.ListTransactions(ctx, testAccount, firstHalf2024())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for _, tx := range list {
		if !tx.Amount.Equal(amount) {
			t.Errorf("%s: expected 120, got %s", datemath.FormatDate(tx.Date), tx.Amount)
		}
	}
}

func TestUpdateTransaction_AllScopeDateMovesExceptions(t *testing.T) {
	ctx := context.Background()
	svc := newLedger(memory.New())

	rows, err := svc.CreateTransaction(ctx, newTransaction(domain.LaunchRecurring, datemath.Date(2024, 1, 15)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	def := rows[0]
	march := datemath.Date(2024, 3, 15)
	amount := decimal.NewFromInt(999)
	if _, err := svc.UpdateTransaction(ctx, testAccount, def.ID,
		domain.TransactionPatch{Amount: &amount}, domain.ScopeSingle,
		domain.GroupRef{ExceptionForDate: &march},
	); err != nil {
		t.Fatalf("exception: %v", err)
	}

	newStart := datemath.Date(2024, 1, 20)
	if _, err := svc.UpdateTransaction(ctx, testAccount, def.ID,
		domain.TransactionPatch{Date: &newStart}, domain.ScopeAll, domain.GroupRef{},
	); err != nil {
		t.Fatalf("update all: %v", err)
	}

	list, err := svc.ListTransactions(ctx, testAccount, firstHalf2024())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(list))
	}
	assertNoDuplicateDates(t, list)
	for i, tx := range list {
		want := datemath.Date(2024, time.Month(i+1), 20)
		if !tx.Date.Equal(want) {
			t.Errorf("row %d: expected %s, got %s", i, datemath.FormatDate(want), datemath.FormatDate(tx.Date))
		}
		if tx.Date.Month() != time.March {
			continue
		}
		if !tx.IsException || !tx.Amount.Equal(amount) {
			t.Errorf("march should be the 999 exception, got %+v", tx)
		}
		if tx.ExceptionForDate == nil || !tx.ExceptionForDate.Equal(want) {
			t.Errorf("expected exception to follow the series to %s, got %v", datemath.FormatDate(want), tx.ExceptionForDate)
		}
	}
}

func TestUpdateTransaction_FutureRecurrenceSplitsSeries(t *testing.T) {
	ctx := context.Background()
	svc := newLedger(memory.New())

	rows, err := svc.CreateTransaction(ctx, newTransaction(domain.LaunchRecurring, datemath.Date(2024, 1, 15)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	def := rows[0]
	paid := true
	for _, d := range []time.Time{datemath.Date(2024, 2, 15), datemath.Date(2024, 5, 15)} {
		d := d
		if _, err := svc.UpdateTransaction(ctx, testAccount, def.ID,
			domain.TransactionPatch{Paid: &paid}, domain.ScopeSingle,
			domain.GroupRef{ExceptionForDate: &d},
		); err != nil {
			t.Fatalf("exception %s: %v", datemath.FormatDate(d), err)
		}
	}

	april := datemath.Date(2024, 4, 15)
	amount := decimal.NewFromInt(555)
	next, err := svc.UpdateTransaction(ctx, testAccount, def.ID,
		domain.TransactionPatch{Amount: &amount}, domain.ScopeFuture,
		domain.GroupRef{RecurrenceGroupID: def.RecurrenceGroup(), ExceptionForDate: &april},
	)
	if err != nil {
		t.Fatalf("update future: %v", err)
	}
	if next.ID == def.ID || next.RecurrenceGroup() == def.RecurrenceGroup() || next.RecurrenceGroup() == "" {
		t.Fatalf("expected a new series, got %+v", next)
	}
	if !next.Date.Equal(april) || !next.IsRecurrenceDefinition() || !next.Amount.Equal(amount) {
		t.Errorf("expected new definition from %s at 555, got %+v", datemath.FormatDate(april), next)
	}

	old, err := svc.GetTransaction(ctx, testAccount, def.ID)
	if err != nil {
		t.Fatalf("get old definition: %v", err)
	}
	if old.RecurrenceEndDate == nil || !old.RecurrenceEndDate.Equal(datemath.Date(2024, 4, 14)) {
		t.Errorf("expected old series to end 2024-04-14, got %v", old.RecurrenceEndDate)
	}

	list, err := svc.ListTransactions(ctx, testAccount, firstHalf2024())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 6 {
		t.Fatalf("expected 6 rows, got %d", len(list))
	}
	assertNoDuplicateDates(t, list)
	for _, tx := range list {
		before := tx.Date.Before(april)
		wantGroup, wantAmount := def.RecurrenceGroup(), decimal.NewFromInt(100)
		if !before {
			wantGroup, wantAmount = next.RecurrenceGroup(), amount
		}
		if tx.RecurrenceGroup() != wantGroup {
			t.Errorf("%s: expected group %s, got %s", datemath.FormatDate(tx.Date), wantGroup, tx.RecurrenceGroup())
		}
		if !tx.Amount.Equal(wantAmount) {
			t.Errorf("%s: expected %s, got %s", datemath.FormatDate(tx.Date), wantAmount, tx.Amount)
		}
		isException := tx.Date.Month() == time.February || tx.Date.Month() == time.May
		if tx.IsException != isException || (isException && !tx.Paid) {
			t.Errorf("%s: unexpected exception state %+v", datemath.FormatDate(tx.Date), tx)
		}
	}
}

func TestDeleteTransaction_FutureRecurrenceEndsSeries(t *testing.T) {
	ctx := context.Background()
	svc := newLedger(memory.New())

	rows, err := svc.CreateTransaction(ctx, newTransaction(domain.LaunchRecurring, datemath.Date(2024, 1, 15)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	def := rows[0]
	may := datemath.Date(2024, 5, 15)
	paid := true
	if _, err := svc.UpdateTransaction(ctx, testAccount, def.ID,
		domain.TransactionPatch{Paid: &paid}, domain.ScopeSingle,
		domain.GroupRef{ExceptionForDate: &may},
	); err != nil {
		t.Fatalf("exception: %v", err)
	}

	april := datemath.Date(2024, 4, 15)
	if err := svc.DeleteTransaction(ctx, testAccount, def.ID, domain.ScopeFuture,
		domain.GroupRef{ExceptionForDate: &april}); err != nil {
		t.Fatalf("delete future: %v", err)
	}

	list, err := svc.ListTransactions(ctx, testAccount, firstHalf2024())
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected Jan-Mar to remain, got %d rows", len(list))
	}
	for _, tx := range list {
		if !tx.Date.Before(april) {
			t.Errorf("unexpected occurrence %s", datemath.FormatDate(tx.Date))
		}
	}
}

func TestUpdateTransaction_RollsBackGroupEdit(t *testing.T) {
	ctx := context.Background()
	store := memory.New()
	svc := newLedger(store)

	in := newTransaction(domain.LaunchInstallment, datemath.Date(2024, 1, 10))
	in.Installments = 3
	rows, err := svc.CreateTransaction(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	boom := errors.New("disk full")
	saves := 0
	store.FailOn = func(op string) error {
		if op != "SaveTransaction" {
			return nil
		}
		saves++
		if saves == 2 {
			return boom
		}
		return nil
	}

	amount := decimal.NewFromInt(1)
	_, err = svc.UpdateTransaction(ctx, testAccount, rows[0].ID,
		domain.TransactionPatch{Amount: &amount}, domain.ScopeAll, domain.GroupRef{})
	if !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	store.FailOn = nil

	for _, r := range rows {
		got, err := svc.GetTransaction(ctx, testAccount, r.ID)
		if err != nil {
			t.Fatalf("get: %v", err)
		}
		if !got.Amount.Equal(decimal.NewFromInt(100)) {
			t.Errorf("installment %d: expected rollback to 100, got %s", got.CurrentInstallment, got.Amount)
		}
	}
}

func TestDeleteTransaction_Scopes(t *testing.T) {
	ctx := context.Background()
	svc := newLedger(memory.New())

	in := newTransaction(domain.LaunchInstallment, datemath.Date(2024, 1, 10))
	in.Installments = 4
	rows, err := svc.CreateTransaction(ctx, in)
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	if err := svc.DeleteTransaction(ctx, testAccount, rows[2].ID, domain.ScopeFuture, domain.GroupRef{}); err != nil {
		t.Fatalf("delete future: %v", err)
	}
	list, _ := svc.ListTransactions(ctx, testAccount, firstHalf2024())
	if len(list) != 2 {
		t.Fatalf("expected 2 remaining installments, got %d", len(list))
	}

	if err := svc.DeleteTransaction(ctx, testAccount, rows[0].ID, domain.ScopeAll, domain.GroupRef{}); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	list, _ = svc.ListTransactions(ctx, testAccount, firstHalf2024())
	if len(list) != 0 {
		t.Fatalf("expected no rows, got %d", len(list))
	}

	err = svc.DeleteTransaction(ctx, testAccount, rows[0].ID, "", domain.GroupRef{})
	var nf *domain.ErrNotFound
	if !errors.As(err, &nf) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestDeleteTransaction_RejectsSingleVirtualOccurrence(t *testing.T) {
	ctx := context.Background()
	svc := newLedger(memory.New())

	rows, err := svc.CreateTransaction(ctx, newTransaction(domain.LaunchRecurring, datemath.Date(2024, 1, 15)))
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	march := datemath.Date(2024, 3, 15)
	err = svc.DeleteTransaction(ctx, testAccount, rows[0].ID, domain.ScopeSingle, domain.GroupRef{ExceptionForDate: &march})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}

	list, _ := svc.ListTransactions(ctx, testAccount, firstHalf2024())
	if len(list) != 6 {
		t.Errorf("expected the series to survive, got %d rows", len(list))
	}
}

func TestUpdateTransaction_InvalidScope(t *testing.T) {
	svc := newLedger(memory.New())
	amount := decimal.NewFromInt(1)
	_, err := svc.UpdateTransaction(context.Background(), testAccount, "x",
		domain.TransactionPatch{Amount: &amount}, "everything", domain.GroupRef{})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) || verr.Field != "scope" {
		t.Fatalf("expected scope validation error, got %v", err)
	}
}

func TestListTransactions_RejectsInvertedRange(t *testing.T) {
	svc := newLedger(memory.New())
	_, err := svc.ListTransactions(context.Background(), testAccount, domain.DateRange{
		Start: datemath.Date(2024, 2, 1),
		End:   datemath.Date(2024, 1, 1),
	})
	var verr *domain.ErrValidation
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
}
