package service_test

import (
	"testing"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/service"

	"github.com/shopspring/decimal"
)

func monthlyDefinition(id string, date time.Time) domain.Transaction {
	return domain.Transaction{
		ID:                  id,
		AccountID:           "acc-1",
		Description:         "Aluguel",
		Amount:              decimal.NewFromInt(1500),
		Type:                domain.TransactionExpense,
		Date:                date,
		CategoryID:          "cat-rent",
		Installments:        1,
		CurrentInstallment:  1,
		LaunchType:          domain.LaunchRecurring,
		RecurrenceFrequency: domain.StrPtr(domain.FrequencyMonthly),
		RecurrenceGroupID:   domain.StrPtr("grp-" + id),
		Paid:                true,
	}
}

func firstHalf2024() domain.DateRange {
	return domain.DateRange{Start: datemath.Date(2024, 1, 1), End: datemath.Date(2024, 6, 30)}
}

func TestMaterialize_ExpandsMonthlyDefinition(t *testing.T) {
	def := monthlyDefinition("def-1", datemath.Date(2024, 1, 15))

	res := service.Materialize(service.MaterializeInput{
		Definitions: []domain.Transaction{def},
		Range:       firstHalf2024(),
	})

	if res.Virtual != 6 || len(res.Transactions) != 6 {
		t.Fatalf("expected 6 virtual occurrences, got virtual=%d total=%d", res.Virtual, len(res.Transactions))
	}
	for i, tx := range res.Transactions {
		want := datemath.Date(2024, time.Month(i+1), 15)
		if !tx.Date.Equal(want) {
			t.Errorf("occurrence %d: expected %s, got %s", i, datemath.FormatDate(want), datemath.FormatDate(tx.Date))
		}
		if tx.Paid {
			t.Errorf("occurrence %d: virtual rows must be unpaid", i)
		}
		if tx.VirtualDate == nil || !tx.VirtualDate.Equal(want) {
			t.Errorf("occurrence %d: expected virtual date %s", i, datemath.FormatDate(want))
		}
		if tx.ID != def.ID {
			t.Errorf("occurrence %d: expected definition id, got %s", i, tx.ID)
		}
	}
	if !def.Paid || def.VirtualDate != nil {
		t.Error("input definition must not be mutated")
	}
}

func TestMaterialize_ExceptionSuppressesOccurrence(t *testing.T) {
	def := monthlyDefinition("def-1", datemath.Date(2024, 1, 15))
	march := datemath.Date(2024, 3, 15)
	ex := def.Clone()
	ex.ID = "ex-1"
	ex.IsException = true
	ex.LaunchType = domain.LaunchSingle
	ex.RecurrenceFrequency = nil
	ex.ExceptionForDate = domain.TimePtr(march)
	ex.Date = datemath.Date(2024, 3, 20)
	ex.Amount = decimal.NewFromInt(999)

	res := service.Materialize(service.MaterializeInput{
		Exceptions:  []domain.Transaction{ex},
		Definitions: []domain.Transaction{def},
		Range:       firstHalf2024(),
	})

	if res.Virtual != 5 || res.Exceptions != 1 || len(res.Transactions) != 6 {
		t.Fatalf("expected 5 virtual + 1 exception, got virtual=%d exceptions=%d", res.Virtual, res.Exceptions)
	}
	for _, tx := range res.Transactions {
		if tx.Date.Equal(march) {
			t.Fatalf("suppressed occurrence %s was emitted", datemath.FormatDate(march))
		}
		if tx.ID == "ex-1" {
			if !tx.Amount.Equal(decimal.NewFromInt(999)) {
				t.Errorf("expected exception amount 999, got %s", tx.Amount)
			}
			if tx.VirtualDate == nil || !tx.VirtualDate.Equal(march) {
				t.Errorf("expected exception to carry its original date")
			}
		}
	}
}

func TestMaterialize_OutOfRangeExceptionStillSuppresses(t *testing.T) {
	def := monthlyDefinition("def-1", datemath.Date(2024, 1, 15))
	ex := def.Clone()
	ex.ID = "ex-1"
	ex.IsException = true
	ex.LaunchType = domain.LaunchSingle
	ex.ExceptionForDate = domain.TimePtr(datemath.Date(2024, 6, 15))
	ex.Date = datemath.Date(2024, 7, 2)

	res := service.Materialize(service.MaterializeInput{
		Exceptions:  []domain.Transaction{ex},
		Definitions: []domain.Transaction{def},
		Range:       firstHalf2024(),
	})

	if res.Virtual != 5 || res.Exceptions != 0 {
		t.Fatalf("expected 5 virtual and no exception in range, got virtual=%d exceptions=%d", res.Virtual, res.Exceptions)
	}
}

func TestMaterialize_StopsAtRecurrenceEnd(t *testing.T) {
	def := monthlyDefinition("def-1", datemath.Date(2024, 1, 15))
	def.RecurrenceEndDate = domain.TimePtr(datemath.Date(2024, 3, 15))

	res := service.Materialize(service.MaterializeInput{
		Definitions: []domain.Transaction{def},
		Range:       firstHalf2024(),
	})
	if res.Virtual != 3 {
		t.Fatalf("expected 3 occurrences up to the end date, got %d", res.Virtual)
	}
}

func TestMaterialize_ClampsMonthEnd(t *testing.T) {
	def := monthlyDefinition("def-1", datemath.Date(2024, 1, 31))

	res := service.Materialize(service.MaterializeInput{
		Definitions: []domain.Transaction{def},
		Range:       domain.DateRange{Start: datemath.Date(2024, 2, 1), End: datemath.Date(2024, 4, 30)},
	})

	want := []time.Time{datemath.Date(2024, 2, 29), datemath.Date(2024, 3, 31), datemath.Date(2024, 4, 30)}
	if len(res.Transactions) != len(want) {
		t.Fatalf("expected %d occurrences, got %d", len(want), len(res.Transactions))
	}
	for i, w := range want {
		if !res.Transactions[i].Date.Equal(w) {
			t.Errorf("occurrence %d: expected %s, got %s", i, datemath.FormatDate(w), datemath.FormatDate(res.Transactions[i].Date))
		}
	}
}

func TestMaterialize_MergesPhysicalRowsInDateOrder(t *testing.T) {
	def := monthlyDefinition("def-1", datemath.Date(2024, 1, 15))
	single := domain.Transaction{
		ID:         "tx-1",
		AccountID:  "acc-1",
		Amount:     decimal.NewFromInt(50),
		Type:       domain.TransactionIncome,
		Date:       datemath.Date(2024, 2, 1),
		LaunchType: domain.LaunchSingle,
	}
	outside := single
	outside.ID = "tx-2"
	outside.Date = datemath.Date(2024, 8, 1)

	res := service.Materialize(service.MaterializeInput{
		Physical:    []domain.Transaction{single, outside},
		Definitions: []domain.Transaction{def},
		Range:       domain.DateRange{Start: datemath.Date(2024, 1, 1), End: datemath.Date(2024, 2, 28)},
	})

	if res.Physical != 1 || res.Virtual != 2 {
		t.Fatalf("expected 1 physical + 2 virtual, got physical=%d virtual=%d", res.Physical, res.Virtual)
	}
	ids := []string{res.Transactions[0].ID, res.Transactions[1].ID, res.Transactions[2].ID}
	if ids[0] != "def-1" || ids[1] != "tx-1" || ids[2] != "def-1" {
		t.Errorf("unexpected order: %v", ids)
	}
	if res.Transactions[1].VirtualDate != nil {
		t.Error("physical rows must not carry a virtual date")
	}
}

func TestMaterialize_StopsAfterTenYears(t *testing.T) {
	def := monthlyDefinition("def-old", datemath.Date(2010, 1, 15))

	res := service.Materialize(service.MaterializeInput{
		Definitions: []domain.Transaction{def},
		Range:       firstHalf2024(),
	})
	if res.Virtual != 0 || len(res.Transactions) != 0 {
		t.Fatalf("expected no occurrences past the 10-year bound, got %d", len(res.Transactions))
	}
}

func TestMaterialize_TenYearBoundEdge(t *testing.T) {
	def := monthlyDefinition("def-edge", datemath.Date(2014, 1, 15))

	res := service.Materialize(service.MaterializeInput{
		Definitions: []domain.Transaction{def},
		Range:       domain.DateRange{Start: datemath.Date(2023, 12, 1), End: datemath.Date(2024, 1, 31)},
	})
	if len(res.Transactions) != 1 {
		t.Fatalf("expected only the 120th occurrence, got %d", len(res.Transactions))
	}
	if got := res.Transactions[0].Date; !got.Equal(datemath.Date(2023, 12, 15)) {
		t.Errorf("expected 2023-12-15, got %s", datemath.FormatDate(got))
	}
}

func TestMaterialize_SameDateOrdersByCreation(t *testing.T) {
	day := datemath.Date(2024, 2, 15)
	base := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	def := monthlyDefinition("def-1", datemath.Date(2024, 1, 15))
	def.CreatedAt = base
	newer := domain.Transaction{
		ID:         "tx-newer",
		AccountID:  "acc-1",
		Amount:     decimal.NewFromInt(10),
		Type:       domain.TransactionExpense,
		Date:       day,
		LaunchType: domain.LaunchSingle,
		CreatedAt:  base.Add(2 * time.Hour),
	}
	older := newer
	older.ID = "tx-older"
	older.CreatedAt = base.Add(time.Hour)

	res := service.Materialize(service.MaterializeInput{
		Physical:    []domain.Transaction{newer, older},
		Definitions: []domain.Transaction{def},
		Range:       domain.DateRange{Start: datemath.Date(2024, 2, 1), End: datemath.Date(2024, 2, 29)},
	})

	want := []string{"def-1", "tx-older", "tx-newer"}
	if len(res.Transactions) != len(want) {
		t.Fatalf("expected %d rows, got %d", len(want), len(res.Transactions))
	}
	for i, id := range want {
		if res.Transactions[i].ID != id {
			t.Errorf("position %d: expected %s, got %s", i, id, res.Transactions[i].ID)
		}
	}
}
