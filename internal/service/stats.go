package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/observability"
	"github.com/boddenberg/pj-finance-ledger/internal/port"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var statsTracer = otel.Tracer("service/stats")

// TransactionLister returns the materialized ledger of a range.
type TransactionLister interface {
	ListTransactions(ctx context.Context, accountID string, r domain.DateRange) ([]domain.Transaction, error)
}

// StatsService aggregates the materialized ledger per month.
type StatsService struct {
	ledger     TransactionLister
	categories port.CategoryStore
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewStatsService creates a new stats service.
func NewStatsService(ledger TransactionLister, categories port.CategoryStore, metrics *observability.Metrics, logger *zap.Logger) *StatsService {
	return &StatsService{ledger: ledger, categories: categories, metrics: metrics, logger: logger, now: time.Now}
}

func (s *StatsService) monthRange(month string) (string, domain.DateRange, error) {
	var m time.Time
	if month == "" {
		m = s.now().UTC()
	} else {
		var err error
		if m, err = datemath.ParseMonth(month); err != nil {
			return "", domain.DateRange{}, &domain.ErrValidation{Field: "month", Message: err.Error()}
		}
	}
	start, end := datemath.MonthRange(m)
	return datemath.FormatMonth(start), domain.DateRange{Start: start, End: end}, nil
}

// GetAccountStats sums the month's income and expense, split by paid status.
// Virtual occurrences count as pending.
func (s *StatsService) GetAccountStats(ctx context.Context, accountID, month string) (*domain.AccountStats, error) {
	ctx, span := statsTracer.Start(ctx, "StatsService.GetAccountStats")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	label, rng, err := s.monthRange(month)
	if err != nil {
		return nil, err
	}

	txs, err := s.ledger.ListTransactions(ctx, accountID, rng)
	if err != nil {
		return nil, fmt.Errorf("list transactions: %w", err)
	}

	st := &domain.AccountStats{
		AccountID:      accountID,
		Month:          label,
		Income:         decimal.Zero,
		Expense:        decimal.Zero,
		PaidIncome:     decimal.Zero,
		PendingIncome:  decimal.Zero,
		PaidExpense:    decimal.Zero,
		PendingExpense: decimal.Zero,
	}
	for _, t := range txs {
		st.Transactions++
		if t.VirtualDate != nil && !t.IsException {
			st.Virtual++
		}
		switch t.Type {
		case domain.TransactionIncome:
			st.Income = st.Income.Add(t.Amount)
			if t.Paid {
				st.PaidIncome = st.PaidIncome.Add(t.Amount)
			} else {
				st.PendingIncome = st.PendingIncome.Add(t.Amount)
			}
		case domain.TransactionExpense:
			st.Expense = st.Expense.Add(t.Amount)
			if t.Paid {
				st.PaidExpense = st.PaidExpense.Add(t.Amount)
			} else {
				st.PendingExpense = st.PendingExpense.Add(t.Amount)
			}
		}
	}
	st.Balance = st.Income.Sub(st.Expense)
	return st, nil
}

// GetCategoryStats totals the month per category, with each category's share
// of its type's total. Categories are ordered by total, largest first.
func (s *StatsService) GetCategoryStats(ctx context.Context, accountID, month string) (*domain.CategoryStats, error) {
	ctx, span := statsTracer.Start(ctx, "StatsService.GetCategoryStats")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	label, rng, err := s.monthRange(month)
	if err != nil {
		return nil, err
	}

	var (
		txs  []domain.Transaction
		cats []domain.Category
	)
	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		txs, err = s.ledger.ListTransactions(gCtx, accountID, rng)
		return err
	})
	g.Go(func() error {
		var err error
		cats, err = s.categories.ListCategories(gCtx, accountID)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("category stats: %w", err)
	}

	names := make(map[string]string, len(cats))
	for _, c := range cats {
		names[c.ID] = c.Name
	}

	type bucketKey struct {
		typ domain.TransactionType
		id  string
	}
	buckets := make(map[bucketKey]*domain.CategoryStat)
	totals := map[domain.TransactionType]decimal.Decimal{
		domain.TransactionIncome:  decimal.Zero,
		domain.TransactionExpense: decimal.Zero,
	}
	for _, t := range txs {
		if !t.Type.Valid() {
			continue
		}
		k := bucketKey{typ: t.Type, id: t.CategoryID}
		b, ok := buckets[k]
		if !ok {
			name := names[t.CategoryID]
			if name == "" {
				name = "Sem categoria"
			}
			b = &domain.CategoryStat{CategoryID: t.CategoryID, CategoryName: name, Type: t.Type, Total: decimal.Zero}
			buckets[k] = b
		}
		b.Total = b.Total.Add(t.Amount)
		b.Count++
		totals[t.Type] = totals[t.Type].Add(t.Amount)
	}

	out := &domain.CategoryStats{
		AccountID: accountID,
		Month:     label,
		Expense:   make([]domain.CategoryStat, 0),
		Income:    make([]domain.CategoryStat, 0),
	}
	for _, b := range buckets {
		if total := totals[b.Type]; total.IsPositive() {
			b.Percentage = b.Total.Div(total).Mul(decimal.NewFromInt(100)).Round(2).InexactFloat64()
		}
		if b.Type == domain.TransactionIncome {
			out.Income = append(out.Income, *b)
		} else {
			out.Expense = append(out.Expense, *b)
		}
	}
	sortCategoryStats(out.Expense)
	sortCategoryStats(out.Income)
	return out, nil
}

func sortCategoryStats(stats []domain.CategoryStat) {
	sort.Slice(stats, func(i, j int) bool {
		if c := stats[i].Total.Cmp(stats[j].Total); c != 0 {
			return c > 0
		}
		return stats[i].CategoryName < stats[j].CategoryName
	})
}
