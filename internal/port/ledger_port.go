package port

import (
	"context"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
)

// TransactionStore handles ledger rows. Lookups of a single row return
// *domain.ErrNotFound when nothing matches; list calls return empty slices.
type TransactionStore interface {
	// ListPhysicalTransactions returns non-exception rows dated within r that
	// are listed as-is (single, installment, or recurring without frequency),
	// ordered by date then creation.
	ListPhysicalTransactions(ctx context.Context, accountID string, r domain.DateRange) ([]domain.Transaction, error)
	// ListExceptions returns every exception row of the account.
	ListExceptions(ctx context.Context, accountID string) ([]domain.Transaction, error)
	// ListRecurrenceDefinitions returns every monthly recurring template.
	ListRecurrenceDefinitions(ctx context.Context, accountID string) ([]domain.Transaction, error)

	GetTransaction(ctx context.Context, accountID, id string) (*domain.Transaction, error)
	FindException(ctx context.Context, accountID, recurrenceGroupID string, forDate time.Time) (*domain.Transaction, error)
	// ListInstallmentGroup returns the group ordered by current installment.
	ListInstallmentGroup(ctx context.Context, accountID, groupID string) ([]domain.Transaction, error)
	// ListRecurrenceGroup returns the group ordered by date.
	ListRecurrenceGroup(ctx context.Context, accountID, groupID string) ([]domain.Transaction, error)
	ListInvoiceTransactions(ctx context.Context, accountID string) ([]domain.Transaction, error)

	CreateTransactions(ctx context.Context, txs []domain.Transaction) error
	SaveTransaction(ctx context.Context, tx *domain.Transaction) error
	DeleteTransactions(ctx context.Context, accountID string, ids []string) error
}
