package port

import (
	"context"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
)

// CreditCardStore handles credit card data operations.
type CreditCardStore interface {
	CreateCreditCard(ctx context.Context, card *domain.CreditCard) error
	ListCreditCards(ctx context.Context, accountID string) ([]domain.CreditCard, error)
	GetCreditCard(ctx context.Context, accountID, cardID string) (*domain.CreditCard, error)
	DeleteCreditCard(ctx context.Context, accountID, cardID string) error
}

// CardTransactionStore handles credit card purchases.
type CardTransactionStore interface {
	CreateCardTransactions(ctx context.Context, txs []domain.CreditCardTransaction) error
	GetCardTransaction(ctx context.Context, accountID, id string) (*domain.CreditCardTransaction, error)
	SaveCardTransaction(ctx context.Context, tx *domain.CreditCardTransaction) error
	DeleteCardTransactions(ctx context.Context, accountID string, ids []string) error
	DeleteCardTransactionsByCard(ctx context.Context, accountID, cardID string) error
	// ListCardTransactions returns the account's purchases ordered by date then creation.
	ListCardTransactions(ctx context.Context, accountID string) ([]domain.CreditCardTransaction, error)
}

// InvoicePaymentStore handles invoice payment status rows.
type InvoicePaymentStore interface {
	ListInvoicePayments(ctx context.Context, accountID string) ([]domain.InvoicePayment, error)
	GetInvoicePayment(ctx context.Context, accountID string, key domain.InvoiceKey) (*domain.InvoicePayment, error)
	// SaveInvoicePayment inserts or updates by ID.
	SaveInvoicePayment(ctx context.Context, p *domain.InvoicePayment) error
	DeleteInvoicePaymentsByCard(ctx context.Context, accountID, cardID string) error
}

// CategoryStore handles the account's categories.
type CategoryStore interface {
	ListCategories(ctx context.Context, accountID string) ([]domain.Category, error)
	FindCategory(ctx context.Context, accountID, name string, typ domain.TransactionType) (*domain.Category, error)
	CreateCategory(ctx context.Context, c *domain.Category) error
}
