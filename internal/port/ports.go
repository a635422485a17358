// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the domain/service
// layer from concrete implementations.
package port

import (
	"context"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
)

// AdvisorCaller invokes the external AI advisor agent.
type AdvisorCaller interface {
	Call(ctx context.Context, req *domain.AgentRequest) (*domain.AgentResponse, error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}

// CategoryEnsurer looks up a category by (name, type) for an account,
// creating it when absent. It must be idempotent.
type CategoryEnsurer interface {
	EnsureCategory(ctx context.Context, accountID string, spec domain.CategorySpec) (string, error)
}

// RateLimiter decides whether a keyed request may proceed.
type RateLimiter interface {
	Allow(key string) error
}

// LedgerStore is the full persistence surface of the ledger. Implemented by
// the gorm/postgres adapter and by the in-memory adapter.
type LedgerStore interface {
	TransactionStore
	CreditCardStore
	CardTransactionStore
	InvoicePaymentStore
	CategoryStore

	// WithinTx runs fn against a store bound to one relational transaction.
	// A non-nil error from fn rolls back every write made through it.
	WithinTx(ctx context.Context, fn func(tx LedgerStore) error) error

	Ping(ctx context.Context) error
}
