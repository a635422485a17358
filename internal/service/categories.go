package service

import (
	"context"
	"fmt"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/observability"
	"github.com/boddenberg/pj-finance-ledger/internal/port"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// CategoryService resolves categories by (name, type), creating them on
// first use. Resolved ids are memoized per account.
type CategoryService struct {
	store   port.CategoryStore
	cache   port.Cache[string]
	metrics *observability.Metrics
	logger  *zap.Logger
}

var _ port.CategoryEnsurer = (*CategoryService)(nil)

// NewCategoryService creates a category resolver.
func NewCategoryService(store port.CategoryStore, cache port.Cache[string], metrics *observability.Metrics, logger *zap.Logger) *CategoryService {
	return &CategoryService{store: store, cache: cache, metrics: metrics, logger: logger}
}

// EnsureCategory returns the id of the account's category matching the requested name and type,
// creating it with the requested color and icon when absent.
func (s *CategoryService) EnsureCategory(ctx context.Context, accountID string, spec domain.CategorySpec) (string, error) {
	key := fmt.Sprintf("category:%s:%s:%s", accountID, spec.Type, spec.Name)
	if id, ok := s.cache.Get(key); ok {
		s.metrics.IncrCacheHit("category")
		return id, nil
	}
	s.metrics.IncrCacheMiss("category")

	existing, err := s.store.FindCategory(ctx, accountID, spec.Name, spec.Type)
	if err == nil {
		s.cache.Set(key, existing.ID)
		return existing.ID, nil
	}
	if !isNotFound(err) {
		return "", fmt.Errorf("find category: %w", err)
	}

	c := &domain.Category{
		ID:        uuid.NewString(),
		AccountID: accountID,
		Name:      spec.Name,
		Type:      spec.Type,
		Color:     spec.Color,
		Icon:      spec.Icon,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.CreateCategory(ctx, c); err != nil {
		return "", fmt.Errorf("create category: %w", err)
	}
	s.logger.Info("category created",
		zap.String("account_id", accountID),
		zap.String("category_id", c.ID),
		zap.String("name", spec.Name),
	)
	s.cache.Set(key, c.ID)
	return c.ID, nil
}

// ListCategories returns the account's categories.
func (s *CategoryService) ListCategories(ctx context.Context, accountID string) ([]domain.Category, error) {
	return s.store.ListCategories(ctx, accountID)
}
