package handler

import (
	"net/http"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Estatísticas: /v1/accounts/{accountId}/stats
// ============================================================

func accountStatsHandler(svc *service.StatsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/stats")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		month := r.URL.Query().Get("month")
		span.SetAttributes(
			attribute.String("account.id", accountID),
			attribute.String("month", month),
		)

		stats, err := svc.GetAccountStats(ctx, accountID, month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func categoryStatsHandler(svc *service.StatsService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/stats/categories")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		month := r.URL.Query().Get("month")
		span.SetAttributes(
			attribute.String("account.id", accountID),
			attribute.String("month", month),
		)

		stats, err := svc.GetCategoryStats(ctx, accountID, month)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, stats)
	}
}

func listCategoriesHandler(svc *service.CategoryService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/categories")
		defer span.End()

		categories, err := svc.ListCategories(ctx, chi.URLParam(r, "accountId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Category]{Data: categories, Total: len(categories)})
	}
}
