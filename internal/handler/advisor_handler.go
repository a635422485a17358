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
// Consultor: POST /v1/accounts/{accountId}/advisor
// ============================================================

func advisorHandler(svc *service.AdvisorService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/advisor")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		var req domain.AdvisorRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		resp, err := svc.Ask(ctx, accountID, req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, resp)
	}
}
