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
// Faturas: /v1/accounts/{accountId}/invoices
// ============================================================

func listInvoicesHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/invoices")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		filter := service.InvoiceFilter{
			CreditCardID: r.URL.Query().Get("creditCardId"),
			Month:        r.URL.Query().Get("month"),
		}
		invoices, err := svc.ListInvoices(ctx, accountID, filter)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.InvoiceSummary]{Data: invoices, Total: len(invoices)})
	}
}

func resyncInvoicesHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/invoices/resync")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		report, err := svc.Resync(ctx, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, report)
	}
}

func payInvoiceHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/invoices/{cardId}/{month}/pay")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		cardID := chi.URLParam(r, "cardId")
		month := chi.URLParam(r, "month")
		span.SetAttributes(
			attribute.String("account.id", accountID),
			attribute.String("card.id", cardID),
			attribute.String("invoice.month", month),
		)

		// The body is optional.
		var req domain.PayInvoiceRequest
		if r.ContentLength != 0 {
			if err := decodeBody(r, &req); err != nil {
				handleServiceError(w, err, logger)
				return
			}
		}
		paidAt, err := parseOptionalDate(&req.PaidAt, "paidAt")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		payment, err := svc.PayInvoice(ctx, accountID, cardID, month, paidAt)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, payment)
	}
}
