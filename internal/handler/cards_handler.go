package handler

import (
	"net/http"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Cartões: /v1/accounts/{accountId}/cards
// ============================================================

func listCardsHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/cards")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		cards, err := svc.ListCards(ctx, accountID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.CreditCard]{Data: cards, Total: len(cards)})
	}
}

func getCardHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/cards/{cardId}")
		defer span.End()

		card, err := svc.GetCard(ctx, chi.URLParam(r, "accountId"), chi.URLParam(r, "cardId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, card)
	}
}

func createCardHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/cards")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		var req domain.CreateCardRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		card, err := svc.CreateCard(ctx, domain.NewCreditCard{
			AccountID:  accountID,
			Name:       req.Name,
			Brand:      req.Brand,
			LastFour:   req.LastFour,
			DueDay:     req.DueDay,
			ClosingDay: req.ClosingDay,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, card)
	}
}

func deleteCardHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/accounts/{accountId}/cards/{cardId}")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		cardID := chi.URLParam(r, "cardId")
		span.SetAttributes(
			attribute.String("account.id", accountID),
			attribute.String("card.id", cardID),
		)

		if err := svc.DeleteCard(ctx, accountID, cardID); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "card deleted", ID: cardID})
	}
}

// ============================================================
// Compras no cartão: /v1/accounts/{accountId}/card-transactions
// ============================================================

func listCardTransactionsHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/card-transactions")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		txs, err := svc.ListCardTransactions(ctx, accountID, r.URL.Query().Get("creditCardId"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.CreditCardTransaction]{Data: txs, Total: len(txs)})
	}
}

func createCardTransactionHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/card-transactions")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		var req domain.CreateCardTransactionRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		amount, err := parseAmount(req.Amount, "amount")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		date, err := parseDate(req.Date, "date")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		created, err := svc.CreateCardTransaction(ctx, domain.NewCardTransaction{
			AccountID:    accountID,
			CreditCardID: req.CreditCardID,
			Description:  req.Description,
			Amount:       amount,
			Date:         date,
			CategoryID:   req.CategoryID,
			InvoiceMonth: req.InvoiceMonth,
			Installments: req.Installments,
		})
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, domain.ListResponse[domain.CreditCardTransaction]{Data: created, Total: len(created)})
	}
}

func updateCardTransactionHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/accounts/{accountId}/card-transactions/{id}")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		id := chi.URLParam(r, "id")
		span.SetAttributes(
			attribute.String("account.id", accountID),
			attribute.String("card_transaction.id", id),
		)

		var req domain.UpdateCardTransactionRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		patch := domain.CardTransactionPatch{
			Description: req.Description,
			CategoryID:  req.CategoryID,
		}
		amount, err := parseOptionalAmount(req.Amount, "amount")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		patch.Amount = amount
		date, err := parseOptionalDate(req.Date, "date")
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		patch.Date = date
		if req.InvoiceMonth != nil {
			if _, err := datemath.ParseMonth(*req.InvoiceMonth); err != nil {
				handleServiceError(w, &domain.ErrValidation{Field: "invoiceMonth", Message: err.Error()}, logger)
				return
			}
			patch.InvoiceMonth = req.InvoiceMonth
		}

		updated, err := svc.UpdateCardTransaction(ctx, accountID, id, patch)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func deleteCardTransactionHandler(svc *service.InvoiceService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/accounts/{accountId}/card-transactions/{id}")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		id := chi.URLParam(r, "id")
		span.SetAttributes(
			attribute.String("account.id", accountID),
			attribute.String("card_transaction.id", id),
		)

		if err := svc.DeleteCardTransaction(ctx, accountID, id); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "card transaction deleted", ID: id})
	}
}
