package handler

import (
	"net/http"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/service"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// ============================================================
// Lançamentos: /v1/accounts/{accountId}/transactions
// ============================================================

func listTransactionsHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/transactions")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		rng, err := parseDateRange(r, time.Now().UTC())
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		txs, err := svc.ListTransactions(ctx, accountID, rng)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.ListResponse[domain.Transaction]{Data: txs, Total: len(txs)})
	}
}

func getTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/accounts/{accountId}/transactions/{id}")
		defer span.End()

		tx, err := svc.GetTransaction(ctx, chi.URLParam(r, "accountId"), chi.URLParam(r, "id"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, tx)
	}
}

func createTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/accounts/{accountId}/transactions")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		span.SetAttributes(attribute.String("account.id", accountID))

		var req domain.CreateTransactionRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		in, err := newTransactionFromRequest(accountID, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		created, err := svc.CreateTransaction(ctx, in)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusCreated, domain.ListResponse[domain.Transaction]{Data: created, Total: len(created)})
	}
}

func newTransactionFromRequest(accountID string, req *domain.CreateTransactionRequest) (domain.NewTransaction, error) {
	errs := &domain.ErrValidationFields{}

	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		errs.Add("amount", "must be a number")
	}
	date, err := parseDate(req.Date, "date")
	if err != nil {
		errs.Add("date", "must be a YYYY-MM-DD date")
	}
	endDate, err := parseOptionalDate(req.RecurrenceEndDate, "recurrenceEndDate")
	if err != nil {
		errs.Add("recurrenceEndDate", "must be a YYYY-MM-DD date")
	}
	if err := errs.OrNil(); err != nil {
		return domain.NewTransaction{}, err
	}

	return domain.NewTransaction{
		AccountID:           accountID,
		Description:         req.Description,
		Amount:              amount,
		Type:                domain.TransactionType(req.Type),
		Date:                date,
		CategoryID:          req.CategoryID,
		BankAccountID:       req.BankAccountID,
		PaymentMethod:       req.PaymentMethod,
		ClientName:          req.ClientName,
		ProjectName:         req.ProjectName,
		CostCenter:          req.CostCenter,
		LaunchType:          domain.LaunchType(req.LaunchType),
		Installments:        req.Installments,
		RecurrenceFrequency: req.RecurrenceFrequency,
		RecurrenceEndDate:   endDate,
		Paid:                req.Paid,
	}, nil
}

func updateTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "PATCH /v1/accounts/{accountId}/transactions/{id}")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		id := chi.URLParam(r, "id")
		span.SetAttributes(
			attribute.String("account.id", accountID),
			attribute.String("transaction.id", id),
		)

		var req domain.UpdateTransactionRequest
		if err := decodeBody(r, &req); err != nil {
			handleServiceError(w, err, logger)
			return
		}

		patch, err := patchFromRequest(&req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		ref, err := parseGroupRef(req.InstallmentsGroupID, req.RecurrenceGroupID, req.ExceptionForDate)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		updated, err := svc.UpdateTransaction(ctx, accountID, id, patch, domain.EditScope(req.Scope), ref)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, updated)
	}
}

func patchFromRequest(req *domain.UpdateTransactionRequest) (domain.TransactionPatch, error) {
	patch := domain.TransactionPatch{
		Description:   req.Description,
		CategoryID:    req.CategoryID,
		Paid:          req.Paid,
		BankAccountID: req.BankAccountID,
		PaymentMethod: req.PaymentMethod,
		ClientName:    req.ClientName,
		ProjectName:   req.ProjectName,
		CostCenter:    req.CostCenter,
	}
	if req.Type != nil {
		t := domain.TransactionType(*req.Type)
		patch.Type = &t
	}

	amount, err := parseOptionalAmount(req.Amount, "amount")
	if err != nil {
		return patch, err
	}
	patch.Amount = amount

	date, err := parseOptionalDate(req.Date, "date")
	if err != nil {
		return patch, err
	}
	patch.Date = date

	if req.RecurrenceEndDate.Set {
		if req.RecurrenceEndDate.Value == nil {
			patch.RecurrenceEndDate = domain.NullableClear[time.Time]()
		} else {
			end, err := parseDate(*req.RecurrenceEndDate.Value, "recurrenceEndDate")
			if err != nil {
				return patch, err
			}
			patch.RecurrenceEndDate = domain.NullableOf(end)
		}
	}
	return patch, nil
}

func deleteTransactionHandler(svc *service.LedgerService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "DELETE /v1/accounts/{accountId}/transactions/{id}")
		defer span.End()

		accountID := chi.URLParam(r, "accountId")
		id := chi.URLParam(r, "id")
		q := r.URL.Query()
		span.SetAttributes(
			attribute.String("account.id", accountID),
			attribute.String("transaction.id", id),
			attribute.String("scope", q.Get("scope")),
		)

		ref, err := parseGroupRef(q.Get("installmentsGroupId"), q.Get("recurrenceGroupId"), q.Get("exceptionForDate"))
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if err := svc.DeleteTransaction(ctx, accountID, id, domain.EditScope(q.Get("scope")), ref); err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, domain.SuccessResponse{Message: "transaction deleted", ID: id})
	}
}
