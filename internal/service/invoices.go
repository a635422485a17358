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

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var invoiceTracer = otel.Tracer("service/invoices")

// InvoiceService manages credit cards, their purchases and the synthetic
// ledger transaction that mirrors each monthly invoice.
type InvoiceService struct {
	store      port.LedgerStore
	categories port.CategoryEnsurer
	metrics    *observability.Metrics
	logger     *zap.Logger
	now        func() time.Time
}

// NewInvoiceService creates a new invoice service.
func NewInvoiceService(store port.LedgerStore, categories port.CategoryEnsurer, metrics *observability.Metrics, logger *zap.Logger) *InvoiceService {
	return &InvoiceService{
		store:      store,
		categories: categories,
		metrics:    metrics,
		logger:     logger,
		now:        time.Now,
	}
}

func (s *InvoiceService) today() time.Time {
	return datemath.DateOnly(s.now().UTC())
}

// invoiceGroup is one (card, month) bucket of purchases.
type invoiceGroup struct {
	key         domain.InvoiceKey
	total       decimal.Decimal
	periodStart time.Time
	periodEnd   time.Time
	txs         []domain.CreditCardTransaction
}

// groupCardTransactions buckets purchases by (card, invoice month), ordered
// by card then month.
func groupCardTransactions(txs []domain.CreditCardTransaction) []*invoiceGroup {
	byKey := make(map[domain.InvoiceKey]*invoiceGroup)
	var groups []*invoiceGroup
	for _, t := range txs {
		k := domain.InvoiceKey{CreditCardID: t.CreditCardID, InvoiceMonth: t.InvoiceMonth}
		g, ok := byKey[k]
		if !ok {
			g = &invoiceGroup{key: k, total: decimal.Zero, periodStart: t.Date, periodEnd: t.Date}
			byKey[k] = g
			groups = append(groups, g)
		}
		g.total = g.total.Add(t.Amount)
		if t.Date.Before(g.periodStart) {
			g.periodStart = t.Date
		}
		if t.Date.After(g.periodEnd) {
			g.periodEnd = t.Date
		}
		g.txs = append(g.txs, t)
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].key.CreditCardID != groups[j].key.CreditCardID {
			return groups[i].key.CreditCardID < groups[j].key.CreditCardID
		}
		return groups[i].key.InvoiceMonth < groups[j].key.InvoiceMonth
	})
	return groups
}

// ============================================================
// Resync (derived invoice transactions)
// ============================================================

// Resync re-derives the synthetic invoice transactions of an account from
// its card purchases. It is idempotent and runs in one store transaction.
func (s *InvoiceService) Resync(ctx context.Context, accountID string) (*domain.ResyncReport, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.Resync")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("invoice_resync", time.Since(start))
	}()

	categoryID, err := s.categories.EnsureCategory(ctx, accountID, domain.InvoiceCategory)
	if err != nil {
		return nil, err
	}

	var report *domain.ResyncReport
	err = s.store.WithinTx(ctx, func(tx port.LedgerStore) error {
		report, err = s.resyncTx(ctx, tx, accountID, categoryID)
		return err
	})
	if err != nil {
		s.logger.Error("invoice resync failed", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("invoices.created", report.Created),
		attribute.Int("invoices.updated", report.Updated),
		attribute.Int("invoices.removed", report.Removed),
		attribute.Int("invoices.repaired", report.Repaired),
	)
	return report, nil
}

func (s *InvoiceService) resyncTx(ctx context.Context, tx port.LedgerStore, accountID, categoryID string) (*domain.ResyncReport, error) {
	report := &domain.ResyncReport{}
	now := s.now().UTC()

	// 1. group purchases
	cardTxs, err := tx.ListCardTransactions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list card transactions: %w", err)
	}
	groups := groupCardTransactions(cardTxs)

	cardList, err := tx.ListCreditCards(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list credit cards: %w", err)
	}
	cards := make(map[string]domain.CreditCard, len(cardList))
	for _, c := range cardList {
		cards[c.ID] = c
	}

	// 3. self-heal duplicates and orphans
	existing, err := tx.ListInvoiceTransactions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list invoice transactions: %w", err)
	}
	byInvoice := make(map[string]*domain.Transaction, len(existing))
	var kept []string
	var repairIDs []string
	for i := range existing {
		row := &existing[i]
		invoiceID := ""
		if row.CreditCardInvoiceID != nil {
			invoiceID = *row.CreditCardInvoiceID
		}
		reason := ""
		switch {
		case invoiceID == "":
			reason = observability.RepairOrphan
		case byInvoice[invoiceID] != nil:
			reason = observability.RepairDuplicate
		}
		if reason != "" {
			repairIDs = append(repairIDs, row.ID)
			s.metrics.IncrInvoiceRepair(reason)
			s.logger.Warn("removing inconsistent invoice transaction",
				zap.String("account_id", accountID),
				zap.String("transaction_id", row.ID),
				zap.String("invoice_id", invoiceID),
				zap.String("reason", reason),
			)
			continue
		}
		byInvoice[invoiceID] = row
		kept = append(kept, invoiceID)
	}
	if len(repairIDs) > 0 {
		if err := tx.DeleteTransactions(ctx, accountID, repairIDs); err != nil {
			return nil, fmt.Errorf("delete inconsistent invoice transactions: %w", err)
		}
		report.Repaired = len(repairIDs)
	}

	paymentList, err := tx.ListInvoicePayments(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list invoice payments: %w", err)
	}
	payments := make(map[string]*domain.InvoicePayment, len(paymentList))
	for i := range paymentList {
		p := &paymentList[i]
		payments[domain.InvoiceKey{CreditCardID: p.CreditCardID, InvoiceMonth: p.InvoiceMonth}.InvoiceID()] = p
	}

	// 4. upsert one synthetic row per positive invoice
	current := make(map[string]string, len(groups))
	for _, g := range groups {
		if !g.total.IsPositive() {
			continue
		}
		card, ok := cards[g.key.CreditCardID]
		if !ok {
			s.logger.Warn("card transactions reference a missing card",
				zap.String("account_id", accountID),
				zap.String("card_id", g.key.CreditCardID),
			)
			continue
		}

		invoiceID := g.key.InvoiceID()
		dueDate, err := datemath.ComputeInvoiceDueDate(g.key.InvoiceMonth, card.DueDay)
		if err != nil {
			return nil, fmt.Errorf("invoice %s: %w", invoiceID, err)
		}
		payment := payments[invoiceID]
		paid := payment != nil && payment.Status == domain.InvoicePaid
		date := dueDate
		if paid && payment.PaidAt != nil {
			date = datemath.DateOnly(*payment.PaidAt)
		}
		description := fmt.Sprintf("Fatura %s - %s", card.Name, datemath.MonthLabelPT(g.key.InvoiceMonth))
		amount := g.total.Round(2)

		row := byInvoice[invoiceID]
		if row != nil {
			changed := row.Description != description || !row.Amount.Equal(amount) ||
				row.Type != domain.TransactionExpense || row.CategoryID != categoryID ||
				!row.Date.Equal(date) || row.Paid != paid ||
				row.CreditCardID == nil || *row.CreditCardID != card.ID
			if changed {
				row.Description = description
				row.Amount = amount
				row.Type = domain.TransactionExpense
				row.CategoryID = categoryID
				row.Date = date
				row.Paid = paid
				row.CreditCardID = domain.StrPtr(card.ID)
				row.UpdatedAt = now
				if err := tx.SaveTransaction(ctx, row); err != nil {
					return nil, fmt.Errorf("update invoice transaction %s: %w", invoiceID, err)
				}
				report.Updated++
				s.metrics.IncrInvoiceUpsert("updated")
			}
		} else {
			row = &domain.Transaction{
				ID:                   uuid.NewString(),
				AccountID:            accountID,
				Description:          description,
				Amount:               amount,
				Type:                 domain.TransactionExpense,
				Date:                 date,
				CategoryID:           categoryID,
				Installments:         1,
				CurrentInstallment:   1,
				LaunchType:           domain.LaunchSingle,
				CreditCardInvoiceID:  domain.StrPtr(invoiceID),
				CreditCardID:         domain.StrPtr(card.ID),
				IsInvoiceTransaction: true,
				Paid:                 paid,
				CreatedAt:            now,
				UpdatedAt:            now,
			}
			if err := tx.CreateTransactions(ctx, []domain.Transaction{*row}); err != nil {
				return nil, fmt.Errorf("create invoice transaction %s: %w", invoiceID, err)
			}
			byInvoice[invoiceID] = row
			report.Created++
			s.metrics.IncrInvoiceUpsert("created")
		}
		current[invoiceID] = row.ID

		if payment == nil {
			payment = &domain.InvoicePayment{
				ID:            uuid.NewString(),
				AccountID:     accountID,
				CreditCardID:  card.ID,
				InvoiceMonth:  g.key.InvoiceMonth,
				Status:        domain.InvoicePending,
				DueDate:       dueDate,
				TransactionID: domain.StrPtr(row.ID),
				CreatedAt:     now,
				UpdatedAt:     now,
			}
			if err := tx.SaveInvoicePayment(ctx, payment); err != nil {
				return nil, fmt.Errorf("create invoice payment %s: %w", invoiceID, err)
			}
			payments[invoiceID] = payment
		} else if payment.TransactionID == nil || *payment.TransactionID != row.ID || !payment.DueDate.Equal(dueDate) {
			payment.TransactionID = domain.StrPtr(row.ID)
			payment.DueDate = dueDate
			payment.UpdatedAt = now
			if err := tx.SaveInvoicePayment(ctx, payment); err != nil {
				return nil, fmt.Errorf("repoint invoice payment %s: %w", invoiceID, err)
			}
		}
	}

	// 5. drop stale invoices, releasing their payments first
	var staleIDs []string
	for _, invoiceID := range kept {
		if _, ok := current[invoiceID]; ok {
			continue
		}
		row := byInvoice[invoiceID]
		staleIDs = append(staleIDs, row.ID)
		s.metrics.IncrInvoiceRepair(observability.RepairStale)
		s.logger.Info("removing stale invoice transaction",
			zap.String("account_id", accountID),
			zap.String("transaction_id", row.ID),
			zap.String("invoice_id", invoiceID),
		)
	}

	live := make(map[string]struct{}, len(current))
	for _, id := range current {
		live[id] = struct{}{}
	}
	for _, p := range paymentList {
		p := payments[domain.InvoiceKey{CreditCardID: p.CreditCardID, InvoiceMonth: p.InvoiceMonth}.InvoiceID()]
		if p.TransactionID == nil {
			continue
		}
		if _, ok := live[*p.TransactionID]; ok {
			continue
		}
		p.TransactionID = nil
		p.Status = domain.InvoicePending
		p.PaidAt = nil
		p.UpdatedAt = now
		if err := tx.SaveInvoicePayment(ctx, p); err != nil {
			return nil, fmt.Errorf("release invoice payment %s: %w", p.ID, err)
		}
	}

	if len(staleIDs) > 0 {
		if err := tx.DeleteTransactions(ctx, accountID, staleIDs); err != nil {
			return nil, fmt.Errorf("delete stale invoice transactions: %w", err)
		}
		report.Removed = len(staleIDs)
	}

	return report, nil
}

// ============================================================
// Invoice listing & payment
// ============================================================

// InvoiceFilter narrows ListInvoices. Empty fields match everything.
type InvoiceFilter struct {
	CreditCardID string
	Month        string
}

// ListInvoices resyncs the account and returns its invoices grouped by
// (card, month) with the purchases of each.
func (s *InvoiceService) ListInvoices(ctx context.Context, accountID string, f InvoiceFilter) ([]domain.InvoiceSummary, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.ListInvoices")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", accountID))

	if f.Month != "" {
		if _, err := datemath.ParseMonth(f.Month); err != nil {
			return nil, &domain.ErrValidation{Field: "month", Message: err.Error()}
		}
	}

	if _, err := s.Resync(ctx, accountID); err != nil {
		return nil, err
	}

	cardTxs, err := s.store.ListCardTransactions(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list card transactions: %w", err)
	}
	cardList, err := s.store.ListCreditCards(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list credit cards: %w", err)
	}
	cards := make(map[string]domain.CreditCard, len(cardList))
	for _, c := range cardList {
		cards[c.ID] = c
	}
	paymentList, err := s.store.ListInvoicePayments(ctx, accountID)
	if err != nil {
		return nil, fmt.Errorf("list invoice payments: %w", err)
	}
	payments := make(map[string]domain.InvoicePayment, len(paymentList))
	for _, p := range paymentList {
		payments[domain.InvoiceKey{CreditCardID: p.CreditCardID, InvoiceMonth: p.InvoiceMonth}.InvoiceID()] = p
	}

	today := s.today()
	out := make([]domain.InvoiceSummary, 0)
	for _, g := range groupCardTransactions(cardTxs) {
		if f.CreditCardID != "" && g.key.CreditCardID != f.CreditCardID {
			continue
		}
		if f.Month != "" && g.key.InvoiceMonth != f.Month {
			continue
		}
		card, ok := cards[g.key.CreditCardID]
		if !ok || !g.total.IsPositive() {
			continue
		}
		dueDate, err := datemath.ComputeInvoiceDueDate(g.key.InvoiceMonth, card.DueDay)
		if err != nil {
			return nil, err
		}

		summary := domain.InvoiceSummary{
			InvoiceID:    g.key.InvoiceID(),
			CreditCardID: card.ID,
			CardName:     card.Name,
			InvoiceMonth: g.key.InvoiceMonth,
			Total:        g.total.Round(2),
			PeriodStart:  g.periodStart,
			PeriodEnd:    g.periodEnd,
			DueDate:      dueDate,
			Status:       domain.InvoicePending,
			Transactions: g.txs,
		}
		if p, ok := payments[summary.InvoiceID]; ok {
			summary.Status = p.Status
			summary.TransactionID = p.TransactionID
			summary.PaidAt = p.PaidAt
		}
		if summary.Status == domain.InvoicePending && dueDate.Before(today) {
			summary.Status = domain.InvoiceOverdue
		}
		out = append(out, summary)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].InvoiceMonth != out[j].InvoiceMonth {
			return out[i].InvoiceMonth < out[j].InvoiceMonth
		}
		return out[i].CardName < out[j].CardName
	})
	return out, nil
}

// PayInvoice marks the (card, month) invoice paid. The synthetic transaction
// is flagged paid and, when paidAt is given, moved to that date.
func (s *InvoiceService) PayInvoice(ctx context.Context, accountID, cardID, month string, paidAt *time.Time) (*domain.InvoicePayment, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.PayInvoice")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.String("card.id", cardID),
		attribute.String("invoice.month", month),
	)

	if _, err := datemath.ParseMonth(month); err != nil {
		return nil, &domain.ErrValidation{Field: "month", Message: err.Error()}
	}
	if _, err := s.Resync(ctx, accountID); err != nil {
		return nil, err
	}

	key := domain.InvoiceKey{CreditCardID: cardID, InvoiceMonth: month}
	invoiceID := key.InvoiceID()

	var payment *domain.InvoicePayment
	err := s.store.WithinTx(ctx, func(tx port.LedgerStore) error {
		rows, err := tx.ListInvoiceTransactions(ctx, accountID)
		if err != nil {
			return fmt.Errorf("list invoice transactions: %w", err)
		}
		var row *domain.Transaction
		for i := range rows {
			if rows[i].CreditCardInvoiceID != nil && *rows[i].CreditCardInvoiceID == invoiceID {
				row = &rows[i]
				break
			}
		}
		if row == nil {
			return &domain.ErrNotFound{Resource: "invoice", ID: invoiceID}
		}

		now := s.now().UTC()
		when := s.today()
		if paidAt != nil {
			when = datemath.DateOnly(*paidAt)
			row.Date = when
		}
		row.Paid = true
		row.UpdatedAt = now
		if err := tx.SaveTransaction(ctx, row); err != nil {
			return fmt.Errorf("mark invoice transaction paid: %w", err)
		}

		payment, err = tx.GetInvoicePayment(ctx, accountID, key)
		if err != nil {
			return fmt.Errorf("get invoice payment: %w", err)
		}
		payment.Status = domain.InvoicePaid
		payment.PaidAt = domain.TimePtr(when)
		payment.TransactionID = domain.StrPtr(row.ID)
		payment.UpdatedAt = now
		return tx.SaveInvoicePayment(ctx, payment)
	})
	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("failed to pay invoice",
				zap.String("account_id", accountID),
				zap.String("invoice_id", invoiceID),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("invoice paid",
		zap.String("account_id", accountID),
		zap.String("invoice_id", invoiceID),
		zap.Time("paid_at", *payment.PaidAt),
	)
	return payment, nil
}

// ============================================================
// Credit cards
// ============================================================

// CreateCard registers a credit card.
func (s *InvoiceService) CreateCard(ctx context.Context, in domain.NewCreditCard) (*domain.CreditCard, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.CreateCard")
	defer span.End()

	errs := &domain.ErrValidationFields{}
	if in.AccountID == "" {
		errs.Add("accountId", "required")
	}
	if in.Name == "" {
		errs.Add("name", "required")
	}
	if in.DueDay < 1 || in.DueDay > 31 {
		errs.Add("dueDay", "must be between 1 and 31")
	}
	if in.ClosingDay < 1 || in.ClosingDay > 31 {
		errs.Add("closingDay", "must be between 1 and 31")
	}
	if in.LastFour != "" && len(in.LastFour) != 4 {
		errs.Add("lastFourDigits", "must have 4 digits")
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}

	card := &domain.CreditCard{
		ID:         uuid.NewString(),
		AccountID:  in.AccountID,
		Name:       in.Name,
		Brand:      in.Brand,
		LastFour:   in.LastFour,
		DueDay:     in.DueDay,
		ClosingDay: in.ClosingDay,
		CreatedAt:  s.now().UTC(),
	}
	if err := s.store.CreateCreditCard(ctx, card); err != nil {
		s.logger.Error("failed to create credit card", zap.String("account_id", in.AccountID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("credit card created",
		zap.String("account_id", in.AccountID),
		zap.String("card_id", card.ID),
	)
	return card, nil
}

// ListCards returns the account's cards.
func (s *InvoiceService) ListCards(ctx context.Context, accountID string) ([]domain.CreditCard, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.ListCards")
	defer span.End()

	return s.store.ListCreditCards(ctx, accountID)
}

// GetCard returns one card.
func (s *InvoiceService) GetCard(ctx context.Context, accountID, cardID string) (*domain.CreditCard, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.GetCard")
	defer span.End()

	return s.store.GetCreditCard(ctx, accountID, cardID)
}

// DeleteCard removes a card with its purchases, its synthetic invoice
// transactions and its payment rows.
func (s *InvoiceService) DeleteCard(ctx context.Context, accountID, cardID string) error {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.DeleteCard")
	defer span.End()

	categoryID, err := s.categories.EnsureCategory(ctx, accountID, domain.InvoiceCategory)
	if err != nil {
		return err
	}

	var report *domain.ResyncReport
	err = s.store.WithinTx(ctx, func(tx port.LedgerStore) error {
		if _, err := tx.GetCreditCard(ctx, accountID, cardID); err != nil {
			return err
		}
		if err := tx.DeleteCardTransactionsByCard(ctx, accountID, cardID); err != nil {
			return fmt.Errorf("delete card transactions: %w", err)
		}
		if err := tx.DeleteCreditCard(ctx, accountID, cardID); err != nil {
			return fmt.Errorf("delete card: %w", err)
		}
		if report, err = s.resyncTx(ctx, tx, accountID, categoryID); err != nil {
			return err
		}
		return tx.DeleteInvoicePaymentsByCard(ctx, accountID, cardID)
	})
	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("failed to delete credit card", zap.String("card_id", cardID), zap.Error(err))
		}
		return err
	}

	s.logger.Info("credit card deleted",
		zap.String("account_id", accountID),
		zap.String("card_id", cardID),
		zap.Int("invoices_removed", report.Removed),
	)
	return nil
}

// ============================================================
// Card transactions
// ============================================================

func validateCardTransaction(in *domain.NewCardTransaction) error {
	errs := &domain.ErrValidationFields{}
	if in.AccountID == "" {
		errs.Add("accountId", "required")
	}
	if in.CreditCardID == "" {
		errs.Add("creditCardId", "required")
	}
	if in.Description == "" {
		errs.Add("description", "required")
	}
	if !in.Amount.IsPositive() {
		errs.Add("amount", "must be greater than zero")
	}
	if in.Date.IsZero() {
		errs.Add("date", "required")
	}
	if in.CategoryID == "" {
		errs.Add("categoryId", "required")
	}
	if in.Installments < 0 {
		errs.Add("installments", "must not be negative")
	}
	if in.InvoiceMonth != "" {
		if _, err := datemath.ParseMonth(in.InvoiceMonth); err != nil {
			errs.Add("invoiceMonth", err.Error())
		}
	}
	return errs.OrNil()
}

// CreateCardTransaction records a card purchase and resyncs the account's
// invoices in the same store transaction. An installment purchase writes one
// row per installment, each in the following invoice month.
func (s *InvoiceService) CreateCardTransaction(ctx context.Context, in domain.NewCardTransaction) ([]domain.CreditCardTransaction, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.CreateCardTransaction")
	defer span.End()
	span.SetAttributes(attribute.String("account.id", in.AccountID), attribute.String("card.id", in.CreditCardID))

	if err := validateCardTransaction(&in); err != nil {
		return nil, err
	}
	if in.Installments == 0 {
		in.Installments = 1
	}

	categoryID, err := s.categories.EnsureCategory(ctx, in.AccountID, domain.InvoiceCategory)
	if err != nil {
		return nil, err
	}

	var rows []domain.CreditCardTransaction
	err = s.store.WithinTx(ctx, func(tx port.LedgerStore) error {
		card, err := tx.GetCreditCard(ctx, in.AccountID, in.CreditCardID)
		if err != nil {
			return err
		}

		date := datemath.DateOnly(in.Date)
		month := in.InvoiceMonth
		if month == "" {
			month = datemath.InvoiceMonthFor(date, card.ClosingDay)
		}

		now := s.now().UTC()
		var groupID *string
		if in.Installments > 1 {
			groupID = domain.StrPtr(uuid.NewString())
		}
		for i := 0; i < in.Installments; i++ {
			m, err := datemath.ShiftMonth(month, i)
			if err != nil {
				return &domain.ErrValidation{Field: "invoiceMonth", Message: err.Error()}
			}
			rows = append(rows, domain.CreditCardTransaction{
				ID:                  uuid.NewString(),
				AccountID:           in.AccountID,
				CreditCardID:        card.ID,
				Description:         in.Description,
				Amount:              in.Amount.Round(2),
				Date:                datemath.AddMonthsPreserveDay(date, i),
				CategoryID:          in.CategoryID,
				InvoiceMonth:        m,
				Installments:        in.Installments,
				CurrentInstallment:  i + 1,
				InstallmentsGroupID: groupID,
				CreatedAt:           now,
				UpdatedAt:           now,
			})
		}
		if err := tx.CreateCardTransactions(ctx, rows); err != nil {
			return fmt.Errorf("create card transactions: %w", err)
		}
		_, err = s.resyncTx(ctx, tx, in.AccountID, categoryID)
		return err
	})
	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("failed to create card transaction", zap.String("account_id", in.AccountID), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("card transaction created",
		zap.String("account_id", in.AccountID),
		zap.String("card_id", in.CreditCardID),
		zap.String("invoice_month", rows[0].InvoiceMonth),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// ListCardTransactions returns the account's purchases, optionally for one card.
func (s *InvoiceService) ListCardTransactions(ctx context.Context, accountID, cardID string) ([]domain.CreditCardTransaction, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.ListCardTransactions")
	defer span.End()

	all, err := s.store.ListCardTransactions(ctx, accountID)
	if err != nil || cardID == "" {
		return all, err
	}
	out := make([]domain.CreditCardTransaction, 0, len(all))
	for _, t := range all {
		if t.CreditCardID == cardID {
			out = append(out, t)
		}
	}
	return out, nil
}

// UpdateCardTransaction edits a purchase and resyncs invoices. The invoice
// month only changes when set explicitly.
func (s *InvoiceService) UpdateCardTransaction(ctx context.Context, accountID, id string, patch domain.CardTransactionPatch) (*domain.CreditCardTransaction, error) {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.UpdateCardTransaction")
	defer span.End()

	errs := &domain.ErrValidationFields{}
	if patch.Description != nil && *patch.Description == "" {
		errs.Add("description", "must not be empty")
	}
	if patch.Amount != nil && !patch.Amount.IsPositive() {
		errs.Add("amount", "must be greater than zero")
	}
	if patch.CategoryID != nil && *patch.CategoryID == "" {
		errs.Add("categoryId", "must not be empty")
	}
	if patch.InvoiceMonth != nil {
		if _, err := datemath.ParseMonth(*patch.InvoiceMonth); err != nil {
			errs.Add("invoiceMonth", err.Error())
		}
	}
	if err := errs.OrNil(); err != nil {
		return nil, err
	}
	if patch.Date != nil {
		patch.Date = domain.TimePtr(datemath.DateOnly(*patch.Date))
	}
	if patch.Amount != nil {
		patch.Amount = domain.DecimalPtr(patch.Amount.Round(2))
	}

	categoryID, err := s.categories.EnsureCategory(ctx, accountID, domain.InvoiceCategory)
	if err != nil {
		return nil, err
	}

	var row *domain.CreditCardTransaction
	err = s.store.WithinTx(ctx, func(tx port.LedgerStore) error {
		row, err = tx.GetCardTransaction(ctx, accountID, id)
		if err != nil {
			return err
		}
		patch.ApplyTo(row)
		row.UpdatedAt = s.now().UTC()
		if err := tx.SaveCardTransaction(ctx, row); err != nil {
			return fmt.Errorf("save card transaction: %w", err)
		}
		_, err = s.resyncTx(ctx, tx, accountID, categoryID)
		return err
	})
	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("failed to update card transaction", zap.String("id", id), zap.Error(err))
		}
		return nil, err
	}

	s.logger.Info("card transaction updated",
		zap.String("account_id", accountID),
		zap.String("card_transaction_id", id),
	)
	return row, nil
}

// DeleteCardTransaction removes a purchase and resyncs invoices.
func (s *InvoiceService) DeleteCardTransaction(ctx context.Context, accountID, id string) error {
	ctx, span := invoiceTracer.Start(ctx, "InvoiceService.DeleteCardTransaction")
	defer span.End()

	categoryID, err := s.categories.EnsureCategory(ctx, accountID, domain.InvoiceCategory)
	if err != nil {
		return err
	}

	err = s.store.WithinTx(ctx, func(tx port.LedgerStore) error {
		if _, err := tx.GetCardTransaction(ctx, accountID, id); err != nil {
			return err
		}
		if err := tx.DeleteCardTransactions(ctx, accountID, []string{id}); err != nil {
			return fmt.Errorf("delete card transaction: %w", err)
		}
		_, err := s.resyncTx(ctx, tx, accountID, categoryID)
		return err
	})
	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("failed to delete card transaction", zap.String("id", id), zap.Error(err))
		}
		return err
	}

	s.logger.Info("card transaction deleted",
		zap.String("account_id", accountID),
		zap.String("card_transaction_id", id),
	)
	return nil
}
