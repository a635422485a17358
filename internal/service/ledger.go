// Package service provides the business logic layer (use cases).
// LedgerService owns the transaction ledger: materialized listing, creation
// of single/installment/recurring launches and scoped edits and deletes.
package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/datemath"
	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/infra/observability"
	"github.com/boddenberg/pj-finance-ledger/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var ledgerTracer = otel.Tracer("service/ledger")

// LedgerService orchestrates ledger reads and writes over a LedgerStore.
type LedgerService struct {
	store   port.LedgerStore
	metrics *observability.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewLedgerService creates a new ledger service.
func NewLedgerService(store port.LedgerStore, metrics *observability.Metrics, logger *zap.Logger) *LedgerService {
	return &LedgerService{store: store, metrics: metrics, logger: logger, now: time.Now}
}

func isNotFound(err error) bool {
	var nf *domain.ErrNotFound
	return errors.As(err, &nf)
}

// ============================================================
// Listing (materialized view)
// ============================================================

// ListTransactions returns every transaction visible in r: physical rows,
// in-range exceptions and virtual occurrences of monthly recurrences,
// ordered by date.
func (s *LedgerService) ListTransactions(ctx context.Context, accountID string, r domain.DateRange) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.ListTransactions")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.String("range.start", datemath.FormatDate(r.Start)),
		attribute.String("range.end", datemath.FormatDate(r.End)),
	)

	start := time.Now()
	defer func() {
		s.metrics.RecordRequestDuration("list_transactions", time.Since(start))
	}()

	if r.End.Before(r.Start) {
		return nil, &domain.ErrValidation{Field: "to", Message: "must not be before from"}
	}

	var physical, exceptions, definitions []domain.Transaction

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		rows, err := s.store.ListPhysicalTransactions(gCtx, accountID, r)
		if err != nil {
			return fmt.Errorf("list physical transactions: %w", err)
		}
		physical = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.ListExceptions(gCtx, accountID)
		if err != nil {
			return fmt.Errorf("list exceptions: %w", err)
		}
		exceptions = rows
		return nil
	})
	g.Go(func() error {
		rows, err := s.store.ListRecurrenceDefinitions(gCtx, accountID)
		if err != nil {
			return fmt.Errorf("list recurrence definitions: %w", err)
		}
		definitions = rows
		return nil
	})
	if err := g.Wait(); err != nil {
		s.logger.Error("failed to load ledger rows", zap.String("account_id", accountID), zap.Error(err))
		return nil, err
	}

	res := Materialize(MaterializeInput{
		Physical:    physical,
		Exceptions:  exceptions,
		Definitions: definitions,
		Range:       r,
	})

	s.metrics.AddMaterialized(observability.RowPhysical, res.Physical)
	s.metrics.AddMaterialized(observability.RowException, res.Exceptions)
	s.metrics.AddMaterialized(observability.RowVirtual, res.Virtual)
	span.SetAttributes(attribute.Int("rows.virtual", res.Virtual), attribute.Int("rows.total", len(res.Transactions)))

	return res.Transactions, nil
}

// GetTransaction returns one physical row.
func (s *LedgerService) GetTransaction(ctx context.Context, accountID, id string) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.GetTransaction")
	defer span.End()

	return s.store.GetTransaction(ctx, accountID, id)
}

// ============================================================
// Creation
// ============================================================

func validateNewTransaction(in *domain.NewTransaction) error {
	errs := &domain.ErrValidationFields{}
	if in.AccountID == "" {
		errs.Add("accountId", "required")
	}
	if in.Description == "" {
		errs.Add("description", "required")
	}
	if !in.Amount.IsPositive() {
		errs.Add("amount", "must be greater than zero")
	}
	if !in.Type.Valid() {
		errs.Add("type", "must be income or expense")
	}
	if in.Date.IsZero() {
		errs.Add("date", "required")
	}
	if in.CategoryID == "" {
		errs.Add("categoryId", "required")
	}

	switch in.LaunchType {
	case domain.LaunchNone, domain.LaunchSingle:
	case domain.LaunchInstallment:
		if in.Installments < 2 {
			errs.Add("installments", "must be at least 2 for an installment launch")
		}
	case domain.LaunchRecurring:
		if in.RecurrenceFrequency != "" && in.RecurrenceFrequency != domain.FrequencyMonthly {
			errs.Add("recurrenceFrequency", "only \"mensal\" is supported")
		}
		if in.RecurrenceEndDate != nil && !in.Date.IsZero() && in.RecurrenceEndDate.Before(in.Date) {
			errs.Add("recurrenceEndDate", "must not be before date")
		}
	default:
		errs.Add("launchType", "must be unica, parcelada or recorrente")
	}
	return errs.OrNil()
}

// CreateTransaction launches a new transaction. An installment launch writes
// one row per installment in one store transaction; a recurring launch writes
// a single definition row with a fresh recurrence group.
func (s *LedgerService) CreateTransaction(ctx context.Context, in domain.NewTransaction) ([]domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.CreateTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", in.AccountID),
		attribute.String("launch.type", string(in.LaunchType)),
	)

	if err := validateNewTransaction(&in); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	base := domain.Transaction{
		AccountID:          in.AccountID,
		Description:        in.Description,
		Amount:             in.Amount.Round(2),
		Type:               in.Type,
		Date:               datemath.DateOnly(in.Date),
		CategoryID:         in.CategoryID,
		BankAccountID:      in.BankAccountID,
		PaymentMethod:      in.PaymentMethod,
		ClientName:         in.ClientName,
		ProjectName:        in.ProjectName,
		CostCenter:         in.CostCenter,
		Installments:       1,
		CurrentInstallment: 1,
		LaunchType:         in.LaunchType,
		Paid:               in.Paid,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	var rows []domain.Transaction
	switch in.LaunchType {
	case domain.LaunchInstallment:
		groupID := uuid.NewString()
		for i := 1; i <= in.Installments; i++ {
			row := base.Clone()
			row.ID = uuid.NewString()
			row.Date = datemath.AddMonthsPreserveDay(base.Date, i-1)
			row.Installments = in.Installments
			row.CurrentInstallment = i
			row.InstallmentsGroupID = domain.StrPtr(groupID)
			rows = append(rows, row)
		}
	case domain.LaunchRecurring:
		row := base.Clone()
		row.ID = uuid.NewString()
		row.RecurrenceFrequency = domain.StrPtr(domain.FrequencyMonthly)
		row.RecurrenceGroupID = domain.StrPtr(uuid.NewString())
		if in.RecurrenceEndDate != nil {
			row.RecurrenceEndDate = domain.TimePtr(datemath.DateOnly(*in.RecurrenceEndDate))
		}
		rows = append(rows, row)
	default:
		row := base.Clone()
		row.ID = uuid.NewString()
		row.LaunchType = domain.LaunchSingle
		rows = append(rows, row)
	}

	err := s.store.WithinTx(ctx, func(tx port.LedgerStore) error {
		return tx.CreateTransactions(ctx, rows)
	})
	if err != nil {
		s.logger.Error("failed to create transaction",
			zap.String("account_id", in.AccountID),
			zap.String("launch_type", string(in.LaunchType)),
			zap.Error(err),
		)
		return nil, err
	}

	s.logger.Info("transaction created",
		zap.String("account_id", in.AccountID),
		zap.String("transaction_id", rows[0].ID),
		zap.String("launch_type", string(rows[0].LaunchType)),
		zap.Int("rows", len(rows)),
	)
	return rows, nil
}

// ============================================================
// Scoped edits
// ============================================================

type groupKind int

const (
	groupNone groupKind = iota
	groupInstallment
	groupRecurrence
)

// resolveGroup picks the series the edit applies to. Caller-supplied group
// ids win over the row's own.
func resolveGroup(current *domain.Transaction, ref domain.GroupRef) (groupKind, string) {
	switch {
	case ref.InstallmentsGroupID != "":
		return groupInstallment, ref.InstallmentsGroupID
	case ref.RecurrenceGroupID != "":
		return groupRecurrence, ref.RecurrenceGroupID
	case current.InstallmentGroup() != "":
		return groupInstallment, current.InstallmentGroup()
	case current.RecurrenceGroup() != "":
		return groupRecurrence, current.RecurrenceGroup()
	}
	return groupNone, ""
}

// UpdateTransaction applies patch to the row, its recurrence occurrence or
// its series depending on scope. It returns the updated target row, or the
// exception row when a single occurrence of a recurrence was edited.
func (s *LedgerService) UpdateTransaction(ctx context.Context, accountID, id string, patch domain.TransactionPatch, scope domain.EditScope, ref domain.GroupRef) (*domain.Transaction, error) {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.UpdateTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.String("transaction.id", id),
		attribute.String("scope", string(scope)),
	)

	if !scope.Valid() {
		return nil, &domain.ErrValidation{Field: "scope", Message: "must be single, future or all"}
	}
	if patch.IsEmpty() {
		return nil, &domain.ErrValidation{Field: "body", Message: "no fields to update"}
	}
	if err := patch.Validate(); err != nil {
		return nil, err
	}
	if patch.Date != nil {
		patch.Date = domain.TimePtr(datemath.DateOnly(*patch.Date))
	}

	s.metrics.IncrScopedEdit("update", string(scope))

	var result *domain.Transaction
	err := s.store.WithinTx(ctx, func(tx port.LedgerStore) error {
		current, err := tx.GetTransaction(ctx, accountID, id)
		if err != nil {
			return err
		}

		if current.IsInvoiceTransaction {
			result, err = s.updateInvoiceRow(ctx, tx, current, patch)
			return err
		}

		if scope == domain.ScopeSingle && current.BelongsToRecurrence() {
			result, err = s.upsertException(ctx, tx, current, patch, ref)
			return err
		}

		if scope == "" || scope == domain.ScopeSingle {
			result, err = s.updateRow(ctx, tx, current, patch)
			return err
		}

		result, err = s.updateGroup(ctx, tx, current, patch, scope, ref)
		return err
	})
	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("failed to update transaction",
				zap.String("account_id", accountID),
				zap.String("transaction_id", id),
				zap.String("scope", string(scope)),
				zap.Error(err),
			)
		}
		return nil, err
	}

	s.logger.Info("transaction updated",
		zap.String("account_id", accountID),
		zap.String("transaction_id", id),
		zap.String("result_id", result.ID),
		zap.String("scope", string(scope)),
	)
	return result, nil
}

func (s *LedgerService) updateRow(ctx context.Context, tx port.LedgerStore, row *domain.Transaction, patch domain.TransactionPatch) (*domain.Transaction, error) {
	patch.ApplyTo(row)
	if patch.Date != nil {
		row.Date = *patch.Date
	}
	row.UpdatedAt = s.now().UTC()
	if err := tx.SaveTransaction(ctx, row); err != nil {
		return nil, fmt.Errorf("save transaction: %w", err)
	}
	return row, nil
}

// updateInvoiceRow accepts only paid/date changes on a synthetic invoice row
// and mirrors them onto the linked invoice payment. The row date of an
// invoice is its due date until paid, so a date change needs the row to end
// up paid and is kept as the payment date.
func (s *LedgerService) updateInvoiceRow(ctx context.Context, tx port.LedgerStore, row *domain.Transaction, patch domain.TransactionPatch) (*domain.Transaction, error) {
	if !patch.OnlyTouchesPaymentFields() {
		return nil, &domain.ErrValidation{
			Field:   "isInvoiceTransaction",
			Message: "invoice transactions only accept paid and date changes",
		}
	}
	paid := row.Paid
	if patch.Paid != nil {
		paid = *patch.Paid
	}
	if patch.Date != nil && !paid {
		return nil, &domain.ErrValidation{
			Field:   "date",
			Message: "an unpaid invoice transaction stays on its due date",
		}
	}

	row, err := s.updateRow(ctx, tx, row, patch)
	if err != nil {
		return nil, err
	}

	payments, err := tx.ListInvoicePayments(ctx, row.AccountID)
	if err != nil {
		return nil, fmt.Errorf("list invoice payments: %w", err)
	}
	for i := range payments {
		p := &payments[i]
		if p.TransactionID == nil || *p.TransactionID != row.ID {
			continue
		}
		if row.Paid {
			p.Status = domain.InvoicePaid
			p.PaidAt = domain.TimePtr(row.Date)
		} else {
			p.Status = domain.InvoicePending
			p.PaidAt = nil
		}
		p.UpdatedAt = s.now().UTC()
		if err := tx.SaveInvoicePayment(ctx, p); err != nil {
			return nil, fmt.Errorf("save invoice payment: %w", err)
		}
	}
	return row, nil
}

// upsertException edits one occurrence of a recurrence. The occurrence is
// addressed by ref.ExceptionForDate (the virtual date), falling back to the
// target row's own occurrence date.
func (s *LedgerService) upsertException(ctx context.Context, tx port.LedgerStore, current *domain.Transaction, patch domain.TransactionPatch, ref domain.GroupRef) (*domain.Transaction, error) {
	now := s.now().UTC()

	groupID := current.RecurrenceGroup()
	if groupID == "" {
		groupID = uuid.NewString()
		current.RecurrenceGroupID = domain.StrPtr(groupID)
		current.UpdatedAt = now
		if err := tx.SaveTransaction(ctx, current); err != nil {
			return nil, fmt.Errorf("assign recurrence group: %w", err)
		}
		s.logger.Info("recurrence group assigned",
			zap.String("transaction_id", current.ID),
			zap.String("recurrence_group_id", groupID),
		)
	}

	var originalDate time.Time
	switch {
	case ref.ExceptionForDate != nil:
		originalDate = datemath.DateOnly(*ref.ExceptionForDate)
	case current.IsException && current.ExceptionForDate != nil:
		originalDate = datemath.DateOnly(*current.ExceptionForDate)
	default:
		originalDate = current.Date
	}

	existing, err := tx.FindException(ctx, current.AccountID, groupID, originalDate)
	switch {
	case err == nil:
		patch.ApplyToException(existing)
		existing.UpdatedAt = now
		if err := tx.SaveTransaction(ctx, existing); err != nil {
			return nil, fmt.Errorf("save exception: %w", err)
		}
		return existing, nil
	case !isNotFound(err):
		return nil, fmt.Errorf("find exception: %w", err)
	}

	def := current
	if current.IsException {
		if d, err := findDefinition(ctx, tx, current.AccountID, groupID); err == nil {
			def = d
		} else if !isNotFound(err) {
			return nil, err
		}
	}

	ex := def.Clone()
	ex.ID = uuid.NewString()
	ex.Date = originalDate
	ex.Paid = false
	ex.IsException = true
	ex.ExceptionForDate = domain.TimePtr(originalDate)
	ex.LaunchType = domain.LaunchSingle
	ex.RecurrenceFrequency = nil
	ex.RecurrenceEndDate = nil
	ex.RecurrenceGroupID = domain.StrPtr(groupID)
	ex.InstallmentsGroupID = nil
	ex.Installments = 1
	ex.CurrentInstallment = 1
	ex.VirtualDate = nil
	ex.CreatedAt = now
	ex.UpdatedAt = now
	patch.ApplyToException(&ex)

	if err := tx.CreateTransactions(ctx, []domain.Transaction{ex}); err != nil {
		return nil, fmt.Errorf("create exception: %w", err)
	}
	s.logger.Info("recurrence exception created",
		zap.String("recurrence_group_id", groupID),
		zap.String("exception_id", ex.ID),
		zap.String("exception_for_date", datemath.FormatDate(originalDate)),
	)
	return &ex, nil
}

func findDefinition(ctx context.Context, tx port.LedgerStore, accountID, groupID string) (*domain.Transaction, error) {
	members, err := tx.ListRecurrenceGroup(ctx, accountID, groupID)
	if err != nil {
		return nil, fmt.Errorf("list recurrence group: %w", err)
	}
	for i := range members {
		if !members[i].IsException {
			return &members[i], nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "recurrence definition", ID: groupID}
}

// selectInstallments loads the installment group and applies the future
// filter by installment number.
func selectInstallments(ctx context.Context, tx port.LedgerStore, current *domain.Transaction, groupID string, scope domain.EditScope) ([]domain.Transaction, error) {
	members, err := tx.ListInstallmentGroup(ctx, current.AccountID, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}

	if scope == domain.ScopeFuture {
		kept := members[:0]
		for _, m := range members {
			if m.CurrentInstallment >= current.CurrentInstallment {
				kept = append(kept, m)
			}
		}
		members = kept
	}

	if len(members) == 0 {
		return nil, &domain.ErrNotFound{Resource: "transaction group", ID: groupID}
	}
	return members, nil
}

func (s *LedgerService) updateGroup(ctx context.Context, tx port.LedgerStore, current *domain.Transaction, patch domain.TransactionPatch, scope domain.EditScope, ref domain.GroupRef) (*domain.Transaction, error) {
	kind, groupID := resolveGroup(current, ref)
	if kind == groupNone {
		if !current.IsRecurrenceDefinition() {
			return s.updateRow(ctx, tx, current, patch)
		}
		groupID = uuid.NewString()
		kind = groupRecurrence
		current.RecurrenceGroupID = domain.StrPtr(groupID)
		current.UpdatedAt = s.now().UTC()
		if err := tx.SaveTransaction(ctx, current); err != nil {
			return nil, fmt.Errorf("assign recurrence group: %w", err)
		}
	}

	if kind == groupRecurrence {
		return s.updateRecurrence(ctx, tx, current, patch, scope, groupID, ref)
	}

	members, err := selectInstallments(ctx, tx, current, groupID, scope)
	if err != nil {
		return nil, err
	}

	now := s.now().UTC()
	for i := range members {
		m := &members[i]
		if m.IsInvoiceTransaction {
			continue
		}
		patch.ApplyTo(m)
		if patch.Date != nil {
			m.Date = datemath.AddMonthsPreserveDay(*patch.Date, datemath.DifferenceInMonths(m.Date, current.Date))
		}
		m.UpdatedAt = now
		if err := tx.SaveTransaction(ctx, m); err != nil {
			return nil, fmt.Errorf("save group member %s: %w", m.ID, err)
		}
	}

	s.logger.Info("transaction group updated",
		zap.String("group_id", groupID),
		zap.String("scope", string(scope)),
		zap.Int("members", len(members)),
	)
	return tx.GetTransaction(ctx, current.AccountID, current.ID)
}

// occurrenceFrom returns the occurrence date a recurrence edit starts at.
func occurrenceFrom(current *domain.Transaction, ref domain.GroupRef) time.Time {
	switch {
	case ref.ExceptionForDate != nil:
		return datemath.DateOnly(*ref.ExceptionForDate)
	case current.IsException && current.ExceptionForDate != nil:
		return datemath.DateOnly(*current.ExceptionForDate)
	}
	return datemath.DateOnly(current.Date)
}

// updateRecurrence edits a recurrence series. A future edit starting after
// the first occurrence splits the series in two; otherwise every member from
// the starting occurrence on is rewritten in place.
func (s *LedgerService) updateRecurrence(ctx context.Context, tx port.LedgerStore, current *domain.Transaction, patch domain.TransactionPatch, scope domain.EditScope, groupID string, ref domain.GroupRef) (*domain.Transaction, error) {
	members, err := tx.ListRecurrenceGroup(ctx, current.AccountID, groupID)
	if err != nil {
		return nil, fmt.Errorf("list group members: %w", err)
	}
	if len(members) == 0 {
		return nil, &domain.ErrNotFound{Resource: "transaction group", ID: groupID}
	}

	var def *domain.Transaction
	for i := range members {
		if members[i].IsRecurrenceDefinition() {
			def = &members[i]
			break
		}
	}

	from := occurrenceFrom(current, ref)
	if scope == domain.ScopeFuture && def != nil && from.After(datemath.DateOnly(def.Date)) {
		return s.splitRecurrence(ctx, tx, def, members, from, patch)
	}

	// plain rows shift by whole days relative to the series start
	var anchor time.Time
	if def != nil {
		anchor = datemath.DateOnly(def.Date)
	} else {
		for _, m := range members {
			if !m.IsException && (anchor.IsZero() || m.Date.Before(anchor)) {
				anchor = datemath.DateOnly(m.Date)
			}
		}
	}
	var newAnchor time.Time
	if patch.Date != nil {
		newAnchor = *patch.Date
	}

	now := s.now().UTC()
	updated := 0
	for i := range members {
		m := &members[i]
		if m.IsInvoiceTransaction {
			continue
		}
		if m.IsException {
			if scope == domain.ScopeFuture && (m.ExceptionForDate == nil || m.ExceptionForDate.Before(from)) {
				continue
			}
			applyToSeriesException(m, patch)
			if def != nil && patch.Date != nil {
				reanchorException(m, anchor, newAnchor)
			}
		} else {
			if scope == domain.ScopeFuture && m.Date.Before(from) {
				continue
			}
			patch.ApplyTo(m)
			if patch.Date != nil {
				m.Date = datemath.AddDays(newAnchor, datemath.DifferenceInDays(m.Date, anchor))
			}
		}
		m.UpdatedAt = now
		if err := tx.SaveTransaction(ctx, m); err != nil {
			return nil, fmt.Errorf("save group member %s: %w", m.ID, err)
		}
		updated++
	}
	if updated == 0 {
		return nil, &domain.ErrNotFound{Resource: "transaction group", ID: groupID}
	}

	s.logger.Info("transaction group updated",
		zap.String("group_id", groupID),
		zap.String("scope", string(scope)),
		zap.Int("members", updated),
	)
	return tx.GetTransaction(ctx, current.AccountID, current.ID)
}

// splitRecurrence ends def the day before from and starts a new series at
// from carrying the patch. Exceptions for occurrences on or after from move to
// the new series.
func (s *LedgerService) splitRecurrence(ctx context.Context, tx port.LedgerStore, def *domain.Transaction, members []domain.Transaction, from time.Time, patch domain.TransactionPatch) (*domain.Transaction, error) {
	if def.RecurrenceEndDate != nil && from.After(datemath.DateOnly(*def.RecurrenceEndDate)) {
		return nil, &domain.ErrValidation{Field: "exceptionForDate", Message: "is after the end of the series"}
	}
	now := s.now().UTC()
	oldGroup := def.RecurrenceGroup()
	newGroup := uuid.NewString()

	next := def.Clone()
	next.ID = uuid.NewString()
	next.RecurrenceGroupID = domain.StrPtr(newGroup)
	next.Date = from
	next.CreatedAt = now
	next.UpdatedAt = now
	patch.ApplyTo(&next)
	if patch.Date != nil {
		next.Date = *patch.Date
	}

	def.RecurrenceEndDate = domain.TimePtr(datemath.AddDays(from, -1))
	def.UpdatedAt = now
	if err := tx.SaveTransaction(ctx, def); err != nil {
		return nil, fmt.Errorf("end recurrence: %w", err)
	}
	if err := tx.CreateTransactions(ctx, []domain.Transaction{next}); err != nil {
		return nil, fmt.Errorf("create recurrence: %w", err)
	}

	moved := 0
	for i := range members {
		m := &members[i]
		if !m.IsException || m.ExceptionForDate == nil || m.ExceptionForDate.Before(from) {
			continue
		}
		m.RecurrenceGroupID = domain.StrPtr(newGroup)
		applyToSeriesException(m, patch)
		if patch.Date != nil {
			reanchorException(m, from, next.Date)
		}
		m.UpdatedAt = now
		if err := tx.SaveTransaction(ctx, m); err != nil {
			return nil, fmt.Errorf("move exception %s: %w", m.ID, err)
		}
		moved++
	}

	s.logger.Info("recurrence split",
		zap.String("recurrence_group_id", oldGroup),
		zap.String("new_recurrence_group_id", newGroup),
		zap.String("split_date", datemath.FormatDate(from)),
		zap.Int("exceptions_moved", moved),
	)
	return &next, nil
}

// applyToSeriesException merges a series-wide patch into an exception. The
// exception's date only moves through reanchorException.
func applyToSeriesException(ex *domain.Transaction, patch domain.TransactionPatch) {
	patch.Date = nil
	patch.ApplyToException(ex)
}

// reanchorException follows the series when its first occurrence moves from
// oldStart to newStart, keeping ExceptionForDate on a generated occurrence.
// The exception's own date moves by the same number of days.
func reanchorException(ex *domain.Transaction, oldStart, newStart time.Time) {
	if ex.ExceptionForDate == nil {
		return
	}
	oldFor := datemath.DateOnly(*ex.ExceptionForDate)
	newFor := datemath.AddMonthsPreserveDay(newStart, datemath.DifferenceInMonths(oldFor, oldStart))
	ex.Date = datemath.AddDays(ex.Date, datemath.DifferenceInDays(newFor, oldFor))
	ex.ExceptionForDate = domain.TimePtr(newFor)
}

// ============================================================
// Deletion
// ============================================================

// DeleteTransaction removes the row or, for future/all scopes, the matching
// members of its series.
func (s *LedgerService) DeleteTransaction(ctx context.Context, accountID, id string, scope domain.EditScope, ref domain.GroupRef) error {
	ctx, span := ledgerTracer.Start(ctx, "LedgerService.DeleteTransaction")
	defer span.End()
	span.SetAttributes(
		attribute.String("account.id", accountID),
		attribute.String("transaction.id", id),
		attribute.String("scope", string(scope)),
	)

	if !scope.Valid() {
		return &domain.ErrValidation{Field: "scope", Message: "must be single, future or all"}
	}
	s.metrics.IncrScopedEdit("delete", string(scope))

	var deleted int
	err := s.store.WithinTx(ctx, func(tx port.LedgerStore) error {
		current, err := tx.GetTransaction(ctx, accountID, id)
		if err != nil {
			return err
		}
		if current.IsInvoiceTransaction {
			return &domain.ErrValidation{
				Field:   "isInvoiceTransaction",
				Message: "invoice transactions are managed by the card invoice sync",
			}
		}

		kind, groupID := resolveGroup(current, ref)
		if scope == "" || scope == domain.ScopeSingle || kind == groupNone {
			if ref.ExceptionForDate != nil && current.IsRecurrenceDefinition() {
				return &domain.ErrValidation{
					Field:   "scope",
					Message: "a single recurring occurrence cannot be deleted; use future or all",
				}
			}
			deleted = 1
			return tx.DeleteTransactions(ctx, accountID, []string{current.ID})
		}

		if kind == groupRecurrence {
			deleted, err = s.deleteRecurrence(ctx, tx, current, groupID, scope, ref)
			return err
		}

		members, err := selectInstallments(ctx, tx, current, groupID, scope)
		if err != nil {
			return err
		}
		ids := make([]string, 0, len(members))
		for _, m := range members {
			ids = append(ids, m.ID)
		}
		deleted = len(ids)
		return tx.DeleteTransactions(ctx, accountID, ids)
	})
	if err != nil {
		if !isNotFound(err) {
			s.logger.Error("failed to delete transaction",
				zap.String("account_id", accountID),
				zap.String("transaction_id", id),
				zap.Error(err),
			)
		}
		return err
	}

	s.logger.Info("transaction deleted",
		zap.String("account_id", accountID),
		zap.String("transaction_id", id),
		zap.String("scope", string(scope)),
		zap.Int("rows", deleted),
	)
	return nil
}

// deleteRecurrence removes a whole series, or for a future delete starting
// after the first occurrence ends the definition the day before and drops the
// exceptions from that occurrence on. It returns the number of rows touched.
func (s *LedgerService) deleteRecurrence(ctx context.Context, tx port.LedgerStore, current *domain.Transaction, groupID string, scope domain.EditScope, ref domain.GroupRef) (int, error) {
	members, err := tx.ListRecurrenceGroup(ctx, current.AccountID, groupID)
	if err != nil {
		return 0, fmt.Errorf("list group members: %w", err)
	}
	if len(members) == 0 {
		return 0, &domain.ErrNotFound{Resource: "transaction group", ID: groupID}
	}

	from := occurrenceFrom(current, ref)
	truncate := false
	ids := make([]string, 0, len(members))
	for i := range members {
		m := &members[i]
		switch {
		case scope != domain.ScopeFuture:
			ids = append(ids, m.ID)
		case m.IsRecurrenceDefinition() && from.After(datemath.DateOnly(m.Date)):
			m.RecurrenceEndDate = domain.TimePtr(datemath.AddDays(from, -1))
			m.UpdatedAt = s.now().UTC()
			if err := tx.SaveTransaction(ctx, m); err != nil {
				return 0, fmt.Errorf("end recurrence: %w", err)
			}
			truncate = true
		case m.IsException:
			if m.ExceptionForDate != nil && !m.ExceptionForDate.Before(from) {
				ids = append(ids, m.ID)
			}
		case !m.Date.Before(from):
			ids = append(ids, m.ID)
		}
	}
	if len(ids) == 0 && !truncate {
		return 0, &domain.ErrNotFound{Resource: "transaction group", ID: groupID}
	}
	if len(ids) > 0 {
		if err := tx.DeleteTransactions(ctx, current.AccountID, ids); err != nil {
			return 0, err
		}
	}
	if truncate {
		return len(ids) + 1, nil
	}
	return len(ids), nil
}
