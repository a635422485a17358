package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/port"

	"go.opentelemetry.io/otel"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var tracer = otel.Tracer("infra/postgres")

// Store implements port.LedgerStore on PostgreSQL.
type Store struct {
	db *gorm.DB
}

var _ port.LedgerStore = (*Store)(nil)

// NewStore wraps an open gorm connection.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// WithinTx runs fn in one database transaction. Nested calls use savepoints.
func (s *Store) WithinTx(ctx context.Context, fn func(tx port.LedgerStore) error) error {
	ctx, span := tracer.Start(ctx, "Store.WithinTx")
	defer span.End()

	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// Ping checks the connection.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// mapError converts gorm errors to domain errors.
func mapError(err error, resource, id string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return &domain.ErrNotFound{Resource: resource, ID: id}
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return &domain.ErrConflict{Message: fmt.Sprintf("%s %s conflicts with an existing row", resource, id)}
	case errors.Is(err, gorm.ErrForeignKeyViolated):
		return &domain.ErrValidation{Field: resource, Message: "references a missing row"}
	}
	return fmt.Errorf("%s %s: %w", resource, id, err)
}

func (s *Store) scoped(ctx context.Context, accountID string) *gorm.DB {
	return s.db.WithContext(ctx).Where("account_id = ?", accountID)
}

// ============================================================
// Transactions
// ============================================================

func toTransactions(rows []TransactionModel) []domain.Transaction {
	out := make([]domain.Transaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToEntity())
	}
	return out
}

func (s *Store) listTransactions(q *gorm.DB, order string) ([]domain.Transaction, error) {
	var rows []TransactionModel
	if err := q.Order(order).Find(&rows).Error; err != nil {
		return nil, mapError(err, "transactions", "")
	}
	return toTransactions(rows), nil
}

func (s *Store) ListPhysicalTransactions(ctx context.Context, accountID string, r domain.DateRange) ([]domain.Transaction, error) {
	q := s.scoped(ctx, accountID).
		Where("NOT is_exception").
		Where("(launch_type IN ('', 'unica', 'parcelada') OR (launch_type = 'recorrente' AND COALESCE(recurrence_frequency, '') = ''))").
		Where("date BETWEEN ? AND ?", r.Start, r.End)
	return s.listTransactions(q, "date, created_at, id")
}

func (s *Store) ListExceptions(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	return s.listTransactions(s.scoped(ctx, accountID).Where("is_exception"), "date, created_at, id")
}

func (s *Store) ListRecurrenceDefinitions(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	q := s.scoped(ctx, accountID).
		Where("NOT is_exception AND launch_type = ? AND recurrence_frequency = ?", domain.LaunchRecurring, domain.FrequencyMonthly)
	return s.listTransactions(q, "date, created_at, id")
}

func (s *Store) GetTransaction(ctx context.Context, accountID, id string) (*domain.Transaction, error) {
	var row TransactionModel
	if err := s.scoped(ctx, accountID).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, mapError(err, "transaction", id)
	}
	t := row.ToEntity()
	return &t, nil
}

func (s *Store) FindException(ctx context.Context, accountID, groupID string, forDate time.Time) (*domain.Transaction, error) {
	var row TransactionModel
	err := s.scoped(ctx, accountID).
		Where("is_exception AND recurrence_group_id = ? AND exception_for_date = ?", groupID, forDate).
		First(&row).Error
	if err != nil {
		return nil, mapError(err, "exception", groupID+"@"+forDate.Format("2006-01-02"))
	}
	t := row.ToEntity()
	return &t, nil
}

func (s *Store) ListInstallmentGroup(ctx context.Context, accountID, groupID string) ([]domain.Transaction, error) {
	return s.listTransactions(s.scoped(ctx, accountID).Where("installments_group_id = ?", groupID), "current_installment, date")
}

func (s *Store) ListRecurrenceGroup(ctx context.Context, accountID, groupID string) ([]domain.Transaction, error) {
	return s.listTransactions(s.scoped(ctx, accountID).Where("recurrence_group_id = ?", groupID), "date, created_at, id")
}

func (s *Store) ListInvoiceTransactions(ctx context.Context, accountID string) ([]domain.Transaction, error) {
	return s.listTransactions(s.scoped(ctx, accountID).Where("is_invoice_transaction"), "date, created_at, id")
}

func (s *Store) CreateTransactions(ctx context.Context, txs []domain.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	rows := make([]*TransactionModel, 0, len(txs))
	for i := range txs {
		rows = append(rows, transactionFromEntity(&txs[i]))
	}
	return mapError(s.db.WithContext(ctx).Create(&rows).Error, "transaction", txs[0].ID)
}

func (s *Store) SaveTransaction(ctx context.Context, tx *domain.Transaction) error {
	row := transactionFromEntity(tx)
	res := s.scoped(ctx, tx.AccountID).Model(row).Select("*").Omit("id", "account_id", "created_at").Updates(row)
	if res.Error != nil {
		return mapError(res.Error, "transaction", tx.ID)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "transaction", ID: tx.ID}
	}
	return nil
}

func (s *Store) DeleteTransactions(ctx context.Context, accountID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return mapError(s.scoped(ctx, accountID).Where("id IN ?", ids).Delete(&TransactionModel{}).Error, "transactions", "")
}

// ============================================================
// Credit cards
// ============================================================

func (s *Store) CreateCreditCard(ctx context.Context, card *domain.CreditCard) error {
	return mapError(s.db.WithContext(ctx).Create(creditCardFromEntity(card)).Error, "credit card", card.ID)
}

func (s *Store) ListCreditCards(ctx context.Context, accountID string) ([]domain.CreditCard, error) {
	var rows []CreditCardModel
	if err := s.scoped(ctx, accountID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, mapError(err, "credit cards", accountID)
	}
	out := make([]domain.CreditCard, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToEntity())
	}
	return out, nil
}

func (s *Store) GetCreditCard(ctx context.Context, accountID, cardID string) (*domain.CreditCard, error) {
	var row CreditCardModel
	if err := s.scoped(ctx, accountID).Where("id = ?", cardID).First(&row).Error; err != nil {
		return nil, mapError(err, "credit card", cardID)
	}
	c := row.ToEntity()
	return &c, nil
}

func (s *Store) DeleteCreditCard(ctx context.Context, accountID, cardID string) error {
	res := s.scoped(ctx, accountID).Where("id = ?", cardID).Delete(&CreditCardModel{})
	if res.Error != nil {
		return mapError(res.Error, "credit card", cardID)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "credit card", ID: cardID}
	}
	return nil
}

// ============================================================
// Card transactions
// ============================================================

func (s *Store) CreateCardTransactions(ctx context.Context, txs []domain.CreditCardTransaction) error {
	if len(txs) == 0 {
		return nil
	}
	rows := make([]*CardTransactionModel, 0, len(txs))
	for i := range txs {
		rows = append(rows, cardTransactionFromEntity(&txs[i]))
	}
	return mapError(s.db.WithContext(ctx).Create(&rows).Error, "card transaction", txs[0].ID)
}

func (s *Store) GetCardTransaction(ctx context.Context, accountID, id string) (*domain.CreditCardTransaction, error) {
	var row CardTransactionModel
	if err := s.scoped(ctx, accountID).Where("id = ?", id).First(&row).Error; err != nil {
		return nil, mapError(err, "card transaction", id)
	}
	t := row.ToEntity()
	return &t, nil
}

func (s *Store) SaveCardTransaction(ctx context.Context, tx *domain.CreditCardTransaction) error {
	row := cardTransactionFromEntity(tx)
	res := s.scoped(ctx, tx.AccountID).Model(row).Select("*").Omit("id", "account_id", "created_at").Updates(row)
	if res.Error != nil {
		return mapError(res.Error, "card transaction", tx.ID)
	}
	if res.RowsAffected == 0 {
		return &domain.ErrNotFound{Resource: "card transaction", ID: tx.ID}
	}
	return nil
}

func (s *Store) DeleteCardTransactions(ctx context.Context, accountID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	return mapError(s.scoped(ctx, accountID).Where("id IN ?", ids).Delete(&CardTransactionModel{}).Error, "card transactions", "")
}

func (s *Store) DeleteCardTransactionsByCard(ctx context.Context, accountID, cardID string) error {
	return mapError(s.scoped(ctx, accountID).Where("credit_card_id = ?", cardID).Delete(&CardTransactionModel{}).Error, "card transactions", cardID)
}

func (s *Store) ListCardTransactions(ctx context.Context, accountID string) ([]domain.CreditCardTransaction, error) {
	var rows []CardTransactionModel
	if err := s.scoped(ctx, accountID).Order("date, created_at, id").Find(&rows).Error; err != nil {
		return nil, mapError(err, "card transactions", accountID)
	}
	out := make([]domain.CreditCardTransaction, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToEntity())
	}
	return out, nil
}

// ============================================================
// Invoice payments
// ============================================================

func (s *Store) ListInvoicePayments(ctx context.Context, accountID string) ([]domain.InvoicePayment, error) {
	var rows []InvoicePaymentModel
	if err := s.scoped(ctx, accountID).Order("created_at, id").Find(&rows).Error; err != nil {
		return nil, mapError(err, "invoice payments", accountID)
	}
	out := make([]domain.InvoicePayment, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToEntity())
	}
	return out, nil
}

func (s *Store) GetInvoicePayment(ctx context.Context, accountID string, key domain.InvoiceKey) (*domain.InvoicePayment, error) {
	var row InvoicePaymentModel
	err := s.scoped(ctx, accountID).
		Where("credit_card_id = ? AND invoice_month = ?", key.CreditCardID, key.InvoiceMonth).
		First(&row).Error
	if err != nil {
		return nil, mapError(err, "invoice payment", key.InvoiceID())
	}
	p := row.ToEntity()
	return &p, nil
}

// SaveInvoicePayment upserts by primary key.
func (s *Store) SaveInvoicePayment(ctx context.Context, p *domain.InvoicePayment) error {
	err := s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"status", "due_date", "transaction_id", "paid_at", "updated_at"}),
	}).Create(invoicePaymentFromEntity(p)).Error
	return mapError(err, "invoice payment", p.ID)
}

func (s *Store) DeleteInvoicePaymentsByCard(ctx context.Context, accountID, cardID string) error {
	return mapError(s.scoped(ctx, accountID).Where("credit_card_id = ?", cardID).Delete(&InvoicePaymentModel{}).Error, "invoice payments", cardID)
}

// ============================================================
// Categories
// ============================================================

func (s *Store) ListCategories(ctx context.Context, accountID string) ([]domain.Category, error) {
	var rows []CategoryModel
	if err := s.scoped(ctx, accountID).Order("type, name").Find(&rows).Error; err != nil {
		return nil, mapError(err, "categories", accountID)
	}
	out := make([]domain.Category, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].ToEntity())
	}
	return out, nil
}

func (s *Store) FindCategory(ctx context.Context, accountID, name string, typ domain.TransactionType) (*domain.Category, error) {
	var row CategoryModel
	err := s.scoped(ctx, accountID).Where("name = ? AND type = ?", name, string(typ)).First(&row).Error
	if err != nil {
		return nil, mapError(err, "category", name)
	}
	c := row.ToEntity()
	return &c, nil
}

// CreateCategory inserts the category. A concurrent insert of the same
// (account, name, type) leaves c pointing at the existing row.
func (s *Store) CreateCategory(ctx context.Context, c *domain.Category) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(categoryFromEntity(c))
	if res.Error != nil {
		return mapError(res.Error, "category", c.Name)
	}
	if res.RowsAffected > 0 {
		return nil
	}
	existing, err := s.FindCategory(ctx, c.AccountID, c.Name, c.Type)
	if err != nil {
		return err
	}
	*c = *existing
	return nil
}
