package postgres

import (
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"

	"github.com/shopspring/decimal"
)

// TransactionModel represents the transactions table.
type TransactionModel struct {
	ID          string          `gorm:"type:uuid;primaryKey"`
	AccountID   string          `gorm:"type:varchar(64);not null;index"`
	Description string          `gorm:"type:varchar(255);not null"`
	Amount      decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Type        string          `gorm:"type:varchar(10);not null"`
	Date        time.Time       `gorm:"type:date;not null;index"`
	CategoryID  string          `gorm:"type:varchar(64);not null"`

	BankAccountID *string `gorm:"type:varchar(64)"`
	PaymentMethod *string `gorm:"type:varchar(32)"`
	ClientName    *string `gorm:"type:varchar(255)"`
	ProjectName   *string `gorm:"type:varchar(255)"`
	CostCenter    *string `gorm:"type:varchar(64)"`

	Installments        int     `gorm:"not null;default:1"`
	CurrentInstallment  int     `gorm:"not null;default:1"`
	InstallmentsGroupID *string `gorm:"type:uuid;index"`

	LaunchType          string     `gorm:"type:varchar(16);not null;default:''"`
	RecurrenceFrequency *string    `gorm:"type:varchar(16)"`
	RecurrenceEndDate   *time.Time `gorm:"type:date"`
	RecurrenceGroupID   *string    `gorm:"type:uuid;index"`

	CreditCardInvoiceID  *string `gorm:"type:varchar(128)"`
	CreditCardID         *string `gorm:"type:uuid"`
	IsInvoiceTransaction bool    `gorm:"not null;default:false"`

	Paid             bool       `gorm:"not null;default:false"`
	IsException      bool       `gorm:"not null;default:false"`
	ExceptionForDate *time.Time `gorm:"type:date"`

	CreatedAt time.Time `gorm:"not null"`
	UpdatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for TransactionModel.
func (TransactionModel) TableName() string {
	return "transactions"
}

// ToEntity converts the row to a domain transaction.
func (m *TransactionModel) ToEntity() domain.Transaction {
	return domain.Transaction{
		ID:                   m.ID,
		AccountID:            m.AccountID,
		Description:          m.Description,
		Amount:               m.Amount,
		Type:                 domain.TransactionType(m.Type),
		Date:                 utcDate(m.Date),
		CategoryID:           m.CategoryID,
		BankAccountID:        m.BankAccountID,
		PaymentMethod:        m.PaymentMethod,
		ClientName:           m.ClientName,
		ProjectName:          m.ProjectName,
		CostCenter:           m.CostCenter,
		Installments:         m.Installments,
		CurrentInstallment:   m.CurrentInstallment,
		InstallmentsGroupID:  m.InstallmentsGroupID,
		LaunchType:           domain.LaunchType(m.LaunchType),
		RecurrenceFrequency:  m.RecurrenceFrequency,
		RecurrenceEndDate:    utcDatePtr(m.RecurrenceEndDate),
		RecurrenceGroupID:    m.RecurrenceGroupID,
		CreditCardInvoiceID:  m.CreditCardInvoiceID,
		CreditCardID:         m.CreditCardID,
		IsInvoiceTransaction: m.IsInvoiceTransaction,
		Paid:                 m.Paid,
		IsException:          m.IsException,
		ExceptionForDate:     utcDatePtr(m.ExceptionForDate),
		CreatedAt:            m.CreatedAt.UTC(),
		UpdatedAt:            m.UpdatedAt.UTC(),
	}
}

// transactionFromEntity converts a domain transaction to its row. The
// VirtualDate of materialized output is never persisted.
func transactionFromEntity(t *domain.Transaction) *TransactionModel {
	return &TransactionModel{
		ID:                   t.ID,
		AccountID:            t.AccountID,
		Description:          t.Description,
		Amount:               t.Amount,
		Type:                 string(t.Type),
		Date:                 t.Date,
		CategoryID:           t.CategoryID,
		BankAccountID:        t.BankAccountID,
		PaymentMethod:        t.PaymentMethod,
		ClientName:           t.ClientName,
		ProjectName:          t.ProjectName,
		CostCenter:           t.CostCenter,
		Installments:         t.Installments,
		CurrentInstallment:   t.CurrentInstallment,
		InstallmentsGroupID:  t.InstallmentsGroupID,
		LaunchType:           string(t.LaunchType),
		RecurrenceFrequency:  t.RecurrenceFrequency,
		RecurrenceEndDate:    t.RecurrenceEndDate,
		RecurrenceGroupID:    t.RecurrenceGroupID,
		CreditCardInvoiceID:  t.CreditCardInvoiceID,
		CreditCardID:         t.CreditCardID,
		IsInvoiceTransaction: t.IsInvoiceTransaction,
		Paid:                 t.Paid,
		IsException:          t.IsException,
		ExceptionForDate:     t.ExceptionForDate,
		CreatedAt:            t.CreatedAt,
		UpdatedAt:            t.UpdatedAt,
	}
}

// CreditCardModel represents the credit_cards table.
type CreditCardModel struct {
	ID         string    `gorm:"type:uuid;primaryKey"`
	AccountID  string    `gorm:"type:varchar(64);not null;index"`
	Name       string    `gorm:"type:varchar(100);not null"`
	Brand      string    `gorm:"type:varchar(32)"`
	LastFour   string    `gorm:"column:last_four_digits;type:varchar(4)"`
	DueDay     int       `gorm:"not null"`
	ClosingDay int       `gorm:"not null"`
	CreatedAt  time.Time `gorm:"not null"`
}

// TableName returns the table name for CreditCardModel.
func (CreditCardModel) TableName() string {
	return "credit_cards"
}

// ToEntity converts the row to a domain card.
func (m *CreditCardModel) ToEntity() domain.CreditCard {
	return domain.CreditCard{
		ID:         m.ID,
		AccountID:  m.AccountID,
		Name:       m.Name,
		Brand:      m.Brand,
		LastFour:   m.LastFour,
		DueDay:     m.DueDay,
		ClosingDay: m.ClosingDay,
		CreatedAt:  m.CreatedAt.UTC(),
	}
}

func creditCardFromEntity(c *domain.CreditCard) *CreditCardModel {
	return &CreditCardModel{
		ID:         c.ID,
		AccountID:  c.AccountID,
		Name:       c.Name,
		Brand:      c.Brand,
		LastFour:   c.LastFour,
		DueDay:     c.DueDay,
		ClosingDay: c.ClosingDay,
		CreatedAt:  c.CreatedAt,
	}
}

// CardTransactionModel represents the credit_card_transactions table.
type CardTransactionModel struct {
	ID                  string          `gorm:"type:uuid;primaryKey"`
	AccountID           string          `gorm:"type:varchar(64);not null;index"`
	CreditCardID        string          `gorm:"type:uuid;not null;index"`
	Description         string          `gorm:"type:varchar(255);not null"`
	Amount              decimal.Decimal `gorm:"type:decimal(15,2);not null"`
	Date                time.Time       `gorm:"type:date;not null"`
	CategoryID          string          `gorm:"type:varchar(64);not null"`
	InvoiceMonth        string          `gorm:"type:char(7);not null"`
	Installments        int             `gorm:"not null;default:1"`
	CurrentInstallment  int             `gorm:"not null;default:1"`
	InstallmentsGroupID *string         `gorm:"type:uuid"`
	CreatedAt           time.Time       `gorm:"not null"`
	UpdatedAt           time.Time       `gorm:"not null"`
}

// TableName returns the table name for CardTransactionModel.
func (CardTransactionModel) TableName() string {
	return "credit_card_transactions"
}

// ToEntity converts the row to a domain card purchase.
func (m *CardTransactionModel) ToEntity() domain.CreditCardTransaction {
	return domain.CreditCardTransaction{
		ID:                  m.ID,
		AccountID:           m.AccountID,
		CreditCardID:        m.CreditCardID,
		Description:         m.Description,
		Amount:              m.Amount,
		Date:                utcDate(m.Date),
		CategoryID:          m.CategoryID,
		InvoiceMonth:        m.InvoiceMonth,
		Installments:        m.Installments,
		CurrentInstallment:  m.CurrentInstallment,
		InstallmentsGroupID: m.InstallmentsGroupID,
		CreatedAt:           m.CreatedAt.UTC(),
		UpdatedAt:           m.UpdatedAt.UTC(),
	}
}

func cardTransactionFromEntity(t *domain.CreditCardTransaction) *CardTransactionModel {
	return &CardTransactionModel{
		ID:                  t.ID,
		AccountID:           t.AccountID,
		CreditCardID:        t.CreditCardID,
		Description:         t.Description,
		Amount:              t.Amount,
		Date:                t.Date,
		CategoryID:          t.CategoryID,
		InvoiceMonth:        t.InvoiceMonth,
		Installments:        t.Installments,
		CurrentInstallment:  t.CurrentInstallment,
		InstallmentsGroupID: t.InstallmentsGroupID,
		CreatedAt:           t.CreatedAt,
		UpdatedAt:           t.UpdatedAt,
	}
}

// InvoicePaymentModel represents the invoice_payments table.
type InvoicePaymentModel struct {
	ID            string     `gorm:"type:uuid;primaryKey"`
	AccountID     string     `gorm:"type:varchar(64);not null;index"`
	CreditCardID  string     `gorm:"type:uuid;not null"`
	InvoiceMonth  string     `gorm:"type:char(7);not null"`
	Status        string     `gorm:"type:varchar(16);not null"`
	DueDate       time.Time  `gorm:"type:date;not null"`
	TransactionID *string    `gorm:"type:uuid"`
	PaidAt        *time.Time `gorm:"type:date"`
	CreatedAt     time.Time  `gorm:"not null"`
	UpdatedAt     time.Time  `gorm:"not null"`
}

// TableName returns the table name for InvoicePaymentModel.
func (InvoicePaymentModel) TableName() string {
	return "invoice_payments"
}

// ToEntity converts the row to a domain invoice payment.
func (m *InvoicePaymentModel) ToEntity() domain.InvoicePayment {
	return domain.InvoicePayment{
		ID:            m.ID,
		AccountID:     m.AccountID,
		CreditCardID:  m.CreditCardID,
		InvoiceMonth:  m.InvoiceMonth,
		Status:        domain.InvoiceStatus(m.Status),
		DueDate:       utcDate(m.DueDate),
		TransactionID: m.TransactionID,
		PaidAt:        utcDatePtr(m.PaidAt),
		CreatedAt:     m.CreatedAt.UTC(),
		UpdatedAt:     m.UpdatedAt.UTC(),
	}
}

func invoicePaymentFromEntity(p *domain.InvoicePayment) *InvoicePaymentModel {
	return &InvoicePaymentModel{
		ID:            p.ID,
		AccountID:     p.AccountID,
		CreditCardID:  p.CreditCardID,
		InvoiceMonth:  p.InvoiceMonth,
		Status:        string(p.Status),
		DueDate:       p.DueDate,
		TransactionID: p.TransactionID,
		PaidAt:        p.PaidAt,
		CreatedAt:     p.CreatedAt,
		UpdatedAt:     p.UpdatedAt,
	}
}

// CategoryModel represents the categories table.
type CategoryModel struct {
	ID        string    `gorm:"type:uuid;primaryKey"`
	AccountID string    `gorm:"type:varchar(64);not null;index"`
	Name      string    `gorm:"type:varchar(100);not null"`
	Type      string    `gorm:"type:varchar(10);not null"`
	Color     string    `gorm:"type:varchar(16)"`
	Icon      string    `gorm:"type:varchar(32)"`
	CreatedAt time.Time `gorm:"not null"`
}

// TableName returns the table name for CategoryModel.
func (CategoryModel) TableName() string {
	return "categories"
}

// ToEntity converts the row to a domain category.
func (m *CategoryModel) ToEntity() domain.Category {
	return domain.Category{
		ID:        m.ID,
		AccountID: m.AccountID,
		Name:      m.Name,
		Type:      domain.TransactionType(m.Type),
		Color:     m.Color,
		Icon:      m.Icon,
		CreatedAt: m.CreatedAt.UTC(),
	}
}

func categoryFromEntity(c *domain.Category) *CategoryModel {
	return &CategoryModel{
		ID:        c.ID,
		AccountID: c.AccountID,
		Name:      c.Name,
		Type:      string(c.Type),
		Color:     c.Color,
		Icon:      c.Icon,
		CreatedAt: c.CreatedAt,
	}
}

// utcDate normalizes a date column to midnight UTC.
func utcDate(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func utcDatePtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := utcDate(*t)
	return &d
}
