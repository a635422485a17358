// Package memory implements port.LedgerStore in process memory. It backs the
// "memory" data backend and the service tests, and mirrors the uniqueness
// rules of the postgres schema so both adapters behave alike.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/boddenberg/pj-finance-ledger/internal/domain"
	"github.com/boddenberg/pj-finance-ledger/internal/port"
)

type state struct {
	seq          int64
	transactions map[string]domain.Transaction
	cards        map[string]domain.CreditCard
	cardTxs      map[string]domain.CreditCardTransaction
	payments     map[string]domain.InvoicePayment
	categories   map[string]domain.Category
	// insertion order, used to break date ties
	order map[string]int64
}

func newState() *state {
	return &state{
		transactions: make(map[string]domain.Transaction),
		cards:        make(map[string]domain.CreditCard),
		cardTxs:      make(map[string]domain.CreditCardTransaction),
		payments:     make(map[string]domain.InvoicePayment),
		categories:   make(map[string]domain.Category),
		order:        make(map[string]int64),
	}
}

func (s *state) clone() *state {
	c := newState()
	c.seq = s.seq
	for k, v := range s.transactions {
		c.transactions[k] = v.Clone()
	}
	for k, v := range s.cards {
		c.cards[k] = v
	}
	for k, v := range s.cardTxs {
		c.cardTxs[k] = v
	}
	for k, v := range s.payments {
		c.payments[k] = v
	}
	for k, v := range s.categories {
		c.categories[k] = v
	}
	for k, v := range s.order {
		c.order[k] = v
	}
	return c
}

// Store is an in-memory LedgerStore.
type Store struct {
	mu   *sync.Mutex
	data **state
	inTx bool

	// FailOn, when set, makes the named write operation fail. Tests use it
	// to exercise rollback.
	FailOn func(op string) error
}

var _ port.LedgerStore = (*Store)(nil)

// New creates an empty store.
func New() *Store {
	st := newState()
	return &Store{mu: &sync.Mutex{}, data: &st}
}

func (s *Store) lock() func() {
	if s.inTx {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *Store) st() *state { return *s.data }

func (s *Store) fail(op string) error {
	if s.FailOn == nil {
		return nil
	}
	return s.FailOn(op)
}

func (s *Store) touch(id string) {
	st := s.st()
	if _, ok := st.order[id]; !ok {
		st.seq++
		st.order[id] = st.seq
	}
}

// WithinTx snapshots the state and restores it if fn fails or ctx is done
// by the time fn returns. Nested calls join the outer transaction.
func (s *Store) WithinTx(ctx context.Context, fn func(tx port.LedgerStore) error) error {
	if s.inTx {
		return fn(s)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.st().clone()
	tx := &Store{mu: s.mu, data: s.data, inTx: true, FailOn: s.FailOn}
	if err := fn(tx); err != nil {
		*s.data = snapshot
		return err
	}
	if err := ctx.Err(); err != nil {
		*s.data = snapshot
		return err
	}
	return nil
}

// Ping always succeeds.
func (s *Store) Ping(_ context.Context) error { return nil }

// ============================================================
// Transactions
// ============================================================

func (s *Store) sortTransactions(txs []domain.Transaction) {
	order := s.st().order
	sort.SliceStable(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return order[txs[i].ID] < order[txs[j].ID]
	})
}

func (s *Store) filterTransactions(accountID string, keep func(t *domain.Transaction) bool) []domain.Transaction {
	out := make([]domain.Transaction, 0)
	for _, t := range s.st().transactions {
		if t.AccountID != accountID || !keep(&t) {
			continue
		}
		out = append(out, t.Clone())
	}
	s.sortTransactions(out)
	return out
}

func (s *Store) ListPhysicalTransactions(_ context.Context, accountID string, r domain.DateRange) ([]domain.Transaction, error) {
	defer s.lock()()
	return s.filterTransactions(accountID, func(t *domain.Transaction) bool {
		return t.IsPhysicalListing() && r.Contains(t.Date)
	}), nil
}

func (s *Store) ListExceptions(_ context.Context, accountID string) ([]domain.Transaction, error) {
	defer s.lock()()
	return s.filterTransactions(accountID, func(t *domain.Transaction) bool {
		return t.IsException
	}), nil
}

func (s *Store) ListRecurrenceDefinitions(_ context.Context, accountID string) ([]domain.Transaction, error) {
	defer s.lock()()
	return s.filterTransactions(accountID, func(t *domain.Transaction) bool {
		return t.IsRecurrenceDefinition()
	}), nil
}

func (s *Store) GetTransaction(_ context.Context, accountID, id string) (*domain.Transaction, error) {
	defer s.lock()()
	t, ok := s.st().transactions[id]
	if !ok || t.AccountID != accountID {
		return nil, &domain.ErrNotFound{Resource: "transaction", ID: id}
	}
	c := t.Clone()
	return &c, nil
}

func (s *Store) FindException(_ context.Context, accountID, groupID string, forDate time.Time) (*domain.Transaction, error) {
	defer s.lock()()
	for _, t := range s.filterTransactions(accountID, func(t *domain.Transaction) bool {
		return t.IsException && t.RecurrenceGroup() == groupID &&
			t.ExceptionForDate != nil && t.ExceptionForDate.Equal(forDate)
	}) {
		return &t, nil
	}
	return nil, &domain.ErrNotFound{Resource: "exception", ID: groupID + "@" + forDate.Format("2006-01-02")}
}

func (s *Store) ListInstallmentGroup(_ context.Context, accountID, groupID string) ([]domain.Transaction, error) {
	defer s.lock()()
	out := s.filterTransactions(accountID, func(t *domain.Transaction) bool {
		return t.InstallmentGroup() == groupID
	})
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CurrentInstallment < out[j].CurrentInstallment
	})
	return out, nil
}

func (s *Store) ListRecurrenceGroup(_ context.Context, accountID, groupID string) ([]domain.Transaction, error) {
	defer s.lock()()
	return s.filterTransactions(accountID, func(t *domain.Transaction) bool {
		return t.RecurrenceGroup() == groupID
	}), nil
}

func (s *Store) ListInvoiceTransactions(_ context.Context, accountID string) ([]domain.Transaction, error) {
	defer s.lock()()
	return s.filterTransactions(accountID, func(t *domain.Transaction) bool {
		return t.IsInvoiceTransaction
	}), nil
}

// checkUnique mirrors the partial unique indexes on transactions.
func (s *Store) checkUnique(t *domain.Transaction) error {
	gid := t.RecurrenceGroup()
	if gid == "" {
		return nil
	}
	for id, other := range s.st().transactions {
		if id == t.ID || other.RecurrenceGroup() != gid {
			continue
		}
		if !t.IsException && !other.IsException {
			return &domain.ErrConflict{Message: fmt.Sprintf("recurrence group %s already has a definition", gid)}
		}
		if t.IsException && other.IsException && t.ExceptionForDate != nil && other.ExceptionForDate != nil &&
			t.ExceptionForDate.Equal(*other.ExceptionForDate) {
			return &domain.ErrConflict{Message: fmt.Sprintf("exception already exists for %s on %s",
				gid, t.ExceptionForDate.Format("2006-01-02"))}
		}
	}
	return nil
}

func (s *Store) CreateTransactions(_ context.Context, txs []domain.Transaction) error {
	defer s.lock()()
	if err := s.fail("CreateTransactions"); err != nil {
		return err
	}
	st := s.st()
	for i := range txs {
		t := txs[i].Clone()
		if _, exists := st.transactions[t.ID]; exists {
			return &domain.ErrConflict{Message: "transaction already exists: " + t.ID}
		}
		if err := s.checkUnique(&t); err != nil {
			return err
		}
		t.VirtualDate = nil
		st.transactions[t.ID] = t
		s.touch(t.ID)
	}
	return nil
}

func (s *Store) SaveTransaction(_ context.Context, tx *domain.Transaction) error {
	defer s.lock()()
	if err := s.fail("SaveTransaction"); err != nil {
		return err
	}
	st := s.st()
	if _, ok := st.transactions[tx.ID]; !ok {
		return &domain.ErrNotFound{Resource: "transaction", ID: tx.ID}
	}
	t := tx.Clone()
	if err := s.checkUnique(&t); err != nil {
		return err
	}
	t.VirtualDate = nil
	st.transactions[t.ID] = t
	return nil
}

func (s *Store) DeleteTransactions(_ context.Context, accountID string, ids []string) error {
	defer s.lock()()
	if err := s.fail("DeleteTransactions"); err != nil {
		return err
	}
	st := s.st()
	for _, id := range ids {
		if t, ok := st.transactions[id]; ok && t.AccountID == accountID {
			delete(st.transactions, id)
			delete(st.order, id)
		}
	}
	return nil
}

// ============================================================
// Credit cards
// ============================================================

func (s *Store) CreateCreditCard(_ context.Context, card *domain.CreditCard) error {
	defer s.lock()()
	s.st().cards[card.ID] = *card
	s.touch(card.ID)
	return nil
}

func (s *Store) ListCreditCards(_ context.Context, accountID string) ([]domain.CreditCard, error) {
	defer s.lock()()
	st := s.st()
	out := make([]domain.CreditCard, 0)
	for _, c := range st.cards {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
	return out, nil
}

func (s *Store) GetCreditCard(_ context.Context, accountID, cardID string) (*domain.CreditCard, error) {
	defer s.lock()()
	c, ok := s.st().cards[cardID]
	if !ok || c.AccountID != accountID {
		return nil, &domain.ErrNotFound{Resource: "credit card", ID: cardID}
	}
	return &c, nil
}

func (s *Store) DeleteCreditCard(_ context.Context, accountID, cardID string) error {
	defer s.lock()()
	st := s.st()
	c, ok := st.cards[cardID]
	if !ok || c.AccountID != accountID {
		return &domain.ErrNotFound{Resource: "credit card", ID: cardID}
	}
	delete(st.cards, cardID)
	delete(st.order, cardID)
	return nil
}

// ============================================================
// Card transactions
// ============================================================

func (s *Store) CreateCardTransactions(_ context.Context, txs []domain.CreditCardTransaction) error {
	defer s.lock()()
	if err := s.fail("CreateCardTransactions"); err != nil {
		return err
	}
	st := s.st()
	for _, t := range txs {
		st.cardTxs[t.ID] = t
		s.touch(t.ID)
	}
	return nil
}

func (s *Store) GetCardTransaction(_ context.Context, accountID, id string) (*domain.CreditCardTransaction, error) {
	defer s.lock()()
	t, ok := s.st().cardTxs[id]
	if !ok || t.AccountID != accountID {
		return nil, &domain.ErrNotFound{Resource: "card transaction", ID: id}
	}
	return &t, nil
}

func (s *Store) SaveCardTransaction(_ context.Context, tx *domain.CreditCardTransaction) error {
	defer s.lock()()
	st := s.st()
	if _, ok := st.cardTxs[tx.ID]; !ok {
		return &domain.ErrNotFound{Resource: "card transaction", ID: tx.ID}
	}
	st.cardTxs[tx.ID] = *tx
	return nil
}

func (s *Store) DeleteCardTransactions(_ context.Context, accountID string, ids []string) error {
	defer s.lock()()
	st := s.st()
	for _, id := range ids {
		if t, ok := st.cardTxs[id]; ok && t.AccountID == accountID {
			delete(st.cardTxs, id)
			delete(st.order, id)
		}
	}
	return nil
}

func (s *Store) DeleteCardTransactionsByCard(_ context.Context, accountID, cardID string) error {
	defer s.lock()()
	st := s.st()
	for id, t := range st.cardTxs {
		if t.AccountID == accountID && t.CreditCardID == cardID {
			delete(st.cardTxs, id)
			delete(st.order, id)
		}
	}
	return nil
}

func (s *Store) ListCardTransactions(_ context.Context, accountID string) ([]domain.CreditCardTransaction, error) {
	defer s.lock()()
	st := s.st()
	out := make([]domain.CreditCardTransaction, 0)
	for _, t := range st.cardTxs {
		if t.AccountID == accountID {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].Date.Equal(out[j].Date) {
			return out[i].Date.Before(out[j].Date)
		}
		return st.order[out[i].ID] < st.order[out[j].ID]
	})
	return out, nil
}

// ============================================================
// Invoice payments
// ============================================================

func (s *Store) ListInvoicePayments(_ context.Context, accountID string) ([]domain.InvoicePayment, error) {
	defer s.lock()()
	st := s.st()
	out := make([]domain.InvoicePayment, 0)
	for _, p := range st.payments {
		if p.AccountID == accountID {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
	return out, nil
}

func (s *Store) GetInvoicePayment(_ context.Context, accountID string, key domain.InvoiceKey) (*domain.InvoicePayment, error) {
	defer s.lock()()
	for _, p := range s.st().payments {
		if p.AccountID == accountID && p.CreditCardID == key.CreditCardID && p.InvoiceMonth == key.InvoiceMonth {
			return &p, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "invoice payment", ID: key.InvoiceID()}
}

func (s *Store) SaveInvoicePayment(_ context.Context, p *domain.InvoicePayment) error {
	defer s.lock()()
	if err := s.fail("SaveInvoicePayment"); err != nil {
		return err
	}
	st := s.st()
	for id, other := range st.payments {
		if id != p.ID && other.CreditCardID == p.CreditCardID && other.InvoiceMonth == p.InvoiceMonth {
			return &domain.ErrConflict{Message: "invoice payment already exists for " +
				domain.InvoiceKey{CreditCardID: p.CreditCardID, InvoiceMonth: p.InvoiceMonth}.InvoiceID()}
		}
	}
	st.payments[p.ID] = *p
	s.touch(p.ID)
	return nil
}

func (s *Store) DeleteInvoicePaymentsByCard(_ context.Context, accountID, cardID string) error {
	defer s.lock()()
	st := s.st()
	for id, p := range st.payments {
		if p.AccountID == accountID && p.CreditCardID == cardID {
			delete(st.payments, id)
			delete(st.order, id)
		}
	}
	return nil
}

// ============================================================
// Categories
// ============================================================

func (s *Store) ListCategories(_ context.Context, accountID string) ([]domain.Category, error) {
	defer s.lock()()
	st := s.st()
	out := make([]domain.Category, 0)
	for _, c := range st.categories {
		if c.AccountID == accountID {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return st.order[out[i].ID] < st.order[out[j].ID] })
	return out, nil
}

func (s *Store) FindCategory(_ context.Context, accountID, name string, typ domain.TransactionType) (*domain.Category, error) {
	defer s.lock()()
	for _, c := range s.st().categories {
		if c.AccountID == accountID && c.Name == name && c.Type == typ {
			return &c, nil
		}
	}
	return nil, &domain.ErrNotFound{Resource: "category", ID: name}
}

// CreateCategory inserts c, or points it at the existing (name, type) row.
func (s *Store) CreateCategory(_ context.Context, c *domain.Category) error {
	defer s.lock()()
	for _, other := range s.st().categories {
		if other.AccountID == c.AccountID && other.Name == c.Name && other.Type == c.Type {
			*c = other
			return nil
		}
	}
	s.st().categories[c.ID] = *c
	s.touch(c.ID)
	return nil
}
