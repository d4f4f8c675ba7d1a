package integration

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/domain"
	"github.com/bazaar-io-st/openbazaar-desktop/internal/core/ports"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// --- In-Memory Order Repo ---

type inMemoryOrderRepo struct {
	mu     sync.RWMutex
	orders map[string]domain.Order
}

func newInMemoryOrderRepo() *inMemoryOrderRepo {
	return &inMemoryOrderRepo{orders: make(map[string]domain.Order)}
}

func (r *inMemoryOrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	o, ok := r.orders[id]
	if !ok {
		return nil, nil
	}
	return &o, nil
}

func (r *inMemoryOrderRepo) GetByIDForUpdate(ctx context.Context, tx pgx.Tx, id string) (*domain.Order, error) {
	return r.GetByID(ctx, id)
}

func (r *inMemoryOrderRepo) Upsert(ctx context.Context, tx pgx.Tx, order *domain.Order) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o := *order
	o.Transactions = nil
	if o.CreatedAt.IsZero() {
		o.CreatedAt = time.Now()
	}
	o.UpdatedAt = time.Now()
	r.orders[o.ID] = o
	return nil
}

func (r *inMemoryOrderRepo) UpdateState(ctx context.Context, tx pgx.Tx, id string, state domain.OrderState, disputeClaim *string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.orders[id]
	if !ok {
		return fmt.Errorf("order %s not found", id)
	}
	o.State = state
	if disputeClaim != nil {
		o.DisputeClaim = disputeClaim
	}
	o.UpdatedAt = time.Now()
	r.orders[id] = o
	return nil
}

func (r *inMemoryOrderRepo) List(ctx context.Context, params ports.OrderListParams) ([]domain.Order, int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var filtered []domain.Order
	for _, o := range r.orders {
		switch params.Type {
		case domain.OrderTypeSale:
			if o.VendorID != params.ProfileID {
				continue
			}
		case domain.OrderTypePurchase:
			if o.BuyerID != params.ProfileID {
				continue
			}
		default:
			return nil, 0, fmt.Errorf("unknown order type %q", params.Type)
		}
		if params.State != nil && o.State != *params.State {
			continue
		}
		filtered = append(filtered, o)
	}
	sort.Slice(filtered, func(i, j int) bool {
		return filtered[i].CreatedAt.After(filtered[j].CreatedAt)
	})

	total := int64(len(filtered))
	start := (params.Page - 1) * params.PageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	end := start + params.PageSize
	if end > len(filtered) {
		end = len(filtered)
	}
	return filtered[start:end], total, nil
}

// --- In-Memory Payment Transaction Repo ---

type inMemoryPaymentTxRepo struct {
	mu  sync.RWMutex
	txs map[string][]domain.PaymentTransaction // insertion order per order
}

func newInMemoryPaymentTxRepo() *inMemoryPaymentTxRepo {
	return &inMemoryPaymentTxRepo{txs: make(map[string][]domain.PaymentTransaction)}
}

func (r *inMemoryPaymentTxRepo) ListByOrder(ctx context.Context, orderID string) ([]domain.PaymentTransaction, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.PaymentTransaction{}, r.txs[orderID]...), nil
}

func (r *inMemoryPaymentTxRepo) ListByOrderTx(ctx context.Context, tx pgx.Tx, orderID string) ([]domain.PaymentTransaction, error) {
	return r.ListByOrder(ctx, orderID)
}

func (r *inMemoryPaymentTxRepo) Upsert(ctx context.Context, tx pgx.Tx, t *domain.PaymentTransaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := r.txs[t.OrderID]
	for i := range list {
		if list[i].TxID == t.TxID {
			list[i].Value = t.Value
			list[i].Height = t.Height
			list[i].Timestamp = t.Timestamp
			list[i].UpdatedAt = time.Now()
			return nil
		}
	}
	r.txs[t.OrderID] = append(list, *t)
	return nil
}

func (r *inMemoryPaymentTxRepo) DeleteMissing(ctx context.Context, tx pgx.Tx, orderID string, keep []string) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	keepSet := make(map[string]struct{}, len(keep))
	for _, id := range keep {
		keepSet[id] = struct{}{}
	}
	var kept []domain.PaymentTransaction
	var deleted int64
	for _, t := range r.txs[orderID] {
		if _, ok := keepSet[t.TxID]; ok {
			kept = append(kept, t)
		} else {
			deleted++
		}
	}
	r.txs[orderID] = kept
	return deleted, nil
}

// --- In-Memory Profile Repo ---

type inMemoryProfileRepo struct {
	mu       sync.RWMutex
	profiles map[string]*domain.Profile
}

func newInMemoryProfileRepo() *inMemoryProfileRepo {
	return &inMemoryProfileRepo{profiles: make(map[string]*domain.Profile)}
}

func (r *inMemoryProfileRepo) Create(ctx context.Context, p *domain.Profile) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.profiles {
		if existing.Username == p.Username {
			return fmt.Errorf("username already exists")
		}
	}
	cp := *p
	r.profiles[p.ID] = &cp
	return nil
}

func (r *inMemoryProfileRepo) GetByID(ctx context.Context, id string) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id]
	if !ok {
		return nil, nil
	}
	cp := *p
	return &cp, nil
}

func (r *inMemoryProfileRepo) GetByUsername(ctx context.Context, username string) (*domain.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, p := range r.profiles {
		if p.Username == username {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

// --- In-Memory Audit Repo ---

type inMemoryAuditRepo struct {
	mu      sync.Mutex
	entries []domain.AuditLog
}

func (r *inMemoryAuditRepo) Create(ctx context.Context, entry *domain.AuditLog) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.entries = append(r.entries, *entry)
	return nil
}

func (r *inMemoryAuditRepo) actions() []domain.AuditAction {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.AuditAction, 0, len(r.entries))
	for _, e := range r.entries {
		out = append(out, e.Action)
	}
	return out
}

// --- In-Memory Transactor ---

// lockingTransactor serializes transactions, standing in for the row lock
// SELECT ... FOR UPDATE takes in PostgreSQL.
type lockingTransactor struct {
	mu sync.Mutex
}

func newLockingTransactor() *lockingTransactor {
	return &lockingTransactor{}
}

func (t *lockingTransactor) Begin(ctx context.Context) (pgx.Tx, error) {
	t.mu.Lock()
	return &lockedTx{release: t.mu.Unlock}, nil
}

// lockedTx releases the transactor lock on the first Commit or Rollback.
type lockedTx struct {
	once    sync.Once
	release func()
}

func (t *lockedTx) end() { t.once.Do(t.release) }

func (t *lockedTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }
func (t *lockedTx) Commit(ctx context.Context) error          { t.end(); return nil }
func (t *lockedTx) Rollback(ctx context.Context) error        { t.end(); return nil }
func (t *lockedTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	return 0, nil
}
func (t *lockedTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults { return nil }
func (t *lockedTx) LargeObjects() pgx.LargeObjects                               { return pgx.LargeObjects{} }
func (t *lockedTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	return nil, nil
}
func (t *lockedTx) Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error) {
	return pgconn.NewCommandTag(""), nil
}
func (t *lockedTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	return nil, nil
}
func (t *lockedTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return nil
}
func (t *lockedTx) Conn() *pgx.Conn { return nil }
