//go:build !integration

package usecase_test

import (
	"context"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"bookmarks-billing/internal/domain"
	"bookmarks-billing/internal/domain/model"
	"bookmarks-billing/internal/domain/ports/adapter"
	"bookmarks-billing/internal/domain/ports/repository"
)

// -----------------------------
// Utilities
// -----------------------------

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// snapshotter is implemented by in-memory repos so MockTxManager can roll them back.
type snapshotter interface {
	snapshot() func()
}

// =============================
// Repositories
// =============================

// ---- Mock SubscriptionRepository ----

type MockSubscriptionRepo struct {
	mu   sync.Mutex
	data map[string]*model.Subscription // by email

	UpsertCalls int

	UpsertFunc        func(ctx context.Context, tx repository.Tx, s *model.Subscription) error
	FindByEmailFunc   func(ctx context.Context, tx repository.Tx, email string) (*model.Subscription, error)
	ExpireOverdueFunc func(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error)
}

var _ repository.SubscriptionRepository = (*MockSubscriptionRepo)(nil)

func NewMockSubscriptionRepo() *MockSubscriptionRepo {
	return &MockSubscriptionRepo{data: map[string]*model.Subscription{}}
}

func (r *MockSubscriptionRepo) Upsert(ctx context.Context, tx repository.Tx, s *model.Subscription) error {
	if r.UpsertFunc != nil {
		return r.UpsertFunc(ctx, tx, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.UpsertCalls++
	if cur, ok := r.data[s.UserEmail]; ok {
		s.ID = cur.ID
		s.CreatedAt = cur.CreatedAt
	}
	cp := *s
	r.data[s.UserEmail] = &cp
	return nil
}

func (r *MockSubscriptionRepo) FindByEmail(ctx context.Context, tx repository.Tx, email string) (*model.Subscription, error) {
	if r.FindByEmailFunc != nil {
		return r.FindByEmailFunc(ctx, tx, email)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.data[email]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *MockSubscriptionRepo) ExpireOverdue(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.Subscription, error) {
	if r.ExpireOverdueFunc != nil {
		return r.ExpireOverdueFunc(ctx, tx, now, limit)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Subscription
	for _, s := range r.data {
		if len(out) >= limit {
			break
		}
		if s.Status == model.SubscriptionStatusActive && s.ExpireTime.Before(now) {
			s.Status = model.SubscriptionStatusExpired
			s.UpdatedAt = now
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockSubscriptionRepo) CountByStatus(ctx context.Context, tx repository.Tx) (map[model.SubscriptionStatus]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := map[model.SubscriptionStatus]int{}
	for _, s := range r.data {
		out[s.Status]++
	}
	return out, nil
}

func (r *MockSubscriptionRepo) Get(email string) *model.Subscription {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.data[email]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (r *MockSubscriptionRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[string]*model.Subscription, len(r.data))
	for k, v := range r.data {
		cp := *v
		saved[k] = &cp
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.data = saved
	}
}

// ---- Mock TransactionRepository ----

// MockTransactionRepo enforces the (provider, external txn id) uniqueness the
// way the Postgres upsert does.
type MockTransactionRepo struct {
	mu   sync.Mutex
	rows map[string]*model.TransactionRecord

	InsertFunc           func(ctx context.Context, tx repository.Tx, t *model.TransactionRecord) error
	FindByExternalIDFunc func(ctx context.Context, tx repository.Tx, p model.Provider, id string) (*model.TransactionRecord, error)
}

var _ repository.TransactionRepository = (*MockTransactionRepo)(nil)

func NewMockTransactionRepo() *MockTransactionRepo {
	return &MockTransactionRepo{rows: map[string]*model.TransactionRecord{}}
}

func txKey(p model.Provider, id string) string { return string(p) + ":" + id }

func (r *MockTransactionRepo) Insert(ctx context.Context, tx repository.Tx, t *model.TransactionRecord) error {
	if r.InsertFunc != nil {
		return r.InsertFunc(ctx, tx, t)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	k := txKey(t.Provider, t.ExternalTxnID)
	if cur, ok := r.rows[k]; ok {
		if cur.Status == model.TransactionStatusCompleted {
			return domain.ErrDuplicateEvent
		}
		t.ID = cur.ID
	}
	cp := *t
	r.rows[k] = &cp
	return nil
}

func (r *MockTransactionRepo) FindByExternalID(ctx context.Context, tx repository.Tx, p model.Provider, id string) (*model.TransactionRecord, error) {
	if r.FindByExternalIDFunc != nil {
		return r.FindByExternalIDFunc(ctx, tx, p, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.rows[txKey(p, id)]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *t
	return &cp, nil
}

func (r *MockTransactionRepo) ListByEmail(ctx context.Context, tx repository.Tx, email string, limit int) ([]*model.TransactionRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.TransactionRecord
	for _, t := range r.rows {
		if t.UserEmail == email {
			cp := *t
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *MockTransactionRepo) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.rows)
}

func (r *MockTransactionRepo) snapshot() func() {
	r.mu.Lock()
	defer r.mu.Unlock()
	saved := make(map[string]*model.TransactionRecord, len(r.rows))
	for k, v := range r.rows {
		cp := *v
		saved[k] = &cp
	}
	return func() {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.rows = saved
	}
}

// ---- Mock PendingOrderRepository ----

type MockPendingOrderRepo struct {
	mu   sync.Mutex
	data map[string]*model.PendingOrder
	TTLs map[string]time.Duration

	PutFunc func(ctx context.Context, o *model.PendingOrder, ttl time.Duration) error
}

var _ repository.PendingOrderRepository = (*MockPendingOrderRepo)(nil)

func NewMockPendingOrderRepo() *MockPendingOrderRepo {
	return &MockPendingOrderRepo{data: map[string]*model.PendingOrder{}, TTLs: map[string]time.Duration{}}
}

func (r *MockPendingOrderRepo) Put(ctx context.Context, o *model.PendingOrder, ttl time.Duration) error {
	if r.PutFunc != nil {
		return r.PutFunc(ctx, o, ttl)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *o
	r.data[o.ExternalOrderID] = &cp
	r.TTLs[o.ExternalOrderID] = ttl
	return nil
}

func (r *MockPendingOrderRepo) Get(ctx context.Context, id string) (*model.PendingOrder, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	o, ok := r.data[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *o
	return &cp, nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	repos []snapshotter

	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

// NewMockTxManager rolls the given repos back when fn fails.
func NewMockTxManager(repos ...snapshotter) *MockTxManager {
	return &MockTxManager{repos: repos}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	restores := make([]func(), 0, len(m.repos))
	for _, r := range m.repos {
		restores = append(restores, r.snapshot())
	}
	if err := fn(ctx, repository.NoTX); err != nil {
		for _, restore := range restores {
			restore()
		}
		return err
	}
	return nil
}

// ---- Mock KeyLocker ----

type MockLocker struct {
	mu   sync.Mutex
	Keys []string
	Err  error
}

var _ repository.KeyLocker = (*MockLocker)(nil)

func (l *MockLocker) LockKey(ctx context.Context, tx repository.Tx, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.Keys = append(l.Keys, key)
	return l.Err
}

// =============================
// Adapters
// =============================

// ---- Mock ProviderAdapter ----

type MockAdapter struct {
	P         model.Provider
	Completed []string

	ParseFunc func(ctx context.Context, req *adapter.InboundRequest) (*model.PaymentEvent, error)
}

var (
	_ adapter.ProviderAdapter = (*MockAdapter)(nil)
	_ adapter.Completer       = (*MockAdapter)(nil)
)

func (a *MockAdapter) Provider() model.Provider { return a.P }

func (a *MockAdapter) Parse(ctx context.Context, req *adapter.InboundRequest) (*model.PaymentEvent, error) {
	if a.ParseFunc != nil {
		return a.ParseFunc(ctx, req)
	}
	return nil, domain.ErrMalformedPayload
}

func (a *MockAdapter) Acknowledge(ok bool, status string) (string, []byte) {
	if ok {
		return "text/plain", []byte("success")
	}
	return "text/plain", []byte("failure")
}

func (a *MockAdapter) Complete(ctx context.Context, ev *model.PaymentEvent) error {
	a.Completed = append(a.Completed, ev.ExternalTxnID)
	return nil
}

// ---- Mock Verifier ----

type MockVerifier struct {
	OK bool
}

func (v MockVerifier) Verify(ctx context.Context, ev *model.PaymentEvent, req *adapter.InboundRequest) bool {
	return v.OK
}

// ---- Mock WalletClient ----

type MockWallet struct {
	Orders []adapter.WalletOrderRequest

	CreateOrderFunc  func(ctx context.Context, req adapter.WalletOrderRequest) (*adapter.WalletOrder, error)
	CaptureOrderFunc func(ctx context.Context, orderID string) (*adapter.WalletCapture, error)
}

var _ adapter.WalletClient = (*MockWallet)(nil)

func (w *MockWallet) CreateOrder(ctx context.Context, req adapter.WalletOrderRequest) (*adapter.WalletOrder, error) {
	w.Orders = append(w.Orders, req)
	if w.CreateOrderFunc != nil {
		return w.CreateOrderFunc(ctx, req)
	}
	return &adapter.WalletOrder{OrderID: "ORDER-1", Status: "CREATED", ApprovalURL: "https://wallet.test/approve/ORDER-1"}, nil
}

func (w *MockWallet) CaptureOrder(ctx context.Context, orderID string) (*adapter.WalletCapture, error) {
	if w.CaptureOrderFunc != nil {
		return w.CaptureOrderFunc(ctx, orderID)
	}
	return nil, domain.ErrOperationFailed
}

// ---- Mock EventPublisher ----

type MockPublisher struct {
	mu     sync.Mutex
	Events []adapter.SubscriptionEvent
	Err    error
}

var _ adapter.EventPublisher = (*MockPublisher)(nil)

func (p *MockPublisher) PublishSubscriptionEvent(ctx context.Context, ev adapter.SubscriptionEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.Events = append(p.Events, ev)
	return nil
}

func (p *MockPublisher) Close() error { return nil }
