//go:build !integration

package usecase_test

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/adapter"
	"teamchat-upgrade/internal/domain/ports/repository"
	"teamchat-upgrade/internal/infra/i18n"
)

// =============================
// Repositories
// =============================

// ---- Mock UserRepository ----

type MockUserRepo struct {
	mu   sync.Mutex
	byID map[string]*model.User

	SaveFunc               func(ctx context.Context, tx repository.Tx, u *model.User) error
	FindByIDFunc           func(ctx context.Context, tx repository.Tx, id string) (*model.User, error)
	UpdateSubscriptionFunc func(ctx context.Context, tx repository.Tx, userID string, s model.UserSubscriptionState) error
	ConsumeCreditsFunc     func(ctx context.Context, tx repository.Tx, userID string, cost int64) (int64, bool, error)
	DowngradeIfExpiredFunc func(ctx context.Context, tx repository.Tx, userID string, now time.Time, s model.UserSubscriptionState) (bool, error)
	ListExpiredHook        func()
}

var _ repository.UserRepository = (*MockUserRepo)(nil)

func NewMockUserRepo() *MockUserRepo {
	return &MockUserRepo{byID: map[string]*model.User{}}
}

func (r *MockUserRepo) Save(ctx context.Context, tx repository.Tx, u *model.User) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, u)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *u
	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	cp.Workspaces = append([]string(nil), u.Workspaces...)
	r.byID[cp.ID] = &cp
	return nil
}

func (r *MockUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	if r.FindByIDFunc != nil {
		return r.FindByIDFunc(ctx, tx, id)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	cp.Workspaces = append([]string(nil), u.Workspaces...)
	return &cp, nil
}

func (r *MockUserRepo) UpdateSubscription(ctx context.Context, tx repository.Tx, userID string, s model.UserSubscriptionState) error {
	if r.UpdateSubscriptionFunc != nil {
		return r.UpdateSubscriptionFunc(ctx, tx, userID, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.ApplySubscription(s)
	return nil
}

// ConsumeCredits mirrors the single-statement decrement of the Postgres repo.
func (r *MockUserRepo) ConsumeCredits(ctx context.Context, tx repository.Tx, userID string, cost int64) (int64, bool, error) {
	if r.ConsumeCreditsFunc != nil {
		return r.ConsumeCreditsFunc(ctx, tx, userID, cost)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return 0, false, domain.ErrNotFound
	}
	if u.Tier != model.TierFree {
		return u.CreditsRemaining, false, nil
	}
	if u.CreditsRemaining < cost {
		return u.CreditsRemaining, false, domain.ErrInsufficientCredits
	}
	u.CreditsRemaining -= cost
	return u.CreditsRemaining, true, nil
}

func (r *MockUserRepo) AddWorkspace(ctx context.Context, tx repository.Tx, userID, workspaceID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok {
		return domain.ErrNotFound
	}
	u.Workspaces = append(u.Workspaces, workspaceID)
	return nil
}

func (r *MockUserRepo) DowngradeIfExpired(ctx context.Context, tx repository.Tx, userID string, now time.Time, s model.UserSubscriptionState) (bool, error) {
	if r.DowngradeIfExpiredFunc != nil {
		return r.DowngradeIfExpiredFunc(ctx, tx, userID, now, s)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.byID[userID]
	if !ok || u.Tier != model.TierPremium || u.SubscriptionExpiresAt == nil || !u.SubscriptionExpiresAt.Before(now) {
		return false, nil
	}
	u.ApplySubscription(s)
	return true, nil
}

func (r *MockUserRepo) ListExpiredPremium(ctx context.Context, tx repository.Tx, now time.Time, limit int) ([]*model.User, error) {
	if r.ListExpiredHook != nil {
		defer r.ListExpiredHook()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.User
	for _, u := range r.byID {
		if u.Tier == model.TierPremium && u.SubscriptionExpiresAt != nil && u.SubscriptionExpiresAt.Before(now) {
			cp := *u
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ---- Mock WorkspaceRepository ----

type MockWorkspaceRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Workspace

	AddMemberFunc func(ctx context.Context, tx repository.Tx, workspaceID, userID string) error
}

var _ repository.WorkspaceRepository = (*MockWorkspaceRepo)(nil)

func NewMockWorkspaceRepo() *MockWorkspaceRepo {
	return &MockWorkspaceRepo{byID: map[string]*model.Workspace{}}
}

func cloneWorkspace(w *model.Workspace) *model.Workspace {
	cp := *w
	cp.MemberIDs = append([]string(nil), w.MemberIDs...)
	return &cp
}

func (r *MockWorkspaceRepo) Save(ctx context.Context, tx repository.Tx, w *model.Workspace) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[w.ID] = cloneWorkspace(w)
	return nil
}

func (r *MockWorkspaceRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return cloneWorkspace(w), nil
}

func (r *MockWorkspaceRepo) FindByInviteCode(ctx context.Context, tx repository.Tx, code string) (*model.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, w := range r.byID {
		if w.InviteCode == code {
			return cloneWorkspace(w), nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockWorkspaceRepo) ListByIDs(ctx context.Context, tx repository.Tx, ids []string) ([]*model.Workspace, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*model.Workspace, 0, len(ids))
	for _, id := range ids {
		if w, ok := r.byID[id]; ok {
			out = append(out, cloneWorkspace(w))
		}
	}
	return out, nil
}

func (r *MockWorkspaceRepo) AddMember(ctx context.Context, tx repository.Tx, workspaceID, userID string) error {
	if r.AddMemberFunc != nil {
		return r.AddMemberFunc(ctx, tx, workspaceID, userID)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	w, ok := r.byID[workspaceID]
	if !ok {
		return domain.ErrNotFound
	}
	w.MemberIDs = append(w.MemberIDs, userID)
	return nil
}

// ---- Mock PaymentRepository ----

type MockPaymentRepo struct {
	mu   sync.Mutex
	byID map[string]*model.Payment

	SaveFunc               func(ctx context.Context, tx repository.Tx, p *model.Payment) error
	SumSuccessfulSinceFunc func(ctx context.Context, tx repository.Tx, userID string, since time.Time) (int64, error)
}

var _ repository.PaymentRepository = (*MockPaymentRepo)(nil)

func NewMockPaymentRepo() *MockPaymentRepo {
	return &MockPaymentRepo{byID: map[string]*model.Payment{}}
}

func (r *MockPaymentRepo) Save(ctx context.Context, tx repository.Tx, p *model.Payment) error {
	if r.SaveFunc != nil {
		return r.SaveFunc(ctx, tx, p)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *p
	r.byID[p.ID] = &cp
	return nil
}

func (r *MockPaymentRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *p
	return &cp, nil
}

func (r *MockPaymentRepo) FindByCheckoutID(ctx context.Context, tx repository.Tx, checkoutRequestID string) (*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		if p.CheckoutRequestID == checkoutRequestID {
			cp := *p
			return &cp, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (r *MockPaymentRepo) UpdateOutcome(ctx context.Context, tx repository.Tx, id string, status model.PaymentStatus, checkoutRequestID string, code model.ErrorCode, message string, completedAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.byID[id]
	if !ok || p.Status != model.PaymentStatusPending {
		return false, nil
	}
	p.Status = status
	if checkoutRequestID != "" {
		p.CheckoutRequestID = checkoutRequestID
	}
	p.ErrorCode = code
	p.Message = message
	p.CompletedAt = completedAt
	return true, nil
}

func (r *MockPaymentRepo) ListPendingOlderThan(ctx context.Context, tx repository.Tx, olderThan time.Time, limit int) ([]*model.Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*model.Payment
	for _, p := range r.byID {
		if p.Status == model.PaymentStatusPending && p.CreatedAt.Before(olderThan) {
			cp := *p
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *MockPaymentRepo) SumSuccessfulSince(ctx context.Context, tx repository.Tx, userID string, since time.Time) (int64, error) {
	if r.SumSuccessfulSinceFunc != nil {
		return r.SumSuccessfulSinceFunc(ctx, tx, userID, since)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	var sum int64
	for _, p := range r.byID {
		if p.UserID == userID && p.Status == model.PaymentStatusSuccessful && !p.CreatedAt.Before(since) {
			sum += p.Amount
		}
	}
	return sum, nil
}

// Only is a test helper returning the single stored payment.
func (r *MockPaymentRepo) Only() *model.Payment {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.byID {
		cp := *p
		return &cp
	}
	return nil
}

func (r *MockPaymentRepo) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byID)
}

// ---- Mock UpgradeSessionRepository ----

type MockSessionStore struct {
	mu    sync.Mutex
	snaps map[string]model.WorkflowSnapshot
}

var _ repository.UpgradeSessionRepository = (*MockSessionStore)(nil)

func NewMockSessionStore() *MockSessionStore {
	return &MockSessionStore{snaps: map[string]model.WorkflowSnapshot{}}
}

func (s *MockSessionStore) SaveSnapshot(ctx context.Context, snap *model.WorkflowSnapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snaps[snap.ID] = *snap
	return nil
}

func (s *MockSessionStore) GetSnapshot(ctx context.Context, id string) (*model.WorkflowSnapshot, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap, ok := s.snaps[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &snap, nil
}

func (s *MockSessionStore) DeleteSnapshot(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snaps, id)
	return nil
}

// ---- Mock TransactionManager ----

type MockTxManager struct {
	WithTxFunc func(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error
}

func NewMockTxManager() *MockTxManager {
	return &MockTxManager{}
}

var _ repository.TransactionManager = (*MockTxManager)(nil)

// WithTx runs fn immediately with NoTX unless WithTxFunc is set.
func (m *MockTxManager) WithTx(ctx context.Context, txOpt pgx.TxOptions, fn func(ctx context.Context, tx repository.Tx) error) error {
	if m.WithTxFunc != nil {
		return m.WithTxFunc(ctx, txOpt, fn)
	}
	return fn(ctx, repository.NoTX)
}

// =============================
// Adapters
// =============================

// ---- Mock PaymentGateway ----

type MockGateway struct {
	mu            sync.Mutex
	InitiateCalls []model.PaymentRequest
	StatusCalls   []string

	InitiatePaymentFunc    func(ctx context.Context, req model.PaymentRequest) model.PaymentOutcome
	CheckPaymentStatusFunc func(ctx context.Context, checkoutRequestID string) model.PaymentOutcome
	Limits                 model.TransactionLimits
}

var _ adapter.PaymentGateway = (*MockGateway)(nil)

// NewMockGateway accepts every payment: checkout "REQ_TEST", then success.
func NewMockGateway() *MockGateway {
	return &MockGateway{Limits: model.DefaultTransactionLimits()}
}

func (g *MockGateway) Name() string { return "mock" }

func (g *MockGateway) TransactionLimits() model.TransactionLimits { return g.Limits }

func (g *MockGateway) InitiatePayment(ctx context.Context, req model.PaymentRequest) model.PaymentOutcome {
	g.mu.Lock()
	g.InitiateCalls = append(g.InitiateCalls, req)
	g.mu.Unlock()
	if g.InitiatePaymentFunc != nil {
		return g.InitiatePaymentFunc(ctx, req)
	}
	return model.PaymentOutcome{Success: true, CheckoutRequestID: "REQ_TEST", Message: "STK push sent"}
}

func (g *MockGateway) CheckPaymentStatus(ctx context.Context, checkoutRequestID string) model.PaymentOutcome {
	g.mu.Lock()
	g.StatusCalls = append(g.StatusCalls, checkoutRequestID)
	g.mu.Unlock()
	if g.CheckPaymentStatusFunc != nil {
		return g.CheckPaymentStatusFunc(ctx, checkoutRequestID)
	}
	return model.PaymentOutcome{Success: true, CheckoutRequestID: checkoutRequestID, Message: "Payment completed successfully"}
}

func (g *MockGateway) Initiations() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.InitiateCalls)
}

func (g *MockGateway) StatusChecks() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.StatusCalls)
}

// ---- In-memory Locker ----

type MockLocker struct {
	mu    sync.Mutex
	held  map[string]string
	ErrOn map[string]error
}

var _ adapter.Locker = (*MockLocker)(nil)

func NewMockLocker() *MockLocker {
	return &MockLocker{held: map[string]string{}, ErrOn: map[string]error{}}
}

func (l *MockLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if err, bad := l.ErrOn[key]; bad {
		return "", err
	}
	if tok, ok := l.held[key]; ok && tok != "" {
		return "", domain.ErrWorkflowBusy
	}
	tok := uuid.NewString()
	l.held[key] = tok
	return tok, nil
}

func (l *MockLocker) Unlock(ctx context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.held[key] == token {
		delete(l.held, key)
		return nil
	}
	return errors.New("unlock token mismatch")
}

func (l *MockLocker) Held(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, ok := l.held[key]
	return ok
}

// ---- Mock RateLimiter ----

type MockRateLimiter struct {
	mu     sync.Mutex
	counts map[string]int

	AllowFunc func(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

var _ adapter.RateLimiter = (*MockRateLimiter)(nil)

func NewMockRateLimiter() *MockRateLimiter {
	return &MockRateLimiter{counts: map[string]int{}}
}

func (r *MockRateLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	if r.AllowFunc != nil {
		return r.AllowFunc(ctx, key, limit, window)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.counts[key]++
	return r.counts[key] <= limit, nil
}

// ---- Mock Notifier ----

type notice struct {
	UserID  string
	Level   adapter.NoticeLevel
	Message string
}

type MockNotifier struct {
	mu      sync.Mutex
	Notices []notice
}

var _ adapter.Notifier = (*MockNotifier)(nil)

func NewMockNotifier() *MockNotifier { return &MockNotifier{} }

func (n *MockNotifier) Notify(ctx context.Context, userID string, level adapter.NoticeLevel, message string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.Notices = append(n.Notices, notice{UserID: userID, Level: level, Message: message})
}

func (n *MockNotifier) Last() (notice, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if len(n.Notices) == 0 {
		return notice{}, false
	}
	return n.Notices[len(n.Notices)-1], true
}

func (n *MockNotifier) Count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.Notices)
}

// ---- Scheduler running each task on its own goroutine ----

type goScheduler struct {
	ctx context.Context
}

func (s goScheduler) Submit(_ context.Context, task func(ctx context.Context) error) error {
	go func() { _ = task(s.ctx) }()
	return nil
}

// =============================
// Utilities
// =============================

// newTestLogger creates a silent zerolog.Logger for use in tests.
func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

// newTestTranslator returns the embedded English catalog so tests can assert real messages.
func newTestTranslator() *i18n.Translator {
	return i18n.MustDefault()
}

func seedUser(repo *MockUserRepo, id string, tier model.Tier, credits int64) *model.User {
	u := &model.User{ID: id, Email: id + "@example.com", Tier: tier, CreditsRemaining: credits, CreatedAt: time.Now()}
	_ = repo.Save(context.Background(), repository.NoTX, u)
	return u
}
