//go:build !integration

package web

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/config"
	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/infra/notify"
	"teamchat-upgrade/internal/usecase"
)

func newTestLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

func newTestAuth() *AuthManager {
	return NewAuthManager(config.AuthConfig{
		JWTSecret:  "test-session-secret-please-change",
		Issuer:     "teamchat",
		TokenTTL:   time.Minute,
		CookieName: "session",
	}, false)
}

// ---- mock PlanUseCase ----

type mockPlanUC struct{ plans []*model.SubscriptionPlan }

func (m *mockPlanUC) List() []*model.SubscriptionPlan { return m.plans }
func (m *mockPlanUC) Get(id string) (*model.SubscriptionPlan, error) {
	for _, p := range m.plans {
		if p.ID == id {
			return p, nil
		}
	}
	return nil, domain.ErrPlanNotFound
}

// ---- mock UpgradeUseCase ----

type mockUpgradeUC struct {
	StartFunc  func(ctx context.Context, userID string) (*model.WorkflowSnapshot, error)
	SubmitFunc func(ctx context.Context, workflowID, planID, phone string) (*model.WorkflowSnapshot, error)
	GetFunc    func(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error)
	AwaitFunc  func(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error)
	CancelFunc func(ctx context.Context, workflowID string) error
}

var _ usecase.UpgradeUseCase = (*mockUpgradeUC)(nil)

func (m *mockUpgradeUC) Start(ctx context.Context, userID string) (*model.WorkflowSnapshot, error) {
	return m.StartFunc(ctx, userID)
}
func (m *mockUpgradeUC) Submit(ctx context.Context, workflowID, planID, phone string) (*model.WorkflowSnapshot, error) {
	return m.SubmitFunc(ctx, workflowID, planID, phone)
}
func (m *mockUpgradeUC) Get(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error) {
	return m.GetFunc(ctx, workflowID)
}
func (m *mockUpgradeUC) Await(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error) {
	return m.AwaitFunc(ctx, workflowID)
}
func (m *mockUpgradeUC) Cancel(ctx context.Context, workflowID string) error {
	return m.CancelFunc(ctx, workflowID)
}
func (m *mockUpgradeUC) Reconcile(ctx context.Context, p *model.Payment) (*model.WorkflowSnapshot, error) {
	return nil, nil
}
func (m *mockUpgradeUC) Limits() model.TransactionLimits { return model.DefaultTransactionLimits() }

// ---- mock CreditUseCase ----

type mockCreditUC struct {
	ConsumeFunc func(ctx context.Context, userID, action string, cost int64) (*usecase.CreditResult, error)
	StatusFunc  func(ctx context.Context, userID string) (usecase.CreditStatus, error)
}

var _ usecase.CreditUseCase = (*mockCreditUC)(nil)

func (m *mockCreditUC) Consume(ctx context.Context, userID, action string, cost int64) (*usecase.CreditResult, error) {
	return m.ConsumeFunc(ctx, userID, action, cost)
}
func (m *mockCreditUC) Check(ctx context.Context, userID, action string, cost int64) (bool, error) {
	return true, nil
}
func (m *mockCreditUC) Status(ctx context.Context, userID string) (usecase.CreditStatus, error) {
	return m.StatusFunc(ctx, userID)
}
func (m *mockCreditUC) Prompt(ctx context.Context, userID string) (usecase.UpgradePrompt, error) {
	return usecase.UpgradePrompt{}, nil
}
func (m *mockCreditUC) Banner(ctx context.Context, userID string) (usecase.CreditBanner, error) {
	return usecase.CreditBanner{}, nil
}

// ---- mock UserUseCase ----

type mockUserUC struct {
	users      map[string]*model.User
	registered []string
}

var _ usecase.UserUseCase = (*mockUserUC)(nil)

func (m *mockUserUC) Current(ctx context.Context, userID string) (*model.User, error) {
	if u, ok := m.users[userID]; ok {
		return u, nil
	}
	return nil, domain.ErrUnauthenticated
}
func (m *mockUserUC) Register(ctx context.Context, id, email, name string) (*model.User, error) {
	u, err := model.NewUser(id, email, name)
	if err != nil {
		return nil, err
	}
	m.users[id] = u
	m.registered = append(m.registered, id)
	return u, nil
}
func (m *mockUserUC) DowngradeExpired(ctx context.Context, now time.Time, batch int) (int, error) {
	return 0, nil
}

// ---- mock WorkspaceUseCase ----

type mockWorkspaceUC struct {
	byID map[string]*model.Workspace
}

var _ usecase.WorkspaceUseCase = (*mockWorkspaceUC)(nil)

func (m *mockWorkspaceUC) ListForUser(ctx context.Context, userID string) ([]*model.Workspace, error) {
	var out []*model.Workspace
	for _, w := range m.byID {
		if w.HasMember(userID) {
			out = append(out, w)
		}
	}
	return out, nil
}
func (m *mockWorkspaceUC) GetWithMembers(ctx context.Context, workspaceID string) (*model.Workspace, error) {
	if w, ok := m.byID[workspaceID]; ok {
		return w, nil
	}
	return nil, domain.ErrNotFound
}
func (m *mockWorkspaceUC) JoinByInviteCode(ctx context.Context, userID, code string) (*model.Workspace, error) {
	for _, w := range m.byID {
		if code != "" && w.InviteCode == code {
			if w.HasMember(userID) {
				return nil, domain.ErrAlreadyMember
			}
			w.MemberIDs = append(w.MemberIDs, userID)
			return w, nil
		}
	}
	return nil, domain.ErrInviteNotFound
}

// testServer bundles a server with its mocks.
type testServer struct {
	srv        *Server
	auth       *AuthManager
	upgrades   *mockUpgradeUC
	credits    *mockCreditUC
	users      *mockUserUC
	workspaces *mockWorkspaceUC
	notices    *notify.Hub
}

func newTestServer() *testServer {
	ts := &testServer{
		auth:       newTestAuth(),
		upgrades:   &mockUpgradeUC{},
		credits:    &mockCreditUC{},
		users:      &mockUserUC{users: map[string]*model.User{}},
		workspaces: &mockWorkspaceUC{byID: map[string]*model.Workspace{}},
		notices:    notify.NewHub(10, newTestLogger()),
	}
	ts.srv = NewServer(Deps{
		Plans: &mockPlanUC{plans: []*model.SubscriptionPlan{
			{ID: "premium", Name: "Premium", Duration: model.PlanDurationSixMonths, PriceKES: 1200},
		}},
		Upgrades:   ts.upgrades,
		Credits:    ts.credits,
		Users:      ts.users,
		Workspaces: ts.workspaces,
		Notices:    ts.notices,
		Auth:       ts.auth,
		Logger:     newTestLogger(),
	})
	return ts
}

func (ts *testServer) token(userID string) string {
	tok, err := ts.auth.Mint(nil, userID, userID+"@example.com", "")
	if err != nil {
		panic(err)
	}
	return tok
}
