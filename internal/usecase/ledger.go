package usecase

import (
	"context"
	"errors"
	"sync"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/adapter"
	"teamchat-upgrade/internal/domain/ports/repository"
)

// Translator resolves user-facing message keys.
type Translator interface {
	T(key string, args ...interface{}) string
}

const (
	lowCreditThreshold      int64 = 10
	promptCreditThreshold   int64 = 20
	criticalCreditThreshold int64 = 5
)

type CreditLevel string

const (
	CreditLevelUnknown   CreditLevel = "unknown"
	CreditLevelUnlimited CreditLevel = "unlimited"
	CreditLevelExhausted CreditLevel = "exhausted"
	CreditLevelLow       CreditLevel = "low"
	CreditLevelNormal    CreditLevel = "normal"
)

type CreditStatus struct {
	CanUse    bool        `json:"can_use"`
	Message   string      `json:"message"`
	Level     CreditLevel `json:"level"`
	Tier      model.Tier  `json:"tier,omitempty"`
	Remaining int64       `json:"credits_remaining"`
}

type UpgradePrompt struct {
	Show    bool   `json:"show"`
	Message string `json:"message"`
	Urgent  bool   `json:"urgent"`
}

type CreditBanner struct {
	Show        bool   `json:"show"`
	Critical    bool   `json:"critical"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
}

// Ledger is the in-memory credit projection of one user session.
// Only free-tier balances are ever decremented.
type Ledger struct {
	mu        sync.Mutex
	userID    string
	loaded    bool
	tier      model.Tier
	remaining int64

	tr       Translator
	notifier adapter.Notifier
}

func NewLedger(userID string, tr Translator, notifier adapter.Notifier) *Ledger {
	return &Ledger{userID: userID, tr: tr, notifier: notifier}
}

// Load hydrates the projection from a stored user.
func (l *Ledger) Load(u *model.User) {
	if u == nil {
		return
	}
	l.Apply(u.Subscription())
}

// Apply replaces tier and balance. The upgrade controller calls it once a
// payment is confirmed; the expiry worker calls it on downgrade.
func (l *Ledger) Apply(s model.UserSubscriptionState) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = true
	l.tier = s.Tier
	l.remaining = s.CreditsRemaining
}

func (l *Ledger) Remaining() int64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.remaining
}

func (l *Ledger) Tier() model.Tier {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.tier
}

func normalizeCost(cost int64) int64 {
	if cost <= 0 {
		return 1
	}
	return cost
}

// CheckCredits reports whether action may proceed. Nothing is decremented.
func (l *Ledger) CheckCredits(ctx context.Context, action string, cost int64) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.checkLocked(ctx, action, normalizeCost(cost))
}

func (l *Ledger) checkLocked(ctx context.Context, action string, cost int64) bool {
	if !l.loaded || l.tier != model.TierFree {
		return true
	}
	if l.remaining < cost {
		l.notify(ctx, adapter.NoticeError, l.tr.T("credits.insufficient", action))
		return false
	}
	return true
}

// ConsumeCredits re-validates and decrements a free-tier balance.
func (l *Ledger) ConsumeCredits(ctx context.Context, action string, cost int64) bool {
	cost = normalizeCost(cost)
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.checkLocked(ctx, action, cost) {
		return false
	}
	if l.loaded && l.tier == model.TierFree {
		l.remaining -= cost
		l.notify(ctx, adapter.NoticeInfo, l.tr.T("credits.used", cost, action, l.remaining))
	}
	return true
}

// settle records a decrement already applied by the authoritative store.
func (l *Ledger) settle(ctx context.Context, action string, cost, remaining int64) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = true
	l.tier = model.TierFree
	l.remaining = remaining
	msg := l.tr.T("credits.used", cost, action, remaining)
	l.notify(ctx, adapter.NoticeInfo, msg)
	return msg
}

// reject records a refusal from the authoritative store, syncing the balance it reported.
func (l *Ledger) reject(ctx context.Context, action string, remaining int64) string {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.loaded = true
	l.tier = model.TierFree
	l.remaining = remaining
	msg := l.tr.T("credits.insufficient", action)
	l.notify(ctx, adapter.NoticeError, msg)
	return msg
}

func (l *Ledger) CreditStatus() CreditStatus {
	l.mu.Lock()
	defer l.mu.Unlock()
	switch {
	case !l.loaded:
		return CreditStatus{CanUse: false, Message: l.tr.T("credits.user_not_loaded"), Level: CreditLevelUnknown}
	case l.tier != model.TierFree:
		return CreditStatus{CanUse: true, Message: l.tr.T("credits.unlimited"), Level: CreditLevelUnlimited, Tier: l.tier, Remaining: l.remaining}
	case l.remaining <= 0:
		return CreditStatus{CanUse: false, Message: l.tr.T("credits.none"), Level: CreditLevelExhausted, Tier: l.tier, Remaining: l.remaining}
	case l.remaining <= lowCreditThreshold:
		return CreditStatus{CanUse: true, Message: l.tr.T("credits.low", l.remaining), Level: CreditLevelLow, Tier: l.tier, Remaining: l.remaining}
	}
	return CreditStatus{CanUse: true, Message: l.tr.T("credits.available", l.remaining), Level: CreditLevelNormal, Tier: l.tier, Remaining: l.remaining}
}

func (l *Ledger) UpgradePrompt() UpgradePrompt {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded || l.tier != model.TierFree || l.remaining > promptCreditThreshold {
		return UpgradePrompt{}
	}
	return UpgradePrompt{
		Show:    true,
		Message: l.tr.T("credits.upgrade_prompt", l.remaining),
		Urgent:  l.remaining <= criticalCreditThreshold,
	}
}

// Banner is the persistent low-credit banner shown to free users.
func (l *Ledger) Banner() CreditBanner {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.loaded || l.tier != model.TierFree || l.remaining > promptCreditThreshold {
		return CreditBanner{}
	}
	if l.remaining <= criticalCreditThreshold {
		return CreditBanner{
			Show:        true,
			Critical:    true,
			Title:       l.tr.T("credits.banner_critical_title", l.remaining),
			Description: l.tr.T("credits.banner_critical_desc"),
		}
	}
	return CreditBanner{
		Show:        true,
		Title:       l.tr.T("credits.banner_low_title", l.remaining),
		Description: l.tr.T("credits.banner_low_desc"),
	}
}

func (l *Ledger) notify(ctx context.Context, level adapter.NoticeLevel, msg string) {
	if l.notifier != nil {
		l.notifier.Notify(ctx, l.userID, level, msg)
	}
}

// LedgerRegistry holds one ledger per active user, loading lazily from the user store.
type LedgerRegistry struct {
	mu       sync.Mutex
	ledgers  map[string]*Ledger
	users    repository.UserRepository
	tr       Translator
	notifier adapter.Notifier
}

func NewLedgerRegistry(users repository.UserRepository, tr Translator, notifier adapter.Notifier) *LedgerRegistry {
	return &LedgerRegistry{
		ledgers:  make(map[string]*Ledger),
		users:    users,
		tr:       tr,
		notifier: notifier,
	}
}

// For returns the user's ledger, loading it on first use.
func (r *LedgerRegistry) For(ctx context.Context, userID string) (*Ledger, error) {
	if l, ok := r.Peek(userID); ok {
		return l, nil
	}
	u, err := r.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUnauthenticated
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if l, ok := r.ledgers[userID]; ok {
		return l, nil
	}
	l := NewLedger(userID, r.tr, r.notifier)
	l.Load(u)
	r.ledgers[userID] = l
	return l, nil
}

func (r *LedgerRegistry) Peek(userID string) (*Ledger, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.ledgers[userID]
	return l, ok
}

func (r *LedgerRegistry) Drop(userID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.ledgers, userID)
}
