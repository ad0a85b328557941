package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v4"
	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/config"
	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/adapter"
	"teamchat-upgrade/internal/domain/ports/repository"
	"teamchat-upgrade/internal/infra/logging"
	"teamchat-upgrade/internal/infra/metrics"
)

// Compile-time check
var _ UpgradeUseCase = (*upgradeUC)(nil)

// UpgradeUseCase drives a user from plan selection to an activated subscription.
type UpgradeUseCase interface {
	Start(ctx context.Context, userID string) (*model.WorkflowSnapshot, error)
	Submit(ctx context.Context, workflowID, planID, phone string) (*model.WorkflowSnapshot, error)
	Get(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error)
	Await(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error)
	Cancel(ctx context.Context, workflowID string) error
	// Reconcile re-checks a stale pending payment and settles it if the provider has an answer.
	Reconcile(ctx context.Context, p *model.Payment) (*model.WorkflowSnapshot, error)
	Limits() model.TransactionLimits
}

// Scheduler runs status-check tasks off the request path. *worker.Pool satisfies it.
type Scheduler interface {
	Submit(ctx context.Context, task func(ctx context.Context) error) error
}

type UpgradeDeps struct {
	Users      repository.UserRepository
	Payments   repository.PaymentRepository
	Sessions   repository.UpgradeSessionRepository
	TxManager  repository.TransactionManager
	Plans      PlanUseCase
	Gateway    adapter.PaymentGateway
	Locker     adapter.Locker
	Limiter    adapter.RateLimiter
	Scheduler  Scheduler
	Ledgers    *LedgerRegistry
	Notifier   adapter.Notifier
	Translator Translator
	Logger     *zerolog.Logger
	Now        func() time.Time
	Sleep      func(ctx context.Context, d time.Duration) error // must return early when ctx ends
	Dev        bool
}

// minRetryBackoff keeps retries from spinning when no backoff is configured.
const minRetryBackoff = 100 * time.Millisecond

type upgradeUC struct {
	cfg       config.UpgradeConfig
	users     repository.UserRepository
	payments  repository.PaymentRepository
	sessions  repository.UpgradeSessionRepository
	tm        repository.TransactionManager
	plans     PlanUseCase
	gateway   adapter.PaymentGateway
	locker    adapter.Locker
	limiter   adapter.RateLimiter
	scheduler Scheduler
	ledgers   *LedgerRegistry
	notifier  adapter.Notifier
	tr        Translator
	log       *zerolog.Logger
	now       func() time.Time
	sleep     func(ctx context.Context, d time.Duration) error
	dev       bool

	// base outlives requests; every workflow context derives from it.
	base context.Context

	mu        sync.Mutex
	workflows map[string]*workflow
	byUser    map[string]string
}

// NewUpgradeUseCase wires the controller. ctx is the process context: cancelling
// it stops every outstanding status check.
func NewUpgradeUseCase(ctx context.Context, cfg config.UpgradeConfig, d UpgradeDeps) *upgradeUC {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	sleep := d.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	log := d.Logger
	if log == nil {
		nop := zerolog.Nop()
		log = &nop
	}
	l := log.With().Str("component", "upgrade").Logger()
	return &upgradeUC{
		cfg:       cfg,
		users:     d.Users,
		payments:  d.Payments,
		sessions:  d.Sessions,
		tm:        d.TxManager,
		plans:     d.Plans,
		gateway:   d.Gateway,
		locker:    d.Locker,
		limiter:   d.Limiter,
		scheduler: d.Scheduler,
		ledgers:   d.Ledgers,
		notifier:  d.Notifier,
		tr:        d.Translator,
		log:       &l,
		now:       now,
		sleep:     sleep,
		dev:       d.Dev,
		base:      ctx,
		workflows: make(map[string]*workflow),
		byUser:    make(map[string]string),
	}
}

func upgradeLockKey(userID string) string { return "lock:upgrade:" + userID }
func upgradeRateKey(userID string) string { return "rate_limit:" + userID + ":upgrade" }

func (uc *upgradeUC) Limits() model.TransactionLimits {
	return uc.gateway.TransactionLimits()
}

func (uc *upgradeUC) Start(ctx context.Context, userID string) (*model.WorkflowSnapshot, error) {
	defer logging.TraceDuration(uc.log, "UpgradeUC.Start")()

	if userID == "" {
		return nil, domain.ErrUnauthenticated
	}
	u, err := uc.users.FindByID(ctx, repository.NoTX, userID)
	if err != nil && !errors.Is(err, domain.ErrNotFound) {
		return nil, err
	}
	if u == nil {
		return nil, domain.ErrUnauthenticated
	}

	now := uc.now()
	w := newWorkflow(uuid.NewString(), userID, model.WorkflowIdle, now)
	w.snap.Subscription = u.Subscription()

	uc.mu.Lock()
	var stale []string
	if prevID, ok := uc.byUser[userID]; ok {
		if prev := uc.workflows[prevID]; prev != nil {
			if prev.state().InFlight() {
				uc.mu.Unlock()
				return nil, domain.ErrWorkflowBusy
			}
			prev.discard()
			delete(uc.workflows, prevID)
			stale = append(stale, prevID)
		}
	}
	stale = append(stale, uc.pruneLocked(now)...)
	uc.workflows[w.id] = w
	uc.byUser[userID] = w.id
	active := len(uc.workflows)
	uc.mu.Unlock()

	metrics.SetWorkflowsActive(active)
	for _, id := range stale {
		uc.forget(ctx, id)
	}
	snap := w.snapshot()
	uc.mirror(ctx, snap)

	logging.With(logging.WithWorkflowID(ctx, w.id), uc.log).Info().Msg("upgrade workflow started")
	return &snap, nil
}

// pruneLocked drops settled workflows older than the snapshot TTL. Caller holds uc.mu.
func (uc *upgradeUC) pruneLocked(now time.Time) []string {
	var dropped []string
	for id, w := range uc.workflows {
		snap := w.snapshot()
		if !snap.State.Terminal() || now.Sub(snap.UpdatedAt) < uc.cfg.SnapshotTTL {
			continue
		}
		delete(uc.workflows, id)
		if uc.byUser[w.userID] == id {
			delete(uc.byUser, w.userID)
		}
		dropped = append(dropped, id)
	}
	return dropped
}

func (uc *upgradeUC) lookup(workflowID string) (*workflow, error) {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	w, ok := uc.workflows[workflowID]
	if !ok {
		return nil, domain.ErrWorkflowNotFound
	}
	return w, nil
}

// rejected reports a refused submission without touching the workflow.
func rejected(w *workflow, code model.ErrorCode, msg string) *model.WorkflowSnapshot {
	snap := w.snapshot()
	snap.ErrorCode = code
	snap.Message = msg
	return &snap
}

func (uc *upgradeUC) Submit(ctx context.Context, workflowID, planID, phone string) (*model.WorkflowSnapshot, error) {
	defer logging.TraceDuration(uc.log, "UpgradeUC.Submit")()

	w, err := uc.lookup(workflowID)
	if err != nil {
		return nil, err
	}
	ctx = logging.WithUserID(logging.WithWorkflowID(ctx, w.id), w.userID)
	log := logging.With(ctx, uc.log)

	switch st := w.state(); {
	case st.InFlight():
		return rejected(w, model.ErrorCodeNone, uc.tr.T("upgrade.busy")), domain.ErrWorkflowBusy
	case st == model.WorkflowCompleted:
		return rejected(w, model.ErrorCodeNone, ""), fmt.Errorf("submit from %s: %w", st, domain.ErrWorkflowState)
	}

	if strings.TrimSpace(planID) == "" || strings.TrimSpace(phone) == "" {
		return rejected(w, model.ErrorCodeNone, uc.tr.T("upgrade.select_plan_and_phone")), domain.ErrValidation
	}
	plan, err := uc.plans.Get(planID)
	if err != nil {
		return rejected(w, model.ErrorCodeNone, ""), err
	}

	req := model.PaymentRequest{
		PhoneNumber: model.FormatPhoneNumber(phone),
		Amount:      plan.PriceKES,
		Description: uc.tr.T("upgrade.description", plan.Name),
	}
	if code := req.Validate(); code != model.ErrorCodeNone {
		out := model.ValidationOutcome(code)
		log.Info().Str("code", string(code)).Str("phone", logging.RedactPhone(req.PhoneNumber, uc.dev)).Msg("upgrade rejected locally")
		return rejected(w, code, out.Message), domain.ErrValidation
	}
	if msg, err := uc.checkRollingLimits(ctx, w.userID, req.Amount); err != nil {
		return rejected(w, model.ErrorCodeNone, ""), err
	} else if msg != "" {
		return rejected(w, model.ErrorCodeInvalidAmount, msg), domain.ErrValidation
	}

	allowed, err := uc.limiter.Allow(ctx, upgradeRateKey(w.userID), uc.cfg.RateLimit, uc.cfg.RateWindow)
	if err != nil {
		log.Warn().Err(err).Msg("rate limiter unavailable; allowing")
		allowed = true
	}
	if !allowed {
		metrics.IncRateLimitBlock("upgrade")
		return rejected(w, model.ErrorCodeNone, uc.tr.T("upgrade.rate_limited")), domain.ErrRateLimited
	}

	token, err := uc.locker.TryLock(ctx, upgradeLockKey(w.userID), uc.cfg.LockTTL)
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowBusy) {
			return rejected(w, model.ErrorCodeNone, uc.tr.T("upgrade.busy")), domain.ErrWorkflowBusy
		}
		return rejected(w, model.ErrorCodeNone, ""), err
	}

	now := uc.now()
	payment := &model.Payment{
		ID:          uuid.NewString(),
		UserID:      w.userID,
		PlanID:      plan.ID,
		Provider:    uc.gateway.Name(),
		Amount:      plan.PriceKES,
		PhoneNumber: req.PhoneNumber,
		Status:      model.PaymentStatusPending,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	payment.Reference = "UPGRADE_" + plan.ID + "_" + payment.ID
	req.Reference = payment.Reference
	if err := uc.payments.Save(ctx, repository.NoTX, payment); err != nil {
		uc.unlock(ctx, w.userID, token)
		return rejected(w, model.ErrorCodeNone, ""), err
	}

	runCtx, cancel := context.WithCancel(uc.base)
	runCtx = logging.WithUserID(logging.WithWorkflowID(runCtx, w.id), w.userID)
	snap, err := w.fire(evSubmit, now, func(w *workflow) {
		w.rearm()
		w.plan = plan
		w.payment = payment
		w.lockToken = token
		w.ctx, w.cancel = runCtx, cancel
		w.snap.PlanID = plan.ID
		w.snap.PaymentID = payment.ID
		w.snap.CheckoutRequestID = ""
		w.snap.ErrorCode = model.ErrorCodeNone
		w.snap.Message = ""
		w.snap.Attempts = 0
		w.snap.RedirectTo = ""
	})
	if err != nil {
		cancel()
		uc.unlock(ctx, w.userID, token)
		uc.markPayment(ctx, payment.ID, model.PaymentStatusFailed, "", model.ErrorCodeAPIError, err.Error())
		return &snap, err
	}
	uc.mirror(ctx, snap)
	log.Info().Str("plan_id", plan.ID).Str("payment_id", payment.ID).
		Str("phone", logging.RedactPhone(req.PhoneNumber, uc.dev)).Msg("initiating payment")

	out := uc.gateway.InitiatePayment(runCtx, req)
	if out.Success && out.CheckoutRequestID == "" {
		out = model.FailedOutcome(model.ErrorCodeAPIError, uc.tr.T("upgrade.payment_failed"))
	}
	if !out.Success {
		if out.Message == "" {
			out.Message = uc.tr.T("upgrade.payment_failed")
		}
		return uc.fail(runCtx, w, out.ErrorCode, out.Message, out.CheckoutRequestID, true)
	}

	if _, err := uc.payments.UpdateOutcome(ctx, repository.NoTX, payment.ID, model.PaymentStatusPending, out.CheckoutRequestID, model.ErrorCodeNone, out.Message, nil); err != nil {
		log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to record checkout request id")
	}
	snap, err = w.fire(evPrompt, uc.now(), func(w *workflow) {
		w.payment.CheckoutRequestID = out.CheckoutRequestID
		w.snap.CheckoutRequestID = out.CheckoutRequestID
		w.snap.Message = out.Message
	})
	if err != nil {
		// Cancelled mid-initiation; the payment stays pending for the reconciler.
		return &snap, err
	}
	uc.mirror(ctx, snap)
	uc.notify(ctx, w.userID, adapter.NoticeInfo, out.Message)

	task := func(context.Context) error { return uc.poll(w) }
	if err := uc.scheduler.Submit(ctx, task); err != nil {
		log.Warn().Err(err).Msg("status check not queued; running inline goroutine")
		go func() { _ = task(runCtx) }()
	}
	return &snap, nil
}

// checkRollingLimits returns a user-facing message when amount would breach the
// provider's daily or monthly cap.
func (uc *upgradeUC) checkRollingLimits(ctx context.Context, userID string, amount int64) (string, error) {
	limits := uc.gateway.TransactionLimits()
	now := uc.now()
	if limits.DailyLimit > 0 {
		day, err := uc.payments.SumSuccessfulSince(ctx, repository.NoTX, userID, now.Add(-24*time.Hour))
		if err != nil {
			return "", fmt.Errorf("sum daily payments: %w", err)
		}
		if day+amount > limits.DailyLimit {
			return uc.tr.T("upgrade.daily_limit", limits.DailyLimit), nil
		}
	}
	if limits.MonthlyLimit > 0 {
		month, err := uc.payments.SumSuccessfulSince(ctx, repository.NoTX, userID, now.AddDate(0, -1, 0))
		if err != nil {
			return "", fmt.Errorf("sum monthly payments: %w", err)
		}
		if month+amount > limits.MonthlyLimit {
			return uc.tr.T("upgrade.monthly_limit", limits.MonthlyLimit), nil
		}
	}
	return "", nil
}

// poll is the scheduled status check: wait for the customer, then query the provider.
func (uc *upgradeUC) poll(w *workflow) error {
	ctx := w.runCtx()
	if err := uc.sleep(ctx, uc.cfg.PromptDelay); err != nil {
		return nil
	}
	snap, err := w.fire(evCheck, uc.now(), nil)
	if err != nil {
		return nil
	}
	uc.mirror(ctx, snap)
	_, payment := w.attempt()
	uc.runChecks(ctx, w, uc.cfg.MaxAttempts, func(code model.ErrorCode, msg string) *model.WorkflowSnapshot {
		// The payment stays pending so a late confirmation is still honoured by the reconciler.
		snap, _ := uc.fail(ctx, w, code, msg, payment.CheckoutRequestID, false)
		return snap
	})
	return nil
}

// runChecks polls the provider from the checking state. exhausted decides what an
// inconclusive run means for the workflow and the stored payment.
func (uc *upgradeUC) runChecks(ctx context.Context, w *workflow, attempts int, exhausted func(code model.ErrorCode, msg string) *model.WorkflowSnapshot) *model.WorkflowSnapshot {
	log := logging.With(ctx, uc.log)
	_, payment := w.attempt()
	if attempts < 1 {
		attempts = 1
	}

	backoff := max(uc.cfg.InitialBackoff, minRetryBackoff)
	var last model.PaymentOutcome
	sawPending := false
	for i := 1; i <= attempts; i++ {
		w.setAttempts(i)
		out := uc.gateway.CheckPaymentStatus(ctx, payment.CheckoutRequestID)
		if ctx.Err() != nil {
			snap := w.snapshot()
			return &snap
		}
		switch {
		case out.Success:
			metrics.IncStatusCheck("success")
			return uc.complete(ctx, w, out)
		case out.ErrorCode == model.ErrorCodePaymentFailed:
			metrics.IncStatusCheck("failed")
			snap, _ := uc.fail(ctx, w, out.ErrorCode, out.Message, payment.CheckoutRequestID, true)
			return snap
		case out.ErrorCode == model.ErrorCodePending:
			metrics.IncStatusCheck("pending")
			sawPending = true
		default:
			metrics.IncStatusCheck("error")
		}
		last = out
		log.Debug().Int("attempt", i).Str("code", string(out.ErrorCode)).Msg("payment not settled yet")

		if i < attempts {
			if err := uc.sleep(ctx, backoff); err != nil {
				snap := w.snapshot()
				return &snap
			}
			backoff *= 2
			if uc.cfg.MaxBackoff > 0 && backoff > uc.cfg.MaxBackoff {
				backoff = uc.cfg.MaxBackoff
			}
			backoff = max(backoff, minRetryBackoff)
		}
	}

	code, msg := model.ErrorCodeTimeout, uc.tr.T("upgrade.timeout")
	if !sawPending {
		code = model.ErrorCodeAPIError
		msg = last.Message
		if msg == "" {
			msg = uc.tr.T("upgrade.status_check_failed")
		}
	}
	return exhausted(code, msg)
}

// complete activates the plan: ledger first, then the user row and the payment in one transaction.
func (uc *upgradeUC) complete(ctx context.Context, w *workflow, out model.PaymentOutcome) *model.WorkflowSnapshot {
	log := logging.With(ctx, uc.log)
	ctx = context.WithoutCancel(ctx)
	now := uc.now()
	plan, payment := w.attempt()

	snap, err := w.fire(evComplete, now, func(w *workflow) {
		w.snap.Subscription = model.StateAfterUpgrade(plan, now)
		w.snap.ErrorCode = model.ErrorCodeNone
		w.snap.Message = uc.tr.T("upgrade.success")
		w.snap.RedirectTo = uc.cfg.RedirectTo
	})
	if err != nil {
		return &snap
	}
	state := snap.Subscription

	if uc.ledgers != nil {
		if ledger, err := uc.ledgers.For(ctx, w.userID); err != nil {
			log.Warn().Err(err).Msg("ledger not refreshed after upgrade")
		} else {
			ledger.Apply(state)
		}
	}

	txOpts := pgx.TxOptions{IsoLevel: pgx.Serializable}
	err = uc.tm.WithTx(ctx, txOpts, func(ctx context.Context, tx repository.Tx) error {
		if err := uc.users.UpdateSubscription(ctx, tx, w.userID, state); err != nil {
			return err
		}
		_, err := uc.payments.UpdateOutcome(ctx, tx, payment.ID, model.PaymentStatusSuccessful, payment.CheckoutRequestID, model.ErrorCodeNone, out.Message, &now)
		return err
	})
	if err != nil {
		// Payment stays pending, so the reconciler applies the upgrade again.
		log.Error().Err(err).Str("payment_id", payment.ID).Msg("failed to persist upgrade")
	} else {
		metrics.IncPayment(string(model.PaymentStatusSuccessful), "")
		metrics.AddPaymentRevenue("KES", payment.Amount)
		metrics.IncSubscriptionUpgrade(string(state.Tier))
	}

	uc.unlock(ctx, w.userID, w.takeLockToken())
	uc.mirror(ctx, snap)
	uc.notify(ctx, w.userID, adapter.NoticeSuccess, snap.Message)
	w.settle()
	log.Info().Str("payment_id", payment.ID).Str("tier", string(state.Tier)).Msg("upgrade completed")
	return &snap
}

// fail moves the workflow to failed. markPayment=false leaves the stored payment pending.
// A discarded workflow never marks its payment: the provider may still settle it,
// so it stays pending for the reconciler.
func (uc *upgradeUC) fail(ctx context.Context, w *workflow, code model.ErrorCode, msg, checkoutID string, markPayment bool) (*model.WorkflowSnapshot, error) {
	log := logging.With(ctx, uc.log)
	ctx = context.WithoutCancel(ctx)
	_, payment := w.attempt()

	snap, err := w.fire(evFail, uc.now(), func(w *workflow) {
		w.snap.ErrorCode = code
		w.snap.Message = msg
	})
	if markPayment && payment != nil && !errors.Is(err, domain.ErrWorkflowNotFound) {
		uc.markPayment(ctx, payment.ID, model.PaymentStatusFailed, checkoutID, code, msg)
	}
	if err != nil {
		return &snap, err
	}
	metrics.IncPayment(string(model.PaymentStatusFailed), string(code))

	uc.unlock(ctx, w.userID, w.takeLockToken())
	uc.mirror(ctx, snap)
	uc.notify(ctx, w.userID, adapter.NoticeError, msg)
	w.settle()
	log.Info().Str("code", string(code)).Msg("upgrade failed")
	return &snap, nil
}

func (uc *upgradeUC) markPayment(ctx context.Context, id string, status model.PaymentStatus, checkoutID string, code model.ErrorCode, msg string) {
	var completed *time.Time
	if status != model.PaymentStatusPending {
		now := uc.now()
		completed = &now
	}
	if _, err := uc.payments.UpdateOutcome(ctx, repository.NoTX, id, status, checkoutID, code, msg, completed); err != nil {
		logging.With(ctx, uc.log).Error().Err(err).Str("payment_id", id).Msg("failed to update payment")
	}
}

func (uc *upgradeUC) Get(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error) {
	if w, err := uc.lookup(workflowID); err == nil {
		snap := w.snapshot()
		return &snap, nil
	}
	if uc.sessions == nil {
		return nil, domain.ErrWorkflowNotFound
	}
	snap, err := uc.sessions.GetSnapshot(ctx, workflowID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return nil, domain.ErrWorkflowNotFound
		}
		return nil, err
	}
	return snap, nil
}

func (uc *upgradeUC) Await(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error) {
	for {
		w, err := uc.lookup(workflowID)
		if err != nil {
			return nil, err
		}
		if w.isDiscarded() {
			return nil, domain.ErrWorkflowNotFound
		}
		snap := w.snapshot()
		if snap.State.Terminal() {
			return &snap, nil
		}
		select {
		case <-ctx.Done():
			return &snap, ctx.Err()
		case <-w.waitCh():
		}
	}
}

func (uc *upgradeUC) Cancel(ctx context.Context, workflowID string) error {
	defer logging.TraceDuration(uc.log, "UpgradeUC.Cancel")()

	uc.mu.Lock()
	w, ok := uc.workflows[workflowID]
	if ok {
		delete(uc.workflows, workflowID)
		if uc.byUser[w.userID] == workflowID {
			delete(uc.byUser, w.userID)
		}
	}
	active := len(uc.workflows)
	uc.mu.Unlock()
	if !ok {
		return domain.ErrWorkflowNotFound
	}

	metrics.SetWorkflowsActive(active)
	uc.unlock(ctx, w.userID, w.discard())
	uc.forget(ctx, workflowID)
	uc.notify(ctx, w.userID, adapter.NoticeInfo, uc.tr.T("upgrade.cancelled"))
	logging.With(logging.WithWorkflowID(ctx, workflowID), uc.log).Info().Msg("upgrade workflow cancelled")
	return nil
}

func (uc *upgradeUC) Reconcile(ctx context.Context, p *model.Payment) (*model.WorkflowSnapshot, error) {
	defer logging.TraceDuration(uc.log, "UpgradeUC.Reconcile")()

	if p == nil || p.Status != model.PaymentStatusPending {
		return nil, nil
	}
	ctx = logging.WithUserID(ctx, p.UserID)
	log := logging.With(ctx, uc.log).With().Str("payment_id", p.ID).Logger()
	now := uc.now()
	expired := now.Sub(p.CreatedAt) > uc.cfg.PendingMaxAge

	if p.CheckoutRequestID == "" {
		// Never reached the provider.
		if expired {
			uc.markPayment(ctx, p.ID, model.PaymentStatusFailed, "", model.ErrorCodeAPIError, uc.tr.T("upgrade.payment_failed"))
		}
		return nil, nil
	}
	plan, err := uc.plans.Get(p.PlanID)
	if err != nil {
		log.Error().Err(err).Str("plan_id", p.PlanID).Msg("pending payment references unknown plan")
		uc.markPayment(ctx, p.ID, model.PaymentStatusFailed, p.CheckoutRequestID, model.ErrorCodeAPIError, err.Error())
		return nil, err
	}

	if uc.ownedByLiveWorkflow(p.ID) {
		return nil, domain.ErrWorkflowBusy
	}
	token, err := uc.locker.TryLock(ctx, upgradeLockKey(p.UserID), uc.cfg.LockTTL)
	if err != nil {
		return nil, err
	}

	w := newWorkflow(uuid.NewString(), p.UserID, model.WorkflowChecking, now)
	pay := *p
	w.plan = plan
	w.payment = &pay
	w.lockToken = token
	w.ctx = ctx
	w.snap.PlanID = plan.ID
	w.snap.PaymentID = p.ID
	w.snap.CheckoutRequestID = p.CheckoutRequestID

	log.Info().Msg("reconciling pending payment")
	snap := uc.runChecks(ctx, w, 1, func(_ model.ErrorCode, _ string) *model.WorkflowSnapshot {
		if expired {
			snap, _ := uc.fail(ctx, w, model.ErrorCodeTimeout, uc.tr.T("upgrade.timeout"), p.CheckoutRequestID, true)
			return snap
		}
		snap := w.snapshot()
		return &snap
	})
	if !snap.State.Terminal() {
		uc.unlock(ctx, p.UserID, w.takeLockToken())
	}
	return snap, nil
}

func (uc *upgradeUC) ownedByLiveWorkflow(paymentID string) bool {
	uc.mu.Lock()
	defer uc.mu.Unlock()
	for _, w := range uc.workflows {
		_, pay := w.attempt()
		if pay != nil && pay.ID == paymentID && w.state().InFlight() {
			return true
		}
	}
	return false
}

func (uc *upgradeUC) unlock(ctx context.Context, userID, token string) {
	if token == "" {
		return
	}
	if err := uc.locker.Unlock(context.WithoutCancel(ctx), upgradeLockKey(userID), token); err != nil {
		logging.With(ctx, uc.log).Warn().Err(err).Msg("failed to release upgrade lock")
	}
}

// mirror stores the snapshot outside the process. Failures only cost observability.
func (uc *upgradeUC) mirror(ctx context.Context, snap model.WorkflowSnapshot) {
	if uc.sessions == nil {
		return
	}
	if err := uc.sessions.SaveSnapshot(context.WithoutCancel(ctx), &snap); err != nil {
		logging.With(ctx, uc.log).Warn().Err(err).Msg("failed to mirror workflow snapshot")
	}
}

func (uc *upgradeUC) forget(ctx context.Context, workflowID string) {
	if uc.sessions == nil {
		return
	}
	if err := uc.sessions.DeleteSnapshot(ctx, workflowID); err != nil {
		logging.With(ctx, uc.log).Warn().Err(err).Str("workflow_id", workflowID).Msg("failed to delete workflow snapshot")
	}
}

func (uc *upgradeUC) notify(ctx context.Context, userID string, level adapter.NoticeLevel, msg string) {
	if uc.notifier != nil && msg != "" {
		uc.notifier.Notify(ctx, userID, level, msg)
	}
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
