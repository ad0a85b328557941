package usecase

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/looplab/fsm"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/infra/metrics"
)

// Workflow events.
const (
	evSubmit   = "submit"
	evPrompt   = "prompt"
	evCheck    = "check"
	evComplete = "complete"
	evFail     = "fail"
)

func workflowEvents() fsm.Events {
	return fsm.Events{
		{Name: evSubmit, Src: []string{string(model.WorkflowIdle), string(model.WorkflowFailed)}, Dst: string(model.WorkflowInitiating)},
		{Name: evPrompt, Src: []string{string(model.WorkflowInitiating)}, Dst: string(model.WorkflowWaitingOnUser)},
		{Name: evCheck, Src: []string{string(model.WorkflowWaitingOnUser)}, Dst: string(model.WorkflowChecking)},
		{Name: evComplete, Src: []string{string(model.WorkflowChecking)}, Dst: string(model.WorkflowCompleted)},
		{Name: evFail, Src: []string{string(model.WorkflowInitiating), string(model.WorkflowChecking)}, Dst: string(model.WorkflowFailed)},
	}
}

// workflow is one upgrade attempt for one user. All fields are guarded by mu;
// the FSM is only driven through fire.
type workflow struct {
	id     string
	userID string

	mu        sync.Mutex
	machine   *fsm.FSM
	snap      model.WorkflowSnapshot
	plan      *model.SubscriptionPlan
	payment   *model.Payment
	lockToken string
	discarded bool

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func newWorkflow(id, userID string, initial model.WorkflowState, now time.Time) *workflow {
	w := &workflow{
		id:     id,
		userID: userID,
		snap: model.WorkflowSnapshot{
			ID:        id,
			UserID:    userID,
			State:     initial,
			UpdatedAt: now,
		},
		done: make(chan struct{}),
	}
	w.machine = fsm.NewFSM(
		string(initial),
		workflowEvents(),
		fsm.Callbacks{
			"enter_state": func(_ context.Context, e *fsm.Event) {
				// mu is held by fire; never call back into the FSM here.
				w.snap.State = model.WorkflowState(e.Dst)
				metrics.IncWorkflowTransition(e.Src, e.Dst)
			},
		},
	)
	return w
}

// fire applies event, running mutate under the same lock right before the
// transition so the snapshot and state change together.
func (w *workflow) fire(event string, now time.Time, mutate func(w *workflow)) (model.WorkflowSnapshot, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.discarded {
		return w.snap, domain.ErrWorkflowNotFound
	}
	if !w.machine.Can(event) {
		return w.snap, fmt.Errorf("%s from %s: %w", event, w.snap.State, domain.ErrWorkflowState)
	}
	if mutate != nil {
		mutate(w)
	}
	if err := w.machine.Event(context.Background(), event); err != nil {
		return w.snap, fmt.Errorf("%s from %s: %v: %w", event, w.snap.State, err, domain.ErrWorkflowState)
	}
	w.snap.UpdatedAt = now
	return w.snap, nil
}

func (w *workflow) snapshot() model.WorkflowSnapshot {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap
}

func (w *workflow) state() model.WorkflowState {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.snap.State
}

func (w *workflow) setAttempts(n int) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.snap.Attempts = n
}

func (w *workflow) isDiscarded() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.discarded
}

// attempt returns the plan and payment of the current attempt.
func (w *workflow) attempt() (*model.SubscriptionPlan, *model.Payment) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.plan, w.payment
}

func (w *workflow) runCtx() context.Context {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ctx
}

// rearm gives a resubmitted workflow a fresh done channel. Caller holds mu.
func (w *workflow) rearm() {
	select {
	case <-w.done:
		w.done = make(chan struct{})
	default:
	}
}

// waitCh returns the channel closed when the current attempt settles.
func (w *workflow) waitCh() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// settle wakes Await callers for the current attempt and releases its context.
func (w *workflow) settle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.cancel != nil {
		w.cancel()
	}
	select {
	case <-w.done:
	default:
		close(w.done)
	}
}

// discard stops polling and marks the workflow dead. It returns the lock token to release.
func (w *workflow) discard() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.discarded = true
	if w.cancel != nil {
		w.cancel()
	}
	tok := w.lockToken
	w.lockToken = ""
	select {
	case <-w.done:
	default:
		close(w.done)
	}
	return tok
}

// takeLockToken hands the lock token to the caller exactly once.
func (w *workflow) takeLockToken() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	tok := w.lockToken
	w.lockToken = ""
	return tok
}
