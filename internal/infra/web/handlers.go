package web

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/infra/logging"
	"teamchat-upgrade/internal/usecase"
)

const (
	maxBodyBytes = 1 << 16
	// awaitLimit caps how long GET /upgrade/{id}?wait=true holds the request.
	awaitLimit = 25 * time.Second
)

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return errors.Join(domain.ErrInvalidArgument, err)
	}
	return nil
}

func (s *Server) handleListPlans(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, struct {
		Data []*model.SubscriptionPlan `json:"data"`
	}{Data: s.d.Plans.List()})
}

func (s *Server) handleLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.d.Upgrades.Limits())
}

// handleMe provisions a free account the first time a valid session shows up.
func (s *Server) handleMe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := claimsFrom(ctx)
	u, err := s.d.Users.Current(ctx, claims.Subject)
	if errors.Is(err, domain.ErrUnauthenticated) && claims.Email != "" {
		u, err = s.d.Users.Register(ctx, claims.Subject, claims.Email, claims.Name)
	}
	if err != nil {
		s.fail(w, r, "me", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

func (s *Server) handleNotifications(w http.ResponseWriter, r *http.Request) {
	if s.d.Notices == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{"data": []struct{}{}})
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"data": s.d.Notices.Drain(userIDFrom(r.Context()))})
}

// ---- upgrade workflow ----

type submitRequest struct {
	PlanID      string `json:"plan_id"`
	PhoneNumber string `json:"phone_number"`
}

func (s *Server) handleUpgradeStart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.d.Upgrades.Start(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "upgrade.start", err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, snap)
}

// ownedWorkflow hides workflows of other users behind a not-found.
func (s *Server) ownedWorkflow(ctx context.Context, id string) (*model.WorkflowSnapshot, error) {
	snap, err := s.d.Upgrades.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if snap.UserID != userIDFrom(ctx) {
		return nil, domain.ErrWorkflowNotFound
	}
	return snap, nil
}

func (s *Server) handleUpgradeSubmit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.ownedWorkflow(ctx, id); err != nil {
		s.fail(w, r, "upgrade.submit", err, nil)
		return
	}
	var req submitRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "upgrade.submit", err, nil)
		return
	}
	ctx = logging.WithWorkflowID(ctx, id)
	snap, err := s.d.Upgrades.Submit(ctx, id, req.PlanID, req.PhoneNumber)
	if err != nil {
		var details interface{}
		if snap != nil {
			details = snap
		}
		s.fail(w, r, "upgrade.submit", err, details)
		return
	}
	writeJSON(w, http.StatusAccepted, snap)
}

func (s *Server) handleUpgradeGet(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	snap, err := s.ownedWorkflow(ctx, id)
	if err != nil {
		s.fail(w, r, "upgrade.get", err, nil)
		return
	}
	if wait, _ := strconv.ParseBool(r.URL.Query().Get("wait")); wait && snap.State.InFlight() {
		actx, cancel := context.WithTimeout(ctx, awaitLimit)
		defer cancel()
		latest, err := s.d.Upgrades.Await(actx, id)
		switch {
		case latest != nil:
			snap = latest
		case err != nil:
			s.fail(w, r, "upgrade.get", err, nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) handleUpgradeCancel(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")
	if _, err := s.ownedWorkflow(ctx, id); err != nil {
		s.fail(w, r, "upgrade.cancel", err, nil)
		return
	}
	if err := s.d.Upgrades.Cancel(ctx, id); err != nil {
		s.fail(w, r, "upgrade.cancel", err, nil)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ---- credits ----

type consumeRequest struct {
	Action string `json:"action"`
	Cost   int64  `json:"cost"`
}

func (s *Server) handleCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	uid := userIDFrom(ctx)
	status, err := s.d.Credits.Status(ctx, uid)
	if err != nil {
		s.fail(w, r, "credits.status", err, nil)
		return
	}
	prompt, _ := s.d.Credits.Prompt(ctx, uid)
	banner, _ := s.d.Credits.Banner(ctx, uid)
	writeJSON(w, http.StatusOK, struct {
		Status usecase.CreditStatus  `json:"status"`
		Prompt usecase.UpgradePrompt `json:"prompt"`
		Banner usecase.CreditBanner  `json:"banner"`
	}{status, prompt, banner})
}

func (s *Server) handleConsume(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	var req consumeRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "credits.consume", err, nil)
		return
	}
	if req.Action == "" {
		s.fail(w, r, "credits.consume", domain.ErrInvalidArgument, nil)
		return
	}
	res, err := s.d.Credits.Consume(ctx, userIDFrom(ctx), req.Action, req.Cost)
	if err != nil {
		var details interface{}
		if res != nil {
			details = res
		}
		s.fail(w, r, "credits.consume", err, details)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// ---- workspaces ----

type joinRequest struct {
	InviteCode string `json:"invite_code"`
}

func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	list, err := s.d.Workspaces.ListForUser(r.Context(), userIDFrom(r.Context()))
	if err != nil {
		s.fail(w, r, "workspaces.list", err, nil)
		return
	}
	if list == nil {
		list = []*model.Workspace{}
	}
	writeJSON(w, http.StatusOK, struct {
		Data []*model.Workspace `json:"data"`
	}{Data: list})
}

func (s *Server) handleGetWorkspace(w http.ResponseWriter, r *http.Request) {
	ws, err := s.d.Workspaces.GetWithMembers(r.Context(), chi.URLParam(r, "id"))
	if err == nil && !ws.HasMember(userIDFrom(r.Context())) {
		err = domain.ErrNotFound
	}
	if err != nil {
		s.fail(w, r, "workspaces.get", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

func (s *Server) handleJoinWorkspace(w http.ResponseWriter, r *http.Request) {
	var req joinRequest
	if err := decodeBody(r, &req); err != nil {
		s.fail(w, r, "workspaces.join", err, nil)
		return
	}
	ws, err := s.d.Workspaces.JoinByInviteCode(r.Context(), userIDFrom(r.Context()), req.InviteCode)
	if err != nil {
		s.fail(w, r, "workspaces.join", err, nil)
		return
	}
	writeJSON(w, http.StatusOK, ws)
}

// fail logs unexpected errors and renders the mapped status.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op string, err error, details interface{}) {
	if status, _ := statusFor(err); status == http.StatusInternalServerError {
		l := logging.With(r.Context(), s.log)
		l.Error().Err(err).Str("op", op).Msg("request failed")
	}
	writeError(w, err, details)
}
