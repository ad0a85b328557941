package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"teamchat-upgrade/internal/domain/ports/adapter"
	"teamchat-upgrade/internal/infra/logging"
)

var _ adapter.Notifier = (*Hub)(nil)

const defaultPerUser = 20

// Notice is one toast waiting to be shown to a user.
type Notice struct {
	Level     adapter.NoticeLevel `json:"level"`
	Message   string              `json:"message"`
	CreatedAt time.Time           `json:"created_at"`
}

// Hub keeps the most recent notices per user until the client drains them.
// Older notices are dropped once a user's queue is full.
type Hub struct {
	mu      sync.Mutex
	queues  map[string][]Notice
	perUser int
	log     *zerolog.Logger
	now     func() time.Time
}

func NewHub(perUser int, logger *zerolog.Logger) *Hub {
	if perUser <= 0 {
		perUser = defaultPerUser
	}
	return &Hub{
		queues:  make(map[string][]Notice),
		perUser: perUser,
		log:     logger,
		now:     time.Now,
	}
}

func (h *Hub) Notify(ctx context.Context, userID string, level adapter.NoticeLevel, message string) {
	if userID == "" || message == "" {
		return
	}
	logging.With(ctx, h.log).Debug().
		Str("user_id", userID).
		Str("level", string(level)).
		Msg(message)

	h.mu.Lock()
	defer h.mu.Unlock()
	q := append(h.queues[userID], Notice{Level: level, Message: message, CreatedAt: h.now()})
	if len(q) > h.perUser {
		q = q[len(q)-h.perUser:]
	}
	h.queues[userID] = q
}

// Drain returns and forgets the user's pending notices, oldest first.
func (h *Hub) Drain(userID string) []Notice {
	h.mu.Lock()
	defer h.mu.Unlock()
	q := h.queues[userID]
	delete(h.queues, userID)
	if q == nil {
		return []Notice{}
	}
	return q
}

// Pending reports how many notices are queued for userID.
func (h *Hub) Pending(userID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.queues[userID])
}
