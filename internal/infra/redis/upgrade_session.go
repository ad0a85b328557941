package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"teamchat-upgrade/internal/domain"
	"teamchat-upgrade/internal/domain/model"
	"teamchat-upgrade/internal/domain/ports/repository"
)

var _ repository.UpgradeSessionRepository = (*UpgradeSessionStore)(nil)

// UpgradeSessionStore mirrors workflow snapshots so any API replica can report progress.
type UpgradeSessionStore struct {
	client RedisClient
	ttl    time.Duration
}

func NewUpgradeSessionStore(client RedisClient, ttl time.Duration) *UpgradeSessionStore {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &UpgradeSessionStore{client: client, ttl: ttl}
}

func upgradeSessionKey(id string) string { return "upgrade:wf:" + id }

func (s *UpgradeSessionStore) SaveSnapshot(ctx context.Context, snap *model.WorkflowSnapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	return s.client.Set(ctx, upgradeSessionKey(snap.ID), b, s.ttl)
}

func (s *UpgradeSessionStore) GetSnapshot(ctx context.Context, workflowID string) (*model.WorkflowSnapshot, error) {
	raw, err := s.client.Get(ctx, upgradeSessionKey(workflowID))
	if IsNil(err) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var snap model.WorkflowSnapshot
	if err := json.Unmarshal([]byte(raw), &snap); err != nil {
		return nil, fmt.Errorf("unmarshal snapshot: %w", err)
	}
	return &snap, nil
}

func (s *UpgradeSessionStore) DeleteSnapshot(ctx context.Context, workflowID string) error {
	return s.client.Del(ctx, upgradeSessionKey(workflowID))
}
