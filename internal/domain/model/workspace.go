package model

import (
	"slices"
	"time"

	"teamchat-upgrade/internal/domain"
)

// Workspace is a team space. MemberIDs is what storage keeps; Members is filled by the directory.
type Workspace struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	Slug       string    `json:"slug"`
	SuperAdmin string    `json:"super_admin"`
	InviteCode string    `json:"invite_code,omitempty"`
	ImageURL   string    `json:"image_url,omitempty"`
	MemberIDs  []string  `json:"-"`
	Members    []*User   `json:"members"`
	Channels   []string  `json:"channels"`
	Regulators []string  `json:"regulators"`
	Tier       Tier      `json:"subscription_tier"`
	CreatedAt  time.Time `json:"created_at"`
}

func NewWorkspace(id, name, slug, superAdmin, inviteCode string) (*Workspace, error) {
	if id == "" || name == "" || slug == "" || superAdmin == "" {
		return nil, domain.ErrInvalidArgument
	}
	return &Workspace{
		ID:         id,
		Name:       name,
		Slug:       slug,
		SuperAdmin: superAdmin,
		InviteCode: inviteCode,
		MemberIDs:  []string{superAdmin},
		Tier:       TierFree,
		CreatedAt:  time.Now(),
	}, nil
}

func (w *Workspace) HasMember(userID string) bool {
	return slices.Contains(w.MemberIDs, userID)
}
