package actions

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/castmod/castmod/automod/authz"
	"github.com/castmod/castmod/automod/cachestore"
	"github.com/castmod/castmod/automod/flagstore"
	"github.com/castmod/castmod/automod/modstore"
)

// In-memory Moderator which records calls. Intended for tests, including in other packages.
type MockModerator struct {
	mu        sync.Mutex
	Hidden    []string
	Unhidden  []string
	Invited   []int64
	UnhideErr error
	HideErr   error
}

var _ Moderator = (*MockModerator)(nil)

func (m *MockModerator) HideCast(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.HideErr != nil {
		return m.HideErr
	}
	m.Hidden = append(m.Hidden, hash)
	return nil
}

func (m *MockModerator) UnhideCast(ctx context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.UnhideErr != nil {
		return m.UnhideErr
	}
	m.Unhidden = append(m.Unhidden, hash)
	return nil
}

func (m *MockModerator) InviteMember(ctx context.Context, channelID string, fid int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Invited = append(m.Invited, fid)
	return nil
}

// Machine over an in-memory store and caches, with a MockModerator
func MachineTestFixture(store *modstore.Store) (*Machine, *MockModerator) {
	mod := &MockModerator{}
	return &Machine{
		Store:     store,
		Moderator: mod,
		Authz:     authz.NewStoreAuthorizer(store),
		Cache:     cachestore.NewMemCacheStore(1000, time.Hour),
		Flags:     flagstore.NewMemFlagStore(),
		Logger:    slog.Default(),
	}, mod
}
