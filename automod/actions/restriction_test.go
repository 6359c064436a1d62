package actions

import (
	"context"
	"testing"
	"time"

	"github.com/castmod/castmod/automod/cachestore"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runs beforeFill once, just before the first cache fill is written
type interleavedCache struct {
	cachestore.CacheStore
	beforeFill func()
}

func (c *interleavedCache) SetTTL(ctx context.Context, name, key string, val string, ttl time.Duration) error {
	if f := c.beforeFill; f != nil {
		c.beforeFill = nil
		f()
	}
	return c.CacheStore.SetTTL(ctx, name, key, val, ttl)
}

func TestRestrictionFillRacesStateChange(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name   string
		setup  *ManualAction
		racing ManualAction
		active bool
	}{
		{
			name:   "cooldown starts during lookup",
			racing: ManualAction{Action: ManualCooldown, Duration: 2 * time.Hour},
			active: true,
		},
		{
			name:   "mute starts during lookup",
			racing: ManualAction{Action: ManualMute},
			active: true,
		},
		{
			name:   "cooldown ends during lookup",
			setup:  &ManualAction{Action: ManualCooldown, Duration: 2 * time.Hour},
			racing: ManualAction{Action: ManualEndCooldown},
			active: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert := assert.New(t)
			m, _, _ := testMachine(t)
			cache := &interleavedCache{CacheStore: m.Cache}
			m.Cache = cache

			if tc.setup != nil {
				act := *tc.setup
				act.ChannelID, act.ActorFid, act.Subject = "memes", leadFid, alice
				_, err := m.Apply(ctx, act)
				require.NoError(t, err)
			}

			racing := tc.racing
			racing.ChannelID, racing.ActorFid, racing.Subject = "memes", leadFid, alice
			cache.beforeFill = func() {
				_, err := m.Apply(ctx, racing)
				require.NoError(t, err)
			}

			// this lookup read the database before the racing change committed
			_, err := m.ActiveRestriction(ctx, "memes", alice.Fid)
			require.NoError(t, err)

			r, err := m.ActiveRestriction(ctx, "memes", alice.Fid)
			require.NoError(t, err)
			assert.Equal(tc.active, r.Active)
			assert.Equal(tc.active, r.InEffect(time.Now()))
		})
	}
}
