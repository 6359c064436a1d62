package actions

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/castmod/castmod/automod/modstore"
	"github.com/castmod/castmod/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	leadFid  = 1
	comodFid = 2
	strayFid = 99
)

func testMachine(t *testing.T) (*Machine, *MockModerator, *modstore.Store) {
	ctx := context.Background()
	store, err := modstore.NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, store.SaveChannel(ctx, &models.ModeratedChannel{ID: "memes", UserFid: leadFid, Active: true}))
	require.NoError(t, store.AddComod(ctx, &models.Comod{ChannelID: "memes", Fid: comodFid}))
	m, mod := MachineTestFixture(store)
	return m, mod, store
}

func logCount(t *testing.T, store *modstore.Store, action string) int {
	page, err := store.ListLogs(context.Background(), "memes", 1, 100)
	require.NoError(t, err)
	n := 0
	for _, l := range page.Logs {
		if l.Action == action {
			n++
		}
	}
	return n
}

var alice = Subject{Fid: 10, Username: "alice", AvatarURL: "https://img.example/alice.png"}

func TestCooldownLifecycle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, _, store := testMachine(t)

	out, err := m.Apply(ctx, ManualAction{Action: ManualCooldown, ChannelID: "memes", ActorFid: leadFid, Subject: alice, Duration: 2 * time.Hour})
	require.NoError(t, err)
	assert.True(out.Changed)
	assert.Equal(models.ActionCooldown, out.Action)
	assert.Equal("1", out.Log.Actor)
	assert.Equal("alice", out.Log.AffectedUsername)

	r, err := m.ActiveRestriction(ctx, "memes", alice.Fid)
	require.NoError(t, err)
	assert.True(r.Active)
	assert.False(r.Muted)

	// ending twice writes one log entry
	out, err = m.Apply(ctx, ManualAction{Action: ManualEndCooldown, ChannelID: "memes", ActorFid: comodFid, Subject: alice})
	require.NoError(t, err)
	assert.True(out.Changed)
	out, err = m.Apply(ctx, ManualAction{Action: ManualEndCooldown, ChannelID: "memes", ActorFid: comodFid, Subject: alice})
	require.NoError(t, err)
	assert.False(out.Changed)
	assert.Nil(out.Log)
	assert.Equal(1, logCount(t, store, models.ActionCooldownEnded))

	// cache was purged on the change
	r, err = m.ActiveRestriction(ctx, "memes", alice.Fid)
	require.NoError(t, err)
	assert.False(r.Active)
}

func TestMuteLifecycle(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, _, store := testMachine(t)

	_, err := m.Apply(ctx, ManualAction{Action: ManualMute, ChannelID: "memes", ActorFid: leadFid, Subject: alice})
	require.NoError(t, err)
	r, err := m.ActiveRestriction(ctx, "memes", alice.Fid)
	require.NoError(t, err)
	assert.True(r.Active)
	assert.True(r.Muted)

	// end-cooldown doesn't lift a mute
	out, err := m.Apply(ctx, ManualAction{Action: ManualEndCooldown, ChannelID: "memes", ActorFid: leadFid, Subject: alice})
	require.NoError(t, err)
	assert.False(out.Changed)

	out, err = m.Apply(ctx, ManualAction{Action: ManualUnmute, ChannelID: "memes", ActorFid: leadFid, Subject: alice})
	require.NoError(t, err)
	assert.True(out.Changed)
	out, err = m.Apply(ctx, ManualAction{Action: ManualUnmute, ChannelID: "memes", ActorFid: leadFid, Subject: alice})
	require.NoError(t, err)
	assert.False(out.Changed)

	assert.Equal(1, logCount(t, store, models.ActionMute))
	assert.Equal(1, logCount(t, store, models.ActionUnmuted))
}

func TestUnhide(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, mod, store := testMachine(t)

	// missing hash is a precondition failure, with no log
	_, err := m.Apply(ctx, ManualAction{Action: ManualUnhide, ChannelID: "memes", ActorFid: leadFid, Subject: alice})
	assert.ErrorIs(err, ErrMissingCastHash)
	assert.Equal(0, logCount(t, store, models.ActionUnhide))
	assert.Empty(mod.Unhidden)

	// external failure propagates, with no log
	mod.UnhideErr = errors.New("api down")
	_, err = m.Apply(ctx, ManualAction{Action: ManualUnhide, ChannelID: "memes", ActorFid: leadFid, Subject: alice, CastHash: "0xabc"})
	assert.ErrorContains(err, "api down")
	assert.Equal(0, logCount(t, store, models.ActionUnhide))

	mod.UnhideErr = nil
	out, err := m.Apply(ctx, ManualAction{Action: ManualUnhide, ChannelID: "memes", ActorFid: leadFid, Subject: alice, CastHash: "0xabc"})
	require.NoError(t, err)
	assert.True(out.Changed)
	assert.Equal("0xabc", *out.Log.CastHash)
	assert.Equal([]string{"0xabc"}, mod.Unhidden)
	assert.Equal(1, logCount(t, store, models.ActionUnhide))
}

func TestHideIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, mod, store := testMachine(t)

	req := HideRequest{Action: models.ActionWarnAndHide, ChannelID: "memes", Subject: alice, CastHash: "0xdef", Reason: "spam"}
	out, err := m.Hide(ctx, req)
	require.NoError(t, err)
	assert.True(out.Changed)
	assert.Equal(SystemActor, out.Log.Actor)
	out, err = m.Hide(ctx, req)
	require.NoError(t, err)
	assert.False(out.Changed)
	assert.Equal([]string{"0xdef"}, mod.Hidden)
	assert.Equal(1, logCount(t, store, models.ActionWarnAndHide))

	// unhide clears the flag, so the cast can be hidden again
	_, err = m.Unhide(ctx, "memes", alice, "0xdef", "1", "")
	require.NoError(t, err)
	out, err = m.Hide(ctx, req)
	require.NoError(t, err)
	assert.True(out.Changed)

	_, err = m.Hide(ctx, HideRequest{Action: models.ActionHideQuietly, ChannelID: "memes", Subject: alice})
	assert.ErrorIs(err, ErrMissingCastHash)
	_, err = m.Hide(ctx, HideRequest{Action: "shout", ChannelID: "memes", Subject: alice, CastHash: "0x1"})
	assert.ErrorIs(err, ErrUnknownAction)
}

func TestAuthorization(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, _, store := testMachine(t)

	_, err := m.Apply(ctx, ManualAction{Action: ManualCooldown, ChannelID: "memes", ActorFid: strayFid, Subject: alice})
	assert.ErrorIs(err, ErrUnauthorized)
	_, err = m.Apply(ctx, ManualAction{Action: ManualCooldown, ChannelID: "other", ActorFid: leadFid, Subject: alice})
	assert.ErrorIs(err, ErrUnauthorized)

	_, err = store.GetCooldown(ctx, "memes", alice.Fid)
	assert.ErrorIs(err, modstore.ErrNotFound)
	assert.Equal(0, logCount(t, store, models.ActionCooldown))

	_, err = m.Apply(ctx, ManualAction{Action: "ban", ChannelID: "memes", ActorFid: leadFid, Subject: alice})
	assert.ErrorIs(err, ErrUnknownAction)

	// delegate limited to their role's permissions
	require.NoError(t, store.AddRole(ctx, &models.Role{ChannelID: "memes", Name: "helper", Permissions: "unhide", Delegates: []models.Delegate{{ChannelID: "memes", Fid: 30}}}))
	_, err = m.Apply(ctx, ManualAction{Action: ManualMute, ChannelID: "memes", ActorFid: 30, Subject: alice})
	assert.ErrorIs(err, ErrUnauthorized)
	_, err = m.Apply(ctx, ManualAction{Action: ManualUnhide, ChannelID: "memes", ActorFid: 30, Subject: alice, CastHash: "0x1"})
	assert.NoError(err)
}

func TestSweepExpired(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, _, store := testMachine(t)

	start := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	m.Clock = func() time.Time { return start }

	_, err := m.Apply(ctx, ManualAction{Action: ManualCooldown, ChannelID: "memes", ActorFid: leadFid, Subject: alice, Duration: time.Hour})
	require.NoError(t, err)
	_, err = m.Apply(ctx, ManualAction{Action: ManualMute, ChannelID: "memes", ActorFid: leadFid, Subject: Subject{Fid: 11}})
	require.NoError(t, err)

	n, err := m.SweepExpired(ctx, start.Add(30*time.Minute))
	assert.NoError(err)
	assert.Equal(0, n)

	n, err = m.SweepExpired(ctx, start.Add(2*time.Hour))
	assert.NoError(err)
	assert.Equal(1, n)
	n, err = m.SweepExpired(ctx, start.Add(3*time.Hour))
	assert.NoError(err)
	assert.Equal(0, n)

	assert.Equal(1, logCount(t, store, models.ActionCooldownEnded))
	page, err := store.ListLogs(ctx, "memes", 1, 10)
	require.NoError(t, err)
	assert.Equal(SystemActor, page.Logs[0].Actor)

	// mute unaffected
	m.Clock = func() time.Time { return start.Add(3 * time.Hour) }
	r, err := m.ActiveRestriction(ctx, "memes", 11)
	require.NoError(t, err)
	assert.True(r.Muted)
}

func TestApplyCastAction(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	m, mod, store := testMachine(t)

	out, err := m.ApplyCastAction(ctx, CastActionRequest{Action: models.ActionCooldown, ChannelID: "memes", Subject: alice, CastHash: "0x1", Reason: "too many links", CooldownHours: 1})
	require.NoError(t, err)
	assert.Equal(models.ActionCooldown, out.Action)
	assert.Equal([]string{"0x1"}, mod.Hidden)
	assert.Equal(1, logCount(t, store, models.ActionCooldown))
	assert.Equal(1, logCount(t, store, models.ActionHideQuietly))

	r, err := m.ActiveRestriction(ctx, "memes", alice.Fid)
	require.NoError(t, err)
	assert.True(r.Active)

	_, err = m.ApplyCastAction(ctx, CastActionRequest{Action: "explode", ChannelID: "memes", Subject: alice, CastHash: "0x2"})
	assert.ErrorIs(err, ErrUnknownAction)
	assert.True(ValidCastAction(models.ActionMute))
	assert.False(ValidCastAction("explode"))
}

func TestLocalizeReason(t *testing.T) {
	assert := assert.New(t)

	ny, err := time.LoadLocation("America/New_York")
	require.NoError(t, err)

	assert.Equal("Cooldown until Jan 15, 2024 7:00 AM EST", LocalizeReason("Cooldown until 2024-01-15T12:00:00Z", ny))
	assert.Equal("no timestamps here", LocalizeReason("no timestamps here", ny))
	assert.Equal("Cooldown until 2024-01-15T12:00:00Z", LocalizeReason("Cooldown until 2024-01-15T12:00:00Z", nil))

	logs := []models.ModerationLog{{Reason: "until 2024-07-01T00:00:00Z"}}
	LocalizeLogs(logs, time.UTC)
	assert.Equal("until Jul 1, 2024 12:00 AM UTC", logs[0].Reason)
}
