package modstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/castmod/castmod/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testStore(t *testing.T) *Store {
	s, err := NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, s.SaveChannel(context.Background(), &models.ModeratedChannel{
		ID:      "memes",
		UserFid: 1,
		Active:  true,
	}))
	return s
}

func logEntry(action string, fid int64) *models.ModerationLog {
	return &models.ModerationLog{
		Action:          action,
		AffectedUserFid: fid,
		Actor:           "2",
		ChannelID:       "memes",
		Reason:          "test",
	}
}

func countLogs(t *testing.T, s *Store, action string) int64 {
	var n int64
	require.NoError(t, s.db.Model(&models.ModerationLog{}).Where("action = ?", action).Count(&n).Error)
	return n
}

func TestChannelCRUD(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	ch, err := s.GetChannel(ctx, "memes")
	require.NoError(t, err)
	assert.Equal(int64(1), ch.UserFid)
	assert.Equal("hideQuietly", ch.CastAction)
	assert.Equal(24, ch.CooldownHours)

	_, err = s.GetChannel(ctx, "nope")
	assert.ErrorIs(err, ErrNotFound)

	assert.NoError(s.UpdateChannelRules(ctx, "memes", `{"operator":"AND","children":[]}`, ""))
	ch, err = s.GetChannel(ctx, "memes")
	require.NoError(t, err)
	assert.Contains(ch.MemberRules, "AND")
	assert.ErrorIs(s.UpdateChannelRules(ctx, "nope", "", ""), ErrNotFound)

	ch.AutoInvite = true
	ch.Active = false
	assert.NoError(s.SaveChannel(ctx, ch))
	ch, err = s.GetChannel(ctx, "memes")
	require.NoError(t, err)
	assert.True(ch.AutoInvite)
	assert.False(ch.Active)
}

func TestComodsAndDelegates(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.AddComod(ctx, &models.Comod{ChannelID: "memes", Fid: 5}))
	ok, err := s.IsComod(ctx, "memes", 5)
	assert.NoError(err)
	assert.True(ok)
	ok, err = s.IsComod(ctx, "memes", 6)
	assert.NoError(err)
	assert.False(ok)

	role := &models.Role{ChannelID: "memes", Name: "helpers", Permissions: "cooldown,unhide", Delegates: []models.Delegate{
		{ChannelID: "memes", Fid: 7},
	}}
	require.NoError(t, s.AddRole(ctx, role))
	perms, err := s.DelegatePermissions(ctx, "memes", 7)
	assert.NoError(err)
	assert.Equal([]string{"cooldown,unhide"}, perms)

	ch, err := s.GetChannel(ctx, "memes")
	require.NoError(t, err)
	assert.Len(ch.Comods, 1)
	assert.Len(ch.Roles, 1)
	assert.Len(ch.Roles[0].Delegates, 1)
}

func TestCooldownUpsert(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)
	now := time.Now().UTC()

	exp := now.Add(time.Hour)
	require.NoError(t, s.StartCooldown(ctx, "memes", 10, &exp, logEntry(models.ActionCooldown, 10)))
	exp2 := now.Add(2 * time.Hour)
	require.NoError(t, s.StartCooldown(ctx, "memes", 10, &exp2, logEntry(models.ActionCooldown, 10)))

	var rows int64
	require.NoError(t, s.db.Model(&models.Cooldown{}).Count(&rows).Error)
	assert.Equal(int64(1), rows)

	cd, err := s.GetCooldown(ctx, "memes", 10)
	require.NoError(t, err)
	assert.True(cd.Active)
	assert.WithinDuration(exp2, *cd.ExpiresAt, time.Second)
	assert.Equal(int64(2), countLogs(t, s, models.ActionCooldown))

	_, err = s.GetCooldown(ctx, "memes", 11)
	assert.ErrorIs(err, ErrNotFound)
}

func TestEndCooldownIdempotent(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)
	now := time.Now().UTC()

	exp := now.Add(time.Hour)
	require.NoError(t, s.StartCooldown(ctx, "memes", 10, &exp, logEntry(models.ActionCooldown, 10)))

	changed, err := s.EndCooldown(ctx, "memes", 10, EndCooldown, now, logEntry(models.ActionCooldownEnded, 10))
	assert.NoError(err)
	assert.True(changed)
	changed, err = s.EndCooldown(ctx, "memes", 10, EndCooldown, now, logEntry(models.ActionCooldownEnded, 10))
	assert.NoError(err)
	assert.False(changed)

	assert.Equal(int64(1), countLogs(t, s, models.ActionCooldownEnded))
}

func TestEndFilters(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)
	now := time.Now().UTC()

	// mute: no expiry
	require.NoError(t, s.StartCooldown(ctx, "memes", 20, nil, logEntry(models.ActionMute, 20)))

	changed, err := s.EndCooldown(ctx, "memes", 20, EndCooldown, now, logEntry(models.ActionCooldownEnded, 20))
	assert.NoError(err)
	assert.False(changed)
	changed, err = s.EndCooldown(ctx, "memes", 20, EndMute, now, logEntry(models.ActionUnmuted, 20))
	assert.NoError(err)
	assert.True(changed)

	past := now.Add(-time.Minute)
	future := now.Add(time.Hour)
	require.NoError(t, s.StartCooldown(ctx, "memes", 21, &past, logEntry(models.ActionCooldown, 21)))
	require.NoError(t, s.StartCooldown(ctx, "memes", 22, &future, logEntry(models.ActionCooldown, 22)))

	expired, err := s.ExpiredCooldowns(ctx, now, 100)
	assert.NoError(err)
	if assert.Len(expired, 1) {
		assert.Equal(int64(21), expired[0].AffectedUserFid)
	}

	changed, err = s.EndCooldown(ctx, "memes", 22, EndExpired, now, logEntry(models.ActionCooldownEnded, 22))
	assert.NoError(err)
	assert.False(changed)
	changed, err = s.EndCooldown(ctx, "memes", 21, EndExpired, now, logEntry(models.ActionCooldownEnded, 21))
	assert.NoError(err)
	assert.True(changed)
}

func TestListLogsPagination(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	base := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 120; i++ {
		entry := logEntry(models.ActionHideQuietly, int64(i))
		entry.Reason = fmt.Sprintf("log %d", i)
		entry.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		require.NoError(t, s.InsertLog(ctx, entry))
	}

	p1, err := s.ListLogs(ctx, "memes", 1, 50)
	require.NoError(t, err)
	assert.Len(p1.Logs, 50)
	assert.Equal(int64(120), p1.Total)
	assert.Equal("log 119", p1.Logs[0].Reason)
	assert.Equal("log 70", p1.Logs[49].Reason)
	for i := 1; i < len(p1.Logs); i++ {
		assert.True(p1.Logs[i-1].CreatedAt.After(p1.Logs[i].CreatedAt))
	}
	if assert.NotNil(p1.NextPage) {
		assert.Equal(2, *p1.NextPage)
	}

	p3, err := s.ListLogs(ctx, "memes", 3, 50)
	require.NoError(t, err)
	assert.Len(p3.Logs, 20)
	assert.Equal("log 19", p3.Logs[0].Reason)
	assert.Equal("log 0", p3.Logs[19].Reason)
	assert.Nil(p3.NextPage)

	p4, err := s.ListLogs(ctx, "memes", 4, 50)
	require.NoError(t, err)
	assert.Empty(p4.Logs)
	assert.Nil(p4.NextPage)

	// defaults and clamping
	pd, err := s.ListLogs(ctx, "memes", 0, 0)
	require.NoError(t, err)
	assert.Equal(1, pd.Page)
	assert.Equal(DefaultPageSize, pd.PageSize)
	pm, err := s.ListLogs(ctx, "memes", 1, 1000)
	require.NoError(t, err)
	assert.Equal(MaxPageSize, pm.PageSize)
	assert.Len(pm.Logs, 100)

	other, err := s.ListLogs(ctx, "other", 1, 50)
	require.NoError(t, err)
	assert.Empty(other.Logs)
	assert.Equal(int64(0), other.Total)
}

func TestDeleteChannelCascades(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()
	s := testStore(t)

	require.NoError(t, s.InsertLog(ctx, logEntry(models.ActionUnhide, 3)))
	require.NoError(t, s.AddComod(ctx, &models.Comod{ChannelID: "memes", Fid: 5}))
	require.NoError(t, s.DeleteChannel(ctx, "memes"))

	assert.Equal(int64(0), countLogs(t, s, models.ActionUnhide))
	ok, err := s.IsComod(ctx, "memes", 5)
	assert.NoError(err)
	assert.False(ok)
	assert.ErrorIs(s.DeleteChannel(ctx, "memes"), ErrNotFound)
}
