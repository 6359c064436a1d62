package authz

import (
	"context"
	"testing"

	"github.com/castmod/castmod/automod/modstore"
	"github.com/castmod/castmod/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreAuthorizer(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	store, err := modstore.NewMemoryStore()
	require.NoError(t, err)
	require.NoError(t, store.SaveChannel(ctx, &models.ModeratedChannel{ID: "memes", UserFid: 1, Active: true}))
	require.NoError(t, store.AddComod(ctx, &models.Comod{ChannelID: "memes", Fid: 2}))
	require.NoError(t, store.AddRole(ctx, &models.Role{
		ChannelID:   "memes",
		Name:        "hiders",
		Permissions: "unhide, cooldown",
		Delegates:   []models.Delegate{{ChannelID: "memes", Fid: 3}},
	}))

	a := NewStoreAuthorizer(store)

	res, err := a.CanUserModerateChannel(ctx, 1, "memes")
	assert.NoError(err)
	assert.True(res.Allowed)
	assert.Equal(RoleLead, res.Role)

	res, err = a.CanUserModerateChannel(ctx, 2, "memes")
	assert.NoError(err)
	assert.Equal(RoleComod, res.Role)

	res, err = a.CanUserModerateChannel(ctx, 9, "memes")
	assert.NoError(err)
	assert.False(res.Allowed)
	assert.NotNil(res.Channel)

	res, err = a.CanUserModerateChannel(ctx, 1, "nope")
	assert.NoError(err)
	assert.False(res.Allowed)
	assert.Nil(res.Channel)

	fixtures := []struct {
		fid    int64
		action string
		ok     bool
	}{
		{1, "mute", true},
		{2, "mute", true},
		{3, "unhide", true},
		{3, "cooldown", true},
		{3, "mute", false},
		{9, "unhide", false},
	}
	for _, f := range fixtures {
		ok, err := a.CanUserExecuteAction(ctx, f.fid, "memes", f.action)
		assert.NoError(err)
		assert.Equal(f.ok, ok, "fid=%d action=%s", f.fid, f.action)
	}
}
