package flagstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRedisFlagStoreHiddenCasts(t *testing.T) {
	t.Skip("live test, need redis running locally")
	assert := assert.New(t)
	ctx := context.Background()

	fs, err := NewRedisFlagStore("redis://localhost:6379/0")
	require.NoError(t, err)

	key := "cast/0xtest1"
	l, err := fs.Get(ctx, key)
	assert.NoError(err)
	assert.Empty(l)

	assert.NoError(fs.Add(ctx, key, []string{"hidden"}))
	assert.NoError(fs.Add(ctx, key, []string{"hidden", "warned"}))
	l, err = fs.Get(ctx, key)
	assert.NoError(err)
	assert.ElementsMatch([]string{"hidden", "warned"}, l)

	assert.NoError(fs.Remove(ctx, key, []string{"hidden", "missing"}))
	l, err = fs.Get(ctx, key)
	assert.NoError(err)
	assert.Equal([]string{"warned"}, l)
	assert.NoError(fs.Remove(ctx, key, []string{"warned"}))
}
