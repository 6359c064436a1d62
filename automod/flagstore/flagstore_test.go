package flagstore

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFlagStoreBasics(t *testing.T) {
	assert := assert.New(t)
	ctx := context.Background()

	fs := NewMemFlagStore()

	l, err := fs.Get(ctx, "cast/0xabc")
	assert.NoError(err)
	assert.Empty(l)

	assert.NoError(fs.Add(ctx, "cast/0xabc", []string{"hideQuietly", "warned"}))
	assert.NoError(fs.Add(ctx, "cast/0xabc", []string{"hideQuietly", "reviewed"}))
	l, err = fs.Get(ctx, "cast/0xabc")
	assert.NoError(err)
	assert.Equal(3, len(l))

	ok, err := Has(ctx, fs, "cast/0xabc", "warned")
	assert.NoError(err)
	assert.True(ok)

	assert.NoError(fs.Remove(ctx, "cast/0xabc", []string{"hideQuietly", "reviewed", "missing"}))
	l, err = fs.Get(ctx, "cast/0xabc")
	assert.NoError(err)
	assert.Equal([]string{"warned"}, l)

	assert.NoError(fs.Remove(ctx, "cast/0xabc", []string{"warned"}))
	ok, err = Has(ctx, fs, "cast/0xabc", "warned")
	assert.NoError(err)
	assert.False(ok)
}
