package rules

import (
	"context"
	"errors"
	"testing"

	"github.com/castmod/castmod/automod/engine"

	"github.com/stretchr/testify/assert"
)

type fakeGraph struct {
	// follower fid -> followed fids
	follows map[int64][]int64
	err     error
}

func (g *fakeGraph) IsFollowing(ctx context.Context, fid, targetFid int64) (bool, error) {
	if g.err != nil {
		return false, g.err
	}
	for _, f := range g.follows[fid] {
		if f == targetFid {
			return true, nil
		}
	}
	return false, nil
}

func TestUserCountRules(t *testing.T) {
	assert := assert.New(t)
	eng := engineFixture(Deps{})

	fixtures := []struct {
		rule   string
		args   map[string]any
		result bool
		msg    string
	}{
		{"followerCount", map[string]any{"min": float64(100)}, true, "Follower count is 420"},
		{"followerCount", map[string]any{"min": float64(1000)}, false, "Follower count is 420, below the minimum of 1000"},
		{"followerCount", map[string]any{"min": float64(100), "max": float64(400)}, false, "Follower count is 420, above the maximum of 400"},
		{"followerCount", map[string]any{}, true, "Follower count is 420"},
		{"followingCount", map[string]any{"max": float64(100)}, true, "Following count is 69"},
		{"userFidInRange", map[string]any{"maxFid": float64(20000)}, true, "User fid is 10"},
		{"userFidInRange", map[string]any{"minFid": float64(11)}, false, "User fid is 10, below the minimum of 11"},
	}
	for _, fix := range fixtures {
		res, err := runCheck(t, eng, fix.rule, fix.args, userInput(alice))
		assert.NoError(err)
		assert.Equal(fix.result, res.Result, fix.msg)
		assert.Equal(fix.msg, res.Message)
	}
}

func TestUserAttributeRules(t *testing.T) {
	assert := assert.New(t)
	eng := engineFixture(Deps{})

	res, err := runCheck(t, eng, "powerBadge", nil, userInput(alice))
	assert.NoError(err)
	assert.True(res.Result)

	bob := engine.Profile{Fid: 11, Username: "bob", ActiveStatus: "inactive"}
	res, err = runCheck(t, eng, "powerBadge", nil, userInput(bob))
	assert.NoError(err)
	assert.False(res.Result)

	res, err = runCheck(t, eng, "userIsActive", nil, userInput(alice))
	assert.NoError(err)
	assert.True(res.Result)
	res, err = runCheck(t, eng, "userIsActive", nil, userInput(bob))
	assert.NoError(err)
	assert.False(res.Result)

	res, err = runCheck(t, eng, "alwaysInclude", nil, userInput(bob))
	assert.NoError(err)
	assert.True(res.Result)
}

func TestUserTextRules(t *testing.T) {
	assert := assert.New(t)
	eng := engineFixture(Deps{})

	res, err := runCheck(t, eng, "userProfileContainsText", map[string]any{"searchText": "ONCHAIN"}, userInput(alice))
	assert.NoError(err)
	assert.True(res.Result)
	assert.Equal(`Profile contains "ONCHAIN"`, res.Message)

	res, err = runCheck(t, eng, "userProfileContainsText", map[string]any{"searchText": "ONCHAIN", "caseSensitive": true}, userInput(alice))
	assert.NoError(err)
	assert.False(res.Result)

	res, err = runCheck(t, eng, "userDisplayNameContainsText", map[string]any{"searchText": "🌱"}, userInput(alice))
	assert.NoError(err)
	assert.True(res.Result)

	res, err = runCheck(t, eng, "userDisplayNameContainsText", map[string]any{"searchText": ".eth"}, userInput(alice))
	assert.NoError(err)
	assert.False(res.Result)
}

func TestFollowRules(t *testing.T) {
	assert := assert.New(t)
	graph := &fakeGraph{follows: map[int64][]int64{
		// dwr follows alice
		3: {10},
		// alice follows v
		10: {2},
	}}
	eng := engineFixture(Deps{Social: graph})

	res, err := runCheck(t, eng, "userFollowedBy", map[string]any{"fid": float64(3)}, userInput(alice))
	assert.NoError(err)
	assert.Equal(engine.CheckResult{Result: true, Message: "User is followed by fid 3"}, res)

	res, err = runCheck(t, eng, "userFollowedBy", map[string]any{"fid": float64(2)}, userInput(alice))
	assert.NoError(err)
	assert.False(res.Result)

	res, err = runCheck(t, eng, "userFollows", map[string]any{"fid": float64(2)}, userInput(alice))
	assert.NoError(err)
	assert.Equal(engine.CheckResult{Result: true, Message: "User follows fid 2"}, res)

	res, err = runCheck(t, eng, "userFollows", map[string]any{"fid": float64(3)}, userInput(alice))
	assert.NoError(err)
	assert.False(res.Result)

	graph.err = errors.New("rate limited")
	_, err = runCheck(t, eng, "userFollows", map[string]any{"fid": float64(3)}, userInput(alice))
	assert.Error(err)

	_, err = runCheck(t, engineFixture(Deps{}), "userFollows", map[string]any{"fid": float64(3)}, userInput(alice))
	assert.ErrorIs(err, ErrNoSocialClient)
}
