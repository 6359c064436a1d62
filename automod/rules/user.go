package rules

import (
	"context"
	"errors"
	"fmt"

	"github.com/castmod/castmod/automod/engine"
	"github.com/castmod/castmod/automod/registry"
)

var ErrNoSocialClient = errors.New("social network client not configured")

func minMaxArgs(minName, maxName, noun string) []registry.ArgSchema {
	return []registry.ArgSchema{
		{Name: minName, Type: registry.ArgNumber, FriendlyName: "Minimum " + noun, Min: registry.Float(0)},
		{Name: maxName, Type: registry.ArgNumber, FriendlyName: "Maximum " + noun, Min: registry.Float(0)},
	}
}

func searchTextArgs() []registry.ArgSchema {
	return []registry.ArgSchema{
		{Name: "searchText", Type: registry.ArgString, FriendlyName: "Text", Required: true},
		{Name: "caseSensitive", Type: registry.ArgBoolean, FriendlyName: "Case sensitive", Default: false},
	}
}

func userDef(name, friendly, desc string, invertable bool, args ...registry.ArgSchema) registry.Definition {
	return registry.Definition{
		Name:         name,
		FriendlyName: friendly,
		Description:  desc,
		Category:     registry.ScopeUser,
		CheckType:    registry.ScopeUser,
		Invertable:   invertable,
		Args:         args,
	}
}

func userRules(d *Deps) []engine.Rule {
	fidArg := registry.ArgSchema{Name: "fid", Type: registry.ArgNumber, FriendlyName: "User fid", Required: true, Min: registry.Float(1)}

	followedBy := userDef("userFollowedBy", "Followed by user", "User is followed by a specific account", true, fidArg)
	followedBy.AllowMultiple = true
	followedBy.Timeout = networkCheckTimeout
	follows := userDef("userFollows", "Follows user", "User follows a specific account", true, fidArg)
	follows.AllowMultiple = true
	follows.Timeout = networkCheckTimeout

	return []engine.Rule{
		{
			Definition: userDef("followerCount", "Follower count", "User has a follower count within range", false, minMaxArgs("min", "max", "followers")...),
			Check:      FollowerCountCheck,
		},
		{
			Definition: userDef("followingCount", "Following count", "User follows a number of accounts within range", false, minMaxArgs("min", "max", "following")...),
			Check:      FollowingCountCheck,
		},
		{
			Definition: userDef("userFidInRange", "Fid range", "User fid is within range", true, minMaxArgs("minFid", "maxFid", "fid")...),
			Check:      UserFidInRangeCheck,
		},
		{
			Definition: userDef("powerBadge", "Power badge", "User has a power badge", true),
			Check:      PowerBadgeCheck,
		},
		{
			Definition: userDef("userIsActive", "Active user", "User is marked active by the network", true),
			Check:      UserIsActiveCheck,
		},
		{
			Definition: userDef("userProfileContainsText", "Profile contains text", "User bio contains text", true, searchTextArgs()...),
			Check:      UserProfileContainsTextCheck,
		},
		{
			Definition: userDef("userDisplayNameContainsText", "Display name contains text", "User display name contains text", true, searchTextArgs()...),
			Check:      UserDisplayNameContainsTextCheck,
		},
		{
			Definition: followedBy,
			Check:      UserFollowedByCheck(d),
		},
		{
			Definition: follows,
			Check:      UserFollowsCheck(d),
		},
	}
}

func alwaysIncludeRule() engine.Rule {
	return engine.Rule{
		Definition: registry.Definition{
			Name:         "alwaysInclude",
			FriendlyName: "Always include",
			Description:  "Always passes; useful as the last branch of an OR group",
			Category:     registry.ScopeAll,
			CheckType:    registry.ScopeAll,
		},
		Check: AlwaysIncludeCheck,
	}
}

var _ engine.CheckFunc = AlwaysIncludeCheck

func AlwaysIncludeCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	return engine.CheckResult{Result: true, Message: "Always included"}, nil
}

var _ engine.CheckFunc = FollowerCountCheck

func FollowerCountCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	return checkRange(c, "Follower count", float64(c.User.FollowerCount), "min", "max"), nil
}

var _ engine.CheckFunc = FollowingCountCheck

func FollowingCountCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	return checkRange(c, "Following count", float64(c.User.FollowingCount), "min", "max"), nil
}

var _ engine.CheckFunc = UserFidInRangeCheck

func UserFidInRangeCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	return checkRange(c, "User fid", float64(c.User.Fid), "minFid", "maxFid"), nil
}

var _ engine.CheckFunc = PowerBadgeCheck

func PowerBadgeCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.User.PowerBadge {
		return engine.CheckResult{Result: true, Message: "User has a power badge"}, nil
	}
	return engine.CheckResult{Result: false, Message: "User does not have a power badge"}, nil
}

var _ engine.CheckFunc = UserIsActiveCheck

func UserIsActiveCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	if c.User.ActiveStatus == "active" {
		return engine.CheckResult{Result: true, Message: "User is active"}, nil
	}
	return engine.CheckResult{Result: false, Message: "User is not active"}, nil
}

var _ engine.CheckFunc = UserProfileContainsTextCheck

func UserProfileContainsTextCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	return checkContainsText(c, "Profile", c.User.Bio), nil
}

var _ engine.CheckFunc = UserDisplayNameContainsTextCheck

func UserDisplayNameContainsTextCheck(c *engine.CheckContext) (engine.CheckResult, error) {
	return checkContainsText(c, "Display name", c.User.DisplayName), nil
}

func targetFid(c *engine.CheckContext) (int64, error) {
	v, ok := c.NumberArg("fid")
	if !ok || v < 1 {
		return 0, fmt.Errorf("invalid fid argument: %v", c.Rule.Args["fid"])
	}
	return int64(v), nil
}

func followCheck(d *Deps, lookup func(ctx context.Context, g FollowGraph, user, target int64) (bool, error), yes, no string) engine.CheckFunc {
	return func(c *engine.CheckContext) (engine.CheckResult, error) {
		if d.Social == nil {
			return engine.CheckResult{}, ErrNoSocialClient
		}
		target, err := targetFid(c)
		if err != nil {
			return engine.CheckResult{}, err
		}
		ok, err := lookup(c.Ctx, d.Social, c.User.Fid, target)
		if err != nil {
			return engine.CheckResult{}, fmt.Errorf("follow lookup: %w", err)
		}
		if ok {
			return engine.CheckResult{Result: true, Message: fmt.Sprintf(yes, target)}, nil
		}
		return engine.CheckResult{Result: false, Message: fmt.Sprintf(no, target)}, nil
	}
}

func UserFollowedByCheck(d *Deps) engine.CheckFunc {
	return followCheck(d, func(ctx context.Context, g FollowGraph, user, target int64) (bool, error) {
		return g.IsFollowing(ctx, target, user)
	}, "User is followed by fid %d", "User is not followed by fid %d")
}

func UserFollowsCheck(d *Deps) engine.CheckFunc {
	return followCheck(d, func(ctx context.Context, g FollowGraph, user, target int64) (bool, error) {
		return g.IsFollowing(ctx, user, target)
	}, "User follows fid %d", "User does not follow fid %d")
}
