// Decides whether a user may moderate a channel, and which manual actions they may take.
//
// The channel lead and comods may take every action. Delegates may take the actions listed in the permissions of the roles they hold.
package authz

import (
	"context"
	"errors"
	"strings"

	"github.com/castmod/castmod/automod/modstore"
	"github.com/castmod/castmod/models"
)

type Result struct {
	Allowed bool
	// set when the channel exists, whether or not the user is allowed
	Channel *models.ModeratedChannel
	// lead|comod|delegate, when allowed
	Role string
}

type Authorizer interface {
	CanUserModerateChannel(ctx context.Context, fid int64, channelID string) (Result, error)
	CanUserExecuteAction(ctx context.Context, fid int64, channelID, action string) (bool, error)
}

const (
	RoleLead     = "lead"
	RoleComod    = "comod"
	RoleDelegate = "delegate"
)

// Authorizer backed by channel, comod, and role rows in the moderation store
type StoreAuthorizer struct {
	Store *modstore.Store
}

var _ Authorizer = (*StoreAuthorizer)(nil)

func NewStoreAuthorizer(store *modstore.Store) *StoreAuthorizer {
	return &StoreAuthorizer{Store: store}
}

func (a *StoreAuthorizer) CanUserModerateChannel(ctx context.Context, fid int64, channelID string) (Result, error) {
	ch, err := a.Store.GetChannel(ctx, channelID)
	if errors.Is(err, modstore.ErrNotFound) {
		return Result{}, nil
	}
	if err != nil {
		return Result{}, err
	}
	out := Result{Channel: ch}
	if ch.UserFid == fid {
		out.Allowed = true
		out.Role = RoleLead
		return out, nil
	}
	for _, c := range ch.Comods {
		if c.Fid == fid {
			out.Allowed = true
			out.Role = RoleComod
			return out, nil
		}
	}
	for _, r := range ch.Roles {
		for _, d := range r.Delegates {
			if d.Fid == fid {
				out.Allowed = true
				out.Role = RoleDelegate
				return out, nil
			}
		}
	}
	return out, nil
}

func (a *StoreAuthorizer) CanUserExecuteAction(ctx context.Context, fid int64, channelID, action string) (bool, error) {
	res, err := a.CanUserModerateChannel(ctx, fid, channelID)
	if err != nil || !res.Allowed {
		return false, err
	}
	if res.Role != RoleDelegate {
		return true, nil
	}
	perms, err := a.Store.DelegatePermissions(ctx, channelID, fid)
	if err != nil {
		return false, err
	}
	for _, p := range perms {
		if hasPermission(p, action) {
			return true, nil
		}
	}
	return false, nil
}

// permissions are comma-separated action names; "*" grants everything
func hasPermission(perms, action string) bool {
	for _, p := range strings.Split(perms, ",") {
		p = strings.TrimSpace(p)
		if p == "*" || p == action {
			return true
		}
	}
	return false
}
