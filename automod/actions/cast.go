package actions

import (
	"context"
	"fmt"
	"time"

	"github.com/castmod/castmod/models"
)

// Channel-configured responses to a cast that fails the channel's cast rules
var CastActions = []string{
	models.ActionHideQuietly,
	models.ActionWarnAndHide,
	models.ActionMute,
	models.ActionCooldown,
}

func ValidCastAction(a string) bool {
	for _, v := range CastActions {
		if v == a {
			return true
		}
	}
	return false
}

type CastActionRequest struct {
	Action        string
	ChannelID     string
	Subject       Subject
	CastHash      string
	Reason        string
	CooldownHours int
}

// Applies a channel's configured cast action on behalf of the system actor. Mute and cooldown also hide the offending cast.
func (m *Machine) ApplyCastAction(ctx context.Context, req CastActionRequest) (Outcome, error) {
	hide := HideRequest{
		Action:    req.Action,
		ChannelID: req.ChannelID,
		Subject:   req.Subject,
		CastHash:  req.CastHash,
		Actor:     SystemActor,
		Reason:    req.Reason,
	}
	switch req.Action {
	case models.ActionHideQuietly, models.ActionWarnAndHide:
		return m.Hide(ctx, hide)
	case models.ActionMute:
		out, err := m.mute(ctx, req.ChannelID, req.Subject, SystemActor, req.Reason)
		if err != nil {
			return Outcome{}, err
		}
		hide.Action = models.ActionHideQuietly
		if _, err := m.Hide(ctx, hide); err != nil {
			return out, err
		}
		return out, nil
	case models.ActionCooldown:
		dur := time.Duration(req.CooldownHours) * time.Hour
		if dur <= 0 {
			dur = DefaultCooldownDuration
		}
		out, err := m.startCooldown(ctx, req.ChannelID, req.Subject, SystemActor, dur, req.Reason)
		if err != nil {
			return Outcome{}, err
		}
		hide.Action = models.ActionHideQuietly
		if _, err := m.Hide(ctx, hide); err != nil {
			return out, err
		}
		return out, nil
	}
	return Outcome{}, fmt.Errorf("%w: cast action %q", ErrUnknownAction, req.Action)
}
