package actions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/castmod/castmod/automod/cachestore"
	"github.com/castmod/castmod/automod/modstore"
	"github.com/castmod/castmod/models"
)

// Current mute or cooldown state for a (user, channel) pair
type Restriction struct {
	Active    bool       `json:"active"`
	Muted     bool       `json:"muted"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
}

func (r Restriction) InEffect(now time.Time) bool {
	if !r.Active {
		return false
	}
	return r.Muted || (r.ExpiresAt != nil && r.ExpiresAt.After(now))
}

func restrictionKey(channelID string, fid int64) string {
	return fmt.Sprintf("%s:%d", channelID, fid)
}

func (r Restriction) same(o Restriction) bool {
	if r.Active != o.Active || r.Muted != o.Muted {
		return false
	}
	if r.ExpiresAt == nil || o.ExpiresAt == nil {
		return r.ExpiresAt == nil && o.ExpiresAt == nil
	}
	return r.ExpiresAt.Equal(*o.ExpiresAt)
}

// Looks up the pair's restriction, through the cache. Entries are purged on every state change, and never outlive an expiry.
//
// A state change can commit and purge between the database read and the cache fill. The row is read again after the fill, and a mismatch purges the entry, so a stale fill never survives the change that raced it.
func (m *Machine) ActiveRestriction(ctx context.Context, channelID string, fid int64) (Restriction, error) {
	now := m.now()
	key := restrictionKey(channelID, fid)

	var cached Restriction
	ok, err := cachestore.GetJSON(ctx, m.Cache, "restriction", key, &cached)
	if err != nil {
		m.Logger.Warn("restriction cache read failed", "err", err, "channel", channelID, "fid", fid)
	} else if ok {
		if !cached.InEffect(now) {
			cached.Active = false
		}
		return cached, nil
	}

	out, err := m.loadRestriction(ctx, channelID, fid, now)
	if err != nil {
		return Restriction{}, err
	}

	ttl := restrictionCacheTTL
	if out.ExpiresAt != nil {
		if until := out.ExpiresAt.Sub(now); until < ttl {
			ttl = until
		}
	}
	if ttl <= 0 {
		return out, nil
	}
	if err := cachestore.SetJSON(ctx, m.Cache, "restriction", key, out, ttl); err != nil {
		m.Logger.Warn("restriction cache write failed", "err", err, "channel", channelID, "fid", fid)
		return out, nil
	}
	latest, err := m.loadRestriction(ctx, channelID, fid, now)
	if err != nil || !latest.same(out) {
		m.purgeRestriction(ctx, channelID, fid)
		if err == nil {
			return latest, nil
		}
	}
	return out, nil
}

func (m *Machine) loadRestriction(ctx context.Context, channelID string, fid int64, now time.Time) (Restriction, error) {
	cd, err := m.Store.GetCooldown(ctx, channelID, fid)
	if errors.Is(err, modstore.ErrNotFound) {
		return Restriction{}, nil
	}
	if err != nil {
		return Restriction{}, err
	}
	if !cd.InEffect(now) {
		return Restriction{}, nil
	}
	return Restriction{Active: true, Muted: cd.IsMute(), ExpiresAt: cd.ExpiresAt}, nil
}

func (m *Machine) purgeRestriction(ctx context.Context, channelID string, fid int64) {
	if err := m.Cache.Purge(ctx, "restriction", restrictionKey(channelID, fid)); err != nil {
		m.Logger.Warn("restriction cache purge failed", "err", err, "channel", channelID, "fid", fid)
	}
}

// batch size for expiry sweeps
const sweepBatch = 500

// Ends every cooldown whose expiry has passed, logging "cooldownEnded" with the system actor. Returns the number ended.
//
// Safe to run concurrently with manual actions: each row is ended with a conditional update, so a cooldown already ended (or renewed) is skipped without a log entry.
func (m *Machine) SweepExpired(ctx context.Context, now time.Time) (int, error) {
	now = now.UTC()
	ended := 0
	for {
		rows, err := m.Store.ExpiredCooldowns(ctx, now, sweepBatch)
		if err != nil {
			return ended, err
		}
		progress := 0
		for _, cd := range rows {
			entry := newLog(models.ActionCooldownEnded, cd.ChannelID, Subject{Fid: cd.AffectedUserFid}, SystemActor, "Cooldown expired")
			entry.CreatedAt = now
			changed, err := m.Store.EndCooldown(ctx, cd.ChannelID, cd.AffectedUserFid, modstore.EndExpired, now, entry)
			if err != nil {
				return ended, err
			}
			m.purgeRestriction(ctx, cd.ChannelID, cd.AffectedUserFid)
			if changed {
				ended++
				progress++
				actionCount.WithLabelValues(models.ActionCooldownEnded).Inc()
			}
		}
		if len(rows) < sweepBatch || progress == 0 {
			break
		}
	}
	if ended > 0 {
		m.Logger.Info("ended expired cooldowns", "count", ended)
	}
	return ended, nil
}
