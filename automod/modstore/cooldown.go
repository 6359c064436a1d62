package modstore

import (
	"context"
	"fmt"
	"time"

	"github.com/castmod/castmod/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Returns the cooldown row for the (user, channel) pair, active or not.
func (s *Store) GetCooldown(ctx context.Context, channelID string, fid int64) (*models.Cooldown, error) {
	var cd models.Cooldown
	// most pairs have no row, so a miss is not logged as an error
	res := s.db.WithContext(ctx).
		Where("channel_id = ? AND affected_user_fid = ?", channelID, fid).
		Limit(1).
		Find(&cd)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrNotFound
	}
	return &cd, nil
}

// Activates a cooldown (or, with a nil expiry, a mute) for the pair and appends the log entry, in one transaction.
//
// The upsert is keyed on the unique (user, channel) index, so concurrent starts for the same pair converge on one row.
func (s *Store) StartCooldown(ctx context.Context, channelID string, fid int64, expiresAt *time.Time, entry *models.ModerationLog) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		cd := models.Cooldown{
			AffectedUserFid: fid,
			ChannelID:       channelID,
			Active:          true,
			ExpiresAt:       expiresAt,
		}
		res := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "affected_user_fid"}, {Name: "channel_id"}},
			DoUpdates: clause.AssignmentColumns([]string{"active", "expires_at", "updated_at"}),
		}).Create(&cd)
		if res.Error != nil {
			return fmt.Errorf("upserting cooldown: %w", res.Error)
		}
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("writing moderation log: %w", err)
		}
		return nil
	})
}

type EndFilter int

const (
	// only rows with an expiry (cooldowns)
	EndCooldown EndFilter = iota
	// only rows without an expiry (mutes)
	EndMute
	// only cooldowns whose expiry has passed
	EndExpired
)

// Deactivates the pair's restriction if one matching the filter is active. The log entry is written, in the same transaction, only when a row actually changed.
//
// Returns whether anything changed.
func (s *Store) EndCooldown(ctx context.Context, channelID string, fid int64, filter EndFilter, now time.Time, entry *models.ModerationLog) (bool, error) {
	changed := false
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		q := tx.Model(&models.Cooldown{}).
			Where("channel_id = ? AND affected_user_fid = ? AND active = ?", channelID, fid, true)
		switch filter {
		case EndCooldown:
			q = q.Where("expires_at IS NOT NULL")
		case EndMute:
			q = q.Where("expires_at IS NULL")
		case EndExpired:
			q = q.Where("expires_at IS NOT NULL AND expires_at <= ?", now)
		}
		res := q.Updates(map[string]any{"active": false, "updated_at": now})
		if res.Error != nil {
			return fmt.Errorf("ending cooldown: %w", res.Error)
		}
		if res.RowsAffected == 0 {
			return nil
		}
		changed = true
		if err := tx.Create(entry).Error; err != nil {
			return fmt.Errorf("writing moderation log: %w", err)
		}
		return nil
	})
	if err != nil {
		return false, err
	}
	return changed, nil
}

// Active cooldowns whose expiry is at or before now, oldest first
func (s *Store) ExpiredCooldowns(ctx context.Context, now time.Time, limit int) ([]models.Cooldown, error) {
	var out []models.Cooldown
	err := s.db.WithContext(ctx).
		Where("active = ? AND expires_at IS NOT NULL AND expires_at <= ?", true, now).
		Order("expires_at asc").
		Limit(limit).
		Find(&out).Error
	if err != nil {
		return nil, err
	}
	return out, nil
}
