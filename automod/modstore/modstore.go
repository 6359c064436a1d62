// Persisted moderation state: channel configuration, cooldowns and mutes, and the append-only moderation log.
//
// Every state transition that produces a log entry writes both in a single database transaction, so a failed write never leaves a partial log behind.
package modstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/castmod/castmod/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var ErrNotFound = errors.New("not found")

const (
	DefaultPageSize = 50
	MaxPageSize     = 100
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Migrate() error {
	return s.db.AutoMigrate(models.AllModels()...)
}

func (s *Store) GetChannel(ctx context.Context, id string) (*models.ModeratedChannel, error) {
	var ch models.ModeratedChannel
	err := s.db.WithContext(ctx).
		Preload("Comods").
		Preload("Roles.Delegates").
		Where("id = ?", id).
		First(&ch).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("loading channel %s: %w", id, err)
	}
	return &ch, nil
}

// Creates the channel, or replaces its settings (but not comods or roles) if it already exists.
func (s *Store) SaveChannel(ctx context.Context, ch *models.ModeratedChannel) error {
	res := s.db.WithContext(ctx).Omit("Comods", "Roles").Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"user_fid", "active", "disable_banned_list", "auto_invite",
			"member_rules", "cast_rules", "cast_action", "cooldown_hours", "updated_at",
		}),
	}).Create(ch)
	if res.Error != nil {
		return fmt.Errorf("saving channel %s: %w", ch.ID, res.Error)
	}
	return nil
}

// Replaces the serialized member and cast rule groups for a channel.
func (s *Store) UpdateChannelRules(ctx context.Context, id, memberRules, castRules string) error {
	res := s.db.WithContext(ctx).Model(&models.ModeratedChannel{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"member_rules": memberRules,
			"cast_rules":   castRules,
			"updated_at":   time.Now(),
		})
	if res.Error != nil {
		return fmt.Errorf("updating rules for %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	return nil
}

// Deletes the channel; comods, roles, and moderation logs cascade.
func (s *Store) DeleteChannel(ctx context.Context, id string) error {
	res := s.db.WithContext(ctx).Where("id = ?", id).Delete(&models.ModeratedChannel{})
	if res.Error != nil {
		return fmt.Errorf("deleting channel %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("channel %s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *Store) AddComod(ctx context.Context, c *models.Comod) error {
	res := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(c)
	return res.Error
}

func (s *Store) AddRole(ctx context.Context, r *models.Role) error {
	return s.db.WithContext(ctx).Create(r).Error
}

func (s *Store) IsComod(ctx context.Context, channelID string, fid int64) (bool, error) {
	var n int64
	err := s.db.WithContext(ctx).Model(&models.Comod{}).
		Where("channel_id = ? AND fid = ?", channelID, fid).
		Count(&n).Error
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// Permissions granted to the user through any role they are a delegate of, in the given channel
func (s *Store) DelegatePermissions(ctx context.Context, channelID string, fid int64) ([]string, error) {
	var perms []string
	err := s.db.WithContext(ctx).Model(&models.Role{}).
		Joins("JOIN delegates ON delegates.role_id = roles.id").
		Where("roles.channel_id = ? AND delegates.fid = ?", channelID, fid).
		Pluck("roles.permissions", &perms).Error
	if err != nil {
		return nil, err
	}
	return perms, nil
}
