package models

import (
	"time"
)

// Moderation log action values
const (
	ActionCooldown      = "cooldown"
	ActionCooldownEnded = "cooldownEnded"
	ActionMute          = "mute"
	ActionUnmuted       = "unmuted"
	ActionHideQuietly   = "hideQuietly"
	ActionWarnAndHide   = "warnAndHide"
	ActionUnhide        = "unhide"
)

// Cooldown or mute state for a user in a channel. At most one row per (user, channel); a mute is a row with no expiry.
type Cooldown struct {
	ID              uint64 `gorm:"primaryKey"`
	AffectedUserFid int64  `gorm:"not null;uniqueIndex:idx_cooldown_user_channel"`
	ChannelID       string `gorm:"not null;uniqueIndex:idx_cooldown_user_channel;index"`
	Active          bool   `gorm:"not null;default:false;index"`
	ExpiresAt       *time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (c *Cooldown) IsMute() bool {
	return c.ExpiresAt == nil
}

// Whether the restriction applies at the given time
func (c *Cooldown) InEffect(now time.Time) bool {
	if !c.Active {
		return false
	}
	return c.ExpiresAt == nil || c.ExpiresAt.After(now)
}

// Append-only audit entry. Rows are inserted once per state transition and never updated.
type ModerationLog struct {
	ID                    uint64    `gorm:"primaryKey" json:"id"`
	Action                string    `gorm:"not null" json:"action"`
	AffectedUserFid       int64     `gorm:"not null;index" json:"affectedUserFid"`
	AffectedUsername      string    `json:"affectedUsername"`
	AffectedUserAvatarURL string    `json:"affectedUserAvatarUrl"`
	Actor                 string    `gorm:"not null" json:"actor"`
	ChannelID             string    `gorm:"not null;index:idx_modlog_channel_created" json:"channelId"`
	Reason                string    `json:"reason"`
	CastHash              *string   `json:"castHash,omitempty"`
	CreatedAt             time.Time `gorm:"not null;index:idx_modlog_channel_created" json:"createdAt"`

	Channel *ModeratedChannel `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE" json:"-"`
}
