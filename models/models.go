package models

import (
	"time"
)

// Channel under moderation. Aggregate root: comods, roles, and moderation logs belong to it and are removed with it.
type ModeratedChannel struct {
	// channel identifier on the social network (eg, "memes")
	ID string `gorm:"primaryKey"`
	// channel lead; exclusively owns delete and transfer
	UserFid           int64 `gorm:"not null;index"`
	Active            bool  `gorm:"not null"`
	DisableBannedList bool  `gorm:"not null;default:false"`
	AutoInvite        bool  `gorm:"not null;default:false"`
	// JSON-encoded registry.RuleGroup, evaluated for join and invite requests
	MemberRules string
	// JSON-encoded registry.RuleGroup, evaluated for new casts
	CastRules string
	// hideQuietly|warnAndHide|mute|cooldown
	CastAction    string `gorm:"not null;default:hideQuietly"`
	CooldownHours int    `gorm:"not null;default:24"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Comods []Comod `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE"`
	Roles  []Role  `gorm:"foreignKey:ChannelID;constraint:OnDelete:CASCADE"`
}

// Co-moderator: may perform every moderation action on the channel
type Comod struct {
	ID        uint64 `gorm:"primaryKey"`
	ChannelID string `gorm:"not null;uniqueIndex:idx_comod_channel_fid"`
	Fid       int64  `gorm:"not null;uniqueIndex:idx_comod_channel_fid"`
	Username  string
	CreatedAt time.Time
}

// Named permission grant within a channel, held by a set of delegates
type Role struct {
	ID        uint64 `gorm:"primaryKey"`
	ChannelID string `gorm:"not null;index"`
	Name      string `gorm:"not null"`
	// comma-separated manual action names (eg, "cooldown,mute,unhide")
	Permissions string
	CreatedAt   time.Time

	Delegates []Delegate `gorm:"foreignKey:RoleID;constraint:OnDelete:CASCADE"`
}

type Delegate struct {
	ID        uint64 `gorm:"primaryKey"`
	RoleID    uint64 `gorm:"not null;uniqueIndex:idx_delegate_role_fid"`
	ChannelID string `gorm:"not null;index"`
	Fid       int64  `gorm:"not null;uniqueIndex:idx_delegate_role_fid"`
	Username  string
	CreatedAt time.Time
}

// All tables, for AutoMigrate
func AllModels() []any {
	return []any{
		&ModeratedChannel{},
		&Comod{},
		&Role{},
		&Delegate{},
		&Cooldown{},
		&ModerationLog{},
	}
}
