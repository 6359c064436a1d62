package modstore

import (
	"context"
	"fmt"

	"github.com/castmod/castmod/models"
)

func (s *Store) InsertLog(ctx context.Context, entry *models.ModerationLog) error {
	if err := s.db.WithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("writing moderation log: %w", err)
	}
	return nil
}

type LogPage struct {
	Logs     []models.ModerationLog `json:"logs"`
	Page     int                    `json:"page"`
	PageSize int                    `json:"pageSize"`
	Total    int64                  `json:"total"`
	NextPage *int                   `json:"nextPage"`
}

// Clamps paging parameters: page is at least 1; a page size of zero (or less) means the default, and sizes over the maximum are capped.
func NormalizePaging(page, pageSize int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if pageSize > MaxPageSize {
		pageSize = MaxPageSize
	}
	return page, pageSize
}

// One page of a channel's moderation log, newest first.
func (s *Store) ListLogs(ctx context.Context, channelID string, page, pageSize int) (*LogPage, error) {
	page, pageSize = NormalizePaging(page, pageSize)

	var total int64
	if err := s.db.WithContext(ctx).Model(&models.ModerationLog{}).Where("channel_id = ?", channelID).Count(&total).Error; err != nil {
		return nil, fmt.Errorf("counting moderation logs: %w", err)
	}

	logs := []models.ModerationLog{}
	err := s.db.WithContext(ctx).
		Where("channel_id = ?", channelID).
		Order("created_at desc").
		Order("id desc").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&logs).Error
	if err != nil {
		return nil, fmt.Errorf("listing moderation logs: %w", err)
	}

	out := &LogPage{
		Logs:     logs,
		Page:     page,
		PageSize: pageSize,
		Total:    total,
	}
	if int64(page*pageSize) < total {
		next := page + 1
		out.NextPage = &next
	}
	return out, nil
}
