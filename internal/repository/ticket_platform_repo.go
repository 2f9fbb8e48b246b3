package repository

import (
	"context"
	"errors"
	"fmt"

	"ticketrecon/internal/model"
	"ticketrecon/internal/platform"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type TicketPlatformRepository struct {
	db *gorm.DB
}

func NewTicketPlatformRepository(db *gorm.DB) *TicketPlatformRepository {
	return &TicketPlatformRepository{db: db}
}

// Upsert 同一活动同一平台只保留一条关联，重复写入时更新平台活动ID
func (r *TicketPlatformRepository) Upsert(ctx context.Context, link *model.TicketPlatform) error {
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "event_id"}, {Name: "platform"}},
			DoUpdates: clause.AssignmentColumns([]string{"external_event_id", "is_primary", "updated_at"}),
		}).
		Create(link).Error
}

// ExternalEventID 实现 platform.EventLinkResolver
func (r *TicketPlatformRepository) ExternalEventID(ctx context.Context, eventID, platformName string) (string, error) {
	var link model.TicketPlatform
	err := r.db.WithContext(ctx).
		Where("event_id = ? AND platform = ?", eventID, platformName).
		First(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return "", fmt.Errorf("%w: %s/%s", platform.ErrEventNotLinked, eventID, platformName)
		}
		return "", err
	}
	return link.ExternalEventID, nil
}

func (r *TicketPlatformRepository) ListByEvent(ctx context.Context, eventID string) ([]*model.TicketPlatform, error) {
	var links []*model.TicketPlatform
	err := r.db.WithContext(ctx).
		Where("event_id = ?", eventID).
		Order("is_primary DESC, platform ASC").
		Find(&links).Error
	return links, err
}

// ListByPlatforms 定时对账使用，按活动分组顺序返回
func (r *TicketPlatformRepository) ListByPlatforms(ctx context.Context, platforms []string) ([]*model.TicketPlatform, error) {
	var links []*model.TicketPlatform
	if len(platforms) == 0 {
		return links, nil
	}
	err := r.db.WithContext(ctx).
		Where("platform IN ?", platforms).
		Order("event_id ASC, platform ASC").
		Find(&links).Error
	return links, err
}
