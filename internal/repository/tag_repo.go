package repository

import (
	"PromptVault/internal/model"
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// TagUsage 标签及其引用计数
type TagUsage struct {
	Name  string
	Count int64
}

type TagRepo interface {
	GetOrCreateTags(ctx context.Context, tagNames []string) ([]*model.Tag, error)
	ListUsage(ctx context.Context) ([]*TagUsage, error)
}

type tagRepoImpl struct {
	db *gorm.DB
}

func NewTagRepository(db *gorm.DB) TagRepo {
	return &tagRepoImpl{
		db: db,
	}
}

// GetOrCreateTags 按名称获取或创建标签。
// 使用 OnConflict DoNothing 插入后再读回，避免并发创建时报唯一键冲突
func (s *tagRepoImpl) GetOrCreateTags(ctx context.Context, tagNames []string) ([]*model.Tag, error) {
	if len(tagNames) == 0 {
		return nil, nil
	}

	for _, tagName := range tagNames {
		tag := model.Tag{
			Name:      tagName,
			CreatedAt: time.Now(),
		}
		err := s.db.WithContext(ctx).Clauses(clause.OnConflict{DoNothing: true}).Create(&tag).Error
		if err != nil {
			return nil, err
		}
	}

	var tags []*model.Tag
	err := s.db.WithContext(ctx).Where("name IN ?", tagNames).Order("name").Find(&tags).Error
	if err != nil {
		return nil, err
	}

	return tags, nil
}

// ListUsage 列出全部标签及引用数量，按名称排序
func (s *tagRepoImpl) ListUsage(ctx context.Context) ([]*TagUsage, error) {
	var usages []*TagUsage
	err := s.db.WithContext(ctx).
		Model(&model.Tag{}).
		Select("tags.name AS name, COUNT(media_tags.media_id) AS count").
		Joins("LEFT JOIN media_tags ON media_tags.tag_id = tags.id").
		Group("tags.id").
		Order("tags.name").
		Scan(&usages).Error
	if err != nil {
		return nil, err
	}
	return usages, nil
}
