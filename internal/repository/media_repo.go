package repository

import (
	"PromptVault/internal/model"
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
)

// MediaFilters 列表过滤条件，标签名须已归一化
type MediaFilters struct {
	Q         string
	Tags      []string
	RatingMin *float64
	RatingMax *float64
	DateFrom  *time.Time
	DateTo    *time.Time
	MediaType *model.MediaType
	Limit     int
	Offset    int
}

type MediaRepo interface {
	Create(ctx context.Context, record *model.MediaRecord, tags []*model.Tag) error
	Get(ctx context.Context, id string) (*model.MediaRecord, error)
	Update(ctx context.Context, record *model.MediaRecord, tags []*model.Tag, replaceTags bool) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, filters *MediaFilters) ([]*model.MediaRecord, int64, error)
	ListDependents(ctx context.Context, id string) ([]*model.MediaRecord, error)
}

type mediaRepoImpl struct {
	db *gorm.DB
}

func NewMediaRepository(db *gorm.DB) MediaRepo {
	return &mediaRepoImpl{
		db: db,
	}
}

func (s *mediaRepoImpl) Create(ctx context.Context, record *model.MediaRecord, tags []*model.Tag) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Tags").Create(record).Error; err != nil {
			return err
		}
		return createTagLinks(tx, record.ID, tags)
	})
}

// Get 返回记录及标签，未找到时返回 (nil, nil)
func (s *mediaRepoImpl) Get(ctx context.Context, id string) (*model.MediaRecord, error) {
	var record model.MediaRecord
	err := s.db.WithContext(ctx).Preload("Tags").Where("id = ?", id).First(&record).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &record, nil
}

// Update 全量写回记录字段；replaceTags 为 true 时重建标签关联
func (s *mediaRepoImpl) Update(ctx context.Context, record *model.MediaRecord, tags []*model.Tag, replaceTags bool) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Omit("Tags").Save(record).Error; err != nil {
			return err
		}
		if !replaceTags {
			return nil
		}
		if err := tx.Delete(&model.MediaTag{}, "media_id = ?", record.ID).Error; err != nil {
			return err
		}
		return createTagLinks(tx, record.ID, tags)
	})
}

// Delete 在同一事务中移除标签关联与记录本身
func (s *mediaRepoImpl) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Delete(&model.MediaTag{}, "media_id = ?", id).Error; err != nil {
			return err
		}
		return tx.Delete(&model.MediaRecord{}, "id = ?", id).Error
	})
}

// List 按过滤条件返回一页记录和未分页的总数
func (s *mediaRepoImpl) List(ctx context.Context, filters *MediaFilters) ([]*model.MediaRecord, int64, error) {
	if filters == nil {
		filters = &MediaFilters{Limit: 20}
	}

	var total int64
	err := applyFilters(s.db.WithContext(ctx).Model(&model.MediaRecord{}), filters).
		Count(&total).Error
	if err != nil {
		return nil, 0, err
	}

	var records []*model.MediaRecord
	query := applyFilters(s.db.WithContext(ctx).Model(&model.MediaRecord{}), filters).
		Preload("Tags").
		Order("captured_at IS NULL").
		Order("captured_at DESC").
		Order("created_at DESC")
	if filters.Limit > 0 {
		query = query.Limit(filters.Limit)
	}
	if filters.Offset > 0 {
		query = query.Offset(filters.Offset)
	}
	if err = query.Find(&records).Error; err != nil {
		return nil, 0, err
	}

	return records, total, nil
}

// ListDependents 返回引用列表中指向 id 的记录。
// LIKE 先粗筛 JSON 列，调用方再解析引用做精确确认
func (s *mediaRepoImpl) ListDependents(ctx context.Context, id string) ([]*model.MediaRecord, error) {
	var records []*model.MediaRecord
	err := s.db.WithContext(ctx).
		Where("prompt_meta LIKE ?", `%"id":"`+id+`"%`).
		Order("created_at DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}
	return records, nil
}

func applyFilters(query *gorm.DB, filters *MediaFilters) *gorm.DB {
	if q := strings.ToLower(strings.TrimSpace(filters.Q)); q != "" {
		like := "%" + q + "%"
		query = query.Where(
			"LOWER(prompt_text) LIKE ? OR LOWER(notes) LIKE ? OR LOWER(ai_model) LIKE ?",
			like, like, like,
		)
	}

	if filters.RatingMin != nil {
		query = query.Where("rating >= ?", *filters.RatingMin)
	}
	if filters.RatingMax != nil {
		query = query.Where("rating <= ?", *filters.RatingMax)
	}

	if filters.DateFrom != nil {
		query = query.Where("captured_at >= ?", *filters.DateFrom)
	}
	if filters.DateTo != nil {
		query = query.Where("captured_at <= ?", *filters.DateTo)
	}

	// 标签为 AND 语义：命中的不同标签数必须等于请求的标签数
	if len(filters.Tags) > 0 {
		sub := query.Session(&gorm.Session{NewDB: true}).
			Table("media_tags").
			Select("media_tags.media_id").
			Joins("JOIN tags ON tags.id = media_tags.tag_id").
			Where("tags.name IN ?", filters.Tags).
			Group("media_tags.media_id").
			Having("COUNT(DISTINCT tags.name) = ?", len(filters.Tags))
		query = query.Where("media_records.id IN (?)", sub)
	}

	if filters.MediaType != nil {
		query = query.Where("media_type = ?", *filters.MediaType)
	}

	return query
}

func createTagLinks(tx *gorm.DB, mediaID string, tags []*model.Tag) error {
	if len(tags) == 0 {
		return nil
	}
	links := make([]*model.MediaTag, 0, len(tags))
	for _, tag := range tags {
		links = append(links, &model.MediaTag{MediaID: mediaID, TagID: tag.ID})
	}
	return tx.Create(links).Error
}
