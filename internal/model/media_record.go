package model

import (
	"time"

	"PromptVault/internal/pkg/promptmeta"
)

// MediaType 媒体类型
type MediaType string

const (
	MediaTypeImage MediaType = "image"
	MediaTypeVideo MediaType = "video"
)

func (t MediaType) Valid() bool {
	return t == MediaTypeImage || t == MediaTypeVideo
}

// MediaRecord 目录条目，文件本体由存储目录管理，这里只存元数据
type MediaRecord struct {
	ID            string          `gorm:"type:varchar(36);primaryKey" json:"id"`
	FileName      string          `gorm:"type:varchar(255);not null" json:"file_name"`
	MediaType     MediaType       `gorm:"type:varchar(16);not null;default:image;index:idx_media_type" json:"media_type"`
	PromptText    string          `gorm:"not null" json:"prompt_text"`
	PromptMeta    promptmeta.Meta `json:"prompt_meta"`
	AIModel       *string         `gorm:"type:varchar(255)" json:"ai_model"`
	Notes         *string         `json:"notes"`
	Rating        *float64        `json:"rating"`
	ThumbnailFile *string         `gorm:"type:varchar(255)" json:"thumbnail_file"`
	CapturedAt    *time.Time      `gorm:"index:idx_captured_at" json:"captured_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`

	// 关联关系
	Tags []Tag `gorm:"many2many:media_tags;joinForeignKey:MediaID;joinReferences:TagID"`
}

func (MediaRecord) TableName() string {
	return "media_records"
}
