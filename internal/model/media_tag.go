package model

type MediaTag struct {
	MediaID string `gorm:"type:varchar(36);primaryKey" json:"mediaId"`
	TagID   uint64 `gorm:"primaryKey;index:idx_tag_id" json:"tagId"`
}

func (MediaTag) TableName() string {
	return "media_tags"
}
