package model

import "gorm.io/gorm"

// Migrate 建表/同步表结构
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&MediaRecord{}, &Tag{}, &MediaTag{})
}
