package job

import (
	"PromptVault/internal/model"
	"PromptVault/internal/pkg/storage"
	"context"
	log "log/slog"
	"os"
	"path/filepath"
	"time"

	"gorm.io/gorm"
)

// OrphanCleanJob 清理托管目录里没有任何记录引用的媒体文件
type OrphanCleanJob struct {
	db *gorm.DB
}

func NewOrphanCleanJob(db *gorm.DB) *OrphanCleanJob {
	return &OrphanCleanJob{db: db}
}

// graceWindow 新上传的文件可能尚未关联记录，先放过一段时间
const graceWindow = 24 * time.Hour

func (s *OrphanCleanJob) Run() {
	ctx := context.Background()
	log.InfoContext(ctx, "start orphan media cleanup job")

	referenced, err := s.referencedFiles(ctx)
	if err != nil {
		log.ErrorContext(ctx, "failed to collect referenced files", "err", err)
		return
	}

	entries, err := os.ReadDir(storage.MediaDir())
	if err != nil {
		log.ErrorContext(ctx, "failed to read media dir", "err", err)
		return
	}

	cutoff := time.Now().Add(-graceWindow)
	count := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if referenced[name] {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err = os.Remove(filepath.Join(storage.MediaDir(), name)); err != nil {
			log.WarnContext(ctx, "failed to remove orphan file", "file", name, "err", err)
			continue
		}
		count++
	}

	if count > 0 {
		log.InfoContext(ctx, "orphan media cleanup finished", "cleaned_count", count)
	}
}

func (s *OrphanCleanJob) referencedFiles(ctx context.Context) (map[string]bool, error) {
	var fileNames []string
	if err := s.db.WithContext(ctx).Model(&model.MediaRecord{}).Pluck("file_name", &fileNames).Error; err != nil {
		return nil, err
	}
	var thumbNames []string
	if err := s.db.WithContext(ctx).Model(&model.MediaRecord{}).
		Where("thumbnail_file IS NOT NULL").Pluck("thumbnail_file", &thumbNames).Error; err != nil {
		return nil, err
	}

	referenced := make(map[string]bool, len(fileNames)+len(thumbNames))
	for _, name := range fileNames {
		referenced[name] = true
	}
	for _, name := range thumbNames {
		referenced[name] = true
	}
	return referenced, nil
}
