package service_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"PromptVault/internal/model"
	"PromptVault/internal/pkg/promptmeta"
	"PromptVault/internal/pkg/storage"
	"PromptVault/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newSourceDir(t *testing.T, names ...string) string {
	t.Helper()
	dir := t.TempDir()
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("media "+name), 0o644))
	}
	return dir
}

func countRecords(t *testing.T, db *gorm.DB) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Model(&model.MediaRecord{}).Count(&count).Error)
	return count
}

func findByFile(t *testing.T, db *gorm.DB, fileName string) *model.MediaRecord {
	t.Helper()
	var record model.MediaRecord
	require.NoError(t, db.Where("file_name = ?", fileName).First(&record).Error)
	return &record
}

func TestImportRemapsReferencesAndBackfillsThumbnail(t *testing.T) {
	db := newTestDB(t)
	importSvc := service.NewImportService(db)
	sourceDir := newSourceDir(t, "base.png", "dep.mp4")

	legacy := []byte(`{
		"image": [
			{
				"id": "base",
				"file": "base.png",
				"prompt": "base prompt",
				"tags": ["Fantasy"],
				"rating": 4.26,
				"date": "2024-03-15T12:34:56Z"
			},
			{
				"id": "dep",
				"file": "dep.mp4",
				"prompt": [{"id": "base", "weight": 0.7}, "derived prompt"]
			}
		]
	}`)

	result, err := importSvc.ImportLegacyJSON(context.Background(), legacy, &service.ImportOptions{SourceDir: sourceDir})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Reconciled)
	assert.False(t, result.DryRun)

	base := findByFile(t, db, "base.png")
	assert.Equal(t, model.MediaTypeImage, base.MediaType)
	assert.Equal(t, "base prompt", base.PromptText)
	assert.Equal(t, 4.3, *base.Rating)
	require.NotNil(t, base.CapturedAt)

	dep := findByFile(t, db, "dep.mp4")
	assert.Equal(t, model.MediaTypeVideo, dep.MediaType)
	assert.Equal(t, "derived prompt", dep.PromptText)

	// 引用里的旧 id 被改写为真实 id，额外字段保留
	require.Equal(t, promptmeta.KindRefs, dep.PromptMeta.Kind)
	require.Len(t, dep.PromptMeta.Refs, 1)
	assert.Equal(t, base.ID, dep.PromptMeta.Refs[0].ID)
	assert.Equal(t, 0.7, dep.PromptMeta.Refs[0].Fields["weight"])

	// 视频没有自带缩略图，从被引用记录的文件名继承
	require.NotNil(t, dep.ThumbnailFile)
	assert.Equal(t, "base.png", *dep.ThumbnailFile)

	// 文件已复制进托管目录
	_, err = os.Stat(filepath.Join(storage.MediaDir(), "base.png"))
	assert.NoError(t, err)
	_, err = os.Stat(filepath.Join(storage.MediaDir(), "dep.mp4"))
	assert.NoError(t, err)
}

func TestImportTransitiveThumbnailInheritance(t *testing.T) {
	db := newTestDB(t)
	importSvc := service.NewImportService(db)
	sourceDir := newSourceDir(t, "root.png", "mid.mp4", "leaf.mp4")

	legacy := []byte(`{
		"image": [
			{"id": "root", "file": "root.png", "prompt": "root"},
			{"id": "mid", "file": "mid.mp4", "prompt": [{"id": "root"}, "mid"]},
			{"id": "leaf", "file": "leaf.mp4", "prompt": [{"id": "mid"}, "leaf"]}
		]
	}`)

	result, err := importSvc.ImportLegacyJSON(context.Background(), legacy, &service.ImportOptions{SourceDir: sourceDir})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 2, result.Reconciled)

	mid := findByFile(t, db, "mid.mp4")
	leaf := findByFile(t, db, "leaf.mp4")

	require.NotNil(t, mid.ThumbnailFile)
	assert.Equal(t, "root.png", *mid.ThumbnailFile)

	// 第三条记录透过中间记录也能拿到解析后的缩略图
	require.NotNil(t, leaf.ThumbnailFile)
	assert.Equal(t, "root.png", *leaf.ThumbnailFile)
}

func TestImportDropsUnknownReferences(t *testing.T) {
	db := newTestDB(t)
	importSvc := service.NewImportService(db)
	sourceDir := newSourceDir(t, "base.png", "mixed.png", "orphan.png")

	legacy := []byte(`{
		"image": [
			{"id": "base", "file": "base.png", "prompt": "base"},
			{"id": "mixed", "file": "mixed.png", "prompt": [{"id": "missing"}, {"id": "base"}, "mixed"]},
			{"id": "orphan", "file": "orphan.png", "prompt": [{"id": "nowhere"}, "orphan"]}
		]
	}`)

	result, err := importSvc.ImportLegacyJSON(context.Background(), legacy, &service.ImportOptions{SourceDir: sourceDir})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Imported)
	assert.Equal(t, 1, result.Reconciled)

	base := findByFile(t, db, "base.png")

	// 解析不到的引用被丢弃，能解析的保留
	mixed := findByFile(t, db, "mixed.png")
	require.Equal(t, promptmeta.KindRefs, mixed.PromptMeta.Kind)
	require.Len(t, mixed.PromptMeta.Refs, 1)
	assert.Equal(t, base.ID, mixed.PromptMeta.Refs[0].ID)

	// 一个引用都解析不到时元数据保持原样
	orphan := findByFile(t, db, "orphan.png")
	require.Equal(t, promptmeta.KindRefs, orphan.PromptMeta.Kind)
	assert.Equal(t, "nowhere", orphan.PromptMeta.Refs[0].ID)
}

func TestImportDryRunLeavesStoreEmpty(t *testing.T) {
	db := newTestDB(t)
	importSvc := service.NewImportService(db)
	sourceDir := newSourceDir(t, "base.png", "dep.png")

	legacy := []byte(`{
		"image": [
			{"id": "base", "file": "base.png", "prompt": "base"},
			{"id": "dep", "file": "dep.png", "prompt": [{"id": "base"}, "dep"]}
		]
	}`)

	result, err := importSvc.ImportLegacyJSON(context.Background(), legacy, &service.ImportOptions{
		SourceDir: sourceDir,
		DryRun:    true,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Imported)
	assert.Equal(t, 1, result.Reconciled)
	assert.True(t, result.DryRun)

	assert.Equal(t, int64(0), countRecords(t, db))

	// 试运行也不会复制任何文件
	entries, err := os.ReadDir(storage.MediaDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImportVideoWithoutThumbnailOrReferenceFailsBatch(t *testing.T) {
	db := newTestDB(t)
	importSvc := service.NewImportService(db)
	sourceDir := newSourceDir(t, "ok.png", "bad.mp4")

	legacy := []byte(`{
		"image": [
			{"id": "ok", "file": "ok.png", "prompt": "fine"},
			{"id": "bad", "file": "bad.mp4", "prompt": "no refs"}
		]
	}`)

	_, err := importSvc.ImportLegacyJSON(context.Background(), legacy, &service.ImportOptions{SourceDir: sourceDir})
	assert.ErrorIs(t, err, service.ErrThumbnailOrRefRequired)

	// 整批回滚，之前复制的文件也被清理
	assert.Equal(t, int64(0), countRecords(t, db))
	entries, err := os.ReadDir(storage.MediaDir())
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestImportRejectsBadSourcePaths(t *testing.T) {
	db := newTestDB(t)
	importSvc := service.NewImportService(db)
	sourceDir := newSourceDir(t)

	_, err := importSvc.ImportLegacyJSON(context.Background(), []byte(`{
		"image": [{"id": "a", "file": "../escape.png", "prompt": "p"}]
	}`), &service.ImportOptions{SourceDir: sourceDir})
	assert.ErrorIs(t, err, service.ErrSourceEscapesDir)

	_, err = importSvc.ImportLegacyJSON(context.Background(), []byte(`{
		"image": [{"id": "a", "file": "missing.png", "prompt": "p"}]
	}`), &service.ImportOptions{SourceDir: sourceDir})
	assert.ErrorIs(t, err, service.ErrSourceFileMissing)

	_, err = importSvc.ImportLegacyJSON(context.Background(), []byte(`{"not_image": []}`), nil)
	assert.ErrorIs(t, err, service.ErrParamInvalid)
}

func TestImportVideoKeepsDeclaredThumbnail(t *testing.T) {
	db := newTestDB(t)
	importSvc := service.NewImportService(db)
	sourceDir := newSourceDir(t, "clip.mp4", "clip_thumb.png")

	legacy := []byte(`{
		"image": [
			{
				"id": "clip",
				"file": "clip.mp4",
				"media_type": "video",
				"thumbnail_file": "clip_thumb.png",
				"prompt": "standalone clip"
			}
		]
	}`)

	result, err := importSvc.ImportLegacyJSON(context.Background(), legacy, &service.ImportOptions{SourceDir: sourceDir})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Imported)
	assert.Equal(t, 0, result.Reconciled)

	clip := findByFile(t, db, "clip.mp4")
	require.NotNil(t, clip.ThumbnailFile)
	assert.Equal(t, "clip_thumb.png", *clip.ThumbnailFile)
}
