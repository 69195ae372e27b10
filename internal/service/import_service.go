package service

import (
	"PromptVault/internal/api/dto"
	"PromptVault/internal/model"
	"PromptVault/internal/pkg/promptmeta"
	"PromptVault/internal/pkg/storage"
	"PromptVault/internal/repository"
	"context"
	"errors"
	log "log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// errDryRunRollback 仅用于触发事务回滚，不对外暴露
var errDryRunRollback = errors.New("dry run rollback")

type ImportOptions struct {
	// SourceDir 旧数据媒体文件所在目录
	SourceDir string
	// DryRun 只做校验与换算，结束时回滚所有写入
	DryRun bool
}

type ImportService interface {
	ImportLegacyJSON(ctx context.Context, data []byte, opts *ImportOptions) (*dto.ImportResultDTO, error)
}

type importServiceImpl struct {
	db *gorm.DB
}

func NewImportService(db *gorm.DB) ImportService {
	return &importServiceImpl{db: db}
}

// legacyDocument 旧版导出文件的顶层结构
type legacyDocument struct {
	Image []legacyEntry `json:"image"`
}

type legacyEntry struct {
	ID            string          `json:"id"`
	File          string          `json:"file"`
	Prompt        json.RawMessage `json:"prompt"`
	Tags          []string        `json:"tags"`
	Rating        *float64        `json:"rating"`
	Date          *string         `json:"date"`
	AIModel       *string         `json:"ai_model"`
	Notes         *string         `json:"notes"`
	MediaType     string          `json:"media_type"`
	ThumbnailFile *string         `json:"thumbnail_file"`
}

// legacyTarget 第一阶段产出的 旧 id -> 新记录 映射值
type legacyTarget struct {
	NewID     string
	FileName  string
	Thumbnail string
}

// pendingRef 第二阶段待改写引用的记录
type pendingRef struct {
	record   *model.MediaRecord
	legacyID string
}

// ImportLegacyJSON 两阶段导入旧版 JSON 元数据：
// 第一阶段逐条换算并入库，同时记录旧 id 映射；
// 第二阶段把引用中的旧 id 改写为真实 id，并补齐继承的缩略图。
func (s *importServiceImpl) ImportLegacyJSON(ctx context.Context, data []byte, opts *ImportOptions) (*dto.ImportResultDTO, error) {
	if opts == nil {
		opts = &ImportOptions{}
	}

	var doc legacyDocument
	if err := json.Unmarshal(data, &doc); err != nil || doc.Image == nil {
		return nil, ErrParamInvalid
	}

	sourceDir, err := filepath.Abs(opts.SourceDir)
	if err != nil {
		return nil, err
	}

	result := &dto.ImportResultDTO{DryRun: opts.DryRun}
	var copied []string

	err = s.db.Transaction(func(tx *gorm.DB) error {
		mediaRepo := repository.NewMediaRepository(tx)
		tagSvc := NewTagService(repository.NewTagRepository(tx))

		mapping := make(map[string]*legacyTarget, len(doc.Image))
		var pending []pendingRef

		// 第一阶段：任何一条失败即整批失败
		for _, entry := range doc.Image {
			record, storedThumb, err := s.convertEntry(ctx, &entry, sourceDir, opts.DryRun, &copied)
			if err != nil {
				return err
			}

			tags, err := tagSvc.EnsureTags(ctx, entry.Tags)
			if err != nil {
				return err
			}
			if err = mediaRepo.Create(ctx, record, tags); err != nil {
				return err
			}
			result.Imported++

			if entry.ID != "" {
				mapping[entry.ID] = &legacyTarget{
					NewID:     record.ID,
					FileName:  record.FileName,
					Thumbnail: storedThumb,
				}
			}
			if record.PromptMeta.Kind == promptmeta.KindRefs {
				pending = append(pending, pendingRef{record: record, legacyID: entry.ID})
			}
		}

		// 第二阶段：单条失败只跳过该条
		for _, item := range pending {
			if s.reconcileRecord(ctx, mediaRepo, item, mapping) {
				result.Reconciled++
			}
		}

		if opts.DryRun {
			return errDryRunRollback
		}
		return nil
	})

	if errors.Is(err, errDryRunRollback) {
		err = nil
	}
	if err != nil {
		// 事务已回滚，尽力清掉已经落盘的文件副本
		for _, name := range copied {
			if cleanErr := storage.Delete(name); cleanErr != nil {
				log.WarnContext(ctx, "failed to clean up imported file", "file", name, "err", cleanErr)
			}
		}
		return nil, err
	}
	return result, nil
}

// convertEntry 换算单条旧数据并把媒体文件复制进托管目录
func (s *importServiceImpl) convertEntry(ctx context.Context, entry *legacyEntry, sourceDir string, dryRun bool, copied *[]string) (*model.MediaRecord, string, error) {
	safeName, err := sanitizeLegacyName(entry.File)
	if err != nil {
		return nil, "", err
	}

	meta, err := promptmeta.Parse(entry.Prompt)
	if err != nil {
		log.WarnContext(ctx, "invalid prompt metadata in legacy entry", "file", entry.File, "err", err)
		return nil, "", ErrPromptMetaInvalid
	}

	mediaType := storage.InferMediaType(safeName)
	if entry.MediaType != "" {
		mediaType = model.MediaType(entry.MediaType)
		if !mediaType.Valid() {
			return nil, "", ErrParamInvalid
		}
	}

	rating, err := NormalizeRating(entry.Rating)
	if err != nil {
		return nil, "", err
	}

	var capturedAt *time.Time
	if entry.Date != nil {
		if capturedAt, err = ParseTimestamp(*entry.Date); err != nil {
			return nil, "", err
		}
	}

	declaredThumb := ""
	if hasValue(entry.ThumbnailFile) {
		if declaredThumb, err = sanitizeLegacyName(*entry.ThumbnailFile); err != nil {
			return nil, "", err
		}
	}

	// 导入放宽规则：没有缩略图的视频必须至少带一个引用，
	// 留待第二阶段从被引用记录继承
	if mediaType == model.MediaTypeVideo && declaredThumb == "" && len(meta.Refs) == 0 {
		return nil, "", ErrThumbnailOrRefRequired
	}

	storedFile, err := s.stageFile(sourceDir, entry.File, safeName, dryRun, copied)
	if err != nil {
		return nil, "", err
	}
	storedThumb := ""
	if declaredThumb != "" {
		if storedThumb, err = s.stageFile(sourceDir, *entry.ThumbnailFile, declaredThumb, dryRun, copied); err != nil {
			return nil, "", err
		}
	}

	record := &model.MediaRecord{
		ID:         uuid.NewString(),
		FileName:   storedFile,
		MediaType:  mediaType,
		PromptText: meta.PromptText(),
		PromptMeta: meta,
		AIModel:    normalizeOptional(entry.AIModel),
		Notes:      normalizeOptional(entry.Notes),
		Rating:     rating,
		CapturedAt: capturedAt,
	}
	if storedThumb != "" {
		record.ThumbnailFile = &storedThumb
	}
	return record, storedThumb, nil
}

// stageFile 校验源文件后复制进托管目录；dryRun 只校验不复制
func (s *importServiceImpl) stageFile(sourceDir string, declaredName string, targetName string, dryRun bool, copied *[]string) (string, error) {
	source := filepath.Join(sourceDir, filepath.FromSlash(declaredName))
	if source != sourceDir && !strings.HasPrefix(source, sourceDir+string(filepath.Separator)) {
		return "", ErrSourceEscapesDir
	}
	if _, err := os.Stat(source); err != nil {
		return "", ErrSourceFileMissing
	}
	if dryRun {
		return targetName, nil
	}

	storedName, err := storage.CopyIntoManaged(source, targetName)
	if err != nil {
		return "", err
	}
	*copied = append(*copied, storedName)
	return storedName, nil
}

// reconcileRecord 改写单条记录的引用并继承缩略图，返回是否成功
func (s *importServiceImpl) reconcileRecord(ctx context.Context, mediaRepo repository.MediaRepo, item pendingRef, mapping map[string]*legacyTarget) bool {
	record := item.record

	var resolved []promptmeta.Reference
	var firstTarget *legacyTarget
	for _, ref := range record.PromptMeta.Refs {
		target, ok := mapping[ref.ID]
		if !ok {
			// 旧引用图允许残缺，解析不到就丢弃
			continue
		}
		rewritten := promptmeta.Reference{ID: target.NewID}
		if len(ref.Fields) > 0 {
			rewritten.Fields = make(map[string]any, len(ref.Fields))
			for k, v := range ref.Fields {
				rewritten.Fields[k] = v
			}
		}
		resolved = append(resolved, rewritten)
		if firstTarget == nil {
			firstTarget = target
		}
	}
	if len(resolved) == 0 {
		return false
	}

	record.PromptMeta = promptmeta.NewRefs(resolved, record.PromptMeta.Text)

	if !hasValue(record.ThumbnailFile) {
		inherited := firstTarget.Thumbnail
		if inherited == "" {
			inherited = firstTarget.FileName
		}
		record.ThumbnailFile = &inherited
		// 同步进映射表，让后续引用本记录的条目也能继承
		if item.legacyID != "" {
			if self, ok := mapping[item.legacyID]; ok {
				self.Thumbnail = inherited
			}
		}
	}

	if err := mediaRepo.Update(ctx, record, nil, false); err != nil {
		log.WarnContext(ctx, "failed to reconcile imported record", "id", record.ID, "err", err)
		return false
	}
	return true
}

func sanitizeLegacyName(name string) (string, error) {
	safeName, err := storage.SanitizeName(name)
	if err != nil {
		return "", ErrFileNameInvalid
	}
	return safeName, nil
}
