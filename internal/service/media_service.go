package service

import (
	"PromptVault/internal/api/dto"
	"PromptVault/internal/model"
	"PromptVault/internal/pkg/promptmeta"
	"PromptVault/internal/pkg/storage"
	"PromptVault/internal/repository"
	"context"
	log "log/slog"
	"math"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jinzhu/copier"
)

type MediaService interface {
	CreateRecord(ctx context.Context, createDTO *dto.MediaCreateDTO) (*dto.MediaRecordDTO, error)
	GetRecord(ctx context.Context, id string) (*dto.MediaDetailDTO, error)
	ListRecords(ctx context.Context, query *dto.MediaListQueryDTO) (*dto.MediaListDTO, error)
	UpdateRecord(ctx context.Context, id string, updateDTO *dto.MediaUpdateDTO) (*dto.MediaRecordDTO, error)
	ReplaceFile(ctx context.Context, id string, storedName string) (*dto.MediaRecordDTO, error)
	DeleteRecord(ctx context.Context, id string) error
}

type mediaServiceImpl struct {
	mediaRepo repository.MediaRepo
	tagSvc    TagService
}

func NewMediaService(mediaRepo repository.MediaRepo, tagSvc TagService) MediaService {
	return &mediaServiceImpl{
		mediaRepo: mediaRepo,
		tagSvc:    tagSvc,
	}
}

// NormalizeRating 校验评分范围并保留一位小数
func NormalizeRating(rating *float64) (*float64, error) {
	if rating == nil {
		return nil, nil
	}
	if math.IsNaN(*rating) || *rating < 0 || *rating > 5 {
		return nil, ErrRatingInvalid
	}
	rounded := math.Round(*rating*10) / 10
	return &rounded, nil
}

// ParseTimestamp 解析 ISO-8601 时间，空串返回 nil
func ParseTimestamp(value string) (*time.Time, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil, nil
	}
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, value); err == nil {
			return &t, nil
		}
	}
	return nil, ErrTimestampInvalid
}

func parsePromptMeta(raw json.RawMessage) (promptmeta.Meta, error) {
	meta, err := promptmeta.Parse(raw)
	if err != nil {
		return promptmeta.Meta{}, ErrPromptMetaInvalid
	}
	return meta, nil
}

// CreateRecord 创建目录记录
func (s *mediaServiceImpl) CreateRecord(ctx context.Context, createDTO *dto.MediaCreateDTO) (*dto.MediaRecordDTO, error) {
	if createDTO.FileName == "" {
		return nil, ErrParamInvalid
	}

	mediaType := createDTO.MediaType
	if mediaType == "" {
		mediaType = model.MediaTypeImage
	}
	if !mediaType.Valid() {
		return nil, ErrParamInvalid
	}

	meta, err := parsePromptMeta(createDTO.PromptMeta)
	if err != nil {
		return nil, err
	}

	rating, err := NormalizeRating(createDTO.Rating)
	if err != nil {
		return nil, err
	}

	// 视频必须带缩略图
	if mediaType == model.MediaTypeVideo && !hasValue(createDTO.ThumbnailFile) {
		return nil, ErrThumbnailRequired
	}

	promptText := createDTO.PromptText
	if promptText == "" {
		promptText = meta.PromptText()
	}

	tags, err := s.tagSvc.EnsureTags(ctx, createDTO.Tags)
	if err != nil {
		return nil, err
	}

	record := &model.MediaRecord{
		ID:            uuid.NewString(),
		FileName:      createDTO.FileName,
		MediaType:     mediaType,
		PromptText:    promptText,
		PromptMeta:    meta,
		AIModel:       createDTO.AIModel,
		Notes:         createDTO.Notes,
		Rating:        rating,
		ThumbnailFile: normalizeOptional(createDTO.ThumbnailFile),
		CapturedAt:    createDTO.CapturedAt,
	}

	if err = s.mediaRepo.Create(ctx, record, tags); err != nil {
		return nil, err
	}

	attachTags(record, tags)
	return toMediaDTO(record)
}

// GetRecord 获取记录详情与下游引用
func (s *mediaServiceImpl) GetRecord(ctx context.Context, id string) (*dto.MediaDetailDTO, error) {
	record, err := s.mediaRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}

	recordDTO, err := toMediaDTO(record)
	if err != nil {
		return nil, err
	}

	candidates, err := s.mediaRepo.ListDependents(ctx, id)
	if err != nil {
		return nil, err
	}

	dependents := make([]*dto.MediaDependentDTO, 0, len(candidates))
	for _, candidate := range candidates {
		if candidate.ID == id || !referencesRecord(candidate.PromptMeta, id) {
			continue
		}
		dependents = append(dependents, &dto.MediaDependentDTO{
			ID:            candidate.ID,
			PromptText:    candidate.PromptText,
			FileName:      candidate.FileName,
			ThumbnailFile: candidate.ThumbnailFile,
			MediaType:     candidate.MediaType,
			CapturedAt:    candidate.CapturedAt,
		})
	}

	return &dto.MediaDetailDTO{
		MediaRecordDTO: *recordDTO,
		Dependents:     dependents,
	}, nil
}

// ListRecords 过滤查询列表
func (s *mediaServiceImpl) ListRecords(ctx context.Context, query *dto.MediaListQueryDTO) (*dto.MediaListDTO, error) {
	page := query.Page
	if page < 1 {
		page = 1
	}
	pageSize := query.PageSize
	if pageSize < 1 {
		pageSize = 20
	}

	filters := &repository.MediaFilters{
		Q:         query.Q,
		RatingMin: query.RatingMin,
		RatingMax: query.RatingMax,
		Limit:     pageSize,
		Offset:    (page - 1) * pageSize,
	}

	if query.Tags != "" {
		filters.Tags = NormalizeTags(strings.Split(query.Tags, ","))
	}

	var err error
	if filters.DateFrom, err = ParseTimestamp(query.DateFrom); err != nil {
		return nil, err
	}
	if filters.DateTo, err = ParseTimestamp(query.DateTo); err != nil {
		return nil, err
	}

	if query.MediaType != "" {
		mediaType := model.MediaType(query.MediaType)
		if !mediaType.Valid() {
			return nil, ErrParamInvalid
		}
		filters.MediaType = &mediaType
	}

	records, total, err := s.mediaRepo.List(ctx, filters)
	if err != nil {
		return nil, err
	}

	items := make([]*dto.MediaRecordDTO, 0, len(records))
	for _, record := range records {
		item, err := toMediaDTO(record)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}

	return &dto.MediaListDTO{Items: items, Total: total}, nil
}

// UpdateRecord 部分更新，仅修改提交的字段。
// thumbnail_file / ai_model / notes / captured_at 传空串表示清空，
// rating 无法通过更新清空
func (s *mediaServiceImpl) UpdateRecord(ctx context.Context, id string, updateDTO *dto.MediaUpdateDTO) (*dto.MediaRecordDTO, error) {
	record, err := s.mediaRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}

	// 先整体校验，再落字段
	var meta promptmeta.Meta
	if updateDTO.PromptMeta != nil {
		if meta, err = parsePromptMeta(updateDTO.PromptMeta); err != nil {
			return nil, err
		}
	}

	rating, err := NormalizeRating(updateDTO.Rating)
	if err != nil {
		return nil, err
	}

	var capturedAt *time.Time
	if updateDTO.CapturedAt != nil {
		if capturedAt, err = ParseTimestamp(*updateDTO.CapturedAt); err != nil {
			return nil, err
		}
	}

	if updateDTO.MediaType != nil && !updateDTO.MediaType.Valid() {
		return nil, ErrParamInvalid
	}

	// 合并后的 media_type/thumbnail 必须满足视频缩略图约束，
	// 但仅当二者之一出现在本次更新中才触发检查
	if updateDTO.MediaType != nil || updateDTO.ThumbnailFile != nil {
		effectiveType := record.MediaType
		if updateDTO.MediaType != nil {
			effectiveType = *updateDTO.MediaType
		}
		effectiveThumbnail := record.ThumbnailFile
		if updateDTO.ThumbnailFile != nil {
			effectiveThumbnail = updateDTO.ThumbnailFile
		}
		if effectiveType == model.MediaTypeVideo && !hasValue(effectiveThumbnail) {
			return nil, ErrThumbnailRequired
		}
	}

	if updateDTO.PromptMeta != nil {
		record.PromptMeta = meta
		if updateDTO.PromptText == nil && meta.PromptText() != "" {
			record.PromptText = meta.PromptText()
		}
	}
	if updateDTO.PromptText != nil {
		record.PromptText = *updateDTO.PromptText
	}
	if updateDTO.AIModel != nil {
		record.AIModel = normalizeOptional(updateDTO.AIModel)
	}
	if updateDTO.Notes != nil {
		record.Notes = normalizeOptional(updateDTO.Notes)
	}
	if updateDTO.Rating != nil {
		record.Rating = rating
	}
	if updateDTO.MediaType != nil {
		record.MediaType = *updateDTO.MediaType
	}
	if updateDTO.ThumbnailFile != nil {
		record.ThumbnailFile = normalizeOptional(updateDTO.ThumbnailFile)
	}
	if updateDTO.CapturedAt != nil {
		record.CapturedAt = capturedAt
	}

	var tags []*model.Tag
	replaceTags := false
	if updateDTO.Tags != nil {
		replaceTags = true
		if tags, err = s.tagSvc.EnsureTags(ctx, *updateDTO.Tags); err != nil {
			return nil, err
		}
	}

	record.UpdatedAt = time.Now()
	if err = s.mediaRepo.Update(ctx, record, tags, replaceTags); err != nil {
		return nil, err
	}

	if replaceTags {
		attachTags(record, tags)
	}
	return toMediaDTO(record)
}

// ReplaceFile 替换媒体文件，成功后尽力清理旧文件
func (s *mediaServiceImpl) ReplaceFile(ctx context.Context, id string, storedName string) (*dto.MediaRecordDTO, error) {
	record, err := s.mediaRepo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if record == nil {
		return nil, ErrRecordNotFound
	}

	oldFile := record.FileName
	record.FileName = storedName
	record.UpdatedAt = time.Now()
	if err = s.mediaRepo.Update(ctx, record, nil, false); err != nil {
		return nil, err
	}

	if oldFile != "" && oldFile != storedName {
		if err = storage.Delete(oldFile); err != nil {
			log.WarnContext(ctx, "failed to delete replaced media file", "file", oldFile, "err", err)
		}
	}

	return toMediaDTO(record)
}

// DeleteRecord 删除记录及标签关联，文件清理为尽力而为
func (s *mediaServiceImpl) DeleteRecord(ctx context.Context, id string) error {
	record, err := s.mediaRepo.Get(ctx, id)
	if err != nil {
		return err
	}
	if record == nil {
		return ErrRecordNotFound
	}

	if err = s.mediaRepo.Delete(ctx, id); err != nil {
		return err
	}

	if err = storage.Delete(record.FileName); err != nil {
		log.WarnContext(ctx, "failed to delete media file", "file", record.FileName, "err", err)
	}
	if hasValue(record.ThumbnailFile) {
		if err = storage.Delete(*record.ThumbnailFile); err != nil {
			log.WarnContext(ctx, "failed to delete thumbnail file", "file", *record.ThumbnailFile, "err", err)
		}
	}

	return nil
}

// referencesRecord 判断引用列表是否指向给定记录
func referencesRecord(meta promptmeta.Meta, id string) bool {
	if meta.Kind != promptmeta.KindRefs {
		return false
	}
	for _, ref := range meta.Refs {
		if ref.ID == id {
			return true
		}
	}
	return false
}

func hasValue(s *string) bool {
	return s != nil && *s != ""
}

func normalizeOptional(s *string) *string {
	if s == nil || *s == "" {
		return nil
	}
	return s
}

func attachTags(record *model.MediaRecord, tags []*model.Tag) {
	record.Tags = make([]model.Tag, 0, len(tags))
	for _, tag := range tags {
		record.Tags = append(record.Tags, *tag)
	}
}

// toMediaDTO 将 Model 转换为返回给前端的 DTO
func toMediaDTO(record *model.MediaRecord) (*dto.MediaRecordDTO, error) {
	out := &dto.MediaRecordDTO{}
	if err := copier.Copy(out, record); err != nil {
		return nil, err
	}
	out.Tags = make([]*dto.TagDTO, 0, len(record.Tags))
	for _, tag := range record.Tags {
		out.Tags = append(out.Tags, &dto.TagDTO{ID: tag.ID, Name: tag.Name})
	}
	return out, nil
}
