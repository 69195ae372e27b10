package handler

import (
	"PromptVault/internal/api/dto"
	"PromptVault/internal/model"
	"PromptVault/internal/pkg/response"
	"PromptVault/internal/pkg/storage"
	"PromptVault/internal/pkg/util"
	"PromptVault/internal/service"
	log "log/slog"
	"mime/multipart"
	"path"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/goccy/go-json"
)

type MediaHandler struct {
	mediaSvc service.MediaService
}

func NewMediaHandler(mediaSvc service.MediaService) *MediaHandler {
	return &MediaHandler{mediaSvc: mediaSvc}
}

// List 过滤查询记录列表
func (h *MediaHandler) List(c *gin.Context) {
	var query dto.MediaListQueryDTO
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.mediaSvc.ListRecords(c.Request.Context(), &query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Get 获取单条记录及其下游引用
func (h *MediaHandler) Get(c *gin.Context) {
	result, err := h.mediaSvc.GetRecord(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Create 上传媒体文件并创建记录
func (h *MediaHandler) Create(c *gin.Context) {
	fileHeader, err := c.FormFile("media_file")
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	mediaType := model.MediaType(c.DefaultPostForm("media_type", string(model.MediaTypeImage)))
	if !mediaType.Valid() {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	thumbHeader, _ := c.FormFile("thumbnail_file")
	if mediaType == model.MediaTypeVideo && thumbHeader == nil {
		response.Error(c, service.ErrThumbnailRequired)
		return
	}

	rating, err := parseOptionalFloat(c.PostForm("rating"))
	if err != nil {
		response.Error(c, err)
		return
	}
	capturedAt, err := service.ParseTimestamp(c.PostForm("captured_at"))
	if err != nil {
		response.Error(c, err)
		return
	}

	savedFile, err := h.storeUpload(c, fileHeader, mediaType)
	if err != nil {
		response.Error(c, err)
		return
	}
	savedThumb := ""
	if thumbHeader != nil {
		// 缩略图一律按图片类型校验
		if savedThumb, err = h.storeUpload(c, thumbHeader, model.MediaTypeImage); err != nil {
			cleanupFiles(c, savedFile)
			response.Error(c, err)
			return
		}
	}

	createDTO := &dto.MediaCreateDTO{
		FileName:   savedFile,
		MediaType:  mediaType,
		PromptText: c.PostForm("prompt_text"),
		PromptMeta: parsePromptMetaField(c.PostForm("prompt_meta")),
		Rating:     rating,
		CapturedAt: capturedAt,
		Tags:       parseTagsField(c.PostForm("tags")),
	}
	if v := c.PostForm("ai_model"); v != "" {
		createDTO.AIModel = &v
	}
	if v := c.PostForm("notes"); v != "" {
		createDTO.Notes = &v
	}
	if savedThumb != "" {
		createDTO.ThumbnailFile = &savedThumb
	}

	result, err := h.mediaSvc.CreateRecord(c.Request.Context(), createDTO)
	if err != nil {
		// 入库失败时回收已落盘的文件
		cleanupFiles(c, savedFile, savedThumb)
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Update JSON 部分更新
func (h *MediaHandler) Update(c *gin.Context) {
	var updateDTO dto.MediaUpdateDTO
	if err := c.ShouldBindJSON(&updateDTO); err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.mediaSvc.UpdateRecord(c.Request.Context(), c.Param("id"), &updateDTO)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// ReplaceFile 替换记录的媒体文件，类型沿用原记录
func (h *MediaHandler) ReplaceFile(c *gin.Context) {
	id := c.Param("id")
	detail, err := h.mediaSvc.GetRecord(c.Request.Context(), id)
	if err != nil {
		response.Error(c, err)
		return
	}

	fileHeader, err := c.FormFile("media_file")
	if err != nil {
		response.Error(c, service.ErrParamInvalid)
		return
	}

	savedFile, err := h.storeUpload(c, fileHeader, detail.MediaType)
	if err != nil {
		response.Error(c, err)
		return
	}

	result, err := h.mediaSvc.ReplaceFile(c.Request.Context(), id, savedFile)
	if err != nil {
		cleanupFiles(c, savedFile)
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}

// Delete 删除记录
func (h *MediaHandler) Delete(c *gin.Context) {
	if err := h.mediaSvc.DeleteRecord(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, nil)
}

// storeUpload 嗅探内容类型并落盘，返回托管文件名
func (h *MediaHandler) storeUpload(c *gin.Context, fileHeader *multipart.FileHeader, mediaType model.MediaType) (string, error) {
	reader, err := fileHeader.Open()
	if err != nil {
		return "", service.ErrParamInvalid
	}
	defer func() { _ = reader.Close() }()

	contentType, err := util.GetSafeContentType(reader)
	if err != nil || !storage.AllowedContentType(mediaType, contentType) {
		log.WarnContext(c.Request.Context(), "rejected upload", "name", fileHeader.Filename, "contentType", contentType)
		return "", service.ErrFileNotSupported
	}

	ext := strings.ToLower(path.Ext(fileHeader.Filename))
	if !storage.AllowedExtension(mediaType, ext) {
		return "", service.ErrFileNotSupported
	}

	return storage.Save(reader, ext)
}

func cleanupFiles(c *gin.Context, names ...string) {
	for _, name := range names {
		if name == "" {
			continue
		}
		if err := storage.Delete(name); err != nil {
			log.WarnContext(c.Request.Context(), "failed to clean up uploaded file", "file", name, "err", err)
		}
	}
}

// parsePromptMetaField 表单里的元数据既可能是 JSON 也可能是裸字符串
func parsePromptMetaField(raw string) json.RawMessage {
	if raw == "" {
		return nil
	}
	if json.Valid([]byte(raw)) {
		return json.RawMessage(raw)
	}
	quoted, _ := json.Marshal(raw)
	return quoted
}

// parseTagsField 支持 JSON 数组或逗号分隔两种写法
func parseTagsField(raw string) []string {
	if raw == "" {
		return nil
	}
	var parsed []string
	if err := json.Unmarshal([]byte(raw), &parsed); err == nil {
		return parsed
	}
	var tags []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			tags = append(tags, part)
		}
	}
	return tags
}

func parseOptionalFloat(raw string) (*float64, error) {
	if raw == "" {
		return nil, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, service.ErrRatingInvalid
	}
	return &value, nil
}
