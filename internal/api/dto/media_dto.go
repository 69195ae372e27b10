package dto

import (
	"time"

	"PromptVault/internal/model"
	"PromptVault/internal/pkg/promptmeta"

	"github.com/goccy/go-json"
)

// MediaCreateDTO 新建记录，由 multipart 表单字段解析而来，
// FileName/ThumbnailFile 是已落盘的存储名
type MediaCreateDTO struct {
	FileName      string
	MediaType     model.MediaType
	PromptText    string
	PromptMeta    json.RawMessage
	AIModel       *string
	Notes         *string
	Rating        *float64
	ThumbnailFile *string
	CapturedAt    *time.Time
	Tags          []string
}

// MediaUpdateDTO 部分更新，字段为 nil 表示本次不修改；
// PromptMeta 为 nil 表示未提交，字面量 null 表示清空；
// CapturedAt 传 ISO-8601 字符串，空串表示清空
type MediaUpdateDTO struct {
	PromptText    *string          `json:"prompt_text"`
	PromptMeta    json.RawMessage  `json:"prompt_meta"`
	AIModel       *string          `json:"ai_model"`
	Notes         *string          `json:"notes"`
	Rating        *float64         `json:"rating"`
	MediaType     *model.MediaType `json:"media_type"`
	ThumbnailFile *string          `json:"thumbnail_file"`
	CapturedAt    *string          `json:"captured_at"`
	Tags          *[]string        `json:"tags"`
}

// MediaListQueryDTO 列表查询参数
type MediaListQueryDTO struct {
	Q         string  `form:"q"`
	Tags      string  `form:"tags"`
	RatingMin *float64 `form:"rating_min" binding:"omitempty,gte=0,lte=5"`
	RatingMax *float64 `form:"rating_max" binding:"omitempty,gte=0,lte=5"`
	DateFrom  string  `form:"date_from"`
	DateTo    string  `form:"date_to"`
	MediaType string  `form:"media_type"`
	Page      int     `form:"page,default=1" binding:"omitempty,gte=1"`
	PageSize  int     `form:"page_size,default=20" binding:"omitempty,gte=1,lte=100"`
}

type MediaRecordDTO struct {
	ID            string          `json:"id"`
	FileName      string          `json:"file_name"`
	MediaType     model.MediaType `json:"media_type"`
	PromptText    string          `json:"prompt_text"`
	PromptMeta    promptmeta.Meta `json:"prompt_meta"`
	AIModel       *string         `json:"ai_model"`
	Notes         *string         `json:"notes"`
	Rating        *float64        `json:"rating"`
	ThumbnailFile *string         `json:"thumbnail_file"`
	CapturedAt    *time.Time      `json:"captured_at"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
	Tags          []*TagDTO       `json:"tags"`
}

// MediaDependentDTO 引用了某条记录的下游记录摘要
type MediaDependentDTO struct {
	ID            string          `json:"id"`
	PromptText    string          `json:"prompt_text"`
	FileName      string          `json:"file_name"`
	ThumbnailFile *string         `json:"thumbnail_file"`
	MediaType     model.MediaType `json:"media_type"`
	CapturedAt    *time.Time      `json:"captured_at"`
}

// MediaDetailDTO 单条详情，附带下游引用记录
type MediaDetailDTO struct {
	MediaRecordDTO
	Dependents []*MediaDependentDTO `json:"dependents"`
}

type MediaListDTO struct {
	Items []*MediaRecordDTO `json:"items"`
	Total int64             `json:"total"`
}

// ImportResultDTO 遗留数据导入结果
type ImportResultDTO struct {
	Imported   int  `json:"imported"`
	Reconciled int  `json:"reconciled"`
	DryRun     bool `json:"dry_run"`
}
