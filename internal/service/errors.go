package service

import (
	"errors"
)

const (
	BadRequest          = 400
	NotFound            = 404
	UnprocessableEntity = 422
	InternalServerError = 500
)

var (
	ErrParamInvalid           = errors.New("参数错误")
	ErrPromptMetaInvalid      = errors.New("提示词元数据格式错误")
	ErrRatingInvalid          = errors.New("评分必须是 0 到 5 之间的数字")
	ErrThumbnailRequired      = errors.New("视频记录必须提供缩略图")
	ErrThumbnailOrRefRequired = errors.New("导入的视频条目必须携带缩略图或至少一个引用")
	ErrRecordNotFound         = errors.New("记录不存在")
	ErrFileNameInvalid        = errors.New("文件名非法")
	ErrFileNotSupported       = errors.New("不支持的文件类型")
	ErrSourceFileMissing      = errors.New("导入源文件不存在")
	ErrSourceEscapesDir       = errors.New("导入源文件路径越界")
	ErrTimestampInvalid       = errors.New("时间必须是 ISO-8601 格式")
	UnExpectedError           = errors.New("系统异常，请稍后重试")
)

var ErrorMap = map[error]int{
	ErrParamInvalid:           BadRequest,
	ErrPromptMetaInvalid:      BadRequest,
	ErrRatingInvalid:          BadRequest,
	ErrThumbnailRequired:      BadRequest,
	ErrThumbnailOrRefRequired: BadRequest,
	ErrRecordNotFound:         NotFound,
	ErrFileNameInvalid:        BadRequest,
	ErrFileNotSupported:       BadRequest,
	ErrSourceFileMissing:      BadRequest,
	ErrSourceEscapesDir:       BadRequest,
	ErrTimestampInvalid:       UnprocessableEntity,
	UnExpectedError:           InternalServerError,
}
