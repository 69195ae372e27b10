package handler

import (
	"PromptVault/internal/pkg/response"
	"PromptVault/internal/service"

	"github.com/gin-gonic/gin"
)

type TagHandler struct {
	tagSvc service.TagService
}

func NewTagHandler(tagSvc service.TagService) *TagHandler {
	return &TagHandler{tagSvc: tagSvc}
}

// List 返回全部标签及引用次数，按名称排序
func (h *TagHandler) List(c *gin.Context) {
	result, err := h.tagSvc.ListUsage(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Success(c, result)
}
