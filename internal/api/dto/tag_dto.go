package dto

type TagDTO struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// TagUsageDTO 标签使用统计
type TagUsageDTO struct {
	Name  string `json:"name"`
	Count int64  `json:"count"`
}
