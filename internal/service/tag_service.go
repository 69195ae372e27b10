package service

import (
	"PromptVault/internal/api/dto"
	"PromptVault/internal/model"
	"PromptVault/internal/repository"
	"context"
	"sort"
	"strings"
)

// NormalizeTag 标签名归一化：去首尾空白并转小写
func NormalizeTag(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// NormalizeTags 归一化并去重，空结果静默丢弃，输出按名称排序
func NormalizeTags(names []string) []string {
	set := make(map[string]struct{}, len(names))
	for _, name := range names {
		normalized := NormalizeTag(name)
		if normalized == "" {
			continue
		}
		set[normalized] = struct{}{}
	}

	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

type TagService interface {
	EnsureTags(ctx context.Context, names []string) ([]*model.Tag, error)
	ListUsage(ctx context.Context) ([]*dto.TagUsageDTO, error)
}

type tagServiceImpl struct {
	tagRepo repository.TagRepo
}

func NewTagService(tagRepo repository.TagRepo) TagService {
	return &tagServiceImpl{
		tagRepo: tagRepo,
	}
}

// EnsureTags 归一化后逐一 upsert，返回标签实体
func (s *tagServiceImpl) EnsureTags(ctx context.Context, names []string) ([]*model.Tag, error) {
	normalized := NormalizeTags(names)
	if len(normalized) == 0 {
		return nil, nil
	}
	return s.tagRepo.GetOrCreateTags(ctx, normalized)
}

func (s *tagServiceImpl) ListUsage(ctx context.Context) ([]*dto.TagUsageDTO, error) {
	usages, err := s.tagRepo.ListUsage(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]*dto.TagUsageDTO, 0, len(usages))
	for _, usage := range usages {
		out = append(out, &dto.TagUsageDTO{Name: usage.Name, Count: usage.Count})
	}
	return out, nil
}
