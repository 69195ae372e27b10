package service_test

import (
	"context"
	"testing"

	"PromptVault/internal/api/dto"
	"PromptVault/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"scifi", "space"}, service.NormalizeTags([]string{" SciFi ", "scifi", "", "SPACE", "  "}))
	assert.Nil(t, service.NormalizeTags(nil))
	assert.Nil(t, service.NormalizeTags([]string{"", "   "}))
}

func TestTagUsageCounts(t *testing.T) {
	mediaSvc, tagSvc := newMediaService(t)
	ctx := context.Background()

	seedListFixtures(t, mediaSvc)

	// 无任何记录引用的标签也要出现在用量里
	_, err := tagSvc.EnsureTags(ctx, []string{"unused"})
	require.NoError(t, err)

	usages, err := tagSvc.ListUsage(ctx)
	require.NoError(t, err)

	byName := make(map[string]int64, len(usages))
	for _, usage := range usages {
		byName[usage.Name] = usage.Count
	}
	assert.Equal(t, int64(3), byName["fantasy"])
	assert.Equal(t, int64(1), byName["castle"])
	assert.Equal(t, int64(1), byName["dragon"])
	assert.Equal(t, int64(0), byName["unused"])

	// 按名称排序
	var lastUsage *dto.TagUsageDTO
	for _, usage := range usages {
		if lastUsage != nil {
			assert.LessOrEqual(t, lastUsage.Name, usage.Name)
		}
		lastUsage = usage
	}
}
