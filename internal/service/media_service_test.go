package service_test

import (
	"context"
	"fmt"
	"math"
	"testing"
	"time"

	"PromptVault/internal/api/config"
	"PromptVault/internal/api/dto"
	"PromptVault/internal/model"
	"PromptVault/internal/pkg/storage"
	"PromptVault/internal/pkg/util"
	"PromptVault/internal/repository"
	"PromptVault/internal/service"

	"github.com/glebarez/sqlite"
	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, model.Migrate(db))
	require.NoError(t, storage.Init(&config.StorageConfig{MediaDir: t.TempDir()}))
	return db
}

func newMediaService(t *testing.T) (service.MediaService, service.TagService) {
	t.Helper()
	db := newTestDB(t)
	tagSvc := service.NewTagService(repository.NewTagRepository(db))
	mediaSvc := service.NewMediaService(repository.NewMediaRepository(db), tagSvc)
	return mediaSvc, tagSvc
}

func TestCreateAndGetRoundTrip(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	capturedAt := time.Date(2024, 3, 15, 12, 34, 56, 0, time.UTC)
	created, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName:   "sunset.png",
		PromptText: "a sunset over the sea",
		PromptMeta: json.RawMessage(`"a sunset over the sea"`),
		AIModel:    util.PtrString("sdxl"),
		Notes:      util.PtrString("golden hour"),
		Rating:     util.PtrFloat64(4.26),
		CapturedAt: &capturedAt,
		Tags:       []string{"SciFi", "scifi", "  ", "SPACE"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, created.ID)
	assert.Equal(t, model.MediaTypeImage, created.MediaType)
	assert.Equal(t, 4.3, *created.Rating)

	detail, err := mediaSvc.GetRecord(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, "sunset.png", detail.FileName)
	assert.Equal(t, "a sunset over the sea", detail.PromptText)
	assert.Equal(t, "sdxl", *detail.AIModel)
	assert.Equal(t, "golden hour", *detail.Notes)
	assert.True(t, capturedAt.Equal(*detail.CapturedAt))
	assert.Empty(t, detail.Dependents)

	names := make([]string, 0, len(detail.Tags))
	for _, tag := range detail.Tags {
		names = append(names, tag.Name)
	}
	assert.Equal(t, []string{"scifi", "space"}, names)
}

func TestGetRecordNotFound(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	_, err := mediaSvc.GetRecord(context.Background(), "missing")
	assert.ErrorIs(t, err, service.ErrRecordNotFound)
}

func TestRatingValidation(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	for _, bad := range []float64{-0.1, 5.5, 100} {
		_, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
			FileName: "r.png",
			Rating:   &bad,
		})
		assert.ErrorIs(t, err, service.ErrRatingInvalid, "rating %v", bad)
	}

	created, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName: "r.png",
		Rating:   util.PtrFloat64(5),
	})
	require.NoError(t, err)
	assert.Equal(t, 5.0, *created.Rating)
}

func TestRatingRejectsNaN(t *testing.T) {
	mediaSvc, _ := newMediaService(t)

	// NaN 能通过范围比较，必须单独拒绝
	_, err := mediaSvc.CreateRecord(context.Background(), &dto.MediaCreateDTO{
		FileName: "nan.png",
		Rating:   util.PtrFloat64(math.NaN()),
	})
	assert.ErrorIs(t, err, service.ErrRatingInvalid)

	_, err = service.NormalizeRating(util.PtrFloat64(math.NaN()))
	assert.ErrorIs(t, err, service.ErrRatingInvalid)
}

func TestPromptMetaValidationOnCreate(t *testing.T) {
	mediaSvc, _ := newMediaService(t)

	_, err := mediaSvc.CreateRecord(context.Background(), &dto.MediaCreateDTO{
		FileName:   "m.png",
		PromptMeta: json.RawMessage(`[{"notid":"x"},"t"]`),
	})
	assert.ErrorIs(t, err, service.ErrPromptMetaInvalid)
}

func TestVideoThumbnailRule(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	_, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName:  "clip.mp4",
		MediaType: model.MediaTypeVideo,
	})
	assert.ErrorIs(t, err, service.ErrThumbnailRequired)

	created, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName:      "clip.mp4",
		MediaType:     model.MediaTypeVideo,
		ThumbnailFile: util.PtrString("clip_thumb.png"),
	})
	require.NoError(t, err)

	// 不涉及 media_type/thumbnail 的更新不触发校验
	_, err = mediaSvc.UpdateRecord(ctx, created.ID, &dto.MediaUpdateDTO{
		Notes: util.PtrString("tweaked"),
	})
	require.NoError(t, err)

	// 清空视频缩略图被拒绝
	_, err = mediaSvc.UpdateRecord(ctx, created.ID, &dto.MediaUpdateDTO{
		ThumbnailFile: util.PtrString(""),
	})
	assert.ErrorIs(t, err, service.ErrThumbnailRequired)

	// 图片在没有缩略图的情况下转成视频同样被拒绝
	image, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{FileName: "pic.png"})
	require.NoError(t, err)
	videoType := model.MediaTypeVideo
	_, err = mediaSvc.UpdateRecord(ctx, image.ID, &dto.MediaUpdateDTO{MediaType: &videoType})
	assert.ErrorIs(t, err, service.ErrThumbnailRequired)
}

func TestTagIdentityAcrossCalls(t *testing.T) {
	_, tagSvc := newMediaService(t)
	ctx := context.Background()

	first, err := tagSvc.EnsureTags(ctx, []string{"SciFi", "scifi", "  ", "SPACE"})
	require.NoError(t, err)
	require.Len(t, first, 2)
	assert.Equal(t, "scifi", first[0].Name)
	assert.Equal(t, "space", first[1].Name)

	second, err := tagSvc.EnsureTags(ctx, []string{"SCIFI"})
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)
}

func TestUpdatePartialKeepsOtherFields(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	created, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName:   "keep.png",
		PromptText: "original",
		Rating:     util.PtrFloat64(3),
		Tags:       []string{"keep"},
	})
	require.NoError(t, err)

	time.Sleep(10 * time.Millisecond)
	updated, err := mediaSvc.UpdateRecord(ctx, created.ID, &dto.MediaUpdateDTO{
		Notes: util.PtrString("only notes"),
	})
	require.NoError(t, err)

	assert.Equal(t, "original", updated.PromptText)
	assert.Equal(t, 3.0, *updated.Rating)
	assert.Equal(t, "only notes", *updated.Notes)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	detail, err := mediaSvc.GetRecord(ctx, created.ID)
	require.NoError(t, err)
	require.Len(t, detail.Tags, 1)
	assert.Equal(t, "keep", detail.Tags[0].Name)
}

func TestUpdateReplacesTags(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	created, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName: "retag.png",
		Tags:     []string{"old"},
	})
	require.NoError(t, err)

	newTags := []string{"New", "fresh"}
	updated, err := mediaSvc.UpdateRecord(ctx, created.ID, &dto.MediaUpdateDTO{Tags: &newTags})
	require.NoError(t, err)

	names := make([]string, 0, len(updated.Tags))
	for _, tag := range updated.Tags {
		names = append(names, tag.Name)
	}
	assert.Equal(t, []string{"fresh", "new"}, names)
}

func TestUpdatePromptMetaDerivesText(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	created, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName:   "meta.png",
		PromptText: "before",
	})
	require.NoError(t, err)

	updated, err := mediaSvc.UpdateRecord(ctx, created.ID, &dto.MediaUpdateDTO{
		PromptMeta: json.RawMessage(`"after"`),
	})
	require.NoError(t, err)
	assert.Equal(t, "after", updated.PromptText)

	// 字面量 null 清空元数据，已有文本保持不变
	cleared, err := mediaSvc.UpdateRecord(ctx, created.ID, &dto.MediaUpdateDTO{
		PromptMeta: json.RawMessage(`null`),
	})
	require.NoError(t, err)
	assert.Equal(t, "after", cleared.PromptText)
}

func TestUpdateCapturedAtParsing(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	created, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{FileName: "ts.png"})
	require.NoError(t, err)

	// 非法时间走业务错误而不是 JSON 绑定错误
	_, err = mediaSvc.UpdateRecord(ctx, created.ID, &dto.MediaUpdateDTO{
		CapturedAt: util.PtrString("not-a-date"),
	})
	assert.ErrorIs(t, err, service.ErrTimestampInvalid)

	updated, err := mediaSvc.UpdateRecord(ctx, created.ID, &dto.MediaUpdateDTO{
		CapturedAt: util.PtrString("2024-03-15T12:34:56Z"),
	})
	require.NoError(t, err)
	require.NotNil(t, updated.CapturedAt)
	assert.True(t, time.Date(2024, 3, 15, 12, 34, 56, 0, time.UTC).Equal(*updated.CapturedAt))

	// 空串清空拍摄时间
	cleared, err := mediaSvc.UpdateRecord(ctx, created.ID, &dto.MediaUpdateDTO{
		CapturedAt: util.PtrString(""),
	})
	require.NoError(t, err)
	assert.Nil(t, cleared.CapturedAt)
}

func TestDependentsListed(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	base, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName:   "base.png",
		PromptText: "base prompt",
	})
	require.NoError(t, err)

	derived, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName:   "derived.png",
		PromptMeta: json.RawMessage(fmt.Sprintf(`[{"id":%q},"derived prompt"]`, base.ID)),
	})
	require.NoError(t, err)
	assert.Equal(t, "derived prompt", derived.PromptText)

	detail, err := mediaSvc.GetRecord(ctx, base.ID)
	require.NoError(t, err)
	require.Len(t, detail.Dependents, 1)
	assert.Equal(t, derived.ID, detail.Dependents[0].ID)

	// 下游记录自己没有上游引用
	derivedDetail, err := mediaSvc.GetRecord(ctx, derived.ID)
	require.NoError(t, err)
	assert.Empty(t, derivedDetail.Dependents)
}

func TestDeleteRecord(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	created, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName: "gone.png",
		Tags:     []string{"temp"},
	})
	require.NoError(t, err)

	require.NoError(t, mediaSvc.DeleteRecord(ctx, created.ID))
	_, err = mediaSvc.GetRecord(ctx, created.ID)
	assert.ErrorIs(t, err, service.ErrRecordNotFound)

	assert.ErrorIs(t, mediaSvc.DeleteRecord(ctx, created.ID), service.ErrRecordNotFound)
}

func seedListFixtures(t *testing.T, mediaSvc service.MediaService) {
	t.Helper()
	ctx := context.Background()

	day := func(d int) *time.Time {
		ts := time.Date(2024, 1, d, 0, 0, 0, 0, time.UTC)
		return &ts
	}

	fixtures := []*dto.MediaCreateDTO{
		{
			FileName:   "alpha.png",
			PromptText: "castle on a hill",
			AIModel:    util.PtrString("sdxl"),
			Rating:     util.PtrFloat64(4.5),
			CapturedAt: day(3),
			Tags:       []string{"fantasy", "castle"},
		},
		{
			FileName:   "beta.png",
			PromptText: "castle interior",
			Notes:      util.PtrString("dark mood"),
			Rating:     util.PtrFloat64(2),
			CapturedAt: day(1),
			Tags:       []string{"fantasy"},
		},
		{
			FileName:      "gamma.mp4",
			MediaType:     model.MediaTypeVideo,
			ThumbnailFile: util.PtrString("gamma_thumb.png"),
			PromptText:    "flying dragon",
			Rating:        util.PtrFloat64(5),
			Tags:          []string{"fantasy", "dragon"},
		},
	}
	for _, fixture := range fixtures {
		_, err := mediaSvc.CreateRecord(ctx, fixture)
		require.NoError(t, err)
	}
}

func TestListFilters(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()
	seedListFixtures(t, mediaSvc)

	// 文本搜索覆盖 prompt_text / notes / ai_model
	result, err := mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{Q: "castle"})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)

	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{Q: "DARK"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{Q: "sdxl"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	// 多标签是 AND 语义
	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{Tags: "fantasy,dragon"})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Total)
	assert.Equal(t, "gamma.mp4", result.Items[0].FileName)

	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{Tags: "Fantasy"})
	require.NoError(t, err)
	assert.Equal(t, int64(3), result.Total)

	// 评分范围
	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{RatingMin: util.PtrFloat64(4)})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)

	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{
		RatingMin: util.PtrFloat64(1),
		RatingMax: util.PtrFloat64(3),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	// 媒体类型
	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{MediaType: "video"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	_, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{MediaType: "audio"})
	assert.ErrorIs(t, err, service.ErrParamInvalid)

	// 拍摄时间范围
	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{DateFrom: "2024-01-02"})
	require.NoError(t, err)
	assert.Equal(t, int64(1), result.Total)

	_, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{DateFrom: "not-a-date"})
	assert.ErrorIs(t, err, service.ErrTimestampInvalid)
}

func TestListRatingDecimalBoundaries(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()

	// 4.16 四舍五入后落库为 4.2
	_, err := mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName: "low.png",
		Rating:   util.PtrFloat64(4.16),
	})
	require.NoError(t, err)
	_, err = mediaSvc.CreateRecord(ctx, &dto.MediaCreateDTO{
		FileName: "high.png",
		Rating:   util.PtrFloat64(4.3),
	})
	require.NoError(t, err)

	result, err := mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{
		RatingMin: util.PtrFloat64(4.0),
		RatingMax: util.PtrFloat64(4.3),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), result.Total)

	// 4.2 被 rating_min=4.3 排除
	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{RatingMin: util.PtrFloat64(4.3)})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Total)
	assert.Equal(t, "high.png", result.Items[0].FileName)

	result, err = mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{RatingMax: util.PtrFloat64(4.2)})
	require.NoError(t, err)
	require.Equal(t, int64(1), result.Total)
	assert.Equal(t, "low.png", result.Items[0].FileName)
}

func TestListOrderingAndPagination(t *testing.T) {
	mediaSvc, _ := newMediaService(t)
	ctx := context.Background()
	seedListFixtures(t, mediaSvc)

	result, err := mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{})
	require.NoError(t, err)
	require.Equal(t, int64(3), result.Total)

	// captured_at 倒序，没有拍摄时间的排在最后
	names := make([]string, 0, len(result.Items))
	for _, item := range result.Items {
		names = append(names, item.FileName)
	}
	assert.Equal(t, []string{"alpha.png", "beta.png", "gamma.mp4"}, names)

	paged, err := mediaSvc.ListRecords(ctx, &dto.MediaListQueryDTO{Page: 2, PageSize: 2})
	require.NoError(t, err)
	assert.Equal(t, int64(3), paged.Total)
	require.Len(t, paged.Items, 1)
	assert.Equal(t, "gamma.mp4", paged.Items[0].FileName)
}
