package wire

import (
	"PromptVault/internal/api"
	"PromptVault/internal/api/handler"
	"PromptVault/internal/job"
	"PromptVault/internal/pkg/cron"
	"PromptVault/internal/repository"
	"PromptVault/internal/service"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// ApplicationContainer 封装了应用运行所需的所有顶级组件
type ApplicationContainer struct {
	Router  *gin.Engine
	DB      *gorm.DB
	CronMgr *cron.Manager
}

func BuildApplication(db *gorm.DB) (*ApplicationContainer, error) {
	mediaRepo := repository.NewMediaRepository(db)
	tagRepo := repository.NewTagRepository(db)

	tagService := service.NewTagService(tagRepo)
	mediaService := service.NewMediaService(mediaRepo, tagService)

	handlers := &api.HandlersGroup{
		MediaHandler: handler.NewMediaHandler(mediaService),
		TagHandler:   handler.NewTagHandler(tagService),
	}

	router := api.SetupRouter(handlers)

	cronMgr := cron.NewCronManager(job.NewOrphanCleanJob(db))

	return &ApplicationContainer{
		Router:  router,
		DB:      db,
		CronMgr: cronMgr,
	}, nil
}
