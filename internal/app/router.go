package app

import (
	"qadam_backend/docs"
	"qadam_backend/internal/config"
	"qadam_backend/internal/middleware"
	"qadam_backend/internal/util"
	"qadam_backend/pkg/monitoring"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
)

func (a *App) registerRoutes(router *gin.Engine, c *controllers, repos *repositories, cfg *config.Config) {
	docs.SwaggerInfo.BasePath = "/api"
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler, ginSwagger.URL("/swagger/doc.json")))

	router.GET("/metrics", monitoring.PrometheusHandler())
	router.NoRoute(util.NotFound)

	// 1. 公共路由(无需登录)
	a.registerPublicRoutes(router, c, cfg)

	// 2. 需要授权的路由
	authGroup := router.Group("/api")
	authGroup.Use(middleware.AuthMiddleware(cfg), middleware.ActivityMiddleware(repos.user))
	{
		a.registerExamRoutes(authGroup, c)
		a.registerResultRoutes(authGroup, c)

		authGroup.GET("/rankings/me", c.ranking.Mine)
		authGroup.GET("/notifications", c.notification.List)
		authGroup.POST("/notifications/:id/read", c.notification.MarkRead)
	}
}

func (a *App) registerPublicRoutes(router *gin.Engine, c *controllers, cfg *config.Config) {
	public := router.Group("/api")
	{
		public.GET("/health", c.health.HealthCheck)
		public.GET("/rankings", c.ranking.Top)

		// 访客：仅免费试卷；登录用户可通过同一入口预览
		public.GET("/public/variants/:id/test", middleware.TryAuthMiddleware(cfg), c.exam.GetPublicTest)
		public.POST("/public/test-results", c.result.SubmitGuest)
	}
}

func (a *App) registerExamRoutes(group *gin.RouterGroup, c *controllers) {
	variants := group.Group("/variants/:id")
	{
		variants.GET("/test", c.exam.GetTest)
		variants.GET("/session", c.exam.GetSession)
		variants.PUT("/session", c.exam.SaveSession)
		variants.POST("/session/abandon", c.exam.AbandonSession)
	}
}

func (a *App) registerResultRoutes(group *gin.RouterGroup, c *controllers) {
	results := group.Group("/test-results")
	{
		results.POST("", c.result.Submit)
		results.GET("", c.result.List)
		results.GET("/:id/review", c.result.Review)
	}
}
