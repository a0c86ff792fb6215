package router

import (
	"net/http"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/Danilnaisov/praktika05/internal/handler"
	"github.com/Danilnaisov/praktika05/internal/middleware"
	"github.com/Danilnaisov/praktika05/internal/models"
	"github.com/Danilnaisov/praktika05/internal/service"
	"github.com/Danilnaisov/praktika05/pkg/config"
	"github.com/Danilnaisov/praktika05/pkg/logger"
	corsmiddleware "github.com/Danilnaisov/praktika05/pkg/middleware/cors"
	reqidmiddleware "github.com/Danilnaisov/praktika05/pkg/middleware/requestid"
)

// Handlers bundles every HTTP handler the router mounts.
type Handlers struct {
	Auth        *handler.AuthHandler
	Students    *handler.StudentHandler
	Rooms       *handler.RoomHandler
	Departments *handler.DepartmentHandler
	Meetings    *handler.MeetingHandler
	Attachments *handler.AttachmentHandler
	Reports     *handler.ReportHandler
	ErrorLogs   *handler.ErrorLogHandler
}

// Services carries the cross-cutting services the middleware stack needs.
type Services struct {
	Auth      *service.AuthService
	Metrics   *service.MetricsService
	ErrorLogs *service.ErrorLogService
}

// New assembles the gin engine with the full middleware stack and every
// route mounted under the configured API prefix.
func New(cfg *config.Config, logr *zap.Logger, handlers Handlers, services Services) *gin.Engine {
	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(services.Metrics))
	r.Use(middleware.ErrorLog(services.ErrorLogs))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/ready", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ready"})
	})
	if services.Metrics != nil {
		r.GET("/metrics", gin.WrapH(services.Metrics.Handler()))
	}
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)

	// Token-gated by the signed URL itself, no bearer required.
	api.GET("/reports/download", handlers.Reports.Download)

	auth := api.Group("/auth")
	{
		auth.POST("/login", handlers.Auth.Login)
		auth.POST("/refresh", handlers.Auth.Refresh)

		authed := auth.Group("")
		authed.Use(middleware.JWT(services.Auth))
		authed.POST("/logout", handlers.Auth.Logout)
		authed.POST("/change-password", handlers.Auth.ChangePassword)
		authed.GET("/me", handlers.Auth.Me)
		authed.POST("/register", middleware.RequireRoles(models.RoleAdmin), handlers.Auth.Register)
	}

	protected := api.Group("")
	protected.Use(middleware.JWT(services.Auth))
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleEmployee)
	adminOnly := middleware.RequireRoles(models.RoleAdmin)

	students := protected.Group("/students", staff)
	{
		students.GET("", handlers.Students.List)
		students.POST("", handlers.Students.Create)
		students.GET("/:id", handlers.Students.Get)
		students.PUT("/:id", handlers.Students.Update)
		students.DELETE("/:id", handlers.Students.Delete)
		students.GET("/:id/meetings", handlers.Meetings.ListByStudent)
		students.POST("/:id/meetings", handlers.Meetings.Create)
	}

	meetings := protected.Group("/meetings", staff)
	{
		meetings.GET("", handlers.Meetings.List)
		meetings.DELETE("/:id", handlers.Meetings.Delete)
	}

	rooms := protected.Group("/rooms", staff)
	{
		rooms.GET("", handlers.Rooms.List)
		rooms.GET("/:id", handlers.Rooms.Get)
		rooms.POST("", adminOnly, handlers.Rooms.Create)
		rooms.PUT("/:id", adminOnly, handlers.Rooms.Update)
		rooms.DELETE("/:id", adminOnly, handlers.Rooms.Delete)
	}

	departments := protected.Group("/departments", staff)
	{
		departments.GET("", handlers.Departments.List)
		departments.GET("/:id", handlers.Departments.Get)
		departments.GET("/:id/group-label", handlers.Departments.GroupLabel)
		departments.POST("", adminOnly, handlers.Departments.Create)
		departments.PUT("/:id", adminOnly, handlers.Departments.Update)
		departments.DELETE("/:id", adminOnly, handlers.Departments.Delete)
	}

	attachments := protected.Group("/attachments", staff)
	{
		attachments.GET("", handlers.Attachments.ListByOwner)
		attachments.POST("", handlers.Attachments.Upload)
		attachments.GET("/:id", handlers.Attachments.Download)
		attachments.DELETE("/:id", handlers.Attachments.Delete)
	}

	reports := protected.Group("/reports", staff)
	{
		reports.POST("", handlers.Reports.Create)
		reports.GET("/:id", handlers.Reports.Status)
	}

	protected.GET("/errors", adminOnly, handlers.ErrorLogs.List)

	return r
}
