package router

import (
	"net/http"

	authHandler "github.com/vesperino/portalforge-backend/internal/api/handler/auth"
	notificationHandler "github.com/vesperino/portalforge-backend/internal/api/handler/notification"
	requestHandler "github.com/vesperino/portalforge-backend/internal/api/handler/request"
	templateHandler "github.com/vesperino/portalforge-backend/internal/api/handler/template"
	vacationHandler "github.com/vesperino/portalforge-backend/internal/api/handler/vacation"
	"github.com/vesperino/portalforge-backend/internal/api/middleware"
	"github.com/vesperino/portalforge-backend/internal/model"
	authService "github.com/vesperino/portalforge-backend/internal/service/auth"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func Setup(
	auth *authHandler.AuthHandler,
	request *requestHandler.RequestHandler,
	vacation *vacationHandler.VacationHandler,
	template *templateHandler.TemplateHandler,
	notification *notificationHandler.NotificationHandler,
	authSvc *authService.AuthService,
) *gin.Engine {
	r := gin.New()

	// 使用自定义的 recovery 中间件（打印详细错误信息）
	r.Use(middleware.RecoveryMiddleware())
	r.Use(gin.Logger())
	r.Use(middleware.CORS())
	r.Use(middleware.MetricsMiddleware())

	// 公开API（不需要认证）
	api := r.Group("/api")
	{
		api.POST("/auth/login", auth.Login)
	}

	// 需要认证的API
	authenticated := api.Group("")
	authenticated.Use(middleware.AuthMiddleware(authSvc))
	authenticated.Use(middleware.OperationLogMiddleware())
	{
		// 用户相关
		authenticated.GET("/auth/me", auth.Me)
		authenticated.POST("/auth/register", middleware.AdminMiddleware(), auth.Register)
		authenticated.GET("/users", middleware.RoleMiddleware(model.RoleAdmin, model.RoleHR), auth.ListUsers)

		// 申请
		requests := authenticated.Group("/requests")
		{
			requests.POST("", request.Submit)
			requests.GET("", request.ListMine)
			requests.GET("/:id", request.Get)
			requests.POST("/:id/cancel", request.Cancel)
			requests.GET("/:id/logs", request.ChangeLogs)
		}

		// 审批
		approvals := authenticated.Group("/approvals")
		{
			approvals.GET("/pending", request.ListPending)
			approvals.GET("/steps/:id/quiz", request.StepQuiz)
			approvals.POST("/steps/:id/approve", request.ApproveStep)
			approvals.POST("/steps/:id/reject", request.RejectStep)
			approvals.POST("/bulk-approve", request.BulkApprove)
		}

		// 假期
		vacations := authenticated.Group("/vacations")
		{
			vacations.GET("/summary", vacation.Summary)
			vacations.GET("/schedules", vacation.Schedules)
			vacations.POST("/adjust/:user_id", middleware.RoleMiddleware(model.RoleAdmin, model.RoleHR), vacation.Adjust)
		}

		// 节假日
		holidays := authenticated.Group("/holidays")
		{
			holidays.GET("", vacation.ListHolidays)
			holidays.POST("", middleware.RoleMiddleware(model.RoleAdmin, model.RoleHR), vacation.CreateHoliday)
			holidays.DELETE("/:id", middleware.RoleMiddleware(model.RoleAdmin, model.RoleHR), vacation.DeleteHoliday)
		}

		// 申请模板
		templates := authenticated.Group("/templates")
		{
			templates.GET("", template.List)
			templates.GET("/:id", template.Get)
			templates.POST("", middleware.RoleMiddleware(model.RoleAdmin, model.RoleHR), template.Create)
			templates.PUT("/:id", middleware.RoleMiddleware(model.RoleAdmin, model.RoleHR), template.Update)
			templates.DELETE("/:id", middleware.AdminMiddleware(), template.Delete)
			templates.PUT("/:id/questions", middleware.RoleMiddleware(model.RoleAdmin, model.RoleHR), template.ReplaceQuestions)
		}

		// 通知
		notifications := authenticated.Group("/notifications")
		{
			notifications.GET("", notification.List)
			notifications.GET("/unread-count", notification.UnreadCount)
			notifications.POST("/:id/read", notification.MarkRead)
			notifications.POST("/read-all", notification.MarkAllRead)
		}
	}

	// Prometheus Metrics
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Health check (支持 GET 和 HEAD 方法)
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status": "ok",
			"type":   "api-server",
		})
	})
	r.HEAD("/health", func(c *gin.Context) {
		c.Status(200)
	})

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"error":   "Not Found",
			"message": "The requested resource was not found.",
		})
	})

	return r
}
