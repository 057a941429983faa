package middleware

import (
	"time"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/pkg/database"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"github.com/gin-gonic/gin"
)

// OperationLogMiddleware 操作日志中间件
// 只记录写操作（非GET），异步落库
func OperationLogMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		timeCost := time.Since(startTime).Milliseconds()

		if c.Request.Method == "GET" {
			return
		}

		// 未认证的请求（如登录失败）不记录
		_, exists := c.Get("user_id")
		if !exists {
			return
		}

		username := ""
		if uname, ok := c.Get("username"); ok {
			username, _ = uname.(string)
		}

		operationLog := model.OperationLog{
			Username:  username,
			IP:        c.ClientIP(),
			Method:    c.Request.Method,
			Path:      c.FullPath(),
			Desc:      c.Request.Method + " " + c.FullPath(),
			Status:    c.Writer.Status(),
			StartTime: startTime,
			TimeCost:  timeCost,
			UserAgent: c.Request.UserAgent(),
		}

		// 异步保存，不影响请求处理
		go func() {
			if err := database.DB.Create(&operationLog).Error; err != nil {
				logger.Warnf("Failed to save operation log: %v", err)
			}
		}()
	}
}
