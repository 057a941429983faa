package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/vesperino/portalforge-backend/internal/api/router"
	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/vesperino/portalforge-backend/pkg/database"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	pkgredis "github.com/vesperino/portalforge-backend/pkg/redis"
	"github.com/gin-gonic/gin"
)

// StartServer 启动 HTTP 服务器
func StartServer(cfg *config.Config, handlers *Handlers, services *Services) {
	if cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := router.Setup(
		handlers.Auth,
		handlers.Request,
		handlers.Vacation,
		handlers.Template,
		handlers.Notification,
		services.Auth,
	)

	addr := fmt.Sprintf(":%d", cfg.Server.APIPort)
	httpServer := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	printStartupBanner(cfg)

	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatalf("Failed to start HTTP server: %v", err)
		}
	}()

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	logger.Infof("\nShutting down gracefully...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	logger.Infof("  → Stopping HTTP server...")
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Infof("  Warning: HTTP server shutdown error: %v", err)
	} else {
		logger.Infof("  ✓ HTTP server stopped")
	}

	logger.Infof("  → Closing database...")
	database.Close()
	logger.Infof("  ✓ Database closed")

	if cfg.Redis.Enabled {
		logger.Infof("  → Closing Redis...")
		pkgredis.Close()
		logger.Infof("  ✓ Redis closed")
	}

	logger.Infof("Shutdown complete")
}

// printStartupBanner 打印启动横幅
func printStartupBanner(cfg *config.Config) {
	logger.Infof("")
	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Infof("PortalForge API Server")
	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Infof("")
	logger.Infof("Features:")
	logger.Infof("   • Request templates with multi-step approval chains")
	logger.Infof("   • Approval quizzes with automatic rejection")
	logger.Infof("   • Vacation entitlement ledger with business-day accounting")
	logger.Infof("   • Full audit trail of every decision")
	logger.Infof("")
	logger.Infof("   • Web API  - :%d", cfg.Server.APIPort)
	logger.Infof("   • Metrics  - :%d/metrics", cfg.Server.APIPort)
	logger.Infof("")
	logger.Infof("━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━━")
	logger.Infof("")
}
