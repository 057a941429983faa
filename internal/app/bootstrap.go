package app

import (
	"log"
	"os"

	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/vesperino/portalforge-backend/pkg/database"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	pkgredis "github.com/vesperino/portalforge-backend/pkg/redis"
)

// Bootstrap 初始化基础设施（logger, database, redis）
func Bootstrap(cfgPath string) (*config.Config, error) {
	// 支持通过环境变量指定配置文件路径
	if cfgPath == "" {
		cfgPath = os.Getenv("PORTALFORGE_CONFIG")
		if cfgPath == "" {
			cfgPath = "config/config.yaml"
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, err
	}

	// Initialize logger
	if err := logger.Init(&cfg.Logging); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}

	// Initialize database
	if err := database.Init(&cfg.Database); err != nil {
		logger.Fatalf("Failed to initialize database: %v", err)
	}
	logger.Infof("Database initialized successfully")

	// Initialize Redis (optional, for distributed features)
	if err := pkgredis.Init(&cfg.Redis); err != nil {
		logger.Warnf("Redis initialization failed: %v", err)
		logger.Info("   → Ledger adjustments will rely on database row locks only")
	} else if cfg.Redis.Enabled {
		logger.Infof("Redis initialized successfully - distributed locks enabled")
	} else {
		logger.Info("Redis is disabled in config - using database locks only")
	}

	return cfg, nil
}
