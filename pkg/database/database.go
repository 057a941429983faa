package database

import (
	"fmt"

	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"gorm.io/gorm"
)

var DB *gorm.DB

func Init(cfg *config.DatabaseConfig) error {
	// 设置默认值
	cfg.SetDefaults()

	// 初始化数据库连接（内部已经 Ping 验证）
	if err := InitDatabase(cfg); err != nil {
		return err
	}

	if DB == nil {
		return fmt.Errorf("database connection is nil after InitDatabase")
	}
	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance after InitDatabase: %w", err)
	}
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database connection lost before migration: %w", err)
	}

	// 检查并自动迁移表（仅在表不存在时）
	if err := AutoMigrateAll(); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	// 验证连接在迁移后仍然可用
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("database connection lost after migration: %w", err)
	}

	logger.Infof("Database initialized successfully")
	return nil
}

func Close() error {
	sqlDB, err := DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
