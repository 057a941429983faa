package database

import (
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	_ "github.com/go-sql-driver/mysql" // MySQL driver
	"github.com/google/uuid"
	_ "github.com/lib/pq" // PostgreSQL driver
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormLogger "gorm.io/gorm/logger"
)

// InitDatabase 初始化数据库（支持 MySQL 和 PostgreSQL）
func InitDatabase(cfg *config.DatabaseConfig) error {
	var err error
	var dialector gorm.Dialector

	// 根据配置选择数据库驱动
	switch cfg.Driver {
	case "postgres", "postgresql":
		// PostgreSQL: 先创建数据库（如果不存在）
		if err := createPostgresDatabase(cfg); err != nil {
			return fmt.Errorf("failed to create PostgreSQL database: %w", err)
		}
		dialector = postgres.Open(cfg.DSN())
	case "mysql", "":
		// MySQL: 先创建数据库（如果不存在）
		if err := createMySQLDatabase(cfg); err != nil {
			return fmt.Errorf("failed to create MySQL database: %w", err)
		}
		dialector = mysql.Open(cfg.DSN())
	default:
		return fmt.Errorf("unsupported database driver: %s (supported: mysql, postgres)", cfg.Driver)
	}

	logger.Infof("Connecting to %s database...", cfg.Driver)

	DB, err = gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger.New(
			log.New(os.Stdout, "\r\n", log.LstdFlags),
			gormLogger.Config{
				SlowThreshold:             time.Second,
				LogLevel:                  gormLogger.Warn,
				IgnoreRecordNotFoundError: true,
				Colorful:                  false,
			},
		),
	})

	if err != nil {
		return fmt.Errorf("failed to connect database: %w", err)
	}

	sqlDB, err := DB.DB()
	if err != nil {
		return fmt.Errorf("failed to get database instance: %w", err)
	}

	maxOpenConns := cfg.MaxOpenConns
	if maxOpenConns <= 0 {
		maxOpenConns = 100
	}
	sqlDB.SetMaxOpenConns(maxOpenConns)

	maxIdleConns := cfg.MaxIdleConns
	if maxIdleConns <= 0 {
		maxIdleConns = 10
	}
	if maxIdleConns > maxOpenConns {
		maxIdleConns = maxOpenConns
	}
	sqlDB.SetMaxIdleConns(maxIdleConns)

	connMaxLifetime := cfg.ConnMaxLifetime
	if connMaxLifetime <= 0 {
		connMaxLifetime = 3600
	}
	sqlDB.SetConnMaxLifetime(time.Duration(connMaxLifetime) * time.Second)

	logger.Infof("Database connection pool configured: MaxOpenConns=%d, MaxIdleConns=%d, ConnMaxLifetime=%ds",
		maxOpenConns, maxIdleConns, connMaxLifetime)

	// 立即 Ping 数据库以确保连接可用
	if err := sqlDB.Ping(); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}

	logger.Infof("Database connection verified successfully")
	return nil
}

// createMySQLDatabase 创建 MySQL 数据库（如果不存在）
// 使用 database/sql 而不是 GORM，避免影响主连接
func createMySQLDatabase(cfg *config.DatabaseConfig) error {
	// 连接到 MySQL 服务器（不指定数据库）
	dsnWithoutDB := fmt.Sprintf("%s:%s@tcp(%s:%d)/?charset=utf8mb4&parseTime=True&loc=Local",
		cfg.User, cfg.Password, cfg.Host, cfg.Port)

	db, err := sql.Open("mysql", dsnWithoutDB)
	if err != nil {
		return fmt.Errorf("failed to connect to MySQL server: %w", err)
	}
	defer db.Close() // 确保关闭临时连接

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Second)

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping MySQL server: %w", err)
	}

	// 创建数据库（如果不存在）
	createDBSQL := fmt.Sprintf("CREATE DATABASE IF NOT EXISTS `%s` CHARACTER SET utf8mb4 COLLATE utf8mb4_unicode_ci", cfg.DBName)
	if _, err := db.Exec(createDBSQL); err != nil {
		return fmt.Errorf("failed to create database: %w", err)
	}

	logger.Infof("Database '%s' created or already exists", cfg.DBName)
	return nil
}

// createPostgresDatabase 创建 PostgreSQL 数据库（如果不存在）
// 使用 database/sql 而不是 GORM，避免影响主连接
func createPostgresDatabase(cfg *config.DatabaseConfig) error {
	// PostgreSQL 需要连接到默认的 postgres 数据库来创建新数据库
	dsnPostgres := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=postgres sslmode=disable",
		cfg.Host, cfg.Port, cfg.User, cfg.Password)

	db, err := sql.Open("postgres", dsnPostgres)
	if err != nil {
		// 如果连接 postgres 数据库失败，尝试连接 template1
		dsnTemplate1 := fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=template1 sslmode=disable",
			cfg.Host, cfg.Port, cfg.User, cfg.Password)
		db, err = sql.Open("postgres", dsnTemplate1)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL server: %w", err)
		}
	}
	defer db.Close()

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(30 * time.Second)

	if err := db.Ping(); err != nil {
		return fmt.Errorf("failed to ping PostgreSQL server: %w", err)
	}

	// 检查数据库是否已存在
	var count int64
	checkSQL := "SELECT COUNT(*) FROM pg_database WHERE datname = $1"
	if err := db.QueryRow(checkSQL, cfg.DBName).Scan(&count); err != nil {
		return fmt.Errorf("failed to check database existence: %w", err)
	}

	if count == 0 {
		createDBSQL := fmt.Sprintf("CREATE DATABASE %s", cfg.DBName)
		if _, err := db.Exec(createDBSQL); err != nil {
			return fmt.Errorf("failed to create database: %w", err)
		}
		logger.Infof("Database '%s' created successfully", cfg.DBName)
	} else {
		logger.Infof("Database '%s' already exists", cfg.DBName)
	}

	return nil
}

// CheckTableExists 检查表是否存在
func CheckTableExists(tableName string) (bool, error) {
	if DB == nil {
		return false, fmt.Errorf("database connection is not initialized")
	}

	var count int64
	var err error

	// 根据数据库类型使用不同的查询
	if DB.Dialector.Name() == "postgres" {
		err = DB.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = 'public' AND table_name = ?", tableName).Scan(&count).Error
	} else {
		// MySQL
		err = DB.Raw("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name = ?", tableName).Scan(&count).Error
	}

	if err != nil {
		return false, err
	}

	return count > 0, nil
}

// AutoMigrateAll 自动迁移所有表（仅在表不存在时创建）
func AutoMigrateAll() error {
	if DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	logger.Info("Checking database tables...")

	tables := []interface{}{
		&model.User{},
		&model.Department{},
		&model.UserGroup{},
		&model.UserGroupMember{},
		&model.RequestTemplate{},
		&model.ApprovalStepTemplate{},
		&model.QuizQuestion{},
		&model.Request{},
		&model.ApprovalStep{},
		&model.VacationSchedule{},
		&model.Holiday{},
		&model.Notification{},
		&model.ChangeLog{},
		&model.OperationLog{},
	}

	// 检查每个表是否存在，只迁移不存在的表
	var tablesToMigrate []interface{}
	for _, table := range tables {
		stmt := &gorm.Statement{DB: DB}
		if err := stmt.Parse(table); err != nil {
			logger.Warnf("Failed to parse table model: %v", err)
			continue
		}
		tableName := stmt.Schema.Table
		exists, err := CheckTableExists(tableName)
		if err != nil {
			logger.Warnf("Failed to check table %s: %v", tableName, err)
			// 检查失败仍然尝试迁移（可能是权限问题，但迁移可能会成功）
			tablesToMigrate = append(tablesToMigrate, table)
			continue
		}
		if !exists {
			logger.Infof("Table %s does not exist, will be created", tableName)
			tablesToMigrate = append(tablesToMigrate, table)
		} else {
			logger.Debugf("Table %s already exists, skipping", tableName)
		}
	}

	if len(tablesToMigrate) == 0 {
		logger.Info("All database tables already exist, no migration needed")
		return nil
	}

	logger.Infof("Starting auto-migration for %d table(s)...", len(tablesToMigrate))
	if err := DB.AutoMigrate(tablesToMigrate...); err != nil {
		return fmt.Errorf("failed to auto-migrate database: %w", err)
	}

	logger.Infof("Successfully migrated %d table(s)", len(tablesToMigrate))

	// 创建默认数据（管理员用户、法定节假日等）
	if err := createDefaultData(); err != nil {
		logger.Warnf("Failed to create default data: %v", err)
		// 不返回错误，因为表已经创建成功，默认数据可以后续手动创建
	}

	return nil
}

// createDefaultData 创建默认数据
func createDefaultData() error {
	if DB == nil {
		return fmt.Errorf("database connection is not initialized")
	}

	logger.Info("Creating default data...")

	if err := createDefaultDepartment(); err != nil {
		logger.Warnf("Failed to create default department: %v", err)
	}

	if err := createDefaultAdmin(); err != nil {
		logger.Warnf("Failed to create default admin user: %v", err)
	}

	if err := createDefaultHolidays(); err != nil {
		logger.Warnf("Failed to create default holidays: %v", err)
	}

	logger.Info("Default data creation completed")
	return nil
}

// createDefaultDepartment 创建默认部门
func createDefaultDepartment() error {
	dept := model.Department{
		Name:        "General",
		Description: "Default department",
	}

	var existing model.Department
	result := DB.Where("name = ?", dept.Name).First(&existing)
	if result.Error != nil {
		if err := DB.Create(&dept).Error; err != nil {
			return fmt.Errorf("failed to create default department: %w", err)
		}
		logger.Infof("Created default department: %s", dept.Name)
	}

	return nil
}

// createDefaultAdmin 创建默认管理员用户
func createDefaultAdmin() error {
	var existingUser model.User
	result := DB.Where("username = ?", "admin").First(&existingUser)
	if result.Error == nil {
		return nil
	}

	var dept model.Department
	if err := DB.Where("name = ?", "General").First(&dept).Error; err != nil {
		return fmt.Errorf("default department not found: %w", err)
	}

	// Password hash for 'admin123': $2a$10$j/lQBaOvW9dMo/O13g65qeCwYnxuaZerNcB/eA3IZZXxRp4MbePhG
	adminEmail := "admin@portalforge.local"
	defaultUser := model.User{
		ID:                 "00000000-0000-0000-0000-000000000001",
		Username:           "admin",
		Password:           "$2a$10$j/lQBaOvW9dMo/O13g65qeCwYnxuaZerNcB/eA3IZZXxRp4MbePhG", // bcrypt hash of 'admin123'
		FullName:           "System Admin",
		Email:              &adminEmail,
		Role:               model.RoleAdmin,
		Status:             "active",
		DepartmentID:       &dept.ID,
		AnnualVacationDays: config.GlobalConfig.Vacation.DefaultAnnualDays,
	}

	if err := DB.Create(&defaultUser).Error; err != nil {
		return fmt.Errorf("failed to create default user: %w", err)
	}

	logger.Infof("Created default admin user: admin/admin123")
	return nil
}

// createDefaultHolidays 创建当年的固定法定节假日
// 移动节假日（复活节相关）每年不同，需要管理员手动维护
func createDefaultHolidays() error {
	var count int64
	DB.Model(&model.Holiday{}).Count(&count)
	if count > 0 {
		return nil // 已有节假日数据，跳过
	}

	year := time.Now().Year()
	fixed := []struct {
		month time.Month
		day   int
		name  string
	}{
		{time.January, 1, "New Year's Day"},
		{time.January, 6, "Epiphany"},
		{time.May, 1, "Labour Day"},
		{time.May, 3, "Constitution Day"},
		{time.August, 15, "Assumption Day"},
		{time.November, 1, "All Saints' Day"},
		{time.November, 11, "Independence Day"},
		{time.December, 25, "Christmas Day"},
		{time.December, 26, "Second Day of Christmas"},
	}

	for _, h := range fixed {
		holiday := model.Holiday{
			ID:   uuid.New().String(),
			Date: time.Date(year, h.month, h.day, 0, 0, 0, 0, time.UTC),
			Name: h.name,
		}
		if err := DB.Create(&holiday).Error; err != nil {
			logger.Warnf("Failed to create holiday %s: %v", h.name, err)
		}
	}

	logger.Infof("Created %d default holidays for year %d", len(fixed), year)
	return nil
}
