package config

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Server   ServerConfig   `yaml:"server"`
	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Security SecurityConfig `yaml:"security"`
	Logging  LoggingConfig  `yaml:"logging"`
	Approval ApprovalConfig `yaml:"approval"`
	Vacation VacationConfig `yaml:"vacation"`
	Webhook  WebhookConfig  `yaml:"webhook"`
}

type ServerConfig struct {
	APIPort int    `yaml:"api_port"`
	Mode    string `yaml:"mode"` // debug / release
}

type DatabaseConfig struct {
	Driver          string `yaml:"driver"` // 数据库驱动: mysql, postgres (默认: mysql)
	Host            string `yaml:"host"`
	Port            int    `yaml:"port"`
	User            string `yaml:"user"`
	Password        string `yaml:"password"`
	DBName          string `yaml:"dbname"`
	MaxIdleConns    int    `yaml:"max_idle_conns"`
	MaxOpenConns    int    `yaml:"max_open_conns"`
	ConnMaxLifetime int    `yaml:"conn_max_lifetime"`
}

type RedisConfig struct {
	// Enabled 是否启用Redis
	// - true: 启用Redis，多实例部署时用于假期台账提交的分布式锁
	// - false: 禁用Redis，仅依赖数据库行锁（单机部署）
	Enabled bool `yaml:"enabled"`

	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`

	// ConnectTimeout 连接超时时间（秒，默认5秒）
	ConnectTimeout int `yaml:"connect_timeout"`
	ReadTimeout    int `yaml:"read_timeout"`
	WriteTimeout   int `yaml:"write_timeout"`
	PoolSize       int `yaml:"pool_size"`
	MinIdleConns   int `yaml:"min_idle_conns"`
}

// Validate 验证Redis配置
func (c *RedisConfig) Validate() error {
	if !c.Enabled {
		return nil // Redis未启用，无需验证
	}

	if c.Host == "" {
		return fmt.Errorf("redis host is required when enabled=true")
	}

	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid redis port: %d", c.Port)
	}

	return nil
}

// SetDefaults 设置默认值
func (c *RedisConfig) SetDefaults() {
	if c.Port == 0 {
		c.Port = 6379
	}
	if c.ConnectTimeout == 0 {
		c.ConnectTimeout = 5
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 3
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 3
	}
	if c.PoolSize == 0 {
		c.PoolSize = 10
	}
	if c.MinIdleConns == 0 {
		c.MinIdleConns = 5
	}
}

type SecurityConfig struct {
	// JWTSecret JWT签名密钥（建议64字节或更长，更安全）
	JWTSecret string `yaml:"jwt_secret"`

	// TokenExpireHours Token有效期（小时，默认24）
	TokenExpireHours int `yaml:"token_expire_hours"`
}

// SetDefaults 设置安全配置的默认值
func (c *SecurityConfig) SetDefaults() {
	if c.JWTSecret == "" {
		// 默认JWT密钥，仅用于开发环境，生产环境必须修改为强随机字符串
		c.JWTSecret = "hXp2uT0q7RrfEYcM1sKjd84WnQzvA6gL3oPB9iCeUwyZNxVmFbJaOGkSHtD5lI0T"
	}
	if c.TokenExpireHours == 0 {
		c.TokenExpireHours = 24
	}
}

type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug / info / warn / error
	Output string `yaml:"output"` // console / file / both
	File   string `yaml:"file"`   // 日志文件路径
}

// ApprovalConfig 审批规则配置
type ApprovalConfig struct {
	// MinRejectCommentLength 拒绝理由最小长度（字符数，默认10）
	MinRejectCommentLength int `yaml:"min_reject_comment_length"`
}

// SetDefaults 设置审批规则默认值
func (c *ApprovalConfig) SetDefaults() {
	if c.MinRejectCommentLength == 0 {
		c.MinRejectCommentLength = 10
	}
}

// VacationConfig 假期规则配置
type VacationConfig struct {
	// DefaultAnnualDays 年假默认额度（天）
	DefaultAnnualDays int `yaml:"default_annual_days"`

	// OnDemandCap 按需休假年度上限（法定4天）
	OnDemandCap int `yaml:"on_demand_cap"`

	// CircumstantialCap 特殊事假单次上限（默认2天）
	CircumstantialCap int `yaml:"circumstantial_cap"`

	// HolidayCacheTTL 节假日缓存有效期（秒，默认300）
	HolidayCacheTTL int `yaml:"holiday_cache_ttl"`
}

// SetDefaults 设置假期规则默认值
func (c *VacationConfig) SetDefaults() {
	if c.DefaultAnnualDays == 0 {
		c.DefaultAnnualDays = 26
	}
	if c.OnDemandCap == 0 {
		c.OnDemandCap = 4
	}
	if c.CircumstantialCap == 0 {
		c.CircumstantialCap = 2
	}
	if c.HolidayCacheTTL == 0 {
		c.HolidayCacheTTL = 300
	}
}

// WebhookConfig 外部通知渠道配置
// URL为空表示该渠道未启用
type WebhookConfig struct {
	FeishuURL      string `yaml:"feishu_url"`
	FeishuSecret   string `yaml:"feishu_secret"`
	DingTalkURL    string `yaml:"dingtalk_url"`
	DingTalkSecret string `yaml:"dingtalk_secret"`
}

var GlobalConfig *Config

func Load(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// 设置默认值（需要在环境变量处理之前设置）
	config.Database.SetDefaults()
	config.Redis.SetDefaults()
	config.Security.SetDefaults()
	config.Approval.SetDefaults()
	config.Vacation.SetDefaults()

	// 验证配置
	if err := config.Redis.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	// 支持通过环境变量覆盖数据库配置（Docker 部署时使用）
	if dbDriver := os.Getenv("DB_DRIVER"); dbDriver != "" {
		config.Database.Driver = dbDriver
	}
	if dbHost := os.Getenv("DB_HOST"); dbHost != "" {
		config.Database.Host = dbHost
	}
	if dbPort := os.Getenv("DB_PORT"); dbPort != "" {
		if port, err := strconv.Atoi(dbPort); err == nil {
			config.Database.Port = port
		}
	}
	if dbUser := os.Getenv("DB_USER"); dbUser != "" {
		config.Database.User = dbUser
	}
	if dbPassword := os.Getenv("DB_PASSWORD"); dbPassword != "" {
		config.Database.Password = dbPassword
	}
	if dbName := os.Getenv("DB_NAME"); dbName != "" {
		config.Database.DBName = dbName
	}

	config.Database.SetDefaults()

	// 支持通过环境变量覆盖Redis配置
	if redisEnabled := os.Getenv("REDIS_ENABLED"); redisEnabled != "" {
		if enabled, err := strconv.ParseBool(redisEnabled); err == nil {
			config.Redis.Enabled = enabled
		}
	}
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		config.Redis.Host = redisHost
	}
	if redisPort := os.Getenv("REDIS_PORT"); redisPort != "" {
		if port, err := strconv.Atoi(redisPort); err == nil {
			config.Redis.Port = port
		}
	}
	if redisPassword := os.Getenv("REDIS_PASSWORD"); redisPassword != "" {
		config.Redis.Password = redisPassword
	}

	// 重新设置并验证Redis配置（环境变量可能改变了配置）
	config.Redis.SetDefaults()
	if err := config.Redis.Validate(); err != nil {
		return nil, fmt.Errorf("invalid redis config: %w", err)
	}

	GlobalConfig = &config
	return &config, nil
}

func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" || c.Driver == "postgresql" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
			c.Host, c.Port, c.User, c.Password, c.DBName)
	}
	// 默认 MySQL
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=Local",
		c.User, c.Password, c.Host, c.Port, c.DBName)
}

// SetDefaults 设置默认值
func (c *DatabaseConfig) SetDefaults() {
	if c.Driver == "" {
		c.Driver = "mysql"
	}
	if c.MaxIdleConns == 0 {
		c.MaxIdleConns = 10
	}
	if c.MaxOpenConns == 0 {
		c.MaxOpenConns = 100
	}
	if c.ConnMaxLifetime == 0 {
		c.ConnMaxLifetime = 3600 // 1 hour
	}
}
