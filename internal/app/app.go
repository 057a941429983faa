package app

import (
	"github.com/vesperino/portalforge-backend/internal/audit"
	"github.com/vesperino/portalforge-backend/internal/notification"
	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/vesperino/portalforge-backend/pkg/database"
	"github.com/vesperino/portalforge-backend/pkg/logger"
)

// App 应用程序上下文
type App struct {
	Config     *config.Config
	Repos      *Repositories
	Services   *Services
	Handlers   *Handlers
	Auditor    audit.Auditor
	Dispatcher *notification.Dispatcher
}

// Initialize 初始化应用程序
func Initialize(cfgPath string) (*App, error) {
	// 1. Bootstrap (logger, database, redis)
	cfg, err := Bootstrap(cfgPath)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			database.Close()
		}
	}()

	// 2. Initialize repositories
	repos := InitializeRepositories()
	logger.Infof("Repositories initialized")

	// 3. Initialize audit service
	auditor := audit.NewDatabaseAuditor()
	logger.Infof("Audit service initialized")

	// 4. Initialize notification dispatcher (webhook channels optional)
	var notifiers []notification.Notifier
	if cfg.Webhook.FeishuURL != "" {
		notifiers = append(notifiers, notification.NewFeishuNotifier(cfg.Webhook.FeishuURL, cfg.Webhook.FeishuSecret))
		logger.Infof("Feishu webhook notifier enabled")
	}
	if cfg.Webhook.DingTalkURL != "" {
		notifiers = append(notifiers, notification.NewDingTalkNotifier(cfg.Webhook.DingTalkURL, cfg.Webhook.DingTalkSecret))
		logger.Infof("DingTalk webhook notifier enabled")
	}
	dispatcher := notification.NewDispatcher(repos.Notification, notifiers...)
	logger.Infof("Notification dispatcher initialized")

	// 5. Initialize services
	services := InitializeServices(repos, cfg, auditor, dispatcher)
	logger.Infof("Services initialized")

	// 6. Initialize handlers
	handlers := InitializeHandlers(repos, services)
	logger.Infof("Handlers initialized")

	return &App{
		Config:     cfg,
		Repos:      repos,
		Services:   services,
		Handlers:   handlers,
		Auditor:    auditor,
		Dispatcher: dispatcher,
	}, nil
}
