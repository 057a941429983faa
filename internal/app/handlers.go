package app

import (
	authHandler "github.com/vesperino/portalforge-backend/internal/api/handler/auth"
	notificationHandler "github.com/vesperino/portalforge-backend/internal/api/handler/notification"
	requestHandler "github.com/vesperino/portalforge-backend/internal/api/handler/request"
	templateHandler "github.com/vesperino/portalforge-backend/internal/api/handler/template"
	vacationHandler "github.com/vesperino/portalforge-backend/internal/api/handler/vacation"
)

// Handlers 包含所有 HTTP Handler 实例
type Handlers struct {
	Auth         *authHandler.AuthHandler
	Request      *requestHandler.RequestHandler
	Vacation     *vacationHandler.VacationHandler
	Template     *templateHandler.TemplateHandler
	Notification *notificationHandler.NotificationHandler
}

// InitializeHandlers 初始化所有 Handler
func InitializeHandlers(repos *Repositories, services *Services) *Handlers {
	return &Handlers{
		Auth:         authHandler.NewAuthHandler(services.Auth),
		Request:      requestHandler.NewRequestHandler(services.Approval, services.Machine, services.Bulk, repos.User, repos.Request, repos.Template),
		Vacation:     vacationHandler.NewVacationHandler(services.Ledger, repos.User, repos.Vacation),
		Template:     templateHandler.NewTemplateHandler(repos.Template),
		Notification: notificationHandler.NewNotificationHandler(repos.Notification),
	}
}
