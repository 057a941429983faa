package app

import (
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/pkg/database"
)

// Repositories 包含所有 Repository 实例
type Repositories struct {
	User         *repository.UserRepository
	Template     *repository.TemplateRepository
	Request      *repository.RequestRepository
	Vacation     *repository.VacationRepository
	Notification *repository.NotificationRepository
}

// InitializeRepositories 初始化所有 Repository
func InitializeRepositories() *Repositories {
	return &Repositories{
		User:         repository.NewUserRepository(database.DB),
		Template:     repository.NewTemplateRepository(database.DB),
		Request:      repository.NewRequestRepository(database.DB),
		Vacation:     repository.NewVacationRepository(database.DB),
		Notification: repository.NewNotificationRepository(database.DB),
	}
}
