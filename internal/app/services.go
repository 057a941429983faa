package app

import (
	"time"

	"github.com/vesperino/portalforge-backend/internal/audit"
	"github.com/vesperino/portalforge-backend/internal/notification"
	"github.com/vesperino/portalforge-backend/internal/service/approval"
	"github.com/vesperino/portalforge-backend/internal/service/auth"
	"github.com/vesperino/portalforge-backend/internal/service/quiz"
	"github.com/vesperino/portalforge-backend/internal/service/vacation"
	"github.com/vesperino/portalforge-backend/pkg/config"
)

// Services 包含所有业务服务实例
type Services struct {
	Auth     *auth.AuthService
	Calendar *vacation.Calendar
	Ledger   *vacation.Ledger
	Resolver *approval.Resolver
	Machine  *approval.Machine
	Approval *approval.Service
	Bulk     *approval.BulkCoordinator
}

// InitializeServices 初始化所有业务服务
func InitializeServices(
	repos *Repositories,
	cfg *config.Config,
	auditor audit.Auditor,
	dispatcher *notification.Dispatcher,
) *Services {
	authService := auth.NewAuthService(repos.User, cfg.Security.JWTSecret, cfg.Security.TokenExpireHours)

	calendar := vacation.NewCalendar(repos.Vacation, time.Duration(cfg.Vacation.HolidayCacheTTL)*time.Second)
	ledger := vacation.NewLedger(repos.User, repos.Vacation, calendar, auditor, dispatcher, &cfg.Vacation)

	resolver := approval.NewResolver(repos.User)
	evaluator := quiz.NewEvaluator(repos.Template)
	machine := approval.NewMachine(repos.Request, repos.Template, repos.User, resolver, evaluator, ledger, auditor, dispatcher, &cfg.Approval)
	approvalService := approval.NewService(repos.Request, repos.Template, repos.User, resolver, ledger, auditor, dispatcher)
	bulk := approval.NewBulkCoordinator(machine, repos.Request)

	return &Services{
		Auth:     authService,
		Calendar: calendar,
		Ledger:   ledger,
		Resolver: resolver,
		Machine:  machine,
		Approval: approvalService,
		Bulk:     bulk,
	}
}
