package vacation

import (
	"context"
	"fmt"
	"time"

	"github.com/vesperino/portalforge-backend/internal/audit"
	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/notification"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/vesperino/portalforge-backend/pkg/distributed"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"github.com/vesperino/portalforge-backend/pkg/metrics"
	pkgredis "github.com/vesperino/portalforge-backend/pkg/redis"
	"gorm.io/gorm"
)

// LedgerCounters 台账计数器快照（审计记录里的old/new值）
type LedgerCounters struct {
	AnnualVacationDays          int        `json:"annual_vacation_days"`
	VacationDaysUsed            int        `json:"vacation_days_used"`
	OnDemandVacationDaysUsed    int        `json:"on_demand_vacation_days_used"`
	CircumstantialLeaveDaysUsed int        `json:"circumstantial_leave_days_used"`
	CarriedOverVacationDays     int        `json:"carried_over_vacation_days"`
	CarriedOverExpiryDate       *time.Time `json:"carried_over_expiry_date,omitempty"`
}

func countersOf(u *model.User) LedgerCounters {
	return LedgerCounters{
		AnnualVacationDays:          u.AnnualVacationDays,
		VacationDaysUsed:            u.VacationDaysUsed,
		OnDemandVacationDaysUsed:    u.OnDemandVacationDaysUsed,
		CircumstantialLeaveDaysUsed: u.CircumstantialLeaveDaysUsed,
		CarriedOverVacationDays:     u.CarriedOverVacationDays,
		CarriedOverExpiryDate:       u.CarriedOverExpiryDate,
	}
}

// AdjustInput 管理员台账调整输入
// 指针字段为nil表示不调整该项
type AdjustInput struct {
	AnnualVacationDays      *int       `json:"annual_vacation_days"`
	VacationDaysUsed        *int       `json:"vacation_days_used"`
	OnDemandDaysUsed        *int       `json:"on_demand_vacation_days_used"`
	CircumstantialDaysUsed  *int       `json:"circumstantial_leave_days_used"`
	CarriedOverVacationDays *int       `json:"carried_over_vacation_days"`
	CarriedOverExpiryDate   *time.Time `json:"carried_over_expiry_date"`
	Comment                 string     `json:"comment"`
}

// Ledger 假期台账
// 用户行上的计数器是权威余额，只在审批通过入账和管理员调整时变动，
// 且始终与排期记录写在同一事务中
type Ledger struct {
	userRepo     *repository.UserRepository
	vacationRepo *repository.VacationRepository
	calendar     *Calendar
	auditor      audit.Auditor
	dispatcher   *notification.Dispatcher
	cfg          *config.VacationConfig
}

func NewLedger(
	userRepo *repository.UserRepository,
	vacationRepo *repository.VacationRepository,
	calendar *Calendar,
	auditor audit.Auditor,
	dispatcher *notification.Dispatcher,
	cfg *config.VacationConfig,
) *Ledger {
	return &Ledger{
		userRepo:     userRepo,
		vacationRepo: vacationRepo,
		calendar:     calendar,
		auditor:      auditor,
		dispatcher:   dispatcher,
		cfg:          cfg,
	}
}

// Calendar 暴露工作日计算器
func (l *Ledger) Calendar() *Calendar {
	return l.calendar
}

// effectiveCarriedOver 未过期的结转天数
func effectiveCarriedOver(u *model.User, asOf time.Time) int {
	if u.CarriedOverVacationDays <= 0 {
		return 0
	}
	if u.CarriedOverExpiryDate != nil && asOf.After(*u.CarriedOverExpiryDate) {
		return 0
	}
	return u.CarriedOverVacationDays
}

// remainingVacationDays 标准假期池剩余天数
// 年假和按需休假消耗同一个池，按需休假额外受年度上限约束
func (l *Ledger) remainingVacationDays(u *model.User, asOf time.Time) int {
	remaining := u.AnnualVacationDays + effectiveCarriedOver(u, asOf) -
		u.VacationDaysUsed - u.OnDemandVacationDaysUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// CheckAvailability 校验一次休假申请是否在额度内
// 提交时和入账时各调用一次，入账时必须持有用户行锁
func (l *Ledger) CheckAvailability(u *model.User, leaveType string, days int, asOf time.Time) error {
	if days <= 0 {
		return errs.Validation("requested range contains no business days")
	}

	switch leaveType {
	case model.LeaveTypeAnnual:
		if remaining := l.remainingVacationDays(u, asOf); days > remaining {
			return errs.Business("insufficient vacation days: requested %d, remaining %d", days, remaining)
		}
	case model.LeaveTypeOnDemand:
		if remaining := l.remainingVacationDays(u, asOf); days > remaining {
			return errs.Business("insufficient vacation days: requested %d, remaining %d", days, remaining)
		}
		if u.OnDemandVacationDaysUsed+days > l.cfg.OnDemandCap {
			return errs.Business("on-demand leave cap exceeded: used %d of %d, requested %d",
				u.OnDemandVacationDaysUsed, l.cfg.OnDemandCap, days)
		}
	case model.LeaveTypeCircumstantial:
		// 特殊事假按单次事件限制，不消耗年假池
		if days > l.cfg.CircumstantialCap {
			return errs.Business("circumstantial leave limited to %d days per event, requested %d",
				l.cfg.CircumstantialCap, days)
		}
	default:
		return errs.Validation("invalid leave type: %s", leaveType)
	}

	return nil
}

// ValidateRequest 提交假期申请前的完整校验
// 计算工作日数并检查额度与排期重叠
func (l *Ledger) ValidateRequest(u *model.User, leaveType string, start, end time.Time) (int, error) {
	if !model.IsValidLeaveType(leaveType) {
		return 0, errs.Validation("invalid leave type: %s", leaveType)
	}

	days, err := l.calendar.ComputeBusinessDays(start, end)
	if err != nil {
		return 0, err
	}

	if err := l.CheckAvailability(u, leaveType, days, time.Now()); err != nil {
		return 0, err
	}

	overlaps, err := l.vacationRepo.HasOverlappingSchedule(u.ID, truncateToDate(start), truncateToDate(end))
	if err != nil {
		return 0, err
	}
	if overlaps {
		return 0, errs.Business("requested range overlaps an already scheduled vacation")
	}

	return days, nil
}

// Commit 假期入账：必须在审批事务中调用
// 锁定用户行，重新校验额度（余额可能在审批期间变化），
// 恰好递增一个计数器并创建排期记录。排期记录的RequestID唯一约束保证幂等。
func (l *Ledger) Commit(ctx context.Context, tx *gorm.DB, request *model.Request) error {
	if request.StartDate == nil || request.EndDate == nil {
		return errs.Validation("vacation request %d is missing dates", request.ID)
	}

	exists, err := l.vacationRepo.ScheduleExistsForRequest(tx, request.ID)
	if err != nil {
		return err
	}
	if exists {
		logger.Warnf("Vacation for request %d already committed, skipping", request.ID)
		return nil
	}

	user, err := l.userRepo.FindUserByIDForUpdate(tx, request.SubmitterID)
	if err != nil {
		return fmt.Errorf("failed to lock user %s: %w", request.SubmitterID, err)
	}

	now := time.Now()
	if err := l.CheckAvailability(user, request.LeaveType, request.DaysCount, now); err != nil {
		return err
	}

	before := countersOf(user)

	switch request.LeaveType {
	case model.LeaveTypeAnnual:
		user.VacationDaysUsed += request.DaysCount
	case model.LeaveTypeOnDemand:
		user.OnDemandVacationDaysUsed += request.DaysCount
	case model.LeaveTypeCircumstantial:
		user.CircumstantialLeaveDaysUsed += request.DaysCount
	}

	if err := tx.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update vacation counters: %w", err)
	}

	schedule := &model.VacationSchedule{
		RequestID: request.ID,
		UserID:    user.ID,
		LeaveType: request.LeaveType,
		Status:    model.ScheduleStatusApproved,
		StartDate: truncateToDate(*request.StartDate),
		EndDate:   truncateToDate(*request.EndDate),
		DaysCount: request.DaysCount,
	}
	if err := l.vacationRepo.CreateSchedule(tx, schedule); err != nil {
		return fmt.Errorf("failed to create vacation schedule: %w", err)
	}

	entry := &audit.Entry{
		RequestID: &request.ID,
		Action:    model.ChangeActionLedgerCommit,
		ActorID:   user.ID,
		ActorName: user.FullName,
		TargetID:  user.ID,
		OldValue:  before,
		NewValue:  countersOf(user),
		Comment:   fmt.Sprintf("%s: %d day(s)", request.LeaveType, request.DaysCount),
	}
	if err := l.auditor.Record(ctx, tx, entry); err != nil {
		return err
	}

	metrics.VacationDaysCommittedTotal.WithLabelValues(request.LeaveType).
		Add(float64(request.DaysCount))

	return nil
}

// Revert 撤回已批假期时回滚入账：必须在撤回事务中调用
// 对称于 Commit：递减对应计数器，排期记录改标 cancelled。
// 该申请从未入账或已回滚时返回 InvalidState。
func (l *Ledger) Revert(ctx context.Context, tx *gorm.DB, request *model.Request, actor *model.User) error {
	schedule, err := l.vacationRepo.FindScheduleForRequestForUpdate(tx, request.ID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return errs.InvalidState("vacation for request %d was never committed", request.ID)
		}
		return err
	}
	if schedule.Status == model.ScheduleStatusCancelled {
		return errs.InvalidState("vacation for request %d has already been reverted", request.ID)
	}

	user, err := l.userRepo.FindUserByIDForUpdate(tx, schedule.UserID)
	if err != nil {
		return fmt.Errorf("failed to lock user %s: %w", schedule.UserID, err)
	}

	before := countersOf(user)

	switch schedule.LeaveType {
	case model.LeaveTypeAnnual:
		user.VacationDaysUsed -= schedule.DaysCount
	case model.LeaveTypeOnDemand:
		user.OnDemandVacationDaysUsed -= schedule.DaysCount
	case model.LeaveTypeCircumstantial:
		user.CircumstantialLeaveDaysUsed -= schedule.DaysCount
	}
	// 管理员可能在入账后下调过计数器，回滚不把余额变成负数
	if user.VacationDaysUsed < 0 {
		logger.Warnf("Vacation counter underflow for user %s on revert of request %d, clamping to 0",
			user.ID, request.ID)
		user.VacationDaysUsed = 0
	}
	if user.OnDemandVacationDaysUsed < 0 {
		user.OnDemandVacationDaysUsed = 0
	}
	if user.CircumstantialLeaveDaysUsed < 0 {
		user.CircumstantialLeaveDaysUsed = 0
	}

	if err := tx.Save(user).Error; err != nil {
		return fmt.Errorf("failed to update vacation counters: %w", err)
	}

	if err := l.vacationRepo.UpdateScheduleStatus(tx, schedule.ID, model.ScheduleStatusCancelled); err != nil {
		return fmt.Errorf("failed to cancel vacation schedule: %w", err)
	}

	entry := &audit.Entry{
		RequestID: &request.ID,
		Action:    model.ChangeActionLedgerRevert,
		ActorID:   actor.ID,
		ActorName: actor.FullName,
		TargetID:  user.ID,
		OldValue:  before,
		NewValue:  countersOf(user),
		Comment:   fmt.Sprintf("%s: %d day(s) returned", schedule.LeaveType, schedule.DaysCount),
	}
	if err := l.auditor.Record(ctx, tx, entry); err != nil {
		return err
	}

	metrics.VacationDaysRevertedTotal.WithLabelValues(schedule.LeaveType).
		Add(float64(schedule.DaysCount))

	return nil
}

// Summary 假期余额汇总
// 计数器是权威值；排期推导值仅用于交叉校验，不一致时打警告日志
func (l *Ledger) Summary(userID string, year int) (*model.VacationSummary, error) {
	user, err := l.userRepo.FindUserByID(userID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFound("user %s not found", userID)
		}
		return nil, err
	}

	now := time.Now()
	if year == 0 {
		year = now.Year()
	}

	summary := &model.VacationSummary{
		UserID:                      user.ID,
		Year:                        year,
		AnnualVacationDays:          user.AnnualVacationDays,
		CarriedOverVacationDays:     effectiveCarriedOver(user, now),
		CarriedOverExpiryDate:       user.CarriedOverExpiryDate,
		VacationDaysUsed:            user.VacationDaysUsed,
		OnDemandVacationDaysUsed:    user.OnDemandVacationDaysUsed,
		OnDemandVacationDaysLimit:   l.cfg.OnDemandCap,
		CircumstantialLeaveDaysUsed: user.CircumstantialLeaveDaysUsed,
		RemainingVacationDays:       l.remainingVacationDays(user, now),
	}

	pendingAnnual, err := l.vacationRepo.SumPendingDays(userID, model.LeaveTypeAnnual)
	if err != nil {
		return nil, err
	}
	pendingOnDemand, err := l.vacationRepo.SumPendingDays(userID, model.LeaveTypeOnDemand)
	if err != nil {
		return nil, err
	}
	summary.PendingVacationDays = pendingAnnual + pendingOnDemand

	// 交叉校验：排期推导的年假消耗应与计数器一致
	scheduledAnnual, err := l.vacationRepo.SumScheduledDays(userID, model.LeaveTypeAnnual, year)
	if err == nil {
		if scheduledAnnual != user.VacationDaysUsed {
			logger.Warnf("Vacation counter mismatch for user %s: counter=%d, schedules=%d (counter is authoritative)",
				userID, user.VacationDaysUsed, scheduledAnnual)
		}
	}

	return summary, nil
}

// Schedules 某用户的假期排期
func (l *Ledger) Schedules(userID string, year int) ([]model.VacationSchedule, error) {
	return l.vacationRepo.FindSchedulesByUser(userID, year)
}

// AdminAdjust 管理员调整用户假期台账
// 多实例部署时通过Redis锁串行化同一用户的调整；Redis不可用时退化为仅数据库行锁
func (l *Ledger) AdminAdjust(ctx context.Context, actor *model.User, targetUserID string, input *AdjustInput) (*model.User, error) {
	if actor.Role != model.RoleAdmin && actor.Role != model.RoleHR {
		return nil, errs.Forbidden("only admin or hr can adjust vacation ledgers")
	}

	lock := distributed.NewRedisLock(pkgredis.GetClient(),
		fmt.Sprintf("vacation:ledger:%s", targetUserID), 10*time.Second)
	if acquired, err := lock.TryLock(); err != nil {
		logger.Warnf("Failed to acquire ledger lock for user %s: %v", targetUserID, err)
	} else if acquired {
		defer lock.Unlock()
	}

	var updated *model.User
	err := l.vacationRepo.DB().Transaction(func(tx *gorm.DB) error {
		user, err := l.userRepo.FindUserByIDForUpdate(tx, targetUserID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return errs.NotFound("user %s not found", targetUserID)
			}
			return err
		}

		before := countersOf(user)

		if input.AnnualVacationDays != nil {
			if *input.AnnualVacationDays < 0 {
				return errs.Validation("annual vacation days cannot be negative")
			}
			user.AnnualVacationDays = *input.AnnualVacationDays
		}
		if input.VacationDaysUsed != nil {
			if *input.VacationDaysUsed < 0 {
				return errs.Validation("vacation days used cannot be negative")
			}
			user.VacationDaysUsed = *input.VacationDaysUsed
		}
		if input.OnDemandDaysUsed != nil {
			if *input.OnDemandDaysUsed < 0 || *input.OnDemandDaysUsed > l.cfg.OnDemandCap {
				return errs.Validation("on-demand days used must be between 0 and %d", l.cfg.OnDemandCap)
			}
			user.OnDemandVacationDaysUsed = *input.OnDemandDaysUsed
		}
		if input.CircumstantialDaysUsed != nil {
			if *input.CircumstantialDaysUsed < 0 {
				return errs.Validation("circumstantial days used cannot be negative")
			}
			user.CircumstantialLeaveDaysUsed = *input.CircumstantialDaysUsed
		}
		if input.CarriedOverVacationDays != nil {
			if *input.CarriedOverVacationDays < 0 {
				return errs.Validation("carried-over days cannot be negative")
			}
			user.CarriedOverVacationDays = *input.CarriedOverVacationDays
		}
		if input.CarriedOverExpiryDate != nil {
			user.CarriedOverExpiryDate = input.CarriedOverExpiryDate
		}

		if err := tx.Save(user).Error; err != nil {
			return fmt.Errorf("failed to save ledger adjustment: %w", err)
		}

		entry := &audit.Entry{
			Action:    model.ChangeActionLedgerAdjust,
			ActorID:   actor.ID,
			ActorName: actor.FullName,
			TargetID:  user.ID,
			OldValue:  before,
			NewValue:  countersOf(user),
			Comment:   input.Comment,
		}
		if err := l.auditor.Record(ctx, tx, entry); err != nil {
			return err
		}

		updated = user
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.VacationLedgerAdjustmentsTotal.Inc()
	l.dispatcher.NotifyLedgerAdjusted(targetUserID, actor.FullName, input.Comment)

	logger.Infof("Vacation ledger adjusted: target=%s, actor=%s", targetUserID, actor.Username)
	return updated, nil
}
