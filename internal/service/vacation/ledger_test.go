package vacation

import (
	"context"
	"testing"
	"time"

	"github.com/vesperino/portalforge-backend/internal/audit"
	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/notification"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestLedger(t *testing.T) (*Ledger, *gorm.DB) {
	t.Helper()
	db := newTestDB(t)
	userRepo := repository.NewUserRepository(db)
	vacationRepo := repository.NewVacationRepository(db)
	cal := NewCalendar(vacationRepo, 5*time.Minute)
	dispatcher := notification.NewDispatcher(repository.NewNotificationRepository(db))
	cfg := &config.VacationConfig{
		DefaultAnnualDays: 26,
		OnDemandCap:       4,
		CircumstantialCap: 2,
		HolidayCacheTTL:   300,
	}
	return NewLedger(userRepo, vacationRepo, cal, audit.NewDatabaseAuditor(), dispatcher, cfg), db
}

func createTestUser(t *testing.T, db *gorm.DB, mutate func(*model.User)) *model.User {
	t.Helper()
	email := uuid.New().String()[:8] + "@example.com"
	user := &model.User{
		ID:                 uuid.New().String(),
		Username:           "user-" + uuid.New().String()[:8],
		Password:           "x",
		Email:              &email,
		FullName:           "测试用户",
		Role:               model.RoleEmployee,
		Status:             "active",
		AnnualVacationDays: 26,
	}
	if mutate != nil {
		mutate(user)
	}
	require.NoError(t, db.Create(user).Error)
	return user
}

// TestCheckAvailability 额度校验
func TestCheckAvailability(t *testing.T) {
	ledger, db := newTestLedger(t)
	now := time.Now()
	expired := now.AddDate(0, 0, -1)
	valid := now.AddDate(0, 1, 0)

	tests := []struct {
		name      string
		mutate    func(*model.User)
		leaveType string
		days      int
		wantKind  errs.Kind
		wantErr   bool
	}{
		{"年假额度内", nil, model.LeaveTypeAnnual, 5, 0, false},
		{"年假刚好用完", nil, model.LeaveTypeAnnual, 26, 0, false},
		{"年假超额", nil, model.LeaveTypeAnnual, 27, errs.KindBusiness, true},
		{"已用部分后超额", func(u *model.User) { u.VacationDaysUsed = 20 }, model.LeaveTypeAnnual, 7, errs.KindBusiness, true},
		{"结转天数计入余额", func(u *model.User) {
			u.CarriedOverVacationDays = 3
			u.CarriedOverExpiryDate = &valid
		}, model.LeaveTypeAnnual, 29, 0, false},
		{"过期结转不计入", func(u *model.User) {
			u.CarriedOverVacationDays = 3
			u.CarriedOverExpiryDate = &expired
		}, model.LeaveTypeAnnual, 27, errs.KindBusiness, true},
		{"按需休假额度内", nil, model.LeaveTypeOnDemand, 2, 0, false},
		{"按需休假超年度上限", nil, model.LeaveTypeOnDemand, 5, errs.KindBusiness, true},
		{"按需休假累计超上限", func(u *model.User) { u.OnDemandVacationDaysUsed = 3 }, model.LeaveTypeOnDemand, 2, errs.KindBusiness, true},
		{"特殊事假单次上限内", nil, model.LeaveTypeCircumstantial, 2, 0, false},
		{"特殊事假超单次上限", nil, model.LeaveTypeCircumstantial, 3, errs.KindBusiness, true},
		{"特殊事假不受年假池限制", func(u *model.User) { u.VacationDaysUsed = 26 }, model.LeaveTypeCircumstantial, 1, 0, false},
		{"零工作日", nil, model.LeaveTypeAnnual, 0, errs.KindValidation, true},
		{"非法假期类型", nil, "sabbatical", 1, errs.KindValidation, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user := createTestUser(t, db, tt.mutate)
			err := ledger.CheckAvailability(user, tt.leaveType, tt.days, now)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errs.IsKind(err, tt.wantKind), "unexpected error: %v", err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}

// TestCommit 审批通过入账：计数器递增、排期创建、审计落库
func TestCommit(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := createTestUser(t, db, nil)

	start := mustDate(t, "2030-06-03")
	end := mustDate(t, "2030-06-07")
	request := &model.Request{
		RequestNumber: "REQ-20300601-0001",
		TemplateID:    1,
		Title:         "年假",
		Status:        model.RequestStatusApproved,
		SubmitterID:   user.ID,
		SubmitterName: user.FullName,
		LeaveType:     model.LeaveTypeAnnual,
		StartDate:     &start,
		EndDate:       &end,
		DaysCount:     5,
	}
	require.NoError(t, db.Create(request).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.Commit(context.Background(), tx, request)
	})
	require.NoError(t, err)

	var updated model.User
	require.NoError(t, db.First(&updated, "id = ?", user.ID).Error)
	require.Equal(t, 5, updated.VacationDaysUsed)
	require.Equal(t, 0, updated.OnDemandVacationDaysUsed)

	var schedule model.VacationSchedule
	require.NoError(t, db.First(&schedule, "request_id = ?", request.ID).Error)
	require.Equal(t, user.ID, schedule.UserID)
	require.Equal(t, 5, schedule.DaysCount)

	var logCount int64
	require.NoError(t, db.Model(&model.ChangeLog{}).
		Where("action = ?", model.ChangeActionLedgerCommit).Count(&logCount).Error)
	require.Equal(t, int64(1), logCount)
}

// TestCommitIdempotent 同一申请重复入账不会二次扣减
func TestCommitIdempotent(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := createTestUser(t, db, nil)

	start := mustDate(t, "2030-06-03")
	end := mustDate(t, "2030-06-04")
	request := &model.Request{
		RequestNumber: "REQ-20300601-0002",
		TemplateID:    1,
		Title:         "年假",
		Status:        model.RequestStatusApproved,
		SubmitterID:   user.ID,
		SubmitterName: user.FullName,
		LeaveType:     model.LeaveTypeAnnual,
		StartDate:     &start,
		EndDate:       &end,
		DaysCount:     2,
	}
	require.NoError(t, db.Create(request).Error)

	for i := 0; i < 2; i++ {
		err := db.Transaction(func(tx *gorm.DB) error {
			return ledger.Commit(context.Background(), tx, request)
		})
		require.NoError(t, err)
	}

	var updated model.User
	require.NoError(t, db.First(&updated, "id = ?", user.ID).Error)
	require.Equal(t, 2, updated.VacationDaysUsed)

	var scheduleCount int64
	require.NoError(t, db.Model(&model.VacationSchedule{}).
		Where("request_id = ?", request.ID).Count(&scheduleCount).Error)
	require.Equal(t, int64(1), scheduleCount)
}

// TestRevert 撤回已批假期：计数器回退、排期改标、审计落库
func TestRevert(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := createTestUser(t, db, nil)

	start := mustDate(t, "2030-06-03")
	end := mustDate(t, "2030-06-07")
	request := &model.Request{
		RequestNumber: "REQ-20300601-0005",
		TemplateID:    1,
		Title:         "年假",
		Status:        model.RequestStatusApproved,
		SubmitterID:   user.ID,
		SubmitterName: user.FullName,
		LeaveType:     model.LeaveTypeAnnual,
		StartDate:     &start,
		EndDate:       &end,
		DaysCount:     5,
	}
	require.NoError(t, db.Create(request).Error)

	require.NoError(t, db.Transaction(func(tx *gorm.DB) error {
		return ledger.Commit(context.Background(), tx, request)
	}))

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.Revert(context.Background(), tx, request, user)
	})
	require.NoError(t, err)

	var updated model.User
	require.NoError(t, db.First(&updated, "id = ?", user.ID).Error)
	require.Equal(t, 0, updated.VacationDaysUsed)

	var schedule model.VacationSchedule
	require.NoError(t, db.First(&schedule, "request_id = ?", request.ID).Error)
	require.Equal(t, model.ScheduleStatusCancelled, schedule.Status)

	var logCount int64
	require.NoError(t, db.Model(&model.ChangeLog{}).
		Where("action = ?", model.ChangeActionLedgerRevert).Count(&logCount).Error)
	require.Equal(t, int64(1), logCount)

	// 已回滚的申请不能再次回滚
	err = db.Transaction(func(tx *gorm.DB) error {
		return ledger.Revert(context.Background(), tx, request, user)
	})
	require.True(t, errs.IsKind(err, errs.KindInvalidState), "unexpected error: %v", err)

	// 回滚后原日期不再占用排期
	days, err := ledger.ValidateRequest(&updated, model.LeaveTypeAnnual, start, end)
	require.NoError(t, err)
	require.Equal(t, 5, days)
}

// TestRevertNeverCommitted 从未入账的申请无账可回
func TestRevertNeverCommitted(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := createTestUser(t, db, nil)

	start := mustDate(t, "2030-06-03")
	end := mustDate(t, "2030-06-04")
	request := &model.Request{
		RequestNumber: "REQ-20300601-0006",
		TemplateID:    1,
		Title:         "年假",
		Status:        model.RequestStatusInReview,
		SubmitterID:   user.ID,
		SubmitterName: user.FullName,
		LeaveType:     model.LeaveTypeAnnual,
		StartDate:     &start,
		EndDate:       &end,
		DaysCount:     2,
	}
	require.NoError(t, db.Create(request).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.Revert(context.Background(), tx, request, user)
	})
	require.True(t, errs.IsKind(err, errs.KindInvalidState), "unexpected error: %v", err)
}

// TestCommitShortfall 入账时余额不足（审批期间被其他入账消耗）
func TestCommitShortfall(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := createTestUser(t, db, func(u *model.User) {
		u.VacationDaysUsed = 25
	})

	start := mustDate(t, "2030-06-03")
	end := mustDate(t, "2030-06-07")
	request := &model.Request{
		RequestNumber: "REQ-20300601-0003",
		TemplateID:    1,
		Title:         "年假",
		Status:        model.RequestStatusApproved,
		SubmitterID:   user.ID,
		SubmitterName: user.FullName,
		LeaveType:     model.LeaveTypeAnnual,
		StartDate:     &start,
		EndDate:       &end,
		DaysCount:     5,
	}
	require.NoError(t, db.Create(request).Error)

	err := db.Transaction(func(tx *gorm.DB) error {
		return ledger.Commit(context.Background(), tx, request)
	})
	require.Error(t, err)
	require.True(t, errs.IsKind(err, errs.KindBusiness), "unexpected error: %v", err)

	// 失败的入账不应留下任何变更
	var updated model.User
	require.NoError(t, db.First(&updated, "id = ?", user.ID).Error)
	require.Equal(t, 25, updated.VacationDaysUsed)
}

// TestValidateRequestOverlap 与已有排期重叠的申请被拒
func TestValidateRequestOverlap(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := createTestUser(t, db, nil)

	require.NoError(t, db.Create(&model.VacationSchedule{
		RequestID: 999,
		UserID:    user.ID,
		LeaveType: model.LeaveTypeAnnual,
		StartDate: mustDate(t, "2030-06-05"),
		EndDate:   mustDate(t, "2030-06-06"),
		DaysCount: 2,
	}).Error)

	_, err := ledger.ValidateRequest(user, model.LeaveTypeAnnual,
		mustDate(t, "2030-06-03"), mustDate(t, "2030-06-07"))
	require.Error(t, err)
	require.True(t, errs.IsKind(err, errs.KindBusiness), "unexpected error: %v", err)

	// 不重叠的区间正常通过
	days, err := ledger.ValidateRequest(user, model.LeaveTypeAnnual,
		mustDate(t, "2030-06-10"), mustDate(t, "2030-06-11"))
	require.NoError(t, err)
	require.Equal(t, 2, days)
}

// TestSummary 余额汇总：计数器为权威值，审批中的天数单独统计
func TestSummary(t *testing.T) {
	ledger, db := newTestLedger(t)
	user := createTestUser(t, db, func(u *model.User) {
		u.VacationDaysUsed = 10
		u.OnDemandVacationDaysUsed = 2
	})

	start := mustDate(t, "2030-07-01")
	end := mustDate(t, "2030-07-03")
	require.NoError(t, db.Create(&model.Request{
		RequestNumber: "REQ-20300601-0004",
		TemplateID:    1,
		Title:         "审批中的年假",
		Status:        model.RequestStatusInReview,
		SubmitterID:   user.ID,
		SubmitterName: user.FullName,
		LeaveType:     model.LeaveTypeAnnual,
		StartDate:     &start,
		EndDate:       &end,
		DaysCount:     3,
	}).Error)

	summary, err := ledger.Summary(user.ID, 2030)
	require.NoError(t, err)
	require.Equal(t, 26, summary.AnnualVacationDays)
	require.Equal(t, 10, summary.VacationDaysUsed)
	require.Equal(t, 2, summary.OnDemandVacationDaysUsed)
	require.Equal(t, 4, summary.OnDemandVacationDaysLimit)
	require.Equal(t, 14, summary.RemainingVacationDays)
	require.Equal(t, 3, summary.PendingVacationDays)
}

// TestAdminAdjust 管理员台账调整
func TestAdminAdjust(t *testing.T) {
	ledger, db := newTestLedger(t)
	target := createTestUser(t, db, nil)
	hr := createTestUser(t, db, func(u *model.User) { u.Role = model.RoleHR })
	employee := createTestUser(t, db, nil)

	newAnnual := 30
	updated, err := ledger.AdminAdjust(context.Background(), hr, target.ID, &AdjustInput{
		AnnualVacationDays: &newAnnual,
		Comment:            "工龄增加",
	})
	require.NoError(t, err)
	require.Equal(t, 30, updated.AnnualVacationDays)

	var logCount int64
	require.NoError(t, db.Model(&model.ChangeLog{}).
		Where("action = ? AND target_id = ?", model.ChangeActionLedgerAdjust, target.ID).
		Count(&logCount).Error)
	require.Equal(t, int64(1), logCount)

	// 普通员工无权调整
	_, err = ledger.AdminAdjust(context.Background(), employee, target.ID, &AdjustInput{AnnualVacationDays: &newAnnual})
	require.True(t, errs.IsKind(err, errs.KindForbidden), "unexpected error: %v", err)

	// 非法值
	negative := -1
	_, err = ledger.AdminAdjust(context.Background(), hr, target.ID, &AdjustInput{AnnualVacationDays: &negative})
	require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)

	overCap := 5
	_, err = ledger.AdminAdjust(context.Background(), hr, target.ID, &AdjustInput{OnDemandDaysUsed: &overCap})
	require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)

	// 不存在的用户
	_, err = ledger.AdminAdjust(context.Background(), hr, "missing-user", &AdjustInput{AnnualVacationDays: &newAnnual})
	require.True(t, errs.IsKind(err, errs.KindNotFound), "unexpected error: %v", err)
}
