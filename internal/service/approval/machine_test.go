package approval

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/vesperino/portalforge-backend/internal/audit"
	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/notification"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/internal/service/quiz"
	"github.com/vesperino/portalforge-backend/internal/service/vacation"
	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type testEnv struct {
	db           *gorm.DB
	userRepo     *repository.UserRepository
	templateRepo *repository.TemplateRepository
	requestRepo  *repository.RequestRepository
	machine      *Machine
	service      *Service
	bulk         *BulkCoordinator
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.New().String())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(
		&model.User{},
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
	))

	userRepo := repository.NewUserRepository(db)
	templateRepo := repository.NewTemplateRepository(db)
	requestRepo := repository.NewRequestRepository(db)
	vacationRepo := repository.NewVacationRepository(db)

	auditor := audit.NewDatabaseAuditor()
	dispatcher := notification.NewDispatcher(repository.NewNotificationRepository(db))
	calendar := vacation.NewCalendar(vacationRepo, 5*time.Minute)
	ledger := vacation.NewLedger(userRepo, vacationRepo, calendar, auditor, dispatcher, &config.VacationConfig{
		DefaultAnnualDays: 26,
		OnDemandCap:       4,
		CircumstantialCap: 2,
	})

	resolver := NewResolver(userRepo)
	evaluator := quiz.NewEvaluator(templateRepo)
	machine := NewMachine(requestRepo, templateRepo, userRepo, resolver, evaluator, ledger, auditor, dispatcher,
		&config.ApprovalConfig{MinRejectCommentLength: 10})
	service := NewService(requestRepo, templateRepo, userRepo, resolver, ledger, auditor, dispatcher)
	bulk := NewBulkCoordinator(machine, requestRepo)

	return &testEnv{
		db:           db,
		userRepo:     userRepo,
		templateRepo: templateRepo,
		requestRepo:  requestRepo,
		machine:      machine,
		service:      service,
		bulk:         bulk,
	}
}

func (e *testEnv) createUser(t *testing.T, role string, supervisorID *string) *model.User {
	t.Helper()
	email := uuid.New().String()[:8] + "@example.com"
	user := &model.User{
		ID:                 uuid.New().String(),
		Username:           "user-" + uuid.New().String()[:8],
		Password:           "x",
		Email:              &email,
		FullName:           "测试用户",
		Role:               role,
		Status:             "active",
		SupervisorID:       supervisorID,
		AnnualVacationDays: 26,
	}
	require.NoError(t, e.db.Create(user).Error)
	return user
}

func (e *testEnv) createTemplate(t *testing.T, kind string, passScore int, steps []model.ApprovalStepTemplate) *model.RequestTemplate {
	t.Helper()
	template := &model.RequestTemplate{
		Name:             "模板-" + uuid.New().String()[:8],
		Kind:             kind,
		RequiresApproval: true,
		QuizPassScore:    passScore,
		Enabled:          true,
		Steps:            steps,
	}
	require.NoError(t, e.db.Create(template).Error)
	return template
}

// 提交人→主管→HR 的标准两步审批链
func twoStepChain() []model.ApprovalStepTemplate {
	return []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "主管审批", ApproverType: model.ApproverTypeSupervisor},
		{StepOrder: 2, Name: "HR审批", ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR},
	}
}

func (e *testEnv) stepsOf(t *testing.T, requestID uint) []model.ApprovalStep {
	t.Helper()
	var steps []model.ApprovalStep
	require.NoError(t, e.db.Where("request_id = ?", requestID).Order("step_order ASC").Find(&steps).Error)
	return steps
}

func (e *testEnv) requestStatus(t *testing.T, requestID uint) string {
	t.Helper()
	var request model.Request
	require.NoError(t, e.db.First(&request, "id = ?", requestID).Error)
	return request.Status
}

// TestApproveChain 两步审批链逐级通过
func TestApproveChain(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	hr := env.createUser(t, model.RoleHR, nil)
	submitter := env.createUser(t, model.RoleEmployee, &supervisor.ID)
	template := env.createTemplate(t, model.TemplateKindGeneral, 0, twoStepChain())

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{
		TemplateID: template.ID,
		Title:      "借一台显示器",
	})
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusInReview, request.Status)

	steps := env.stepsOf(t, request.ID)
	require.Len(t, steps, 2)
	require.Equal(t, model.StepStatusInReview, steps[0].Status)
	require.NotNil(t, steps[0].StartedAt)
	require.Equal(t, model.StepStatusPending, steps[1].Status)

	// 主管通过第一步，第二步被激活
	result, err := env.machine.ApproveStep(ctx, supervisor, steps[0].ID, "同意", nil)
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusInReview, result.RequestState)

	steps = env.stepsOf(t, request.ID)
	require.Equal(t, model.StepStatusApproved, steps[0].Status)
	require.Equal(t, supervisor.ID, steps[0].ApproverID)
	require.Equal(t, model.StepStatusInReview, steps[1].Status)

	// HR通过最后一步，整单通过
	result, err = env.machine.ApproveStep(ctx, hr, steps[1].ID, "没问题", nil)
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusApproved, result.RequestState)
	require.Equal(t, model.RequestStatusApproved, env.requestStatus(t, request.ID))

	var request2 model.Request
	require.NoError(t, env.db.First(&request2, "id = ?", request.ID).Error)
	require.NotNil(t, request2.CompletedAt)

	// 审计链: submit + 2次 step_approve
	var logCount int64
	require.NoError(t, env.db.Model(&model.ChangeLog{}).
		Where("request_id = ?", request.ID).Count(&logCount).Error)
	require.Equal(t, int64(3), logCount)
}

// TestRejectStep 拒绝立即终止整单
func TestRejectStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	env.createUser(t, model.RoleHR, nil)
	submitter := env.createUser(t, model.RoleEmployee, &supervisor.ID)
	template := env.createTemplate(t, model.TemplateKindGeneral, 0, twoStepChain())

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{
		TemplateID: template.ID,
		Title:      "报销",
	})
	require.NoError(t, err)
	steps := env.stepsOf(t, request.ID)

	// 拒绝必须带不少于最小长度的理由
	_, err = env.machine.RejectStep(ctx, supervisor, steps[0].ID, "")
	require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)
	_, err = env.machine.RejectStep(ctx, supervisor, steps[0].ID, "票据不全")
	require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)

	result, err := env.machine.RejectStep(ctx, supervisor, steps[0].ID, "票据不全，请补齐后重新提交")
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusRejected, result.RequestState)
	require.Equal(t, model.RequestStatusRejected, env.requestStatus(t, request.ID))

	// 第二步保持pending，不再被激活
	steps = env.stepsOf(t, request.ID)
	require.Equal(t, model.StepStatusRejected, steps[0].Status)
	require.Equal(t, model.StepStatusPending, steps[1].Status)
}

// TestDecisionOnDecidedStep 已决策的步骤不再接受决策
func TestDecisionOnDecidedStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	submitter := env.createUser(t, model.RoleEmployee, &supervisor.ID)
	template := env.createTemplate(t, model.TemplateKindGeneral, 0, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "主管审批", ApproverType: model.ApproverTypeSupervisor},
	})

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{
		TemplateID: template.ID,
		Title:      "申请",
	})
	require.NoError(t, err)
	steps := env.stepsOf(t, request.ID)

	_, err = env.machine.ApproveStep(ctx, supervisor, steps[0].ID, "", nil)
	require.NoError(t, err)

	_, err = env.machine.ApproveStep(ctx, supervisor, steps[0].ID, "", nil)
	require.True(t, errs.IsKind(err, errs.KindInvalidState), "unexpected error: %v", err)

	_, err = env.machine.RejectStep(ctx, supervisor, steps[0].ID, "已经有人先处理过这一步了")
	require.True(t, errs.IsKind(err, errs.KindInvalidState), "unexpected error: %v", err)
}

// TestApproveForbidden 非候选审批人和提交人本人都不能决策
func TestApproveForbidden(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	outsider := env.createUser(t, model.RoleEmployee, nil)
	// 提交人自己就是HR，角色匹配第一步，但自审被禁止
	submitter := env.createUser(t, model.RoleHR, &supervisor.ID)
	template := env.createTemplate(t, model.TemplateKindGeneral, 0, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "HR审批", ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR},
	})

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{
		TemplateID: template.ID,
		Title:      "申请",
	})
	require.NoError(t, err)
	steps := env.stepsOf(t, request.ID)

	_, err = env.machine.ApproveStep(ctx, outsider, steps[0].ID, "", nil)
	require.True(t, errs.IsKind(err, errs.KindForbidden), "unexpected error: %v", err)

	_, err = env.machine.ApproveStep(ctx, submitter, steps[0].ID, "", nil)
	require.True(t, errs.IsKind(err, errs.KindForbidden), "unexpected error: %v", err)
}

// TestSubmitterSelfConfirmStep 自确认步骤由提交人本人决策
func TestSubmitterSelfConfirmStep(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hr := env.createUser(t, model.RoleHR, nil)
	submitter := env.createUser(t, model.RoleEmployee, nil)
	template := env.createTemplate(t, model.TemplateKindGeneral, 0, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "本人确认", ApproverType: model.ApproverTypeSubmitter},
		{StepOrder: 2, Name: "HR审批", ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR},
	})

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{
		TemplateID: template.ID,
		Title:      "信息确认",
	})
	require.NoError(t, err)
	steps := env.stepsOf(t, request.ID)

	// 自确认步骤只有提交人本人能通过
	_, err = env.machine.ApproveStep(ctx, hr, steps[0].ID, "", nil)
	require.True(t, errs.IsKind(err, errs.KindForbidden), "unexpected error: %v", err)

	result, err := env.machine.ApproveStep(ctx, submitter, steps[0].ID, "确认无误", nil)
	require.NoError(t, err)
	require.Equal(t, model.RequestStatusInReview, result.RequestState)

	steps = env.stepsOf(t, request.ID)
	require.Equal(t, model.StepStatusApproved, steps[0].Status)
	require.Equal(t, submitter.ID, steps[0].ApproverID)
	require.Equal(t, model.StepStatusInReview, steps[1].Status)
}

// TestQuizAutoReject 测验不过线触发整单自动拒绝
func TestQuizAutoReject(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	env.createUser(t, model.RoleHR, nil)
	submitter := env.createUser(t, model.RoleEmployee, &supervisor.ID)
	template := env.createTemplate(t, model.TemplateKindGeneral, 100, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "主管审批", ApproverType: model.ApproverTypeSupervisor, RequiresQuiz: true},
		{StepOrder: 2, Name: "HR审批", ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR},
	})

	options := datatypes.JSON([]byte(`["是","否"]`))
	questions := []model.QuizQuestion{
		{TemplateID: template.ID, Question: "问题一", Options: options, CorrectOption: 0},
		{TemplateID: template.ID, Question: "问题二", Options: options, CorrectOption: 1},
	}
	for i := range questions {
		require.NoError(t, env.db.Create(&questions[i]).Error)
	}

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{
		TemplateID: template.ID,
		Title:      "需要测验的申请",
	})
	require.NoError(t, err)
	steps := env.stepsOf(t, request.ID)

	result, err := env.machine.ApproveStep(ctx, supervisor, steps[0].ID, "同意", []quiz.Answer{
		{QuestionID: questions[0].ID, SelectedOption: 0},
		{QuestionID: questions[1].ID, SelectedOption: 0}, // 答错
	})
	require.NoError(t, err)
	require.True(t, result.AutoRejected)
	require.NotNil(t, result.QuizResult)
	require.Equal(t, 50, result.QuizResult.Score)
	require.Equal(t, model.RequestStatusRejected, result.RequestState)
	require.Equal(t, model.RequestStatusRejected, env.requestStatus(t, request.ID))

	steps = env.stepsOf(t, request.ID)
	require.Equal(t, model.StepStatusRejected, steps[0].Status)
	require.NotNil(t, steps[0].QuizScore)
	require.Equal(t, 50, *steps[0].QuizScore)
	require.Equal(t, model.StepStatusPending, steps[1].Status)

	var logCount int64
	require.NoError(t, env.db.Model(&model.ChangeLog{}).
		Where("request_id = ? AND action = ?", request.ID, model.ChangeActionAutoReject).
		Count(&logCount).Error)
	require.Equal(t, int64(1), logCount)
}

// TestQuizPassAdvances 测验过线后正常推进
func TestQuizPassAdvances(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	env.createUser(t, model.RoleHR, nil)
	submitter := env.createUser(t, model.RoleEmployee, &supervisor.ID)
	template := env.createTemplate(t, model.TemplateKindGeneral, 50, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "主管审批", ApproverType: model.ApproverTypeSupervisor, RequiresQuiz: true},
		{StepOrder: 2, Name: "HR审批", ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR},
	})

	options := datatypes.JSON([]byte(`["是","否"]`))
	question := model.QuizQuestion{TemplateID: template.ID, Question: "问题一", Options: options, CorrectOption: 0}
	require.NoError(t, env.db.Create(&question).Error)

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{
		TemplateID: template.ID,
		Title:      "需要测验的申请",
	})
	require.NoError(t, err)
	steps := env.stepsOf(t, request.ID)

	result, err := env.machine.ApproveStep(ctx, supervisor, steps[0].ID, "同意", []quiz.Answer{
		{QuestionID: question.ID, SelectedOption: 0},
	})
	require.NoError(t, err)
	require.False(t, result.AutoRejected)
	require.Equal(t, model.RequestStatusInReview, result.RequestState)

	steps = env.stepsOf(t, request.ID)
	require.Equal(t, model.StepStatusApproved, steps[0].Status)
	require.NotNil(t, steps[0].QuizPassed)
	require.True(t, *steps[0].QuizPassed)
	require.Equal(t, model.StepStatusInReview, steps[1].Status)
}

// TestVacationCommitOnFinalApproval 假期申请最后一步通过时入账
func TestVacationCommitOnFinalApproval(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	submitter := env.createUser(t, model.RoleEmployee, &supervisor.ID)
	template := env.createTemplate(t, model.TemplateKindVacation, 0, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "主管审批", ApproverType: model.ApproverTypeSupervisor},
	})

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{
		TemplateID: template.ID,
		Title:      "年假一周",
		LeaveType:  model.LeaveTypeAnnual,
		StartDate:  "2030-06-03",
		EndDate:    "2030-06-07",
	})
	require.NoError(t, err)
	require.Equal(t, 5, request.DaysCount)

	steps := env.stepsOf(t, request.ID)
	_, err = env.machine.ApproveStep(ctx, supervisor, steps[0].ID, "批了", nil)
	require.NoError(t, err)

	require.Equal(t, model.RequestStatusApproved, env.requestStatus(t, request.ID))

	var user model.User
	require.NoError(t, env.db.First(&user, "id = ?", submitter.ID).Error)
	require.Equal(t, 5, user.VacationDaysUsed)

	var schedule model.VacationSchedule
	require.NoError(t, env.db.First(&schedule, "request_id = ?", request.ID).Error)
	require.Equal(t, 5, schedule.DaysCount)
	require.Equal(t, model.ScheduleStatusApproved, schedule.Status)
}

// TestVacationRejectNoCommit 被拒绝的假期申请不入账
func TestVacationRejectNoCommit(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	submitter := env.createUser(t, model.RoleEmployee, &supervisor.ID)
	template := env.createTemplate(t, model.TemplateKindVacation, 0, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "主管审批", ApproverType: model.ApproverTypeSupervisor},
	})

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{
		TemplateID: template.ID,
		Title:      "年假",
		LeaveType:  model.LeaveTypeAnnual,
		StartDate:  "2030-06-03",
		EndDate:    "2030-06-04",
	})
	require.NoError(t, err)

	steps := env.stepsOf(t, request.ID)
	_, err = env.machine.RejectStep(ctx, supervisor, steps[0].ID, "该时段人手不足，换个时间")
	require.NoError(t, err)

	var user model.User
	require.NoError(t, env.db.First(&user, "id = ?", submitter.ID).Error)
	require.Equal(t, 0, user.VacationDaysUsed)

	var scheduleCount int64
	require.NoError(t, env.db.Model(&model.VacationSchedule{}).Count(&scheduleCount).Error)
	require.Equal(t, int64(0), scheduleCount)
}
