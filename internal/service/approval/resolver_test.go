package approval

import (
	"testing"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

// TestResolveCandidates 各审批人类型的候选解析
func TestResolveCandidates(t *testing.T) {
	env := newTestEnv(t)
	resolver := NewResolver(env.userRepo)

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	hr1 := env.createUser(t, model.RoleHR, nil)
	hr2 := env.createUser(t, model.RoleHR, nil)
	submitter := env.createUser(t, model.RoleEmployee, &supervisor.ID)
	orphan := env.createUser(t, model.RoleEmployee, nil)

	inactive := env.createUser(t, model.RoleEmployee, nil)
	require.NoError(t, env.db.Model(&model.User{}).
		Where("id = ?", inactive.ID).Update("status", "disabled").Error)

	group := &model.UserGroup{ID: uuid.New().String(), Name: "IT支持组"}
	require.NoError(t, env.db.Create(group).Error)
	require.NoError(t, env.db.Create(&model.UserGroupMember{GroupID: group.ID, UserID: hr1.ID}).Error)
	emptyGroup := &model.UserGroup{ID: uuid.New().String(), Name: "空组"}
	require.NoError(t, env.db.Create(emptyGroup).Error)

	tests := []struct {
		name     string
		step     model.ApprovalStep
		want     []string
		wantKind errs.Kind
		wantErr  bool
	}{
		{"指定用户", model.ApprovalStep{ApproverType: model.ApproverTypeUser, ApproverPayload: supervisor.ID}, []string{supervisor.ID}, 0, false},
		{"指定用户不存在", model.ApprovalStep{ApproverType: model.ApproverTypeUser, ApproverPayload: "missing"}, nil, errs.KindBusiness, true},
		{"指定用户已停用", model.ApprovalStep{ApproverType: model.ApproverTypeUser, ApproverPayload: inactive.ID}, nil, errs.KindBusiness, true},
		{"指定角色", model.ApprovalStep{ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR}, []string{hr1.ID, hr2.ID}, 0, false},
		{"角色无人持有", model.ApprovalStep{ApproverType: model.ApproverTypeRole, ApproverPayload: "auditor"}, nil, errs.KindBusiness, true},
		{"指定用户组", model.ApprovalStep{ApproverType: model.ApproverTypeGroup, ApproverPayload: group.ID}, []string{hr1.ID}, 0, false},
		{"空用户组", model.ApprovalStep{ApproverType: model.ApproverTypeGroup, ApproverPayload: emptyGroup.ID}, nil, errs.KindBusiness, true},
		{"提交人主管", model.ApprovalStep{ApproverType: model.ApproverTypeSupervisor}, []string{supervisor.ID}, 0, false},
		{"提交人本人", model.ApprovalStep{ApproverType: model.ApproverTypeSubmitter}, []string{submitter.ID}, 0, false},
		{"未知类型", model.ApprovalStep{ApproverType: "committee"}, nil, errs.KindValidation, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.ResolveCandidates(&tt.step, submitter)
			if tt.wantErr {
				require.Error(t, err)
				require.True(t, errs.IsKind(err, tt.wantKind), "unexpected error: %v", err)
				return
			}
			require.NoError(t, err)
			require.ElementsMatch(t, tt.want, got)
		})
	}

	// 提交人没有主管时 supervisor 步骤无法解析
	_, err := resolver.ResolveCandidates(&model.ApprovalStep{ApproverType: model.ApproverTypeSupervisor}, orphan)
	require.True(t, errs.IsKind(err, errs.KindBusiness), "unexpected error: %v", err)
}

// TestCanApprove 决策权限校验，除自确认步骤外提交人不能审批自己的申请
func TestCanApprove(t *testing.T) {
	env := newTestEnv(t)
	resolver := NewResolver(env.userRepo)

	supervisor := env.createUser(t, model.RoleSupervisor, nil)
	hr := env.createUser(t, model.RoleHR, nil)
	submitter := env.createUser(t, model.RoleEmployee, &supervisor.ID)

	group := &model.UserGroup{ID: uuid.New().String(), Name: "审批组"}
	require.NoError(t, env.db.Create(group).Error)
	require.NoError(t, env.db.Create(&model.UserGroupMember{GroupID: group.ID, UserID: hr.ID}).Error)

	tests := []struct {
		name     string
		step     model.ApprovalStep
		approver *model.User
		want     bool
	}{
		{"指定用户匹配", model.ApprovalStep{ApproverType: model.ApproverTypeUser, ApproverPayload: hr.ID}, hr, true},
		{"指定用户不匹配", model.ApprovalStep{ApproverType: model.ApproverTypeUser, ApproverPayload: hr.ID}, supervisor, false},
		{"角色匹配", model.ApprovalStep{ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR}, hr, true},
		{"角色不匹配", model.ApprovalStep{ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR}, supervisor, false},
		{"组成员", model.ApprovalStep{ApproverType: model.ApproverTypeGroup, ApproverPayload: group.ID}, hr, true},
		{"非组成员", model.ApprovalStep{ApproverType: model.ApproverTypeGroup, ApproverPayload: group.ID}, supervisor, false},
		{"提交人主管", model.ApprovalStep{ApproverType: model.ApproverTypeSupervisor}, supervisor, true},
		{"非主管", model.ApprovalStep{ApproverType: model.ApproverTypeSupervisor}, hr, false},
		{"提交人自审被拒", model.ApprovalStep{ApproverType: model.ApproverTypeUser, ApproverPayload: submitter.ID}, submitter, false},
		{"自确认步骤本人可批", model.ApprovalStep{ApproverType: model.ApproverTypeSubmitter}, submitter, true},
		{"自确认步骤他人不可批", model.ApprovalStep{ApproverType: model.ApproverTypeSubmitter}, hr, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := resolver.CanApprove(&tt.step, tt.approver, submitter)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

// TestValidateStepTemplates 审批链定义校验
func TestValidateStepTemplates(t *testing.T) {
	tests := []struct {
		name             string
		steps            []model.ApprovalStepTemplate
		requiresApproval bool
		wantErr          bool
	}{
		{"空链合法", nil, true, false},
		{"单步骤", []model.ApprovalStepTemplate{
			{StepOrder: 1, ApproverType: model.ApproverTypeSupervisor},
		}, true, false},
		{"连续多步骤", []model.ApprovalStepTemplate{
			{StepOrder: 1, ApproverType: model.ApproverTypeSupervisor},
			{StepOrder: 2, ApproverType: model.ApproverTypeRole, ApproverPayload: "hr"},
			{StepOrder: 3, ApproverType: model.ApproverTypeUser, ApproverPayload: "u1"},
		}, true, false},
		{"序号不从1开始", []model.ApprovalStepTemplate{
			{StepOrder: 2, ApproverType: model.ApproverTypeSupervisor},
		}, true, true},
		{"序号跳号", []model.ApprovalStepTemplate{
			{StepOrder: 1, ApproverType: model.ApproverTypeSupervisor},
			{StepOrder: 3, ApproverType: model.ApproverTypeRole, ApproverPayload: "hr"},
		}, true, true},
		{"角色类型缺payload", []model.ApprovalStepTemplate{
			{StepOrder: 1, ApproverType: model.ApproverTypeRole},
		}, true, true},
		{"supervisor类型带payload", []model.ApprovalStepTemplate{
			{StepOrder: 1, ApproverType: model.ApproverTypeSupervisor, ApproverPayload: "x"},
		}, true, true},
		{"自确认步骤不能独立成链", []model.ApprovalStepTemplate{
			{StepOrder: 1, ApproverType: model.ApproverTypeSubmitter},
		}, true, true},
		{"自确认加他人审批合法", []model.ApprovalStepTemplate{
			{StepOrder: 1, ApproverType: model.ApproverTypeSubmitter},
			{StepOrder: 2, ApproverType: model.ApproverTypeRole, ApproverPayload: "hr"},
		}, true, false},
		{"无需审批模板允许单个自确认步骤", []model.ApprovalStepTemplate{
			{StepOrder: 1, ApproverType: model.ApproverTypeSubmitter},
		}, false, false},
		{"未知类型", []model.ApprovalStepTemplate{
			{StepOrder: 1, ApproverType: "committee", ApproverPayload: "x"},
		}, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateStepTemplates(tt.steps, tt.requiresApproval)
			if tt.wantErr {
				require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)
			} else {
				require.NoError(t, err)
			}
		})
	}
}
