package approval

import (
	"context"
	"testing"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/stretchr/testify/require"
	"gorm.io/datatypes"
)

// TestBulkApproveInputValidation 批量审批的输入校验
func TestBulkApproveInputValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	approver := env.createUser(t, model.RoleHR, nil)

	_, err := env.bulk.BulkApprove(ctx, approver, nil, "")
	require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)

	tooMany := make([]uint, MaxBulkSize+1)
	for i := range tooMany {
		tooMany[i] = uint(i + 1)
	}
	_, err = env.bulk.BulkApprove(ctx, approver, tooMany, "")
	require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)

	_, err = env.bulk.BulkApprove(ctx, approver, []uint{1, 2, 1}, "")
	require.True(t, errs.IsKind(err, errs.KindValidation), "unexpected error: %v", err)
}

// TestBulkApproveMixedResults 单项失败不影响其余步骤
func TestBulkApproveMixedResults(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hr := env.createUser(t, model.RoleHR, nil)
	submitter := env.createUser(t, model.RoleEmployee, nil)

	hrTemplate := env.createTemplate(t, model.TemplateKindGeneral, 0, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "HR审批", ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR},
	})

	// 两单HR可以批，一单指派给了别人
	first, err := env.service.Submit(ctx, submitter, &SubmitInput{TemplateID: hrTemplate.ID, Title: "第一单"})
	require.NoError(t, err)
	second, err := env.service.Submit(ctx, submitter, &SubmitInput{TemplateID: hrTemplate.ID, Title: "第二单"})
	require.NoError(t, err)

	other := env.createUser(t, model.RoleSupervisor, nil)
	otherTemplate := env.createTemplate(t, model.TemplateKindGeneral, 0, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "指定审批", ApproverType: model.ApproverTypeUser, ApproverPayload: other.ID},
	})
	third, err := env.service.Submit(ctx, submitter, &SubmitInput{TemplateID: otherTemplate.ID, Title: "第三单"})
	require.NoError(t, err)

	stepIDs := []uint{
		env.stepsOf(t, first.ID)[0].ID,
		env.stepsOf(t, second.ID)[0].ID,
		env.stepsOf(t, third.ID)[0].ID,
		99999, // 不存在的步骤
	}

	response, err := env.bulk.BulkApprove(ctx, hr, stepIDs, "批量通过")
	require.NoError(t, err)
	require.Equal(t, 2, response.Succeeded)
	require.Equal(t, 2, response.Failed)
	require.Len(t, response.Results, 4)

	require.True(t, response.Results[0].Success)
	require.True(t, response.Results[1].Success)
	require.False(t, response.Results[2].Success)
	require.False(t, response.Results[3].Success)

	// 失败项带机器可读的错误类别
	require.Empty(t, response.Results[0].ErrorKind)
	require.Equal(t, errs.KindForbidden.String(), response.Results[2].ErrorKind)
	require.Equal(t, errs.KindNotFound.String(), response.Results[3].ErrorKind)

	require.Equal(t, model.RequestStatusApproved, env.requestStatus(t, first.ID))
	require.Equal(t, model.RequestStatusApproved, env.requestStatus(t, second.ID))
	require.Equal(t, model.RequestStatusInReview, env.requestStatus(t, third.ID))
}

// TestBulkApproveRefusesQuizSteps 要求测验的步骤不能批量通过
func TestBulkApproveRefusesQuizSteps(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	hr := env.createUser(t, model.RoleHR, nil)
	submitter := env.createUser(t, model.RoleEmployee, nil)

	template := env.createTemplate(t, model.TemplateKindGeneral, 80, []model.ApprovalStepTemplate{
		{StepOrder: 1, Name: "HR审批", ApproverType: model.ApproverTypeRole, ApproverPayload: model.RoleHR, RequiresQuiz: true},
	})
	question := model.QuizQuestion{
		TemplateID:    template.ID,
		Question:      "问题",
		Options:       datatypes.JSON([]byte(`["是","否"]`)),
		CorrectOption: 0,
	}
	require.NoError(t, env.db.Create(&question).Error)

	request, err := env.service.Submit(ctx, submitter, &SubmitInput{TemplateID: template.ID, Title: "需测验"})
	require.NoError(t, err)
	stepID := env.stepsOf(t, request.ID)[0].ID

	response, err := env.bulk.BulkApprove(ctx, hr, []uint{stepID}, "")
	require.NoError(t, err)
	require.Equal(t, 0, response.Succeeded)
	require.Equal(t, 1, response.Failed)
	require.Contains(t, response.Results[0].Error, "quiz")
	require.Equal(t, errs.KindBusiness.String(), response.Results[0].ErrorKind)

	// 步骤保持激活，申请仍在审批中
	require.Equal(t, model.RequestStatusInReview, env.requestStatus(t, request.ID))
	require.Equal(t, model.StepStatusInReview, env.stepsOf(t, request.ID)[0].Status)
}
