package approval

import (
	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"gorm.io/gorm"
)

// Resolver 审批人解析器
// 把步骤模板里的审批人定义解析成具体的候选用户集合，
// 并在决策时校验审批人是否属于该集合
type Resolver struct {
	userRepo *repository.UserRepository
}

func NewResolver(userRepo *repository.UserRepository) *Resolver {
	return &Resolver{userRepo: userRepo}
}

// ResolveCandidates 解析步骤的候选审批人用户ID
// 解析结果为空集合时返回 Business 错误（审批链无法推进）
func (r *Resolver) ResolveCandidates(step *model.ApprovalStep, submitter *model.User) ([]string, error) {
	switch step.ApproverType {
	case model.ApproverTypeUser:
		user, err := r.userRepo.FindUserByID(step.ApproverPayload)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, errs.Business("approver user %s does not exist", step.ApproverPayload)
			}
			return nil, err
		}
		if !user.IsActive() {
			return nil, errs.Business("approver user %s is not active", user.Username)
		}
		return []string{user.ID}, nil

	case model.ApproverTypeRole:
		ids, err := r.userRepo.FindUserIDsByRole(step.ApproverPayload)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, errs.Business("no active user holds role %s", step.ApproverPayload)
		}
		return ids, nil

	case model.ApproverTypeGroup:
		ids, err := r.userRepo.FindGroupMemberIDs(step.ApproverPayload)
		if err != nil {
			return nil, err
		}
		if len(ids) == 0 {
			return nil, errs.Business("approver group %s has no members", step.ApproverPayload)
		}
		return ids, nil

	case model.ApproverTypeSupervisor:
		if submitter.SupervisorID == nil || *submitter.SupervisorID == "" {
			return nil, errs.Business("submitter %s has no supervisor", submitter.Username)
		}
		supervisor, err := r.userRepo.FindUserByID(*submitter.SupervisorID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return nil, errs.Business("supervisor of %s does not exist", submitter.Username)
			}
			return nil, err
		}
		if !supervisor.IsActive() {
			return nil, errs.Business("supervisor %s is not active", supervisor.Username)
		}
		return []string{supervisor.ID}, nil

	case model.ApproverTypeSubmitter:
		// 自确认步骤，由提交人本人执行
		return []string{submitter.ID}, nil
	}

	return nil, errs.Validation("unknown approver type: %s", step.ApproverType)
}

// CanApprove 审批人是否有权对该步骤做决策
// 除自确认步骤外，提交人不能审批自己的申请，即使角色或组匹配
func (r *Resolver) CanApprove(step *model.ApprovalStep, approver *model.User, submitter *model.User) (bool, error) {
	if step.ApproverType == model.ApproverTypeSubmitter {
		return approver.ID == submitter.ID, nil
	}
	if approver.ID == submitter.ID {
		return false, nil
	}

	switch step.ApproverType {
	case model.ApproverTypeUser:
		return approver.ID == step.ApproverPayload, nil
	case model.ApproverTypeRole:
		return approver.Role == step.ApproverPayload, nil
	case model.ApproverTypeGroup:
		return r.userRepo.IsGroupMember(step.ApproverPayload, approver.ID)
	case model.ApproverTypeSupervisor:
		return submitter.SupervisorID != nil && *submitter.SupervisorID == approver.ID, nil
	}

	return false, errs.Validation("unknown approver type: %s", step.ApproverType)
}

// ValidateStepTemplates 保存模板时校验审批链定义
// StepOrder 必须从1开始连续递增，payload 按类型校验；
// 需要审批的模板不能只由一个自确认步骤组成
func ValidateStepTemplates(steps []model.ApprovalStepTemplate, requiresApproval bool) error {
	for i, step := range steps {
		if step.StepOrder != i+1 {
			return errs.Validation("step orders must be consecutive starting at 1, got %d at position %d",
				step.StepOrder, i+1)
		}
		switch step.ApproverType {
		case model.ApproverTypeUser, model.ApproverTypeRole, model.ApproverTypeGroup:
			if step.ApproverPayload == "" {
				return errs.Validation("step %d: approver type %s requires a payload",
					step.StepOrder, step.ApproverType)
			}
		case model.ApproverTypeSupervisor, model.ApproverTypeSubmitter:
			if step.ApproverPayload != "" {
				return errs.Validation("step %d: approver type %s takes no payload",
					step.StepOrder, step.ApproverType)
			}
		default:
			return errs.Validation("step %d: unknown approver type %s", step.StepOrder, step.ApproverType)
		}
	}
	if requiresApproval && len(steps) == 1 && steps[0].ApproverType == model.ApproverTypeSubmitter {
		return errs.Validation("a self-confirmation step cannot be the only step of an approval chain")
	}
	return nil
}
