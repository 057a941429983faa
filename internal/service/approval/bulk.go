package approval

import (
	"context"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"github.com/vesperino/portalforge-backend/pkg/metrics"
)

// MaxBulkSize 单次批量审批的步骤数上限
const MaxBulkSize = 50

// BulkCoordinator 批量审批协调器
// 每个步骤独立事务处理，单个失败不回滚其余步骤
type BulkCoordinator struct {
	machine     *Machine
	requestRepo *repository.RequestRepository
}

func NewBulkCoordinator(machine *Machine, requestRepo *repository.RequestRepository) *BulkCoordinator {
	return &BulkCoordinator{
		machine:     machine,
		requestRepo: requestRepo,
	}
}

// BulkApprove 批量通过审批步骤
// 要求测验的步骤不能批量通过（答卷必须逐单提交），按单项失败处理
func (b *BulkCoordinator) BulkApprove(ctx context.Context, approver *model.User, stepIDs []uint, comment string) (*model.BulkApprovalResponse, error) {
	if len(stepIDs) == 0 {
		return nil, errs.Validation("step_ids must not be empty")
	}
	if len(stepIDs) > MaxBulkSize {
		return nil, errs.Validation("at most %d steps per bulk approval, got %d", MaxBulkSize, len(stepIDs))
	}

	seen := make(map[uint]struct{}, len(stepIDs))
	for _, id := range stepIDs {
		if _, dup := seen[id]; dup {
			return nil, errs.Validation("duplicate step id %d in bulk approval", id)
		}
		seen[id] = struct{}{}
	}

	metrics.BulkApprovalBatchSize.Observe(float64(len(stepIDs)))

	response := &model.BulkApprovalResponse{
		Results: make([]model.BulkApprovalResult, 0, len(stepIDs)),
	}

	for _, stepID := range stepIDs {
		result := model.BulkApprovalResult{StepID: stepID}

		if err := b.approveOne(ctx, approver, stepID, comment); err != nil {
			result.Error = err.Error()
			if kind, ok := errs.KindOf(err); ok {
				result.ErrorKind = kind.String()
			} else {
				result.ErrorKind = "internal"
			}
			response.Failed++
		} else {
			result.Success = true
			response.Succeeded++
		}

		response.Results = append(response.Results, result)
	}

	logger.Infof("Bulk approval by %s: %d succeeded, %d failed",
		approver.Username, response.Succeeded, response.Failed)
	return response, nil
}

func (b *BulkCoordinator) approveOne(ctx context.Context, approver *model.User, stepID uint, comment string) error {
	step, err := b.requestRepo.FindStepByID(stepID)
	if err != nil {
		return errs.NotFound("approval step %d not found", stepID)
	}
	if step.RequiresQuiz {
		return errs.Business("step %d requires a quiz and cannot be bulk-approved", stepID)
	}

	_, err = b.machine.ApproveStep(ctx, approver, stepID, comment, nil)
	return err
}
