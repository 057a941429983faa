package approval

import (
	"context"
	"time"
	"unicode/utf8"

	"github.com/vesperino/portalforge-backend/internal/audit"
	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/notification"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/internal/service/quiz"
	"github.com/vesperino/portalforge-backend/internal/service/vacation"
	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"github.com/vesperino/portalforge-backend/pkg/metrics"
	"gorm.io/gorm"
)

// DecisionResult 一次审批决策的结果
type DecisionResult struct {
	Step         *model.ApprovalStep `json:"step"`
	RequestState string              `json:"request_state"` // 决策后的申请状态
	AutoRejected bool                `json:"auto_rejected"` // 测验失败触发的自动拒绝
	QuizResult   *quiz.Result        `json:"quiz_result,omitempty"`
}

// Machine 审批步骤状态机
// 每次决策在一个数据库事务里完成：锁步骤行和申请行，校验状态与权限，
// 落决策、推进或终止审批链、必要时假期入账，审计记录同事务提交。
// 通知在事务提交后异步派发。
type Machine struct {
	requestRepo  *repository.RequestRepository
	templateRepo *repository.TemplateRepository
	userRepo     *repository.UserRepository
	resolver     *Resolver
	evaluator    *quiz.Evaluator
	ledger       *vacation.Ledger
	auditor      audit.Auditor
	dispatcher   *notification.Dispatcher
	cfg          *config.ApprovalConfig
}

func NewMachine(
	requestRepo *repository.RequestRepository,
	templateRepo *repository.TemplateRepository,
	userRepo *repository.UserRepository,
	resolver *Resolver,
	evaluator *quiz.Evaluator,
	ledger *vacation.Ledger,
	auditor audit.Auditor,
	dispatcher *notification.Dispatcher,
	cfg *config.ApprovalConfig,
) *Machine {
	return &Machine{
		requestRepo:  requestRepo,
		templateRepo: templateRepo,
		userRepo:     userRepo,
		resolver:     resolver,
		evaluator:    evaluator,
		ledger:       ledger,
		auditor:      auditor,
		dispatcher:   dispatcher,
		cfg:          cfg,
	}
}

// lockedStepContext 事务内锁定并校验后的上下文
type lockedStepContext struct {
	step      *model.ApprovalStep
	request   *model.Request
	submitter *model.User
}

// lockAndAuthorize 锁定步骤和申请行并校验状态与审批权限
// 固定先锁步骤再锁申请，避免不同决策路径互相死锁
func (m *Machine) lockAndAuthorize(tx *gorm.DB, stepID uint, approver *model.User) (*lockedStepContext, error) {
	step, err := m.requestRepo.FindStepByIDForUpdate(tx, stepID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFound("approval step %d not found", stepID)
		}
		return nil, err
	}

	if step.Status != model.StepStatusInReview {
		return nil, errs.InvalidState("step %d is %s, only in_review steps accept decisions",
			stepID, step.Status)
	}

	request, err := m.requestRepo.FindByIDForUpdate(tx, step.RequestID)
	if err != nil {
		return nil, err
	}

	if model.IsTerminalRequestStatus(request.Status) {
		return nil, errs.InvalidState("request %s is already %s", request.RequestNumber, request.Status)
	}

	submitter, err := m.userRepo.FindUserByID(request.SubmitterID)
	if err != nil {
		return nil, err
	}

	allowed, err := m.resolver.CanApprove(step, approver, submitter)
	if err != nil {
		return nil, err
	}
	if !allowed {
		return nil, errs.Forbidden("user %s is not an eligible approver for step %d",
			approver.Username, stepID)
	}

	return &lockedStepContext{step: step, request: request, submitter: submitter}, nil
}

// ApproveStep 通过一个审批步骤
// 步骤要求测验时必须随决策提交答卷，未达分数线会触发整单自动拒绝
func (m *Machine) ApproveStep(ctx context.Context, approver *model.User, stepID uint, comment string, answers []quiz.Answer) (*DecisionResult, error) {
	var result *DecisionResult
	var activatedStep *model.ApprovalStep
	var activatedCandidates []string
	var completedRequest *model.Request

	err := m.requestRepo.DB().Transaction(func(tx *gorm.DB) error {
		lc, err := m.lockAndAuthorize(tx, stepID, approver)
		if err != nil {
			return err
		}
		step, request := lc.step, lc.request

		template, err := m.templateRepo.FindByID(request.TemplateID)
		if err != nil {
			return err
		}

		now := time.Now()

		// 测验门槛：不过线直接整单拒绝
		if step.RequiresQuiz {
			quizResult, err := m.evaluator.Evaluate(template.ID, template.QuizPassScore, answers)
			if err != nil {
				return err
			}
			step.QuizScore = &quizResult.Score
			step.QuizPassed = &quizResult.Passed

			if !quizResult.Passed {
				if err := m.autoReject(ctx, tx, lc, approver, now); err != nil {
					return err
				}
				completedRequest = request
				result = &DecisionResult{
					Step:         step,
					RequestState: model.RequestStatusRejected,
					AutoRejected: true,
					QuizResult:   quizResult,
				}
				return nil
			}
			result = &DecisionResult{QuizResult: quizResult}
		}

		step.Status = model.StepStatusApproved
		step.ApproverID = approver.ID
		step.ApproverName = approver.FullName
		step.Comment = comment
		step.FinishedAt = &now
		if err := m.requestRepo.UpdateStep(tx, step); err != nil {
			return err
		}

		stepEntry := &audit.Entry{
			RequestID: &request.ID,
			StepID:    &step.ID,
			Action:    model.ChangeActionStepApprove,
			ActorID:   approver.ID,
			ActorName: approver.FullName,
			OldValue:  map[string]string{"status": model.StepStatusInReview},
			NewValue:  map[string]string{"status": model.StepStatusApproved},
			Comment:   comment,
		}
		if err := m.auditor.Record(ctx, tx, stepEntry); err != nil {
			return err
		}

		// 推进审批链：激活下一步，或整单通过
		steps, err := m.requestRepo.FindStepsByRequestID(tx, request.ID)
		if err != nil {
			return err
		}
		var next *model.ApprovalStep
		for i := range steps {
			if steps[i].Status == model.StepStatusPending {
				next = &steps[i]
				break
			}
		}

		if next != nil {
			candidates, err := m.resolver.ResolveCandidates(next, lc.submitter)
			if err != nil {
				return err
			}
			next.Status = model.StepStatusInReview
			next.StartedAt = &now
			if err := m.requestRepo.UpdateStep(tx, next); err != nil {
				return err
			}
			activatedStep = next
			activatedCandidates = candidates
		} else {
			// 最后一步：整单通过，假期申请在同一事务里入账
			if err := m.requestRepo.UpdateStatus(tx, request.ID, model.RequestStatusApproved, &now); err != nil {
				return err
			}
			request.Status = model.RequestStatusApproved
			request.CompletedAt = &now

			if template.Kind == model.TemplateKindVacation {
				if err := m.ledger.Commit(ctx, tx, request); err != nil {
					return err
				}
			}
			completedRequest = request
		}

		state := request.Status
		if activatedStep != nil {
			state = model.RequestStatusInReview
		}
		if result == nil {
			result = &DecisionResult{}
		}
		result.Step = step
		result.RequestState = state
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.recordDecisionMetrics(result.Step, "approve", result.AutoRejected)

	if activatedStep != nil {
		m.dispatcher.NotifyStepActivated(activatedCandidates, reloadForNotify(m.requestRepo, activatedStep.RequestID), activatedStep.Name)
	}
	if completedRequest != nil {
		approved := completedRequest.Status == model.RequestStatusApproved
		m.dispatcher.NotifyRequestCompleted(completedRequest, approved, comment)
		metrics.RequestsCompletedTotal.WithLabelValues(completedRequest.Status).Inc()
	}

	logger.Infof("Approval decision: step=%d, approver=%s, state=%s, autoRejected=%v",
		stepID, approver.Username, result.RequestState, result.AutoRejected)
	return result, nil
}

// RejectStep 拒绝一个审批步骤，整单立即终止
// 拒绝理由不少于配置的最小长度，按字符数而非字节数计
func (m *Machine) RejectStep(ctx context.Context, approver *model.User, stepID uint, comment string) (*DecisionResult, error) {
	if utf8.RuneCountInString(comment) < m.cfg.MinRejectCommentLength {
		return nil, errs.Validation("a rejection comment of at least %d characters is required",
			m.cfg.MinRejectCommentLength)
	}

	var result *DecisionResult
	var completedRequest *model.Request

	err := m.requestRepo.DB().Transaction(func(tx *gorm.DB) error {
		lc, err := m.lockAndAuthorize(tx, stepID, approver)
		if err != nil {
			return err
		}
		step, request := lc.step, lc.request

		now := time.Now()
		step.Status = model.StepStatusRejected
		step.ApproverID = approver.ID
		step.ApproverName = approver.FullName
		step.Comment = comment
		step.FinishedAt = &now
		if err := m.requestRepo.UpdateStep(tx, step); err != nil {
			return err
		}

		if err := m.requestRepo.UpdateStatus(tx, request.ID, model.RequestStatusRejected, &now); err != nil {
			return err
		}
		request.Status = model.RequestStatusRejected
		request.CompletedAt = &now

		entry := &audit.Entry{
			RequestID: &request.ID,
			StepID:    &step.ID,
			Action:    model.ChangeActionStepReject,
			ActorID:   approver.ID,
			ActorName: approver.FullName,
			OldValue:  map[string]string{"status": model.StepStatusInReview},
			NewValue:  map[string]string{"status": model.StepStatusRejected},
			Comment:   comment,
		}
		if err := m.auditor.Record(ctx, tx, entry); err != nil {
			return err
		}

		completedRequest = request
		result = &DecisionResult{Step: step, RequestState: model.RequestStatusRejected}
		return nil
	})
	if err != nil {
		return nil, err
	}

	m.recordDecisionMetrics(result.Step, "reject", false)
	m.dispatcher.NotifyRequestCompleted(completedRequest, false, comment)
	metrics.RequestsCompletedTotal.WithLabelValues(model.RequestStatusRejected).Inc()

	logger.Infof("Approval decision: step=%d, approver=%s, rejected", stepID, approver.Username)
	return result, nil
}

// autoReject 测验失败：当前步骤和整单同时拒绝
func (m *Machine) autoReject(ctx context.Context, tx *gorm.DB, lc *lockedStepContext, approver *model.User, now time.Time) error {
	step, request := lc.step, lc.request

	step.Status = model.StepStatusRejected
	step.ApproverID = approver.ID
	step.ApproverName = approver.FullName
	step.Comment = "quiz score below pass threshold"
	step.FinishedAt = &now
	if err := m.requestRepo.UpdateStep(tx, step); err != nil {
		return err
	}

	if err := m.requestRepo.UpdateStatus(tx, request.ID, model.RequestStatusRejected, &now); err != nil {
		return err
	}
	request.Status = model.RequestStatusRejected
	request.CompletedAt = &now

	entry := &audit.Entry{
		RequestID: &request.ID,
		StepID:    &step.ID,
		Action:    model.ChangeActionAutoReject,
		ActorID:   approver.ID,
		ActorName: approver.FullName,
		OldValue:  map[string]string{"status": model.StepStatusInReview},
		NewValue:  map[string]string{"status": model.StepStatusRejected},
		Comment:   "quiz failed",
		TargetID:  request.SubmitterID,
	}
	if err := m.auditor.Record(ctx, tx, entry); err != nil {
		return err
	}

	return nil
}

func (m *Machine) recordDecisionMetrics(step *model.ApprovalStep, decision string, autoRejected bool) {
	if autoRejected {
		decision = "auto_reject"
	}
	metrics.ApprovalStepDecisionsTotal.WithLabelValues(decision).Inc()
	if step != nil && step.StartedAt != nil && step.FinishedAt != nil {
		metrics.ApprovalStepDuration.WithLabelValues(decision).
			Observe(step.FinishedAt.Sub(*step.StartedAt).Seconds())
	}
}

// reloadForNotify 通知用的申请快照，读取失败时退化为只带ID的对象
func reloadForNotify(repo *repository.RequestRepository, requestID uint) *model.Request {
	request, err := repo.FindByID(requestID)
	if err != nil {
		logger.Warnf("Failed to reload request %d for notification: %v", requestID, err)
		return &model.Request{ID: requestID}
	}
	return request
}
