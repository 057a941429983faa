package approval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/vesperino/portalforge-backend/internal/audit"
	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/notification"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/internal/service/vacation"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"github.com/vesperino/portalforge-backend/pkg/metrics"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// SubmitInput 提交申请的输入
type SubmitInput struct {
	TemplateID uint            `json:"template_id" binding:"required"`
	Title      string          `json:"title" binding:"required"`
	FormData   json.RawMessage `json:"form_data"`

	// 假期模板必填
	LeaveType string `json:"leave_type"`
	StartDate string `json:"start_date"` // 2006-01-02
	EndDate   string `json:"end_date"`
}

// Service 申请路由服务
// 负责提交时实例化审批链、激活首步骤，以及撤回
type Service struct {
	requestRepo  *repository.RequestRepository
	templateRepo *repository.TemplateRepository
	userRepo     *repository.UserRepository
	resolver     *Resolver
	ledger       *vacation.Ledger
	auditor      audit.Auditor
	dispatcher   *notification.Dispatcher
}

func NewService(
	requestRepo *repository.RequestRepository,
	templateRepo *repository.TemplateRepository,
	userRepo *repository.UserRepository,
	resolver *Resolver,
	ledger *vacation.Ledger,
	auditor audit.Auditor,
	dispatcher *notification.Dispatcher,
) *Service {
	return &Service{
		requestRepo:  requestRepo,
		templateRepo: templateRepo,
		userRepo:     userRepo,
		resolver:     resolver,
		ledger:       ledger,
		auditor:      auditor,
		dispatcher:   dispatcher,
	}
}

// Submit 提交申请
// 假期模板先做额度校验；无审批链的模板提交即通过（假期同事务入账）；
// 有审批链时实例化全部步骤并激活第一步
func (s *Service) Submit(ctx context.Context, submitter *model.User, input *SubmitInput) (*model.Request, error) {
	template, err := s.templateRepo.FindByID(input.TemplateID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFound("template %d not found", input.TemplateID)
		}
		return nil, err
	}
	if !template.Enabled {
		return nil, errs.Validation("template %s is disabled", template.Name)
	}

	request := &model.Request{
		TemplateID:    template.ID,
		Title:         input.Title,
		SubmitterID:   submitter.ID,
		SubmitterName: submitter.FullName,
		Status:        model.RequestStatusSubmitted,
	}
	if len(input.FormData) > 0 {
		request.FormData = datatypes.JSON(input.FormData)
	}

	// 假期模板：解析日期、算工作日、查额度
	if template.Kind == model.TemplateKindVacation {
		start, end, err := parseDateRange(input.StartDate, input.EndDate)
		if err != nil {
			return nil, err
		}
		days, err := s.ledger.ValidateRequest(submitter, input.LeaveType, start, end)
		if err != nil {
			return nil, err
		}
		request.LeaveType = input.LeaveType
		request.StartDate = &start
		request.EndDate = &end
		request.DaysCount = days
	}

	number, err := s.requestRepo.GenerateRequestNumber()
	if err != nil {
		return nil, err
	}
	request.RequestNumber = number

	needsApproval := template.RequiresApproval && len(template.Steps) > 0

	// 提交前整体校验审批链，聚合所有解析失败后一次性返回
	if needsApproval {
		if err := s.validateChain(template.Steps, submitter); err != nil {
			return nil, err
		}
	}

	var activatedStep *model.ApprovalStep
	var activatedCandidates []string

	err = s.requestRepo.DB().Transaction(func(tx *gorm.DB) error {
		now := time.Now()

		if !needsApproval {
			request.Status = model.RequestStatusApproved
			request.CompletedAt = &now
		}

		if err := s.requestRepo.Create(tx, request); err != nil {
			return err
		}

		if needsApproval {
			// 实例化审批链，步骤定义快照进申请，后续模板修改不影响在途申请
			steps := make([]model.ApprovalStep, 0, len(template.Steps))
			for _, st := range template.Steps {
				steps = append(steps, model.ApprovalStep{
					RequestID:       request.ID,
					StepOrder:       st.StepOrder,
					Name:            st.Name,
					Status:          model.StepStatusPending,
					ApproverType:    st.ApproverType,
					ApproverPayload: st.ApproverPayload,
					RequiresQuiz:    st.RequiresQuiz,
				})
			}

			// 先确认第一步能解析出审批人，再落库
			first := &steps[0]
			candidates, err := s.resolver.ResolveCandidates(first, submitter)
			if err != nil {
				return err
			}
			first.Status = model.StepStatusInReview
			first.StartedAt = &now

			for i := range steps {
				if err := s.requestRepo.CreateStep(tx, &steps[i]); err != nil {
					return err
				}
			}

			if err := s.requestRepo.UpdateStatus(tx, request.ID, model.RequestStatusInReview, nil); err != nil {
				return err
			}
			request.Status = model.RequestStatusInReview
			activatedStep = first
			activatedCandidates = candidates
		} else if template.Kind == model.TemplateKindVacation {
			// 无需审批的假期模板提交即入账
			if err := s.ledger.Commit(ctx, tx, request); err != nil {
				return err
			}
		}

		entry := &audit.Entry{
			RequestID: &request.ID,
			Action:    model.ChangeActionSubmit,
			ActorID:   submitter.ID,
			ActorName: submitter.FullName,
			NewValue:  map[string]string{"status": request.Status},
		}
		return s.auditor.Record(ctx, tx, entry)
	})
	if err != nil {
		return nil, err
	}

	metrics.RequestsSubmittedTotal.WithLabelValues(template.Kind).Inc()

	if activatedStep != nil {
		s.dispatcher.NotifyStepActivated(activatedCandidates, request, activatedStep.Name)
	} else {
		metrics.RequestsCompletedTotal.WithLabelValues(request.Status).Inc()
		s.dispatcher.NotifyRequestCompleted(request, true, "")
	}

	logger.Infof("Request submitted: %s by %s (template=%s, status=%s)",
		request.RequestNumber, submitter.Username, template.Name, request.Status)
	return request, nil
}

// validateChain 校验整条审批链对该提交人可解析
// 不在第一个失败处停下，聚合每一步的解析问题
func (s *Service) validateChain(steps []model.ApprovalStepTemplate, submitter *model.User) error {
	var problems []string
	for _, st := range steps {
		probe := &model.ApprovalStep{
			StepOrder:       st.StepOrder,
			ApproverType:    st.ApproverType,
			ApproverPayload: st.ApproverPayload,
		}
		if _, err := s.resolver.ResolveCandidates(probe, submitter); err != nil {
			if errs.IsKind(err, errs.KindBusiness) || errs.IsKind(err, errs.KindValidation) {
				problems = append(problems, fmt.Sprintf("step %d: %v", st.StepOrder, err))
				continue
			}
			return err
		}
	}
	if len(problems) > 0 {
		return errs.Business("approval chain cannot be resolved: %s", strings.Join(problems, "; "))
	}
	return nil
}

// Cancel 撤回申请
// 审批中的申请提交人可撤回；已通过的假期申请也可撤回，
// 此时在同一事务内回滚台账并把排期改标 cancelled。
// 已拒绝、已撤回、或已通过的非假期申请不可撤回。
func (s *Service) Cancel(ctx context.Context, actor *model.User, requestID uint) (*model.Request, error) {
	var cancelled *model.Request

	err := s.requestRepo.DB().Transaction(func(tx *gorm.DB) error {
		request, err := s.requestRepo.FindByIDForUpdate(tx, requestID)
		if err != nil {
			if err == gorm.ErrRecordNotFound {
				return errs.NotFound("request %d not found", requestID)
			}
			return err
		}

		if request.SubmitterID != actor.ID &&
			actor.Role != model.RoleAdmin && actor.Role != model.RoleHR {
			return errs.Forbidden("only the submitter can cancel a request")
		}
		if model.IsTerminalRequestStatus(request.Status) {
			// 已通过的假期申请撤回时回滚入账
			if request.Status != model.RequestStatusApproved || request.LeaveType == "" {
				return errs.InvalidState("request %s is already %s", request.RequestNumber, request.Status)
			}
			if err := s.ledger.Revert(ctx, tx, request, actor); err != nil {
				return err
			}
		}

		now := time.Now()
		oldStatus := request.Status
		if err := s.requestRepo.UpdateStatus(tx, request.ID, model.RequestStatusCancelled, &now); err != nil {
			return err
		}
		request.Status = model.RequestStatusCancelled
		request.CompletedAt = &now

		entry := &audit.Entry{
			RequestID: &request.ID,
			Action:    model.ChangeActionCancel,
			ActorID:   actor.ID,
			ActorName: actor.FullName,
			OldValue:  map[string]string{"status": oldStatus},
			NewValue:  map[string]string{"status": model.RequestStatusCancelled},
		}
		if err := s.auditor.Record(ctx, tx, entry); err != nil {
			return err
		}

		cancelled = request
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.RequestsCompletedTotal.WithLabelValues(model.RequestStatusCancelled).Inc()
	logger.Infof("Request cancelled: %d by %s", requestID, actor.Username)
	return cancelled, nil
}

// Get 查询申请详情
// 提交人、管理员、HR、以及当前激活步骤的候选审批人可见
func (s *Service) Get(actor *model.User, requestID uint) (*model.Request, error) {
	request, err := s.requestRepo.FindByID(requestID)
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, errs.NotFound("request %d not found", requestID)
		}
		return nil, err
	}

	if request.SubmitterID == actor.ID ||
		actor.Role == model.RoleAdmin || actor.Role == model.RoleHR {
		return request, nil
	}

	submitter, err := s.userRepo.FindUserByID(request.SubmitterID)
	if err != nil {
		return nil, err
	}
	for i := range request.Steps {
		step := &request.Steps[i]
		ok, err := s.resolver.CanApprove(step, actor, submitter)
		if err == nil && ok {
			return request, nil
		}
	}

	return nil, errs.Forbidden("no access to request %d", requestID)
}

// ListMine 分页查询自己提交的申请
func (s *Service) ListMine(actor *model.User, status string, page, pageSize int) ([]model.Request, int64, error) {
	return s.requestRepo.FindBySubmitter(actor.ID, status, page, pageSize)
}

// ListPending 分页查询等待该用户决策的步骤
func (s *Service) ListPending(actor *model.User, page, pageSize int) ([]model.ApprovalStep, int64, error) {
	groupIDs, err := s.memberGroupIDs(actor.ID)
	if err != nil {
		return nil, 0, err
	}
	return s.requestRepo.FindPendingStepsForApprover(actor, groupIDs, page, pageSize)
}

// ChangeLogs 查询申请的审计记录
func (s *Service) ChangeLogs(actor *model.User, requestID uint) ([]model.ChangeLog, error) {
	if _, err := s.Get(actor, requestID); err != nil {
		return nil, err
	}
	return s.requestRepo.FindChangeLogsByRequestID(requestID)
}

func (s *Service) memberGroupIDs(userID string) ([]string, error) {
	var ids []string
	err := s.requestRepo.DB().Model(&model.UserGroupMember{}).
		Where("user_id = ?", userID).
		Pluck("group_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func parseDateRange(startStr, endStr string) (time.Time, time.Time, error) {
	if startStr == "" || endStr == "" {
		return time.Time{}, time.Time{}, errs.Validation("start_date and end_date are required for vacation requests")
	}
	start, err := time.ParseInLocation("2006-01-02", startStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, errs.Validation("invalid start_date: %s", startStr)
	}
	end, err := time.ParseInLocation("2006-01-02", endStr, time.UTC)
	if err != nil {
		return time.Time{}, time.Time{}, errs.Validation("invalid end_date: %s", endStr)
	}
	return start, end, nil
}
