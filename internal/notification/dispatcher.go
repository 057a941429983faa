package notification

import (
	"fmt"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"github.com/vesperino/portalforge-backend/pkg/metrics"
)

// Dispatcher 通知派发器
// 业务事务提交后异步调用，通知失败只记录日志，不影响审批结果
type Dispatcher struct {
	repo      *repository.NotificationRepository
	notifiers []Notifier
}

// NewDispatcher 创建通知派发器
// notifiers 为可选的外部webhook通道（飞书/钉钉等）
func NewDispatcher(repo *repository.NotificationRepository, notifiers ...Notifier) *Dispatcher {
	return &Dispatcher{
		repo:      repo,
		notifiers: notifiers,
	}
}

// dispatch 写入站内通知并扇出到外部通道
func (d *Dispatcher) dispatch(n *model.Notification) {
	if err := d.repo.Create(n); err != nil {
		logger.Errorf("Failed to create notification (user=%s, type=%s): %v",
			n.UserID, n.Type, err)
		return
	}

	metrics.NotificationsDispatchedTotal.WithLabelValues(n.Type).Inc()

	for _, notifier := range d.notifiers {
		if err := notifier.SendAlert(n.Title, n.Content); err != nil {
			logger.Warnf("Failed to send external notification: %v", err)
		}
	}
}

// NotifyStepActivated 通知候选审批人：轮到你审批
func (d *Dispatcher) NotifyStepActivated(approverIDs []string, request *model.Request, stepName string) {
	go func() {
		for _, approverID := range approverIDs {
			d.dispatch(&model.Notification{
				UserID:    approverID,
				Type:      model.NotificationTypeStepActivated,
				Title:     fmt.Sprintf("待审批: %s", request.Title),
				Content:   fmt.Sprintf("申请 %s 的步骤「%s」等待你的审批", request.RequestNumber, stepName),
				RequestID: &request.ID,
			})
		}
	}()
}

// NotifyRequestCompleted 通知提交人：申请到达终态
func (d *Dispatcher) NotifyRequestCompleted(request *model.Request, approved bool, comment string) {
	go func() {
		notifType := model.NotificationTypeRequestApproved
		title := fmt.Sprintf("申请已通过: %s", request.Title)
		content := fmt.Sprintf("你的申请 %s 已审批通过", request.RequestNumber)
		if !approved {
			notifType = model.NotificationTypeRequestRejected
			title = fmt.Sprintf("申请已拒绝: %s", request.Title)
			content = fmt.Sprintf("你的申请 %s 已被拒绝", request.RequestNumber)
			if comment != "" {
				content += fmt.Sprintf("，理由: %s", comment)
			}
		}

		d.dispatch(&model.Notification{
			UserID:    request.SubmitterID,
			Type:      notifType,
			Title:     title,
			Content:   content,
			RequestID: &request.ID,
		})
	}()
}

// NotifyLedgerAdjusted 通知用户：假期台账被管理员调整
func (d *Dispatcher) NotifyLedgerAdjusted(userID string, adjustedBy string, comment string) {
	go func() {
		content := fmt.Sprintf("你的假期台账已被 %s 调整", adjustedBy)
		if comment != "" {
			content += fmt.Sprintf("，说明: %s", comment)
		}
		d.dispatch(&model.Notification{
			UserID:  userID,
			Type:    model.NotificationTypeLedgerAdjusted,
			Title:   "假期台账已调整",
			Content: content,
		})
	}()
}
