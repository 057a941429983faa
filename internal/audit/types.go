package audit

import (
	"context"

	"gorm.io/gorm"
)

// Entry 一次审计事件
type Entry struct {
	RequestID *uint  // 关联的申请（台账调整可能为空）
	StepID    *uint  // 关联的审批步骤
	Action    string // model.ChangeAction* 常量之一
	ActorID   string // 执行操作的用户
	ActorName string
	TargetID  string      // 被操作的目标用户（台账调整时填写）
	OldValue  interface{} // 变更前的值（会被序列化为JSON）
	NewValue  interface{} // 变更后的值
	Comment   string
}

// Auditor 统一的审计器接口
// Record 接收事务句柄，审计记录与业务变更在同一事务中提交
type Auditor interface {
	Record(ctx context.Context, tx *gorm.DB, entry *Entry) error
}
