package model

import (
	"time"

	"gorm.io/datatypes"
)

// 审计动作
const (
	ChangeActionSubmit       = "submit"        // 提交申请
	ChangeActionCancel       = "cancel"        // 撤回申请
	ChangeActionStepApprove  = "step_approve"  // 步骤通过
	ChangeActionStepReject   = "step_reject"   // 步骤拒绝
	ChangeActionAutoReject   = "auto_reject"   // 测验失败自动拒绝
	ChangeActionLedgerCommit = "ledger_commit" // 假期入账
	ChangeActionLedgerRevert = "ledger_revert" // 撤回已批假期，台账回滚
	ChangeActionLedgerAdjust = "ledger_adjust" // 管理员台账调整
)

// ChangeLog 申请与台账变更审计记录
// 与审批决策写在同一事务中，保证审计与业务变更原子
type ChangeLog struct {
	ID        uint           `gorm:"primaryKey;autoIncrement" json:"id"`
	RequestID *uint          `gorm:"index" json:"request_id,omitempty"` // 台账调整可能不关联申请
	StepID    *uint          `gorm:"index" json:"step_id,omitempty"`
	Action    string         `gorm:"type:varchar(30);not null;index" json:"action"`
	ActorID   string         `gorm:"type:varchar(36);not null;index" json:"actor_id"`
	ActorName string         `gorm:"type:varchar(100)" json:"actor_name"`
	TargetID  string         `gorm:"type:varchar(36);index" json:"target_id,omitempty"` // 台账调整的目标用户
	OldValue  datatypes.JSON `gorm:"type:json" json:"old_value,omitempty"`
	NewValue  datatypes.JSON `gorm:"type:json" json:"new_value,omitempty"`
	Comment   string         `gorm:"type:text" json:"comment"`
	CreatedAt time.Time      `gorm:"autoCreateTime;index" json:"created_at"`
}

func (ChangeLog) TableName() string {
	return "change_logs"
}
