package model

import (
	"time"
)

// 通知类型
const (
	NotificationTypeStepActivated   = "step_activated"   // 轮到你审批
	NotificationTypeRequestApproved = "request_approved" // 申请已通过
	NotificationTypeRequestRejected = "request_rejected" // 申请已拒绝
	NotificationTypeLedgerAdjusted  = "ledger_adjusted"  // 假期台账被管理员调整
)

// Notification 站内通知
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	Type      string    `gorm:"type:varchar(30);not null;index" json:"type"`
	Title     string    `gorm:"type:varchar(200);not null" json:"title"`
	Content   string    `gorm:"type:text" json:"content"`
	RequestID *uint     `gorm:"index" json:"request_id,omitempty"`
	IsRead    bool      `gorm:"default:false;index" json:"is_read"`
	CreatedAt time.Time `json:"created_at"`
}

func (Notification) TableName() string {
	return "notifications"
}
