package model

import (
	"time"

	"gorm.io/datatypes"
)

// 申请状态
const (
	RequestStatusSubmitted = "submitted" // 已提交，审批链尚未激活（无需审批的模板会直接通过）
	RequestStatusInReview  = "in_review" // 审批中，恰好有一个步骤处于 in_review
	RequestStatusApproved  = "approved"  // 已通过（终态）
	RequestStatusRejected  = "rejected"  // 已拒绝（终态）
	RequestStatusCancelled = "cancelled" // 提交人撤回（终态）
)

// 审批步骤状态
const (
	StepStatusPending  = "pending"   // 等待前序步骤完成
	StepStatusInReview = "in_review" // 当前激活，等待审批人决策
	StepStatusApproved = "approved"  // 已通过
	StepStatusRejected = "rejected"  // 已拒绝
)

// IsTerminalRequestStatus 申请状态是否为终态
func IsTerminalRequestStatus(status string) bool {
	return status == RequestStatusApproved ||
		status == RequestStatusRejected ||
		status == RequestStatusCancelled
}

// Request 申请单
type Request struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	RequestNumber string         `gorm:"type:varchar(50);uniqueIndex" json:"request_number"`
	TemplateID    uint           `gorm:"not null;index" json:"template_id"`
	Title         string         `gorm:"type:varchar(200);not null" json:"title"`
	FormData      datatypes.JSON `gorm:"type:json" json:"form_data"`
	Status        string         `gorm:"type:varchar(20);default:submitted;index" json:"status"`
	SubmitterID   string         `gorm:"type:varchar(36);not null;index" json:"submitter_id"`
	SubmitterName string         `gorm:"type:varchar(100);not null" json:"submitter_name"`

	// 假期申请字段（Kind为vacation的模板填写）
	LeaveType string     `gorm:"type:varchar(20);index" json:"leave_type,omitempty"` // annual, on_demand, circumstantial
	StartDate *time.Time `gorm:"type:date" json:"start_date,omitempty"`
	EndDate   *time.Time `gorm:"type:date" json:"end_date,omitempty"`
	DaysCount int        `gorm:"default:0" json:"days_count"` // 提交时计算的工作日数

	CompletedAt *time.Time `gorm:"type:timestamp" json:"completed_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`

	Template *RequestTemplate `gorm:"foreignKey:TemplateID" json:"template,omitempty"`
	Steps    []ApprovalStep   `gorm:"foreignKey:RequestID" json:"steps,omitempty"`
}

func (Request) TableName() string {
	return "requests"
}

// ApprovalStep 审批步骤实例
// 同一申请内恰好最多一个步骤处于 in_review
type ApprovalStep struct {
	ID              uint       `gorm:"primaryKey" json:"id"`
	RequestID       uint       `gorm:"not null;index:idx_request_step,unique" json:"request_id"`
	StepOrder       int        `gorm:"not null;index:idx_request_step,unique" json:"step_order"`
	Name            string     `gorm:"type:varchar(100)" json:"name"`
	Status          string     `gorm:"type:varchar(20);default:pending;index" json:"status"`
	ApproverType    string     `gorm:"type:varchar(20);not null" json:"approver_type"`
	ApproverPayload string     `gorm:"type:varchar(100)" json:"approver_payload"`
	ApproverID      string     `gorm:"type:varchar(36);index" json:"approver_id"`     // 实际做出决策的用户
	ApproverName    string     `gorm:"type:varchar(100)" json:"approver_name"`
	RequiresQuiz    bool       `gorm:"default:false" json:"requires_quiz"`
	QuizScore       *int       `json:"quiz_score,omitempty"` // 测验得分（百分比），nil表示未测验
	QuizPassed      *bool      `json:"quiz_passed,omitempty"`
	Comment         string     `gorm:"type:text" json:"comment"`
	StartedAt       *time.Time `gorm:"type:timestamp" json:"started_at,omitempty"`  // 激活时间
	FinishedAt      *time.Time `gorm:"type:timestamp" json:"finished_at,omitempty"` // 决策时间
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}

func (ApprovalStep) TableName() string {
	return "approval_steps"
}
