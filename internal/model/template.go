package model

import (
	"time"

	"gorm.io/datatypes"
)

// 模板类型
const (
	TemplateKindGeneral  = "general"  // 普通申请（设备、证明、报销等）
	TemplateKindVacation = "vacation" // 假期申请（审批通过后入账）
)

// 审批人解析类型
const (
	ApproverTypeRole       = "role"       // 指定角色（如 hr、supervisor）
	ApproverTypeUser       = "user"       // 指定具体用户
	ApproverTypeGroup      = "group"      // 指定用户组（组内任一成员可审批）
	ApproverTypeSupervisor = "supervisor" // 提交人的直属主管
	ApproverTypeSubmitter  = "submitter"  // 提交人本人（自确认步骤）
)

// RequestTemplate 申请模板
// 定义一类申请的表单结构和审批链
type RequestTemplate struct {
	ID               uint           `gorm:"primaryKey" json:"id"`
	Name             string         `gorm:"type:varchar(200);not null" json:"name"`
	Description      string         `gorm:"type:text" json:"description"`
	Kind             string         `gorm:"type:varchar(20);default:general;index" json:"kind"` // general, vacation
	FormSchema       datatypes.JSON `gorm:"type:json" json:"form_schema"`                       // 表单字段定义
	RequiresApproval bool           `gorm:"default:true" json:"requires_approval"`              // false时提交即通过
	QuizPassScore    int            `gorm:"default:0" json:"quiz_pass_score"`                   // 测验通过分数线（百分比）
	Enabled          bool           `gorm:"default:true;index" json:"enabled"`
	CreatedBy        string         `gorm:"type:varchar(36)" json:"created_by"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`

	Steps     []ApprovalStepTemplate `gorm:"foreignKey:TemplateID" json:"steps,omitempty"`
	Questions []QuizQuestion         `gorm:"foreignKey:TemplateID" json:"questions,omitempty"`
}

func (RequestTemplate) TableName() string {
	return "request_templates"
}

// ApprovalStepTemplate 审批步骤模板
// StepOrder 决定审批链中的顺序，同一模板内唯一
type ApprovalStepTemplate struct {
	ID              uint      `gorm:"primaryKey" json:"id"`
	TemplateID      uint      `gorm:"not null;index:idx_template_step,unique" json:"template_id"`
	StepOrder       int       `gorm:"not null;index:idx_template_step,unique" json:"step_order"`
	Name            string    `gorm:"type:varchar(100)" json:"name"`
	ApproverType    string    `gorm:"type:varchar(20);not null" json:"approver_type"` // role, user, group, supervisor, submitter
	ApproverPayload string    `gorm:"type:varchar(100)" json:"approver_payload"`      // 角色名/用户ID/组ID，supervisor/submitter时为空
	RequiresQuiz    bool      `gorm:"default:false" json:"requires_quiz"`             // 审批前需要先通过测验
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (ApprovalStepTemplate) TableName() string {
	return "approval_step_templates"
}

// QuizQuestion 审批测验题目
// Options 为选项数组，CorrectOption 为正确选项下标
type QuizQuestion struct {
	ID            uint           `gorm:"primaryKey" json:"id"`
	TemplateID    uint           `gorm:"not null;index" json:"template_id"`
	Question      string         `gorm:"type:text;not null" json:"question"`
	Options       datatypes.JSON `gorm:"type:json;not null" json:"options"`
	CorrectOption int            `gorm:"not null" json:"-"` // 不在JSON中暴露正确答案
	CreatedAt     time.Time      `json:"created_at"`
	UpdatedAt     time.Time      `json:"updated_at"`
}

func (QuizQuestion) TableName() string {
	return "quiz_questions"
}
