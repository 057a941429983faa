package model

import (
	"time"
)

// 假期类型
const (
	LeaveTypeAnnual         = "annual"         // 年假
	LeaveTypeOnDemand       = "on_demand"      // 按需休假（法定每年4天）
	LeaveTypeCircumstantial = "circumstantial" // 特殊事假（婚丧等，单次上限2天）
)

// IsValidLeaveType 假期类型是否合法
func IsValidLeaveType(leaveType string) bool {
	switch leaveType {
	case LeaveTypeAnnual, LeaveTypeOnDemand, LeaveTypeCircumstantial:
		return true
	}
	return false
}

// 排期状态
const (
	ScheduleStatusApproved  = "approved"  // 已入账生效
	ScheduleStatusCancelled = "cancelled" // 申请撤回后台账已回滚
)

// VacationSchedule 假期排期记录
// 审批通过入账时创建，RequestID 唯一保证同一申请不会重复入账；
// 撤回已批假期时不删除记录，改标 cancelled 保留轨迹
type VacationSchedule struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	RequestID uint      `gorm:"not null;uniqueIndex" json:"request_id"`
	UserID    string    `gorm:"type:varchar(36);not null;index" json:"user_id"`
	LeaveType string    `gorm:"type:varchar(20);not null;index" json:"leave_type"`
	Status    string    `gorm:"type:varchar(20);not null;default:approved;index" json:"status"`
	StartDate time.Time `gorm:"type:date;not null;index" json:"start_date"`
	EndDate   time.Time `gorm:"type:date;not null" json:"end_date"`
	DaysCount int       `gorm:"not null" json:"days_count"`
	CreatedAt time.Time `json:"created_at"`
}

func (VacationSchedule) TableName() string {
	return "vacation_schedules"
}

// Holiday 法定节假日（计算工作日时排除）
type Holiday struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Date      time.Time `json:"date" gorm:"type:date;uniqueIndex;not null"`
	Name      string    `json:"name" gorm:"type:varchar(100);not null"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (Holiday) TableName() string {
	return "holidays"
}

// VacationSummary 假期余额汇总（GET /vacations/summary 的响应）
type VacationSummary struct {
	UserID                      string     `json:"user_id"`
	Year                        int        `json:"year"`
	AnnualVacationDays          int        `json:"annual_vacation_days"`
	CarriedOverVacationDays     int        `json:"carried_over_vacation_days"`
	CarriedOverExpiryDate       *time.Time `json:"carried_over_expiry_date,omitempty"`
	VacationDaysUsed            int        `json:"vacation_days_used"`
	OnDemandVacationDaysUsed    int        `json:"on_demand_vacation_days_used"`
	OnDemandVacationDaysLimit   int        `json:"on_demand_vacation_days_limit"`
	CircumstantialLeaveDaysUsed int        `json:"circumstantial_leave_days_used"`
	RemainingVacationDays       int        `json:"remaining_vacation_days"`
	PendingVacationDays         int        `json:"pending_vacation_days"` // 审批中尚未入账的天数
}
