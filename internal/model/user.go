package model

import (
	"time"
)

// 用户角色
const (
	RoleAdmin      = "admin"      // 系统管理员
	RoleHR         = "hr"         // 人事
	RoleSupervisor = "supervisor" // 部门主管
	RoleEmployee   = "employee"   // 普通员工
)

// User 门户用户
// 假期计数器是台账的权威余额，只在审批通过入账或管理员调整时变动
type User struct {
	ID           string `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Username     string `json:"username" gorm:"type:varchar(50);uniqueIndex;not null"`
	Password     string `json:"-" gorm:"type:varchar(255);not null"` // 不在JSON中暴露
	// Email 可空：未填邮箱的用户存NULL，不占用唯一索引
	Email        *string `json:"email,omitempty" gorm:"type:varchar(100);uniqueIndex"`
	FullName     string `json:"fullName" gorm:"type:varchar(100)"`
	Role         string `json:"role" gorm:"type:varchar(20);default:'employee';index"` // admin, hr, supervisor, employee
	Status       string `json:"status" gorm:"type:varchar(20);default:'active';index"`
	DepartmentID *uint  `json:"departmentId,omitempty" gorm:"index"`
	SupervisorID *string `json:"supervisorId,omitempty" gorm:"type:varchar(36);index"`

	// 假期台账字段
	AnnualVacationDays          int        `json:"annualVacationDays" gorm:"default:26"`
	VacationDaysUsed            int        `json:"vacationDaysUsed" gorm:"default:0"`
	OnDemandVacationDaysUsed    int        `json:"onDemandVacationDaysUsed" gorm:"default:0"`
	CircumstantialLeaveDaysUsed int        `json:"circumstantialLeaveDaysUsed" gorm:"default:0"`
	CarriedOverVacationDays     int        `json:"carriedOverVacationDays" gorm:"default:0"`
	CarriedOverExpiryDate       *time.Time `json:"carriedOverExpiryDate,omitempty" gorm:"type:timestamp"`

	LastLoginTime *time.Time `json:"lastLoginTime" gorm:"type:timestamp"`
	LastLoginIP   string     `json:"lastLoginIp" gorm:"type:varchar(45)"`

	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updatedAt" gorm:"autoUpdateTime"`

	Department *Department `json:"department,omitempty" gorm:"foreignKey:DepartmentID"`
}

func (User) TableName() string {
	return "users"
}

// IsActive 用户是否处于激活状态
func (u *User) IsActive() bool {
	return u.Status == "active"
}

// Department 部门
type Department struct {
	ID          uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	Name        string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:varchar(255)"`
	HeadUserID  *string   `json:"headUserId,omitempty" gorm:"type:varchar(36)"` // 部门负责人
	CreatedAt   time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (Department) TableName() string {
	return "departments"
}

// UserGroup 用户组（审批步骤可以指向一个组，组内任一成员可以审批）
type UserGroup struct {
	ID          string    `json:"id" gorm:"primaryKey;type:varchar(36)"`
	Name        string    `json:"name" gorm:"type:varchar(100);uniqueIndex;not null"`
	Description string    `json:"description" gorm:"type:varchar(255)"`
	CreatedBy   string    `json:"createdBy" gorm:"type:varchar(36)"`
	CreatedAt   time.Time `json:"createdAt" gorm:"autoCreateTime"`
	UpdatedAt   time.Time `json:"updatedAt" gorm:"autoUpdateTime"`
}

func (UserGroup) TableName() string {
	return "user_groups"
}

// UserGroupMember 用户组成员
type UserGroupMember struct {
	ID        uint      `json:"id" gorm:"primaryKey;autoIncrement"`
	GroupID   string    `json:"groupId" gorm:"type:varchar(36);not null;index:idx_group_member,unique"`
	UserID    string    `json:"userId" gorm:"type:varchar(36);not null;index:idx_group_member,unique"`
	AddedBy   string    `json:"addedBy,omitempty" gorm:"type:varchar(36)"`
	CreatedAt time.Time `json:"createdAt" gorm:"autoCreateTime"`
}

func (UserGroupMember) TableName() string {
	return "user_group_members"
}
