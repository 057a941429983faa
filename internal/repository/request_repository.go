package repository

import (
	"fmt"
	"time"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type RequestRepository struct {
	db *gorm.DB
}

func NewRequestRepository(db *gorm.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// DB 暴露底层连接，service 层用它开启跨仓库事务
func (r *RequestRepository) DB() *gorm.DB {
	return r.db
}

// GenerateRequestNumber 生成申请单号: REQ-时间戳-随机后缀
// 随机后缀避免并发提交生成重复单号
func (r *RequestRepository) GenerateRequestNumber() (string, error) {
	return fmt.Sprintf("REQ-%s-%s",
		time.Now().Format("20060102150405"),
		uuid.New().String()[:8]), nil
}

func (r *RequestRepository) Create(tx *gorm.DB, request *model.Request) error {
	return tx.Create(request).Error
}

func (r *RequestRepository) FindByID(id uint) (*model.Request, error) {
	var request model.Request
	err := r.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).Preload("Template").Where("id = ?", id).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindByIDForUpdate 行锁读取申请单，必须在事务中调用
func (r *RequestRepository) FindByIDForUpdate(tx *gorm.DB, id uint) (*model.Request, error) {
	var request model.Request
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&request).Error
	if err != nil {
		return nil, err
	}
	return &request, nil
}

// FindBySubmitter 分页查询某用户提交的申请
func (r *RequestRepository) FindBySubmitter(submitterID string, status string, page, pageSize int) ([]model.Request, int64, error) {
	var requests []model.Request
	var total int64

	query := r.db.Model(&model.Request{}).Where("submitter_id = ?", submitterID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).Order("created_at DESC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&requests).Error
	if err != nil {
		return nil, 0, err
	}

	return requests, total, nil
}

func (r *RequestRepository) Update(tx *gorm.DB, request *model.Request) error {
	return tx.Save(request).Error
}

// UpdateStatus 更新申请状态
func (r *RequestRepository) UpdateStatus(tx *gorm.DB, id uint, status string, completedAt *time.Time) error {
	updates := map[string]interface{}{"status": status}
	if completedAt != nil {
		updates["completed_at"] = completedAt
	}
	return tx.Model(&model.Request{}).Where("id = ?", id).Updates(updates).Error
}

// ===== ApprovalStep Methods =====

func (r *RequestRepository) CreateStep(tx *gorm.DB, step *model.ApprovalStep) error {
	return tx.Create(step).Error
}

func (r *RequestRepository) FindStepByID(id uint) (*model.ApprovalStep, error) {
	var step model.ApprovalStep
	err := r.db.Where("id = ?", id).First(&step).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}

// FindStepByIDForUpdate 行锁读取审批步骤，必须在事务中调用
// 并发审批同一步骤时，后到的事务会在这里排队，提交后看到新状态
func (r *RequestRepository) FindStepByIDForUpdate(tx *gorm.DB, id uint) (*model.ApprovalStep, error) {
	var step model.ApprovalStep
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&step).Error
	if err != nil {
		return nil, err
	}
	return &step, nil
}

func (r *RequestRepository) FindStepsByRequestID(tx *gorm.DB, requestID uint) ([]model.ApprovalStep, error) {
	var steps []model.ApprovalStep
	err := tx.Where("request_id = ?", requestID).
		Order("step_order ASC").
		Find(&steps).Error
	if err != nil {
		return nil, err
	}
	return steps, nil
}

func (r *RequestRepository) UpdateStep(tx *gorm.DB, step *model.ApprovalStep) error {
	return tx.Save(step).Error
}

// FindPendingStepsForApprover 查询等待某审批人决策的步骤
// 候选集合: 直接指派给该用户、该用户角色、该用户所在组、
// 该用户为提交人主管的 supervisor 步骤、以及该用户自己申请的 submitter 自确认步骤
func (r *RequestRepository) FindPendingStepsForApprover(user *model.User, groupIDs []string, page, pageSize int) ([]model.ApprovalStep, int64, error) {
	var steps []model.ApprovalStep
	var total int64

	cond := r.db.
		Where("approver_type = ? AND approver_payload = ?", model.ApproverTypeUser, user.ID).
		Or("approver_type = ? AND approver_payload = ?", model.ApproverTypeRole, user.Role)
	if len(groupIDs) > 0 {
		cond = cond.Or("approver_type = ? AND approver_payload IN ?", model.ApproverTypeGroup, groupIDs)
	}
	cond = cond.Or("approver_type = ? AND request_id IN (?)", model.ApproverTypeSupervisor,
		r.db.Model(&model.Request{}).Select("requests.id").
			Joins("JOIN users ON users.id = requests.submitter_id").
			Where("users.supervisor_id = ?", user.ID))
	cond = cond.Or("approver_type = ? AND request_id IN (?)", model.ApproverTypeSubmitter,
		r.db.Model(&model.Request{}).Select("requests.id").
			Where("requests.submitter_id = ?", user.ID))

	query := r.db.Model(&model.ApprovalStep{}).
		Where("status = ?", model.StepStatusInReview).
		Where(cond)

	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	err := query.Order("created_at ASC").
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&steps).Error
	if err != nil {
		return nil, 0, err
	}

	return steps, total, nil
}

// ===== ChangeLog Methods =====

func (r *RequestRepository) FindChangeLogsByRequestID(requestID uint) ([]model.ChangeLog, error) {
	var logs []model.ChangeLog
	err := r.db.Where("request_id = ?", requestID).
		Order("created_at ASC").
		Find(&logs).Error
	if err != nil {
		return nil, err
	}
	return logs, nil
}
