package repository

import (
	"time"

	"github.com/vesperino/portalforge-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type VacationRepository struct {
	db *gorm.DB
}

func NewVacationRepository(db *gorm.DB) *VacationRepository {
	return &VacationRepository{db: db}
}

func (r *VacationRepository) DB() *gorm.DB {
	return r.db
}

// ===== VacationSchedule Methods =====

func (r *VacationRepository) CreateSchedule(tx *gorm.DB, schedule *model.VacationSchedule) error {
	return tx.Create(schedule).Error
}

// ScheduleExistsForRequest 同一申请是否已经入账
func (r *VacationRepository) ScheduleExistsForRequest(tx *gorm.DB, requestID uint) (bool, error) {
	var count int64
	err := tx.Model(&model.VacationSchedule{}).
		Where("request_id = ?", requestID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// FindScheduleForRequestForUpdate 行锁读取某申请的排期记录，必须在事务中调用
func (r *VacationRepository) FindScheduleForRequestForUpdate(tx *gorm.DB, requestID uint) (*model.VacationSchedule, error) {
	var schedule model.VacationSchedule
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("request_id = ?", requestID).First(&schedule).Error
	if err != nil {
		return nil, err
	}
	return &schedule, nil
}

// UpdateScheduleStatus 更新排期记录状态
func (r *VacationRepository) UpdateScheduleStatus(tx *gorm.DB, id uint, status string) error {
	return tx.Model(&model.VacationSchedule{}).
		Where("id = ?", id).
		Update("status", status).Error
}

func (r *VacationRepository) FindSchedulesByUser(userID string, year int) ([]model.VacationSchedule, error) {
	var schedules []model.VacationSchedule
	query := r.db.Where("user_id = ?", userID)
	if year > 0 {
		yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
		yearEnd := yearStart.AddDate(1, 0, 0)
		query = query.Where("start_date >= ? AND start_date < ?", yearStart, yearEnd)
	}
	err := query.Order("start_date ASC").Find(&schedules).Error
	if err != nil {
		return nil, err
	}
	return schedules, nil
}

// SumScheduledDays 某用户某年按类型统计已入账的天数（排期推导值，用于交叉校验）
func (r *VacationRepository) SumScheduledDays(userID string, leaveType string, year int) (int, error) {
	var total int64
	yearStart := time.Date(year, time.January, 1, 0, 0, 0, 0, time.UTC)
	yearEnd := yearStart.AddDate(1, 0, 0)

	err := r.db.Model(&model.VacationSchedule{}).
		Where("user_id = ? AND leave_type = ? AND status = ? AND start_date >= ? AND start_date < ?",
			userID, leaveType, model.ScheduleStatusApproved, yearStart, yearEnd).
		Select("COALESCE(SUM(days_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// SumPendingDays 某用户审批中尚未入账的假期天数
func (r *VacationRepository) SumPendingDays(userID string, leaveType string) (int, error) {
	var total int64
	err := r.db.Model(&model.Request{}).
		Where("submitter_id = ? AND leave_type = ? AND status IN ?",
			userID, leaveType,
			[]string{model.RequestStatusSubmitted, model.RequestStatusInReview}).
		Select("COALESCE(SUM(days_count), 0)").
		Scan(&total).Error
	if err != nil {
		return 0, err
	}
	return int(total), nil
}

// HasOverlappingSchedule 日期区间是否与该用户生效中的排期重叠
// 已撤回的排期不占用日期
func (r *VacationRepository) HasOverlappingSchedule(userID string, start, end time.Time) (bool, error) {
	var count int64
	err := r.db.Model(&model.VacationSchedule{}).
		Where("user_id = ? AND status = ? AND start_date <= ? AND end_date >= ?",
			userID, model.ScheduleStatusApproved, end, start).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}

// ===== Holiday Methods =====

func (r *VacationRepository) CreateHoliday(holiday *model.Holiday) error {
	return r.db.Create(holiday).Error
}

func (r *VacationRepository) DeleteHoliday(id string) error {
	return r.db.Delete(&model.Holiday{}, "id = ?", id).Error
}

func (r *VacationRepository) FindAllHolidays() ([]model.Holiday, error) {
	var holidays []model.Holiday
	err := r.db.Order("date ASC").Find(&holidays).Error
	if err != nil {
		return nil, err
	}
	return holidays, nil
}

// FindHolidaysInRange 查询区间内的节假日
func (r *VacationRepository) FindHolidaysInRange(start, end time.Time) ([]model.Holiday, error) {
	var holidays []model.Holiday
	err := r.db.Where("date >= ? AND date <= ?", start, end).
		Order("date ASC").
		Find(&holidays).Error
	if err != nil {
		return nil, err
	}
	return holidays, nil
}
