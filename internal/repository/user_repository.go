package repository

import (
	"time"

	"github.com/vesperino/portalforge-backend/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// ===== User Methods =====

func (r *UserRepository) CreateUser(user *model.User) error {
	return r.db.Create(user).Error
}

func (r *UserRepository) FindUserByUsername(username string) (*model.User, error) {
	var users []model.User
	result := r.db.Where("username = ?", username).Find(&users)
	if result.Error != nil {
		return nil, result.Error
	}
	if len(users) == 0 {
		return nil, gorm.ErrRecordNotFound
	}
	return &users[0], nil
}

func (r *UserRepository) FindUserByID(id string) (*model.User, error) {
	var user model.User
	err := r.db.Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// FindUserByIDForUpdate 行锁读取用户，必须在事务中调用
// 假期入账和台账调整用它串行化同一用户的计数器变更
func (r *UserRepository) FindUserByIDForUpdate(tx *gorm.DB, id string) (*model.User, error) {
	var user model.User
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *UserRepository) UpdateUser(user *model.User) error {
	return r.db.Save(user).Error
}

func (r *UserRepository) UpdateUserLastLogin(userID string, loginTime time.Time, loginIP string) error {
	return r.db.Model(&model.User{}).
		Where("id = ?", userID).
		Updates(map[string]interface{}{
			"last_login_time": loginTime,
			"last_login_ip":   loginIP,
		}).Error
}

func (r *UserRepository) FindAllUsers() ([]model.User, error) {
	var users []model.User
	err := r.db.Select("id, username, email, full_name, role, status, department_id, supervisor_id, created_at").
		Where("status = ?", "active").
		Order("username ASC").
		Find(&users).Error
	if err != nil {
		return nil, err
	}
	return users, nil
}

// FindUserIDsByRole 查询某角色下所有激活用户的ID
func (r *UserRepository) FindUserIDsByRole(role string) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.User{}).
		Where("role = ? AND status = ?", role, "active").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// ===== Department Methods =====

func (r *UserRepository) FindDepartmentByID(id uint) (*model.Department, error) {
	var dept model.Department
	err := r.db.Where("id = ?", id).First(&dept).Error
	if err != nil {
		return nil, err
	}
	return &dept, nil
}

func (r *UserRepository) FindAllDepartments() ([]model.Department, error) {
	var depts []model.Department
	err := r.db.Order("name ASC").Find(&depts).Error
	if err != nil {
		return nil, err
	}
	return depts, nil
}

// ===== UserGroup Methods =====

func (r *UserRepository) FindGroupByID(id string) (*model.UserGroup, error) {
	var group model.UserGroup
	err := r.db.Where("id = ?", id).First(&group).Error
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// FindGroupMemberIDs 查询组内所有成员的用户ID
func (r *UserRepository) FindGroupMemberIDs(groupID string) ([]string, error) {
	var ids []string
	err := r.db.Model(&model.UserGroupMember{}).
		Where("group_id = ?", groupID).
		Pluck("user_id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// IsGroupMember 用户是否是组成员
func (r *UserRepository) IsGroupMember(groupID, userID string) (bool, error) {
	var count int64
	err := r.db.Model(&model.UserGroupMember{}).
		Where("group_id = ? AND user_id = ?", groupID, userID).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
