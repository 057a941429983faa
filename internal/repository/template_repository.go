package repository

import (
	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"gorm.io/gorm"
)

type TemplateRepository struct {
	db *gorm.DB
}

func NewTemplateRepository(db *gorm.DB) *TemplateRepository {
	return &TemplateRepository{db: db}
}

func (r *TemplateRepository) Create(template *model.RequestTemplate) error {
	return r.db.Create(template).Error
}

// FindByID 查询模板及其审批步骤（步骤按顺序排列）
func (r *TemplateRepository) FindByID(id uint) (*model.RequestTemplate, error) {
	var template model.RequestTemplate
	err := r.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	}).Where("id = ?", id).First(&template).Error
	if err != nil {
		return nil, err
	}
	return &template, nil
}

func (r *TemplateRepository) FindAll(enabledOnly bool) ([]model.RequestTemplate, error) {
	var templates []model.RequestTemplate
	query := r.db.Preload("Steps", func(db *gorm.DB) *gorm.DB {
		return db.Order("step_order ASC")
	})
	if enabledOnly {
		query = query.Where("enabled = ?", true)
	}
	err := query.Order("id ASC").Find(&templates).Error
	if err != nil {
		return nil, err
	}
	return templates, nil
}

func (r *TemplateRepository) Update(template *model.RequestTemplate) error {
	return r.db.Save(template).Error
}

// Delete 删除模板及其步骤、题库
// 已有申请引用的模板不可删除，否则在途申请的决策会找不到模板
func (r *TemplateRepository) Delete(id uint) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		refs, err := r.countReferences(tx, id)
		if err != nil {
			return err
		}
		if refs > 0 {
			return errs.InvalidState("template is referenced by %d requests and cannot be deleted", refs)
		}
		if err := tx.Where("template_id = ?", id).Delete(&model.ApprovalStepTemplate{}).Error; err != nil {
			return err
		}
		if err := tx.Where("template_id = ?", id).Delete(&model.QuizQuestion{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.RequestTemplate{}, id).Error
	})
}

func (r *TemplateRepository) countReferences(tx *gorm.DB, templateID uint) (int64, error) {
	var count int64
	err := tx.Model(&model.Request{}).Where("template_id = ?", templateID).Count(&count).Error
	return count, err
}

// ReplaceSteps 替换模板的审批步骤定义
// 已有申请引用的模板审批链不可再改动
func (r *TemplateRepository) ReplaceSteps(templateID uint, steps []model.ApprovalStepTemplate) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		refs, err := r.countReferences(tx, templateID)
		if err != nil {
			return err
		}
		if refs > 0 {
			return errs.InvalidState("template is referenced by %d requests, approval chain cannot be changed", refs)
		}
		if err := tx.Where("template_id = ?", templateID).Delete(&model.ApprovalStepTemplate{}).Error; err != nil {
			return err
		}
		for i := range steps {
			steps[i].ID = 0
			steps[i].TemplateID = templateID
			if err := tx.Create(&steps[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}

// ===== QuizQuestion Methods =====

func (r *TemplateRepository) FindQuestionsByTemplateID(templateID uint) ([]model.QuizQuestion, error) {
	var questions []model.QuizQuestion
	err := r.db.Where("template_id = ?", templateID).Order("id ASC").Find(&questions).Error
	if err != nil {
		return nil, err
	}
	return questions, nil
}

func (r *TemplateRepository) ReplaceQuestions(templateID uint, questions []model.QuizQuestion) error {
	return r.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("template_id = ?", templateID).Delete(&model.QuizQuestion{}).Error; err != nil {
			return err
		}
		for i := range questions {
			questions[i].ID = 0
			questions[i].TemplateID = templateID
			if err := tx.Create(&questions[i]).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
