package template

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/approval"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/gin-gonic/gin"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// TemplateHandler 申请模板管理处理器
type TemplateHandler struct {
	templateRepo *repository.TemplateRepository
}

func NewTemplateHandler(templateRepo *repository.TemplateRepository) *TemplateHandler {
	return &TemplateHandler{templateRepo: templateRepo}
}

type templateRequest struct {
	Name             string                       `json:"name" binding:"required"`
	Description      string                       `json:"description"`
	Kind             string                       `json:"kind"`
	FormSchema       json.RawMessage              `json:"form_schema"`
	RequiresApproval *bool                        `json:"requires_approval"`
	QuizPassScore    int                          `json:"quiz_pass_score"`
	Enabled          *bool                        `json:"enabled"`
	Steps            []model.ApprovalStepTemplate `json:"steps"`
}

func (r *templateRequest) validate() error {
	if r.Kind != "" && r.Kind != model.TemplateKindGeneral && r.Kind != model.TemplateKindVacation {
		return errs.Validation("invalid template kind: %s", r.Kind)
	}
	if r.QuizPassScore < 0 || r.QuizPassScore > 100 {
		return errs.Validation("quiz pass score must be between 0 and 100")
	}
	requiresApproval := true
	if r.RequiresApproval != nil {
		requiresApproval = *r.RequiresApproval
	}
	return approval.ValidateStepTemplates(r.Steps, requiresApproval)
}

// List 模板列表
// 普通用户只看启用的模板，管理员可带 all=true 查看全部
func (h *TemplateHandler) List(c *gin.Context) {
	enabledOnly := true
	if c.Query("all") == "true" {
		role, _ := c.Get("role")
		if role == model.RoleAdmin || role == model.RoleHR {
			enabledOnly = false
		}
	}

	templates, err := h.templateRepo.FindAll(enabledOnly)
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to list templates")
		return
	}

	c.JSON(http.StatusOK, model.Success(templates))
}

// Get 模板详情
func (h *TemplateHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid template id")
		return
	}

	template, err := h.templateRepo.FindByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model.HandleError(c, http.StatusNotFound, err, "template not found")
			return
		}
		model.HandleError(c, http.StatusInternalServerError, err, "failed to load template")
		return
	}

	c.JSON(http.StatusOK, model.Success(template))
}

// Create 创建模板（管理员）
func (h *TemplateHandler) Create(c *gin.Context) {
	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid template request")
		return
	}
	if err := req.validate(); err != nil {
		model.HandleError(c, errs.StatusOf(err), err, "invalid template definition")
		return
	}

	userID, _ := c.Get("user_id")

	template := &model.RequestTemplate{
		Name:             req.Name,
		Description:      req.Description,
		Kind:             req.Kind,
		QuizPassScore:    req.QuizPassScore,
		RequiresApproval: true,
		Enabled:          true,
		CreatedBy:        userID.(string),
		Steps:            req.Steps,
	}
	if template.Kind == "" {
		template.Kind = model.TemplateKindGeneral
	}
	if len(req.FormSchema) > 0 {
		template.FormSchema = datatypes.JSON(req.FormSchema)
	}
	if req.RequiresApproval != nil {
		template.RequiresApproval = *req.RequiresApproval
	}
	if req.Enabled != nil {
		template.Enabled = *req.Enabled
	}

	if err := h.templateRepo.Create(template); err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to create template")
		return
	}

	c.JSON(http.StatusOK, model.Success(template))
}

// Update 更新模板（管理员）
// 步骤定义整体替换；已被申请引用的模板审批链不可再改
func (h *TemplateHandler) Update(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid template id")
		return
	}

	var req templateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid template request")
		return
	}
	if err := req.validate(); err != nil {
		model.HandleError(c, errs.StatusOf(err), err, "invalid template definition")
		return
	}

	template, err := h.templateRepo.FindByID(uint(id))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model.HandleError(c, http.StatusNotFound, err, "template not found")
			return
		}
		model.HandleError(c, http.StatusInternalServerError, err, "failed to load template")
		return
	}

	template.Name = req.Name
	template.Description = req.Description
	if req.Kind != "" {
		template.Kind = req.Kind
	}
	if len(req.FormSchema) > 0 {
		template.FormSchema = datatypes.JSON(req.FormSchema)
	}
	if req.RequiresApproval != nil {
		template.RequiresApproval = *req.RequiresApproval
	}
	template.QuizPassScore = req.QuizPassScore
	if req.Enabled != nil {
		template.Enabled = *req.Enabled
	}
	template.Steps = nil

	if err := h.templateRepo.Update(template); err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to update template")
		return
	}

	if req.Steps != nil {
		if err := h.templateRepo.ReplaceSteps(template.ID, req.Steps); err != nil {
			model.HandleError(c, errs.StatusOf(err), err, "failed to update template steps")
			return
		}
	}

	updated, err := h.templateRepo.FindByID(template.ID)
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to reload template")
		return
	}

	c.JSON(http.StatusOK, model.Success(updated))
}

// Delete 删除模板（管理员）
func (h *TemplateHandler) Delete(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid template id")
		return
	}

	if err := h.templateRepo.Delete(uint(id)); err != nil {
		model.HandleError(c, errs.StatusOf(err), err, "failed to delete template")
		return
	}

	c.JSON(http.StatusOK, model.Success(nil))
}

type questionsRequest struct {
	Questions []model.QuizQuestion `json:"questions" binding:"required"`
}

// ReplaceQuestions 替换模板的测验题库（管理员）
func (h *TemplateHandler) ReplaceQuestions(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid template id")
		return
	}

	var req questionsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid questions request")
		return
	}

	if _, err := h.templateRepo.FindByID(uint(id)); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model.HandleError(c, http.StatusNotFound, err, "template not found")
			return
		}
		model.HandleError(c, http.StatusInternalServerError, err, "failed to load template")
		return
	}

	if err := h.templateRepo.ReplaceQuestions(uint(id), req.Questions); err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to update quiz questions")
		return
	}

	c.JSON(http.StatusOK, model.Success(nil))
}
