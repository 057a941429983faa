package request

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/approval"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/internal/service/quiz"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// RequestHandler 申请与审批处理器
type RequestHandler struct {
	service      *approval.Service
	machine      *approval.Machine
	bulk         *approval.BulkCoordinator
	userRepo     *repository.UserRepository
	requestRepo  *repository.RequestRepository
	templateRepo *repository.TemplateRepository
}

func NewRequestHandler(
	service *approval.Service,
	machine *approval.Machine,
	bulk *approval.BulkCoordinator,
	userRepo *repository.UserRepository,
	requestRepo *repository.RequestRepository,
	templateRepo *repository.TemplateRepository,
) *RequestHandler {
	return &RequestHandler{
		service:      service,
		machine:      machine,
		bulk:         bulk,
		userRepo:     userRepo,
		requestRepo:  requestRepo,
		templateRepo: templateRepo,
	}
}

// currentUser 从上下文加载当前用户
func (h *RequestHandler) currentUser(c *gin.Context) (*model.User, bool) {
	userID, exists := c.Get("user_id")
	if !exists {
		model.HandleError(c, http.StatusUnauthorized, errors.New("not authenticated"))
		return nil, false
	}

	user, err := h.userRepo.FindUserByID(userID.(string))
	if err != nil {
		model.HandleError(c, http.StatusUnauthorized, err, "failed to load current user")
		return nil, false
	}
	return user, true
}

// handleServiceError 按业务错误类别映射HTTP状态码
func handleServiceError(c *gin.Context, err error, context string) {
	model.HandleError(c, errs.StatusOf(err), err, context)
}

// Submit 提交申请
func (h *RequestHandler) Submit(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var input approval.SubmitInput
	if err := c.ShouldBindJSON(&input); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid submit request")
		return
	}

	request, err := h.service.Submit(c.Request.Context(), user, &input)
	if err != nil {
		handleServiceError(c, err, "failed to submit request")
		return
	}

	c.JSON(http.StatusOK, model.Success(request))
}

// Get 申请详情
func (h *RequestHandler) Get(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid request id")
		return
	}

	request, err := h.service.Get(user, uint(id))
	if err != nil {
		handleServiceError(c, err, "failed to load request")
		return
	}

	c.JSON(http.StatusOK, model.Success(request))
}

// ListMine 我提交的申请
func (h *RequestHandler) ListMine(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	page, pageSize := pagination(c)
	requests, total, err := h.service.ListMine(user, c.Query("status"), page, pageSize)
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to list requests")
		return
	}

	c.JSON(http.StatusOK, model.Success(model.PaginatedResponse{
		Data:       requests,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}))
}

// Cancel 撤回申请
func (h *RequestHandler) Cancel(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid request id")
		return
	}

	request, err := h.service.Cancel(c.Request.Context(), user, uint(id))
	if err != nil {
		handleServiceError(c, err, "failed to cancel request")
		return
	}

	c.JSON(http.StatusOK, model.Success(request))
}

// ChangeLogs 申请的审计记录
func (h *RequestHandler) ChangeLogs(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid request id")
		return
	}

	logs, err := h.service.ChangeLogs(user, uint(id))
	if err != nil {
		handleServiceError(c, err, "failed to load change logs")
		return
	}

	c.JSON(http.StatusOK, model.Success(logs))
}

// ListPending 等待我审批的步骤
func (h *RequestHandler) ListPending(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	page, pageSize := pagination(c)
	steps, total, err := h.service.ListPending(user, page, pageSize)
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to list pending approvals")
		return
	}

	c.JSON(http.StatusOK, model.Success(model.PaginatedResponse{
		Data:       steps,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages(total, pageSize),
	}))
}

type decisionRequest struct {
	Comment string        `json:"comment"`
	Answers []quiz.Answer `json:"answers"`
}

// ApproveStep 通过审批步骤
func (h *RequestHandler) ApproveStep(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	stepID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid step id")
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid approval request")
		return
	}

	result, err := h.machine.ApproveStep(c.Request.Context(), user, uint(stepID), req.Comment, req.Answers)
	if err != nil {
		handleServiceError(c, err, "failed to approve step")
		return
	}

	c.JSON(http.StatusOK, model.Success(result))
}

// RejectStep 拒绝审批步骤
func (h *RequestHandler) RejectStep(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	stepID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid step id")
		return
	}

	var req decisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid rejection request")
		return
	}

	result, err := h.machine.RejectStep(c.Request.Context(), user, uint(stepID), req.Comment)
	if err != nil {
		handleServiceError(c, err, "failed to reject step")
		return
	}

	c.JSON(http.StatusOK, model.Success(result))
}

type bulkApproveRequest struct {
	StepIDs []uint `json:"step_ids" binding:"required"`
	Comment string `json:"comment"`
}

// BulkApprove 批量通过审批步骤
func (h *RequestHandler) BulkApprove(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	var req bulkApproveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid bulk approval request")
		return
	}

	resp, err := h.bulk.BulkApprove(c.Request.Context(), user, req.StepIDs, req.Comment)
	if err != nil {
		handleServiceError(c, err, "failed to bulk approve")
		return
	}

	c.JSON(http.StatusOK, model.Success(resp))
}

// StepQuiz 步骤测验题目（不含正确答案）
func (h *RequestHandler) StepQuiz(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	stepID, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid step id")
		return
	}

	step, err := h.requestRepo.FindStepByID(uint(stepID))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model.HandleError(c, http.StatusNotFound, err, "step not found")
			return
		}
		model.HandleError(c, http.StatusInternalServerError, err, "failed to load step")
		return
	}

	request, err := h.service.Get(user, step.RequestID)
	if err != nil {
		handleServiceError(c, err, "failed to load request")
		return
	}

	questions, err := h.templateRepo.FindQuestionsByTemplateID(request.TemplateID)
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to load quiz questions")
		return
	}

	c.JSON(http.StatusOK, model.Success(questions))
}

func pagination(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	return page, pageSize
}

func totalPages(total int64, pageSize int) int {
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}
