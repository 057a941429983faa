package vacation

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/internal/service/errs"
	"github.com/vesperino/portalforge-backend/internal/service/vacation"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// VacationHandler 假期台账处理器
type VacationHandler struct {
	ledger       *vacation.Ledger
	userRepo     *repository.UserRepository
	vacationRepo *repository.VacationRepository
}

func NewVacationHandler(
	ledger *vacation.Ledger,
	userRepo *repository.UserRepository,
	vacationRepo *repository.VacationRepository,
) *VacationHandler {
	return &VacationHandler{
		ledger:       ledger,
		userRepo:     userRepo,
		vacationRepo: vacationRepo,
	}
}

func (h *VacationHandler) currentUser(c *gin.Context) (*model.User, bool) {
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

// targetUserID 解析查询目标用户
// 查别人的台账需要 admin/hr 权限
func (h *VacationHandler) targetUserID(c *gin.Context, actor *model.User) (string, bool) {
	target := c.Query("user_id")
	if target == "" || target == actor.ID {
		return actor.ID, true
	}
	if actor.Role != model.RoleAdmin && actor.Role != model.RoleHR {
		model.HandleError(c, http.StatusForbidden,
			errors.New("only admin or hr can view other users' vacation data"))
		return "", false
	}
	return target, true
}

// Summary 假期余额汇总
func (h *VacationHandler) Summary(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	target, ok := h.targetUserID(c, user)
	if !ok {
		return
	}

	year, _ := strconv.Atoi(c.Query("year"))
	summary, err := h.ledger.Summary(target, year)
	if err != nil {
		model.HandleError(c, errs.StatusOf(err), err, "failed to load vacation summary")
		return
	}

	c.JSON(http.StatusOK, model.Success(summary))
}

// Schedules 假期排期
func (h *VacationHandler) Schedules(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	target, ok := h.targetUserID(c, user)
	if !ok {
		return
	}

	year, _ := strconv.Atoi(c.Query("year"))
	schedules, err := h.ledger.Schedules(target, year)
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to load vacation schedules")
		return
	}

	c.JSON(http.StatusOK, model.Success(schedules))
}

// Adjust 管理员调整台账
func (h *VacationHandler) Adjust(c *gin.Context) {
	user, ok := h.currentUser(c)
	if !ok {
		return
	}

	targetID := c.Param("user_id")
	if targetID == "" {
		model.HandleError(c, http.StatusBadRequest, errors.New("user_id is required"))
		return
	}

	var input vacation.AdjustInput
	if err := c.ShouldBindJSON(&input); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid adjustment request")
		return
	}

	updated, err := h.ledger.AdminAdjust(c.Request.Context(), user, targetID, &input)
	if err != nil {
		model.HandleError(c, errs.StatusOf(err), err, "failed to adjust vacation ledger")
		return
	}

	c.JSON(http.StatusOK, model.Success(updated))
}

// ===== Holiday Management =====

type holidayRequest struct {
	Date string `json:"date" binding:"required"` // 2006-01-02
	Name string `json:"name" binding:"required"`
}

// ListHolidays 节假日列表
func (h *VacationHandler) ListHolidays(c *gin.Context) {
	holidays, err := h.vacationRepo.FindAllHolidays()
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to list holidays")
		return
	}

	c.JSON(http.StatusOK, model.Success(holidays))
}

// CreateHoliday 新增节假日（管理员）
func (h *VacationHandler) CreateHoliday(c *gin.Context) {
	var req holidayRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid holiday request")
		return
	}

	date, err := time.ParseInLocation("2006-01-02", req.Date, time.UTC)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid holiday date")
		return
	}

	holiday := &model.Holiday{
		ID:   uuid.New().String(),
		Date: date,
		Name: req.Name,
	}
	if err := h.vacationRepo.CreateHoliday(holiday); err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to create holiday")
		return
	}

	// 节假日变更后让工作日缓存失效
	h.ledger.Calendar().Invalidate()

	c.JSON(http.StatusOK, model.Success(holiday))
}

// DeleteHoliday 删除节假日（管理员）
func (h *VacationHandler) DeleteHoliday(c *gin.Context) {
	id := c.Param("id")
	if err := h.vacationRepo.DeleteHoliday(id); err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to delete holiday")
		return
	}

	h.ledger.Calendar().Invalidate()

	c.JSON(http.StatusOK, model.Success(nil))
}
