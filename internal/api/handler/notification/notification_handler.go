package notification

import (
	"net/http"
	"strconv"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/gin-gonic/gin"
)

// NotificationHandler 站内通知处理器
type NotificationHandler struct {
	notificationRepo *repository.NotificationRepository
}

func NewNotificationHandler(notificationRepo *repository.NotificationRepository) *NotificationHandler {
	return &NotificationHandler{notificationRepo: notificationRepo}
}

// List 当前用户的通知列表
// unread=true 时只返回未读
func (h *NotificationHandler) List(c *gin.Context) {
	userID, _ := c.Get("user_id")

	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	pageSize, _ := strconv.Atoi(c.DefaultQuery("page_size", "20"))
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	unreadOnly := c.Query("unread") == "true"

	notifications, total, err := h.notificationRepo.FindByUser(userID.(string), unreadOnly, page, pageSize)
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to list notifications")
		return
	}

	totalPages := int(total) / pageSize
	if int(total)%pageSize > 0 {
		totalPages++
	}

	c.JSON(http.StatusOK, model.Success(model.PaginatedResponse{
		Data:       notifications,
		Total:      total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}))
}

// UnreadCount 未读通知数
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	userID, _ := c.Get("user_id")

	count, err := h.notificationRepo.CountUnread(userID.(string))
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to count notifications")
		return
	}

	c.JSON(http.StatusOK, model.Success(gin.H{"unread": count}))
}

// MarkRead 标记单条已读
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	userID, _ := c.Get("user_id")

	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid notification id")
		return
	}

	if err := h.notificationRepo.MarkRead(userID.(string), uint(id)); err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to mark notification read")
		return
	}

	c.JSON(http.StatusOK, model.Success(nil))
}

// MarkAllRead 全部标记已读
func (h *NotificationHandler) MarkAllRead(c *gin.Context) {
	userID, _ := c.Get("user_id")

	if err := h.notificationRepo.MarkAllRead(userID.(string)); err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to mark notifications read")
		return
	}

	c.JSON(http.StatusOK, model.Success(nil))
}
