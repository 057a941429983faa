package auth

import (
	"errors"
	"net/http"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/service/auth"
	"github.com/vesperino/portalforge-backend/pkg/config"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// AuthHandler 认证与用户管理处理器
type AuthHandler struct {
	authService *auth.AuthService
}

func NewAuthHandler(authService *auth.AuthService) *AuthHandler {
	return &AuthHandler{authService: authService}
}

// Login 用户登录
func (h *AuthHandler) Login(c *gin.Context) {
	var req auth.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid login request")
		return
	}

	resp, err := h.authService.Login(&req, c.ClientIP())
	if err != nil {
		model.HandleError(c, http.StatusUnauthorized, err, "login failed")
		return
	}

	c.JSON(http.StatusOK, model.Success(resp))
}

// Register 创建用户（仅管理员）
func (h *AuthHandler) Register(c *gin.Context) {
	var req auth.RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "invalid register request")
		return
	}

	user, err := h.authService.Register(&req, config.GlobalConfig.Vacation.DefaultAnnualDays)
	if err != nil {
		model.HandleError(c, http.StatusBadRequest, err, "failed to create user")
		return
	}

	c.JSON(http.StatusOK, model.Success(user))
}

// Me 当前用户信息
func (h *AuthHandler) Me(c *gin.Context) {
	userID, _ := c.Get("user_id")

	user, err := h.authService.GetUserByID(userID.(string))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			model.HandleError(c, http.StatusNotFound, err, "user not found")
			return
		}
		model.HandleError(c, http.StatusInternalServerError, err, "failed to load user")
		return
	}

	c.JSON(http.StatusOK, model.Success(user))
}

// ListUsers 用户列表（管理员/HR）
func (h *AuthHandler) ListUsers(c *gin.Context) {
	users, err := h.authService.GetAllUsers()
	if err != nil {
		model.HandleError(c, http.StatusInternalServerError, err, "failed to list users")
		return
	}

	c.JSON(http.StatusOK, model.Success(users))
}
