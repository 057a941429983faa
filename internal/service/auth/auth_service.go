package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/vesperino/portalforge-backend/internal/model"
	"github.com/vesperino/portalforge-backend/internal/repository"
	"github.com/vesperino/portalforge-backend/pkg/logger"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
)

// Claims JWT载荷
type Claims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// LoginRequest 登录请求
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginResponse 登录响应
type LoginResponse struct {
	Token string      `json:"token"`
	User  *model.User `json:"user"`
}

// RegisterRequest 创建用户请求
type RegisterRequest struct {
	Username     string  `json:"username" binding:"required"`
	Password     string  `json:"password" binding:"required,min=8"`
	Email        string  `json:"email"`
	FullName     string  `json:"fullName"`
	Role         string  `json:"role"`
	DepartmentID *uint   `json:"departmentId"`
	SupervisorID *string `json:"supervisorId"`
}

type AuthService struct {
	repo        *repository.UserRepository
	jwtSecret   []byte
	tokenExpire time.Duration
}

// NewAuthService 创建认证服务
func NewAuthService(repo *repository.UserRepository, jwtSecret string, tokenExpireHours int) *AuthService {
	if tokenExpireHours <= 0 {
		tokenExpireHours = 24
	}
	return &AuthService{
		repo:        repo,
		jwtSecret:   []byte(jwtSecret),
		tokenExpire: time.Duration(tokenExpireHours) * time.Hour,
	}
}

// Login 密码登录
func (s *AuthService) Login(req *LoginRequest, loginIP string) (*LoginResponse, error) {
	user, err := s.repo.FindUserByUsername(req.Username)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New("invalid username or password")
		}
		return nil, err
	}

	if !user.IsActive() {
		return nil, errors.New("account is disabled")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		return nil, errors.New("invalid username or password")
	}

	token, err := s.GenerateToken(user)
	if err != nil {
		return nil, fmt.Errorf("failed to generate token: %w", err)
	}

	if err := s.repo.UpdateUserLastLogin(user.ID, time.Now(), loginIP); err != nil {
		logger.Warnf("Failed to update last login for %s: %v", user.Username, err)
	}

	logger.Infof("User logged in: %s (role=%s, ip=%s)", user.Username, user.Role, loginIP)
	return &LoginResponse{Token: token, User: user}, nil
}

// Register 创建用户（管理员接口）
func (s *AuthService) Register(req *RegisterRequest, defaultAnnualDays int) (*model.User, error) {
	if _, err := s.repo.FindUserByUsername(req.Username); err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("failed to check username: %w", err)
		}
	} else {
		return nil, errors.New("username already exists")
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	role := req.Role
	if role == "" {
		role = model.RoleEmployee
	}

	user := &model.User{
		ID:                 uuid.New().String(),
		Username:           req.Username,
		Password:           string(hashedPassword),
		FullName:           req.FullName,
		Role:               role,
		Status:             "active",
		DepartmentID:       req.DepartmentID,
		SupervisorID:       req.SupervisorID,
		AnnualVacationDays: defaultAnnualDays,
	}
	if req.Email != "" {
		user.Email = &req.Email
	}

	if err := s.repo.CreateUser(user); err != nil {
		return nil, fmt.Errorf("failed to create user: %w", err)
	}

	logger.Infof("User created: %s (role=%s)", user.Username, user.Role)
	return user, nil
}

// GenerateToken 签发JWT
func (s *AuthService) GenerateToken(user *model.User) (string, error) {
	expirationTime := time.Now().Add(s.tokenExpire)

	claims := &Claims{
		UserID:   user.ID,
		Username: user.Username,
		Role:     user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(expirationTime),
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			Issuer:    "portalforge",
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.jwtSecret)
}

// ValidateToken 验证JWT
func (s *AuthService) ValidateToken(tokenString string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return s.jwtSecret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*Claims); ok && token.Valid {
		return claims, nil
	}

	return nil, errors.New("invalid token")
}

// GetUserByID 按ID查询用户
func (s *AuthService) GetUserByID(userID string) (*model.User, error) {
	return s.repo.FindUserByID(userID)
}

// GetAllUsers 查询所有激活用户
func (s *AuthService) GetAllUsers() ([]model.User, error) {
	return s.repo.FindAllUsers()
}
