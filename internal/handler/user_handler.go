package handler

import (
	"portal-messaging/internal/service"
	"portal-messaging/pkg/jwt"
	"portal-messaging/pkg/logger"
	"portal-messaging/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// UserHandler 用户HTTP处理器
type UserHandler struct {
	userService *service.UserService
}

// NewUserHandler 创建UserHandler实例
func NewUserHandler(userService *service.UserService) *UserHandler {
	return &UserHandler{userService: userService}
}

// RegisterRequest 注册请求参数
type RegisterRequest struct {
	Username string `json:"username" binding:"required,min=3,max=32"`
	Email    string `json:"email" binding:"omitempty,email"`
	Password string `json:"password" binding:"required,min=6,max=64"`
	Nickname string `json:"nickname" binding:"max=64"`
}

// LoginRequest 登录请求参数
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// Register 用户注册
// POST /api/v1/users/register
func (h *UserHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request parameters")
		return
	}

	user, token, err := h.userService.Register(req.Username, req.Email, req.Password, req.Nickname)
	if err != nil {
		response.FromError(c, err)
		return
	}

	logger.Info("用户注册成功", zap.Uint("user_id", user.ID), zap.String("username", user.Username))

	response.Success(c, &response.RegisterResponse{
		User:        response.FilterUserInfo(user),
		AccessToken: token,
	})
}

// Login 用户登录
// POST /api/v1/users/login
func (h *UserHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request parameters")
		return
	}

	user, token, err := h.userService.Login(req.Username, req.Password)
	if err != nil {
		response.FromError(c, err)
		return
	}

	logger.Info("用户登录成功", zap.Uint("user_id", user.ID), zap.String("username", user.Username))

	response.Success(c, &response.LoginResponse{
		User:        response.FilterUserInfo(user),
		AccessToken: token,
	})
}

// GetProfile 获取当前用户资料
// GET /api/v1/users/profile
func (h *UserHandler) GetProfile(c *gin.Context) {
	user, err := h.userService.GetProfile(jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}
	response.Success(c, response.FilterUserInfo(user))
}

// ListUsers 获取可选为会话成员的用户列表
// GET /api/v1/users
func (h *UserHandler) ListUsers(c *gin.Context) {
	users, err := h.userService.ListUsers(jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	list := make([]*response.UserInfo, 0, len(users))
	for _, u := range users {
		list = append(list, response.FilterUserInfo(u))
	}
	response.Success(c, gin.H{"users": list})
}
