package service

import (
	"strconv"
	"strings"

	"portal-messaging/internal/model"
	"portal-messaging/internal/repository"
	"portal-messaging/pkg/apperr"
	"portal-messaging/pkg/jwt"
	"portal-messaging/pkg/password"
)

// UserService 用户业务逻辑
type UserService struct {
	userRepo   *repository.UserRepository
	jwtService *jwt.JWTService
}

// NewUserService 创建UserService实例
func NewUserService(userRepo *repository.UserRepository, jwtService *jwt.JWTService) *UserService {
	return &UserService{
		userRepo:   userRepo,
		jwtService: jwtService,
	}
}

// Register 用户注册
// 用户名/邮箱唯一，密码bcrypt加密存储，成功后直接签发令牌
func (s *UserService) Register(username, email, plainPassword, nickname string) (*model.User, string, error) {
	username = strings.TrimSpace(username)
	email = strings.TrimSpace(email)
	if username == "" || plainPassword == "" {
		return nil, "", apperr.Validation("username and password are required")
	}

	exists, err := s.userRepo.ExistsByUsernameOrEmail(username, email)
	if err != nil {
		return nil, "", apperr.Internal("check user existence failed", err)
	}
	if exists {
		return nil, "", apperr.PolicyViolation("username or email already taken")
	}

	hash, err := password.Hash(plainPassword)
	if err != nil {
		return nil, "", apperr.Internal("hash password failed", err)
	}

	user := &model.User{
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Nickname:     nickname,
		IsActive:     true,
	}
	if err := s.userRepo.Create(user); err != nil {
		return nil, "", apperr.Internal("create user failed", err)
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// issueToken 为用户签发访问令牌，用户ID入Subject，用户名入Data
func (s *UserService) issueToken(user *model.User) (string, error) {
	token, err := s.jwtService.GenerateToken(
		strconv.FormatUint(uint64(user.ID), 10),
		map[string]interface{}{"username": user.Username},
	)
	if err != nil {
		return "", apperr.Internal("generate token failed", err)
	}
	return token, nil
}

// Login 用户登录
// 支持用户名或邮箱登录；账号不存在与密码错误返回同一错误，避免账号枚举
func (s *UserService) Login(identifier, plainPassword string) (*model.User, string, error) {
	user, err := s.userRepo.GetByUsernameOrEmail(strings.TrimSpace(identifier))
	if err != nil {
		return nil, "", apperr.Unauthorized("invalid username or password")
	}
	if !user.IsActive {
		return nil, "", apperr.Unauthorized("invalid username or password")
	}
	if !password.Verify(plainPassword, user.PasswordHash) {
		return nil, "", apperr.Unauthorized("invalid username or password")
	}

	token, err := s.issueToken(user)
	if err != nil {
		return nil, "", err
	}
	return user, token, nil
}

// GetProfile 获取用户资料
func (s *UserService) GetProfile(userID uint) (*model.User, error) {
	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, orNotFound(err, "user not found")
	}
	return user, nil
}

// ListUsers 获取可选为会话成员的用户列表（排除自己）
func (s *UserService) ListUsers(excludeID uint) ([]*model.User, error) {
	users, err := s.userRepo.ListActive(excludeID)
	if err != nil {
		return nil, apperr.Internal("list users failed", err)
	}
	return users, nil
}
