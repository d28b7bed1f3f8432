package service

import (
	"fmt"
	"testing"

	"portal-messaging/internal/model"
	"portal-messaging/internal/repository"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// testEnv 测试环境：内存sqlite + 全套服务
type testEnv struct {
	db       *gorm.DB
	userRepo *repository.UserRepository
	convRepo *repository.ConversationRepository
	msgRepo  *repository.MessageRepository

	conversations *ConversationService
	messages      *MessageService
	notifications *NotificationService

	nextUser int
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
		NamingStrategy: schema.NamingStrategy{
			SingularTable: true,
		},
	})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}

	if err := db.AutoMigrate(
		&model.User{},
		&model.Conversation{},
		&model.Participant{},
		&model.Message{},
	); err != nil {
		t.Fatalf("迁移测试数据库失败: %v", err)
	}

	userRepo := repository.NewUserRepository(db)
	convRepo := repository.NewConversationRepository(db)
	msgRepo := repository.NewMessageRepository(db)

	return &testEnv{
		db:            db,
		userRepo:      userRepo,
		convRepo:      convRepo,
		msgRepo:       msgRepo,
		conversations: NewConversationService(db, convRepo, msgRepo, userRepo),
		messages:      NewMessageService(db, convRepo, msgRepo, userRepo),
		notifications: NewNotificationService(db, convRepo, msgRepo, userRepo, 50),
	}
}

// createUser 创建测试用户
func (e *testEnv) createUser(t *testing.T, username string) *model.User {
	t.Helper()

	e.nextUser++
	user := &model.User{
		Username:     username,
		Email:        fmt.Sprintf("%s%d@example.com", username, e.nextUser),
		PasswordHash: "not-a-real-hash",
		IsActive:     true,
	}
	if err := e.userRepo.Create(user); err != nil {
		t.Fatalf("创建测试用户失败: %v", err)
	}
	return user
}

// createGroup 创建测试群聊（creator为管理员）
func (e *testEnv) createGroup(t *testing.T, creatorID uint, memberIDs ...uint) *model.Conversation {
	t.Helper()

	conversation, err := e.conversations.CreateGroup(creatorID, "测试群", "", "", memberIDs, "")
	if err != nil {
		t.Fatalf("创建测试群聊失败: %v", err)
	}
	return conversation
}

// participant 读取成员行
func (e *testEnv) participant(t *testing.T, conversationID, userID uint) *model.Participant {
	t.Helper()

	p, err := e.convRepo.GetParticipant(conversationID, userID)
	if err != nil {
		t.Fatalf("读取成员行失败: %v", err)
	}
	return p
}

// conversation 读取会话
func (e *testEnv) conversation(t *testing.T, conversationID uint) *model.Conversation {
	t.Helper()

	c, err := e.convRepo.GetByID(conversationID)
	if err != nil {
		t.Fatalf("读取会话失败: %v", err)
	}
	return c
}

// messageCount 统计会话消息数
func (e *testEnv) messageCount(t *testing.T, conversationID uint) int64 {
	t.Helper()

	count, err := e.msgRepo.CountByConversation(conversationID)
	if err != nil {
		t.Fatalf("统计消息数失败: %v", err)
	}
	return count
}
