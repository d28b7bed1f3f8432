package service

import (
	"errors"

	"portal-messaging/internal/model"
	"portal-messaging/internal/repository"
	"portal-messaging/pkg/apperr"
	"portal-messaging/pkg/logger"
	"portal-messaging/pkg/redis"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// 通知时间展示格式与预览截断长度
const notificationTimeLayout = "Jan 02, 2006, 03:04 PM"

// ConversationSummary 会话列表条目
// 聚合了列表页渲染所需的未读数、最新消息与对端成员
type ConversationSummary struct {
	Conversation *model.Conversation
	UnreadCount  int64
	LastMessage  *model.Message
	Others       []*model.User
}

// Notification 未读通知条目
type Notification struct {
	ConversationID   uint   `json:"conversation_id"`
	ConversationName string `json:"conversation_name"`
	Type             string `json:"type"`
	SenderName       string `json:"sender_name"`
	Preview          string `json:"preview"`
	UnreadCount      int64  `json:"unread_count"`
	Timestamp        string `json:"timestamp"`
}

// NotificationService 未读与通知业务逻辑
// 未读数以数据库为准（按已读水位计算），Redis只做总未读的旁路缓存
type NotificationService struct {
	db            *gorm.DB
	convRepo      *repository.ConversationRepository
	messageRepo   *repository.MessageRepository
	userRepo      *repository.UserRepository
	previewLength int
}

// NewNotificationService 创建NotificationService实例
func NewNotificationService(db *gorm.DB, convRepo *repository.ConversationRepository, messageRepo *repository.MessageRepository, userRepo *repository.UserRepository, previewLength int) *NotificationService {
	if previewLength <= 0 {
		previewLength = 50
	}
	return &NotificationService{
		db:            db,
		convRepo:      convRepo,
		messageRepo:   messageRepo,
		userRepo:      userRepo,
		previewLength: previewLength,
	}
}

// unreadCount 按已读水位计算成员在会话中的未读数
// 从未读过时全部消息计为未读；编辑不改时间戳，不会重新计入
func (s *NotificationService) unreadCount(participant *model.Participant) (int64, error) {
	if participant.LastReadAt == nil {
		return s.messageRepo.CountByConversation(participant.ConversationID)
	}
	return s.messageRepo.CountAfter(participant.ConversationID, *participant.LastReadAt)
}

// UnreadCount 获取用户在指定会话中的未读数
// 无成员行时按0处理，不作为错误
func (s *NotificationService) UnreadCount(conversationID, userID uint) (int64, error) {
	participant, err := s.convRepo.GetActiveParticipant(conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return 0, nil
		}
		return 0, apperr.Internal("lookup participant failed", err)
	}
	return s.unreadCount(participant)
}

// TotalUnread 获取用户跨全部有效会话的未读总数
// 先查缓存，未命中时从数据库汇总并回填；缓存故障只记日志不影响结果
func (s *NotificationService) TotalUnread(userID uint) (int64, error) {
	if total, ok, err := redis.GetCachedTotalUnread(userID); err == nil && ok {
		return total, nil
	}

	summaries, err := s.summarize(userID, false)
	if err != nil {
		return 0, err
	}

	var total int64
	for _, summary := range summaries {
		total += summary.UnreadCount
	}

	if err := redis.SetCachedTotalUnread(userID, total); err != nil {
		logger.Warn("cache total unread failed", zap.Uint("user_id", userID), zap.Error(err))
	}

	return total, nil
}

// ListConversations 获取用户的会话列表
// 按最近消息时间倒序，每条附带未读数、最新消息与对端成员
func (s *NotificationService) ListConversations(userID uint) ([]*ConversationSummary, error) {
	return s.summarize(userID, true)
}

// summarize 汇总用户全部有效会话
// withDetail 为 false 时跳过最新消息与对端成员的加载（总未读只需要计数）
func (s *NotificationService) summarize(userID uint, withDetail bool) ([]*ConversationSummary, error) {
	conversations, err := s.convRepo.ListActiveForUser(userID)
	if err != nil {
		return nil, apperr.Internal("list conversations failed", err)
	}

	summaries := make([]*ConversationSummary, 0, len(conversations))
	for _, conversation := range conversations {
		participant, err := s.convRepo.GetActiveParticipant(conversation.ID, userID)
		if err != nil {
			return nil, apperr.Internal("lookup participant failed", err)
		}

		unread, err := s.unreadCount(participant)
		if err != nil {
			return nil, apperr.Internal("count unread failed", err)
		}

		summary := &ConversationSummary{
			Conversation: conversation,
			UnreadCount:  unread,
		}

		if withDetail {
			summary.LastMessage, err = s.messageRepo.GetLastMessage(conversation.ID)
			if err != nil {
				return nil, apperr.Internal("load last message failed", err)
			}
			summary.Others, err = s.otherMembers(conversation.ID, userID)
			if err != nil {
				return nil, err
			}
		}

		summaries = append(summaries, summary)
	}

	return summaries, nil
}

// otherMembers 获取会话中除指定用户外的全部有效成员
func (s *NotificationService) otherMembers(conversationID, userID uint) ([]*model.User, error) {
	participants, err := s.convRepo.ListActiveParticipants(conversationID)
	if err != nil {
		return nil, apperr.Internal("list participants failed", err)
	}

	ids := make([]uint, 0, len(participants))
	for _, p := range participants {
		if p.UserID != userID {
			ids = append(ids, p.UserID)
		}
	}

	users, err := s.userRepo.GetByIDs(ids)
	if err != nil {
		return nil, apperr.Internal("lookup users failed", err)
	}

	others := make([]*model.User, 0, len(ids))
	for _, id := range ids {
		if u, ok := users[id]; ok {
			others = append(others, u)
		}
	}
	return others, nil
}

// Notifications 获取用户的未读通知列表
// 仅包含有未读消息的会话，每条带最新消息预览
func (s *NotificationService) Notifications(userID uint) ([]*Notification, error) {
	summaries, err := s.summarize(userID, true)
	if err != nil {
		return nil, err
	}

	notifications := make([]*Notification, 0, len(summaries))
	for _, summary := range summaries {
		if summary.UnreadCount == 0 || summary.LastMessage == nil {
			continue
		}

		n := &Notification{
			ConversationID:   summary.Conversation.ID,
			ConversationName: s.conversationDisplayName(summary),
			Type:             summary.Conversation.Type,
			SenderName:       "Unknown",
			Preview:          s.preview(summary.LastMessage),
			UnreadCount:      summary.UnreadCount,
			Timestamp:        summary.LastMessage.Timestamp.Format(notificationTimeLayout),
		}
		if summary.LastMessage.SenderID != nil {
			if u, err := s.userRepo.GetByID(*summary.LastMessage.SenderID); err == nil {
				n.SenderName = u.DisplayName()
			}
		}
		notifications = append(notifications, n)
	}

	return notifications, nil
}

// conversationDisplayName 会话展示名
// 群聊/广播用会话名，私聊用对端成员展示名
func (s *NotificationService) conversationDisplayName(summary *ConversationSummary) string {
	if summary.Conversation.IsGroupLike() {
		return summary.Conversation.Name
	}
	if len(summary.Others) > 0 {
		return summary.Others[0].DisplayName()
	}
	return "Unknown"
}

// preview 生成消息预览
// 有附件且无正文时显示附件占位，超长正文按配置截断
func (s *NotificationService) preview(message *model.Message) string {
	content := message.Content
	if content == "" && message.HasAttachment() {
		return "[Attachment]"
	}
	runes := []rune(content)
	if len(runes) > s.previewLength {
		return string(runes[:s.previewLength]) + "..."
	}
	return content
}
