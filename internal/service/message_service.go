package service

import (
	"errors"
	"strings"
	"time"

	"portal-messaging/internal/model"
	"portal-messaging/internal/repository"
	"portal-messaging/pkg/apperr"
	"portal-messaging/pkg/redis"

	"gorm.io/gorm"
)

// MessageService 消息业务逻辑
// 发送、编辑、删除与已读回执；编辑和删除只有作者可操作
type MessageService struct {
	db          *gorm.DB
	convRepo    *repository.ConversationRepository
	messageRepo *repository.MessageRepository
	userRepo    *repository.UserRepository
}

// NewMessageService 创建MessageService实例
func NewMessageService(db *gorm.DB, convRepo *repository.ConversationRepository, messageRepo *repository.MessageRepository, userRepo *repository.UserRepository) *MessageService {
	return &MessageService{
		db:          db,
		convRepo:    convRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

// appendMessage 向会话追加一条消息
// 所有消息写入路径（普通发送、首条消息、广播、成员变更系统消息）都走这里，
// 在调用方事务内完成三件事：插入消息、推进会话最近消息时间、为其他成员打未读标记
func appendMessage(tx *gorm.DB, conversationID, senderID uint, content, attachment, attachmentType string) (*model.Message, error) {
	messageRepo := repository.NewMessageRepository(tx)
	convRepo := repository.NewConversationRepository(tx)

	now := time.Now()
	message := &model.Message{
		ConversationID: conversationID,
		SenderID:       &senderID,
		Content:        content,
		Timestamp:      now,
		Attachment:     attachment,
		AttachmentType: attachmentType,
	}
	if err := messageRepo.Create(message); err != nil {
		return nil, apperr.Internal("create message failed", err)
	}
	if err := convRepo.AdvanceLastMessageAt(conversationID, now); err != nil {
		return nil, apperr.Internal("advance conversation timestamp failed", err)
	}
	if err := convRepo.SetHasUnreadForOthers(conversationID, senderID); err != nil {
		return nil, apperr.Internal("mark unread failed", err)
	}
	return message, nil
}

// requireActiveMembership 校验发送者是有效会话中的有效成员
func (s *MessageService) requireActiveMembership(conversationID, userID uint) (*model.Conversation, error) {
	conversation, err := s.convRepo.GetByID(conversationID)
	if err != nil {
		return nil, orNotFound(err, "conversation not found")
	}
	if !conversation.IsActive {
		return nil, apperr.PolicyViolation("conversation is no longer active")
	}
	if _, err := s.convRepo.GetActiveParticipant(conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("you are not a participant in this conversation")
		}
		return nil, apperr.Internal("lookup participant failed", err)
	}
	return conversation, nil
}

// Send 在会话中发送消息
// 纯附件消息允许正文为空；其余成员的未读汇总缓存在提交后失效
func (s *MessageService) Send(conversationID, senderID uint, content, attachment, attachmentType string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" && attachment == "" {
		return nil, apperr.Validation("message content is required")
	}

	if _, err := s.requireActiveMembership(conversationID, senderID); err != nil {
		return nil, err
	}

	var message *model.Message
	err := s.db.Transaction(func(tx *gorm.DB) error {
		var err error
		message, err = appendMessage(tx, conversationID, senderID, content, attachment, attachmentType)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.invalidateUnreadForOthers(conversationID, senderID)

	return message, nil
}

// Edit 编辑消息
// 仅作者可编辑，已删除消息不可编辑
// 编辑不改变 timestamp：会话排序与未读计算均不受影响
func (s *MessageService) Edit(messageID, userID uint, content string) (*model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, apperr.Validation("message content is required")
	}

	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		return nil, orNotFound(err, "message not found")
	}
	if message.SenderID == nil || *message.SenderID != userID {
		return nil, apperr.Unauthorized("you can only edit your own messages")
	}
	if message.IsDeleted {
		return nil, apperr.PolicyViolation("deleted messages cannot be edited")
	}

	now := time.Now()
	message.Content = content
	message.IsEdited = true
	message.EditedAt = &now
	if err := s.messageRepo.Save(message); err != nil {
		return nil, apperr.Internal("update message failed", err)
	}
	return message, nil
}

// Delete 删除消息（软删除）
// 作者或会话的有效管理员可删除
// 正文替换为固定墓碑文案，附件引用一并清除；重复删除为幂等成功
func (s *MessageService) Delete(messageID, userID uint) (*model.Message, error) {
	message, err := s.messageRepo.GetByID(messageID)
	if err != nil {
		return nil, orNotFound(err, "message not found")
	}
	if message.SenderID == nil || *message.SenderID != userID {
		participant, err := s.convRepo.GetActiveParticipant(message.ConversationID, userID)
		if err != nil || !participant.IsAdmin {
			return nil, apperr.Unauthorized("only the sender or an admin can delete this message")
		}
	}
	if message.IsDeleted {
		return message, nil
	}

	message.Content = model.DeletedMessagePlaceholder
	message.IsDeleted = true
	message.Attachment = ""
	message.AttachmentType = ""
	if err := s.messageRepo.Save(message); err != nil {
		return nil, apperr.Internal("delete message failed", err)
	}
	return message, nil
}

// MarkConversationRead 将会话对该用户标记为已读
// 同时推进已读水位、清除未读标记、批量更新消息已读位，并使未读缓存失效
func (s *MessageService) MarkConversationRead(conversationID, userID uint) error {
	if _, err := s.convRepo.GetActiveParticipant(conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperr.Unauthorized("you are not a participant in this conversation")
		}
		return apperr.Internal("lookup participant failed", err)
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.convRepo.WithTx(tx).ClearUnread(conversationID, userID, time.Now()); err != nil {
			return apperr.Internal("clear unread failed", err)
		}
		if err := s.messageRepo.WithTx(tx).MarkConversationRead(conversationID, userID); err != nil {
			return apperr.Internal("mark messages read failed", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	_ = redis.InvalidateTotalUnread(userID)
	return nil
}

// ListMessages 获取会话消息（游标分页）
// lastID 为上一页最旧一条消息的ID，0表示从最新开始
// 返回按时间升序（旧到新）排列的一页，hasMore 表示更早的消息是否还有
func (s *MessageService) ListMessages(conversationID, userID, lastID uint, limit int) ([]*model.Message, bool, error) {
	if _, err := s.convRepo.GetByID(conversationID); err != nil {
		return nil, false, orNotFound(err, "conversation not found")
	}

	if _, err := s.convRepo.GetActiveParticipant(conversationID, userID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, false, apperr.Unauthorized("you are not a participant in this conversation")
		}
		return nil, false, apperr.Internal("lookup participant failed", err)
	}

	// 多取一条判断是否还有更早的消息
	messages, err := s.messageRepo.ListBefore(conversationID, lastID, limit+1)
	if err != nil {
		return nil, false, apperr.Internal("list messages failed", err)
	}

	hasMore := len(messages) > limit
	if hasMore {
		messages = messages[:limit]
	}

	// 查询按新到旧取页，返回前反转为旧到新
	for i, j := 0, len(messages)-1; i < j; i, j = i+1, j-1 {
		messages[i], messages[j] = messages[j], messages[i]
	}

	return messages, hasMore, nil
}

// SenderNames 批量获取消息发送者，供响应组装使用
func (s *MessageService) SenderNames(messages []*model.Message) (map[uint]*model.User, error) {
	ids := make([]uint, 0, len(messages))
	seen := make(map[uint]bool, len(messages))
	for _, m := range messages {
		if m.SenderID == nil || seen[*m.SenderID] {
			continue
		}
		seen[*m.SenderID] = true
		ids = append(ids, *m.SenderID)
	}
	users, err := s.userRepo.GetByIDs(ids)
	if err != nil {
		return nil, apperr.Internal("lookup senders failed", err)
	}
	return users, nil
}

// invalidateUnreadForOthers 使发送者以外全部有效成员的未读汇总缓存失效
func (s *MessageService) invalidateUnreadForOthers(conversationID, senderID uint) {
	participants, err := s.convRepo.ListActiveParticipants(conversationID)
	if err != nil {
		return
	}
	others := make([]uint, 0, len(participants))
	for _, p := range participants {
		if p.UserID != senderID {
			others = append(others, p.UserID)
		}
	}
	_ = redis.InvalidateTotalUnread(others...)
}
