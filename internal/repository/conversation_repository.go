package repository

import (
	"time"

	"portal-messaging/internal/model"

	"gorm.io/gorm"
)

// ConversationRepository 会话数据仓储
// 会话独占其成员行（Participant），成员查询也归属本仓储
type ConversationRepository struct {
	db *gorm.DB
}

// NewConversationRepository 创建ConversationRepository实例
func NewConversationRepository(db *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: db}
}

// WithTx 返回绑定到指定事务的仓储副本
func (r *ConversationRepository) WithTx(tx *gorm.DB) *ConversationRepository {
	return &ConversationRepository{db: tx}
}

// Create 创建会话
func (r *ConversationRepository) Create(conversation *model.Conversation) error {
	return r.db.Create(conversation).Error
}

// GetByID 根据ID获取会话
func (r *ConversationRepository) GetByID(id uint) (*model.Conversation, error) {
	var conversation model.Conversation
	if err := r.db.First(&conversation, id).Error; err != nil {
		return nil, err
	}
	return &conversation, nil
}

// Save 保存会话
func (r *ConversationRepository) Save(conversation *model.Conversation) error {
	return r.db.Save(conversation).Error
}

// AdvanceLastMessageAt 推进会话的最近消息时间
// 条件更新保证 last_message_at 单调不减（并发发送时旧时间戳不会覆盖新时间戳）
func (r *ConversationRepository) AdvanceLastMessageAt(conversationID uint, t time.Time) error {
	return r.db.Model(&model.Conversation{}).
		Where("id = ? AND last_message_at < ?", conversationID, t).
		Update("last_message_at", t).Error
}

// FindPrivateBetween 查找两个用户之间已存在的私聊会话
// 去重规则与发起方向无关：同一无序用户对至多一个私聊会话
// 未找到时返回 (nil, nil)
func (r *ConversationRepository) FindPrivateBetween(userID, otherUserID uint) (*model.Conversation, error) {
	var conversation model.Conversation
	err := r.db.
		Joins("JOIN participant p1 ON p1.conversation_id = conversation.id AND p1.user_id = ?", userID).
		Joins("JOIN participant p2 ON p2.conversation_id = conversation.id AND p2.user_id = ? AND p2.is_active = ?", otherUserID, true).
		Where("conversation.type = ?", model.ConversationTypePrivate).
		Where("(SELECT COUNT(*) FROM participant p3 WHERE p3.conversation_id = conversation.id) = 2").
		First(&conversation).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &conversation, nil
}

// ListActiveForUser 获取用户参与的全部有效会话，按最近消息时间倒序
func (r *ConversationRepository) ListActiveForUser(userID uint) ([]*model.Conversation, error) {
	var conversations []*model.Conversation
	err := r.db.
		Joins("JOIN participant p ON p.conversation_id = conversation.id AND p.user_id = ? AND p.is_active = ?", userID, true).
		Where("conversation.is_active = ?", true).
		Order("conversation.last_message_at DESC").
		Find(&conversations).Error
	return conversations, err
}

// Deactivate 归档会话并级联停用全部成员
func (r *ConversationRepository) Deactivate(conversationID uint) error {
	if err := r.db.Model(&model.Conversation{}).
		Where("id = ?", conversationID).
		Update("is_active", false).Error; err != nil {
		return err
	}
	return r.db.Model(&model.Participant{}).
		Where("conversation_id = ?", conversationID).
		Update("is_active", false).Error
}

// ---------- 成员 ----------

// GetParticipant 获取成员行（不限状态）
func (r *ConversationRepository) GetParticipant(conversationID, userID uint) (*model.Participant, error) {
	var participant model.Participant
	err := r.db.Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		First(&participant).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// GetActiveParticipant 获取在会话中的成员行
func (r *ConversationRepository) GetActiveParticipant(conversationID, userID uint) (*model.Participant, error) {
	var participant model.Participant
	err := r.db.Where("conversation_id = ? AND user_id = ? AND is_active = ?", conversationID, userID, true).
		First(&participant).Error
	if err != nil {
		return nil, err
	}
	return &participant, nil
}

// ListActiveParticipants 获取会话的全部有效成员
func (r *ConversationRepository) ListActiveParticipants(conversationID uint) ([]*model.Participant, error) {
	var participants []*model.Participant
	err := r.db.Where("conversation_id = ? AND is_active = ?", conversationID, true).
		Order("joined_at ASC").
		Find(&participants).Error
	return participants, err
}

// CountActiveAdmins 统计会话的有效管理员数量
// 最后管理员保护依赖该计数，调用方必须在执行降级/移除的同一事务内统计
func (r *ConversationRepository) CountActiveAdmins(conversationID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.Participant{}).
		Where("conversation_id = ? AND is_admin = ? AND is_active = ?", conversationID, true, true).
		Count(&count).Error
	return count, err
}

// CreateParticipant 创建成员行
func (r *ConversationRepository) CreateParticipant(participant *model.Participant) error {
	return r.db.Create(participant).Error
}

// SaveParticipant 保存成员行
func (r *ConversationRepository) SaveParticipant(participant *model.Participant) error {
	return r.db.Save(participant).Error
}

// SetHasUnreadForOthers 为发送者以外的全部有效成员设置未读标记
// 与消息插入处于同一事务，避免读到新消息却看不到未读标记
func (r *ConversationRepository) SetHasUnreadForOthers(conversationID, senderID uint) error {
	return r.db.Model(&model.Participant{}).
		Where("conversation_id = ? AND is_active = ? AND user_id <> ?", conversationID, true, senderID).
		Update("has_unread", true).Error
}

// ClearUnread 更新成员的已读水位并清除未读标记
func (r *ConversationRepository) ClearUnread(conversationID, userID uint, readAt time.Time) error {
	return r.db.Model(&model.Participant{}).
		Where("conversation_id = ? AND user_id = ?", conversationID, userID).
		Updates(map[string]interface{}{
			"last_read_at": readAt,
			"has_unread":   false,
		}).Error
}
