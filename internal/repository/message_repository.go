package repository

import (
	"time"

	"portal-messaging/internal/model"

	"gorm.io/gorm"
)

// MessageRepository 消息数据仓储
// 排序契约：会话内消息按 timestamp 升序，相同时间戳按自增ID（插入顺序）决定先后
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建MessageRepository实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// WithTx 返回绑定到指定事务的仓储副本
func (r *MessageRepository) WithTx(tx *gorm.DB) *MessageRepository {
	return &MessageRepository{db: tx}
}

// Create 创建消息
func (r *MessageRepository) Create(message *model.Message) error {
	return r.db.Create(message).Error
}

// GetByID 根据ID获取消息
func (r *MessageRepository) GetByID(id uint) (*model.Message, error) {
	var message model.Message
	if err := r.db.First(&message, id).Error; err != nil {
		return nil, err
	}
	return &message, nil
}

// Save 保存消息
func (r *MessageRepository) Save(message *model.Message) error {
	return r.db.Save(message).Error
}

// ListBefore 获取会话中指定游标之前的一页消息（新到旧）
// beforeID 为上一页最旧一条消息的ID，0表示从最新开始
func (r *MessageRepository) ListBefore(conversationID, beforeID uint, limit int) ([]*model.Message, error) {
	var messages []*model.Message

	query := r.db.Where("conversation_id = ?", conversationID)
	if beforeID > 0 {
		query = query.Where("id < ?", beforeID)
	}

	err := query.
		Order("timestamp DESC").
		Order("id DESC").
		Limit(limit).
		Find(&messages).Error

	return messages, err
}

// GetLastMessage 获取会话最新一条消息，没有消息时返回 (nil, nil)
func (r *MessageRepository) GetLastMessage(conversationID uint) (*model.Message, error) {
	var message model.Message
	err := r.db.Where("conversation_id = ?", conversationID).
		Order("timestamp DESC").
		Order("id DESC").
		First(&message).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &message, nil
}

// CountByConversation 统计会话的消息总数
func (r *MessageRepository) CountByConversation(conversationID uint) (int64, error) {
	var count int64
	err := r.db.Model(&model.Message{}).
		Where("conversation_id = ?", conversationID).
		Count(&count).Error
	return count, err
}

// CountAfter 统计会话中晚于指定时间的消息数
// 未读数按时间戳计算：编辑不改时间戳，因此编辑不会重新触发未读
func (r *MessageRepository) CountAfter(conversationID uint, t time.Time) (int64, error) {
	var count int64
	err := r.db.Model(&model.Message{}).
		Where("conversation_id = ? AND timestamp > ?", conversationID, t).
		Count(&count).Error
	return count, err
}

// MarkConversationRead 将会话中他人发送的未读消息批量标记为已读
func (r *MessageRepository) MarkConversationRead(conversationID, userID uint) error {
	return r.db.Model(&model.Message{}).
		Where("conversation_id = ? AND is_read = ?", conversationID, false).
		Where("sender_id IS NULL OR sender_id <> ?", userID).
		Update("is_read", true).Error
}
