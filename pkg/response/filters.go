package response

import (
	"portal-messaging/internal/model"
)

// 时间展示格式
const timeLayout = "2006-01-02 15:04:05"

// UserInfo 用户信息（隐藏敏感字段）
type UserInfo struct {
	ID        uint   `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	Nickname  string `json:"nickname"`
	Avatar    string `json:"avatar"`
	CreatedAt string `json:"created_at"`
}

// FilterUserInfo 过滤用户信息，隐藏敏感字段
func FilterUserInfo(user *model.User) *UserInfo {
	if user == nil {
		return nil
	}

	return &UserInfo{
		ID:        user.ID,
		Username:  user.Username,
		Email:     user.Email,
		Nickname:  user.Nickname,
		Avatar:    user.Avatar,
		CreatedAt: user.CreatedAt.Format(timeLayout),
	}
}

// LoginResponse 登录响应
type LoginResponse struct {
	User        *UserInfo `json:"user"`
	AccessToken string    `json:"access_token"`
}

// RegisterResponse 注册响应
type RegisterResponse struct {
	User        *UserInfo `json:"user"`
	AccessToken string    `json:"access_token"`
}

// MessageInfo 消息响应
// 包含调用方渲染所需的全部字段，发送后无需再次查询
type MessageInfo struct {
	ID             uint   `json:"id"`
	ConversationID uint   `json:"conversation_id"`
	SenderID       *uint  `json:"sender_id"`
	SenderName     string `json:"sender_name"`
	Content        string `json:"content"`
	Timestamp      string `json:"timestamp"`
	IsRead         bool   `json:"is_read"`
	IsEdited       bool   `json:"is_edited"`
	EditedAt       string `json:"edited_at,omitempty"`
	IsDeleted      bool   `json:"is_deleted"`
	HasAttachment  bool   `json:"has_attachment"`
	AttachmentURL  string `json:"attachment_url,omitempty"`
	AttachmentType string `json:"attachment_type,omitempty"`
}

// FilterMessageInfo 过滤消息信息
// sender 允许为nil（发送者账号已删除）
func FilterMessageInfo(message *model.Message, sender *model.User) *MessageInfo {
	if message == nil {
		return nil
	}

	info := &MessageInfo{
		ID:             message.ID,
		ConversationID: message.ConversationID,
		SenderID:       message.SenderID,
		SenderName:     "Unknown",
		Content:        message.Content,
		Timestamp:      message.Timestamp.Format(timeLayout),
		IsRead:         message.IsRead,
		IsEdited:       message.IsEdited,
		IsDeleted:      message.IsDeleted,
		HasAttachment:  message.HasAttachment(),
		AttachmentURL:  message.Attachment,
		AttachmentType: message.AttachmentType,
	}
	if sender != nil {
		info.SenderName = sender.DisplayName()
	}
	if message.EditedAt != nil {
		info.EditedAt = message.EditedAt.Format(timeLayout)
	}
	return info
}

// ParticipantInfo 会话成员响应
type ParticipantInfo struct {
	UserID   uint   `json:"user_id"`
	Username string `json:"username"`
	Nickname string `json:"nickname"`
	IsAdmin  bool   `json:"is_admin"`
	JoinedAt string `json:"joined_at"`
	LastRead string `json:"last_read,omitempty"`
}

// FilterParticipantInfo 过滤会话成员信息
func FilterParticipantInfo(participant *model.Participant, user *model.User) *ParticipantInfo {
	if participant == nil {
		return nil
	}

	info := &ParticipantInfo{
		UserID:   participant.UserID,
		IsAdmin:  participant.IsAdmin,
		JoinedAt: participant.JoinedAt.Format(timeLayout),
	}
	if user != nil {
		info.Username = user.Username
		info.Nickname = user.Nickname
	}
	if participant.LastReadAt != nil {
		info.LastRead = participant.LastReadAt.Format(timeLayout)
	}
	return info
}

// ConversationInfo 会话响应
type ConversationInfo struct {
	ID            uint   `json:"id"`
	Name          string `json:"name"`
	Type          string `json:"type"`
	CreatorID     *uint  `json:"creator_id"`
	Description   string `json:"description"`
	Image         string `json:"image,omitempty"`
	IsActive      bool   `json:"is_active"`
	LastMessageAt string `json:"last_message_at"`
	CreatedAt     string `json:"created_at"`
}

// FilterConversationInfo 过滤会话信息
func FilterConversationInfo(conversation *model.Conversation) *ConversationInfo {
	if conversation == nil {
		return nil
	}

	return &ConversationInfo{
		ID:            conversation.ID,
		Name:          conversation.Name,
		Type:          conversation.Type,
		CreatorID:     conversation.CreatorID,
		Description:   conversation.Description,
		Image:         conversation.Image,
		IsActive:      conversation.IsActive,
		LastMessageAt: conversation.LastMessageAt.Format(timeLayout),
		CreatedAt:     conversation.CreatedAt.Format(timeLayout),
	}
}
