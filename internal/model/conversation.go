package model

import (
	"time"
)

// 会话类型
const (
	ConversationTypePrivate   = "private"   // 一对一私聊
	ConversationTypeGroup     = "group"     // 群聊
	ConversationTypeBroadcast = "broadcast" // 广播
)

// Conversation 会话模型
// Type: private/group/broadcast
// 私聊会话在创建时固定两名成员，之后不支持成员变更
// LastMessageAt 单调不减，等于最近一条消息的时间戳
// 生命周期使用显式状态位 IsActive（active/archived），不做物理删除

type Conversation struct {
	ID            uint      `gorm:"primaryKey"`
	Name          string    `gorm:"type:varchar(100);comment:会话名称(可选)"`
	Type          string    `gorm:"type:varchar(20);not null;default:'private';index;comment:会话类型"`
	CreatorID     *uint     `gorm:"index;comment:创建者ID(账号删除后置空)"`
	Description   string    `gorm:"type:text;comment:描述(群聊/广播)"`
	Image         string    `gorm:"type:varchar(255);comment:头图路径(群聊/广播)"`
	IsActive      bool      `gorm:"default:true;comment:是否有效"`
	LastMessageAt time.Time `gorm:"index;comment:最近消息时间"`
	CreatedAt     time.Time `gorm:"comment:创建时间"`
	UpdatedAt     time.Time `gorm:"comment:更新时间"`
}

func (Conversation) TableName() string { return "conversation" }

// IsGroupLike 是否为多人会话（群聊或广播）
func (c *Conversation) IsGroupLike() bool {
	return c.Type == ConversationTypeGroup || c.Type == ConversationTypeBroadcast
}
