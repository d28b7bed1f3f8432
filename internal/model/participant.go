package model

import (
	"time"
)

// Participant 会话成员模型
// 唯一约束：每个(会话,用户)至多一行，重新加入时复用原行（翻转 IsActive）
// 状态机：active/removed，只通过引擎操作变更，移除不做物理删除以保留历史
// LastReadAt 为空表示从未读过该会话

type Participant struct {
	ID             uint       `gorm:"primaryKey"`
	ConversationID uint       `gorm:"not null;uniqueIndex:uk_conversation_user;comment:会话ID"`
	UserID         uint       `gorm:"not null;uniqueIndex:uk_conversation_user;index;comment:用户ID"`
	JoinedAt       time.Time  `gorm:"comment:加入时间"`
	IsAdmin        bool       `gorm:"default:false;comment:是否管理员"`
	IsActive       bool       `gorm:"default:true;comment:是否在会话中"`
	LastReadAt     *time.Time `gorm:"comment:最后已读时间"`
	HasUnread      bool       `gorm:"default:false;comment:是否有未读消息"`
	CreatedAt      time.Time  `gorm:"comment:创建时间"`
	UpdatedAt      time.Time  `gorm:"comment:更新时间"`
}

func (Participant) TableName() string { return "participant" }
