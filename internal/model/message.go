package model

import (
	"time"
)

// DeletedMessagePlaceholder 删除消息后的占位内容（墓碑）
const DeletedMessagePlaceholder = "This message has been deleted"

// Message 消息模型
// 排序契约：按 Timestamp 升序，相同时间戳按自增 ID（插入顺序）决定先后
// 软删除：IsDeleted=true 时内容替换为墓碑、附件清空，行保留以维持排序与计数
// 编辑只变更内容，IsEdited=true 并记录 EditedAt，已删除消息不可编辑

type Message struct {
	ID             uint       `gorm:"primaryKey"`
	ConversationID uint       `gorm:"not null;index;comment:会话ID"`
	SenderID       *uint      `gorm:"index;comment:发送者ID(账号删除后置空)"`
	Content        string     `gorm:"type:text;not null;comment:消息内容"`
	Timestamp      time.Time  `gorm:"not null;index;comment:消息时间戳(服务端生成)"`
	IsRead         bool       `gorm:"default:false;comment:是否已读"`
	Attachment     string     `gorm:"type:varchar(255);comment:附件路径"`
	AttachmentType string     `gorm:"type:varchar(20);comment:附件分类"`
	IsEdited       bool       `gorm:"default:false;comment:是否编辑过"`
	EditedAt       *time.Time `gorm:"comment:最后编辑时间"`
	IsDeleted      bool       `gorm:"default:false;comment:是否已删除"`
	CreatedAt      time.Time  `gorm:"comment:创建时间"`
	UpdatedAt      time.Time  `gorm:"comment:更新时间"`
}

func (Message) TableName() string { return "message" }

// HasAttachment 是否携带附件
func (m *Message) HasAttachment() bool {
	return m.Attachment != ""
}
