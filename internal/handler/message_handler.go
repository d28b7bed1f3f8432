package handler

import (
	"strconv"

	"portal-messaging/config"
	"portal-messaging/internal/attachment"
	"portal-messaging/internal/service"
	"portal-messaging/pkg/jwt"
	"portal-messaging/pkg/logger"
	"portal-messaging/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// MessageHandler 消息HTTP处理器
type MessageHandler struct {
	messageService *service.MessageService
	messaging      config.MessagingConfig
}

// NewMessageHandler 创建MessageHandler实例
func NewMessageHandler(messageService *service.MessageService, messaging config.MessagingConfig) *MessageHandler {
	return &MessageHandler{
		messageService: messageService,
		messaging:      messaging,
	}
}

// SendMessage 发送消息
// POST /api/v1/conversations/:conversation_id/messages
// multipart表单：content 正文（纯附件消息可为空），attachment 附件（可选）
func (h *MessageHandler) SendMessage(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}

	content := c.PostForm("content")

	// 附件可选：校验大小后落盘，按声明MIME+扩展名分类
	attachmentPath := ""
	attachmentType := ""
	if file, err := c.FormFile("attachment"); err == nil {
		if err := attachment.ValidateSize(file.Size, h.messaging.MaxAttachmentSize); err != nil {
			response.FromError(c, err)
			return
		}
		attachmentPath, err = saveUpload(c, file, h.messaging.UploadDir)
		if err != nil {
			response.FromError(c, err)
			return
		}
		attachmentType = attachment.Classify(file.Header.Get("Content-Type"), file.Filename)
	}

	userID := jwt.GetUserID(c)
	message, err := h.messageService.Send(conversationID, userID, content, attachmentPath, attachmentType)
	if err != nil {
		response.FromError(c, err)
		return
	}

	logger.Info("消息发送成功",
		zap.Uint("message_id", message.ID),
		zap.Uint("conversation_id", conversationID),
		zap.Uint("sender_id", userID),
		zap.Bool("has_attachment", message.HasAttachment()),
	)

	response.Success(c, response.FilterMessageInfo(message, nil))
}

// ListMessages 获取会话消息（游标分页，返回旧到新）
// GET /api/v1/conversations/:conversation_id/messages?last_id=0&limit=20
func (h *MessageHandler) ListMessages(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}

	lastID, _ := strconv.ParseUint(c.DefaultQuery("last_id", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(h.messaging.PageSize)))
	if limit <= 0 {
		limit = h.messaging.PageSize
	}
	if limit > h.messaging.MaxPageSize {
		limit = h.messaging.MaxPageSize
	}

	messages, hasMore, err := h.messageService.ListMessages(conversationID, jwt.GetUserID(c), uint(lastID), limit)
	if err != nil {
		response.FromError(c, err)
		return
	}

	senders, err := h.messageService.SenderNames(messages)
	if err != nil {
		response.FromError(c, err)
		return
	}

	list := make([]*response.MessageInfo, 0, len(messages))
	for _, m := range messages {
		if m.SenderID != nil {
			list = append(list, response.FilterMessageInfo(m, senders[*m.SenderID]))
		} else {
			list = append(list, response.FilterMessageInfo(m, nil))
		}
	}

	response.Success(c, gin.H{
		"messages": list,
		"has_more": hasMore,
	})
}

// EditMessageRequest 编辑消息请求参数
type EditMessageRequest struct {
	Content string `json:"content" binding:"required"`
}

// EditMessage 编辑消息
// PUT /api/v1/conversations/:conversation_id/messages/:message_id
func (h *MessageHandler) EditMessage(c *gin.Context) {
	messageID, ok := parseUintParam(c, "message_id")
	if !ok {
		return
	}

	var req EditMessageRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request parameters")
		return
	}

	message, err := h.messageService.Edit(messageID, jwt.GetUserID(c), req.Content)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, response.FilterMessageInfo(message, nil))
}

// DeleteMessage 删除消息（软删除，重复删除幂等）
// DELETE /api/v1/conversations/:conversation_id/messages/:message_id
func (h *MessageHandler) DeleteMessage(c *gin.Context) {
	messageID, ok := parseUintParam(c, "message_id")
	if !ok {
		return
	}

	message, err := h.messageService.Delete(messageID, jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, response.FilterMessageInfo(message, nil))
}

// MarkRead 将会话标记为已读
// POST /api/v1/conversations/:conversation_id/read
func (h *MessageHandler) MarkRead(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}

	if err := h.messageService.MarkConversationRead(conversationID, jwt.GetUserID(c)); err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "conversation marked as read", nil)
}
