package handler

import (
	"strconv"
	"strings"

	"portal-messaging/config"
	"portal-messaging/internal/attachment"
	"portal-messaging/internal/service"
	"portal-messaging/pkg/jwt"
	"portal-messaging/pkg/logger"
	"portal-messaging/pkg/response"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ConversationHandler 会话HTTP处理器
type ConversationHandler struct {
	convService  *service.ConversationService
	notifService *service.NotificationService
	messaging    config.MessagingConfig
}

// NewConversationHandler 创建ConversationHandler实例
func NewConversationHandler(convService *service.ConversationService, notifService *service.NotificationService, messaging config.MessagingConfig) *ConversationHandler {
	return &ConversationHandler{
		convService:  convService,
		notifService: notifService,
		messaging:    messaging,
	}
}

// parseUintParam 解析路径参数中的数字ID
func parseUintParam(c *gin.Context, name string) (uint, bool) {
	value, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || value == 0 {
		response.BadRequest(c, "invalid "+name)
		return 0, false
	}
	return uint(value), true
}

// CreatePrivateRequest 私聊创建请求参数
type CreatePrivateRequest struct {
	RecipientID uint   `json:"recipient_id" binding:"required"`
	Content     string `json:"content" binding:"required"`
}

// CreatePrivate 发起私聊
// POST /api/v1/conversations/private
func (h *ConversationHandler) CreatePrivate(c *gin.Context) {
	var req CreatePrivateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request parameters")
		return
	}

	userID := jwt.GetUserID(c)
	conversation, message, err := h.convService.CreatePrivate(userID, req.RecipientID, req.Content)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"conversation": response.FilterConversationInfo(conversation),
		"message":      response.FilterMessageInfo(message, nil),
	})
}

// CreateGroupRequest 群聊创建请求参数（multipart表单，头图可选）
type CreateGroupRequest struct {
	Name           string `form:"name" binding:"required,max=128"`
	Description    string `form:"description" binding:"max=512"`
	InitialMessage string `form:"initial_message"`
	ParticipantIDs []uint `form:"participant_ids"`
}

// CreateGroup 创建群聊
// POST /api/v1/conversations/group
func (h *ConversationHandler) CreateGroup(c *gin.Context) {
	var req CreateGroupRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, "invalid request parameters")
		return
	}

	// 头图可选，仅multipart请求携带
	imagePath := ""
	if file, err := c.FormFile("image"); err == nil {
		if err := attachment.ValidateGroupImage(file.Filename, file.Size, h.messaging.MaxImageSize); err != nil {
			response.FromError(c, err)
			return
		}
		imagePath, err = saveUpload(c, file, h.messaging.UploadDir)
		if err != nil {
			response.FromError(c, err)
			return
		}
	}

	userID := jwt.GetUserID(c)
	conversation, err := h.convService.CreateGroup(userID, req.Name, req.Description, imagePath, req.ParticipantIDs, req.InitialMessage)
	if err != nil {
		response.FromError(c, err)
		return
	}

	logger.Info("群聊创建成功",
		zap.Uint("conversation_id", conversation.ID),
		zap.Uint("creator_id", userID),
		zap.Int("participants", len(req.ParticipantIDs)),
	)

	response.Success(c, response.FilterConversationInfo(conversation))
}

// CreateBroadcastRequest 广播创建请求参数
type CreateBroadcastRequest struct {
	Name         string `json:"name" binding:"max=128"`
	RecipientIDs []uint `json:"recipient_ids" binding:"required,min=1"`
	Content      string `json:"content" binding:"required"`
}

// CreateBroadcast 创建广播
// POST /api/v1/conversations/broadcast
func (h *ConversationHandler) CreateBroadcast(c *gin.Context) {
	var req CreateBroadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request parameters")
		return
	}

	userID := jwt.GetUserID(c)
	conversation, message, err := h.convService.CreateBroadcast(userID, req.Name, req.RecipientIDs, req.Content)
	if err != nil {
		response.FromError(c, err)
		return
	}

	logger.Info("广播创建成功",
		zap.Uint("conversation_id", conversation.ID),
		zap.Uint("sender_id", userID),
		zap.Int("recipients", len(req.RecipientIDs)),
	)

	response.Success(c, gin.H{
		"conversation": response.FilterConversationInfo(conversation),
		"message":      response.FilterMessageInfo(message, nil),
	})
}

// ListConversations 获取会话列表
// GET /api/v1/conversations
func (h *ConversationHandler) ListConversations(c *gin.Context) {
	userID := jwt.GetUserID(c)
	summaries, err := h.notifService.ListConversations(userID)
	if err != nil {
		response.FromError(c, err)
		return
	}

	type conversationItem struct {
		*response.ConversationInfo
		UnreadCount int64                 `json:"unread_count"`
		LastMessage *response.MessageInfo `json:"last_message,omitempty"`
		Members     []*response.UserInfo  `json:"members"`
	}

	list := make([]*conversationItem, 0, len(summaries))
	for _, summary := range summaries {
		item := &conversationItem{
			ConversationInfo: response.FilterConversationInfo(summary.Conversation),
			UnreadCount:      summary.UnreadCount,
			Members:          make([]*response.UserInfo, 0, len(summary.Others)),
		}
		if summary.LastMessage != nil {
			item.LastMessage = response.FilterMessageInfo(summary.LastMessage, nil)
		}
		for _, u := range summary.Others {
			item.Members = append(item.Members, response.FilterUserInfo(u))
		}
		list = append(list, item)
	}

	response.Success(c, gin.H{"conversations": list})
}

// GetConversation 获取会话详情
// GET /api/v1/conversations/:conversation_id
func (h *ConversationHandler) GetConversation(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}

	detail, err := h.convService.GetConversation(conversationID, jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	participants := make([]*response.ParticipantInfo, 0, len(detail.Participants))
	for _, p := range detail.Participants {
		participants = append(participants, response.FilterParticipantInfo(p, detail.Users[p.UserID]))
	}

	response.Success(c, gin.H{
		"conversation": response.FilterConversationInfo(detail.Conversation),
		"participants": participants,
		"is_admin":     detail.IsAdmin,
	})
}

// UpdateGroupRequest 群聊资料更新请求参数（multipart表单，头图可选）
type UpdateGroupRequest struct {
	Name        string `form:"name" binding:"required,max=128"`
	Description string `form:"description" binding:"max=512"`
}

// UpdateGroup 更新群聊资料
// PUT /api/v1/conversations/:conversation_id
func (h *ConversationHandler) UpdateGroup(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}

	var req UpdateGroupRequest
	if err := c.ShouldBind(&req); err != nil {
		response.BadRequest(c, "invalid request parameters")
		return
	}

	imagePath := ""
	if file, err := c.FormFile("image"); err == nil {
		if err := attachment.ValidateGroupImage(file.Filename, file.Size, h.messaging.MaxImageSize); err != nil {
			response.FromError(c, err)
			return
		}
		imagePath, err = saveUpload(c, file, h.messaging.UploadDir)
		if err != nil {
			response.FromError(c, err)
			return
		}
	}

	conversation, err := h.convService.UpdateGroupInfo(conversationID, jwt.GetUserID(c), req.Name, strings.TrimSpace(req.Description), imagePath)
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, response.FilterConversationInfo(conversation))
}

// ArchiveConversation 归档会话
// DELETE /api/v1/conversations/:conversation_id
func (h *ConversationHandler) ArchiveConversation(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}

	userID := jwt.GetUserID(c)
	if err := h.convService.Archive(conversationID, userID); err != nil {
		response.FromError(c, err)
		return
	}

	logger.Info("会话已归档", zap.Uint("conversation_id", conversationID), zap.Uint("user_id", userID))

	response.SuccessWithMessage(c, "conversation archived", nil)
}

// AddParticipantRequest 加人请求参数
type AddParticipantRequest struct {
	UserID uint `json:"user_id" binding:"required"`
}

// AddParticipant 向群聊加人
// POST /api/v1/conversations/:conversation_id/participants
func (h *ConversationHandler) AddParticipant(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}

	var req AddParticipantRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request parameters")
		return
	}

	participant, err := h.convService.AddParticipant(conversationID, req.UserID, jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, response.FilterParticipantInfo(participant, nil))
}

// RemoveParticipant 移出成员（或成员自行退出）
// DELETE /api/v1/conversations/:conversation_id/participants/:user_id
func (h *ConversationHandler) RemoveParticipant(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}
	targetUserID, ok := parseUintParam(c, "user_id")
	if !ok {
		return
	}

	if err := h.convService.RemoveParticipant(conversationID, targetUserID, jwt.GetUserID(c)); err != nil {
		response.FromError(c, err)
		return
	}

	response.SuccessWithMessage(c, "participant removed", nil)
}

// PromoteAdmin 提升管理员
// PUT /api/v1/conversations/:conversation_id/participants/:user_id/admin
func (h *ConversationHandler) PromoteAdmin(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}
	targetUserID, ok := parseUintParam(c, "user_id")
	if !ok {
		return
	}

	participant, err := h.convService.PromoteAdmin(conversationID, targetUserID, jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, response.FilterParticipantInfo(participant, nil))
}

// DemoteAdmin 撤销管理员
// DELETE /api/v1/conversations/:conversation_id/participants/:user_id/admin
func (h *ConversationHandler) DemoteAdmin(c *gin.Context) {
	conversationID, ok := parseUintParam(c, "conversation_id")
	if !ok {
		return
	}
	targetUserID, ok := parseUintParam(c, "user_id")
	if !ok {
		return
	}

	participant, err := h.convService.DemoteAdmin(conversationID, targetUserID, jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, response.FilterParticipantInfo(participant, nil))
}
