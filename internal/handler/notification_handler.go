package handler

import (
	"portal-messaging/internal/service"
	"portal-messaging/pkg/jwt"
	"portal-messaging/pkg/response"

	"github.com/gin-gonic/gin"
)

// NotificationHandler 通知HTTP处理器
type NotificationHandler struct {
	notifService *service.NotificationService
}

// NewNotificationHandler 创建NotificationHandler实例
func NewNotificationHandler(notifService *service.NotificationService) *NotificationHandler {
	return &NotificationHandler{notifService: notifService}
}

// ListNotifications 获取未读通知列表
// GET /api/v1/notifications
func (h *NotificationHandler) ListNotifications(c *gin.Context) {
	notifications, err := h.notifService.Notifications(jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{
		"notifications": notifications,
		"count":         len(notifications),
	})
}

// UnreadCount 获取未读总数
// GET /api/v1/notifications/unread-count
func (h *NotificationHandler) UnreadCount(c *gin.Context) {
	total, err := h.notifService.TotalUnread(jwt.GetUserID(c))
	if err != nil {
		response.FromError(c, err)
		return
	}

	response.Success(c, gin.H{"unread_count": total})
}
