package service

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"portal-messaging/internal/model"
	"portal-messaging/internal/repository"
	"portal-messaging/pkg/apperr"
	"portal-messaging/pkg/redis"

	"gorm.io/gorm"
)

// ConversationService 会话引擎
// 负责会话创建、成员管理与归档的全部业务规则
// 多实体写入统一在单事务内完成，管理员计数在事务内复核以避免并发丢失更新
type ConversationService struct {
	db          *gorm.DB
	convRepo    *repository.ConversationRepository
	messageRepo *repository.MessageRepository
	userRepo    *repository.UserRepository
}

// NewConversationService 创建ConversationService实例
func NewConversationService(db *gorm.DB, convRepo *repository.ConversationRepository, messageRepo *repository.MessageRepository, userRepo *repository.UserRepository) *ConversationService {
	return &ConversationService{
		db:          db,
		convRepo:    convRepo,
		messageRepo: messageRepo,
		userRepo:    userRepo,
	}
}

// orNotFound 将记录不存在错误翻译为业务NotFound，其余原样包装
func orNotFound(err error, message string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return apperr.NotFound(message)
	}
	return apperr.Internal("database query failed", err)
}

// CreatePrivate 发起私聊会话
// 去重规则：同一无序用户对至多一个私聊会话，与发起方向无关
// 命中已有会话时直接复用，首条消息照常追加
func (s *ConversationService) CreatePrivate(initiatorID, recipientID uint, content string) (*model.Conversation, *model.Message, error) {
	if initiatorID == recipientID {
		return nil, nil, apperr.Validation("cannot start a conversation with yourself")
	}
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, apperr.Validation("message content is required")
	}

	// 检查接收者存在且可用
	recipient, err := s.userRepo.GetByID(recipientID)
	if err != nil {
		return nil, nil, orNotFound(err, "recipient not found")
	}
	if !recipient.IsActive {
		return nil, nil, apperr.NotFound("recipient not found")
	}

	var conversation *model.Conversation
	var message *model.Message

	err = s.db.Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)

		// 查找已有私聊会话（双向去重）
		existing, err := convRepo.FindPrivateBetween(initiatorID, recipientID)
		if err != nil {
			return apperr.Internal("lookup private conversation failed", err)
		}

		if existing != nil {
			conversation = existing
		} else {
			// 创建新会话并加入双方成员（均非管理员）
			now := time.Now()
			conversation = &model.Conversation{
				Type:          model.ConversationTypePrivate,
				CreatorID:     &initiatorID,
				IsActive:      true,
				LastMessageAt: now,
			}
			if err := convRepo.Create(conversation); err != nil {
				return apperr.Internal("create conversation failed", err)
			}
			for _, userID := range []uint{initiatorID, recipientID} {
				participant := &model.Participant{
					ConversationID: conversation.ID,
					UserID:         userID,
					JoinedAt:       now,
					IsActive:       true,
				}
				if err := convRepo.CreateParticipant(participant); err != nil {
					return apperr.Internal("create participant failed", err)
				}
			}
		}

		// 追加首条消息
		message, err = appendMessage(tx, conversation.ID, initiatorID, content, "", "")
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	// 接收者的未读汇总缓存失效
	_ = redis.InvalidateTotalUnread(recipientID)

	return conversation, message, nil
}

// CreateGroup 创建群聊会话
// 先加入全部成员（非管理员），再将创建者加入为管理员；可选发送首条消息
func (s *ConversationService) CreateGroup(creatorID uint, name, description, image string, participantIDs []uint, initialMessage string) (*model.Conversation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}

	members, err := s.resolveMembers(participantIDs, creatorID)
	if err != nil {
		return nil, err
	}

	var conversation *model.Conversation

	err = s.db.Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)

		now := time.Now()
		conversation = &model.Conversation{
			Name:          name,
			Type:          model.ConversationTypeGroup,
			CreatorID:     &creatorID,
			Description:   description,
			Image:         image,
			IsActive:      true,
			LastMessageAt: now,
		}
		if err := convRepo.Create(conversation); err != nil {
			return apperr.Internal("create conversation failed", err)
		}

		for _, userID := range members {
			if _, err := upsertParticipant(convRepo, conversation.ID, userID, false); err != nil {
				return err
			}
		}
		if _, err := upsertParticipant(convRepo, conversation.ID, creatorID, true); err != nil {
			return err
		}

		if initialMessage = strings.TrimSpace(initialMessage); initialMessage != "" {
			if _, err := appendMessage(tx, conversation.ID, creatorID, initialMessage, "", ""); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(initialMessage) != "" {
		_ = redis.InvalidateTotalUnread(members...)
	}

	return conversation, nil
}

// CreateBroadcast 创建广播会话
// 发送者是唯一管理员，广播消息必填且总是创建
func (s *ConversationService) CreateBroadcast(senderID uint, name string, recipientIDs []uint, content string) (*model.Conversation, *model.Message, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, nil, apperr.Validation("broadcast message is required")
	}
	if len(recipientIDs) == 0 {
		return nil, nil, apperr.Validation("at least one recipient is required")
	}

	recipients, err := s.resolveMembers(recipientIDs, senderID)
	if err != nil {
		return nil, nil, err
	}

	var conversation *model.Conversation
	var message *model.Message

	err = s.db.Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)

		now := time.Now()
		conversation = &model.Conversation{
			Name:          strings.TrimSpace(name),
			Type:          model.ConversationTypeBroadcast,
			CreatorID:     &senderID,
			IsActive:      true,
			LastMessageAt: now,
		}
		if err := convRepo.Create(conversation); err != nil {
			return apperr.Internal("create conversation failed", err)
		}

		for _, userID := range recipients {
			if _, err := upsertParticipant(convRepo, conversation.ID, userID, false); err != nil {
				return err
			}
		}
		if _, err := upsertParticipant(convRepo, conversation.ID, senderID, true); err != nil {
			return err
		}

		message, err = appendMessage(tx, conversation.ID, senderID, content, "", "")
		return err
	})
	if err != nil {
		return nil, nil, err
	}

	_ = redis.InvalidateTotalUnread(recipients...)

	return conversation, message, nil
}

// resolveMembers 校验成员ID均为可用用户并去重，自动剔除操作者本人
func (s *ConversationService) resolveMembers(userIDs []uint, selfID uint) ([]uint, error) {
	seen := make(map[uint]bool, len(userIDs))
	unique := make([]uint, 0, len(userIDs))
	for _, id := range userIDs {
		if id == selfID || seen[id] {
			continue
		}
		seen[id] = true
		unique = append(unique, id)
	}

	users, err := s.userRepo.GetByIDs(unique)
	if err != nil {
		return nil, apperr.Internal("lookup users failed", err)
	}
	for _, id := range unique {
		u, ok := users[id]
		if !ok || !u.IsActive {
			return nil, apperr.NotFound(fmt.Sprintf("user %d not found", id))
		}
	}
	return unique, nil
}

// upsertParticipant 幂等加入成员
// 已有停用行则复活（翻转is_active），已有有效行则原样返回，否则插入新行
func upsertParticipant(convRepo *repository.ConversationRepository, conversationID, userID uint, isAdmin bool) (*model.Participant, error) {
	participant, err := convRepo.GetParticipant(conversationID, userID)
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Internal("lookup participant failed", err)
		}
		participant = &model.Participant{
			ConversationID: conversationID,
			UserID:         userID,
			JoinedAt:       time.Now(),
			IsAdmin:        isAdmin,
			IsActive:       true,
		}
		if err := convRepo.CreateParticipant(participant); err != nil {
			return nil, apperr.Internal("create participant failed", err)
		}
		return participant, nil
	}

	if participant.IsActive {
		return participant, nil
	}

	participant.IsActive = true
	participant.IsAdmin = isAdmin
	if err := convRepo.SaveParticipant(participant); err != nil {
		return nil, apperr.Internal("reactivate participant failed", err)
	}
	return participant, nil
}

// loadActiveGroup 加载群聊会话，校验存在、类型与有效状态
func (s *ConversationService) loadActiveGroup(conversationID uint) (*model.Conversation, error) {
	conversation, err := s.convRepo.GetByID(conversationID)
	if err != nil {
		return nil, orNotFound(err, "conversation not found")
	}
	if conversation.Type != model.ConversationTypeGroup {
		return nil, apperr.Validation("only group conversations support member changes")
	}
	if !conversation.IsActive {
		return nil, apperr.PolicyViolation("conversation is no longer active")
	}
	return conversation, nil
}

// requireActiveAdmin 校验操作者是会话的有效管理员
func (s *ConversationService) requireActiveAdmin(conversationID, userID uint) (*model.Participant, error) {
	participant, err := s.convRepo.GetActiveParticipant(conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("you are not an admin of this conversation")
		}
		return nil, apperr.Internal("lookup participant failed", err)
	}
	if !participant.IsAdmin {
		return nil, apperr.Unauthorized("you are not an admin of this conversation")
	}
	return participant, nil
}

// displayNameOf 获取用户展示名，账号已删除时返回占位
func (s *ConversationService) displayNameOf(userID uint) string {
	u, err := s.userRepo.GetByID(userID)
	if err != nil {
		return "Unknown"
	}
	return u.DisplayName()
}

// AddParticipant 向群聊加入成员
// 幂等：停用行复活，已有有效行原样返回且不发系统消息
func (s *ConversationService) AddParticipant(conversationID, userID, actingUserID uint) (*model.Participant, error) {
	if _, err := s.loadActiveGroup(conversationID); err != nil {
		return nil, err
	}
	if _, err := s.requireActiveAdmin(conversationID, actingUserID); err != nil {
		return nil, err
	}

	user, err := s.userRepo.GetByID(userID)
	if err != nil {
		return nil, orNotFound(err, "user not found")
	}
	if !user.IsActive {
		return nil, apperr.NotFound("user not found")
	}

	// 已是有效成员则直接返回
	if existing, err := s.convRepo.GetActiveParticipant(conversationID, userID); err == nil {
		return existing, nil
	} else if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, apperr.Internal("lookup participant failed", err)
	}

	var participant *model.Participant
	err = s.db.Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)

		participant, err = upsertParticipant(convRepo, conversationID, userID, false)
		if err != nil {
			return err
		}

		// 系统消息：记录加入事件
		content := fmt.Sprintf("%s has been added to the group.", user.DisplayName())
		_, err = appendMessage(tx, conversationID, actingUserID, content, "", "")
		return err
	})
	if err != nil {
		return nil, err
	}

	return participant, nil
}

// RemoveParticipant 将成员移出群聊（或成员自行退出）
// 授权：操作者是有效管理员，或操作者即目标成员（自退）
// 最后管理员保护：无论自退还是被移除，都不允许把群降到零管理员
func (s *ConversationService) RemoveParticipant(conversationID, userID, actingUserID uint) error {
	if _, err := s.loadActiveGroup(conversationID); err != nil {
		return err
	}

	isSelf := actingUserID == userID
	if !isSelf {
		if _, err := s.requireActiveAdmin(conversationID, actingUserID); err != nil {
			return err
		}
	}

	err := s.db.Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)

		target, err := convRepo.GetActiveParticipant(conversationID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user is not a member of this group")
			}
			return apperr.Internal("lookup participant failed", err)
		}

		// 管理员计数在事务内复核，避免并发移除竞态
		if target.IsAdmin {
			adminCount, err := convRepo.CountActiveAdmins(conversationID)
			if err != nil {
				return apperr.Internal("count admins failed", err)
			}
			if adminCount <= 1 {
				return apperr.PolicyViolation("cannot remove the last admin, promote another admin first")
			}
		}

		target.IsActive = false
		if err := convRepo.SaveParticipant(target); err != nil {
			return apperr.Internal("deactivate participant failed", err)
		}

		// 系统消息：记录退出/移除事件
		targetName := s.displayNameOf(userID)
		var content string
		if isSelf {
			content = fmt.Sprintf("%s has left the group.", targetName)
		} else {
			content = fmt.Sprintf("%s has been removed from the group by %s.", targetName, s.displayNameOf(actingUserID))
		}
		_, err = appendMessage(tx, conversationID, actingUserID, content, "", "")
		return err
	})
	return err
}

// PromoteAdmin 将成员提升为管理员
// 目标已是管理员时为无操作成功
func (s *ConversationService) PromoteAdmin(conversationID, userID, actingUserID uint) (*model.Participant, error) {
	if _, err := s.loadActiveGroup(conversationID); err != nil {
		return nil, err
	}
	if _, err := s.requireActiveAdmin(conversationID, actingUserID); err != nil {
		return nil, err
	}

	target, err := s.convRepo.GetActiveParticipant(conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.NotFound("user is not a member of this group")
		}
		return nil, apperr.Internal("lookup participant failed", err)
	}
	if target.IsAdmin {
		return target, nil
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)

		target.IsAdmin = true
		if err := convRepo.SaveParticipant(target); err != nil {
			return apperr.Internal("promote participant failed", err)
		}

		content := fmt.Sprintf("%s is now a group admin.", s.displayNameOf(userID))
		_, err := appendMessage(tx, conversationID, actingUserID, content, "", "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// DemoteAdmin 撤销成员的管理员身份
// 最后管理员保护：不允许撤销仅剩的管理员
func (s *ConversationService) DemoteAdmin(conversationID, userID, actingUserID uint) (*model.Participant, error) {
	if _, err := s.loadActiveGroup(conversationID); err != nil {
		return nil, err
	}
	if _, err := s.requireActiveAdmin(conversationID, actingUserID); err != nil {
		return nil, err
	}

	var target *model.Participant
	err := s.db.Transaction(func(tx *gorm.DB) error {
		convRepo := s.convRepo.WithTx(tx)

		var err error
		target, err = convRepo.GetActiveParticipant(conversationID, userID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("user is not a member of this group")
			}
			return apperr.Internal("lookup participant failed", err)
		}
		if !target.IsAdmin {
			return apperr.NotFound("user is not an admin of this group")
		}

		// 管理员计数在事务内复核
		adminCount, err := convRepo.CountActiveAdmins(conversationID)
		if err != nil {
			return apperr.Internal("count admins failed", err)
		}
		if adminCount <= 1 {
			return apperr.PolicyViolation("cannot remove the last admin from the group")
		}

		target.IsAdmin = false
		if err := convRepo.SaveParticipant(target); err != nil {
			return apperr.Internal("demote participant failed", err)
		}

		content := fmt.Sprintf("%s is no longer a group admin.", s.displayNameOf(userID))
		_, err = appendMessage(tx, conversationID, actingUserID, content, "", "")
		return err
	})
	if err != nil {
		return nil, err
	}
	return target, nil
}

// UpdateGroupInfo 更新群聊资料（名称必填，头图可选）
func (s *ConversationService) UpdateGroupInfo(conversationID, actingUserID uint, name, description, image string) (*model.Conversation, error) {
	conversation, err := s.loadActiveGroup(conversationID)
	if err != nil {
		return nil, err
	}
	if _, err := s.requireActiveAdmin(conversationID, actingUserID); err != nil {
		return nil, err
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return nil, apperr.Validation("group name is required")
	}

	conversation.Name = name
	conversation.Description = description
	if image != "" {
		conversation.Image = image
	}
	if err := s.convRepo.Save(conversation); err != nil {
		return nil, apperr.Internal("update conversation failed", err)
	}
	return conversation, nil
}

// Archive 归档会话（软停用，级联停用全部成员，不做物理删除）
func (s *ConversationService) Archive(conversationID, actingUserID uint) error {
	conversation, err := s.convRepo.GetByID(conversationID)
	if err != nil {
		return orNotFound(err, "conversation not found")
	}
	if !conversation.IsGroupLike() {
		return apperr.Validation("private conversations cannot be archived")
	}
	if !conversation.IsActive {
		return nil // 已归档，幂等成功
	}
	if _, err := s.requireActiveAdmin(conversationID, actingUserID); err != nil {
		return err
	}

	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := s.convRepo.WithTx(tx).Deactivate(conversationID); err != nil {
			return apperr.Internal("archive conversation failed", err)
		}
		return nil
	})
	return err
}

// ConversationDetail 会话详情
// 聚合详情页渲染所需的成员行与成员用户信息
type ConversationDetail struct {
	Conversation *model.Conversation
	Participants []*model.Participant
	Users        map[uint]*model.User
	IsAdmin      bool
}

// GetConversation 获取会话详情（要求操作者是有效成员）
func (s *ConversationService) GetConversation(conversationID, userID uint) (*ConversationDetail, error) {
	conversation, err := s.convRepo.GetByID(conversationID)
	if err != nil {
		return nil, orNotFound(err, "conversation not found")
	}

	participant, err := s.convRepo.GetActiveParticipant(conversationID, userID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, apperr.Unauthorized("you are not a participant in this conversation")
		}
		return nil, apperr.Internal("lookup participant failed", err)
	}

	participants, err := s.convRepo.ListActiveParticipants(conversationID)
	if err != nil {
		return nil, apperr.Internal("list participants failed", err)
	}

	ids := make([]uint, 0, len(participants))
	for _, p := range participants {
		ids = append(ids, p.UserID)
	}
	users, err := s.userRepo.GetByIDs(ids)
	if err != nil {
		return nil, apperr.Internal("lookup users failed", err)
	}

	return &ConversationDetail{
		Conversation: conversation,
		Participants: participants,
		Users:        users,
		IsAdmin:      participant.IsAdmin,
	}, nil
}
