package service

import (
	"strings"
	"testing"
)

func TestUnreadCountLifecycle(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	for _, content := range []string{"first", "second", "third"} {
		if _, err := env.messages.Send(conversation.ID, alice.ID, content, "", ""); err != nil {
			t.Fatalf("发送消息失败: %v", err)
		}
	}

	// 从未读过：全部消息计为未读
	count, err := env.notifications.UnreadCount(conversation.ID, bob.ID)
	if err != nil {
		t.Fatalf("统计未读失败: %v", err)
	}
	if count != 3 {
		t.Fatalf("未读数应为3, 实际 %d", count)
	}

	// 标记已读后归零
	if err := env.messages.MarkConversationRead(conversation.ID, bob.ID); err != nil {
		t.Fatalf("标记已读失败: %v", err)
	}
	count, err = env.notifications.UnreadCount(conversation.ID, bob.ID)
	if err != nil {
		t.Fatalf("统计未读失败: %v", err)
	}
	if count != 0 {
		t.Fatalf("已读后未读数应为0, 实际 %d", count)
	}

	// 新消息重新计入
	if _, err := env.messages.Send(conversation.ID, alice.ID, "fourth", "", ""); err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}
	count, err = env.notifications.UnreadCount(conversation.ID, bob.ID)
	if err != nil {
		t.Fatalf("统计未读失败: %v", err)
	}
	if count != 1 {
		t.Fatalf("新消息后未读数应为1, 实际 %d", count)
	}
}

func TestUnreadCountForNonParticipantIsZero(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	mallory := env.createUser(t, "mallory")

	conversation := env.createGroup(t, alice.ID, bob.ID)
	if _, err := env.messages.Send(conversation.ID, alice.ID, "hello", "", ""); err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	count, err := env.notifications.UnreadCount(conversation.ID, mallory.ID)
	if err != nil {
		t.Fatalf("非成员未读数查询不应报错: %v", err)
	}
	if count != 0 {
		t.Fatalf("非成员未读数应为0, 实际 %d", count)
	}
}

func TestTotalUnreadAcrossConversations(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	group := env.createGroup(t, alice.ID, bob.ID)
	if _, err := env.messages.Send(group.ID, alice.ID, "group message", "", ""); err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	private, _, err := env.conversations.CreatePrivate(carol.ID, bob.ID, "private message")
	if err != nil {
		t.Fatalf("创建私聊失败: %v", err)
	}
	if _, err := env.messages.Send(private.ID, carol.ID, "second private", "", ""); err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	total, err := env.notifications.TotalUnread(bob.ID)
	if err != nil {
		t.Fatalf("统计总未读失败: %v", err)
	}
	if total != 3 {
		t.Fatalf("总未读应为3, 实际 %d", total)
	}

	if err := env.messages.MarkConversationRead(private.ID, bob.ID); err != nil {
		t.Fatalf("标记已读失败: %v", err)
	}
	total, err = env.notifications.TotalUnread(bob.ID)
	if err != nil {
		t.Fatalf("统计总未读失败: %v", err)
	}
	if total != 1 {
		t.Fatalf("私聊已读后总未读应为1, 实际 %d", total)
	}
}

func TestListConversationsOrderAndAnnotations(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	first := env.createGroup(t, alice.ID, bob.ID)
	second := env.createGroup(t, carol.ID, bob.ID)

	if _, err := env.messages.Send(first.ID, alice.ID, "older activity", "", ""); err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}
	if _, err := env.messages.Send(second.ID, carol.ID, "newer activity", "", ""); err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	summaries, err := env.notifications.ListConversations(bob.ID)
	if err != nil {
		t.Fatalf("读取会话列表失败: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("会话数应为2, 实际 %d", len(summaries))
	}

	// 最近活跃的排前面
	if summaries[0].Conversation.ID != second.ID {
		t.Fatalf("最近活跃会话应排首位, 实际 %d", summaries[0].Conversation.ID)
	}
	if summaries[0].LastMessage == nil || summaries[0].LastMessage.Content != "newer activity" {
		t.Fatalf("最新消息注解不符: %+v", summaries[0].LastMessage)
	}
	if summaries[0].UnreadCount != 1 {
		t.Fatalf("未读注解应为1, 实际 %d", summaries[0].UnreadCount)
	}

	// 对端成员不含本人
	for _, u := range summaries[0].Others {
		if u.ID == bob.ID {
			t.Fatal("对端成员不应包含本人")
		}
	}

	// 归档的会话不出现在列表中
	if err := env.conversations.Archive(first.ID, alice.ID); err != nil {
		t.Fatalf("归档失败: %v", err)
	}
	summaries, err = env.notifications.ListConversations(bob.ID)
	if err != nil {
		t.Fatalf("读取会话列表失败: %v", err)
	}
	if len(summaries) != 1 || summaries[0].Conversation.ID != second.ID {
		t.Fatalf("归档会话不应出现在列表中: %d条", len(summaries))
	}
}

func TestNotificationsPreviewTruncation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	long := strings.Repeat("a", 80)
	if _, err := env.messages.Send(conversation.ID, alice.ID, long, "", ""); err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	notifications, err := env.notifications.Notifications(bob.ID)
	if err != nil {
		t.Fatalf("读取通知失败: %v", err)
	}
	if len(notifications) != 1 {
		t.Fatalf("通知数应为1, 实际 %d", len(notifications))
	}

	n := notifications[0]
	if n.Preview != strings.Repeat("a", 50)+"..." {
		t.Fatalf("预览截断不符: %q", n.Preview)
	}
	if n.UnreadCount != 1 {
		t.Fatalf("通知未读数应为1, 实际 %d", n.UnreadCount)
	}
	if n.SenderName != "alice" {
		t.Fatalf("发送者名应为alice, 实际 %q", n.SenderName)
	}

	// 已读后通知消失
	if err := env.messages.MarkConversationRead(conversation.ID, bob.ID); err != nil {
		t.Fatalf("标记已读失败: %v", err)
	}
	notifications, err = env.notifications.Notifications(bob.ID)
	if err != nil {
		t.Fatalf("读取通知失败: %v", err)
	}
	if len(notifications) != 0 {
		t.Fatalf("已读后不应有通知, 实际 %d条", len(notifications))
	}
}

func TestNotificationsAttachmentPlaceholder(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)
	if _, err := env.messages.Send(conversation.ID, alice.ID, "", "/uploads/photo.jpg", "image"); err != nil {
		t.Fatalf("发送附件消息失败: %v", err)
	}

	notifications, err := env.notifications.Notifications(bob.ID)
	if err != nil {
		t.Fatalf("读取通知失败: %v", err)
	}
	if len(notifications) != 1 || notifications[0].Preview != "[Attachment]" {
		t.Fatalf("纯附件消息预览应为占位文案: %+v", notifications)
	}
}
