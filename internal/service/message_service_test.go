package service

import (
	"testing"
	"time"

	"portal-messaging/internal/model"
	"portal-messaging/pkg/apperr"
)

func TestSendAdvancesConversation(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	conversation := env.createGroup(t, alice.ID, bob.ID, carol.ID)
	before := env.conversation(t, conversation.ID).LastMessageAt

	message, err := env.messages.Send(conversation.ID, alice.ID, "hello everyone", "", "")
	if err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	after := env.conversation(t, conversation.ID).LastMessageAt
	if !after.After(before) {
		t.Fatalf("发送后 last_message_at 应推进: before=%v after=%v", before, after)
	}
	if diff := after.Sub(message.Timestamp); diff < -time.Millisecond || diff > time.Millisecond {
		t.Fatalf("last_message_at 应等于消息时间戳: %v != %v", after, message.Timestamp)
	}

	// 未读标记只落在其他成员上
	if p := env.participant(t, conversation.ID, alice.ID); p.HasUnread {
		t.Fatal("发送者不应有未读标记")
	}
	for _, id := range []uint{bob.ID, carol.ID} {
		if p := env.participant(t, conversation.ID, id); !p.HasUnread {
			t.Fatalf("成员 %d 应有未读标记", id)
		}
	}
}

func TestSendRequiresActiveMembership(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	mallory := env.createUser(t, "mallory")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	// 非成员
	_, err := env.messages.Send(conversation.ID, mallory.ID, "let me in", "", "")
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("非成员发消息应被拒绝, 实际 %v", err)
	}

	// 已退出的成员
	if err := env.conversations.RemoveParticipant(conversation.ID, bob.ID, alice.ID); err != nil {
		t.Fatalf("移出成员失败: %v", err)
	}
	_, err = env.messages.Send(conversation.ID, bob.ID, "still here?", "", "")
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("已退出成员发消息应被拒绝, 实际 %v", err)
	}
}

func TestSendRejectsEmptyMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	_, err := env.messages.Send(conversation.ID, alice.ID, "   ", "", "")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("空消息应返回校验错误, 实际 %v", err)
	}

	// 纯附件消息允许正文为空
	message, err := env.messages.Send(conversation.ID, alice.ID, "", "/uploads/photo.jpg", "image")
	if err != nil {
		t.Fatalf("纯附件消息应允许发送: %v", err)
	}
	if !message.HasAttachment() {
		t.Fatal("消息应带附件")
	}
}

func TestEditMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)
	message, err := env.messages.Send(conversation.ID, alice.ID, "helo wrold", "", "")
	if err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}
	stampBefore := env.conversation(t, conversation.ID).LastMessageAt

	edited, err := env.messages.Edit(message.ID, alice.ID, "hello world")
	if err != nil {
		t.Fatalf("编辑消息失败: %v", err)
	}
	if edited.Content != "hello world" || !edited.IsEdited || edited.EditedAt == nil {
		t.Fatalf("编辑结果不符: %+v", edited)
	}
	if diff := edited.Timestamp.Sub(message.Timestamp); diff < -time.Millisecond || diff > time.Millisecond {
		t.Fatal("编辑不应改变消息时间戳")
	}

	// 编辑不推进会话的 last_message_at
	if stampAfter := env.conversation(t, conversation.ID).LastMessageAt; !stampAfter.Equal(stampBefore) {
		t.Fatalf("编辑不应推进 last_message_at: %v -> %v", stampBefore, stampAfter)
	}
}

func TestEditByNonSenderRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)
	message, err := env.messages.Send(conversation.ID, alice.ID, "mine", "", "")
	if err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	_, err = env.messages.Edit(message.ID, bob.ID, "tampered")
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("他人编辑应被拒绝, 实际 %v", err)
	}
}

func TestEditDeletedMessageRejected(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)
	message, err := env.messages.Send(conversation.ID, alice.ID, "regret this", "", "")
	if err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}
	if _, err := env.messages.Delete(message.ID, alice.ID); err != nil {
		t.Fatalf("删除消息失败: %v", err)
	}

	_, err = env.messages.Edit(message.ID, alice.ID, "resurrect")
	if apperr.KindOf(err) != apperr.KindPolicyViolation {
		t.Fatalf("编辑已删除消息应被拒绝, 实际 %v", err)
	}
}

func TestDeleteMessageTombstone(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)
	message, err := env.messages.Send(conversation.ID, alice.ID, "secret", "/uploads/leak.pdf", "document")
	if err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	deleted, err := env.messages.Delete(message.ID, alice.ID)
	if err != nil {
		t.Fatalf("删除消息失败: %v", err)
	}
	if deleted.Content != model.DeletedMessagePlaceholder {
		t.Fatalf("删除后正文应为墓碑文案, 实际 %q", deleted.Content)
	}
	if !deleted.IsDeleted || deleted.Attachment != "" || deleted.AttachmentType != "" {
		t.Fatalf("删除后附件引用应清除: %+v", deleted)
	}

	// 重复删除幂等
	again, err := env.messages.Delete(message.ID, alice.ID)
	if err != nil {
		t.Fatalf("重复删除应为幂等成功: %v", err)
	}
	if again.Content != model.DeletedMessagePlaceholder {
		t.Fatalf("重复删除不应改变墓碑文案: %q", again.Content)
	}
}

func TestDeleteByAdminAllowed(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	conversation := env.createGroup(t, alice.ID, bob.ID, carol.ID)
	message, err := env.messages.Send(conversation.ID, bob.ID, "spam spam spam", "", "")
	if err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	// 普通成员不能删他人消息
	_, err = env.messages.Delete(message.ID, carol.ID)
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("普通成员删他人消息应被拒绝, 实际 %v", err)
	}

	// 管理员可以
	if _, err := env.messages.Delete(message.ID, alice.ID); err != nil {
		t.Fatalf("管理员删除应成功: %v", err)
	}
}

func TestMarkConversationRead(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)
	if _, err := env.messages.Send(conversation.ID, alice.ID, "ping", "", ""); err != nil {
		t.Fatalf("发送消息失败: %v", err)
	}

	if p := env.participant(t, conversation.ID, bob.ID); !p.HasUnread {
		t.Fatal("标记前应有未读标记")
	}

	if err := env.messages.MarkConversationRead(conversation.ID, bob.ID); err != nil {
		t.Fatalf("标记已读失败: %v", err)
	}

	p := env.participant(t, conversation.ID, bob.ID)
	if p.HasUnread {
		t.Fatal("标记后未读标记应清除")
	}
	if p.LastReadAt == nil {
		t.Fatal("标记后应记录已读水位")
	}

	// 他人消息的已读位被批量更新
	last, err := env.msgRepo.GetLastMessage(conversation.ID)
	if err != nil {
		t.Fatalf("读取最新消息失败: %v", err)
	}
	if last == nil || !last.IsRead {
		t.Fatalf("他人消息应标记为已读: %+v", last)
	}
}

func TestListMessagesPagination(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	contents := []string{"one", "two", "three", "four", "five"}
	for _, content := range contents {
		if _, err := env.messages.Send(conversation.ID, alice.ID, content, "", ""); err != nil {
			t.Fatalf("发送消息 %q 失败: %v", content, err)
		}
	}

	// 第一页：最新两条，页内旧到新
	page, hasMore, err := env.messages.ListMessages(conversation.ID, bob.ID, 0, 2)
	if err != nil {
		t.Fatalf("读取消息失败: %v", err)
	}
	if !hasMore {
		t.Fatal("第一页后应还有更早的消息")
	}
	if len(page) != 2 || page[0].Content != "four" || page[1].Content != "five" {
		t.Fatalf("第一页内容不符: %+v", contentsOf(page))
	}

	// 用第一页最旧一条作为游标翻页
	page2, hasMore, err := env.messages.ListMessages(conversation.ID, bob.ID, page[0].ID, 2)
	if err != nil {
		t.Fatalf("翻页失败: %v", err)
	}
	if !hasMore {
		t.Fatal("第二页后应还有更早的消息")
	}
	if len(page2) != 2 || page2[0].Content != "two" || page2[1].Content != "three" {
		t.Fatalf("第二页内容不符: %+v", contentsOf(page2))
	}

	// 最后一页
	page3, hasMore, err := env.messages.ListMessages(conversation.ID, bob.ID, page2[0].ID, 2)
	if err != nil {
		t.Fatalf("末页读取失败: %v", err)
	}
	if hasMore {
		t.Fatal("末页后不应再有消息")
	}
	if len(page3) != 1 || page3[0].Content != "one" {
		t.Fatalf("末页内容不符: %+v", contentsOf(page3))
	}
}

func TestListMessagesRequiresMembership(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	mallory := env.createUser(t, "mallory")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	_, _, err := env.messages.ListMessages(conversation.ID, mallory.ID, 0, 20)
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("非成员读取消息应被拒绝, 实际 %v", err)
	}
}

func contentsOf(messages []*model.Message) []string {
	result := make([]string, 0, len(messages))
	for _, m := range messages {
		result = append(result, m.Content)
	}
	return result
}
