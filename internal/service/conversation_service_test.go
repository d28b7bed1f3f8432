package service

import (
	"strings"
	"testing"

	"portal-messaging/internal/model"
	"portal-messaging/pkg/apperr"
)

func TestCreatePrivateDeduplicates(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	first, _, err := env.conversations.CreatePrivate(alice.ID, bob.ID, "hi bob")
	if err != nil {
		t.Fatalf("首次创建私聊失败: %v", err)
	}

	// 反方向发起也必须命中同一会话
	second, _, err := env.conversations.CreatePrivate(bob.ID, alice.ID, "hi alice")
	if err != nil {
		t.Fatalf("反向创建私聊失败: %v", err)
	}

	if first.ID != second.ID {
		t.Fatalf("私聊去重失败: 会话 %d 与 %d 不同", first.ID, second.ID)
	}
	if count := env.messageCount(t, first.ID); count != 2 {
		t.Fatalf("消息数应为2, 实际 %d", count)
	}
}

func TestCreatePrivateRejectsSelf(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")

	_, _, err := env.conversations.CreatePrivate(alice.ID, alice.ID, "hello me")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("与自己私聊应返回校验错误, 实际 %v", err)
	}
}

func TestCreateGroupCreatorIsAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	conversation, err := env.conversations.CreateGroup(alice.ID, "book club", "weekly reads", "", []uint{bob.ID, carol.ID}, "welcome")
	if err != nil {
		t.Fatalf("创建群聊失败: %v", err)
	}
	if conversation.Type != model.ConversationTypeGroup {
		t.Fatalf("会话类型应为group, 实际 %s", conversation.Type)
	}

	if p := env.participant(t, conversation.ID, alice.ID); !p.IsAdmin {
		t.Fatal("创建者应为管理员")
	}
	for _, id := range []uint{bob.ID, carol.ID} {
		if p := env.participant(t, conversation.ID, id); p.IsAdmin {
			t.Fatalf("成员 %d 不应为管理员", id)
		}
	}

	// 首条消息已写入
	if count := env.messageCount(t, conversation.ID); count != 1 {
		t.Fatalf("消息数应为1, 实际 %d", count)
	}
}

func TestCreateBroadcastSenderSoleAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	conversation, message, err := env.conversations.CreateBroadcast(alice.ID, "announcement", []uint{bob.ID, carol.ID}, "server maintenance tonight")
	if err != nil {
		t.Fatalf("创建广播失败: %v", err)
	}
	if conversation.Type != model.ConversationTypeBroadcast {
		t.Fatalf("会话类型应为broadcast, 实际 %s", conversation.Type)
	}
	if message == nil || message.Content != "server maintenance tonight" {
		t.Fatalf("广播消息内容不符: %+v", message)
	}

	admins, err := env.convRepo.CountActiveAdmins(conversation.ID)
	if err != nil {
		t.Fatalf("统计管理员失败: %v", err)
	}
	if admins != 1 {
		t.Fatalf("广播应只有1个管理员, 实际 %d", admins)
	}
	if p := env.participant(t, conversation.ID, alice.ID); !p.IsAdmin {
		t.Fatal("发送者应为管理员")
	}
}

func TestCreateBroadcastRequiresMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	_, _, err := env.conversations.CreateBroadcast(alice.ID, "empty", []uint{bob.ID}, "   ")
	if apperr.KindOf(err) != apperr.KindValidation {
		t.Fatalf("空广播内容应返回校验错误, 实际 %v", err)
	}
}

func TestAddParticipantIdempotent(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	conversation := env.createGroup(t, alice.ID, bob.ID)
	baseline := env.messageCount(t, conversation.ID)

	// 首次加人：成员行生效 + 系统消息
	if _, err := env.conversations.AddParticipant(conversation.ID, carol.ID, alice.ID); err != nil {
		t.Fatalf("加人失败: %v", err)
	}
	if count := env.messageCount(t, conversation.ID); count != baseline+1 {
		t.Fatalf("加人后应有系统消息, 消息数 %d", count)
	}

	// 重复加人：无操作成功，不再发系统消息
	if _, err := env.conversations.AddParticipant(conversation.ID, carol.ID, alice.ID); err != nil {
		t.Fatalf("重复加人应成功: %v", err)
	}
	if count := env.messageCount(t, conversation.ID); count != baseline+1 {
		t.Fatalf("重复加人不应产生新消息, 消息数 %d", count)
	}
}

func TestAddParticipantReactivatesRow(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)
	original := env.participant(t, conversation.ID, bob.ID)

	if err := env.conversations.RemoveParticipant(conversation.ID, bob.ID, alice.ID); err != nil {
		t.Fatalf("移出成员失败: %v", err)
	}
	if p := env.participant(t, conversation.ID, bob.ID); p.IsActive {
		t.Fatal("移出后成员行应停用")
	}

	// 重新加入必须复活原行而非新建（唯一索引约束）
	if _, err := env.conversations.AddParticipant(conversation.ID, bob.ID, alice.ID); err != nil {
		t.Fatalf("重新加人失败: %v", err)
	}
	restored := env.participant(t, conversation.ID, bob.ID)
	if restored.ID != original.ID {
		t.Fatalf("应复用原成员行 %d, 实际新行 %d", original.ID, restored.ID)
	}
	if !restored.IsActive {
		t.Fatal("重新加入后成员行应生效")
	}
}

func TestAddParticipantRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")
	carol := env.createUser(t, "carol")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	_, err := env.conversations.AddParticipant(conversation.ID, carol.ID, bob.ID)
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("非管理员加人应被拒绝, 实际 %v", err)
	}
}

func TestLastAdminCannotLeave(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	// 唯一管理员自退被拒
	err := env.conversations.RemoveParticipant(conversation.ID, alice.ID, alice.ID)
	if apperr.KindOf(err) != apperr.KindPolicyViolation {
		t.Fatalf("最后管理员自退应被拒绝, 实际 %v", err)
	}
	if p := env.participant(t, conversation.ID, alice.ID); !p.IsActive {
		t.Fatal("被拒后成员行应保持生效")
	}

	// 提升第二个管理员后即可退出
	if _, err := env.conversations.PromoteAdmin(conversation.ID, bob.ID, alice.ID); err != nil {
		t.Fatalf("提升管理员失败: %v", err)
	}
	if err := env.conversations.RemoveParticipant(conversation.ID, alice.ID, alice.ID); err != nil {
		t.Fatalf("有第二管理员后自退应成功: %v", err)
	}
}

func TestLastAdminCannotBeDemoted(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	_, err := env.conversations.DemoteAdmin(conversation.ID, alice.ID, alice.ID)
	if apperr.KindOf(err) != apperr.KindPolicyViolation {
		t.Fatalf("撤销最后管理员应被拒绝, 实际 %v", err)
	}
	if p := env.participant(t, conversation.ID, alice.ID); !p.IsAdmin {
		t.Fatal("被拒后管理员身份应保持")
	}
}

func TestPromoteThenDemote(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	if _, err := env.conversations.PromoteAdmin(conversation.ID, bob.ID, alice.ID); err != nil {
		t.Fatalf("提升管理员失败: %v", err)
	}
	if p := env.participant(t, conversation.ID, bob.ID); !p.IsAdmin {
		t.Fatal("提升后应为管理员")
	}

	if _, err := env.conversations.DemoteAdmin(conversation.ID, bob.ID, alice.ID); err != nil {
		t.Fatalf("撤销管理员失败: %v", err)
	}
	if p := env.participant(t, conversation.ID, bob.ID); p.IsAdmin {
		t.Fatal("撤销后不应为管理员")
	}
}

func TestRemoveParticipantSystemMessage(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	if err := env.conversations.RemoveParticipant(conversation.ID, bob.ID, alice.ID); err != nil {
		t.Fatalf("移出成员失败: %v", err)
	}

	last, err := env.msgRepo.GetLastMessage(conversation.ID)
	if err != nil {
		t.Fatalf("读取最新消息失败: %v", err)
	}
	if last == nil || !strings.Contains(last.Content, "has been removed from the group by") {
		t.Fatalf("应写入移除系统消息, 实际 %+v", last)
	}
}

func TestArchiveCascades(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	if err := env.conversations.Archive(conversation.ID, alice.ID); err != nil {
		t.Fatalf("归档失败: %v", err)
	}

	if c := env.conversation(t, conversation.ID); c.IsActive {
		t.Fatal("归档后会话应停用")
	}
	for _, id := range []uint{alice.ID, bob.ID} {
		if p := env.participant(t, conversation.ID, id); p.IsActive {
			t.Fatalf("归档后成员 %d 应级联停用", id)
		}
	}

	// 归档会话拒绝新消息
	_, err := env.messages.Send(conversation.ID, alice.ID, "anyone here?", "", "")
	if apperr.KindOf(err) != apperr.KindPolicyViolation {
		t.Fatalf("向归档会话发消息应被拒绝, 实际 %v", err)
	}

	// 重复归档幂等
	if err := env.conversations.Archive(conversation.ID, alice.ID); err != nil {
		t.Fatalf("重复归档应为幂等成功: %v", err)
	}
}

func TestArchiveRequiresAdmin(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	err := env.conversations.Archive(conversation.ID, bob.ID)
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("非管理员归档应被拒绝, 实际 %v", err)
	}
}

func TestUpdateGroupInfo(t *testing.T) {
	env := newTestEnv(t)
	alice := env.createUser(t, "alice")
	bob := env.createUser(t, "bob")

	conversation := env.createGroup(t, alice.ID, bob.ID)

	updated, err := env.conversations.UpdateGroupInfo(conversation.ID, alice.ID, "renamed", "new description", "")
	if err != nil {
		t.Fatalf("更新群资料失败: %v", err)
	}
	if updated.Name != "renamed" || updated.Description != "new description" {
		t.Fatalf("群资料未更新: %+v", updated)
	}

	// 非管理员被拒
	_, err = env.conversations.UpdateGroupInfo(conversation.ID, bob.ID, "hijacked", "", "")
	if apperr.KindOf(err) != apperr.KindUnauthorized {
		t.Fatalf("非管理员更新群资料应被拒绝, 实际 %v", err)
	}
}
