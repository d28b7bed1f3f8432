package apperr

import (
	"errors"
)

// Kind 错误分类
// 引擎内所有业务错误归入四类，由交付层统一翻译成响应
type Kind int

const (
	KindInternal        Kind = iota // 未分类的内部错误
	KindNotFound                    // 引用的会话/消息/成员不存在
	KindUnauthorized                // 操作者缺少所需角色（非成员/非发送者/非管理员）
	KindPolicyViolation             // 操作会破坏不变式（最后管理员、编辑已删除消息等）
	KindValidation                  // 输入不合法（必填内容为空、附件超限等）
)

// Error 业务错误
// Err 保留底层原因，便于日志与 errors.Is/As 链式判断
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// NotFound 资源不存在
func NotFound(message string) error {
	return &Error{Kind: KindNotFound, Message: message}
}

// Unauthorized 无权执行该操作
func Unauthorized(message string) error {
	return &Error{Kind: KindUnauthorized, Message: message}
}

// PolicyViolation 违反业务不变式
func PolicyViolation(message string) error {
	return &Error{Kind: KindPolicyViolation, Message: message}
}

// Validation 输入校验失败
func Validation(message string) error {
	return &Error{Kind: KindValidation, Message: message}
}

// Internal 包装内部错误
func Internal(message string, err error) error {
	return &Error{Kind: KindInternal, Message: message, Err: err}
}

// KindOf 提取错误分类，非业务错误一律视为内部错误
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// Is 判断错误是否属于指定分类
func Is(err error, kind Kind) bool {
	return err != nil && KindOf(err) == kind
}
