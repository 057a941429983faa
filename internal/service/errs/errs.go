package errs

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind 业务错误类别
type Kind int

const (
	KindNotFound     Kind = iota // 资源不存在
	KindForbidden                // 无权执行该操作
	KindInvalidState             // 对象当前状态不允许该操作
	KindValidation               // 输入不合法
	KindBusiness                 // 业务规则不满足（额度不足、超出上限等）
)

// String 类别的线上标识，用于API响应中的机器可读错误码
func (k Kind) String() string {
	switch k {
	case KindNotFound:
		return "not_found"
	case KindForbidden:
		return "forbidden"
	case KindInvalidState:
		return "invalid_state"
	case KindValidation:
		return "validation"
	case KindBusiness:
		return "business"
	default:
		return "internal"
	}
}

// Error 带类别的业务错误
// service 层返回它，handler 层用 HTTPStatus 映射到响应码
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// HTTPStatus 类别到HTTP状态码的映射
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindNotFound:
		return http.StatusNotFound
	case KindForbidden:
		return http.StatusForbidden
	case KindInvalidState:
		return http.StatusConflict
	case KindValidation, KindBusiness:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func NotFound(format string, args ...interface{}) *Error {
	return &Error{Kind: KindNotFound, Message: fmt.Sprintf(format, args...)}
}

func Forbidden(format string, args ...interface{}) *Error {
	return &Error{Kind: KindForbidden, Message: fmt.Sprintf(format, args...)}
}

func InvalidState(format string, args ...interface{}) *Error {
	return &Error{Kind: KindInvalidState, Message: fmt.Sprintf(format, args...)}
}

func Validation(format string, args ...interface{}) *Error {
	return &Error{Kind: KindValidation, Message: fmt.Sprintf(format, args...)}
}

func Business(format string, args ...interface{}) *Error {
	return &Error{Kind: KindBusiness, Message: fmt.Sprintf(format, args...)}
}

// Wrap 包装底层错误并附加类别
func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// StatusOf 提取错误对应的HTTP状态码，非业务错误返回500
func StatusOf(err error) int {
	var be *Error
	if errors.As(err, &be) {
		return be.HTTPStatus()
	}
	return http.StatusInternalServerError
}

// IsKind 判断错误是否属于某个类别
func IsKind(err error, kind Kind) bool {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind == kind
	}
	return false
}

// KindOf 提取错误的类别，非业务错误返回 false
func KindOf(err error) (Kind, bool) {
	var be *Error
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}
