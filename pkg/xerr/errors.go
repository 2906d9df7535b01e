package xerr

import (
	"errors"
	"fmt"
)

// 错误码
const (
	OK              = 0
	InvalidOrder    = 400
	NotFound        = 404
	SpreadViolation = 409
	RateLimited     = 429
	EngineBusy      = 503
	Internal        = 500
)

type CodeError struct {
	Code int    `json:"code"`
	Msg  string `json:"msg"`
}

func (e *CodeError) Error() string {
	return fmt.Sprintf("ErrCode:%d, Msg:%s", e.Code, e.Msg)
}

// Is 按错误码比较，errors.Is(err, xerr.NewErrCode(code)) 即可判断类别
func (e *CodeError) Is(target error) bool {
	var t *CodeError
	if !errors.As(target, &t) {
		return false
	}
	return t.Code == e.Code
}

func New(code int, msg string) error {
	return &CodeError{Code: code, Msg: msg}
}

func NewErrCode(code int) error {
	return &CodeError{Code: code, Msg: MapErrMsg(code)}
}

// CodeOf 取出链上第一个错误码；nil 返回 OK，非 CodeError 返回 Internal
func CodeOf(err error) int {
	if err == nil {
		return OK
	}
	var ce *CodeError
	if errors.As(err, &ce) {
		return ce.Code
	}
	return Internal
}

func MapErrMsg(code int) string {
	switch code {
	case OK:
		return "ok"
	case InvalidOrder:
		return "invalid order"
	case NotFound:
		return "order not found"
	case SpreadViolation:
		return "minimum spread violated"
	case RateLimited:
		return "too many requests"
	case EngineBusy:
		return "engine busy"
	case Internal:
		return "internal error"
	default:
		return "unknown error"
	}
}
