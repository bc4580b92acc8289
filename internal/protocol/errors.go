package protocol

import (
	"errors"
	"fmt"
)

// ErrFraming 所有帧格式错误的根错误，可用errors.Is判断
var ErrFraming = errors.New("smpp: framing error")

// FramingError 帧格式错误，对连接是致命的
type FramingError struct {
	Header *Header // 已解析出的头部，头部本身不完整时为nil
	Field  string
	Reason string
}

func (e *FramingError) Error() string {
	msg := "帧格式错误"
	if e.Header != nil {
		msg += " [" + e.Header.String() + "]"
	}
	if e.Field != "" {
		msg += " 字段" + e.Field
	}
	return msg + ": " + e.Reason
}

// Unwrap 支持errors.Is(err, ErrFraming)
func (e *FramingError) Unwrap() error {
	return ErrFraming
}

// EncodeError 编码失败，例如字段超长
type EncodeError struct {
	Command CommandID
	Field   string
	Reason  string
}

func (e *EncodeError) Error() string {
	return fmt.Sprintf("编码%s失败: 字段%s %s", e.Command, e.Field, e.Reason)
}
