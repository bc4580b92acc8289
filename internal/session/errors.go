// internal/session/errors.go
package session

import (
	"errors"
	"fmt"

	"smppgw/internal/protocol"
)

// 会话错误
var (
	ErrConnectionClosed = errors.New("smpp: 连接已关闭")
	ErrResponseTimeout  = errors.New("smpp: 等待响应超时")
	ErrPoolClosed       = errors.New("smpp: 请求处理池已关闭")
	ErrPoolFull         = errors.New("smpp: 请求处理队列已满")
	ErrKeepaliveFailed  = errors.New("smpp: 链路检测连续失败")
	ErrTooManyPending   = errors.New("smpp: 未完成请求数已达上限")
	ErrBindTimeout      = errors.New("smpp: 等待绑定超时")
)

// IllegalStateError 当前状态下不允许的操作
type IllegalStateError struct {
	State   State
	Command protocol.CommandID
	Op      string
}

func (e *IllegalStateError) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("状态%s下不允许%s", e.State, e.Op)
	}
	return fmt.Sprintf("状态%s下不允许%s", e.State, e.Command)
}

// NegativeResponseError 对端返回非零状态
type NegativeResponseError struct {
	Command protocol.CommandID
	Status  protocol.CommandStatus
}

func (e *NegativeResponseError) Error() string {
	return fmt.Sprintf("%s 返回错误状态 %s(0x%08X)", e.Command, e.Status, uint32(e.Status))
}

// InvalidResponseError 响应命令与请求不匹配
type InvalidResponseError struct {
	Sequence uint32
	Expected protocol.CommandID
	Got      protocol.CommandID
}

func (e *InvalidResponseError) Error() string {
	return fmt.Sprintf("序列号%d期望%s，收到%s", e.Sequence, e.Expected, e.Got)
}

// ProcessRequestError 处理请求失败，Status作为负响应的状态码
type ProcessRequestError struct {
	Status protocol.CommandStatus
	Err    error
}

// NewProcessRequestError 创建带状态码的处理错误
func NewProcessRequestError(status protocol.CommandStatus, err error) *ProcessRequestError {
	return &ProcessRequestError{Status: status, Err: err}
}

func (e *ProcessRequestError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("处理请求失败(%s): %v", e.Status, e.Err)
	}
	return fmt.Sprintf("处理请求失败(%s)", e.Status)
}

func (e *ProcessRequestError) Unwrap() error {
	return e.Err
}

// StatusOf 返回错误对应的负响应状态码
func StatusOf(err error) protocol.CommandStatus {
	var pe *ProcessRequestError
	if errors.As(err, &pe) && pe.Status != protocol.ESME_ROK {
		return pe.Status
	}
	var ie *IllegalStateError
	if errors.As(err, &ie) {
		return protocol.ESME_RINVBNDSTS
	}
	return protocol.ESME_RSYSERR
}
