// internal/protocol/header.go  # SMPP消息头部
package protocol

import (
	"encoding/binary"
	"fmt"
)

// Header 定义SMPP消息头
type Header struct {
	CommandLength  uint32        // 消息总长度
	CommandID      CommandID     // 命令ID
	CommandStatus  CommandStatus // 状态码
	SequenceNumber uint32        // 序列号
}

// put 把头部写入buf的前16字节
func (h *Header) put(buf []byte) {
	binary.BigEndian.PutUint32(buf[0:4], h.CommandLength)
	binary.BigEndian.PutUint32(buf[4:8], uint32(h.CommandID))
	binary.BigEndian.PutUint32(buf[8:12], uint32(h.CommandStatus))
	binary.BigEndian.PutUint32(buf[12:16], h.SequenceNumber)
}

// ParseHeader 从字节数组解析头部
func ParseHeader(data []byte) (Header, error) {
	if len(data) < HeaderLength {
		return Header{}, &FramingError{Reason: fmt.Sprintf("头部不足%d字节: %d", HeaderLength, len(data))}
	}

	return Header{
		CommandLength:  binary.BigEndian.Uint32(data[0:4]),
		CommandID:      CommandID(binary.BigEndian.Uint32(data[4:8])),
		CommandStatus:  CommandStatus(binary.BigEndian.Uint32(data[8:12])),
		SequenceNumber: binary.BigEndian.Uint32(data[12:16]),
	}, nil
}

// String 返回头部的可读形式
func (h Header) String() string {
	return fmt.Sprintf("%s(len=%d, status=%s, seq=%d)",
		h.CommandID, h.CommandLength, h.CommandStatus, h.SequenceNumber)
}
