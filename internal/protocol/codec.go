// internal/protocol/codec.go  编解码
package protocol

import (
	"fmt"
	"io"
)

// Encode 编码PDU，command_id与command_length由消息体和实际长度决定
func Encode(p *PDU) ([]byte, error) {
	if p.Body == nil {
		return nil, &EncodeError{Command: p.CommandID, Field: "body", Reason: "消息体为空"}
	}
	p.CommandID = p.Body.CommandID()

	w := &writer{id: p.CommandID}
	w.buf.Write(make([]byte, HeaderLength))
	p.Body.marshal(w)
	writeTLVs(w, p.Optional)
	if w.err != nil {
		return nil, w.err
	}

	data := w.buf.Bytes()
	p.CommandLength = uint32(len(data))
	p.Header.put(data)
	return data, nil
}

// Decode 解码一个完整的帧，maxLen为0时使用默认上限
func Decode(frame []byte, maxLen uint32) (*PDU, error) {
	if maxLen == 0 {
		maxLen = DefaultMaxFrameSize
	}
	h, err := ParseHeader(frame)
	if err != nil {
		return nil, err
	}
	if err := checkLength(&h, maxLen); err != nil {
		return nil, err
	}
	if int(h.CommandLength) != len(frame) {
		return nil, &FramingError{
			Header: &h,
			Field:  "command_length",
			Reason: fmt.Sprintf("声明长度%d与实际长度%d不符", h.CommandLength, len(frame)),
		}
	}

	p := &PDU{Header: h, Body: NewBody(h.CommandID)}
	r := &reader{buf: frame[HeaderLength:]}

	// 负响应通常不带消息体
	if r.remaining() == 0 && h.CommandID.IsResponse() {
		return p, nil
	}
	if err := p.Body.unmarshal(r); err != nil {
		return nil, withHeader(err, &h)
	}
	if p.Optional, err = readTLVs(r); err != nil {
		return nil, withHeader(err, &h)
	}
	return p, nil
}

// ReadFrame 从r读取一个完整的帧，先读头部再按command_length读消息体
func ReadFrame(r io.Reader, maxLen uint32) ([]byte, error) {
	if maxLen == 0 {
		maxLen = DefaultMaxFrameSize
	}
	var head [HeaderLength]byte
	if _, err := io.ReadFull(r, head[:]); err != nil {
		return nil, err
	}
	h, _ := ParseHeader(head[:])
	if err := checkLength(&h, maxLen); err != nil {
		return nil, err
	}

	frame := make([]byte, h.CommandLength)
	copy(frame, head[:])
	if _, err := io.ReadFull(r, frame[HeaderLength:]); err != nil {
		if err == io.EOF {
			err = io.ErrUnexpectedEOF
		}
		return nil, err
	}
	return frame, nil
}

// WriteFrame 编码并写出PDU
func WriteFrame(w io.Writer, p *PDU) error {
	data, err := Encode(p)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

func checkLength(h *Header, maxLen uint32) error {
	if h.CommandLength < HeaderLength {
		return &FramingError{Header: h, Field: "command_length", Reason: fmt.Sprintf("长度%d小于头部长度", h.CommandLength)}
	}
	if h.CommandLength > maxLen {
		return &FramingError{Header: h, Field: "command_length", Reason: fmt.Sprintf("长度%d超过上限%d", h.CommandLength, maxLen)}
	}
	return nil
}

func withHeader(err error, h *Header) error {
	if fe, ok := err.(*FramingError); ok && fe.Header == nil {
		fe.Header = h
	}
	return err
}
