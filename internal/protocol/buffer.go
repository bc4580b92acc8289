package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// writer 消息体字段编码器，首个错误之后的写入全部忽略
type writer struct {
	buf bytes.Buffer
	id  CommandID
	err error
}

func (w *writer) byte(b byte) {
	if w.err == nil {
		w.buf.WriteByte(b)
	}
}

func (w *writer) uint16(v uint16) {
	if w.err == nil {
		var b [2]byte
		binary.BigEndian.PutUint16(b[:], v)
		w.buf.Write(b[:])
	}
}

// cstring 写入以空字节结尾的字符串，max含结尾空字节
func (w *writer) cstring(field, s string, max int) {
	if w.err != nil {
		return
	}
	if len(s)+1 > max {
		w.err = &EncodeError{Command: w.id, Field: field, Reason: fmt.Sprintf("长度%d超过上限%d", len(s), max-1)}
		return
	}
	if bytes.IndexByte([]byte(s), 0) >= 0 {
		w.err = &EncodeError{Command: w.id, Field: field, Reason: "包含空字节"}
		return
	}
	w.buf.WriteString(s)
	w.buf.WriteByte(0)
}

// octets 写入定长字节串，长度由调用方单独编码
func (w *writer) octets(b []byte) {
	if w.err == nil {
		w.buf.Write(b)
	}
}

func (w *writer) address(field string, a Address, max int) {
	w.byte(a.TON)
	w.byte(a.NPI)
	w.cstring(field, a.Addr, max)
}

// reader 消息体字段解码器
type reader struct {
	buf []byte
	pos int
}

func (r *reader) remaining() int {
	return len(r.buf) - r.pos
}

func (r *reader) rest() []byte {
	if r.remaining() == 0 {
		return nil
	}
	b := append([]byte(nil), r.buf[r.pos:]...)
	r.pos = len(r.buf)
	return b
}

func (r *reader) byte(field string) (byte, error) {
	if r.remaining() < 1 {
		return 0, &FramingError{Field: field, Reason: "数据截断"}
	}
	b := r.buf[r.pos]
	r.pos++
	return b, nil
}

func (r *reader) uint16(field string) (uint16, error) {
	if r.remaining() < 2 {
		return 0, &FramingError{Field: field, Reason: "数据截断"}
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos:])
	r.pos += 2
	return v, nil
}

// cstring 读取空字节结尾的字符串，max含结尾空字节
func (r *reader) cstring(field string, max int) (string, error) {
	limit := r.remaining()
	if limit > max {
		limit = max
	}
	idx := bytes.IndexByte(r.buf[r.pos:r.pos+limit], 0)
	if idx < 0 {
		return "", &FramingError{Field: field, Reason: fmt.Sprintf("%d字节内没有结束符", max)}
	}
	s := string(r.buf[r.pos : r.pos+idx])
	r.pos += idx + 1
	return s, nil
}

func (r *reader) octets(field string, n int) ([]byte, error) {
	if r.remaining() < n {
		return nil, &FramingError{Field: field, Reason: fmt.Sprintf("需要%d字节，剩余%d字节", n, r.remaining())}
	}
	// 零长度字段解码为空切片而不是nil
	b := append([]byte{}, r.buf[r.pos:r.pos+n]...)
	r.pos += n
	return b, nil
}

func (r *reader) address(field string, max int) (Address, error) {
	var (
		a   Address
		err error
	)
	if a.TON, err = r.byte(field + "_ton"); err != nil {
		return a, err
	}
	if a.NPI, err = r.byte(field + "_npi"); err != nil {
		return a, err
	}
	a.Addr, err = r.cstring(field, max)
	return a, err
}
