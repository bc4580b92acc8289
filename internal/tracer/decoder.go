// internal/tracer/decoder.go
package tracer

import (
	"encoding/hex"
	"strings"
	"unicode/utf16"
	"unicode/utf8"
)

// data_coding取值
const (
	codingDefault = 0x00 // SMSC默认字母表，按GSM 03.38处理
	codingIA5     = 0x01
	codingBinary  = 0x02
	codingLatin1  = 0x03
	codingBinary2 = 0x04
	codingUCS2    = 0x08
)

const gsm7Escape = 0x1B

// GSM 03.38基本字符表，按septet值索引
var gsm7Basic = []rune("@£$¥èéùìòÇ\nØø\rÅåΔ_ΦΓΛΩΠΨΣΘΞ\x1bÆæßÉ !\"#¤%&'()*+,-./0123456789:;<=>?" +
	"¡ABCDEFGHIJKLMNOPQRSTUVWXYZÄÖÑÜ§¿abcdefghijklmnopqrstuvwxyzäöñüà")

// 0x1B之后的扩展字符
var gsm7Extension = map[byte]rune{
	0x0A: '\f', 0x14: '^', 0x28: '{', 0x29: '}', 0x2F: '\\',
	0x3C: '[', 0x3D: '~', 0x3E: ']', 0x40: '|', 0x65: '€',
}

// DecodeContent 按data_coding把短信内容转成可读文本。
// udhi为true时先跳过用户数据头。无法识别的编码以HEX:前缀输出十六进制。
func DecodeContent(data []byte, dataCoding byte, udhi bool) string {
	if udhi && len(data) > 0 {
		n := int(data[0]) + 1
		if n > len(data) {
			return "HEX:" + strings.ToUpper(hex.EncodeToString(data))
		}
		data = data[n:]
	}

	switch dataCoding {
	case codingDefault:
		return DecodeGSM7(data)
	case codingIA5:
		return decodeASCII(data)
	case codingLatin1:
		return decodeLatin1(data)
	case codingUCS2:
		return DecodeUCS2(data)
	case codingBinary, codingBinary2:
		return "HEX:" + strings.ToUpper(hex.EncodeToString(data))
	}

	// 其余编码内容是合法UTF-8时原样输出
	if utf8.Valid(data) {
		return string(data)
	}
	return "HEX:" + strings.ToUpper(hex.EncodeToString(data))
}

// DecodeGSM7 解码未压缩的GSM7内容，每字节一个septet
func DecodeGSM7(data []byte) string {
	var b strings.Builder
	b.Grow(len(data))

	for i := 0; i < len(data); i++ {
		c := data[i] & 0x7F
		if c == gsm7Escape && i+1 < len(data) {
			if r, ok := gsm7Extension[data[i+1]&0x7F]; ok {
				b.WriteRune(r)
				i++
				continue
			}
		}
		if c == gsm7Escape {
			b.WriteRune(' ')
			continue
		}
		b.WriteRune(gsm7Basic[c])
	}
	return b.String()
}

// DecodeUCS2 解码大端UCS2/UTF-16内容，奇数长度时丢弃最后一个字节
func DecodeUCS2(data []byte) string {
	if len(data) >= 2 && data[0] == 0xFE && data[1] == 0xFF {
		data = data[2:]
	}
	u16 := make([]uint16, len(data)/2)
	for i := range u16 {
		u16[i] = uint16(data[2*i])<<8 | uint16(data[2*i+1])
	}
	return string(utf16.Decode(u16))
}

func decodeASCII(data []byte) string {
	var b strings.Builder
	for _, c := range data {
		if c < 0x80 {
			b.WriteByte(c)
		} else {
			b.WriteRune(utf8.RuneError)
		}
	}
	return b.String()
}

func decodeLatin1(data []byte) string {
	r := make([]rune, len(data))
	for i, c := range data {
		r[i] = rune(c)
	}
	return string(r)
}
