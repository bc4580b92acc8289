package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"reflect"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	tests := []struct {
		name string
		pdu  *PDU
	}{
		{"bind_transceiver", NewRequest(1, &Bind{
			Type:             BindTransceiver,
			SystemID:         "sys",
			Password:         "pw",
			SystemType:       "VMA",
			InterfaceVersion: IF_VERSION_34,
			AddrTON:          1,
			AddrNPI:          1,
		})},
		{"bind_resp", &PDU{
			Header:   Header{CommandID: BIND_RECEIVER_RESP, SequenceNumber: 2},
			Body:     &BindResp{Type: BindReceiver, SystemID: "smsc"},
			Optional: []TLV{Uint8TLV(TagScInterfaceVersion, 0x34)},
		}},
		{"submit_sm", NewRequest(3, &SubmitSM{MessageFields{
			ServiceType:        "CMT",
			Source:             Address{TON: 5, NPI: 0, Addr: "INFO"},
			Dest:               Address{TON: 1, NPI: 1, Addr: "8613800000000"},
			RegisteredDelivery: 1,
			DataCoding:         8,
			ShortMessage:       []byte("hello"),
		}})},
		{"submit_multi", NewRequest(4, &SubmitMulti{
			Source: Address{Addr: "100"},
			Dests: []Destination{
				{Flag: DestFlagSMEAddress, Address: Address{TON: 1, NPI: 1, Addr: "200"}},
				{Flag: DestFlagDistributionList, DLName: "staff"},
			},
			ShortMessage: []byte("x"),
		})},
		{"submit_multi_resp", &PDU{
			Header: Header{CommandID: SUBMIT_MULTI_RESP, SequenceNumber: 4},
			Body: &SubmitMultiResp{MessageID: "m1", Unsuccess: []UnsuccessSME{
				{Address: Address{TON: 1, NPI: 1, Addr: "200"}, Status: ESME_RINVDSTADR},
			}},
		}},
		{"query_sm_resp", &PDU{
			Header: Header{CommandID: QUERY_SM_RESP, SequenceNumber: 5},
			Body:   &QuerySMResp{MessageID: "m1", FinalDate: "", MessageState: 2},
		}},
		{"data_sm", &PDU{
			Header:   Header{CommandID: DATA_SM, SequenceNumber: 6},
			Body:     &DataSM{Source: Address{Addr: "a"}, Dest: Address{Addr: "b"}},
			Optional: []TLV{{Tag: TagMessagePayload, Value: bytes.Repeat([]byte{'z'}, 300)}},
		}},
		{"alert_notification", NewRequest(7, &AlertNotification{
			Source: Address{TON: 1, NPI: 1, Addr: "123"},
			ESME:   Address{Addr: "esme"},
		})},
		{"enquire_link", NewRequest(8, &EnquireLink{})},
		{"empty_short_message", NewRequest(10, &SubmitSM{MessageFields{
			Dest:         Address{Addr: "200"},
			ShortMessage: []byte{},
		}})},
		{"unknown_tlv", &PDU{
			Header:   Header{CommandID: DELIVER_SM, SequenceNumber: 9},
			Body:     &DeliverSM{MessageFields{ShortMessage: []byte("id:1")}},
			Optional: []TLV{{Tag: 0x1401, Value: []byte{1, 2, 3}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.pdu)
			if err != nil {
				t.Fatalf("Encode: %v", err)
			}
			if got := binary.BigEndian.Uint32(data); int(got) != len(data) {
				t.Fatalf("command_length = %d, frame is %d bytes", got, len(data))
			}

			got, err := Decode(data, 0)
			if err != nil {
				t.Fatalf("Decode: %v", err)
			}
			if !reflect.DeepEqual(got, tt.pdu) {
				t.Errorf("round trip mismatch\n got  %#v\n want %#v", got, tt.pdu)
			}
		})
	}
}

func TestEncodeRejectsOversizedField(t *testing.T) {
	_, err := Encode(NewRequest(1, &Bind{Type: BindTransmitter, SystemID: "0123456789abcdef"}))
	var ee *EncodeError
	if !errors.As(err, &ee) || ee.Field != "system_id" {
		t.Fatalf("expected EncodeError on system_id, got %v", err)
	}
}

func TestDecodeEmptyNegativeResponse(t *testing.T) {
	frame := make([]byte, 16)
	binary.BigEndian.PutUint32(frame[0:], 16)
	binary.BigEndian.PutUint32(frame[4:], uint32(BIND_TRANSMITTER_RESP))
	binary.BigEndian.PutUint32(frame[8:], uint32(ESME_RINVPASWD))
	binary.BigEndian.PutUint32(frame[12:], 7)

	p, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	resp, ok := p.Body.(*BindResp)
	if !ok {
		t.Fatalf("body type %T", p.Body)
	}
	if resp.SystemID != "" || resp.Type != BindTransmitter {
		t.Errorf("unexpected body %+v", resp)
	}
	if p.CommandStatus != ESME_RINVPASWD || p.SequenceNumber != 7 {
		t.Errorf("unexpected header %v", p.Header)
	}
}

func TestDecodeUnknownCommand(t *testing.T) {
	frame := []byte{0, 0, 0, 18, 0, 0, 0x99, 0x99, 0, 0, 0, 0, 0, 0, 0, 3, 0xAB, 0xCD}
	p, err := Decode(frame, 0)
	if err != nil {
		t.Fatalf("unknown command must not be a framing error: %v", err)
	}
	u, ok := p.Body.(*Unknown)
	if !ok {
		t.Fatalf("body type %T", p.Body)
	}
	if u.ID != 0x9999 || !bytes.Equal(u.Data, []byte{0xAB, 0xCD}) {
		t.Errorf("unexpected unknown body %+v", u)
	}
}

func TestDecodeFramingErrors(t *testing.T) {
	valid, err := Encode(NewRequest(1, &SubmitSM{MessageFields{ShortMessage: []byte("hi")}}))
	if err != nil {
		t.Fatal(err)
	}

	tampered := append([]byte(nil), valid...)
	binary.BigEndian.PutUint32(tampered, uint32(len(valid)+4))

	short := append([]byte(nil), valid[:16]...)
	binary.BigEndian.PutUint32(short, 12)

	// bind with system_id lacking a terminator within 16 bytes
	unterminated := []byte{0, 0, 0, 0, 0, 0, 0, 2, 0, 0, 0, 0, 0, 0, 0, 1}
	unterminated = append(unterminated, bytes.Repeat([]byte{'a'}, 20)...)
	binary.BigEndian.PutUint32(unterminated, uint32(len(unterminated)))

	truncatedTLV := append([]byte(nil), valid...)
	truncatedTLV = append(truncatedTLV, 0x04, 0x24, 0x00, 0x10, 'x')
	binary.BigEndian.PutUint32(truncatedTLV, uint32(len(truncatedTLV)))

	tests := []struct {
		name  string
		frame []byte
		max   uint32
	}{
		{"length mismatch", tampered, 0},
		{"length below header", short, 0},
		{"over max", valid, 20},
		{"header truncated", valid[:10], 0},
		{"cstring unterminated", unterminated, 0},
		{"tlv truncated", truncatedTLV, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode(tt.frame, tt.max)
			if !errors.Is(err, ErrFraming) {
				t.Fatalf("expected framing error, got %v", err)
			}
		})
	}
}

func TestReadFrame(t *testing.T) {
	a, _ := Encode(NewRequest(1, &EnquireLink{}))
	b, _ := Encode(NewRequest(2, &Unbind{}))
	r := bytes.NewReader(append(append([]byte(nil), a...), b...))

	for i, want := range [][]byte{a, b} {
		got, err := ReadFrame(r, 0)
		if err != nil {
			t.Fatalf("frame %d: %v", i, err)
		}
		if !bytes.Equal(got, want) {
			t.Errorf("frame %d = %x, want %x", i, got, want)
		}
	}
	if _, err := ReadFrame(r, 0); err != io.EOF {
		t.Errorf("expected io.EOF at end of stream, got %v", err)
	}
}

func TestReadFrameOversize(t *testing.T) {
	head := make([]byte, 16)
	binary.BigEndian.PutUint32(head, 1<<20)
	_, err := ReadFrame(bytes.NewReader(head), 0)
	if !errors.Is(err, ErrFraming) {
		t.Fatalf("expected framing error, got %v", err)
	}
}

func TestNewResponse(t *testing.T) {
	req := NewRequest(42, &Bind{Type: BindReceiver})
	resp := NewResponse(req, ESME_RBINDFAIL, nil)
	if resp.CommandID != BIND_RECEIVER_RESP || resp.SequenceNumber != 42 || resp.CommandStatus != ESME_RBINDFAIL {
		t.Fatalf("unexpected response header %v", resp.Header)
	}
	if b := resp.Body.(*BindResp); b.Type != BindReceiver {
		t.Errorf("bind type = %v", b.Type)
	}

	nack := NewGenericNack(9, ESME_RINVCMDID)
	if nack.CommandID != GENERIC_NACK || nack.SequenceNumber != 9 {
		t.Errorf("unexpected nack %v", nack.Header)
	}
}

func TestCommandIDHelpers(t *testing.T) {
	if !SUBMIT_SM_RESP.IsResponse() || SUBMIT_SM.IsResponse() {
		t.Error("IsResponse")
	}
	if SUBMIT_SM.Response() != SUBMIT_SM_RESP || SUBMIT_SM_RESP.Request() != SUBMIT_SM {
		t.Error("Response/Request")
	}
	if MinVersion(IF_VERSION_34, IF_VERSION_33) != IF_VERSION_33 {
		t.Error("MinVersion")
	}
}

func TestTLVAccessors(t *testing.T) {
	v, err := Uint16TLV(TagSarMsgRefNum, 0x1234).Uint16()
	if err != nil || v != 0x1234 {
		t.Errorf("Uint16 = %x, %v", v, err)
	}
	if _, err := Uint8TLV(TagSarMsgRefNum, 1).Uint16(); err == nil {
		t.Error("expected size error")
	}
	if s := CStringTLV(TagReceiptedMessageID, "abc").CString(); s != "abc" {
		t.Errorf("CString = %q", s)
	}
	if info, ok := LookupTag(TagScInterfaceVersion); !ok || info.Name != "sc_interface_version" {
		t.Errorf("LookupTag = %+v, %v", info, ok)
	}
	if _, ok := LookupTag(0x1401); ok {
		t.Error("vendor tag should not be registered")
	}
}
