package transport

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/emedia-lab/hermes/errors"
)

// ControlKind identifies the type of a control-plane message (spec.md §6).
type ControlKind uint8

const (
	Announce ControlKind = iota + 1
	SyncProbe
	SyncReply
	SyncOK
	Ready
	Start
	Drain
	Stop
	Status
	ErrorKind
)

func (k ControlKind) String() string {
	switch k {
	case Announce:
		return "ANNOUNCE"
	case SyncProbe:
		return "SYNC_PROBE"
	case SyncReply:
		return "SYNC_REPLY"
	case SyncOK:
		return "SYNC_OK"
	case Ready:
		return "READY"
	case Start:
		return "START"
	case Drain:
		return "DRAIN"
	case Stop:
		return "STOP"
	case Status:
		return "STATUS"
	case ErrorKind:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

// ControlMessage is a single control-plane message: {sender_id,
// monotonic_ns, payload}, typed by Kind (spec.md §6).
type ControlMessage struct {
	Kind        ControlKind
	SenderID    string
	MonotonicNS int64
	Payload     []byte
}

// EncodeControl serializes m as a length-prefixed frame:
// [uint32 total_len][uint8 kind][uint64 monotonic_ns][uint16 sender_len][sender_id][payload].
func EncodeControl(m ControlMessage) ([]byte, error) {
	if m.SenderID == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "transport", "EncodeControl", "sender_id cannot be empty")
	}
	if len(m.SenderID) > 0xFFFF {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "transport", "EncodeControl", "sender_id too long")
	}

	var body bytes.Buffer
	body.WriteByte(byte(m.Kind))
	var monoBuf [8]byte
	binary.BigEndian.PutUint64(monoBuf[:], uint64(m.MonotonicNS))
	body.Write(monoBuf[:])
	var senderLen [2]byte
	binary.BigEndian.PutUint16(senderLen[:], uint16(len(m.SenderID)))
	body.Write(senderLen[:])
	body.WriteString(m.SenderID)
	body.Write(m.Payload)

	frame := make([]byte, 4+body.Len())
	binary.BigEndian.PutUint32(frame[:4], uint32(body.Len()))
	copy(frame[4:], body.Bytes())
	return frame, nil
}

// DecodeControl reads one length-prefixed control frame from r.
func DecodeControl(r io.Reader) (ControlMessage, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return ControlMessage{}, err
	}
	bodyLen := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return ControlMessage{}, err
	}
	return parseControlBody(body)
}

func parseControlBody(body []byte) (ControlMessage, error) {
	if len(body) < 1+8+2 {
		return ControlMessage{}, errors.WrapInvalid(errors.ErrInvalidData, "transport", "DecodeControl", "frame too short")
	}
	kind := ControlKind(body[0])
	monotonicNS := int64(binary.BigEndian.Uint64(body[1:9]))
	senderLen := int(binary.BigEndian.Uint16(body[9:11]))
	if len(body) < 11+senderLen {
		return ControlMessage{}, errors.WrapInvalid(errors.ErrInvalidData, "transport", "DecodeControl", "truncated sender_id")
	}
	senderID := string(body[11 : 11+senderLen])
	payload := body[11+senderLen:]
	return ControlMessage{
		Kind:        kind,
		SenderID:    senderID,
		MonotonicNS: monotonicNS,
		Payload:     payload,
	}, nil
}

// DataEnvelope is one data-plane frame: {topic, publisher_id, seq,
// reference_ts_ns, payload_len, payload_bytes} (spec.md §6).
type DataEnvelope struct {
	Topic         string
	PublisherID   string
	Seq           uint64
	ReferenceTSNS int64
	Payload       []byte
}

// EncodeData serializes e as a length-prefixed frame:
// [uint32 total_len][uint16 topic_len][topic][uint16 pub_len][publisher_id][uint64 seq][int64 reference_ts_ns][uint32 payload_len][payload].
func EncodeData(e DataEnvelope) ([]byte, error) {
	if e.Topic == "" {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "transport", "EncodeData", "topic cannot be empty")
	}
	if len(e.Topic) > 0xFFFF || len(e.PublisherID) > 0xFFFF {
		return nil, errors.WrapInvalid(errors.ErrInvalidData, "transport", "EncodeData", "topic or publisher_id too long")
	}

	var body bytes.Buffer
	writeU16String(&body, e.Topic)
	writeU16String(&body, e.PublisherID)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], e.Seq)
	body.Write(seqBuf[:])
	var tsBuf [8]byte
	binary.BigEndian.PutUint64(tsBuf[:], uint64(e.ReferenceTSNS))
	body.Write(tsBuf[:])
	var payloadLen [4]byte
	binary.BigEndian.PutUint32(payloadLen[:], uint32(len(e.Payload)))
	body.Write(payloadLen[:])
	body.Write(e.Payload)

	frame := make([]byte, 4+body.Len())
	binary.BigEndian.PutUint32(frame[:4], uint32(body.Len()))
	copy(frame[4:], body.Bytes())
	return frame, nil
}

// DecodeData reads one length-prefixed data frame from r.
func DecodeData(r io.Reader) (DataEnvelope, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return DataEnvelope{}, err
	}
	bodyLen := binary.BigEndian.Uint32(lenBuf[:])
	body := make([]byte, bodyLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return DataEnvelope{}, err
	}
	return parseDataBody(body)
}

func parseDataBody(body []byte) (DataEnvelope, error) {
	buf := bytes.NewReader(body)

	topic, err := readU16String(buf)
	if err != nil {
		return DataEnvelope{}, errors.WrapInvalid(err, "transport", "DecodeData", "topic")
	}
	publisherID, err := readU16String(buf)
	if err != nil {
		return DataEnvelope{}, errors.WrapInvalid(err, "transport", "DecodeData", "publisher_id")
	}

	var seqBuf, tsBuf [8]byte
	if _, err := io.ReadFull(buf, seqBuf[:]); err != nil {
		return DataEnvelope{}, errors.WrapInvalid(err, "transport", "DecodeData", "seq")
	}
	if _, err := io.ReadFull(buf, tsBuf[:]); err != nil {
		return DataEnvelope{}, errors.WrapInvalid(err, "transport", "DecodeData", "reference_ts_ns")
	}

	var payloadLenBuf [4]byte
	if _, err := io.ReadFull(buf, payloadLenBuf[:]); err != nil {
		return DataEnvelope{}, errors.WrapInvalid(err, "transport", "DecodeData", "payload_len")
	}
	payloadLen := binary.BigEndian.Uint32(payloadLenBuf[:])
	payload := make([]byte, payloadLen)
	if _, err := io.ReadFull(buf, payload); err != nil {
		return DataEnvelope{}, errors.WrapInvalid(err, "transport", "DecodeData", "payload")
	}

	return DataEnvelope{
		Topic:         topic,
		PublisherID:   publisherID,
		Seq:           binary.BigEndian.Uint64(seqBuf[:]),
		ReferenceTSNS: int64(binary.BigEndian.Uint64(tsBuf[:])),
		Payload:       payload,
	}, nil
}

func writeU16String(buf *bytes.Buffer, s string) {
	var lenBuf [2]byte
	binary.BigEndian.PutUint16(lenBuf[:], uint16(len(s)))
	buf.Write(lenBuf[:])
	buf.WriteString(s)
}

func readU16String(r io.Reader) (string, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return "", err
	}
	n := binary.BigEndian.Uint16(lenBuf[:])
	s := make([]byte, n)
	if _, err := io.ReadFull(r, s); err != nil {
		return "", err
	}
	return string(s), nil
}
