package peer

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

var ErrMalformedMessage = errors.New("malformed peer message")

type MessageID uint8

const (
	Choke MessageID = iota
	Unchoke
	Interested
	NotInterested
	Have
	BitfieldID
	Request
	Piece
	Cancel
)

const (
	lengthPrefixSize = 4
	messageIDSize    = 1

	// One megabyte of block data plus the piece message header.
	maxMessageLength = 1<<20 + 9
)

func (id MessageID) String() string {
	switch id {
	case Choke:
		return "choke"
	case Unchoke:
		return "unchoke"
	case Interested:
		return "interested"
	case NotInterested:
		return "not interested"
	case Have:
		return "have"
	case BitfieldID:
		return "bitfield"
	case Request:
		return "request"
	case Piece:
		return "piece"
	case Cancel:
		return "cancel"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(id))
	}
}

// Message is a single framed peer message. A keep-alive has no id and is
// represented by a nil *Message.
type Message struct {
	ID      MessageID
	Payload []byte
}

func (m *Message) KeepAlive() bool {
	return m == nil
}

func (m *Message) String() string {
	if m == nil {
		return "keep-alive"
	}

	return fmt.Sprintf("%s [%d bytes]", m.ID, len(m.Payload))
}

func (m *Message) serialize() []byte {
	if m == nil {
		return make([]byte, lengthPrefixSize)
	}

	messageLength := messageIDSize + len(m.Payload)
	messageBuffer := make([]byte, lengthPrefixSize+messageLength)

	binary.BigEndian.PutUint32(messageBuffer, uint32(messageLength))
	messageBuffer[lengthPrefixSize] = byte(m.ID)
	copy(messageBuffer[lengthPrefixSize+messageIDSize:], m.Payload)

	return messageBuffer
}

func readBuffer(r io.Reader, buffer []byte) error {
	if _, err := io.ReadFull(r, buffer); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return fmt.Errorf("%w: remote peer closed the connection", ErrConnectionLost)
		}

		return fmt.Errorf("%w: failed to read from connection: %w", ErrConnectionLost, err)
	}

	return nil
}

// ReadMessage reads one length-prefixed message. It returns a nil message
// for a keep-alive.
func ReadMessage(r io.Reader) (*Message, error) {
	messageLengthBuffer := make([]byte, lengthPrefixSize)

	if err := readBuffer(r, messageLengthBuffer); err != nil {
		return nil, err
	}

	messageLength := binary.BigEndian.Uint32(messageLengthBuffer)

	if messageLength == 0 {
		return nil, nil
	}

	if messageLength > maxMessageLength {
		return nil, fmt.Errorf("%w: message length %d exceeds maximum allowed length %d", ErrMalformedMessage, messageLength, maxMessageLength)
	}

	messageBuffer := make([]byte, messageLength)

	if err := readBuffer(r, messageBuffer); err != nil {
		return nil, err
	}

	return &Message{
		ID:      MessageID(messageBuffer[0]),
		Payload: messageBuffer[1:],
	}, nil
}

// WriteMessage frames msg and writes it in a single call. A nil msg is sent
// as a keep-alive.
func WriteMessage(w io.Writer, msg *Message) error {
	if _, err := w.Write(msg.serialize()); err != nil {
		return fmt.Errorf("%w: failed to write '%s' message: %w", ErrConnectionLost, msg, err)
	}

	return nil
}

func NewInterested() *Message {
	return &Message{ID: Interested}
}

func NewRequest(index, begin, length int) *Message {
	payload := make([]byte, 12)

	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))
	binary.BigEndian.PutUint32(payload[8:12], uint32(length))

	return &Message{ID: Request, Payload: payload}
}

func NewHave(index int) *Message {
	payload := make([]byte, 4)
	binary.BigEndian.PutUint32(payload, uint32(index))

	return &Message{ID: Have, Payload: payload}
}

// ParseRequest is the inverse of NewRequest.
func ParseRequest(msg *Message) (index, begin, length int, err error) {
	if msg == nil || msg.ID != Request {
		return 0, 0, 0, fmt.Errorf("%w: expected '%s' message, but got '%s'", ErrMalformedMessage, Request, msg)
	}

	if len(msg.Payload) != 12 {
		return 0, 0, 0, fmt.Errorf("%w: request payload must be 12 bytes, but got %d", ErrMalformedMessage, len(msg.Payload))
	}

	index = int(binary.BigEndian.Uint32(msg.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(msg.Payload[4:8]))
	length = int(binary.BigEndian.Uint32(msg.Payload[8:12]))

	return index, begin, length, nil
}

// ParsePiece splits a piece message into its index, offset and block data.
// The block aliases the message payload.
func ParsePiece(msg *Message) (index, begin int, block []byte, err error) {
	if msg == nil || msg.ID != Piece {
		return 0, 0, nil, fmt.Errorf("%w: expected '%s' message, but got '%s'", ErrMalformedMessage, Piece, msg)
	}

	if len(msg.Payload) < 8 {
		return 0, 0, nil, fmt.Errorf("%w: piece payload is too short: %d bytes", ErrMalformedMessage, len(msg.Payload))
	}

	index = int(binary.BigEndian.Uint32(msg.Payload[0:4]))
	begin = int(binary.BigEndian.Uint32(msg.Payload[4:8]))

	return index, begin, msg.Payload[8:], nil
}

func ParseHave(msg *Message) (int, error) {
	if msg == nil || msg.ID != Have {
		return 0, fmt.Errorf("%w: expected '%s' message, but got '%s'", ErrMalformedMessage, Have, msg)
	}

	if len(msg.Payload) != 4 {
		return 0, fmt.Errorf("%w: have payload must be 4 bytes, but got %d", ErrMalformedMessage, len(msg.Payload))
	}

	return int(binary.BigEndian.Uint32(msg.Payload)), nil
}

// Bitfield marks the pieces a peer holds, most significant bit first.
type Bitfield []byte

func (b Bitfield) HasPiece(index int) bool {
	byteIndex := index / 8

	if index < 0 || byteIndex >= len(b) {
		return false
	}

	return b[byteIndex]>>(7-index%8)&1 != 0
}

func (b Bitfield) SetPiece(index int) {
	byteIndex := index / 8

	if index < 0 || byteIndex >= len(b) {
		return
	}

	b[byteIndex] |= 1 << (7 - index%8)
}
