package peer

import (
	"bytes"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
)

var (
	ErrHandshakeFailed = errors.New("handshake failed")
	ErrConnectionLost  = errors.New("connection lost")
)

const (
	pstr                = "BitTorrent protocol"
	pstrLen             = len(pstr)
	reservedLen         = 8
	handshakeMessageLen = 1 + pstrLen + reservedLen + sha1.Size + 20
)

type HandshakeState int

const (
	HandshakeInit HandshakeState = iota
	HandshakeSent
	HandshakeValidate
	HandshakeMatched
	HandshakeMismatched
)

func (s HandshakeState) String() string {
	switch s {
	case HandshakeInit:
		return "init"
	case HandshakeSent:
		return "sent"
	case HandshakeValidate:
		return "validate"
	case HandshakeMatched:
		return "matched"
	case HandshakeMismatched:
		return "mismatched"
	default:
		return fmt.Sprintf("HandshakeState(%d)", int(s))
	}
}

type handshakeEvent int

const (
	handshakeWritten handshakeEvent = iota
	handshakeReceived
	handshakeAccepted
	handshakeRejected
)

// nextHandshakeState is the full transition table. Any pair not listed is a
// programming error rather than a peer error.
func nextHandshakeState(state HandshakeState, event handshakeEvent) (HandshakeState, error) {
	switch {
	case state == HandshakeInit && event == handshakeWritten:
		return HandshakeSent, nil
	case state == HandshakeSent && event == handshakeReceived:
		return HandshakeValidate, nil
	case state == HandshakeValidate && event == handshakeAccepted:
		return HandshakeMatched, nil
	case state == HandshakeValidate && event == handshakeRejected:
		return HandshakeMismatched, nil
	default:
		return state, fmt.Errorf("invalid handshake transition from '%s' on event %d", state, event)
	}
}

func buildHandshake(contentID [sha1.Size]byte, peerID [20]byte) []byte {
	messageBuffer := make([]byte, handshakeMessageLen)
	messageBuffer[0] = byte(pstrLen)

	index := 1
	index += copy(messageBuffer[index:], pstr)
	index += reservedLen
	index += copy(messageBuffer[index:], contentID[:])
	copy(messageBuffer[index:], peerID[:])

	return messageBuffer
}

// validateHandshake checks a received frame against the expected content id
// and returns the remote peer id it carries.
func validateHandshake(response []byte, contentID [sha1.Size]byte) ([20]byte, error) {
	var remotePeerID [20]byte

	if response[0] != byte(pstrLen) {
		return remotePeerID, fmt.Errorf("%w: expected protocol string length to be %d, but got %d", ErrHandshakeFailed, pstrLen, response[0])
	}

	if receivedPstr := response[1 : pstrLen+1]; string(receivedPstr) != pstr {
		return remotePeerID, fmt.Errorf("%w: expected protocol string to be '%s', but got '%s'", ErrHandshakeFailed, pstr, receivedPstr)
	}

	contentIDStart := 1 + pstrLen + reservedLen

	if receivedID := response[contentIDStart : contentIDStart+sha1.Size]; !bytes.Equal(receivedID, contentID[:]) {
		return remotePeerID, fmt.Errorf("%w: received content id %x does not match expected content id %x", ErrHandshakeFailed, receivedID, contentID)
	}

	copy(remotePeerID[:], response[contentIDStart+sha1.Size:])

	return remotePeerID, nil
}

/*
Handshake writes the 68-byte greeting to rw, reads the peer's greeting and
checks that both sides agree on the content id. On success it returns the
remote peer id. Nothing else is written to rw after a mismatch.
*/
func Handshake(rw io.ReadWriter, contentID [sha1.Size]byte, peerID [20]byte) ([20]byte, error) {
	var remotePeerID [20]byte
	state := HandshakeInit

	advance := func(event handshakeEvent) error {
		next, err := nextHandshakeState(state, event)

		if err != nil {
			return err
		}

		state = next

		return nil
	}

	if _, err := rw.Write(buildHandshake(contentID, peerID)); err != nil {
		return remotePeerID, fmt.Errorf("%w: failed to send handshake: %w", ErrConnectionLost, err)
	}

	if err := advance(handshakeWritten); err != nil {
		return remotePeerID, err
	}

	response := make([]byte, handshakeMessageLen)

	if _, err := io.ReadFull(rw, response); err != nil {
		return remotePeerID, fmt.Errorf("%w: failed to receive handshake response: %w", ErrConnectionLost, err)
	}

	if err := advance(handshakeReceived); err != nil {
		return remotePeerID, err
	}

	remotePeerID, validationErr := validateHandshake(response, contentID)

	if validationErr != nil {
		if err := advance(handshakeRejected); err != nil {
			return remotePeerID, err
		}

		return remotePeerID, validationErr
	}

	if err := advance(handshakeAccepted); err != nil {
		return remotePeerID, err
	}

	return remotePeerID, nil
}
