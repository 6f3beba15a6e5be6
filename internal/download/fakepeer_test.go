package download

import (
	"crypto/sha1"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"sync"
	"testing"

	"github.com/MlkMahmud/peerfetch/internal/peer"
)

// fakePeer serves pieces of content over a single connection. respond may
// override the reply to any message; returning ok=false falls back to the
// default behaviour.
type fakePeer struct {
	conn        net.Conn
	content     []byte
	pieceLength int
	greeting    []*peer.Message
	respond     func(count int, msg *peer.Message) (replies []*peer.Message, ok bool)

	mu       sync.Mutex
	received []*peer.Message
	done     chan struct{}
}

func newFakePeer(conn net.Conn, content []byte, pieceLength int) *fakePeer {
	return &fakePeer{conn: conn, content: content, pieceLength: pieceLength, done: make(chan struct{})}
}

func (f *fakePeer) pieceMessage(index, begin, length int) *peer.Message {
	offset := index*f.pieceLength + begin
	payload := make([]byte, 8, 8+length)

	binary.BigEndian.PutUint32(payload[0:4], uint32(index))
	binary.BigEndian.PutUint32(payload[4:8], uint32(begin))

	return &peer.Message{ID: peer.Piece, Payload: append(payload, f.content[offset:offset+length]...)}
}

func (f *fakePeer) defaultReplies(msg *peer.Message) []*peer.Message {
	if msg.KeepAlive() {
		return nil
	}

	switch msg.ID {
	case peer.Interested:
		return []*peer.Message{{ID: peer.Unchoke}}

	case peer.Request:
		index, begin, length, err := peer.ParseRequest(msg)

		if err != nil {
			return nil
		}

		return []*peer.Message{f.pieceMessage(index, begin, length)}
	}

	return nil
}

func (f *fakePeer) run() {
	defer close(f.done)
	defer f.conn.Close()

	for _, msg := range f.greeting {
		if err := peer.WriteMessage(f.conn, msg); err != nil {
			return
		}
	}

	for count := 0; ; count++ {
		msg, err := peer.ReadMessage(f.conn)

		if err != nil {
			return
		}

		f.mu.Lock()
		f.received = append(f.received, msg)
		f.mu.Unlock()

		replies, ok := []*peer.Message(nil), false

		if f.respond != nil {
			replies, ok = f.respond(count, msg)
		}

		if !ok {
			replies = f.defaultReplies(msg)
		}

		for _, reply := range replies {
			if err := peer.WriteMessage(f.conn, reply); err != nil {
				return
			}
		}
	}
}

func (f *fakePeer) receivedMessages() []*peer.Message {
	<-f.done

	f.mu.Lock()
	defer f.mu.Unlock()

	return f.received
}

// tcpPair returns both ends of a loopback TCP connection. Unlike net.Pipe,
// writes are buffered so both sides may send at once.
func tcpPair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")

	if err != nil {
		t.Fatal(err)
	}

	defer listener.Close()

	accepted := make(chan net.Conn, 1)

	go func() {
		conn, err := listener.Accept()

		if err != nil {
			close(accepted)
			return
		}

		accepted <- conn
	}()

	client, err := net.Dial("tcp", listener.Addr().String())

	if err != nil {
		t.Fatal(err)
	}

	server, ok := <-accepted

	if !ok {
		t.Fatal("failed to accept loopback connection")
	}

	t.Cleanup(func() {
		client.Close()
		server.Close()
	})

	return client, server
}

func pieceHashes(content []byte, pieceLength int) [][sha1.Size]byte {
	hashes := [][sha1.Size]byte{}

	for begin := 0; begin < len(content); begin += pieceLength {
		hashes = append(hashes, sha1.Sum(content[begin:min(begin+pieceLength, len(content))]))
	}

	return hashes
}

func testContent(length int) []byte {
	content := make([]byte, length)

	for index := range content {
		content[index] = byte(index*7 + index/251)
	}

	return content
}

// serveHandshake answers a handshake the way a well-behaved remote does.
func serveHandshake(conn net.Conn, contentID [sha1.Size]byte, remoteID [20]byte) error {
	request := make([]byte, 68)

	if _, err := io.ReadFull(conn, request); err != nil {
		return err
	}

	if string(request[28:48]) != string(contentID[:]) {
		return errors.New("content id mismatch")
	}

	response := append([]byte{19}, "BitTorrent protocol"...)
	response = append(response, make([]byte, 8)...)
	response = append(response, contentID[:]...)
	response = append(response, remoteID[:]...)

	_, err := conn.Write(response)

	return err
}
