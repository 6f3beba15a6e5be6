package peer

import (
	"context"
	"crypto/sha1"
	"fmt"
	"log/slog"
	"net"
	"time"

	"github.com/MlkMahmud/peerfetch/internal/utils"
)

// ContextDialer opens the underlying transport. *net.Dialer satisfies it.
type ContextDialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Conn is an established, handshaken connection to a single remote peer.
type Conn struct {
	bitfield     Bitfield
	conn         net.Conn
	logger       *slog.Logger
	remotePeerID [20]byte
	timeout      time.Duration
	unchoked     bool
}

type ConnOpts struct {
	Logger *slog.Logger

	// Sizes the bitfield tracked from have messages. Zero tracks only what
	// the peer advertises in its bitfield message.
	PieceCount int

	// Applied to every individual read and write. Zero blocks indefinitely.
	Timeout time.Duration
}

type DialOpts struct {
	ContentID [sha1.Size]byte
	PeerID    [20]byte

	// Defaults to a *net.Dialer.
	Dialer     ContextDialer
	Logger     *slog.Logger
	PieceCount int
	Timeout    time.Duration
}

// NewConn wraps conn without performing a handshake.
func NewConn(conn net.Conn, opts ConnOpts) *Conn {
	logger := opts.Logger

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Conn{
		bitfield: make(Bitfield, (max(opts.PieceCount, 0)+7)/8),
		conn:     conn,
		logger:   logger.With("peer", conn.RemoteAddr().String()),
		timeout:  opts.Timeout,
	}
}

// Establish performs the handshake over an already open transport. conn is
// closed when the handshake fails.
func Establish(conn net.Conn, opts DialOpts) (*Conn, error) {
	c := NewConn(conn, ConnOpts{Logger: opts.Logger, PieceCount: opts.PieceCount, Timeout: opts.Timeout})

	remotePeerID, err := Handshake(c, opts.ContentID, opts.PeerID)

	if err != nil {
		conn.Close()
		return nil, err
	}

	c.remotePeerID = remotePeerID
	c.logger.Debug("handshake completed", "remotePeerId", fmt.Sprintf("%x", remotePeerID))

	return c, nil
}

// Dial connects to addr over TCP and performs the handshake.
func Dial(ctx context.Context, addr string, opts DialOpts) (*Conn, error) {
	dialer := opts.Dialer

	if dialer == nil {
		dialer = &net.Dialer{Timeout: opts.Timeout}
	}

	conn, err := dialer.DialContext(ctx, "tcp", addr)

	if err != nil {
		return nil, fmt.Errorf("%w: failed to connect to peer %s: %w", ErrConnectionLost, addr, err)
	}

	return Establish(conn, opts)
}

// Read fills p completely or fails. It lets a Conn stand in as the
// io.Reader for Handshake and ReadMessage while applying the I/O timeout.
func (c *Conn) Read(p []byte) (int, error) {
	return utils.ConnReadFull(c.conn, p, utils.Deadline(c.timeout))
}

func (c *Conn) Write(p []byte) (int, error) {
	return utils.ConnWriteFull(c.conn, p, utils.Deadline(c.timeout))
}

// ReadMessage reads the next message and updates the choke and bitfield
// state it carries. A nil message is a keep-alive.
func (c *Conn) ReadMessage() (*Message, error) {
	msg, err := ReadMessage(c)

	if err != nil {
		return nil, err
	}

	c.logger.Debug("received message", "message", msg.String())

	if msg.KeepAlive() {
		return nil, nil
	}

	switch msg.ID {
	case Choke:
		c.unchoked = false

	case Unchoke:
		c.unchoked = true

	case BitfieldID:
		c.bitfield = append(Bitfield{}, msg.Payload...)

	case Have:
		if index, err := ParseHave(msg); err == nil {
			// Indexes past the known bitfield are dropped rather than
			// growing it to a size chosen by the peer.
			c.bitfield.SetPiece(index)
		}
	}

	return msg, nil
}

func (c *Conn) WriteMessage(msg *Message) error {
	c.logger.Debug("sending message", "message", msg.String())

	return WriteMessage(c, msg)
}

func (c *Conn) RemotePeerID() [20]byte {
	return c.remotePeerID
}

func (c *Conn) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Unchoked reports whether the remote peer has unchoked us and not choked us
// again since.
func (c *Conn) Unchoked() bool {
	return c.unchoked
}

// Bitfield is the piece availability most recently advertised by the peer.
// It is informational only.
func (c *Conn) Bitfield() Bitfield {
	return c.bitfield
}

func (c *Conn) Close() error {
	return c.conn.Close()
}
