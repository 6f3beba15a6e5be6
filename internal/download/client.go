package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/MlkMahmud/peerfetch/internal/metainfo"
	"github.com/MlkMahmud/peerfetch/internal/peer"
	"github.com/MlkMahmud/peerfetch/internal/tracker"
)

var ErrNoPeers = errors.New("no peers available")

// Announcer is satisfied by *tracker.Client.
type Announcer interface {
	Announce(ctx context.Context, req tracker.AnnounceRequest) (*tracker.AnnounceResponse, error)
}

// PeerSource is an alternative way to discover peers, consulted only when
// the tracker returns none.
type PeerSource interface {
	FindPeers(ctx context.Context, contentID [20]byte) ([]tracker.PeerAddress, error)
}

// Progress is notified after every verified piece.
type Progress interface {
	OnPiece(done, total int)
}

type Client struct {
	dialer      peer.ContextDialer
	engine      *Engine
	logger      *slog.Logger
	peerID      [20]byte
	peerSource  PeerSource
	peerTimeout time.Duration
	progress    Progress
	tracker     Announcer
}

type ClientOpts struct {
	PeerID  [20]byte
	Tracker Announcer

	// Optional. Defaults to a *net.Dialer.
	Dialer     peer.ContextDialer
	Logger     *slog.Logger
	PeerSource PeerSource
	Progress   Progress

	// Applied to every read and write on a peer connection. Zero disables it.
	PeerTimeout time.Duration
}

func NewClient(opts ClientOpts) *Client {
	logger := opts.Logger

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{
		dialer:      opts.Dialer,
		engine:      NewEngine(EngineOpts{Logger: logger}),
		logger:      logger,
		peerID:      opts.PeerID,
		peerSource:  opts.PeerSource,
		peerTimeout: opts.PeerTimeout,
		progress:    opts.Progress,
		tracker:     opts.Tracker,
	}
}

// Peers announces to the descriptor's tracker and returns the peers it lists.
func (c *Client) Peers(ctx context.Context, mi *metainfo.Metainfo) ([]tracker.PeerAddress, error) {
	if c.tracker == nil {
		return nil, fmt.Errorf("no tracker client configured")
	}

	response, err := c.tracker.Announce(ctx, tracker.AnnounceRequest{
		URL:       mi.Announce,
		ContentID: mi.ContentID(),
		PeerID:    c.peerID,
		Left:      mi.Length,
	})

	if err != nil {
		return nil, fmt.Errorf("failed to fetch peers: %w", err)
	}

	peers := response.Peers

	if len(peers) == 0 && c.peerSource != nil {
		c.logger.Info("tracker returned no peers, querying fallback peer source", "tracker", mi.Announce)

		peers, err = c.peerSource.FindPeers(ctx, mi.ContentID())

		if err != nil {
			return nil, fmt.Errorf("failed to fetch peers from fallback source: %w", err)
		}
	}

	return peers, nil
}

// Connect dials addr and completes the handshake for mi.
func (c *Client) Connect(ctx context.Context, mi *metainfo.Metainfo, addr string) (*peer.Conn, error) {
	return peer.Dial(ctx, addr, peer.DialOpts{
		ContentID:  mi.ContentID(),
		PeerID:     c.peerID,
		Dialer:     c.dialer,
		Logger:     c.logger,
		PieceCount: mi.PieceCount(),
		Timeout:    c.peerTimeout,
	})
}

func (c *Client) connectFirstPeer(ctx context.Context, mi *metainfo.Metainfo) (*peer.Conn, error) {
	peers, err := c.Peers(ctx, mi)

	if err != nil {
		return nil, err
	}

	if len(peers) == 0 {
		return nil, ErrNoPeers
	}

	c.logger.Debug("connecting to peer", "peer", peers[0].String(), "available", len(peers))

	return c.Connect(ctx, mi, peers[0].String())
}

func (c *Client) fetchPiece(ctx context.Context, conn *peer.Conn, mi *metainfo.Metainfo, index int) ([]byte, error) {
	length, err := mi.PieceSize(index)

	if err != nil {
		return nil, err
	}

	hash, err := mi.PieceHash(index)

	if err != nil {
		return nil, err
	}

	return c.engine.DownloadPiece(ctx, conn, PieceSpec{Index: index, Length: length, Hash: hash})
}

// withConn runs fn with a connection to the first available peer and closes
// it afterwards. Cancelling ctx closes the connection to unblock reads.
func (c *Client) withConn(ctx context.Context, mi *metainfo.Metainfo, fn func(conn *peer.Conn) error) error {
	conn, err := c.connectFirstPeer(ctx, mi)

	if err != nil {
		return err
	}

	defer conn.Close()

	stop := context.AfterFunc(ctx, func() { conn.Close() })
	defer stop()

	return fn(conn)
}

// DownloadPiece downloads and verifies the piece at index and writes it to w.
func (c *Client) DownloadPiece(ctx context.Context, mi *metainfo.Metainfo, index int, w io.Writer) error {
	if index < 0 || index >= mi.PieceCount() {
		return fmt.Errorf("%w: piece index %d is out of range [0, %d)", metainfo.ErrInvalidMetadata, index, mi.PieceCount())
	}

	return c.withConn(ctx, mi, func(conn *peer.Conn) error {
		data, err := c.fetchPiece(ctx, conn, mi, index)

		if err != nil {
			return err
		}

		if _, err := w.Write(data); err != nil {
			return fmt.Errorf("failed to write piece at index %d: %w", index, err)
		}

		c.reportProgress(1, 1)

		return nil
	})
}

// Download fetches every piece in index order over a single connection and
// streams them to w. The first failure aborts the download.
func (c *Client) Download(ctx context.Context, mi *metainfo.Metainfo, w io.Writer) error {
	return c.withConn(ctx, mi, func(conn *peer.Conn) error {
		numOfPieces := mi.PieceCount()

		for index := range numOfPieces {
			data, err := c.fetchPiece(ctx, conn, mi, index)

			if err != nil {
				return err
			}

			if _, err := w.Write(data); err != nil {
				return fmt.Errorf("failed to write piece at index %d: %w", index, err)
			}

			c.reportProgress(index+1, numOfPieces)
		}

		c.logger.Debug("download completed", "name", mi.Name, "pieces", numOfPieces, "length", mi.Length)

		return nil
	})
}

func (c *Client) reportProgress(done, total int) {
	if c.progress != nil {
		c.progress.OnPiece(done, total)
	}
}
