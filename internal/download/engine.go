package download

import (
	"bytes"
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MlkMahmud/peerfetch/internal/peer"
)

var ErrPieceHashMismatch = errors.New("piece hash mismatch")

const (
	blockSize = 16384
)

// MessageConn is the part of *peer.Conn the engine drives.
type MessageConn interface {
	ReadMessage() (*peer.Message, error)
	WriteMessage(msg *peer.Message) error
	Unchoked() bool
}

type PieceSpec struct {
	Index  int
	Length int
	Hash   [sha1.Size]byte
}

type block struct {
	begin  int
	length int
}

func (p PieceSpec) getBlocks() []block {
	blocks := []block{}

	for begin := 0; begin < p.Length; begin += blockSize {
		blocks = append(blocks, block{begin: begin, length: min(blockSize, p.Length-begin)})
	}

	return blocks
}

func (p PieceSpec) validateIntegrity(data []byte) error {
	downloadedPieceHash := sha1.Sum(data)

	if bytes.Equal(downloadedPieceHash[:], p.Hash[:]) {
		return nil
	}

	return fmt.Errorf(
		"%w: integrity validation failed for downloaded piece at index '%d':\n"+
			"  - Calculated hash: '%x'\n"+
			"  - Expected hash:   '%x'\n"+
			"  - Piece length:    %d bytes",
		ErrPieceHashMismatch,
		p.Index,
		downloadedPieceHash,
		p.Hash,
		len(data),
	)
}

type Engine struct {
	logger *slog.Logger
}

type EngineOpts struct {
	Logger *slog.Logger
}

func NewEngine(opts EngineOpts) *Engine {
	logger := opts.Logger

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Engine{logger: logger}
}

// classify maps a peer message to an engine event. expected is nil unless a
// block request is outstanding, in which case only a piece message for that
// exact block counts as the expected block.
func classify(msg *peer.Message, pieceIndex int, expected *block) (event, []byte) {
	if msg.KeepAlive() {
		return eventKeepAlive, nil
	}

	switch msg.ID {
	case peer.Choke:
		return eventChoke, nil

	case peer.Unchoke:
		return eventUnchoke, nil

	case peer.BitfieldID:
		return eventBitfield, nil

	case peer.Have:
		return eventHave, nil

	case peer.Piece:
		if expected == nil {
			return eventUnexpectedBlock, nil
		}

		index, begin, data, err := peer.ParsePiece(msg)

		if err != nil || index != pieceIndex || begin != expected.begin || len(data) != expected.length {
			return eventUnexpectedBlock, nil
		}

		return eventExpectedBlock, data

	default:
		return eventOtherMessage, nil
	}
}

/*
DownloadPiece fetches one piece over conn and returns its verified bytes.

Blocks are requested one at a time in offset order. A choke while a block is
outstanding sends the engine back to waiting for an unchoke, after which the
same block is requested again. When conn has already been unchoked by an
earlier piece, no interested message is sent.
*/
func (e *Engine) DownloadPiece(ctx context.Context, conn MessageConn, spec PieceSpec) ([]byte, error) {
	if spec.Length <= 0 {
		return nil, fmt.Errorf("invalid length %d for piece at index %d", spec.Length, spec.Index)
	}

	blocks := spec.getBlocks()
	buffer := make([]byte, spec.Length)
	nextBlock := 0

	state := StateHandshaken
	pending := []event{eventStart}

	if conn.Unchoked() {
		pending[0] = eventAlreadyUnchoked
	}

	logger := e.logger.With("piece", spec.Index)

	for {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("download of piece at index %d was interrupted: %w", spec.Index, err)
		}

		var ev event
		var blockData []byte

		switch {
		case len(pending) > 0:
			ev, pending = pending[0], pending[1:]

		case state == StateUnchoked && nextBlock < len(blocks):
			ev = eventBlocksPending

		case state == StateUnchoked:
			ev = eventBlocksDone

		default:
			msg, err := conn.ReadMessage()

			if err != nil {
				return nil, fmt.Errorf("failed to download piece at index %d: %w", spec.Index, err)
			}

			var expected *block

			if state == StateWaitBlock {
				expected = &blocks[nextBlock]
			}

			ev, blockData = classify(msg, spec.Index, expected)
		}

		next, act := transition(state, ev)

		if next != state {
			logger.Debug("piece state changed", "from", state.String(), "to", next.String(), "event", ev.String())
		}

		switch act {
		case actionSendInterested:
			if err := conn.WriteMessage(peer.NewInterested()); err != nil {
				return nil, fmt.Errorf("failed to download piece at index %d: %w", spec.Index, err)
			}

		case actionRequestBlock:
			current := blocks[nextBlock]

			if err := conn.WriteMessage(peer.NewRequest(spec.Index, current.begin, current.length)); err != nil {
				return nil, fmt.Errorf("failed to download piece at index %d: %w", spec.Index, err)
			}

		case actionStoreBlock:
			copy(buffer[blocks[nextBlock].begin:], blockData)
			nextBlock++

		case actionVerify:
			if err := spec.validateIntegrity(buffer); err != nil {
				return nil, err
			}

			logger.Debug("piece downloaded", "length", spec.Length, "blocks", len(blocks))

			return buffer, nil

		case actionReject:
			return nil, fmt.Errorf("unexpected event '%s' in state '%s' while downloading piece at index %d", ev, state, spec.Index)
		}

		state = next
	}
}
