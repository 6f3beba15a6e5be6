package session

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/MlkMahmud/peerfetch/internal/discovery"
	"github.com/MlkMahmud/peerfetch/internal/download"
	"github.com/MlkMahmud/peerfetch/internal/metainfo"
	"github.com/MlkMahmud/peerfetch/internal/tracker"
	"github.com/MlkMahmud/peerfetch/internal/utils"
)

// Config holds the process-wide settings collected from flags and the
// environment.
type Config struct {
	EnableDHT      bool
	PeerTimeout    time.Duration
	TrackerTimeout time.Duration
}

// Session owns the local peer identity. Every client built from the same
// session announces and handshakes with the same peer id.
type Session struct {
	config Config
	id     [20]byte
	logger *slog.Logger
}

type SessionOpts struct {
	Config Config
	Logger *slog.Logger
}

func NewSession(opts SessionOpts) *Session {
	logger := opts.Logger

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	id := utils.NewPeerID()

	return &Session{
		config: opts.Config,
		id:     id,
		logger: logger.With("peerId", string(id[:])),
	}
}

func (s *Session) ID() [20]byte {
	return s.id
}

func (s *Session) Logger() *slog.Logger {
	return s.logger
}

// LoadMetainfo reads and parses the descriptor at path.
func (s *Session) LoadMetainfo(path string) (*metainfo.Metainfo, error) {
	if !utils.FileExists(path) {
		return nil, fmt.Errorf("no torrent file found at %s: %w", path, os.ErrNotExist)
	}

	data, err := os.ReadFile(path)

	if err != nil {
		return nil, fmt.Errorf("failed to read torrent file %s: %w", path, err)
	}

	mi, err := metainfo.Parse(data)

	if err != nil {
		return nil, fmt.Errorf("failed to parse torrent file %s: %w", path, err)
	}

	s.logger.Debug("loaded torrent file", "path", path, "name", mi.Name, "pieces", mi.PieceCount(), "length", mi.Length)

	return mi, nil
}

func (s *Session) peerSource() download.PeerSource {
	if !s.config.EnableDHT {
		return nil
	}

	return discovery.NewDHTSource(discovery.DHTSourceOpts{Logger: s.logger})
}

// NewClient returns a download client bound to this session's identity.
// progress may be nil.
func (s *Session) NewClient(progress download.Progress) *download.Client {
	return download.NewClient(download.ClientOpts{
		PeerID: s.id,
		Tracker: tracker.NewClient(tracker.ClientOpts{
			Logger:  s.logger,
			Timeout: s.config.TrackerTimeout,
		}),
		Logger:      s.logger,
		PeerSource:  s.peerSource(),
		PeerTimeout: s.config.PeerTimeout,
		Progress:    progress,
	})
}
