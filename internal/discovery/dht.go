// Package discovery finds peers without a tracker.
package discovery

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/MlkMahmud/peerfetch/internal/tracker"
	"github.com/nictuku/dht"
)

const (
	defaultLookupTimeout   = 30 * time.Second
	defaultMaxPeers        = 8
	defaultRequestInterval = 5 * time.Second
)

// DHTSource looks peers up in the mainline DHT. Each lookup runs its own
// short-lived node.
type DHTSource struct {
	logger          *slog.Logger
	maxPeers        int
	requestInterval time.Duration
	timeout         time.Duration
}

type DHTSourceOpts struct {
	Logger *slog.Logger

	// Stop after this many distinct peers. Defaults to 8.
	MaxPeers int

	// Upper bound on a single lookup. Defaults to 30s.
	Timeout time.Duration
}

func NewDHTSource(opts DHTSourceOpts) *DHTSource {
	logger := opts.Logger

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	source := &DHTSource{
		logger:          logger,
		maxPeers:        opts.MaxPeers,
		requestInterval: defaultRequestInterval,
		timeout:         opts.Timeout,
	}

	if source.maxPeers <= 0 {
		source.maxPeers = defaultMaxPeers
	}

	if source.timeout <= 0 {
		source.timeout = defaultLookupTimeout
	}

	return source
}

// FindPeers returns the peers found before the lookup times out or enough
// peers were collected. An empty result is not an error.
func (s *DHTSource) FindPeers(ctx context.Context, contentID [20]byte) ([]tracker.PeerAddress, error) {
	node, err := dht.New(nil)

	if err != nil {
		return nil, fmt.Errorf("failed to create dht node: %w", err)
	}

	if err := node.Start(); err != nil {
		return nil, fmt.Errorf("failed to start dht node: %w", err)
	}

	defer node.Stop()

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	infoHash := dht.InfoHash(string(contentID[:]))

	requestsDone := make(chan struct{})

	go func() {
		defer close(requestsDone)

		repeatUntilDone(ctx, s.requestInterval, func() {
			node.PeersRequest(string(infoHash), false)
		})
	}()

	s.logger.Debug("searching dht for peers", "contentId", fmt.Sprintf("%x", contentID))

	peers := collectPeers(ctx, node.PeersRequestResults, infoHash, s.maxPeers)

	// The node must outlive any in-flight request.
	cancel()
	<-requestsDone

	s.logger.Debug("dht lookup finished", "peers", len(peers))

	return peers, nil
}

// repeatUntilDone calls request immediately and then once per interval. It
// returns once ctx is done and the current call has returned.
func repeatUntilDone(ctx context.Context, interval time.Duration, request func()) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		request()

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// collectPeers drains lookup results for infoHash until limit distinct IPv4
// peers were seen, ctx is done or results is closed.
func collectPeers(ctx context.Context, results <-chan map[dht.InfoHash][]string, infoHash dht.InfoHash, limit int) []tracker.PeerAddress {
	seen := map[tracker.PeerAddress]struct{}{}
	peers := []tracker.PeerAddress{}

	for len(peers) < limit {
		select {
		case <-ctx.Done():
			return peers

		case result, ok := <-results:
			if !ok {
				return peers
			}

			for _, encoded := range result[infoHash] {
				address, err := tracker.ParsePeerAddress(dht.DecodePeerAddress(encoded))

				if err != nil {
					continue
				}

				if _, duplicate := seen[address]; duplicate {
					continue
				}

				seen[address] = struct{}{}
				peers = append(peers, address)

				if len(peers) == limit {
					break
				}
			}
		}
	}

	return peers
}
