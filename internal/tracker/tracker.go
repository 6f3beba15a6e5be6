package tracker

import (
	"context"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/MlkMahmud/peerfetch/internal/bencode"
)

var ErrTrackerProtocol = errors.New("tracker protocol error")

const (
	// The port we claim to listen on. Nothing actually listens there since
	// this client never seeds.
	announcePort = 6881

	defaultTimeout = 15 * time.Second
)

// Doer sends a single HTTP request. *http.Client satisfies it.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type AnnounceRequest struct {
	URL       string
	ContentID [sha1.Size]byte
	PeerID    [20]byte

	// Number of bytes still to download.
	Left int
}

type AnnounceResponse struct {
	Complete       int
	Incomplete     int
	Interval       int
	MinInterval    int
	WarningMessage string
	Peers          []PeerAddress
}

type Client struct {
	httpClient Doer
	logger     *slog.Logger
}

type ClientOpts struct {
	// Defaults to an *http.Client using Timeout.
	HTTPClient Doer
	Logger     *slog.Logger
	Timeout    time.Duration
}

func NewClient(opts ClientOpts) *Client {
	httpClient := opts.HTTPClient

	if httpClient == nil {
		timeout := opts.Timeout

		if timeout <= 0 {
			timeout = defaultTimeout
		}

		httpClient = &http.Client{Timeout: timeout}
	}

	logger := opts.Logger

	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	return &Client{httpClient: httpClient, logger: logger}
}

// EncodeBytes percent-encodes every byte of data, including unreserved ones.
// info_hash and peer_id are raw binary, so url.QueryEscape is not an option.
func EncodeBytes(data []byte) string {
	const hexDigits = "0123456789ABCDEF"

	var builder strings.Builder
	builder.Grow(len(data) * 3)

	for _, char := range data {
		builder.WriteByte('%')
		builder.WriteByte(hexDigits[char>>4])
		builder.WriteByte(hexDigits[char&0x0f])
	}

	return builder.String()
}

func BuildAnnounceURL(req AnnounceRequest) (string, error) {
	base, err := url.Parse(req.URL)

	if err != nil {
		return "", fmt.Errorf("%w: invalid announce url %q: %w", ErrTrackerProtocol, req.URL, err)
	}

	if base.Scheme != "http" && base.Scheme != "https" {
		return "", fmt.Errorf("%w: unsupported announce url scheme %q", ErrTrackerProtocol, base.Scheme)
	}

	separator := "?"

	if strings.Contains(req.URL, "?") {
		separator = "&"
	}

	var builder strings.Builder

	builder.WriteString(req.URL)
	builder.WriteString(separator)
	builder.WriteString("info_hash=" + EncodeBytes(req.ContentID[:]))
	builder.WriteString("&peer_id=" + EncodeBytes(req.PeerID[:]))
	builder.WriteString("&port=" + strconv.Itoa(announcePort))
	builder.WriteString("&uploaded=0")
	builder.WriteString("&downloaded=0")
	builder.WriteString("&left=" + strconv.Itoa(req.Left))
	builder.WriteString("&compact=1")

	return builder.String(), nil
}

func lookupOptionalInteger(cursor *bencode.Cursor, key string) (int, error) {
	value, err := cursor.LookupInteger(key)

	if errors.Is(err, bencode.ErrKeyNotFound) {
		return 0, nil
	}

	return int(value), err
}

/*
ParseAnnounceResponse extracts the compact peer list from a tracker response.

The body is scanned positionally: keys other than the handful we care about
are skipped in place and never materialized, so unknown extension keys are
tolerated. A response carrying "failure reason" is reported as an error with
the tracker's own message.
*/
func ParseAnnounceResponse(body []byte) (*AnnounceResponse, error) {
	cursor := bencode.NewCursor(body)

	failureReason, err := cursor.LookupString("failure reason")

	if err == nil {
		return nil, fmt.Errorf("%w: tracker responded with failure: %s", ErrTrackerProtocol, failureReason)
	}

	if !errors.Is(err, bencode.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: failed to decode tracker response: %w", ErrTrackerProtocol, err)
	}

	peers, err := cursor.LookupString("peers")

	if errors.Is(err, bencode.ErrKeyNotFound) {
		return nil, fmt.Errorf("%w: decoded response does not include a \"peers\" key", ErrTrackerProtocol)
	}

	if err != nil {
		return nil, fmt.Errorf("%w: invalid \"peers\" value: %w", ErrTrackerProtocol, err)
	}

	response := &AnnounceResponse{Peers: ParseCompactPeers(peers)}

	for key, target := range map[string]*int{
		"complete":     &response.Complete,
		"incomplete":   &response.Incomplete,
		"interval":     &response.Interval,
		"min interval": &response.MinInterval,
	} {
		if *target, err = lookupOptionalInteger(cursor, key); err != nil {
			return nil, fmt.Errorf("%w: invalid %q value: %w", ErrTrackerProtocol, key, err)
		}
	}

	if warning, err := cursor.LookupString("warning message"); err == nil {
		response.WarningMessage = string(warning)
	}

	return response, nil
}

// Announce asks the tracker for peers sharing req.ContentID.
func (c *Client) Announce(ctx context.Context, req AnnounceRequest) (*AnnounceResponse, error) {
	announceURL, err := BuildAnnounceURL(req)

	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, announceURL, nil)

	if err != nil {
		return nil, fmt.Errorf("failed to create announce request: %w", err)
	}

	c.logger.Debug("sending announce request", "tracker", req.URL, "left", req.Left)

	res, err := c.httpClient.Do(httpReq)

	if err != nil {
		return nil, fmt.Errorf("failed to send announce request to %s: %w", req.URL, err)
	}

	defer res.Body.Close()

	body, err := io.ReadAll(res.Body)

	if err != nil {
		return nil, fmt.Errorf("failed to read announce response body: %w", err)
	}

	if res.StatusCode < http.StatusOK || res.StatusCode >= http.StatusMultipleChoices {
		return nil, fmt.Errorf("%w: tracker responded with status %d: %s", ErrTrackerProtocol, res.StatusCode, strings.TrimSpace(string(body)))
	}

	response, err := ParseAnnounceResponse(body)

	if err != nil {
		return nil, err
	}

	if response.WarningMessage != "" {
		c.logger.Warn("tracker returned a warning", "tracker", req.URL, "warning", response.WarningMessage)
	}

	c.logger.Debug("received announce response", "tracker", req.URL, "peers", len(response.Peers), "interval", response.Interval)

	return response, nil
}
