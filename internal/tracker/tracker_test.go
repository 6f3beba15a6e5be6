package tracker_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/MlkMahmud/peerfetch/internal/bencode"
	"github.com/MlkMahmud/peerfetch/internal/tracker"
)

func testRequest(url string) tracker.AnnounceRequest {
	var contentID, peerID [20]byte

	for index := range contentID {
		contentID[index] = byte(index)
		peerID[index] = byte(0xf0 + index%16)
	}

	return tracker.AnnounceRequest{URL: url, ContentID: contentID, PeerID: peerID, Left: 92063}
}

func TestEncodeBytes(t *testing.T) {
	encoded := tracker.EncodeBytes([]byte{0x00, 'a', 'Z', 0xff, '-', 0x1a})
	expected := "%00%61%5A%FF%2D%1A"

	if encoded != expected {
		t.Errorf("expected %s got %s", expected, encoded)
	}
}

func TestBuildAnnounceURL(t *testing.T) {
	announceURL, err := tracker.BuildAnnounceURL(testRequest("http://tracker.example/announce"))

	if err != nil {
		t.Fatal(err)
	}

	expected := "http://tracker.example/announce" +
		"?info_hash=%00%01%02%03%04%05%06%07%08%09%0A%0B%0C%0D%0E%0F%10%11%12%13" +
		"&peer_id=%F0%F1%F2%F3%F4%F5%F6%F7%F8%F9%FA%FB%FC%FD%FE%FF%F0%F1%F2%F3" +
		"&port=6881&uploaded=0&downloaded=0&left=92063&compact=1"

	if announceURL != expected {
		t.Errorf("expected\n%s\ngot\n%s", expected, announceURL)
	}

	withQuery, err := tracker.BuildAnnounceURL(testRequest("https://tracker.example/announce?passkey=abc"))

	if err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(withQuery, "https://tracker.example/announce?passkey=abc&info_hash=") {
		t.Errorf("expected existing query to be preserved, got %s", withQuery)
	}

	if _, err := tracker.BuildAnnounceURL(testRequest("udp://tracker.example:6969")); !errors.Is(err, tracker.ErrTrackerProtocol) {
		t.Errorf("expected ErrTrackerProtocol for udp tracker, got %v", err)
	}
}

func TestAnnounce(t *testing.T) {
	var receivedQuery string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		receivedQuery = r.URL.RawQuery
		w.Write([]byte("d8:completei1e10:incompletei0e8:intervali60e5:peers13:\x01\x02\x03\x04\x1a\xe1\x7f\x00\x00\x01\x1a\xe2\x09e"))
	}))
	defer server.Close()

	client := tracker.NewClient(tracker.ClientOpts{HTTPClient: server.Client()})

	response, err := client.Announce(context.Background(), testRequest(server.URL+"/announce"))

	if err != nil {
		t.Fatal(err)
	}

	if len(response.Peers) != 2 {
		t.Fatalf("expected 2 peers, got %d", len(response.Peers))
	}

	if response.Peers[0].String() != "1.2.3.4:6881" || response.Peers[1].String() != "127.0.0.1:6882" {
		t.Errorf("unexpected peers %v", response.Peers)
	}

	if response.Interval != 60 || response.Complete != 1 {
		t.Errorf("unexpected response fields %+v", response)
	}

	expectedQuery := "info_hash=%00%01%02%03%04%05%06%07%08%09%0A%0B%0C%0D%0E%0F%10%11%12%13" +
		"&peer_id=%F0%F1%F2%F3%F4%F5%F6%F7%F8%F9%FA%FB%FC%FD%FE%FF%F0%F1%F2%F3" +
		"&port=6881&uploaded=0&downloaded=0&left=92063&compact=1"

	if receivedQuery != expectedQuery {
		t.Errorf("expected query\n%s\ngot\n%s", expectedQuery, receivedQuery)
	}
}

func TestAnnounceAcceptsSuccessStatuses(t *testing.T) {
	for _, status := range []int{http.StatusOK, http.StatusAccepted, http.StatusNonAuthoritativeInfo} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(status)
				w.Write([]byte("d8:intervali60e5:peers6:\x01\x02\x03\x04\x1a\xe1e"))
			}))
			defer server.Close()

			client := tracker.NewClient(tracker.ClientOpts{HTTPClient: server.Client()})

			response, err := client.Announce(context.Background(), testRequest(server.URL))

			if err != nil {
				t.Fatalf("Expected status %d to be accepted got %v\n", status, err)
			}

			if len(response.Peers) != 1 || response.Peers[0].String() != "1.2.3.4:6881" {
				t.Errorf("unexpected peers %v", response.Peers)
			}
		})
	}
}

func TestAnnounceErrors(t *testing.T) {
	testCases := map[string]struct {
		status int
		body   string
	}{
		"missing peers":   {http.StatusOK, "d8:intervali60ee"},
		"failure reason":  {http.StatusOK, "d14:failure reason17:torrent not founde"},
		"peers not bytes": {http.StatusOK, "d5:peersld2:ip7:1.2.3.44:porti6881eeee"},
		"malformed body":  {http.StatusOK, "d5:peers"},
		"not found":       {http.StatusNotFound, "not found"},
		"server error":    {http.StatusInternalServerError, "d8:intervali60e5:peers0:e"},
	}

	for name, testCase := range testCases {
		t.Run(name, func(t *testing.T) {
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(testCase.status)
				w.Write([]byte(testCase.body))
			}))
			defer server.Close()

			client := tracker.NewClient(tracker.ClientOpts{HTTPClient: server.Client()})

			if _, err := client.Announce(context.Background(), testRequest(server.URL)); !errors.Is(err, tracker.ErrTrackerProtocol) {
				t.Errorf("expected ErrTrackerProtocol, got %v", err)
			}
		})
	}
}

func TestParseAnnounceResponseToleratesUnknownKeys(t *testing.T) {
	body, err := bencode.Encode(bencode.NewDict(map[string]bencode.Value{
		"crypto_flags":    bencode.NewBytes([]byte{0, 1}),
		"external ip":     bencode.NewBytes([]byte{8, 8, 8, 8}),
		"peers":           bencode.NewBytes(nil),
		"warning message": bencode.NewString("slow down"),
		"zzz": bencode.NewList(bencode.NewDict(map[string]bencode.Value{
			"nested": bencode.NewInteger(-1),
		})),
	}))

	if err != nil {
		t.Fatal(err)
	}

	response, err := tracker.ParseAnnounceResponse(body)

	if err != nil {
		t.Fatal(err)
	}

	if len(response.Peers) != 0 {
		t.Errorf("expected no peers, got %v", response.Peers)
	}

	if response.WarningMessage != "slow down" {
		t.Errorf("unexpected warning %q", response.WarningMessage)
	}
}
