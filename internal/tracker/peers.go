package tracker

import (
	"encoding/binary"
	"fmt"
	"net"
	"net/netip"
	"strconv"
)

const compactPeerSize = 6

// PeerAddress is one entry of a compact peer list: an IPv4 address and a
// TCP port.
type PeerAddress struct {
	IP   [4]byte
	Port uint16
}

func (p PeerAddress) AddrPort() netip.AddrPort {
	return netip.AddrPortFrom(netip.AddrFrom4(p.IP), p.Port)
}

func (p PeerAddress) String() string {
	return net.JoinHostPort(netip.AddrFrom4(p.IP).String(), strconv.Itoa(int(p.Port)))
}

// ParsePeerAddress parses "a.b.c.d:port".
func ParsePeerAddress(address string) (PeerAddress, error) {
	addrPort, err := netip.ParseAddrPort(address)

	if err != nil {
		return PeerAddress{}, fmt.Errorf("invalid peer address %q: %w", address, err)
	}

	if !addrPort.Addr().Unmap().Is4() {
		return PeerAddress{}, fmt.Errorf("invalid peer address %q: only IPv4 peers are supported", address)
	}

	return PeerAddress{IP: addrPort.Addr().Unmap().As4(), Port: addrPort.Port()}, nil
}

// ParseCompactPeers slices data into 6-byte records. A trailing chunk shorter
// than a full record is ignored.
func ParseCompactPeers(data []byte) []PeerAddress {
	numOfPeers := len(data) / compactPeerSize
	peers := make([]PeerAddress, numOfPeers)

	for index := range numOfPeers {
		record := data[index*compactPeerSize : (index+1)*compactPeerSize]

		copy(peers[index].IP[:], record[:4])
		peers[index].Port = binary.BigEndian.Uint16(record[4:])
	}

	return peers
}
