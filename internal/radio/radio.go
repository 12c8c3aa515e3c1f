// Package radio is the point-to-point wireless transport. Sends are
// asynchronous: Send only hands the frame to the transport, and delivery
// is reported later through the SentFunc registered with OnSent.
package radio

import (
	"errors"
	"fmt"
	"net"
)

// MaxPayload is the largest frame an ESP-NOW peer accepts.
const MaxPayload = 250

var (
	ErrInvalidPeer = errors.New("invalid peer address")
	ErrUnknownPeer = errors.New("peer not registered")
	ErrPayloadSize = errors.New("payload size out of range")
	ErrClosed      = errors.New("radio closed")
)

// PeerAddr is the 6-byte station address of the remote peer.
type PeerAddr [6]byte

// ParsePeerAddr accepts the forms net.ParseMAC does for 48-bit addresses,
// e.g. "24:0a:c4:12:34:56".
func ParsePeerAddr(s string) (PeerAddr, error) {
	var a PeerAddr
	hw, err := net.ParseMAC(s)
	if err != nil {
		return a, fmt.Errorf("%w: %v", ErrInvalidPeer, err)
	}
	if len(hw) != len(a) {
		return a, fmt.Errorf("%w: %q is not a 6-byte address", ErrInvalidPeer, s)
	}
	copy(a[:], hw)
	return a, nil
}

func (a PeerAddr) String() string {
	return net.HardwareAddr(a[:]).String()
}

// Unicast reports whether a can be registered as a peer: not all-zero and
// without the group bit set.
func (a PeerAddr) Unicast() bool {
	return a != PeerAddr{} && a[0]&0x01 == 0
}

// SentFunc receives the outcome of a send. It may run on any goroutine.
type SentFunc func(dst PeerAddr, ok bool)

// Radio is a connectionless link to registered peers.
type Radio interface {
	// AddPeer registers dst so frames can be sent to it.
	AddPeer(dst PeerAddr) error
	// Send queues payload for dst and returns without waiting for delivery.
	Send(dst PeerAddr, payload []byte) error
	// OnSent sets the delivery callback, replacing any previous one.
	OnSent(f SentFunc)
	Close() error
}

func checkSend(peers map[PeerAddr]bool, dst PeerAddr, payload []byte) error {
	if !peers[dst] {
		return fmt.Errorf("%w: %s", ErrUnknownPeer, dst)
	}
	if len(payload) == 0 || len(payload) > MaxPayload {
		return fmt.Errorf("%w: %d bytes", ErrPayloadSize, len(payload))
	}
	return nil
}
