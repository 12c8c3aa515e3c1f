package radio

import (
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

const DFLT_ACK_TIMEOUT = 100 * time.Millisecond

// UDP hands frames to a network ESP-NOW gateway. Each datagram is the
// destination address followed by the payload; the gateway answers every
// datagram with a single status byte, 0 meaning the peer acknowledged.
// A send with no answer within the ack timeout is reported as failed.
// Each outstanding send carries its own deadline; the socket read deadline
// always tracks the oldest one.
type UDP struct {
	logger     zerolog.Logger
	conn       *net.UDPConn
	ackTimeout time.Duration

	mu      sync.Mutex
	peers   map[PeerAddr]bool
	sent    SentFunc
	pending []pendingSend
	closed  bool
	done    chan struct{}
}

type pendingSend struct {
	dst PeerAddr
	due time.Time
}

// DialUDP connects to the gateway at addr ("host:port").
func DialUDP(logger zerolog.Logger, addr string, ackTimeout time.Duration) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve gateway %q: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial gateway %q: %w", addr, err)
	}
	if ackTimeout <= 0 {
		ackTimeout = DFLT_ACK_TIMEOUT
	}
	u := &UDP{
		logger:     logger.With().Str("module", "UDP").Str("gateway", addr).Logger(),
		conn:       conn,
		ackTimeout: ackTimeout,
		peers:      map[PeerAddr]bool{},
		done:       make(chan struct{}),
	}
	go u.reader()
	return u, nil
}

func (u *UDP) AddPeer(dst PeerAddr) error {
	if !dst.Unicast() {
		return fmt.Errorf("%w: %s", ErrInvalidPeer, dst)
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrClosed
	}
	u.peers[dst] = true
	return nil
}

func (u *UDP) OnSent(f SentFunc) {
	u.mu.Lock()
	u.sent = f
	u.mu.Unlock()
}

func (u *UDP) Send(dst PeerAddr, payload []byte) error {
	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		return ErrClosed
	}
	if err := checkSend(u.peers, dst, payload); err != nil {
		return err
	}
	frame := make([]byte, 0, len(dst)+len(payload))
	frame = append(frame, dst[:]...)
	frame = append(frame, payload...)
	if _, err := u.conn.Write(frame); err != nil {
		return fmt.Errorf("gateway write: %w", err)
	}
	u.pending = append(u.pending, pendingSend{dst: dst, due: time.Now().Add(u.ackTimeout)})
	if len(u.pending) == 1 {
		u.armLocked()
	}
	return nil
}

// armLocked points the read deadline at the oldest pending send, or clears
// it when nothing is outstanding.
func (u *UDP) armLocked() {
	var due time.Time
	if len(u.pending) > 0 {
		due = u.pending[0].due
	}
	if err := u.conn.SetReadDeadline(due); err != nil && !u.closed {
		u.logger.Warn().Err(err).Msg("set read deadline")
	}
}

// expireLocked drops every pending send whose deadline has passed.
func (u *UDP) expireLocked(now time.Time) []PeerAddr {
	var dsts []PeerAddr
	for len(u.pending) > 0 && !u.pending[0].due.After(now) {
		dsts = append(dsts, u.pending[0].dst)
		u.pending = u.pending[1:]
	}
	return dsts
}

func (u *UDP) reader() {
	defer close(u.done)
	buf := make([]byte, 16)
	for {
		n, err := u.conn.Read(buf)

		u.mu.Lock()
		cb := u.sent
		var outcomes []bool
		var dsts []PeerAddr
		switch {
		case err == nil:
			if len(u.pending) == 0 {
				u.logger.Debug().Int("len", n).Msg("unsolicited status")
				break
			}
			dsts = []PeerAddr{u.pending[0].dst}
			u.pending = u.pending[1:]
			outcomes = []bool{n > 0 && buf[0] == 0}
		case isTimeout(err):
			dsts = u.expireLocked(time.Now())
			outcomes = make([]bool, len(dsts))
		default:
			closed := u.closed
			u.mu.Unlock()
			if !closed && !errors.Is(err, net.ErrClosed) {
				u.logger.Error().Err(err).Msg("gateway read")
			}
			return
		}
		u.armLocked()
		u.mu.Unlock()

		if cb == nil {
			continue
		}
		for i, dst := range dsts {
			cb(dst, outcomes[i])
		}
	}
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

func (u *UDP) Close() error {
	u.mu.Lock()
	if u.closed {
		u.mu.Unlock()
		return nil
	}
	u.closed = true
	u.mu.Unlock()
	err := u.conn.Close()
	<-u.done
	return err
}
