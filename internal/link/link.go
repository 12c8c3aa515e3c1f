// Package link sends a slot index over the wired serial line and the
// wireless peer, and keeps the outcome of the latest wireless delivery.
package link

import (
	"fmt"
	"io"
	"strconv"
	"sync/atomic"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-atomcontroller/internal/matrix"
	"github.com/coreman2200/funtimes-atomcontroller/internal/radio"
)

// Status is the outcome of the most recent wireless delivery to complete.
type Status uint32

const (
	Failure Status = iota
	Success
)

func (s Status) String() string {
	if s == Success {
		return "success"
	}
	return "failure"
}

// Color is the matrix color glyphs are drawn in for s.
func (s Status) Color() matrix.Color {
	if s == Success {
		return matrix.Blue
	}
	return matrix.Red
}

// Counters are running totals since the channel was created.
type Counters struct {
	Sent      uint64
	Delivered uint64
	Failed    uint64
}

// Channel is the dual wired/wireless transmitter.
//
// Delivery callbacks are not correlated with sends: whichever callback
// runs last decides Status, even if it belongs to an older send.
type Channel struct {
	logger zerolog.Logger
	serial io.Writer
	radio  radio.Radio
	peer   radio.PeerAddr

	status    atomic.Uint32
	sent      atomic.Uint64
	delivered atomic.Uint64
	failed    atomic.Uint64
}

// New builds a channel to peer. serial may be nil when no wired line is
// attached. Status starts as Failure until a delivery succeeds.
func New(logger zerolog.Logger, serial io.Writer, r radio.Radio, peer radio.PeerAddr) *Channel {
	return &Channel{
		logger: logger.With().Str("module", "Link").Str("peer", peer.String()).Logger(),
		serial: serial,
		radio:  r,
		peer:   peer,
	}
}

// Begin registers the delivery callback and the peer.
func (c *Channel) Begin() error {
	c.radio.OnSent(c.onSent)
	if err := c.radio.AddPeer(c.peer); err != nil {
		return fmt.Errorf("add peer %s: %w", c.peer, err)
	}
	return nil
}

// Send writes value as a decimal line to the serial line and hands a
// one-byte frame to the radio. Neither step blocks on delivery and neither
// reports an error: serial failures are only logged, and a radio that
// refuses the frame counts as a failed delivery.
func (c *Channel) Send(value byte) {
	c.sent.Add(1)

	if c.serial != nil {
		line := strconv.Itoa(int(value)) + "\r\n"
		if _, err := io.WriteString(c.serial, line); err != nil {
			c.logger.Debug().Err(err).Uint8("value", value).Msg("serial write")
		}
	}

	if err := c.radio.Send(c.peer, []byte{value}); err != nil {
		c.logger.Warn().Err(err).Uint8("value", value).Msg("radio send")
		c.onSent(c.peer, false)
	}
}

func (c *Channel) onSent(dst radio.PeerAddr, ok bool) {
	if ok {
		c.delivered.Add(1)
		c.status.Store(uint32(Success))
	} else {
		c.failed.Add(1)
		c.status.Store(uint32(Failure))
	}
	c.logger.Trace().Bool("ok", ok).Msg("delivery")
}

// Status returns the latest delivery outcome.
func (c *Channel) Status() Status {
	return Status(c.status.Load())
}

// Color is Status().Color().
func (c *Channel) Color() matrix.Color {
	return c.Status().Color()
}

func (c *Channel) Counters() Counters {
	return Counters{
		Sent:      c.sent.Load(),
		Delivered: c.delivered.Load(),
		Failed:    c.failed.Load(),
	}
}
