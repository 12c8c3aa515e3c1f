// Package controller runs the poll → send → render cycle.
package controller

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/coreman2200/funtimes-atomcontroller/internal/glyph"
	"github.com/coreman2200/funtimes-atomcontroller/internal/matrix"
)

const DFLT_POLL_INTERVAL = 10 * time.Millisecond

// ErrPeerRegistration means the wireless peer could not be added at start-up.
var ErrPeerRegistration = errors.New("peer registration failed")

// Poller returns the active slot indices in ascending order.
type Poller interface {
	Poll() []int
}

// Transmitter sends a slot index and exposes the latest delivery color.
type Transmitter interface {
	Begin() error
	Send(value byte)
	Color() matrix.Color
}

// Display draws glyphs on the matrix.
type Display interface {
	Render(code glyph.Code, c matrix.Color) error
	RenderIdle() error
}

// Stats are running totals since start-up.
type Stats struct {
	Cycles uint64
	Idle   uint64
	Sends  uint64
}

type Controller struct {
	logger   zerolog.Logger
	in       Poller
	tx       Transmitter
	disp     Display
	interval time.Duration

	cycles atomic.Uint64
	idle   atomic.Uint64
	sends  atomic.Uint64
}

func New(logger zerolog.Logger, in Poller, tx Transmitter, disp Display, interval time.Duration) *Controller {
	if interval <= 0 {
		interval = DFLT_POLL_INTERVAL
	}
	return &Controller{
		logger:   logger.With().Str("module", "Controller").Logger(),
		in:       in,
		tx:       tx,
		disp:     disp,
		interval: interval,
	}
}

// Begin shows the idle square and registers the wireless peer. An error
// wrapping ErrPeerRegistration means the controller must not be run.
func (c *Controller) Begin() error {
	if err := c.disp.RenderIdle(); err != nil {
		c.logger.Error().Err(err).Msg("render idle")
	}
	if err := c.tx.Begin(); err != nil {
		return fmt.Errorf("%w: %v", ErrPeerRegistration, err)
	}
	return nil
}

// Update runs one cycle. With no input active the idle square is drawn.
// Otherwise every active slot, lowest first, is sent and then drawn in the
// current delivery color, so the highest active slot is what stays lit.
func (c *Controller) Update() {
	c.cycles.Add(1)

	active := c.in.Poll()
	if len(active) == 0 {
		c.idle.Add(1)
		if err := c.disp.RenderIdle(); err != nil {
			c.logger.Error().Err(err).Msg("render idle")
		}
		return
	}

	for _, i := range active {
		c.tx.Send(byte(i))
		c.sends.Add(1)
		if err := c.disp.Render(glyph.Code(i), c.tx.Color()); err != nil {
			c.logger.Error().Err(err).Int("slot", i).Msg("render")
		}
	}
}

// Run calls Update every interval until ctx is done.
func (c *Controller) Run(ctx context.Context) error {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()

	c.logger.Info().Dur("interval", c.interval).Msg("running")
	for {
		select {
		case <-ticker.C:
			c.Update()
		case <-ctx.Done():
			c.logger.Info().Msg("stopping")
			return ctx.Err()
		}
	}
}

func (c *Controller) Stats() Stats {
	return Stats{
		Cycles: c.cycles.Load(),
		Idle:   c.idle.Load(),
		Sends:  c.sends.Load(),
	}
}
