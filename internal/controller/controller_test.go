package controller

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"

	"github.com/coreman2200/funtimes-atomcontroller/internal/glyph"
	"github.com/coreman2200/funtimes-atomcontroller/internal/input"
	"github.com/coreman2200/funtimes-atomcontroller/internal/link"
	"github.com/coreman2200/funtimes-atomcontroller/internal/matrix"
	"github.com/coreman2200/funtimes-atomcontroller/internal/radio"
)

var testPeer = radio.PeerAddr{0x24, 0x0a, 0xc4, 0x12, 0x34, 0x56}

// fakeRadio records frames; the test fires delivery callbacks itself.
type fakeRadio struct {
	frames [][]byte
	sent   radio.SentFunc
	addErr error
}

func (f *fakeRadio) AddPeer(radio.PeerAddr) error { return f.addErr }
func (f *fakeRadio) OnSent(fn radio.SentFunc)     { f.sent = fn }
func (f *fakeRadio) Close() error                 { return nil }

func (f *fakeRadio) Send(dst radio.PeerAddr, payload []byte) error {
	f.frames = append(f.frames, append([]byte(nil), payload...))
	return nil
}

type rig struct {
	pins  []*gpiotest.Pin
	wire  *bytes.Buffer
	radio *fakeRadio
	tx    *link.Channel
	out   *matrix.Capture
	rend  *matrix.Renderer
	ctl   *Controller
}

func newRig(t *testing.T) *rig {
	t.Helper()
	r := &rig{
		wire:  &bytes.Buffer{},
		radio: &fakeRadio{},
		out:   &matrix.Capture{},
	}
	in := make([]gpio.PinIn, glyph.Count)
	for i := range in {
		p := &gpiotest.Pin{N: fmt.Sprintf("BTN%d", i), Num: i, L: gpio.High}
		r.pins = append(r.pins, p)
		in[i] = p
	}
	r.tx = link.New(zerolog.Nop(), r.wire, r.radio, testPeer)
	r.rend = matrix.NewRenderer(zerolog.Nop(), matrix.New(255), r.out)
	r.ctl = New(zerolog.Nop(), input.New(in...), r.tx, r.rend, time.Millisecond)
	require.NoError(t, r.ctl.Begin())
	return r
}

func (r *rig) press(slots ...int) {
	for _, p := range r.pins {
		p.L = gpio.High
	}
	for _, s := range slots {
		r.pins[s].L = gpio.Low
	}
}

// shows asserts the matrix holds exactly the pattern of code in c.
func (r *rig) shows(t *testing.T, code glyph.Code, c matrix.Color) {
	t.Helper()
	m := r.rend.Matrix()
	require.Equal(t, glyph.Pattern(code), m.Lit())
	for _, px := range m.Lit() {
		assert.Equal(t, c, m.At(px), "pixel %d", px)
	}
}

func TestBeginShowsIdle(t *testing.T) {
	r := newRig(t)
	r.shows(t, glyph.Idle, matrix.IdleColor)
	assert.NotNil(t, r.radio.sent)
	assert.Equal(t, 1, r.out.Frames)
}

func TestBeginPeerFailure(t *testing.T) {
	tx := link.New(zerolog.Nop(), nil, &fakeRadio{addErr: radio.ErrInvalidPeer}, testPeer)
	c := New(zerolog.Nop(), input.New(), tx, matrix.NewRenderer(zerolog.Nop(), matrix.New(0), matrix.Discard), 0)
	err := c.Begin()
	assert.ErrorIs(t, err, ErrPeerRegistration)
	assert.Contains(t, err.Error(), radio.ErrInvalidPeer.Error())
}

func TestIdleCycle(t *testing.T) {
	r := newRig(t)
	r.radio.sent(testPeer, true)

	r.ctl.Update()
	r.shows(t, glyph.Idle, matrix.IdleColor)
	assert.Empty(t, r.radio.frames)
	assert.Empty(t, r.wire.String())

	r.radio.sent(testPeer, false)
	r.ctl.Update()
	r.shows(t, glyph.Idle, matrix.IdleColor)
	assert.Equal(t, Stats{Cycles: 2, Idle: 2}, r.ctl.Stats())
}

func TestSingleSlot(t *testing.T) {
	for i := 0; i < glyph.Count; i++ {
		t.Run(glyph.Code(i).String(), func(t *testing.T) {
			r := newRig(t)
			r.press(i)
			r.ctl.Update()

			assert.Equal(t, [][]byte{{byte(i)}}, r.radio.frames)
			assert.Equal(t, fmt.Sprintf("%d\r\n", i), r.wire.String())
			r.shows(t, glyph.Code(i), matrix.Red)
		})
	}
}

func TestLeftArrowScenario(t *testing.T) {
	r := newRig(t)
	r.radio.sent(testPeer, true)
	r.press(2)
	r.ctl.Update()

	assert.Equal(t, [][]byte{{2}}, r.radio.frames)
	assert.Equal(t, "2\r\n", r.wire.String())
	r.shows(t, glyph.Left, matrix.Blue)
}

func TestMultipleSlotsOverwrite(t *testing.T) {
	r := newRig(t)
	r.press(6, 0)
	r.ctl.Update()

	assert.Equal(t, [][]byte{{0}, {6}}, r.radio.frames)
	assert.Equal(t, "0\r\n6\r\n", r.wire.String())
	r.shows(t, glyph.TextC, matrix.Red)
	assert.Equal(t, Stats{Cycles: 1, Sends: 2}, r.ctl.Stats())
}

func TestFailureTurnsNextRenderRed(t *testing.T) {
	r := newRig(t)
	r.radio.sent(testPeer, true)
	r.press(4)
	r.ctl.Update()
	r.shows(t, glyph.TextA, matrix.Blue)

	r.radio.sent(testPeer, false)
	r.press(1)
	r.ctl.Update()
	r.shows(t, glyph.Down, matrix.Red)
}

func TestColorStableBetweenCallbacks(t *testing.T) {
	r := newRig(t)
	r.radio.sent(testPeer, true)
	r.press(5)
	for n := 0; n < 3; n++ {
		r.ctl.Update()
		r.shows(t, glyph.TextB, matrix.Blue)
	}
	assert.Len(t, r.radio.frames, 3)
}

// recorder logs the order of calls across transmitter and display.
type recorder struct {
	calls []string
	color matrix.Color
}

func (r *recorder) Begin() error        { return nil }
func (r *recorder) Send(v byte)         { r.calls = append(r.calls, fmt.Sprintf("send(%d)", v)) }
func (r *recorder) Color() matrix.Color { return r.color }

func (r *recorder) RenderIdle() error {
	r.calls = append(r.calls, "idle")
	return nil
}

func (r *recorder) Render(code glyph.Code, c matrix.Color) error {
	r.calls = append(r.calls, fmt.Sprintf("render(%s)", code))
	return nil
}

type slots []int

func (s slots) Poll() []int { return s }

func TestSendPrecedesRender(t *testing.T) {
	rec := &recorder{}
	c := New(zerolog.Nop(), slots{0, 3, 6}, rec, rec, 0)
	c.Update()
	assert.Equal(t, []string{
		"send(0)", "render(up)",
		"send(3)", "render(right)",
		"send(6)", "render(C)",
	}, rec.calls)
}

type brokenDisplay struct{ recorder }

func (b *brokenDisplay) Render(glyph.Code, matrix.Color) error { return errors.New("bus fault") }
func (b *brokenDisplay) RenderIdle() error                     { return errors.New("bus fault") }

func TestRenderErrorsDoNotStopSends(t *testing.T) {
	rec := &recorder{}
	c := New(zerolog.Nop(), slots{1, 2}, rec, &brokenDisplay{}, 0)
	require.NoError(t, c.Begin())
	c.Update()
	assert.Equal(t, []string{"send(1)", "send(2)"}, rec.calls)
}

func TestRunUntilCancelled(t *testing.T) {
	r := newRig(t)
	r.press(3)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.ctl.Run(ctx) }()

	require.Eventually(t, func() bool { return r.ctl.Stats().Cycles >= 3 }, time.Second, time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("Run did not return")
	}
}
