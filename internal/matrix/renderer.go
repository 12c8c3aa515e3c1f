package matrix

import (
	"fmt"
	"image"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/display"

	"github.com/coreman2200/funtimes-atomcontroller/internal/glyph"
)

// Renderer draws glyphs into a Matrix and flushes the frame to a drawer.
// A frame identical to the previous flush is not sent again.
type Renderer struct {
	logger zerolog.Logger
	m      *Matrix
	out    display.Drawer

	last    [Size]Color
	flushed bool
}

func NewRenderer(logger zerolog.Logger, m *Matrix, out display.Drawer) *Renderer {
	return &Renderer{
		logger: logger.With().Str("module", "Renderer").Logger(),
		m:      m,
		out:    out,
	}
}

// Render clears the matrix and lights the pattern of code in c.
func (r *Renderer) Render(code glyph.Code, c Color) error {
	r.m.Clear()
	for _, px := range glyph.Pattern(code) {
		if err := r.m.Set(px, c); err != nil {
			return err
		}
	}
	return r.flush(code)
}

// RenderIdle draws the idle square in IdleColor.
func (r *Renderer) RenderIdle() error {
	return r.Render(glyph.Idle, IdleColor)
}

// Matrix returns the frame the renderer draws into.
func (r *Renderer) Matrix() *Matrix {
	return r.m
}

func (r *Renderer) flush(code glyph.Code) error {
	px := r.m.Pixels()
	if r.flushed && px == r.last {
		return nil
	}
	if err := r.out.Draw(r.out.Bounds(), r.m.Image(), image.Point{}); err != nil {
		return fmt.Errorf("draw %s: %w", code, err)
	}
	r.last = px
	r.flushed = true
	r.logger.Trace().Stringer("glyph", code).Msg("frame")
	return nil
}
