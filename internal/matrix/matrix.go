// Package matrix models the 5x5 RGB LED matrix and pushes frames to a
// display.Drawer (a WS2812 chain, the console, or a preview hub).
package matrix

import (
	"fmt"
	"image"
	"sync"
)

const (
	Width  = 5
	Height = 5
	Size   = Width * Height

	DFLT_BRIGHTNESS uint8 = 64
)

// Matrix is the in-memory frame. Cells are in raster order.
type Matrix struct {
	mu         sync.Mutex
	cells      [Size]Color
	brightness uint8
}

func New(brightness uint8) *Matrix {
	if brightness == 0 {
		brightness = DFLT_BRIGHTNESS
	}
	return &Matrix{brightness: brightness}
}

func (m *Matrix) Clear() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cells = [Size]Color{}
}

// Set colors cell i. Out-of-range indices are rejected.
func (m *Matrix) Set(i int, c Color) error {
	if i < 0 || i >= Size {
		return fmt.Errorf("pixel %d out of range [0,%d)", i, Size)
	}
	m.mu.Lock()
	m.cells[i] = c
	m.mu.Unlock()
	return nil
}

func (m *Matrix) At(i int) Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells[i]
}

// Pixels returns a copy of the current frame.
func (m *Matrix) Pixels() [Size]Color {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.cells
}

// Lit returns the indices of all non-black cells in ascending order.
func (m *Matrix) Lit() []int {
	px := m.Pixels()
	out := make([]int, 0, Size)
	for i, c := range px {
		if c != Black {
			out = append(out, i)
		}
	}
	return out
}

// Image lays the frame out as a Size x 1 strip, the shape a WS2812 chain
// expects, with the brightness cap applied.
func (m *Matrix) Image() *image.NRGBA {
	px := m.Pixels()
	im := image.NewNRGBA(image.Rect(0, 0, Size, 1))
	for x := 0; x < Size; x++ {
		im.SetNRGBA(x, 0, px[x].Scaled(m.brightness))
	}
	return im
}
