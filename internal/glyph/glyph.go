// Package glyph holds the fixed pixel patterns shown on the 5x5 matrix.
//
// Pixels are addressed in raster order, index = y*5 + x, matching the
// wiring of the WS2812 chain behind the matrix.
package glyph

// Code selects a glyph. Codes 0..6 are bound 1:1 to the input slots.
type Code int

const (
	Up Code = iota
	Down
	Left
	Right
	TextA
	TextB
	TextC

	// Idle is drawn when no input is active. It has no slot.
	Idle Code = -1
)

// Count is the number of slot-bound glyphs.
const Count = 7

var names = map[Code]string{
	Up:    "up",
	Down:  "down",
	Left:  "left",
	Right: "right",
	TextA: "A",
	TextB: "B",
	TextC: "C",
	Idle:  "idle",
}

var patterns = map[Code][]int{
	Up:    {2, 7, 10, 12, 14, 16, 17, 18, 22},
	Down:  {2, 6, 7, 8, 10, 12, 14, 17, 22},
	Left:  {2, 8, 10, 11, 12, 13, 14, 18, 22},
	Right: {2, 6, 10, 11, 12, 13, 14, 16, 22},
	TextA: {1, 3, 6, 7, 8, 11, 13, 16, 17, 18, 22},
	TextB: {2, 3, 6, 8, 12, 13, 16, 18, 22, 23},
	TextC: {1, 2, 3, 6, 8, 13, 16, 18, 21, 22, 23},
	Idle:  {6, 7, 8, 11, 13, 16, 17, 18},
}

// Pattern returns the pixel indices lit for c, or nil for an unknown code.
// The returned slice is a copy.
func Pattern(c Code) []int {
	p, ok := patterns[c]
	if !ok {
		return nil
	}
	out := make([]int, len(p))
	copy(out, p)
	return out
}

// Valid reports whether c is a slot-bound glyph or Idle.
func (c Code) Valid() bool {
	_, ok := patterns[c]
	return ok
}

func (c Code) String() string {
	if n, ok := names[c]; ok {
		return n
	}
	return "unknown"
}
