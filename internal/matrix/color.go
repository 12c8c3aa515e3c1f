package matrix

import "image/color"

// Color is a packed 0xRRGGBB value, the same layout FastLED's CRGB uses.
type Color uint32

const (
	RED_OFFSET   uint8 = 0x10
	GREEN_OFFSET uint8 = 0x08
	BLUE_OFFSET  uint8 = 0x0
)

const (
	Black Color = 0x000000
	Red   Color = 0xFF0000
	Green Color = 0x00FF00
	Blue  Color = 0x0000FF
	White Color = 0xFFFFFF
)

// IdleColor is the neutral color of the idle square.
const IdleColor = Green

func RGB(r, g, b uint8) Color {
	var c Color
	c = c.SetR(r)
	c = c.SetG(g)
	c = c.SetB(b)
	return c
}

func setcolor(c uint32, n uint8, off uint8) uint32 {
	var val uint32 = uint32(n) << off
	var mask uint32 = 0xFF << off
	return (c & (^mask)) | val
}

func getcolor(c uint32, off uint8) uint8 {
	var mask uint32 = 0xFF << off
	return uint8((c & mask) >> off)
}

func (c Color) R() uint8 { return getcolor(uint32(c), RED_OFFSET) }
func (c Color) G() uint8 { return getcolor(uint32(c), GREEN_OFFSET) }
func (c Color) B() uint8 { return getcolor(uint32(c), BLUE_OFFSET) }

func (c Color) SetR(r uint8) Color { return Color(setcolor(uint32(c), r, RED_OFFSET)) }
func (c Color) SetG(g uint8) Color { return Color(setcolor(uint32(c), g, GREEN_OFFSET)) }
func (c Color) SetB(b uint8) Color { return Color(setcolor(uint32(c), b, BLUE_OFFSET)) }

// Scaled returns the channels multiplied by brightness/255.
func (c Color) Scaled(brightness uint8) color.NRGBA {
	s := uint32(brightness)
	return color.NRGBA{
		R: uint8(uint32(c.R()) * s / 255),
		G: uint8(uint32(c.G()) * s / 255),
		B: uint8(uint32(c.B()) * s / 255),
		A: 255,
	}
}

func (c Color) NRGBA() color.NRGBA {
	return c.Scaled(255)
}
