package matrix

import (
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"strings"

	"github.com/rs/zerolog"
	"periph.io/x/conn/v3/display"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/conn/v3/spi/spireg"
	"periph.io/x/devices/v3/nrzled"
	"periph.io/x/extra/devices/screen"
)

// NRZ bit rate for the WS2812 chain.
const DFLT_FREQ = 2500 * physic.KiloHertz

const (
	DriverSPI     = "spi"
	DriverConsole = "console"
	DriverNone    = "none"
)

// Output is an opened matrix sink.
type Output struct {
	display.Drawer
	// Hardware is true when frames reach a real LED chain.
	Hardware bool
	port     spi.PortCloser
}

func (o *Output) Close() error {
	var errs []error
	if err := o.Drawer.Halt(); err != nil {
		errs = append(errs, err)
	}
	if o.port != nil {
		if err := o.port.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Open returns the sink for driver. For DriverSPI it opens spiDev (empty
// selects the first registered port) and drives a WS2812 chain through
// nrzled; when no SPI port can be found it falls back to the console.
// host.Init must have been called first.
func Open(logger zerolog.Logger, driver string, spiDev string) (*Output, error) {
	switch driver {
	case DriverNone:
		return &Output{Drawer: Discard}, nil
	case DriverConsole:
		return &Output{Drawer: screen.New(Size)}, nil
	case DriverSPI, "":
	default:
		return nil, fmt.Errorf("unknown matrix driver %q", driver)
	}

	ss, err := spireg.Open(spiDev)
	if err != nil {
		logger.Warn().Err(err).Str("spi_dev", spiDev).Msg("no SPI port; printing the matrix on the console")
		return &Output{Drawer: screen.New(Size)}, nil
	}
	d, err := NewNRZ(ss)
	if err != nil {
		_ = ss.Close()
		return nil, err
	}
	return &Output{Drawer: d, Hardware: true, port: ss}, nil
}

// NewNRZ drives a Size-pixel WS2812 chain on p.
func NewNRZ(p spi.Port) (*nrzled.Dev, error) {
	o := nrzled.Opts{
		NumPixels: Size,
		Channels:  3,
		Freq:      DFLT_FREQ,
	}
	d, err := nrzled.NewSPI(p, &o)
	if err != nil {
		return nil, fmt.Errorf("nrzled: %w", err)
	}
	if err := d.Halt(); err != nil {
		return nil, fmt.Errorf("nrzled halt: %w", err)
	}
	return d, nil
}

// Discard accepts and drops every frame.
var Discard display.Drawer = discard{}

type discard struct{}

func (discard) String() string                                       { return "discard" }
func (discard) Halt() error                                          { return nil }
func (discard) ColorModel() color.Model                              { return color.NRGBAModel }
func (discard) Bounds() image.Rectangle                              { return image.Rect(0, 0, Size, 1) }
func (discard) Draw(image.Rectangle, image.Image, image.Point) error { return nil }

// Tee fans every frame out to all ds. The first drawer sets the bounds.
func Tee(ds ...display.Drawer) display.Drawer {
	return tee(ds)
}

type tee []display.Drawer

func (t tee) String() string {
	names := make([]string, 0, len(t))
	for _, d := range t {
		names = append(names, d.String())
	}
	return "tee(" + strings.Join(names, ",") + ")"
}

func (t tee) Halt() error {
	var errs []error
	for _, d := range t {
		if err := d.Halt(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (t tee) ColorModel() color.Model { return color.NRGBAModel }

func (t tee) Bounds() image.Rectangle {
	if len(t) == 0 {
		return image.Rect(0, 0, Size, 1)
	}
	return t[0].Bounds()
}

func (t tee) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	var errs []error
	for _, d := range t {
		if err := d.Draw(r, src, sp); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d, err))
		}
	}
	return errors.Join(errs...)
}

// Capture keeps the last frame drawn to it. Useful when no hardware is
// attached and for tests.
type Capture struct {
	Frames int
	last   *image.NRGBA
}

func (c *Capture) String() string          { return "capture" }
func (c *Capture) Halt() error             { return nil }
func (c *Capture) ColorModel() color.Model { return color.NRGBAModel }
func (c *Capture) Bounds() image.Rectangle { return image.Rect(0, 0, Size, 1) }

func (c *Capture) Draw(r image.Rectangle, src image.Image, sp image.Point) error {
	im := image.NewNRGBA(c.Bounds())
	draw.Draw(im, r.Intersect(im.Bounds()), src, sp, draw.Src)
	c.last = im
	c.Frames++
	return nil
}

// Last returns the last frame, or nil.
func (c *Capture) Last() *image.NRGBA {
	return c.last
}
