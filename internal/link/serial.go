package link

import (
	"fmt"

	"github.com/tarm/serial"
)

// OpenSerial opens the wired line. The returned port is only written to.
func OpenSerial(name string, baud int) (*serial.Port, error) {
	c := &serial.Config{
		Name: name,
		Baud: baud,
	}
	p, err := serial.OpenPort(c)
	if err != nil {
		return nil, fmt.Errorf("open serial %s: %w", name, err)
	}
	return p, nil
}
