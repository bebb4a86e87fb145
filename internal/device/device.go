// Package device reports battery stats of the host, read from a PiSugar
// battery controller over I2C when one is present.
package device

import (
	"context"
	"errors"
	"fmt"
	"runtime"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/i2c"
	"periph.io/x/conn/v3/i2c/i2creg"
	"periph.io/x/host/v3"

	appLog "homewidget/internal/log"
)

// DefaultAddr is the PiSugar 3 I2C address.
const DefaultAddr = 0x57

// PiSugar 3 registers.
const (
	regPower       = 0x02 // bit 7: external power connected
	regVoltageHigh = 0x22
	regVoltageLow  = 0x23
	regPercent     = 0x2A
)

// Stats is the device line of the terminal widget.
type Stats struct {
	// Percent is the battery level 0-100, or -1 when unknown.
	Percent int `json:"percent"`
	// VoltageMv is the battery voltage in millivolts, 0 when unknown.
	VoltageMv int    `json:"voltage_mv"`
	Charging  bool   `json:"charging"`
	Source    string `json:"source"`
}

// Known reports whether Percent holds a reading.
func (s Stats) Known() bool { return s.Percent >= 0 }

// Reader obtains battery stats.
type Reader interface {
	Read(ctx context.Context) (Stats, error)
}

// staticReader is used off-device and always reports unknown.
type staticReader struct{}

// NewStaticReader returns a Reader reporting an unknown battery level.
func NewStaticReader() Reader { return staticReader{} }

func (staticReader) Read(context.Context) (Stats, error) {
	return Stats{Percent: -1, Source: "none"}, nil
}

// i2cReader reads a PiSugar controller. The bus is opened per read so a
// controller that appears later is picked up.
type i2cReader struct {
	busName string
	addr    uint16
}

// NewI2CReader reads the controller at addr on busName ("" for the default
// bus, /dev/i2c-1 on a Raspberry Pi).
func NewI2CReader(busName string, addr uint16) Reader {
	return &i2cReader{busName: busName, addr: addr}
}

func (r *i2cReader) Read(ctx context.Context) (Stats, error) {
	if runtime.GOOS != "linux" {
		return Stats{}, errors.New("device: i2c unavailable on " + runtime.GOOS)
	}
	if err := ctx.Err(); err != nil {
		return Stats{}, err
	}
	if _, err := host.Init(); err != nil {
		return Stats{}, fmt.Errorf("device: host init: %w", err)
	}

	bus, err := i2creg.Open(r.busName)
	if err != nil {
		return Stats{}, fmt.Errorf("device: open i2c bus: %w", err)
	}
	defer bus.Close()

	return readPiSugar(&i2c.Dev{Bus: bus, Addr: r.addr})
}

// readPiSugar reads the PiSugar registers over c.
func readPiSugar(c conn.Conn) (Stats, error) {
	readReg := func(reg byte) (byte, error) {
		buf := []byte{0}
		if err := c.Tx([]byte{reg}, buf); err != nil {
			return 0, fmt.Errorf("device: read register %#x: %w", reg, err)
		}
		return buf[0], nil
	}

	power, err := readReg(regPower)
	if err != nil {
		return Stats{}, err
	}
	high, err := readReg(regVoltageHigh)
	if err != nil {
		return Stats{}, err
	}
	low, err := readReg(regVoltageLow)
	if err != nil {
		return Stats{}, err
	}
	pct, err := readReg(regPercent)
	if err != nil {
		return Stats{}, err
	}

	return Stats{
		Percent:   min(int(pct), 100),
		VoltageMv: int(uint16(high)<<8 | uint16(low)),
		Charging:  power&0x80 != 0,
		Source:    "pisugar",
	}, nil
}

// Default returns the I2C reader when a probe read succeeds and the static
// reader otherwise.
func Default(ctx context.Context) Reader {
	if runtime.GOOS != "linux" {
		return NewStaticReader()
	}
	r := NewI2CReader("", DefaultAddr)
	if _, err := r.Read(ctx); err != nil {
		appLog.Info("device: no battery controller, using static reader", "reason", err)
		return NewStaticReader()
	}
	return r
}
