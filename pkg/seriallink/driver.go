package seriallink

import (
	"errors"
	"fmt"
	"time"
)

const (
	DRIVER_MODBUS   = "modbus"
	DRIVER_GOBURROW = "goburrow"
	DRIVER_MEMORY   = "memory"
)

var ErrShortRead = errors.New("seriallink: incomplete register set")

// Driver performs one blocking register exchange with the peer.
// Implementations must be safe to call from one goroutine at a time.
type Driver interface {
	Open() error
	Close() error
	ReadRegisters(addr uint16, quantity uint16) ([]uint16, error)
	WriteRegisters(addr uint16, values []uint16) error
}

type Instrument struct {
	RecordTime func(fnName string, duration time.Duration)
}

type Config struct {
	Driver       string
	URL          string // rtu:///dev/ttyUSB0 or tcp://host:port
	Speed        uint
	UnitId       uint8
	Timeout      time.Duration
	PollInterval time.Duration
	RecvAddress  uint16
	RecvCount    uint16
	SendAddress  uint16
	SendCount    uint16
	Instrument   []Instrument
}

// NewDriver selects the transport named by cfg.Driver.
func NewDriver(cfg Config) (Driver, error) {
	switch cfg.Driver {
	case DRIVER_MODBUS, "":
		return NewModbusDriver(cfg)
	case DRIVER_GOBURROW:
		return NewGoburrowDriver(cfg)
	case DRIVER_MEMORY:
		return NewMemoryDriver(int(cfg.RecvAddress)+int(cfg.RecvCount), int(cfg.SendAddress)+int(cfg.SendCount)), nil
	default:
		return nil, fmt.Errorf("seriallink: unknown driver %q", cfg.Driver)
	}
}

func RecordTimer(name string, instrument []Instrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}
