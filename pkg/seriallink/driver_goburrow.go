package seriallink

import (
	"fmt"
	"net/url"
	"sync"

	"github.com/goburrow/modbus"
)

type connector interface {
	Connect() error
	Close() error
}

// GoburrowDriver is the alternate transport. It serializes requests since
// the handler is not safe for concurrent use.
type GoburrowDriver struct {
	mu         sync.Mutex
	handler    connector
	client     modbus.Client
	instrument []Instrument
}

func NewGoburrowDriver(cfg Config) (*GoburrowDriver, error) {
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("seriallink: invalid url %q: %w", cfg.URL, err)
	}

	var handler interface {
		connector
		modbus.ClientHandler
	}
	switch u.Scheme {
	case "rtu":
		h := modbus.NewRTUClientHandler(u.Path)
		h.BaudRate = int(cfg.Speed)
		h.DataBits = 8
		h.Parity = "N"
		h.StopBits = 1
		h.SlaveId = cfg.UnitId
		h.Timeout = cfg.Timeout
		handler = h
	case "tcp":
		h := modbus.NewTCPClientHandler(u.Host)
		h.SlaveId = cfg.UnitId
		h.Timeout = cfg.Timeout
		handler = h
	default:
		return nil, fmt.Errorf("seriallink: unsupported scheme %q", u.Scheme)
	}

	return &GoburrowDriver{
		handler:    handler,
		client:     modbus.NewClient(handler),
		instrument: cfg.Instrument,
	}, nil
}

func (d *GoburrowDriver) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler.Connect()
}

func (d *GoburrowDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.handler.Close()
}

func (d *GoburrowDriver) ReadRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer RecordTimer("ReadRegisters", d.instrument)()
	b, err := d.client.ReadHoldingRegisters(addr, quantity)
	if err != nil {
		return nil, err
	}
	return unpackRegisters(b), nil
}

func (d *GoburrowDriver) WriteRegisters(addr uint16, values []uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer RecordTimer("WriteRegisters", d.instrument)()
	_, err := d.client.WriteMultipleRegisters(addr, uint16(len(values)), packRegisters(values))
	return err
}

func packRegisters(regs []uint16) []byte {
	out := make([]byte, len(regs)*2)
	for i, r := range regs {
		out[2*i] = byte(r >> 8)
		out[2*i+1] = byte(r)
	}
	return out
}

func unpackRegisters(b []byte) []uint16 {
	out := make([]uint16, len(b)/2)
	for i := range out {
		out[i] = uint16(b[2*i])<<8 | uint16(b[2*i+1])
	}
	return out
}

// ensure interface compliance
var _ Driver = (*GoburrowDriver)(nil)
