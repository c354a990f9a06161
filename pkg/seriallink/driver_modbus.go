package seriallink

import (
	"fmt"
	"sync"

	"github.com/simonvetter/modbus"
)

// ModbusDriver talks Modbus RTU over a serial port, or Modbus TCP through a
// serial gateway, depending on the URL scheme.
type ModbusDriver struct {
	mu         sync.Mutex
	client     *modbus.ModbusClient
	unitId     uint8
	instrument []Instrument
}

func NewModbusDriver(cfg Config) (*ModbusDriver, error) {
	client, err := modbus.NewClient(&modbus.ClientConfiguration{
		URL:      cfg.URL,
		Speed:    cfg.Speed,
		DataBits: 8,
		Parity:   modbus.PARITY_NONE,
		StopBits: 1,
		Timeout:  cfg.Timeout,
	})
	if err != nil {
		return nil, fmt.Errorf("seriallink: modbus client: %w", err)
	}
	return &ModbusDriver{
		client:     client,
		unitId:     cfg.UnitId,
		instrument: cfg.Instrument,
	}, nil
}

func (d *ModbusDriver) Open() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.client.Open(); err != nil {
		return err
	}
	return d.client.SetUnitId(d.unitId)
}

func (d *ModbusDriver) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.client.Close()
}

func (d *ModbusDriver) ReadRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer RecordTimer("ReadRegisters", d.instrument)()
	return d.client.ReadRegisters(addr, quantity, modbus.HOLDING_REGISTER)
}

func (d *ModbusDriver) WriteRegisters(addr uint16, values []uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	defer RecordTimer("WriteRegisters", d.instrument)()
	return d.client.WriteRegisters(addr, values)
}

// ensure interface compliance
var _ Driver = (*ModbusDriver)(nil)
