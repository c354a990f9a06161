package seriallink

import (
	"errors"
	"sync"
)

var ErrOutOfRange = errors.New("seriallink: register address out of range")

// MemoryDriver is an in-process register bank. It stands in for the battery
// peer in tests and in the memory driver mode.
type MemoryDriver struct {
	mu         sync.Mutex
	holding    []uint16
	written    []uint16
	failReads  int
	failWrites int
	writes     int
}

func NewMemoryDriver(recvSize, sendSize int) *MemoryDriver {
	return &MemoryDriver{
		holding: make([]uint16, recvSize),
		written: make([]uint16, sendSize),
	}
}

func (d *MemoryDriver) Open() error { return nil }

func (d *MemoryDriver) Close() error { return nil }

func (d *MemoryDriver) ReadRegisters(addr uint16, quantity uint16) ([]uint16, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failReads > 0 {
		d.failReads--
		return nil, errors.New("seriallink: simulated read failure")
	}
	end := int(addr) + int(quantity)
	if end > len(d.holding) {
		return nil, ErrOutOfRange
	}
	return append([]uint16(nil), d.holding[addr:end]...), nil
}

func (d *MemoryDriver) WriteRegisters(addr uint16, values []uint16) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.failWrites > 0 {
		d.failWrites--
		return errors.New("seriallink: simulated write failure")
	}
	end := int(addr) + len(values)
	if end > len(d.written) {
		return ErrOutOfRange
	}
	copy(d.written[addr:end], values)
	d.writes++
	return nil
}

// SetRegisters loads the values the peer reports, starting at addr.
func (d *MemoryDriver) SetRegisters(addr uint16, values []uint16) {
	d.mu.Lock()
	defer d.mu.Unlock()
	copy(d.holding[addr:], values)
}

// Written returns what the link last sent to the peer.
func (d *MemoryDriver) Written() []uint16 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]uint16(nil), d.written...)
}

func (d *MemoryDriver) Writes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.writes
}

func (d *MemoryDriver) FailReads(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failReads = n
}

func (d *MemoryDriver) FailWrites(n int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.failWrites = n
}

// ensure interface compliance
var _ Driver = (*MemoryDriver)(nil)
