package datalayer

import (
	"sync/atomic"
	"time"

	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/core/port"
)

// Store is the shared battery data layer. The governor is its only writer;
// any goroutine may read it.
type Store struct {
	status        atomic.Pointer[domain.BatteryStatus]
	inverterAllow atomic.Bool
}

func NewStore(inverterAllowsContactorClosing bool) *Store {
	s := &Store{}
	s.inverterAllow.Store(inverterAllowsContactorClosing)
	s.status.Store(&domain.BatteryStatus{
		InverterAllowsContactorClosing: inverterAllowsContactorClosing,
	})
	return s
}

func (s *Store) Status() *domain.BatteryStatus {
	return s.status.Load()
}

// PublishStatus replaces the exposed status. Readers holding the previous
// pointer keep a consistent copy.
func (s *Store) PublishStatus(status domain.BatteryStatus) {
	s.status.Store(&status)
}

func (s *Store) InverterAllowsContactorClosing() bool {
	return s.inverterAllow.Load()
}

// SetInverterAllowsContactorClosing returns true when the value changed.
func (s *Store) SetInverterAllowsContactorClosing(allow bool) bool {
	return s.inverterAllow.Swap(allow) != allow
}

// MonotonicClock counts milliseconds since creation in a wrapping uint32,
// like a microcontroller millis() counter.
type MonotonicClock struct {
	start time.Time
}

func NewMonotonicClock() *MonotonicClock {
	return &MonotonicClock{start: time.Now()}
}

func (c *MonotonicClock) NowMillis() uint32 {
	return uint32(time.Since(c.start).Milliseconds())
}

// ensure interface compliance
var _ port.StatusStore = (*Store)(nil)
var _ port.Clock = (*MonotonicClock)(nil)
