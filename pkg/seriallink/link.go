package seriallink

import (
	"sync"
	"sync/atomic"
	"time"

	"github.com/primetalk/goio/io"
	"go.uber.org/zap"
)

const (
	DEFAULT_POLL_INTERVAL = 200 * time.Millisecond
	DEFAULT_TIMEOUT       = 1 * time.Second
)

// Link runs register exchanges on a background goroutine and exposes their
// outcome through flags. None of its exported methods block, except
// Exchange which performs one exchange synchronously.
type Link struct {
	driver Driver
	cfg    Config
	logger *zap.Logger
	now    func() time.Time

	busy      atomic.Bool
	lastStart time.Time

	mu        sync.Mutex
	connected bool
	recv      []uint16
	send      []uint16
	sendDirty bool
	lastSend  time.Time
	keepAlive time.Duration
	muteAck   bool
	newData   bool
	readErr   bool
	txErr     bool
}

func New(cfg Config, logger *zap.Logger) (*Link, error) {
	driver, err := NewDriver(cfg)
	if err != nil {
		return nil, err
	}
	return NewWithDriver(driver, cfg, logger), nil
}

func NewWithDriver(driver Driver, cfg Config, logger *zap.Logger) *Link {
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DEFAULT_POLL_INTERVAL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DEFAULT_TIMEOUT
	}
	return &Link{
		driver: driver,
		cfg:    cfg,
		logger: logger,
		now:    time.Now,
		recv:   make([]uint16, cfg.RecvCount),
		send:   make([]uint16, cfg.SendCount),
	}
}

// Poll starts a background exchange when the previous one has finished and
// the poll interval has elapsed.
func (l *Link) Poll() {
	now := l.now()
	if now.Sub(l.lastStart) < l.cfg.PollInterval {
		return
	}
	if !l.busy.CompareAndSwap(false, true) {
		return
	}
	l.lastStart = now
	go func() {
		defer l.busy.Store(false)
		l.Exchange()
	}()
}

// Exchange reads the receive set and, when due, writes the send set.
func (l *Link) Exchange() {
	regs, err := l.read()

	l.mu.Lock()
	if err != nil {
		l.readErr = true
	} else {
		copy(l.recv, regs)
		l.newData = true
	}
	send, due := l.sendDue()
	muted := l.muteAck
	l.mu.Unlock()

	if err != nil {
		l.logger.Debug("seriallink: read failed", zap.Error(err))
		l.disconnect()
		return
	}
	if !due {
		return
	}

	if err := l.run(func() error { return l.driver.WriteRegisters(l.cfg.SendAddress, send) }); err != nil {
		l.logger.Debug("seriallink: write failed", zap.Error(err))
		l.mu.Lock()
		l.sendDirty = true
		if !muted {
			l.txErr = true
		}
		l.mu.Unlock()
	}
}

func (l *Link) read() ([]uint16, error) {
	if err := l.connect(); err != nil {
		return nil, err
	}
	task := io.Eval(func() ([]uint16, error) {
		return l.driver.ReadRegisters(l.cfg.RecvAddress, l.cfg.RecvCount)
	})
	task = io.WithTimeout[[]uint16](l.cfg.Timeout)(task)
	result := io.RunSync(task)
	if result.Error != nil {
		return nil, result.Error
	}
	// a partial set is never handed to the decoder
	if len(result.Value) != int(l.cfg.RecvCount) {
		return nil, ErrShortRead
	}
	return result.Value, nil
}

func (l *Link) run(fn func() error) error {
	task := io.Eval(func() (struct{}, error) {
		return struct{}{}, fn()
	})
	task = io.WithTimeout[struct{}](l.cfg.Timeout)(task)
	return io.RunSync(task).Error
}

// must be called with mu held
func (l *Link) sendDue() ([]uint16, bool) {
	if len(l.send) == 0 {
		return nil, false
	}
	now := l.now()
	if !l.sendDirty && (l.keepAlive <= 0 || now.Sub(l.lastSend) < l.keepAlive) {
		return nil, false
	}
	l.sendDirty = false
	l.lastSend = now
	return append([]uint16(nil), l.send...), true
}

func (l *Link) connect() error {
	l.mu.Lock()
	connected := l.connected
	l.mu.Unlock()
	if connected {
		return nil
	}
	if err := l.run(l.driver.Open); err != nil {
		return err
	}
	l.mu.Lock()
	l.connected = true
	l.mu.Unlock()
	return nil
}

// the next exchange reopens the port
func (l *Link) disconnect() {
	l.mu.Lock()
	connected := l.connected
	l.connected = false
	l.mu.Unlock()
	if connected {
		_ = l.driver.Close()
	}
}

// Open connects the driver ahead of the first exchange. Exchanges connect
// lazily, so a failed Open is not fatal.
func (l *Link) Open() error {
	return l.connect()
}

func (l *Link) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.connected = false
	return l.driver.Close()
}

func (l *Link) HasNewData(clear bool) bool {
	return l.flag(&l.newData, clear)
}

// TakeNewData hands out the receive set of exactly one exchange. The flag
// and the copy are taken under the same lock hold, so a concurrent Exchange
// lands either wholly before or wholly after it.
func (l *Link) TakeNewData() ([]uint16, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.newData {
		return nil, false
	}
	l.newData = false
	return append([]uint16(nil), l.recv...), true
}

func (l *Link) HasReadError(clear bool) bool {
	return l.flag(&l.readErr, clear)
}

func (l *Link) HasTransmissionError(clear bool) bool {
	return l.flag(&l.txErr, clear)
}

func (l *Link) flag(f *bool, clear bool) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	v := *f
	if clear {
		*f = false
	}
	return v
}

func (l *Link) Field(index int) uint16 {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.recv) {
		return 0
	}
	return l.recv[index]
}

func (l *Link) SetField(index int, value uint16) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if index < 0 || index >= len(l.send) || l.send[index] == value {
		return
	}
	l.send[index] = value
	l.sendDirty = true
}

// SetKeepAliveInterval makes the send set go out at least this often even
// when it did not change.
func (l *Link) SetKeepAliveInterval(interval time.Duration) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.keepAlive = interval
}

// SetAckSuppression stops write failures from raising the transmission
// error flag.
func (l *Link) SetAckSuppression(mute bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.muteAck = mute
}
