package service

import (
	"time"

	"github.com/berfenger/batlink2mqtt/internal/core/domain"
	"github.com/berfenger/batlink2mqtt/internal/core/port"
	"go.uber.org/zap"
)

// EventLog is the registry of battery and link events. Occurrences count
// activations, so raising an already active event on every tick is cheap
// and does not inflate the count.
type EventLog struct {
	entries  [domain.EVENT_COUNT]domain.EventEntry
	recorder port.EventRecorder
	now      func() time.Time
	logger   *zap.Logger
}

func NewEventLog(recorder port.EventRecorder, logger *zap.Logger) *EventLog {
	l := &EventLog{
		recorder: recorder,
		now:      time.Now,
		logger:   logger,
	}
	for i := range l.entries {
		l.entries[i].Id = domain.EventID(i)
	}
	return l
}

func (l *EventLog) Set(id domain.EventID, data uint8) {
	if id >= domain.EVENT_COUNT {
		return
	}
	e := &l.entries[id]
	changed := false
	if !e.Active {
		e.Active = true
		e.Occurrences++
		changed = true
	}
	if e.Data != data {
		e.Data = data
		changed = true
	}
	if !changed {
		return
	}
	e.Timestamp = l.now()
	e.Published = false

	fields := []zap.Field{zap.Stringer("event", id), zap.Uint8("data", data), zap.Uint32("count", e.Occurrences)}
	if id.Severity() == domain.SEVERITY_ERROR {
		l.logger.Error("event set", fields...)
	} else {
		l.logger.Warn("event set", fields...)
	}

	if l.recorder != nil {
		if err := l.recorder.Record(e.Record()); err != nil {
			l.logger.Error("event record failed", zap.Stringer("event", id), zap.Error(err))
		}
	}
}

func (l *EventLog) Clear(id domain.EventID) {
	if id >= domain.EVENT_COUNT || !l.entries[id].Active {
		return
	}
	l.entries[id].Active = false
	l.logger.Info("event cleared", zap.Stringer("event", id))
}

func (l *EventLog) Entry(id domain.EventID) domain.EventEntry {
	return l.entries[id]
}

// Entries returns a copy of every event that occurred at least once.
func (l *EventLog) Entries() []domain.EventEntry {
	var entries []domain.EventEntry
	for _, e := range l.entries {
		if e.Occurrences > 0 {
			entries = append(entries, e)
		}
	}
	return entries
}

func (l *EventLog) Unpublished() []domain.EventEntry {
	var entries []domain.EventEntry
	for _, e := range l.entries {
		if e.Occurrences > 0 && !e.Published {
			entries = append(entries, e)
		}
	}
	return entries
}

func (l *EventLog) MarkPublished(id domain.EventID) {
	if id < domain.EVENT_COUNT {
		l.entries[id].Published = true
	}
}

// ensure interface compliance
var _ port.EventSink = (*EventLog)(nil)
