package port

import "github.com/berfenger/batlink2mqtt/internal/core/domain"

type EventSink interface {
	Set(id domain.EventID, data uint8)
	Clear(id domain.EventID)
}

// EventRecorder receives event activations and data changes.
type EventRecorder interface {
	Record(record domain.EventRecord) error
}
