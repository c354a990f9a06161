package domain

import "time"

// EventID identifies a battery/link event kind.
type EventID uint8

const (
	EVENT_LINK_READ_ERROR EventID = iota
	EVENT_LINK_TRANSMISSION_ERROR
	EVENT_UPSTREAM_FAULT
	EVENT_STALENESS_WARNING
	EVENT_STALENESS_FAILURE
	EVENT_COUNT
)

type EventSeverity uint8

const (
	SEVERITY_INFO EventSeverity = iota
	SEVERITY_WARNING
	SEVERITY_ERROR
)

func (s EventSeverity) String() string {
	switch s {
	case SEVERITY_INFO:
		return "INFO"
	case SEVERITY_WARNING:
		return "WARNING"
	case SEVERITY_ERROR:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}

func (id EventID) String() string {
	switch id {
	case EVENT_LINK_READ_ERROR:
		return "LINK_READ_ERROR"
	case EVENT_LINK_TRANSMISSION_ERROR:
		return "LINK_TRANSMISSION_ERROR"
	case EVENT_UPSTREAM_FAULT:
		return "UPSTREAM_FAULT"
	case EVENT_STALENESS_WARNING:
		return "STALENESS_WARNING"
	case EVENT_STALENESS_FAILURE:
		return "STALENESS_FAILURE"
	default:
		return "UNKNOWN"
	}
}

// Severity is fixed per event kind.
func (id EventID) Severity() EventSeverity {
	switch id {
	case EVENT_UPSTREAM_FAULT, EVENT_STALENESS_FAILURE:
		return SEVERITY_ERROR
	case EVENT_LINK_READ_ERROR, EVENT_LINK_TRANSMISSION_ERROR, EVENT_STALENESS_WARNING:
		return SEVERITY_WARNING
	default:
		return SEVERITY_INFO
	}
}

func (id EventID) Message() string {
	switch id {
	case EVENT_LINK_READ_ERROR:
		return "Serial link read error. Check the cable between battery and inverter boards."
	case EVENT_LINK_TRANSMISSION_ERROR:
		return "Serial link transmission error towards the battery board."
	case EVENT_UPSTREAM_FAULT:
		return "Battery board reports an internal fault. Its limits are not trusted."
	case EVENT_STALENESS_WARNING:
		return "No fresh battery data. Power limits are ramping down (data = minutes lost)."
	case EVENT_STALENESS_FAILURE:
		return "No fresh battery data for too long. Power limits forced to zero (data = minutes lost)."
	default:
		return ""
	}
}

// EventEntry is the registry state kept for one event kind.
type EventEntry struct {
	Id          EventID
	Active      bool
	Occurrences uint32
	Data        uint8
	Timestamp   time.Time
	Published   bool
}

// EventRecord is an event activation or data change as written to journals
// and telemetry.
type EventRecord struct {
	RecordId    string    `json:"-" cbor:"1,keyasint"`
	Event       string    `json:"event_type" cbor:"2,keyasint"`
	Severity    string    `json:"severity" cbor:"3,keyasint"`
	Data        uint8     `json:"data" cbor:"4,keyasint"`
	Occurrences uint32    `json:"count" cbor:"5,keyasint"`
	Message     string    `json:"message" cbor:"6,keyasint,omitempty"`
	Timestamp   time.Time `json:"timestamp" cbor:"7,keyasint"`
}

func (e EventEntry) Record() EventRecord {
	return EventRecord{
		Event:       e.Id.String(),
		Severity:    e.Id.Severity().String(),
		Data:        e.Data,
		Occurrences: e.Occurrences,
		Message:     e.Id.Message(),
		Timestamp:   e.Timestamp,
	}
}

// LinkReport is the read/error tally of one reporting interval.
type LinkReport struct {
	Reads  uint32
	Errors uint32
}
