package port

import "time"

// TelemetryLink exchanges fixed-size register sets with the battery peer.
// None of its methods may block: Poll advances the exchange state and the
// flag accessors only report what already happened.
type TelemetryLink interface {
	Poll()
	HasNewData(clear bool) bool
	// TakeNewData clears the new data flag and returns a copy of the
	// receive set taken in the same step. ok is false when nothing new
	// arrived since the last call.
	TakeNewData() (regs []uint16, ok bool)
	HasReadError(clear bool) bool
	HasTransmissionError(clear bool) bool
	Field(index int) uint16
	SetField(index int, value uint16)
	SetKeepAliveInterval(interval time.Duration)
	SetAckSuppression(mute bool)
}
