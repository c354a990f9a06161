package port

import "github.com/berfenger/batlink2mqtt/internal/core/domain"

type StatusStore interface {
	Status() *domain.BatteryStatus
	PublishStatus(status domain.BatteryStatus)
	InverterAllowsContactorClosing() bool
	SetInverterAllowsContactorClosing(allow bool) bool
}
