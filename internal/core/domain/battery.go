package domain

// Chemistry is the cell chemistry reported by the battery peer.
type Chemistry uint16

const (
	CHEMISTRY_NCA Chemistry = iota
	CHEMISTRY_NMC
	CHEMISTRY_LFP
)

func (c Chemistry) String() string {
	switch c {
	case CHEMISTRY_NCA:
		return "NCA"
	case CHEMISTRY_NMC:
		return "NMC"
	case CHEMISTRY_LFP:
		return "LFP"
	default:
		return "unknown"
	}
}

// BMSStatus is the system status code the peer embeds in its register set.
type BMSStatus uint16

const (
	BMS_STATUS_STANDBY BMSStatus = iota
	BMS_STATUS_INACTIVE
	BMS_STATUS_DARKSTART
	BMS_STATUS_ACTIVE
	BMS_STATUS_FAULT
	BMS_STATUS_UPDATING
)

func (s BMSStatus) String() string {
	switch s {
	case BMS_STATUS_STANDBY:
		return "standby"
	case BMS_STATUS_INACTIVE:
		return "inactive"
	case BMS_STATUS_DARKSTART:
		return "darkstart"
	case BMS_STATUS_ACTIVE:
		return "active"
	case BMS_STATUS_FAULT:
		return "fault"
	case BMS_STATUS_UPDATING:
		return "updating"
	default:
		return "unknown"
	}
}

// BatterySnapshot is one fully decoded register set.
type BatterySnapshot struct {
	StateOfChargePptt      uint16 // hundredths of a percent
	StateOfHealthPptt      uint16 // hundredths of a percent
	VoltageDV              uint16
	CurrentDA              int16
	TotalCapacityWh        uint32
	RemainingCapacityWh    uint32
	MaxDischargePowerW     uint32
	MaxChargePowerW        uint32
	ActivePowerW           int32
	TemperatureMinDC       int16
	TemperatureMaxDC       int16
	CellMaxVoltageMV       uint16
	CellMinVoltageMV       uint16
	Chemistry              Chemistry
	BMSStatus              BMSStatus
	UpstreamFault          bool
	AllowsContactorClosing bool
}

// FreshnessState is the governor's view of how trustworthy the exposed limits are.
type FreshnessState uint8

const (
	FRESHNESS_NO_DATA_YET FreshnessState = iota
	FRESHNESS_FRESH
	FRESHNESS_DECAYING
	FRESHNESS_EXPIRED
)

func (s FreshnessState) String() string {
	switch s {
	case FRESHNESS_NO_DATA_YET:
		return "no_data_yet"
	case FRESHNESS_FRESH:
		return "fresh"
	case FRESHNESS_DECAYING:
		return "decaying"
	case FRESHNESS_EXPIRED:
		return "expired"
	default:
		return "unknown"
	}
}

// PowerLimits are the charge/discharge limits exposed to the inverter side.
type PowerLimits struct {
	MaxChargePowerW    uint32
	MaxDischargePowerW uint32
}

// BatteryStatus is the whole value published to the shared data store.
// It is always replaced as a unit.
type BatteryStatus struct {
	Snapshot                       BatterySnapshot
	HasSnapshot                    bool
	Limits                         PowerLimits
	Freshness                      FreshnessState
	MinutesLost                    uint32
	LastGoodAt                     uint32 // link clock millis
	UpdatedAt                      uint32 // link clock millis
	LinkReadError                  bool
	InverterAllowsContactorClosing bool
}

// GovernorState is the memory the governor keeps between ticks.
// Only the governor tick mutates it.
type GovernorState struct {
	HasGood               bool
	LastGoodMillis        uint32
	LastGoodMaxChargeW    uint32
	LastGoodMaxDischargeW uint32
	LoggedMinutesLost     uint32

	ErrorLatched bool
	Reads        uint32
	Errors       uint32
	ReportMillis uint32

	UpdateMillis uint32
}
