package server

import (
	"net/http"
	"time"

	"github.com/berfenger/batlink2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

const REQUEST_TIMEOUT = 2 * time.Second

type snapshotView struct {
	StateOfCharge          float64 `json:"soc"`
	StateOfHealth          float64 `json:"soh"`
	Voltage                float64 `json:"voltage"`
	Current                float64 `json:"current"`
	TotalCapacityWh        uint32  `json:"total_capacity_wh"`
	RemainingCapacityWh    uint32  `json:"remaining_capacity_wh"`
	MaxChargePowerW        uint32  `json:"max_charge_power_w"`
	MaxDischargePowerW     uint32  `json:"max_discharge_power_w"`
	ActivePowerW           int32   `json:"active_power_w"`
	TemperatureMin         float64 `json:"temperature_min"`
	TemperatureMax         float64 `json:"temperature_max"`
	CellVoltageMin         float64 `json:"cell_voltage_min"`
	CellVoltageMax         float64 `json:"cell_voltage_max"`
	Chemistry              string  `json:"chemistry"`
	BMSStatus              string  `json:"bms_status"`
	UpstreamFault          bool    `json:"upstream_fault"`
	AllowsContactorClosing bool    `json:"allows_contactor_closing"`
}

type statusView struct {
	Freshness                      string               `json:"freshness"`
	MinutesLost                    uint32               `json:"minutes_lost"`
	MaxChargePowerW                uint32               `json:"max_charge_power_w"`
	MaxDischargePowerW             uint32               `json:"max_discharge_power_w"`
	LinkReadError                  bool                 `json:"link_read_error"`
	InverterAllowsContactorClosing bool                 `json:"inverter_allows_contactor_closing"`
	Snapshot                       *snapshotView        `json:"snapshot,omitempty"`
	Events                         []domain.EventRecord `json:"events"`
}

type contactorAllowBody struct {
	Allow *bool `json:"allow"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	e.HideBanner = true
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/status", s.StatusHandler)
	e.PUT("/contactor/allow", s.ContactorAllowHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) StatusHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetBatteryStatusRequest{}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.GetBatteryStatusResponse)
	if !ok || response.Status == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "status not available")
	}
	if response.HasResponseError() {
		return echo.NewHTTPError(http.StatusInternalServerError, response.GetResponseError().Error())
	}
	return c.JSON(http.StatusOK, newStatusView(response.Status, response.Events))
}

func (s *Server) ContactorAllowHandler(c echo.Context) error {
	var body contactorAllowBody
	if err := c.Bind(&body); err != nil {
		return err
	}
	if body.Allow == nil {
		return echo.NewHTTPError(http.StatusBadRequest, "missing field allow")
	}
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.SetContactorAllowRequest{Allow: *body.Allow}, REQUEST_TIMEOUT).Result()
	if err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	response, ok := res.(domain.SetContactorAllowResponse)
	if !ok {
		return echo.NewHTTPError(http.StatusInternalServerError, "unexpected response")
	}
	return c.JSON(http.StatusOK, map[string]bool{
		"allow":   *body.Allow,
		"changed": response.Changed,
	})
}

func newStatusView(status *domain.BatteryStatus, entries []domain.EventEntry) statusView {
	view := statusView{
		Freshness:                      status.Freshness.String(),
		MinutesLost:                    status.MinutesLost,
		MaxChargePowerW:                status.Limits.MaxChargePowerW,
		MaxDischargePowerW:             status.Limits.MaxDischargePowerW,
		LinkReadError:                  status.LinkReadError,
		InverterAllowsContactorClosing: status.InverterAllowsContactorClosing,
		Events:                         []domain.EventRecord{},
	}
	for _, e := range entries {
		view.Events = append(view.Events, e.Record())
	}
	if status.HasSnapshot {
		snap := status.Snapshot
		view.Snapshot = &snapshotView{
			StateOfCharge:          float64(snap.StateOfChargePptt) / 100,
			StateOfHealth:          float64(snap.StateOfHealthPptt) / 100,
			Voltage:                float64(snap.VoltageDV) / 10,
			Current:                float64(snap.CurrentDA) / 10,
			TotalCapacityWh:        snap.TotalCapacityWh,
			RemainingCapacityWh:    snap.RemainingCapacityWh,
			MaxChargePowerW:        snap.MaxChargePowerW,
			MaxDischargePowerW:     snap.MaxDischargePowerW,
			ActivePowerW:           snap.ActivePowerW,
			TemperatureMin:         float64(snap.TemperatureMinDC) / 10,
			TemperatureMax:         float64(snap.TemperatureMaxDC) / 10,
			CellVoltageMin:         float64(snap.CellMinVoltageMV) / 1000,
			CellVoltageMax:         float64(snap.CellMaxVoltageMV) / 1000,
			Chemistry:              snap.Chemistry.String(),
			BMSStatus:              snap.BMSStatus.String(),
			UpstreamFault:          snap.UpstreamFault,
			AllowsContactorClosing: snap.AllowsContactorClosing,
		}
	}
	return view
}
