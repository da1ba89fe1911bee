package orchestration

import (
	"context"
	"time"

	"github.com/itsneelabh/fraudmind/core"
)

// ContextStage derives metrics and categorical signals from the
// transaction against the customer's behavioral profile.
type ContextStage struct {
	logger core.Logger
}

func (s *ContextStage) Name() string { return "TransactionContext" }

// extractHour pulls the hour-of-day from an ISO-8601 timestamp. Falls
// back to noon when parsing fails.
func extractHour(timestamp string) int {
	layouts := []string{
		time.RFC3339,
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
	}
	for _, layout := range layouts {
		if t, err := time.Parse(layout, timestamp); err == nil {
			return t.Hour()
		}
	}
	return 12
}

func containsString(list []string, value string) bool {
	for _, v := range list {
		if v == value {
			return true
		}
	}
	return false
}

func (s *ContextStage) Run(ctx context.Context, state *EvalState) error {
	view := state.Consolidated

	hour := extractHour(view.Timestamp)

	amountRatio := 999.0
	if view.UsualAmountAvg > 0 {
		amountRatio = core.Round2(view.Amount / view.UsualAmountAvg)
	}

	hourOutside := hour < view.UsualHoursStart || hour > view.UsualHoursEnd
	newCountry := !containsString(view.UsualCountries, view.Country)
	newDevice := !containsString(view.UsualDevices, view.DeviceID)

	state.Metrics.SetAmountRatio(amountRatio)
	state.Metrics.SetHour(hour)
	state.Metrics.SetHourOutside(hourOutside)
	state.Metrics.SetNewCountry(newCountry)
	state.Metrics.SetNewDevice(newDevice)

	if amountRatio > 3 {
		state.AddSignal(core.SignalAmountOutOfRange)
	}
	if hourOutside {
		state.AddSignal(core.SignalUnusualHour)
	}
	if newCountry {
		state.AddSignal(core.SignalUnusualCountry)
	}
	if newDevice {
		state.AddSignal(core.SignalNewDevice)
	}

	s.logger.DebugWithContext(ctx, "Analyzed transaction context", map[string]interface{}{
		"transaction_id": state.TransactionID,
		"amount_ratio":   amountRatio,
		"hour_outside":   hourOutside,
		"signals":        len(state.Signals),
	})
	return nil
}
