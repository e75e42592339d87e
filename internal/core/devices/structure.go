package devices

import (
	"context"
	"fmt"
	"time"
)

// AwayHome and AwayAway are the normalized structure away states.
const (
	AwayHome = "home"
	AwayAway = "away"
)

// awayModes maps the accepted user-facing values onto the wire values.
var awayModes = map[string]string{
	"on":   AwayAway,
	"away": AwayAway,
	"off":  AwayHome,
	"home": AwayHome,
}

// Structure wraps a structure bucket: one home with its devices, away
// state and arrival (ETA) windows.
type Structure struct {
	Base
}

// Name returns the structure name.
func (s *Structure) Name() string { return s.str("name") }

// Away returns the raw away state.
func (s *Structure) Away() string { return s.str("away") }

// SetAway writes the away state. Accepts home/away and the legacy on/off
// aliases; anything else is an error.
func (s *Structure) SetAway(ctx context.Context, value string) error {
	mode, ok := awayModes[value]
	if !ok {
		return fmt.Errorf("devices: invalid away mode %q", value)
	}
	return s.put(ctx, "structures", map[string]any{"away": mode})
}

// CountryCode returns the ISO country code.
func (s *Structure) CountryCode() string { return s.str("country_code") }

// PostalCode returns the postal code.
func (s *Structure) PostalCode() string { return s.str("postal_code") }

// TimeZone returns the IANA time zone name.
func (s *Structure) TimeZone() string { return s.str("time_zone") }

// SecurityState returns ok or deter. Requires the security state
// permission; not the Nest Secure alarm state.
func (s *Structure) SecurityState() string { return s.str("wwn_security_state") }

// ThermostatCount reports how many known thermostats belong to this
// structure.
func (s *Structure) ThermostatCount() int {
	if s.api == nil {
		return 0
	}
	return s.api.ThermostatCount(s.serial)
}

// ETABegin returns the start of the currently reported arrival window.
func (s *Structure) ETABegin() (time.Time, bool) { return s.timestamp("eta_begin") }

// PeakPeriodStart returns the start of the energy rush hour period.
func (s *Structure) PeakPeriodStart() (time.Time, bool) {
	return s.timestamp("peak_period_start_time")
}

// PeakPeriodEnd returns the end of the energy rush hour period.
func (s *Structure) PeakPeriodEnd() (time.Time, bool) {
	return s.timestamp("peak_period_end_time")
}

// SetETA reports an estimated arrival window. Reuse a trip id to update
// the estimate; Nest may ignore estimates it finds implausible. The
// window end defaults to one minute past begin.
func (s *Structure) SetETA(ctx context.Context, tripID string, begin, end time.Time) error {
	if err := s.checkETA(tripID); err != nil {
		return err
	}
	if begin.IsZero() {
		return fmt.Errorf("devices: eta begin must be set")
	}
	if end.IsZero() {
		end = begin.Add(time.Minute)
	}
	return s.putETA(ctx, tripID, begin.UTC().Format(time.RFC3339), end)
}

// CancelETA withdraws a previously reported trip: the window begin is
// zeroed and the end set to now, signaling the estimate is no longer
// relevant.
func (s *Structure) CancelETA(ctx context.Context, tripID string) error {
	if err := s.checkETA(tripID); err != nil {
		return err
	}
	return s.putETA(ctx, tripID, 0, time.Now().UTC())
}

// checkETA enforces the API rule that ETA writes need a thermostat in
// the structure.
func (s *Structure) checkETA(tripID string) error {
	if tripID == "" {
		return fmt.Errorf("devices: trip id must be set")
	}
	if s.ThermostatCount() == 0 {
		return fmt.Errorf("devices: structure %s has no thermostat, cannot set or cancel ETA", s.serial)
	}
	return nil
}

func (s *Structure) putETA(ctx context.Context, tripID string, begin any, end time.Time) error {
	return s.put(ctx, "structures", map[string]any{
		"eta": etaFields(tripID, begin, end),
	})
}

func etaFields(tripID string, begin any, end time.Time) map[string]any {
	return map[string]any{
		"trip_id":                        tripID,
		"estimated_arrival_window_begin": begin,
		"estimated_arrival_window_end":   end.UTC().Format(time.RFC3339),
	}
}

// Address is gone from the consumer API.
func (s *Structure) Address() (string, error) { return "", ErrFieldRemoved }

// HouseType is gone from the consumer API.
func (s *Structure) HouseType() (string, error) { return "", ErrFieldRemoved }

// MeasurementScale is gone from the consumer API; use the thermostat's
// temperature scale.
func (s *Structure) MeasurementScale() (string, error) { return "", ErrFieldRemoved }

// EmergencyContactPhone is gone from the consumer API.
func (s *Structure) EmergencyContactPhone() (string, error) { return "", ErrFieldRemoved }
