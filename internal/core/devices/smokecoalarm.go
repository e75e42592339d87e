package devices

import "time"

// SmokeCoAlarm wraps a topaz bucket (Nest Protect).
type SmokeCoAlarm struct {
	Device
}

// SmokeStatus returns the smoke alarm state: ok, warning or emergency.
func (s *SmokeCoAlarm) SmokeStatus() string { return s.str("smoke_alarm_state") }

// COStatus returns the carbon monoxide alarm state.
func (s *SmokeCoAlarm) COStatus() string { return s.str("co_alarm_state") }

// BatteryHealth returns ok or replace.
func (s *SmokeCoAlarm) BatteryHealth() string { return s.str("battery_health") }

// ColorStatus returns the device's UI color state: gray, green, yellow
// or red.
func (s *SmokeCoAlarm) ColorStatus() string { return s.str("ui_color_state") }

// ProductID returns the hardware product id.
func (s *SmokeCoAlarm) ProductID() string { return s.str("product_id") }

// SmokeSequenceNumber returns the smoke alarm sequence counter.
func (s *SmokeCoAlarm) SmokeSequenceNumber() float64 {
	v, _ := s.num("smoke_sequence_number")
	return v
}

// LastManualTestTime returns when the device was last manually tested.
func (s *SmokeCoAlarm) LastManualTestTime() (time.Time, bool) {
	return s.timestamp("last_manual_test_time")
}

// BatteryLevel is gone from the consumer API; use BatteryHealth.
func (s *SmokeCoAlarm) BatteryLevel() (float64, error) { return 0, ErrFieldRemoved }

// AutoAway is gone from the consumer API.
func (s *SmokeCoAlarm) AutoAway() (bool, error) { return false, ErrFieldRemoved }

// LinePowerPresent is gone from the consumer API.
func (s *SmokeCoAlarm) LinePowerPresent() (bool, error) { return false, ErrFieldRemoved }

// NightLightEnabled is gone from the consumer API.
func (s *SmokeCoAlarm) NightLightEnabled() (bool, error) { return false, ErrFieldRemoved }
