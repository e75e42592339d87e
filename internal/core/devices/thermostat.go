package devices

import (
	"context"
	"fmt"
	"math"
	"strings"
)

// Temperature limits from the old developer API; still enforced on writes.
const (
	MinTemperatureF = 50.0
	MaxTemperatureF = 90.0
	MinTemperatureC = 9.0
	MaxTemperatureC = 32.0
)

// LowHigh is a low/high temperature pair.
type LowHigh struct {
	Low  float64
	High float64
}

// RoundTemp rounds a target temperature the way the Nest apps do:
// Celsius to the nearest 0.5 degree, Fahrenheit to the nearest degree.
func RoundTemp(temp float64, scale string) float64 {
	if strings.EqualFold(scale, "C") {
		return math.Round(temp*2) / 2
	}
	return math.Round(temp)
}

// Thermostat wraps the device/shared/link buckets of one thermostat.
type Thermostat struct {
	Device
}

// Name returns the room name; thermostat buckets carry no usable name of
// their own.
func (t *Thermostat) Name() string { return t.Where() }

// NameLong returns the same room name.
func (t *Thermostat) NameLong() string { return t.Name() }

// StructureID is resolved through the link bucket, not the standard
// structure_id field.
func (t *Thermostat) StructureID() string {
	return strings.TrimPrefix(t.str("structure"), "structure.")
}

// TemperatureScale returns "C" or "F".
func (t *Thermostat) TemperatureScale() string { return t.str("temperature_scale") }

// SetTemperatureScale writes the display scale.
func (t *Thermostat) SetTemperatureScale(ctx context.Context, scale string) error {
	return t.put(ctx, "devices/thermostats", map[string]any{
		"temperature_scale": strings.ToUpper(scale),
	})
}

// Temperature returns the current ambient temperature.
func (t *Thermostat) Temperature() float64 {
	v, _ := t.num("current_temperature")
	return v
}

// Humidity returns the current relative humidity.
func (t *Thermostat) Humidity() float64 {
	v, _ := t.num("humidity")
	return v
}

// Mode returns the target temperature type: off, heat, cool or heat-cool.
func (t *Thermostat) Mode() string { return t.str("target_temperature_type") }

// SetMode writes the HVAC mode.
func (t *Thermostat) SetMode(ctx context.Context, mode string) error {
	return t.put(ctx, "devices/thermostats", map[string]any{
		"hvac_mode": strings.ToLower(mode),
	})
}

// PreviousMode returns the HVAC mode before the current one.
func (t *Thermostat) PreviousMode() string { return t.str("previous_hvac_mode") }

// HvacState returns what the HVAC is doing right now: heating, cooling
// or off.
func (t *Thermostat) HvacState() string { return t.str("hvac_state") }

// Target returns the single setpoint. Meaningless in heat-cool mode; use
// TargetRange there.
func (t *Thermostat) Target() float64 {
	v, _ := t.num("target_temperature")
	return v
}

// TargetRange returns the heat-cool low/high setpoints.
func (t *Thermostat) TargetRange() LowHigh {
	low, _ := t.num("target_temperature_low")
	high, _ := t.num("target_temperature_high")
	return LowHigh{Low: low, High: high}
}

// SetTarget writes a single setpoint, rounded for the current scale. The
// observed value only changes on the next poll.
func (t *Thermostat) SetTarget(ctx context.Context, value float64) error {
	if t.Mode() == "heat-cool" {
		return fmt.Errorf("devices: thermostat %s is in heat-cool mode, use SetTargetRange", t.serial)
	}
	return t.put(ctx, "devices/thermostats", map[string]any{
		"target_temperature": RoundTemp(value, t.TemperatureScale()),
	})
}

// SetTargetRange writes the heat-cool setpoint pair, both rounded for the
// current scale.
func (t *Thermostat) SetTargetRange(ctx context.Context, low, high float64) error {
	scale := t.TemperatureScale()
	return t.put(ctx, "devices/thermostats", map[string]any{
		"target_temperature_low":  RoundTemp(low, scale),
		"target_temperature_high": RoundTemp(high, scale),
	})
}

// Fan reports whether the fan timer is active.
func (t *Thermostat) Fan() bool { return t.boolean("fan_timer_active") }

// SetFan switches the fan timer on or off.
func (t *Thermostat) SetFan(ctx context.Context, on bool) error {
	return t.put(ctx, "devices/thermostats", map[string]any{
		"fan_timer_active": on,
	})
}

// FanTimer returns the fan timer duration.
func (t *Thermostat) FanTimer() float64 {
	v, _ := t.num("fan_timer_duration")
	return v
}

// SetFanTimer writes the fan timer duration.
func (t *Thermostat) SetFanTimer(ctx context.Context, duration float64) error {
	return t.put(ctx, "devices/thermostats", map[string]any{
		"fan_timer_duration": duration,
	})
}

// HasLeaf reports whether the leaf (eco) indicator shows.
func (t *Thermostat) HasLeaf() bool { return t.boolean("has_leaf") }

// CanHeat reports heating capability.
func (t *Thermostat) CanHeat() bool { return t.boolean("can_heat") }

// CanCool reports cooling capability.
func (t *Thermostat) CanCool() bool { return t.boolean("can_cool") }

// HasFan reports fan capability.
func (t *Thermostat) HasFan() bool { return t.boolean("has_fan") }

// HasHumidifier reports humidifier capability.
func (t *Thermostat) HasHumidifier() bool { return t.boolean("has_humidifier") }

// HasDehumidifier reports dehumidifier capability.
func (t *Thermostat) HasDehumidifier() bool { return t.boolean("has_dehumidifier") }

// HasHotWaterControl reports hot water control capability.
func (t *Thermostat) HasHotWaterControl() bool { return t.boolean("has_hot_water_control") }

// HotWaterTemperature returns the hot water setpoint.
func (t *Thermostat) HotWaterTemperature() float64 {
	v, _ := t.num("hot_water_temperature")
	return v
}

// IsLocked reports whether the temperature range is locked.
func (t *Thermostat) IsLocked() bool { return t.boolean("is_locked") }

// IsUsingEmergencyHeat reports emergency heat state.
func (t *Thermostat) IsUsingEmergencyHeat() bool { return t.boolean("is_using_emergency_heat") }

// Label returns the user-assigned label.
func (t *Thermostat) Label() string { return t.str("label") }

// TimeToTarget returns the estimated seconds until the target is reached.
func (t *Thermostat) TimeToTarget() float64 {
	v, _ := t.num("time_to_target")
	return v
}

// tempKey suffixes a field name with the current scale, e.g.
// locked_temp_min_c.
func (t *Thermostat) tempKey(key string) string {
	return key + "_" + strings.ToLower(t.TemperatureScale())
}

// LockedTemperature returns the locked low/high range.
func (t *Thermostat) LockedTemperature() LowHigh {
	low, _ := t.num(t.tempKey("locked_temp_min"))
	high, _ := t.num(t.tempKey("locked_temp_max"))
	return LowHigh{Low: low, High: high}
}

// EcoTemperature returns the eco low/high range. Either side may be zero
// when the API leaves it unset.
func (t *Thermostat) EcoTemperature() LowHigh {
	low, _ := t.num(t.tempKey("eco_temperature_low"))
	high, _ := t.num(t.tempKey("eco_temperature_high"))
	return LowHigh{Low: low, High: high}
}

// SetEcoTemperature writes either or both sides of the eco range; pass
// nil to leave a side unchanged.
func (t *Thermostat) SetEcoTemperature(ctx context.Context, low, high *float64) error {
	fields := map[string]any{}
	if low != nil {
		fields[t.tempKey("eco_temperature_low")] = *low
	}
	if high != nil {
		fields[t.tempKey("eco_temperature_high")] = *high
	}
	return t.put(ctx, "devices/thermostats", fields)
}

// MinTemperature returns the lowest settable target for the current
// scale, honoring the temperature lock.
func (t *Thermostat) MinTemperature() float64 {
	if t.IsLocked() {
		return t.LockedTemperature().Low
	}
	if strings.EqualFold(t.TemperatureScale(), "C") {
		return MinTemperatureC
	}
	return MinTemperatureF
}

// MaxTemperature returns the highest settable target for the current
// scale, honoring the temperature lock.
func (t *Thermostat) MaxTemperature() float64 {
	if t.IsLocked() {
		return t.LockedTemperature().High
	}
	if strings.EqualFold(t.TemperatureScale(), "C") {
		return MaxTemperatureC
	}
	return MaxTemperatureF
}

// LastConnection returns the raw last_connection value.
func (t *Thermostat) LastConnection() string { return t.str("last_connection") }

// BatteryLevel is gone from the consumer API.
func (t *Thermostat) BatteryLevel() (float64, error) { return 0, ErrFieldRemoved }

// LocalIP is gone from the consumer API.
func (t *Thermostat) LocalIP() (string, error) { return "", ErrFieldRemoved }

// ErrorCode is gone from the consumer API.
func (t *Thermostat) ErrorCode() (string, error) { return "", ErrFieldRemoved }

// TargetHumidity is gone from the consumer API.
func (t *Thermostat) TargetHumidity() (float64, error) { return 0, ErrFieldRemoved }

// HvacACState is gone from the consumer API; use HvacState.
func (t *Thermostat) HvacACState() (bool, error) { return false, ErrFieldRemoved }

// HvacHeaterState is gone from the consumer API; use HvacState.
func (t *Thermostat) HvacHeaterState() (bool, error) { return false, ErrFieldRemoved }
