package devices

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSmokeCoAlarmAccessors(t *testing.T) {
	obj, err := New(KindSmokeCoAlarm, "p1", Raw{
		"smoke_alarm_state":     "ok",
		"co_alarm_state":        "warning",
		"battery_health":        "ok",
		"ui_color_state":        "green",
		"product_id":            "Topaz-2.7",
	}, nil)
	require.NoError(t, err)
	alarm := obj.(*SmokeCoAlarm)

	assert.Equal(t, "ok", alarm.SmokeStatus())
	assert.Equal(t, "warning", alarm.COStatus())
	assert.Equal(t, "ok", alarm.BatteryHealth())
	assert.Equal(t, "green", alarm.ColorStatus())
	assert.Equal(t, "Topaz-2.7", alarm.ProductID())
}

func TestSmokeCoAlarmRemovedFields(t *testing.T) {
	obj, err := New(KindSmokeCoAlarm, "p1", Raw{}, nil)
	require.NoError(t, err)
	alarm := obj.(*SmokeCoAlarm)

	_, err = alarm.BatteryLevel()
	assert.ErrorIs(t, err, ErrFieldRemoved)
	_, err = alarm.AutoAway()
	assert.ErrorIs(t, err, ErrFieldRemoved)
	_, err = alarm.LinePowerPresent()
	assert.ErrorIs(t, err, ErrFieldRemoved)
	_, err = alarm.NightLightEnabled()
	assert.ErrorIs(t, err, ErrFieldRemoved)
}

func TestSmokeCoAlarmLastManualTest(t *testing.T) {
	obj, err := New(KindSmokeCoAlarm, "p1", Raw{
		"last_manual_test_time": "2026-08-20T10:00:00Z",
	}, nil)
	require.NoError(t, err)

	ts, ok := obj.(*SmokeCoAlarm).LastManualTestTime()
	require.True(t, ok)
	assert.Equal(t, time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC), ts)
}
