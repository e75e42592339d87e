package devices

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStructure(t *testing.T, api Backend, data Raw) *Structure {
	t.Helper()
	obj, err := New(KindStructure, "home1", data, api)
	require.NoError(t, err)
	return obj.(*Structure)
}

func TestSetAwayAcceptsAliases(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"away", "away"},
		{"on", "away"},
		{"home", "home"},
		{"off", "home"},
	}

	for _, tt := range tests {
		api := &fakeBackend{}
		s := newTestStructure(t, api, Raw{})
		require.NoError(t, s.SetAway(context.Background(), tt.in))

		put := api.lastPut(t)
		assert.Equal(t, "structures", put.subpath)
		assert.Equal(t, tt.want, put.fields["away"], "input %q", tt.in)
	}
}

func TestSetAwayRejectsUnknownMode(t *testing.T) {
	api := &fakeBackend{}
	s := newTestStructure(t, api, Raw{})

	err := s.SetAway(context.Background(), "vacation")
	require.Error(t, err)
	assert.Empty(t, api.puts)
}

func TestSetETARequiresThermostat(t *testing.T) {
	api := &fakeBackend{} // no thermostats anywhere
	s := newTestStructure(t, api, Raw{})

	err := s.SetETA(context.Background(), "trip-1", time.Now().Add(time.Hour), time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no thermostat")
	assert.Empty(t, api.puts)
}

func TestSetETARequiresTripID(t *testing.T) {
	api := &fakeBackend{thermostats: map[string]int{"home1": 1}}
	s := newTestStructure(t, api, Raw{})

	err := s.SetETA(context.Background(), "", time.Now().Add(time.Hour), time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "trip id")
}

func TestSetETARequiresBegin(t *testing.T) {
	api := &fakeBackend{thermostats: map[string]int{"home1": 1}}
	s := newTestStructure(t, api, Raw{})

	err := s.SetETA(context.Background(), "trip-1", time.Time{}, time.Time{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin")
}

func TestSetETADefaultsWindowEnd(t *testing.T) {
	api := &fakeBackend{thermostats: map[string]int{"home1": 1}}
	s := newTestStructure(t, api, Raw{})

	begin := time.Date(2026, 8, 25, 17, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetETA(context.Background(), "trip-1", begin, time.Time{}))

	put := api.lastPut(t)
	eta, ok := put.fields["eta"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "trip-1", eta["trip_id"])
	assert.Equal(t, "2026-08-25T17:00:00Z", eta["estimated_arrival_window_begin"])
	assert.Equal(t, "2026-08-25T17:01:00Z", eta["estimated_arrival_window_end"])
}

func TestSetETAExplicitWindow(t *testing.T) {
	api := &fakeBackend{thermostats: map[string]int{"home1": 1}}
	s := newTestStructure(t, api, Raw{})

	begin := time.Date(2026, 8, 25, 17, 0, 0, 0, time.UTC)
	end := begin.Add(10 * time.Minute)
	require.NoError(t, s.SetETA(context.Background(), "trip-1", begin, end))

	eta := api.lastPut(t).fields["eta"].(map[string]any)
	assert.Equal(t, "2026-08-25T17:10:00Z", eta["estimated_arrival_window_end"])
}

func TestCancelETAZeroesWindowBegin(t *testing.T) {
	api := &fakeBackend{thermostats: map[string]int{"home1": 1}}
	s := newTestStructure(t, api, Raw{})

	require.NoError(t, s.CancelETA(context.Background(), "trip-1"))

	eta := api.lastPut(t).fields["eta"].(map[string]any)
	assert.Equal(t, "trip-1", eta["trip_id"])
	assert.Equal(t, 0, eta["estimated_arrival_window_begin"])
	// end is now, formatted RFC3339
	endStr, ok := eta["estimated_arrival_window_end"].(string)
	require.True(t, ok)
	end, err := time.Parse(time.RFC3339, endStr)
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().UTC(), end, time.Minute)
}

func TestNewTripAfterCancelGetsItsOwnWindow(t *testing.T) {
	api := &fakeBackend{thermostats: map[string]int{"home1": 1}}
	s := newTestStructure(t, api, Raw{})

	require.NoError(t, s.CancelETA(context.Background(), "trip-1"))

	begin := time.Date(2026, 8, 25, 18, 0, 0, 0, time.UTC)
	require.NoError(t, s.SetETA(context.Background(), "trip-2", begin, time.Time{}))

	require.Len(t, api.puts, 2)
	eta := api.puts[1].fields["eta"].(map[string]any)
	assert.Equal(t, "trip-2", eta["trip_id"])
	assert.Equal(t, "2026-08-25T18:00:00Z", eta["estimated_arrival_window_begin"],
		"the cancelled trip's zeroed window is not reused")
}

func TestCancelETARequiresThermostat(t *testing.T) {
	api := &fakeBackend{}
	s := newTestStructure(t, api, Raw{})

	err := s.CancelETA(context.Background(), "trip-1")
	require.Error(t, err)
	assert.Empty(t, api.puts)
}

func TestThermostatCountWithoutBackend(t *testing.T) {
	s := newTestStructure(t, nil, Raw{})
	assert.Equal(t, 0, s.ThermostatCount())
}

func TestStructureRemovedFields(t *testing.T) {
	s := newTestStructure(t, nil, Raw{})

	_, err := s.Address()
	assert.ErrorIs(t, err, ErrFieldRemoved)
	_, err = s.MeasurementScale()
	assert.ErrorIs(t, err, ErrFieldRemoved)
}
