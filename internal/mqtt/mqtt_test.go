package mqtt

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/trymwestin/nestga/internal/core/devices"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// fakeSource serves a fixed device set.
type fakeSource struct {
	structures  []*devices.Structure
	thermostats []*devices.Thermostat
	cameras     []*devices.Camera
	alarms      []*devices.SmokeCoAlarm
}

func (f *fakeSource) Structures() []*devices.Structure       { return f.structures }
func (f *fakeSource) Thermostats() []*devices.Thermostat     { return f.thermostats }
func (f *fakeSource) Cameras() []*devices.Camera             { return f.cameras }
func (f *fakeSource) SmokeCoAlarms() []*devices.SmokeCoAlarm { return f.alarms }

func (f *fakeSource) Thermostat(id string) (*devices.Thermostat, bool) {
	for _, t := range f.thermostats {
		if t.Serial() == id {
			return t, true
		}
	}
	return nil, false
}

func (f *fakeSource) Camera(id string) (*devices.Camera, bool) {
	for _, c := range f.cameras {
		if c.Serial() == id {
			return c, true
		}
	}
	return nil, false
}

func (f *fakeSource) Structure(id string) (*devices.Structure, bool) {
	for _, s := range f.structures {
		if s.Serial() == id {
			return s, true
		}
	}
	return nil, false
}

type fakeCams struct{}

func (fakeCams) SetStreaming(context.Context, string, bool) error { return nil }
func (fakeCams) Snapshot(context.Context, string, bool) ([]byte, error) {
	return nil, nil
}

func mustStructure(t *testing.T, serial string, data devices.Raw) *devices.Structure {
	t.Helper()
	obj, err := devices.New(devices.KindStructure, serial, data, nil)
	require.NoError(t, err)
	return obj.(*devices.Structure)
}

func mustThermostat(t *testing.T, serial string, data devices.Raw) *devices.Thermostat {
	t.Helper()
	obj, err := devices.New(devices.KindThermostat, serial, data, nil)
	require.NoError(t, err)
	return obj.(*devices.Thermostat)
}

func newTestPublisher(t *testing.T, cfg Config, src DeviceSource) *HAPublisher {
	t.Helper()
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = "nestga"
	}
	if cfg.DeviceID == "" {
		cfg.DeviceID = "nestga_01"
	}
	if cfg.DiscoveryPrefix == "" {
		cfg.DiscoveryPrefix = "homeassistant"
	}
	return NewHAPublisher(cfg, src, fakeCams{}, devices.NewBus(testLogger()), testLogger())
}

func TestTopicBuilding(t *testing.T) {
	p := newTestPublisher(t, Config{}, &fakeSource{})

	assert.Equal(t, "nestga/nestga_01/status", p.topic("status"))
	assert.Equal(t,
		"homeassistant/climate/nestga_01_t1/config",
		p.discoveryTopic("climate", "t1"))
}

func TestTopicSerial(t *testing.T) {
	p := newTestPublisher(t, Config{}, &fakeSource{})

	tests := []struct {
		topic string
		want  string
	}{
		{"nestga/nestga_01/thermostat/t1/temperature/set", "t1"},
		{"nestga/nestga_01/structure/s1/away/set", "s1"},
		{"nestga/nestga_01/structure/s1/eta/cancel", "s1"},
		{"nestga/nestga_01/camera/c1/streaming/set", "c1"},
		{"nestga/nestga_01/status", ""},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, p.topicSerial(tt.topic), "topic %q", tt.topic)
	}
}

func TestExportedStructuresAllowlist(t *testing.T) {
	src := &fakeSource{structures: []*devices.Structure{
		mustStructure(t, "s1", devices.Raw{"name": "Home"}),
		mustStructure(t, "s2", devices.Raw{"name": "Cabin"}),
	}}

	all := newTestPublisher(t, Config{}, src)
	assert.Len(t, all.exportedStructures(), 2)

	only := newTestPublisher(t, Config{Structures: []string{"Home"}}, src)
	exported := only.exportedStructures()
	require.Len(t, exported, 1)
	assert.Equal(t, "s1", exported[0].Serial())

	assert.True(t, only.structureExported("s1"))
	assert.False(t, only.structureExported("s2"))
}

func TestThermostatFilterFollowsStructureAllowlist(t *testing.T) {
	src := &fakeSource{
		structures: []*devices.Structure{
			mustStructure(t, "s1", devices.Raw{"name": "Home"}),
			mustStructure(t, "s2", devices.Raw{"name": "Cabin"}),
		},
		thermostats: []*devices.Thermostat{
			mustThermostat(t, "t1", devices.Raw{"structure": "structure.s1"}),
			mustThermostat(t, "t2", devices.Raw{"structure": "structure.s2"}),
		},
	}

	p := newTestPublisher(t, Config{Structures: []string{"Home"}}, src)
	ths := p.thermostats()
	require.Len(t, ths, 1)
	assert.Equal(t, "t1", ths[0].Serial())
}

func TestClimateAction(t *testing.T) {
	tests := []struct {
		name string
		data devices.Raw
		want string
	}{
		{"heating", devices.Raw{"hvac_state": "heating"}, "heating"},
		{"cooling", devices.Raw{"hvac_state": "cooling"}, "cooling"},
		{"off mode idles as off", devices.Raw{"hvac_state": "off", "target_temperature_type": "off"}, "off"},
		{"idle", devices.Raw{"hvac_state": "off", "target_temperature_type": "heat"}, "idle"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			th := mustThermostat(t, "t1", tt.data)
			assert.Equal(t, tt.want, climateAction(th))
		})
	}
}

func TestBoolToOnOff(t *testing.T) {
	assert.Equal(t, "ON", boolToOnOff(true))
	assert.Equal(t, "OFF", boolToOnOff(false))
}

func TestDeviceInfoFallsBackToModelName(t *testing.T) {
	p := newTestPublisher(t, Config{}, &fakeSource{})

	info := p.deviceInfo("t1", "", "Thermostat")
	assert.Equal(t, "Thermostat", info["name"])
	assert.Equal(t, []string{"t1"}, info["identifiers"])
	assert.Equal(t, "nestga_01", info["via_device"])

	named := p.deviceInfo("t1", "Hallway", "Thermostat")
	assert.Equal(t, "Hallway", named["name"])
}

func TestStubPublisherIsANoOp(t *testing.T) {
	s := NewStubPublisher(testLogger())
	require.NoError(t, s.Start(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}
