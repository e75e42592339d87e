// Package mqtt provides MQTT publishing for Home Assistant integration.
// It defines the Publisher interface and includes both a StubPublisher
// (no-op) and a full HAPublisher that connects to an MQTT broker,
// publishes HA auto-discovery configs for Nest structures and devices,
// relays commands back to the Nest API, and forwards update events from
// the poll loop.
package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/trymwestin/nestga/internal/core/devices"
)

// ---------------------------------------------------------------------------
// Publisher interface
// ---------------------------------------------------------------------------

// Publisher sends discovery, state and events to an MQTT broker.
type Publisher interface {
	// Start connects and begins publishing.
	Start(ctx context.Context) error
	// Stop shuts down the publisher.
	Stop(ctx context.Context) error
}

// ---------------------------------------------------------------------------
// StubPublisher (no-op, used when MQTT is disabled)
// ---------------------------------------------------------------------------

// StubPublisher is a no-op publisher for when MQTT is not configured.
type StubPublisher struct {
	log *slog.Logger
}

// NewStubPublisher creates a no-op MQTT publisher.
func NewStubPublisher(log *slog.Logger) *StubPublisher {
	return &StubPublisher{log: log}
}

// Start is a no-op.
func (s *StubPublisher) Start(_ context.Context) error {
	s.log.Info("MQTT publisher disabled (stub)")
	return nil
}

// Stop is a no-op.
func (s *StubPublisher) Stop(_ context.Context) error {
	return nil
}

var _ Publisher = (*StubPublisher)(nil)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// Config holds MQTT publisher configuration.
type Config struct {
	Broker          string
	Username        string
	Password        string
	TopicPrefix     string
	DiscoveryPrefix string
	DeviceID        string
	// Structures restricts which structures are exported. Empty means all.
	Structures []string
}

// ---------------------------------------------------------------------------
// Backend abstractions
// ---------------------------------------------------------------------------

// DeviceSource reads current device state from the polling client.
type DeviceSource interface {
	Structures() []*devices.Structure
	Thermostats() []*devices.Thermostat
	Cameras() []*devices.Camera
	SmokeCoAlarms() []*devices.SmokeCoAlarm
	Thermostat(id string) (*devices.Thermostat, bool)
	Camera(id string) (*devices.Camera, bool)
	Structure(id string) (*devices.Structure, bool)
}

// CameraCommander controls cameras without importing the dropcam package.
type CameraCommander interface {
	SetStreaming(ctx context.Context, cameraID string, on bool) error
	Snapshot(ctx context.Context, cameraID string, aware bool) ([]byte, error)
}

// ---------------------------------------------------------------------------
// HAPublisher – full Home Assistant MQTT implementation
// ---------------------------------------------------------------------------

var _ Publisher = (*HAPublisher)(nil)

const commandTimeout = 10 * time.Second

// HAPublisher publishes Home Assistant auto-discovery configs, subscribes
// to command topics and relays commands to the Nest API, and forwards
// poll-loop update events as retained state.
type HAPublisher struct {
	cfg  Config
	src  DeviceSource
	cams CameraCommander
	bus  *devices.Bus
	log  *slog.Logger

	client pahomqtt.Client

	unsub func() // bus unsubscribe
	stopC chan struct{}
	wg    sync.WaitGroup
}

// NewHAPublisher creates a new Home Assistant MQTT publisher.
func NewHAPublisher(cfg Config, src DeviceSource, cams CameraCommander, bus *devices.Bus, log *slog.Logger) *HAPublisher {
	return &HAPublisher{
		cfg:   cfg,
		src:   src,
		cams:  cams,
		bus:   bus,
		log:   log,
		stopC: make(chan struct{}),
	}
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

// Start connects to the MQTT broker, publishes discovery configs,
// subscribes to command topics, publishes initial state, and starts
// listening on the event bus for poll updates.
func (p *HAPublisher) Start(_ context.Context) error {
	availTopic := p.topic("status")

	opts := pahomqtt.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(fmt.Sprintf("nestga-%s", p.cfg.DeviceID)).
		SetUsername(p.cfg.Username).
		SetPassword(p.cfg.Password).
		SetCleanSession(true).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetWill(availTopic, "offline", 1, true).
		SetOnConnectHandler(func(_ pahomqtt.Client) {
			p.log.Info("MQTT connected, publishing discovery and state")
			p.onConnect()
		}).
		SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			p.log.Warn("MQTT connection lost", "error", err)
		})

	p.client = pahomqtt.NewClient(opts)

	token := p.client.Connect()
	token.Wait()
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}

	evtCh, unsub := p.bus.Subscribe(128)
	p.unsub = unsub

	p.wg.Add(1)
	go p.eventLoop(evtCh)

	p.log.Info("MQTT publisher started", "broker", p.cfg.Broker)
	return nil
}

// Stop gracefully disconnects from the MQTT broker and stops the event
// loop.
func (p *HAPublisher) Stop(_ context.Context) error {
	p.log.Info("MQTT publisher stopping")

	close(p.stopC)
	if p.unsub != nil {
		p.unsub()
	}
	p.wg.Wait()

	if p.client != nil && p.client.IsConnected() {
		p.publish(p.topic("status"), "offline", true)
		p.client.Disconnect(1000)
	}
	p.log.Info("MQTT publisher stopped")
	return nil
}

// ---------------------------------------------------------------------------
// onConnect – called on every (re)connect
// ---------------------------------------------------------------------------

func (p *HAPublisher) onConnect() {
	p.publish(p.topic("status"), "online", true)
	p.publishDiscovery()
	p.subscribeCommands()

	// HA birth topic: re-publish discovery when Home Assistant restarts.
	p.client.Subscribe(p.cfg.DiscoveryPrefix+"/status", 1, func(_ pahomqtt.Client, msg pahomqtt.Message) {
		if string(msg.Payload()) == "online" {
			p.log.Info("Home Assistant came online, re-publishing discovery")
			p.publishDiscovery()
			p.publishFullState()
		}
	})

	p.publishFullState()
}

// ---------------------------------------------------------------------------
// Structure filtering
// ---------------------------------------------------------------------------

// exportedStructures applies the structure allowlist.
func (p *HAPublisher) exportedStructures() []*devices.Structure {
	all := p.src.Structures()
	if len(p.cfg.Structures) == 0 {
		return all
	}
	allowed := make(map[string]bool, len(p.cfg.Structures))
	for _, name := range p.cfg.Structures {
		allowed[name] = true
	}
	var out []*devices.Structure
	for _, s := range all {
		if allowed[s.Name()] {
			out = append(out, s)
		}
	}
	return out
}

func (p *HAPublisher) structureExported(structureID string) bool {
	if len(p.cfg.Structures) == 0 {
		return true
	}
	for _, s := range p.exportedStructures() {
		if s.Serial() == structureID {
			return true
		}
	}
	return false
}

// ---------------------------------------------------------------------------
// Discovery configs
// ---------------------------------------------------------------------------

// deviceInfo returns the HA device block for one physical device.
func (p *HAPublisher) deviceInfo(serial, name, model string) map[string]interface{} {
	if name == "" {
		name = model
	}
	return map[string]interface{}{
		"identifiers":  []string{serial},
		"name":         name,
		"manufacturer": "Nest Labs",
		"model":        model,
		"via_device":   p.cfg.DeviceID,
	}
}

// discoveryTopic builds the HA auto-discovery topic.
func (p *HAPublisher) discoveryTopic(component, objectID string) string {
	return fmt.Sprintf("%s/%s/%s_%s/config", p.cfg.DiscoveryPrefix, component, p.cfg.DeviceID, objectID)
}

func (p *HAPublisher) publishDiscovery() {
	avail := map[string]interface{}{
		"topic": p.topic("status"),
	}

	for _, t := range p.thermostats() {
		serial := t.Serial()
		dev := p.deviceInfo(serial, t.Name(), "Thermostat")
		stateTopic := p.topic(fmt.Sprintf("thermostat/%s/state", serial))

		minTemp := t.MinTemperature()
		maxTemp := t.MaxTemperature()
		step := 1.0
		if strings.EqualFold(t.TemperatureScale(), "C") {
			step = 0.5
		}

		p.publishDiscoveryConfig("climate", serial, map[string]interface{}{
			"name":                         t.Name(),
			"unique_id":                    fmt.Sprintf("%s_climate", serial),
			"modes":                        []string{"off", "heat", "cool", "heat-cool"},
			"mode_state_topic":             stateTopic,
			"mode_state_template":          "{{ value_json.mode }}",
			"mode_command_topic":           p.topic(fmt.Sprintf("thermostat/%s/mode/set", serial)),
			"current_temperature_topic":    stateTopic,
			"current_temperature_template": "{{ value_json.current_temperature }}",
			"temperature_state_topic":      stateTopic,
			"temperature_state_template":   "{{ value_json.target_temperature }}",
			"temperature_command_topic":    p.topic(fmt.Sprintf("thermostat/%s/temperature/set", serial)),
			"action_topic":                 stateTopic,
			"action_template":              "{{ value_json.action }}",
			"min_temp":                     minTemp,
			"max_temp":                     maxTemp,
			"temp_step":                    step,
			"device":                       dev,
			"availability":                 avail,
		})

		p.publishDiscoveryConfig("sensor", fmt.Sprintf("%s_humidity", serial), map[string]interface{}{
			"name":                fmt.Sprintf("%s Humidity", t.Name()),
			"unique_id":           fmt.Sprintf("%s_humidity", serial),
			"state_topic":         stateTopic,
			"value_template":      "{{ value_json.humidity }}",
			"unit_of_measurement": "%",
			"device_class":        "humidity",
			"state_class":         "measurement",
			"device":              dev,
			"availability":        avail,
		})

		p.publishDiscoveryConfig("switch", fmt.Sprintf("%s_fan", serial), map[string]interface{}{
			"name":           fmt.Sprintf("%s Fan", t.Name()),
			"unique_id":      fmt.Sprintf("%s_fan", serial),
			"state_topic":    stateTopic,
			"value_template": "{{ value_json.fan }}",
			"command_topic":  p.topic(fmt.Sprintf("thermostat/%s/fan/set", serial)),
			"payload_on":     "ON",
			"payload_off":    "OFF",
			"device":         dev,
			"availability":   avail,
		})
	}

	for _, s := range p.exportedStructures() {
		serial := s.Serial()
		dev := p.deviceInfo(serial, s.Name(), "Structure")

		p.publishDiscoveryConfig("select", fmt.Sprintf("%s_away", serial), map[string]interface{}{
			"name":          fmt.Sprintf("%s Away", s.Name()),
			"unique_id":     fmt.Sprintf("%s_away", serial),
			"state_topic":   p.topic(fmt.Sprintf("structure/%s/away/state", serial)),
			"command_topic": p.topic(fmt.Sprintf("structure/%s/away/set", serial)),
			"options":       []string{"home", "away"},
			"device":        dev,
			"availability":  avail,
		})
	}

	for _, cam := range p.cameras() {
		serial := cam.Serial()
		dev := p.deviceInfo(serial, cam.Name(), "Camera")

		p.publishDiscoveryConfig("camera", serial, map[string]interface{}{
			"name":         cam.Name(),
			"unique_id":    fmt.Sprintf("%s_camera", serial),
			"topic":        p.topic(fmt.Sprintf("camera/%s/image", serial)),
			"device":       dev,
			"availability": avail,
		})

		p.publishDiscoveryConfig("switch", fmt.Sprintf("%s_streaming", serial), map[string]interface{}{
			"name":          fmt.Sprintf("%s Streaming", cam.Name()),
			"unique_id":     fmt.Sprintf("%s_streaming", serial),
			"state_topic":   p.topic(fmt.Sprintf("camera/%s/streaming/state", serial)),
			"command_topic": p.topic(fmt.Sprintf("camera/%s/streaming/set", serial)),
			"payload_on":    "ON",
			"payload_off":   "OFF",
			"device":        dev,
			"availability":  avail,
		})

		for _, bs := range []struct {
			objectID string
			name     string
			class    string
		}{
			{"motion", "Motion", "motion"},
			{"sound", "Sound", "sound"},
			{"person", "Person", "occupancy"},
		} {
			p.publishDiscoveryConfig("binary_sensor", fmt.Sprintf("%s_%s", serial, bs.objectID), map[string]interface{}{
				"name":         fmt.Sprintf("%s %s", cam.Name(), bs.name),
				"unique_id":    fmt.Sprintf("%s_%s", serial, bs.objectID),
				"state_topic":  p.topic(fmt.Sprintf("camera/%s/%s/state", serial, bs.objectID)),
				"device_class": bs.class,
				"payload_on":   "ON",
				"payload_off":  "OFF",
				"device":       dev,
				"availability": avail,
			})
		}
	}

	for _, alarm := range p.src.SmokeCoAlarms() {
		serial := alarm.Serial()
		dev := p.deviceInfo(serial, alarm.Name(), "Nest Protect")
		stateTopic := p.topic(fmt.Sprintf("protect/%s/state", serial))

		for _, sn := range []struct {
			objectID string
			name     string
			tmpl     string
		}{
			{"smoke", "Smoke Status", "{{ value_json.smoke_status }}"},
			{"co", "CO Status", "{{ value_json.co_status }}"},
			{"battery", "Battery Health", "{{ value_json.battery_health }}"},
		} {
			p.publishDiscoveryConfig("sensor", fmt.Sprintf("%s_%s", serial, sn.objectID), map[string]interface{}{
				"name":           fmt.Sprintf("%s %s", alarm.Name(), sn.name),
				"unique_id":      fmt.Sprintf("%s_%s", serial, sn.objectID),
				"state_topic":    stateTopic,
				"value_template": sn.tmpl,
				"device":         dev,
				"availability":   avail,
			})
		}
	}
}

func (p *HAPublisher) publishDiscoveryConfig(component, objectID string, payload map[string]interface{}) {
	topic := p.discoveryTopic(component, objectID)
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal discovery config", "component", component, "object_id", objectID, "error", err)
		return
	}
	p.publish(topic, string(data), true)
}

func (p *HAPublisher) thermostats() []*devices.Thermostat {
	var out []*devices.Thermostat
	for _, t := range p.src.Thermostats() {
		if p.structureExported(t.StructureID()) {
			out = append(out, t)
		}
	}
	return out
}

func (p *HAPublisher) cameras() []*devices.Camera {
	var out []*devices.Camera
	for _, cam := range p.src.Cameras() {
		if p.structureExported(cam.StructureID()) {
			out = append(out, cam)
		}
	}
	return out
}

// ---------------------------------------------------------------------------
// Command subscriptions
// ---------------------------------------------------------------------------

func (p *HAPublisher) subscribeCommands() {
	cmds := map[string]pahomqtt.MessageHandler{
		p.topic("thermostat/+/temperature/set"): p.handleTemperatureCmd,
		p.topic("thermostat/+/mode/set"):        p.handleModeCmd,
		p.topic("thermostat/+/fan/set"):         p.handleFanCmd,
		p.topic("structure/+/away/set"):         p.handleAwayCmd,
		p.topic("structure/+/eta/set"):          p.handleETASetCmd,
		p.topic("structure/+/eta/cancel"):       p.handleETACancelCmd,
		p.topic("camera/+/streaming/set"):       p.handleStreamingCmd,
	}

	for t, h := range cmds {
		token := p.client.Subscribe(t, 1, h)
		token.Wait()
		if err := token.Error(); err != nil {
			p.log.Error("failed to subscribe to command topic", "topic", t, "error", err)
		}
	}
}

// topicSerial extracts the object id from a command topic like
// {prefix}/{device_id}/thermostat/{serial}/temperature/set.
func (p *HAPublisher) topicSerial(topic string) string {
	rest := strings.TrimPrefix(topic, p.cfg.TopicPrefix+"/"+p.cfg.DeviceID+"/")
	parts := strings.Split(rest, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

func (p *HAPublisher) handleTemperatureCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	serial := p.topicSerial(msg.Topic())
	t, ok := p.src.Thermostat(serial)
	if !ok {
		p.log.Warn("command for unknown thermostat", "serial", serial)
		return
	}

	var value float64
	if _, err := fmt.Sscanf(strings.TrimSpace(string(msg.Payload())), "%f", &value); err != nil {
		p.log.Error("invalid temperature value", "payload", string(msg.Payload()), "error", err)
		return
	}

	p.log.Info("MQTT command: target temperature", "serial", serial, "value", value)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := t.SetTarget(ctx, value); err != nil {
		p.log.Error("failed to set target temperature", "serial", serial, "error", err)
	}
}

func (p *HAPublisher) handleModeCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	serial := p.topicSerial(msg.Topic())
	t, ok := p.src.Thermostat(serial)
	if !ok {
		p.log.Warn("command for unknown thermostat", "serial", serial)
		return
	}

	mode := strings.ToLower(strings.TrimSpace(string(msg.Payload())))
	p.log.Info("MQTT command: hvac mode", "serial", serial, "mode", mode)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := t.SetMode(ctx, mode); err != nil {
		p.log.Error("failed to set hvac mode", "serial", serial, "error", err)
	}
}

func (p *HAPublisher) handleFanCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	serial := p.topicSerial(msg.Topic())
	t, ok := p.src.Thermostat(serial)
	if !ok {
		p.log.Warn("command for unknown thermostat", "serial", serial)
		return
	}

	on := strings.EqualFold(strings.TrimSpace(string(msg.Payload())), "ON")
	p.log.Info("MQTT command: fan", "serial", serial, "on", on)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := t.SetFan(ctx, on); err != nil {
		p.log.Error("failed to set fan", "serial", serial, "error", err)
	}
}

func (p *HAPublisher) handleAwayCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	serial := p.topicSerial(msg.Topic())
	s, ok := p.src.Structure(serial)
	if !ok {
		p.log.Warn("command for unknown structure", "serial", serial)
		return
	}

	mode := strings.ToLower(strings.TrimSpace(string(msg.Payload())))
	p.log.Info("MQTT command: away mode", "structure", s.Name(), "mode", mode)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := s.SetAway(ctx, mode); err != nil {
		p.log.Error("failed to set away mode", "structure", s.Name(), "error", err)
	}
}

// etaRequest is the payload for structure/{id}/eta/set.
type etaRequest struct {
	ETAMinutes    float64 `json:"eta_minutes"`
	TripID        string  `json:"trip_id,omitempty"`
	WindowMinutes float64 `json:"eta_window_minutes,omitempty"`
}

func (p *HAPublisher) handleETASetCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	serial := p.topicSerial(msg.Topic())
	s, ok := p.src.Structure(serial)
	if !ok {
		p.log.Warn("command for unknown structure", "serial", serial)
		return
	}

	var req etaRequest
	if err := json.Unmarshal(msg.Payload(), &req); err != nil {
		p.log.Error("invalid eta payload", "payload", string(msg.Payload()), "error", err)
		return
	}
	if req.ETAMinutes <= 0 {
		p.log.Error("invalid eta payload: eta_minutes must be positive", "payload", string(msg.Payload()))
		return
	}

	now := time.Now().UTC()
	tripID := req.TripID
	if tripID == "" {
		tripID = fmt.Sprintf("trip_%d", now.Unix())
	}
	begin := now.Add(time.Duration(req.ETAMinutes * float64(time.Minute)))
	window := time.Minute
	if req.WindowMinutes > 0 {
		window = time.Duration(req.WindowMinutes * float64(time.Minute))
	}
	end := begin.Add(window)

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()

	// Reporting an ETA implies the structure is away.
	p.log.Info("MQTT command: set eta", "structure", s.Name(), "trip_id", tripID, "begin", begin, "end", end)
	if err := s.SetAway(ctx, devices.AwayAway); err != nil {
		p.log.Error("failed to set away mode for eta", "structure", s.Name(), "error", err)
		return
	}
	if err := s.SetETA(ctx, tripID, begin, end); err != nil {
		p.log.Error("failed to set eta", "structure", s.Name(), "error", err)
	}
}

func (p *HAPublisher) handleETACancelCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	serial := p.topicSerial(msg.Topic())
	s, ok := p.src.Structure(serial)
	if !ok {
		p.log.Warn("command for unknown structure", "serial", serial)
		return
	}

	tripID := strings.TrimSpace(string(msg.Payload()))
	p.log.Info("MQTT command: cancel eta", "structure", s.Name(), "trip_id", tripID)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := s.CancelETA(ctx, tripID); err != nil {
		p.log.Error("failed to cancel eta", "structure", s.Name(), "error", err)
	}
}

func (p *HAPublisher) handleStreamingCmd(_ pahomqtt.Client, msg pahomqtt.Message) {
	serial := p.topicSerial(msg.Topic())
	cam, ok := p.src.Camera(serial)
	if !ok {
		p.log.Warn("command for unknown camera", "serial", serial)
		return
	}

	on := strings.EqualFold(strings.TrimSpace(string(msg.Payload())), "ON")
	if on && !cam.Online() && !cam.IsStreaming() {
		p.log.Info("camera is offline, sending streaming command anyway", "serial", serial)
	}

	p.log.Info("MQTT command: camera streaming", "serial", serial, "on", on)
	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	if err := p.cams.SetStreaming(ctx, serial, on); err != nil {
		p.log.Error("failed to set camera streaming", "serial", serial, "error", err)
	}
}

// ---------------------------------------------------------------------------
// State publishing
// ---------------------------------------------------------------------------

// publishFullState publishes retained state for every exported object.
func (p *HAPublisher) publishFullState() {
	for _, t := range p.thermostats() {
		p.publishThermostatState(t)
	}
	for _, s := range p.exportedStructures() {
		p.publish(p.topic(fmt.Sprintf("structure/%s/away/state", s.Serial())), s.Away(), true)
	}
	for _, cam := range p.cameras() {
		p.publishCameraState(cam)
	}
	for _, alarm := range p.src.SmokeCoAlarms() {
		p.publishAlarmState(alarm)
	}
}

// climateAction maps hvac_state onto HA's climate action values.
func climateAction(t *devices.Thermostat) string {
	switch t.HvacState() {
	case "heating":
		return "heating"
	case "cooling":
		return "cooling"
	default:
		if t.Mode() == "off" {
			return "off"
		}
		return "idle"
	}
}

func (p *HAPublisher) publishThermostatState(t *devices.Thermostat) {
	payload := map[string]interface{}{
		"current_temperature": t.Temperature(),
		"target_temperature":  t.Target(),
		"mode":                t.Mode(),
		"action":              climateAction(t),
		"humidity":            t.Humidity(),
		"fan":                 boolToOnOff(t.Fan()),
		"has_leaf":            t.HasLeaf(),
	}
	if t.Mode() == "heat-cool" {
		r := t.TargetRange()
		payload["target_temperature_low"] = r.Low
		payload["target_temperature_high"] = r.High
	}

	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal thermostat state", "serial", t.Serial(), "error", err)
		return
	}
	p.publish(p.topic(fmt.Sprintf("thermostat/%s/state", t.Serial())), string(data), true)
}

func (p *HAPublisher) publishCameraState(cam *devices.Camera) {
	serial := cam.Serial()
	p.publish(p.topic(fmt.Sprintf("camera/%s/streaming/state", serial)), boolToOnOff(cam.IsStreaming()), true)
	p.publish(p.topic(fmt.Sprintf("camera/%s/motion/state", serial)), boolToOnOff(cam.MotionDetected()), true)
	p.publish(p.topic(fmt.Sprintf("camera/%s/sound/state", serial)), boolToOnOff(cam.SoundDetected()), true)
	p.publish(p.topic(fmt.Sprintf("camera/%s/person/state", serial)), boolToOnOff(cam.PersonDetected()), true)

	if !cam.IsStreaming() {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), commandTimeout)
	defer cancel()
	img, err := p.cams.Snapshot(ctx, serial, cam.IsVideoHistoryEnabled())
	if err != nil {
		// the cached frame, if any, was already returned alongside
		p.log.Warn("snapshot fetch failed", "serial", serial, "error", err)
	}
	if len(img) > 0 {
		p.publishBytes(p.topic(fmt.Sprintf("camera/%s/image", serial)), img, true)
	}
}

func (p *HAPublisher) publishAlarmState(alarm *devices.SmokeCoAlarm) {
	payload := map[string]interface{}{
		"smoke_status":   alarm.SmokeStatus(),
		"co_status":      alarm.COStatus(),
		"battery_health": alarm.BatteryHealth(),
		"color_status":   alarm.ColorStatus(),
	}
	data, err := json.Marshal(payload)
	if err != nil {
		p.log.Error("failed to marshal alarm state", "serial", alarm.Serial(), "error", err)
		return
	}
	p.publish(p.topic(fmt.Sprintf("protect/%s/state", alarm.Serial())), string(data), true)
}

// ---------------------------------------------------------------------------
// Event loop
// ---------------------------------------------------------------------------

func (p *HAPublisher) eventLoop(ch <-chan devices.Event) {
	defer p.wg.Done()

	for {
		select {
		case <-p.stopC:
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			p.handleEvent(evt)
		}
	}
}

func (p *HAPublisher) handleEvent(evt devices.Event) {
	switch evt.Type {
	case devices.EventDevicesUpdated:
		p.publishFullState()
	case devices.EventSessionRefreshed:
		p.log.Debug("session refreshed")
	case devices.EventPollError:
		p.log.Warn("poll error reported", "error", evt.Data)
	}
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// topic builds a full topic path: {prefix}/{device_id}/{suffix}.
func (p *HAPublisher) topic(suffix string) string {
	return fmt.Sprintf("%s/%s/%s", p.cfg.TopicPrefix, p.cfg.DeviceID, suffix)
}

// publish is a convenience wrapper that publishes a message and logs errors.
func (p *HAPublisher) publish(topic, payload string, retained bool) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("mqtt publish failed", "topic", topic, "error", err)
	}
}

func (p *HAPublisher) publishBytes(topic string, payload []byte, retained bool) {
	if p.client == nil || !p.client.IsConnected() {
		return
	}
	token := p.client.Publish(topic, 1, retained, payload)
	token.Wait()
	if err := token.Error(); err != nil {
		p.log.Error("mqtt publish failed", "topic", topic, "error", err)
	}
}

func boolToOnOff(b bool) string {
	if b {
		return "ON"
	}
	return "OFF"
}
