package devices

import (
	"strconv"
	"time"
)

const (
	simulatorSnapshotURL = "https://developer.nest.com/simulator/api/v1/nest/devices/camera/snapshot"
	placeholderSnapshot  = "https://media.giphy.com/media/WCwFvyeb6WJna/giphy.gif"
)

// ongoingGrace pads an event's end time; the API sometimes reports an
// end a few seconds before the clips stop.
const ongoingGrace = 30 * time.Second

// Camera wraps a quartz bucket.
type Camera struct {
	Device
}

// Name returns the room name; quartz buckets carry no usable name.
func (c *Camera) Name() string { return c.Where() }

// NameLong returns the same room name.
func (c *Camera) NameLong() string { return c.Name() }

// IsStreaming reports whether the camera is currently streaming.
func (c *Camera) IsStreaming() bool {
	return c.str("streaming_state") == "streaming-enabled"
}

// Online mirrors IsStreaming; the quartz bucket has no separate liveness
// flag.
func (c *Camera) Online() bool { return c.IsStreaming() }

// IsVideoHistoryEnabled reports a Nest Aware subscription.
func (c *Camera) IsVideoHistoryEnabled() bool { return c.boolean("is_video_history_enabled") }

// IsAudioEnabled reports whether the microphone is on.
func (c *Camera) IsAudioEnabled() bool { return c.boolean("is_audio_input_enabled") }

// IsPublicShareEnabled reports public sharing.
func (c *Camera) IsPublicShareEnabled() bool { return c.boolean("is_public_share_enabled") }

// Model returns the camera model string.
func (c *Camera) Model() string { return c.str("model") }

// WebURL returns the home.nest.com URL for this camera.
func (c *Camera) WebURL() string { return c.str("web_url") }

// SnapshotURL returns the still snapshot URL, or a placeholder when the
// API serves the simulator stub.
func (c *Camera) SnapshotURL() string {
	v, ok := c.get("snapshot_url")
	if !ok {
		return placeholderSnapshot
	}
	switch u := v.(type) {
	case string:
		if u == "" || u == simulatorSnapshotURL {
			return placeholderSnapshot
		}
		return u
	case map[string]any:
		prefix, _ := u["snapshot_url_prefix"].(string)
		suffix, _ := u["snapshot_url_suffix"].(string)
		if prefix == "" {
			return placeholderSnapshot
		}
		return prefix + suffix
	default:
		return placeholderSnapshot
	}
}

// ActivityZone is a user-defined region of the camera frame.
type ActivityZone struct {
	ID   int
	Name string
}

// ActivityZones returns the configured zones.
func (c *Camera) ActivityZones() []ActivityZone {
	v, _ := c.get("activity_zones")
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	zones := make([]ActivityZone, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["id"].(float64)
		name, _ := m["name"].(string)
		zones = append(zones, ActivityZone{ID: int(id), Name: name})
	}
	return zones
}

// LastEvent returns the most recent camera event, or nil when none has
// been reported.
func (c *Camera) LastEvent() *CameraEvent {
	v, _ := c.get("last_event")
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	return &CameraEvent{raw: Raw(m)}
}

// OngoingEvent returns the last event only while it is still ongoing.
func (c *Camera) OngoingEvent() *CameraEvent {
	evt := c.LastEvent()
	if evt != nil && evt.IsOngoing() {
		return evt
	}
	return nil
}

// MotionDetected reports motion in the ongoing event.
func (c *Camera) MotionDetected() bool {
	evt := c.OngoingEvent()
	return evt != nil && evt.HasMotion()
}

// SoundDetected reports sound in the ongoing event.
func (c *Camera) SoundDetected() bool {
	evt := c.OngoingEvent()
	return evt != nil && evt.HasSound()
}

// PersonDetected reports a person in the ongoing event.
func (c *Camera) PersonDetected() bool {
	evt := c.OngoingEvent()
	return evt != nil && evt.HasPerson()
}

// HasOngoingMotionInZone reports ongoing motion inside one activity zone.
func (c *Camera) HasOngoingMotionInZone(zoneID int) bool {
	evt := c.OngoingEvent()
	return evt != nil && evt.HasMotion() && evt.ActivityInZone(zoneID)
}

// MacAddress is gone from the consumer API.
func (c *Camera) MacAddress() (string, error) { return "", ErrFieldRemoved }

// LiveStreamHost is gone from the consumer API.
func (c *Camera) LiveStreamHost() (string, error) { return "", ErrFieldRemoved }

// NexusAPIServerURL is gone from the consumer API.
func (c *Camera) NexusAPIServerURL() (string, error) { return "", ErrFieldRemoved }

// LastConnected is gone from the consumer API.
func (c *Camera) LastConnected() (time.Time, error) { return time.Time{}, ErrFieldRemoved }

// CameraEvent is one motion/sound event reported on a camera bucket.
type CameraEvent struct {
	raw Raw
}

func (e *CameraEvent) str(key string) string {
	s, _ := e.raw[key].(string)
	return s
}

func (e *CameraEvent) flag(key string) bool {
	b, _ := e.raw[key].(bool)
	return b
}

func (e *CameraEvent) timestamp(key string) (time.Time, bool) {
	s := e.str(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

// HasMotion reports whether the event contains motion.
func (e *CameraEvent) HasMotion() bool { return e.flag("has_motion") }

// HasSound reports whether the event contains sound.
func (e *CameraEvent) HasSound() bool { return e.flag("has_sound") }

// HasPerson reports whether the event contains a person.
func (e *CameraEvent) HasPerson() bool { return e.flag("has_person") }

// ImageURL returns the still image URL for the event.
func (e *CameraEvent) ImageURL() string { return e.str("image_url") }

// AnimatedImageURL returns the animated preview URL.
func (e *CameraEvent) AnimatedImageURL() string { return e.str("animated_image_url") }

// WebURL returns the event's home.nest.com URL.
func (e *CameraEvent) WebURL() string { return e.str("web_url") }

// StartTime returns the event start.
func (e *CameraEvent) StartTime() (time.Time, bool) { return e.timestamp("start_time") }

// EndTime returns the event end padded by a short grace window.
func (e *CameraEvent) EndTime() (time.Time, bool) {
	t, ok := e.timestamp("end_time")
	if !ok {
		return time.Time{}, false
	}
	return t.Add(ongoingGrace), true
}

// ActivityInZone reports whether the event touched the given zone.
func (e *CameraEvent) ActivityInZone(zoneID int) bool {
	v, ok := e.raw["activity_zone_ids"]
	if !ok {
		return false
	}
	list, ok := v.([]any)
	if !ok {
		return false
	}
	for _, id := range list {
		// zone ids arrive as strings on events but ints on the camera
		switch z := id.(type) {
		case string:
			if z == strconv.Itoa(zoneID) {
				return true
			}
		case float64:
			if int(z) == zoneID {
				return true
			}
		}
	}
	return false
}

// IsOngoing reports whether the event is still in progress.
func (e *CameraEvent) IsOngoing() bool { return e.IsOngoingAt(time.Now()) }

// IsOngoingAt is IsOngoing against an explicit clock.
func (e *CameraEvent) IsOngoingAt(now time.Time) bool {
	end, ok := e.EndTime()
	if !ok {
		// no end time implies it's ongoing
		return true
	}
	if start, ok := e.StartTime(); ok && start.After(end) {
		// an existing event updated with a start past its end means
		// something new began
		return true
	}
	return end.After(now)
}
