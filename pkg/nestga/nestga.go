// Package nestga provides a public facade re-exporting core types
// for external consumers of this module.
package nestga

import (
	"github.com/trymwestin/nestga/internal/core/auth"
	"github.com/trymwestin/nestga/internal/core/devices"
	"github.com/trymwestin/nestga/internal/core/nest"
	"github.com/trymwestin/nestga/internal/dropcam"
)

// Re-export core types for external use.
type (
	// Session holds the authenticated Nest session.
	Session = auth.Session
	// Authenticator runs the Google-account login handshake.
	Authenticator = auth.Authenticator
	// SessionStore hands out the current session and serializes refreshes.
	SessionStore = auth.SessionStore
	// Client polls the Nest API and owns device storage.
	Client = nest.Client
	// Poller drives the background update loop.
	Poller = nest.Poller
	// CameraClient talks to the camera web API.
	CameraClient = dropcam.Client
	// Structure is one home.
	Structure = devices.Structure
	// Thermostat is a Nest thermostat.
	Thermostat = devices.Thermostat
	// Camera is a Nest camera.
	Camera = devices.Camera
	// CameraEvent is one motion/sound event on a camera.
	CameraEvent = devices.CameraEvent
	// SmokeCoAlarm is a Nest Protect.
	SmokeCoAlarm = devices.SmokeCoAlarm
	// LowHigh is a temperature range.
	LowHigh = devices.LowHigh
	// Event is one bus notification.
	Event = devices.Event
	// EventType identifies event categories.
	EventType = devices.EventType
	// Bus is the publish/subscribe event bus.
	Bus = devices.Bus
)

// Away state constants.
const (
	AwayHome = devices.AwayHome
	AwayAway = devices.AwayAway
)

// Event type constants.
const (
	EventDevicesUpdated   = devices.EventDevicesUpdated
	EventSessionRefreshed = devices.EventSessionRefreshed
	EventPollError        = devices.EventPollError
)

// ErrFieldRemoved marks accessors whose backing field is gone from the
// consumer API.
var ErrFieldRemoved = devices.ErrFieldRemoved

// ErrStaleSession marks a poll response that indicates an expired JWT.
var ErrStaleSession = nest.ErrStaleSession

// RoundTemp rounds a temperature the way the thermostat does: halves in
// Celsius, whole degrees in Fahrenheit.
func RoundTemp(temp float64, scale string) float64 {
	return devices.RoundTemp(temp, scale)
}
