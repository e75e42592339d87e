// Package devices holds the object model for the Nest bucket API: shallow
// wrappers over the raw JSON payload each bucket carries, plus the storage
// and event bus the polling client feeds.
//
// A wrapper's identity (its serial) is immutable after creation; every
// other field is replaced by a shallow merge on each update cycle. Fields
// the current consumer API no longer serves return ErrFieldRemoved so
// callers learn immediately that a once-available attribute is gone.
package devices

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Kind identifies a wrapper type.
type Kind string

const (
	KindThermostat   Kind = "thermostat"
	KindCamera       Kind = "camera"
	KindSmokeCoAlarm Kind = "smoke_co_alarm"
	KindStructure    Kind = "structure"
	KindWhere        Kind = "where"
)

// bucketKinds maps a bucket key prefix to the wrapper kind that decodes
// it. Prefixes not listed here are dropped without error.
var bucketKinds = map[string]Kind{
	"link":      KindThermostat,
	"device":    KindThermostat,
	"schedule":  KindThermostat,
	"shared":    KindThermostat,
	"where":     KindWhere,
	"quartz":    KindCamera,
	"topaz":     KindSmokeCoAlarm,
	"structure": KindStructure,
}

// KnownBucketTypes returns the bucket prefixes declared on every poll,
// in stable order.
func KnownBucketTypes() []string {
	types := make([]string, 0, len(bucketKinds))
	for t := range bucketKinds {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// ParseBucketKey splits a "{type}.{uuid}" bucket key into the wrapper
// kind and object id. ok is false for unrecognized prefixes.
func ParseBucketKey(key string) (kind Kind, id string, ok bool) {
	prefix, id, found := strings.Cut(key, ".")
	if !found || id == "" {
		return "", "", false
	}
	kind, ok = bucketKinds[prefix]
	if !ok {
		return "", "", false
	}
	return kind, id, true
}

// ErrFieldRemoved marks accessors for fields the consumer API no longer
// returns.
var ErrFieldRemoved = errors.New("devices: field no longer available in Nest API")

// Backend is what wrapper objects need from the API client: setter
// plumbing and cross-object lookups. The polling client implements it.
type Backend interface {
	// Put posts a field map to a type-specific sub-path for one object.
	Put(ctx context.Context, subpath, id string, fields map[string]any) error
	// ThermostatCount reports how many known thermostats belong to a structure.
	ThermostatCount(structureID string) int
	// WhereName resolves a where id to its display name.
	WhereName(whereID string) (string, bool)
}

// Raw is the opaque payload a bucket carries.
type Raw map[string]any

// Object is the common surface of all wrappers.
type Object interface {
	Serial() string
	Kind() Kind
	Merge(update Raw)
	Snapshot() Raw
}

// New creates the wrapper for a bucket kind. Unknown kinds are an error:
// a known bucket prefix with no handler aborts the whole update cycle.
func New(kind Kind, serial string, data Raw, api Backend) (Object, error) {
	base := Base{serial: serial, kind: kind, api: api, data: data}
	if base.data == nil {
		base.data = Raw{}
	}

	switch kind {
	case KindThermostat:
		return &Thermostat{Device{base}}, nil
	case KindCamera:
		return &Camera{Device{base}}, nil
	case KindSmokeCoAlarm:
		return &SmokeCoAlarm{Device{base}}, nil
	case KindStructure:
		return &Structure{base}, nil
	case KindWhere:
		return &Where{base}, nil
	default:
		return nil, fmt.Errorf("devices: no handler for kind %q (id %s)", kind, serial)
	}
}

// Base is the shared wrapper core: an id, a kind and the mutable raw
// payload.
type Base struct {
	serial string
	kind   Kind
	api    Backend

	mu   sync.RWMutex
	data Raw
}

// Serial returns the immutable object id.
func (b *Base) Serial() string { return b.serial }

// Kind returns the wrapper kind.
func (b *Base) Kind() Kind { return b.kind }

// Merge overwrites payload keys in place with the update's values.
// Keys absent from the update are left untouched; nothing is ever removed.
func (b *Base) Merge(update Raw) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for k, v := range update {
		b.data[k] = v
	}
}

// Snapshot returns a shallow copy of the raw payload.
func (b *Base) Snapshot() Raw {
	b.mu.RLock()
	defer b.mu.RUnlock()
	cp := make(Raw, len(b.data))
	for k, v := range b.data {
		cp[k] = v
	}
	return cp
}

func (b *Base) get(key string) (any, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.data[key]
	return v, ok
}

func (b *Base) str(key string) string {
	v, _ := b.get(key)
	s, _ := v.(string)
	return s
}

func (b *Base) num(key string) (float64, bool) {
	v, ok := b.get(key)
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	default:
		return 0, false
	}
}

func (b *Base) boolean(key string) bool {
	v, _ := b.get(key)
	t, _ := v.(bool)
	return t
}

func (b *Base) timestamp(key string) (time.Time, bool) {
	s := b.str(key)
	if s == "" {
		return time.Time{}, false
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}

func (b *Base) put(ctx context.Context, subpath string, fields map[string]any) error {
	if b.api == nil {
		return fmt.Errorf("devices: %s %s: no backend attached", b.kind, b.serial)
	}
	return b.api.Put(ctx, subpath, b.serial, fields)
}

// Device adds the accessors shared by physical devices.
type Device struct {
	Base
}

// Name returns the device name.
func (d *Device) Name() string { return d.str("name") }

// NameLong returns the long display name.
func (d *Device) NameLong() string { return d.str("name_long") }

// DeviceID returns the API-assigned device id.
func (d *Device) DeviceID() string { return d.str("device_id") }

// Online reports the is_online flag.
func (d *Device) Online() bool { return d.boolean("is_online") }

// SoftwareVersion returns the firmware version string.
func (d *Device) SoftwareVersion() string { return d.str("software_version") }

// StructureID returns the owning structure id.
func (d *Device) StructureID() string { return d.str("structure_id") }

// WhereID returns the raw where id.
func (d *Device) WhereID() string { return d.str("where_id") }

// Where resolves the where id to a room name via the backend.
func (d *Device) Where() string {
	if d.api == nil {
		return ""
	}
	name, _ := d.api.WhereName(d.WhereID())
	return name
}

// Description returns the long display name.
func (d *Device) Description() string { return d.NameLong() }
