package devices

import "sync"

// Storage maps kind -> id -> wrapper. Objects are created on first
// sighting and mutated in place thereafter; nothing is ever deleted, even
// if a device disappears server-side.
type Storage struct {
	mu    sync.RWMutex
	items map[Kind]map[string]Object
}

// NewStorage creates an empty store.
func NewStorage() *Storage {
	return &Storage{items: make(map[Kind]map[string]Object)}
}

// Get returns the object for a kind and id.
func (s *Storage) Get(kind Kind, id string) (Object, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	obj, ok := s.items[kind][id]
	return obj, ok
}

// Add registers an object under its kind and serial.
func (s *Storage) Add(obj Object) {
	s.mu.Lock()
	defer s.mu.Unlock()
	kind := obj.Kind()
	if s.items[kind] == nil {
		s.items[kind] = make(map[string]Object)
	}
	s.items[kind][obj.Serial()] = obj
}

// All returns every object of a kind.
func (s *Storage) All(kind Kind) []Object {
	s.mu.RLock()
	defer s.mu.RUnlock()
	objs := make([]Object, 0, len(s.items[kind]))
	for _, obj := range s.items[kind] {
		objs = append(objs, obj)
	}
	return objs
}

// Len returns how many objects of a kind are known.
func (s *Storage) Len(kind Kind) int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items[kind])
}
