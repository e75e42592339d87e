package devices

// Where wraps a where bucket: the structure's room name directory.
type Where struct {
	Base
}

// WhereEntry is one room in the directory.
type WhereEntry struct {
	ID   string
	Name string
}

// Entries returns all rooms in the directory.
func (w *Where) Entries() []WhereEntry {
	v, _ := w.get("wheres")
	list, ok := v.([]any)
	if !ok {
		return nil
	}
	entries := make([]WhereEntry, 0, len(list))
	for _, item := range list {
		m, ok := item.(map[string]any)
		if !ok {
			continue
		}
		id, _ := m["where_id"].(string)
		name, _ := m["name"].(string)
		if id == "" {
			continue
		}
		entries = append(entries, WhereEntry{ID: id, Name: name})
	}
	return entries
}

// Name resolves a where id to its room name.
func (w *Where) Name(whereID string) (string, bool) {
	if whereID == "" {
		return "", false
	}
	for _, entry := range w.Entries() {
		if entry.ID == whereID {
			return entry.Name, true
		}
	}
	return "", false
}
