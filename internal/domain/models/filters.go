package models

// FilterSpec holds per-user delivery filters looked up from the
// settings store. A zero value means no extra filtering.
type FilterSpec struct {
	Channels []string `json:"channels,omitempty"`
}

// Allows reports whether events from channel may be delivered.
func (f FilterSpec) Allows(channel string) bool {
	if len(f.Channels) == 0 {
		return true
	}
	for _, c := range f.Channels {
		if c == channel {
			return true
		}
	}
	return false
}
