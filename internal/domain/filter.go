package domain

// Filter is a subscriber's group admission rule. A disabled filter admits
// everything; an enabled filter admits only the listed groups, so an
// enabled filter with an empty set admits nothing (fail-closed).
type Filter struct {
	Enabled       bool
	AllowedGroups map[string]struct{}
}

// NewFilter builds a Filter from a group id list.
func NewFilter(enabled bool, groupIDs []string) Filter {
	allowed := make(map[string]struct{}, len(groupIDs))
	for _, id := range groupIDs {
		allowed[id] = struct{}{}
	}
	return Filter{Enabled: enabled, AllowedGroups: allowed}
}

// Admits reports whether an event from groupID passes this filter.
func (f Filter) Admits(groupID string) bool {
	if !f.Enabled {
		return true
	}
	_, ok := f.AllowedGroups[groupID]
	return ok
}

// FailClosed reports whether this filter admits nothing at all. Subscribers
// transitioning into this state are told to clear their display, since
// previously delivered events may no longer be admissible.
func (f Filter) FailClosed() bool {
	return f.Enabled && len(f.AllowedGroups) == 0
}

// GroupIDs returns the allow-list as a slice, for logging and responses.
func (f Filter) GroupIDs() []string {
	ids := make([]string, 0, len(f.AllowedGroups))
	for id := range f.AllowedGroups {
		ids = append(ids, id)
	}
	return ids
}
