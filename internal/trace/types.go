// Package trace provides event types for the link pipeline's live trace
// view: one Event per object-level milestone (an object mapped, relocated,
// or protection-finalized), for the IRELATIVE pass, and for the resolved
// entry, consumed by the TUI in cmd/ldlink.
package trace

import "time"

// Tag represents a trace event category. Tags are stored without a '#'
// prefix; the prefix is added on rendering.
type Tag string

// Standard tags for pipeline trace events.
const (
	Phase    Tag = "phase"
	Object   Tag = "object"
	Reloc    Tag = "reloc"
	IFunc    Tag = "ifunc"
	Protect  Tag = "protect"
	TLS      Tag = "tls"
	Entry    Tag = "entry"
	Warning  Tag = "warning"
	Fallback Tag = "fallback"
)

// Tags is a collection of tags with helper methods.
type Tags []Tag

// Has returns true if the tag collection contains the given tag.
func (t Tags) Has(tag Tag) bool {
	for _, x := range t {
		if x == tag {
			return true
		}
	}
	return false
}

// Add adds a tag if not already present.
func (t *Tags) Add(tag Tag) {
	if !t.Has(tag) {
		*t = append(*t, tag)
	}
}

// Strings returns tags as strings with a '#' prefix for display.
func (t Tags) Strings() []string {
	out := make([]string, len(t))
	for i, tag := range t {
		out[i] = "#" + string(tag)
	}
	return out
}

// Annotations holds key-value metadata for a trace event (object name,
// relocation type, address, protection string, ...).
type Annotations map[string]string

// Set adds or updates an annotation.
func (a Annotations) Set(k, v string) {
	a[k] = v
}

// Get retrieves an annotation value.
func (a Annotations) Get(k string) string {
	return a[k]
}

// Event represents one pipeline trace event with rich metadata.
type Event struct {
	Tags        Tags        // multiple hashtags, first is primary
	Name        string      // object or symbol name the event concerns
	Detail      string      // short human-readable summary
	Annotations Annotations // key-value metadata (addr, type, prot, ...)
	Timestamp   time.Time
}

// NewEvent creates a trace event in the given category.
func NewEvent(category Tag, name, detail string) *Event {
	return &Event{
		Tags:        Tags{category},
		Name:        name,
		Detail:      detail,
		Annotations: make(Annotations),
		Timestamp:   time.Now(),
	}
}

// Annotate sets an annotation on the event.
func (e *Event) Annotate(k, v string) {
	if e.Annotations == nil {
		e.Annotations = make(Annotations)
	}
	e.Annotations.Set(k, v)
}

// PrimaryTag returns the primary (first) tag with a '#' prefix.
func (e *Event) PrimaryTag() string {
	if len(e.Tags) > 0 {
		return "#" + string(e.Tags[0])
	}
	return ""
}
