// Package output defines the accumulator threaded through one logical run of
// a span group. The same record travels across hosts by value: it is
// serialized into the dispatch request body, extended by the remote host and
// merged back into the caller's copy when the response arrives.
package output

import (
	"encoding/json"
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Well-known stat keys.
const (
	StatRoundTrips     = "round_trips"
	StatMaxParallelism = "max_parallelism"
)

// Output is the mutable record of one run: a human-readable call diagram,
// numeric stats and any extra keys spans choose to attach. Extra keys are
// carried across hosts untouched.
//
// An Output is safe for concurrent use by the spans executing on one host.
type Output struct {
	mu      sync.Mutex
	runID   string
	diagram []string
	stats   map[string]float64
	extra   map[string]json.RawMessage
}

// New returns an empty Output.
func New() *Output {
	return &Output{
		stats: make(map[string]float64),
		extra: make(map[string]json.RawMessage),
	}
}

// ensure makes the maps of a zero Output usable. o.mu must be held.
func (o *Output) ensure() {
	if o.stats == nil {
		o.stats = make(map[string]float64)
	}
	if o.extra == nil {
		o.extra = make(map[string]json.RawMessage)
	}
}

// RunID returns the correlation id of the run this output belongs to.
func (o *Output) RunID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.runID
}

// SetRunID sets the correlation id.
func (o *Output) SetRunID(id string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runID = id
}

// AppendDiagram records a "who called whom" entry.
func (o *Output) AppendDiagram(entries ...string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.diagram = append(o.diagram, entries...)
}

// Diagram returns a copy of the diagram entries.
func (o *Output) Diagram() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.diagram)
}

// Stat returns the value of a stat, zero if unset.
func (o *Output) Stat(key string) float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats[key]
}

// SetStat overwrites a stat.
func (o *Output) SetStat(key string, value float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure()
	o.stats[key] = value
}

// AddStat increments a stat by delta.
func (o *Output) AddStat(key string, delta float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure()
	o.stats[key] += delta
}

// MaxStat raises a stat to value if value is larger.
func (o *Output) MaxStat(key string, value float64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure()
	if value > o.stats[key] {
		o.stats[key] = value
	}
}

// Stats returns a copy of all stats.
func (o *Output) Stats() map[string]float64 {
	o.mu.Lock()
	defer o.mu.Unlock()
	return maps.Clone(o.stats)
}

// Set stores v under key as an extra value. v must be JSON serializable.
func (o *Output) Set(key string, v any) error {
	if isReserved(key) {
		return fmt.Errorf("output key %q is reserved", key)
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode output value %q: %w", key, err)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure()
	o.extra[key] = raw
	return nil
}

// Get decodes the extra value stored under key into v. It reports whether
// the key was present.
func (o *Output) Get(key string, v any) (bool, error) {
	o.mu.Lock()
	raw, ok := o.extra[key]
	o.mu.Unlock()

	if !ok {
		return false, nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return true, fmt.Errorf("failed to decode output value %q: %w", key, err)
	}
	return true, nil
}

// Keys returns the extra keys in sorted order.
func (o *Output) Keys() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Sorted(maps.Keys(o.extra))
}
