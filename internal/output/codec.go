package output

import (
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"slices"
)

const (
	keyDiagram = "diagram"
	keyStats   = "stats"
	keyRunID   = "run_id"
)

func isReserved(key string) bool {
	return key == keyDiagram || key == keyStats || key == keyRunID
}

// MarshalJSON encodes the output as a flat JSON object: the well-known keys
// next to every extra key.
func (o *Output) MarshalJSON() ([]byte, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	obj := make(map[string]any, len(o.extra)+3)
	for k, v := range o.extra {
		obj[k] = v
	}
	diagram := o.diagram
	if diagram == nil {
		diagram = []string{}
	}
	obj[keyDiagram] = diagram
	stats := o.stats
	if stats == nil {
		stats = map[string]float64{}
	}
	obj[keyStats] = stats
	if o.runID != "" {
		obj[keyRunID] = o.runID
	}
	return json.Marshal(obj)
}

// UnmarshalJSON replaces the contents of the output with the decoded object.
// Unknown keys are kept as extra values.
func (o *Output) UnmarshalJSON(data []byte) error {
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(data, &obj); err != nil {
		return err
	}
	if obj == nil {
		return errors.New("output must be a JSON object")
	}

	var (
		diagram []string
		stats   = make(map[string]float64)
		runID   string
	)
	if raw, ok := obj[keyDiagram]; ok {
		if err := json.Unmarshal(raw, &diagram); err != nil {
			return fmt.Errorf("invalid %q: %w", keyDiagram, err)
		}
	}
	if raw, ok := obj[keyStats]; ok && string(raw) != "null" {
		if err := json.Unmarshal(raw, &stats); err != nil {
			return fmt.Errorf("invalid %q: %w", keyStats, err)
		}
	}
	if raw, ok := obj[keyRunID]; ok {
		if err := json.Unmarshal(raw, &runID); err != nil {
			return fmt.Errorf("invalid %q: %w", keyRunID, err)
		}
	}
	delete(obj, keyDiagram)
	delete(obj, keyStats)
	delete(obj, keyRunID)

	o.mu.Lock()
	defer o.mu.Unlock()
	o.diagram = diagram
	o.stats = stats
	o.runID = runID
	o.extra = obj
	return nil
}

// Clone returns a deep copy of the output.
func (o *Output) Clone() *Output {
	o.mu.Lock()
	defer o.mu.Unlock()

	extra := make(map[string]json.RawMessage, len(o.extra))
	for k, v := range o.extra {
		extra[k] = slices.Clone(v)
	}
	return &Output{
		runID:   o.runID,
		diagram: slices.Clone(o.diagram),
		stats:   maps.Clone(o.stats),
		extra:   extra,
	}
}

// Merge folds the output returned by a remote hop back into o.
//
//   - diagram: when the remote diagram extends o's diagram, it replaces it;
//     otherwise the remote entries are appended in order.
//   - stats: remote values win, except max_parallelism which keeps the larger.
//   - extra: remote values win key by key; keys only o has are kept.
//   - run id: adopted from remote when o has none.
func (o *Output) Merge(remote *Output) {
	if remote == nil || remote == o {
		return
	}
	r := remote.Clone()

	o.mu.Lock()
	defer o.mu.Unlock()
	o.ensure()

	if len(r.diagram) >= len(o.diagram) && slices.Equal(r.diagram[:len(o.diagram)], o.diagram) {
		o.diagram = r.diagram
	} else {
		o.diagram = append(o.diagram, r.diagram...)
	}

	for k, v := range r.stats {
		if k == StatMaxParallelism && o.stats[k] > v {
			continue
		}
		o.stats[k] = v
	}

	for k, v := range r.extra {
		o.extra[k] = v
	}

	if o.runID == "" {
		o.runID = r.runID
	}
}
