// Package hippocampus holds short-term experience between consolidations:
// a transient buffer of reward statistics keyed by (stimulus, action), and
// the consolidator that writes the significant entries into long-term
// engine weights with a Rescorla-Wagner update.
package hippocampus

import (
	"math"
	"sort"
)

// #region buffer
// Buffer is the per-epoch experience accumulator. It is owned by the
// decision loop and only touched from within one step at a time, so it
// carries no locking. Lifecycle is explicit: record during the epoch,
// snapshot for consolidation, clear afterward.
type Buffer struct {
	entries map[Key]*Entry
}

// NewBuffer returns an empty buffer.
func NewBuffer() *Buffer {
	return &Buffer{entries: make(map[Key]*Entry)}
}

// Record folds one observed reward into the entry for (stimulus, action),
// creating the entry on first sight.
func (b *Buffer) Record(stimulus, action int, reward float64) {
	key := Key{Stimulus: stimulus, Action: action}
	entry, ok := b.entries[key]
	if !ok {
		entry = &Entry{}
		b.entries[key] = entry
	}
	entry.Acc += reward
	entry.Count++
	if math.Abs(reward) > math.Abs(entry.Peak) {
		entry.Peak = reward
	}
}

// Len returns the number of distinct keys recorded this epoch.
func (b *Buffer) Len() int { return len(b.entries) }

// Snapshot returns a copy ordered by (stimulus, action), so consolidation
// passes and their logs are deterministic.
func (b *Buffer) Snapshot() []Experience {
	out := make([]Experience, 0, len(b.entries))
	for key, entry := range b.entries {
		out = append(out, Experience{Key: key, Entry: *entry})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Stimulus != out[j].Stimulus {
			return out[i].Stimulus < out[j].Stimulus
		}
		return out[i].Action < out[j].Action
	})
	return out
}

// Clear empties the buffer. The loop calls this unconditionally after every
// consolidation pass.
func (b *Buffer) Clear() {
	b.entries = make(map[Key]*Entry)
}

// #endregion buffer
