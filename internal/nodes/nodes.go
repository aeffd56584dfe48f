// Package nodes defines the shared node vocabulary: the integer IDs used by
// the world, the decision loop, the audio mapper, and the associative engine,
// plus the human-readable semantics for each.
package nodes

import "fmt"

// Innate node IDs. The engine registry is seeded with 1..NodeMax plus the
// audio-specific nodes below; IDs outside the registry are rejected by every
// engine operation.
const (
	Danger     = 1
	Observe    = 12
	Flee       = 45
	Hide       = 88
	Tired      = 100
	Night      = 101
	BushSeen   = 102
	Hungry     = 103
	Pain       = 104
	Day        = 105
	Explore    = 106
	Eat        = 107
	Rest       = 108
	Sleep      = 109
	Startle    = 113
	LoudNoise  = 120
	SharpSound = 140
	Quiet      = 155
)

// NodeMax is the top of the contiguous innate pool. Audio nodes sit above it
// and are registered individually.
const NodeMax = 109

// semantics maps node IDs to names. Extend via bootstrap config; unknown IDs
// translate to a placeholder rather than failing.
var semantics = map[int]string{
	Danger:     "danger",
	Observe:    "observe",
	Flee:       "flee",
	Hide:       "hide",
	Tired:      "tired",
	Night:      "night",
	BushSeen:   "bush_seen",
	Hungry:     "hungry",
	Pain:       "pain",
	Day:        "day",
	Explore:    "explore",
	Eat:        "eat",
	Rest:       "rest",
	Sleep:      "sleep",
	Startle:    "startle",
	LoudNoise:  "loud_noise",
	SharpSound: "sharp_sound",
	Quiet:      "quiet",
}

// Actions is the set of nodes the agent may execute.
var Actions = map[int]bool{
	Flee:    true,
	Hide:    true,
	Observe: true,
	Explore: true,
	Eat:     true,
	Rest:    true,
	Sleep:   true,
}

// Priority orders stimulus candidates: the first member present in a sensor
// reading becomes the stimulus for that step.
var Priority = []int{Pain, Danger, Hungry, Tired}

// Context is the set of sensors forwarded as context rather than stimulus.
var Context = map[int]bool{
	Night:    true,
	BushSeen: true,
	Day:      true,
}

// Translate returns the semantic name for a node, or a NODE_<id> placeholder
// when the ID has no registered meaning.
func Translate(id int) string {
	if name, ok := semantics[id]; ok {
		return name
	}
	return fmt.Sprintf("NODE_%d", id)
}

// Register adds or overrides a semantic name. Bootstrap uses this to merge
// config-provided semantics over the built-in table.
func Register(id int, name string) {
	if name == "" {
		return
	}
	semantics[id] = name
}

// IsAction reports whether a node is an executable action.
func IsAction(id int) bool {
	return Actions[id]
}

// Innate returns the full innate ID set: 1..NodeMax plus the audio nodes.
// The slice is sorted ascending and safe for the caller to keep.
func Innate() []int {
	ids := make([]int, 0, NodeMax+4)
	for id := 1; id <= NodeMax; id++ {
		ids = append(ids, id)
	}
	ids = append(ids, Startle, LoudNoise, SharpSound, Quiet)
	return ids
}
