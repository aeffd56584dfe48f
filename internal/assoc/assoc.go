// Package assoc implements the in-process associative-memory engine behind
// the engine.AsyncEngine contract: a weighted directed graph over the innate
// node pool with spreading activation, value ranking, opportunistic
// association forming, and a consolidation pass that merges short-term weight
// changes into the long-term tier. Long-term state can be bound to a SQLite
// store and exported as compressed snapshots.
package assoc

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
)

// #region tunables
const (
	// MaxLinksPerNode caps outgoing links per sender; association forming
	// stops for a sender at the cap, explicit weight updates do not.
	MaxLinksPerNode = 7000

	// InitialWeight is assigned to every opportunistically formed link.
	InitialWeight = 0.01

	// DefaultThreshold gates incoming activation per receiving node.
	DefaultThreshold = 0.2

	// PruneRatio scales a node's mean outgoing weight into its prune floor.
	PruneRatio = 0.3

	// WindowSize bounds the temporal window of recent activation events.
	WindowSize = 5

	// MaxSpreadDepth bounds breadth-first activation spreading.
	MaxSpreadDepth = 4
)

// Config tunes one engine instance. Zero values fall back to the package
// defaults above so a zero Config behaves like DefaultConfig.
type Config struct {
	RegistryVersion int
	NodeThreshold   float64
	MaxLinks        int
	SpreadDepth     int
	Window          int
	Prune           float64
}

// DefaultConfig returns the stock tuning.
func DefaultConfig() Config {
	return Config{
		RegistryVersion: 1,
		NodeThreshold:   DefaultThreshold,
		MaxLinks:        MaxLinksPerNode,
		SpreadDepth:     MaxSpreadDepth,
		Window:          WindowSize,
		Prune:           PruneRatio,
	}
}

func (c Config) withDefaults() Config {
	if c.RegistryVersion <= 0 {
		c.RegistryVersion = 1
	}
	if c.NodeThreshold <= 0 {
		c.NodeThreshold = DefaultThreshold
	}
	if c.MaxLinks <= 0 {
		c.MaxLinks = MaxLinksPerNode
	}
	if c.SpreadDepth <= 0 {
		c.SpreadDepth = MaxSpreadDepth
	}
	if c.Window <= 0 {
		c.Window = WindowSize
	}
	if c.Prune <= 0 {
		c.Prune = PruneRatio
	}
	return c
}

// #endregion tunables

// #region engine-state
type windowEntry struct {
	node     int
	strength float64
	tick     uint64
}

// Assoc is the reference engine. All exported methods are safe for
// concurrent use; graph state is guarded by a single mutex and the async
// ingestion runtime only shares the adjacency snapshot handed to it.
type Assoc struct {
	mu     sync.Mutex
	cfg    Config
	rng    *rand.Rand
	logger *zap.Logger

	nodes      map[int]float64         // node -> activation threshold
	base       map[int]map[int]float64 // long-term tier
	delta      map[int]map[int]float64 // short-term tier, overlays base
	activation map[int]float64
	window     []windowEntry
	tick       uint64

	loadedVersion int
	store         *Store

	async      *asyncRuntime
	asyncState asyncMirror
	availMB    func() uint64
}

// New builds an engine with an empty registry. A nil rng falls back to a
// time-seeded source; a nil logger discards diagnostics.
func New(cfg Config, rng *rand.Rand, logger *zap.Logger) *Assoc {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Assoc{
		cfg:           cfg.withDefaults(),
		rng:           rng,
		logger:        logger,
		nodes:         make(map[int]float64),
		base:          make(map[int]map[int]float64),
		delta:         make(map[int]map[int]float64),
		activation:    make(map[int]float64),
		loadedVersion: -1,
		asyncState:    defaultAsyncMirror(),
		availMB:       readAvailableMB,
	}
}

var _ engine.AsyncEngine = (*Assoc)(nil)

// #endregion engine-state

// #region strict-check
func (a *Assoc) strictCheck(node int, role string) error {
	if _, ok := a.nodes[node]; ok {
		return nil
	}
	return fmt.Errorf("%w for %s: %d: node must be registered in the innate pool", engine.ErrUnknownNode, role, node)
}

// #endregion strict-check

// #region registry
// EnsureRegistry validates the innate pool and migrates stored state to it
// when the pool or registry version changed. Surviving links keep their
// weights; links touching a removed node are dropped.
func (a *Assoc) EnsureRegistry(pool []int) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	ids := dedupeSorted(pool)
	if len(ids) == 0 {
		return fmt.Sprintf("migrated=false registry_version=%d added_nodes=0 removed_nodes=0", a.cfg.RegistryVersion), nil
	}

	current := make([]int, 0, len(a.nodes))
	for id := range a.nodes {
		current = append(current, id)
	}
	sort.Ints(current)

	needsMigrate := len(a.nodes) == 0 || a.loadedVersion != a.cfg.RegistryVersion || !equalInts(current, ids)
	if !needsMigrate {
		return fmt.Sprintf("migrated=false registry_version=%d added_nodes=0 removed_nodes=0", a.cfg.RegistryVersion), nil
	}

	added, removed := a.migrateLocked(ids)
	if err := a.persistLocked(); err != nil {
		return "", fmt.Errorf("persist migrated registry: %w", err)
	}
	return fmt.Sprintf("migrated=true registry_version=%d added_nodes=%d removed_nodes=%d", a.cfg.RegistryVersion, added, removed), nil
}

func (a *Assoc) migrateLocked(ids []int) (added, removed int) {
	if len(a.nodes) == 0 {
		for _, id := range ids {
			a.nodes[id] = a.cfg.NodeThreshold
		}
		a.loadedVersion = a.cfg.RegistryVersion
		return 0, 0
	}

	target := make(map[int]bool, len(ids))
	for _, id := range ids {
		target[id] = true
	}

	// Fold delta into base first so surviving links keep their latest weight.
	merged := make(map[int]map[int]float64, len(a.nodes))
	for sender := range a.nodes {
		merged[sender] = a.mergedLinksLocked(sender)
	}

	for id := range a.nodes {
		if !target[id] {
			removed++
		}
	}
	for _, id := range ids {
		if _, ok := a.nodes[id]; !ok {
			added++
		}
	}

	a.nodes = make(map[int]float64, len(ids))
	a.base = make(map[int]map[int]float64, len(ids))
	for _, id := range ids {
		a.nodes[id] = a.cfg.NodeThreshold
		links := make(map[int]float64)
		for receiver, weight := range merged[id] {
			if target[receiver] {
				links[receiver] = weight
			}
		}
		if len(links) > 0 {
			a.base[id] = links
		}
	}

	a.delta = make(map[int]map[int]float64)
	a.activation = make(map[int]float64)
	a.window = nil
	a.loadedVersion = a.cfg.RegistryVersion
	return added, removed
}

// #endregion registry

// #region links
func (a *Assoc) mergedLinksLocked(sender int) map[int]float64 {
	out := make(map[int]float64, len(a.base[sender])+len(a.delta[sender]))
	for receiver, weight := range a.base[sender] {
		out[receiver] = weight
	}
	for receiver, weight := range a.delta[sender] {
		out[receiver] = weight
	}
	return out
}

func (a *Assoc) linkBudgetLocked(sender int) int {
	return len(a.base[sender]) + len(a.delta[sender])
}

func sortedLinks(merged map[int]float64) []engine.Link {
	out := make([]engine.Link, 0, len(merged))
	for node, weight := range merged {
		out = append(out, engine.Link{Node: node, Weight: weight})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Weight != out[j].Weight {
			return out[i].Weight > out[j].Weight
		}
		return out[i].Node < out[j].Node
	})
	return out
}

// Connections lists a node's outgoing links, strongest first.
func (a *Assoc) Connections(node int) ([]engine.Link, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.strictCheck(node, "connections(node)"); err != nil {
		return nil, err
	}
	return sortedLinks(a.mergedLinksLocked(node)), nil
}

// UpdateWeight sets the sender→receiver weight in the short-term tier,
// creating the link when absent. The weight is clamped to [0,1].
func (a *Assoc) UpdateWeight(sender, receiver int, weight float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.strictCheck(sender, "update_weight(sender)"); err != nil {
		return err
	}
	if err := a.strictCheck(receiver, "update_weight(receiver)"); err != nil {
		return err
	}

	w := math.Max(0, math.Min(1, weight))
	if a.async != nil {
		if err := a.async.updateEdge(sender, receiver, w); err != nil {
			return fmt.Errorf("mirror weight into async runtime: %w", err)
		}
	}

	if a.delta[sender] == nil {
		a.delta[sender] = make(map[int]float64)
	}
	a.delta[sender][receiver] = w
	a.tick++
	return nil
}

// #endregion links

// #region spreading
type queueItem struct {
	node     int
	strength float64
	depth    int
}

// Activate seeds activation at a node and spreads it breadth-first along
// outgoing links. A receiver only activates when the incoming product
// clears its threshold, and only its strongest activation is kept.
func (a *Assoc) Activate(node int, strength float64) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.strictCheck(node, "activate(node)"); err != nil {
		return err
	}
	a.spreadLocked(node, strength)
	return nil
}

func (a *Assoc) spreadLocked(seed int, strength float64) {
	a.activation = map[int]float64{seed: strength}
	a.pushWindowLocked(seed, strength)

	queue := []queueItem{{node: seed, strength: strength, depth: 0}}
	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= a.cfg.SpreadDepth {
			continue
		}

		for _, link := range sortedLinks(a.mergedLinksLocked(item.node)) {
			incoming := item.strength * link.Weight
			threshold, ok := a.nodes[link.Node]
			if !ok {
				threshold = a.cfg.NodeThreshold
			}
			if incoming < threshold {
				continue
			}
			if incoming <= a.activation[link.Node] {
				continue
			}
			a.activation[link.Node] = incoming
			a.pushWindowLocked(link.Node, incoming)
			queue = append(queue, queueItem{node: link.Node, strength: incoming, depth: item.depth + 1})
		}
	}
	a.tick++
}

func (a *Assoc) pushWindowLocked(node int, strength float64) {
	a.window = append(a.window, windowEntry{node: node, strength: strength, tick: a.tick})
	if len(a.window) > a.cfg.Window {
		a.window = a.window[len(a.window)-a.cfg.Window:]
	}
}

// ActiveNodes returns the current activation set, strongest first.
func (a *Assoc) ActiveNodes() []engine.Link {
	a.mu.Lock()
	defer a.mu.Unlock()
	return sortedLinks(a.activation)
}

// #endregion spreading

// #region ranking
// Rank scores the stimulus node's direct successors. Each candidate's value
// is the stimulus link weight scaled by opportunity (mean context support,
// 0.5 when no context links the candidate) over cost (mean of the
// candidate's own outgoing weights, 1.0 when it has none).
func (a *Assoc) Rank(stimulus int, context []int) ([]engine.NodeValue, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if err := a.strictCheck(stimulus, "rank(stimulus)"); err != nil {
		return nil, err
	}
	for _, ctx := range context {
		if err := a.strictCheck(ctx, "rank(context)"); err != nil {
			return nil, err
		}
	}

	candidates := sortedLinks(a.mergedLinksLocked(stimulus))
	if len(candidates) == 0 {
		return nil, nil
	}

	out := make([]engine.NodeValue, 0, len(candidates))
	for _, cand := range candidates {
		outgoing := a.mergedLinksLocked(cand.Node)
		cost := 1.0
		if len(outgoing) > 0 {
			total := 0.0
			for _, w := range outgoing {
				total += w
			}
			cost = total / float64(len(outgoing))
		}

		support := 0.0
		supporters := 0
		for _, ctx := range context {
			if w, ok := a.mergedLinksLocked(ctx)[cand.Node]; ok {
				support += w
				supporters++
			}
		}
		opportunity := 0.5
		if supporters > 0 {
			opportunity = support / float64(supporters)
		}

		score := math.MaxFloat64
		if cost != 0 {
			score = cand.Weight * opportunity / cost
		}
		out = append(out, engine.NodeValue{Node: cand.Node, Value: score})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Value != out[j].Value {
			return out[i].Value > out[j].Value
		}
		return out[i].Node < out[j].Node
	})
	return out, nil
}

// #endregion ranking

// #region forming
// FormAssociations scans the temporal window and probabilistically links
// co-active nodes that are not linked yet. The chance of a new link is the
// product of both activation strengths; new links start at InitialWeight.
func (a *Assoc) FormAssociations() (int, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	entries := make([]windowEntry, len(a.window))
	copy(entries, a.window)

	formed := 0
	for i, sender := range entries {
		senderThreshold, ok := a.nodes[sender.node]
		if !ok {
			continue
		}
		if sender.strength < senderThreshold {
			continue
		}
		if a.linkBudgetLocked(sender.node) >= a.cfg.MaxLinks {
			continue
		}

		for j, receiver := range entries {
			if i == j {
				continue
			}
			if _, ok := a.nodes[receiver.node]; !ok {
				continue
			}
			if a.rng.Float64() > sender.strength*receiver.strength {
				continue
			}
			if _, ok := a.delta[sender.node][receiver.node]; ok {
				continue
			}
			if _, ok := a.base[sender.node][receiver.node]; ok {
				continue
			}
			if a.delta[sender.node] == nil {
				a.delta[sender.node] = make(map[int]float64)
			}
			a.delta[sender.node][receiver.node] = InitialWeight
			formed++
		}
	}
	return formed, nil
}

// #endregion forming

// #region consolidation
// Consolidate folds the short-term tier into the long-term tier, prunes
// links below each node's prune floor, clears the activation state and
// temporal window, and persists the result when a store is bound. While an
// async runtime is on, ingress pauses for the pass and the runtime restarts
// on a fresh adjacency snapshot.
func (a *Assoc) Consolidate() (engine.ConsolidateReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.async != nil {
		a.async.pauseAndDrain()
	}

	var report engine.ConsolidateReport
	senders := make([]int, 0, len(a.delta))
	for sender := range a.delta {
		senders = append(senders, sender)
	}
	sort.Ints(senders)

	for _, sender := range senders {
		links := a.base[sender]
		if links == nil {
			links = make(map[int]float64, len(a.delta[sender]))
		}
		receivers := make([]int, 0, len(a.delta[sender]))
		for receiver := range a.delta[sender] {
			receivers = append(receivers, receiver)
		}
		sort.Ints(receivers)
		for _, receiver := range receivers {
			links[receiver] = a.delta[sender][receiver]
			report.Merged++
		}

		if len(links) > 0 {
			total := 0.0
			for _, w := range links {
				total += w
			}
			floor := total / float64(len(links)) * a.cfg.Prune
			for receiver, w := range links {
				if w < floor {
					delete(links, receiver)
					report.Pruned++
				}
			}
		}
		if len(links) > 0 {
			a.base[sender] = links
		} else {
			delete(a.base, sender)
		}
	}

	a.delta = make(map[int]map[int]float64)
	a.window = nil
	a.activation = make(map[int]float64)

	if err := a.persistLocked(); err != nil {
		if a.async != nil {
			a.async.reset(a.adjacencySnapshotLocked(), a.thresholdSnapshotLocked())
		}
		return report, fmt.Errorf("persist consolidated graph: %w", err)
	}

	if a.async != nil {
		a.async.reset(a.adjacencySnapshotLocked(), a.thresholdSnapshotLocked())
	}

	a.logger.Info("consolidation pass",
		zap.Int("merged", report.Merged),
		zap.Int("pruned", report.Pruned))
	return report, nil
}

func (a *Assoc) persistLocked() error {
	if a.store == nil {
		return nil
	}
	return a.store.Replace(a.nodes, a.snapshotEdgesLocked(), a.cfg.RegistryVersion, a.tick)
}

func (a *Assoc) snapshotEdgesLocked() map[int]map[int]float64 {
	out := make(map[int]map[int]float64, len(a.base))
	for sender := range a.nodes {
		merged := a.mergedLinksLocked(sender)
		if len(merged) > 0 {
			out[sender] = merged
		}
	}
	return out
}

// #endregion consolidation

// #region status
// Status returns one line of engine diagnostics.
func (a *Assoc) Status() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	edges := 0
	for sender := range a.nodes {
		edges += len(a.mergedLinksLocked(sender))
	}
	deltaEntries := 0
	for _, links := range a.delta {
		deltaEntries += len(links)
	}

	m := a.metricsLocked()
	return fmt.Sprintf(
		"nodes=%d | edges=%d | delta_nodes=%d entries=%d | active=%d | tick=%d | reg_ver=%d | async_on=%t | shards=%d | global_queue_len=%d | guard_mode=%s",
		len(a.nodes), edges, len(a.delta), deltaEntries, len(a.activation), a.tick,
		a.cfg.RegistryVersion, m.AsyncOn, m.ShardCount, m.GlobalQueueLen, m.GuardMode,
	)
}

// #endregion status

// #region store-binding
// AttachStore binds a SQLite store and loads any persisted graph into the
// long-term tier. Call before EnsureRegistry so a stale pool migrates.
func (a *Assoc) AttachStore(st *Store) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	loaded, err := st.Load()
	if err != nil {
		return fmt.Errorf("load persisted graph: %w", err)
	}
	a.store = st
	if len(loaded.Thresholds) == 0 {
		return nil
	}

	a.nodes = loaded.Thresholds
	a.base = loaded.Edges
	a.delta = make(map[int]map[int]float64)
	a.activation = make(map[int]float64)
	a.window = nil
	a.tick = loaded.Tick
	a.loadedVersion = loaded.RegistryVersion
	return nil
}

// Close stops the async runtime and releases the bound store, if any.
func (a *Assoc) Close() error {
	a.StopAsync()
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.store == nil {
		return nil
	}
	err := a.store.Close()
	a.store = nil
	return err
}

// #endregion store-binding

// #region helpers
func dedupeSorted(ids []int) []int {
	out := make([]int, 0, len(ids))
	seen := make(map[int]bool, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// #endregion helpers
