package assoc

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
)

// #region guard
const (
	guardNormal   = "normal"
	guardWarn     = "warn"
	guardCritical = "critical"

	// criticalQueueLimit rejects new submissions while the guard is critical
	// and the global queue is already deeper than this.
	criticalQueueLimit = 20000

	defaultQueueCapacity = 4096
	plentyOfMemoryMB     = 1 << 40
)

var errAsyncOff = errors.New("async runtime is off: call StartAsync first")

// readAvailableMB reports available system memory. When the probe fails the
// guard stays in normal mode.
func readAvailableMB() uint64 {
	data, err := os.ReadFile("/proc/meminfo")
	if err != nil {
		return plentyOfMemoryMB
	}
	for _, line := range strings.Split(string(data), "\n") {
		if !strings.HasPrefix(line, "MemAvailable:") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			break
		}
		kb, err := strconv.ParseUint(fields[1], 10, 64)
		if err != nil {
			break
		}
		return kb / 1024
	}
	return plentyOfMemoryMB
}

func (a *Assoc) refreshGuardLocked() {
	avail := a.availMB()
	p := a.asyncState.policy
	mode := guardNormal
	switch {
	case avail <= uint64(p.RAMCriticalMB):
		mode = guardCritical
	case avail <= uint64(p.RAMWarnMB):
		mode = guardWarn
	}
	a.asyncState.guardMode = mode
	if a.async != nil {
		sh := a.async.shared
		sh.mu.Lock()
		sh.guardMode = mode
		sh.mu.Unlock()
	}
}

// #endregion guard

// #region policy
// asyncMirror keeps the effective policy and guard mode visible even while
// the runtime is stopped.
type asyncMirror struct {
	policy    engine.AsyncPolicy
	guardMode string
}

func defaultShardCount() int {
	half := runtime.NumCPU() / 2
	if half < 2 {
		half = 2
	}
	return half
}

func defaultAsyncMirror() asyncMirror {
	return asyncMirror{
		policy: engine.AsyncPolicy{
			Shards:           defaultShardCount(),
			QueueCapacity:    defaultQueueCapacity,
			RAMWarnMB:        1024,
			RAMCriticalMB:    1536,
			CoalesceWindowMS: 300,
			ThrottlePerSec:   5000,
		},
		guardMode: guardNormal,
	}
}

// applyPolicyLocked overlays non-zero fields onto the effective policy,
// clamping each to its floor. Zero fields keep the current value.
func (a *Assoc) applyPolicyLocked(policy engine.AsyncPolicy) {
	p := &a.asyncState.policy
	if policy.Shards > 0 {
		p.Shards = maxInt(2, policy.Shards)
	}
	if policy.QueueCapacity > 0 {
		p.QueueCapacity = maxInt(64, policy.QueueCapacity)
	}
	if policy.RAMWarnMB > 0 {
		p.RAMWarnMB = maxInt(128, policy.RAMWarnMB)
	}
	if policy.RAMCriticalMB > 0 {
		p.RAMCriticalMB = maxInt(p.RAMWarnMB, policy.RAMCriticalMB)
	}
	if policy.CoalesceWindowMS > 0 {
		p.CoalesceWindowMS = maxInt(50, policy.CoalesceWindowMS)
	}
	if policy.ThrottlePerSec > 0 {
		p.ThrottlePerSec = maxInt(100, policy.ThrottlePerSec)
	}
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

// #endregion policy

// #region runtime-state
type cmdKind int

const (
	cmdStimulus cmdKind = iota
	cmdHop
	cmdUpdateEdge
	cmdFlush
)

type shardCmd struct {
	kind     cmdKind
	node     int
	strength float64
	receiver int
	weight   float64
	reply    chan struct{}
}

type asyncShared struct {
	mu                sync.Mutex
	shardCount        int
	adjacency         map[int][]engine.Link
	threshold         map[int]float64
	activation        map[int]float64
	ingressPaused     bool
	globalQueueLen    int
	perShardQueueLen  []int
	perShardProcessed []uint64
	processedTotal    uint64
	processedPerSec   float64
	lastRateMS        int64
	lastRateProcessed uint64
	droppedTotal      uint64
	coalescedTotal    uint64
	hopTotal          uint64
	guardMode         string
}

type asyncRuntime struct {
	ctx    context.Context
	cancel context.CancelFunc
	eg     *errgroup.Group
	shards []chan shardCmd
	shared *asyncShared
}

func (rt *asyncRuntime) ownerShard(node int) int {
	if len(rt.shards) == 0 {
		return 0
	}
	owner := node % len(rt.shards)
	if owner < 0 {
		owner += len(rt.shards)
	}
	return owner
}

// #endregion runtime-state

// #region lifecycle
// StartAsync boots the sharded ingestion runtime on a snapshot of the
// current graph. Idempotent: while running, a second call only applies the
// policy overlay and reports the running configuration.
func (a *Assoc) StartAsync(policy engine.AsyncPolicy) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.applyPolicyLocked(policy)
	if a.async != nil {
		a.refreshGuardLocked()
		return fmt.Sprintf("async_on=true shards=%d guard_mode=%s", len(a.async.shards), a.asyncState.guardMode), nil
	}

	a.refreshGuardLocked()
	shards := a.asyncState.policy.Shards
	shared := &asyncShared{
		shardCount:        shards,
		adjacency:         a.adjacencySnapshotLocked(),
		threshold:         a.thresholdSnapshotLocked(),
		activation:        make(map[int]float64),
		perShardQueueLen:  make([]int, shards),
		perShardProcessed: make([]uint64, shards),
		guardMode:         a.asyncState.guardMode,
	}

	ctx, cancel := context.WithCancel(context.Background())
	eg, ctx := errgroup.WithContext(ctx)
	rt := &asyncRuntime{
		ctx:    ctx,
		cancel: cancel,
		eg:     eg,
		shards: make([]chan shardCmd, shards),
		shared: shared,
	}
	for i := range rt.shards {
		rt.shards[i] = make(chan shardCmd, a.asyncState.policy.QueueCapacity)
	}
	for i := range rt.shards {
		shard := i
		eg.Go(func() error {
			rt.worker(ctx, shard)
			return nil
		})
	}

	a.async = rt
	return fmt.Sprintf("async_on=true shards=%d guard_mode=%s", shards, a.asyncState.guardMode), nil
}

// StopAsync cancels the runtime and waits for every shard worker to exit.
func (a *Assoc) StopAsync() string {
	a.mu.Lock()
	rt := a.async
	a.async = nil
	a.mu.Unlock()

	if rt != nil {
		rt.cancel()
		_ = rt.eg.Wait()
	}
	return "async_on=false"
}

func (a *Assoc) adjacencySnapshotLocked() map[int][]engine.Link {
	out := make(map[int][]engine.Link, len(a.nodes))
	for sender := range a.nodes {
		links := sortedLinks(a.mergedLinksLocked(sender))
		if len(links) > 0 {
			out[sender] = links
		}
	}
	return out
}

func (a *Assoc) thresholdSnapshotLocked() map[int]float64 {
	out := make(map[int]float64, len(a.nodes))
	for node, threshold := range a.nodes {
		out[node] = threshold
	}
	return out
}

// #endregion lifecycle

// #region submission
// SubmitBatch coalesces the batch by (node, source) keeping the strongest
// reading, then routes each grouped stimulus to its owner shard. An unknown
// node aborts the call; a paused or overloaded runtime rejects entries
// instead of blocking.
func (a *Assoc) SubmitBatch(entries []engine.Stimulus) (engine.BatchReport, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	var report engine.BatchReport
	if a.async == nil {
		return report, errAsyncOff
	}

	type groupKey struct {
		node   int
		source string
	}
	grouped := make(map[groupKey]float64, len(entries))
	for _, e := range entries {
		k := groupKey{node: e.Node, source: e.Source}
		prev, ok := grouped[k]
		if !ok {
			grouped[k] = e.Strength
			continue
		}
		if e.Strength > prev {
			grouped[k] = e.Strength
		}
		report.Coalesced++
	}

	sh := a.async.shared
	sh.mu.Lock()
	sh.coalescedTotal += uint64(report.Coalesced)
	sh.mu.Unlock()

	keys := make([]groupKey, 0, len(grouped))
	for k := range grouped {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		oi, oj := a.async.ownerShard(keys[i].node), a.async.ownerShard(keys[j].node)
		if oi != oj {
			return oi < oj
		}
		if keys[i].node != keys[j].node {
			return keys[i].node < keys[j].node
		}
		return keys[i].source < keys[j].source
	})

	for _, k := range keys {
		if err := a.strictCheck(k.node, "submit(node)"); err != nil {
			return report, err
		}
		a.refreshGuardLocked()
		accepted, err := a.async.submit(k.node, clampUnit(grouped[k]), a.asyncState.guardMode)
		if err != nil {
			return report, err
		}
		if accepted {
			report.Accepted++
		} else {
			report.Rejected++
		}
	}
	return report, nil
}

func (rt *asyncRuntime) submit(node int, strength float64, guard string) (bool, error) {
	owner := rt.ownerShard(node)
	sh := rt.shared

	sh.mu.Lock()
	sh.guardMode = guard
	if sh.ingressPaused {
		sh.droppedTotal++
		sh.mu.Unlock()
		return false, nil
	}
	if guard == guardCritical && sh.globalQueueLen > criticalQueueLimit {
		sh.droppedTotal++
		sh.mu.Unlock()
		return false, nil
	}
	sh.globalQueueLen++
	sh.perShardQueueLen[owner]++
	sh.mu.Unlock()

	reply := make(chan struct{}, 1)
	cmd := shardCmd{kind: cmdStimulus, node: node, strength: strength, reply: reply}
	select {
	case rt.shards[owner] <- cmd:
	case <-rt.ctx.Done():
		rt.popQueue(owner)
		return false, errors.New("async runtime stopped")
	}

	select {
	case <-reply:
		return true, nil
	case <-rt.ctx.Done():
		return false, errors.New("async runtime stopped")
	}
}

func (rt *asyncRuntime) updateEdge(sender, receiver int, weight float64) error {
	owner := rt.ownerShard(sender)
	reply := make(chan struct{}, 1)
	cmd := shardCmd{kind: cmdUpdateEdge, node: sender, receiver: receiver, weight: weight, reply: reply}
	select {
	case rt.shards[owner] <- cmd:
	case <-rt.ctx.Done():
		return errors.New("async runtime stopped")
	}
	select {
	case <-reply:
		return nil
	case <-rt.ctx.Done():
		return errors.New("async runtime stopped")
	}
}

// #endregion submission

// #region workers
func (rt *asyncRuntime) worker(ctx context.Context, shard int) {
	for {
		select {
		case <-ctx.Done():
			return
		case cmd := <-rt.shards[shard]:
			switch cmd.kind {
			case cmdStimulus:
				rt.popQueue(shard)
				rt.processSeed(shard, cmd.node, cmd.strength)
				cmd.reply <- struct{}{}
			case cmdHop:
				rt.popQueue(shard)
				rt.processSeed(shard, cmd.node, cmd.strength)
			case cmdUpdateEdge:
				rt.applyEdge(cmd.node, cmd.receiver, cmd.weight)
				cmd.reply <- struct{}{}
			case cmdFlush:
				cmd.reply <- struct{}{}
			}
		}
	}
}

func (rt *asyncRuntime) popQueue(shard int) {
	sh := rt.shared
	sh.mu.Lock()
	if sh.globalQueueLen > 0 {
		sh.globalQueueLen--
	}
	if shard < len(sh.perShardQueueLen) && sh.perShardQueueLen[shard] > 0 {
		sh.perShardQueueLen[shard]--
	}
	sh.mu.Unlock()
}

func (rt *asyncRuntime) applyEdge(sender, receiver int, weight float64) {
	sh := rt.shared
	sh.mu.Lock()
	defer sh.mu.Unlock()
	links := sh.adjacency[sender]
	for i := range links {
		if links[i].Node == receiver {
			links[i].Weight = weight
			return
		}
	}
	sh.adjacency[sender] = append(links, engine.Link{Node: receiver, Weight: weight})
}

// processSeed spreads one stimulus over the adjacency snapshot. Receivers
// owned by this shard continue breadth-first locally; receivers owned by a
// sibling are forwarded as hop commands. A saturated sibling drops the hop
// instead of risking a cross-shard stall.
func (rt *asyncRuntime) processSeed(shard, node int, strength float64) {
	sh := rt.shared
	queue := []queueItem{{node: node, strength: clampUnit(strength), depth: 0}}

	for len(queue) > 0 {
		item := queue[0]
		queue = queue[1:]
		if item.depth >= MaxSpreadDepth {
			continue
		}

		sh.mu.Lock()
		links := make([]engine.Link, len(sh.adjacency[item.node]))
		copy(links, sh.adjacency[item.node])
		sh.mu.Unlock()

		for _, link := range links {
			incoming := item.strength * link.Weight

			sh.mu.Lock()
			threshold, ok := sh.threshold[link.Node]
			if !ok {
				threshold = DefaultThreshold
			}
			if incoming < threshold || incoming <= sh.activation[link.Node] {
				sh.mu.Unlock()
				continue
			}
			sh.activation[link.Node] = incoming
			sh.mu.Unlock()

			target := rt.ownerShard(link.Node)
			if target == shard {
				queue = append(queue, queueItem{node: link.Node, strength: incoming, depth: item.depth + 1})
				continue
			}

			sh.mu.Lock()
			sh.hopTotal++
			sh.globalQueueLen++
			sh.perShardQueueLen[target]++
			sh.mu.Unlock()
			select {
			case rt.shards[target] <- shardCmd{kind: cmdHop, node: link.Node, strength: incoming}:
			default:
				sh.mu.Lock()
				sh.droppedTotal++
				if sh.globalQueueLen > 0 {
					sh.globalQueueLen--
				}
				if sh.perShardQueueLen[target] > 0 {
					sh.perShardQueueLen[target]--
				}
				sh.mu.Unlock()
			}
		}
	}

	now := time.Now().UnixMilli()
	sh.mu.Lock()
	sh.processedTotal++
	if shard < len(sh.perShardProcessed) {
		sh.perShardProcessed[shard]++
	}
	refreshRateLocked(sh, now)
	sh.mu.Unlock()
}

func refreshRateLocked(sh *asyncShared, nowMS int64) {
	if sh.lastRateMS == 0 {
		sh.lastRateMS = nowMS
		sh.lastRateProcessed = sh.processedTotal
		sh.processedPerSec = 0
		return
	}
	dt := nowMS - sh.lastRateMS
	if dt < 200 {
		return
	}
	dp := sh.processedTotal - sh.lastRateProcessed
	sh.processedPerSec = float64(dp) / (float64(dt) / 1000.0)
	sh.lastRateMS = nowMS
	sh.lastRateProcessed = sh.processedTotal
}

// #endregion workers

// #region maintenance
// pauseAndDrain stops ingress and waits for every shard to work through its
// queued commands. Each flush ack proves the shard reached the marker.
func (rt *asyncRuntime) pauseAndDrain() {
	sh := rt.shared
	sh.mu.Lock()
	sh.ingressPaused = true
	sh.mu.Unlock()

	for i := range rt.shards {
		reply := make(chan struct{}, 1)
		select {
		case rt.shards[i] <- shardCmd{kind: cmdFlush, reply: reply}:
		case <-rt.ctx.Done():
			continue
		}
		select {
		case <-reply:
		case <-rt.ctx.Done():
		}
	}
}

// reset installs a fresh graph snapshot, clears activation and queue
// accounting, and reopens ingress.
func (rt *asyncRuntime) reset(adjacency map[int][]engine.Link, thresholds map[int]float64) {
	sh := rt.shared
	sh.mu.Lock()
	sh.adjacency = adjacency
	sh.threshold = thresholds
	sh.activation = make(map[int]float64)
	sh.globalQueueLen = 0
	for i := range sh.perShardQueueLen {
		sh.perShardQueueLen[i] = 0
	}
	sh.ingressPaused = false
	sh.mu.Unlock()
}

// #endregion maintenance

// #region metrics
// Metrics snapshots runtime counters. With the runtime off it reports the
// effective policy with AsyncOn false, which steers the loop to the
// synchronous activation path.
func (a *Assoc) Metrics() (engine.Metrics, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.refreshGuardLocked()
	return a.metricsLocked(), nil
}

func (a *Assoc) metricsLocked() engine.Metrics {
	m := engine.Metrics{
		ShardCount:       a.asyncState.policy.Shards,
		GuardMode:        a.asyncState.guardMode,
		PerShardQueueLen: make([]int, a.asyncState.policy.Shards),
	}
	if a.async == nil {
		return m
	}

	sh := a.async.shared
	sh.mu.Lock()
	defer sh.mu.Unlock()
	refreshRateLocked(sh, time.Now().UnixMilli())

	m.AsyncOn = true
	m.IngressPaused = sh.ingressPaused
	m.ShardCount = sh.shardCount
	m.GlobalQueueLen = sh.globalQueueLen
	m.ProcessedTotal = sh.processedTotal
	m.ProcessedPerSec = sh.processedPerSec
	m.DroppedTotal = sh.droppedTotal
	m.CoalescedTotal = sh.coalescedTotal
	m.GuardMode = sh.guardMode
	m.PerShardQueueLen = make([]int, len(sh.perShardQueueLen))
	copy(m.PerShardQueueLen, sh.perShardQueueLen)
	return m
}

// #endregion metrics

func clampUnit(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
