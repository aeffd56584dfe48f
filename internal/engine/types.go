package engine

// #region values
// NodeValue is one entry of a ranked value query: a candidate node and the
// value the engine assigns it under the queried stimulus and context.
type NodeValue struct {
	Node  int
	Value float64
}

// Link is one outgoing connection of a node.
type Link struct {
	Node   int
	Weight float64
}

// Stimulus is one activation submission: node, strength in [0,1], and a
// free-form source tag for diagnostics.
type Stimulus struct {
	Node     int
	Strength float64
	Source   string
}

// #endregion values

// #region reports
// BatchReport summarizes one batched submission.
type BatchReport struct {
	Accepted  int
	Rejected  int
	Coalesced int
}

// ConsolidateReport counts what storage consolidation did.
type ConsolidateReport struct {
	Merged int
	Pruned int
}

// #endregion reports

// #region async
// AsyncPolicy tunes the asynchronous ingestion runtime. Implementations
// clamp out-of-range fields to their floors rather than erroring.
type AsyncPolicy struct {
	Shards           int
	QueueCapacity    int
	RAMWarnMB        int
	RAMCriticalMB    int
	CoalesceWindowMS int
	ThrottlePerSec   int
}

// Metrics is the probe snapshot the loop uses to pick sync versus batched
// submission. AsyncOn false and a probe error both select the sync path.
type Metrics struct {
	AsyncOn          bool
	IngressPaused    bool
	ShardCount       int
	GlobalQueueLen   int
	ProcessedTotal   uint64
	ProcessedPerSec  float64
	DroppedTotal     uint64
	CoalescedTotal   uint64
	GuardMode        string
	PerShardQueueLen []int
}

// #endregion async
