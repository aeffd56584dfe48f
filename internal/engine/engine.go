// Package engine declares the operation contract between the decision loop
// and the associative-memory engine. The loop depends only on these
// interfaces; the in-process implementation lives in internal/assoc and any
// other implementation satisfying the contract can be injected in its place.
package engine

import "errors"

// ErrUnknownNode is wrapped by every operation that rejects a node absent
// from the innate registry. Callers are expected to log and skip the single
// affected operation, never to abort the step.
var ErrUnknownNode = errors.New("unknown node")

// #region contract
// Engine is the synchronous contract. All operations are safe to call from
// the single-threaded decision loop; failures are contained to one call.
type Engine interface {
	// EnsureRegistry validates and, when needed, migrates the innate node
	// registry to exactly the given pool. Idempotent; called once at startup.
	EnsureRegistry(pool []int) (string, error)

	// Activate spreads activation from a node with the given strength.
	Activate(node int, strength float64) error

	// Rank queries the value function for a stimulus with optional context
	// and returns candidates ordered by descending value.
	Rank(stimulus int, context []int) ([]NodeValue, error)

	// Connections lists a node's outgoing links, strongest first.
	Connections(node int) ([]Link, error)

	// UpdateWeight sets the weight of the sender→receiver edge, creating it
	// when absent. Weight is clamped to [0,1] by the implementation.
	UpdateWeight(sender, receiver int, weight float64) error

	// FormAssociations opportunistically links recently co-active nodes and
	// returns how many edges were formed. Advisory; never blocks the loop.
	FormAssociations() (int, error)

	// Consolidate merges short-term weight changes into long-term storage
	// and prunes weak links. Maintenance hook, advisory.
	Consolidate() (ConsolidateReport, error)

	// Status returns a one-line diagnostic summary.
	Status() string
}

// AsyncEngine is the capability extension for engines that run an
// asynchronous ingestion runtime. The loop probes Metrics each step and
// switches to SubmitBatch while AsyncOn is reported true.
type AsyncEngine interface {
	Engine

	// StartAsync boots the ingestion runtime. Idempotent: a second call
	// reports the running configuration without restarting anything.
	StartAsync(policy AsyncPolicy) (string, error)

	// SubmitBatch enqueues a batch of stimuli, coalescing duplicates.
	SubmitBatch(entries []Stimulus) (BatchReport, error)

	// StopAsync shuts the ingestion runtime down and reports the resulting
	// state. Safe to call when the runtime was never started.
	StopAsync() string

	// Metrics snapshots runtime counters, including the AsyncOn flag.
	Metrics() (Metrics, error)
}

// #endregion contract
