package assoc

import (
	"math/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/zstd"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/danielpatrickdp/survival-agent/internal/engine"
)

func makeEngine(t *testing.T, pool ...int) *Assoc {
	t.Helper()
	if len(pool) == 0 {
		pool = []int{1, 2, 3, 4, 5}
	}
	a := New(DefaultConfig(), rand.New(rand.NewSource(11)), nil)
	_, err := a.EnsureRegistry(pool)
	require.NoError(t, err)
	return a
}

func TestEnsureRegistryFirstInit(t *testing.T) {
	a := New(DefaultConfig(), rand.New(rand.NewSource(1)), nil)

	report, err := a.EnsureRegistry([]int{3, 1, 2, 2})
	require.NoError(t, err)
	assert.Equal(t, "migrated=true registry_version=1 added_nodes=0 removed_nodes=0", report)

	report, err = a.EnsureRegistry([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "migrated=false registry_version=1 added_nodes=0 removed_nodes=0", report)
}

func TestEnsureRegistryEmptyPoolIsNoop(t *testing.T) {
	a := New(DefaultConfig(), rand.New(rand.NewSource(1)), nil)
	report, err := a.EnsureRegistry(nil)
	require.NoError(t, err)
	assert.Equal(t, "migrated=false registry_version=1 added_nodes=0 removed_nodes=0", report)
}

func TestEnsureRegistryMigrationKeepsSurvivingLinks(t *testing.T) {
	a := makeEngine(t, 1, 2, 3)
	require.NoError(t, a.UpdateWeight(1, 2, 0.8))
	require.NoError(t, a.UpdateWeight(1, 3, 0.6))
	require.NoError(t, a.UpdateWeight(2, 3, 0.4))

	report, err := a.EnsureRegistry([]int{1, 2, 4})
	require.NoError(t, err)
	assert.Equal(t, "migrated=true registry_version=1 added_nodes=1 removed_nodes=1", report)

	links, err := a.Connections(1)
	require.NoError(t, err)
	require.Len(t, links, 1, "links touching the removed node must be dropped")
	assert.Equal(t, 2, links[0].Node)
	assert.InDelta(t, 0.8, links[0].Weight, 1e-9)

	_, err = a.Connections(3)
	assert.ErrorIs(t, err, engine.ErrUnknownNode)
}

func TestStrictCheckRejectsUnknownNodes(t *testing.T) {
	a := makeEngine(t)

	err := a.Activate(99, 1.0)
	assert.ErrorIs(t, err, engine.ErrUnknownNode)
	assert.ErrorContains(t, err, "activate(node): 99")

	err = a.UpdateWeight(1, 99, 0.5)
	assert.ErrorIs(t, err, engine.ErrUnknownNode)

	_, err = a.Rank(1, []int{99})
	assert.ErrorIs(t, err, engine.ErrUnknownNode)
	assert.ErrorContains(t, err, "rank(context)")
}

func TestUpdateWeightClampsAndSorts(t *testing.T) {
	a := makeEngine(t)
	require.NoError(t, a.UpdateWeight(1, 2, 1.7))
	require.NoError(t, a.UpdateWeight(1, 3, -0.2))
	require.NoError(t, a.UpdateWeight(1, 4, 0.5))

	links, err := a.Connections(1)
	require.NoError(t, err)
	require.Len(t, links, 3)
	assert.Equal(t, []engine.Link{{Node: 2, Weight: 1.0}, {Node: 4, Weight: 0.5}, {Node: 3, Weight: 0.0}}, links)
}

func TestActivateSpreadsAboveThresholdOnly(t *testing.T) {
	a := makeEngine(t)
	require.NoError(t, a.UpdateWeight(1, 2, 0.5))
	require.NoError(t, a.UpdateWeight(2, 3, 0.3))

	require.NoError(t, a.Activate(1, 1.0))

	active := a.ActiveNodes()
	require.Len(t, active, 2)
	assert.Equal(t, 1, active[0].Node)
	assert.InDelta(t, 1.0, active[0].Weight, 1e-9)
	assert.Equal(t, 2, active[1].Node)
	assert.InDelta(t, 0.5, active[1].Weight, 1e-9)
}

func TestActivateKeepsStrongestActivation(t *testing.T) {
	a := makeEngine(t)
	// Two paths into node 3: direct (0.9) and via node 2 (0.8*0.8=0.64).
	require.NoError(t, a.UpdateWeight(1, 3, 0.9))
	require.NoError(t, a.UpdateWeight(1, 2, 0.8))
	require.NoError(t, a.UpdateWeight(2, 3, 0.8))

	require.NoError(t, a.Activate(1, 1.0))

	for _, link := range a.ActiveNodes() {
		if link.Node == 3 {
			assert.InDelta(t, 0.9, link.Weight, 1e-9)
			return
		}
	}
	t.Fatal("node 3 never activated")
}

func TestRankScoresCandidates(t *testing.T) {
	a := makeEngine(t, 100, 101, 103, 106, 107)
	require.NoError(t, a.UpdateWeight(103, 106, 0.3))
	require.NoError(t, a.UpdateWeight(103, 107, 0.2))
	require.NoError(t, a.UpdateWeight(101, 106, 0.4))
	require.NoError(t, a.UpdateWeight(106, 100, 0.1))
	require.NoError(t, a.UpdateWeight(107, 103, 0.05))

	ranked, err := a.Rank(103, []int{101})
	require.NoError(t, err)
	require.Len(t, ranked, 2)

	// 107: value 0.2, no context support (0.5), own mean cost 0.05 -> 2.0
	// 106: value 0.3, context support 0.4, own mean cost 0.1 -> 1.2
	assert.Equal(t, 107, ranked[0].Node)
	assert.InDelta(t, 2.0, ranked[0].Value, 1e-9)
	assert.Equal(t, 106, ranked[1].Node)
	assert.InDelta(t, 1.2, ranked[1].Value, 1e-9)
}

func TestRankWithoutCandidatesIsEmpty(t *testing.T) {
	a := makeEngine(t)
	ranked, err := a.Rank(1, nil)
	require.NoError(t, err)
	assert.Empty(t, ranked)
}

func TestRankDefaultsCostWhenCandidateHasNoLinks(t *testing.T) {
	a := makeEngine(t)
	require.NoError(t, a.UpdateWeight(1, 2, 0.6))

	ranked, err := a.Rank(1, nil)
	require.NoError(t, err)
	require.Len(t, ranked, 1)
	// value 0.6 * default opportunity 0.5 / default cost 1.0
	assert.InDelta(t, 0.3, ranked[0].Value, 1e-9)
}

func TestFormAssociationsLinksCoActiveNodes(t *testing.T) {
	a := makeEngine(t)
	require.NoError(t, a.Activate(1, 1.0))
	require.NoError(t, a.Activate(2, 1.0))

	// Both window entries carry strength 1.0, so the pair probability is 1
	// and both directions must form.
	formed, err := a.FormAssociations()
	require.NoError(t, err)
	assert.Equal(t, 2, formed)

	links, err := a.Connections(1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 2, links[0].Node)
	assert.InDelta(t, InitialWeight, links[0].Weight, 1e-9)

	// Existing links are never re-formed.
	formed, err = a.FormAssociations()
	require.NoError(t, err)
	assert.Zero(t, formed)
}

func TestFormAssociationsSkipsWeakSenders(t *testing.T) {
	a := makeEngine(t)
	require.NoError(t, a.Activate(1, 0.1))
	require.NoError(t, a.Activate(2, 1.0))
	require.NoError(t, a.Activate(3, 1.0))

	_, err := a.FormAssociations()
	require.NoError(t, err)

	links, err := a.Connections(1)
	require.NoError(t, err)
	assert.Empty(t, links, "a sender below its own threshold never forms links")

	links, err = a.Connections(2)
	require.NoError(t, err)
	var linked bool
	for _, l := range links {
		if l.Node == 3 {
			linked = true
		}
	}
	assert.True(t, linked, "full-strength co-active nodes must link")
}

func TestConsolidateMergesAndPrunes(t *testing.T) {
	a := makeEngine(t)
	require.NoError(t, a.UpdateWeight(1, 2, 0.9))
	require.NoError(t, a.UpdateWeight(1, 3, 0.01))
	require.NoError(t, a.Activate(1, 1.0))

	report, err := a.Consolidate()
	require.NoError(t, err)
	assert.Equal(t, 2, report.Merged)
	// mean 0.455, floor 0.1365: the 0.01 link goes.
	assert.Equal(t, 1, report.Pruned)

	links, err := a.Connections(1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 2, links[0].Node)

	assert.Empty(t, a.ActiveNodes(), "consolidation clears activation state")

	report, err = a.Consolidate()
	require.NoError(t, err)
	assert.Zero(t, report.Merged)
	assert.Zero(t, report.Pruned)
}

func TestStoreRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.db")

	st, err := OpenStore(path)
	require.NoError(t, err)
	a := New(DefaultConfig(), rand.New(rand.NewSource(5)), nil)
	require.NoError(t, a.AttachStore(st))
	_, err = a.EnsureRegistry([]int{1, 2, 3})
	require.NoError(t, err)
	require.NoError(t, a.UpdateWeight(1, 2, 0.75))
	_, err = a.Consolidate()
	require.NoError(t, err)
	require.NoError(t, a.Close())

	st, err = OpenStore(path)
	require.NoError(t, err)
	b := New(DefaultConfig(), rand.New(rand.NewSource(5)), nil)
	require.NoError(t, b.AttachStore(st))
	defer b.Close()

	report, err := b.EnsureRegistry([]int{1, 2, 3})
	require.NoError(t, err)
	assert.Equal(t, "migrated=false registry_version=1 added_nodes=0 removed_nodes=0", report,
		"a matching persisted pool must not migrate again")

	links, err := b.Connections(1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.Equal(t, 2, links[0].Node)
	assert.InDelta(t, 0.75, links[0].Weight, 1e-9)
}

func TestSnapshotRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "graph.snap")

	a := makeEngine(t, 1, 2, 3)
	require.NoError(t, a.UpdateWeight(1, 2, 0.6))
	require.NoError(t, a.UpdateWeight(2, 3, 0.4))
	require.NoError(t, a.WriteSnapshot(path))

	header, err := InspectSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, snapshotMagic, header.Magic)
	assert.Equal(t, 1, header.Version)
	assert.Equal(t, 3, header.Nodes)
	assert.Equal(t, 2, header.Links)

	b := New(DefaultConfig(), rand.New(rand.NewSource(9)), nil)
	_, err = b.EnsureRegistry([]int{7, 8})
	require.NoError(t, err)
	imported, err := b.ReadSnapshot(path)
	require.NoError(t, err)
	assert.Equal(t, header.Links, imported.Links)

	links, err := b.Connections(1)
	require.NoError(t, err)
	require.Len(t, links, 1)
	assert.InDelta(t, 0.6, links[0].Weight, 1e-9)
}

func TestReadSnapshotRejectsForeignFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bogus.snap")

	f, err := os.Create(path)
	require.NoError(t, err)
	enc, err := zstd.NewWriter(f)
	require.NoError(t, err)
	_, err = enc.Write([]byte(`{"magic":"something-else","version":1}` + "\n"))
	require.NoError(t, err)
	require.NoError(t, enc.Close())
	require.NoError(t, f.Close())

	a := New(DefaultConfig(), rand.New(rand.NewSource(3)), nil)
	_, err = a.ReadSnapshot(path)
	require.Error(t, err)
	assert.ErrorContains(t, err, "not a graph snapshot")

	_, err = a.ReadSnapshot(filepath.Join(dir, "missing.snap"))
	require.Error(t, err)
}
