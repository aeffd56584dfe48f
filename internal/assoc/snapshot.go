package assoc

import (
	"bufio"
	"encoding/gob"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/klauspost/compress/zstd"
)

// #region format
const (
	snapshotMagic   = "assoc-graph"
	snapshotVersion = 1
)

// SnapshotHeader describes a snapshot file. It is stored as one JSON line at
// the start of the compressed stream, ahead of the gob payload, so tooling
// can describe a snapshot without decoding the graph.
type SnapshotHeader struct {
	Magic           string    `json:"magic"`
	Version         int       `json:"version"`
	SavedAt         time.Time `json:"saved_at"`
	RegistryVersion int       `json:"registry_version"`
	Nodes           int       `json:"nodes"`
	Links           int       `json:"links"`
}

type snapshotPayload struct {
	Thresholds map[int]float64
	Edges      map[int]map[int]float64
	Tick       uint64
}

// #endregion format

// #region write
// WriteSnapshot exports the current graph, with the short-term tier folded
// in, as a zstd-compressed snapshot file.
func (a *Assoc) WriteSnapshot(path string) error {
	a.mu.Lock()
	payload := snapshotPayload{
		Thresholds: make(map[int]float64, len(a.nodes)),
		Edges:      a.snapshotEdgesLocked(),
		Tick:       a.tick,
	}
	for node, threshold := range a.nodes {
		payload.Thresholds[node] = threshold
	}
	header := SnapshotHeader{
		Magic:           snapshotMagic,
		Version:         snapshotVersion,
		SavedAt:         time.Now().UTC(),
		RegistryVersion: a.cfg.RegistryVersion,
		Nodes:           len(payload.Thresholds),
	}
	for _, links := range payload.Edges {
		header.Links += len(links)
	}
	a.mu.Unlock()

	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create snapshot dir: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("create snapshot: %w", err)
	}

	enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		f.Close()
		return fmt.Errorf("init compressor: %w", err)
	}
	bw := bufio.NewWriterSize(enc, 256*1024)

	headerLine, err := json.Marshal(header)
	if err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("encode header: %w", err)
	}
	headerLine = append(headerLine, '\n')
	if _, err := bw.Write(headerLine); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	if err := gob.NewEncoder(bw).Encode(payload); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("encode graph: %w", err)
	}

	if err := bw.Flush(); err != nil {
		enc.Close()
		f.Close()
		return fmt.Errorf("flush snapshot: %w", err)
	}
	if err := enc.Close(); err != nil {
		f.Close()
		return fmt.Errorf("close compressor: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close snapshot: %w", err)
	}
	return nil
}

// #endregion write

// #region read
// ReadSnapshot replaces the long-term tier with a snapshot's graph. The
// short-term tier, activation state, and temporal window are cleared, and a
// bound store is rewritten to match.
func (a *Assoc) ReadSnapshot(path string) (SnapshotHeader, error) {
	header, payload, err := decodeSnapshot(path)
	if err != nil {
		return header, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	a.nodes = payload.Thresholds
	a.base = payload.Edges
	a.delta = make(map[int]map[int]float64)
	a.activation = make(map[int]float64)
	a.window = nil
	a.tick = payload.Tick
	a.loadedVersion = header.RegistryVersion

	if err := a.persistLocked(); err != nil {
		return header, fmt.Errorf("persist imported graph: %w", err)
	}
	if a.async != nil {
		a.async.reset(a.adjacencySnapshotLocked(), a.thresholdSnapshotLocked())
	}
	return header, nil
}

// InspectSnapshot reads only a snapshot's header.
func InspectSnapshot(path string) (SnapshotHeader, error) {
	header, _, err := decodeSnapshot(path)
	return header, err
}

func decodeSnapshot(path string) (SnapshotHeader, snapshotPayload, error) {
	var header SnapshotHeader
	var payload snapshotPayload

	f, err := os.Open(path)
	if err != nil {
		return header, payload, fmt.Errorf("open snapshot: %w", err)
	}
	defer f.Close()

	dec, err := zstd.NewReader(f)
	if err != nil {
		return header, payload, fmt.Errorf("init decompressor: %w", err)
	}
	defer dec.Close()

	br := bufio.NewReader(dec)
	headerLine, err := br.ReadBytes('\n')
	if err != nil {
		return header, payload, fmt.Errorf("read header: %w", err)
	}
	if err := json.Unmarshal(headerLine, &header); err != nil {
		return header, payload, fmt.Errorf("decode header: %w", err)
	}
	if header.Magic != snapshotMagic {
		return header, payload, fmt.Errorf("not a graph snapshot: magic %q", header.Magic)
	}
	if header.Version > snapshotVersion {
		return header, payload, fmt.Errorf("snapshot version %d is newer than supported %d", header.Version, snapshotVersion)
	}

	if err := gob.NewDecoder(br).Decode(&payload); err != nil {
		return header, payload, fmt.Errorf("decode graph: %w", err)
	}
	if payload.Thresholds == nil {
		payload.Thresholds = make(map[int]float64)
	}
	if payload.Edges == nil {
		payload.Edges = make(map[int]map[int]float64)
	}
	return header, payload, nil
}

// #endregion read
