package hippocampus

// #region types
// Key identifies one experience stream: the stimulus that drove a decision
// and the action that was taken for it.
type Key struct {
	Stimulus int
	Action   int
}

// Entry accumulates reward statistics for one key within the current epoch.
// Peak keeps the signed reward whose magnitude is the largest seen.
type Entry struct {
	Acc   float64
	Count int
	Peak  float64
}

// Experience is one snapshot row: a key together with its entry.
type Experience struct {
	Key
	Entry
}

// Report summarizes one consolidation pass over the buffer.
type Report struct {
	Entries   int
	Threshold float64
	Written   int
	Skipped   int
	Errors    int
}

// #endregion types
