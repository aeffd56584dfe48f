// Package episode persists finished runs and their steps to SQLite, and
// answers history queries over them: recent runs for inspection and a
// recency-weighted best-action lookup per stimulus.
package episode

import (
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/danielpatrickdp/survival-agent/internal/loop"
)

// #region schema
const schema = `
CREATE TABLE IF NOT EXISTS runs (
	id            TEXT PRIMARY KEY,
	started_at    TEXT NOT NULL,
	seed          INTEGER NOT NULL,
	max_steps     INTEGER NOT NULL,
	steps         INTEGER NOT NULL DEFAULT 0,
	died          INTEGER NOT NULL DEFAULT 0,
	final_health  REAL NOT NULL DEFAULT 1,
	final_hunger  REAL NOT NULL DEFAULT 1,
	final_fatigue REAL NOT NULL DEFAULT 1
);

CREATE TABLE IF NOT EXISTS steps (
	run_id   TEXT NOT NULL,
	step     INTEGER NOT NULL,
	stimulus INTEGER NOT NULL,
	action   INTEGER NOT NULL,
	reward   REAL NOT NULL,
	health   REAL NOT NULL,
	hunger   REAL NOT NULL,
	fatigue  REAL NOT NULL,
	messages TEXT NOT NULL,
	PRIMARY KEY (run_id, step),
	FOREIGN KEY (run_id) REFERENCES runs(id)
);

CREATE INDEX IF NOT EXISTS idx_steps_stimulus ON steps(stimulus, action);
`

// #endregion schema

// #region types
// RunRecord is one row of the runs table.
type RunRecord struct {
	ID           string
	StartedAt    time.Time
	Seed         int64
	MaxSteps     int
	Steps        int
	Died         bool
	FinalHealth  float64
	FinalHunger  float64
	FinalFatigue float64
}

// StepRecord is one row of the steps table.
type StepRecord struct {
	RunID    string
	Step     int
	Stimulus int
	Action   int
	Reward   float64
	Health   float64
	Hunger   float64
	Fatigue  float64
	Messages string
}

// BestActionResult is the answer of a recency-weighted history query.
type BestActionResult struct {
	Action  int
	Score   float64
	Samples int
}

// #endregion types

// #region store
// Store manages run history in SQLite.
type Store struct {
	db *sql.DB
}

// Open opens the database and runs migrations.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open episode db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate episode db: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error { return s.db.Close() }

// BeginRun inserts a run row and returns its generated ID.
func (s *Store) BeginRun(seed int64, maxSteps int) (string, error) {
	id := uuid.New().String()
	_, err := s.db.Exec(
		`INSERT INTO runs (id, started_at, seed, max_steps) VALUES (?, ?, ?, ?)`,
		id, time.Now().UTC().Format(time.RFC3339Nano), seed, maxSteps,
	)
	if err != nil {
		return "", fmt.Errorf("insert run: %w", err)
	}
	return id, nil
}

// AppendStep records one decision-loop step under a run.
func (s *Store) AppendStep(runID string, rec loop.StepRecord) error {
	_, err := s.db.Exec(
		`INSERT INTO steps (run_id, step, stimulus, action, reward, health, hunger, fatigue, messages)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, rec.Step, rec.Stimulus, rec.Action, rec.Reward,
		rec.Result.Health, rec.Result.Hunger, rec.Result.Fatigue, rec.Result.Message,
	)
	if err != nil {
		return fmt.Errorf("insert step %d of run %s: %w", rec.Step, runID, err)
	}
	return nil
}

// FinishRun writes the final outcome onto the run row.
func (s *Store) FinishRun(runID string, report loop.RunReport) error {
	_, err := s.db.Exec(
		`UPDATE runs SET steps = ?, died = ?, final_health = ?, final_hunger = ?, final_fatigue = ? WHERE id = ?`,
		report.Steps, boolToInt(report.Died), report.Health, report.Hunger, report.Fatigue, runID,
	)
	if err != nil {
		return fmt.Errorf("finish run %s: %w", runID, err)
	}
	return nil
}

// #endregion store

// #region queries
// RecentRuns returns up to n runs, newest first.
func (s *Store) RecentRuns(n int) ([]RunRecord, error) {
	rows, err := s.db.Query(
		`SELECT id, started_at, seed, max_steps, steps, died, final_health, final_hunger, final_fatigue
		 FROM runs ORDER BY started_at DESC LIMIT ?`, n)
	if err != nil {
		return nil, fmt.Errorf("query recent runs: %w", err)
	}
	defer rows.Close()

	var out []RunRecord
	for rows.Next() {
		var r RunRecord
		var started string
		var died int
		if err := rows.Scan(&r.ID, &started, &r.Seed, &r.MaxSteps, &r.Steps, &died, &r.FinalHealth, &r.FinalHunger, &r.FinalFatigue); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		r.StartedAt, _ = time.Parse(time.RFC3339Nano, started)
		r.Died = died != 0
		out = append(out, r)
	}
	return out, rows.Err()
}

// StepsOf returns a run's steps in order.
func (s *Store) StepsOf(runID string) ([]StepRecord, error) {
	rows, err := s.db.Query(
		`SELECT run_id, step, stimulus, action, reward, health, hunger, fatigue, messages
		 FROM steps WHERE run_id = ? ORDER BY step`, runID)
	if err != nil {
		return nil, fmt.Errorf("query steps of %s: %w", runID, err)
	}
	defer rows.Close()

	var out []StepRecord
	for rows.Next() {
		var r StepRecord
		if err := rows.Scan(&r.RunID, &r.Step, &r.Stimulus, &r.Action, &r.Reward, &r.Health, &r.Hunger, &r.Fatigue, &r.Messages); err != nil {
			return nil, fmt.Errorf("scan step: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// halfLifeDays is the recency half-life of historical rewards: a reward a
// week old counts half as much as a fresh one.
const halfLifeDays = 7.0

// minSamples is how many observations an action needs before history is
// allowed to answer for it.
const minSamples = 3

// BestAction answers "which action worked best for this stimulus" across
// all recorded runs, weighting each reward by its age. Returns ok=false
// when no action has enough samples.
func (s *Store) BestAction(stimulus int) (BestActionResult, bool, error) {
	rows, err := s.db.Query(
		`SELECT st.action, st.reward, r.started_at
		 FROM steps st JOIN runs r ON r.id = st.run_id
		 WHERE st.stimulus = ?`, stimulus)
	if err != nil {
		return BestActionResult{}, false, fmt.Errorf("query history of stimulus %d: %w", stimulus, err)
	}
	defer rows.Close()

	type tally struct {
		score   float64
		samples int
	}
	now := time.Now().UTC()
	tallies := make(map[int]*tally)
	for rows.Next() {
		var action int
		var reward float64
		var started string
		if err := rows.Scan(&action, &reward, &started); err != nil {
			return BestActionResult{}, false, fmt.Errorf("scan history row: %w", err)
		}
		at, err := time.Parse(time.RFC3339Nano, started)
		if err != nil {
			at = now
		}
		ageDays := now.Sub(at).Hours() / 24
		weight := math.Pow(0.5, ageDays/halfLifeDays)

		tl, ok := tallies[action]
		if !ok {
			tl = &tally{}
			tallies[action] = tl
		}
		tl.score += reward * weight
		tl.samples++
	}
	if err := rows.Err(); err != nil {
		return BestActionResult{}, false, err
	}

	best := BestActionResult{}
	found := false
	for action, tl := range tallies {
		if tl.samples < minSamples {
			continue
		}
		if !found || tl.score > best.Score || (tl.score == best.Score && action < best.Action) {
			best = BestActionResult{Action: action, Score: tl.score, Samples: tl.samples}
			found = true
		}
	}
	return best, found, nil
}

// #endregion queries

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
