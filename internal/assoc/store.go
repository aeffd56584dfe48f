package assoc

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	_ "modernc.org/sqlite"
)

// #region schema
const storeSchema = `
CREATE TABLE IF NOT EXISTS nodes (
	id        INTEGER PRIMARY KEY,
	threshold REAL NOT NULL
);

CREATE TABLE IF NOT EXISTS links (
	sender   INTEGER NOT NULL,
	receiver INTEGER NOT NULL,
	weight   REAL NOT NULL,
	PRIMARY KEY (sender, receiver)
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// #endregion schema

// #region store
// Store persists the long-term tier in SQLite. One store backs one engine.
type Store struct {
	db *sql.DB
}

// OpenStore opens (and when needed creates) the database at path and runs
// migrations.
func OpenStore(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create store dir: %w", err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		return nil, fmt.Errorf("pragma: %w", err)
	}
	if _, err := db.Exec(storeSchema); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// #endregion store

// #region load
// StoredGraph is everything a store holds for one engine.
type StoredGraph struct {
	Thresholds      map[int]float64
	Edges           map[int]map[int]float64
	RegistryVersion int
	Tick            uint64
}

// Load reads the whole persisted graph. A fresh database loads as an empty
// graph with registry version zero.
func (s *Store) Load() (StoredGraph, error) {
	out := StoredGraph{
		Thresholds: make(map[int]float64),
		Edges:      make(map[int]map[int]float64),
	}

	rows, err := s.db.Query(`SELECT id, threshold FROM nodes`)
	if err != nil {
		return out, fmt.Errorf("query nodes: %w", err)
	}
	for rows.Next() {
		var id int
		var threshold float64
		if err := rows.Scan(&id, &threshold); err != nil {
			rows.Close()
			return out, fmt.Errorf("scan node: %w", err)
		}
		out.Thresholds[id] = threshold
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return out, fmt.Errorf("iterate nodes: %w", err)
	}
	rows.Close()

	rows, err = s.db.Query(`SELECT sender, receiver, weight FROM links`)
	if err != nil {
		return out, fmt.Errorf("query links: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var sender, receiver int
		var weight float64
		if err := rows.Scan(&sender, &receiver, &weight); err != nil {
			return out, fmt.Errorf("scan link: %w", err)
		}
		if out.Edges[sender] == nil {
			out.Edges[sender] = make(map[int]float64)
		}
		out.Edges[sender][receiver] = weight
	}
	if err := rows.Err(); err != nil {
		return out, fmt.Errorf("iterate links: %w", err)
	}

	out.RegistryVersion = int(s.metaInt("registry_version"))
	out.Tick = uint64(s.metaInt("tick"))
	return out, nil
}

func (s *Store) metaInt(key string) int64 {
	var raw string
	err := s.db.QueryRow(`SELECT value FROM meta WHERE key = ?`, key).Scan(&raw)
	if err != nil {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// #endregion load

// #region replace
// Replace overwrites the persisted graph in one transaction.
func (s *Store) Replace(thresholds map[int]float64, edges map[int]map[int]float64, registryVersion int, tick uint64) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM links`); err != nil {
		return fmt.Errorf("clear links: %w", err)
	}
	if _, err := tx.Exec(`DELETE FROM nodes`); err != nil {
		return fmt.Errorf("clear nodes: %w", err)
	}

	nodes := make([]int, 0, len(thresholds))
	for id := range thresholds {
		nodes = append(nodes, id)
	}
	sort.Ints(nodes)
	for _, id := range nodes {
		if _, err := tx.Exec(`INSERT INTO nodes (id, threshold) VALUES (?, ?)`, id, thresholds[id]); err != nil {
			return fmt.Errorf("insert node %d: %w", id, err)
		}
	}

	senders := make([]int, 0, len(edges))
	for sender := range edges {
		senders = append(senders, sender)
	}
	sort.Ints(senders)
	for _, sender := range senders {
		receivers := make([]int, 0, len(edges[sender]))
		for receiver := range edges[sender] {
			receivers = append(receivers, receiver)
		}
		sort.Ints(receivers)
		for _, receiver := range receivers {
			if _, err := tx.Exec(
				`INSERT INTO links (sender, receiver, weight) VALUES (?, ?, ?)`,
				sender, receiver, edges[sender][receiver],
			); err != nil {
				return fmt.Errorf("insert link %d->%d: %w", sender, receiver, err)
			}
		}
	}

	for key, value := range map[string]string{
		"registry_version": strconv.Itoa(registryVersion),
		"tick":             strconv.FormatUint(tick, 10),
	} {
		if _, err := tx.Exec(
			`INSERT INTO meta (key, value) VALUES (?, ?)
			 ON CONFLICT(key) DO UPDATE SET value = excluded.value`,
			key, value,
		); err != nil {
			return fmt.Errorf("upsert meta %s: %w", key, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// #endregion replace
