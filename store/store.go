// Package store keeps the stack effect summary and emission script of every
// generated instruction in a SQLite database, keyed by instruction name and
// tagged with the content hash of its definition.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/chazu/uopgen/analysis"
	"github.com/chazu/uopgen/emit"
)

// ErrNotFound indicates the requested instruction has no stored record
var ErrNotFound = errors.New("instruction not found")

// Record is the stored result for one instruction.
type Record struct {
	Name    string
	Opcode  int
	Hash    string
	Target  string
	Summary analysis.Summary
	Script  *emit.Script
}

// Store handles SQLite storage for generated instructions
type Store struct {
	db     *sql.DB
	dbPath string
	mu     sync.Mutex
}

// Open opens (creating if needed) the database at dbPath.
func Open(dbPath string) (*Store, error) {
	if dir := filepath.Dir(dbPath); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating store directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(1)

	// Set busy timeout for concurrent access
	_, err = db.Exec("PRAGMA busy_timeout = 5000")
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	_, err = db.Exec(`CREATE TABLE IF NOT EXISTS instructions (
		name   TEXT PRIMARY KEY,
		opcode INTEGER NOT NULL,
		hash   TEXT NOT NULL,
		target TEXT NOT NULL,
		popped TEXT NOT NULL,
		pushed TEXT NOT NULL,
		script BLOB NOT NULL
	)`)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating table: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Put stores r, replacing any earlier record of the same instruction. It
// reports whether anything changed: a record with the same hash, opcode and
// target is left untouched.
func (s *Store) Put(r *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var hash, target string
	var opcode int
	err := s.db.QueryRow(
		"SELECT hash, opcode, target FROM instructions WHERE name = ?", r.Name,
	).Scan(&hash, &opcode, &target)
	switch {
	case err == nil && hash == r.Hash && opcode == r.Opcode && target == r.Target:
		return false, nil
	case err != nil && !errors.Is(err, sql.ErrNoRows):
		return false, fmt.Errorf("querying %s: %w", r.Name, err)
	}

	script, err := emit.MarshalScript(r.Script)
	if err != nil {
		return false, fmt.Errorf("encoding %s: %w", r.Name, err)
	}
	_, err = s.db.Exec(
		"INSERT OR REPLACE INTO instructions (name, opcode, hash, target, popped, pushed, script) VALUES (?, ?, ?, ?, ?, ?, ?)",
		r.Name, r.Opcode, r.Hash, r.Target, r.Summary.Popped, r.Summary.Pushed, script,
	)
	if err != nil {
		return false, fmt.Errorf("saving %s: %w", r.Name, err)
	}
	return true, nil
}

// Get retrieves the record of an instruction.
func (s *Store) Get(name string) (*Record, error) {
	r := &Record{Name: name}
	var script []byte
	err := s.db.QueryRow(
		"SELECT opcode, hash, target, popped, pushed, script FROM instructions WHERE name = ?", name,
	).Scan(&r.Opcode, &r.Hash, &r.Target, &r.Summary.Popped, &r.Summary.Pushed, &script)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("querying %s: %w", name, err)
	}

	r.Script, err = emit.UnmarshalScript(script)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", name, err)
	}
	return r, nil
}

// Names returns the names of all stored instructions, ordered by opcode.
func (s *Store) Names() ([]string, error) {
	rows, err := s.db.Query("SELECT name FROM instructions ORDER BY opcode, name")
	if err != nil {
		return nil, fmt.Errorf("listing instructions: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("listing instructions: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Prune deletes the records of instructions not in keep and returns their
// names.
func (s *Store) Prune(keep map[string]bool) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	names, err := s.Names()
	if err != nil {
		return nil, err
	}
	var removed []string
	for _, name := range names {
		if keep[name] {
			continue
		}
		if _, err := s.db.Exec("DELETE FROM instructions WHERE name = ?", name); err != nil {
			return removed, fmt.Errorf("deleting %s: %w", name, err)
		}
		removed = append(removed, name)
	}
	return removed, nil
}
