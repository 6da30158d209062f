package index

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/KHET-1/diamond-drill/internal/fault"
)

// JournalName is the scan journal file name inside a run directory.
const JournalName = "scan-journal.db"

// Journal holds the entries an unfinished scan has settled so far. A scan
// checkpoint records only its cursor; entries are appended here, one
// transaction per checkpoint. It is not safe for concurrent use.
type Journal struct {
	db   *sql.DB
	path string
}

// OpenJournal opens (or creates) the journal at path.
func OpenJournal(path string) (*Journal, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fault.Persist("journal", path, err)
	}
	db, err := openDB(path)
	if err != nil {
		return nil, fault.Persist("journal", path, err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fault.Persist("journal", path, fmt.Errorf("create tables: %w", err))
	}
	return &Journal{db: db, path: path}, nil
}

// Append records entries in one transaction. An entry already in the
// journal under the same path is replaced.
func (j *Journal) Append(entries []FileEntry) error {
	if len(entries) == 0 {
		return nil
	}
	tx, err := j.db.Begin()
	if err != nil {
		return fault.Persist("journal", j.path, fmt.Errorf("begin tx: %w", err))
	}
	if err := insertEntries(tx, entries); err != nil {
		tx.Rollback()
		return fault.Persist("journal", j.path, err)
	}
	if err := tx.Commit(); err != nil {
		return fault.Persist("journal", j.path, fmt.Errorf("commit: %w", err))
	}
	return nil
}

// Entries returns every journaled entry in path order.
func (j *Journal) Entries() ([]FileEntry, error) {
	var out []FileEntry
	if err := readEntries(j.db, func(e FileEntry) { out = append(out, e) }); err != nil {
		return nil, err
	}
	return out, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	return j.db.Close()
}

// Path returns the journal file path.
func (j *Journal) Path() string { return j.path }

// RemoveJournal deletes the journal at path. A missing file is not an
// error.
func RemoveJournal(path string) error {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fault.Persist("journal", path, err)
	}
	return nil
}
