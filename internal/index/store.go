package index

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/KHET-1/diamond-drill/internal/fault"
	"github.com/KHET-1/diamond-drill/internal/platform"
)

// FormatVersion is stored in the meta table of every index database.
const FormatVersion = 2

// DBName is the index database file name inside a run directory.
const DBName = "index.db"

const schema = `
	CREATE TABLE IF NOT EXISTS meta (
		key   TEXT PRIMARY KEY,
		value TEXT NOT NULL
	);
	CREATE TABLE IF NOT EXISTS entries (
		path         TEXT PRIMARY KEY,
		size         INTEGER NOT NULL,
		mtime        INTEGER NOT NULL,
		type         TEXT NOT NULL,
		content_hash TEXT NOT NULL,
		partial_hash TEXT NOT NULL,
		health       TEXT NOT NULL,
		error        TEXT NOT NULL,
		bad_blocks   INTEGER NOT NULL,
		ext          TEXT NOT NULL,
		block_size   INTEGER NOT NULL,
		bad_offsets  TEXT NOT NULL,
		retried      TEXT NOT NULL
	);
`

const entryColumns = `path, size, mtime, type, content_hash, partial_hash,
	health, error, bad_blocks, ext, block_size, bad_offsets, retried`

func openDB(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(DELETE)")
	if err != nil {
		return nil, fmt.Errorf("open index db: %w", err)
	}
	db.SetMaxOpenConns(1)
	return db, nil
}

// SaveDB writes idx to a SQLite database at path. The database is built
// beside the target and renamed into place, so readers never see a partial
// index.
func SaveDB(path string, idx *ScanIndex) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fault.Persist("index", path, err)
	}
	tmp := platform.TmpName(path)
	if err := writeDB(tmp, idx); err != nil {
		os.Remove(tmp)
		return fault.Persist("index", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fault.Persist("index", path, err)
	}
	return fault.Persist("index", path, platform.SyncDir(filepath.Dir(path)))
}

func writeDB(path string, idx *ScanIndex) error {
	db, err := openDB(path)
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("create tables: %w", err)
	}

	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}

	meta := map[string]string{
		"format_version":  strconv.Itoa(FormatVersion),
		"root":            idx.Root,
		"fingerprint":     idx.Fingerprint,
		"run_id":          idx.RunID,
		"estimated_total": strconv.FormatInt(idx.EstimatedTotal, 10),
		"saved_at":        time.Now().UTC().Format(time.RFC3339Nano),
	}
	for k, v := range meta {
		if _, err := tx.Exec("INSERT OR REPLACE INTO meta (key, value) VALUES (?, ?)", k, v); err != nil {
			tx.Rollback()
			return fmt.Errorf("store meta %s: %w", k, err)
		}
	}

	if err := insertEntries(tx, idx.Entries()); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func insertEntries(tx *sql.Tx, entries []FileEntry) error {
	stmt, err := tx.Prepare("INSERT OR REPLACE INTO entries (" + entryColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, e := range entries {
		if _, err := stmt.Exec(e.Path, e.Size, e.ModTime.UnixNano(), string(e.Type),
			e.ContentHash, e.PartialHash, string(e.Health), e.Error, e.BadBlocks, e.Extension,
			e.BlockSize, formatOffsets(e.BadOffsets), formatOffsets(e.RetriedOffsets)); err != nil {
			return fmt.Errorf("insert %s: %w", e.Path, err)
		}
	}
	return nil
}

// readEntries calls fn for every stored entry in path order.
func readEntries(db *sql.DB, fn func(FileEntry)) error {
	rows, err := db.Query("SELECT " + entryColumns + " FROM entries ORDER BY path")
	if err != nil {
		return fmt.Errorf("read entries: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var (
			e            FileEntry
			mtime        int64
			typ, hl      string
			bad, retried string
		)
		if err := rows.Scan(&e.Path, &e.Size, &mtime, &typ, &e.ContentHash, &e.PartialHash,
			&hl, &e.Error, &e.BadBlocks, &e.Extension, &e.BlockSize, &bad, &retried); err != nil {
			return fmt.Errorf("scan entry: %w", err)
		}
		e.ModTime = time.Unix(0, mtime).UTC()
		e.Type = FileType(typ)
		e.Health = Health(hl)
		if e.BadOffsets, err = parseOffsets(bad); err != nil {
			return fmt.Errorf("entry %s: %w", e.Path, err)
		}
		if e.RetriedOffsets, err = parseOffsets(retried); err != nil {
			return fmt.Errorf("entry %s: %w", e.Path, err)
		}
		fn(e)
	}
	return rows.Err()
}

// Block offsets are stored as a comma-separated list of decimals.
func formatOffsets(offs []int64) string {
	var b strings.Builder
	for i, o := range offs {
		if i > 0 {
			b.WriteByte(',')
		}
		b.WriteString(strconv.FormatInt(o, 10))
	}
	return b.String()
}

func parseOffsets(s string) ([]int64, error) {
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	offs := make([]int64, len(parts))
	for i, p := range parts {
		o, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad block offset %q: %w", p, err)
		}
		offs[i] = o
	}
	return offs, nil
}

// LoadDB reads an index written by SaveDB. The returned index is frozen.
func LoadDB(path string) (*ScanIndex, error) {
	if _, err := os.Stat(path); err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("index %s: %w", path, fault.ErrNotFound)
		}
		return nil, fmt.Errorf("stat index: %w", err)
	}

	db, err := openDB(path)
	if err != nil {
		return nil, err
	}
	defer db.Close()

	meta := make(map[string]string)
	rows, err := db.Query("SELECT key, value FROM meta")
	if err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}
	for rows.Next() {
		var k, v string
		if err := rows.Scan(&k, &v); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan meta: %w", err)
		}
		meta[k] = v
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("read meta: %w", err)
	}

	if v := meta["format_version"]; v != strconv.Itoa(FormatVersion) {
		return nil, fmt.Errorf("index %s has format %q, want %d: %w", path, v, FormatVersion, fault.ErrFormatVersion)
	}

	idx := New(meta["root"], meta["fingerprint"], meta["run_id"])
	idx.EstimatedTotal, _ = strconv.ParseInt(meta["estimated_total"], 10, 64)
	idx.SavedAt, _ = time.Parse(time.RFC3339Nano, meta["saved_at"])

	if err := readEntries(db, idx.Put); err != nil {
		return nil, err
	}
	idx.Freeze()
	return idx, nil
}
