// Package platform holds the filesystem primitives used on the writing
// side (atomic replace, directory sync, temp naming, preallocation) and the
// mount checks run against a source. Nothing here ever opens a source file
// for writing.
package platform

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// TmpSuffix marks files that are still being written.
const TmpSuffix = "drill-tmp"

// TmpName returns a hidden temp path beside dst of the form
// .<name>.<id>.drill-tmp.
func TmpName(dst string) string {
	dir, base := filepath.Split(dst)
	return filepath.Join(dir, fmt.Sprintf(".%s.%s.%s", base, uuid.NewString()[:8], TmpSuffix))
}

// IsTmp reports whether name looks like a TmpName result.
func IsTmp(name string) bool {
	base := filepath.Base(name)
	return strings.HasPrefix(base, ".") && strings.HasSuffix(base, "."+TmpSuffix)
}

// SyncDir fsyncs a directory so a rename inside it is durable.
func SyncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	defer d.Close()
	return d.Sync()
}

// WriteFileAtomic streams content into a temp file beside path, syncs it,
// renames it over path and syncs the directory. On any error the temp file
// is removed and path is left untouched.
func WriteFileAtomic(path string, perm os.FileMode, write func(io.Writer) error) error {
	tmp := TmpName(path)
	f, err := os.OpenFile(tmp, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			f.Close()
			os.Remove(tmp)
		}
	}()

	if err := write(f); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp, path); err != nil {
		return err
	}
	committed = true
	return SyncDir(filepath.Dir(path))
}

// WarnIfWritable logs a warning when the source at path sits on a mount
// that is not read-only, and reports whether it is read-only.
func WarnIfWritable(path string) bool {
	ro, err := MountReadOnly(path)
	switch {
	case err != nil:
		slog.Debug("cannot check mount flags", "path", path, "error", err)
	case !ro:
		slog.Warn("source is mounted read-write; remount read-only to protect the evidence", "path", path)
	}
	return ro
}
