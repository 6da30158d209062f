package platform

import (
	"bytes"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTmpName(t *testing.T) {
	dst := filepath.Join("out", "photos", "a.jpg")
	tmp := TmpName(dst)
	assert.Equal(t, filepath.Join("out", "photos"), filepath.Dir(tmp))
	assert.Regexp(t, `^\.a\.jpg\.[0-9a-f]{8}\.drill-tmp$`, filepath.Base(tmp))
	assert.True(t, IsTmp(tmp))
	assert.False(t, IsTmp(dst))
	assert.NotEqual(t, tmp, TmpName(dst))
}

func TestWriteFileAtomicReplaces(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	err := WriteFileAtomic(path, 0o600, func(w io.Writer) error {
		_, err := io.WriteString(w, "new")
		return err
	})
	require.NoError(t, err)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "new", string(got))
	assertOnly(t, dir, "state.json")
}

func TestWriteFileAtomicKeepsOldOnError(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "state.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o600))

	boom := errors.New("boom")
	err := WriteFileAtomic(path, 0o600, func(w io.Writer) error {
		_, _ = io.WriteString(w, "partial")
		return boom
	})
	require.ErrorIs(t, err, boom)

	got, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(got))
	assertOnly(t, dir, "state.json")
}

func TestWriteFileAtomicMissingDir(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "state.json")
	err := WriteFileAtomic(path, 0o600, func(io.Writer) error { return nil })
	require.Error(t, err)
}

func TestPreallocate(t *testing.T) {
	f, err := os.Create(filepath.Join(t.TempDir(), "f"))
	require.NoError(t, err)
	defer f.Close()
	Preallocate(f, 1<<16)
	Preallocate(f, 0)
}

func assertOnly(t *testing.T, dir string, names ...string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var got []string
	for _, e := range entries {
		got = append(got, e.Name())
	}
	assert.Equal(t, names, got)
}

func TestStatHelpers(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("stat fields not exposed on " + runtime.GOOS)
	}
	dir := t.TempDir()
	p := filepath.Join(dir, "f")
	require.NoError(t, os.WriteFile(p, []byte("x"), 0o644))
	atime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, os.Chtimes(p, atime, atime.Add(time.Hour)))

	info, err := os.Stat(p)
	require.NoError(t, err)
	got, ok := AccessTime(info)
	require.True(t, ok)
	assert.True(t, got.Equal(atime))

	dirInfo, err := os.Stat(dir)
	require.NoError(t, err)
	devFile, ok := DeviceID(info)
	require.True(t, ok)
	devDir, _ := DeviceID(dirInfo)
	assert.Equal(t, devDir, devFile)
}

func TestMountReadOnly(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		_, err := MountReadOnly(t.TempDir())
		require.ErrorIs(t, err, errors.ErrUnsupported)
		return
	}
	ro, err := MountReadOnly(t.TempDir())
	require.NoError(t, err)
	assert.False(t, ro, "temp dirs live on a writable mount")

	_, err = MountReadOnly(filepath.Join(t.TempDir(), "missing"))
	require.Error(t, err)
}

func TestWarnIfWritable(t *testing.T) {
	if runtime.GOOS != "linux" && runtime.GOOS != "darwin" {
		t.Skip("mount flags not available on " + runtime.GOOS)
	}
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewTextHandler(&buf, nil)))
	t.Cleanup(func() { slog.SetDefault(prev) })

	dir := t.TempDir()
	assert.False(t, WarnIfWritable(dir))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "mounted read-write")
	assert.Contains(t, buf.String(), dir)
}
