package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPatternStar(t *testing.T) {
	p, err := compilePattern("*.log", false)
	require.NoError(t, err)

	// Matches basename.
	assert.True(t, p.match("app.log", false))
	assert.True(t, p.match("dir/app.log", false))

	// Does not match partial.
	assert.False(t, p.match("app.log.bak", false))
	assert.False(t, p.match("app.txt", false))
}

func TestPatternDoubleStar(t *testing.T) {
	p, err := compilePattern("**/*.go", false)
	require.NoError(t, err)

	assert.True(t, p.match("main.go", false))
	assert.True(t, p.match("cmd/drill/main.go", false))
	assert.True(t, p.match("internal/engine/engine.go", false))
	assert.False(t, p.match("main.txt", false))
}

func TestPatternAnchored(t *testing.T) {
	p, err := compilePattern("/root.txt", false)
	require.NoError(t, err)

	assert.True(t, p.match("root.txt", false))
	assert.False(t, p.match("sub/root.txt", false))
}

func TestPatternUnanchoredBasename(t *testing.T) {
	p, err := compilePattern("*.tmp", false)
	require.NoError(t, err)

	assert.True(t, p.match("file.tmp", false))
	assert.True(t, p.match("a/b/c/file.tmp", false))
}

func TestPatternDirOnly(t *testing.T) {
	p, err := compilePattern("build/", false)
	require.NoError(t, err)

	assert.True(t, p.match("build", true))
	assert.True(t, p.match("sub/build", true))
	assert.False(t, p.match("build", false)) // not a dir
}

func TestPatternQuestion(t *testing.T) {
	p, err := compilePattern("file?.txt", false)
	require.NoError(t, err)

	assert.True(t, p.match("file1.txt", false))
	assert.True(t, p.match("fileA.txt", false))
	assert.False(t, p.match("file12.txt", false))
	assert.False(t, p.match("file/.txt", false)) // ? does not match /
}

func TestPatternContainingSlash(t *testing.T) {
	// Pattern containing / but not leading / is anchored per rsync.
	p, err := compilePattern("sub/dir/*.txt", false)
	require.NoError(t, err)

	assert.True(t, p.match("sub/dir/file.txt", false))
	assert.False(t, p.match("other/sub/dir/file.txt", false))
}

func TestPatternFoldCase(t *testing.T) {
	p, err := compilePattern("DCIM/*.JPG", true)
	require.NoError(t, err)
	assert.True(t, p.match("dcim/img_0001.jpg", false))
	assert.True(t, p.match("DCIM/IMG_0001.JPG", false))

	p, err = compilePattern("*.JPG", false)
	require.NoError(t, err)
	assert.False(t, p.match("img.jpg", false))
}

func TestPatternCharClass(t *testing.T) {
	p, err := compilePattern("img[0-9].png", false)
	require.NoError(t, err)
	assert.True(t, p.match("img7.png", false))
	assert.False(t, p.match("imgx.png", false))

	p, err = compilePattern("img[!0-9].png", false)
	require.NoError(t, err)
	assert.True(t, p.match("imgx.png", false))

	p, err = compilePattern("odd[name", false)
	require.NoError(t, err)
	assert.True(t, p.match("odd[name", false))
}

func TestPatternUnicode(t *testing.T) {
	p, err := compilePattern("Fotos/été*.jpg", false)
	require.NoError(t, err)
	assert.True(t, p.match("Fotos/été 2019.jpg", false))
}
