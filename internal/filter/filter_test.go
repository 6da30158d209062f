package filter

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sample struct {
	path  string
	dir   bool
	size  int64
	match bool
}

func check(t *testing.T, c *Chain, samples ...sample) {
	t.Helper()
	for _, p := range samples {
		assert.Equal(t, p.match, c.Match(p.path, p.dir, p.size), "%s (dir=%v size=%d)", p.path, p.dir, p.size)
	}
}

func TestEmptyChainIndexesEverything(t *testing.T) {
	c := NewChain()
	assert.True(t, c.Empty())
	check(t, c,
		sample{"DCIM/100APPLE/IMG_0001.HEIC", false, 1 << 20, true},
		sample{"lost+found", true, 0, true},
	)
}

func TestRuleOrdering(t *testing.T) {
	tests := []struct {
		name    string
		rules   func(c *Chain) error
		samples []sample
	}{
		{
			name: "exclude",
			rules: func(c *Chain) error {
				return c.AddExclude("*.tmp")
			},
			samples: []sample{
				{"~lock.tmp", false, 1, false},
				{"Documents/report.docx.tmp", false, 1, false},
				{"Documents/report.docx", false, 1, true},
			},
		},
		{
			name: "include before exclude wins",
			rules: func(c *Chain) error {
				if err := c.AddInclude("thesis.tmp"); err != nil {
					return err
				}
				return c.AddExclude("*.tmp")
			},
			samples: []sample{
				{"thesis.tmp", false, 1, true},
				{"other.tmp", false, 1, false},
			},
		},
		{
			name: "exclude before include wins",
			rules: func(c *Chain) error {
				if err := c.AddExclude("*.tmp"); err != nil {
					return err
				}
				return c.AddInclude("thesis.tmp")
			},
			samples: []sample{
				{"thesis.tmp", false, 1, false},
			},
		},
		{
			name: "directory only",
			rules: func(c *Chain) error {
				return c.AddExclude("$RECYCLE.BIN/")
			},
			samples: []sample{
				{"$RECYCLE.BIN", true, 0, false},
				{"$RECYCLE.BIN", false, 10, true},
			},
		},
		{
			name: "anchored",
			rules: func(c *Chain) error {
				return c.AddExclude("/pagefile.sys")
			},
			samples: []sample{
				{"pagefile.sys", false, 1, false},
				{"backup/pagefile.sys", false, 1, true},
			},
		},
		{
			name: "only photos",
			rules: func(c *Chain) error {
				if err := c.AddInclude("**/*.jpg"); err != nil {
					return err
				}
				return c.AddExclude("*")
			},
			samples: []sample{
				{"a.jpg", false, 1, true},
				{"DCIM/2019/b.jpg", false, 1, true},
				{"DCIM/2019/b.mov", false, 1, false},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := NewChain()
			require.NoError(t, tt.rules(c))
			check(t, c, tt.samples...)
		})
	}
}

func TestSizeBounds(t *testing.T) {
	c := NewChain()
	c.SetMinSize(4 << 10)
	check(t, c,
		sample{"thumb.jpg", false, 1 << 10, false},
		sample{"photo.jpg", false, 4 << 10, true},
	)

	c.SetMaxSize(1 << 30)
	check(t, c,
		sample{"disk.img", false, 2 << 30, false},
		sample{"video.mp4", false, 1 << 30, true},
		sample{"DCIM", true, 0, true},
	)
}

func TestSkipHidden(t *testing.T) {
	c := NewChain()
	c.SetSkipHidden(true)
	assert.False(t, c.Empty())

	assert.False(t, c.Match(".git", true, 0))
	assert.False(t, c.Match("docs/.DS_Store", false, 10))
	assert.True(t, c.Match("docs/readme.md", false, 10))
}

func TestAllowExtensions(t *testing.T) {
	c := NewChain()
	c.AllowExtensions(".JPG", "png", " ")

	assert.True(t, c.Match("photos/a.jpg", false, 10))
	assert.True(t, c.Match("photos/b.PNG", false, 10))
	assert.False(t, c.Match("photos/c.txt", false, 10))
	assert.False(t, c.Match("photos/noext", false, 10))
	assert.True(t, c.Match("photos", true, 0))
}

func TestSetIgnoreCaseRecompilesRules(t *testing.T) {
	c := NewChain()
	require.NoError(t, c.AddExclude("*.LOG"))
	assert.True(t, c.Match("app.log", false, 10))

	require.NoError(t, c.SetIgnoreCase(true))
	assert.False(t, c.Match("app.log", false, 10))

	require.NoError(t, c.AddInclude("Keep/**"))
	assert.True(t, c.Match("keep/x.txt", false, 10))

	require.NoError(t, c.SetIgnoreCase(false))
	assert.True(t, c.Match("app.log", false, 10))
}
