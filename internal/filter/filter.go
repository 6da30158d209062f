// Package filter decides which paths a scan indexes: ordered include and
// exclude globs, size bounds, hidden-file skipping and an extension
// allow-list.
package filter

import (
	"fmt"
	"path"
	"strings"
)

// Rule represents a single include or exclude filter rule.
type Rule struct {
	Pattern *compiledPattern
	Include bool // true=include, false=exclude
}

// Chain holds an ordered list of filter rules plus size, hidden-file and
// extension filters.
type Chain struct {
	exts       map[string]bool
	rules      []Rule
	minSize    int64
	maxSize    int64
	skipHidden bool
	fold       bool
}

// NewChain creates an empty filter chain.
func NewChain() *Chain {
	return &Chain{}
}

// AddExclude adds an exclude rule for the given pattern.
func (c *Chain) AddExclude(pattern string) error {
	return c.add(pattern, false)
}

// AddInclude adds an include rule for the given pattern.
func (c *Chain) AddInclude(pattern string) error {
	return c.add(pattern, true)
}

func (c *Chain) add(pattern string, include bool) error {
	cp, err := compilePattern(pattern, c.fold)
	if err != nil {
		return fmt.Errorf("pattern %q: %w", pattern, err)
	}
	c.rules = append(c.rules, Rule{Pattern: cp, Include: include})
	return nil
}

// SetIgnoreCase makes every rule, including those already added, match
// without regard to case.
func (c *Chain) SetIgnoreCase(fold bool) error {
	c.fold = fold
	for i, r := range c.rules {
		cp, err := compilePattern(r.Pattern.original, fold)
		if err != nil {
			return err
		}
		c.rules[i].Pattern = cp
	}
	return nil
}

// SetMinSize sets the minimum file size filter.
func (c *Chain) SetMinSize(n int64) {
	c.minSize = n
}

// SetMaxSize sets the maximum file size filter.
func (c *Chain) SetMaxSize(n int64) {
	c.maxSize = n
}

// SetSkipHidden makes the chain reject dot-files and dot-directories.
func (c *Chain) SetSkipHidden(skip bool) {
	c.skipHidden = skip
}

// AllowExtensions restricts files to the given extensions. Case and a
// leading dot are ignored. Directories are unaffected.
func (c *Chain) AllowExtensions(exts ...string) {
	for _, e := range exts {
		e = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(e), "."))
		if e == "" {
			continue
		}
		if c.exts == nil {
			c.exts = make(map[string]bool)
		}
		c.exts[e] = true
	}
}

// Empty reports whether the chain filters nothing.
func (c *Chain) Empty() bool {
	return len(c.rules) == 0 && c.minSize == 0 && c.maxSize == 0 &&
		!c.skipHidden && len(c.exts) == 0
}

// Match returns true if the path should be INCLUDED (not filtered out).
// relPath is slash-separated and relative to the scan root, isDir
// indicates directories, and size is the file size (ignored for
// directories).
func (c *Chain) Match(relPath string, isDir bool, size int64) bool {
	if c.skipHidden && strings.HasPrefix(path.Base(relPath), ".") {
		return false
	}

	if !isDir {
		if len(c.exts) > 0 {
			ext := strings.ToLower(strings.TrimPrefix(path.Ext(relPath), "."))
			if !c.exts[ext] {
				return false
			}
		}
		if c.minSize > 0 && size < c.minSize {
			return false
		}
		if c.maxSize > 0 && size > c.maxSize {
			return false
		}
	}

	// First matching rule wins.
	for _, rule := range c.rules {
		if rule.Pattern.match(relPath, isDir) {
			return rule.Include
		}
	}

	return true
}
