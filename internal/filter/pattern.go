package filter

import (
	"regexp"
	"strings"
)

// compiledPattern is an rsync-style glob compiled to a regular expression.
type compiledPattern struct {
	re       *regexp.Regexp
	original string
	anchored bool // matched from the scan root rather than any path suffix
	dirOnly  bool // trailing slash: directories only
}

// compilePattern compiles an rsync-style glob. A leading slash, or any
// slash inside the pattern, anchors it to the scan root. With fold set the
// match ignores case, as on FAT and NTFS sources.
func compilePattern(pattern string, fold bool) (*compiledPattern, error) {
	cp := &compiledPattern{original: pattern}

	body := pattern
	if strings.HasSuffix(body, "/") {
		cp.dirOnly = true
		body = strings.TrimSuffix(body, "/")
	}
	switch {
	case strings.HasPrefix(body, "/"):
		cp.anchored = true
		body = strings.TrimPrefix(body, "/")
	case strings.Contains(body, "/"):
		cp.anchored = true
	}

	var re strings.Builder
	if fold {
		re.WriteString("(?i)")
	}
	if cp.anchored {
		re.WriteString("^")
	} else {
		re.WriteString("(^|/)")
	}
	re.WriteString(globToRegex(body))
	re.WriteString("$")

	compiled, err := regexp.Compile(re.String())
	if err != nil {
		return nil, err
	}
	cp.re = compiled
	return cp, nil
}

// match tests whether a slash-separated relative path matches.
func (cp *compiledPattern) match(relPath string, isDir bool) bool {
	if cp.dirOnly && !isDir {
		return false
	}
	return cp.re.MatchString(relPath)
}

// globToRegex translates glob syntax: ** crosses directories, * and ?
// stay within one path element, and [...] / [!...] are character classes.
func globToRegex(glob string) string {
	var b strings.Builder
	for i := 0; i < len(glob); {
		switch glob[i] {
		case '*':
			switch {
			case strings.HasPrefix(glob[i:], "**/"):
				b.WriteString("(.*/)?")
				i += 3
			case strings.HasPrefix(glob[i:], "**"):
				b.WriteString(".*")
				i += 2
			default:
				b.WriteString("[^/]*")
				i++
			}
		case '?':
			b.WriteString("[^/]")
			i++
		case '[':
			end := classEnd(glob, i)
			if end < 0 {
				b.WriteString(`\[`)
				i++
				continue
			}
			cls := glob[i+1 : end]
			if strings.HasPrefix(cls, "!") {
				cls = "^" + cls[1:]
			}
			b.WriteString("[" + cls + "]")
			i = end + 1
		default:
			b.WriteString(regexp.QuoteMeta(glob[i : i+1]))
			i++
		}
	}
	return b.String()
}

// classEnd returns the index of the ']' closing the class that opens at
// glob[start], or -1. A ']' directly after the opening (or after '!') is a
// literal member.
func classEnd(glob string, start int) int {
	j := start + 1
	if j < len(glob) && glob[j] == '!' {
		j++
	}
	if j < len(glob) && glob[j] == ']' {
		j++
	}
	if k := strings.IndexByte(glob[j:], ']'); k >= 0 {
		return j + k
	}
	return -1
}
