package filter

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"strings"
)

// LoadFile reads filter rules from a file and adds them to the chain, in
// order. A line starting with "+ " includes a pattern, "- " or a bare
// pattern excludes it. The directives ext, min-size, max-size, skip-hidden
// and ignore-case set the matching chain options, for example "ext jpg png"
// or "min-size 4K". Blank lines and lines starting with # are ignored.
func (c *Chain) LoadFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open filter file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for lineNum := 1; scanner.Scan(); lineNum++ {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if err := c.parseLine(line); err != nil {
			return fmt.Errorf("filter file %s line %d: %w", path, lineNum, err)
		}
	}
	return scanner.Err()
}

func (c *Chain) parseLine(line string) error {
	switch {
	case strings.HasPrefix(line, "+ "):
		return c.AddInclude(strings.TrimSpace(line[2:]))
	case strings.HasPrefix(line, "- "):
		return c.AddExclude(strings.TrimSpace(line[2:]))
	}

	keyword, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)
	switch keyword {
	case "ext":
		if arg == "" {
			return errors.New("ext needs at least one extension")
		}
		c.AllowExtensions(strings.FieldsFunc(arg, func(r rune) bool { return r == ' ' || r == ',' })...)
	case "min-size", "max-size":
		n, err := ParseSize(arg)
		if err != nil {
			return fmt.Errorf("%s: %w", keyword, err)
		}
		if keyword == "min-size" {
			c.SetMinSize(n)
		} else {
			c.SetMaxSize(n)
		}
	case "skip-hidden":
		c.SetSkipHidden(true)
	case "ignore-case":
		return c.SetIgnoreCase(true)
	default:
		return c.AddExclude(line)
	}
	return nil
}
