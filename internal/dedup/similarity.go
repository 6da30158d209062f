package dedup

import (
	"path"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/cespare/xxhash/v2"
	"golang.org/x/text/unicode/norm"
)

// copyMarkers are suffixes and prefixes that file managers, editors and
// cameras add to otherwise identical names. They are stripped repeatedly
// until the name stops changing.
var copyMarkers = []*regexp.Regexp{
	regexp.MustCompile(`^copy of `),
	regexp.MustCompile(`[ _-]*\(\d+\)$`),
	regexp.MustCompile(`[ _-]+(- )?copy( \d+)?$`),
	regexp.MustCompile(`[ _-]+v(er)?\d+$`),
	regexp.MustCompile(`[ _-]+rev\d+$`),
	regexp.MustCompile(`[ _-]+(final|backup|bak|old|new|edited)$`),
	regexp.MustCompile(`[ _-]*(19|20)\d{2}[-_.]?\d{2}[-_.]?\d{2}([ _-]?\d{2}[-_.]?\d{2}([-_.]?\d{2})?)?`),
}

// normalizeName reduces a file name to the part that identifies its
// content: extension and copy markers removed, NFC, lower case.
func normalizeName(name string) string {
	name = path.Base(name)
	if ext := path.Ext(name); ext != "" && ext != name {
		name = strings.TrimSuffix(name, ext)
	}
	name = strings.ToLower(norm.NFC.String(name))
	for {
		prev := name
		for _, re := range copyMarkers {
			name = re.ReplaceAllString(name, "")
		}
		name = strings.Trim(name, " _-.")
		if name == prev {
			return name
		}
	}
}

// levenshtein returns the edit distance between a and b in runes.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	cur := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		cur[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			cur[j] = min(prev[j]+1, cur[j-1]+1, prev[j-1]+cost)
		}
		prev, cur = cur, prev
	}
	return prev[len(rb)]
}

// nameSimilarity is 1 - distance/longest over normalized names.
func nameSimilarity(a, b string) float64 {
	longest := max(utf8.RuneCountInString(a), utf8.RuneCountInString(b))
	if longest == 0 {
		return 1
	}
	return 1 - float64(levenshtein(a, b))/float64(longest)
}

// sketch is a bottom-k MinHash signature: the k smallest distinct shingle
// hashes of a sample, ascending.
type sketch []uint64

func newSketch(sample []byte, shingle, k int) sketch {
	if len(sample) == 0 {
		return nil
	}
	if len(sample) < shingle {
		return sketch{xxhash.Sum64(sample)}
	}
	hashes := make([]uint64, 0, len(sample)-shingle+1)
	for i := 0; i+shingle <= len(sample); i++ {
		hashes = append(hashes, xxhash.Sum64(sample[i:i+shingle]))
	}
	slices.Sort(hashes)
	hashes = slices.Compact(hashes)
	if len(hashes) > k {
		hashes = hashes[:k]
	}
	return sketch(hashes)
}

// jaccard estimates the Jaccard similarity of the shingle sets behind a and
// b: of the k smallest hashes in their union, the fraction present in both.
func jaccard(a, b sketch, k int) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 1
	}
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	var i, j, seen, both int
	for seen < k && (i < len(a) || j < len(b)) {
		switch {
		case j >= len(b) || (i < len(a) && a[i] < b[j]):
			i++
		case i >= len(a) || b[j] < a[i]:
			j++
		default:
			both++
			i++
			j++
		}
		seen++
	}
	return float64(both) / float64(seen)
}
