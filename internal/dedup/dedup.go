// Package dedup finds duplicate files in a frozen scan index. Exact
// duplicates share a full content hash; fuzzy duplicates are files of the
// same type whose normalized names and sampled content are similar enough.
// A file belongs to at most one group, and exact grouping always wins.
package dedup

import (
	"fmt"
	"runtime"
	"sort"

	"github.com/KHET-1/diamond-drill/internal/engine"
	"github.com/KHET-1/diamond-drill/internal/event"
	"github.com/KHET-1/diamond-drill/internal/index"
	"github.com/KHET-1/diamond-drill/internal/op"
	"github.com/KHET-1/diamond-drill/internal/stats"
)

// Mode selects which groups a run reports.
type Mode string

const (
	ModeExact Mode = "exact"
	ModeFuzzy Mode = "fuzzy"
	ModeBoth  Mode = "both"
)

// ParseMode validates a mode name.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeExact, ModeFuzzy, ModeBoth:
		return m, nil
	case "":
		return ModeExact, nil
	default:
		return "", fmt.Errorf("unknown dedup mode %q (want exact, fuzzy or both)", s)
	}
}

// Kind tells how a group's members were matched.
type Kind string

const (
	KindExact Kind = "exact"
	KindFuzzy Kind = "fuzzy"
)

const (
	DefaultNameWeight    = 0.4
	DefaultContentWeight = 0.6
	DefaultThreshold     = 0.80
	DefaultSizeRatio     = 0.5
	DefaultSampleSize    = 256 << 10
	DefaultShingleSize   = 8
	DefaultSketchSize    = 128
)

// Config tunes a dedup run. Zero values take the defaults above.
type Config struct {
	Stats         *stats.Collector
	Mode          Mode
	Root          string // source root; defaults to the index root
	Read          engine.ReadOptions
	Workers       int
	NameWeight    float64
	ContentWeight float64
	Threshold     float64
	SizeRatio     float64
	SampleSize    int64
	ShingleSize   int
	SketchSize    int
}

func (c *Config) applyDefaults(idx *index.ScanIndex) {
	if c.Mode == "" {
		c.Mode = ModeExact
	}
	if c.Root == "" {
		c.Root = idx.Root
	}
	if c.Workers <= 0 {
		c.Workers = min(runtime.NumCPU(), 8)
	}
	if c.NameWeight == 0 && c.ContentWeight == 0 {
		c.NameWeight, c.ContentWeight = DefaultNameWeight, DefaultContentWeight
	}
	if c.Threshold <= 0 {
		c.Threshold = DefaultThreshold
	}
	if c.SizeRatio <= 0 {
		c.SizeRatio = DefaultSizeRatio
	}
	if c.SampleSize <= 0 {
		c.SampleSize = DefaultSampleSize
	}
	if c.ShingleSize <= 0 {
		c.ShingleSize = DefaultShingleSize
	}
	if c.SketchSize <= 0 {
		c.SketchSize = DefaultSketchSize
	}
}

// Group is a set of two or more duplicate files. Members are ranked with
// the master first.
type Group struct {
	Master      index.FileEntry   `json:"master"`
	Kind        Kind              `json:"kind"`
	Hash        string            `json:"hash,omitempty"`
	Members     []index.FileEntry `json:"members"`
	Score       float64           `json:"score"`
	WastedBytes int64             `json:"wasted_bytes"`
}

// Unscorable is an entry that could not take part in matching.
type Unscorable struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// Report is the result of a dedup run.
type Report struct {
	Promoted    map[string]string `json:"promoted,omitempty"` // path -> full hash computed during the run
	Groups      []Group           `json:"groups"`
	Unscorable  []Unscorable      `json:"unscorable,omitempty"`
	Mode        Mode              `json:"mode"`
	Compared    int64             `json:"compared"`
	WastedBytes int64             `json:"wasted_bytes"`
	Cancelled   bool              `json:"cancelled"`
}

// Run groups duplicates in idx. It never modifies idx; hashes computed to
// confirm partial matches are reported in Report.Promoted. Cancellation is
// honored between comparisons and yields the groups formed so far.
func Run(h *op.Handle, idx *index.ScanIndex, cfg Config) (Report, error) {
	if !idx.Frozen() {
		return Report{}, fmt.Errorf("dedup needs a frozen index")
	}
	cfg.applyDefaults(idx)
	if _, err := ParseMode(string(cfg.Mode)); err != nil {
		return Report{}, err
	}

	h.Emit(event.Event{Type: event.OperationStarted, Op: event.OpDedup, Path: idx.Root, Total: int64(idx.Len())})

	r := &run{h: h, cfg: cfg, rep: Report{Mode: cfg.Mode, Promoted: make(map[string]string)}}
	entries := idx.Entries()

	exact, grouped := r.exact(entries)
	var fuzzy []Group
	if cfg.Mode != ModeExact && !h.Cancelled() {
		fuzzy = r.fuzzy(entries, grouped)
	}

	switch cfg.Mode {
	case ModeExact:
		r.rep.Groups = exact
	case ModeFuzzy:
		r.rep.Groups = fuzzy
	default:
		r.rep.Groups = append(exact, fuzzy...)
	}
	sortGroups(r.rep.Groups)

	for _, g := range r.rep.Groups {
		r.rep.WastedBytes += g.WastedBytes
		if cfg.Stats != nil {
			cfg.Stats.AddDuplicates(1, g.WastedBytes)
		}
		h.Emit(event.Event{
			Type:    event.DuplicateFound,
			Op:      event.OpDedup,
			Path:    g.Master.Path,
			Status:  string(g.Kind),
			Members: len(g.Members),
			Size:    g.WastedBytes,
		})
	}

	sort.Slice(r.rep.Unscorable, func(i, j int) bool { return r.rep.Unscorable[i].Path < r.rep.Unscorable[j].Path })
	r.rep.Cancelled = h.Cancelled()
	h.Complete(event.OpDedup, r.done, r.total, r.rep.WastedBytes, false)
	return r.rep, nil
}

type run struct {
	h     *op.Handle
	rep   Report
	cfg   Config
	done  int64 // completed units: exact buckets and fuzzy comparisons
	total int64
}

func (r *run) unscorable(path, reason string) {
	r.rep.Unscorable = append(r.rep.Unscorable, Unscorable{Path: path, Reason: reason})
}
