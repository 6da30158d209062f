package dedup

import (
	"math"
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/KHET-1/diamond-drill/internal/engine"
	"github.com/KHET-1/diamond-drill/internal/index"
)

type candidate struct {
	entry  index.FileEntry
	name   string
	sketch sketch
}

// fuzzy matches entries outside exact groups and not already unscorable,
// within the same detected type. Pairs scoring at least the threshold are joined, and groups are
// the connected components.
func (r *run) fuzzy(entries []index.FileEntry, grouped map[string]bool) []Group {
	skipped := make(map[string]bool, len(r.rep.Unscorable))
	for _, u := range r.rep.Unscorable {
		skipped[u.Path] = true
	}
	var pool []index.FileEntry
	for _, e := range entries {
		if grouped[e.Path] || skipped[e.Path] || e.Health == index.Failed || !e.Hashed() || e.Size == 0 {
			continue
		}
		pool = append(pool, e)
	}

	cands := r.sketches(pool)

	byType := make(map[index.FileType][]*candidate)
	for _, c := range cands {
		byType[c.entry.Type] = append(byType[c.entry.Type], c)
	}
	types := make([]index.FileType, 0, len(byType))
	for t, cs := range byType {
		n := int64(len(cs))
		r.total += n * (n - 1) / 2
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })

	var groups []Group
	for _, t := range types {
		cs := byType[t]
		sort.Slice(cs, func(i, j int) bool { return cs[i].entry.Path < cs[j].entry.Path })
		groups = append(groups, r.cluster(cs)...)
		if r.h.Cancelled() {
			break
		}
	}
	return groups
}

// sketches reads a sample of every entry on a bounded errgroup. Entries
// whose sample cannot be read completely are unscorable.
func (r *run) sketches(pool []index.FileEntry) []*candidate {
	out := make([]*candidate, len(pool))
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for i, e := range pool {
		g.Go(func() error {
			if r.h.Cancelled() {
				return nil
			}
			sample, m, err := engine.ReadSample(r.h.RetryContext(), r.cfg.Root, e.Path, r.cfg.SampleSize, r.cfg.Read)
			if err == nil && m.BadBlocks > 0 {
				err = m.FirstErr
			}
			if err != nil {
				mu.Lock()
				r.unscorable(e.Path, "unreadable sample: "+err.Error())
				mu.Unlock()
				return nil
			}
			out[i] = &candidate{
				entry:  e,
				name:   normalizeName(e.Path),
				sketch: newSketch(sample, r.cfg.ShingleSize, r.cfg.SketchSize),
			}
			return nil
		})
	}
	_ = g.Wait()

	cands := out[:0]
	for _, c := range out {
		if c != nil {
			cands = append(cands, c)
		}
	}
	return cands
}

func (r *run) score(a, b *candidate) float64 {
	return r.cfg.NameWeight*nameSimilarity(a.name, b.name) +
		r.cfg.ContentWeight*jaccard(a.sketch, b.sketch, r.cfg.SketchSize)
}

// cluster compares every pair in cs, checking for cancellation before each
// comparison.
func (r *run) cluster(cs []*candidate) []Group {
	uf := newUnionFind(len(cs))
	edgeScore := make(map[int]float64) // component root -> weakest joining score

	for i := range cs {
		for j := i + 1; j < len(cs); j++ {
			if r.h.Cancelled() {
				return r.components(cs, uf, edgeScore)
			}
			r.done++
			r.rep.Compared++

			a, b := cs[i].entry.Size, cs[j].entry.Size
			if float64(min(a, b))/float64(max(a, b)) < r.cfg.SizeRatio {
				continue
			}
			s := r.score(cs[i], cs[j])
			if s < r.cfg.Threshold {
				continue
			}
			ri, rj := uf.find(i), uf.find(j)
			weakest := s
			if v, ok := edgeScore[ri]; ok {
				weakest = math.Min(weakest, v)
			}
			if v, ok := edgeScore[rj]; ok {
				weakest = math.Min(weakest, v)
			}
			delete(edgeScore, ri)
			delete(edgeScore, rj)
			edgeScore[uf.union(ri, rj)] = weakest
		}
	}
	return r.components(cs, uf, edgeScore)
}

func (r *run) components(cs []*candidate, uf *unionFind, edgeScore map[int]float64) []Group {
	members := make(map[int][]index.FileEntry)
	var roots []int
	for i, c := range cs {
		root := uf.find(i)
		if _, ok := members[root]; !ok {
			roots = append(roots, root)
		}
		members[root] = append(members[root], c.entry)
	}
	var groups []Group
	for _, root := range roots {
		if len(members[root]) < 2 {
			continue
		}
		score := math.Round(edgeScore[root]*1000) / 1000
		groups = append(groups, newGroup(KindFuzzy, "", score, members[root]))
	}
	return groups
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), rank: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
	}
	return uf
}

func (u *unionFind) find(x int) int {
	for u.parent[x] != x {
		u.parent[x] = u.parent[u.parent[x]]
		x = u.parent[x]
	}
	return x
}

// union joins the sets holding a and b and returns the new root.
func (u *unionFind) union(a, b int) int {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return ra
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
	return ra
}
