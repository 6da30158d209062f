package dedup

import (
	"sort"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/KHET-1/diamond-drill/internal/engine"
	"github.com/KHET-1/diamond-drill/internal/index"
)

// exact groups entries by size, then by full content hash. Entries that
// only carry a partial hash are fully hashed when their partial hash
// collides with another entry of the same size. It returns the groups and
// the set of paths they cover.
func (r *run) exact(entries []index.FileEntry) ([]Group, map[string]bool) {
	bySize := make(map[int64][]index.FileEntry)
	for _, e := range entries {
		switch {
		case e.Health == index.Failed:
			r.unscorable(e.Path, "unreadable: "+e.Error)
		case !e.Hashed():
			r.unscorable(e.Path, "not hashed")
		case e.Size == 0:
			// Empty files carry no content to deduplicate.
		default:
			bySize[e.Size] = append(bySize[e.Size], e)
		}
	}

	sizes := make([]int64, 0, len(bySize))
	for size, bucket := range bySize {
		if len(bucket) > 1 {
			sizes = append(sizes, size)
		}
	}
	sort.Slice(sizes, func(i, j int) bool { return sizes[i] < sizes[j] })
	r.total += int64(len(sizes))

	var toPromote []index.FileEntry
	for _, size := range sizes {
		toPromote = append(toPromote, partialCollisions(bySize[size])...)
	}
	r.promote(toPromote)

	var groups []Group
	grouped := make(map[string]bool)
	for _, size := range sizes {
		if r.h.Cancelled() {
			break
		}
		byHash := make(map[string][]index.FileEntry)
		var order []string
		for _, e := range bySize[size] {
			hash := e.ContentHash
			if hash == "" {
				hash = r.rep.Promoted[e.Path]
			}
			if hash == "" {
				continue
			}
			if _, ok := byHash[hash]; !ok {
				order = append(order, hash)
			}
			byHash[hash] = append(byHash[hash], e)
		}
		for _, hash := range order {
			members := byHash[hash]
			if len(members) < 2 {
				continue
			}
			for _, m := range members {
				grouped[m.Path] = true
			}
			groups = append(groups, newGroup(KindExact, hash, 1, members))
		}
		r.done++
	}
	return groups, grouped
}

// partialCollisions returns the partial-only entries of a same-size bucket
// that share their partial hash with at least one other entry.
func partialCollisions(bucket []index.FileEntry) []index.FileEntry {
	counts := make(map[string]int)
	for _, e := range bucket {
		if !e.HasFullHash() {
			counts[e.PartialHash]++
		}
	}
	var out []index.FileEntry
	for _, e := range bucket {
		if !e.HasFullHash() && counts[e.PartialHash] > 1 {
			out = append(out, e)
		}
	}
	return out
}

// promote computes full hashes for entries on a bounded errgroup.
func (r *run) promote(entries []index.FileEntry) {
	if len(entries) == 0 {
		return
	}
	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(r.cfg.Workers)
	for _, e := range entries {
		g.Go(func() error {
			if r.h.Cancelled() {
				return nil
			}
			hash, m, err := engine.FullHash(r.h.RetryContext(), r.cfg.Root, e.Path, r.cfg.Read)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err != nil:
				r.unscorable(e.Path, "full hash: "+err.Error())
			case m.Health() == index.Failed:
				r.unscorable(e.Path, "full hash: no readable blocks")
			default:
				r.rep.Promoted[e.Path] = hash
			}
			return nil
		})
	}
	_ = g.Wait()
}
