package dedup

import (
	"sort"

	"github.com/KHET-1/diamond-drill/internal/index"
)

// better reports whether a should be preferred over b as the copy to keep.
// The order is total, so the choice never depends on input order:
//  1. shallower path
//  2. more recent modification time
//  3. lexically smaller base name
//  4. lexically smaller full path
func better(a, b index.FileEntry) bool {
	if da, db := a.Depth(), b.Depth(); da != db {
		return da < db
	}
	if !a.ModTime.Equal(b.ModTime) {
		return a.ModTime.After(b.ModTime)
	}
	if na, nb := a.Name(), b.Name(); na != nb {
		return na < nb
	}
	return a.Path < b.Path
}

// rank sorts members so the master comes first.
func rank(members []index.FileEntry) {
	sort.SliceStable(members, func(i, j int) bool { return better(members[i], members[j]) })
}

func newGroup(kind Kind, hash string, score float64, members []index.FileEntry) Group {
	rank(members)
	g := Group{
		Kind:    kind,
		Hash:    hash,
		Score:   score,
		Master:  members[0],
		Members: members,
	}
	for _, m := range members[1:] {
		g.WastedBytes += m.Size
	}
	return g
}

func sortGroups(groups []Group) {
	sort.SliceStable(groups, func(i, j int) bool {
		if groups[i].WastedBytes != groups[j].WastedBytes {
			return groups[i].WastedBytes > groups[j].WastedBytes
		}
		if groups[i].Kind != groups[j].Kind {
			return groups[i].Kind < groups[j].Kind
		}
		return groups[i].Master.Path < groups[j].Master.Path
	})
}
