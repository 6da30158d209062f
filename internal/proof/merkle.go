package proof

import (
	"encoding/hex"

	"github.com/zeebo/blake3"
)

const (
	leafPrefix = 0x00
	nodePrefix = 0x01
)

// RootDigest computes the Merkle root over entries in order. Each leaf
// hashes the source path, destination path, source hash, destination hash
// and outcome;
// inner nodes hash their two children. A node without a sibling is
// promoted unchanged to the next level.
func RootDigest(entries []Entry) string {
	if len(entries) == 0 {
		sum := blake3.Sum256([]byte("drill-empty-manifest"))
		return hex.EncodeToString(sum[:])
	}

	level := make([][32]byte, len(entries))
	for i, e := range entries {
		level[i] = leaf(e)
	}
	for len(level) > 1 {
		next := level[:0:0]
		for i := 0; i < len(level); i += 2 {
			if i+1 == len(level) {
				next = append(next, level[i])
				continue
			}
			next = append(next, node(level[i], level[i+1]))
		}
		level = next
	}
	return hex.EncodeToString(level[0][:])
}

func leaf(e Entry) [32]byte {
	h := blake3.New()
	h.Write([]byte{leafPrefix})
	for i, field := range []string{e.SourcePath, e.DestPath, e.SourceHash, e.DestHash, string(e.Outcome)} {
		if i > 0 {
			h.Write([]byte{0})
		}
		h.Write([]byte(field))
	}
	var out [32]byte
	h.Sum(out[:0])
	return out
}

func node(l, r [32]byte) [32]byte {
	h := blake3.New()
	h.Write([]byte{nodePrefix})
	h.Write(l[:])
	h.Write(r[:])
	var out [32]byte
	h.Sum(out[:0])
	return out
}
