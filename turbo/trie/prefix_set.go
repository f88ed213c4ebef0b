package trie

import (
	"bytes"
	"sort"

	"github.com/malik672/reth/common"
)

// PrefixSet is the set of storage key prefixes (in HEX encoding) that changed
// within one account's storage trie during a block. It is built once by the
// state-diff provider and then only queried.
//
// Not safe for concurrent mutation; concurrent reads after the last AddKey
// are fine because the first query freezes the sorted form.
type PrefixSet struct {
	hexes  [][]byte
	sorted bool
}

func NewPrefixSet() *PrefixSet {
	return &PrefixSet{}
}

// AddKey adds a raw (KEY encoded) storage key to the set.
func (ps *PrefixSet) AddKey(key []byte) {
	ps.AddHex(keybytesToHex(key))
}

// AddHex adds a HEX encoded key or key prefix to the set.
func (ps *PrefixSet) AddHex(hex []byte) {
	ps.hexes = append(ps.hexes, common.CopyBytes(hex))
	ps.sorted = false
}

func (ps *PrefixSet) ensureSorted() {
	if ps.sorted {
		return
	}
	sort.Slice(ps.hexes, func(i, j int) bool {
		return bytes.Compare(ps.hexes[i], ps.hexes[j]) < 0
	})
	ps.sorted = true
}

// Contains reports whether any key in the set starts with prefix
// (HEX encoding). An empty prefix matches a non-empty set.
func (ps *PrefixSet) Contains(prefix []byte) bool {
	if ps == nil || len(ps.hexes) == 0 {
		return false
	}
	ps.ensureSorted()
	i := sort.Search(len(ps.hexes), func(i int) bool {
		return bytes.Compare(ps.hexes[i], prefix) >= 0
	})
	return i < len(ps.hexes) && bytes.HasPrefix(ps.hexes[i], prefix)
}

func (ps *PrefixSet) Empty() bool {
	return ps == nil || len(ps.hexes) == 0
}

func (ps *PrefixSet) Len() int {
	if ps == nil {
		return 0
	}
	return len(ps.hexes)
}
