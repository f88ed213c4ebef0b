package trie

import (
	"github.com/malik672/reth/common"
)

// leaf is one storage entry prepared for root computation: path in HEX
// encoding (64 nibbles), value already RLP encoded.
type leaf struct {
	path  []byte
	value []byte
}

// hashBuilder folds a sorted set of leaves into a Merkle Patricia root the
// recursive way: structurally it is the same fold erigon performs with
// cursors over huge state, collapsed to the in-memory case of a single
// account's changed storage.
//
// When retain is non-empty and collectProof is set, the encodings of all
// nodes on the path to any retained prefix are accumulated - that is the
// Merkle proof for the retained keys.
type hashBuilder struct {
	retain       *PrefixSet
	proof        [][]byte
	collectProof bool
}

// root computes the trie root of leaves, which must be sorted by path
// ascending with all paths distinct and of equal length.
func (hb *hashBuilder) root(leaves []leaf) common.Hash {
	if len(leaves) == 0 {
		return EmptyRoot
	}
	enc := hb.node(leaves, nil, 0)
	hb.keep(nil, enc)
	return common.HashData(enc)
}

// node returns the RLP encoding of the trie node covering leaves, whose paths
// all share the first depth nibbles (= path).
func (hb *hashBuilder) node(leaves []leaf, path []byte, depth int) []byte {
	if len(leaves) == 1 {
		l := leaves[0]
		return encodeList(
			encodeBytes(hexPrefix(l.path[depth:], true)),
			encodeBytes(l.value),
		)
	}
	// sorted input: the common prefix of all remaining paths is the common
	// prefix of the first and the last
	lcp := commonPrefixLen(leaves[0].path[depth:], leaves[len(leaves)-1].path[depth:])
	if lcp > 0 {
		shared := leaves[0].path[depth : depth+lcp]
		childPath := append(append([]byte{}, path...), shared...)
		childEnc := hb.branch(leaves, childPath, depth+lcp)
		hb.keep(childPath, childEnc)
		return encodeList(
			encodeBytes(hexPrefix(shared, false)),
			hb.ref(childEnc),
		)
	}
	return hb.branch(leaves, path, depth)
}

func (hb *hashBuilder) branch(leaves []leaf, path []byte, depth int) []byte {
	items := make([][]byte, 17)
	for i := range items {
		items[i] = emptyString
	}
	for start := 0; start < len(leaves); {
		nibble := leaves[start].path[depth]
		end := start
		for end < len(leaves) && leaves[end].path[depth] == nibble {
			end++
		}
		childPath := append(append([]byte{}, path...), nibble)
		childEnc := hb.node(leaves[start:end], childPath, depth+1)
		hb.keep(childPath, childEnc)
		items[nibble] = hb.ref(childEnc)
		start = end
	}
	return encodeList(items...)
}

// ref converts a node encoding into its in-parent reference: nodes shorter
// than 32 bytes are embedded verbatim, longer ones are replaced by the
// RLP encoded keccak of their encoding.
func (hb *hashBuilder) ref(enc []byte) []byte {
	if len(enc) < 32 {
		return enc
	}
	h := common.HashData(enc)
	return encodeBytes(h[:])
}

// keep records enc as a proof node when it lies on the path to a retained
// prefix. Embedded (short) nodes are omitted, matching what a verifier
// needs: they are carried inside their parent already. The root node is
// always kept.
func (hb *hashBuilder) keep(path []byte, enc []byte) {
	if !hb.collectProof {
		return
	}
	if len(path) > 0 && (len(enc) < 32 || !hb.retain.Contains(path)) {
		return
	}
	hb.proof = append(hb.proof, enc)
}

// RLP encoding of trie nodes. Nothing here needs the general-purpose
// reflection encoder: node items are byte strings and one fixed list shape.

var emptyString = []byte{0x80}

func encodeBytes(b []byte) []byte {
	if len(b) == 1 && b[0] < 0x80 {
		return b
	}
	return append(encodeLength(len(b), 0x80), b...)
}

func encodeList(items ...[]byte) []byte {
	var payloadLen int
	for _, it := range items {
		payloadLen += len(it)
	}
	out := encodeLength(payloadLen, 0xc0)
	for _, it := range items {
		out = append(out, it...)
	}
	return out
}

func encodeLength(n int, base byte) []byte {
	if n <= 55 {
		return []byte{base + byte(n)}
	}
	var be []byte
	for v := n; v > 0; v >>= 8 {
		be = append([]byte{byte(v)}, be...)
	}
	return append([]byte{base + 55 + byte(len(be))}, be...)
}
