// Package trie computes Merkle Patricia storage roots (and optionally proofs)
// for single accounts, reading hashed storage from a read-only kv transaction.
package trie

import (
	"github.com/malik672/reth/common"
)

var (
	// EmptyRoot is the known root hash of an empty trie.
	// = keccak256(rlp(""))
	EmptyRoot = mustHexToHash("56e81f171bcc55a6ff8345e692c0f86e5b48e01b996cadc001622fb5e363b421")
)

func mustHexToHash(s string) common.Hash {
	h, err := common.HexToHash(s)
	if err != nil {
		panic(err)
	}
	return h
}
