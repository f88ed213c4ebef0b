package stateroot

import (
	"github.com/malik672/reth/common"
	"github.com/malik672/reth/turbo/trie"
)

// ModifiedAccount is one account whose storage changed in a block: the hashed
// address plus the set of changed storage key prefixes. Produced once per
// block by the state-diff provider; never mutated here.
type ModifiedAccount struct {
	Hash     common.Hash
	Prefixes *trie.PrefixSet

	// WithProof requests the Merkle proof nodes for the prefixes alongside
	// the root.
	WithProof bool
}

// RootResult is the outcome of one account's storage root computation.
type RootResult struct {
	Root  common.Hash
	Proof [][]byte // nil unless requested
}

// storageRootJob pairs one ModifiedAccount with its position in the batch.
// Created when the batch is submitted, consumed exactly once by the
// dispatcher.
type storageRootJob struct {
	id      int
	account ModifiedAccount
}
