package trie

import (
	"bytes"
	"context"
	"fmt"
	"sort"

	"github.com/holiman/uint256"

	"github.com/malik672/reth/common"
	"github.com/malik672/reth/db/kv"
)

// StorageRootCalculator computes one account's storage root against the
// snapshot a transaction handle observes. Implementations must be pure with
// respect to the handle's snapshot: same handle, same account, same result.
type StorageRootCalculator interface {
	// StorageRoot returns the root of accountHash's storage trie and, when
	// withProof is set, the Merkle proof nodes for the keys in prefixes.
	StorageRoot(ctx context.Context, tx kv.Tx, accountHash common.Hash, prefixes *PrefixSet, withProof bool) (common.Hash, [][]byte, error)
}

// FlatStorageRootCalculator walks kv.HashedStorage under the account prefix
// and folds the entries into a root. The prefix set does not narrow the walk:
// without a cached intermediate-hash layer every leaf contributes to the
// root, so it is consulted only for proof collection.
type FlatStorageRootCalculator struct{}

func NewFlatStorageRootCalculator() *FlatStorageRootCalculator {
	return &FlatStorageRootCalculator{}
}

func (c *FlatStorageRootCalculator) StorageRoot(ctx context.Context, tx kv.Tx, accountHash common.Hash, prefixes *PrefixSet, withProof bool) (common.Hash, [][]byte, error) {
	var leaves []leaf
	var value uint256.Int

	err := tx.ForPrefix(kv.HashedStorage, accountHash.Bytes(), func(k, v []byte) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		storageKey := k[common.HashLength:]
		if len(storageKey) != common.HashLength {
			return fmt.Errorf("unexpected storage key length %d under account %x", len(storageKey), accountHash)
		}
		value.SetBytes(v) // normalizes any stray leading zeroes
		leaves = append(leaves, leaf{
			path:  keybytesToHex(storageKey),
			value: encodeBytes(value.Bytes()),
		})
		return nil
	})
	if err != nil {
		return common.Hash{}, nil, err
	}

	// hashBuilder requires sorted paths; mdbx walks in key order but the Tx
	// interface doesn't promise it
	sort.Slice(leaves, func(i, j int) bool {
		return bytes.Compare(leaves[i].path, leaves[j].path) < 0
	})

	hb := &hashBuilder{retain: prefixes, collectProof: withProof}
	root := hb.root(leaves)
	return root, hb.proof, nil
}
