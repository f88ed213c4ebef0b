package trie

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/malik672/reth/common"
	"github.com/malik672/reth/db/kv"
	"github.com/malik672/reth/db/kv/memdb"
)

type slot struct {
	key   common.Hash
	value []byte
}

func testSlots(n int) []slot {
	slots := make([]slot, n)
	for i := range slots {
		slots[i] = slot{
			key:   common.HashData([]byte(fmt.Sprintf("slot-%d", i))),
			value: []byte{byte(i%255 + 1)},
		}
	}
	return slots
}

func seedStorage(t *testing.T, db kv.RwDB, account common.Hash, slots []slot) {
	t.Helper()
	err := db.Update(context.Background(), func(tx kv.RwTx) error {
		for _, s := range slots {
			k := append(append([]byte{}, account.Bytes()...), s.key.Bytes()...)
			if err := tx.Put(kv.HashedStorage, k, s.value); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

func computeRoot(t *testing.T, db kv.RwDB, account common.Hash) common.Hash {
	t.Helper()
	var root common.Hash
	err := db.View(context.Background(), func(tx kv.Tx) error {
		var err error
		root, _, err = NewFlatStorageRootCalculator().StorageRoot(context.Background(), tx, account, nil, false)
		return err
	})
	require.NoError(t, err)
	return root
}

func TestStorageRootUnknownAccount(t *testing.T) {
	db := memdb.NewTestDB(t)
	account := common.HashData([]byte("nobody"))
	require.Equal(t, EmptyRoot, computeRoot(t, db, account))
}

func TestStorageRootDeterministic(t *testing.T) {
	db := memdb.NewTestDB(t)
	account := common.HashData([]byte("acc"))
	seedStorage(t, db, account, testSlots(20))

	first := computeRoot(t, db, account)
	require.NotEqual(t, EmptyRoot, first)
	for i := 0; i < 5; i++ {
		require.Equal(t, first, computeRoot(t, db, account))
	}
}

func TestStorageRootInsertionOrderIndependent(t *testing.T) {
	account := common.HashData([]byte("acc"))
	slots := testSlots(16)

	forward := memdb.NewTestDB(t)
	seedStorage(t, forward, account, slots)

	reversed := make([]slot, len(slots))
	for i, s := range slots {
		reversed[len(slots)-1-i] = s
	}
	backward := memdb.NewTestDB(t)
	seedStorage(t, backward, account, reversed)

	require.Equal(t, computeRoot(t, forward, account), computeRoot(t, backward, account))
}

func TestStorageRootIsolatedPerAccount(t *testing.T) {
	db := memdb.NewTestDB(t)
	alice := common.HashData([]byte("alice"))
	bob := common.HashData([]byte("bob"))
	seedStorage(t, db, alice, testSlots(8))
	seedStorage(t, db, bob, testSlots(3))

	aliceRoot := computeRoot(t, db, alice)
	bobRoot := computeRoot(t, db, bob)
	require.NotEqual(t, aliceRoot, bobRoot)

	// a neighbouring account's writes don't leak into the walk
	lone := memdb.NewTestDB(t)
	seedStorage(t, lone, bob, testSlots(3))
	require.Equal(t, bobRoot, computeRoot(t, lone, bob))
}

func TestStorageRootValueNormalization(t *testing.T) {
	account := common.HashData([]byte("acc"))
	key := common.HashData([]byte("slot"))

	trimmed := memdb.NewTestDB(t)
	seedStorage(t, trimmed, account, []slot{{key: key, value: []byte{0x07}}})

	padded := memdb.NewTestDB(t)
	seedStorage(t, padded, account, []slot{{key: key, value: []byte{0x00, 0x00, 0x07}}})

	require.Equal(t, computeRoot(t, trimmed, account), computeRoot(t, padded, account))
}

func TestStorageRootProof(t *testing.T) {
	db := memdb.NewTestDB(t)
	account := common.HashData([]byte("acc"))
	slots := testSlots(12)
	seedStorage(t, db, account, slots)

	prefixes := NewPrefixSet()
	prefixes.AddKey(slots[4].key.Bytes())

	err := db.View(context.Background(), func(tx kv.Tx) error {
		root, proof, err := NewFlatStorageRootCalculator().StorageRoot(context.Background(), tx, account, prefixes, true)
		require.NoError(t, err)
		require.NotEmpty(t, proof)
		require.Equal(t, common.HashData(proof[len(proof)-1]), root)

		// the same snapshot without proof collection yields the same root
		bare, noProof, err := NewFlatStorageRootCalculator().StorageRoot(context.Background(), tx, account, nil, false)
		require.NoError(t, err)
		require.Equal(t, root, bare)
		require.Empty(t, noProof)
		return nil
	})
	require.NoError(t, err)
}

func TestStorageRootContextCancelled(t *testing.T) {
	db := memdb.NewTestDB(t)
	account := common.HashData([]byte("acc"))
	seedStorage(t, db, account, testSlots(4))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := db.View(context.Background(), func(tx kv.Tx) error {
		_, _, err := NewFlatStorageRootCalculator().StorageRoot(ctx, tx, account, nil, false)
		return err
	})
	require.ErrorIs(t, err, context.Canceled)
}
