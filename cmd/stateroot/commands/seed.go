package commands

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/holiman/uint256"
	"github.com/spf13/cobra"

	"github.com/malik672/reth/common"
	"github.com/malik672/reth/db/kv"
	"github.com/malik672/reth/db/kv/mdbx"
)

var (
	seedAccounts uint
	seedSlots    uint
)

// seedCmd fills a dev database with random hashed storage, for benchmarking
// the compute path without a full node.
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "populate a dev chaindata db with random hashed storage",
	RunE: func(cmd *cobra.Command, args []string) error {
		db, err := mdbx.NewMDBX(logger).Path(chaindata).Open()
		if err != nil {
			return err
		}
		defer db.Close()

		return db.Update(cmd.Context(), func(tx kv.RwTx) error {
			var value uint256.Int
			for a := uint(0); a < seedAccounts; a++ {
				var addrSeed [8]byte
				binary.BigEndian.PutUint64(addrSeed[:], uint64(a))
				accHash := common.HashData(addrSeed[:])

				for s := uint(0); s < seedSlots; s++ {
					var slotSeed [16]byte
					binary.BigEndian.PutUint64(slotSeed[:8], uint64(a))
					binary.BigEndian.PutUint64(slotSeed[8:], uint64(s))
					slotHash := common.HashData(slotSeed[:])

					var raw [32]byte
					if _, err := rand.Read(raw[:]); err != nil {
						return err
					}
					value.SetBytes(raw[:])

					k := append(accHash.Bytes(), slotHash.Bytes()...)
					if err := tx.Put(kv.HashedStorage, k, value.Bytes()); err != nil {
						return err
					}
				}
				fmt.Printf("%s\n", accHash)
			}
			return nil
		})
	},
}

func init() {
	seedCmd.Flags().UintVar(&seedAccounts, "accounts", 16, "accounts to create")
	seedCmd.Flags().UintVar(&seedSlots, "slots", 128, "storage slots per account")
}
