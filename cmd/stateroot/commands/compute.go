package commands

import (
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/spf13/cobra"

	"github.com/malik672/reth/common"
	"github.com/malik672/reth/db/kv/mdbx"
	"github.com/malik672/reth/turbo/stateroot"
)

var (
	acquireTimeout time.Duration
	withProof      bool
	maxRetries     uint64
)

var computeCmd = &cobra.Command{
	Use:   "compute <accountHash>...",
	Short: "compute the storage root of each given hashed account address",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		accounts := make([]stateroot.ModifiedAccount, 0, len(args))
		for _, arg := range args {
			h, err := common.HexToHash(arg)
			if err != nil {
				return fmt.Errorf("account %q: %w", arg, err)
			}
			accounts = append(accounts, stateroot.ModifiedAccount{Hash: h, WithProof: withProof})
		}

		db, err := mdbx.NewMDBX(logger).Path(chaindata).Readonly().Open()
		if err != nil {
			return err
		}
		defer db.Close()

		cfg := stateroot.DefaultConfig()
		if workers > 0 {
			cfg.Workers = workers
		}
		cfg.AcquireTimeout = acquireTimeout

		manager, err := stateroot.NewProofTaskManager(db, cfg, nil, logger)
		if err != nil {
			return err
		}
		defer manager.Shutdown()

		var roots map[common.Hash]stateroot.RootResult
		// acquire timeouts are non-fatal: retry the batch with backoff,
		// give up immediately on anything fatal
		op := func() error {
			roots, err = manager.ComputeBatch(cmd.Context(), accounts)
			if err != nil && stateroot.IsFatal(err) {
				return backoff.Permanent(err)
			}
			return err
		}
		if err := backoff.Retry(op, backoff.WithMaxRetries(backoff.NewExponentialBackOff(), maxRetries)); err != nil {
			return err
		}

		for _, acc := range accounts {
			res := roots[acc.Hash]
			fmt.Printf("%s %s\n", acc.Hash, res.Root)
			if withProof {
				for _, node := range res.Proof {
					fmt.Printf("  proof node: %x\n", node)
				}
			}
		}
		return nil
	},
}

func init() {
	computeCmd.Flags().DurationVar(&acquireTimeout, "timeout", 0, "max wait for a free transaction handle (0 = unbounded)")
	computeCmd.Flags().BoolVar(&withProof, "proof", false, "also print Merkle proof nodes")
	computeCmd.Flags().Uint64Var(&maxRetries, "retries", 3, "batch retries on pool-exhaustion timeout")
}
