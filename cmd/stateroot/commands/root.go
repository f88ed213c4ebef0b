package commands

import (
	"github.com/ledgerwatch/log/v3"
	"github.com/spf13/cobra"
)

var (
	chaindata string
	workers   uint
	logger    log.Logger
)

var rootCmd = &cobra.Command{
	Use:   "stateroot",
	Short: "compute per-account storage roots in parallel against a chaindata snapshot",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = log.New()
	},
}

func RootCommand() *cobra.Command {
	rootCmd.PersistentFlags().StringVar(&chaindata, "chaindata", "", "path to the chaindata directory")
	rootCmd.PersistentFlags().UintVar(&workers, "workers", 0, "pooled read transactions / max concurrent accounts (0 = derive from CPU count)")
	must(rootCmd.MarkPersistentFlagRequired("chaindata"))

	rootCmd.AddCommand(computeCmd)
	rootCmd.AddCommand(seedCmd)
	return rootCmd
}

func must(err error) {
	if err != nil {
		panic(err)
	}
}
