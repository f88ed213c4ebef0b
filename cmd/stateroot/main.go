package main

import (
	"fmt"
	"os"

	"github.com/malik672/reth/cmd/stateroot/commands"
)

func main() {
	if err := commands.RootCommand().Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
