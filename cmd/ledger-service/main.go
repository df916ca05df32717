package main

import (
	"os"

	"newsroom-ledger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
