package main

import (
	"os"

	"quiz-ledger/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
