package main

import (
	"fmt"
	"os"

	"github.com/studio233/batchd/cmd/batchd/commands"
)

func main() {
	if err := commands.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
