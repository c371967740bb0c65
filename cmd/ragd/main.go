package main

import (
	"fmt"
	"os"

	"github.com/magic-research/ragd/cmd/ragd/cmd"
)

func main() {
	if err := cmd.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
