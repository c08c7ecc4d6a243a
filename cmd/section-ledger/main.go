// Package main is the entry point for the section-ledger CLI.
package main

import (
	"os"

	"github.com/pigeonworks-llc/section-ledger/cmd/section-ledger/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
