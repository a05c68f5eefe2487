package main

import (
	"os"

	"github.com/mezonai/balances-maintenance/cmd"
)

func main() {
	defer func() {
		if r := recover(); r != nil {
			cmd.ReportCrash(os.Stderr, r)
			os.Exit(1)
		}
	}()

	cmd.Execute()
}
