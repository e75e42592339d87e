package main

import (
	"os"

	"github.com/trymwestin/nestga/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
