package main

import (
	"os"

	"github.com/robbyt/go-scriptsvc/cmd/scriptsvc/cmd"
)

func main() {
	if err := cmd.NewRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}
