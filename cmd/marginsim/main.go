package main

import (
	"os"

	"github.com/rustyeddy/marginsim/cmd/marginsim/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
