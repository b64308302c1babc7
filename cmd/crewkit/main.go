package main

import (
	"os"

	"github.com/crewkit/crewkit/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
