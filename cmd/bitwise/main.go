package main

import (
	"os"

	"github.com/bitwiseai/bitwise/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
