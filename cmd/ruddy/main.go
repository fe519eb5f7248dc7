// Package main is the entry point for the ruddy binary.
package main

import (
	"os"

	"ruddy/pkg/cli"
)

func main() {
	os.Exit(cli.Execute())
}
