// Command stagerun drives programs through the staged compilation pipeline.
package main

import (
	"os"

	"github.com/roach88/stagerun/internal/cli"
)

func main() {
	os.Exit(cli.Main(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}
