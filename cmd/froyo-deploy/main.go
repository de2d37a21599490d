package main

import (
	"context"
	"os"

	"github.com/openfroyo/froyo-deploy/cmd/froyo-deploy/commands"
)

// Version information (set via ldflags during build)
var (
	Version   = "dev"
	Commit    = "unknown"
	BuildDate = "unknown"
)

func main() {
	// Interrupts are not intercepted: a signal while waiting on the operator ends the run.
	streams := commands.Streams{In: os.Stdin, Out: os.Stdout, Err: os.Stderr}
	build := commands.BuildInfo{Version: Version, Commit: Commit, BuildDate: BuildDate}

	os.Exit(commands.Execute(context.Background(), build, os.Args[0], os.Args[1:], streams))
}
