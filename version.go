package main

import (
	"fmt"

	"github.com/edgeshim/edgeshim/internal/version"
)

// printVersion writes the injected version + commit line.
func printVersion() {
	fmt.Fprintln(stdOut, version.Full())
}
