package main

import (
	"context"
	"errors"
	"fmt"
	"os"
)

func main() {
	os.Exit(exitCode(newRootCommand().Execute()))
}

// exitCode maps a command error to the process exit status. An interrupted
// run exits 130 without noise; every other failure is reported on stderr.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, context.Canceled):
		return 130
	default:
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
}
