// Command devloop runs backlog tasks through a developer/reviewer loop and
// commits each converged task on its own branch.
package main

import (
	"os"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}
