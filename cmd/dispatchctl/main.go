// Command dispatchctl runs one-off operator tasks against the dispatch
// store: schema migration, a suspension sweep, and settings inspection.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
