// Command availability-cli queries a running scheduling-service: it prints a
// professional's slots and checks whether a proposed appointment would fit.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := newRootCmd(os.Stdout).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
}
