// Package main is the entry point for the upflow user-plane router.
package main

import (
	"fmt"
	"os"

	"firestige.xyz/upflow/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
