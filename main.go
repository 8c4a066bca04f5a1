// file: main.go
// version: 2.0.0
// guid: 1d3f5a7c-9e2b-4c6d-8f0a-2b4d6f8a0c1e

package main

import (
	"fmt"
	"os"

	"github.com/jdfalk/filesync/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
