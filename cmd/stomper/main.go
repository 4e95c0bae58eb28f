// Command stomper drives an external coding assistant through a safe,
// concurrent workflow that resolves static-analysis findings, file by
// file, with a learning store steering prompt strategy across runs.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
