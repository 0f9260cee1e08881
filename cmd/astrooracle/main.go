// Command astrooracle runs one divination against an oracle backend and
// prints the streamed interpretation.
//
//	astrooracle divine --api-url http://localhost:8000 --birth-date 1990-05-17 --question "career?"
package main

import (
	"fmt"
	"os"
)

var (
	version = "dev"
	commit  = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
