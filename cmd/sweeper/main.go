// Command sweeper drains PENDING transactions into the ledger until it is
// signalled to stop.
package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/paynxt/internal/app"
)

func main() {
	if err := app.RunWorker(); err != nil {
		fmt.Fprintf(os.Stderr, "paynxt-sweeper: %v\n", err)
		os.Exit(1)
	}
}
