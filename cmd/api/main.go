// Command api serves the paynxt HTTP API and runs periodic reconciliation.
// Settlement runs in the separate sweeper process.
package main

import (
	"fmt"
	"os"

	"github.com/ayo6706/paynxt/internal/app"
)

func main() {
	if err := app.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "paynxt-api: %v\n", err)
		os.Exit(1)
	}
}
