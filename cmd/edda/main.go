// Command edda is the CLI front-end over the edda core: an append-only,
// hash-chained working-memory ledger under .edda/ plus a file-mediated
// multi-agent coordination board.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/fagemx/edda/internal/telemetry"
)

func main() {
	ctx := context.Background()
	shutdown, err := telemetry.Init(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
	} else {
		defer func() { _ = shutdown(ctx) }()
	}

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
