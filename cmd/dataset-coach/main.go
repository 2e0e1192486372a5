// dataset-coach prepares image datasets for fine-tuning: content-hash
// renaming, metadata extraction, caption generation, and upscaling through
// an sd-webui compatible generation service.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"dataset-coach/cmd/dataset-coach/commands"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := commands.New().Execute(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
