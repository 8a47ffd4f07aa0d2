// Command warehouse collects channel messages and maintains the star-schema
// warehouse built from them.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/ignite/channel-warehouse/internal/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		logger.Error("warehouse: command failed", "command", os.Args[1:], "error", err)
		stop()
		os.Exit(1)
	}
}
