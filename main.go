// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		log, logErr := zap.NewProduction()
		if logErr != nil {
			fmt.Fprintln(os.Stderr, "kidwa:", err)
			os.Exit(1)
		}
		log.Fatal("kidwa failed", zap.Error(err))
	}
}
