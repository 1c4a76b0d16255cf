// Package main starts the hotdice optimizer CLI.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	hotdicecmd "github.com/louisbranch/hotdice/internal/cmd/hotdice"
	"github.com/louisbranch/hotdice/internal/platform/config"
)

func main() {
	log.SetPrefix("[HOTDICE] ")
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := hotdicecmd.Execute(ctx); err != nil {
		config.Exitf("hotdice: %v", err)
	}
}
