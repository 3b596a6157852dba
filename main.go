package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"wakeword/cmd"
	"wakeword/internal/log"
	"wakeword/pkg/build"

	"github.com/joho/godotenv"
)

// main is the entry point of the keyword-spotting test platform.
//
// 1. Startup Phase (Cold Path): build info, configuration, filter bank,
// capture source and controller, collaborators.
//
// 2. Concurrent Phase (Hot Path): the source's completion handler fills the
// waveform while commands arrive on stdin, TCP and HTTP.
//
// 3. Shutdown Phase (Cold Path): on SIGINT/SIGTERM the surfaces stop and
// the source is closed.
func main() {
	if err := build.Initialize(); err != nil {
		log.Debugf("Build info incomplete (development build): %v", err)
	}

	// ENV_* overrides may come from a .env file next to the binary.
	_ = godotenv.Load()

	// Setup signal handling for graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Execute(ctx); err != nil {
		log.Errorf("%v", err)
		stop()
		os.Exit(1)
	}
}
