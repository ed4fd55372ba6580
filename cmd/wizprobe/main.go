// File: cmd/wizprobe/main.go
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"

	"github.com/xkilldash9x/wizprobe/cmd"
	"github.com/xkilldash9x/wizprobe/internal/observability"
)

const panicLogFile = "panic.log"

// Process exit codes.
const (
	exitClean       = 0
	exitDefects     = 1
	exitError       = 2
	exitInterrupted = 130
)

// Define function variables for dependency injection/mocking in tests.
var (
	osWriteFile = os.WriteFile
	// Allows mocking os.Exit in tests.
	osExit = os.Exit
)

func main() {
	defer handlePanic()

	// Set up a context that listens for interrupt signals (SIGINT, SIGTERM) for graceful shutdown.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	code := exitCode(cmd.Execute(ctx))
	stop()
	if code != exitClean {
		osExit(code)
	}
}

// exitCode maps the outcome of a command to the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return exitClean
	case errors.Is(err, context.Canceled):
		return exitInterrupted
	case errors.Is(err, cmd.ErrDefectsFound), errors.Is(err, cmd.ErrRunsDiffer):
		return exitDefects
	default:
		return exitError
	}
}

// handlePanic writes the panic and its stack to panicLogFile and exits.
func handlePanic() {
	if r := recover(); r != nil {
		// Ensure logs are flushed before proceeding.
		observability.Sync()

		panicMessage := fmt.Sprintf("panic: %v\n\n%s", r, debug.Stack())

		if err := osWriteFile(panicLogFile, []byte(panicMessage), 0644); err != nil {
			// If logging fails, print to stderr as a fallback.
			fmt.Fprintf(os.Stderr, "CRITICAL: Failed to write panic log: %v\n", err)
			fmt.Fprintf(os.Stderr, "Panic details:\n%s\n", panicMessage)
			osExit(exitError)
			return // Return facilitates testing when osExit is mocked.
		}

		fmt.Fprintf(os.Stderr, "wizprobe crashed: %v\nDetails logged to %s\n", r, panicLogFile)
		osExit(exitError)
	}
}
