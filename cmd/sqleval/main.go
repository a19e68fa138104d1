// Command sqleval evaluates SQL-generating agents against a labeled corpus of
// analytics questions.
//
// Usage:
//
//	sqleval run [--difficulty simple|medium|complex] [--model M] [--benchmark]
//	sqleval models
//	sqleval config
//	sqleval serve
//
// Exit status is 0 when every case passes, 1 when any case falls below the
// threshold and 2 on configuration or corpus errors.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sqleval/sqleval/internal/driver"
)

// Build information, set with -ldflags "-X main.version=...".
var (
	version = "dev"
	commit  = "none"
)

// exitError carries a process exit code out of a command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err == nil {
		return fmt.Sprintf("exit status %d", e.code)
	}
	return e.err.Error()
}

func (e *exitError) Unwrap() error { return e.err }

func configError(err error) error { return &exitError{code: driver.ExitConfigError, err: err} }

func main() {
	os.Exit(execute(os.Args[1:]))
}

func execute(args []string) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := buildRootCmd()
	root.SetArgs(args)
	err := root.ExecuteContext(ctx)
	if err == nil {
		return driver.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		if ee.err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", ee.err)
		}
		return ee.code
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return driver.ExitConfigError
}
