// bidcheck drives the bid-evaluation dashboard end to end: it exercises the
// API pipeline, observes the rendered pages in Chrome and prints a
// pass/fail table.
//
// Usage:
//
//	bidcheck run [--scenario=e2e|smoke|full|<file>] [--role=<role>] [--enable=<stage>] [--disable=<stage>]
//	bidcheck stages [--scenario=<name|file>]
//	bidcheck serve
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
)

// version is set at build time via -ldflags.
var version = "dev"

// exitError carries a non-zero exit code for a run whose outcome has
// already been reported.
type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "bidcheck:", err)
		code := 1
		var ee *exitError
		if errors.As(err, &ee) {
			code = ee.code
		}
		os.Exit(code)
	}
}
