// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package process

import (
	"fmt"
	"io"
	"os"
)

// ExitCoder is an error that carries its own exit status. Commands
// return one when a non-zero exit is an expected outcome they have
// already reported.
type ExitCoder interface {
	error
	ExitCode() int
}

// Exit terminates the process for the error returned by run(). A nil
// error exits 0; an ExitCoder exits with its code and prints nothing;
// any other error is printed to stderr and exits 1.
func Exit(err error) {
	os.Exit(report(os.Stderr, err))
}

// Fatal writes "error: err" to stderr and exits with code 1. Use it in
// main() for errors from run() where the structured logger may not be
// initialized.
func Fatal(err error) {
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
	os.Exit(1)
}

// report writes err to w as Exit would and returns the exit code.
func report(w io.Writer, err error) int {
	if err == nil {
		return 0
	}
	if coder, ok := err.(ExitCoder); ok {
		return coder.ExitCode()
	}
	fmt.Fprintf(w, "error: %v\n", err)
	return 1
}
