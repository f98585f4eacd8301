// Copyright 2026 The Keel Authors
// SPDX-License-Identifier: Apache-2.0

package cli

import "fmt"

// ExitError signals a non-zero exit code without printing an extra
// error message: the command has already written its own output. keel
// calc uses it when the server answers with a declared exception.
type ExitError struct {
	Code int
}

func (e *ExitError) Error() string {
	return fmt.Sprintf("exit code %d", e.Code)
}

// ExitCode returns the exit code. It satisfies process.ExitCoder.
func (e *ExitError) ExitCode() int {
	return e.Code
}
