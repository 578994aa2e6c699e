// SPDX-License-Identifier: MPL-2.0

package types

import (
	"os"
	"syscall"
)

// FromProcessState returns the exit code of a finished process. A process
// terminated by a signal is reported as 128 plus the signal number, the
// way a POSIX shell reports it.
func FromProcessState(state *os.ProcessState) ExitCode {
	if code := state.ExitCode(); code >= 0 {
		return ExitCode(code)
	}
	if ws, ok := state.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return ExitCode(128 + int(ws.Signal()))
	}
	return 1
}
