// SPDX-License-Identifier: MPL-2.0

package types

import (
	"os/exec"
	"runtime"
	"testing"
)

func TestFromProcessState(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("needs a POSIX shell")
	}

	tests := []struct {
		name   string
		script string
		want   ExitCode
	}{
		{"success", "exit 0", 0},
		{"exit code", "exit 3", 3},
		{"SIGTERM", "kill -TERM $$", 143},
		{"SIGKILL", "kill -KILL $$", 137},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			cmd := exec.Command("/bin/sh", "-c", tt.script)
			_ = cmd.Run() //nolint:errcheck // the exit status is read from ProcessState
			if cmd.ProcessState == nil {
				t.Fatal("process did not run")
			}
			if got := FromProcessState(cmd.ProcessState); got != tt.want {
				t.Errorf("FromProcessState() = %d, want %d", got, tt.want)
			}
		})
	}
}
