// SPDX-License-Identifier: MPL-2.0

//go:build !windows

package watch

import (
	"fmt"
	"syscall"
	"testing"
)

func TestIsFatalFsnotifyError(t *testing.T) {
	t.Parallel()

	for _, err := range []error{syscall.ENOSPC, syscall.EMFILE, syscall.ENFILE, fmt.Errorf("inotify_add_watch: %w", syscall.ENOSPC)} {
		if !isFatalFsnotifyError(err) {
			t.Errorf("isFatalFsnotifyError(%v) = false, want true", err)
		}
	}
	for _, err := range []error{syscall.EACCES, syscall.ENOENT, fmt.Errorf("queue overflow")} {
		if isFatalFsnotifyError(err) {
			t.Errorf("isFatalFsnotifyError(%v) = true, want false", err)
		}
	}
}
