//go:build !unix

package shellexec

import "os/exec"

// setProcessGroup is a no-op where process groups are unavailable; context
// cancellation still kills the direct child.
func setProcessGroup(cmd *exec.Cmd) {}
