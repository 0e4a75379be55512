//go:build !unix

package invoker

import "os/exec"

// isolateProcessGroup keeps the exec.CommandContext default of killing the child only.
func isolateProcessGroup(cmd *exec.Cmd) {}
