//go:build unix

package builder

import (
	"os"
	"syscall"
)

// killGroup kills the whole process group so node-gyp's compiler children
// do not outlive a canceled build.
func killGroup(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGKILL)
}
