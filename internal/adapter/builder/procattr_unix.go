//go:build unix && !linux

package builder

import "syscall"

// sysProcAttr starts the package manager and node-gyp in their own process
// group so a canceled build also kills the compilers they spawn.
func sysProcAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Setpgid: true,
	}
}
