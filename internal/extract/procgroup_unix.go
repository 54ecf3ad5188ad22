//go:build unix

package extract

import (
	"os/exec"
	"syscall"
)

// setProcessGroup places the command in its own process group so that a
// negative-pid signal reaches the command and every descendant.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func termGroup(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGTERM)
}

func killGroup(cmd *exec.Cmd) {
	signalGroup(cmd, syscall.SIGKILL)
}

func signalGroup(cmd *exec.Cmd, sig syscall.Signal) {
	if cmd.Process == nil {
		return
	}
	// Negative pid targets the whole group; fall back to the process itself
	// when the group is already gone.
	if err := syscall.Kill(-cmd.Process.Pid, sig); err != nil {
		cmd.Process.Kill()
	}
}
