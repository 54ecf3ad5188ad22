//go:build windows

package extract

import "os/exec"

// Process groups are a Unix concept; on Windows only the immediate process is
// killed. Browser children may linger until their own timeouts fire.
func setProcessGroup(cmd *exec.Cmd) {}

func termGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}

func killGroup(cmd *exec.Cmd) {
	if cmd.Process != nil {
		cmd.Process.Kill()
	}
}
