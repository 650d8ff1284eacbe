package whisperx

import (
	"errors"
	"os/exec"
	"syscall"
	"time"

	"golang.org/x/sys/unix"
)

// processWaitDelay bounds how long Wait keeps reading pipes after the process
// group was killed.
const processWaitDelay = 5 * time.Second

// isolate starts cmd in its own process group. Cancelling the command context
// kills the whole group, including the python child that uvx launches.
func isolate(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
	cmd.Cancel = func() error { return killGroup(cmd) }
	cmd.WaitDelay = processWaitDelay
}

// killGroup sends SIGKILL to the process group led by cmd.
func killGroup(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return nil
	}
	err := unix.Kill(-cmd.Process.Pid, unix.SIGKILL)
	if errors.Is(err, unix.ESRCH) {
		return cmd.Process.Kill()
	}
	return err
}
