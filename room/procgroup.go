package room

import "os/exec"

// ProcessGroup supervises one child process tree: overlay children are
// launched into it so that killing the group reliably kills every
// descendant, even ones the child itself spawned.
//
// A fresh ProcessGroup is created per StartHost/StartGuest and torn down
// with the runtime; it is never reused across runtimes run serially.
type ProcessGroup interface {
	// Prepare configures cmd (via its platform-specific SysProcAttr) so
	// that, once started, the process belongs to this group.
	Prepare(cmd *exec.Cmd)

	// Adopt records cmd's started process as a group member.
	Adopt(cmd *exec.Cmd) error

	// Kill terminates every process in the group: SIGTERM then SIGKILL on
	// Unix, job-object termination on Windows.
	Kill() error
}
