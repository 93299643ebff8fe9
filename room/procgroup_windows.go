//go:build windows

package room

import (
	"fmt"
	"os/exec"
	"unsafe"

	"golang.org/x/sys/windows"
)

// windowsProcessGroup assigns every adopted child to a single Job Object
// configured with KILL_ON_JOB_CLOSE, so closing the job handle (or this
// process exiting) tears down the whole child tree.
type windowsProcessGroup struct {
	job windows.Handle
}

// NewProcessGroup returns a ProcessGroup appropriate for the current
// platform.
func NewProcessGroup() ProcessGroup {
	return &windowsProcessGroup{}
}

func (g *windowsProcessGroup) ensureJob() error {
	if g.job != 0 {
		return nil
	}

	job, err := windows.CreateJobObject(nil, nil)
	if err != nil {
		return fmt.Errorf("room: CreateJobObject: %w", err)
	}

	info := windows.JOBOBJECT_EXTENDED_LIMIT_INFORMATION{
		BasicLimitInformation: windows.JOBOBJECT_BASIC_LIMIT_INFORMATION{
			LimitFlags: windows.JOB_OBJECT_LIMIT_KILL_ON_JOB_CLOSE,
		},
	}
	if _, err := windows.SetInformationJobObject(
		job,
		windows.JobObjectExtendedLimitInformation,
		uintptr(unsafe.Pointer(&info)),
		uint32(unsafe.Sizeof(info)),
	); err != nil {
		windows.CloseHandle(job)
		return fmt.Errorf("room: SetInformationJobObject: %w", err)
	}

	g.job = job
	return nil
}

func (g *windowsProcessGroup) Prepare(cmd *exec.Cmd) {
	// Job assignment happens in Adopt, after the process handle exists.
}

func (g *windowsProcessGroup) Adopt(cmd *exec.Cmd) error {
	if cmd.Process == nil {
		return fmt.Errorf("room: Adopt called before process started")
	}
	if err := g.ensureJob(); err != nil {
		return err
	}

	handle, err := windows.OpenProcess(windows.PROCESS_ALL_ACCESS, false, uint32(cmd.Process.Pid))
	if err != nil {
		return fmt.Errorf("room: OpenProcess: %w", err)
	}
	defer windows.CloseHandle(handle)

	if err := windows.AssignProcessToJobObject(g.job, handle); err != nil {
		return fmt.Errorf("room: AssignProcessToJobObject: %w", err)
	}
	return nil
}

func (g *windowsProcessGroup) Kill() error {
	if g.job == 0 {
		return nil
	}
	err := windows.CloseHandle(g.job)
	g.job = 0
	return err
}
