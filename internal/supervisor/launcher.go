package supervisor

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// Launcher isolates OS process management so supervision logic stays
// deterministic and testable without spawning real processes.
type Launcher interface {
	Launch(name string, argv []string) (pid int, err error)
	Signal(pid int, sig syscall.Signal) error
	Alive(pid int) bool
}

// ExecLauncher launches detached child processes via os/exec.
type ExecLauncher struct{}

func (ExecLauncher) Launch(name string, argv []string) (int, error) {
	if len(argv) == 0 {
		return 0, fmt.Errorf("service %s has no launch command", name)
	}
	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	pid := cmd.Process.Pid
	// Reap the child when it exits so it never lingers as a zombie.
	go func() { _ = cmd.Wait() }()
	return pid, nil
}

func (ExecLauncher) Signal(pid int, sig syscall.Signal) error {
	return syscall.Kill(pid, sig)
}

// Alive probes the pid with signal 0.
func (ExecLauncher) Alive(pid int) bool {
	return syscall.Kill(pid, 0) == nil
}
