package process

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
)

var ErrEmptyCommand = errors.New("command is empty")

// Spec describes a command to launch.
type Spec struct {
	Name string
	Args []string
	Dir  string
	Env  []string // nil inherits the daemon's environment
}

// String renders the command line for logs.
func (s Spec) String() string {
	return strings.TrimSpace(s.Name + " " + strings.Join(s.Args, " "))
}

// Handle is a running child process with its standard streams attached.
//
// Stdout and Stderr must be read to EOF before Wait is called; Wait closes
// them once the process exits.
type Handle interface {
	PID() int
	Stdin() io.WriteCloser
	Stdout() io.Reader
	Stderr() io.Reader
	// Wait blocks until the process exits. It may be called more than once.
	Wait() error
	// Kill terminates the process and its group immediately.
	Kill() error
}

// Launcher starts child processes.
type Launcher interface {
	Launch(ctx context.Context, spec Spec) (Handle, error)
}

// ExecLauncher launches processes with os/exec. ctx only bounds the launch
// itself; the child outlives it.
type ExecLauncher struct{}

func (ExecLauncher) Launch(ctx context.Context, spec Spec) (Handle, error) {
	if strings.TrimSpace(spec.Name) == "" {
		return nil, ErrEmptyCommand
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cmd := exec.Command(spec.Name, spec.Args...)
	cmd.Dir = spec.Dir
	if spec.Env != nil {
		cmd.Env = spec.Env
	}
	configureSysProcAttr(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", spec.Name, err)
	}
	return &execHandle{cmd: cmd, stdin: stdin, stdout: stdout, stderr: stderr}, nil
}

type execHandle struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.Reader
	stderr io.Reader

	waitOnce sync.Once
	waitErr  error
}

func (h *execHandle) PID() int              { return h.cmd.Process.Pid }
func (h *execHandle) Stdin() io.WriteCloser { return h.stdin }
func (h *execHandle) Stdout() io.Reader     { return h.stdout }
func (h *execHandle) Stderr() io.Reader     { return h.stderr }

func (h *execHandle) Wait() error {
	h.waitOnce.Do(func() { h.waitErr = h.cmd.Wait() })
	return h.waitErr
}

func (h *execHandle) Kill() error {
	if err := killTree(h.cmd.Process.Pid); err != nil {
		return h.cmd.Process.Kill()
	}
	return nil
}
