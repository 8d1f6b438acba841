// Package upstream owns the upstream MCP server subprocess: spawning it
// with its stdio attached to the pump and surfacing its exit status.
// Restart-on-failure is the outer supervisor's job, not this package's.
package upstream

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"

	"go.uber.org/zap"
)

// Process is a running upstream MCP server.
type Process struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	stdout io.ReadCloser
	logger *zap.Logger
}

// Start launches argv with the current environment. The credential and
// any upstream configuration ride along in the environment untouched.
// The child's stderr is inherited so its diagnostics never mix with the
// protocol stream on stdout.
func Start(argv []string, logger *zap.Logger) (*Process, error) {
	if len(argv) == 0 {
		return nil, errors.New("upstream: empty command")
	}

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = os.Environ()
	cmd.Stderr = os.Stderr

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, fmt.Errorf("upstream stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("upstream stdout pipe: %w", err)
	}

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start upstream %q: %w", argv[0], err)
	}

	logger.Info("upstream process started",
		zap.String("command", argv[0]),
		zap.Int("pid", cmd.Process.Pid),
	)

	return &Process{cmd: cmd, stdin: stdin, stdout: stdout, logger: logger}, nil
}

// Stdin is the pipe the pump forwards allowed requests into.
func (p *Process) Stdin() io.WriteCloser { return p.stdin }

// Stdout is the pipe the pump relays responses from.
func (p *Process) Stdout() io.ReadCloser { return p.stdout }

// Wait blocks until the subprocess exits and returns its exit code.
func (p *Process) Wait() int {
	err := p.cmd.Wait()
	if err == nil {
		return 0
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		p.logger.Warn("upstream process exited",
			zap.Int("exit_code", code),
		)
		return code
	}
	p.logger.Error("upstream process wait failed", zap.Error(err))
	return 1
}
