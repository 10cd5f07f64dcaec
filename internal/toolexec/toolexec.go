// Package toolexec runs the external ELT and transform tools as subprocesses.
package toolexec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

// Sentinel errors. Wrapped in *ToolError.
var (
	ErrToolFailed = errors.New("tool exited with non-zero status")
	ErrTimeout    = errors.New("tool timed out")
)

// MaxOutputBytes bounds captured stdout and stderr per stream.
const MaxOutputBytes = 64 * 1024

// waitDelay bounds how long output pipes are drained after the process is killed.
const waitDelay = 2 * time.Second

// Command describes one tool invocation.
type Command struct {
	Name    string
	Args    []string
	Dir     string
	Env     []string // appended to the current process environment
	Timeout time.Duration
}

func (c Command) String() string {
	return strings.TrimSpace(c.Name + " " + strings.Join(c.Args, " "))
}

// Result holds the outcome of a finished process.
type Result struct {
	ExitCode int
	Stdout   string
	Stderr   string
	Duration time.Duration
}

// ToolError carries captured output with the failure.
type ToolError struct {
	Command string
	Result  Result
	Err     error
}

func (e *ToolError) Error() string {
	return fmt.Sprintf("%s: %v", e.Command, e.Err)
}

func (e *ToolError) Unwrap() error {
	return e.Err
}

// Runner executes commands.
type Runner interface {
	Run(ctx context.Context, cmd Command) (Result, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// NewExecRunner creates an ExecRunner.
func NewExecRunner() *ExecRunner {
	return &ExecRunner{}
}

// Run starts the command and waits for it. A non-zero exit returns a
// *ToolError wrapping ErrToolFailed; hitting cmd.Timeout returns one wrapping
// ErrTimeout. Cancellation of ctx itself returns ctx.Err().
func (r *ExecRunner) Run(ctx context.Context, cmd Command) (Result, error) {
	if cmd.Name == "" {
		return Result{}, fmt.Errorf("empty command")
	}

	cmdCtx := ctx
	if cmd.Timeout > 0 {
		var cancel context.CancelFunc
		cmdCtx, cancel = context.WithTimeout(ctx, cmd.Timeout)
		defer cancel()
	}

	c := exec.CommandContext(cmdCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = waitDelay
	if len(cmd.Env) > 0 {
		c.Env = append(os.Environ(), cmd.Env...)
	}

	stdout := &limitedBuffer{limit: MaxOutputBytes}
	stderr := &limitedBuffer{limit: MaxOutputBytes}
	c.Stdout = stdout
	c.Stderr = stderr

	start := time.Now()
	err := c.Run()
	res := Result{
		ExitCode: exitCode(c, err),
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if ctx.Err() != nil {
		return res, ctx.Err()
	}
	if errors.Is(cmdCtx.Err(), context.DeadlineExceeded) {
		return res, &ToolError{Command: cmd.String(), Result: res, Err: fmt.Errorf("%w after %s", ErrTimeout, cmd.Timeout)}
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return res, &ToolError{Command: cmd.String(), Result: res, Err: fmt.Errorf("%w: exit code %d", ErrToolFailed, res.ExitCode)}
		}
		return res, fmt.Errorf("start %s: %w", cmd.Name, err)
	}
	return res, nil
}

func exitCode(c *exec.Cmd, err error) int {
	if c.ProcessState != nil {
		return c.ProcessState.ExitCode()
	}
	if err != nil {
		return -1
	}
	return 0
}

// limitedBuffer keeps the last limit bytes written.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func (b *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	b.buf.Write(p)
	if over := b.buf.Len() - b.limit; over > 0 {
		b.buf.Next(over)
		b.truncated = true
	}
	return n, nil
}

func (b *limitedBuffer) String() string {
	if b.truncated {
		return "...(truncated)\n" + b.buf.String()
	}
	return b.buf.String()
}

var _ Runner = (*ExecRunner)(nil)
