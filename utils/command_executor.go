package utils

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
)

var (
	// ErrSpawn means the process could not be started at all.
	ErrSpawn = errors.New("failed to spawn subprocess")
	// ErrSubprocess means the process ran but exited unsuccessfully.
	ErrSubprocess = errors.New("subprocess failed")
)

// CommandRunner runs build tools on behalf of the caches. Tests substitute
// their own implementation.
type CommandRunner interface {
	// Output runs name in dir and returns its captured stdout.
	Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error)
	// RunToFile runs name in dir with stdout redirected into stdoutPath.
	RunToFile(ctx context.Context, dir string, stdoutPath string, name string, args ...string) error
}

// CommandExecutor runs real subprocesses.
type CommandExecutor struct {
	// Env is appended to the inherited environment.
	Env []string
}

// NewCommandExecutor creates a new command executor instance
func NewCommandExecutor() *CommandExecutor {
	return &CommandExecutor{}
}

func (ce *CommandExecutor) command(ctx context.Context, dir string, name string, args ...string) *exec.Cmd {
	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Dir = dir
	if len(ce.Env) > 0 {
		cmd.Env = append(os.Environ(), ce.Env...)
	}
	return cmd
}

// Output implements CommandRunner.
func (ce *CommandExecutor) Output(ctx context.Context, dir string, name string, args ...string) ([]byte, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty command", ErrSpawn)
	}

	cmd := ce.command(ctx, dir, name, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return stdout.Bytes(), classifyRunError(ctx, name, err, stderr.String())
	}
	return stdout.Bytes(), nil
}

// RunToFile implements CommandRunner.
func (ce *CommandExecutor) RunToFile(ctx context.Context, dir string, stdoutPath string, name string, args ...string) error {
	if name == "" {
		return fmt.Errorf("%w: empty command", ErrSpawn)
	}

	out, err := os.Create(stdoutPath)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", stdoutPath, err)
	}

	cmd := ce.command(ctx, dir, name, args...)
	var stderr bytes.Buffer
	cmd.Stdout = out
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	closeErr := out.Close()
	if runErr != nil {
		return classifyRunError(ctx, name, runErr, stderr.String())
	}
	if closeErr != nil {
		return fmt.Errorf("failed to close %s: %w", stdoutPath, closeErr)
	}
	return nil
}

func classifyRunError(ctx context.Context, name string, err error, stderr string) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%s: %w", name, ctxErr)
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		detail := strings.TrimSpace(stderr)
		if detail == "" {
			detail = exitErr.Error()
		}
		return fmt.Errorf("%w: %s: %s", ErrSubprocess, name, detail)
	}
	return fmt.Errorf("%w: %s: %v", ErrSpawn, name, err)
}
