// Package exec provides the internal subprocess wrapper.
// This is the ONLY package in the entire module that imports os/exec.
// All script invocation MUST go through this package.
package exec

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	osexec "os/exec"
	"syscall"
	"time"
)

// Runner executes scripts using os/exec.CommandContext.
// This is the sole abstraction for process invocation.
type Runner struct{}

// NewRunner creates a new script runner.
func NewRunner() *Runner {
	return &Runner{}
}

// RunConfig contains configuration for running a script.
type RunConfig struct {
	// Binary is the absolute path to the interpreter.
	Binary string

	// Args are the interpreter arguments (script path first, then script args).
	Args []string

	// Env is the complete child environment. Never inherited implicitly.
	Env []string

	// WorkingDir is the working directory (the quarantine directory).
	WorkingDir string

	// Stdin provides input to the script.
	Stdin io.Reader
}

// RunResult contains the result of a completed subprocess.
type RunResult struct {
	// ExitCode is the process exit code. -1 if the process never exited.
	ExitCode int

	// Signal is the signal that terminated the process, if any.
	Signal syscall.Signal

	// Stdout contains captured standard output.
	Stdout []byte

	// Stderr contains captured standard error.
	Stderr []byte

	// Duration is the wall clock time of execution.
	Duration time.Duration

	// ProcessState contains the OS process state, nil if spawn failed.
	ProcessState *ProcessState
}

// ProcessState contains OS-level process accounting.
type ProcessState struct {
	Pid        int
	UserTime   time.Duration
	SystemTime time.Duration
	MaxRSS     int64
}

// Run executes a script with the given context and configuration.
// The context MUST have a deadline set for timeout enforcement.
//
// A process that spawned and exited is a completed run regardless of its
// exit code: Run returns a nil error and the exit code in the result. Run
// returns an error only when the process could not be spawned, or when the
// context expired and the process was killed (context.DeadlineExceeded).
func (r *Runner) Run(ctx context.Context, config *RunConfig) (*RunResult, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	if _, ok := ctx.Deadline(); !ok {
		return nil, fmt.Errorf("context must have a deadline for timeout enforcement")
	}

	// G204: the interpreter path and script path are validated against policy
	// before reaching this point. We use CommandContext with separate
	// binary/args (not shell execution) which prevents command injection.
	// #nosec G204 -- binary path and arguments are validated upstream
	cmd := osexec.CommandContext(ctx, config.Binary, config.Args...)

	cmd.Env = config.Env
	if config.WorkingDir != "" {
		cmd.Dir = config.WorkingDir
	}
	if config.Stdin != nil {
		cmd.Stdin = config.Stdin
	}

	var stdoutBuf, stderrBuf bytes.Buffer
	cmd.Stdout = &stdoutBuf
	cmd.Stderr = &stderrBuf

	// New process group so the timeout kill reaches forked children too.
	cmd.SysProcAttr = defaultSysProcAttr()

	start := time.Now()
	err := cmd.Run()
	duration := time.Since(start)

	result := &RunResult{
		ExitCode: -1,
		Duration: duration,
		Stdout:   stdoutBuf.Bytes(),
		Stderr:   stderrBuf.Bytes(),
	}

	if cmd.ProcessState != nil {
		result.ExitCode = cmd.ProcessState.ExitCode()
		result.ProcessState = &ProcessState{
			Pid:        cmd.ProcessState.Pid(),
			UserTime:   cmd.ProcessState.UserTime(),
			SystemTime: cmd.ProcessState.SystemTime(),
			MaxRSS:     extractMaxRSS(cmd.ProcessState),
		}
		if sig, ok := extractSignal(cmd.ProcessState.Sys()); ok {
			result.Signal = sig
		}
	}

	// The deadline kill surfaces as a generic "signal: killed" error; report
	// it as the context error so callers can tell timeout from spawn failure.
	if ctx.Err() == context.DeadlineExceeded {
		return result, context.DeadlineExceeded
	}

	if err != nil {
		var exitErr *osexec.ExitError
		if errors.As(err, &exitErr) {
			// Ran to completion with a non-zero exit code.
			return result, nil
		}
		return result, err
	}

	return result, nil
}

// BuildEnv creates an environment slice from a map.
func BuildEnv(env map[string]string) []string {
	result := make([]string, 0, len(env))
	for k, v := range env {
		result = append(result, fmt.Sprintf("%s=%s", k, v))
	}
	return result
}
