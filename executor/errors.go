package executor

import (
	"errors"
	"fmt"
)

// Sentinel errors for common conditions.
var (
	// ErrScriptExecution indicates an unexpected failure during spawn or run.
	ErrScriptExecution = errors.New("script execution failed")

	// ErrTimeout indicates the script exceeded its wall-clock timeout.
	ErrTimeout = errors.New("script timed out")

	// ErrResourceLimit indicates the OS refused a requested resource limit.
	ErrResourceLimit = errors.New("resource limit could not be applied")

	// ErrFileSystemViolation indicates the script path is outside the
	// allowed prefixes.
	ErrFileSystemViolation = errors.New("filesystem access denied by policy")

	// ErrNetworkViolation indicates observed network activity touched a
	// disallowed domain or blocked port.
	ErrNetworkViolation = errors.New("network access denied by policy")

	// ErrRateLimited indicates the per-script rate limit was exceeded.
	ErrRateLimited = errors.New("rate limit exceeded")

	// ErrExecutorShutdown indicates the executor is shut down.
	ErrExecutorShutdown = errors.New("executor shutdown")
)

// ErrorCode provides structured error classification.
type ErrorCode string

const (
	// ErrCodeExecutionFailed indicates a spawn or run failure.
	ErrCodeExecutionFailed ErrorCode = "EXECUTION_FAILED"

	// ErrCodeTimeout indicates timeout.
	ErrCodeTimeout ErrorCode = "TIMEOUT"

	// ErrCodeResourceLimit indicates a resource limit failure.
	ErrCodeResourceLimit ErrorCode = "RESOURCE_LIMIT"

	// ErrCodeFileSystemViolation indicates a filesystem policy violation.
	ErrCodeFileSystemViolation ErrorCode = "FILESYSTEM_VIOLATION"

	// ErrCodeNetworkViolation indicates a network policy violation.
	ErrCodeNetworkViolation ErrorCode = "NETWORK_VIOLATION"

	// ErrCodeRateLimited indicates rate limiting.
	ErrCodeRateLimited ErrorCode = "RATE_LIMITED"

	// ErrCodeInternalError indicates an internal error.
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// SandboxError provides detailed error information for a failed run.
type SandboxError struct {
	// Op is the operation that failed.
	Op string

	// Script is the script being executed.
	Script string

	// Err is the underlying error.
	Err error

	// Code is the structured error code.
	Code ErrorCode

	// Details provides human-readable details.
	Details string
}

// Error returns the error message.
func (e *SandboxError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s: %s", e.Op, e.Script, e.Details)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Script, e.Err)
}

// Unwrap returns the underlying error.
func (e *SandboxError) Unwrap() error {
	return e.Err
}

// Is reports whether the error matches the target.
func (e *SandboxError) Is(target error) bool {
	return errors.Is(e.Err, target)
}

// Error constructors for consistent error creation.

// NewTimeoutError creates a timeout error.
func NewTimeoutError(script string, timeout string) error {
	return &SandboxError{
		Op:      "execute",
		Script:  script,
		Err:     ErrTimeout,
		Code:    ErrCodeTimeout,
		Details: fmt.Sprintf("execution exceeded timeout of %s", timeout),
	}
}

// NewResourceLimitError creates a resource limit error.
func NewResourceLimitError(script string, cause error) error {
	return &SandboxError{
		Op:      "resource_setup",
		Script:  script,
		Err:     ErrResourceLimit,
		Code:    ErrCodeResourceLimit,
		Details: fmt.Sprintf("applying resource limits: %v", cause),
	}
}

// NewFileSystemViolationError creates a filesystem violation error.
func NewFileSystemViolationError(script string) error {
	return &SandboxError{
		Op:      "validate",
		Script:  script,
		Err:     ErrFileSystemViolation,
		Code:    ErrCodeFileSystemViolation,
		Details: "script path is outside the allowed path prefixes",
	}
}

// NewNetworkViolationError creates a network violation error.
func NewNetworkViolationError(script, details string) error {
	return &SandboxError{
		Op:      "post_check",
		Script:  script,
		Err:     ErrNetworkViolation,
		Code:    ErrCodeNetworkViolation,
		Details: details,
	}
}

// NewExecutionError creates a generic execution error wrapping its cause.
func NewExecutionError(script string, cause error) error {
	return &SandboxError{
		Op:     "execute",
		Script: script,
		Err:    fmt.Errorf("%w: %v", ErrScriptExecution, cause),
		Code:   ErrCodeExecutionFailed,
	}
}

// NewRateLimitError creates a rate limit error.
func NewRateLimitError(script string, cause error) error {
	return &SandboxError{
		Op:      "rate_limit",
		Script:  script,
		Err:     ErrRateLimited,
		Code:    ErrCodeRateLimited,
		Details: fmt.Sprintf("rate limit wait aborted: %v", cause),
	}
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	var sbErr *SandboxError
	if errors.As(err, &sbErr) {
		return sbErr.Code
	}
	return ErrCodeInternalError
}
