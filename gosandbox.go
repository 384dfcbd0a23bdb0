package gosandbox

import (
	"context"
	"path/filepath"
	"time"

	"github.com/victoralfred/gosandbox/analysis"
	"github.com/victoralfred/gosandbox/audit"
	"github.com/victoralfred/gosandbox/executor"
	"github.com/victoralfred/gosandbox/monitor"
	"github.com/victoralfred/gosandbox/policy"
)

// =============================================================================
// Core Types
// =============================================================================

// ScriptExecutor is the primary interface for sandboxed script execution.
// All script execution MUST go through this interface to ensure security
// controls are applied consistently.
type ScriptExecutor = executor.ScriptExecutor

// ExecutionOutcome contains the result of one script run.
type ExecutionOutcome = executor.ExecutionOutcome

// SecurityStats aggregates monitoring state and the audit trail.
type SecurityStats = executor.SecurityStats

// Builder creates configured ScriptExecutor instances.
type Builder = executor.Builder

// SecurityPolicy is the immutable, validated policy.
type SecurityPolicy = policy.SecurityPolicy

// AuditLog is the append-only audit trail.
type AuditLog = audit.Log

// ExecutionRecord is one durable audit entry for a run.
type ExecutionRecord = audit.ExecutionRecord

// SecurityEvent is one durable audit entry for an anomaly.
type SecurityEvent = audit.SecurityEvent

// AnalysisResult is the outcome of static script analysis.
type AnalysisResult = analysis.Result

// NetworkActivity is one observed network connection.
type NetworkActivity = monitor.Activity

// =============================================================================
// Error Variables
// =============================================================================

// Common errors returned by the library.
var (
	// ErrInvalidPolicy indicates a missing, malformed, or failing policy.
	ErrInvalidPolicy = policy.ErrInvalidPolicy

	// ErrScriptExecution indicates an unexpected spawn or run failure.
	ErrScriptExecution = executor.ErrScriptExecution

	// ErrTimeout indicates execution exceeded the timeout.
	ErrTimeout = executor.ErrTimeout

	// ErrResourceLimit indicates the OS refused a resource limit.
	ErrResourceLimit = executor.ErrResourceLimit

	// ErrFileSystemViolation indicates a path outside the allow-list.
	ErrFileSystemViolation = executor.ErrFileSystemViolation

	// ErrNetworkViolation indicates disallowed network activity.
	ErrNetworkViolation = executor.ErrNetworkViolation

	// ErrExecutorShutdown indicates the executor has been shut down.
	ErrExecutorShutdown = executor.ErrExecutorShutdown
)

// =============================================================================
// Factory Functions
// =============================================================================

// NewBuilder creates a new executor builder.
//
// Example:
//
//	exec, err := gosandbox.NewBuilder().
//	    WithPolicy(pol).
//	    WithAuditLog(auditLog).
//	    WithInterpreter("/usr/bin/python3").
//	    Build()
func NewBuilder() *Builder {
	return executor.NewBuilder()
}

// New creates a ScriptExecutor from a policy file and an audit directory
// with default collaborators. This is the simplest way to get started.
func New(policyPath, auditDir string) (ScriptExecutor, error) {
	pol, err := LoadPolicyFromPath(policyPath)
	if err != nil {
		return nil, err
	}

	auditLog, err := audit.NewLog(auditDir)
	if err != nil {
		return nil, err
	}

	return executor.NewBuilder().
		WithPolicy(pol).
		WithAuditLog(auditLog).
		Build()
}

// NewAuditLog creates an append-only audit log rooted at baseDir.
func NewAuditLog(baseDir string, opts ...audit.Option) (*AuditLog, error) {
	return audit.NewLog(baseDir, opts...)
}

// =============================================================================
// Policy Loading
// =============================================================================

// LoadPolicy loads and validates a security policy from a YAML file.
// The basePath is the directory containing the policy file; policyFile is
// resolved relative to it and cannot escape it.
//
// Example policy.yaml:
//
//	execution:
//	  timeout_seconds: 300
//	  cpu_seconds: 240
//	  memory_mb: 512
//	  file_size_mb: 10
//	  max_processes: 10
//	filesystem:
//	  allowed_path_prefixes: ["/sandbox/"]
//	  blocked_operations: ["delete", "chmod"]
//	network:
//	  allowed_domains: []
//	  blocked_ports: [22, 3389]
//	monitoring:
//	  alert_thresholds:
//	    execution_time: 250
func LoadPolicy(basePath, policyFile string) (*SecurityPolicy, error) {
	return policy.Load(basePath, policyFile)
}

// LoadPolicyFromPath loads a policy from a full file path.
func LoadPolicyFromPath(path string) (*SecurityPolicy, error) {
	return policy.Load(filepath.Dir(path), filepath.Base(path))
}

// ParsePolicy validates a policy document held in memory.
func ParsePolicy(data []byte) (*SecurityPolicy, error) {
	return policy.Parse(data)
}

// =============================================================================
// Convenience Functions
// =============================================================================

// Run is a convenience function for one-off script execution. For repeated
// executions, build a ScriptExecutor instead.
func Run(ctx context.Context, policyPath, auditDir, scriptPath string, args ...string) (*ExecutionOutcome, error) {
	exec, err := New(policyPath, auditDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Shutdown errors are non-critical in cleanup context.
		//nolint:errcheck
		_ = exec.Shutdown(context.Background())
	}()

	return exec.ExecuteScript(ctx, scriptPath, args, 0)
}

// RunWithTimeout is a convenience function with an explicit timeout override.
func RunWithTimeout(ctx context.Context, policyPath, auditDir, scriptPath string, timeout time.Duration, args ...string) (*ExecutionOutcome, error) {
	exec, err := New(policyPath, auditDir)
	if err != nil {
		return nil, err
	}
	defer func() {
		// Shutdown errors are non-critical in cleanup context.
		//nolint:errcheck
		_ = exec.Shutdown(context.Background())
	}()

	return exec.ExecuteScript(ctx, scriptPath, args, timeout)
}

// =============================================================================
// Version Information
// =============================================================================

// Version returns the library version.
func Version() string {
	return "1.0.0"
}
