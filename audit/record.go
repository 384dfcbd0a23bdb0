package audit

import "time"

// EventKind enumerates security event kinds.
type EventKind string

const (
	// EventPathViolation is emitted when a pre-flight path check fails.
	EventPathViolation EventKind = "PATH_VIOLATION"

	// EventFilesystemViolation is emitted when execution is denied by the
	// filesystem allow-list.
	EventFilesystemViolation EventKind = "FILESYSTEM_VIOLATION"

	// EventDangerousPattern is emitted per dangerous pattern found in a
	// script before execution.
	EventDangerousPattern EventKind = "DANGEROUS_PATTERN_DETECTED"

	// EventStaticAnalysisWarning is emitted when static analysis reports
	// vulnerabilities.
	EventStaticAnalysisWarning EventKind = "STATIC_ANALYSIS_WARNING"

	// EventExecutionError is emitted when a script fails to spawn or run.
	EventExecutionError EventKind = "EXECUTION_ERROR"

	// EventExecutionAnomaly is emitted automatically for failed or
	// unusually long runs.
	EventExecutionAnomaly EventKind = "EXECUTION_ANOMALY"

	// EventExcessiveRuntime is emitted when a completed run exceeded the
	// anomaly threshold.
	EventExcessiveRuntime EventKind = "EXCESSIVE_RUNTIME"

	// EventSuspiciousOutput is emitted when stderr exceeds the suspicious
	// output threshold.
	EventSuspiciousOutput EventKind = "SUSPICIOUS_OUTPUT"

	// EventSuspiciousPattern is emitted per dangerous pattern found in
	// captured output after execution.
	EventSuspiciousPattern EventKind = "SUSPICIOUS_PATTERN"

	// EventNetworkViolation is emitted when observed network activity
	// touched a disallowed domain or blocked port.
	EventNetworkViolation EventKind = "NETWORK_VIOLATION"
)

// FileNotAccessible is the placeholder hash recorded when the script file
// cannot be read at audit time.
const FileNotAccessible = "FILE_NOT_ACCESSIBLE"

// ExecutionRecord is the durable audit entry for one script run. Records are
// append-only and never mutated.
type ExecutionRecord struct {
	Timestamp     time.Time              `json:"timestamp"`
	RunID         string                 `json:"run_id"`
	ScriptPath    string                 `json:"script_path"`
	ScriptHash    string                 `json:"script_hash"`
	Args          []string               `json:"args"`
	ExitCode      *int                   `json:"exit_code"`
	StdoutHash    string                 `json:"stdout_hash"`
	StderrHash    string                 `json:"stderr_hash"`
	Duration      float64                `json:"duration_seconds"`
	Success       bool                   `json:"success"`
	ResourceUsage map[string]interface{} `json:"resource_usage,omitempty"`
}

// SecurityEvent is the durable audit entry for one anomaly.
type SecurityEvent struct {
	Timestamp  time.Time              `json:"timestamp"`
	Kind       EventKind              `json:"event"`
	Message    string                 `json:"message"`
	ScriptPath string                 `json:"script_path,omitempty"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

// Summary aggregates the two audit streams.
type Summary struct {
	Executions     int               `json:"executions"`
	SecurityEvents int               `json:"security_events"`
	EventsByKind   map[EventKind]int `json:"events_by_kind"`
}
