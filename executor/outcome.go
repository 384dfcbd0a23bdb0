package executor

import (
	"time"

	"github.com/victoralfred/gosandbox/analysis"
	"github.com/victoralfred/gosandbox/audit"
	"github.com/victoralfred/gosandbox/monitor"
)

// Security check flags reported in every ExecutionOutcome.
const (
	CheckFilesystemValidated     = "filesystem_validated"
	CheckNetworkMonitored        = "network_monitored"
	CheckResourceLimitsApplied   = "resource_limits_applied"
	CheckStaticAnalysisPerformed = "static_analysis_performed"
)

// ExecutionOutcome is the value returned for one completed script run. It is
// exclusively owned by the caller; the executor retains no reference.
type ExecutionOutcome struct {
	// RunID is the unique identifier shared with the audit record.
	RunID string

	// Success is true iff the script exited with code 0.
	Success bool

	// Stdout is the captured standard output.
	Stdout []byte

	// Stderr is the captured standard error.
	Stderr []byte

	// ExitCode is the process exit code, nil if the process never spawned.
	ExitCode *int

	// Duration is the wall clock time of the run.
	Duration time.Duration

	// ResourceUsage is the post-run accounting snapshot.
	ResourceUsage map[string]interface{}

	// NetworkActivity is the activity observed during the run.
	NetworkActivity []monitor.Activity

	// Analysis is the pre-execution static analysis result.
	Analysis *analysis.Result

	// SecurityChecks flags which checks ran for this execution.
	SecurityChecks map[string]bool
}

// SecurityStats aggregates live monitoring state and the audit trail.
type SecurityStats struct {
	// Monitoring is the monitor's running totals.
	Monitoring monitor.Stats `json:"monitoring_stats"`

	// RecentAlerts are the latest raised alerts, newest last.
	RecentAlerts []monitor.Alert `json:"recent_alerts"`

	// Audit summarizes both audit streams.
	Audit *audit.Summary `json:"audit_summary"`
}
