// Package executor orchestrates sandboxed script runs: pre-execution policy
// checks, static analysis, resource-limit setup, monitored subprocess
// invocation, post-execution checks, and audit logging.
package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/victoralfred/gosandbox/analysis"
	"github.com/victoralfred/gosandbox/audit"
	internalexec "github.com/victoralfred/gosandbox/internal/exec"
	"github.com/victoralfred/gosandbox/monitor"
	"github.com/victoralfred/gosandbox/observability"
	"github.com/victoralfred/gosandbox/policy"
	"github.com/victoralfred/gosandbox/resilience"
	"github.com/victoralfred/gosandbox/sandbox"
)

// suspiciousStderrBytes is the stderr size beyond which a completed run is
// logged as suspicious output.
const suspiciousStderrBytes = 1000

// DefaultInterpreter runs scripts when no override is configured.
const DefaultInterpreter = "python3"

// ScriptExecutor runs untrusted scripts under policy enforcement.
// All script execution MUST go through this interface.
type ScriptExecutor interface {
	// ValidateScript is the pre-flight check: file exists and path allowed.
	// A denial logs a PATH_VIOLATION event and returns false, not an error.
	ValidateScript(ctx context.Context, scriptPath string) (bool, error)

	// ExecuteScript runs one script end to end. A zero timeoutOverride uses
	// the policy's execution timeout.
	ExecuteScript(ctx context.Context, scriptPath string, args []string, timeoutOverride time.Duration) (*ExecutionOutcome, error)

	// AnalyzeScriptSecurity statically analyzes a script without executing it.
	AnalyzeScriptSecurity(scriptPath string) (*analysis.Result, error)

	// GetSecurityStats aggregates monitor totals, recent alerts, and the
	// audit summary.
	GetSecurityStats() (*SecurityStats, error)

	// Shutdown waits for the in-flight run and rejects new ones.
	Shutdown(ctx context.Context) error
}

// executor is the default implementation.
type executor struct {
	policy      *policy.SecurityPolicy
	auditLog    *audit.Log
	analyzer    analysis.Analyzer
	monitor     monitor.Monitor
	watcher     *monitor.Watcher
	rateLimiter resilience.RateLimiter
	telemetry   observability.Telemetry
	isolator    sandbox.Isolator
	rules       *analysis.RuleSet
	runner      *internalexec.Runner
	logger      zerolog.Logger

	interpreter      string
	quarantineDir    string
	anomalyThreshold time.Duration

	// runMu serializes runs so at most one network watcher session exists
	// per executor.
	runMu sync.Mutex

	wg       sync.WaitGroup
	mu       sync.RWMutex // protects shutdown check and wg.Add
	shutdown int32
}

// Builder creates configured ScriptExecutor instances.
type Builder struct {
	policy           *policy.SecurityPolicy
	auditLog         *audit.Log
	analyzer         analysis.Analyzer
	monitor          monitor.Monitor
	watcher          *monitor.Watcher
	rateLimiter      resilience.RateLimiter
	telemetry        observability.Telemetry
	isolator         sandbox.Isolator
	rules            *analysis.RuleSet
	logger           zerolog.Logger
	interpreter      string
	quarantineDir    string
	anomalyThreshold time.Duration
}

// NewBuilder creates a new executor builder.
func NewBuilder() *Builder {
	return &Builder{
		logger:           zerolog.Nop(),
		interpreter:      DefaultInterpreter,
		quarantineDir:    sandbox.DefaultQuarantineDir,
		anomalyThreshold: audit.DefaultAnomalyThreshold,
	}
}

// WithPolicy sets the security policy. Required.
func (b *Builder) WithPolicy(p *policy.SecurityPolicy) *Builder {
	b.policy = p
	return b
}

// WithAuditLog sets the audit log. Required.
func (b *Builder) WithAuditLog(log *audit.Log) *Builder {
	b.auditLog = log
	return b
}

// WithAnalyzer sets the static analyzer.
func (b *Builder) WithAnalyzer(a analysis.Analyzer) *Builder {
	b.analyzer = a
	return b
}

// WithMonitor sets the security monitor.
func (b *Builder) WithMonitor(m monitor.Monitor) *Builder {
	b.monitor = m
	return b
}

// WithNetworkWatcher sets the network activity watcher.
func (b *Builder) WithNetworkWatcher(w *monitor.Watcher) *Builder {
	b.watcher = w
	return b
}

// WithRateLimiter sets the per-script rate limiter.
func (b *Builder) WithRateLimiter(limiter resilience.RateLimiter) *Builder {
	b.rateLimiter = limiter
	return b
}

// WithTelemetry sets the telemetry provider.
func (b *Builder) WithTelemetry(telemetry observability.Telemetry) *Builder {
	b.telemetry = telemetry
	return b
}

// WithIsolator sets the OS containment mechanism.
func (b *Builder) WithIsolator(i sandbox.Isolator) *Builder {
	b.isolator = i
	return b
}

// WithRuleSet sets the dangerous-pattern rules.
func (b *Builder) WithRuleSet(rules *analysis.RuleSet) *Builder {
	b.rules = rules
	return b
}

// WithLogger sets the structured logger.
func (b *Builder) WithLogger(logger zerolog.Logger) *Builder {
	b.logger = logger
	return b
}

// WithInterpreter overrides the script interpreter.
func (b *Builder) WithInterpreter(interpreter string) *Builder {
	b.interpreter = interpreter
	return b
}

// WithQuarantineDir overrides the quarantine working directory.
func (b *Builder) WithQuarantineDir(dir string) *Builder {
	b.quarantineDir = dir
	return b
}

// WithAnomalyThreshold overrides the excessive-runtime threshold.
func (b *Builder) WithAnomalyThreshold(d time.Duration) *Builder {
	b.anomalyThreshold = d
	return b
}

// Build creates the executor. The quarantine directory is created if absent.
func (b *Builder) Build() (ScriptExecutor, error) {
	if b.policy == nil {
		return nil, fmt.Errorf("building executor: policy is required")
	}
	if b.auditLog == nil {
		return nil, fmt.Errorf("building executor: audit log is required")
	}

	quarantine, err := sandbox.EnsureQuarantine(b.quarantineDir)
	if err != nil {
		return nil, fmt.Errorf("building executor: %w", err)
	}

	rules := b.rules
	if rules == nil {
		rules = analysis.DefaultRuleSet()
	}

	analyzer := b.analyzer
	if analyzer == nil {
		analyzer = analysis.NewHeuristicAnalyzer(rules)
	}

	mon := b.monitor
	if mon == nil {
		mon = monitor.NewStatsMonitor()
	}

	watcher := b.watcher
	if watcher == nil {
		watcher = monitor.NewWatcher()
	}

	isolator := b.isolator
	if isolator == nil {
		isolator = sandbox.NewRlimitIsolator()
	}

	telemetry := b.telemetry
	if telemetry == nil {
		telemetry = observability.NoopTelemetry()
	}

	return &executor{
		policy:           b.policy,
		auditLog:         b.auditLog,
		analyzer:         analyzer,
		monitor:          mon,
		watcher:          watcher,
		rateLimiter:      b.rateLimiter,
		telemetry:        telemetry,
		isolator:         isolator,
		rules:            rules,
		runner:           internalexec.NewRunner(),
		logger:           b.logger,
		interpreter:      b.interpreter,
		quarantineDir:    quarantine,
		anomalyThreshold: b.anomalyThreshold,
	}, nil
}

// ValidateScript implements ScriptExecutor.
func (e *executor) ValidateScript(ctx context.Context, scriptPath string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	if _, err := os.Stat(scriptPath); err != nil {
		if logErr := e.auditLog.LogSecurityEvent(audit.EventPathViolation,
			"script does not exist or is not accessible", scriptPath,
			map[string]interface{}{"error": err.Error()}); logErr != nil {
			return false, logErr
		}
		return false, nil
	}

	if !e.policy.IsPathAllowed(scriptPath) {
		if logErr := e.auditLog.LogSecurityEvent(audit.EventPathViolation,
			"script path is outside the allowed path prefixes", scriptPath,
			map[string]interface{}{"allowed_prefixes": e.policy.AllowedPathPrefixes()}); logErr != nil {
			return false, logErr
		}
		return false, nil
	}

	return true, nil
}

// ExecuteScript implements ScriptExecutor. Exactly one ExecutionRecord is
// written for every run that reaches the spawn attempt, and it is durable
// before any policy-violation error derived from that run is returned.
func (e *executor) ExecuteScript(ctx context.Context, scriptPath string, args []string, timeoutOverride time.Duration) (*ExecutionOutcome, error) {
	// Shutdown check and wg.Add must be atomic so Shutdown cannot start
	// waiting between them.
	e.mu.RLock()
	if atomic.LoadInt32(&e.shutdown) == 1 {
		e.mu.RUnlock()
		return nil, ErrExecutorShutdown
	}
	e.wg.Add(1)
	e.mu.RUnlock()
	defer e.wg.Done()

	// One run at a time: the quarantine directory is shared mutable state
	// and the network watcher session must never overlap another run's.
	e.runMu.Lock()
	defer e.runMu.Unlock()

	runID := uuid.New().String()

	ctx, endSpan := e.telemetry.StartSpan(ctx, "executor.ExecuteScript",
		observability.WithAttribute("script", scriptPath),
		observability.WithAttribute("run_id", runID),
	)
	defer endSpan()

	timeout := timeoutOverride
	if timeout == 0 {
		timeout = e.policy.Limits.Timeout
	}

	// Validating: existence, then the filesystem allow-list.
	if _, err := os.Stat(scriptPath); err != nil {
		if logErr := e.auditLog.LogSecurityEvent(audit.EventExecutionError,
			"script does not exist or is not accessible", scriptPath,
			map[string]interface{}{"run_id": runID, "error": err.Error()}); logErr != nil {
			return nil, logErr
		}
		return nil, NewExecutionError(scriptPath, err)
	}

	if !e.policy.IsPathAllowed(scriptPath) {
		if logErr := e.auditLog.LogSecurityEvent(audit.EventFilesystemViolation,
			"script path is outside the allowed path prefixes", scriptPath,
			map[string]interface{}{"run_id": runID}); logErr != nil {
			return nil, logErr
		}
		e.monitor.RecordViolation("filesystem", scriptPath)
		e.telemetry.RecordViolation(map[string]string{"kind": "filesystem"})
		return nil, NewFileSystemViolationError(scriptPath)
	}

	// Analyzing: dangerous patterns and static analysis are observability
	// signals, never execution blockers.
	analysisResult, err := e.preAnalyze(runID, scriptPath)
	if err != nil {
		return nil, err
	}

	if e.rateLimiter != nil {
		if err := e.rateLimiter.Wait(ctx, scriptPath); err != nil {
			return nil, NewRateLimitError(scriptPath, err)
		}
	}

	// ResourceSetup: the watcher session is owned by this call frame and
	// stopped on every exit path below.
	session := e.watcher.Watch(ctx)

	limits := sandbox.LimitsFromPolicy(e.policy)
	if err := e.isolator.Prepare(ctx, limits); err != nil {
		session.Stop()
		return nil, NewResourceLimitError(scriptPath, err)
	}

	// Running.
	execCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	env := sandbox.SecureEnvironment(e.quarantineDir)
	config := &internalexec.RunConfig{
		Binary:     e.interpreter,
		Args:       append([]string{scriptPath}, args...),
		Env:        internalexec.BuildEnv(env),
		WorkingDir: e.quarantineDir,
	}

	runResult, runErr := e.runner.Run(execCtx, config)

	if errors.Is(runErr, context.DeadlineExceeded) {
		session.Stop()
		return nil, e.handleTimeout(runID, scriptPath, args, timeout, runResult)
	}

	if runErr != nil {
		session.Stop()
		return nil, e.handleSpawnFailure(runID, scriptPath, args, runResult, runErr)
	}

	// PostCheck.
	activities := session.Stop()
	exitCode := runResult.ExitCode
	success := exitCode == 0
	usage := resourceUsage(runResult)

	if _, err := e.auditLog.LogExecution(&audit.Execution{
		RunID:         runID,
		ScriptPath:    scriptPath,
		Args:          args,
		ExitCode:      &exitCode,
		Stdout:        runResult.Stdout,
		Stderr:        runResult.Stderr,
		Duration:      runResult.Duration,
		Success:       success,
		ResourceUsage: usage,
	}); err != nil {
		return nil, err
	}

	e.postCheck(runID, scriptPath, runResult)

	if e.policy.ShouldAlert("execution_time", runResult.Duration.Seconds()) {
		e.monitor.Alert("execution_time", runResult.Duration.Seconds(), scriptPath)
	}

	e.monitor.RecordExecution(scriptPath, success, runResult.Duration, usage)
	e.telemetry.RecordExecution(map[string]string{"outcome": statusLabel(success)})
	e.telemetry.RecordDuration(runResult.Duration.Seconds(), map[string]string{"script": scriptPath})

	// Network validation runs last: the execution record above is already
	// durable, so a violation raised here never loses audit coverage.
	if violation := monitor.FirstViolation(activities, e.policy); violation != nil {
		details := map[string]interface{}{
			"run_id":      runID,
			"remote_addr": violation.RemoteAddr,
			"port":        violation.Port,
		}
		if violation.Domain != "" {
			details["domain"] = violation.Domain
		}
		if logErr := e.auditLog.LogSecurityEvent(audit.EventNetworkViolation,
			"observed network activity violates policy", scriptPath, details); logErr != nil {
			return nil, logErr
		}
		e.monitor.RecordViolation("network", scriptPath)
		e.telemetry.RecordViolation(map[string]string{"kind": "network"})
		return nil, NewNetworkViolationError(scriptPath,
			fmt.Sprintf("disallowed connection to %s:%d", violation.RemoteAddr, violation.Port))
	}

	return &ExecutionOutcome{
		RunID:           runID,
		Success:         success,
		Stdout:          runResult.Stdout,
		Stderr:          runResult.Stderr,
		ExitCode:        &exitCode,
		Duration:        runResult.Duration,
		ResourceUsage:   usage,
		NetworkActivity: activities,
		Analysis:        analysisResult,
		SecurityChecks: map[string]bool{
			CheckFilesystemValidated:     true,
			CheckNetworkMonitored:        true,
			CheckResourceLimitsApplied:   true,
			CheckStaticAnalysisPerformed: true,
		},
	}, nil
}

// AnalyzeScriptSecurity implements ScriptExecutor. Read-only and idempotent.
func (e *executor) AnalyzeScriptSecurity(scriptPath string) (*analysis.Result, error) {
	return e.analyzer.Analyze(scriptPath)
}

// GetSecurityStats implements ScriptExecutor.
func (e *executor) GetSecurityStats() (*SecurityStats, error) {
	summary, err := e.auditLog.Summary()
	if err != nil {
		return nil, fmt.Errorf("reading audit summary: %w", err)
	}

	return &SecurityStats{
		Monitoring:   e.monitor.Stats(),
		RecentAlerts: e.monitor.RecentAlerts(10),
		Audit:        summary,
	}, nil
}

// Shutdown implements ScriptExecutor.
func (e *executor) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	atomic.StoreInt32(&e.shutdown, 1)
	e.mu.Unlock()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// preAnalyze scans the script text and runs static analysis, logging one
// event per dangerous pattern and a warning when vulnerabilities are found.
func (e *executor) preAnalyze(runID, scriptPath string) (*analysis.Result, error) {
	if data, err := os.ReadFile(scriptPath); err == nil { // #nosec G304 -- path validated above
		for _, finding := range e.rules.Match(string(data)) {
			if logErr := e.auditLog.LogSecurityEvent(audit.EventDangerousPattern,
				fmt.Sprintf("dangerous pattern %q found in script", finding.Pattern), scriptPath,
				map[string]interface{}{
					"run_id":           runID,
					"rule":             finding.Rule,
					"line":             finding.Line,
					"severity":         string(finding.Severity),
					"rule_set_version": e.rules.Version,
				}); logErr != nil {
				return nil, logErr
			}
		}
	}

	result, err := e.analyzer.Analyze(scriptPath)
	if err != nil {
		// The analyzer contract is best-effort; a failure here still must
		// not block execution.
		e.logger.Warn().Err(err).Str("script", scriptPath).Msg("static analysis failed")
		result = &analysis.Result{}
	}

	if result.VulnerabilitiesFound > 0 {
		if logErr := e.auditLog.LogSecurityEvent(audit.EventStaticAnalysisWarning,
			fmt.Sprintf("static analysis found %d potential vulnerabilities", result.VulnerabilitiesFound),
			scriptPath,
			map[string]interface{}{
				"run_id":          runID,
				"vulnerabilities": result.VulnerabilitiesFound,
				"risk_level":      result.RiskLevel.String(),
			}); logErr != nil {
			return nil, logErr
		}
	}

	return result, nil
}

// handleTimeout records the failed run and builds the timeout error. Audit
// durability wins: a failed audit write surfaces instead of the timeout.
func (e *executor) handleTimeout(runID, scriptPath string, args []string, timeout time.Duration, runResult *internalexec.RunResult) error {
	duration := timeout
	if runResult != nil {
		duration = runResult.Duration
	}

	if _, err := e.auditLog.LogExecution(&audit.Execution{
		RunID:         runID,
		ScriptPath:    scriptPath,
		Args:          args,
		ExitCode:      nil,
		Duration:      duration,
		Success:       false,
		ResourceUsage: map[string]interface{}{"error": "timeout"},
	}); err != nil {
		return err
	}

	e.monitor.RecordExecution(scriptPath, false, duration, map[string]interface{}{"error": "timeout"})
	e.telemetry.RecordExecution(map[string]string{"outcome": "timeout"})

	return NewTimeoutError(scriptPath, timeout.String())
}

// handleSpawnFailure records the run with a null exit code, logs the
// EXECUTION_ERROR event, and wraps the cause.
func (e *executor) handleSpawnFailure(runID, scriptPath string, args []string, runResult *internalexec.RunResult, cause error) error {
	duration := time.Duration(0)
	if runResult != nil {
		duration = runResult.Duration
	}

	if _, err := e.auditLog.LogExecution(&audit.Execution{
		RunID:         runID,
		ScriptPath:    scriptPath,
		Args:          args,
		ExitCode:      nil,
		Duration:      duration,
		Success:       false,
		ResourceUsage: map[string]interface{}{"error": cause.Error()},
	}); err != nil {
		return err
	}

	if logErr := e.auditLog.LogSecurityEvent(audit.EventExecutionError,
		"script failed to spawn or run", scriptPath,
		map[string]interface{}{"run_id": runID, "error": cause.Error()}); logErr != nil {
		return logErr
	}

	e.monitor.RecordExecution(scriptPath, false, duration, nil)
	e.telemetry.RecordExecution(map[string]string{"outcome": "error"})

	return NewExecutionError(scriptPath, cause)
}

// postCheck runs the log-only checks on a completed run: excessive runtime,
// suspicious stderr volume, and dangerous patterns in captured output.
func (e *executor) postCheck(runID, scriptPath string, runResult *internalexec.RunResult) {
	logEvent := func(kind audit.EventKind, message string, details map[string]interface{}) {
		details["run_id"] = runID
		if err := e.auditLog.LogSecurityEvent(kind, message, scriptPath, details); err != nil {
			e.logger.Error().Err(err).Str("event", string(kind)).Msg("post-check audit write failed")
		}
	}

	if runResult.Duration > e.anomalyThreshold {
		logEvent(audit.EventExcessiveRuntime,
			fmt.Sprintf("run took %.1fs, over the %.0fs anomaly threshold",
				runResult.Duration.Seconds(), e.anomalyThreshold.Seconds()),
			map[string]interface{}{"duration_seconds": runResult.Duration.Seconds()})
	}

	if len(runResult.Stderr) > suspiciousStderrBytes {
		logEvent(audit.EventSuspiciousOutput,
			fmt.Sprintf("stderr size %d exceeds %d bytes", len(runResult.Stderr), suspiciousStderrBytes),
			map[string]interface{}{"stderr_bytes": len(runResult.Stderr)})
	}

	output := string(runResult.Stdout) + "\n" + string(runResult.Stderr)
	for _, finding := range e.rules.Match(output) {
		logEvent(audit.EventSuspiciousPattern,
			fmt.Sprintf("dangerous pattern %q found in output", finding.Pattern),
			map[string]interface{}{
				"rule":             finding.Rule,
				"severity":         string(finding.Severity),
				"rule_set_version": e.rules.Version,
			})
	}
}

// resourceUsage snapshots process accounting into the audit representation.
func resourceUsage(runResult *internalexec.RunResult) map[string]interface{} {
	usage := map[string]interface{}{
		"duration_seconds": runResult.Duration.Seconds(),
	}
	if state := runResult.ProcessState; state != nil {
		usage["user_time_seconds"] = state.UserTime.Seconds()
		usage["system_time_seconds"] = state.SystemTime.Seconds()
		usage["max_rss"] = state.MaxRSS
	}
	if runResult.Signal != 0 {
		usage["signal"] = runResult.Signal.String()
	}
	return usage
}

func statusLabel(success bool) string {
	if success {
		return "success"
	}
	return "failure"
}
