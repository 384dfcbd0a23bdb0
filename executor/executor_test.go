//go:build unix

package executor

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/time/rate"

	"github.com/victoralfred/gosandbox/analysis"
	"github.com/victoralfred/gosandbox/audit"
	"github.com/victoralfred/gosandbox/monitor"
	"github.com/victoralfred/gosandbox/policy"
	"github.com/victoralfred/gosandbox/sandbox"
)

// mockAnalyzer lets tests control static analysis results.
type mockAnalyzer struct {
	analyzeFunc func(scriptPath string) (*analysis.Result, error)
}

func (m *mockAnalyzer) Analyze(scriptPath string) (*analysis.Result, error) {
	if m.analyzeFunc != nil {
		return m.analyzeFunc(scriptPath)
	}
	return &analysis.Result{}, nil
}

// mockRateLimiter lets tests force rate-limit outcomes.
type mockRateLimiter struct {
	waitFunc func(ctx context.Context, script string) error
}

func (m *mockRateLimiter) Allow(string) bool { return true }

func (m *mockRateLimiter) Wait(ctx context.Context, script string) error {
	if m.waitFunc != nil {
		return m.waitFunc(ctx, script)
	}
	return nil
}

func (m *mockRateLimiter) SetLimit(string, rate.Limit, int) {}

func testPolicy(t *testing.T, allowedPrefix string) *policy.SecurityPolicy {
	t.Helper()
	doc := fmt.Sprintf(`
execution:
  timeout_seconds: 300
  cpu_seconds: 240
  memory_mb: 512
  file_size_mb: 10
  max_processes: 10
filesystem:
  allowed_path_prefixes: [%s]
network:
  allowed_domains: []
  blocked_ports: [22]
monitoring:
  alert_thresholds:
    execution_time: 250
`, allowedPrefix)

	p, err := policy.Parse([]byte(doc))
	if err != nil {
		t.Fatalf("Parse failed: %v", err)
	}
	return p
}

// testHarness wires an executor over real collaborators in temp directories.
type testHarness struct {
	exec       ScriptExecutor
	auditLog   *audit.Log
	scriptsDir string
}

func newTestHarness(t *testing.T, opts ...func(*Builder)) *testHarness {
	t.Helper()

	scriptsDir := t.TempDir()
	auditLog, err := audit.NewLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}

	b := NewBuilder().
		WithPolicy(testPolicy(t, scriptsDir+"/")).
		WithAuditLog(auditLog).
		WithInterpreter("/bin/sh").
		WithIsolator(sandbox.NoopIsolator{}).
		WithQuarantineDir(filepath.Join(t.TempDir(), "quarantine")).
		WithNetworkWatcher(monitor.NewWatcher(monitor.WithSampler(nil)))

	for _, opt := range opts {
		opt(b)
	}

	exec, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(func() {
		//nolint:errcheck
		_ = exec.Shutdown(context.Background())
	})

	return &testHarness{exec: exec, auditLog: auditLog, scriptsDir: scriptsDir}
}

func (h *testHarness) writeScript(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(h.scriptsDir, name)
	if err := os.WriteFile(path, []byte(content), 0o755); err != nil {
		t.Fatalf("Writing script: %v", err)
	}
	return path
}

func TestBuild_RequiresPolicyAndAuditLog(t *testing.T) {
	if _, err := NewBuilder().Build(); err == nil {
		t.Error("Expected error without policy")
	}

	auditLog, err := audit.NewLog(t.TempDir())
	if err != nil {
		t.Fatalf("NewLog failed: %v", err)
	}
	if _, err := NewBuilder().WithAuditLog(auditLog).Build(); err == nil {
		t.Error("Expected error without policy")
	}
	if _, err := NewBuilder().WithPolicy(testPolicy(t, "/sandbox/")).
		WithQuarantineDir(filepath.Join(t.TempDir(), "q")).Build(); err == nil {
		t.Error("Expected error without audit log")
	}
}

func TestExecuteScript_Success(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "hello.sh", "echo hello\n")

	outcome, err := h.exec.ExecuteScript(context.Background(), script, nil, 0)
	if err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}

	if !outcome.Success {
		t.Error("Expected success")
	}
	if outcome.RunID == "" {
		t.Error("Expected a run ID")
	}
	if outcome.ExitCode == nil || *outcome.ExitCode != 0 {
		t.Errorf("Expected exit code 0, got %v", outcome.ExitCode)
	}
	if strings.TrimSpace(string(outcome.Stdout)) != "hello" {
		t.Errorf("Expected stdout 'hello', got %q", outcome.Stdout)
	}
	for _, check := range []string{
		CheckFilesystemValidated,
		CheckNetworkMonitored,
		CheckResourceLimitsApplied,
		CheckStaticAnalysisPerformed,
	} {
		if !outcome.SecurityChecks[check] {
			t.Errorf("Expected security check %s to be recorded", check)
		}
	}

	history, err := h.auditLog.ExecutionHistory(script, 10)
	if err != nil {
		t.Fatalf("ExecutionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 execution record, got %d", len(history))
	}
	if history[0].RunID != outcome.RunID {
		t.Errorf("Record run ID %s does not match outcome %s", history[0].RunID, outcome.RunID)
	}
	if !history[0].Success {
		t.Error("Expected a successful record")
	}
}

func TestExecuteScript_ScriptArgs(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "args.sh", `echo "$1-$2"`+"\n")

	outcome, err := h.exec.ExecuteScript(context.Background(), script, []string{"a", "b"}, 0)
	if err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}
	if got := strings.TrimSpace(string(outcome.Stdout)); got != "a-b" {
		t.Errorf("Expected 'a-b', got %q", got)
	}
}

func TestExecuteScript_NonZeroExit(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "fail.sh", "exit 3\n")

	outcome, err := h.exec.ExecuteScript(context.Background(), script, nil, 0)
	if err != nil {
		t.Fatalf("A completed run must not return an error, got %v", err)
	}

	if outcome.Success {
		t.Error("Expected failure for non-zero exit")
	}
	if outcome.ExitCode == nil || *outcome.ExitCode != 3 {
		t.Errorf("Expected exit code 3, got %v", outcome.ExitCode)
	}

	// A failed run triggers the audit anomaly event.
	events, err := h.auditLog.SecurityEvents(audit.EventExecutionAnomaly, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 anomaly event, got %d", len(events))
	}
}

func TestExecuteScript_PathOutsideAllowedPrefixes(t *testing.T) {
	h := newTestHarness(t)

	outside := filepath.Join(t.TempDir(), "outside.sh")
	if err := os.WriteFile(outside, []byte("echo no\n"), 0o755); err != nil {
		t.Fatalf("Writing script: %v", err)
	}

	_, err := h.exec.ExecuteScript(context.Background(), outside, nil, 0)
	if !errors.Is(err, ErrFileSystemViolation) {
		t.Fatalf("Expected ErrFileSystemViolation, got %v", err)
	}
	if code := GetErrorCode(err); code != ErrCodeFileSystemViolation {
		t.Errorf("Expected code %s, got %s", ErrCodeFileSystemViolation, code)
	}

	events, err := h.auditLog.SecurityEvents(audit.EventFilesystemViolation, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 filesystem violation event, got %d", len(events))
	}

	// Denied before spawn: no execution record.
	history, err := h.auditLog.ExecutionHistory("", 10)
	if err != nil {
		t.Fatalf("ExecutionHistory failed: %v", err)
	}
	if len(history) != 0 {
		t.Errorf("Expected no execution records, got %d", len(history))
	}
}

func TestExecuteScript_MissingScript(t *testing.T) {
	h := newTestHarness(t)

	missing := filepath.Join(h.scriptsDir, "missing.sh")
	_, err := h.exec.ExecuteScript(context.Background(), missing, nil, 0)
	if !errors.Is(err, ErrScriptExecution) {
		t.Fatalf("Expected ErrScriptExecution, got %v", err)
	}

	events, err := h.auditLog.SecurityEvents(audit.EventExecutionError, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Errorf("Expected 1 execution error event, got %d", len(events))
	}
}

func TestExecuteScript_Timeout(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "slow.sh", "sleep 10\n")

	_, err := h.exec.ExecuteScript(context.Background(), script, nil, 200*time.Millisecond)
	if !errors.Is(err, ErrTimeout) {
		t.Fatalf("Expected ErrTimeout, got %v", err)
	}
	if code := GetErrorCode(err); code != ErrCodeTimeout {
		t.Errorf("Expected code %s, got %s", ErrCodeTimeout, code)
	}

	// The timed-out run is still recorded, with a null exit code.
	history, err := h.auditLog.ExecutionHistory(script, 10)
	if err != nil {
		t.Fatalf("ExecutionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 execution record, got %d", len(history))
	}
	record := history[0]
	if record.Success {
		t.Error("Expected a failed record")
	}
	if record.ExitCode != nil {
		t.Errorf("Expected null exit code for a killed run, got %v", *record.ExitCode)
	}
	if record.ResourceUsage["error"] != "timeout" {
		t.Errorf("Expected timeout marker in resource usage, got %v", record.ResourceUsage)
	}
}

func TestExecuteScript_DangerousPatternEvents(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "sneaky.sh", "# import os\n# eval(x)\necho ok\n")

	outcome, err := h.exec.ExecuteScript(context.Background(), script, nil, 0)
	if err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}
	if !outcome.Success {
		t.Error("Pattern findings must not block execution")
	}

	events, err := h.auditLog.SecurityEvents(audit.EventDangerousPattern, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 dangerous pattern events, got %d", len(events))
	}

	warnings, err := h.auditLog.SecurityEvents(audit.EventStaticAnalysisWarning, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(warnings) != 1 {
		t.Errorf("Expected 1 static analysis warning, got %d", len(warnings))
	}
	if outcome.Analysis == nil || outcome.Analysis.VulnerabilitiesFound != 2 {
		t.Errorf("Expected 2 vulnerabilities in outcome analysis, got %+v", outcome.Analysis)
	}
}

func TestExecuteScript_ExcessiveRuntimeEvent(t *testing.T) {
	h := newTestHarness(t, func(b *Builder) {
		b.WithAnomalyThreshold(50 * time.Millisecond)
	})
	script := h.writeScript(t, "lingering.sh", "sleep 0.2\necho done\n")

	outcome, err := h.exec.ExecuteScript(context.Background(), script, nil, 0)
	if err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}
	if !outcome.Success {
		t.Error("A slow run over the anomaly threshold must still succeed")
	}

	events, err := h.auditLog.SecurityEvents(audit.EventExcessiveRuntime, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 excessive runtime event, got %d", len(events))
	}
	if events[0].Details["duration_seconds"] == nil {
		t.Error("Expected the observed duration in event details")
	}
}

func TestExecuteScript_SuspiciousOutputEvent(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "chatty.sh", `n=0
while [ $n -lt 50 ]; do
  echo "0123456789012345678901234567890123456789" >&2
  n=$((n+1))
done
`)

	outcome, err := h.exec.ExecuteScript(context.Background(), script, nil, 0)
	if err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}
	if !outcome.Success {
		t.Error("Large stderr must not block execution")
	}
	if len(outcome.Stderr) <= suspiciousStderrBytes {
		t.Fatalf("Test script produced only %d stderr bytes", len(outcome.Stderr))
	}

	events, err := h.auditLog.SecurityEvents(audit.EventSuspiciousOutput, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 suspicious output event, got %d", len(events))
	}
}

func TestExecuteScript_SuspiciousPatternInOutput(t *testing.T) {
	h := newTestHarness(t)
	// The pattern is assembled at runtime so the script text itself stays
	// clean and only the captured output trips the rules.
	script := h.writeScript(t, "emitter.sh", "echo 'eva''l(x)'\n")

	outcome, err := h.exec.ExecuteScript(context.Background(), script, nil, 0)
	if err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}
	if !outcome.Success {
		t.Error("Patterns in output must not block execution")
	}

	patterns, err := h.auditLog.SecurityEvents(audit.EventDangerousPattern, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(patterns) != 0 {
		t.Errorf("Expected no pre-execution pattern events, got %d", len(patterns))
	}

	events, err := h.auditLog.SecurityEvents(audit.EventSuspiciousPattern, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 suspicious pattern event, got %d", len(events))
	}
	if events[0].Details["rule"] != "dynamic-eval" {
		t.Errorf("Expected the dynamic-eval rule, got %v", events[0].Details["rule"])
	}
}

func TestExecuteScript_NetworkViolation(t *testing.T) {
	sampler := func(ctx context.Context) []monitor.Activity {
		return []monitor.Activity{{RemoteAddr: "10.0.0.1:22", Port: 22}}
	}

	h := newTestHarness(t, func(b *Builder) {
		b.WithNetworkWatcher(monitor.NewWatcher(
			monitor.WithSampler(sampler),
			monitor.WithSampleInterval(10*time.Millisecond),
		))
	})
	script := h.writeScript(t, "netty.sh", "sleep 0.3\n")

	_, err := h.exec.ExecuteScript(context.Background(), script, nil, 0)
	if !errors.Is(err, ErrNetworkViolation) {
		t.Fatalf("Expected ErrNetworkViolation, got %v", err)
	}

	// The execution record is durable before the violation error is raised.
	history, err := h.auditLog.ExecutionHistory(script, 10)
	if err != nil {
		t.Fatalf("ExecutionHistory failed: %v", err)
	}
	if len(history) != 1 {
		t.Fatalf("Expected 1 execution record, got %d", len(history))
	}

	events, err := h.auditLog.SecurityEvents(audit.EventNetworkViolation, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 1 {
		t.Fatalf("Expected 1 network violation event, got %d", len(events))
	}
	if events[0].Details["port"] != float64(22) {
		t.Errorf("Expected port 22 in event details, got %v", events[0].Details["port"])
	}
}

func TestExecuteScript_RateLimited(t *testing.T) {
	limitErr := errors.New("tokens exhausted")
	h := newTestHarness(t, func(b *Builder) {
		b.WithRateLimiter(&mockRateLimiter{
			waitFunc: func(ctx context.Context, script string) error { return limitErr },
		})
	})
	script := h.writeScript(t, "limited.sh", "echo ok\n")

	_, err := h.exec.ExecuteScript(context.Background(), script, nil, 0)
	if !errors.Is(err, ErrRateLimited) {
		t.Fatalf("Expected ErrRateLimited, got %v", err)
	}
	if code := GetErrorCode(err); code != ErrCodeRateLimited {
		t.Errorf("Expected code %s, got %s", ErrCodeRateLimited, code)
	}
}

func TestValidateScript(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "valid.sh", "echo ok\n")

	ok, err := h.exec.ValidateScript(context.Background(), script)
	if err != nil {
		t.Fatalf("ValidateScript failed: %v", err)
	}
	if !ok {
		t.Error("Expected a script under the allowed prefix to validate")
	}

	ok, err = h.exec.ValidateScript(context.Background(), "/etc/passwd")
	if err != nil {
		t.Fatalf("ValidateScript failed: %v", err)
	}
	if ok {
		t.Error("Expected a path outside the allowed prefixes to be denied")
	}

	ok, err = h.exec.ValidateScript(context.Background(), filepath.Join(h.scriptsDir, "missing.sh"))
	if err != nil {
		t.Fatalf("ValidateScript failed: %v", err)
	}
	if ok {
		t.Error("Expected a missing script to be denied")
	}

	events, err := h.auditLog.SecurityEvents(audit.EventPathViolation, 10)
	if err != nil {
		t.Fatalf("SecurityEvents failed: %v", err)
	}
	if len(events) != 2 {
		t.Errorf("Expected 2 path violation events, got %d", len(events))
	}
}

func TestAnalyzeScriptSecurity_UsesInjectedAnalyzer(t *testing.T) {
	want := &analysis.Result{VulnerabilitiesFound: 7, RiskLevel: analysis.RiskHigh}
	h := newTestHarness(t, func(b *Builder) {
		b.WithAnalyzer(&mockAnalyzer{
			analyzeFunc: func(string) (*analysis.Result, error) { return want, nil },
		})
	})

	got, err := h.exec.AnalyzeScriptSecurity("/sandbox/x.py")
	if err != nil {
		t.Fatalf("AnalyzeScriptSecurity failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected the injected analyzer's result, got %+v", got)
	}
}

func TestGetSecurityStats(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "ok.sh", "echo ok\n")

	if _, err := h.exec.ExecuteScript(context.Background(), script, nil, 0); err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}

	stats, err := h.exec.GetSecurityStats()
	if err != nil {
		t.Fatalf("GetSecurityStats failed: %v", err)
	}

	if stats.Monitoring.TotalExecutions != 1 {
		t.Errorf("Expected 1 total execution, got %d", stats.Monitoring.TotalExecutions)
	}
	if stats.Monitoring.SuccessfulExecutions != 1 {
		t.Errorf("Expected 1 successful execution, got %d", stats.Monitoring.SuccessfulExecutions)
	}
	if stats.Audit == nil || stats.Audit.Executions != 1 {
		t.Errorf("Expected 1 audited execution, got %+v", stats.Audit)
	}
}

func TestShutdown_RejectsNewRuns(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "late.sh", "echo late\n")

	if err := h.exec.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown failed: %v", err)
	}

	if _, err := h.exec.ExecuteScript(context.Background(), script, nil, 0); !errors.Is(err, ErrExecutorShutdown) {
		t.Errorf("Expected ErrExecutorShutdown, got %v", err)
	}
	if _, err := h.exec.ExecuteScript(context.Background(), script, nil, 0); !errors.Is(err, ErrExecutorShutdown) {
		t.Errorf("Shutdown must be permanent, got %v", err)
	}
}

func TestExecuteScript_TimeoutOverrideZeroUsesPolicy(t *testing.T) {
	h := newTestHarness(t)
	script := h.writeScript(t, "quick.sh", "echo quick\n")

	// Policy timeout is 300s; a quick script finishes well inside it.
	outcome, err := h.exec.ExecuteScript(context.Background(), script, nil, 0)
	if err != nil {
		t.Fatalf("ExecuteScript failed: %v", err)
	}
	if !outcome.Success {
		t.Error("Expected success under the policy timeout")
	}
}
