// Package gosandbox provides a sandboxed execution environment for
// untrusted scripts.
//
// GoSandbox runs third-party or machine-generated scripts as child processes
// under enforced resource, filesystem, and network constraints, and records a
// tamper-evident audit trail of every execution and security-relevant event.
//
// # Key Features
//
//   - Policy-as-code configuration via YAML: execution limits, filesystem
//     allow-list, network allow/deny lists, monitoring thresholds
//   - OS resource ceilings (CPU time, address space, file size, processes)
//     applied before every spawn
//   - Sanitized child environments and a quarantine working directory
//   - Append-only JSONL audit streams with content-hash integrity fields
//   - Heuristic static analysis and per-run network activity monitoring
//   - OpenTelemetry tracing and Prometheus counters on the execution path
//
// # Basic Usage
//
//	pol, err := gosandbox.LoadPolicy("/etc/gosandbox", "policy.yaml")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	auditLog, _ := gosandbox.NewAuditLog("/var/log/gosandbox")
//
//	exec, err := gosandbox.NewBuilder().
//	    WithPolicy(pol).
//	    WithAuditLog(auditLog).
//	    Build()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer exec.Shutdown(context.Background())
//
//	outcome, err := exec.ExecuteScript(ctx, "/sandbox/hello.py", nil, 0)
//
// # Security Model
//
// A script must live under one of the policy's allowed path prefixes.
// Resource limits from the policy are applied before the interpreter spawns,
// the child environment is rebuilt from a sanitized base, and network
// activity observed during the run is validated against the policy after the
// process exits. Checks that only inform (dangerous-pattern scan, static
// analysis, output heuristics) log security events without blocking; checks
// that protect (path allow-list, resource limits, timeout, network policy)
// return errors after the audit record is durably written.
//
// # File I/O
//
// Policy and audit file operations use github.com/victoralfred/gowritter/safepath
// for secure path handling.
//
// # Package Structure
//
//   - gosandbox: Main entry point and convenience functions
//   - executor: Run orchestration and the ScriptExecutor interface
//   - policy: YAML policy loading, validation, and queries
//   - audit: Append-only execution and security-event streams
//   - analysis: Dangerous-pattern rules and heuristic static analysis
//   - monitor: Execution statistics and network activity watching
//   - sandbox: Resource limits, sanitized environments, quarantine
//   - resilience: Per-script rate limiting
//   - observability: OpenTelemetry metrics and tracing
//   - config: Configuration management
package gosandbox
