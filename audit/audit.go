// Package audit provides the append-only audit trail for script execution:
// one JSONL stream of execution records and one of security events, both
// flushed on every write.
package audit

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/victoralfred/gowritter/safepath"
)

const (
	executionLogFile = "executions.log"
	securityLogFile  = "security_events.log"

	// DefaultAnomalyThreshold marks completed runs as anomalous regardless
	// of configured alert thresholds.
	DefaultAnomalyThreshold = 250 * time.Second
)

// Log is the append-only audit logger. Writes are serialized and durable
// before the call returns; a write that cannot be persisted surfaces as an
// error, never a silent drop.
type Log struct {
	safePath         *safepath.SafePath
	mu               sync.Mutex
	logger           zerolog.Logger
	anomalyThreshold time.Duration
}

// Option configures the audit log.
type Option func(*Log)

// WithAnomalyThreshold overrides the duration beyond which a completed run
// is logged as an anomaly.
func WithAnomalyThreshold(d time.Duration) Option {
	return func(l *Log) {
		l.anomalyThreshold = d
	}
}

// WithLogger sets the structured logger that mirrors durable records.
func WithLogger(logger zerolog.Logger) Option {
	return func(l *Log) {
		l.logger = logger
	}
}

// NewLog creates an audit log rooted at baseDir. Both streams live under it
// and cannot escape it.
func NewLog(baseDir string, opts ...Option) (*Log, error) {
	sp, err := safepath.New(baseDir)
	if err != nil {
		return nil, fmt.Errorf("creating audit base path: %w", err)
	}

	l := &Log{
		safePath:         sp,
		logger:           zerolog.Nop(),
		anomalyThreshold: DefaultAnomalyThreshold,
	}

	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

// Execution describes one finished (or failed) script run to be recorded.
type Execution struct {
	RunID         string
	ScriptPath    string
	Args          []string
	ExitCode      *int
	Stdout        []byte
	Stderr        []byte
	Duration      time.Duration
	Success       bool
	ResourceUsage map[string]interface{}
}

// LogExecution appends one execution record. The script content hash is
// computed at call time; if the file has vanished the placeholder hash is
// recorded instead. A failed run or one longer than the anomaly threshold
// additionally appends an EXECUTION_ANOMALY event.
func (l *Log) LogExecution(e *Execution) (*ExecutionRecord, error) {
	record := &ExecutionRecord{
		Timestamp:     time.Now().UTC(),
		RunID:         e.RunID,
		ScriptPath:    e.ScriptPath,
		ScriptHash:    hashFile(e.ScriptPath),
		Args:          e.Args,
		ExitCode:      e.ExitCode,
		StdoutHash:    hashBytes(e.Stdout),
		StderrHash:    hashBytes(e.Stderr),
		Duration:      e.Duration.Seconds(),
		Success:       e.Success,
		ResourceUsage: e.ResourceUsage,
	}

	if err := l.append(executionLogFile, record); err != nil {
		return nil, fmt.Errorf("writing execution record: %w", err)
	}

	l.logger.Info().
		Str("run_id", record.RunID).
		Str("script", record.ScriptPath).
		Str("script_hash", shortHash(record.ScriptHash)).
		Str("status", statusLabel(record.Success)).
		Float64("duration_seconds", record.Duration).
		Msg("execution recorded")

	if !e.Success || e.Duration > l.anomalyThreshold {
		err := l.LogSecurityEvent(EventExecutionAnomaly,
			fmt.Sprintf("anomalous execution: success=%t duration=%.1fs", e.Success, e.Duration.Seconds()),
			e.ScriptPath,
			map[string]interface{}{
				"run_id":           e.RunID,
				"success":          e.Success,
				"duration_seconds": e.Duration.Seconds(),
			})
		if err != nil {
			return nil, err
		}
	}

	return record, nil
}

// LogSecurityEvent appends one security event.
func (l *Log) LogSecurityEvent(kind EventKind, message, scriptPath string, details map[string]interface{}) error {
	event := &SecurityEvent{
		Timestamp:  time.Now().UTC(),
		Kind:       kind,
		Message:    message,
		ScriptPath: scriptPath,
		Details:    details,
	}

	if err := l.append(securityLogFile, event); err != nil {
		return fmt.Errorf("writing security event: %w", err)
	}

	l.logger.Warn().
		Str("event", string(kind)).
		Str("script", scriptPath).
		Msg(message)

	return nil
}

// append serializes one record as a JSON line and flushes it.
func (l *Log) append(file string, v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling audit record: %w", err)
	}
	data = append(data, '\n')

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.safePath.AppendFile(file, data, 0o644)
}

// hashFile returns the hex SHA-256 of the file's bytes, or the placeholder
// when the file cannot be read.
func hashFile(path string) string {
	data, err := os.ReadFile(path) // #nosec G304 -- path already validated against policy
	if err != nil {
		return FileNotAccessible
	}
	return hashBytes(data)
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return fmt.Sprintf("%x", sum)
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func statusLabel(success bool) string {
	if success {
		return "SUCCESS"
	}
	return "FAILED"
}
