// Package policy loads, validates, and serves the security policy that
// governs script execution: run limits, filesystem allow-list, network
// allow/deny lists, and monitoring thresholds. A SecurityPolicy is immutable
// once built; reloading means building a new one.
package policy

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrInvalidPolicy is the sentinel matched by every policy Error.
var ErrInvalidPolicy = errors.New("invalid security policy")

// Error describes a policy document that is missing, malformed, or failing
// validation. Policy errors are fatal at construction and never recovered.
type Error struct {
	// Source is the policy file path, or "inline" for parsed bytes.
	Source string

	// Reason is a human-readable description of the failure.
	Reason string

	// Err is the underlying cause, if any.
	Err error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("policy %s: %s: %v", e.Source, e.Reason, e.Err)
	}
	return fmt.Sprintf("policy %s: %s", e.Source, e.Reason)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target matches this error kind.
func (e *Error) Is(target error) bool {
	return target == ErrInvalidPolicy
}

// EmptyAllowlistPolicy controls what an empty allow-list means for a
// resource class.
type EmptyAllowlistPolicy string

const (
	// EmptyAllowlistDeny treats an empty allow-list as "nothing allowed".
	EmptyAllowlistDeny EmptyAllowlistPolicy = "deny"

	// EmptyAllowlistAllow treats an empty allow-list as "everything allowed".
	EmptyAllowlistAllow EmptyAllowlistPolicy = "allow"
)

// ExecutionLimits are the validated per-run resource bounds.
type ExecutionLimits struct {
	// Timeout bounds wall-clock time.
	Timeout time.Duration

	// CPUTime bounds CPU seconds.
	CPUTime time.Duration

	// MemoryBytes bounds the address space.
	MemoryBytes int64

	// FileSizeBytes bounds created file size.
	FileSizeBytes int64

	// MaxProcesses bounds child processes and threads.
	MaxProcesses int
}

// SecurityPolicy is the canonical, immutable policy. All queries are pure
// and safe for concurrent use.
type SecurityPolicy struct {
	// Limits are the validated execution limits.
	Limits ExecutionLimits

	allowedPathPrefixes []string
	blockedOperations   map[string]struct{}
	allowedDomains      map[string]struct{}
	blockedPorts        map[int]struct{}
	alertThresholds     map[string]float64

	fsEmptyPolicy  EmptyAllowlistPolicy
	netEmptyPolicy EmptyAllowlistPolicy

	hash string
}

// Hash returns the hex SHA-256 of the source document, empty for policies
// built from parsed bytes without a file.
func (p *SecurityPolicy) Hash() string {
	return p.hash
}

// IsPathAllowed reports whether path starts with one of the allowed
// prefixes. With an empty allow-list the configured empty-allowlist policy
// decides; the default for filesystem is deny.
func (p *SecurityPolicy) IsPathAllowed(path string) bool {
	if len(p.allowedPathPrefixes) == 0 {
		return p.fsEmptyPolicy == EmptyAllowlistAllow
	}
	for _, prefix := range p.allowedPathPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsOperationBlocked reports whether a filesystem operation name is on the
// block-list.
func (p *SecurityPolicy) IsOperationBlocked(op string) bool {
	_, blocked := p.blockedOperations[op]
	return blocked
}

// IsDomainAllowed reports whether domain is on the allow-list. With an empty
// allow-list the configured empty-allowlist policy decides; the default for
// network is allow, which is the opposite polarity from filesystem. The
// asymmetry is configurable per resource class via empty_allowlist_policy.
func (p *SecurityPolicy) IsDomainAllowed(domain string) bool {
	if len(p.allowedDomains) == 0 {
		return p.netEmptyPolicy == EmptyAllowlistAllow
	}
	_, allowed := p.allowedDomains[domain]
	return allowed
}

// IsPortBlocked reports whether port is on the block-list.
func (p *SecurityPolicy) IsPortBlocked(port int) bool {
	_, blocked := p.blockedPorts[port]
	return blocked
}

// ShouldAlert reports whether a threshold is configured for metric and value
// meets or exceeds it.
func (p *SecurityPolicy) ShouldAlert(metric string, value float64) bool {
	threshold, ok := p.alertThresholds[metric]
	if !ok {
		return false
	}
	return value >= threshold
}

// AllowedPathPrefixes returns a copy of the filesystem allow-list.
func (p *SecurityPolicy) AllowedPathPrefixes() []string {
	out := make([]string, len(p.allowedPathPrefixes))
	copy(out, p.allowedPathPrefixes)
	return out
}

// compile validates the raw document and builds the canonical policy.
func compile(doc *Document, source string) (*SecurityPolicy, error) {
	s := doc.sections()

	if s.Execution == nil {
		return nil, &Error{Source: source, Reason: "missing required section: execution"}
	}
	if s.Filesystem == nil {
		return nil, &Error{Source: source, Reason: "missing required section: filesystem"}
	}
	if s.Network == nil {
		return nil, &Error{Source: source, Reason: "missing required section: network"}
	}
	if s.Monitoring == nil {
		return nil, &Error{Source: source, Reason: "missing required section: monitoring"}
	}

	// Every numeric limit must be positive. A zero or negative limit
	// invalidates the whole policy rather than defaulting.
	limits := map[string]int{
		"execution.timeout_seconds": s.Execution.TimeoutSeconds,
		"execution.cpu_seconds":     s.Execution.CPUSeconds,
		"execution.memory_mb":       s.Execution.MemoryMB,
		"execution.file_size_mb":    s.Execution.FileSizeMB,
		"execution.max_processes":   s.Execution.MaxProcesses,
	}
	for name, v := range limits {
		if v <= 0 {
			return nil, &Error{
				Source: source,
				Reason: fmt.Sprintf("%s must be positive, got %d", name, v),
			}
		}
	}

	fsEmpty, err := parseEmptyAllowlistPolicy(s.Filesystem.EmptyAllowlistPolicy, EmptyAllowlistDeny)
	if err != nil {
		return nil, &Error{Source: source, Reason: "filesystem.empty_allowlist_policy", Err: err}
	}
	netEmpty, err := parseEmptyAllowlistPolicy(s.Network.EmptyAllowlistPolicy, EmptyAllowlistAllow)
	if err != nil {
		return nil, &Error{Source: source, Reason: "network.empty_allowlist_policy", Err: err}
	}

	p := &SecurityPolicy{
		Limits: ExecutionLimits{
			Timeout:       time.Duration(s.Execution.TimeoutSeconds) * time.Second,
			CPUTime:       time.Duration(s.Execution.CPUSeconds) * time.Second,
			MemoryBytes:   int64(s.Execution.MemoryMB) * 1024 * 1024,
			FileSizeBytes: int64(s.Execution.FileSizeMB) * 1024 * 1024,
			MaxProcesses:  s.Execution.MaxProcesses,
		},
		allowedPathPrefixes: append([]string(nil), s.Filesystem.AllowedPathPrefixes...),
		blockedOperations:   toSet(s.Filesystem.BlockedOperations),
		allowedDomains:      toSet(s.Network.AllowedDomains),
		blockedPorts:        toIntSet(s.Network.BlockedPorts),
		alertThresholds:     make(map[string]float64, len(s.Monitoring.AlertThresholds)),
		fsEmptyPolicy:       fsEmpty,
		netEmptyPolicy:      netEmpty,
	}
	for k, v := range s.Monitoring.AlertThresholds {
		p.alertThresholds[k] = v
	}

	return p, nil
}

func parseEmptyAllowlistPolicy(s string, def EmptyAllowlistPolicy) (EmptyAllowlistPolicy, error) {
	switch EmptyAllowlistPolicy(s) {
	case "":
		return def, nil
	case EmptyAllowlistDeny:
		return EmptyAllowlistDeny, nil
	case EmptyAllowlistAllow:
		return EmptyAllowlistAllow, nil
	default:
		return "", fmt.Errorf("must be %q or %q, got %q", EmptyAllowlistDeny, EmptyAllowlistAllow, s)
	}
}

func toSet(items []string) map[string]struct{} {
	set := make(map[string]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}

func toIntSet(items []int) map[int]struct{} {
	set := make(map[int]struct{}, len(items))
	for _, it := range items {
		set[it] = struct{}{}
	}
	return set
}
