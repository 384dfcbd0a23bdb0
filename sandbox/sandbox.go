// Package sandbox provides OS-level containment for script execution:
// resource limits, sanitized environments, and the quarantine working
// directory.
package sandbox

import (
	"context"

	"github.com/victoralfred/gosandbox/policy"
)

// Isolator prepares OS-level containment before a script is spawned. The
// default implementation applies rlimits process-wide; stronger isolation
// (namespaces, cgroups, seccomp) can be supplied by implementing this
// interface.
type Isolator interface {
	// Prepare applies containment for an imminent run.
	Prepare(ctx context.Context, limits Limits) error

	// Name identifies the isolation mechanism for audit records.
	Name() string
}

// RlimitIsolator applies resource limits via setrlimit. Limits are applied to
// the calling process and inherited by the child; on platforms without rlimit
// support it degrades to a no-op.
type RlimitIsolator struct{}

// NewRlimitIsolator creates the default rlimit-based isolator.
func NewRlimitIsolator() *RlimitIsolator {
	return &RlimitIsolator{}
}

// Prepare implements Isolator.
func (i *RlimitIsolator) Prepare(ctx context.Context, limits Limits) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return ApplyLimits(limits)
}

// Name implements Isolator.
func (i *RlimitIsolator) Name() string {
	return "rlimit"
}

// NoopIsolator applies no containment. Useful in tests and on platforms where
// process-wide limits would constrain the host.
type NoopIsolator struct{}

// Prepare implements Isolator.
func (NoopIsolator) Prepare(_ context.Context, _ Limits) error {
	return nil
}

// Name implements Isolator.
func (NoopIsolator) Name() string {
	return "noop"
}

// LimitsFromPolicy converts validated policy limits into OS resource limits.
func LimitsFromPolicy(p *policy.SecurityPolicy) Limits {
	return Limits{
		CPUSeconds:    uint64(p.Limits.CPUTime.Seconds()),
		MemoryBytes:   uint64(p.Limits.MemoryBytes),
		FileSizeBytes: uint64(p.Limits.FileSizeBytes),
		MaxProcesses:  uint64(p.Limits.MaxProcesses),
	}
}
