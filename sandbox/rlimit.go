package sandbox

// Rlimit represents a single OS resource limit.
type Rlimit struct {
	// Resource is the resource type.
	Resource int

	// Soft is the soft limit.
	Soft uint64

	// Hard is the hard limit.
	Hard uint64
}

// RlimitUnlimited represents an unlimited resource.
const RlimitUnlimited = ^uint64(0)

// SetRlimit sets a resource limit.
func SetRlimit(resource int, soft, hard uint64) error {
	if !rlimitSupported() {
		return nil
	}
	return setRlimitImpl(resource, soft, hard)
}

// GetRlimit gets a resource limit.
func GetRlimit(resource int) (soft, hard uint64, err error) {
	if !rlimitSupported() {
		return 0, 0, nil
	}
	return getRlimitImpl(resource)
}

// Limits holds the resource bounds applied to a script run. Zero values are
// rejected by policy validation before a Limits is ever built, so every field
// is expected to be positive here.
type Limits struct {
	// CPUSeconds bounds CPU time (RLIMIT_CPU).
	CPUSeconds uint64

	// MemoryBytes bounds the address space (RLIMIT_AS).
	MemoryBytes uint64

	// FileSizeBytes bounds created file size (RLIMIT_FSIZE).
	FileSizeBytes uint64

	// MaxProcesses bounds processes/threads (RLIMIT_NPROC).
	MaxProcesses uint64
}

// Rlimits expands the limits into concrete rlimit entries. Soft and hard are
// set to the same value so the bound cannot be raised by the script.
func (l Limits) Rlimits() []Rlimit {
	return []Rlimit{
		{Resource: RlimitCPU, Soft: l.CPUSeconds, Hard: l.CPUSeconds},
		{Resource: RlimitAS, Soft: l.MemoryBytes, Hard: l.MemoryBytes},
		{Resource: RlimitFSize, Soft: l.FileSizeBytes, Hard: l.FileSizeBytes},
		{Resource: RlimitNProc, Soft: l.MaxProcesses, Hard: l.MaxProcesses},
	}
}

// ApplyLimits applies every limit, stopping at the first failure.
func ApplyLimits(limits Limits) error {
	for _, rl := range limits.Rlimits() {
		if err := SetRlimit(rl.Resource, rl.Soft, rl.Hard); err != nil {
			return err
		}
	}
	return nil
}
