//go:build unix

package sandbox

import "syscall"

// Resource identifiers for the limits the sandbox applies, plus NOFILE for
// introspection.
const (
	RlimitCPU    = syscall.RLIMIT_CPU    // CPU time in seconds
	RlimitFSize  = syscall.RLIMIT_FSIZE  // created file size
	RlimitNOFile = syscall.RLIMIT_NOFILE // open file descriptors
	RlimitAS     = syscall.RLIMIT_AS     // address space

	// The syscall package does not export RLIMIT_NPROC; 6 is its value on
	// Linux.
	RlimitNProc = 6
)

func setRlimitImpl(resource int, soft, hard uint64) error {
	rlim := syscall.Rlimit{
		Cur: soft,
		Max: hard,
	}
	return syscall.Setrlimit(resource, &rlim)
}

func getRlimitImpl(resource int) (soft, hard uint64, err error) {
	var rlim syscall.Rlimit
	err = syscall.Getrlimit(resource, &rlim)
	return rlim.Cur, rlim.Max, err
}

func rlimitSupported() bool {
	return true
}
