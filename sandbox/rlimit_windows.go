//go:build windows

package sandbox

// Resource identifiers mirrored for compilation; rlimits do not exist on
// Windows and every call degrades to a no-op.
const (
	RlimitCPU    = 0
	RlimitFSize  = 1
	RlimitNOFile = 2
	RlimitAS     = 3
	RlimitNProc  = 4
)

func setRlimitImpl(_ int, _, _ uint64) error {
	return nil
}

func getRlimitImpl(_ int) (soft, hard uint64, err error) {
	return 0, 0, nil
}

func rlimitSupported() bool {
	return false
}
