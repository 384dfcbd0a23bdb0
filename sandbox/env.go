package sandbox

import (
	"os"

	"github.com/victoralfred/gosandbox/internal/envutil"
)

// securePath is the only binary search path visible to scripts.
const securePath = "/usr/local/bin:/usr/bin:/bin"

// SecureEnvironment builds the child environment for a script run. The parent
// environment is inherited, loader-hijack and search-path variables are
// stripped, and the fixed replacements are applied. PWD points at the
// quarantine directory, matching the working directory the process starts in.
func SecureEnvironment(quarantineDir string) map[string]string {
	env := envutil.Sanitize(envutil.FromSlice(os.Environ()))

	return envutil.MergeEnvironment(env, map[string]string{
		"PATH":       securePath,
		"PYTHONPATH": "",
		"PYTHONHOME": "",
		"PWD":        quarantineDir,
	})
}
