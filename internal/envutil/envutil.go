// Package envutil provides environment variable utilities.
package envutil

import "strings"

// dangerousVariables are stripped from any inherited environment before a
// script runs. LD_* entries can hijack dynamic linking, PATH controls binary
// resolution, and the interpreter search-path variables control module
// resolution inside the sandbox.
var dangerousVariables = []string{
	"LD_PRELOAD",
	"LD_LIBRARY_PATH",
	"PATH",
	"PYTHONPATH",
	"PYTHONHOME",
}

// FromSlice converts an os.Environ style slice into a map. Entries without
// an equals sign are dropped.
func FromSlice(env []string) map[string]string {
	result := make(map[string]string, len(env))
	for _, e := range env {
		if idx := strings.IndexByte(e, '='); idx > 0 {
			result[e[:idx]] = e[idx+1:]
		}
	}
	return result
}

// Sanitize returns a copy of env with every dangerous variable removed.
func Sanitize(env map[string]string) map[string]string {
	result := make(map[string]string, len(env))
	for k, v := range env {
		result[k] = v
	}
	for _, k := range dangerousVariables {
		delete(result, k)
	}
	return result
}

// MergeEnvironment merges base environment with overrides.
// Overrides take precedence.
func MergeEnvironment(base, override map[string]string) map[string]string {
	result := make(map[string]string, len(base)+len(override))

	for k, v := range base {
		result[k] = v
	}

	for k, v := range override {
		result[k] = v
	}

	return result
}
