package policy

// Document is the raw YAML policy structure. Two layouts are accepted: the
// four sections at the top level, or the same sections nested under a
// `security` key. Both normalize to the same SecurityPolicy.
type Document struct {
	Security *SectionSet `yaml:"security"`
	SectionSet `yaml:",inline"`
}

// SectionSet groups the four required policy sections.
type SectionSet struct {
	Execution  *ExecutionSection  `yaml:"execution"`
	Filesystem *FilesystemSection `yaml:"filesystem"`
	Network    *NetworkSection    `yaml:"network"`
	Monitoring *MonitoringSection `yaml:"monitoring"`
}

// sections returns the effective section set. A nested `security` block takes
// precedence over top-level sections.
func (d *Document) sections() *SectionSet {
	if d.Security != nil {
		return d.Security
	}
	return &d.SectionSet
}

// ExecutionSection configures run limits. Every field must be positive.
type ExecutionSection struct {
	TimeoutSeconds int `yaml:"timeout_seconds"`
	CPUSeconds     int `yaml:"cpu_seconds"`
	MemoryMB       int `yaml:"memory_mb"`
	FileSizeMB     int `yaml:"file_size_mb"`
	MaxProcesses   int `yaml:"max_processes"`
}

// FilesystemSection configures the path allow-list and blocked operations.
type FilesystemSection struct {
	AllowedPathPrefixes  []string `yaml:"allowed_path_prefixes"`
	BlockedOperations    []string `yaml:"blocked_operations"`
	EmptyAllowlistPolicy string   `yaml:"empty_allowlist_policy"`
}

// NetworkSection configures the domain allow-list and port block-list.
type NetworkSection struct {
	AllowedDomains       []string `yaml:"allowed_domains"`
	BlockedPorts         []int    `yaml:"blocked_ports"`
	EmptyAllowlistPolicy string   `yaml:"empty_allowlist_policy"`
}

// MonitoringSection configures alert thresholds keyed by metric name.
type MonitoringSection struct {
	AlertThresholds map[string]float64 `yaml:"alert_thresholds"`
}
