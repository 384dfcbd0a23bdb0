package policy

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/victoralfred/gowritter/safepath"
	"gopkg.in/yaml.v3"
)

// Loader loads policies from YAML files under a base directory.
type Loader struct {
	path     string
	safePath *safepath.SafePath
	mu       sync.RWMutex
	policy   *SecurityPolicy
	lastHash []byte
	lastLoad time.Time
}

// NewLoader creates a loader for a policy file. The file path is resolved
// relative to basePath and cannot escape it.
func NewLoader(basePath, policyFile string) (*Loader, error) {
	sp, err := safepath.New(basePath)
	if err != nil {
		return nil, &Error{Source: policyFile, Reason: "creating safe path", Err: err}
	}

	return &Loader{
		path:     policyFile,
		safePath: sp,
	}, nil
}

// Load reads, parses, and validates the policy file. Repeated calls return
// the cached policy while the file content is unchanged.
func (l *Loader) Load() (*SecurityPolicy, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	data, err := l.safePath.ReadFile(l.path)
	if err != nil {
		return nil, &Error{Source: l.path, Reason: "reading policy file", Err: err}
	}

	hash := sha256.Sum256(data)
	if l.policy != nil && string(hash[:]) == string(l.lastHash) {
		return l.policy, nil
	}

	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Source: l.path, Reason: "parsing policy YAML", Err: err}
	}

	policy, err := compile(&doc, l.path)
	if err != nil {
		return nil, err
	}
	policy.hash = fmt.Sprintf("%x", hash)

	l.policy = policy
	l.lastHash = hash[:]
	l.lastLoad = time.Now()

	return policy, nil
}

// Get returns the most recently loaded policy without reloading, nil if Load
// has not succeeded yet.
func (l *Loader) Get() *SecurityPolicy {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.policy
}

// Load reads and validates a policy file in one call.
func Load(basePath, policyFile string) (*SecurityPolicy, error) {
	l, err := NewLoader(basePath, policyFile)
	if err != nil {
		return nil, err
	}
	return l.Load()
}

// Parse validates a policy document held in memory.
func Parse(data []byte) (*SecurityPolicy, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, &Error{Source: "inline", Reason: "parsing policy YAML", Err: err}
	}
	return compile(&doc, "inline")
}
