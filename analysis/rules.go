// Package analysis provides heuristic static checks for untrusted scripts:
// a versioned dangerous-pattern rule set and a best-effort analyzer. The
// substring matching is a coarse heuristic, not sound static analysis; it
// informs audit events and risk ranking but never blocks execution.
package analysis

import (
	"strings"
)

// Severity ranks a matched rule.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Rule matches a literal substring in script text or captured output.
type Rule struct {
	// Name identifies the rule in events and findings.
	Name string

	// Pattern is the literal substring to match.
	Pattern string

	// Severity ranks the finding.
	Severity Severity

	// Recommendation is surfaced to callers reviewing findings.
	Recommendation string
}

// RuleSet is a versioned collection of rules. Rule sets are values; replacing
// the rules means building a new set with a new version.
type RuleSet struct {
	// Version identifies the rule set in audit details.
	Version string

	// Rules are evaluated in order.
	Rules []Rule
}

// Finding is one rule match.
type Finding struct {
	// Rule is the matched rule name.
	Rule string

	// Pattern is the matched substring.
	Pattern string

	// Severity is the matched rule's severity.
	Severity Severity

	// Line is the 1-based line of the first match.
	Line int

	// Recommendation comes from the matched rule.
	Recommendation string
}

// Match scans text against every rule and returns one finding per matching
// rule, at the line of the first occurrence.
func (rs *RuleSet) Match(text string) []Finding {
	var findings []Finding

	lines := strings.Split(text, "\n")
	for _, rule := range rs.Rules {
		line := 0
		for i, l := range lines {
			if strings.Contains(l, rule.Pattern) {
				line = i + 1
				break
			}
		}
		if line == 0 {
			continue
		}

		findings = append(findings, Finding{
			Rule:           rule.Name,
			Pattern:        rule.Pattern,
			Severity:       rule.Severity,
			Line:           line,
			Recommendation: rule.Recommendation,
		})
	}

	return findings
}

// DefaultRuleSet returns the built-in dangerous-pattern rules.
func DefaultRuleSet() *RuleSet {
	return &RuleSet{
		Version: "1.0",
		Rules: []Rule{
			{Name: "os-import", Pattern: "import os", Severity: SeverityMedium,
				Recommendation: "Review OS-level access for necessity"},
			{Name: "subprocess-import", Pattern: "import subprocess", Severity: SeverityHigh,
				Recommendation: "Subprocess spawning inside the sandbox defeats limit inheritance"},
			{Name: "shell-invocation", Pattern: "os.system", Severity: SeverityCritical,
				Recommendation: "Shell invocation bypasses argument validation"},
			{Name: "file-removal", Pattern: "os.remove", Severity: SeverityHigh,
				Recommendation: "File deletion should go through reviewed tooling"},
			{Name: "tree-removal", Pattern: "shutil.rmtree", Severity: SeverityCritical,
				Recommendation: "Recursive deletion is rarely legitimate in sandboxed scripts"},
			{Name: "raw-file-open", Pattern: "open(", Severity: SeverityLow,
				Recommendation: "Verify file access stays within allowed paths"},
			{Name: "raw-socket", Pattern: "socket", Severity: SeverityHigh,
				Recommendation: "Direct socket use is subject to network policy checks"},
			{Name: "url-fetch", Pattern: "urllib", Severity: SeverityMedium,
				Recommendation: "Outbound fetches must target allowed domains"},
			{Name: "dynamic-exec", Pattern: "exec(", Severity: SeverityCritical,
				Recommendation: "Dynamic code execution hides payloads from static review"},
			{Name: "dynamic-eval", Pattern: "eval(", Severity: SeverityCritical,
				Recommendation: "Dynamic evaluation hides payloads from static review"},
		},
	}
}
