package analysis

import (
	"os"
)

// RiskLevel is the ordered classification produced by analysis.
type RiskLevel int

const (
	RiskNone RiskLevel = iota
	RiskLow
	RiskMedium
	RiskHigh
	RiskCritical
)

// String implements fmt.Stringer.
func (r RiskLevel) String() string {
	switch r {
	case RiskNone:
		return "none"
	case RiskLow:
		return "low"
	case RiskMedium:
		return "medium"
	case RiskHigh:
		return "high"
	case RiskCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Result is the outcome of analyzing one script. Results are ephemeral; the
// executor references them in audit details but never persists them.
type Result struct {
	// VulnerabilitiesFound counts matched rules.
	VulnerabilitiesFound int

	// RiskLevel is the highest severity among findings.
	RiskLevel RiskLevel

	// Recommendations collects the matched rules' recommendations.
	Recommendations []string

	// Findings are the individual matches.
	Findings []Finding
}

// Analyzer statically scans a script. Implementations must not execute or
// mutate the script and must return a best-effort zero Result rather than an
// error when the script cannot be read, since analysis sits on a
// non-blocking path.
type Analyzer interface {
	Analyze(scriptPath string) (*Result, error)
}

// HeuristicAnalyzer matches a RuleSet against script text.
type HeuristicAnalyzer struct {
	rules *RuleSet
}

// NewHeuristicAnalyzer creates an analyzer over the given rule set, or the
// default set when rules is nil.
func NewHeuristicAnalyzer(rules *RuleSet) *HeuristicAnalyzer {
	if rules == nil {
		rules = DefaultRuleSet()
	}
	return &HeuristicAnalyzer{rules: rules}
}

// Analyze implements Analyzer. Calling it twice on an unchanged script
// yields an identical result.
func (a *HeuristicAnalyzer) Analyze(scriptPath string) (*Result, error) {
	data, err := os.ReadFile(scriptPath) // #nosec G304 -- path validated against policy by the caller
	if err != nil {
		return &Result{RiskLevel: RiskNone}, nil
	}

	findings := a.rules.Match(string(data))

	result := &Result{
		VulnerabilitiesFound: len(findings),
		RiskLevel:            RiskNone,
		Findings:             findings,
	}
	for _, f := range findings {
		result.Recommendations = append(result.Recommendations, f.Recommendation)
		if level := riskFromSeverity(f.Severity); level > result.RiskLevel {
			result.RiskLevel = level
		}
	}

	return result, nil
}

// Rules returns the analyzer's rule set.
func (a *HeuristicAnalyzer) Rules() *RuleSet {
	return a.rules
}

func riskFromSeverity(s Severity) RiskLevel {
	switch s {
	case SeverityLow:
		return RiskLow
	case SeverityMedium:
		return RiskMedium
	case SeverityHigh:
		return RiskHigh
	case SeverityCritical:
		return RiskCritical
	default:
		return RiskNone
	}
}
