package rules

import "github.com/kestrelhq/kestrel/internal/domain"

// BuiltinRules returns the default alert rule set loaded when the
// repository has no operator-defined rules yet.
func BuiltinRules() []*domain.AlertRule {
	return []*domain.AlertRule{
		{
			ID:          "builtin-critical-score",
			Name:        "Critical suspicion score",
			Description: "Account scored in the definite-mule band",
			Expression:  "suspicion_score >= 90.0",
			Severity:    domain.SeverityCritical,
			Enabled:     true,
		},
		{
			ID:          "builtin-multi-pattern",
			Name:        "Multiple pattern involvement",
			Description: "Account appears in rings of more than one pattern",
			Expression:  "size(patterns) > 1",
			Severity:    domain.SeverityWarning,
			Enabled:     true,
		},
		{
			ID:          "builtin-hub-account",
			Name:        "Flagged hub account",
			Description: "Suspicious account with hub-sized degree",
			Expression:  "suspicion_score >= 70.0 && in_degree + out_degree > 20",
			Severity:    domain.SeverityWarning,
			Enabled:     true,
		},
	}
}
