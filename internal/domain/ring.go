package domain

import "fmt"

// PatternType discriminates the kinds of fraud rings the detectors
// produce. Every Ring carries exactly one pattern type; the
// pattern-specific fields below are only populated for that type.
type PatternType string

const (
	PatternCycle    PatternType = "cycle"
	PatternSmurfing PatternType = "smurfing"
	PatternShell    PatternType = "shell"
)

// SmurfingVariant is the direction of a smurfing pattern.
type SmurfingVariant string

const (
	FanIn  SmurfingVariant = "fan_in"
	FanOut SmurfingVariant = "fan_out"
)

// HubRole describes what the hub account does in a smurfing ring.
type HubRole string

const (
	RoleAggregator HubRole = "aggregator"
	RoleDisperser  HubRole = "disperser"
)

// Ring is one detected fraud pattern instance. Rings are produced
// fresh each analysis run and never mutated afterward; cycle
// consolidation replaces raw candidates with merged rings rather than
// updating them in place.
type Ring struct {
	ID             string      `json:"ring_id"`
	PatternType    PatternType `json:"pattern_type"`
	MemberAccounts []string    `json:"member_accounts"`
	RiskScore      float64     `json:"risk_score"`

	// Cycle-specific.
	CycleLength int `json:"cycle_length,omitempty"`

	// Smurfing-specific.
	SmurfingType      SmurfingVariant `json:"smurfing_type,omitempty"`
	HubAccount        string          `json:"hub_account,omitempty"`
	HubRole           HubRole         `json:"hub_role,omitempty"`
	CounterpartyCount int             `json:"counterparty_count,omitempty"`
	TotalVolume       float64         `json:"total_volume,omitempty"`
	TransactionCount  int             `json:"transaction_count,omitempty"`

	// Shell-specific.
	SourceAccount      string   `json:"source_account,omitempty"`
	DestinationAccount string   `json:"destination_account,omitempty"`
	ShellAccounts      []string `json:"shell_accounts,omitempty"`
	PathLength         int      `json:"path_length,omitempty"`
	IntermediaryCount  int      `json:"intermediary_count,omitempty"`
}

// Validate checks the shared ring shape: non-empty id and membership,
// risk score inside [0,100], and a known pattern type.
func (r *Ring) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("%w: ring id is required", ErrInvalidInput)
	}
	if len(r.MemberAccounts) == 0 {
		return fmt.Errorf("%w: ring %s has no member accounts", ErrInvalidInput, r.ID)
	}
	if r.RiskScore < 0 || r.RiskScore > 100 {
		return fmt.Errorf("%w: ring %s risk score %.2f outside [0,100]", ErrInvalidInput, r.ID, r.RiskScore)
	}
	switch r.PatternType {
	case PatternCycle, PatternSmurfing, PatternShell:
		return nil
	default:
		return fmt.Errorf("%w: ring %s has unknown pattern type %q", ErrInvalidInput, r.ID, r.PatternType)
	}
}

// ClampScore forces a risk or suspicion score into [0,100].
func ClampScore(score float64) float64 {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
