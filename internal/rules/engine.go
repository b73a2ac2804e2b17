// Package rules provides the CEL-Go based alert rule engine. Rules
// are operator-defined boolean expressions evaluated against every
// scored account once an analysis completes.
package rules

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/kestrelhq/kestrel/internal/domain"
)

// Engine compiles and evaluates alert rules. Safe for concurrent use;
// rule reloads swap the compiled set atomically under the lock.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program alongside its config.
type CompiledRule struct {
	Rule    *domain.AlertRule
	Program cel.Program
}

// NewEngine creates an alert rule engine with the scored-account
// variable set declared.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("account_id", cel.StringType),
		cel.Variable("suspicion_score", cel.DoubleType),
		cel.Variable("patterns", cel.ListType(cel.StringType)),
		cel.Variable("ring_count", cel.IntType),
		cel.Variable("in_degree", cel.IntType),
		cel.Variable("out_degree", cel.IntType),
		cel.Variable("total_received", cel.DoubleType),
		cel.Variable("total_sent", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without loading it.
func (e *Engine) ValidateRule(rule *domain.AlertRule) error {
	if rule == nil {
		return fmt.Errorf("alert rule is required: %w", domain.ErrInvalidInput)
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads one rule into the engine.
func (e *Engine) LoadRule(rule *domain.AlertRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}
	e.compiledRules[rule.ID] = compiled
	return nil
}

// LoadRules compiles and loads every enabled rule.
func (e *Engine) LoadRules(rules []*domain.AlertRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces the loaded set wholesale. Used for hot reload
// after rule CRUD; a compile failure leaves the old set in place.
func (e *Engine) ReloadRules(rules []*domain.AlertRule) error {
	next := make(map[string]*CompiledRule)

	e.mu.Lock()
	defer e.mu.Unlock()

	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	e.compiledRules = next
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// EvaluateAccounts runs every loaded rule against every scored
// account and returns one alert per match. Evaluation errors on a
// single rule are skipped, not propagated, so one bad rule cannot
// mute the rest.
func (e *Engine) EvaluateAccounts(analysisID string, accounts []domain.ScoredAccount, metrics map[string]*domain.AccountMetrics) []domain.Alert {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, r := range e.compiledRules {
		rules = append(rules, r)
	}
	e.mu.RUnlock()

	if len(rules) == 0 || len(accounts) == 0 {
		return nil
	}

	now := time.Now().UTC()
	var alerts []domain.Alert

	for _, account := range accounts {
		activation := activationFor(account, metrics[account.AccountID])

		for _, rule := range rules {
			out, _, err := rule.Program.Eval(activation)
			if err != nil {
				continue
			}
			matched, ok := out.Value().(bool)
			if !ok || !matched {
				continue
			}

			alerts = append(alerts, domain.Alert{
				ID:             uuid.NewString(),
				AnalysisID:     analysisID,
				RuleID:         rule.Rule.ID,
				RuleName:       rule.Rule.Name,
				AccountID:      account.AccountID,
				SuspicionScore: account.SuspicionScore,
				Severity:       rule.Rule.Severity,
				CreatedAt:      now,
			})
		}
	}

	return alerts
}

// Close clears the loaded rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func activationFor(account domain.ScoredAccount, m *domain.AccountMetrics) map[string]any {
	activation := map[string]any{
		"account_id":      account.AccountID,
		"suspicion_score": account.SuspicionScore,
		"patterns":        account.DetectedPatterns,
		"ring_count":      int64(len(account.RingIDs)),
		"in_degree":       int64(0),
		"out_degree":      int64(0),
		"total_received":  0.0,
		"total_sent":      0.0,
	}
	if m != nil {
		activation["in_degree"] = int64(m.InDegree)
		activation["out_degree"] = int64(m.OutDegree)
		activation["total_received"] = m.TotalReceived
		activation["total_sent"] = m.TotalSent
	}
	return activation
}

func (e *Engine) compileRule(rule *domain.AlertRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}
