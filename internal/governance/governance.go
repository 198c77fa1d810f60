// Package governance evaluates file mutations against a layered
// allow/approve/deny rule schema. The policy is closed-world: anything no
// rule matches is denied.
package governance

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/vinayprograms/conductor/internal/globs"
)

// Action is a kind of file mutation.
type Action string

const (
	ActionCreate Action = "create"
	ActionModify Action = "modify"
	ActionDelete Action = "delete"
)

// Policy is the verdict for a checked mutation.
type Policy string

const (
	PolicyAllow   Policy = "allow"
	PolicyApprove Policy = "approve"
	PolicyDeny    Policy = "deny"
)

// MutationRule matches a glob pattern against a set of actions. An empty
// action list matches every action.
type MutationRule struct {
	Pattern string   `yaml:"pattern" json:"pattern"`
	Actions []Action `yaml:"actions,omitempty" json:"actions,omitempty"`
	Reason  string   `yaml:"reason,omitempty" json:"reason,omitempty"`
}

func (r MutationRule) matches(file string, action Action) bool {
	if len(r.Actions) > 0 {
		found := false
		for _, a := range r.Actions {
			if a == action {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return globs.Match(r.Pattern, file)
}

// RuleSet holds the three ordered rule buckets.
type RuleSet struct {
	Deny    []MutationRule `yaml:"deny,omitempty" json:"deny,omitempty"`
	Approve []MutationRule `yaml:"approve,omitempty" json:"approve,omitempty"`
	Allow   []MutationRule `yaml:"allow,omitempty" json:"allow,omitempty"`
}

// RoleRules scopes rules to a single role. Roles carry no approve bucket.
type RoleRules struct {
	Deny  []MutationRule `yaml:"deny,omitempty" json:"deny,omitempty"`
	Allow []MutationRule `yaml:"allow,omitempty" json:"allow,omitempty"`
}

// Schema is the loaded governance configuration. Immutable once loaded;
// reload per invocation to pick up edits.
type Schema struct {
	Mutations RuleSet              `yaml:"mutations" json:"mutations"`
	Roles     map[string]RoleRules `yaml:"roles,omitempty" json:"roles,omitempty"`
}

// Decision is the result of a mutation check.
type Decision struct {
	Policy Policy        `json:"policy"`
	Reason string        `json:"reason,omitempty"`
	Rule   *MutationRule `json:"rule,omitempty"`
}

// Load reads a schema from a YAML file. A missing file yields an empty
// schema, which denies everything.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Schema{}, nil
		}
		return nil, fmt.Errorf("failed to read governance schema: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses a schema from YAML.
func LoadBytes(data []byte) (*Schema, error) {
	var s Schema
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("failed to parse governance schema: %w", err)
	}
	for _, bucket := range [][]MutationRule{s.Mutations.Deny, s.Mutations.Approve, s.Mutations.Allow} {
		for _, rule := range bucket {
			if _, err := globs.Compile(rule.Pattern); err != nil {
				return nil, fmt.Errorf("invalid rule pattern: %w", err)
			}
		}
	}
	return &s, nil
}

// CheckMutation evaluates file+action against the global rule buckets.
// Priority is fixed: deny > approve > allow > default deny.
func (s *Schema) CheckMutation(file string, action Action) Decision {
	if d, ok := scan(s.Mutations.Deny, file, action, PolicyDeny); ok {
		return d
	}
	if d, ok := scan(s.Mutations.Approve, file, action, PolicyApprove); ok {
		return d
	}
	if d, ok := scan(s.Mutations.Allow, file, action, PolicyAllow); ok {
		return d
	}
	return Decision{Policy: PolicyDeny, Reason: "no rule matches; mutations are denied by default"}
}

// CheckMutationForRole evaluates against a role's rule set. A role with no
// entry is denied outright: enabling role scoping removes the implicit
// fallback to the global schema. When the schema has no roles section at
// all, the check degrades to the global schema for backward compatibility.
func (s *Schema) CheckMutationForRole(file string, action Action, role string) Decision {
	if s.Roles == nil {
		return s.CheckMutation(file, action)
	}
	rules, ok := s.Roles[role]
	if !ok {
		return Decision{Policy: PolicyDeny, Reason: fmt.Sprintf("role %q has no governance entry", role)}
	}
	if d, matched := scan(rules.Deny, file, action, PolicyDeny); matched {
		return d
	}
	if d, matched := scan(rules.Allow, file, action, PolicyAllow); matched {
		return d
	}
	return Decision{Policy: PolicyDeny, Reason: fmt.Sprintf("no rule for role %q matches; denied by default", role)}
}

func scan(rules []MutationRule, file string, action Action, policy Policy) (Decision, bool) {
	for i := range rules {
		if rules[i].matches(file, action) {
			return Decision{Policy: policy, Reason: rules[i].Reason, Rule: &rules[i]}, true
		}
	}
	return Decision{}, false
}
