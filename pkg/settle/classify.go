package settle

import (
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/clearlane/mandatepay/pkg/protocol"
)

// Rule maps verifier rejection-text substrings to a failure reason. Rules are
// evaluated in order; the first rule with any matching substring wins.
type Rule struct {
	Substrings []string               `yaml:"substrings"`
	Reason     protocol.FailureReason `yaml:"reason"`
}

// Classifier turns raw rejection text into a failure reason. Matching is
// best-effort: the rejection-text vocabulary belongs to the external verifier
// and may drift, which is why the table is data rather than code. Unmatched
// text degrades to SETTLEMENT_FAILED.
type Classifier struct {
	rules []Rule
}

// DefaultClassifier carries the known verifier revert vocabulary. Order
// matters: "expired" and "signature" are checked before the broader funds
// patterns, matching the verifier's own check ordering.
func DefaultClassifier() *Classifier {
	return &Classifier{rules: []Rule{
		{Substrings: []string{"expired"}, Reason: protocol.ReasonAuthorizationExpired},
		{Substrings: []string{"signature"}, Reason: protocol.ReasonInvalidSignature},
		{Substrings: []string{"already executed", "already refunded"}, Reason: protocol.ReasonReplayPrevented},
		{Substrings: []string{"transfer failed", "insufficient"}, Reason: protocol.ReasonInsufficientFunds},
	}}
}

// LoadClassifier parses a rule table from YAML, replacing the default
// vocabulary.
func LoadClassifier(data []byte) (*Classifier, error) {
	var doc struct {
		Rules []Rule `yaml:"rules"`
	}
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("classifier: %w", err)
	}
	if len(doc.Rules) == 0 {
		return nil, fmt.Errorf("classifier: no rules defined")
	}
	for i, r := range doc.Rules {
		if len(r.Substrings) == 0 || r.Reason == "" {
			return nil, fmt.Errorf("classifier: rule %d incomplete", i)
		}
	}
	return &Classifier{rules: doc.Rules}, nil
}

// Classify maps rejection text to a failure reason, case-insensitively.
func (c *Classifier) Classify(text string) protocol.FailureReason {
	lower := strings.ToLower(text)
	for _, r := range c.rules {
		for _, sub := range r.Substrings {
			if strings.Contains(lower, strings.ToLower(sub)) {
				return r.Reason
			}
		}
	}
	return protocol.ReasonSettlementFailed
}
