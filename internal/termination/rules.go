package termination

import (
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"
)

// Rule maps a pattern in an assistant utterance to a reason. Lower
// priority values are checked first.
type Rule struct {
	Pattern  string `json:"pattern"`
	Reason   Reason `json:"reason"`
	Priority int    `json:"priority"`
}

// Rules is a compiled, priority-ordered rule set.
type Rules struct {
	rules []compiledRule
}

type compiledRule struct {
	Rule
	re *regexp.Regexp
}

// NewRules compiles rules and orders them by priority, keeping the given
// order between rules of equal priority.
func NewRules(rules []Rule) (*Rules, error) {
	out := make([]compiledRule, 0, len(rules))
	for i, r := range rules {
		re, err := regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("termination: rule %d (%q): %w", i, r.Pattern, err)
		}
		r.Reason = ParseReason(string(r.Reason))
		out = append(out, compiledRule{Rule: r, re: re})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Priority < out[j].Priority })
	return &Rules{rules: out}, nil
}

// Match checks the lower-cased utterance against each rule in order and
// returns the reason of the first match.
func (rs *Rules) Match(utterance string) (Reason, bool) {
	lower := strings.ToLower(utterance)
	for _, r := range rs.rules {
		if r.re.MatchString(lower) {
			return r.Reason, true
		}
	}
	return "", false
}

func (rs *Rules) Len() int { return len(rs.rules) }

// LoadRules reads a JSON array of rules from path.
func LoadRules(path string) (*Rules, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("termination: read rules: %w", err)
	}
	var rules []Rule
	if err := json.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("termination: parse rules: %w", err)
	}
	return NewRules(rules)
}

// Not-interested is the more specific signal, so it outranks goodbye.
const (
	priorityNotInterested = 10
	priorityGoodbye       = 20
)

// DefaultRuleSet covers the closings the consultant prompt scripts, in
// English, romanised Hindi and Telugu, and native script.
var DefaultRuleSet = []Rule{
	{Pattern: `\bnot interested\b`, Reason: ReasonNotInterested, Priority: priorityNotInterested},
	{Pattern: `\bno longer interested\b`, Reason: ReasonNotInterested, Priority: priorityNotInterested},
	{Pattern: `\bthank you for taking the call\b`, Reason: ReasonNotInterested, Priority: priorityNotInterested},
	{Pattern: `\bno problem\b.*\b(good\s*-?\s*bye|bye)\b`, Reason: ReasonNotInterested, Priority: priorityNotInterested},
	{Pattern: `\bnahi+ chahiye\b`, Reason: ReasonNotInterested, Priority: priorityNotInterested},
	{Pattern: `\binterest nahi\b`, Reason: ReasonNotInterested, Priority: priorityNotInterested},
	{Pattern: `\binterest ledu\b`, Reason: ReasonNotInterested, Priority: priorityNotInterested},
	{Pattern: `\bvaddu\b`, Reason: ReasonNotInterested, Priority: priorityNotInterested},
	{Pattern: `नहीं चाहिए`, Reason: ReasonNotInterested, Priority: priorityNotInterested},
	{Pattern: `వద్దు`, Reason: ReasonNotInterested, Priority: priorityNotInterested},

	{Pattern: `\bgood\s*-?\s*bye\b`, Reason: ReasonGoodbye, Priority: priorityGoodbye},
	{Pattern: `\bbye\b`, Reason: ReasonGoodbye, Priority: priorityGoodbye},
	{Pattern: `\balvida\b`, Reason: ReasonGoodbye, Priority: priorityGoodbye},
	{Pattern: `\bphir milenge\b`, Reason: ReasonGoodbye, Priority: priorityGoodbye},
	{Pattern: `\bselavu\b`, Reason: ReasonGoodbye, Priority: priorityGoodbye},
	{Pattern: `\bvelli vastanu\b`, Reason: ReasonGoodbye, Priority: priorityGoodbye},
	{Pattern: `अलविदा`, Reason: ReasonGoodbye, Priority: priorityGoodbye},
	{Pattern: `फिर मिलेंगे`, Reason: ReasonGoodbye, Priority: priorityGoodbye},
	{Pattern: `సెలవు`, Reason: ReasonGoodbye, Priority: priorityGoodbye},
}

// DefaultRules returns the compiled DefaultRuleSet.
func DefaultRules() *Rules {
	rs, err := NewRules(DefaultRuleSet)
	if err != nil {
		panic(err)
	}
	return rs
}
