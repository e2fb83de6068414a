package threat

import (
	"fmt"
	"maps"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/MrEthical07/goSentinel/detector"
)

// Action is the response to a trigger.
type Action string

const (
	// ActionAllow records the event and takes no further action.
	ActionAllow Action = "allow"
	// ActionFlag adds the source to the suspicious set.
	ActionFlag Action = "flag"
	// ActionBlock blocks the source for the automatic block duration.
	ActionBlock Action = "block"
)

func (a Action) valid() bool {
	switch a {
	case ActionAllow, ActionFlag, ActionBlock:
		return true
	}
	return false
}

// Triggers produced by the attempt window rather than the detector.
const (
	TriggerBruteForce = "brute_force"
	TriggerSuspicious = "suspicious_login"
)

// Policy maps a trigger (a detector category name, TriggerBruteForce or
// TriggerSuspicious) to an action. Unlisted triggers flag.
type Policy map[string]Action

// DefaultPolicy blocks SQL injection, command injection and brute force, and flags
// everything else.
func DefaultPolicy() Policy {
	p := Policy{
		TriggerBruteForce: ActionBlock,
		TriggerSuspicious: ActionFlag,
	}
	for _, c := range detector.Categories {
		p[string(c)] = ActionFlag
	}
	p[string(detector.CategorySQLInjection)] = ActionBlock
	p[string(detector.CategoryCommandInjection)] = ActionBlock
	return p
}

// Decide returns the action for trigger.
func (p Policy) Decide(trigger string) Action {
	if a, ok := p[trigger]; ok {
		return a
	}
	return ActionFlag
}

// Clone returns a copy of p.
func (p Policy) Clone() Policy {
	return maps.Clone(p)
}

// Validate rejects unknown triggers and actions.
func (p Policy) Validate() error {
	for trigger, action := range p {
		if !validTrigger(trigger) {
			return fmt.Errorf("%w: unknown trigger %q", ErrInvalidPolicy, trigger)
		}
		if !action.valid() {
			return fmt.Errorf("%w: trigger %q has unknown action %q", ErrInvalidPolicy, trigger, action)
		}
	}
	return nil
}

func validTrigger(t string) bool {
	if t == TriggerBruteForce || t == TriggerSuspicious {
		return true
	}
	_, ok := detector.ParseCategory(t)
	return ok
}

// Merge returns DefaultPolicy overridden by overrides.
func Merge(overrides map[string]string) (Policy, error) {
	p := DefaultPolicy()
	for trigger, action := range overrides {
		p[trigger] = Action(action)
	}
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return p, nil
}

// ParsePolicy reads a YAML mapping of trigger to action, layered over the defaults.
func ParsePolicy(data []byte) (Policy, error) {
	var raw map[string]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPolicy, err)
	}
	return Merge(raw)
}

// MarshalYAML renders the policy with sorted triggers.
func (p Policy) MarshalYAML() (any, error) {
	keys := make([]string, 0, len(p))
	for k := range p {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	node := &yaml.Node{Kind: yaml.MappingNode}
	for _, k := range keys {
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: k},
			&yaml.Node{Kind: yaml.ScalarNode, Value: string(p[k])},
		)
	}
	return node, nil
}
