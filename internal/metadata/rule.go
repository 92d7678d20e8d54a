package metadata

import (
	"slices"
	"sort"

	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/roach88/tasksync/internal/taskdata"
)

// OptionFunc computes a dependent attribute's option values from the
// controlling attribute's value.
type OptionFunc func(controllingValue string) ([]string, error)

// Ordering declares how a rule's computed options are sorted.
type Ordering string

const (
	// OrderLexical sorts by byte-wise string comparison. The default.
	OrderLexical Ordering = "lexical"

	// OrderCollated sorts with English collation rules (case-insensitive,
	// accent-aware).
	OrderCollated Ordering = "collated"

	// OrderDeclared keeps the order returned by the option function.
	OrderDeclared Ordering = "declared"
)

// Sort returns a sorted, de-duplicated copy of values.
func (o Ordering) Sort(values []string) []string {
	out := slices.Clone(values)
	switch o {
	case OrderDeclared:
		return dedupe(out)
	case OrderCollated:
		collate.New(language.English).SortStrings(out)
	default:
		sort.Strings(out)
	}
	return dedupe(out)
}

// dedupe removes repeated values, keeping first occurrences.
func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := values[:0]
	for _, v := range values {
		if seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}

// SelectionPolicy decides a dependent attribute's value after its option
// set is recomputed.
type SelectionPolicy string

const (
	// SelectDefault selects the only option when there is exactly one,
	// selects a declared sentinel when several options include one, keeps
	// the previous value when several options include no sentinel, and
	// clears the value when there are none.
	SelectDefault SelectionPolicy = "default"

	// SelectFirst selects the first option whenever the set is non-empty and
	// clears the value otherwise.
	SelectFirst SelectionPolicy = "first"
)

// Rule recomputes one dependent attribute when its controller changes.
type Rule struct {
	Controller string
	Dependent  string
	Options    OptionFunc
	Order      Ordering
	Sentinels  []string
	Selection  SelectionPolicy
}

// ID identifies the rule within a table.
func (r Rule) ID() string {
	return r.Controller + "->" + r.Dependent
}

// Hook runs after all rules of its controller fired in a cascade. Hooks
// express side effects that are not option recomputations, such as forcing
// a confirmation flag when the product changes.
type Hook struct {
	Name       string
	Controller string
	Apply      func(tree *taskdata.Tree, controllingValue string) error
}

// ID identifies the hook in a cascade. Hooks of different controllers may
// share a name.
func (h Hook) ID() string {
	return h.Controller + "->hook:" + h.Name
}

// Table is an immutable set of dependency rules in declaration order.
type Table struct {
	rules []Rule
	hooks []Hook
}

// NewTable validates and copies rules and hooks.
//
// Rules are kept in declaration order; the resolver fires them in that
// order for each controller.
func NewTable(rules []Rule, hooks []Hook) (*Table, error) {
	seen := make(map[string]bool, len(rules))
	for _, r := range rules {
		if r.Controller == "" || r.Dependent == "" {
			return nil, invalidRule("rule needs a controller and a dependent")
		}
		if r.Controller == r.Dependent {
			return nil, invalidRule("rule %s controls itself", r.ID())
		}
		if r.Options == nil {
			return nil, invalidRule("rule %s has no option function", r.ID())
		}
		if seen[r.ID()] {
			return nil, invalidRule("duplicate rule %s", r.ID())
		}
		seen[r.ID()] = true
	}
	for _, h := range hooks {
		if h.Controller == "" || h.Apply == nil {
			return nil, invalidRule("hook %q needs a controller and a function", h.Name)
		}
		if seen[h.ID()] {
			return nil, invalidRule("duplicate hook %s", h.ID())
		}
		seen[h.ID()] = true
	}
	return &Table{
		rules: slices.Clone(rules),
		hooks: slices.Clone(hooks),
	}, nil
}

// Rules returns all rules in declaration order.
func (t *Table) Rules() []Rule {
	if t == nil {
		return nil
	}
	return slices.Clone(t.rules)
}

// Hooks returns all hooks in declaration order.
func (t *Table) Hooks() []Hook {
	if t == nil {
		return nil
	}
	return slices.Clone(t.hooks)
}

// RulesFor returns the rules controlled by id in declaration order.
func (t *Table) RulesFor(id string) []Rule {
	if t == nil {
		return nil
	}
	var out []Rule
	for _, r := range t.rules {
		if r.Controller == id {
			out = append(out, r)
		}
	}
	return out
}

// HooksFor returns the hooks attached to controller id.
func (t *Table) HooksFor(id string) []Hook {
	if t == nil {
		return nil
	}
	var out []Hook
	for _, h := range t.hooks {
		if h.Controller == id {
			out = append(out, h)
		}
	}
	return out
}

// IsController reports whether any rule or hook is controlled by id.
func (t *Table) IsController(id string) bool {
	return len(t.RulesFor(id)) > 0 || len(t.HooksFor(id)) > 0
}

// Controllers returns the sorted distinct controller ids.
func (t *Table) Controllers() []string {
	if t == nil {
		return nil
	}
	set := make(map[string]bool)
	for _, r := range t.rules {
		set[r.Controller] = true
	}
	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Dependents returns the sorted dependents of controller id.
func (t *Table) Dependents(id string) []string {
	var out []string
	for _, r := range t.RulesFor(id) {
		out = append(out, r.Dependent)
	}
	sort.Strings(out)
	return out
}
