// Package resolver recomputes dependent attribute option sets when a
// controlling attribute changes.
//
// CASCADES:
//
// A cascade starts with one changed attribute and walks the rule table
// breadth-first. Each rule fires at most once per cascade: when a dependent
// is itself a controller whose rule already fired, it is updated but does
// not fire that rule again. Writes made by the resolver raise tree events
// like any other write; while a cascade is active those events are queued
// rather than handled re-entrantly, so the walk always terminates and has
// settled before the triggering Set returns.
//
// A rule whose option function fails leaves its dependent untouched. A
// missing rule table leaves every dependent untouched.
package resolver

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"

	"github.com/roach88/tasksync/internal/metadata"
	"github.com/roach88/tasksync/internal/taskdata"
)

// TableSource supplies the rule table for a cascade. Implementations may
// return a different table on each call when repository metadata is
// refreshed; a cascade uses one table from start to end.
type TableSource interface {
	Table() (*metadata.Table, error)
}

// TableFunc adapts a function to TableSource.
type TableFunc func() (*metadata.Table, error)

// Table calls f.
func (f TableFunc) Table() (*metadata.Table, error) {
	return f()
}

// StaticTable returns a TableSource that always yields t.
func StaticTable(t *metadata.Table) TableSource {
	return TableFunc(func() (*metadata.Table, error) { return t, nil })
}

// Cascade describes one completed cascade.
type Cascade struct {
	Trigger string
	Fired   []string // rule and hook ids in firing order
	Skipped []string // rule ids suppressed by the fired-rule guard
	Touched []string // dependent attributes in first-touch order
}

// Resolver applies dependency rules to one tree. It is owned by a single
// editing session and is not safe for concurrent use.
type Resolver struct {
	source TableSource
	logger *slog.Logger

	active      bool
	queue       []string
	last        Cascade
	errs        []error
	unavailable bool
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = l
	}
}

// New creates a resolver reading rules from source.
func New(source TableSource, opts ...Option) *Resolver {
	r := &Resolver{
		source: source,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Attach subscribes the resolver to tree so that value changes trigger
// cascades.
func (r *Resolver) Attach(tree *taskdata.Tree) {
	tree.Subscribe(r)
}

// AttributeChanged implements taskdata.Listener.
//
// Changes to attributes that control nothing are ignored. While no rule table
// can be obtained, cascades are skipped and the condition is logged once
// until a table becomes available again.
func (r *Resolver) AttributeChanged(tree *taskdata.Tree, ev taskdata.Event) {
	if ev.Type != taskdata.EventChanged {
		return
	}
	if r.active {
		r.queue = append(r.queue, ev.AttributeID)
		return
	}
	table, err := r.table()
	if err != nil {
		if !r.unavailable {
			r.unavailable = true
			r.logger.Warn("dependency rules unavailable, cascades suspended",
				"trigger", ev.AttributeID,
				"error", err,
			)
		}
		return
	}
	r.unavailable = false
	if !table.IsController(ev.AttributeID) {
		return
	}
	if err := r.resolve(tree, table, ev.AttributeID); err != nil {
		r.logger.Warn("dependency cascade incomplete",
			"trigger", ev.AttributeID,
			"error", err,
		)
	}
}

// LastCascade returns a description of the most recent cascade.
func (r *Resolver) LastCascade() Cascade {
	c := r.last
	c.Fired = slices.Clone(c.Fired)
	c.Skipped = slices.Clone(c.Skipped)
	c.Touched = slices.Clone(c.Touched)
	return c
}

// Resolve runs a cascade for id. It returns a ConfigurationUnavailable error
// when no rule table can be obtained, or the joined errors of rules and hooks
// that failed; the cascade continues past individual failures.
func (r *Resolver) Resolve(tree *taskdata.Tree, id string) error {
	if r.active {
		return fmt.Errorf("resolve %s: cascade already active", id)
	}
	table, err := r.table()
	if err != nil {
		return err
	}
	return r.resolve(tree, table, id)
}

func (r *Resolver) table() (*metadata.Table, error) {
	table, err := r.source.Table()
	if err != nil {
		return nil, err
	}
	if table == nil {
		return nil, metadata.Unavailable("", "no dependency rules loaded", nil)
	}
	return table, nil
}

func (r *Resolver) resolve(tree *taskdata.Tree, table *metadata.Table, id string) error {
	r.active = true
	r.queue = []string{id}
	r.errs = nil
	r.last = Cascade{Trigger: id}
	fired := make(map[string]bool)
	touched := make(map[string]bool)
	defer func() {
		r.active = false
		r.queue = nil
	}()

	for len(r.queue) > 0 {
		current := r.queue[0]
		r.queue = r.queue[1:]
		value := tree.Value(current)

		for _, rule := range table.RulesFor(current) {
			if fired[rule.ID()] {
				r.last.Skipped = append(r.last.Skipped, rule.ID())
				r.logger.Debug("rule already fired in cascade, skipping",
					"rule", rule.ID(),
					"trigger", id,
				)
				continue
			}
			fired[rule.ID()] = true
			r.last.Fired = append(r.last.Fired, rule.ID())

			ok, err := r.apply(tree, rule, value)
			if err != nil {
				r.errs = append(r.errs, err)
				continue
			}
			if ok && !touched[rule.Dependent] {
				touched[rule.Dependent] = true
				r.last.Touched = append(r.last.Touched, rule.Dependent)
			}
		}

		for _, hook := range table.HooksFor(current) {
			key := hook.ID()
			if fired[key] {
				continue
			}
			fired[key] = true
			r.last.Fired = append(r.last.Fired, key)
			if err := hook.Apply(tree, value); err != nil {
				r.errs = append(r.errs, fmt.Errorf("hook %s: %w", hook.Name, err))
			}
		}
	}

	for _, dep := range r.last.Touched {
		tree.Refresh(dep)
	}

	r.logger.Debug("cascade settled",
		"trigger", id,
		"fired", len(r.last.Fired),
		"skipped", len(r.last.Skipped),
		"touched", len(r.last.Touched),
	)
	return errors.Join(r.errs...)
}

// apply recomputes one dependent. It reports whether the dependent exists
// and was updated.
func (r *Resolver) apply(tree *taskdata.Tree, rule metadata.Rule, value string) (bool, error) {
	dep, ok := tree.Get(rule.Dependent)
	if !ok {
		return false, nil
	}

	computed, err := rule.Options(value)
	if err != nil {
		r.logger.Warn("option function failed, leaving dependent unchanged",
			"rule", rule.ID(),
			"value", value,
			"error", err,
		)
		return false, metadata.Unavailable("", fmt.Sprintf("rule %s", rule.ID()), err)
	}
	options := rule.Order.Sort(computed)

	if err := tree.SetOptions(rule.Dependent, taskdata.OptionsFromValues(options)); err != nil {
		return false, fmt.Errorf("rule %s: set options: %w", rule.ID(), err)
	}
	if next, change := Select(rule, dep.Values, options); change {
		if err := tree.Set(rule.Dependent, next...); err != nil {
			return false, fmt.Errorf("rule %s: select value: %w", rule.ID(), err)
		}
	}
	return true, nil
}

// Select applies rule's selection policy. It returns the new values and
// whether the dependent's value should be replaced.
//
// Under SelectDefault a dependent with several options and no sentinel keeps
// its previous value even when that value is not among the new options.
func Select(rule metadata.Rule, current, options []string) ([]string, bool) {
	if len(options) == 0 {
		return nil, len(current) > 0
	}
	if rule.Selection == metadata.SelectFirst || len(options) == 1 {
		next := []string{options[0]}
		return next, !slices.Equal(current, next)
	}
	for _, s := range rule.Sentinels {
		if slices.Contains(options, s) {
			next := []string{s}
			return next, !slices.Equal(current, next)
		}
	}
	return nil, false
}

// Prime sets every dependent's option set from its controller's current
// value without changing any value. Used when a task is opened so option
// sets match the loaded values.
func (r *Resolver) Prime(tree *taskdata.Tree) error {
	table, err := r.source.Table()
	if err != nil {
		return err
	}
	var errs []error
	for _, rule := range table.Rules() {
		if !tree.Has(rule.Dependent) {
			continue
		}
		computed, err := rule.Options(tree.Value(rule.Controller))
		if err != nil {
			errs = append(errs, metadata.Unavailable("", fmt.Sprintf("rule %s", rule.ID()), err))
			continue
		}
		opts := taskdata.OptionsFromValues(rule.Order.Sort(computed))
		if err := tree.SetOptions(rule.Dependent, opts); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
