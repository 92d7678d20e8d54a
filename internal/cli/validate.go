package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tasksync/internal/config"
	"github.com/roach88/tasksync/internal/harness"
	"github.com/roach88/tasksync/internal/metadata"
)

// ValidationResult describes one checked repository definition.
type ValidationResult struct {
	Path       string           `json:"path"`
	Valid      bool             `json:"valid"`
	Repository string           `json:"repository,omitempty"`
	Kind       string           `json:"kind,omitempty"`
	Revision   int64            `json:"revision"`
	Products   []string         `json:"products,omitempty"`
	Rules      []string         `json:"rules,omitempty"`
	Hooks      []string         `json:"hooks,omitempty"`
	Warnings   []string         `json:"warnings,omitempty"`
	Error      *ValidationError `json:"error,omitempty"`
}

// ValidationError locates a definition error.
type ValidationError struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [repository.cue]",
		Short: "Validate repository definitions",
		Long: `Validate a CUE repository definition and list the dependency rules
its backend derives from it.

Without an argument every definition listed in --config is validated.

Exit codes:
  0 - All definitions valid
  1 - A definition failed schema validation
  2 - Command error (missing file, unreadable config)`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args, cmd)
		},
	}
	return cmd
}

func runValidate(opts *RootOptions, args []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts, cmd)

	paths := args
	if len(paths) == 0 {
		tool, err := opts.loadTool()
		if err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load config", err)
		}
		if tool == nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "a repository definition or --config is required", nil)
		}
		for _, r := range tool.Repositories {
			paths = append(paths, r.Definition)
		}
	}

	results := make([]ValidationResult, 0, len(paths))
	failed := 0
	for _, path := range paths {
		formatter.VerboseLog("Validating %s", path)
		res, err := validateDefinition(path)
		if err != nil {
			var ce *config.Error
			if errors.As(err, &ce) && ce.Code == config.ErrCodeNotFound {
				return formatter.Fail(ExitCommandError, ErrCodeNotFound, ce.Message, nil)
			}
			res.Error = toValidationError(err)
			failed++
		}
		results = append(results, res)
	}

	if formatter.JSON() {
		if failed > 0 {
			first := firstError(results)
			if err := formatter.encode(CLIResponse{
				Status: "error",
				Data:   results,
				Error:  &CLIError{Code: first.Code, Message: first.Message},
			}); err != nil {
				return err
			}
		} else if err := formatter.Success(results); err != nil {
			return err
		}
	} else {
		for _, res := range results {
			writeValidationText(formatter, res)
		}
	}

	if failed > 0 {
		return NewExitError(ExitFailure, fmt.Sprintf("validation failed for %d definition(s)", failed))
	}
	return nil
}

// validateDefinition compiles a definition and builds its rule table.
func validateDefinition(path string) (ValidationResult, error) {
	res := ValidationResult{Path: path}
	snap, err := config.LoadRepository(path)
	if err != nil {
		return res, err
	}
	res.Repository = snap.Repository
	res.Kind = snap.Kind
	res.Revision = snap.Revision
	res.Products = snap.ProductNames()

	b, err := harness.Backends().Resolve(snap.Kind)
	if err != nil {
		return res, &config.Error{Code: config.ErrCodeSchema, Field: "kind", Message: err.Error()}
	}
	table, err := b.Rules(snap)
	if err != nil {
		return res, err
	}
	res.Rules, res.Hooks = ruleIDs(table)
	for _, c := range table.Cycles() {
		res.Warnings = append(res.Warnings, c.Message)
	}
	res.Valid = true
	return res, nil
}

func ruleIDs(table *metadata.Table) (rules, hooks []string) {
	for _, r := range table.Rules() {
		rules = append(rules, r.ID())
	}
	for _, h := range table.Hooks() {
		hooks = append(hooks, h.ID())
	}
	return rules, hooks
}

func toValidationError(err error) *ValidationError {
	var ce *config.Error
	if !errors.As(err, &ce) {
		return &ValidationError{Code: ErrCodeInvalid, Message: err.Error()}
	}
	ve := &ValidationError{Code: string(ce.Code), Field: ce.Field, Message: ce.Message}
	if ce.Pos.IsValid() {
		ve.Line = ce.Pos.Line()
	}
	return ve
}

func firstError(results []ValidationResult) *ValidationError {
	for _, r := range results {
		if r.Error != nil {
			return r.Error
		}
	}
	return &ValidationError{}
}

func writeValidationText(f *OutputFormatter, res ValidationResult) {
	w := f.Writer
	if !res.Valid {
		fmt.Fprintf(w, "✗ %s\n", res.Path)
		e := res.Error
		if e.Line > 0 {
			fmt.Fprintf(w, "  line %d\n", e.Line)
		}
		if e.Field != "" {
			fmt.Fprintf(w, "  %s: %s: %s\n", e.Code, e.Field, e.Message)
		} else {
			fmt.Fprintf(w, "  %s: %s\n", e.Code, e.Message)
		}
		return
	}
	fmt.Fprintf(w, "✓ %s (%s, revision %d)\n", res.Repository, res.Kind, res.Revision)
	if len(res.Products) > 0 {
		fmt.Fprintf(w, "  products: %s\n", strings.Join(res.Products, ", "))
	}
	for _, id := range res.Rules {
		fmt.Fprintf(w, "  rule %s\n", id)
	}
	for _, id := range res.Hooks {
		fmt.Fprintf(w, "  %s\n", id)
	}
	for _, msg := range res.Warnings {
		fmt.Fprintf(w, "  warning: %s\n", msg)
	}
}
