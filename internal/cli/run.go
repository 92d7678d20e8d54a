package cli

import (
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/tasksync/internal/harness"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Golden string // golden trace file to compare against
	Update bool   // rewrite the golden file instead of comparing
}

// RunResult is the outcome of one scenario.
type RunResult struct {
	Name   string               `json:"name"`
	Pass   bool                 `json:"pass"`
	Errors []string             `json:"errors,omitempty"`
	Trace  []harness.TraceEvent `json:"trace"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run an editing scenario",
		Long: `Run a harness scenario against an in-memory database and a scripted
connector, printing the trace of cascades, state transitions, posts and
outcomes.

Exit codes:
  0 - Scenario passed
  1 - An expectation failed or the trace differs from --golden
  2 - Command error (missing or invalid scenario)

Examples:
  tasksync run scenarios/create_task.yaml
  tasksync run scenarios/create_task.yaml --golden golden/create_task.golden
  tasksync run scenarios/create_task.yaml --golden golden/create_task.golden --update
  tasksync run scenarios/create_task.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenario(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden trace file to compare against")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "rewrite the golden file with the current trace")

	return cmd
}

func runScenario(opts *RunOptions, path string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)
	if opts.Update && opts.Golden == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--update requires --golden", nil)
	}

	tool, err := opts.loadTool()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load config", err)
	}

	scenario, err := harness.LoadScenario(path)
	if err != nil {
		if _, statErr := os.Stat(path); os.IsNotExist(statErr) {
			return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("scenario not found: %s", path), nil)
		}
		return formatter.Fail(ExitCommandError, ErrCodeScenario, "failed to load scenario", err)
	}
	formatter.VerboseLog("Running %s: %s", scenario.Name, scenario.Description)

	result, err := harness.Run(scenario, harness.WithLogger(formatter.Logger(opts.logLevel(tool))))
	if err != nil {
		return formatter.Fail(ExitFailure, ErrCodeScenario, "scenario execution failed", err)
	}

	out := RunResult{Name: scenario.Name, Pass: result.Pass, Errors: result.Errors, Trace: result.Trace}
	if opts.Golden != "" {
		if err := checkGolden(opts, scenario.Name, result, &out); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeGeneric, "golden file", err)
		}
	}

	if formatter.JSON() {
		if err := formatter.Success(out); err != nil {
			return err
		}
	} else {
		writeRunText(formatter, out)
	}

	if !out.Pass {
		return NewExitError(ExitFailure, fmt.Sprintf("scenario %s failed", scenario.Name))
	}
	return nil
}

// checkGolden writes or compares the golden trace. A mismatch fails the
// result.
func checkGolden(opts *RunOptions, name string, result *harness.Result, out *RunResult) error {
	data, err := harness.MarshalTrace(name, result.Trace)
	if err != nil {
		return err
	}
	if opts.Update {
		return os.WriteFile(opts.Golden, data, 0644)
	}
	want, err := os.ReadFile(opts.Golden)
	if err != nil {
		return err
	}
	if !bytes.Equal(want, data) {
		out.Pass = false
		out.Errors = append(out.Errors, fmt.Sprintf("trace differs from %s", opts.Golden))
	}
	return nil
}

func writeRunText(f *OutputFormatter, res RunResult) {
	w := f.Writer
	for _, ev := range res.Trace {
		fmt.Fprintf(w, "%3d %s\n", ev.Seq, formatEvent(ev))
	}
	if res.Pass {
		fmt.Fprintf(w, "✓ %s\n", res.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

// formatEvent renders one trace event on a line.
func formatEvent(ev harness.TraceEvent) string {
	var b strings.Builder
	b.WriteString(ev.Type)
	switch ev.Type {
	case harness.EventSession:
		fmt.Fprintf(&b, " %s", ev.Outcome)
		if ev.Reference != "" {
			fmt.Fprintf(&b, " %s", ev.Reference)
		}
	case harness.EventSet:
		fmt.Fprintf(&b, " %s=%s", ev.Attribute, strings.Join(ev.Values, ","))
		if len(ev.Fired) > 0 {
			fmt.Fprintf(&b, " fired=[%s]", strings.Join(ev.Fired, " "))
		}
		if len(ev.Touched) > 0 {
			fmt.Fprintf(&b, " touched=[%s]", strings.Join(ev.Touched, " "))
		}
	case harness.EventTransition:
		fmt.Fprintf(&b, " %s -> %s", ev.From, ev.To)
	case harness.EventPost:
		ref := ev.Reference
		if ref == "" {
			ref = "(new)"
		}
		fmt.Fprintf(&b, " %s fields=[%s]", ref, strings.Join(ev.Fields, " "))
	case harness.EventOutcome:
		fmt.Fprintf(&b, " %s", ev.Outcome)
		if ev.Reference != "" {
			fmt.Fprintf(&b, " %s", ev.Reference)
		}
		if len(ev.Fields) > 0 {
			fmt.Fprintf(&b, " fields=[%s]", strings.Join(ev.Fields, " "))
		}
		if ev.Error != "" {
			fmt.Fprintf(&b, " error=%q", ev.Error)
		}
	}
	return b.String()
}
