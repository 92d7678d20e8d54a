package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/tasksync/internal/store"
)

// DefaultsOptions holds flags for the defaults command.
type DefaultsOptions struct {
	*RootOptions
	Database   string
	Repository string
	Task       string
}

// DefaultsResult is what the state database remembers for a repository.
type DefaultsResult struct {
	Repository  string             `json:"repository"`
	Product     string             `json:"product"`
	Component   string             `json:"component"`
	Task        string             `json:"task,omitempty"`
	Submissions []store.Submission `json:"submissions,omitempty"`
}

// NewDefaultsCommand creates the defaults command.
func NewDefaultsCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &DefaultsOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "defaults",
		Short: "Show remembered defaults",
		Long: `Show the product and component remembered from the last task created
in a repository. With --task, also list that task's submission log.

--db and --repository fall back to --config: its database, and its only
repository when exactly one is configured.

Example:
  tasksync defaults --db ./tasksync.db --repository https://bugs.example.com
  tasksync defaults --config tasksync.yaml --task 42`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDefaults(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite state database")
	cmd.Flags().StringVar(&opts.Repository, "repository", "", "repository URL")
	cmd.Flags().StringVar(&opts.Task, "task", "", "task id whose submission log to list")

	return cmd
}

func runDefaults(opts *DefaultsOptions, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	tool, err := opts.loadTool()
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "failed to load config", err)
	}
	db, repo := opts.Database, opts.Repository
	if tool != nil {
		if db == "" {
			db = tool.Database
		}
		if repo == "" && len(tool.Repositories) == 1 {
			repo = tool.Repositories[0].URL
		}
	}
	if db == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--db is required", nil)
	}
	if repo == "" {
		return formatter.Fail(ExitCommandError, ErrCodeGeneric, "--repository is required", nil)
	}

	// store.Open creates missing databases; a typo should not.
	if _, err := os.Stat(db); os.IsNotExist(err) {
		return formatter.Fail(ExitCommandError, ErrCodeNotFound, fmt.Sprintf("database not found: %s", db), nil)
	}
	formatter.VerboseLog("Opening %s", db)
	st, err := store.Open(db)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to open database", err)
	}
	defer st.Close()

	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	sel, err := st.LastSelection(ctx, repo)
	if err != nil {
		return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read defaults", err)
	}
	res := DefaultsResult{Repository: repo, Product: sel.Product, Component: sel.Component, Task: opts.Task}
	if opts.Task != "" {
		if res.Submissions, err = st.Submissions(ctx, repo, opts.Task); err != nil {
			return formatter.Fail(ExitCommandError, ErrCodeStore, "failed to read submissions", err)
		}
	}

	if formatter.JSON() {
		return formatter.Success(res)
	}
	writeDefaultsText(formatter, res)
	return nil
}

func writeDefaultsText(f *OutputFormatter, res DefaultsResult) {
	w := f.Writer
	fmt.Fprintln(w, res.Repository)
	if res.Product == "" {
		fmt.Fprintln(w, "  no remembered selection")
	} else {
		fmt.Fprintf(w, "  product:   %s\n", res.Product)
		fmt.Fprintf(w, "  component: %s\n", res.Component)
	}
	if res.Task == "" {
		return
	}
	if len(res.Submissions) == 0 {
		fmt.Fprintf(w, "  task %s: no submissions\n", res.Task)
		return
	}
	fmt.Fprintf(w, "  task %s:\n", res.Task)
	for _, s := range res.Submissions {
		fmt.Fprintf(w, "    %d %s %s fields=%v\n", s.Seq, s.ID, s.Outcome, s.Fields)
	}
}
