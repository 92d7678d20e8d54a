package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Scenario describes one editing session driven step by step.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Repository is the path to the CUE repository definition.
	Repository string `yaml:"repository"`

	// Task is the remote task to open. Nil starts a new task.
	Task *RemoteTask `yaml:"task,omitempty"`

	// Remembered seeds the product and component remembered from an
	// earlier task creation.
	Remembered *Remembered `yaml:"remembered,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`
}

// RemoteTask is a task as the connector returns it, keyed by wire field.
type RemoteTask struct {
	ID     string              `yaml:"id"`
	Fields map[string][]string `yaml:"fields"`
}

// Remembered is a stored product and component selection.
type Remembered struct {
	Product   string `yaml:"product"`
	Component string `yaml:"component,omitempty"`
}

// Step holds exactly one of Set, Submit or Expect.
type Step struct {
	Set    *SetStep    `yaml:"set,omitempty"`
	Submit *SubmitStep `yaml:"submit,omitempty"`
	Expect *Expect     `yaml:"expect,omitempty"`
}

// SetStep writes an attribute named by native id or by generic key.
type SetStep struct {
	Attribute string   `yaml:"attribute,omitempty"`
	Key       string   `yaml:"key,omitempty"`
	Values    []string `yaml:"values"`
}

// Reply kinds for SubmitStep.
const (
	ReplyAccepted  = "accepted"
	ReplyRejected  = "rejected"
	ReplyTransport = "transport"
)

// SubmitStep scripts the connector's reply and submits.
type SubmitStep struct {
	// Reply is accepted (the default), rejected or transport.
	Reply string `yaml:"reply,omitempty"`

	// Reference is the task id an accepted reply returns.
	Reference string `yaml:"reference,omitempty"`

	// Severity and FieldErrors shape a rejected reply.
	Severity    string            `yaml:"severity,omitempty"`
	FieldErrors []FieldErrorReply `yaml:"field_errors,omitempty"`

	// Error is the cause of a transport reply.
	Error string `yaml:"error,omitempty"`
}

// FieldErrorReply is one rejected field.
type FieldErrorReply struct {
	Field   string   `yaml:"field"`
	Reasons []string `yaml:"reasons"`
}

// Expect checks the session. Unset fields are not checked.
type Expect struct {
	Values     map[string][]string `yaml:"values,omitempty"`
	Options    map[string][]string `yaml:"options,omitempty"`
	Dirty      []string            `yaml:"dirty,omitempty"`
	Clean      bool                `yaml:"clean,omitempty"`
	State      string              `yaml:"state,omitempty"`
	TaskID     string              `yaml:"task_id,omitempty"`
	Posts      *int                `yaml:"posts,omitempty"`
	Posted     map[string][]string `yaml:"posted,omitempty"`
	Error      string              `yaml:"error,omitempty"`
	Report     *ReportExpect       `yaml:"report,omitempty"`
	Remembered *Remembered         `yaml:"remembered,omitempty"`
}

// ReportExpect checks the reconciliation report of the last submission.
type ReportExpect struct {
	Severity   string              `yaml:"severity,omitempty"`
	Summary    string              `yaml:"summary,omitempty"`
	Messages   map[string][]string `yaml:"messages,omitempty"`
	Candidates map[string][]string `yaml:"candidates,omitempty"`
}

// LoadScenario reads and parses a scenario YAML file. Unknown fields are
// rejected and the repository path is resolved against the file's
// directory.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	// Strict decoding catches typos like "step:" vs "steps:"
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if scenario.Repository != "" && !filepath.IsAbs(scenario.Repository) {
		scenario.Repository = filepath.Join(filepath.Dir(path), scenario.Repository)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if s.Repository == "" {
		return fmt.Errorf("repository is required")
	}
	if _, err := os.Stat(s.Repository); os.IsNotExist(err) {
		return fmt.Errorf("repository definition not found: %s", s.Repository)
	}
	if s.Task != nil && s.Task.ID == "" {
		return fmt.Errorf("task.id is required when task is given")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}

	for i, step := range s.Steps {
		n := 0
		if step.Set != nil {
			n++
			if (step.Set.Attribute == "") == (step.Set.Key == "") {
				return fmt.Errorf("steps[%d].set: exactly one of attribute or key is required", i)
			}
		}
		if step.Submit != nil {
			n++
			switch step.Submit.Reply {
			case "", ReplyAccepted, ReplyTransport:
			case ReplyRejected:
				if len(step.Submit.FieldErrors) == 0 {
					return fmt.Errorf("steps[%d].submit: rejected reply needs field_errors", i)
				}
			default:
				return fmt.Errorf("steps[%d].submit: unknown reply %q", i, step.Submit.Reply)
			}
		}
		if step.Expect != nil {
			n++
		}
		if n != 1 {
			return fmt.Errorf("steps[%d]: exactly one of set, submit or expect is required", i)
		}
	}
	return nil
}
