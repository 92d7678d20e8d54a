// Package config loads repository definitions written in CUE and the
// tool's own YAML configuration.
//
// A repository definition describes what a task-tracking server offers:
// its products with their components, versions and milestones, and the
// repository-wide option sets of other attributes. It compiles to a
// metadata.Snapshot.
//
//	repository: {
//		url:  "https://bugs.example.com"
//		kind: "bugzilla"
//		products: Widgets: {
//			components: ["Core", "UI"]
//			milestones: ["---", "1.0"]
//		}
//		options: bug_severity: ["normal", "major"]
//	}
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/load"

	"github.com/roach88/tasksync/internal/metadata"
)

//go:embed schema.cue
var schemaCUE string

// LoadRepository reads a repository definition from a .cue file or from a
// directory holding one CUE package.
func LoadRepository(path string) (*metadata.Snapshot, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("repository definition not found: %s", path)}
	}
	if err != nil {
		return nil, &Error{Code: ErrCodeNotFound, Message: fmt.Sprintf("accessing repository definition: %v", err)}
	}

	ctx := cuecontext.New()
	var v cue.Value
	if info.IsDir() {
		instances := load.Instances([]string{"."}, &load.Config{Dir: path})
		if len(instances) == 0 {
			return nil, &Error{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
		}
		if err := instances[0].Err; err != nil {
			return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE files: %v", err)}
		}
		v = ctx.BuildInstance(instances[0])
	} else {
		if filepath.Ext(path) != ".cue" {
			return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("not a .cue file: %s", path)}
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, &Error{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("reading %s: %v", path, err)}
		}
		v = ctx.CompileBytes(data, cue.Filename(path))
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, err)
	}
	return CompileRepository(v.LookupPath(cue.ParsePath("repository")))
}

// CompileRepository validates a repository value against the definition
// schema and converts it to a snapshot. Products and option lists keep their
// declared order.
func CompileRepository(v cue.Value) (*metadata.Snapshot, error) {
	if !v.Exists() {
		return nil, &Error{Code: ErrCodeSchema, Field: "repository", Message: "repository is required"}
	}
	if err := v.Err(); err != nil {
		return nil, formatCUEError(ErrCodeBuildFailed, err)
	}

	schema := v.Context().CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile repository schema: %w", err)
	}
	v = schema.LookupPath(cue.ParsePath("#Repository")).Unify(v)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}

	snap := &metadata.Snapshot{Options: map[string][]string{}}
	var err error
	if snap.Repository, err = v.LookupPath(cue.ParsePath("url")).String(); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}
	if snap.Kind, err = v.LookupPath(cue.ParsePath("kind")).String(); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}
	if snap.InstallVersion, err = v.LookupPath(cue.ParsePath("install_version")).String(); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}
	if snap.Revision, err = v.LookupPath(cue.ParsePath("revision")).Int64(); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}

	if snap.Products, err = parseProducts(v.LookupPath(cue.ParsePath("products"))); err != nil {
		return nil, err
	}

	opts, err := v.LookupPath(cue.ParsePath("options")).Fields()
	if err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}
	for opts.Next() {
		list, err := stringList(opts.Value(), "options."+opts.Selector().Unquoted())
		if err != nil {
			return nil, err
		}
		snap.Options[opts.Selector().Unquoted()] = list
	}
	return snap, nil
}

func parseProducts(v cue.Value) ([]metadata.Product, error) {
	iter, err := v.Fields()
	if err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}
	var products []metadata.Product
	for iter.Next() {
		name := iter.Selector().Unquoted()
		pv := iter.Value()
		field := "products." + name

		p := metadata.Product{Name: name}
		if p.Components, err = stringList(pv.LookupPath(cue.ParsePath("components")), field+".components"); err != nil {
			return nil, err
		}
		if p.Versions, err = stringList(pv.LookupPath(cue.ParsePath("versions")), field+".versions"); err != nil {
			return nil, err
		}
		if p.Milestones, err = stringList(pv.LookupPath(cue.ParsePath("milestones")), field+".milestones"); err != nil {
			return nil, err
		}
		if u := pv.LookupPath(cue.ParsePath("unconfirmed_allowed")); u.Exists() && u.IsConcrete() {
			b, err := u.Bool()
			if err != nil {
				return nil, formatCUEError(ErrCodeSchema, err)
			}
			p.UnconfirmedAllowed = &b
		}
		products = append(products, p)
	}
	return products, nil
}

// stringList decodes a list of strings, rejecting empty and duplicate
// entries.
func stringList(v cue.Value, field string) ([]string, error) {
	var out []string
	if err := v.Decode(&out); err != nil {
		return nil, formatCUEError(ErrCodeSchema, err)
	}
	for i, s := range out {
		if s == "" {
			return nil, &Error{Code: ErrCodeSchema, Field: field, Message: "empty entry", Pos: v.Pos()}
		}
		if slices.Index(out, s) != i {
			return nil, &Error{Code: ErrCodeSchema, Field: field, Message: fmt.Sprintf("duplicate entry %q", s), Pos: v.Pos()}
		}
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

// formatCUEError keeps the first CUE error and its position.
func formatCUEError(code ErrorCode, err error) error {
	errs := cueerrors.Errors(err)
	if len(errs) == 0 {
		return &Error{Code: code, Message: err.Error()}
	}
	first := errs[0]
	e := &Error{Code: code, Message: first.Error()}
	if positions := cueerrors.Positions(first); len(positions) > 0 {
		e.Pos = positions[0]
	}
	return e
}
