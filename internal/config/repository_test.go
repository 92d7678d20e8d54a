package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadRepository_File(t *testing.T) {
	snap, err := LoadRepository("testdata/bugs.cue")
	require.NoError(t, err)

	assert.Equal(t, "https://bugs.example.com", snap.Repository)
	assert.Equal(t, "bugzilla", snap.Kind)
	assert.Equal(t, "5.0.4", snap.InstallVersion)
	assert.Equal(t, int64(7), snap.Revision)
	assert.Equal(t, []string{"Widgets", "Gadgets"}, snap.ProductNames(), "declared order is kept")

	widgets, ok := snap.Product("Widgets")
	require.True(t, ok)
	assert.Equal(t, []string{"UI", "Core", "Docs"}, widgets.Components)
	assert.Equal(t, []string{"---", "1.1"}, widgets.Milestones)
	require.NotNil(t, widgets.UnconfirmedAllowed)
	assert.False(t, *widgets.UnconfirmedAllowed)

	gadgets, _ := snap.Product("Gadgets")
	assert.Equal(t, []string{}, gadgets.Versions, "versions default to empty")
	assert.Nil(t, gadgets.UnconfirmedAllowed)

	assert.Equal(t, []string{"P1", "P2", "P3"}, snap.OptionSet("priority"))
}

func TestLoadRepository_Directory(t *testing.T) {
	snap, err := LoadRepository("testdata/multi")
	require.NoError(t, err)

	assert.Equal(t, "trac", snap.Kind)
	assert.Empty(t, snap.Products)
	assert.Equal(t, []string{"m1", "m2"}, snap.OptionSet("milestone"))
	assert.Equal(t, []string{"server", "client"}, snap.OptionSet("component"))
}

func TestLoadRepository_Errors(t *testing.T) {
	tests := []struct {
		name string
		path string
		code ErrorCode
	}{
		{"missing file", "testdata/nope.cue", ErrCodeNotFound},
		{"unknown product field", "testdata/bad_field.cue", ErrCodeSchema},
		{"duplicate component", "testdata/duplicate.cue", ErrCodeSchema},
		{"not cue", "testdata/tasksync.yaml", ErrCodeLoadFailed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadRepository(tt.path)
			require.Error(t, err)
			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.code, ce.Code)
		})
	}
}

func TestLoadRepository_SchemaErrorHasPosition(t *testing.T) {
	_, err := LoadRepository("testdata/bad_field.cue")
	require.Error(t, err)
	assert.True(t, IsSchemaError(err))
	assert.Contains(t, err.Error(), "bad_field.cue")
}

func TestCompileRepository_RequiresURLAndKind(t *testing.T) {
	ctx := cuecontext.New()
	v := ctx.CompileString(`repository: { kind: "trac" }`)
	_, err := CompileRepository(v.LookupPath(cue.ParsePath("repository")))
	assert.True(t, IsSchemaError(err))

	_, err = CompileRepository(v.LookupPath(cue.ParsePath("nothing")))
	assert.True(t, IsSchemaError(err))
}

func TestLoadTool(t *testing.T) {
	tool, err := LoadTool("testdata/tasksync.yaml")
	require.NoError(t, err)

	assert.Equal(t, filepath.Join("testdata", "state", "tasksync.db"), tool.Database)
	assert.Equal(t, 45*time.Second, tool.SubmitTimeout)
	require.Len(t, tool.Repositories, 2)
	assert.Equal(t, filepath.Join("testdata", "bugs.cue"), tool.Repositories[0].Definition)

	ref, ok := tool.Repository("https://trac.example.com")
	require.True(t, ok)
	snap, err := LoadRepository(ref.Definition)
	require.NoError(t, err)
	assert.Equal(t, ref.URL, snap.Repository)
}

func TestLoadTool_RejectsUnknownFields(t *testing.T) {
	_, err := LoadTool("testdata/typo.yaml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "repositores")
}

func TestLoadTool_Validation(t *testing.T) {
	tests := []struct {
		name  string
		yaml  string
		field string
	}{
		{"no database", "repositories: []\n", "database"},
		{"bad level", "database: x.db\nlog_level: loud\n", "log_level"},
		{"missing url", "database: x.db\nrepositories:\n  - definition: a.cue\n", "repositories[0].url"},
		{"duplicate url", "database: x.db\nrepositories:\n  - {url: u, definition: a.cue}\n  - {url: u, definition: b.cue}\n", "repositories[1].url"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tasksync.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.yaml), 0o644))

			_, err := LoadTool(path)
			var ce *Error
			require.ErrorAs(t, err, &ce)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestTool_DefaultsAndLevel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tasksync.yaml")
	require.NoError(t, os.WriteFile(path, []byte("database: /var/lib/tasksync.db\n"), 0o644))

	tool, err := LoadTool(path)
	require.NoError(t, err)
	assert.Equal(t, "/var/lib/tasksync.db", tool.Database)
	assert.Equal(t, DefaultSubmitTimeout, tool.SubmitTimeout)
	lvl, err := tool.Level()
	require.NoError(t, err)
	assert.Equal(t, "INFO", lvl.String())
}
