package taskdata

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	tree := NewTree()
	require.NoError(t, tree.Add(Attribute{
		ID:   "short_desc",
		Meta: Metadata{Label: "Summary", Kind: KindText},
	}))
	require.NoError(t, tree.Add(Attribute{
		ID:      "component",
		Meta:    Metadata{Label: "Component", Kind: KindSingleSelect},
		Options: OptionsFromValues([]string{"Core", "Docs"}),
	}))
	require.NoError(t, tree.Add(Attribute{
		ID:   "cc",
		Meta: Metadata{Label: "CC", Kind: KindPersonList},
	}))
	return tree
}

type recorder struct {
	events []Event
}

func (r *recorder) AttributeChanged(_ *Tree, ev Event) {
	r.events = append(r.events, ev)
}

// =============================================================================
// Set
// =============================================================================

func TestTree_Set_ValidOption(t *testing.T) {
	tree := newTestTree(t)

	require.NoError(t, tree.Set("component", "Docs"))
	assert.Equal(t, "Docs", tree.Value("component"))
}

func TestTree_Set_InvalidOptionLeavesValue(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Set("component", "Core"))

	err := tree.Set("component", "UI-Widgets")
	require.Error(t, err)
	assert.True(t, IsInvalidOption(err))
	assert.Equal(t, "Core", tree.Value("component"), "rejected set must not change value")
}

func TestTree_Set_AllowOverride(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.UpdateMetadata("component", func(m *Metadata) { m.AllowOverride = true }))

	require.NoError(t, tree.Set("component", "Legacy"))
	assert.Equal(t, "Legacy", tree.Value("component"))
}

func TestTree_Set_UnknownAttribute(t *testing.T) {
	tree := newTestTree(t)

	err := tree.Set("nope", "x")
	assert.True(t, IsUnknownAttribute(err))
}

func TestTree_Set_EmptyStringClears(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Set("component", "Core"))

	require.NoError(t, tree.Set("component", ""))
	a, ok := tree.Get("component")
	require.True(t, ok)
	assert.True(t, a.Empty())
}

func TestTree_Set_MultipleValuesOnScalar(t *testing.T) {
	tree := newTestTree(t)

	err := tree.Set("short_desc", "a", "b")
	var ae *AttributeError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeMultipleValues, ae.Code)
}

func TestTree_Set_MultiValued(t *testing.T) {
	tree := newTestTree(t)

	require.NoError(t, tree.Set("cc", "alice@example.com", "bob@example.com"))
	assert.Equal(t, []string{"alice@example.com", "bob@example.com"}, tree.Values("cc"))
}

// =============================================================================
// Notifications
// =============================================================================

func TestTree_Notify_SynchronousBeforeReturn(t *testing.T) {
	tree := newTestTree(t)
	var seen string
	tree.Subscribe(ListenerFunc(func(tr *Tree, ev Event) {
		seen = tr.Value(ev.AttributeID)
	}))

	require.NoError(t, tree.Set("short_desc", "crash on start"))
	assert.Equal(t, "crash on start", seen)
}

func TestTree_Notify_NoEventWhenUnchanged(t *testing.T) {
	tree := newTestTree(t)
	rec := &recorder{}
	tree.Subscribe(rec)

	require.NoError(t, tree.Set("short_desc", "x"))
	require.NoError(t, tree.Set("short_desc", "x"))

	assert.Len(t, rec.events, 1)
}

func TestTree_Notify_EventTypes(t *testing.T) {
	tree := newTestTree(t)
	rec := &recorder{}
	tree.Subscribe(rec)

	require.NoError(t, tree.Add(Attribute{ID: "version", Meta: Metadata{Kind: KindSingleSelect}}))
	require.NoError(t, tree.SetOptions("version", OptionsFromValues([]string{"1.0"})))
	require.NoError(t, tree.Set("version", "1.0"))
	tree.Refresh("version")
	require.NoError(t, tree.Remove("version"))

	assert.Equal(t, []Event{
		{Type: EventAdded, AttributeID: "version"},
		{Type: EventOptions, AttributeID: "version"},
		{Type: EventChanged, AttributeID: "version"},
		{Type: EventRefresh, AttributeID: "version"},
		{Type: EventRemoved, AttributeID: "version"},
	}, rec.events)
}

// =============================================================================
// Options, structure, freezing
// =============================================================================

func TestTree_SetOptions_DoesNotAlterValue(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Set("component", "Core"))

	require.NoError(t, tree.SetOptions("component", OptionsFromValues([]string{"A", "B"})))
	assert.Equal(t, "Core", tree.Value("component"))
}

func TestTree_Add_Duplicate(t *testing.T) {
	tree := newTestTree(t)

	err := tree.Add(Attribute{ID: "cc", Meta: Metadata{Kind: KindPersonList}})
	var ae *AttributeError
	require.ErrorAs(t, err, &ae)
	assert.Equal(t, ErrCodeDuplicateAttribute, ae.Code)
}

func TestTree_IDs_InsertionOrder(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Remove("component"))

	assert.Equal(t, []string{"short_desc", "cc"}, tree.IDs())
}

func TestTree_Clone_IsDeep(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Set("cc", "alice@example.com"))

	c := tree.Clone()
	require.NoError(t, tree.Set("cc", "bob@example.com"))
	require.NoError(t, tree.SetOptions("component", nil))

	assert.Equal(t, []string{"alice@example.com"}, c.Values("cc"))
	a, _ := c.Get("component")
	assert.Equal(t, []string{"Core", "Docs"}, a.OptionValues())
}

func TestTree_Freeze_RejectsMutation(t *testing.T) {
	tree := newTestTree(t)
	tree.Freeze()

	err := tree.Set("short_desc", "x")
	assert.True(t, IsFrozen(err))
	assert.Equal(t, "", tree.Value("short_desc"))

	tree.Thaw()
	assert.NoError(t, tree.Set("short_desc", "x"))
}

func TestTree_Get_ReturnsCopy(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.Set("cc", "alice@example.com"))

	a, _ := tree.Get("cc")
	a.Values[0] = "mallory@example.com"

	assert.Equal(t, "alice@example.com", tree.Value("cc"))
}

// =============================================================================
// Kinds and fingerprints
// =============================================================================

func TestKind_OrderSignificance(t *testing.T) {
	tests := []struct {
		kind Kind
		want bool
	}{
		{KindText, true},
		{KindMultiSelect, false},
		{KindPersonList, false},
		{KindFlag, false},
		{KindOrderedList, true},
		{KindSingleSelect, true},
		{Kind("custom"), true},
	}
	for _, tt := range tests {
		t.Run(string(tt.kind), func(t *testing.T) {
			assert.Equal(t, tt.want, tt.kind.OrderSignificant())
		})
	}
}

func TestFingerprint_StableAcrossInsertionOrder(t *testing.T) {
	a := NewTree()
	require.NoError(t, a.Add(Attribute{ID: "x", Meta: Metadata{Kind: KindText}, Values: []string{"1"}}))
	require.NoError(t, a.Add(Attribute{ID: "y", Meta: Metadata{Kind: KindText}, Values: []string{"2"}}))

	b := NewTree()
	require.NoError(t, b.Add(Attribute{ID: "y", Meta: Metadata{Kind: KindText, Label: "Y"}, Values: []string{"2"}}))
	require.NoError(t, b.Add(Attribute{ID: "x", Meta: Metadata{Kind: KindText}, Values: []string{"1"}}))

	fa, err := Fingerprint(a)
	require.NoError(t, err)
	fb, err := Fingerprint(b)
	require.NoError(t, err)
	assert.Equal(t, fa, fb)
	assert.Len(t, fa, 64)

	require.NoError(t, b.Set("x", "3"))
	fc, err := Fingerprint(b)
	require.NoError(t, err)
	assert.NotEqual(t, fa, fc)
}

func TestMarshalAttributes_RoundTripKeepsStaleValues(t *testing.T) {
	tree := newTestTree(t)
	require.NoError(t, tree.UpdateMetadata("component", func(m *Metadata) { m.AllowOverride = true }))
	require.NoError(t, tree.Set("component", "Retired"))
	require.NoError(t, tree.UpdateMetadata("component", func(m *Metadata) { m.AllowOverride = false }))

	data, err := MarshalAttributes(tree)
	require.NoError(t, err)

	back, err := UnmarshalAttributes(data)
	require.NoError(t, err)
	assert.Equal(t, tree.IDs(), back.IDs())
	assert.Equal(t, "Retired", back.Value("component"))
	a, _ := back.Get("component")
	assert.False(t, a.Meta.AllowOverride)
}
