package mapper

import (
	"fmt"

	"github.com/roach88/tasksync/internal/taskdata"
)

// CopyCompatible copies attribute values from src into dst, typically when a
// task is cloned into another repository. It returns the dst ids written.
//
// Summary and description are always copied. When both mappers share a
// schema kind every attribute is a candidate; otherwise only the common
// semantic keys are. A candidate is copied only when it exists on both
// sides and neither side is read-only or hidden. Values outside a non-empty
// target option set are dropped without error, and a target with no
// surviving value is left unchanged.
func CopyCompatible(src, dst *taskdata.Tree, from, to Mapper) ([]string, error) {
	var written []string

	for _, key := range []string{taskdata.KeySummary, taskdata.KeyDescription} {
		srcID, dstID := from.MapKey(key), to.MapKey(key)
		if !src.Has(srcID) || !dst.Has(dstID) {
			continue
		}
		if err := dst.Set(dstID, NFC(src.Values(srcID))...); err != nil {
			return written, fmt.Errorf("copy %s: %w", key, err)
		}
		written = append(written, dstID)
	}

	for _, pair := range candidatePairs(src, from, to) {
		ok, err := copyFiltered(src, dst, pair[0], pair[1])
		if err != nil {
			return written, fmt.Errorf("copy %s: %w", pair[0], err)
		}
		if ok {
			written = append(written, pair[1])
		}
	}
	return written, nil
}

// candidatePairs returns (src id, dst id) pairs beyond summary and
// description, in an order where controllers precede their dependents.
func candidatePairs(src *taskdata.Tree, from, to Mapper) [][2]string {
	skip := map[string]bool{
		from.MapKey(taskdata.KeySummary):     true,
		from.MapKey(taskdata.KeyDescription): true,
		from.MapKey(taskdata.KeyToken):       true,
	}
	var pairs [][2]string
	if from.Kind() == to.Kind() {
		for _, id := range src.IDs() {
			if !skip[id] {
				pairs = append(pairs, [2]string{id, id})
			}
		}
		return pairs
	}
	for _, key := range taskdata.CommonKeys {
		pairs = append(pairs, [2]string{from.MapKey(key), to.MapKey(key)})
	}
	return pairs
}

func copyFiltered(src, dst *taskdata.Tree, srcID, dstID string) (bool, error) {
	s, ok := src.Get(srcID)
	if !ok || s.Empty() || s.Meta.ReadOnly || s.Meta.Hidden || s.Meta.Kind == taskdata.KindOperation {
		return false, nil
	}
	// Read the target after every previous write: a controller copied
	// earlier may have recomputed this attribute's option set.
	d, ok := dst.Get(dstID)
	if !ok || d.Meta.ReadOnly || d.Meta.Hidden || d.Meta.Kind == taskdata.KindOperation {
		return false, nil
	}

	var values []string
	for _, v := range NFC(s.Values) {
		if len(d.Options) > 0 && !d.HasOption(v) {
			continue
		}
		values = append(values, v)
	}
	if len(values) == 0 {
		return false, nil
	}
	if !d.Meta.Kind.MultiValued() {
		values = values[:1]
	}
	if err := dst.Set(dstID, values...); err != nil {
		return false, err
	}
	return true, nil
}
