package taskdata

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
)

// DomainBaseline separates baseline fingerprints from other hashes.
const DomainBaseline = "tasksync/baseline/v1"

// hashWithDomain computes SHA256(domain + 0x00 + data).
func hashWithDomain(domain string, data []byte) string {
	h := sha256.New()
	h.Write([]byte(domain))
	h.Write([]byte{0x00})
	h.Write(data)
	return hex.EncodeToString(h.Sum(nil))
}

// Fingerprint computes a content hash over attribute ids and values.
// Metadata and options are excluded: two trees holding the same values
// have the same fingerprint.
func Fingerprint(t *Tree) (string, error) {
	ids := t.IDs()
	sort.Strings(ids)

	values := make(map[string][]string, len(ids))
	for _, id := range ids {
		vals := t.Values(id)
		if vals == nil {
			vals = []string{}
		}
		values[id] = vals
	}

	// encoding/json sorts map keys, which keeps the rendering stable.
	data, err := json.Marshal(values)
	if err != nil {
		return "", fmt.Errorf("fingerprint: %w", err)
	}
	return hashWithDomain(DomainBaseline, data), nil
}

// MarshalAttributes renders the tree as JSON for persistence.
func MarshalAttributes(t *Tree) ([]byte, error) {
	data, err := json.Marshal(t.Attributes())
	if err != nil {
		return nil, fmt.Errorf("marshal attributes: %w", err)
	}
	return data, nil
}

// UnmarshalAttributes rebuilds a tree from MarshalAttributes output.
func UnmarshalAttributes(data []byte) (*Tree, error) {
	var attrs []Attribute
	if err := json.Unmarshal(data, &attrs); err != nil {
		return nil, fmt.Errorf("unmarshal attributes: %w", err)
	}
	t := NewTree()
	for _, a := range attrs {
		// Persisted values may predate the current option set.
		allow := a.Meta.AllowOverride
		a.Meta.AllowOverride = true
		if err := t.Add(a); err != nil {
			return nil, fmt.Errorf("unmarshal attributes: %w", err)
		}
		if err := t.UpdateMetadata(a.ID, func(m *Metadata) { m.AllowOverride = allow }); err != nil {
			return nil, err
		}
	}
	return t, nil
}
