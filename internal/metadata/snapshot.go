package metadata

import "slices"

// Product is the per-product configuration of a repository.
type Product struct {
	Name       string   `json:"name"`
	Components []string `json:"components"`
	Versions   []string `json:"versions"`
	Milestones []string `json:"milestones"`

	// UnconfirmedAllowed reports whether new tasks may start unconfirmed.
	// Nil when the repository does not say.
	UnconfirmedAllowed *bool `json:"unconfirmed_allowed,omitempty"`
}

// Snapshot is one fetched repository configuration. Snapshots are never
// mutated after they are published through a Registry.
type Snapshot struct {
	Repository     string              `json:"repository"`
	Kind           string              `json:"kind"`
	InstallVersion string              `json:"install_version,omitempty"`
	Revision       int64               `json:"revision"`
	Products       []Product           `json:"products"`
	Options        map[string][]string `json:"options,omitempty"`
}

// Product looks up a product by name.
func (s *Snapshot) Product(name string) (Product, bool) {
	if s == nil {
		return Product{}, false
	}
	for _, p := range s.Products {
		if p.Name == name {
			return p, true
		}
	}
	return Product{}, false
}

// ProductNames returns product names in declared order.
func (s *Snapshot) ProductNames() []string {
	if s == nil {
		return nil
	}
	out := make([]string, len(s.Products))
	for i, p := range s.Products {
		out[i] = p.Name
	}
	return out
}

// Components returns the components of a product, or nil when unknown.
func (s *Snapshot) Components(product string) []string {
	p, _ := s.Product(product)
	return slices.Clone(p.Components)
}

// Versions returns the versions of a product, or nil when unknown.
func (s *Snapshot) Versions(product string) []string {
	p, _ := s.Product(product)
	return slices.Clone(p.Versions)
}

// Milestones returns the milestones of a product, or nil when unknown.
func (s *Snapshot) Milestones(product string) []string {
	p, _ := s.Product(product)
	return slices.Clone(p.Milestones)
}

// OptionSet returns the repository-wide options for an attribute id.
func (s *Snapshot) OptionSet(id string) []string {
	if s == nil {
		return nil
	}
	return slices.Clone(s.Options[id])
}
