package compliance

import (
	"fmt"
	"sort"
)

// Mapper answers mapping queries and builds reports over an immutable catalog.
// It is safe for concurrent use: nothing is mutated after NewMapper returns,
// and every exported method hands out copies.
type Mapper struct {
	frameworks []Framework
	names      map[Framework]string
	aliases    map[string]Framework
	controls   map[Framework][]string
	mappings   map[Framework]map[string][]string
	metadata   map[string]ControlMetadata
}

// NewMapper validates the catalog and indexes it.
func NewMapper(cat *Catalog) (*Mapper, error) {
	if cat == nil {
		return nil, fmt.Errorf("%w: catalog is nil", ErrInvalidCatalog)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}

	m := &Mapper{
		frameworks: make([]Framework, 0, len(cat.Frameworks)),
		names:      make(map[Framework]string, len(cat.Frameworks)),
		aliases:    make(map[string]Framework),
		controls:   make(map[Framework][]string, len(cat.Frameworks)),
		mappings:   make(map[Framework]map[string][]string, len(cat.Frameworks)),
		metadata:   make(map[string]ControlMetadata, len(cat.Controls)),
	}

	for _, spec := range cat.Frameworks {
		// Validate guarantees the ID resolves.
		fw, _ := ParseFramework(string(spec.ID))

		m.frameworks = append(m.frameworks, fw)
		m.names[fw] = spec.Name
		if m.names[fw] == "" {
			m.names[fw] = fw.DisplayName()
		}

		m.aliases[normalizeAlias(string(fw))] = fw
		m.aliases[normalizeAlias(fw.DisplayName())] = fw
		for _, alias := range spec.Aliases {
			m.aliases[normalizeAlias(alias)] = fw
		}

		ids := make([]string, 0, len(spec.Mappings))
		table := make(map[string][]string, len(spec.Mappings))
		for _, entry := range spec.Mappings {
			ids = append(ids, entry.ControlID)
			table[entry.ControlID] = append([]string(nil), entry.Requirements...)
		}
		m.controls[fw] = ids
		m.mappings[fw] = table
	}

	for id, meta := range cat.Controls {
		m.metadata[id] = meta
	}

	return m, nil
}

// NewDefaultMapper builds a Mapper over the embedded default catalog.
func NewDefaultMapper() (*Mapper, error) {
	cat, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return NewMapper(cat)
}

// Frameworks returns the catalog's frameworks in catalog order.
func (m *Mapper) Frameworks() []Framework {
	return append([]Framework(nil), m.frameworks...)
}

// FrameworkName returns the descriptive name the catalog gives fw.
func (m *Mapper) FrameworkName(fw Framework) string {
	if name, ok := m.names[fw]; ok {
		return name
	}
	return fw.DisplayName()
}

// ResolveFramework maps a case-insensitive name or alias to a framework
// present in the catalog.
func (m *Mapper) ResolveFramework(name string) (Framework, bool) {
	fw, ok := m.aliases[normalizeAlias(name)]
	return fw, ok
}

// MappingsForControl returns the requirement codes of controlID for every
// catalog framework. Frameworks without a mapping get an empty, non-nil list.
func (m *Mapper) MappingsForControl(controlID string) map[Framework][]string {
	out := make(map[Framework][]string, len(m.frameworks))
	for _, fw := range m.frameworks {
		out[fw] = m.requirements(fw, controlID)
	}
	return out
}

// ControlsForFramework lists every control mapped into the named framework,
// in catalog order. Unknown names yield an empty list.
func (m *Mapper) ControlsForFramework(name string) []string {
	fw, ok := m.ResolveFramework(name)
	if !ok {
		return []string{}
	}
	return append([]string{}, m.controls[fw]...)
}

// Control returns the catalog metadata for a control.
func (m *Mapper) Control(id string) (ControlMetadata, bool) {
	meta, ok := m.metadata[id]
	return meta, ok
}

// ControlIDs returns every control the catalog knows about, either through
// metadata or a mapping, sorted.
func (m *Mapper) ControlIDs() []string {
	set := make(map[string]struct{}, len(m.metadata))
	for id := range m.metadata {
		set[id] = struct{}{}
	}
	for _, ids := range m.controls {
		for _, id := range ids {
			set[id] = struct{}{}
		}
	}

	out := make([]string, 0, len(set))
	for id := range set {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func (m *Mapper) requirements(fw Framework, controlID string) []string {
	return append([]string{}, m.mappings[fw][controlID]...)
}

func (m *Mapper) isMapped(fw Framework, controlID string) bool {
	return len(m.mappings[fw][controlID]) > 0
}
