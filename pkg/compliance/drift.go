package compliance

import (
	"slices"
	"sort"
)

// DriftKind classifies a disagreement between a control's declared framework
// tags and the catalog's mapping tables.
type DriftKind string

const (
	// DriftUntagged: the catalog maps the control but the control declares no
	// tag for that framework.
	DriftUntagged DriftKind = "untagged"
	// DriftUnmapped: the control declares a tag the catalog does not map.
	DriftUnmapped DriftKind = "unmapped"
	// DriftMismatch: both sides exist with different requirement codes.
	DriftMismatch DriftKind = "mismatch"
)

// DriftFinding reports one control/framework disagreement.
type DriftFinding struct {
	ControlID string    `json:"control_id"`
	Framework Framework `json:"framework"`
	Kind      DriftKind `json:"kind"`
	Declared  []string  `json:"declared"`
	Mapped    []string  `json:"mapped"`
}

// CheckDrift compares declared tags (control ID → tag name → codes) with the
// mapping tables. Tag names resolve through the alias table; tags that name
// no catalog framework are ignored. Only controls present in declared are
// checked. Findings are ordered by control ID, then catalog framework order.
func (m *Mapper) CheckDrift(declared map[string]map[string][]string) []DriftFinding {
	ids := make([]string, 0, len(declared))
	for id := range declared {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	findings := make([]DriftFinding, 0)
	for _, id := range ids {
		tags := m.resolveTags(declared[id])

		for _, fw := range m.frameworks {
			mapped := m.requirements(fw, id)
			decl, tagged := tags[fw]

			var kind DriftKind
			switch {
			case tagged && len(mapped) == 0:
				kind = DriftUnmapped
			case !tagged && len(mapped) > 0:
				kind = DriftUntagged
			case tagged && !sameCodes(decl, mapped):
				kind = DriftMismatch
			default:
				continue
			}

			if decl == nil {
				decl = []string{}
			}
			findings = append(findings, DriftFinding{
				ControlID: id,
				Framework: fw,
				Kind:      kind,
				Declared:  decl,
				Mapped:    mapped,
			})
		}
	}

	return findings
}

func (m *Mapper) resolveTags(tags map[string][]string) map[Framework][]string {
	out := make(map[Framework][]string)
	for name, codes := range tags {
		fw, ok := m.ResolveFramework(name)
		if !ok {
			continue
		}
		out[fw] = appendUnique(out[fw], codes...)
	}
	for fw := range out {
		sort.Strings(out[fw])
	}
	return out
}

func appendUnique(dst []string, values ...string) []string {
	for _, v := range values {
		if !slices.Contains(dst, v) {
			dst = append(dst, v)
		}
	}
	return dst
}

func sameCodes(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, code := range a {
		set[code] = struct{}{}
	}
	if len(set) != len(b) {
		return false
	}
	for _, code := range b {
		if _, ok := set[code]; !ok {
			return false
		}
	}
	return true
}
