package compliance

// CoverageReport describes how much of a framework a profile addresses.
type CoverageReport struct {
	Framework              Framework `json:"framework,omitempty"`
	TotalFrameworkControls int       `json:"total_framework_controls"`
	CoveredControls        int       `json:"covered_controls"`
	CoveragePercentage     float64   `json:"coverage_percentage"`
	CoveredControlIDs      []string  `json:"covered_control_ids"`
	MissingControls        []string  `json:"missing_controls"`
}

// ValidateFrameworkCoverage intersects the profile's control IDs with each
// requested framework's control list. Covered and missing controls partition
// the framework list and keep its order. Keys follow the same rules as
// GenerateComplianceReport.
func (m *Mapper) ValidateFrameworkCoverage(profileControlIDs []string, frameworks []string) map[string]*CoverageReport {
	profile := make(map[string]struct{}, len(profileControlIDs))
	for _, id := range profileControlIDs {
		profile[id] = struct{}{}
	}

	names := m.requestedFrameworks(frameworks)
	reports := make(map[string]*CoverageReport, len(names))

	for _, name := range names {
		report := &CoverageReport{
			CoveredControlIDs: []string{},
			MissingControls:   []string{},
		}
		reports[name] = report

		fw, ok := m.ResolveFramework(name)
		if !ok {
			continue
		}
		report.Framework = fw

		for _, id := range m.controls[fw] {
			if _, covered := profile[id]; covered {
				report.CoveredControlIDs = append(report.CoveredControlIDs, id)
			} else {
				report.MissingControls = append(report.MissingControls, id)
			}
		}

		report.TotalFrameworkControls = len(m.controls[fw])
		report.CoveredControls = len(report.CoveredControlIDs)
		report.CoveragePercentage = percentage(report.CoveredControls, report.TotalFrameworkControls)
	}

	return reports
}
