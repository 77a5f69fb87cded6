package compliance

import "math"

// ComplianceReport summarises executed controls for one framework.
type ComplianceReport struct {
	Framework            Framework             `json:"framework,omitempty"`
	TotalControls        int                   `json:"total_controls"`
	PassedControls       int                   `json:"passed_controls"`
	FailedControls       int                   `json:"failed_controls"`
	SkippedControls      int                   `json:"skipped_controls"`
	CompliancePercentage float64               `json:"compliance_percentage"`
	ControlResults       []MappedControlResult `json:"control_results"`
}

// MappedControlResult is a control result annotated with the requirement
// codes it satisfies in one framework.
type MappedControlResult struct {
	ControlID         string   `json:"control_id"`
	Status            Status   `json:"status"`
	FrameworkMappings []string `json:"framework_mappings"`
}

// GenerateComplianceReport aggregates results per requested framework. The
// returned map is keyed by the framework names exactly as requested; an empty
// request means every catalog framework by canonical ID. Unknown names get a
// zero-valued report. A result with an unrecognised status rejects the whole
// batch.
func (m *Mapper) GenerateComplianceReport(results []ControlResult, frameworks []string) (map[string]*ComplianceReport, error) {
	if err := validateResults(results); err != nil {
		return nil, err
	}

	names := m.requestedFrameworks(frameworks)
	reports := make(map[string]*ComplianceReport, len(names))

	for _, name := range names {
		report := &ComplianceReport{ControlResults: []MappedControlResult{}}
		reports[name] = report

		fw, ok := m.ResolveFramework(name)
		if !ok {
			continue
		}
		report.Framework = fw

		for _, r := range results {
			if !m.isMapped(fw, r.ControlID) {
				continue
			}

			report.TotalControls++
			switch r.Status {
			case StatusPassed:
				report.PassedControls++
			case StatusFailed:
				report.FailedControls++
			case StatusSkipped:
				report.SkippedControls++
			}

			report.ControlResults = append(report.ControlResults, MappedControlResult{
				ControlID:         r.ControlID,
				Status:            r.Status,
				FrameworkMappings: m.requirements(fw, r.ControlID),
			})
		}

		report.CompliancePercentage = percentage(report.PassedControls, report.TotalControls)
	}

	return reports, nil
}

func (m *Mapper) requestedFrameworks(frameworks []string) []string {
	if len(frameworks) > 0 {
		return frameworks
	}
	names := make([]string, 0, len(m.frameworks))
	for _, fw := range m.frameworks {
		names = append(names, string(fw))
	}
	return names
}

// percentage returns part/total as a percentage rounded to two decimals, or 0
// when total is 0.
func percentage(part, total int) float64 {
	if total == 0 {
		return 0
	}
	return math.Round(float64(part)/float64(total)*100*100) / 100
}
