package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateFrameworkCoverage_Example(t *testing.T) {
	m, err := NewMapper(&Catalog{
		Version: CatalogVersion,
		Frameworks: []FrameworkSpec{{
			ID: FrameworkCIS,
			Mappings: MappingTable{
				{ControlID: "a", Requirements: []string{"CIS-1"}},
				{ControlID: "b", Requirements: []string{"CIS-2"}},
				{ControlID: "c", Requirements: []string{"CIS-3"}},
			},
		}},
	})
	require.NoError(t, err)

	reports := m.ValidateFrameworkCoverage([]string{"a", "d"}, []string{"CIS"})
	require.Contains(t, reports, "CIS")

	cis := reports["CIS"]
	assert.Equal(t, 3, cis.TotalFrameworkControls)
	assert.Equal(t, 1, cis.CoveredControls)
	assert.Equal(t, []string{"a"}, cis.CoveredControlIDs)
	assert.Equal(t, []string{"b", "c"}, cis.MissingControls)
	assert.Equal(t, 33.33, cis.CoveragePercentage)
}

func TestValidateFrameworkCoverage_Partition(t *testing.T) {
	m, err := NewDefaultMapper()
	require.NoError(t, err)

	profiles := [][]string{
		nil,
		{"aks-rbac-enabled"},
		{"aks-rbac-enabled", "aks-rbac-enabled", "vnet-ddos-protection", "unknown-control"},
		m.ControlIDs(),
	}

	for _, profile := range profiles {
		reports := m.ValidateFrameworkCoverage(profile, nil)
		require.Len(t, reports, len(m.Frameworks()))

		for _, fw := range m.Frameworks() {
			report := reports[string(fw)]
			all := m.ControlsForFramework(string(fw))

			assert.Equal(t, len(all), report.TotalFrameworkControls)
			assert.Equal(t, len(all), len(report.CoveredControlIDs)+len(report.MissingControls))
			assert.ElementsMatch(t, all, append(append([]string{}, report.CoveredControlIDs...), report.MissingControls...))
			assert.GreaterOrEqual(t, report.CoveragePercentage, 0.0)
			assert.LessOrEqual(t, report.CoveragePercentage, 100.0)
		}
	}
}

func TestValidateFrameworkCoverage_FullProfile(t *testing.T) {
	m, err := NewDefaultMapper()
	require.NoError(t, err)

	reports := m.ValidateFrameworkCoverage(m.ControlIDs(), []string{"cis", "asb", "nist"})
	for name, report := range reports {
		assert.Equal(t, 100.0, report.CoveragePercentage, name)
		assert.Empty(t, report.MissingControls, name)
	}
	assert.Equal(t, 12, reports["cis"].TotalFrameworkControls)
	assert.Equal(t, 24, reports["asb"].TotalFrameworkControls)
	assert.Equal(t, 18, reports["nist"].TotalFrameworkControls)
}

func TestValidateFrameworkCoverage_UnknownFramework(t *testing.T) {
	m := newTestMapper(t)

	reports := m.ValidateFrameworkCoverage([]string{"aks-rbac-enabled"}, []string{"ISO27001"})
	report := reports["ISO27001"]
	require.NotNil(t, report)
	assert.Zero(t, report.TotalFrameworkControls)
	assert.Zero(t, report.CoveragePercentage)
	assert.NotNil(t, report.MissingControls)
	assert.Empty(t, report.MissingControls)
}

func TestValidateFrameworkCoverage_KeepsFrameworkOrder(t *testing.T) {
	m := newTestMapper(t)

	reports := m.ValidateFrameworkCoverage([]string{"keyvault-soft-delete-enabled", "aks-rbac-enabled"}, []string{"ASB"})
	assert.Equal(t, []string{"aks-rbac-enabled", "keyvault-soft-delete-enabled"}, reports["ASB"].CoveredControlIDs)
	assert.Equal(t, []string{"aks-cluster-monitoring"}, reports["ASB"].MissingControls)
	assert.Equal(t, 66.67, reports["ASB"].CoveragePercentage)
}
