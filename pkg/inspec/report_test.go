package inspec

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nelssec/aso-compliance/pkg/compliance"
)

func loadFixture(t *testing.T) *Report {
	t.Helper()
	report, err := ParseFile(filepath.Join("testdata", "aso-baseline.json"))
	require.NoError(t, err)
	return report
}

func TestResults(t *testing.T) {
	report := loadFixture(t)

	assert.Equal(t, []compliance.ControlResult{
		{ControlID: "aks-rbac-enabled", Status: compliance.StatusPassed},
		{ControlID: "aks-node-pool-encryption", Status: compliance.StatusFailed},
		{ControlID: "keyvault-purge-protection-enabled", Status: compliance.StatusSkipped},
		{ControlID: "vnet-ddos-protection", Status: compliance.StatusFailed},
		{ControlID: "uami-least-privilege", Status: compliance.StatusSkipped},
		{ControlID: "resourcegroup-tags-required", Status: compliance.StatusPassed},
	}, report.Results())
}

func TestProfileControlIDs(t *testing.T) {
	report := loadFixture(t)

	assert.Equal(t, []string{
		"aks-rbac-enabled",
		"aks-node-pool-encryption",
		"keyvault-purge-protection-enabled",
		"vnet-ddos-protection",
		"uami-least-privilege",
		"resourcegroup-tags-required",
	}, report.ProfileControlIDs())
}

func TestTags(t *testing.T) {
	report := loadFixture(t)
	tags := report.Tags()

	assert.Equal(t, map[string][]string{
		"CIS":                      {"CIS-5.2.1"},
		"Azure Security Benchmark": {"ASB-4.1"},
		"NIST":                     {"AC-3", "AC-6"},
		"severity":                 {"critical"},
	}, tags["aks-rbac-enabled"])
	assert.Equal(t, map[string][]string{"CIS": {"CIS-2.1.1"}}, tags["aks-node-pool-encryption"])
	assert.Empty(t, tags["keyvault-purge-protection-enabled"])
	assert.Contains(t, tags, "uami-least-privilege")
}

func TestMetadata(t *testing.T) {
	report := loadFixture(t)
	meta := report.Metadata()

	assert.Equal(t, compliance.ControlMetadata{Title: "AKS cluster should have RBAC enabled", Impact: 1.0}, meta["aks-rbac-enabled"])
	assert.Equal(t, 0.3, meta["resourcegroup-tags-required"].Impact)
}

func TestControlStatus(t *testing.T) {
	tests := []struct {
		name     string
		statuses []string
		want     compliance.Status
	}{
		{"no results", nil, compliance.StatusSkipped},
		{"all passed", []string{"passed", "passed"}, compliance.StatusPassed},
		{"all skipped", []string{"skipped", "skipped"}, compliance.StatusSkipped},
		{"passed and skipped", []string{"skipped", "passed"}, compliance.StatusPassed},
		{"one failed", []string{"passed", "failed", "skipped"}, compliance.StatusFailed},
		{"errored", []string{"error"}, compliance.StatusFailed},
		{"unrecognised", []string{"passed", "pending"}, compliance.StatusFailed},
		{"mixed case", []string{"PASSED", " Skipped"}, compliance.StatusPassed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var c Control
			for _, s := range tt.statuses {
				c.Results = append(c.Results, Result{Status: s})
			}
			assert.Equal(t, tt.want, c.Status())
		})
	}
}

func TestParse_Errors(t *testing.T) {
	_, err := Parse(strings.NewReader(`{"profiles": []}`))
	assert.ErrorIs(t, err, ErrNoProfiles)

	_, err = Parse(strings.NewReader(`{"profiles": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode inspec report")

	_, err = ParseFile(filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
}

func TestResults_FeedMapper(t *testing.T) {
	report := loadFixture(t)

	m, err := compliance.NewDefaultMapper()
	require.NoError(t, err)

	reports, err := m.GenerateComplianceReport(report.Results(), []string{"CIS"})
	require.NoError(t, err)
	cis := reports["CIS"]
	assert.Equal(t, cis.TotalControls, cis.PassedControls+cis.FailedControls+cis.SkippedControls)
	assert.Positive(t, cis.TotalControls)
}
