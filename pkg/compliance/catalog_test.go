package compliance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultCatalog(t *testing.T) {
	cat, err := DefaultCatalog()
	require.NoError(t, err)

	require.Len(t, cat.Frameworks, 3)
	assert.Equal(t, FrameworkCIS, cat.Frameworks[0].ID)
	assert.Equal(t, FrameworkASB, cat.Frameworks[1].ID)
	assert.Equal(t, FrameworkNIST, cat.Frameworks[2].ID)

	assert.Len(t, cat.Frameworks[0].Mappings, 12)
	assert.Len(t, cat.Frameworks[1].Mappings, 24)
	assert.Len(t, cat.Frameworks[2].Mappings, 18)

	// Document order is preserved.
	assert.Equal(t, "aks-rbac-enabled", cat.Frameworks[0].Mappings[0].ControlID)
	assert.Equal(t, "vnet-nsg-associations", cat.Frameworks[0].Mappings[11].ControlID)

	meta, ok := cat.Controls["aks-azure-ad-integration"]
	require.True(t, ok)
	assert.Equal(t, 0.9, meta.Impact)
}

func TestParseCatalog_JSON(t *testing.T) {
	doc := `{"version": 1, "frameworks": [{"id": "nist", "mappings": {"aks-rbac-enabled": ["AC-3"]}}]}`

	cat, err := ParseCatalog([]byte(doc))
	require.NoError(t, err)

	m, err := NewMapper(cat)
	require.NoError(t, err)
	assert.Equal(t, []Framework{FrameworkNIST}, m.Frameworks())
	assert.Equal(t, []string{"aks-rbac-enabled"}, m.ControlsForFramework("NIST"))
}

func TestParseCatalog_Errors(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantMsg string
	}{
		{
			name:    "unsupported version",
			doc:     "version: 2\nframeworks:\n  - id: CIS\n    mappings:\n      a: [CIS-1]\n",
			wantMsg: "unsupported catalog version 2",
		},
		{
			name:    "no frameworks",
			doc:     "version: 1\n",
			wantMsg: "no frameworks defined",
		},
		{
			name:    "unknown framework",
			doc:     "version: 1\nframeworks:\n  - id: SOC2\n    mappings:\n      a: [CC-1]\n",
			wantMsg: `unknown id "SOC2"`,
		},
		{
			name:    "duplicate framework",
			doc:     "version: 1\nframeworks:\n  - id: CIS\n    mappings: {}\n  - id: cis\n    mappings: {}\n",
			wantMsg: "defined more than once",
		},
		{
			name:    "alias collision",
			doc:     "version: 1\nframeworks:\n  - id: CIS\n    aliases: [NIST]\n    mappings: {}\n  - id: NIST\n    mappings: {}\n",
			wantMsg: `alias "NIST" already refers to NIST`,
		},
		{
			name:    "duplicate control",
			doc:     "version: 1\nframeworks:\n  - id: CIS\n    mappings:\n      a: [CIS-1]\n      a: [CIS-2]\n",
			wantMsg: `control "a" mapped more than once`,
		},
		{
			name:    "bad control id",
			doc:     "version: 1\nframeworks:\n  - id: CIS\n    mappings:\n      AKS_RBAC: [CIS-1]\n",
			wantMsg: `control "AKS_RBAC"`,
		},
		{
			name:    "empty requirements",
			doc:     "version: 1\nframeworks:\n  - id: CIS\n    mappings:\n      a: []\n",
			wantMsg: "has no requirement codes",
		},
		{
			name:    "duplicate code",
			doc:     "version: 1\nframeworks:\n  - id: CIS\n    mappings:\n      a: [CIS-1, CIS-1]\n",
			wantMsg: `lists "CIS-1" twice`,
		},
		{
			name:    "impact out of range",
			doc:     "version: 1\nframeworks:\n  - id: CIS\n    mappings: {}\ncontrols:\n  a:\n    title: A\n    impact: 1.5\n",
			wantMsg: "outside [0, 1]",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseCatalog([]byte(tt.doc))
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalidCatalog)
			assert.Contains(t, err.Error(), tt.wantMsg)
		})
	}
}

func TestParseCatalog_ReportsAllProblems(t *testing.T) {
	doc := "version: 3\nframeworks:\n  - id: CIS\n    mappings:\n      a: []\n      b: [CIS-1, CIS-1]\n"

	_, err := ParseCatalog([]byte(doc))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported catalog version 3")
	assert.Contains(t, err.Error(), `control "a" has no requirement codes`)
	assert.Contains(t, err.Error(), `lists "CIS-1" twice`)
}

func TestParseCatalog_MalformedMappings(t *testing.T) {
	_, err := ParseCatalog([]byte("version: 1\nframeworks:\n  - id: CIS\n    mappings: [a, b]\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "mappings must be a map")

	_, err = ParseCatalog([]byte("version: 1\nframeworks:\n  - id: CIS\n    mappings:\n      a: {code: CIS-1}\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), `mapping for "a"`)
}

func TestParseFramework(t *testing.T) {
	tests := map[string]Framework{
		"CIS":                      FrameworkCIS,
		"cis":                      FrameworkCIS,
		"ASB":                      FrameworkASB,
		"Azure Security Benchmark": FrameworkASB,
		"AZURE SECURITY BENCHMARK": FrameworkASB,
		"nist":                     FrameworkNIST,
	}
	for name, want := range tests {
		got, ok := ParseFramework(name)
		assert.True(t, ok, name)
		assert.Equal(t, want, got, name)
	}

	_, ok := ParseFramework("PCI")
	assert.False(t, ok)
	assert.False(t, Framework("PCI").Valid())
	assert.Equal(t, "Azure Security Benchmark", FrameworkASB.DisplayName())
}
