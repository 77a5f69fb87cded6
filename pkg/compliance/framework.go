package compliance

import "strings"

// Framework identifies a regulatory or security standard. The set is closed:
// catalogs may only provide tables for the frameworks declared here.
type Framework string

const (
	FrameworkCIS  Framework = "CIS"
	FrameworkASB  Framework = "ASB"
	FrameworkNIST Framework = "NIST"
)

// KnownFrameworks lists every supported framework in canonical order.
var KnownFrameworks = []Framework{FrameworkCIS, FrameworkASB, FrameworkNIST}

var frameworkDisplayNames = map[Framework]string{
	FrameworkCIS:  "CIS",
	FrameworkASB:  "Azure Security Benchmark",
	FrameworkNIST: "NIST",
}

// DisplayName returns the name used for the framework in control tags and
// rendered reports.
func (f Framework) DisplayName() string {
	if name, ok := frameworkDisplayNames[f]; ok {
		return name
	}
	return string(f)
}

// Valid reports whether f is one of the known frameworks.
func (f Framework) Valid() bool {
	_, ok := frameworkDisplayNames[f]
	return ok
}

// builtinAliases maps the canonical ID and display name of every framework.
func builtinAliases() map[string]Framework {
	aliases := make(map[string]Framework, len(KnownFrameworks)*2)
	for _, fw := range KnownFrameworks {
		aliases[normalizeAlias(string(fw))] = fw
		aliases[normalizeAlias(fw.DisplayName())] = fw
	}
	return aliases
}

// ParseFramework resolves a framework name using the built-in aliases only.
// Use Mapper.ResolveFramework to include catalog-defined aliases.
func ParseFramework(name string) (Framework, bool) {
	fw, ok := builtinAliases()[normalizeAlias(name)]
	return fw, ok
}

func normalizeAlias(name string) string {
	return strings.ToUpper(strings.Join(strings.Fields(name), " "))
}
