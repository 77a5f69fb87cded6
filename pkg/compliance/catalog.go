package compliance

import (
	"embed"
	"errors"
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"
	"gopkg.in/yaml.v3"

	"github.com/nelssec/aso-compliance/pkg/config"
)

// CatalogVersion is the only catalog schema version understood by this package.
const CatalogVersion = 1

// ErrInvalidCatalog wraps every catalog validation failure.
var ErrInvalidCatalog = errors.New("invalid catalog")

//go:embed catalog/default.yaml
var defaultCatalogFS embed.FS

const defaultCatalogPath = "catalog/default.yaml"

// Catalog is the mapping configuration injected into a Mapper.
type Catalog struct {
	Version    int                        `yaml:"version" json:"version"`
	Frameworks []FrameworkSpec            `yaml:"frameworks" json:"frameworks"`
	Controls   map[string]ControlMetadata `yaml:"controls,omitempty" json:"controls,omitempty"`
}

// FrameworkSpec holds one framework's aliases and its control mapping table.
type FrameworkSpec struct {
	ID       Framework    `yaml:"id" json:"id"`
	Name     string       `yaml:"name,omitempty" json:"name,omitempty"`
	Aliases  []string     `yaml:"aliases,omitempty" json:"aliases,omitempty"`
	Mappings MappingTable `yaml:"mappings" json:"mappings"`
}

// ControlMetadata describes a control independently of any framework.
type ControlMetadata struct {
	Title    string  `yaml:"title" json:"title"`
	Impact   float64 `yaml:"impact" json:"impact"`
	Resource string  `yaml:"resource,omitempty" json:"resource,omitempty"`
}

// MappingEntry associates a control with the requirement codes it satisfies.
type MappingEntry struct {
	ControlID    string   `json:"control_id"`
	Requirements []string `json:"requirements"`
}

// MappingTable is an ordered control → requirement codes table. It decodes
// from a YAML mapping and keeps the document order.
type MappingTable []MappingEntry

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *MappingTable) UnmarshalYAML(node *yaml.Node) error {
	if node.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: mappings must be a map of control id to requirement codes", node.Line)
	}

	entries := make(MappingTable, 0, len(node.Content)/2)
	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]

		var codes []string
		if err := value.Decode(&codes); err != nil {
			return fmt.Errorf("line %d: mapping for %q: %w", value.Line, key.Value, err)
		}
		entries = append(entries, MappingEntry{ControlID: key.Value, Requirements: codes})
	}

	*t = entries
	return nil
}

// ParseCatalog decodes and validates a YAML (or JSON) catalog document.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// DefaultCatalog returns the catalog embedded in the binary.
func DefaultCatalog() (*Catalog, error) {
	data, err := defaultCatalogFS.ReadFile(defaultCatalogPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", defaultCatalogPath, err)
	}
	return ParseCatalog(data)
}

// Validate reports every problem found in the catalog at once.
func (c *Catalog) Validate() error {
	var result *multierror.Error

	if c.Version != CatalogVersion {
		result = multierror.Append(result, fmt.Errorf("unsupported catalog version %d", c.Version))
	}
	if len(c.Frameworks) == 0 {
		result = multierror.Append(result, errors.New("no frameworks defined"))
	}

	aliases := builtinAliases()
	seen := make(map[Framework]bool, len(c.Frameworks))

	for i, spec := range c.Frameworks {
		fw, ok := ParseFramework(string(spec.ID))
		if !ok {
			result = multierror.Append(result, fmt.Errorf("framework #%d: unknown id %q", i+1, spec.ID))
			continue
		}
		if seen[fw] {
			result = multierror.Append(result, fmt.Errorf("framework %s: defined more than once", fw))
			continue
		}
		seen[fw] = true

		for _, alias := range spec.Aliases {
			key := normalizeAlias(alias)
			if key == "" {
				result = multierror.Append(result, fmt.Errorf("framework %s: empty alias", fw))
				continue
			}
			if other, exists := aliases[key]; exists && other != fw {
				result = multierror.Append(result, fmt.Errorf("framework %s: alias %q already refers to %s", fw, alias, other))
				continue
			}
			aliases[key] = fw
		}

		for _, err := range validateMappings(fw, spec.Mappings) {
			result = multierror.Append(result, err)
		}
	}

	for id, meta := range c.Controls {
		if err := config.ValidateControlID(id); err != nil {
			result = multierror.Append(result, fmt.Errorf("control %q: %w", id, err))
		}
		if meta.Impact < 0 || meta.Impact > 1 {
			result = multierror.Append(result, fmt.Errorf("control %q: impact %v outside [0, 1]", id, meta.Impact))
		}
	}

	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidCatalog, err)
	}
	return nil
}

func validateMappings(fw Framework, table MappingTable) []error {
	var errs []error
	controls := make(map[string]bool, len(table))

	for _, entry := range table {
		if err := config.ValidateControlID(entry.ControlID); err != nil {
			errs = append(errs, fmt.Errorf("framework %s: control %q: %w", fw, entry.ControlID, err))
		}
		if controls[entry.ControlID] {
			errs = append(errs, fmt.Errorf("framework %s: control %q mapped more than once", fw, entry.ControlID))
		}
		controls[entry.ControlID] = true

		if len(entry.Requirements) == 0 {
			errs = append(errs, fmt.Errorf("framework %s: control %q has no requirement codes", fw, entry.ControlID))
		}

		codes := make(map[string]bool, len(entry.Requirements))
		for _, code := range entry.Requirements {
			if strings.TrimSpace(code) == "" {
				errs = append(errs, fmt.Errorf("framework %s: control %q has an empty requirement code", fw, entry.ControlID))
				continue
			}
			if codes[code] {
				errs = append(errs, fmt.Errorf("framework %s: control %q lists %q twice", fw, entry.ControlID, code))
			}
			codes[code] = true
		}
	}

	return errs
}
