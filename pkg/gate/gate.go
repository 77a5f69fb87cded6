// Package gate decides whether a compliance run is acceptable by evaluating
// Rego deny rules over the generated reports.
package gate

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/open-policy-agent/opa/rego"

	"github.com/nelssec/aso-compliance/pkg/compliance"
)

// Query is the rule set every gate policy must define.
const Query = "data.aso.gate.deny"

//go:embed policies/*.rego
var policies embed.FS

const defaultPolicyPath = "policies/default.rego"

// Thresholds parameterise the default policy. Zero values disable a check.
type Thresholds struct {
	MinCompliance    float64  `json:"min_compliance,omitempty"`
	MinCoverage      float64  `json:"min_coverage,omitempty"`
	BlockingControls []string `json:"blocking_controls,omitempty"`
}

// Input is the document the policy is evaluated against.
type Input struct {
	Results    []compliance.ControlResult              `json:"results"`
	Compliance map[string]*compliance.ComplianceReport `json:"compliance"`
	Coverage   map[string]*compliance.CoverageReport   `json:"coverage,omitempty"`
	Thresholds Thresholds                              `json:"thresholds"`
}

// Decision is the outcome of a gate evaluation.
type Decision struct {
	Allowed    bool     `json:"allowed"`
	Violations []string `json:"violations"`
}

// Gate holds a prepared policy query.
type Gate struct {
	query  rego.PreparedEvalQuery
	logger *slog.Logger
}

// Option configures a Gate.
type Option func(*Gate)

// WithLogger sets the gate's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(g *Gate) {
		g.logger = logger
	}
}

// New compiles a Rego module defining data.aso.gate.deny.
func New(ctx context.Context, name, module string, opts ...Option) (*Gate, error) {
	g := &Gate{logger: slog.Default().With("component", "gate")}
	for _, opt := range opts {
		opt(g)
	}

	query, err := rego.New(
		rego.Query(Query),
		rego.Module(name, module),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile gate policy %s: %w", name, err)
	}

	g.query = query
	return g, nil
}

// NewDefault compiles the embedded default policy.
func NewDefault(ctx context.Context, opts ...Option) (*Gate, error) {
	content, err := policies.ReadFile(defaultPolicyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", defaultPolicyPath, err)
	}
	return New(ctx, defaultPolicyPath, string(content), opts...)
}

// NewFromFile compiles a policy from disk.
func NewFromFile(ctx context.Context, path string, opts ...Option) (*Gate, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	return New(ctx, path, string(content), opts...)
}

// Evaluate runs the policy. Every deny message becomes a violation; the run
// is allowed when there are none.
func (g *Gate) Evaluate(ctx context.Context, in Input) (*Decision, error) {
	input, err := buildInput(in)
	if err != nil {
		return nil, fmt.Errorf("failed to build policy input: %w", err)
	}

	results, err := g.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return nil, fmt.Errorf("failed to evaluate gate policy: %w", err)
	}

	decision := &Decision{Violations: make([]string, 0)}
	if len(results) > 0 && len(results[0].Expressions) > 0 {
		values, ok := results[0].Expressions[0].Value.([]interface{})
		if !ok {
			return nil, fmt.Errorf("gate policy returned %T, expected a set of messages", results[0].Expressions[0].Value)
		}
		for _, v := range values {
			msg, ok := v.(string)
			if !ok {
				msg = fmt.Sprintf("%v", v)
			}
			decision.Violations = append(decision.Violations, msg)
		}
	}

	sort.Strings(decision.Violations)
	decision.Allowed = len(decision.Violations) == 0

	g.logger.Debug("gate evaluated", "allowed", decision.Allowed, "violations", len(decision.Violations))
	return decision, nil
}

// buildInput converts the input to plain JSON values so the policy sees the
// same field names as the JSON output.
func buildInput(in Input) (map[string]interface{}, error) {
	data, err := json.Marshal(in)
	if err != nil {
		return nil, err
	}

	var input map[string]interface{}
	if err := json.Unmarshal(data, &input); err != nil {
		return nil, err
	}
	return input, nil
}
