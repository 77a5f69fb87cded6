// Package inspec reads the JSON reporter output of `inspec exec`.
package inspec

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/nelssec/aso-compliance/pkg/compliance"
)

// ErrNoProfiles is returned when a report contains no profiles.
var ErrNoProfiles = errors.New("report contains no profiles")

// Report is the top-level JSON reporter document.
type Report struct {
	Version    string     `json:"version"`
	Platform   Platform   `json:"platform"`
	Profiles   []Profile  `json:"profiles"`
	Statistics Statistics `json:"statistics"`
}

type Platform struct {
	Name    string `json:"name"`
	Release string `json:"release"`
	Target  string `json:"target_id,omitempty"`
}

type Statistics struct {
	Duration float64 `json:"duration"`
}

// Profile is one executed profile (the main profile or a dependency).
type Profile struct {
	Name     string    `json:"name"`
	Title    string    `json:"title"`
	Version  string    `json:"version"`
	Controls []Control `json:"controls"`
}

// Control is one executed control with its individual test results.
type Control struct {
	ID      string         `json:"id"`
	Title   string         `json:"title"`
	Desc    string         `json:"desc"`
	Impact  float64        `json:"impact"`
	Tags    map[string]any `json:"tags"`
	Results []Result       `json:"results"`
}

// Result is one `describe` outcome inside a control.
type Result struct {
	Status      string  `json:"status"`
	CodeDesc    string  `json:"code_desc"`
	RunTime     float64 `json:"run_time"`
	Message     string  `json:"message,omitempty"`
	SkipMessage string  `json:"skip_message,omitempty"`
	Exception   string  `json:"exception,omitempty"`
}

// Parse decodes a JSON reporter document.
func Parse(r io.Reader) (*Report, error) {
	var report Report
	if err := json.NewDecoder(r).Decode(&report); err != nil {
		return nil, fmt.Errorf("failed to decode inspec report: %w", err)
	}
	if len(report.Profiles) == 0 {
		return nil, ErrNoProfiles
	}
	return &report, nil
}

// ParseFile reads and decodes a JSON reporter document from disk.
func ParseFile(path string) (*Report, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	report, err := Parse(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return report, nil
}

// Status folds the control's results into a single outcome: failed if any
// result failed or did not report passed/skipped (the reporter uses "error"
// for exceptions), skipped if nothing ran, passed otherwise.
func (c Control) Status() compliance.Status {
	if len(c.Results) == 0 {
		return compliance.StatusSkipped
	}

	skipped := 0
	for _, r := range c.Results {
		status, err := compliance.ParseStatus(r.Status)
		switch {
		case err != nil, status == compliance.StatusFailed:
			return compliance.StatusFailed
		case status == compliance.StatusSkipped:
			skipped++
		}
	}
	if skipped == len(c.Results) {
		return compliance.StatusSkipped
	}
	return compliance.StatusPassed
}

// controls walks every control of every profile, first occurrence wins.
func (r *Report) controls() []Control {
	seen := make(map[string]bool)
	out := make([]Control, 0)
	for _, p := range r.Profiles {
		for _, c := range p.Controls {
			if c.ID == "" || seen[c.ID] {
				continue
			}
			seen[c.ID] = true
			out = append(out, c)
		}
	}
	return out
}

// Results converts the executed controls into control results.
func (r *Report) Results() []compliance.ControlResult {
	controls := r.controls()
	out := make([]compliance.ControlResult, 0, len(controls))
	for _, c := range controls {
		out = append(out, compliance.ControlResult{ControlID: c.ID, Status: c.Status()})
	}
	return out
}

// ProfileControlIDs lists the control IDs the profile defines, in report
// order without duplicates.
func (r *Report) ProfileControlIDs() []string {
	controls := r.controls()
	ids := make([]string, 0, len(controls))
	for _, c := range controls {
		ids = append(ids, c.ID)
	}
	return ids
}

// Metadata returns title and impact per control.
func (r *Report) Metadata() map[string]compliance.ControlMetadata {
	out := make(map[string]compliance.ControlMetadata)
	for _, c := range r.controls() {
		out[c.ID] = compliance.ControlMetadata{Title: c.Title, Impact: c.Impact}
	}
	return out
}

// Tags returns the declared framework tags per control. Tag values may be a
// single string or a list of strings; anything else (booleans, nested maps)
// is not a requirement code and is ignored.
func (r *Report) Tags() map[string]map[string][]string {
	out := make(map[string]map[string][]string)
	for _, c := range r.controls() {
		tags := make(map[string][]string)
		for key, value := range c.Tags {
			if codes := tagCodes(value); len(codes) > 0 {
				tags[key] = codes
			}
		}
		out[c.ID] = tags
	}
	return out
}

func tagCodes(value any) []string {
	switch v := value.(type) {
	case string:
		if v == "" {
			return nil
		}
		return []string{v}
	case []any:
		codes := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				codes = append(codes, s)
			}
		}
		sort.Strings(codes)
		return codes
	}
	return nil
}
