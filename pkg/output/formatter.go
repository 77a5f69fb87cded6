package output

import (
	"bytes"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/nelssec/aso-compliance/pkg/compliance"
	"github.com/nelssec/aso-compliance/pkg/config"
	"github.com/nelssec/aso-compliance/pkg/gate"
)

// Document is everything a single command run produces. Maps are keyed by the
// framework names as requested; Frameworks gives their rendering order.
type Document struct {
	GeneratedAt time.Time                               `json:"generated_at"`
	Frameworks  []string                                `json:"frameworks"`
	Names       map[string]string                       `json:"-"`
	Compliance  map[string]*compliance.ComplianceReport `json:"compliance,omitempty"`
	Coverage    map[string]*compliance.CoverageReport   `json:"coverage,omitempty"`
	Drift       []compliance.DriftFinding               `json:"drift,omitempty"`
	Gate        *gate.Decision                          `json:"gate,omitempty"`
}

func (d *Document) title(key string) string {
	if name, ok := d.Names[key]; ok && name != "" {
		return name
	}
	return key
}

type Formatter interface {
	Format(*Document) ([]byte, error)
}

// New returns the formatter for a validated format name. Console output is
// coloured only when w is a terminal.
func New(format string, w io.Writer) (Formatter, error) {
	if err := config.ValidateOutputFormat(format); err != nil {
		return nil, fmt.Errorf("%w: %q", err, format)
	}

	switch strings.ToLower(format) {
	case "json":
		return NewJSONFormatter(), nil
	case "junit":
		return NewJUnitFormatter(), nil
	default:
		return NewConsoleFormatter(!isTerminal(w)), nil
	}
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}

type JSONFormatter struct{}

func NewJSONFormatter() *JSONFormatter {
	return &JSONFormatter{}
}

func (f *JSONFormatter) Format(doc *Document) ([]byte, error) {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

type ConsoleFormatter struct {
	bold   *color.Color
	pass   *color.Color
	fail   *color.Color
	skip   *color.Color
	header *color.Color
}

func NewConsoleFormatter(noColor bool) *ConsoleFormatter {
	f := &ConsoleFormatter{
		bold:   color.New(color.Bold),
		pass:   color.New(color.FgGreen),
		fail:   color.New(color.FgRed),
		skip:   color.New(color.FgYellow),
		header: color.New(color.FgCyan, color.Bold),
	}

	for _, c := range []*color.Color{f.bold, f.pass, f.fail, f.skip, f.header} {
		if noColor {
			c.DisableColor()
		} else {
			c.EnableColor()
		}
	}
	return f
}

func (f *ConsoleFormatter) status(s compliance.Status) string {
	label := strings.ToUpper(string(s))
	switch s {
	case compliance.StatusPassed:
		return f.pass.Sprint(label)
	case compliance.StatusFailed:
		return f.fail.Sprint(label)
	default:
		return f.skip.Sprint(label)
	}
}

func (f *ConsoleFormatter) Format(doc *Document) ([]byte, error) {
	var buf bytes.Buffer

	if !doc.GeneratedAt.IsZero() {
		buf.WriteString(fmt.Sprintf("Generated: %s\n", doc.GeneratedAt.UTC().Format("2006-01-02 15:04:05 UTC")))
	}

	for _, key := range doc.Frameworks {
		buf.WriteString("\n" + f.header.Sprintf("=== %s ===", doc.title(key)) + "\n")

		if report, ok := doc.Compliance[key]; ok {
			f.writeCompliance(&buf, report)
		}
		if report, ok := doc.Coverage[key]; ok {
			f.writeCoverage(&buf, report)
		}
	}

	if len(doc.Drift) > 0 {
		buf.WriteString("\n" + f.header.Sprint("=== Tag drift ===") + "\n")
		for _, d := range doc.Drift {
			buf.WriteString(fmt.Sprintf("[%s] %s (%s)\n", f.skip.Sprint(d.Kind), d.ControlID, d.Framework))
			buf.WriteString(fmt.Sprintf("  declared: %s\n", codes(d.Declared)))
			buf.WriteString(fmt.Sprintf("  mapped:   %s\n", codes(d.Mapped)))
		}
	}

	if doc.Gate != nil {
		buf.WriteString("\n")
		if doc.Gate.Allowed {
			buf.WriteString(f.bold.Sprint("Gate: ") + f.pass.Sprint("PASSED") + "\n")
		} else {
			buf.WriteString(f.bold.Sprint("Gate: ") + f.fail.Sprint("DENIED") + "\n")
			for _, v := range doc.Gate.Violations {
				buf.WriteString(fmt.Sprintf("  - %s\n", v))
			}
		}
	}

	return buf.Bytes(), nil
}

func (f *ConsoleFormatter) writeCompliance(buf *bytes.Buffer, report *compliance.ComplianceReport) {
	if report.Framework == "" {
		buf.WriteString("Unknown framework\n")
		return
	}

	buf.WriteString(fmt.Sprintf("Compliance: %s\n", f.bold.Sprintf("%.2f%%", report.CompliancePercentage)))
	buf.WriteString(fmt.Sprintf("Total Controls: %d | Passed: %d | Failed: %d | Skipped: %d\n",
		report.TotalControls, report.PassedControls, report.FailedControls, report.SkippedControls))

	if len(report.ControlResults) == 0 {
		return
	}
	buf.WriteString(strings.Repeat("-", 80) + "\n")
	for _, r := range report.ControlResults {
		buf.WriteString(fmt.Sprintf("[%s] %s  %s\n", f.status(r.Status), r.ControlID, codes(r.FrameworkMappings)))
	}
}

func (f *ConsoleFormatter) writeCoverage(buf *bytes.Buffer, report *compliance.CoverageReport) {
	if report.Framework == "" {
		buf.WriteString("Unknown framework\n")
		return
	}

	buf.WriteString(fmt.Sprintf("Coverage: %s (%d/%d controls)\n",
		f.bold.Sprintf("%.2f%%", report.CoveragePercentage), report.CoveredControls, report.TotalFrameworkControls))
	if len(report.MissingControls) > 0 {
		buf.WriteString("Missing Controls:\n")
		for _, id := range report.MissingControls {
			buf.WriteString(fmt.Sprintf("  %s\n", f.fail.Sprint(id)))
		}
	}
}

func codes(c []string) string {
	if len(c) == 0 {
		return "-"
	}
	return strings.Join(c, ", ")
}

type JUnitFormatter struct{}

func NewJUnitFormatter() *JUnitFormatter {
	return &JUnitFormatter{}
}

type junitTestSuites struct {
	XMLName    xml.Name         `xml:"testsuites"`
	Tests      int              `xml:"tests,attr"`
	Failures   int              `xml:"failures,attr"`
	Skipped    int              `xml:"skipped,attr"`
	Time       float64          `xml:"time,attr"`
	TestSuites []junitTestSuite `xml:"testsuite"`
}

type junitTestSuite struct {
	Name      string          `xml:"name,attr"`
	Tests     int             `xml:"tests,attr"`
	Failures  int             `xml:"failures,attr"`
	Errors    int             `xml:"errors,attr"`
	Skipped   int             `xml:"skipped,attr"`
	Time      float64         `xml:"time,attr"`
	TestCases []junitTestCase `xml:"testcase"`
}

type junitTestCase struct {
	Name      string        `xml:"name,attr"`
	ClassName string        `xml:"classname,attr"`
	Time      float64       `xml:"time,attr"`
	Failure   *junitFailure `xml:"failure,omitempty"`
	Skipped   *junitSkipped `xml:"skipped,omitempty"`
}

type junitFailure struct {
	Message string `xml:"message,attr"`
	Type    string `xml:"type,attr"`
	Content string `xml:",chardata"`
}

type junitSkipped struct {
	Message string `xml:"message,attr,omitempty"`
}

// Format emits one suite per framework compliance report, then one suite per
// coverage report where missing controls are failures.
func (f *JUnitFormatter) Format(doc *Document) ([]byte, error) {
	suites := junitTestSuites{
		TestSuites: make([]junitTestSuite, 0),
	}

	for _, key := range doc.Frameworks {
		report, ok := doc.Compliance[key]
		if !ok || report.Framework == "" {
			continue
		}

		suite := junitTestSuite{
			Name:      doc.title(key),
			Tests:     report.TotalControls,
			Failures:  report.FailedControls,
			Skipped:   report.SkippedControls,
			TestCases: make([]junitTestCase, 0, len(report.ControlResults)),
		}

		for _, r := range report.ControlResults {
			tc := junitTestCase{
				Name:      r.ControlID,
				ClassName: string(report.Framework),
			}

			switch r.Status {
			case compliance.StatusFailed:
				tc.Failure = &junitFailure{
					Message: fmt.Sprintf("control %s failed", r.ControlID),
					Type:    string(r.Status),
					Content: fmt.Sprintf("Requirements: %s", codes(r.FrameworkMappings)),
				}
			case compliance.StatusSkipped:
				tc.Skipped = &junitSkipped{Message: fmt.Sprintf("control %s skipped", r.ControlID)}
			}

			suite.TestCases = append(suite.TestCases, tc)
		}

		suites.add(suite)
	}

	for _, key := range doc.Frameworks {
		report, ok := doc.Coverage[key]
		if !ok || report.Framework == "" {
			continue
		}

		suite := junitTestSuite{
			Name:      "coverage: " + doc.title(key),
			Tests:     report.TotalFrameworkControls,
			Failures:  len(report.MissingControls),
			TestCases: make([]junitTestCase, 0, report.TotalFrameworkControls),
		}
		for _, id := range report.CoveredControlIDs {
			suite.TestCases = append(suite.TestCases, junitTestCase{Name: id, ClassName: string(report.Framework)})
		}
		for _, id := range report.MissingControls {
			suite.TestCases = append(suite.TestCases, junitTestCase{
				Name:      id,
				ClassName: string(report.Framework),
				Failure: &junitFailure{
					Message: fmt.Sprintf("control %s is not implemented by the profile", id),
					Type:    "missing",
				},
			})
		}

		suites.add(suite)
	}

	var buf bytes.Buffer
	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")

	encoder := xml.NewEncoder(&buf)
	encoder.Indent("", "  ")
	if err := encoder.Encode(suites); err != nil {
		return nil, err
	}
	buf.WriteString("\n")

	return buf.Bytes(), nil
}

func (s *junitTestSuites) add(suite junitTestSuite) {
	s.Tests += suite.Tests
	s.Failures += suite.Failures
	s.Skipped += suite.Skipped
	s.TestSuites = append(s.TestSuites, suite)
}
