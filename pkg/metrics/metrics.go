// Package metrics exports compliance and coverage results as Prometheus
// gauges.
package metrics

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nelssec/aso-compliance/pkg/compliance"
)

const namespace = "aso"

// Recorder owns a private registry with the compliance gauges.
type Recorder struct {
	registry *prometheus.Registry

	compliancePercentage *prometheus.GaugeVec
	complianceControls   *prometheus.GaugeVec
	coveragePercentage   *prometheus.GaugeVec
	coverageMissing      *prometheus.GaugeVec
}

// NewRecorder creates a Recorder and registers its gauges.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		compliancePercentage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "percentage",
			Help:      "Percentage of mapped controls that passed, per framework.",
		}, []string{"framework"}),
		complianceControls: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "compliance",
			Name:      "controls",
			Help:      "Mapped control results per framework and status.",
		}, []string{"framework", "status"}),
		coveragePercentage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coverage",
			Name:      "percentage",
			Help:      "Percentage of framework controls implemented by the profile.",
		}, []string{"framework"}),
		coverageMissing: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "coverage",
			Name:      "missing_controls",
			Help:      "Framework controls the profile does not implement.",
		}, []string{"framework"}),
	}

	r.registry.MustRegister(
		r.compliancePercentage,
		r.complianceControls,
		r.coveragePercentage,
		r.coverageMissing,
	)
	return r
}

// Registry exposes the underlying registry, e.g. for an HTTP handler.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// RecordCompliance sets the compliance gauges. Reports for unknown
// frameworks are skipped.
func (r *Recorder) RecordCompliance(reports map[string]*compliance.ComplianceReport) {
	for _, report := range reports {
		if report == nil || report.Framework == "" {
			continue
		}
		fw := string(report.Framework)

		r.compliancePercentage.WithLabelValues(fw).Set(report.CompliancePercentage)
		r.complianceControls.WithLabelValues(fw, string(compliance.StatusPassed)).Set(float64(report.PassedControls))
		r.complianceControls.WithLabelValues(fw, string(compliance.StatusFailed)).Set(float64(report.FailedControls))
		r.complianceControls.WithLabelValues(fw, string(compliance.StatusSkipped)).Set(float64(report.SkippedControls))
	}
}

// RecordCoverage sets the coverage gauges.
func (r *Recorder) RecordCoverage(reports map[string]*compliance.CoverageReport) {
	for _, report := range reports {
		if report == nil || report.Framework == "" {
			continue
		}
		fw := string(report.Framework)

		r.coveragePercentage.WithLabelValues(fw).Set(report.CoveragePercentage)
		r.coverageMissing.WithLabelValues(fw).Set(float64(len(report.MissingControls)))
	}
}

// WriteTextfile writes the registry in the node-exporter textfile format.
// The file is written atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("failed to write metrics to %s: %w", path, err)
	}
	return nil
}
