// Package metrics records run gauges and writes them as a node_exporter
// textfile, the usual way to export metrics from a cron job.
package metrics

import (
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "muf_rt"

// Metrics holds the gauges describing the most recent run.
type Metrics struct {
	registry *prometheus.Registry

	Records  prometheus.Gauge
	Accepted prometheus.Gauge
	Dropped  *prometheus.GaugeVec // labels: reason={invalid,stale}

	FieldMHz   *prometheus.GaugeVec // labels: stat={min,max,mean}
	EmptyField prometheus.Gauge
	Residual   prometheus.Gauge

	BandCoverage  *prometheus.GaugeVec // labels: band
	StageDuration *prometheus.GaugeVec // labels: stage
	SinkErrors    *prometheus.GaugeVec // labels: sink

	LastSuccess prometheus.Gauge
}

// New creates the gauges on a private registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Records: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "records",
			Help:      "Records in the station feed on the last run.",
		}),
		Accepted: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "accepted",
			Help:      "Observations used for interpolation on the last run.",
		}),
		Dropped: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "dropped",
			Help:      "Feed records rejected on the last run by reason.",
		}, []string{"reason"}),
		FieldMHz: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "field_mhz",
			Help:      "Interpolated MUF field statistics in MHz.",
		}, []string{"stat"}),
		EmptyField: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "empty_field",
			Help:      "1 when the last map was drawn without any observations.",
		}),
		Residual: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "residual_mhz",
			Help:      "Mean absolute station residual against the field.",
		}),
		BandCoverage: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "band_coverage_ratio",
			Help:      "Share of the globe where the MUF reaches each band.",
		}, []string{"band"}),
		StageDuration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage on the last run.",
		}, []string{"stage"}),
		SinkErrors: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "sink_errors",
			Help:      "1 when an optional sink failed on the last run.",
		}, []string{"sink"}),
		LastSuccess: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time the last map was published.",
		}),
	}

	m.registry.MustRegister(
		m.Records,
		m.Accepted,
		m.Dropped,
		m.FieldMHz,
		m.EmptyField,
		m.Residual,
		m.BandCoverage,
		m.StageDuration,
		m.SinkErrors,
		m.LastSuccess,
	)
	return m
}

// Registry exposes the gatherer, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// ObserveStage records how long a stage took.
func (m *Metrics) ObserveStage(stage string, d time.Duration) {
	m.StageDuration.WithLabelValues(stage).Set(d.Seconds())
}

// MarkSuccess stamps the publish time.
func (m *Metrics) MarkSuccess(t time.Time) {
	m.LastSuccess.Set(float64(t.UnixNano()) / 1e9)
}

// WriteTextfile writes every gauge to path in the text exposition format.
// The file is replaced atomically so the collector never reads a partial
// file. path should end in ".prom".
func (m *Metrics) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, m.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}
