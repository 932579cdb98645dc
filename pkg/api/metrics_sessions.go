package api

import (
	"github.com/metalblueberry/tuner/pkg/session"
	"github.com/metalblueberry/tuner/pkg/tuning"
	"github.com/prometheus/client_golang/prometheus"
)

type sessionsMetricsCollector struct {
	sessions *session.Manager

	activeDesc   *prometheus.Desc
	createdDesc  *prometheus.Desc
	reapedDesc   *prometheus.Desc
	ingestedDesc *prometheus.Desc
}

func newSessionsMetricsCollector(m *session.Manager) prometheus.Collector {
	return &sessionsMetricsCollector{
		sessions: m,
		activeDesc: prometheus.NewDesc(
			"tuner_sessions_active",
			"Number of live tuning sessions.",
			nil,
			nil,
		),
		createdDesc: prometheus.NewDesc(
			"tuner_sessions_created_total",
			"Total number of sessions created.",
			nil,
			nil,
		),
		reapedDesc: prometheus.NewDesc(
			"tuner_sessions_reaped_total",
			"Total number of sessions dropped for being idle.",
			nil,
			nil,
		),
		ingestedDesc: prometheus.NewDesc(
			"tuner_samples_ingested_total",
			"Total number of samples ingested by resulting tuning state.",
			[]string{"state"},
			nil,
		),
	}
}

func (c *sessionsMetricsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeDesc
	ch <- c.createdDesc
	ch <- c.reapedDesc
	ch <- c.ingestedDesc
}

func (c *sessionsMetricsCollector) Collect(ch chan<- prometheus.Metric) {
	if c == nil || c.sessions == nil {
		return
	}
	s := c.sessions.StatsSnapshot()
	ch <- prometheus.MustNewConstMetric(c.activeDesc, prometheus.GaugeValue, float64(s.Active))
	ch <- prometheus.MustNewConstMetric(c.createdDesc, prometheus.CounterValue, float64(s.Created))
	ch <- prometheus.MustNewConstMetric(c.reapedDesc, prometheus.CounterValue, float64(s.Reaped))
	for _, status := range []tuning.Status{tuning.StatusSilent, tuning.StatusInTune, tuning.StatusSharp, tuning.StatusFlat} {
		ch <- prometheus.MustNewConstMetric(c.ingestedDesc, prometheus.CounterValue, float64(s.Ingested[status]), string(status))
	}
}
