// Package metrics exposes gateway state as Prometheus metrics, gathered
// from live providers at scrape time.
package metrics

import (
	"context"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// ActiveCallProvider exposes the number of calls currently in progress.
type ActiveCallProvider interface {
	ActiveCallCount() int
}

// RegistrarProvider exposes the trunk registration status.
type RegistrarProvider interface {
	RegistrarStatus() string
}

// CallStatsProvider returns call history counts grouped by outcome and the
// accumulated model cost.
type CallStatsProvider interface {
	CountByOutcome(ctx context.Context) (map[string]int64, error)
	TotalCost(ctx context.Context) (float64, error)
}

// MediaStatsProvider returns aggregate media statistics.
type MediaStatsProvider interface {
	ActiveSessionCount() int
	AggregateFramesDropped() uint64
	AggregateUnderruns() uint64
}

// FirewallProvider exposes whether the trunk firewall is filtering.
type FirewallProvider interface {
	Enabled() bool
}

// Collector is a prometheus.Collector that queries the providers at scrape
// time. Any provider may be nil.
type Collector struct {
	calls     ActiveCallProvider
	registrar RegistrarProvider
	stats     CallStatsProvider
	media     MediaStatsProvider
	firewall  FirewallProvider
	startTime time.Time

	activeCallsDesc     *prometheus.Desc
	registrarDesc       *prometheus.Desc
	callsTotalDesc      *prometheus.Desc
	costTotalDesc       *prometheus.Desc
	mediaSessionsDesc   *prometheus.Desc
	framesDroppedDesc   *prometheus.Desc
	underrunsDesc       *prometheus.Desc
	firewallEnabledDesc *prometheus.Desc
	uptimeDesc          *prometheus.Desc
}

// NewCollector creates the metrics collector.
func NewCollector(
	calls ActiveCallProvider,
	registrar RegistrarProvider,
	stats CallStatsProvider,
	media MediaStatsProvider,
	firewall FirewallProvider,
	startTime time.Time,
) *Collector {
	return &Collector{
		calls:     calls,
		registrar: registrar,
		stats:     stats,
		media:     media,
		firewall:  firewall,
		startTime: startTime,

		activeCallsDesc: prometheus.NewDesc(
			"voicegate_active_calls",
			"Number of currently active calls",
			nil, nil,
		),
		registrarDesc: prometheus.NewDesc(
			"voicegate_trunk_registered",
			"Trunk registration status (1=registered, 0=other)",
			[]string{"status"}, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"voicegate_calls_total",
			"Total calls processed, by outcome",
			[]string{"outcome"}, nil,
		),
		costTotalDesc: prometheus.NewDesc(
			"voicegate_model_cost_usd_total",
			"Accumulated speech model cost in USD",
			nil, nil,
		),
		mediaSessionsDesc: prometheus.NewDesc(
			"voicegate_media_sessions_active",
			"Number of active RTP media sessions",
			nil, nil,
		),
		framesDroppedDesc: prometheus.NewDesc(
			"voicegate_playout_frames_dropped_total",
			"Outgoing audio frames dropped by the bounded playout queue",
			nil, nil,
		),
		underrunsDesc: prometheus.NewDesc(
			"voicegate_playout_underruns_total",
			"Silence frames substituted on playout underrun",
			nil, nil,
		),
		firewallEnabledDesc: prometheus.NewDesc(
			"voicegate_firewall_enabled",
			"Whether the trunk firewall is filtering (1=enabled)",
			nil, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"voicegate_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeCallsDesc
	ch <- c.registrarDesc
	ch <- c.callsTotalDesc
	ch <- c.costTotalDesc
	ch <- c.mediaSessionsDesc
	ch <- c.framesDroppedDesc
	ch <- c.underrunsDesc
	ch <- c.firewallEnabledDesc
	ch <- c.uptimeDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.calls != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeCallsDesc, prometheus.GaugeValue,
			float64(c.calls.ActiveCallCount()),
		)
	}

	if c.registrar != nil {
		status := c.registrar.RegistrarStatus()
		val := 0.0
		if status == "registered" {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(
			c.registrarDesc, prometheus.GaugeValue, val, status,
		)
	}

	if c.stats != nil {
		counts, err := c.stats.CountByOutcome(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by outcome", "error", err)
		} else {
			for outcome, n := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue,
					float64(n), outcome,
				)
			}
		}

		cost, err := c.stats.TotalCost(ctx)
		if err != nil {
			slog.Error("metrics: failed to sum call cost", "error", err)
		} else {
			ch <- prometheus.MustNewConstMetric(
				c.costTotalDesc, prometheus.CounterValue, cost,
			)
		}
	}

	if c.media != nil {
		ch <- prometheus.MustNewConstMetric(
			c.mediaSessionsDesc, prometheus.GaugeValue,
			float64(c.media.ActiveSessionCount()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.framesDroppedDesc, prometheus.CounterValue,
			float64(c.media.AggregateFramesDropped()),
		)
		ch <- prometheus.MustNewConstMetric(
			c.underrunsDesc, prometheus.CounterValue,
			float64(c.media.AggregateUnderruns()),
		)
	}

	if c.firewall != nil {
		val := 0.0
		if c.firewall.Enabled() {
			val = 1.0
		}
		ch <- prometheus.MustNewConstMetric(
			c.firewallEnabledDesc, prometheus.GaugeValue, val,
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}
