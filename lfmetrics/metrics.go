// Package lfmetrics exposes Prometheus counters and gauges for the
// operations spec.md's containers perform: hazard-pointer scans and
// reclamations, hash set resizes, and skip list CAS retries.
//
// Grounded on the teacher's middleware/metrics/metrics.go: a set of
// prometheus.CounterVec/GaugeVec fields built in New and registered once
// against the prometheus.Registerer passed to New.
package lfmetrics

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds every counter and gauge this module's containers update.
type Metrics struct {
	hazardScans     prometheus.Counter
	hazardRetired   prometheus.Counter
	hazardFreed     prometheus.Counter
	hazardLiveNodes *prometheus.GaugeVec

	hashsetResizes   *prometheus.CounterVec
	hashsetBuckets   prometheus.Counter
	hashsetCASRetry  *prometheus.CounterVec
	skiplistCASRetry *prometheus.CounterVec
}

// New builds and registers a Metrics against reg. Pass
// prometheus.NewRegistry() in tests to avoid colliding with a
// process-global default registry across package instances.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		hazardScans: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfindex_hazard_scans_total",
			Help: "How many times a hazard domain's Scan ran.",
		}),
		hazardRetired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfindex_hazard_retired_total",
			Help: "How many nodes were handed to a hazard domain for retirement.",
		}),
		hazardFreed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfindex_hazard_freed_total",
			Help: "How many retired nodes a hazard domain actually freed.",
		}),
		hazardLiveNodes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "lfindex_hazard_live_nodes",
			Help: "Nodes currently reachable in a domain's container.",
		}, []string{"domain"}),
		hashsetResizes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lfindex_hashset_resizes_total",
			Help: "How many times a hash set doubled its bucket capacity.",
		}, []string{"set"}),
		hashsetBuckets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "lfindex_hashset_buckets_materialized_total",
			Help: "How many bucket lists were recursively materialized.",
		}),
		hashsetCASRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lfindex_hashset_cas_retries_total",
			Help: "CAS retries during hash set insert.",
		}, []string{"set"}),
		skiplistCASRetry: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "lfindex_skiplist_cas_retries_total",
			Help: "CAS retries during skip list insert/remove.",
		}, []string{"list"}),
	}

	for _, c := range []prometheus.Collector{
		m.hazardScans, m.hazardRetired, m.hazardFreed, m.hazardLiveNodes,
		m.hashsetResizes, m.hashsetBuckets, m.hashsetCASRetry, m.skiplistCASRetry,
	} {
		_ = reg.Register(c)
	}

	return m
}

// HazardRetiredCounter, HazardScansCounter and HazardFreedCounter expose
// the underlying collectors for tests that want to read a value back via
// prometheus/client_golang/prometheus/testutil rather than scrape the
// registry.
func (m *Metrics) HazardRetiredCounter() prometheus.Counter { return m.hazardRetired }
func (m *Metrics) HazardScansCounter() prometheus.Counter   { return m.hazardScans }
func (m *Metrics) HazardFreedCounter() prometheus.Counter   { return m.hazardFreed }

// HashsetResizesCounter, HashsetBucketsCounter, HashsetCASRetryCounter and
// SkiplistCASRetryCounter mirror the hazard accessors above for the hash
// set and skip list counters.
func (m *Metrics) HashsetResizesCounter(set string) prometheus.Counter {
	return m.hashsetResizes.WithLabelValues(set)
}
func (m *Metrics) HashsetBucketsCounter() prometheus.Counter { return m.hashsetBuckets }
func (m *Metrics) HashsetCASRetryCounter(set string) prometheus.Counter {
	return m.hashsetCASRetry.WithLabelValues(set)
}
func (m *Metrics) SkiplistCASRetryCounter(list string) prometheus.Counter {
	return m.skiplistCASRetry.WithLabelValues(list)
}

func (m *Metrics) ObserveHazardScan()              { m.hazardScans.Inc() }
func (m *Metrics) ObserveHazardRetired()            { m.hazardRetired.Inc() }
func (m *Metrics) ObserveHazardFreed(n int)         { m.hazardFreed.Add(float64(n)) }
func (m *Metrics) SetHazardLiveNodes(domain string, n int64) {
	m.hazardLiveNodes.WithLabelValues(domain).Set(float64(n))
}

func (m *Metrics) ObserveHashsetResize(set string)       { m.hashsetResizes.WithLabelValues(set).Inc() }
func (m *Metrics) ObserveHashsetBucketMaterialized()     { m.hashsetBuckets.Inc() }
func (m *Metrics) ObserveHashsetCASRetry(set string)     { m.hashsetCASRetry.WithLabelValues(set).Inc() }
func (m *Metrics) ObserveSkiplistCASRetry(list string)   { m.skiplistCASRetry.WithLabelValues(list).Inc() }
