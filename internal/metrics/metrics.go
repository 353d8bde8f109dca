// Package metrics exposes the engine's Prometheus instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// RecommendationRequests counts recommendation calls by mode and outcome.
	RecommendationRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mooviq_recommendation_requests_total",
		Help: "Recommendation requests by mode and outcome.",
	}, []string{"mode", "outcome"})

	// CacheOps counts envelope cache lookups by result.
	CacheOps = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mooviq_cache_ops_total",
		Help: "Cache operations by kind and result.",
	}, []string{"kind", "result"})

	// IngestedItems counts items added to the vector index by content type.
	IngestedItems = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "mooviq_ingested_items_total",
		Help: "Catalogue items ingested into the vector index.",
	}, []string{"content_type"})

	// RoomMatches counts matches found in swipe rooms.
	RoomMatches = promauto.NewCounter(prometheus.CounterOpts{
		Name: "mooviq_room_matches_total",
		Help: "Unanimous and force-finish room matches.",
	})

	// RoomConnections tracks live room websocket connections.
	RoomConnections = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mooviq_room_connections",
		Help: "Currently connected room websocket clients.",
	})

	// IndexSize tracks the number of vectors in the index.
	IndexSize = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "mooviq_index_items",
		Help: "Items currently held by the vector index.",
	})

	// RequestDuration observes handler latency by route group.
	RequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "mooviq_request_duration_seconds",
		Help:    "HTTP request latency by route group.",
		Buckets: prometheus.DefBuckets,
	}, []string{"group"})
)
