package snapshot

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TotalCaptures tracks finished captures by terminal status.
	TotalCaptures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesnap_captures_total",
		Help: "The total number of finished captures, labeled by status.",
	}, []string{"status"})
	// TotalResourceFetches tracks resource fetches by resource kind.
	TotalResourceFetches = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesnap_resource_fetches_total",
		Help: "The total number of sub-resource fetches, labeled by kind.",
	}, []string{"kind"})
	// TotalResourceFailures tracks failed resource fetches by failure kind.
	TotalResourceFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "pagesnap_resource_failures_total",
		Help: "The total number of failed sub-resource fetches, labeled by failure kind.",
	}, []string{"reason"})
	// TotalFetchRetries tracks transient fetch failures that were retried.
	TotalFetchRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagesnap_fetch_retries_total",
		Help: "The total number of transient fetch failures that were retried.",
	})
	// TotalRenderPromotions tracks probe fetches promoted to a browser render.
	TotalRenderPromotions = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagesnap_render_promotions_total",
		Help: "The total number of captures promoted to a headless render.",
	})
	// TotalSweptDirs tracks page directories removed by the retention janitor.
	TotalSweptDirs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "pagesnap_swept_dirs_total",
		Help: "The total number of expired page directories removed.",
	})
)
