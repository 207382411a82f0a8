// Package metrics registers the Prometheus counters exposed on /metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Match outcome label values.
const (
	OutcomeMatched        = "matched"
	OutcomeAlreadyMatched = "already_matched"
	OutcomeNoCandidates   = "no_candidates"
	OutcomeBelowThreshold = "below_threshold"
	OutcomeLinkGone       = "link_gone"
	OutcomeRaceLost       = "race_lost"
)

var (
	LinksCreated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deeplink_links_created_total",
		Help: "Number of deep links created.",
	})

	ClicksTracked = promauto.NewCounter(prometheus.CounterOpts{
		Name: "deeplink_clicks_tracked_total",
		Help: "Number of click fingerprints recorded.",
	})

	MatchRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "deeplink_match_requests_total",
		Help: "Device match requests by outcome.",
	}, []string{"outcome"})
)
