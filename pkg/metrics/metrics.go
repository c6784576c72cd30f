package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Match phase
	MatchPagesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_match_pages_fetched_total",
		Help: "The total number of match list pages fetched from the API",
	})
	MatchesFetchedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_matches_fetched_total",
		Help: "The total number of matches fetched from the API",
	})
	RecordsCreatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_records_created_total",
		Help: "The total number of new player records created from match participants",
	})
	RecordsUpdatedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_records_updated_total",
		Help: "The total number of records whose elo or nickname changed during the match phase",
	})
	RecordsSkippedRecentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_records_skipped_recent_total",
		Help: "The total number of record updates skipped because the record was scraped recently",
	})

	// Profile phase
	ProfileFetchesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_profile_fetches_total",
		Help: "The total number of user profiles fetched from the API",
	})
	ProfileErrorsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_profile_errors_total",
		Help: "The total number of failed profile fetches",
	})
	TwitchUpdatesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_twitch_updates_total",
		Help: "The total number of records whose twitch name changed during the profile phase",
	})

	// API client
	RateLimitHitsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_rate_limit_hits_total",
		Help: "The total number of HTTP 429 responses received from the API",
	})

	// Cycle driver
	CyclesCompletedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_cycles_completed_total",
		Help: "The total number of sync cycles that ran to completion",
	})
	CycleFailuresTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_cycle_failures_total",
		Help: "The total number of sync cycles aborted by a fatal error",
	})
	CursorSavesTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "laddersync_cursor_saves_total",
		Help: "The total number of cursor writes to storage",
	})
	CycleDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "laddersync_cycle_duration_seconds",
		Help:    "Duration of full sync cycles",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
	})
)
