package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	HTTPRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reels",
		Name:      "http_requests_total",
		Help:      "Total HTTP requests by method, path and status code.",
	}, []string{"method", "path", "status"})

	HTTPRequestDuration = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "reels",
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request duration in seconds.",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.3, 0.5, 1, 2, 5},
	}, []string{"method", "path"})

	OpenSessions = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reels",
		Name:      "open_sessions",
		Help:      "Number of currently open feed sessions.",
	})

	RealizedPlayers = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reels",
		Name:      "realized_players",
		Help:      "Number of player handles currently realized.",
	})

	PlayerCreatesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reels",
		Name:      "player_creates_total",
		Help:      "Player creations by result (ok, error, stale, not_ready).",
	}, []string{"result"})

	PlayerDestroysTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "reels",
		Name:      "player_destroys_total",
		Help:      "Total number of player handles destroyed.",
	})

	FeedFetchesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reels",
		Name:      "feed_fetches_total",
		Help:      "Feed page fetches by result (ok, error, stale).",
	}, []string{"result"})

	FeedFetchDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "reels",
		Name:      "feed_fetch_duration_seconds",
		Help:      "Duration of feed page fetches in seconds.",
		Buckets:   []float64{0.05, 0.1, 0.3, 0.5, 1, 2, 5, 10},
	})

	SessionEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reels",
		Name:      "session_events_total",
		Help:      "Session events emitted by kind.",
	}, []string{"kind"})

	RecoveredPanicsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "reels",
		Name:      "recovered_panics_total",
		Help:      "Panics recovered inside event callbacks, by callback.",
	}, []string{"where"})

	WSClients = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "reels",
		Name:      "ws_clients",
		Help:      "Number of connected websocket clients.",
	})
)

func Register(reg prometheus.Registerer) {
	reg.MustRegister(
		HTTPRequestsTotal,
		HTTPRequestDuration,
		OpenSessions,
		RealizedPlayers,
		PlayerCreatesTotal,
		PlayerDestroysTotal,
		FeedFetchesTotal,
		FeedFetchDuration,
		SessionEventsTotal,
		RecoveredPanicsTotal,
		WSClients,
	)
}
