package server

import (
	"github.com/prometheus/client_golang/prometheus"

	"github.com/matsen/bibnorm/internal/reference"
	"github.com/matsen/bibnorm/internal/resolve"
)

// Metrics holds the service's Prometheus collectors. It is an ingest.Observer.
type Metrics struct {
	papersIngested prometheus.Counter
	authors        *prometheus.CounterVec
	venues         *prometheus.CounterVec
	requests       *prometheus.CounterVec
	autosaves      *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		papersIngested: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "bibnorm_papers_ingested_total",
			Help: "Total number of papers added to the store.",
		}),
		authors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibnorm_authors_resolved_total",
			Help: "Author resolutions by outcome (created or matched).",
		}, []string{"outcome"}),
		venues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibnorm_venues_resolved_total",
			Help: "Venue resolutions by outcome (created or matched).",
		}, []string{"outcome"}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibnorm_http_requests_total",
			Help: "HTTP requests by route and status code.",
		}, []string{"method", "route", "status"}),
		autosaves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "bibnorm_autosaves_total",
			Help: "Scheduled repository saves by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.papersIngested, m.authors, m.venues, m.requests, m.autosaves)
	return m
}

// PaperAdded implements ingest.Observer.
func (m *Metrics) PaperAdded(_ reference.Paper, authors []resolve.Resolution, venue resolve.Resolution) {
	m.papersIngested.Inc()
	for _, a := range authors {
		m.AuthorResolved(a)
	}
	m.venues.WithLabelValues(outcome(venue)).Inc()
}

// AuthorResolved counts one author resolution.
func (m *Metrics) AuthorResolved(r resolve.Resolution) {
	m.authors.WithLabelValues(outcome(r)).Inc()
}

func outcome(r resolve.Resolution) string {
	if r.Created {
		return "created"
	}
	return "matched"
}
