package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"auction-engine/internal/biddingerrors"
	model "auction-engine/internal/models"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Bid results used as the "result" label of auction_bids_total
const (
	ResultAccepted = "accepted"
	ResultTooLow   = "too_low"
	ResultExpired  = "expired"
	ResultNotOpen  = "not_open"
	ResultNotFound = "not_found"
	ResultInvalid  = "invalid"
	ResultConflict = "conflict"
	ResultError    = "error"
)

// Transition reasons used as the "reason" label of auction_transitions_total
const (
	ReasonLazy  = "lazy"
	ReasonOwner = "owner"
	ReasonSweep = "sweep"
)

// Metrics holds the Prometheus collectors of the service. A nil *Metrics records nothing.
type Metrics struct {
	bids            *prometheus.CounterVec
	transitions     *prometheus.CounterVec
	httpRequests    *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
	auctionsCreated prometheus.Counter
}

// New registers the collectors with reg
func New(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		bids: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction",
				Name:      "bids_total",
				Help:      "Bid submissions by result",
			},
			[]string{"result"},
		),
		transitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction",
				Name:      "transitions_total",
				Help:      "Auction status transitions by target status and reason",
			},
			[]string{"status", "reason"},
		),
		auctionsCreated: factory.NewCounter(
			prometheus.CounterOpts{
				Namespace: "auction",
				Name:      "created_total",
				Help:      "Auctions created",
			},
		),
		httpRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "auction",
				Subsystem: "api",
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		httpDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "auction",
				Subsystem: "api",
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 14),
			},
			[]string{"method", "route"},
		),
	}
}

// Handler exposes the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// ObserveBid counts a bid submission outcome
func (m *Metrics) ObserveBid(err error) {
	if m == nil {
		return
	}
	m.bids.WithLabelValues(BidResult(err)).Inc()
}

// ObserveTransition counts a committed status change
func (m *Metrics) ObserveTransition(to model.Status, reason string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(string(to), reason).Inc()
}

// ObserveCreated counts a created auction
func (m *Metrics) ObserveCreated() {
	if m == nil {
		return
	}
	m.auctionsCreated.Inc()
}

// ObserveRequest records an HTTP request
func (m *Metrics) ObserveRequest(method, route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	m.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.httpDuration.WithLabelValues(method, route).Observe(elapsed.Seconds())
}

// BidResult classifies a SubmitBid error into a label value
func BidResult(err error) string {
	switch {
	case err == nil:
		return ResultAccepted
	case errors.Is(err, biddingerrors.ErrBidTooLow):
		return ResultTooLow
	case errors.Is(err, biddingerrors.ErrAuctionExpired):
		return ResultExpired
	case errors.Is(err, biddingerrors.ErrAuctionNotOpen):
		return ResultNotOpen
	case errors.Is(err, biddingerrors.ErrAuctionNotFound):
		return ResultNotFound
	case errors.Is(err, biddingerrors.ErrInvalidBid):
		return ResultInvalid
	case errors.Is(err, biddingerrors.ErrConflict):
		return ResultConflict
	default:
		return ResultError
	}
}
