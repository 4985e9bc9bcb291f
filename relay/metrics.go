package relay

import (
	"net/http"
	"strconv"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics contains the Prometheus metrics of one relay.
type Metrics struct {
	Requests      *prometheus.CounterVec
	Verifications *prometheus.CounterVec
	StoredTxs     prometheus.Gauge
	Signatures    prometheus.Counter
}

// NewMetrics registers the relay metrics with registry, or with the default
// registerer when registry is nil.
func NewMetrics(registry prometheus.Registerer) *Metrics {
	if registry == nil {
		registry = prometheus.DefaultRegisterer
	}
	factory := promauto.With(registry)

	return &Metrics{
		Requests: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bsvkit_relay_requests_total",
			Help: "HTTP requests by route and status code",
		}, []string{"route", "code"}),
		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "bsvkit_relay_verifications_total",
			Help: "Signature verifications by kind and result",
		}, []string{"kind", "result"}),
		StoredTxs: factory.NewGauge(prometheus.GaugeOpts{
			Name: "bsvkit_relay_stored_txs",
			Help: "Previous transactions currently held",
		}),
		Signatures: factory.NewCounter(prometheus.CounterOpts{
			Name: "bsvkit_relay_signatures_total",
			Help: "Co-signer signatures accepted into mailboxes",
		}),
	}
}

func (m *Metrics) verified(kind string, ok bool) {
	result := "invalid"
	if ok {
		result = "valid"
	}
	m.Verifications.WithLabelValues(kind, result).Inc()
}

type statusRecorder struct {
	http.ResponseWriter
	code int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.code = code
	r.ResponseWriter.WriteHeader(code)
}

// middleware counts requests by route template.
func (m *Metrics) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := &statusRecorder{ResponseWriter: w, code: http.StatusOK}
		next.ServeHTTP(rec, r)

		route := "unknown"
		if cur := mux.CurrentRoute(r); cur != nil {
			if tpl, err := cur.GetPathTemplate(); err == nil {
				route = tpl
			}
		}
		m.Requests.WithLabelValues(route, strconv.Itoa(rec.code)).Inc()
	})
}
