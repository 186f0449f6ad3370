package metrics

import (
	"time"

	"github.com/paulbellamy/ratecounter"
	"github.com/prometheus/client_golang/prometheus"
)

var (
	// RequestsTotal counts client requests by method and the arm that
	// handled them.
	RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "httpproxy",
		Subsystem: "proxy",
		Name:      "requests_total",
		Help:      "The total number of client requests, by method and handling arm",
	}, []string{"method", "route"})

	// CacheEvents counts cache-changing and cache-deciding events.
	CacheEvents = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "httpproxy",
		Subsystem: "cache",
		Name:      "events_total",
		Help:      "The total number of cache events",
	}, []string{"event"})

	// CacheEntries tracks the live entry count.
	CacheEntries = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "httpproxy",
		Subsystem: "cache",
		Name:      "entries",
		Help:      "The number of entries currently cached",
	})

	// BodyBytes counts relayed and collected body bytes by direction.
	BodyBytes = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "httpproxy",
		Subsystem: "proxy",
		Name:      "body_bytes_total",
		Help:      "The total number of body bytes moved, by direction",
	}, []string{"direction"})

	reqRate = ratecounter.NewRateCounter(time.Second)
)

func init() {
	prometheus.MustRegister(RequestsTotal, CacheEvents, CacheEntries, BodyBytes)
	prometheus.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "httpproxy",
		Subsystem: "proxy",
		Name:      "requests_per_second",
		Help:      "Client requests observed over the last second",
	}, func() float64 {
		return float64(reqRate.Rate())
	}))
}

// MarkRequest records one handled client request.
func MarkRequest(method, route string) {
	RequestsTotal.WithLabelValues(method, route).Inc()
	reqRate.Incr(1)
}
