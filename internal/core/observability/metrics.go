package observability

import (
	"errors"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "care_access"

// Metrics groups the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	cacheHits          *prometheus.CounterVec
	cacheMisses        *prometheus.CounterVec
	cacheInvalidations *prometheus.CounterVec
	resolutionErrors   *prometheus.CounterVec
	routingDecisions   *prometheus.CounterVec
	preferenceFailures *prometheus.CounterVec
	expiredGrants      *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewMetrics registers the collectors on reg (the default registerer when nil).
// Collectors already registered by an earlier call are reused.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{}
	var err error

	counters := []struct {
		target **prometheus.CounterVec
		opts   prometheus.CounterOpts
		labels []string
	}{
		{&m.cacheHits, prometheus.CounterOpts{Name: "cache_hits_total", Help: "Resolver cache hits."}, []string{"cache"}},
		{&m.cacheMisses, prometheus.CounterOpts{Name: "cache_misses_total", Help: "Resolver cache misses."}, []string{"cache"}},
		{&m.cacheInvalidations, prometheus.CounterOpts{Name: "cache_invalidations_total", Help: "Resolver cache entries invalidated."}, []string{"cache", "scope"}},
		{&m.resolutionErrors, prometheus.CounterOpts{Name: "resolution_errors_total", Help: "Access resolutions that failed closed."}, []string{"resolver", "operation"}},
		{&m.routingDecisions, prometheus.CounterOpts{Name: "routing_decisions_total", Help: "Routing decisions by outcome."}, []string{"outcome"}},
		{&m.preferenceFailures, prometheus.CounterOpts{Name: "preference_store_failures_total", Help: "Preference persistence failures."}, []string{"operation"}},
		{&m.expiredGrants, prometheus.CounterOpts{Name: "expired_grants_total", Help: "Grants deactivated by the expiry sweeper."}, []string{"kind"}},
	}
	for _, c := range counters {
		c.opts.Namespace = namespace
		if *c.target, err = registerCounterVec(reg, prometheus.NewCounterVec(c.opts, c.labels)); err != nil {
			return nil, err
		}
	}

	m.httpDuration, err = registerHistogramVec(reg, prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "http_request_duration_seconds",
		Help:      "HTTP request latency.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "route", "status"}))
	if err != nil {
		return nil, err
	}

	return m, nil
}

func registerCounterVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(*prometheus.CounterVec)
			if !ok {
				return nil, fmt.Errorf("metrics: unexpected collector type %T", already.ExistingCollector)
			}
			return existing, nil
		}
		return nil, err
	}
	return c, nil
}

func registerHistogramVec(reg prometheus.Registerer, h *prometheus.HistogramVec) (*prometheus.HistogramVec, error) {
	if err := reg.Register(h); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			existing, ok := already.ExistingCollector.(*prometheus.HistogramVec)
			if !ok {
				return nil, fmt.Errorf("metrics: unexpected collector type %T", already.ExistingCollector)
			}
			return existing, nil
		}
		return nil, err
	}
	return h, nil
}

func (m *Metrics) CacheHit(cache string) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheMiss(cache string) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(cache).Inc()
}

func (m *Metrics) CacheInvalidated(cache, scope string, n int) {
	if m == nil || n <= 0 {
		return
	}
	m.cacheInvalidations.WithLabelValues(cache, scope).Add(float64(n))
}

func (m *Metrics) ResolutionError(resolver, operation string) {
	if m == nil {
		return
	}
	m.resolutionErrors.WithLabelValues(resolver, operation).Inc()
}

func (m *Metrics) RoutingDecision(outcome string) {
	if m == nil {
		return
	}
	m.routingDecisions.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PreferenceFailure(operation string) {
	if m == nil {
		return
	}
	m.preferenceFailures.WithLabelValues(operation).Inc()
}

func (m *Metrics) ExpiredGrants(kind string, n int64) {
	if m == nil || n <= 0 {
		return
	}
	m.expiredGrants.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(method, route, fmt.Sprintf("%d", status)).Observe(d.Seconds())
}
