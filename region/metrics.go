package region

import (
	"time"

	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
)

// Result classes used as the "result" label on exchange metrics.
const (
	classOK       = "ok"
	classFailed   = "failed"
	classDegraded = "degraded"
	classError    = "error"
)

// Collector bundles the Prometheus metrics recorded by a Client.
type Collector struct {
	Exchanges    *prometheus.CounterVec
	Durations    *prometheus.HistogramVec
	PayloadBytes prometheus.Counter
}

// NewCollector registers region metrics against reg, defaulting to the global
// Prometheus registry when nil. Registering twice against the same registry
// returns collectors bound to the existing metrics.
func NewCollector(reg prometheus.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	exchanges := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "region_exchanges_total",
		Help: "Subagent exchanges, labeled by command and result class.",
	}, []string{"command", "result"})
	if err := register(reg, &exchanges); err != nil {
		return nil, err
	}

	durations := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "region_exchange_duration_seconds",
		Help:    "Duration of subagent exchanges in seconds, dial through response.",
		Buckets: []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
	}, []string{"command"})
	if err := register(reg, &durations); err != nil {
		return nil, err
	}

	payload := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "region_payload_bytes_total",
		Help: "Bitstream bytes written to subagents.",
	})
	if err := register(reg, &payload); err != nil {
		return nil, err
	}

	return &Collector{
		Exchanges:    exchanges,
		Durations:    durations,
		PayloadBytes: payload,
	}, nil
}

// register registers *c, replacing it with the already registered collector
// when an identical one exists.
func register[T prometheus.Collector](reg prometheus.Registerer, c *T) error {
	if err := reg.Register(*c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if !errors.As(err, &are) {
			return errors.Wrap(err, "register region metrics")
		}
		existing, ok := are.ExistingCollector.(T)
		if !ok {
			return errors.Errorf("register region metrics: existing collector has type %T", are.ExistingCollector)
		}
		*c = existing
	}
	return nil
}

func (c *Collector) observe(cmd Command, outcome Outcome, err error, elapsed time.Duration, sent int64) {
	if c == nil {
		return
	}

	c.Exchanges.WithLabelValues(string(cmd), resultClass(outcome, err)).Inc()
	c.Durations.WithLabelValues(string(cmd)).Observe(elapsed.Seconds())
	if sent > 0 {
		c.PayloadBytes.Add(float64(sent))
	}
}

func resultClass(outcome Outcome, err error) string {
	switch {
	case err != nil:
		return classError
	case outcome.OK():
		return classOK
	case outcome.Degraded():
		return classDegraded
	default:
		return classFailed
	}
}
