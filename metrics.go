package spanz

import (
	"errors"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

const metricsSubsystem = "span"

// Sampling priority outcomes, used as the "result" label.
const (
	priorityElevated     = "elevated"
	priorityCleared      = "cleared"
	priorityThrottled    = "throttled"
	priorityInvalid      = "invalid"
	priorityAlreadyDebug = "already_debug"
)

// Metrics holds the Prometheus counters updated by spans and the tracer.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	started        *prometheus.CounterVec
	finished       prometheus.Counter
	reported       prometheus.Counter
	doubleFinished prometheus.Counter
	dropped        prometheus.Counter
	baggageUpdates *prometheus.CounterVec
	priorities     *prometheus.CounterVec
}

// NewMetrics creates the span counters and registers them with reg.
// Counters that are already registered are reused, so several tracers can
// share one registry.
func NewMetrics(reg prometheus.Registerer, namespace string) (*Metrics, error) {
	m := &Metrics{
		started: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "started_total",
			Help:      "Spans started, by sampling decision.",
		}, []string{"sampled"}),
		finished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "finished_total",
			Help:      "Sampled spans finished.",
		}),
		reported: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "reported_total",
			Help:      "Finished spans handed to collectors and handlers.",
		}),
		doubleFinished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "double_finish_total",
			Help:      "Finish calls on spans that were already finished.",
		}),
		dropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "dropped_total",
			Help:      "Span records dropped by a full collector or worker queue.",
		}),
		baggageUpdates: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "baggage_updates_total",
			Help:      "Baggage items set on spans, by whether a value was overridden.",
		}, []string{"override"}),
		priorities: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: metricsSubsystem,
			Name:      "sampling_priority_total",
			Help:      "Sampling priority tag outcomes.",
		}, []string{"result"}),
	}

	if reg == nil {
		return m, nil
	}

	var err error
	m.started, err = registerVec(reg, m.started)
	if err != nil {
		return nil, err
	}
	m.baggageUpdates, err = registerVec(reg, m.baggageUpdates)
	if err != nil {
		return nil, err
	}
	m.priorities, err = registerVec(reg, m.priorities)
	if err != nil {
		return nil, err
	}
	for _, c := range []*prometheus.Counter{&m.finished, &m.reported, &m.doubleFinished, &m.dropped} {
		if *c, err = registerCounter(reg, *c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func registerVec(reg prometheus.Registerer, c *prometheus.CounterVec) (*prometheus.CounterVec, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(*prometheus.CounterVec); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func registerCounter(reg prometheus.Registerer, c prometheus.Counter) (prometheus.Counter, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(prometheus.Counter); ok {
				return existing, nil
			}
		}
		return nil, err
	}
	return c, nil
}

func (m *Metrics) spanStarted(sampled bool) {
	if m == nil {
		return
	}
	m.started.WithLabelValues(strconv.FormatBool(sampled)).Inc()
}

func (m *Metrics) spanFinished() {
	if m == nil {
		return
	}
	m.finished.Inc()
}

func (m *Metrics) spanReported() {
	if m == nil {
		return
	}
	m.reported.Inc()
}

func (m *Metrics) doubleFinish() {
	if m == nil {
		return
	}
	m.doubleFinished.Inc()
}

func (m *Metrics) spanDropped() {
	if m == nil {
		return
	}
	m.dropped.Inc()
}

func (m *Metrics) baggageUpdated(override bool) {
	if m == nil {
		return
	}
	m.baggageUpdates.WithLabelValues(strconv.FormatBool(override)).Inc()
}

func (m *Metrics) samplingPriority(result string) {
	if m == nil {
		return
	}
	m.priorities.WithLabelValues(result).Inc()
}
