package spanz

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// FXModule provides a *Tracer built from a Config in the graph and closes
// it when the application stops.
var FXModule = fx.Module("spanz",
	fx.Provide(
		NewFromParams,
	),
	fx.Invoke(RegisterTracerLifecycle),
)

// Params are the dependencies of NewFromParams. Logger and Registerer are
// optional; without them the tracer builds its own logger from
// Config.LogLevel and records no metrics.
type Params struct {
	fx.In

	Config     Config
	Logger     *zap.Logger           `optional:"true"`
	Registerer prometheus.Registerer `optional:"true"`
}

// NewFromParams builds a tracer from injected dependencies.
func NewFromParams(p Params) (*Tracer, error) {
	logger := p.Logger
	if logger == nil {
		var err error
		logger, err = NewLogger(p.Config.LogLevel)
		if err != nil {
			return nil, err
		}
	}

	opts := []Option{WithLogger(logger.Named("spanz"))}
	if p.Registerer != nil {
		metrics, err := NewMetrics(p.Registerer, p.Config.MetricsNamespace)
		if err != nil {
			return nil, err
		}
		opts = append(opts, WithMetrics(metrics))
	}

	return New(p.Config, opts...)
}

// RegisterTracerLifecycle closes the tracer on application stop.
func RegisterTracerLifecycle(lc fx.Lifecycle, tracer *Tracer) {
	lc.Append(fx.Hook{
		OnStop: func(_ context.Context) error {
			tracer.logger.Info("shutting down tracer")
			tracer.Close()
			return nil
		},
	})
}
