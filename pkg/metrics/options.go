package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Option tunes a Manager before its instruments are registered.
type Option func(*Manager)

// WithNamespace replaces the "ceoorcto" metric prefix.
func WithNamespace(namespace string) Option {
	return func(m *Manager) {
		if namespace != "" {
			m.namespace = namespace
		}
	}
}

// WithSubsystem replaces the "game" subsystem.
func WithSubsystem(subsystem string) Option {
	return func(m *Manager) {
		if subsystem != "" {
			m.subsystem = subsystem
		}
	}
}

// WithLatencyBuckets sets the millisecond buckets shared by the latency histograms.
func WithLatencyBuckets(buckets ...float64) Option {
	return func(m *Manager) {
		if len(buckets) > 0 {
			m.buckets = buckets
		}
	}
}

// WithEnvironment labels every series with the deployment environment.
func WithEnvironment(env string) Option {
	return func(m *Manager) {
		if env == "" {
			return
		}
		if m.constLabels == nil {
			m.constLabels = prometheus.Labels{}
		}
		m.constLabels["environment"] = env
	}
}

// WithRegisterer registers the instruments somewhere other than the default registerer.
func WithRegisterer(r prometheus.Registerer) Option {
	return func(m *Manager) {
		if r != nil {
			m.registry = r
		}
	}
}
