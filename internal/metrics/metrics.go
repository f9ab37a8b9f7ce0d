package metrics

import (
	"context"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"

	"dockerdb/internal/events"
)

var (
	OperationsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dockerdb_operations_total",
		Help: "Lifecycle operations by outcome",
	}, []string{"operation", "result"})

	ReadinessProbesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "dockerdb_readiness_probes_total",
		Help: "Readiness probe executions by result",
	}, []string{"result"})

	ContainerState = prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "dockerdb_container_state",
		Help: "1 if the container is in the given state",
	}, []string{"container", "state"})

	DatabasesCreatedTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Name: "dockerdb_databases_created_total",
		Help: "Databases created inside the container",
	})
)

func init() {
	prometheus.MustRegister(
		OperationsTotal,
		ReadinessProbesTotal,
		ContainerState,
		DatabasesCreatedTotal,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Push sends the default registry to a Prometheus Pushgateway under the dockerdb job.
func Push(ctx context.Context, url, instance string) error {
	p := push.New(url, "dockerdb").Gatherer(prometheus.DefaultGatherer)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	if err := p.PushContext(ctx); err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

var allStates = []string{"absent", "stopped", "running"}

// SetContainerState marks state as the only active state for the container.
func SetContainerState(container, state string) {
	for _, s := range allStates {
		v := float64(0)
		if s == state {
			v = 1
		}
		ContainerState.WithLabelValues(container, s).Set(v)
	}
}

// RegisterEventHandler wires metric updates to the event emitter.
func RegisterEventHandler(emitter *events.Emitter) {
	emitter.OnEvent(func(ev events.Event) {
		switch ev.Type {
		case events.ContainerCreated:
			OperationsTotal.WithLabelValues("create", "ok").Inc()
			SetContainerState(ev.Container, "running")
		case events.ContainerStarted:
			OperationsTotal.WithLabelValues("start", "ok").Inc()
			SetContainerState(ev.Container, "running")
		case events.ContainerStopped:
			OperationsTotal.WithLabelValues("stop", "ok").Inc()
			SetContainerState(ev.Container, "stopped")
		case events.ContainerDestroyed:
			OperationsTotal.WithLabelValues("destroy", "ok").Inc()
			SetContainerState(ev.Container, "absent")
		case events.ContainerNoop:
			OperationsTotal.WithLabelValues(ev.Fields["operation"], "noop").Inc()
		case events.ContainerState:
			SetContainerState(ev.Container, ev.Fields["state"])
		case events.OperationFailed:
			OperationsTotal.WithLabelValues(ev.Fields["operation"], "error").Inc()
		case events.DatabaseCreated:
			OperationsTotal.WithLabelValues("ensure_database", "ok").Inc()
			DatabasesCreatedTotal.Inc()
		case events.DatabaseExists:
			OperationsTotal.WithLabelValues("ensure_database", "noop").Inc()
		case events.ReadinessProbe:
			ReadinessProbesTotal.WithLabelValues("not_ready").Inc()
		case events.ReadinessReady:
			ReadinessProbesTotal.WithLabelValues("ready").Inc()
		case events.ReadinessTimeout:
			OperationsTotal.WithLabelValues("ensure_database", "timeout").Inc()
		}
	})
}
