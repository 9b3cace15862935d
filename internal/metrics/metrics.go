package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"
)

const namespace = "vision_gateway"

// Registry holds the gateway's collectors on a private prometheus registry.
type Registry struct {
	reg *prometheus.Registry

	Devices        prometheus.Gauge
	ActivePipeline prometheus.Gauge
	FreeMemory     prometheus.Gauge
	FailureStreak  prometheus.Gauge
	HealthChecks   *prometheus.CounterVec
	Inferences     *prometheus.CounterVec
	VideoLinks     *prometheus.CounterVec
	Commands       *prometheus.CounterVec
	PipelineEvents *prometheus.CounterVec
}

func New() *Registry {
	r := &Registry{
		reg: prometheus.NewRegistry(),
		Devices: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "devices",
			Help:      "Camera device sessions in the registry.",
		}),
		ActivePipeline: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "active_pipelines",
			Help:      "Sessions whose live pipeline is active.",
		}),
		FreeMemory: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "free_memory_bytes",
			Help:      "Available memory at the last healthy check.",
		}),
		FailureStreak: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "health_failure_streak",
			Help:      "Consecutive critical health checks.",
		}),
		HealthChecks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "health_checks_total",
			Help:      "Health checks by outcome.",
		}, []string{"level"}),
		Inferences: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "inferences_total",
			Help:      "Inferences received from pipelines.",
		}, []string{"device_id"}),
		VideoLinks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "video_links_total",
			Help:      "Inference video links emitted.",
		}, []string{"device_id"}),
		Commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commands_total",
			Help:      "Device commands handled, by command and status code.",
		}, []string{"command", "status"}),
		PipelineEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "pipeline_events_total",
			Help:      "Operational and diagnostic pipeline events.",
		}, []string{"device_id", "event"}),
	}

	r.reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		r.Devices, r.ActivePipeline, r.FreeMemory, r.FailureStreak,
		r.HealthChecks, r.Inferences, r.VideoLinks, r.Commands, r.PipelineEvents,
	)
	return r
}

// Handler serves the registry in the prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{
		ErrorLog: promLogger{},
	})
}

// Gatherer exposes the underlying registry, mainly for tests.
func (r *Registry) Gatherer() prometheus.Gatherer {
	return r.reg
}

// ForgetDevice drops per-device series after a device is deprovisioned.
func (r *Registry) ForgetDevice(deviceID string) {
	r.Inferences.DeleteLabelValues(deviceID)
	r.VideoLinks.DeleteLabelValues(deviceID)
	r.PipelineEvents.DeletePartialMatch(prometheus.Labels{"device_id": deviceID})
}

type promLogger struct{}

func (promLogger) Println(v ...interface{}) {
	log.Error().Msgf("prometheus: %v", v)
}
