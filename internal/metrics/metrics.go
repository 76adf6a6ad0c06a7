package metrics

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"

	"github.com/joshp123/litterwatch/internal/litterbox"
)

// Recorder holds the gauges of a single run in its own registry, to be
// written for the node_exporter textfile collector or pushed to a
// Pushgateway before the process exits.
type Recorder struct {
	registry *prometheus.Registry

	success       *prometheus.GaugeVec
	lastRun       *prometheus.GaugeVec
	duration      *prometheus.GaugeVec
	stuck         *prometheus.GaugeVec
	recovered     *prometheus.GaugeVec
	runError      *prometheus.GaugeVec
	operation     *prometheus.GaugeVec
	lastWeight    *prometheus.GaugeVec
	usageToday    *prometheus.GaugeVec
	cleaningCount *prometheus.GaugeVec
	lastVisit     *prometheus.GaugeVec
}

func NewRecorder() *Recorder {
	labels := []string{"device_id"}
	operationLabels := []string{"device_id", "operation"}
	errorLabels := []string{"device_id", "kind"}
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		success: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_run_success",
			Help: "Last run success (1=ok, 0=error)",
		}, labels),
		lastRun: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_last_run_timestamp_seconds",
			Help: "Start of the last run (seconds since epoch)",
		}, labels),
		duration: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_run_duration_seconds",
			Help: "Duration of the last run, recovery waits included",
		}, labels),
		stuck: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_device_stuck",
			Help: "Whether the last status reported Clean_Pause (1=yes, 0=no)",
		}, labels),
		recovered: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_recovery_performed",
			Help: "Whether the last run sent the full recovery sequence (1=yes, 0=no)",
		}, labels),
		runError: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_run_error",
			Help: "Error kind of the last run (label)",
		}, errorLabels),
		operation: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_operation",
			Help: "Operation reported by the device (label)",
		}, operationLabels),
		lastWeight: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_last_weight_kilograms",
			Help: "Weight of the last visit (kilograms)",
		}, labels),
		usageToday: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_usage_today",
			Help: "Visits reported for today",
		}, labels),
		cleaningCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_cleaning_count",
			Help: "Cleaning cycles reported by the device",
		}, labels),
		lastVisit: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "litterwatch_last_visit_duration_seconds",
			Help: "Duration of the last visit (seconds)",
		}, labels),
	}
	r.registry.MustRegister(
		r.success,
		r.lastRun,
		r.duration,
		r.stuck,
		r.recovered,
		r.runError,
		r.operation,
		r.lastWeight,
		r.usageToday,
		r.cleaningCount,
		r.lastVisit,
	)
	return r
}

// Registry exposes the registry for tests and custom exporters.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

// Observe records one run. err is the error returned by the orchestrator.
func (r *Recorder) Observe(result litterbox.Result, err error) {
	labels := prometheus.Labels{"device_id": result.DeviceID}

	r.lastRun.With(labels).Set(float64(result.StartedAt.Unix()))
	r.duration.With(labels).Set(result.Duration.Seconds())
	r.success.With(labels).Set(boolFloat(err == nil))
	if err != nil {
		r.runError.With(prometheus.Labels{"device_id": result.DeviceID, "kind": string(litterbox.KindOf(err))}).Set(1)
	}
	if result.Raw == nil {
		return
	}

	r.stuck.With(labels).Set(boolFloat(result.Stuck()))
	r.recovered.With(labels).Set(boolFloat(result.Outcome.Kind == litterbox.RecoveryPerformed))

	dps := result.Raw.DPS
	if operation, ok := dps[litterbox.OperationField].(string); ok {
		r.operation.With(prometheus.Labels{"device_id": result.DeviceID, "operation": operation}).Set(1)
	}
	if tenths, ok := number(dps[litterbox.WeightField]); ok {
		r.lastWeight.With(labels).Set(tenths / 10)
	}
	if usage, ok := number(dps["7"]); ok {
		r.usageToday.With(labels).Set(usage)
	}
	if count, ok := number(dps["103"]); ok {
		r.cleaningCount.With(labels).Set(count)
	}
	if seconds, ok := number(dps["8"]); ok {
		r.lastVisit.With(labels).Set(seconds)
	}
}

// WriteTextfile atomically writes the registry in text exposition format.
func (r *Recorder) WriteTextfile(path string) error {
	if err := prometheus.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}
	return nil
}

// Push replaces the job's metrics on a Pushgateway, grouped by device.
func (r *Recorder) Push(ctx context.Context, url, job, deviceID string) error {
	err := push.New(url, job).
		Gatherer(r.registry).
		Grouping("device_id", deviceID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("push metrics: %w", err)
	}
	return nil
}

func number(value any) (float64, bool) {
	switch v := value.(type) {
	case int64:
		return float64(v), true
	case int:
		return float64(v), true
	case float64:
		return v, true
	default:
		return 0, false
	}
}

func boolFloat(v bool) float64 {
	if v {
		return 1
	}
	return 0
}
