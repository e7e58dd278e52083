// Package metrics exports supervisor state in Prometheus exposition
// format. The exporter doubles as an audit sink so every escalation event
// shows up as a counter without extra plumbing in the supervisor.
package metrics

import (
	"bytes"
	"fmt"
	"net/http"
	"sync"
	"time"

	promclient "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/psantana5/sentinel/pkg/audit"
	"github.com/psantana5/sentinel/pkg/quarantine"
	"github.com/psantana5/sentinel/pkg/supervisor"
)

// Exporter exports Prometheus metrics for the sentinel daemon
type Exporter struct {
	sup       *supervisor.Supervisor
	startTime time.Time

	mu          sync.RWMutex
	eventCounts map[string]int64 // event name -> count

	auditEvents *promclient.CounterVec
}

// NewExporter creates a Prometheus exporter around the supervisor
func NewExporter(sup *supervisor.Supervisor) *Exporter {
	e := &Exporter{
		sup:         sup,
		startTime:   time.Now(),
		eventCounts: make(map[string]int64),
		auditEvents: promclient.NewCounterVec(promclient.CounterOpts{
			Name: "sentinel_audit_events_total",
			Help: "Total audit events by name and severity",
		}, []string{"event", "severity"}),
	}
	promclient.MustRegister(e.auditEvents)
	return e
}

// Emit implements audit.Sink: every audit event increments its counter.
func (e *Exporter) Emit(ev audit.Event) {
	e.mu.Lock()
	e.eventCounts[ev.Event]++
	e.mu.Unlock()

	e.auditEvents.WithLabelValues(ev.Event, string(ev.Severity)).Inc()
}

// ServeHTTP serves Prometheus-compatible metrics at /metrics
func (e *Exporter) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")

	cycles := e.sup.ActiveCycles()
	records := e.sup.Registry().ActiveQuarantines()
	conditions := e.sup.Registry().ActiveConditions()

	// sentinel_active_cycles
	fmt.Fprintf(w, "# HELP sentinel_active_cycles Number of live supervised cycles\n")
	fmt.Fprintf(w, "# TYPE sentinel_active_cycles gauge\n")
	fmt.Fprintf(w, "sentinel_active_cycles %d\n", len(cycles))

	// sentinel_quarantines{kind}
	// Always export all kinds (even if count is 0)
	byKind := map[quarantine.Kind]int{
		quarantine.KindWorker:  0,
		quarantine.KindPolicy:  0,
		quarantine.KindGeneric: 0,
	}
	integrity := 0
	for _, rec := range records {
		byKind[rec.Kind]++
		if rec.IntegrityFailure {
			integrity++
		}
	}
	fmt.Fprintf(w, "\n# HELP sentinel_quarantines Active quarantine records by kind\n")
	fmt.Fprintf(w, "# TYPE sentinel_quarantines gauge\n")
	for _, kind := range []quarantine.Kind{quarantine.KindWorker, quarantine.KindPolicy, quarantine.KindGeneric} {
		fmt.Fprintf(w, "sentinel_quarantines{kind=\"%s\"} %d\n", kind, byKind[kind])
	}

	fmt.Fprintf(w, "\n# HELP sentinel_integrity_quarantines Active quarantines flagged as integrity failures\n")
	fmt.Fprintf(w, "# TYPE sentinel_integrity_quarantines gauge\n")
	fmt.Fprintf(w, "sentinel_integrity_quarantines %d\n", integrity)

	// sentinel_unsafe_conditions{code}
	byCode := make(map[string]int)
	for _, c := range conditions {
		byCode[c.Code]++
	}
	fmt.Fprintf(w, "\n# HELP sentinel_unsafe_conditions Standing unsafe conditions by code\n")
	fmt.Fprintf(w, "# TYPE sentinel_unsafe_conditions gauge\n")
	for _, code := range []string{quarantine.CodeHeartbeatLoss, quarantine.CodeWorkerRestartThreshold} {
		fmt.Fprintf(w, "sentinel_unsafe_conditions{code=\"%s\"} %d\n", code, byCode[code])
	}

	// sentinel_audit_events_emitted{event} (coarse totals; the labelled
	// counter with severity comes from the registry below)
	e.mu.RLock()
	fmt.Fprintf(w, "\n# HELP sentinel_audit_events_emitted Audit events observed by this exporter\n")
	fmt.Fprintf(w, "# TYPE sentinel_audit_events_emitted counter\n")
	for _, name := range []string{
		audit.EventCycleStarted,
		audit.EventCycleCompleted,
		audit.EventCycleFailed,
		audit.EventHeartbeatMissed,
		audit.EventAutoRecovery,
	} {
		fmt.Fprintf(w, "sentinel_audit_events_emitted{event=\"%s\"} %d\n", name, e.eventCounts[name])
	}
	e.mu.RUnlock()

	fmt.Fprintf(w, "\n# HELP sentinel_uptime_seconds Daemon uptime in seconds\n")
	fmt.Fprintf(w, "# TYPE sentinel_uptime_seconds gauge\n")
	fmt.Fprintf(w, "sentinel_uptime_seconds %.0f\n", time.Since(e.startTime).Seconds())

	e.writeHostMetrics(w)

	// Append the Prometheus-registered metrics using the text encoder.
	fmt.Fprintf(w, "\n")
	metricFamilies, err := promclient.DefaultGatherer.Gather()
	if err != nil {
		fmt.Fprintf(w, "# Error gathering Prometheus metrics: %v\n", err)
		return
	}
	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			fmt.Fprintf(w, "# Error encoding metric %s: %v\n", mf.GetName(), err)
		}
	}
	w.Write(buf.Bytes())
}

// writeHostMetrics reports host CPU and memory so a dashboard can correlate
// escalations with resource pressure.
func (e *Exporter) writeHostMetrics(w http.ResponseWriter) {
	if vm, err := mem.VirtualMemory(); err == nil {
		fmt.Fprintf(w, "\n# HELP sentinel_host_memory_used_percent Host memory utilization\n")
		fmt.Fprintf(w, "# TYPE sentinel_host_memory_used_percent gauge\n")
		fmt.Fprintf(w, "sentinel_host_memory_used_percent %.2f\n", vm.UsedPercent)
	}
	if percents, err := cpu.Percent(0, false); err == nil && len(percents) > 0 {
		fmt.Fprintf(w, "\n# HELP sentinel_host_cpu_percent Host CPU utilization\n")
		fmt.Fprintf(w, "# TYPE sentinel_host_cpu_percent gauge\n")
		fmt.Fprintf(w, "sentinel_host_cpu_percent %.2f\n", percents[0])
	}
}
