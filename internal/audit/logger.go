// Package audit records structured, queryable events for one rollover or
// scale-down run: a zap sink plus a metrics counter plus pluggable
// EventSink fan-out.
package audit

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/nimbusops/fleetroll/internal/logging"
	"github.com/nimbusops/fleetroll/pkg/metrics"
)

// Event is a single structured audit log entry.
type Event struct {
	Timestamp time.Time              `json:"timestamp"`
	EventType EventType              `json:"eventType"`
	Category  EventCategory          `json:"category"`
	Severity  EventSeverity          `json:"severity"`
	RunID     string                 `json:"runId,omitempty"`
	Actor     string                 `json:"actor,omitempty"`
	Resource  *ResourceInfo          `json:"resource,omitempty"`
	Details   map[string]interface{} `json:"details,omitempty"`
	Outcome   string                 `json:"outcome,omitempty"`
	Message   string                 `json:"message,omitempty"`
	Duration  time.Duration          `json:"duration,omitempty"`
}

// ResourceInfo identifies the host, service, or ASG an event is about.
type ResourceInfo struct {
	Kind string `json:"kind"`
	Name string `json:"name"`
	AZ   string `json:"az,omitempty"`
}

// EventSink is an additional destination for audit events, beyond the
// zap log line (e.g. a file, a webhook, an S3 object).
type EventSink interface {
	Write(event *Event) error
	Close() error
}

// Logger handles audit event logging for one run.
type Logger struct {
	logger       *zap.Logger
	mu           sync.RWMutex
	enabled      bool
	defaultActor string
	sinks        []EventSink
}

// Config configures a Logger.
type Config struct {
	Enabled      bool
	Logger       *zap.Logger
	DefaultActor string
	Sinks        []EventSink
}

// New builds an audit Logger from cfg. A nil cfg yields an enabled
// logger writing only to a no-op zap logger.
func New(cfg *Config) *Logger {
	if cfg == nil {
		cfg = &Config{Enabled: true, Logger: zap.NewNop()}
	}
	base := cfg.Logger
	if base == nil {
		base = zap.NewNop()
	}
	return &Logger{
		logger:       base.Named("audit"),
		enabled:      cfg.Enabled,
		defaultActor: cfg.DefaultActor,
		sinks:        cfg.Sinks,
	}
}

// Log records one audit event, filling in category/severity/run id
// defaults, logging at the appropriate zap level, incrementing the audit
// metric, and fanning out to any configured sinks.
func (l *Logger) Log(ctx context.Context, event *Event) {
	l.mu.RLock()
	enabled := l.enabled
	l.mu.RUnlock()
	if !enabled {
		return
	}

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	if event.Category == "" {
		event.Category = GetCategory(event.EventType)
	}
	if event.Severity == "" {
		event.Severity = GetSeverity(event.EventType)
	}
	if event.RunID == "" {
		event.RunID = logging.RunID(ctx)
	}
	if event.Actor == "" {
		event.Actor = l.defaultActor
	}

	fields := l.buildFields(event)
	switch event.Severity {
	case SeverityCritical, SeverityError:
		l.logger.Error(event.Message, fields...)
	case SeverityWarning:
		l.logger.Warn(event.Message, fields...)
	default:
		l.logger.Info(event.Message, fields...)
	}

	metrics.AuditEventsTotal.WithLabelValues(string(event.EventType), string(event.Severity)).Inc()

	for _, sink := range l.sinks {
		if err := sink.Write(event); err != nil {
			l.logger.Warn("failed to write audit event to sink",
				zap.Error(err),
				zap.String("eventType", string(event.EventType)),
			)
		}
	}
}

func (l *Logger) buildFields(event *Event) []zapcore.Field {
	fields := []zapcore.Field{
		zap.Time("timestamp", event.Timestamp),
		zap.String("eventType", string(event.EventType)),
		zap.String("category", string(event.Category)),
		zap.String("severity", string(event.Severity)),
	}
	if event.RunID != "" {
		fields = append(fields, zap.String("runId", event.RunID))
	}
	if event.Actor != "" {
		fields = append(fields, zap.String("actor", event.Actor))
	}
	if event.Outcome != "" {
		fields = append(fields, zap.String("outcome", event.Outcome))
	}
	if event.Duration > 0 {
		fields = append(fields, zap.Duration("duration", event.Duration))
	}
	if event.Resource != nil {
		fields = append(fields, zap.Object("resource", zapResourceInfo{event.Resource}))
	}
	if len(event.Details) > 0 {
		detailsJSON, _ := json.Marshal(event.Details)
		fields = append(fields, zap.String("details", string(detailsJSON)))
	}
	return fields
}

type zapResourceInfo struct {
	*ResourceInfo
}

func (r zapResourceInfo) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("kind", r.Kind)
	enc.AddString("name", r.Name)
	if r.AZ != "" {
		enc.AddString("az", r.AZ)
	}
	return nil
}

// Enable turns audit logging on.
func (l *Logger) Enable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = true
}

// Disable turns audit logging off.
func (l *Logger) Disable() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.enabled = false
}

// IsEnabled reports whether audit logging is currently on.
func (l *Logger) IsEnabled() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.enabled
}

// Close closes every configured sink.
func (l *Logger) Close() error {
	for _, sink := range l.sinks {
		if err := sink.Close(); err != nil {
			l.logger.Warn("failed to close audit event sink", zap.Error(err))
		}
	}
	return nil
}

// LogHostDetached logs a host's successful ASG detach.
func (l *Logger) LogHostDetached(ctx context.Context, hostID, az string) {
	l.Log(ctx, &Event{
		EventType: EventHostDetached,
		Message:   "host detached from autoscaling group",
		Outcome:   "success",
		Resource:  &ResourceInfo{Kind: "Host", Name: hostID, AZ: az},
	})
}

// LogReplacementTimedOut logs a replacement-await timeout.
func (l *Logger) LogReplacementTimedOut(ctx context.Context, hostID string, waited time.Duration) {
	l.Log(ctx, &Event{
		EventType: EventReplacementTimedOut,
		Message:   "timed out waiting for replacement host to become active",
		Outcome:   "failure",
		Duration:  waited,
		Resource:  &ResourceInfo{Kind: "Host", Name: hostID},
	})
}

// LogSteadyState logs the outcome of waiting for a service to drain.
func (l *Logger) LogSteadyState(ctx context.Context, hostID, serviceID string, waited time.Duration, timedOut bool) {
	eventType := EventSteadyStateReached
	outcome := "success"
	if timedOut {
		eventType = EventSteadyStateTimedOut
		outcome = "failure"
	}
	l.Log(ctx, &Event{
		EventType: eventType,
		Message:   "service steady-state wait completed",
		Outcome:   outcome,
		Duration:  waited,
		Resource:  &ResourceInfo{Kind: "Service", Name: serviceID},
		Details:   map[string]interface{}{"host": hostID},
	})
}

// LogShutdownSkipped logs a container-stop preflight failure that left a
// host's VM running rather than risk a hung shutdown command.
func (l *Logger) LogShutdownSkipped(ctx context.Context, hostID, reason string) {
	l.Log(ctx, &Event{
		EventType: EventShutdownSkipped,
		Message:   "container shutdown skipped after preflight failure",
		Outcome:   "skipped",
		Resource:  &ResourceInfo{Kind: "Host", Name: hostID},
		Details:   map[string]interface{}{"reason": reason},
	})
}

// LogHostTerminated logs a host's VM stop+terminate outcome.
func (l *Logger) LogHostTerminated(ctx context.Context, hostID, vmID string, outcome string) {
	eventType := EventHostTerminated
	if outcome != "success" {
		eventType = EventHostTerminateFailed
	}
	l.Log(ctx, &Event{
		EventType: eventType,
		Message:   "host VM terminated",
		Outcome:   outcome,
		Resource:  &ResourceInfo{Kind: "Host", Name: hostID},
		Details:   map[string]interface{}{"vmId": vmID},
	})
}

// LogRunStarted logs the beginning of a rollover/scale-down run.
func (l *Logger) LogRunStarted(ctx context.Context, mode string, hostCount int) {
	l.Log(ctx, &Event{
		EventType: EventRunStarted,
		Message:   "run started",
		Details:   map[string]interface{}{"mode": mode, "hostCount": hostCount},
	})
}

// LogRunCompleted logs the end of a run, successful or aborted.
func (l *Logger) LogRunCompleted(ctx context.Context, mode string, completed, skipped int, aborted bool) {
	eventType := EventRunCompleted
	outcome := "success"
	if aborted {
		eventType = EventRunAborted
		outcome = "aborted"
	}
	l.Log(ctx, &Event{
		EventType: eventType,
		Message:   "run finished",
		Outcome:   outcome,
		Details: map[string]interface{}{
			"mode":      mode,
			"completed": completed,
			"skipped":   skipped,
		},
	})
}

// LogPreconditionFailed logs a precondition check that blocked a run.
func (l *Logger) LogPreconditionFailed(ctx context.Context, reason string, services []string) {
	l.Log(ctx, &Event{
		EventType: EventPreconditionFailed,
		Message:   "precondition check failed",
		Outcome:   "blocked",
		Details:   map[string]interface{}{"reason": reason, "services": services},
	})
}

// LogPlanImbalanced logs an availability-zone imbalance warning emitted
// while building a removal plan.
func (l *Logger) LogPlanImbalanced(ctx context.Context, maxDiff int) {
	l.Log(ctx, &Event{
		EventType: EventPlanImbalanced,
		Message:   "removal plan leaves availability zones imbalanced",
		Outcome:   "warning",
		Details:   map[string]interface{}{"maxDiff": maxDiff},
	})
}

// LogHostDetachFailed logs a failed ASG detach call.
func (l *Logger) LogHostDetachFailed(ctx context.Context, hostID string, cause error) {
	l.Log(ctx, &Event{
		EventType: EventHostDetachFailed,
		Message:   "host detach from autoscaling group failed",
		Outcome:   "failure",
		Resource:  &ResourceInfo{Kind: "Host", Name: hostID},
		Details:   map[string]interface{}{"error": cause.Error()},
	})
}

// LogReplacementReady logs a successful replacement-host wait.
func (l *Logger) LogReplacementReady(ctx context.Context, hostID string, waited time.Duration) {
	l.Log(ctx, &Event{
		EventType: EventReplacementReady,
		Message:   "replacement host became active",
		Outcome:   "success",
		Duration:  waited,
		Resource:  &ResourceInfo{Kind: "Host", Name: hostID},
	})
}

// LogHostDeregistered logs a host's successful scheduler deregistration.
func (l *Logger) LogHostDeregistered(ctx context.Context, hostID string) {
	l.Log(ctx, &Event{
		EventType: EventHostDeregistered,
		Message:   "host deregistered from scheduler",
		Outcome:   "success",
		Resource:  &ResourceInfo{Kind: "Host", Name: hostID},
	})
}

// LogLoadBalancerDrained logs a host's successful load balancer drain.
func (l *Logger) LogLoadBalancerDrained(ctx context.Context, hostID string) {
	l.Log(ctx, &Event{
		EventType: EventLoadBalancerDrained,
		Message:   "host drained from load balancers",
		Outcome:   "success",
		Resource:  &ResourceInfo{Kind: "Host", Name: hostID},
	})
}

// LogContainersStopped logs a host's successful container shutdown.
func (l *Logger) LogContainersStopped(ctx context.Context, hostID string) {
	l.Log(ctx, &Event{
		EventType: EventContainersStopped,
		Message:   "containers stopped",
		Outcome:   "success",
		Resource:  &ResourceInfo{Kind: "Host", Name: hostID},
	})
}

// CircuitBreakerOpened logs a circuit breaker tripping open for adapter.
func (l *Logger) CircuitBreakerOpened(ctx context.Context, adapter string) {
	l.Log(ctx, &Event{
		EventType: EventCircuitBreakerOpened,
		Message:   "circuit breaker opened",
		Outcome:   "open",
		Resource:  &ResourceInfo{Kind: "Adapter", Name: adapter},
	})
}

// CircuitBreakerClosed logs a circuit breaker recovering to closed for
// adapter.
func (l *Logger) CircuitBreakerClosed(ctx context.Context, adapter string) {
	l.Log(ctx, &Event{
		EventType: EventCircuitBreakerClosed,
		Message:   "circuit breaker closed",
		Outcome:   "closed",
		Resource:  &ResourceInfo{Kind: "Adapter", Name: adapter},
	})
}

// CloudCallSucceeded logs a cloud adapter call that completed without error.
func (l *Logger) CloudCallSucceeded(ctx context.Context, adapter, operation string) {
	l.Log(ctx, &Event{
		EventType: EventAPICallSuccess,
		Message:   "cloud adapter call succeeded",
		Outcome:   "success",
		Resource:  &ResourceInfo{Kind: "Adapter", Name: adapter},
		Details:   map[string]interface{}{"operation": operation},
	})
}

// CloudCallFailed logs a cloud adapter call that returned an error.
func (l *Logger) CloudCallFailed(ctx context.Context, adapter, operation string, cause error) {
	l.Log(ctx, &Event{
		EventType: EventAPICallFailed,
		Message:   "cloud adapter call failed",
		Outcome:   "failure",
		Resource:  &ResourceInfo{Kind: "Adapter", Name: adapter},
		Details:   map[string]interface{}{"operation": operation, "error": cause.Error()},
	})
}
