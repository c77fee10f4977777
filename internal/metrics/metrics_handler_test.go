package metrics

import (
	"bytes"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"

	"pushflow/logger"
)

func resetMetricHandlers() {
	handlers = newHandlerRegistry()
}

// bufferedLogger returns a logger writing JSON lines at level into buf.
func bufferedLogger(level logrus.Level) (*logger.Log, *bytes.Buffer) {
	var buf bytes.Buffer
	log := logger.Logger()
	log.SetOutput(&buf)
	log.SetLevel(level)
	return log, &buf
}

func TestRegisterMetricHandlerReturnsUniqueIDs(t *testing.T) {
	resetMetricHandlers()

	id := RegisterMetricHandler(func(Metric) {})
	if id == 0 {
		t.Fatalf("expected non-zero handler id")
	}
	second := RegisterMetricHandler(func(Metric) {})
	if second == 0 || second == id {
		t.Fatalf("expected unique handler id")
	}
	if id := RegisterMetricHandler(nil); id != 0 {
		t.Fatalf("expected zero id for nil handler, got %d", id)
	}
}

func TestUnregisteredHandlerReceivesNothing(t *testing.T) {
	resetMetricHandlers()

	calls := 0
	id := RegisterMetricHandler(func(Metric) { calls++ })
	EmitEventMetric(nil, "router", "frames_received", 1, TypeCounter, nil)
	UnregisterMetricHandler(id)
	UnregisterMetricHandler(id)
	EmitEventMetric(nil, "router", "frames_received", 1, TypeCounter, nil)

	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}

func TestEmitMetricDispatchesCopy(t *testing.T) {
	resetMetricHandlers()

	var got Metric
	id := RegisterMetricHandler(func(m Metric) { got = m })
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	fields := logger.Fields{"destination": "quote"}
	log, buf := bufferedLogger(logrus.InfoLevel)
	EmitMetric(log, "session", "subscriptions", 3, TypeGauge, fields)

	if got.Component != "session" || got.Name != "subscriptions" || got.Type != TypeGauge || got.Value != 3 {
		t.Fatalf("unexpected metric: %+v", got)
	}
	if _, ok := got.Fields["metric"]; ok {
		t.Fatalf("metric fields should not contain log keys: %v", got.Fields)
	}
	got.Fields["destination"] = "trade"
	if fields["destination"] != "quote" {
		t.Fatalf("caller fields mutated: %v", fields)
	}
	if !strings.Contains(buf.String(), `"metric":"subscriptions"`) {
		t.Fatalf("expected metric in info log, got %q", buf.String())
	}
}

func TestEmitMetricDefaults(t *testing.T) {
	resetMetricHandlers()

	var metrics []Metric
	id := RegisterMetricHandler(func(m Metric) { metrics = append(metrics, m) })
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	EmitMetric(nil, "router", "frames", 7, "", nil)
	EmitMetric(nil, "router", "", 1, TypeCounter, nil)

	if len(metrics) != 1 {
		t.Fatalf("expected only the named metric, got %d", len(metrics))
	}
	if metrics[0].Type != TypeCounter {
		t.Fatalf("expected default type counter, got %s", metrics[0].Type)
	}
}

func TestEmitEventMetricLogsAtDebugOnly(t *testing.T) {
	resetMetricHandlers()

	received := 0
	id := RegisterMetricHandler(func(Metric) { received++ })
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	log, buf := bufferedLogger(logrus.InfoLevel)
	EmitEventMetric(log, "kafka_writer", "write_latency_ms", 4.0, TypeGauge, nil)
	if buf.Len() != 0 {
		t.Fatalf("event metric written at info level: %q", buf.String())
	}
	if received != 1 {
		t.Fatalf("expected handler call, got %d", received)
	}

	log.SetLevel(logrus.DebugLevel)
	EmitEventMetric(log, "kafka_writer", "write_latency_ms", 4.0, TypeGauge, nil)
	if !strings.Contains(buf.String(), `"level":"debug"`) {
		t.Fatalf("expected debug metric line, got %q", buf.String())
	}
}

func TestHandlerPanicDoesNotReachEmitter(t *testing.T) {
	resetMetricHandlers()

	after := 0
	RegisterMetricHandler(func(Metric) { panic("sink failed") })
	RegisterMetricHandler(func(Metric) { after++ })

	log, _ := bufferedLogger(logrus.InfoLevel)
	EmitEventMetric(log, "router", "frames_dropped", 1, TypeCounter, nil)

	if after != 1 {
		t.Fatalf("expected remaining handler to run, got %d", after)
	}
}
