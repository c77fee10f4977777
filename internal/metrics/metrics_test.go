package metrics

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/sirupsen/logrus"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(framesReceived.WithLabelValues("quote_change"))
	FrameReceived("quote_change")
	FrameReceived("quote_change")
	if got := testutil.ToFloat64(framesReceived.WithLabelValues("quote_change")) - before; got != 2 {
		t.Fatalf("expected 2 frames, got %v", got)
	}

	before = testutil.ToFloat64(reconnects.WithLabelValues("success"))
	Reconnect("success")
	if got := testutil.ToFloat64(reconnects.WithLabelValues("success")) - before; got != 1 {
		t.Fatalf("expected 1 reconnect, got %v", got)
	}
}

func TestSetConnectionState(t *testing.T) {
	all := []string{"disconnected", "connecting", "connected", "closed"}
	SetConnectionState("connected", all)

	for _, s := range all {
		want := 0.0
		if s == "connected" {
			want = 1
		}
		if got := testutil.ToFloat64(connectionState.WithLabelValues(s)); got != want {
			t.Errorf("state %s = %v, want %v", s, got, want)
		}
	}
}

func TestEmitDropMetric(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 1)
	id := RegisterMetricHandler(func(m Metric) { events <- m })
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	log, buf := bufferedLogger(logrus.InfoLevel)
	before := testutil.ToFloat64(framesDropped.WithLabelValues(string(DropReasonDecode)))
	EmitDropMetric(log, DropReasonDecode, "quote")

	if got := testutil.ToFloat64(framesDropped.WithLabelValues(string(DropReasonDecode))) - before; got != 1 {
		t.Fatalf("expected drop counter to increase by 1, got %v", got)
	}
	if buf.Len() != 0 {
		t.Fatalf("drop metric logged at info level: %q", buf.String())
	}
	select {
	case m := <-events:
		if m.Fields["reason"] != "decode" || m.Fields["category"] != "quote" {
			t.Fatalf("unexpected fields: %v", m.Fields)
		}
	case <-time.After(50 * time.Millisecond):
		t.Fatal("drop metric not dispatched")
	}
}

type fakeBuffer struct{}

func (fakeBuffer) Name() string { return "events" }
func (fakeBuffer) Len() int     { return 3 }
func (fakeBuffer) Cap() int     { return 8 }

func TestStartChannelSizeMetrics(t *testing.T) {
	resetMetricHandlers()

	events := make(chan Metric, 4)
	id := RegisterMetricHandler(func(m Metric) {
		select {
		case events <- m:
		default:
		}
	})
	t.Cleanup(func() { UnregisterMetricHandler(id) })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartChannelSizeMetrics(ctx, fakeBuffer{}, 10*time.Millisecond)

	select {
	case m := <-events:
		if m.Name != "events_buffer_length" || m.Value != 3 || m.Fields["capacity"] != 8 {
			t.Fatalf("unexpected metric: %+v", m)
		}
	case <-time.After(time.Second):
		t.Fatal("channel size metric not emitted")
	}
}
