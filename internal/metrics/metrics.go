// Registers:
//
//	#pushflow_frames_received_total{response_type}
//	#pushflow_frames_dropped_total{reason}
//	#pushflow_events_dispatched_total{category}
//	#pushflow_outbound_frames_total{command}
//	#pushflow_reconnects_total{result}
//	#pushflow_connection_state{state}
//	#go_* and process_* system metrics
//
// Exposes them on listen_addr/metrics using Prometheus HTTP handler
package metrics

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"pushflow/logger"
)

var (
	once sync.Once

	framesReceived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushflow_frames_received_total",
			Help: "Inbound MESSAGE frames by response type",
		},
		[]string{"response_type"},
	)
	framesDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushflow_frames_dropped_total",
			Help: "Frames or events discarded before reaching a consumer",
		},
		[]string{"reason"},
	)
	eventsDispatched = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushflow_events_dispatched_total",
			Help: "Normalized events handed to callbacks",
		},
		[]string{"category"},
	)
	outboundFrames = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushflow_outbound_frames_total",
			Help: "Frames written to the broker by command",
		},
		[]string{"command"},
	)
	reconnects = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pushflow_reconnects_total",
			Help: "Automatic reconnect attempts by result",
		},
		[]string{"result"},
	)
	connectionState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "pushflow_connection_state",
			Help: "1 for the current session state, 0 otherwise",
		},
		[]string{"state"},
	)
)

// Init registers the collectors with the default registry.
func Init() {
	once.Do(func() {
		_ = prometheus.Register(framesReceived)
		_ = prometheus.Register(framesDropped)
		_ = prometheus.Register(eventsDispatched)
		_ = prometheus.Register(outboundFrames)
		_ = prometheus.Register(reconnects)
		_ = prometheus.Register(connectionState)
		_ = prometheus.Register(collectors.NewGoCollector())
		_ = prometheus.Register(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	})
}

// Serve exposes /metrics on addr until ctx is cancelled.
func Serve(ctx context.Context, addr string) {
	Init()
	log := logger.GetLogger().WithComponent("metrics")

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	go func() {
		log.WithFields(logger.Fields{"addr": addr}).Info("metrics server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("metrics server failed")
		}
	}()
}

func FrameReceived(responseType string) {
	framesReceived.WithLabelValues(responseType).Inc()
}

func FrameDropped(reason string) {
	framesDropped.WithLabelValues(reason).Inc()
}

func EventDispatched(category string) {
	eventsDispatched.WithLabelValues(category).Inc()
}

func OutboundFrame(command string) {
	outboundFrames.WithLabelValues(command).Inc()
}

func Reconnect(result string) {
	reconnects.WithLabelValues(result).Inc()
}

// SetConnectionState marks state as current among all known states.
func SetConnectionState(state string, all []string) {
	for _, s := range all {
		v := 0.0
		if s == state {
			v = 1
		}
		connectionState.WithLabelValues(s).Set(v)
	}
}
