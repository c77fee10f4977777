// Package writer drains forwarded push events into a sink.
package writer

import (
	"context"
	"fmt"
	"time"

	appconfig "pushflow/config"
	"pushflow/models"
)

// EventWriter consumes events until its context is cancelled or the channel
// is closed.
type EventWriter interface {
	Start(ctx context.Context) error
	Stop()
}

// New builds the writer selected by writer.sink.
func New(cfg *appconfig.Config, events <-chan models.Event) (EventWriter, error) {
	switch cfg.Writer.Sink {
	case "", "log":
		return NewLogWriter(events), nil
	case "kafka":
		return NewKafkaWriter(cfg, events)
	default:
		return nil, fmt.Errorf("unknown writer sink '%s'", cfg.Writer.Sink)
	}
}

// Drain closes the event source and waits for w to write what is still
// buffered. The writer's context must stay live until Drain returns. It
// reports false when timeout passes first; Stop keeps running in that case.
func Drain(w EventWriter, closeSource func(), timeout time.Duration) bool {
	closeSource()

	stopped := make(chan struct{})
	go func() {
		w.Stop()
		close(stopped)
	}()

	select {
	case <-stopped:
		return true
	case <-time.After(timeout):
		return false
	}
}
