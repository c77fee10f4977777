package writer

import (
	"context"
	"fmt"
	"sync"

	"pushflow/logger"
	"pushflow/models"
)

// LogWriter logs every event as a structured entry.
type LogWriter struct {
	events  <-chan models.Event
	ctx     context.Context
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
	log     *logger.Log
	count   int64
}

func NewLogWriter(events <-chan models.Event) *LogWriter {
	return &LogWriter{events: events, log: logger.GetLogger()}
}

func (lw *LogWriter) Start(ctx context.Context) error {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	if lw.running {
		return fmt.Errorf("log writer already running")
	}
	lw.running = true
	lw.ctx = ctx

	lw.wg.Add(1)
	go lw.run()
	return nil
}

func (lw *LogWriter) run() {
	defer lw.wg.Done()
	for {
		select {
		case <-lw.ctx.Done():
			return
		case ev, ok := <-lw.events:
			if !ok {
				return
			}
			lw.write(ev)
		}
	}
}

func (lw *LogWriter) write(ev models.Event) {
	fields := logger.Fields{
		"session_id": ev.SessionID,
		"category":   ev.Category,
		"subject":    ev.Subject,
	}
	for _, f := range ev.Fields {
		fields["field."+f.Key] = f.Value
	}
	if ev.HourTrading {
		fields["hour_trading"] = true
	}
	if ev.Snapshot != nil {
		fields["symbols"] = ev.Snapshot.Symbols
		fields["limit"] = ev.Snapshot.Limit
		fields["used"] = ev.Snapshot.Used
	}
	lw.log.WithComponent("log_writer").WithFields(fields).Info("push event")

	lw.mu.Lock()
	lw.count++
	lw.mu.Unlock()
}

// Count returns the number of events logged.
func (lw *LogWriter) Count() int64 {
	lw.mu.Lock()
	defer lw.mu.Unlock()
	return lw.count
}

// Stop waits for the run loop to exit.
func (lw *LogWriter) Stop() {
	lw.mu.Lock()
	lw.running = false
	lw.mu.Unlock()
	lw.wg.Wait()
}
