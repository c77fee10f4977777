package channel

import (
	"context"
	"sync"

	"pushflow/internal/metrics"
	"pushflow/logger"
	"pushflow/models"
)

type ChannelStats struct {
	Sent    int64
	Dropped int64
}

// Events buffers normalized push events between the delivery goroutine and
// the writers. Sends never block so callbacks return promptly.
type Events struct {
	C chan models.Event

	stats      ChannelStats
	statsMutex sync.RWMutex

	// closeMu orders Close after any Send in progress.
	closeMu sync.RWMutex
	closed  bool
	log     *logger.Log
}

func NewEvents(bufferSize int) *Events {
	log := logger.GetLogger()
	c := &Events{
		C:   make(chan models.Event, bufferSize),
		log: log,
	}

	log.WithComponent("event_channel").WithFields(logger.Fields{
		"buffer_size": bufferSize,
	}).Info("event channel initialized")

	return c
}

// Close closes C so readers drain what is buffered. Later sends are refused.
func (c *Events) Close() {
	c.closeMu.Lock()
	defer c.closeMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	close(c.C)
	c.log.WithComponent("event_channel").WithFields(logger.Fields{"buffered": len(c.C)}).Info("event channel closed")
}

// Send enqueues ev, dropping it when the buffer is full or ctx is done. It
// returns false once the channel is closed.
func (c *Events) Send(ctx context.Context, ev models.Event) bool {
	select {
	case <-ctx.Done():
		return false
	default:
	}

	c.closeMu.RLock()
	defer c.closeMu.RUnlock()
	if c.closed {
		return false
	}

	select {
	case c.C <- ev:
		c.statsMutex.Lock()
		c.stats.Sent++
		c.statsMutex.Unlock()
		return true
	default:
		c.statsMutex.Lock()
		c.stats.Dropped++
		c.statsMutex.Unlock()
		metrics.EmitDropMetric(c.log, metrics.DropReasonChannelFull, ev.Category)
		return false
	}
}

func (c *Events) GetStats() ChannelStats {
	c.statsMutex.RLock()
	defer c.statsMutex.RUnlock()
	return c.stats
}

func (c *Events) Name() string { return "events" }
func (c *Events) Len() int     { return len(c.C) }
func (c *Events) Cap() int     { return cap(c.C) }
