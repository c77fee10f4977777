package metrics

import (
	"context"
	"time"

	"pushflow/logger"
)

// Buffer is a bounded queue whose occupancy can be sampled.
type Buffer interface {
	Name() string
	Len() int
	Cap() int
}

// StartChannelSizeMetrics emits occupancy metrics for buf every interval until
// ctx is cancelled. When interval <= 0, a one-second cadence is used.
func StartChannelSizeMetrics(ctx context.Context, buf Buffer, interval time.Duration) {
	if buf == nil {
		return
	}
	if interval <= 0 {
		interval = time.Second
	}

	log := logger.GetLogger()
	ticker := time.NewTicker(interval)

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				EmitMetric(log, "channel_buffers", buf.Name()+"_buffer_length", buf.Len(), "gauge", logger.Fields{
					"buffer":   buf.Name(),
					"capacity": buf.Cap(),
				})
			}
		}
	}()
}
