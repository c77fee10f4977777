package writer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	kafka "github.com/segmentio/kafka-go"

	appconfig "pushflow/config"
	"pushflow/internal/metrics"
	"pushflow/logger"
	"pushflow/models"
)

// messageWriter is the part of *kafka.Writer the event writer needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaWriter publishes events as JSON, keyed by symbol or account.
type KafkaWriter struct {
	config  *appconfig.Config
	events  <-chan models.Event
	writer  messageWriter
	ctx     context.Context
	wg      *sync.WaitGroup
	mu      sync.RWMutex
	running bool
	log     *logger.Log
	written int64
	failed  int64
}

func NewKafkaWriter(cfg *appconfig.Config, events <-chan models.Event) (*KafkaWriter, error) {
	if len(cfg.Writer.Kafka.Brokers) == 0 {
		return nil, fmt.Errorf("kafka brokers not configured")
	}
	kw := newKafkaWriter(cfg, events, &kafka.Writer{
		Addr:         kafka.TCP(cfg.Writer.Kafka.Brokers...),
		Topic:        cfg.Writer.Kafka.Topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: 50 * time.Millisecond,
	})
	kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"brokers": cfg.Writer.Kafka.Brokers,
		"topic":   cfg.Writer.Kafka.Topic,
	}).Debug("kafka writer initialized")
	return kw, nil
}

func newKafkaWriter(cfg *appconfig.Config, events <-chan models.Event, w messageWriter) *KafkaWriter {
	return &KafkaWriter{
		config: cfg,
		events: events,
		writer: w,
		wg:     &sync.WaitGroup{},
		log:    logger.GetLogger(),
	}
}

func (kw *KafkaWriter) Start(ctx context.Context) error {
	kw.mu.Lock()
	if kw.running {
		kw.mu.Unlock()
		return fmt.Errorf("kafka writer already running")
	}
	kw.running = true
	kw.ctx = ctx
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("starting kafka writer")

	kw.wg.Add(1)
	go kw.run()

	return nil
}

func (kw *KafkaWriter) run() {
	defer kw.wg.Done()

	for {
		select {
		case <-kw.ctx.Done():
			return
		case ev, ok := <-kw.events:
			if !ok {
				return
			}
			kw.write(ev)
		}
	}
}

func (kw *KafkaWriter) write(ev models.Event) {
	log := kw.log.WithComponent("kafka_writer").WithFields(logger.Fields{
		"category": ev.Category,
		"subject":  ev.Subject,
	})

	data, err := json.Marshal(ev)
	if err != nil {
		log.WithError(err).Warn("failed to marshal event")
		return
	}
	msg := kafka.Message{
		Key:   []byte(ev.Subject),
		Value: data,
		Time:  ev.ReceivedAt,
		Headers: []kafka.Header{
			{Key: "category", Value: []byte(ev.Category)},
			{Key: "session_id", Value: []byte(ev.SessionID)},
		},
	}

	start := time.Now()
	if err := kw.writer.WriteMessages(kw.ctx, msg); err != nil {
		kw.mu.Lock()
		kw.failed++
		kw.mu.Unlock()
		log.WithError(err).Warn("failed to write message")
		metrics.EmitEventMetric(kw.log, "kafka_writer", "write_errors", 1, metrics.TypeCounter, logger.Fields{"category": ev.Category})
		return
	}

	kw.mu.Lock()
	kw.written++
	kw.mu.Unlock()
	log.Debug("event written to kafka")
	metrics.EmitEventMetric(kw.log, "kafka_writer", "write_latency_ms", float64(time.Since(start).Milliseconds()), metrics.TypeGauge, logger.Fields{"category": ev.Category})
}

// Stats returns the number of events written and failed.
func (kw *KafkaWriter) Stats() (written, failed int64) {
	kw.mu.RLock()
	defer kw.mu.RUnlock()
	return kw.written, kw.failed
}

// Stop waits for the run loop, so cancel its context or close the channel
// first, then closes the kafka writer.
func (kw *KafkaWriter) Stop() {
	kw.mu.Lock()
	kw.running = false
	kw.mu.Unlock()

	kw.log.WithComponent("kafka_writer").Debug("stopping kafka writer")
	kw.wg.Wait()
	if err := kw.writer.Close(); err != nil {
		kw.log.WithComponent("kafka_writer").WithError(err).Warn("failed to close kafka writer")
	}
	kw.log.WithComponent("kafka_writer").Debug("kafka writer stopped")
}
