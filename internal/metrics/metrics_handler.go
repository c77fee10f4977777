package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"pushflow/logger"
)

const (
	TypeCounter = "counter"
	TypeGauge   = "gauge"
)

// Metric is one structured measurement handed to every registered handler
// (the CloudWatch publisher, the status API).
type Metric struct {
	Timestamp time.Time
	Component string
	Name      string
	Value     interface{}
	Type      string
	Fields    logger.Fields
}

// MetricHandler consumes metrics. Handlers run on the emitting goroutine,
// which for frame metrics is the connection's read goroutine.
type MetricHandler func(Metric)

// MetricHandlerID identifies a registered handler; zero is never issued.
type MetricHandlerID uint64

type handlerRegistry struct {
	mu     sync.Mutex
	nextID MetricHandlerID
	byID   map[MetricHandlerID]MetricHandler
	// snapshot is rebuilt on every change so emitters never allocate.
	snapshot []MetricHandler
}

var handlers = newHandlerRegistry()

func newHandlerRegistry() *handlerRegistry {
	return &handlerRegistry{byID: make(map[MetricHandlerID]MetricHandler)}
}

func (r *handlerRegistry) add(h MetricHandler) MetricHandlerID {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	r.byID[r.nextID] = h
	r.rebuild()
	return r.nextID
}

func (r *handlerRegistry) remove(id MetricHandlerID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[id]; !ok {
		return
	}
	delete(r.byID, id)
	r.rebuild()
}

func (r *handlerRegistry) rebuild() {
	list := make([]MetricHandler, 0, len(r.byID))
	for _, h := range r.byID {
		list = append(list, h)
	}
	r.snapshot = list
}

func (r *handlerRegistry) current() []MetricHandler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.snapshot
}

// RegisterMetricHandler adds a handler for every metric emitted afterwards.
// A nil handler is ignored and yields id 0.
func RegisterMetricHandler(handler MetricHandler) MetricHandlerID {
	if handler == nil {
		return 0
	}
	return handlers.add(handler)
}

func UnregisterMetricHandler(id MetricHandlerID) {
	if id == 0 {
		return
	}
	handlers.remove(id)
}

// EmitMetric logs a periodic measurement at info level and dispatches it.
func EmitMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	emit(log, logrus.InfoLevel, component, metric, value, metricType, fields)
}

// EmitEventMetric is EmitMetric for measurements taken once per frame or
// event. It logs at debug level only.
func EmitEventMetric(log *logger.Log, component string, metric string, value interface{}, metricType string, fields logger.Fields) {
	emit(log, logrus.DebugLevel, component, metric, value, metricType, fields)
}

func emit(log *logger.Log, level logrus.Level, component, name string, value interface{}, metricType string, fields logger.Fields) {
	if name == "" {
		return
	}
	if metricType == "" {
		metricType = TypeCounter
	}
	if log == nil {
		log = logger.GetLogger()
	}

	m := Metric{
		Timestamp: time.Now(),
		Component: component,
		Name:      name,
		Value:     value,
		Type:      metricType,
		Fields:    make(logger.Fields, len(fields)),
	}
	for k, v := range fields {
		m.Fields[k] = v
	}

	if log.IsLevelEnabled(level) {
		logFields := make(logger.Fields, len(m.Fields)+3)
		for k, v := range m.Fields {
			logFields[k] = v
		}
		logFields["metric"] = name
		logFields["metric_type"] = metricType
		logFields["value"] = value
		log.WithComponent(component).WithFields(logFields).Log(level, "metric")
	}

	for _, h := range handlers.current() {
		dispatch(log, h, m)
	}
}

// dispatch shields the emitter from a failing handler.
func dispatch(log *logger.Log, h MetricHandler, m Metric) {
	defer func() {
		if rec := recover(); rec != nil {
			log.WithComponent("metrics").WithFields(logger.Fields{
				"metric": m.Name,
				"panic":  fmt.Sprint(rec),
			}).Error("metric handler panicked")
		}
	}()
	h(m)
}
