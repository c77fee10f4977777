package logger

import (
	"runtime"
	"strings"

	"github.com/sirupsen/logrus"
)

// callerSkips are function prefixes never reported as the caller: logrus,
// this package and the metric emitters, whose lines belong to the code that
// emitted the metric.
var callerSkips = []string{
	"github.com/sirupsen/logrus.",
	"pushflow/logger.",
	"pushflow/internal/metrics.Emit",
	"pushflow/internal/metrics.emit",
	"pushflow/internal/metrics.dispatch",
}

func skipCaller(function string) bool {
	for _, prefix := range callerSkips {
		if strings.HasPrefix(function, prefix) {
			return true
		}
	}
	return false
}

// callerHook sets entry.Caller to the first frame that skipCaller accepts.
type callerHook struct{}

func (h *callerHook) Levels() []logrus.Level {
	return logrus.AllLevels
}

func (h *callerHook) Fire(entry *logrus.Entry) error {
	pcs := make([]uintptr, 32)
	// runtime.Callers, Fire and logrus' hook dispatch
	n := runtime.Callers(3, pcs)
	frames := runtime.CallersFrames(pcs[:n])
	for {
		frame, more := frames.Next()
		if frame.Function != "" && !skipCaller(frame.Function) {
			entry.Caller = &frame
			return nil
		}
		if !more {
			return nil
		}
	}
}
