package logger

import (
	"sync"
	"sync/atomic"
)

type levelCounts struct {
	warns  int64
	errors int64
}

// ComponentCounts is a snapshot of warnings and errors logged by one component.
type ComponentCounts struct {
	Warns  int64
	Errors int64
}

var components sync.Map // map[string]*levelCounts

func countsFor(component string) *levelCounts {
	v, _ := components.LoadOrStore(component, &levelCounts{})
	return v.(*levelCounts)
}

func recordWarn(component string) {
	atomic.AddInt64(&countsFor(component).warns, 1)
}

func recordError(component string) {
	atomic.AddInt64(&countsFor(component).errors, 1)
}

// Counts returns the warn/error totals per component since process start.
func Counts() map[string]ComponentCounts {
	out := make(map[string]ComponentCounts)
	components.Range(func(k, v any) bool {
		c := v.(*levelCounts)
		out[k.(string)] = ComponentCounts{
			Warns:  atomic.LoadInt64(&c.warns),
			Errors: atomic.LoadInt64(&c.errors),
		}
		return true
	})
	return out
}
