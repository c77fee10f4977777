package metrics

import "pushflow/logger"

// DropReason identifies why a frame or event never reached its consumer.
type DropReason string

const (
	// DropReasonDecode records frame bodies that were not valid JSON objects.
	DropReasonDecode DropReason = "decode"
	// DropReasonUnknownType records frames with an unrecognized response type.
	DropReasonUnknownType DropReason = "unknown_type"
	// DropReasonCallbackPanic records frames whose callback panicked.
	DropReasonCallbackPanic DropReason = "callback_panic"
	// DropReasonChannelFull records events dropped because the event channel was full.
	DropReasonChannelFull DropReason = "channel_full"
)

// EmitDropMetric counts a dropped frame or event and emits it as a metric.
// Category is added to the metric fields when provided. Drops are per frame,
// so they are logged at debug level only.
func EmitDropMetric(log *logger.Log, reason DropReason, category string) {
	FrameDropped(string(reason))

	fields := logger.Fields{"reason": string(reason)}
	if category != "" {
		fields["category"] = category
	}
	EmitEventMetric(log, "push_drops", "frames_dropped", 1, TypeCounter, fields)
}
