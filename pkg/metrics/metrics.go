// Package metrics defines the instrumentation interface for the payment
// gate and its prometheus-backed implementation.
package metrics

import "time"

// Event names recorded by the gate.
const (
	EventChallenge        = "challenge"
	EventAdmitted         = "admitted"
	EventRejected         = "rejected"
	EventReplay           = "replay"
	EventSettled          = "settled"
	EventSettlementFailed = "settlement_failed"
)

type Recorder interface {
	IncCounter(name string, labels map[string]string)
	ObserveLatency(name string, duration time.Duration, labels map[string]string)
}

type NoopRecorder struct{}

func (NoopRecorder) IncCounter(string, map[string]string) {}

func (NoopRecorder) ObserveLatency(string, time.Duration, map[string]string) {}
