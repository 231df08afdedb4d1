package producer

import (
	"github.com/fbittq01/vehicle-manage/message"
)

// Sender writes envelopes to the collector. connection.Manager satisfies
// it; tests use recording fakes.
type Sender interface {
	Send(env message.Envelope) error
}

// Recognizer supplies detections. recognizer.Simulator satisfies it.
type Recognizer interface {
	ProduceDetection() (*message.DetectionPayload, bool)
}

// Recorder receives producer outcome counts. The lifecycle controller's
// stats object implements it; nil disables recording.
type Recorder interface {
	RecordProcessed()
	RecordDropped()
	RecordError()
}

// StatsSource builds the current status payload for periodic reports
type StatsSource interface {
	StatusPayload() *message.StatusPayload
}
