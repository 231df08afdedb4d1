package producer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbittq01/vehicle-manage/errors"
	"github.com/fbittq01/vehicle-manage/message"
)

type fakeSender struct {
	mu     sync.Mutex
	frames []message.Envelope
	err    error
}

func (s *fakeSender) Send(env message.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.frames = append(s.frames, env)
	return nil
}

func (s *fakeSender) setErr(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

func (s *fakeSender) sent() []message.Envelope {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]message.Envelope, len(s.frames))
	copy(out, s.frames)
	return out
}

// seqRecognizer emits plates in sequence so ordering is observable
type seqRecognizer struct {
	n atomic.Int64
}

func (r *seqRecognizer) ProduceDetection() (*message.DetectionPayload, bool) {
	n := r.n.Add(1)
	return &message.DetectionPayload{
		LicensePlate: fmt.Sprintf("PLATE-%03d", n),
		Confidence:   0.9,
		GateID:       "GATE_001",
		Action:       "entry",
	}, true
}

type fakeRecorder struct {
	processed atomic.Int64
	dropped   atomic.Int64
	errs      atomic.Int64
}

func (r *fakeRecorder) RecordProcessed() { r.processed.Add(1) }
func (r *fakeRecorder) RecordDropped()   { r.dropped.Add(1) }
func (r *fakeRecorder) RecordError()     { r.errs.Add(1) }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(discardWriter{}, &slog.HandlerOptions{Level: slog.LevelError}))
}

type discardWriter struct{}

func (discardWriter) Write(p []byte) (int, error) { return len(p), nil }

func fastConfig() DetectionConfig {
	return DetectionConfig{MinInterval: 2 * time.Millisecond, MaxInterval: 4 * time.Millisecond}
}

func TestDetectionSendsInGenerationOrder(t *testing.T) {
	sender := &fakeSender{}
	recorder := &fakeRecorder{}
	p := NewDetection(fastConfig(), sender, &seqRecognizer{}, recorder, testLogger())

	require.NoError(t, p.Start(context.Background()))
	waitFor(t, func() bool { return len(sender.sent()) >= 3 })
	require.NoError(t, p.Stop(time.Second))

	frames := sender.sent()
	for i, env := range frames[:3] {
		assert.Equal(t, message.KindLicensePlateDetected, env.Type)
		payload := env.Data.(*message.DetectionPayload)
		assert.Equal(t, fmt.Sprintf("PLATE-%03d", i+1), payload.LicensePlate)
	}
	assert.GreaterOrEqual(t, recorder.processed.Load(), int64(3))
}

func TestDetectionDropsWhileDisconnected(t *testing.T) {
	sender := &fakeSender{}
	sender.setErr(errors.ErrNotConnected)
	recorder := &fakeRecorder{}
	p := NewDetection(fastConfig(), sender, &seqRecognizer{}, recorder, testLogger())

	require.NoError(t, p.Start(context.Background()))
	waitFor(t, func() bool { return recorder.dropped.Load() >= 2 })

	assert.Empty(t, sender.sent(), "nothing buffered or delivered while down")

	// Link restored: the loop keeps producing, dropped frames stay lost
	sender.setErr(nil)
	waitFor(t, func() bool { return len(sender.sent()) >= 1 })
	require.NoError(t, p.Stop(time.Second))

	sent, dropped, failed := p.Counts()
	assert.GreaterOrEqual(t, dropped, int64(2))
	assert.GreaterOrEqual(t, sent, int64(1))
	assert.Equal(t, int64(0), failed)
}

// failFirstSender fails the first text send, then recovers
type failFirstSender struct {
	fakeSender
	failed atomic.Bool
}

func (s *failFirstSender) Send(env message.Envelope) error {
	if env.Type == message.KindLicensePlateDetected && s.failed.CompareAndSwap(false, true) {
		return errors.WrapTransient(errors.ErrConnectionLost, "fake", "Send", "simulated")
	}
	return s.fakeSender.Send(env)
}

func TestDetectionSendFailureReportsErrorEnvelope(t *testing.T) {
	sender := &failFirstSender{}
	recorder := &fakeRecorder{}
	p := NewDetection(fastConfig(), sender, &seqRecognizer{}, recorder, testLogger())

	require.NoError(t, p.Start(context.Background()))
	waitFor(t, func() bool {
		for _, env := range sender.sent() {
			if env.Type == message.KindError {
				return true
			}
		}
		return false
	})
	require.NoError(t, p.Stop(time.Second))

	var errEnv *message.Envelope
	for i := range sender.sent() {
		env := sender.sent()[i]
		if env.Type == message.KindError {
			errEnv = &env
			break
		}
	}
	require.NotNil(t, errEnv)
	payload := errEnv.Data.(*message.ErrorPayload)
	assert.Equal(t, "DETECTION_SEND_FAILED", payload.ErrorCode)
	assert.Equal(t, message.SeverityMedium, payload.Severity)
	assert.NotEmpty(t, payload.Details["errorId"])
	assert.Equal(t, int64(1), recorder.errs.Load())
}

func TestDetectionPauseAndResume(t *testing.T) {
	sender := &fakeSender{}
	p := NewDetection(fastConfig(), sender, &seqRecognizer{}, nil, testLogger())

	require.NoError(t, p.Start(context.Background()))
	waitFor(t, func() bool { return len(sender.sent()) >= 1 })

	p.Pause()
	assert.True(t, p.Paused())
	time.Sleep(10 * time.Millisecond) // let in-flight emit finish
	before := len(sender.sent())
	time.Sleep(30 * time.Millisecond)
	assert.LessOrEqual(t, len(sender.sent()), before+1, "paused producer stops sending")

	p.Resume()
	assert.False(t, p.Paused())
	waitFor(t, func() bool { return len(sender.sent()) > before+1 })
	require.NoError(t, p.Stop(time.Second))
}

func TestDetectionStopMidSleepIsPrompt(t *testing.T) {
	sender := &fakeSender{}
	cfg := DetectionConfig{MinInterval: time.Hour, MaxInterval: time.Hour}
	p := NewDetection(cfg, sender, &seqRecognizer{}, nil, testLogger())

	require.NoError(t, p.Start(context.Background()))

	start := time.Now()
	require.NoError(t, p.Stop(time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Empty(t, sender.sent(), "no sends after shutdown mid-sleep")
}

func TestDetectionDoubleStartRejected(t *testing.T) {
	p := NewDetection(fastConfig(), &fakeSender{}, &seqRecognizer{}, nil, testLogger())
	require.NoError(t, p.Start(context.Background()))
	defer p.Stop(time.Second)

	err := p.Start(context.Background())
	assert.True(t, errors.Is(err, errors.ErrAlreadyStarted))
}

type fakeStatsSource struct {
	payload *message.StatusPayload
}

func (s *fakeStatsSource) StatusPayload() *message.StatusPayload {
	return s.payload
}

func TestStatusSendsPeriodically(t *testing.T) {
	sender := &fakeSender{}
	source := &fakeStatsSource{payload: &message.StatusPayload{
		Status:         "running",
		ActiveGates:    []string{"GATE_001"},
		ProcessedCount: 7,
	}}
	p := NewStatus(3*time.Millisecond, sender, source, testLogger())

	require.NoError(t, p.Start(context.Background()))
	waitFor(t, func() bool { return len(sender.sent()) >= 2 })
	require.NoError(t, p.Stop(time.Second))

	env := sender.sent()[0]
	assert.Equal(t, message.KindProcessingStatus, env.Type)
	payload := env.Data.(*message.StatusPayload)
	assert.Equal(t, "running", payload.Status)
	assert.Equal(t, int64(7), payload.ProcessedCount)
}

func TestStatusSendNowAndDisconnectedDrop(t *testing.T) {
	sender := &fakeSender{}
	source := &fakeStatsSource{payload: &message.StatusPayload{Status: "running"}}
	p := NewStatus(time.Hour, sender, source, testLogger())

	p.SendNow()
	assert.Len(t, sender.sent(), 1)

	sender.setErr(errors.ErrNotConnected)
	p.SendNow()
	_, dropped := p.Counts()
	assert.Equal(t, int64(1), dropped)
	assert.Len(t, sender.sent(), 1)
}

func TestStatusStopMidSleepIsPrompt(t *testing.T) {
	sender := &fakeSender{}
	p := NewStatus(time.Hour, sender, &fakeStatsSource{}, testLogger())
	require.NoError(t, p.Start(context.Background()))

	start := time.Now()
	require.NoError(t, p.Stop(time.Second))
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}
