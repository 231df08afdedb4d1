package recognizer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbittq01/vehicle-manage/message"
)

// produce polls until a detection appears; with rate 1.0 only a
// sub-threshold confidence roll can miss, so a few tries suffice
func produce(t *testing.T, s *Simulator) *message.DetectionPayload {
	t.Helper()
	for i := 0; i < 100; i++ {
		if payload, ok := s.ProduceDetection(); ok {
			return payload
		}
	}
	t.Fatal("simulator produced no detection")
	return nil
}

func TestProduceDetectionFields(t *testing.T) {
	s := NewSimulator(WithSeed(1), WithDetectionRate(1.0))
	payload := produce(t, s)

	assert.NotEmpty(t, payload.LicensePlate)
	assert.GreaterOrEqual(t, payload.Confidence, 0.7)
	assert.LessOrEqual(t, payload.Confidence, 0.98)
	assert.Contains(t, []string{"entry", "exit"}, payload.Action)
	assert.Contains(t, []string{"GATE_001", "GATE_002", "GATE_003"}, payload.GateID)
	assert.NotEmpty(t, payload.GateName)
	assert.NotEmpty(t, payload.ProcessedImage)
	assert.NotEmpty(t, payload.OriginalImage)
	assert.Greater(t, payload.BoundingBox.Width, 0)
	assert.Greater(t, payload.BoundingBox.Height, 0)
	assert.GreaterOrEqual(t, payload.ProcessingTime, float64(100))
	assert.NotEmpty(t, payload.DeviceInfo.CameraID)
	assert.Contains(t, []string{"sunny", "cloudy", "rainy"}, payload.Weather.Condition)
}

func TestZeroDetectionRateNeverDetects(t *testing.T) {
	s := NewSimulator(WithSeed(7), WithDetectionRate(0))
	for i := 0; i < 100; i++ {
		_, ok := s.ProduceDetection()
		assert.False(t, ok)
	}
}

func TestMostPollsYieldNothingByDefault(t *testing.T) {
	s := NewSimulator(WithSeed(42))
	detections := 0
	for i := 0; i < 1000; i++ {
		if _, ok := s.ProduceDetection(); ok {
			detections++
		}
	}
	// Nominal rate ~30% minus sub-threshold confidence rejects
	assert.Greater(t, detections, 100)
	assert.Less(t, detections, 500)
}

func TestDeviceIdentityOverride(t *testing.T) {
	s := NewSimulator(WithSeed(3), WithDetectionRate(1.0),
		WithDevice("CAM_ENTRANCE", "entrance-cam"))

	payload := produce(t, s)
	assert.Equal(t, "CAM_ENTRANCE", payload.DeviceInfo.CameraID)
	assert.Equal(t, "entrance-cam", payload.DeviceInfo.DeviceName)
}

func TestActiveGates(t *testing.T) {
	s := NewSimulator()
	assert.Equal(t, []string{"GATE_001", "GATE_002", "GATE_003"}, s.ActiveGates())
	assert.Equal(t, 3, s.CameraCount())

	custom := NewSimulator(WithGates([]Gate{{ID: "GATE_A", Name: "North"}}))
	assert.Equal(t, []string{"GATE_A"}, custom.ActiveGates())
	require.Equal(t, 1, custom.CameraCount())
}
