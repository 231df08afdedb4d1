package message

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fbittq01/vehicle-manage/errors"
)

func TestDetectionRoundTrip(t *testing.T) {
	env := NewDetection(&DetectionPayload{
		LicensePlate:   "29A-123.45",
		Confidence:     0.93,
		GateID:         "GATE_001",
		GateName:       "Cổng chính",
		Action:         "entry",
		ProcessedImage: "ZmFrZS1wcm9jZXNzZWQ=",
		OriginalImage:  "ZmFrZS1vcmlnaW5hbA==",
		BoundingBox:    BoundingBox{X: 120, Y: 80, Width: 200, Height: 60},
		ProcessingTime: 0.45,
		DeviceInfo: DeviceInfo{
			CameraID:   "CAM_001",
			DeviceName: "entrance-cam",
			IPAddress:  "192.168.1.21",
		},
		Weather: Weather{Condition: "sunny", Temperature: 32.5, Humidity: 70},
	})

	raw, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, env.Type, decoded.Type)
	assert.Equal(t, env.Timestamp, decoded.Timestamp)
	assert.Equal(t, env.Data, decoded.Data)
}

func TestStatusRoundTrip(t *testing.T) {
	env := NewStatus(&StatusPayload{
		Status:         "running",
		ActiveGates:    []string{"GATE_001", "GATE_002"},
		ProcessedCount: 42,
		ErrorCount:     3,
		Uptime:         125.5,
		MemoryUsage:    61.2,
		CPUUsage:       12.8,
		ActiveCameras:  2,
	})

	raw, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, env.Data, decoded.Data)
}

func TestErrorEnvelopeStampsPayloadTimestamp(t *testing.T) {
	env := NewError(&ErrorPayload{
		ErrorCode: "CAMERA_OFFLINE",
		Message:   "camera CAM_002 not responding",
		Severity:  SeverityHigh,
	})

	payload := env.Data.(*ErrorPayload)
	require.NotEmpty(t, payload.Timestamp)
	_, err := time.Parse(time.RFC3339, payload.Timestamp)
	assert.NoError(t, err)
	_, err = time.Parse(time.RFC3339, env.Timestamp)
	assert.NoError(t, err)
}

func TestWireShape(t *testing.T) {
	env := NewDetection(&DetectionPayload{LicensePlate: "30F-567.89"})

	raw, err := Encode(env)
	require.NoError(t, err)

	var top map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(raw, &top))

	// Exactly three top-level keys
	assert.Len(t, top, 3)
	assert.Contains(t, top, "type")
	assert.Contains(t, top, "data")
	assert.Contains(t, top, "timestamp")

	var data map[string]any
	require.NoError(t, json.Unmarshal(top["data"], &data))
	assert.Equal(t, "30F-567.89", data["licensePlate"])
	assert.Contains(t, data, "boundingBox")
	assert.Contains(t, data, "deviceInfo")
}

func TestDecodeUnknownKindPassesThrough(t *testing.T) {
	frame := []byte(`{"type":"rotate_camera","data":{"angle":90,"cameraId":"CAM_001"},"timestamp":"2026-08-23T10:00:00Z"}`)

	env, err := Decode(frame)
	require.NoError(t, err)
	assert.Equal(t, Kind("rotate_camera"), env.Type)

	raw, ok := env.Data.(*RawPayload)
	require.True(t, ok)
	assert.Equal(t, float64(90), raw.Fields["angle"])

	id, ok := raw.String("cameraId")
	require.True(t, ok)
	assert.Equal(t, "CAM_001", id)

	// Unknown payloads survive a re-encode
	out, err := Encode(*env)
	require.NoError(t, err)
	again, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, env.Data, again.Data)
}

func TestDecodeInboundCommands(t *testing.T) {
	for _, kind := range []Kind{KindStartProcessing, KindStopProcessing, KindGetStatus} {
		frame := []byte(`{"type":"` + string(kind) + `","data":{},"timestamp":"2026-08-23T10:00:00Z"}`)
		env, err := Decode(frame)
		require.NoError(t, err)
		assert.Equal(t, kind, env.Type)
		_, ok := env.Data.(*RawPayload)
		assert.True(t, ok, "commands decode opaquely")
	}
}

func TestDecodeMalformed(t *testing.T) {
	cases := map[string][]byte{
		"not json":      []byte(`{{{`),
		"missing type":  []byte(`{"data":{},"timestamp":"2026-08-23T10:00:00Z"}`),
		"bad data type": []byte(`{"type":"processing_status","data":{"processedCount":"many"},"timestamp":""}`),
	}

	for name, frame := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(frame)
			require.Error(t, err)
			assert.True(t, errors.IsInvalid(err))
		})
	}
}

func TestDecodeMissingData(t *testing.T) {
	frame := []byte(`{"type":"processing_status","timestamp":"2026-08-23T10:00:00Z"}`)

	env, err := Decode(frame)
	require.NoError(t, err)
	payload, ok := env.Data.(*StatusPayload)
	require.True(t, ok)
	assert.Zero(t, payload.ProcessedCount)
}

func TestEncodeRejectsIncompleteEnvelope(t *testing.T) {
	_, err := Encode(Envelope{Type: KindError})
	assert.Error(t, err)

	_, err = Encode(Envelope{Data: &ErrorPayload{}})
	assert.Error(t, err)
}

func TestEncodeOutOfRangeConfidence(t *testing.T) {
	// Validation is the collector's concern; the codec stays structural.
	env := NewDetection(&DetectionPayload{LicensePlate: "51K-999.99", Confidence: 1.7})
	raw, err := Encode(env)
	require.NoError(t, err)

	decoded, err := Decode(raw)
	require.NoError(t, err)
	assert.Equal(t, 1.7, decoded.Data.(*DetectionPayload).Confidence)
}

func TestTimestampIsUTCRFC3339(t *testing.T) {
	orig := now
	defer func() { now = orig }()
	now = func() time.Time {
		return time.Date(2026, 8, 23, 17, 30, 0, 0, time.FixedZone("ICT", 7*3600))
	}

	env := NewStatus(&StatusPayload{Status: "running"})
	assert.Equal(t, "2026-08-23T10:30:00Z", env.Timestamp)
}
