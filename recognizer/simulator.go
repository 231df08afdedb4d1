package recognizer

import (
	"encoding/base64"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/fbittq01/vehicle-manage/message"
)

// Gate is a monitored entry point
type Gate struct {
	ID   string
	Name string
}

// DefaultGates are the gates the simulated site monitors
var DefaultGates = []Gate{
	{ID: "GATE_001", Name: "Cổng chính"},
	{ID: "GATE_002", Name: "Cổng phụ"},
	{ID: "GATE_003", Name: "Cổng sau"},
}

var defaultPlates = []string{
	"29A-123.45", "30F-567.89", "51B-999.88", "77C-456.12",
	"43D-789.33", "59K-888.99", "61H-555.44", "92B-111.22",
}

var weatherConditions = []string{"sunny", "cloudy", "rainy"}

// defaultDetectionRate: roughly 30% of polls yield a plate
const defaultDetectionRate = 0.3

// confidenceThreshold discards low-confidence reads
const confidenceThreshold = 0.7

// Simulator is a mock recognition engine producing randomized but
// plausible detections. It stands in for a real camera pipeline so the
// agent runs end to end without hardware.
type Simulator struct {
	mu            sync.Mutex
	rng           *rand.Rand
	gates         []Gate
	plates        []string
	detectionRate float64
	cameraID      string
	deviceName    string
}

// Option configures a Simulator
type Option func(*Simulator)

// WithGates overrides the monitored gate set
func WithGates(gates []Gate) Option {
	return func(s *Simulator) {
		if len(gates) > 0 {
			s.gates = gates
		}
	}
}

// WithPlates overrides the sample plate pool
func WithPlates(plates []string) Option {
	return func(s *Simulator) {
		if len(plates) > 0 {
			s.plates = plates
		}
	}
}

// WithDetectionRate sets the fraction of polls that yield a detection
func WithDetectionRate(rate float64) Option {
	return func(s *Simulator) {
		if rate >= 0 && rate <= 1 {
			s.detectionRate = rate
		}
	}
}

// WithDevice fixes the reporting camera identity
func WithDevice(cameraID, deviceName string) Option {
	return func(s *Simulator) {
		s.cameraID = cameraID
		s.deviceName = deviceName
	}
}

// WithSeed makes the simulator deterministic for tests
func WithSeed(seed int64) Option {
	return func(s *Simulator) {
		s.rng = rand.New(rand.NewSource(seed))
	}
}

// NewSimulator creates a simulator with the default site layout
func NewSimulator(opts ...Option) *Simulator {
	s := &Simulator{
		rng:           rand.New(rand.NewSource(time.Now().UnixNano())),
		gates:         DefaultGates,
		plates:        defaultPlates,
		detectionRate: defaultDetectionRate,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ProduceDetection returns the next simulated detection. ok is false when
// the current frame has no recognizable plate, the common case.
func (s *Simulator) ProduceDetection() (*message.DetectionPayload, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rng.Float64() > s.detectionRate {
		return nil, false
	}

	confidence := roundTo2(0.75 + s.rng.Float64()*(0.98-0.75))
	if confidence < confidenceThreshold {
		return nil, false
	}

	gate := s.gates[s.rng.Intn(len(s.gates))]
	plate := s.plates[s.rng.Intn(len(s.plates))]

	cameraID := s.cameraID
	if cameraID == "" {
		cameraID = fmt.Sprintf("CAM_%03d", s.rng.Intn(10)+1)
	}
	deviceName := s.deviceName
	if deviceName == "" {
		deviceName = "Camera " + gate.Name
	}

	action := "entry"
	if s.rng.Intn(2) == 1 {
		action = "exit"
	}

	return &message.DetectionPayload{
		LicensePlate:   plate,
		Confidence:     confidence,
		GateID:         gate.ID,
		GateName:       gate.Name,
		Action:         action,
		ProcessedImage: fakeImageBase64("Processed: " + plate),
		OriginalImage:  fakeImageBase64("Original"),
		BoundingBox: message.BoundingBox{
			X:      50 + s.rng.Intn(151),
			Y:      50 + s.rng.Intn(101),
			Width:  150 + s.rng.Intn(151),
			Height: 80 + s.rng.Intn(41),
		},
		ProcessingTime: float64(100 + s.rng.Intn(401)),
		DeviceInfo: message.DeviceInfo{
			CameraID:   cameraID,
			DeviceName: deviceName,
			IPAddress:  fmt.Sprintf("192.168.1.%d", 100+s.rng.Intn(101)),
		},
		Weather: message.Weather{
			Condition:   weatherConditions[s.rng.Intn(len(weatherConditions))],
			Temperature: float64(20 + s.rng.Intn(16)),
			Humidity:    60 + s.rng.Intn(31),
		},
	}, true
}

// ActiveGates lists monitored gate IDs for status reports
func (s *Simulator) ActiveGates() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]string, len(s.gates))
	for i, g := range s.gates {
		ids[i] = g.ID
	}
	return ids
}

// CameraCount reports the number of simulated cameras (one per gate)
func (s *Simulator) CameraCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.gates)
}

// fakeImageBase64 stands in for a JPEG snapshot
func fakeImageBase64(text string) string {
	return base64.StdEncoding.EncodeToString([]byte("fake-jpeg:" + text))
}

func roundTo2(f float64) float64 {
	return float64(int(f*100+0.5)) / 100
}
