package message

import "encoding/json"

// BoundingBox locates a detected plate within the source frame.
type BoundingBox struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// DeviceInfo identifies the camera that produced a detection.
type DeviceInfo struct {
	CameraID   string `json:"cameraId"`
	DeviceName string `json:"deviceName"`
	IPAddress  string `json:"ipAddress"`
}

// Weather captures ambient conditions at detection time.
type Weather struct {
	Condition   string  `json:"condition"`
	Temperature float64 `json:"temperature"`
	Humidity    int     `json:"humidity"`
}

// DetectionPayload is the data of a license_plate_detected message.
type DetectionPayload struct {
	LicensePlate   string      `json:"licensePlate"`
	Confidence     float64     `json:"confidence"`
	GateID         string      `json:"gateId"`
	GateName       string      `json:"gateName"`
	Action         string      `json:"action"`
	ProcessedImage string      `json:"processedImage"`
	OriginalImage  string      `json:"originalImage"`
	BoundingBox    BoundingBox `json:"boundingBox"`
	ProcessingTime float64     `json:"processingTime"`
	DeviceInfo     DeviceInfo  `json:"deviceInfo"`
	Weather        Weather     `json:"weather"`
}

// Kind implements Payload.
func (p *DetectionPayload) Kind() Kind { return KindLicensePlateDetected }

// StatusPayload is the data of a processing_status message.
type StatusPayload struct {
	Status         string   `json:"status"`
	ActiveGates    []string `json:"activeGates"`
	ProcessedCount int64    `json:"processedCount"`
	ErrorCount     int64    `json:"errorCount"`
	Uptime         float64  `json:"uptime"`
	MemoryUsage    float64  `json:"memoryUsage"`
	CPUUsage       float64  `json:"cpuUsage"`
	ActiveCameras  int      `json:"activeCameras"`
}

// Kind implements Payload.
func (p *StatusPayload) Kind() Kind { return KindProcessingStatus }

// ErrorPayload is the data of an error message.
type ErrorPayload struct {
	ErrorCode string         `json:"errorCode"`
	Message   string         `json:"message"`
	Severity  string         `json:"severity"`
	Timestamp string         `json:"timestamp"`
	Details   map[string]any `json:"details,omitempty"`
}

// Kind implements Payload.
func (p *ErrorPayload) Kind() Kind { return KindError }

// Error severity levels
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// RawPayload carries the data of a message whose kind has no registered
// factory. Fields holds the decoded object as-is so unrecognized command
// types survive a decode/encode round trip.
type RawPayload struct {
	MessageKind Kind
	Fields      map[string]any
}

// Kind implements Payload.
func (p *RawPayload) Kind() Kind { return p.MessageKind }

// MarshalJSON emits the preserved fields as the data object.
func (p *RawPayload) MarshalJSON() ([]byte, error) {
	if p.Fields == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(p.Fields)
}

// UnmarshalJSON captures the data object opaquely.
func (p *RawPayload) UnmarshalJSON(raw []byte) error {
	return json.Unmarshal(raw, &p.Fields)
}

// String returns a field as a string, with ok reporting presence and type.
func (p *RawPayload) String(field string) (string, bool) {
	v, ok := p.Fields[field]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}
