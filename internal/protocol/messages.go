package protocol

import "encoding/json"

// Message types
const (
	TypePing         = "ping"
	TypePong         = "pong"
	TypeStatus       = "status"
	TypeDetection    = "detection"
	TypeTransform    = "transform"
	TypePosition     = "position"
	TypeGoal         = "goal"
	TypeGoalResponse = "goal_response"
	TypeGoalResult   = "goal_result"
	TypeError        = "error"
)

// Error codes
const (
	ErrTransform         = "TRANSFORM_ERROR"
	ErrMotionUnavailable = "MOTION_UNAVAILABLE"
	ErrInvalidMessage    = "INVALID_MESSAGE"
	ErrEmptyDetection    = "EMPTY_DETECTION"
)

// Message is the base envelope for all WebSocket messages
type Message struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// PingPayload for ping messages
type PingPayload struct {
	Timestamp int64 `json:"timestamp"`
}

// PongPayload for pong messages
type PongPayload struct {
	ClientTimestamp int64 `json:"client_timestamp"`
	ServerTimestamp int64 `json:"server_timestamp"`
}

// StatusPayload for status messages
type StatusPayload struct {
	MotionConnected bool   `json:"motion_connected"`
	MotionURL       string `json:"motion_url,omitempty"`
	SourceFrame     string `json:"source_frame"`
	WorldFrame      string `json:"world_frame"`
}

// Candidate is a single detected target position in the source frame
type Candidate struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// DetectionPayload carries an ordered list of target candidates.
// Only the first candidate is consumed; the rest are ignored.
type DetectionPayload struct {
	Frame      string      `json:"frame,omitempty"`    // source frame, defaults to the configured one
	StampMs    int64       `json:"stamp_ms,omitempty"` // detection time, unix milliseconds
	Candidates []Candidate `json:"candidates"`
}

// TransformPayload registers the rigid transform between two frames, e.g.
// the camera extrinsics published by the perception rig
type TransformPayload struct {
	From        string     `json:"from"`
	To          string     `json:"to"`
	Translation Candidate  `json:"translation"`
	Rotation    Quaternion `json:"rotation"`
	StampMs     int64      `json:"stamp_ms,omitempty"`
}

// PositionPayload publishes the commanded position once per control tick
type PositionPayload struct {
	Data [3]float64 `json:"data"` // x, y, z
}

// Quaternion is an orientation in x, y, z, w order
type Quaternion struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
	W float64 `json:"w"`
}

// Pose is a position plus orientation
type Pose struct {
	Position    Candidate  `json:"position"`
	Orientation Quaternion `json:"orientation"`
}

// GoalPayload is a pose goal sent to the motion-execution service
type GoalPayload struct {
	ID   string `json:"id"`
	Pose Pose   `json:"pose"`
}

// GoalResponsePayload is the service's accept/reject decision for a goal
type GoalResponsePayload struct {
	ID       string `json:"id"`
	Accepted bool   `json:"accepted"`
}

// GoalResultPayload is the terminal result for an accepted goal
type GoalResultPayload struct {
	ID      string `json:"id"`
	Success bool   `json:"success"`
}

// ErrorPayload for error messages
type ErrorPayload struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// NewMessage creates a new message with the given type and payload
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{
		Type:    msgType,
		Payload: data,
	}, nil
}

// ParsePayload unmarshals the payload into the given struct
func (m *Message) ParsePayload(v any) error {
	return json.Unmarshal(m.Payload, v)
}
