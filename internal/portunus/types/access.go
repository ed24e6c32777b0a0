package types

import "time"

type Direction string

const (
	DirectionEntry Direction = "entry"
	DirectionExit  Direction = "exit"
)

func (d Direction) Valid() bool {
	return d == DirectionEntry || d == DirectionExit
}

type Outcome string

const (
	OutcomeGranted Outcome = "granted"
	OutcomeDenied  Outcome = "denied"
)

func (o Outcome) Valid() bool {
	return o == OutcomeGranted || o == OutcomeDenied
}

// AccessEvent is one row of the audit log.  SubjectID is empty when the
// probe did not identify anybody.
type AccessEvent struct {
	ID         string    `json:"id"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Direction  Direction `json:"direction"`
	Outcome    Outcome   `json:"outcome"`
	DeviceID   string    `json:"device_id"`
	OccurredAt time.Time `json:"occurred_at"`
}

type VerifyRequest struct {
	DeviceID string `json:"device_id"`
	// Template is an optional probe supplied by the reader itself.  When
	// empty the server captures from its configured device.
	Template string `json:"template,omitempty"`
}

type VerifyResponse struct {
	OK         bool      `json:"ok"`
	Matched    bool      `json:"matched"`
	SubjectID  string    `json:"subject_id,omitempty"`
	Score      float64   `json:"score"`
	EventID    string    `json:"event_id"`
	Direction  Direction `json:"direction"`
	Outcome    Outcome   `json:"outcome"`
	Reason     string    `json:"reason"`
	DeviceID   string    `json:"device_id"`
	ServerTime string    `json:"server_time"`
}
