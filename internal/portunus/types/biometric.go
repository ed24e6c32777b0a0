package types

import (
	"errors"
	"time"
)

// Source identifies where a probe template came from.
type Source string

const (
	SourceSimulated Source = "simulated"
	SourceHardware  Source = "hardware"
)

// EnrolledTemplate is the at-rest enrollment record for one subject.
// Ciphertext is the codec output; stores persist it base64-encoded.
type EnrolledTemplate struct {
	SubjectID  string
	Ciphertext []byte
	Active     bool
	EnrolledAt time.Time
	UpdatedAt  time.Time
}

// Candidate is one member of the population handed to the matching engine.
type Candidate struct {
	SubjectID  string
	Ciphertext []byte
}

// ProbeCapture is the transient result of a capture for one attempt.
type ProbeCapture struct {
	RawTemplate []byte
	CapturedAt  time.Time
	Source      Source
}

// ErrNoMatchFound reports a completed identification that matched nobody.
var ErrNoMatchFound = errors.New("no enrolled template matched the probe")

type MatchResult struct {
	Matched     bool      `json:"matched"`
	SubjectID   string    `json:"subject_id,omitempty"`
	Score       float64   `json:"score"`
	EvaluatedAt time.Time `json:"evaluated_at"`
}

// Err returns ErrNoMatchFound for a non-match and nil otherwise.
func (r MatchResult) Err() error {
	if r.Matched {
		return nil
	}
	return ErrNoMatchFound
}

type EnrollRequest struct {
	// Template is optional; when empty the server captures in enrollment mode.
	Template string `json:"template,omitempty"`
}

type EnrollResponse struct {
	OK         bool      `json:"ok"`
	SubjectID  string    `json:"subject_id"`
	Active     bool      `json:"active"`
	EnrolledAt time.Time `json:"enrolled_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// AttemptState is a step of the verification pipeline.
type AttemptState string

const (
	StateIdle      AttemptState = "idle"
	StateCapturing AttemptState = "capturing"
	StateMatching  AttemptState = "matching"
	StateResolving AttemptState = "resolving"
	StateRecorded  AttemptState = "recorded"
	StateFailed    AttemptState = "failed"
)
