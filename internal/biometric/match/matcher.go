// Package match compares probe templates against the enrolled population.
package match

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"math"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

var (
	ErrTemplateFormat = errors.New("malformed template")
	ErrNoMatchFound   = types.ErrNoMatchFound
)

// Matcher scores a probe against one decrypted candidate.  Scores are in
// [0,1]; a candidate matches when its score reaches Threshold.
type Matcher interface {
	Match(probe, candidate []byte) float64
	Threshold() float64
	ValidateTemplateFormat(template []byte) bool
}

const DefaultThreshold = 1.0

// ExactMatcher is the reference matcher: byte equality scores 1, anything
// else 0.
type ExactMatcher struct {
	threshold float64
}

// NewExactMatcher returns an ExactMatcher.  A zero threshold selects
// DefaultThreshold; otherwise it must be in (0,1].
func NewExactMatcher(threshold float64) (*ExactMatcher, error) {
	if threshold == 0 {
		threshold = DefaultThreshold
	}
	if math.IsNaN(threshold) || threshold < 0 || threshold > 1 {
		return nil, fmt.Errorf("match threshold %v outside (0,1]", threshold)
	}
	return &ExactMatcher{threshold: threshold}, nil
}

func (m *ExactMatcher) Match(probe, candidate []byte) float64 {
	if bytes.Equal(probe, candidate) {
		return 1
	}
	return 0
}

func (m *ExactMatcher) Threshold() float64 { return m.threshold }

func (m *ExactMatcher) ValidateTemplateFormat(template []byte) bool {
	return ValidTemplate(template)
}

// ValidTemplate reports whether template is non-empty, padded standard
// base64.  Line breaks are rejected even though the decoder would skip them.
func ValidTemplate(template []byte) bool {
	if len(template) == 0 || bytes.ContainsAny(template, "\r\n") {
		return false
	}
	dst := make([]byte, base64.StdEncoding.DecodedLen(len(template)))
	_, err := base64.StdEncoding.Decode(dst, template)
	return err == nil
}
