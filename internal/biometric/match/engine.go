package match

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/BrandonDHaskell/Portunus/biogate/internal/portunus/types"
)

// Decrypter opens an enrolled ciphertext.  *codec.Codec satisfies it.
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

const (
	SkipDecrypt = "decrypt"
	SkipFormat  = "format"
)

type Option func(*Engine)

// WithSkipHook registers fn to be called for every candidate the engine
// skips, with reason SkipDecrypt or SkipFormat.
func WithSkipHook(fn func(subjectID, reason string)) Option {
	return func(e *Engine) { e.onSkip = fn }
}

// WithClock overrides the time source used for EvaluatedAt.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

type Engine struct {
	codec   Decrypter
	matcher Matcher
	log     logrus.FieldLogger
	onSkip  func(subjectID, reason string)
	now     func() time.Time
}

func NewEngine(codec Decrypter, matcher Matcher, log logrus.FieldLogger, opts ...Option) *Engine {
	if log == nil {
		l := logrus.New()
		l.SetLevel(logrus.PanicLevel)
		log = l
	}
	e := &Engine{
		codec:   codec,
		matcher: matcher,
		log:     log.WithField("component", "match_engine"),
		now:     time.Now,
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Identify matches probe against population.  A malformed probe fails with
// ErrTemplateFormat before any candidate is touched.  Candidates that do not
// decrypt, or that decrypt to a malformed template, are logged and skipped.
// Candidates are visited in ascending SubjectID order and the first one at or
// above the threshold wins.  Once started the scan runs to completion.
func (e *Engine) Identify(_ context.Context, probe []byte, population []types.Candidate) (types.MatchResult, error) {
	if !e.matcher.ValidateTemplateFormat(probe) {
		return types.MatchResult{}, fmt.Errorf("Identify: probe: %w", ErrTemplateFormat)
	}

	ordered := make([]types.Candidate, len(population))
	copy(ordered, population)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].SubjectID < ordered[j].SubjectID
	})

	threshold := e.matcher.Threshold()
	var best float64

	for _, c := range ordered {
		plain, err := e.codec.Decrypt(c.Ciphertext)
		if err != nil {
			e.skip(c.SubjectID, SkipDecrypt, err)
			continue
		}
		if !e.matcher.ValidateTemplateFormat(plain) {
			e.skip(c.SubjectID, SkipFormat, ErrTemplateFormat)
			continue
		}

		score := e.matcher.Match(probe, plain)
		if score >= threshold {
			return types.MatchResult{
				Matched:     true,
				SubjectID:   c.SubjectID,
				Score:       score,
				EvaluatedAt: e.now().UTC(),
			}, nil
		}
		if score > best {
			best = score
		}
	}

	return types.MatchResult{
		Matched:     false,
		Score:       best,
		EvaluatedAt: e.now().UTC(),
	}, nil
}

func (e *Engine) skip(subjectID, reason string, err error) {
	e.log.WithFields(logrus.Fields{
		"subject_id": subjectID,
		"reason":     reason,
	}).WithError(err).Warn("skipping enrolled template")
	if e.onSkip != nil {
		e.onSkip(subjectID, reason)
	}
}
