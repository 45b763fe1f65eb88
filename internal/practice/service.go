package practice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/MrWong99/linguaplay/internal/challenge"
	"github.com/MrWong99/linguaplay/internal/observe"
	"github.com/MrWong99/linguaplay/pkg/provider/stt"
	"github.com/MrWong99/linguaplay/pkg/scoring"
)

var (
	// ErrUnknownLanguage is returned when a session is requested for a
	// language without built-in support.
	ErrUnknownLanguage = errors.New("practice: unknown language")

	// ErrNoChallenge is returned when an attempt is made on a session that
	// has no current challenge.
	ErrNoChallenge = errors.New("practice: no active challenge")

	// ErrNoTranscriber is returned by AttemptAudio when no STT provider is
	// configured.
	ErrNoTranscriber = errors.New("practice: no speech-to-text provider configured")

	// ErrChallengeChanged is returned by AttemptAudio when the session moved
	// to a new challenge while the audio was being transcribed.
	ErrChallengeChanged = errors.New("practice: challenge changed during attempt")
)

// Outcome is the result of one attempt.
type Outcome struct {
	// Result is the scorer's verdict.
	Result scoring.Result `json:"result"`

	// Transcript is the text that was scored.
	Transcript string `json:"transcript"`

	// Corrected is the STT backend's cleaned-up transcript, when it
	// produced one. It is informational only and never scored.
	Corrected string `json:"corrected,omitempty"`

	// Challenge is the challenge the attempt was scored against.
	Challenge challenge.Challenge `json:"challenge"`

	// Session is the session state after the attempt.
	Session Session `json:"session"`

	// Points is the score awarded for this attempt.
	Points int `json:"points"`

	// LeveledUp reports whether the attempt raised the session level.
	LeveledUp bool `json:"leveled_up"`
}

// Option is a functional option for [NewService].
type Option func(*Service)

// WithTranscriber enables audio attempts through p. name labels provider
// metrics and spans.
func WithTranscriber(p stt.Provider, name string) Option {
	return func(s *Service) {
		s.stt = p
		s.sttName = name
	}
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Service) {
		s.metrics = m
	}
}

// WithStore replaces the session store. Defaults to a fresh [NewStore].
func WithStore(st *Store) Option {
	return func(s *Service) {
		s.store = st
	}
}

// WithClock replaces the time source used to stamp sessions.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// Service coordinates challenges, scoring and session progress. It is safe
// for concurrent use.
type Service struct {
	source  challenge.Source
	stt     stt.Provider
	sttName string
	store   *Store
	metrics *observe.Metrics
	now     func() time.Time
}

// NewService returns a Service drawing challenges from src.
func NewService(src challenge.Source, opts ...Option) *Service {
	s := &Service{
		source:  src,
		sttName: "stt",
		now:     time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	if s.store == nil {
		s.store = NewStore()
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	return s
}

// Sessions returns the underlying session store.
func (s *Service) Sessions() *Store { return s.store }

// CanTranscribe reports whether audio attempts are available.
func (s *Service) CanTranscribe() bool { return s.stt != nil }

// Score scores a free-form attempt outside any session and records it in
// the attempt metrics.
func (s *Service) Score(ctx context.Context, phrase, transcript string, tier scoring.Tier) scoring.Result {
	tier = scoring.ParseTier(string(tier))
	r := scoring.Score(phrase, transcript, tier)
	s.metrics.RecordAttempt(ctx, string(tier), r.IsCorrect, r.WordAccuracy, r.CharacterSimilarity)
	return r
}

// StartSession creates a new session for lang. Locale tags such as "fr-FR"
// are accepted and stored by their language code.
func (s *Service) StartSession(ctx context.Context, lang string) (Session, error) {
	if !challenge.IsSupported(lang) {
		return Session{}, fmt.Errorf("%w: %q", ErrUnknownLanguage, lang)
	}
	sess := s.store.Create(challenge.LookupLanguage(lang).Code, s.now())
	s.metrics.ActiveSessions.Add(ctx, 1)
	observe.Logger(ctx).Debug("practice session started",
		slog.String("session_id", sess.ID),
		slog.String("language", sess.Language),
	)
	return sess, nil
}

// EndSession deletes the session.
func (s *Service) EndSession(ctx context.Context, id string) error {
	if err := s.store.Delete(id); err != nil {
		return err
	}
	s.metrics.ActiveSessions.Add(ctx, -1)
	return nil
}

// Prune deletes sessions idle since cutoff and returns how many were removed.
func (s *Service) Prune(ctx context.Context, cutoff time.Time) int {
	n := s.store.Prune(cutoff)
	if n > 0 {
		s.metrics.ActiveSessions.Add(ctx, int64(-n))
		observe.Logger(ctx).Info("pruned idle practice sessions", slog.Int("count", n))
	}
	return n
}

// NextChallenge fetches a challenge at the session's tier, skipping
// sentences the session has already completed, and makes it current. Any
// previous current challenge is replaced.
func (s *Service) NextChallenge(ctx context.Context, id string) (challenge.Challenge, error) {
	sess, err := s.store.Get(id)
	if err != nil {
		return challenge.Challenge{}, err
	}

	c, err := s.source.Next(ctx, challenge.Request{
		Language: sess.Language,
		Tier:     sess.Tier(),
		Exclude:  sess.Used,
	})
	if err != nil {
		return challenge.Challenge{}, fmt.Errorf("practice: next challenge: %w", err)
	}

	if _, err := s.store.Update(id, func(sess *Session) error {
		sess.Current = &c
		sess.UpdatedAt = s.now()
		return nil
	}); err != nil {
		return challenge.Challenge{}, err
	}
	return c, nil
}

// Attempt scores transcript against the session's current challenge and
// updates the session's progress.
func (s *Service) Attempt(ctx context.Context, id, transcript string) (Outcome, error) {
	return s.attempt(ctx, id, transcript, nil)
}

// attempt scores transcript. A non-nil expected pins the challenge: when the
// session's current challenge differs, nothing is scored.
func (s *Service) attempt(ctx context.Context, id, transcript string, expected *challenge.Challenge) (Outcome, error) {
	var (
		out  Outcome
		tier scoring.Tier
	)
	sess, err := s.store.Update(id, func(sess *Session) error {
		if sess.Current == nil {
			return ErrNoChallenge
		}
		if expected != nil && *sess.Current != *expected {
			return ErrChallengeChanged
		}
		tier = sess.Tier()
		out.Challenge = *sess.Current
		out.Result = scoring.Score(sess.Current.Sentence, transcript, tier)
		out.Points, out.LeveledUp = sess.apply(out.Result, s.now())
		return nil
	})
	if err != nil {
		return Outcome{}, err
	}
	out.Transcript = transcript
	out.Session = sess

	s.metrics.RecordAttempt(ctx, string(tier), out.Result.IsCorrect, out.Result.WordAccuracy, out.Result.CharacterSimilarity)
	if out.LeveledUp {
		s.metrics.RecordLevelUp(ctx, sess.Language)
	}
	observe.Logger(ctx).Debug("practice attempt scored",
		slog.String("session_id", id),
		slog.Bool("correct", out.Result.IsCorrect),
		slog.Float64("word_accuracy", out.Result.WordAccuracy),
		slog.Float64("character_similarity", out.Result.CharacterSimilarity),
		slog.Int("level", sess.Level),
	)
	return out, nil
}

// AttemptAudio transcribes audio with the configured STT provider and scores
// the recognised text. When audio.Language is empty the session language's
// locale is used as the recognition hint.
func (s *Service) AttemptAudio(ctx context.Context, id string, audio stt.Audio) (Outcome, error) {
	if s.stt == nil {
		return Outcome{}, ErrNoTranscriber
	}
	sess, err := s.store.Get(id)
	if err != nil {
		return Outcome{}, err
	}
	if sess.Current == nil {
		return Outcome{}, ErrNoChallenge
	}
	heard := *sess.Current
	if audio.Language == "" {
		audio.Language = challenge.LookupLanguage(sess.Language).Locale
	}

	var tr stt.Transcript
	err = observe.TrackProvider(ctx, s.metrics, s.sttName, observe.KindSTT, func(ctx context.Context) error {
		var err error
		tr, err = s.stt.Transcribe(ctx, audio)
		return err
	})
	if err != nil {
		return Outcome{}, fmt.Errorf("practice: transcribe: %w", err)
	}

	out, err := s.attempt(ctx, id, tr.Text, &heard)
	if err != nil {
		return Outcome{}, err
	}
	out.Corrected = tr.Corrected
	return out, nil
}
