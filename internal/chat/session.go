// Package chat runs the assistant conversation about the current assessment.
package chat

import (
	"context"
	"errors"
	"strings"
	"sync"

	"golang.org/x/sync/semaphore"

	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/logging"
	"chainwatch/internal/risk"
	"chainwatch/internal/riskclient"
)

// FallbackMessage is appended as the assistant's turn when a request fails.
const FallbackMessage = "Sorry, I encountered an error. Please try again."

// ErrEmptyMessage rejects empty or whitespace-only input.
var ErrEmptyMessage = errors.New("message is empty")

// ExampleQuestions are offered while the transcript is empty.
var ExampleQuestions = []string{
	"Why is this region high risk?",
	"What are the weather conditions?",
	"Any port disruptions today?",
	"What is the main risk factor?",
}

// Role identifies the author of a transcript entry.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Message is one transcript entry.
type Message struct {
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

// Phase is the session's state machine position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseSending
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseSending:
		return "sending"
	default:
		return "unknown"
	}
}

// MarshalText renders the phase name in JSON.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// Outcome tells the caller what Send did.
type Outcome int

const (
	// OutcomeAnswered: the question and the assistant's reply were appended.
	OutcomeAnswered Outcome = iota
	// OutcomeFallback: the question and the fallback apology were appended.
	OutcomeFallback
	// OutcomeIgnored: a request was already in flight; nothing changed.
	OutcomeIgnored
	// OutcomeRejected: the input was empty; nothing changed.
	OutcomeRejected
)

func (o Outcome) String() string {
	switch o {
	case OutcomeAnswered:
		return "answered"
	case OutcomeFallback:
		return "fallback"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// MarshalText renders the outcome name in JSON.
func (o Outcome) MarshalText() ([]byte, error) {
	return []byte(o.String()), nil
}

// Service sends one chat question.
type Service interface {
	Chat(ctx context.Context, message string, region risk.Region) (riskclient.ChatReply, error)
}

// ContextSource exposes the region under discussion. The analysis controller
// satisfies it; the session never writes to it.
type ContextSource interface {
	CurrentRegion() risk.Region
}

// Snapshot is a consistent copy of the session's observable state.
type Snapshot struct {
	Phase       Phase     `json:"phase"`
	Open        bool      `json:"open"`
	Transcript  []Message `json:"transcript"`
	Suggestions []string  `json:"suggestions,omitempty"`
}

// Sending reports whether a request is in flight.
func (s Snapshot) Sending() bool {
	return s.Phase == PhaseSending
}

// Option customises a Session.
type Option func(*Session)

// WithLogger sets the component logger.
func WithLogger(logger logging.Logger) Option {
	return func(s *Session) { s.logger = logging.OrNop(logger) }
}

// WithFallbackMessage replaces the apology appended on failure.
func WithFallbackMessage(message string) Option {
	return func(s *Session) {
		if strings.TrimSpace(message) != "" {
			s.fallback = message
		}
	}
}

// Session is the ChatSession for one user. Its transcript is append-only and
// only one question may be in flight.
type Session struct {
	service  Service
	source   ContextSource
	logger   logging.Logger
	fallback string

	slot *semaphore.Weighted

	mu         sync.Mutex
	phase      Phase
	open       bool
	transcript []Message
	observers  []func(Snapshot)
}

// New builds an empty, closed session. source may be nil.
func New(service Service, source ContextSource, opts ...Option) *Session {
	s := &Session{
		service:  service,
		source:   source,
		logger:   logging.Nop(),
		fallback: FallbackMessage,
		slot:     semaphore.NewWeighted(1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers an observer called with a fresh snapshot after every
// transcript or visibility change.
func (s *Session) OnChange(fn func(Snapshot)) {
	if fn == nil {
		return
	}
	s.mu.Lock()
	s.observers = append(s.observers, fn)
	s.mu.Unlock()
}

// Send asks one question. The user's entry is appended before the request is
// issued; the reply, or the fallback apology when the request fails, follows
// it. A failure is reported through the outcome only.
func (s *Session) Send(ctx context.Context, text string) (Outcome, error) {
	question := strings.TrimSpace(text)
	if question == "" {
		return OutcomeRejected, ErrEmptyMessage
	}
	if !s.slot.TryAcquire(1) {
		return OutcomeIgnored, nil
	}
	defer s.slot.Release(1)

	s.mu.Lock()
	s.transcript = append(s.transcript, Message{Role: RoleUser, Content: question})
	s.phase = PhaseSending
	s.mu.Unlock()
	s.notify()

	var region risk.Region
	if s.source != nil {
		region = s.source.CurrentRegion()
	}

	reply, err := s.service.Chat(ctx, question, region)

	outcome := OutcomeAnswered
	answer := Message{Role: RoleAssistant, Content: reply.Response}
	if err != nil {
		outcome = OutcomeFallback
		answer.Content = s.fallback
		logging.FromContext(ctx, s.logger).Warn("chat request failed (%s): %s", cwerrors.Classify(err), cwerrors.Reason(err))
	}

	s.mu.Lock()
	s.transcript = append(s.transcript, answer)
	s.phase = PhaseIdle
	s.mu.Unlock()
	s.notify()

	return outcome, nil
}

// Open shows the chat panel.
func (s *Session) Open() {
	s.setOpen(true)
}

// Close hides the chat panel. The transcript is kept.
func (s *Session) Close() {
	s.setOpen(false)
}

func (s *Session) setOpen(open bool) {
	s.mu.Lock()
	changed := s.open != open
	s.open = open
	s.mu.Unlock()
	if changed {
		s.notify()
	}
}

// Transcript returns a copy of the transcript in append order.
func (s *Session) Transcript() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Message(nil), s.transcript...)
}

// Suggestions returns the example questions.
func (s *Session) Suggestions() []string {
	return append([]string(nil), ExampleQuestions...)
}

// Snapshot returns a copy of the observable state. Suggestions are included
// only while the transcript is empty.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Session) snapshotLocked() Snapshot {
	snapshot := Snapshot{
		Phase:      s.phase,
		Open:       s.open,
		Transcript: append([]Message{}, s.transcript...),
	}
	if len(s.transcript) == 0 {
		snapshot.Suggestions = s.Suggestions()
	}
	return snapshot
}

func (s *Session) notify() {
	s.mu.Lock()
	observers := make([]func(Snapshot), len(s.observers))
	copy(observers, s.observers)
	snapshot := s.snapshotLocked()
	s.mu.Unlock()

	for _, fn := range observers {
		fn(snapshot)
	}
}
