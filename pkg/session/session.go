// Package session implements the bounded round-robin conversation loop:
// a fixed ordered list of roles takes turns against the accumulated
// transcript until a stop condition fires or the turn budget runs out.
package session

import (
	"context"
	"fmt"
	"time"

	"clockwork/pkg/chat"
	"clockwork/pkg/logx"
)

// TerminalState says how a session run ended.
type TerminalState string

const (
	// StoppedNormally means the stop predicate matched a produced message.
	StoppedNormally TerminalState = "STOPPED_NORMALLY"
	// HitMaxTurns means the turn budget was exhausted before any stop
	// condition fired. Callers treat this as an aborted run.
	HitMaxTurns TerminalState = "HIT_MAX_TURNS"
)

// RoleInvocationError reports a role backend failure during a session turn.
// The transcript up to the failing turn is preserved on the run result.
type RoleInvocationError struct {
	Role chat.RoleID
	Turn int
	Err  error
}

func (e *RoleInvocationError) Error() string {
	return fmt.Sprintf("role %s failed on turn %d: %v", e.Role, e.Turn, e.Err)
}

func (e *RoleInvocationError) Unwrap() error {
	return e.Err
}

// StopPredicate decides, after each produced message, whether the session
// should terminate normally.
type StopPredicate func(chat.Message) bool

// StopOnToken returns a predicate matching a control-token substring.
func StopOnToken(token string) StopPredicate {
	return func(m chat.Message) bool {
		return token != "" && m.Contains(token)
	}
}

// StopOnAnyToken returns a predicate matching any of the given tokens.
func StopOnAnyToken(tokens ...string) StopPredicate {
	return func(m chat.Message) bool {
		for _, token := range tokens {
			if token != "" && m.Contains(token) {
				return true
			}
		}
		return false
	}
}

// Observer receives progress callbacks around session activity. Implementations
// must be cheap; they run inline with the conversation loop.
type Observer interface {
	// SessionStarted fires once per run with the initial message count and
	// an estimated token size of the seed context.
	SessionStarted(name string, messageCount, estimatedTokens int)

	// TurnCompleted fires after each produced message.
	TurnCompleted(name string, role chat.RoleID, turn int)

	// SessionFinished fires once per run with the terminal state.
	SessionFinished(name string, state TerminalState, producedTurns int)
}

// NopObserver ignores all callbacks.
type NopObserver struct{}

func (NopObserver) SessionStarted(string, int, int)            {}
func (NopObserver) TurnCompleted(string, chat.RoleID, int)     {}
func (NopObserver) SessionFinished(string, TerminalState, int) {}

// Result is the outcome of one session run: the full transcript (initial
// messages plus everything produced) and the terminal state.
type Result struct {
	Transcript []chat.Message
	State      TerminalState
}

// LastMessage returns the final transcript message, or false when empty.
func (r Result) LastMessage() (chat.Message, bool) {
	if len(r.Transcript) == 0 {
		return chat.Message{}, false
	}
	return r.Transcript[len(r.Transcript)-1], true
}

// Produced returns only the messages generated during the run, excluding the
// initial seed messages.
func (r Result) Produced(initialCount int) []chat.Message {
	if initialCount >= len(r.Transcript) {
		return nil
	}
	return r.Transcript[initialCount:]
}

// Session drives a fixed ordered list of roles in strict rotation. A Session
// is reusable; each Run starts from a fresh transcript.
type Session struct {
	name      string
	roles     []chat.Role
	stop      StopPredicate
	maxTurns  int
	turnPause time.Duration
	observer  Observer
	estimator func([]chat.Message) int
	logger    *logx.Logger
}

// Option configures a Session.
type Option func(*Session)

// WithTurnPause sleeps between turns, a pacing valve for rate limits.
func WithTurnPause(d time.Duration) Option {
	return func(s *Session) { s.turnPause = d }
}

// WithObserver installs a progress observer.
func WithObserver(o Observer) Option {
	return func(s *Session) {
		if o != nil {
			s.observer = o
		}
	}
}

// WithTokenEstimator overrides the context-size heuristic reported to the
// observer at session start.
func WithTokenEstimator(fn func([]chat.Message) int) Option {
	return func(s *Session) {
		if fn != nil {
			s.estimator = fn
		}
	}
}

// New creates a session over the given roles. maxTurns bounds the number of
// produced messages; stop may be nil, in which case only the turn budget
// terminates the run.
func New(name string, roles []chat.Role, stop StopPredicate, maxTurns int, opts ...Option) *Session {
	s := &Session{
		name:      name,
		roles:     roles,
		stop:      stop,
		maxTurns:  maxTurns,
		observer:  NopObserver{},
		estimator: EstimateTokens,
		logger:    logx.NewLogger("session:" + name),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the rotation starting from initial and returns the transcript
// with its terminal state. A role failure returns a *RoleInvocationError with
// the partial transcript; context cancellation returns ctx.Err().
func (s *Session) Run(ctx context.Context, initial []chat.Message) (Result, error) {
	if len(s.roles) == 0 {
		return Result{}, fmt.Errorf("session %s: no participants", s.name)
	}

	transcript := chat.CopyMessages(initial)
	s.observer.SessionStarted(s.name, len(transcript), s.estimator(transcript))
	s.logger.Info("starting with %d seed messages, max %d turns", len(transcript), s.maxTurns)

	for turn := 0; ; turn++ {
		if turn >= s.maxTurns {
			s.logger.Warn("turn budget exhausted after %d turns", turn)
			s.observer.SessionFinished(s.name, HitMaxTurns, turn)
			return Result{Transcript: transcript, State: HitMaxTurns}, nil
		}
		if err := ctx.Err(); err != nil {
			return Result{Transcript: transcript, State: HitMaxTurns}, err
		}

		role := s.roles[turn%len(s.roles)]
		reply, err := role.Invoke(ctx, transcript)
		if err != nil {
			return Result{Transcript: transcript, State: HitMaxTurns},
				&RoleInvocationError{Role: role.Name(), Turn: turn, Err: err}
		}
		transcript = append(transcript, reply)
		s.observer.TurnCompleted(s.name, role.Name(), turn)

		if s.stop != nil && s.stop(reply) {
			s.logger.Info("stop condition met on turn %d", turn)
			s.observer.SessionFinished(s.name, StoppedNormally, turn+1)
			return Result{Transcript: transcript, State: StoppedNormally}, nil
		}

		if s.turnPause > 0 {
			select {
			case <-ctx.Done():
				return Result{Transcript: transcript, State: HitMaxTurns}, ctx.Err()
			case <-time.After(s.turnPause):
			}
		}
	}
}
