package conversation

import (
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/MrWong99/edusync/pkg/types"
)

// charsPerToken is the heuristic ratio used for token estimation.
// English text averages roughly 4 characters per token across common
// LLM tokenizers.
const charsPerToken = 4

// Option configures a [Store].
type Option func(*Store)

// WithStrictAlternation makes [Store.Append] reject a turn whose role equals
// the role of the last stored turn.
func WithStrictAlternation() Option {
	return func(s *Store) {
		s.strict = true
	}
}

// WithClock overrides the time source used to stamp turns that arrive with a
// zero At. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		s.now = now
	}
}

// Store is the ordered, append-only turn log for one session.
//
// All methods are safe for concurrent use. Readers never observe a partially
// applied append.
type Store struct {
	strict bool
	now    func() time.Time

	mu    sync.RWMutex
	turns []Turn
	chars int
}

// New creates an empty Store.
func New(opts ...Option) *Store {
	s := &Store{now: time.Now}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Append adds turn to the end of the log. A zero At is set to the current
// time. On error the store is unchanged.
func (s *Store) Append(turn Turn) error {
	if !turn.Role.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidRole, turn.Role)
	}
	if turn.At.IsZero() {
		turn.At = s.now()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.strict && len(s.turns) > 0 && s.turns[len(s.turns)-1].Role == turn.Role {
		return fmt.Errorf("%w: %s after %s", ErrInvalidRoleSequence, turn.Role, turn.Role)
	}
	s.turns = append(s.turns, turn)
	s.chars += len(turn.Content)
	return nil
}

// Seed appends an assistant greeting when the store is empty. It is a no-op
// on a non-empty store or for an empty greeting.
func (s *Store) Seed(greeting string) {
	if greeting == "" {
		return
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.turns) > 0 {
		return
	}
	s.turns = append(s.turns, Turn{Role: RoleAssistant, Content: greeting, At: s.now()})
	s.chars += len(greeting)
}

// History returns a copy of every turn in order.
func (s *Store) History() []Turn {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.turns)
}

// Len returns the number of stored turns.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.turns)
}

// Last returns the most recent turn, or false when the store is empty.
func (s *Store) Last() (Turn, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.turns) == 0 {
		return Turn{}, false
	}
	return s.turns[len(s.turns)-1], true
}

// Messages renders the history as provider messages, verbatim and in order.
func (s *Store) Messages() []types.Message {
	s.mu.RLock()
	defer s.mu.RUnlock()
	msgs := make([]types.Message, len(s.turns))
	for i, t := range s.turns {
		msgs[i] = types.Message{Role: string(t.Role), Content: t.Content}
	}
	return msgs
}

// TokenEstimate returns a rough token count of the whole history.
func (s *Store) TokenEstimate() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return (s.chars + charsPerToken - 1) / charsPerToken
}

// Reset discards every turn.
func (s *Store) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.turns = nil
	s.chars = 0
}
