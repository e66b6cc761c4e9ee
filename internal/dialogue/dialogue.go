// Package dialogue implements the registration conversation: a finite-state
// machine that collects a traveler profile one answer per turn.
package dialogue

import (
	"sync"

	"github.com/contrabot-io/contrabot/internal/userstore"
)

// Stage identifies which answer the conversation is waiting for.
type Stage int

const (
	StageStart Stage = iota
	StageFirstName
	StageLastName
	StagePhone
	StagePersonalEmail
	StageInstitutionalEmail
)

// Awaiting reports whether the stage expects a free-text answer.
func (s Stage) Awaiting() bool { return s != StageStart }

// State is one conversation's progress. Each stage holds exactly the fields
// collected by the stages before it.
type State struct {
	Stage         Stage
	FirstName     string
	LastName      string
	Phone         string
	PersonalEmail string
}

// Begin moves a conversation from Start into the first question.
func Begin() (State, string) {
	return State{Stage: StageFirstName}, "Let's start! What's your first name?"
}

// Advance feeds one free-text answer into the conversation. It returns the
// next state, the reply to send, and, when the final answer arrives, the
// completed profile (with the state reset to Start).
func Advance(s State, text string) (State, string, *userstore.Profile) {
	switch s.Stage {
	case StageFirstName:
		return State{Stage: StageLastName, FirstName: text},
			"What's your last name?", nil

	case StageLastName:
		s.Stage = StagePhone
		s.LastName = text
		return s, "What's your phone number?", nil

	case StagePhone:
		s.Stage = StagePersonalEmail
		s.Phone = text
		return s, "What's your personal email?", nil

	case StagePersonalEmail:
		s.Stage = StageInstitutionalEmail
		s.PersonalEmail = text
		return s, "What's your institutional email?", nil

	case StageInstitutionalEmail:
		profile := &userstore.Profile{
			PersonalEmail: s.PersonalEmail,
			FirstName:     s.FirstName,
			LastName:      s.LastName,
			Email:         text,
			Phone:         s.Phone,
		}
		return State{}, "", profile

	default: // StageStart: free text is not part of a dialogue
		return s, "", nil
	}
}

// Store maps chat identities to conversation states. Absent means Start.
// It is passed explicitly into the dispatcher; there is no package-level
// instance.
type Store struct {
	mu     sync.Mutex
	states map[string]State
}

// NewStore creates an empty conversation store.
func NewStore() *Store {
	return &Store{states: make(map[string]State)}
}

// Get returns the conversation state for an identity.
func (st *Store) Get(identity string) State {
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.states[identity]
}

// Set records the conversation state for an identity.
func (st *Store) Set(identity string, s State) {
	st.mu.Lock()
	defer st.mu.Unlock()
	if s.Stage == StageStart {
		delete(st.states, identity)
		return
	}
	st.states[identity] = s
}

// Reset returns an identity's conversation to Start, discarding any
// accumulated fields.
func (st *Store) Reset(identity string) {
	st.mu.Lock()
	defer st.mu.Unlock()
	delete(st.states, identity)
}
