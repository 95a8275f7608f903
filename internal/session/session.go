package session

import (
	"strings"
	"sync"
)

// Session holds the per-call state shared between the Twilio relay loop, the
// agent relay loop and tool handlers. All access goes through the mutex; the
// one-shot flags use compare-and-set methods so concurrent callers can race
// safely for the single transition.
type Session struct {
	mu sync.Mutex

	CallSid      string
	streamSid    string
	callerNumber string
	firstMessage string

	transcript  strings.Builder
	callerName  string
	callerEmail string
	route       *int

	telephonyActive bool
	agentActive     bool
	hangingUp       bool
	transcriptSent  bool
	realtimeSent    bool
	greetingSent    bool
}

// New creates a session for a call that has just been announced.
func New(callSid, callerNumber, firstMessage string) *Session {
	return &Session{
		CallSid:         callSid,
		callerNumber:    callerNumber,
		firstMessage:    firstMessage,
		telephonyActive: true,
	}
}

func (s *Session) SetStreamSid(sid string) {
	s.mu.Lock()
	s.streamSid = sid
	s.mu.Unlock()
}

func (s *Session) StreamSid() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.streamSid
}

func (s *Session) SetCallerNumber(number string) {
	s.mu.Lock()
	s.callerNumber = number
	s.mu.Unlock()
}

func (s *Session) CallerNumber() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callerNumber
}

func (s *Session) SetFirstMessage(msg string) {
	s.mu.Lock()
	s.firstMessage = msg
	s.mu.Unlock()
}

func (s *Session) FirstMessage() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.firstMessage
}

// AppendTranscript records one transcript line as "Role: text\n". The
// transcript only ever grows for the life of the session.
func (s *Session) AppendTranscript(role, text string) {
	s.mu.Lock()
	s.transcript.WriteString(role)
	s.transcript.WriteString(": ")
	s.transcript.WriteString(text)
	s.transcript.WriteString("\n")
	s.mu.Unlock()
}

func (s *Session) Transcript() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcript.String()
}

// ResetTranscript clears the transcript. Only the stream start handler calls
// this, before any relay traffic flows.
func (s *Session) ResetTranscript() {
	s.mu.Lock()
	s.transcript.Reset()
	s.mu.Unlock()
}

// SetCallerName stores an opportunistically extracted caller name. Returns
// false when the same value is already recorded.
func (s *Session) SetCallerName(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if name == "" || s.callerName == name {
		return false
	}
	s.callerName = name
	return true
}

func (s *Session) CallerName() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callerName
}

// SetCallerEmail stores an opportunistically extracted email address. Returns
// false when the same value is already recorded.
func (s *Session) SetCallerEmail(email string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if email == "" || s.callerEmail == email {
		return false
	}
	s.callerEmail = email
	return true
}

func (s *Session) CallerEmail() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callerEmail
}

// SetRoute overrides the webhook route for transcript delivery.
func (s *Session) SetRoute(route int) {
	s.mu.Lock()
	s.route = &route
	s.mu.Unlock()
}

// Route returns the route override and whether one is set.
func (s *Session) Route() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.route == nil {
		return 0, false
	}
	return *s.route, true
}

func (s *Session) SetTelephonyActive(active bool) {
	s.mu.Lock()
	s.telephonyActive = active
	s.mu.Unlock()
}

func (s *Session) TelephonyActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.telephonyActive
}

func (s *Session) SetAgentActive(active bool) {
	s.mu.Lock()
	s.agentActive = active
	s.mu.Unlock()
}

func (s *Session) AgentActive() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.agentActive
}

// RequestHangup asks the agent relay loop to stop at the next frame boundary.
func (s *Session) RequestHangup() {
	s.mu.Lock()
	s.hangingUp = true
	s.mu.Unlock()
}

func (s *Session) HangingUp() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hangingUp
}

// MarkTranscriptSent claims the single transcript delivery. It returns true
// for exactly one caller over the session's lifetime; everyone else must not
// deliver.
func (s *Session) MarkTranscriptSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.transcriptSent {
		return false
	}
	s.transcriptSent = true
	return true
}

func (s *Session) TranscriptSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transcriptSent
}

// MarkRealtimeSent claims the single out-of-band booking-intent delivery.
func (s *Session) MarkRealtimeSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.realtimeSent {
		return false
	}
	s.realtimeSent = true
	return true
}

// MarkGreetingSent claims the one returning-caller lookup triggered by the
// agent's ready state.
func (s *Session) MarkGreetingSent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.greetingSent {
		return false
	}
	s.greetingSent = true
	return true
}
