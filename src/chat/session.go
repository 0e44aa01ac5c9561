// Package chat runs signed streaming conversations with the Spark assistant.
package chat

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"screen-translate/src/logutil"
)

var (
	ErrBusy          = errors.New("chat turn already in progress")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrNotConfigured = errors.New("chat credentials are not configured")
)

type State int

const (
	Idle State = iota
	Connecting
	Streaming
	Closed
	Failed
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connecting:
		return "connecting"
	case Streaming:
		return "streaming"
	case Closed:
		return "closed"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Turn is one entry of the conversation. Seq is its arrival order.
type Turn struct {
	Seq     int    `json:"seq"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
}

type EventKind int

const (
	EventState EventKind = iota
	EventFragment
	EventError
)

// Event reports a state transition, an assistant fragment or a turn error.
type Event struct {
	Kind  EventKind
	State State
	Turn  Turn
	Err   string
	Code  int
}

type Config struct {
	AppID     string
	APIKey    string
	APISecret string
	Host      string
	Path      string
	MaxTokens int

	PingInterval time.Duration
	Dialer       Dialer
	Clock        func() time.Time
}

type Session struct {
	id     string
	cfg    Config
	events chan Event

	mu    sync.Mutex
	state State
	turns []Turn
	wg    sync.WaitGroup
}

func New(cfg Config) *Session {
	if cfg.Dialer == nil {
		cfg.Dialer = WebsocketDialer{}
	}
	if cfg.Clock == nil {
		cfg.Clock = time.Now
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = DefaultPingInterval
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = 2048
	}
	return &Session{
		id:     uuid.NewString(),
		cfg:    cfg,
		events: make(chan Event, 64),
	}
}

func (s *Session) ID() string { return s.id }

// Events delivers every event in emission order. Consumers must drain it
// while a turn is running; an undrained channel holds the turn open and
// later Sends report ErrBusy.
func (s *Session) Events() <-chan Event { return s.events }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Conversation returns a copy of all turns so far.
func (s *Session) Conversation() []Turn {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Turn, len(s.turns))
	copy(out, s.turns)
	return out
}

// Send starts a new turn on its own goroutine. It fails fast with ErrBusy
// unless the session is Idle.
func (s *Session) Send(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}
	if s.cfg.APIKey == "" || s.cfg.APISecret == "" {
		return ErrNotConfigured
	}

	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return ErrBusy
	}
	s.state = Connecting
	s.appendLocked(RoleUser, text)
	s.wg.Add(1)
	s.mu.Unlock()

	go s.run(text)
	return nil
}

// Wait blocks until the running turn, if any, has re-armed.
func (s *Session) Wait() { s.wg.Wait() }

func (s *Session) run(text string) {
	defer s.wg.Done()
	defer s.rearm()

	// Emitted here so a slow events reader stalls the turn, never the caller of Send.
	s.emit(Event{Kind: EventState, State: Connecting})

	signed := Sign(s.cfg.APISecret, s.cfg.APIKey, s.cfg.Host, s.cfg.Path, s.cfg.Clock())
	log.Printf("Chat[%s]: dialing %s (key %s)", s.id, signed.Host+signed.Path, logutil.RedactKey(s.cfg.APIKey))

	ctx, cancel := context.WithTimeout(context.Background(), DefaultHandshakeTimeout)
	conn, err := s.cfg.Dialer.Dial(ctx, signed.URL)
	cancel()
	if err != nil {
		s.fail(fmt.Sprintf("connect error: %v", err), 0)
		return
	}
	defer conn.Close()
	s.transition(Streaming)

	if err := conn.WriteJSON(s.buildRequest(text)); err != nil {
		s.fail(fmt.Sprintf("send error: %v", err), 0)
		return
	}

	stop := make(chan struct{})
	defer close(stop)
	go keepAlive(conn, s.cfg.PingInterval, stop)

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if isNormalClose(err) {
				s.transition(Closed)
				return
			}
			s.fail(fmt.Sprintf("read error: %v", err), 0)
			return
		}

		done, err := s.handleFrame(data)
		if err != nil {
			var codeErr *codeError
			if errors.As(err, &codeErr) {
				s.fail(codeErr.Error(), codeErr.code)
			} else {
				s.fail(fmt.Sprintf("parse error: %v", err), 0)
			}
			return
		}
		if done {
			s.transition(Closed)
			return
		}
	}
}

// handleFrame records the assistant fragments of one frame and reports
// whether it was the last frame of the reply.
func (s *Session) handleFrame(data []byte) (bool, error) {
	var f frame
	if err := json.Unmarshal(data, &f); err != nil {
		return false, err
	}

	code := -1
	if f.Header.Code != nil {
		code = *f.Header.Code
	}
	if code != 0 {
		msg := f.Header.Message
		if msg == "" {
			msg = "unknown error"
		}
		return false, &codeError{message: msg, code: code}
	}

	for _, t := range f.Payload.Choices.Text {
		if t.Role != string(RoleAssistant) || t.Content == "" {
			continue
		}
		s.mu.Lock()
		turn := s.appendLocked(RoleAssistant, t.Content)
		s.mu.Unlock()
		s.emit(Event{Kind: EventFragment, Turn: turn})
	}

	return f.Header.Status == lastFrameStatus, nil
}

func (s *Session) buildRequest(text string) request {
	var req request
	req.Header.AppID = s.cfg.AppID
	req.Parameter.Chat = chatParameter{Domain: "general", Temperature: 0.5, MaxTokens: s.cfg.MaxTokens}
	req.Payload.Message.Text = []textItem{{Role: string(RoleUser), Content: text}}
	return req
}

func (s *Session) appendLocked(role Role, content string) Turn {
	turn := Turn{Seq: len(s.turns) + 1, Role: role, Content: content}
	s.turns = append(s.turns, turn)
	return turn
}

func (s *Session) transition(to State) {
	s.mu.Lock()
	s.state = to
	s.mu.Unlock()
	s.emit(Event{Kind: EventState, State: to})
}

func (s *Session) fail(msg string, code int) {
	log.Printf("Chat[%s]: %s", s.id, msg)
	s.emit(Event{Kind: EventError, Err: msg, Code: code})
	s.transition(Failed)
}

// rearm runs once at the end of every turn, whatever path ended it.
func (s *Session) rearm() {
	if r := recover(); r != nil {
		log.Printf("Chat[%s]: turn panicked: %v", s.id, r)
		s.emit(Event{Kind: EventError, Err: fmt.Sprintf("internal error: %v", r)})
	}
	s.transition(Idle)
}

func (s *Session) emit(e Event) {
	s.events <- e
}

type codeError struct {
	message string
	code    int
}

func (e *codeError) Error() string {
	return fmt.Sprintf("%s (code: %d)", e.message, e.code)
}

const lastFrameStatus = 2

type textItem struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatParameter struct {
	Domain      string  `json:"domain"`
	Temperature float64 `json:"temperature"`
	MaxTokens   int     `json:"max_tokens"`
}

type request struct {
	Header struct {
		AppID string `json:"app_id"`
	} `json:"header"`
	Parameter struct {
		Chat chatParameter `json:"chat"`
	} `json:"parameter"`
	Payload struct {
		Message struct {
			Text []textItem `json:"text"`
		} `json:"message"`
	} `json:"payload"`
}

type frame struct {
	Header struct {
		Code    *int   `json:"code"`
		Message string `json:"message"`
		Status  int    `json:"status"`
		Sid     string `json:"sid"`
	} `json:"header"`
	Payload struct {
		Choices struct {
			Status int        `json:"status"`
			Text   []textItem `json:"text"`
		} `json:"choices"`
	} `json:"payload"`
}
