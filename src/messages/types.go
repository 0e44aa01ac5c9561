package messages

import "time"

// Message is the base interface for everything reported on the event channel.
type Message interface {
	Type() string
}

// MessageType constants for type identification
const (
	TypeStatus              = "Status"
	TypeRegionsChanged      = "RegionsChanged"
	TypeScanItem            = "ScanItem"
	TypeScanComplete        = "ScanComplete"
	TypeTranslationComplete = "TranslationComplete"
	TypeProviderChanged     = "ProviderChanged"
	TypeProbeComplete       = "ProbeComplete"
	TypeChatState           = "ChatState"
	TypeChatFragment        = "ChatFragment"
	TypeChatError           = "ChatError"
)

// Status - free-form progress text for the status line
type Status struct {
	Text string `json:"text"`
}

func (m Status) Type() string { return TypeStatus }

// RegionsChanged - sent after the main region is replaced or an extra region added
type RegionsChanged struct {
	Count int  `json:"count"`
	Added bool `json:"added"`
}

func (m RegionsChanged) Type() string { return TypeRegionsChanged }

// ScanItem - one region finished within a scan, in region order
type ScanItem struct {
	TaskID string `json:"task_id"`
	Index  int    `json:"index"`
	Label  string `json:"label"`
	Text   string `json:"text"`
}

func (m ScanItem) Type() string { return TypeScanItem }

// ScanComplete - the whole scan finished
type ScanComplete struct {
	TaskID string     `json:"task_id"`
	Items  []ScanItem `json:"items"`
	Text   string     `json:"text"` // formatted copy-all payload
}

func (m ScanComplete) Type() string { return TypeScanComplete }

// TranslationComplete - a manual translation finished
type TranslationComplete struct {
	TaskID    string `json:"task_id"`
	Direction string `json:"direction"`
	Source    string `json:"source"`
	Text      string `json:"text"`
	Fallback  bool   `json:"fallback"`
}

func (m TranslationComplete) Type() string { return TypeTranslationComplete }

// ProviderChanged - the translation backend was switched
type ProviderChanged struct {
	Provider string `json:"provider"`
}

func (m ProviderChanged) Type() string { return TypeProviderChanged }

// ProbeComplete - result of the provider self-test
type ProbeComplete struct {
	TaskID   string `json:"task_id"`
	Provider string `json:"provider"`
	OK       bool   `json:"ok"`
}

func (m ProbeComplete) Type() string { return TypeProbeComplete }

// ChatState - the chat session moved to a new state
type ChatState struct {
	State string `json:"state"`
}

func (m ChatState) Type() string { return TypeChatState }

// ChatFragment - one piece of the assistant reply, in arrival order
type ChatFragment struct {
	Seq     int    `json:"seq"`
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m ChatFragment) Type() string { return TypeChatFragment }

// ChatError - protocol or transport failure for the current turn
type ChatError struct {
	Message string `json:"message"`
	Code    int    `json:"code,omitempty"`
}

func (m ChatError) Type() string { return TypeChatError }

// Envelope wraps a message with metadata for the event stream.
type Envelope struct {
	Seq     uint64    `json:"seq"`
	Type    string    `json:"type"`
	Time    time.Time `json:"time"`
	Message Message   `json:"data"`
}

// Wrap builds an Envelope for m.
func Wrap(seq uint64, m Message) Envelope {
	return Envelope{Seq: seq, Type: m.Type(), Time: time.Now().UTC(), Message: m}
}
