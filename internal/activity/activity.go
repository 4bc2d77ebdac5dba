// Package activity models Bot Framework style activities and the batches
// they are delivered in.
package activity

import (
	"encoding/json"
	"strconv"
	"time"

	"github.com/soyeahso/botrelay/internal/domain"
)

// Activity types.
const (
	TypeMessage = "message"
	TypeTyping  = "typing"
)

// Text formats.
const (
	FormatPlain    = "plain"
	FormatMarkdown = "markdown"
)

// InputHintAccepting tells the client it may send the next message.
const InputHintAccepting = "acceptingInput"

// TimeLayout is the timestamp format written on activities.
const TimeLayout = "2006-01-02T15:04:05.000Z07:00"

// Now returns the current time formatted for an activity.
func Now() string { return FormatTime(time.Now()) }

// FormatTime formats t in UTC using TimeLayout.
func FormatTime(t time.Time) string { return t.UTC().Format(TimeLayout) }

// ChannelAccount identifies a sender or recipient.
type ChannelAccount struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

// ConversationAccount identifies the conversation an activity belongs to.
type ConversationAccount struct {
	ID string `json:"id"`
}

// Activity is one conversational event on the wire.
type Activity struct {
	Type             string               `json:"type"`
	ID               string               `json:"id"`
	Timestamp        string               `json:"timestamp,omitempty"`
	LocalTimestamp   string               `json:"localTimestamp,omitempty"`
	LocalTimezone    string               `json:"localTimezone,omitempty"`
	ChannelID        string               `json:"channelId,omitempty"`
	From             *ChannelAccount      `json:"from,omitempty"`
	Recipient        *ChannelAccount      `json:"recipient,omitempty"`
	Conversation     *ConversationAccount `json:"conversation,omitempty"`
	TextFormat       string               `json:"textFormat,omitempty"`
	Text             string               `json:"text"`
	Speak            string               `json:"speak,omitempty"`
	InputHint        string               `json:"inputHint,omitempty"`
	ReplyToID        string               `json:"replyToId,omitempty"`
	Locale           string               `json:"locale,omitempty"`
	Entities         []Entity             `json:"entities"`
	ChannelData      map[string]any       `json:"channelData"`
	Attachments      []Attachment         `json:"attachments"`
	SuggestedActions *SuggestedActions    `json:"suggestedActions,omitempty"`
}

// New returns an empty activity of the given type with its collections
// allocated.
func New(kind string) *Activity {
	return &Activity{
		Type:        kind,
		Entities:    []Entity{},
		ChannelData: map[string]any{},
		Attachments: []Attachment{},
	}
}

// User is the identity a user-authored history message is attributed to.
type User struct {
	ID   string
	Name string
}

// FromMessage builds a message activity for a history entry at position
// index in the conversation.
func FromMessage(msg domain.ChatMessage, conversationID, botName, botID, botChannel string, user User, index int) *Activity {
	a := New(TypeMessage)
	a.ID = conversationID + "-" + strconv.Itoa(index)
	a.ReplyToID = conversationID + "-" + strconv.Itoa(index-1)
	a.ChannelID = botChannel
	a.Conversation = &ConversationAccount{ID: conversationID}
	a.Text = msg.Message
	a.InputHint = InputHintAccepting

	if msg.Timestamp.IsZero() {
		a.Timestamp = Now()
	} else {
		a.Timestamp = FormatTime(msg.Timestamp)
	}

	if msg.Role == domain.RoleUser {
		name := user.Name
		if name == "" {
			name = user.ID
		}
		a.From = &ChannelAccount{ID: user.ID, Name: name, Role: msg.Role}
	} else {
		a.From = &ChannelAccount{ID: botID, Name: botName, Role: msg.Role}
	}

	if msg.Role == domain.RoleAssistant || msg.Role == domain.RoleBot {
		a.TextFormat = FormatMarkdown
	} else {
		a.TextFormat = FormatPlain
	}
	return a
}

// NewTextMessage builds a standalone bot message, such as the welcome
// message. speak is set only when non-empty.
func NewTextMessage(conversationID, botName, botID, botChannel, text, speak string) *Activity {
	a := New(TypeMessage)
	a.ID = "1"
	a.Timestamp = Now()
	a.ChannelID = botChannel
	a.From = &ChannelAccount{ID: botID, Name: botName}
	a.Conversation = &ConversationAccount{ID: conversationID}
	a.TextFormat = FormatMarkdown
	a.Text = text
	a.Speak = speak
	a.InputHint = InputHintAccepting
	return a
}

// MarshalJSON fills serialisation defaults: localTimestamp falls back to
// timestamp and collections are never null.
func (a Activity) MarshalJSON() ([]byte, error) {
	type wire Activity
	w := wire(a)
	if w.LocalTimestamp == "" {
		w.LocalTimestamp = w.Timestamp
	}
	if w.Entities == nil {
		w.Entities = []Entity{}
	}
	if w.Attachments == nil {
		w.Attachments = []Attachment{}
	}
	if w.ChannelData == nil {
		w.ChannelData = map[string]any{}
	}
	return json.Marshal(w)
}

// ToMap converts the activity into plain JSON-compatible data.
func (a *Activity) ToMap() (map[string]any, error) {
	return toMap(a)
}

// FromMap decodes an activity from plain data. Missing collections default
// to empty.
func FromMap(m map[string]any) (*Activity, error) {
	var a Activity
	if err := fromMap(m, &a); err != nil {
		return nil, err
	}
	a.normalize()
	return &a, nil
}

func (a *Activity) normalize() {
	if a.Entities == nil {
		a.Entities = []Entity{}
	}
	if a.Attachments == nil {
		a.Attachments = []Attachment{}
	}
	if a.ChannelData == nil {
		a.ChannelData = map[string]any{}
	}
}

func toMap(v any) (map[string]any, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func fromMap(m map[string]any, v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, v)
}
