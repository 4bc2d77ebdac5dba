// Package facade turns chat messages and orchestrator responses into
// activities and delivers them to a conversation's stream.
//
// A Facade is built per request or pipeline step. Every public operation
// recovers from failures on its own: errors become error activities and a
// false result, never a returned error or a panic.
package facade

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/soyeahso/botrelay/internal/activity"
	"github.com/soyeahso/botrelay/internal/agents"
	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/hooks"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/orchestrator"
	"github.com/soyeahso/botrelay/internal/reqctx"
	"github.com/soyeahso/botrelay/internal/stream"
)

// Bot identity defaults.
const (
	DefaultBotName    = "The Chat Playground"
	DefaultBotID      = "chat-bot"
	DefaultBotChannel = "chat-bot"
)

// DefaultWelcomeMessage and DefaultWelcomeSpeech are sent to a new
// conversation. {bot_name} is replaced with the bot's display name.
const (
	DefaultWelcomeMessage = "Hello!\n\nI'm {bot_name}, and I'm here to help you manage the operations on your route.\n\nWhen you're ready, let's start chatting.\n"
	DefaultWelcomeSpeech  = "Hello! I'm {bot_name}, and I'm here to help you. Let's start chatting!"
)

// Fixed replies.
const (
	FilteredText = "I'm sorry, but I can't respond to that message. Maybe try asking your question again?"
	ErrorText    = "I'm sorry, but I had a bit of a problem processing your request. Maybe try asking your question again?"
)

const (
	localTimezone  = "Australia/Sydney"
	locale         = "en-AU"
	defaultTimeout = 90
)

// WriterSource hands out the writer for a stream id.
type WriterSource interface {
	Writer(streamID string) stream.Writer
}

// OrchestratorLoader builds the orchestrator described by a chat config.
type OrchestratorLoader interface {
	Load(cfg chatconfig.ChatConfig) (orchestrator.Orchestrator, error)
}

// AgentSource returns post-processing agents by name.
type AgentSource interface {
	Get(name string) (agents.Agent, error)
}

// Deps are the shared services a Facade uses. Any of them may be nil; the
// operations that need a missing one report failure.
type Deps struct {
	Streams       WriterSource
	Orchestrators OrchestratorLoader
	Configs       *chatconfig.Cache
	Agents        AgentSource
	Hooks         hooks.Emitter
	Log           *logging.Logger
}

// Facade is the conversation facade for one request.
type Facade struct {
	rc     *reqctx.Context
	deps   Deps
	writer stream.Writer
	log    *logging.Logger

	botName        string
	botID          string
	botChannel     string
	welcomeMessage string
	welcomeSpeech  string
	typingInterval time.Duration
}

// New builds a facade around rc. The stream id defaults to the thread id.
func New(ctx context.Context, rc *reqctx.Context, deps Deps) *Facade {
	log := deps.Log
	if log == nil {
		log = rc.Logger()
	}
	if log == nil {
		log = logging.Nop()
	}
	f := &Facade{rc: rc, deps: deps, log: log.Sub("facade").Thread(rc.ThreadID)}

	if err := rc.InitHistory(ctx); err != nil {
		f.log.Warn().Err(err).Msg("history unavailable")
	}

	if rc.StreamID == "" {
		rc.StreamID = rc.ThreadID
	}
	if deps.Streams != nil {
		f.writer = deps.Streams.Writer(rc.StreamID)
	} else {
		f.writer = stream.NopWriter{}
	}

	f.botName = rc.ConfigString("bot-name", DefaultBotName)
	f.botID = rc.ConfigString("bot-id", DefaultBotID)
	f.botChannel = rc.ConfigString("bot-channel", DefaultBotChannel)
	f.welcomeMessage = strings.ReplaceAll(rc.ConfigString("welcome-message", DefaultWelcomeMessage), "{bot_name}", f.botName)
	f.welcomeSpeech = strings.ReplaceAll(rc.ConfigString("welcome-speech", DefaultWelcomeSpeech), "{bot_name}", f.botName)
	f.typingInterval = time.Duration(rc.ConfigInt("typing-interval", envInt("DEFAULT_BOT_TYPING_INTERVAL", 3))) * time.Second

	f.log.Debug().Str("config", rc.ConfigName).Str("stream", rc.StreamID).Msg("facade ready")
	return f
}

// Context returns the request session the facade works on.
func (f *Facade) Context() *reqctx.Context { return f.rc }

// HasStream reports whether activities can be delivered.
func (f *Facade) HasStream() bool { return f.writer.HasActiveChannel() }

// push delivers a batch. Failures are logged and not retried.
func (f *Facade) push(ctx context.Context, b *activity.Batch) error {
	payload, err := b.ToMap()
	if err != nil {
		f.log.Error().Err(err).Msg("encoding activity batch")
		return err
	}
	if err := f.writer.Push(ctx, payload); err != nil {
		f.log.Warn().Err(err).Str("stream", f.writer.StreamID()).Msg("activity push failed")
		return err
	}
	return nil
}

func (f *Facade) deliver(ctx context.Context, a *activity.Activity) {
	_ = f.push(ctx, activity.NewBatch(a))
}

func (f *Facade) emit(ctx context.Context, event string, data map[string]any) {
	if f.deps.Hooks == nil {
		return
	}
	if data == nil {
		data = map[string]any{}
	}
	data["thread_id"] = f.rc.ThreadID
	data["stream_id"] = f.rc.StreamID
	f.deps.Hooks.Emit(ctx, event, data)
}

// recoverOp logs a panic in a best-effort operation.
func (f *Facade) recoverOp(op string) {
	if r := recover(); r != nil {
		f.log.Error().Str("op", op).Str("panic", fmt.Sprint(r)).Msg("recovered from panic")
	}
}

// CreateDefaultActivity builds an activity with the bot's identity and the
// standard defaults. An empty id gets "<thread>-<uuid hex>" and an empty
// timestamp gets the current time.
func (f *Facade) CreateDefaultActivity(kind, id, timestamp string) *activity.Activity {
	if id == "" {
		id = f.newMessageID()
	}
	if timestamp == "" {
		timestamp = activity.Now()
	}
	a := activity.New(kind)
	a.ID = id
	a.Timestamp = timestamp
	a.LocalTimestamp = timestamp
	a.LocalTimezone = localTimezone
	a.Locale = locale
	a.ChannelID = f.botChannel
	a.From = &activity.ChannelAccount{ID: f.botID, Name: f.botName, Role: "bot"}
	a.Conversation = &activity.ConversationAccount{ID: f.rc.ThreadID}
	if kind == activity.TypeMessage {
		a.TextFormat = activity.FormatMarkdown
	}
	return a
}

func (f *Facade) newMessageID() string {
	return f.rc.ThreadID + "-" + strings.ReplaceAll(uuid.NewString(), "-", "")
}

// SendTypingActivity pushes one typing activity tagged with forMsg.
func (f *Facade) SendTypingActivity(ctx context.Context, forMsg string) {
	defer f.recoverOp("send-typing")
	_ = f.emitTyping(ctx, forMsg)
}

func (f *Facade) emitTyping(ctx context.Context, forMsg string) error {
	if !f.HasStream() {
		return nil
	}
	return f.push(ctx, activity.NewBatch(f.CreateDefaultActivity(activity.TypeTyping, forMsg, "")))
}

// SendErrorActivity pushes message, or the standard apology when empty.
func (f *Facade) SendErrorActivity(ctx context.Context, message string) {
	defer f.recoverOp("send-error")
	f.sendText(ctx, message)
}

// SendMessageActivity pushes a plain bot message. An empty message sends
// the standard apology.
func (f *Facade) SendMessageActivity(ctx context.Context, message string) {
	defer f.recoverOp("send-message")
	f.sendText(ctx, message)
}

func (f *Facade) sendText(ctx context.Context, message string) {
	if !f.HasStream() {
		return
	}
	if message == "" {
		message = ErrorText
	}
	a := f.CreateDefaultActivity(activity.TypeMessage, "", "")
	a.Text = message
	f.deliver(ctx, a)
}

func envInt(key string, def int) int {
	if n, err := strconv.Atoi(strings.TrimSpace(os.Getenv(key))); err == nil && n > 0 {
		return n
	}
	return def
}

// DefaultOrchestrator is DEFAULT_BOT_ORCHESTRATOR, or "default".
func DefaultOrchestrator() string {
	if v := strings.TrimSpace(os.Getenv("DEFAULT_BOT_ORCHESTRATOR")); v != "" {
		return v
	}
	return orchestrator.DefaultType
}
