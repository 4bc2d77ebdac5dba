package facade

import (
	"context"
	"fmt"
	"maps"
	"strings"

	"github.com/soyeahso/botrelay/internal/activity"
	"github.com/soyeahso/botrelay/internal/agents"
	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/hooks"
)

// SuggestionsPrompt is what the suggestions agent is asked.
const SuggestionsPrompt = "Provide the suggestions list"

// negativeNote is appended to history when the user sounds unhappy.
const negativeNote = "The user's last message reads as negative (score %.2f). Acknowledge their frustration and steer the conversation toward something constructive."

// SendStartActivity replays the thread's history, one batch per message, or
// sends the welcome message to a new conversation.
func (f *Facade) SendStartActivity(ctx context.Context) {
	defer f.recoverOp("start")
	if !f.HasStream() {
		return
	}

	replayed := 0
	for _, msg := range f.rc.History() {
		if !msg.Replayable() {
			continue
		}
		a := f.historyActivity(msg, replayed)
		f.deliver(ctx, a)
		replayed++
	}

	if replayed == 0 {
		f.deliver(ctx, activity.NewTextMessage(f.rc.ThreadID, f.botName, f.botID, f.botChannel, f.welcomeMessage, f.welcomeSpeech))
	}
	f.log.Debug().Int("replayed", replayed).Msg("conversation started")
	f.emit(ctx, hooks.EventConversationStarted, map[string]any{"replayed": replayed})
}

// historyActivity builds the activity for the index-th replayed message.
// The first one has no predecessor to reply to.
func (f *Facade) historyActivity(msg domain.ChatMessage, index int) *activity.Activity {
	user := activity.User{ID: f.rc.UserID, Name: f.rc.UserName}
	a := activity.FromMessage(msg, f.rc.ThreadID, f.botName, f.botID, f.botChannel, user, index)
	if index == 0 {
		a.ReplyToID = ""
	}

	if len(msg.Metadata) > 0 {
		md := maps.Clone(msg.Metadata)
		if s, ok := md["speak"].(string); ok {
			a.Speak = s
		}
		delete(md, "speak")
		stripInternal(md)
		if len(md) > 0 {
			a.Entities = append(a.Entities, activity.MetadataEntity(md))
		}
	}
	if len(msg.Citations) > 0 {
		a.Entities = append(a.Entities, activity.CitationsEntity(msg.Citations))
	}
	if msg.Content != nil {
		a.Entities = append(a.Entities, activity.ContentEntity(msg.Content))
	}
	return a
}

// EchoUserActivity reflects the inbound user message back onto the stream
// as an acknowledgement.
func (f *Facade) EchoUserActivity(ctx context.Context) {
	defer f.recoverOp("echo")
	if !f.HasStream() {
		return
	}

	a := f.CreateDefaultActivity(activity.TypeMessage, "", f.rc.ReqString("localTimestamp", activity.Now()))
	a.From = account(f.rc.ReqVal("from", nil))
	a.Recipient = &activity.ChannelAccount{ID: f.botID, Name: f.botName}
	a.TextFormat = f.rc.ReqString("textFormat", activity.FormatPlain)
	a.Text = f.rc.ReqString("text", "")
	if a.Text == "" {
		a.Text = f.rc.ReqString("prompt", "")
	}
	a.Entities = entities(f.rc.ReqVal("entities", nil))
	if cd, ok := f.rc.ReqVal("channelData", nil).(map[string]any); ok {
		a.ChannelData = cd
	}

	f.deliver(ctx, a)
	f.emit(ctx, hooks.EventActivityEchoed, map[string]any{"activity_id": a.ID})
}

// SendSuggestions asks the suggestions agent for quick replies and pushes
// them when there are any. Failures are logged and swallowed.
func (f *Facade) SendSuggestions(ctx context.Context) {
	defer f.recoverOp("suggestions")
	if !f.HasStream() {
		return
	}

	res, ok := f.runAgent(ctx, f.rc.ConfigString("suggestions-agent", agents.NameSuggestions), SuggestionsPrompt)
	if !ok {
		return
	}
	suggestions := stringList(res.Metadata["suggestions"])
	if len(suggestions) == 0 {
		return
	}

	a := f.CreateDefaultActivity(activity.TypeMessage, "", "")
	a.Text = ""
	a.SuggestedActions = activity.ImBackActions(suggestions)
	f.deliver(ctx, a)
}

// SendSentiment classifies prompt. A negative reading leaves a system note
// in the thread's history for the next turn; it is never replayed to the
// client. Failures are logged and swallowed.
func (f *Facade) SendSentiment(ctx context.Context, prompt string) {
	defer f.recoverOp("sentiment")
	if strings.TrimSpace(prompt) == "" {
		return
	}

	res, ok := f.runAgent(ctx, f.rc.ConfigString("sentiment-agent", agents.NameSentiment), prompt)
	if !ok {
		return
	}
	label, _ := res.Metadata["sentiment"].(string)
	score, _ := res.Metadata["score"].(float64)
	f.log.Debug().Str("sentiment", label).Float64("score", score).Msg("sentiment classified")
	if label != agents.Negative {
		return
	}

	note := domain.NewChatMessage(domain.RoleSystem, fmt.Sprintf(negativeNote, score))
	note.AddMetadata("_sentiment", label)
	if err := f.rc.AddMessage(ctx, note); err != nil {
		f.log.Warn().Err(err).Msg("recording sentiment note")
	}
}

func (f *Facade) runAgent(ctx context.Context, name, prompt string) (*domain.AgentResult, bool) {
	if f.deps.Agents == nil {
		return nil, false
	}
	agent, err := f.deps.Agents.Get(name)
	if err != nil {
		f.log.Debug().Err(err).Str("agent", name).Msg("agent unavailable")
		return nil, false
	}
	res, err := agent.Process(ctx, prompt, f.rc)
	if err != nil {
		f.log.Warn().Err(err).Str("agent", name).Msg("agent failed, ignoring")
		return nil, false
	}
	if res == nil || res.Failed {
		if res != nil {
			f.log.Debug().Str("agent", name).Str("reason", res.Message).Msg("agent reported failure")
		}
		return nil, false
	}
	return res, true
}

// stripInternal removes "_"-prefixed keys.
func stripInternal(md map[string]any) {
	maps.DeleteFunc(md, func(k string, _ any) bool {
		return strings.HasPrefix(k, "_")
	})
}

func account(v any) *activity.ChannelAccount {
	m, ok := v.(map[string]any)
	if !ok {
		return nil
	}
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return &activity.ChannelAccount{ID: str("id"), Name: str("name"), Role: str("role")}
}

func entities(v any) []activity.Entity {
	list, _ := v.([]any)
	out := make([]activity.Entity, 0, len(list))
	for _, item := range list {
		if m, ok := item.(map[string]any); ok {
			out = append(out, activity.Entity(m))
		}
	}
	return out
}

func stringList(v any) []string {
	switch t := v.(type) {
	case []string:
		return t
	case []any:
		out := make([]string, 0, len(t))
		for _, s := range t {
			if str, ok := s.(string); ok && str != "" {
				out = append(out, str)
			}
		}
		return out
	}
	return nil
}
