package facade

import (
	"context"
	"encoding/json"
	"fmt"
	"maps"
	"strconv"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/soyeahso/botrelay/internal/activity"
	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/hooks"
	"github.com/soyeahso/botrelay/internal/llm"
	"github.com/soyeahso/botrelay/internal/orchestrator"
	"github.com/soyeahso/botrelay/internal/typing"
)

// ErrNoOrchestrators is reported when the facade has no orchestrator loader.
var ErrNoOrchestrators = errors.New("no orchestrator registry configured")

// ProcessUserActivity sends prompt to the resolved orchestrator while a
// typing loop runs, then delivers the packaged reply. It reports whether a
// reply was delivered; filtered, failed and errored outcomes push an
// apology instead and report false.
func (f *Facade) ProcessUserActivity(ctx context.Context, prompt string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			f.log.Error().Str("panic", fmt.Sprint(r)).Msg("processing user activity")
			f.SendErrorActivity(ctx, "")
			ok = false
		}
	}()

	useFunctions := chatconfig.ParseBool(f.rc.ReqString("use-functions", "true"))
	timeout := f.timeout()

	channelData, _ := f.rc.ReqVal("channelData", nil).(map[string]any)
	override := f.applyBodyParams(channelData)
	f.rc.SetMetadata("selected-route", f.rc.ReqVal("selected-route", "<None>"))

	orch, err := f.resolveOrchestrator(ctx, override, channelData)
	if err != nil {
		f.log.Error().Err(err).Msg("resolving orchestrator")
		f.SendErrorActivity(ctx, "")
		return false
	}

	msgID := f.newMessageID()
	stopTyping := func() {}
	if f.rc.ConfigBool("maintain-typing", true) {
		loop := typing.Start(ctx, msgID, f.typingInterval, f.emitTyping, f.log)
		stopTyping = loop.Stop
	}
	defer stopTyping()

	f.SendTypingActivity(ctx, "")
	if err := f.rc.InitHistory(ctx); err != nil {
		f.log.Warn().Err(err).Msg("history unavailable")
	}
	f.rc.CurrentMsgID = msgID

	start := time.Now()
	resp, err := orch.SendMessage(ctx, prompt, f.rc, orchestrator.SendOptions{
		UseFunctions:    useFunctions,
		Timeout:         timeout,
		WorkingNotifier: func() { f.SendTypingActivity(ctx, "") },
	})
	stopTyping()

	log := f.log.Info().Str("orchestrator", orch.Name()).Str("msgId", msgID).Dur("duration", time.Since(start))
	switch {
	case err != nil:
		f.log.Error().Err(err).Str("orchestrator", orch.Name()).Msg("response generation failed")
		f.SendErrorActivity(ctx, "")
		return false
	case resp != nil && resp.Filtered:
		log.Msg("response filtered")
		a := f.CreateDefaultActivity(activity.TypeMessage, msgID, "")
		a.Text = FilteredText
		f.deliver(ctx, a)
		return false
	case resp == nil || resp.Failed:
		log.Msg("response failed")
		f.SendErrorActivity(ctx, "")
		return false
	}

	a, err := f.responseActivity(msgID, resp)
	if err != nil {
		f.log.Error().Err(err).Msg("packaging response")
		f.SendErrorActivity(ctx, "")
		return false
	}
	f.deliver(ctx, a)
	log.Msg("response delivered")
	f.emit(ctx, hooks.EventPromptProcessed, map[string]any{"msg_id": msgID, "orchestrator": orch.Name()})
	return true
}

// timeout reads "timeout", then "timeout-secs", in seconds.
func (f *Facade) timeout() time.Duration {
	raw := f.rc.ReqString("timeout", f.rc.ReqString("timeout-secs", ""))
	secs, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || secs <= 0 {
		secs = defaultTimeout
	}
	return time.Duration(secs) * time.Second
}

// applyBodyParams copies channelData.bodyParams into the session metadata
// and returns its "orchestrator" value, which is an override rather than
// metadata.
func (f *Facade) applyBodyParams(channelData map[string]any) string {
	var params map[string]any
	switch t := channelData["bodyParams"].(type) {
	case map[string]any:
		params = t
	case string:
		if err := json.Unmarshal([]byte(t), &params); err != nil {
			f.log.Warn().Err(err).Msg("ignoring malformed bodyParams")
			return ""
		}
	}

	var override string
	for k, v := range params {
		if k == "orchestrator" {
			override, _ = v.(string)
			continue
		}
		f.rc.SetMetadata(k, v)
	}
	return override
}

// resolveOrchestrator picks the orchestrator name from the override, the
// channel data, the request, the chat config and finally the default
// orchestrator. A name without a chat config of its own runs on a copy of
// the request's config.
func (f *Facade) resolveOrchestrator(ctx context.Context, override string, channelData map[string]any) (orchestrator.Orchestrator, error) {
	if f.deps.Orchestrators == nil {
		return nil, ErrNoOrchestrators
	}

	name := override
	if name == "" {
		name, _ = channelData["orchestrator"].(string)
	}
	if name == "" {
		name = f.rc.ReqString("orchestrator", f.rc.ConfigString("orchestrator", ""))
	}
	if name == "" {
		name = f.rc.ConfigString("default-orchestrator", DefaultOrchestrator())
	}

	var cfg chatconfig.ChatConfig
	if f.deps.Configs != nil {
		loaded, err := f.deps.Configs.Get(ctx, name)
		switch {
		case err == nil:
			cfg = loaded
		case !errors.Is(err, chatconfig.ErrNotFound):
			return nil, errors.Wrapf(err, "loading orchestrator config %s", name)
		}
	}
	if cfg == nil {
		cfg = f.rc.Config.Clone()
		typ := f.rc.ReqString("orchestrator-type", f.rc.ConfigString("orchestrator-type", ""))
		if typ == "" {
			typ = DefaultOrchestrator()
		}
		cfg["type"] = typ
		cfg["name"] = name
	}

	orch, err := f.deps.Orchestrators.Load(cfg)
	if err != nil {
		return nil, errors.Wrapf(err, "loading orchestrator %s", name)
	}
	f.log.Debug().Str("orchestrator", name).Msg("orchestrator resolved")
	return orch, nil
}

var adaptiveCardTypes = map[string]bool{
	"adaptivecard":                true,
	"adaptive-card":               true,
	"card":                        true,
	"vnd.microsoft.card.adaptive": true,
}

// NormalizeResponseType lower-cases t and drops any MIME prefix up to the
// first "/".
func NormalizeResponseType(t string) string {
	t = strings.ToLower(strings.TrimSpace(t))
	if i := strings.Index(t, "/"); i >= 0 {
		t = t[i+1:]
	}
	return t
}

// IsStructured reports whether a normalised response type is delivered as
// an attachment.
func IsStructured(t string) bool {
	switch t {
	case "json", "yaml", "html", "xml":
		return true
	}
	return adaptiveCardTypes[t]
}

// Attachment packages body for the normalised structured type t. JSON
// bodies are decoded, with one repair attempt.
func Attachment(t, body string) (activity.Attachment, error) {
	switch {
	case adaptiveCardTypes[t]:
		return jsonAttachment("application/vnd.microsoft.card.adaptive", body)
	case t == "json":
		return jsonAttachment("application/json", body)
	case t == "xml":
		return activity.Attachment{ContentType: "application/xml", Content: body}, nil
	case t == "yaml":
		return activity.Attachment{ContentType: "application/x-yaml", Content: body}, nil
	case t == "html":
		return activity.Attachment{ContentType: "text/html", Content: body}, nil
	}
	return activity.Attachment{ContentType: "application/" + t, Content: body}, nil
}

func jsonAttachment(contentType, body string) (activity.Attachment, error) {
	var content any
	if err := llm.DecodeJSON(body, &content); err != nil {
		return activity.Attachment{}, errors.Wrapf(err, "decoding %s body", contentType)
	}
	return activity.Attachment{ContentType: contentType, Content: content}, nil
}

// responseActivity packages a successful response. The response type comes
// from the response metadata, where it is consumed, or else from the
// request or config default, where it is recorded on the metadata.
func (f *Facade) responseActivity(msgID string, resp *domain.ChatResponse) (*activity.Activity, error) {
	a := f.CreateDefaultActivity(activity.TypeMessage, msgID, "")

	md := maps.Clone(resp.Metadata)
	if md == nil {
		md = map[string]any{}
	}
	respType, _ := md["response-type"].(string)
	fromResponse := respType != ""
	if !fromResponse {
		respType = f.rc.ReqString("response-type", f.rc.ConfigString("default-response-type", ""))
		if respType != "" {
			md["response-type"] = respType
		}
	}
	hasMetadata := len(md) > 0
	if fromResponse {
		delete(md, "response-type")
	}
	if respType == "" {
		respType = "text"
	}

	if t := NormalizeResponseType(respType); IsStructured(t) {
		att, err := Attachment(t, llm.CodeBlockOrText(resp.Message))
		if err != nil {
			return nil, err
		}
		a.Attachments = []activity.Attachment{att}
	} else {
		a.Text = resp.Message
	}

	a.Entities = []activity.Entity{}
	if hasMetadata {
		for _, key := range []string{"speak", "speech"} {
			if s, ok := md[key].(string); ok && s != "" && a.Speak == "" {
				a.Speak = s
			}
		}
		delete(md, "speak")
		delete(md, "speech")
		stripInternal(md)
		a.Entities = append(a.Entities, activity.MetadataEntity(md))
	}
	if len(resp.Citations) > 0 {
		a.Entities = append(a.Entities, activity.CitationsEntity(resp.Citations))
	}
	return a, nil
}
