// Package reqctx holds the per-request conversation session: which thread
// and stream a request belongs to, who sent it, which chat config applies,
// and the thread's history.
package reqctx

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/domain"
	"github.com/soyeahso/botrelay/internal/history"
	"github.com/soyeahso/botrelay/internal/logging"
	"github.com/soyeahso/botrelay/internal/resolve"
)

// NotSet is the user id/name used when the request carries none.
const NotSet = "not-set"

// maxBody caps how much of a request body is parsed.
const maxBody = 1 << 20

// Deps are the shared services a Context draws on.
type Deps struct {
	Configs *chatconfig.Cache
	History history.Provider
	Log     *logging.Logger
}

// Context is the conversation session for one request or pipeline step.
// It is not safe for concurrent use.
type Context struct {
	Method string
	URL    string
	Body   map[string]any
	Query  url.Values
	Route  url.Values
	Header http.Header

	ThreadID          string
	StreamID          string
	BotConversationID string
	ConfigName        string
	Config            chatconfig.ChatConfig
	UserID            string
	UserName          string
	Metadata          map[string]any
	CurrentMsgID      string

	history  history.Provider
	messages []domain.ChatMessage
	loaded   bool
	log      *logging.Logger
}

// FromRequest builds a Context from an inbound HTTP request. A body that is
// not a JSON object is ignored.
func FromRequest(ctx context.Context, r *http.Request, route map[string]string, deps Deps) (*Context, error) {
	c := &Context{
		Method: r.Method,
		URL:    r.URL.String(),
		Query:  r.URL.Query(),
		Route:  url.Values{},
		Header: r.Header.Clone(),
	}
	for k, v := range route {
		c.Route.Set(k, v)
	}

	if (r.Method == http.MethodPost || r.Method == http.MethodPut) && r.Body != nil {
		data, err := io.ReadAll(io.LimitReader(r.Body, maxBody))
		if err == nil && len(data) > 0 {
			var body map[string]any
			if json.Unmarshal(data, &body) == nil {
				c.Body = body
			}
		}
	}

	c.UserID = headerOr(c.Header, "sub-id", NotSet)
	c.UserName = headerOr(c.Header, "sub-name", NotSet)

	if err := c.init(ctx, deps); err != nil {
		return nil, err
	}
	c.loadThreadID()
	return c, nil
}

// FromSnapshot rebuilds a Context on any worker from a persisted snapshot.
// Identifiers captured in the snapshot win over re-resolution.
func FromSnapshot(ctx context.Context, snap Snapshot, deps Deps) (*Context, error) {
	c := &Context{
		Method: snap.Method,
		URL:    snap.URL,
		Body:   snap.Body,
		Query:  url.Values(snap.Params),
		Route:  url.Values{},
		Header: http.Header(snap.Headers).Clone(),
	}
	if c.Query == nil {
		c.Query = url.Values{}
	}
	if c.Header == nil {
		c.Header = http.Header{}
	}
	for k, v := range snap.RouteParams {
		c.Route.Set(k, v)
	}
	c.UserID = orDefault(snap.UserID, NotSet)
	c.UserName = orDefault(snap.UserName, NotSet)

	if snap.ConfigName != "" {
		c.Header.Set("x-config", snap.ConfigName)
	}
	if err := c.init(ctx, deps); err != nil {
		return nil, err
	}

	c.ThreadID = snap.ThreadID
	if c.ThreadID == "" {
		c.loadThreadID()
	}
	if snap.StreamID != "" {
		c.StreamID = snap.StreamID
	}
	if snap.BotConversationID != "" {
		c.BotConversationID = snap.BotConversationID
	}
	for k, v := range snap.Metadata {
		c.SetMetadata(k, v)
	}
	return c, nil
}

func (c *Context) init(ctx context.Context, deps Deps) error {
	c.history = deps.History
	if deps.Log != nil {
		c.log = deps.Log.Sub("reqctx")
	} else {
		c.log = logging.New(io.Discard, "silent")
	}

	c.ConfigName = c.resolveConfigName()
	if deps.Configs != nil {
		cfg, err := deps.Configs.Get(ctx, c.ConfigName)
		switch {
		case errors.Is(err, chatconfig.ErrNotFound):
			c.log.Warn().Str("config", c.ConfigName).Msg("chat config not found, using empty config")
			c.Config = chatconfig.ChatConfig{"name": c.ConfigName}
		case err != nil:
			return fmt.Errorf("loading chat config %s: %w", c.ConfigName, err)
		default:
			c.Config = cfg
		}
	}

	ids := resolve.Chain{resolve.Headers{Data: c.Header}, c.bodySource(), resolve.Values{Label: "query", Data: c.Query}}
	c.StreamID = ids.String("stream-id", "")
	c.BotConversationID = ids.String("bot-conversation-id", "")

	for _, key := range c.Config.Strings("metadata-params") {
		if v := c.ReqVal(key, nil); v != nil {
			c.SetMetadata(key, v)
		}
	}
	return nil
}

func (c *Context) bodySource() resolve.Source {
	return resolve.Map{Label: "body", Data: c.Body}
}

// requestChain is body, query, route params, then headers.
func (c *Context) requestChain() resolve.Chain {
	return resolve.Chain{
		c.bodySource(),
		resolve.Values{Label: "query", Data: c.Query},
		resolve.Values{Label: "route", Data: c.Route},
		resolve.Headers{Data: c.Header},
	}
}

func (c *Context) resolveConfigName() string {
	headers := resolve.Headers{Data: c.Header}
	candidates := []struct {
		src resolve.Source
		key string
	}{
		{headers, "config"},
		{headers, "x-config"},
		{resolve.Values{Label: "query", Data: c.Query}, "config"},
		{c.bodySource(), "config"},
	}
	for _, cand := range candidates {
		v, ok := cand.src.Lookup(cand.key)
		if !ok {
			continue
		}
		if s, ok := v.(string); ok && len(strings.TrimSpace(s)) > 2 {
			return strings.TrimSpace(s)
		}
	}
	return chatconfig.DefaultName
}

// ReqVal looks key up in the body, query, route params and headers, in
// that order.
func (c *Context) ReqVal(key string, def any) any {
	return c.requestChain().Get(key, def)
}

// ReqString is ReqVal formatted as a string. Objects and lists count as absent.
func (c *Context) ReqString(key, def string) string {
	v := c.ReqVal(key, nil)
	switch t := v.(type) {
	case nil:
		return def
	case string:
		return t
	case bool, float64, int, int64, json.Number:
		return fmt.Sprint(t)
	default:
		return def
	}
}

// ConfigValue returns the chat config value, falling back to the
// environment, then def.
func (c *Context) ConfigValue(key string, def any) any {
	if c.Config == nil {
		return def
	}
	return c.Config.Value(key, def)
}

// ConfigString is ConfigValue as a string.
func (c *Context) ConfigString(key, def string) string {
	if c.Config == nil {
		return def
	}
	return c.Config.String(key, def)
}

// ConfigBool is ConfigValue as a boolean (true/yes/1).
func (c *Context) ConfigBool(key string, def bool) bool {
	if c.Config == nil {
		return def
	}
	return c.Config.Bool(key, def)
}

// ConfigInt is ConfigValue as an int.
func (c *Context) ConfigInt(key string, def int) int {
	if c.Config == nil {
		return def
	}
	return c.Config.Int(key, def)
}

// SetMetadata records a conversation metadata value.
func (c *Context) SetMetadata(key string, value any) {
	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}
	c.Metadata[key] = value
}

// BuildContext packs the thread id into an opaque token the client sends
// back to rejoin the conversation.
func (c *Context) BuildContext() string {
	data := map[string]string{}
	if c.ThreadID != "" {
		data["t"] = c.ThreadID
	}
	raw, _ := json.Marshal(data)
	return base64.URLEncoding.EncodeToString(raw)
}

// UnpackContext extracts the thread id from a BuildContext token.
func UnpackContext(token string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(token, "="))
	if err != nil {
		return "", fmt.Errorf("decoding context: %w", err)
	}
	var data map[string]any
	if err := json.Unmarshal(raw, &data); err != nil {
		return "", fmt.Errorf("parsing context: %w", err)
	}
	t, _ := data["t"].(string)
	return t, nil
}

var threadAliases = []string{"thread", "thread-id", "conversation", "conversation-id", "conversation_id", "bot-conversation-id"}

// loadThreadID prefers a packed context token, then the plain aliases.
func (c *Context) loadThreadID() {
	sources := []resolve.Source{
		resolve.Values{Label: "route", Data: c.Route},
		resolve.Headers{Data: c.Header},
		c.bodySource(),
		resolve.Values{Label: "query", Data: c.Query},
	}
	for _, src := range sources {
		v, ok := src.Lookup("context")
		if !ok {
			continue
		}
		token, ok := v.(string)
		if !ok || len(token) <= 3 {
			continue
		}
		id, err := UnpackContext(token)
		if err != nil {
			c.log.Debug().Err(err).Msg("ignoring malformed context token")
			break
		}
		c.ThreadID = id
		return
	}

	for _, alias := range threadAliases {
		s := c.ReqString(alias, "")
		if s == "" {
			continue
		}
		switch strings.ToLower(s) {
		case "undefined", "none", "null", "new":
			c.ThreadID = ""
		default:
			c.ThreadID = s
		}
		return
	}
}

// History returns the loaded thread history.
func (c *Context) History() []domain.ChatMessage {
	return c.messages
}

// InitHistory loads the thread's history once. Without a thread or a
// provider the history is empty.
func (c *Context) InitHistory(ctx context.Context) error {
	if c.loaded {
		return nil
	}
	if c.history == nil || c.ThreadID == "" {
		c.loaded = true
		return nil
	}
	msgs, err := c.history.Load(ctx, c.ThreadID)
	if err != nil {
		return fmt.Errorf("loading history for %s: %w", c.ThreadID, err)
	}
	c.messages = msgs
	c.loaded = true
	return nil
}

// AddMessage stamps the sender and appends msg to the thread's history.
func (c *Context) AddMessage(ctx context.Context, msg domain.ChatMessage) error {
	msg.AddMetadata("_user_id", c.UserID)
	msg.AddMetadata("_user_name", c.UserName)
	c.messages = append(c.messages, msg)
	if c.history == nil || c.ThreadID == "" {
		return nil
	}
	return c.history.Append(ctx, c.ThreadID, msg)
}

// Logger returns the context's logger tagged with the thread id.
func (c *Context) Logger() *logging.Logger {
	if c.ThreadID == "" {
		return c.log
	}
	return c.log.With("thread", c.ThreadID)
}

func headerOr(h http.Header, key, def string) string {
	if v, ok := (resolve.Headers{Data: h}).Lookup(key); ok {
		if s, _ := v.(string); s != "" {
			return s
		}
	}
	return def
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
