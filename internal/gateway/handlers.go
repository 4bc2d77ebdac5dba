package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/soyeahso/botrelay/internal/chatconfig"
	"github.com/soyeahso/botrelay/internal/facade"
	"github.com/soyeahso/botrelay/internal/orchestrator"
	"github.com/soyeahso/botrelay/internal/pipeline"
	"github.com/soyeahso/botrelay/internal/reqctx"
	"github.com/soyeahso/botrelay/internal/stream"
	"github.com/soyeahso/botrelay/internal/version"
)

// streamReadLimit caps frames read from stream subscribers, which only
// ever send control frames.
const streamReadLimit = 64 * 1024

// HealthResponse is returned by the health endpoint.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version"`
}

// ConversationResponse identifies a started or rejoined conversation.
type ConversationResponse struct {
	Context        string `json:"context"`
	ConversationID string `json:"conversationId"`
	StreamID       string `json:"streamId"`
}

// ActivityAccepted is returned once a prompt has been queued.
type ActivityAccepted struct {
	ID             string          `json:"id"`
	ConversationID string          `json:"conversationId"`
	Status         pipeline.Status `json:"status"`
	StatusURL      string          `json:"statusUrl"`
}

// PipelineStatus reports an instance and its checkpointed steps.
type PipelineStatus struct {
	Instance *pipeline.Instance    `json:"instance"`
	Steps    []pipeline.StepRecord `json:"steps"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// handleHealth returns the server health status.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{Status: "ok", Version: version.Version})
}

// handleNotFound returns a 404 for unknown routes.
func handleNotFound(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusNotFound, map[string]string{
		"error": "not found",
		"path":  r.URL.Path,
	})
}

// session builds the request context, with the conversation id from the
// path as a route parameter.
func (s *Server) session(r *http.Request) (*reqctx.Context, error) {
	route := map[string]string{}
	if id := r.PathValue("conversation_id"); id != "" {
		route["conversation_id"] = id
	}
	return reqctx.FromRequest(r.Context(), r, route, reqctx.Deps{
		Configs: s.deps.Facade.Configs,
		History: s.deps.History,
		Log:     s.log,
	})
}

// handleConversation starts a conversation, or rejoins the one named in the
// path, and replays its history (or the welcome) to the stream.
func (s *Server) handleConversation(w http.ResponseWriter, r *http.Request) {
	rc, err := s.session(r)
	if err != nil {
		s.log.Error().Err(err).Msg("building request context")
		writeError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}
	if rc.ThreadID == "" {
		rc.ThreadID = uuid.NewString()
	}

	f := facade.New(r.Context(), rc, s.deps.Facade)
	f.SendStartActivity(r.Context())

	writeJSON(w, http.StatusOK, ConversationResponse{
		Context:        rc.BuildContext(),
		ConversationID: rc.ThreadID,
		StreamID:       rc.StreamID,
	})
}

// handleActivity echoes a user activity and queues the prompt on the
// conversation pipeline. The response arrives on the stream.
func (s *Server) handleActivity(w http.ResponseWriter, r *http.Request) {
	rc, err := s.session(r)
	if err != nil {
		s.log.Error().Err(err).Msg("building request context")
		writeError(w, http.StatusInternalServerError, "could not load conversation")
		return
	}
	if rc.ThreadID == "" {
		writeError(w, http.StatusBadRequest, "conversation id is required")
		return
	}
	prompt := strings.TrimSpace(rc.ReqString("text", rc.ReqString("prompt", "")))
	if prompt == "" {
		writeError(w, http.StatusBadRequest, "text or prompt is required")
		return
	}
	if s.deps.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline unavailable")
		return
	}

	ctx := r.Context()
	f := facade.New(ctx, rc, s.deps.Facade)
	f.EchoUserActivity(ctx)

	inst, err := s.deps.Pipeline.Start(ctx, pipeline.Input{Snapshot: rc.Snapshot(), Prompt: prompt})
	if err != nil {
		s.log.Error().Err(err).Str("thread", rc.ThreadID).Msg("starting pipeline")
		f.SendErrorActivity(ctx, "")
		writeError(w, http.StatusInternalServerError, "could not queue prompt")
		return
	}
	f.SendTypingActivity(ctx, "")

	writeJSON(w, http.StatusAccepted, ActivityAccepted{
		ID:             inst.ID,
		ConversationID: rc.ThreadID,
		Status:         inst.Status,
		StatusURL:      "/api/pipelines/" + inst.ID,
	})
}

func handleNotImplemented(w http.ResponseWriter, r *http.Request) {
	writeError(w, http.StatusNotImplemented, "not implemented")
}

func (s *Server) handlePipelineStatus(w http.ResponseWriter, r *http.Request) {
	if s.deps.Pipeline == nil {
		writeError(w, http.StatusServiceUnavailable, "pipeline unavailable")
		return
	}
	inst, steps, err := s.deps.Pipeline.Status(r.Context(), r.PathValue("id"))
	switch {
	case errors.Is(err, pipeline.ErrInstanceNotFound):
		writeError(w, http.StatusNotFound, "pipeline instance not found")
	case err != nil:
		s.log.Error().Err(err).Msg("reading pipeline status")
		writeError(w, http.StatusInternalServerError, "could not read pipeline status")
	default:
		if steps == nil {
			steps = []pipeline.StepRecord{}
		}
		writeJSON(w, http.StatusOK, PipelineStatus{Instance: inst, Steps: steps})
	}
}

// handleCreateStream mints a stream id and the websocket url to listen on.
func (s *Server) handleCreateStream(w http.ResponseWriter, r *http.Request) {
	id := uuid.NewString()
	writeJSON(w, http.StatusOK, map[string]string{
		"stream-id":  id,
		"stream-url": s.streamURL(r, id),
	})
}

func (s *Server) streamURL(r *http.Request, id string) string {
	base := strings.TrimSuffix(s.cfg.PublicURL, "/")
	switch {
	case base == "":
		scheme := "ws"
		if r.TLS != nil {
			scheme = "wss"
		}
		base = scheme + "://" + r.Host
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}
	return base + "/api/stream?stream-id=" + url.QueryEscape(id)
}

// handleStream subscribes a websocket to a stream until the client goes
// away.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	id := r.URL.Query().Get("stream-id")
	if id == "" {
		writeError(w, http.StatusBadRequest, "stream-id is required")
		return
	}
	if s.deps.Hub == nil {
		writeError(w, http.StatusServiceUnavailable, "streaming unavailable")
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Warn().Err(err).Msg("websocket upgrade failed")
		return
	}
	conn.SetReadLimit(streamReadLimit)

	sub := stream.NewSubscriber(id, conn)
	s.deps.Hub.Add(sub)
	defer func() {
		s.deps.Hub.Remove(sub)
		sub.Close()
	}()
	s.log.Debug().Str("stream", id).Str("subscriber", sub.ID).Msg("stream subscriber connected")

	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug().Err(err).Str("stream", id).Msg("stream read ended")
			}
			return
		}
	}
}

// handleRefreshCaches drops every cached chat config. Refresh listeners
// reset the orchestrator and agent registries.
func (s *Server) handleRefreshCaches(w http.ResponseWriter, r *http.Request) {
	if s.deps.Facade.Configs != nil {
		s.deps.Facade.Configs.InvalidateAll()
	}
	s.log.Info().Msg("caches refreshed")
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleListOrchestrators(w http.ResponseWriter, r *http.Request) {
	configs := s.deps.Facade.Configs
	if s.deps.Orchestrators == nil || configs == nil {
		writeJSON(w, http.StatusOK, []orchestrator.Info{})
		return
	}

	defaultName := facade.DefaultOrchestrator()
	if cfg, err := configs.Get(r.Context(), chatconfig.DefaultName); err == nil {
		defaultName = cfg.String("default-orchestrator", defaultName)
	}

	list, err := s.deps.Orchestrators.Public(r.Context(), configs, defaultName)
	if err != nil {
		s.log.Error().Err(err).Msg("listing orchestrators")
		writeError(w, http.StatusInternalServerError, "could not list orchestrators")
		return
	}
	writeJSON(w, http.StatusOK, list)
}
