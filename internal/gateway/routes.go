package gateway

import "net/http"

// registerHTTPRoutes sets up all HTTP routes on the server mux.
func (s *Server) registerHTTPRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", s.handleHealth)

	mux.HandleFunc("GET /api/webchat/conversations", s.handleConversation)
	mux.HandleFunc("POST /api/webchat/conversations", s.handleConversation)
	mux.HandleFunc("GET /api/webchat/conversations/{conversation_id}", s.handleConversation)
	mux.HandleFunc("POST /api/webchat/conversations/{conversation_id}", s.handleConversation)
	mux.Handle("POST /api/webchat/conversations/{conversation_id}/activities",
		rateLimitMiddleware(http.HandlerFunc(s.handleActivity), s.limiter))
	mux.HandleFunc("GET /api/webchat/conversations/{conversation_id}/messages", handleNotImplemented)
	mux.HandleFunc("POST /api/webchat/conversations/{conversation_id}/messages", handleNotImplemented)

	mux.HandleFunc("GET /api/pipelines/{id}", s.handlePipelineStatus)

	mux.HandleFunc("GET /api/create-stream", s.handleCreateStream)
	mux.HandleFunc("POST /api/create-stream", s.handleCreateStream)
	mux.HandleFunc("GET /api/stream", s.handleStream)

	mux.HandleFunc("POST /api/refresh-caches", s.handleRefreshCaches)
	mux.HandleFunc("GET /api/list-orchestrators", s.handleListOrchestrators)

	// Catch-all for unknown routes
	mux.HandleFunc("/", handleNotFound)
}
