package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/mstolbov/askdb/internal/agent"
	"github.com/mstolbov/askdb/internal/store"
)

const maxRequestBodySize = 1 << 20 // 1MB

// ChatAgent abstracts the conversation loop for the API layer.
type ChatAgent interface {
	Chat(ctx context.Context, session *agent.Session, userMessage string) (agent.Reply, error)
}

// AppDeps holds dependencies for the REST API.
type AppDeps struct {
	Store        *store.Store
	Agent        ChatAgent
	SystemPrompt string
	Model        string
	Token        string // optional; empty disables bearer auth
}

// sessionEntry pairs a session with the mutex serializing access to it.
// The session's turn sequence is owned by exactly one conversation; every
// Chat or Reset must hold mu for its full duration so concurrent requests
// carrying the same session ID cannot interleave turns.
type sessionEntry struct {
	mu      sync.Mutex
	session *agent.Session
}

// sessionRegistry tracks live conversation sessions by ID.
type sessionRegistry struct {
	mu       sync.Mutex
	sessions map[string]*sessionEntry
	prompt   string
}

func newSessionRegistry(systemPrompt string) *sessionRegistry {
	return &sessionRegistry{
		sessions: make(map[string]*sessionEntry),
		prompt:   systemPrompt,
	}
}

// acquire returns the entry for id, creating one when id is empty or
// unknown. The returned ID identifies the session in either case. Callers
// lock the entry before touching its session.
func (r *sessionRegistry) acquire(id string) (string, *sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if id != "" {
		if e, ok := r.sessions[id]; ok {
			return id, e
		}
	}
	if id == "" {
		id = uuid.New().String()
	}
	e := &sessionEntry{session: agent.NewSession(r.prompt)}
	r.sessions[id] = e
	return id, e
}

func (r *sessionRegistry) reset(id string) bool {
	r.mu.Lock()
	e, ok := r.sessions[id]
	r.mu.Unlock()
	if !ok {
		return false
	}

	e.mu.Lock()
	e.session.Reset()
	e.mu.Unlock()
	return true
}

// NewAppHandler returns the askdb REST API handler.
func NewAppHandler(deps AppDeps) http.Handler {
	registry := newSessionRegistry(deps.SystemPrompt)

	r := chi.NewRouter()
	r.Get("/health", handleHealth)

	r.Group(func(r chi.Router) {
		if deps.Token != "" {
			r.Use(BearerAuth(deps.Token))
		}
		r.Post("/v1/chat", handleChat(deps, registry))
		r.Post("/v1/query", handleQuery(deps))
		r.Get("/v1/statistics", handleStatistics(deps))
		r.Get("/v1/schema", handleSchema(deps))
		r.Post("/v1/sessions/{id}/reset", handleSessionReset(registry))
		r.Get("/v1/exchanges", handleListExchanges(deps))
		r.Get("/v1/exchanges/{id}", handleGetExchange(deps))
	})

	return r
}

func handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.Write([]byte(`{"status":"ok"}`))
}

type chatRequest struct {
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

type chatResponse struct {
	SessionID string             `json:"session_id"`
	Answer    string             `json:"answer"`
	ToolCalls int                `json:"tool_calls"`
	Chart     *agent.ChartConfig `json:"chart,omitempty"`
}

func handleChat(deps AppDeps, registry *sessionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req chatRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.Message == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "message is required")
			return
		}

		id, entry := registry.acquire(req.SessionID)

		entry.mu.Lock()
		reply, err := deps.Agent.Chat(r.Context(), entry.session, req.Message)
		entry.mu.Unlock()
		if err != nil {
			httpError(w, http.StatusBadGateway, "api_error", "model request failed: %v", err)
			return
		}

		exchange := store.Exchange{
			ID:        uuid.New().String(),
			CreatedAt: time.Now().UTC(),
			Question:  req.Message,
			Answer:    reply.Content,
			Model:     deps.Model,
			ToolCalls: reply.ToolCalls,
			HadChart:  reply.Chart != nil,
		}
		if err := deps.Store.SaveExchange(exchange); err != nil {
			slog.Warn("failed to persist exchange", "error", err)
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(chatResponse{
			SessionID: id,
			Answer:    reply.Content,
			ToolCalls: reply.ToolCalls,
			Chart:     reply.Chart,
		})
	}
}

type queryRequest struct {
	SQLQuery string `json:"sql_query"`
}

func handleQuery(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
		defer r.Body.Close()

		var req queryRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "invalid request body: %v", err)
			return
		}
		if req.SQLQuery == "" {
			httpError(w, http.StatusBadRequest, "invalid_request_error", "sql_query is required")
			return
		}

		// Blocked and failed queries come back as a structured result, not an
		// HTTP error; clients inspect the success flag.
		result := deps.Store.ExecuteQuery(r.Context(), req.SQLQuery)

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(result)
	}
}

func handleStatistics(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		stats, err := deps.Store.Statistics(r.Context())
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to compute statistics: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(stats)
	}
}

func handleSchema(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		info, err := deps.Store.TableInfo()
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to read schema: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(info)
	}
}

func handleSessionReset(registry *sessionRegistry) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if !registry.reset(id) {
			httpError(w, http.StatusNotFound, "not_found", "session not found")
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "reset"})
	}
}

type exchangeView struct {
	ID        string `json:"id"`
	CreatedAt string `json:"created_at"`
	Question  string `json:"question"`
	Answer    string `json:"answer"`
	Model     string `json:"model"`
	ToolCalls int    `json:"tool_calls"`
	HadChart  bool   `json:"had_chart"`
}

func handleListExchanges(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := parseIntParam(r, "limit", 20, 100)

		exchanges, err := deps.Store.RecentExchanges(limit)
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to list exchanges: %v", err)
			return
		}

		views := make([]exchangeView, len(exchanges))
		for i, e := range exchanges {
			views[i] = exchangeView{
				ID:        e.ID,
				CreatedAt: e.CreatedAt.Format(time.RFC3339),
				Question:  e.Question,
				Answer:    e.Answer,
				Model:     e.Model,
				ToolCalls: e.ToolCalls,
				HadChart:  e.HadChart,
			}
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(views)
	}
}

func handleGetExchange(deps AppDeps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")

		e, err := deps.Store.GetExchange(id)
		if errors.Is(err, store.ErrNotFound) {
			httpError(w, http.StatusNotFound, "not_found", "exchange not found")
			return
		}
		if err != nil {
			httpError(w, http.StatusInternalServerError, "api_error", "failed to get exchange: %v", err)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(exchangeView{
			ID:        e.ID,
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
			Question:  e.Question,
			Answer:    e.Answer,
			Model:     e.Model,
			ToolCalls: e.ToolCalls,
			HadChart:  e.HadChart,
		})
	}
}

func parseIntParam(r *http.Request, key string, defaultVal, maxVal int) int {
	s := r.URL.Query().Get(key)
	if s == "" {
		return defaultVal
	}
	v, err := strconv.Atoi(s)
	if err != nil || v < 0 {
		return defaultVal
	}
	if maxVal > 0 && v > maxVal {
		return maxVal
	}
	return v
}

func httpError(w http.ResponseWriter, code int, errType string, format string, args ...any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	msg := fmt.Sprintf(format, args...)
	json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{
			"message": msg,
			"type":    errType,
		},
	})
}
