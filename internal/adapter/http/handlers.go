// Package http implements the REST adapter for the dashboard API.
package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/Strob0t/NovaLink/internal/domain/agent"
	"github.com/Strob0t/NovaLink/internal/domain/message"
	"github.com/Strob0t/NovaLink/internal/domain/session"
	"github.com/Strob0t/NovaLink/internal/middleware"
	"github.com/Strob0t/NovaLink/internal/port/cache"
	"github.com/Strob0t/NovaLink/internal/port/database"
	"github.com/Strob0t/NovaLink/internal/service"
)

const maxBodyBytes = 1 << 20 // 1 MiB

// Poll cache keys. The agents and alerts lists are the only endpoints
// many clients hit on a tight interval.
const (
	cacheKeyAgents = "poll:agents"
	cacheKeyAlerts = "poll:alerts"
)

// Handlers holds dependencies for all HTTP endpoints.
type Handlers struct {
	store     database.Store
	sessions  *service.SessionService
	commands  *service.CommandService
	publisher *service.Publisher

	cache    cache.Cache
	cacheTTL time.Duration
}

// NewHandlers creates the handler set. cache may be nil to disable the
// poll read cache.
func NewHandlers(store database.Store, sessions *service.SessionService, commands *service.CommandService, publisher *service.Publisher, c cache.Cache, cacheTTL time.Duration) *Handlers {
	return &Handlers{
		store:     store,
		sessions:  sessions,
		commands:  commands,
		publisher: publisher,
		cache:     c,
		cacheTTL:  cacheTTL,
	}
}

// ---------------------------------------------------------------------------
// Auth
// ---------------------------------------------------------------------------

type exchangeRequest struct {
	Subject string `json:"sub"`
	Email   string `json:"email"`
	Name    string `json:"name"`
}

type exchangeResponse struct {
	Token string `json:"token"`
}

// ExchangeSession mints a session token for externally-verified claims.
func (h *Handlers) ExchangeSession(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[exchangeRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if !requireField(w, req.Subject, "sub") {
		return
	}

	token, err := h.sessions.Exchange(r.Context(), session.Claims{
		Subject: req.Subject,
		Email:   req.Email,
		Name:    req.Name,
	})
	if err != nil {
		writeDomainError(w, err, "session")
		return
	}
	writeJSON(w, http.StatusCreated, exchangeResponse{Token: token})
}

// GetUser returns the claims bound to the current session.
func (h *Handlers) GetUser(w http.ResponseWriter, r *http.Request) {
	claims := middleware.ClaimsFromContext(r.Context())
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	writeJSON(w, http.StatusOK, claims)
}

// ---------------------------------------------------------------------------
// Agent types and agents
// ---------------------------------------------------------------------------

func (h *Handlers) ListAgentTypes(w http.ResponseWriter, r *http.Request) {
	types, err := h.store.ListAgentTypes(r.Context())
	if err != nil {
		writeDomainError(w, err, "agent types")
		return
	}
	writeJSON(w, http.StatusOK, types)
}

func (h *Handlers) ListAgents(w http.ResponseWriter, r *http.Request) {
	h.cachedList(w, r, cacheKeyAgents, func(ctx context.Context) (any, error) {
		return h.store.ListAgents(ctx)
	})
}

func (h *Handlers) GetAgent(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.store.GetAgent(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}
	writeJSON(w, http.StatusOK, a)
}

type updateStatusRequest struct {
	Status string `json:"status"`
}

func (h *Handlers) UpdateAgentStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	req, ok := readJSON[updateStatusRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	status, err := agent.ParseStatus(req.Status)
	if err != nil {
		writeDomainError(w, err, "status")
		return
	}

	a, err := h.store.UpdateAgentStatus(r.Context(), id, status)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	h.invalidatePolls(r.Context())
	h.publisher.PublishUpdate(r.Context())
	writeJSON(w, http.StatusOK, a)
}

// ---------------------------------------------------------------------------
// Messages
// ---------------------------------------------------------------------------

func (h *Handlers) ListMessages(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	msgs, err := h.store.ListMessages(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "messages")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

type createMessageRequest struct {
	AgentID int64  `json:"agentId"`
	Content string `json:"content"`
	Type    string `json:"type"`
}

func (h *Handlers) CreateMessage(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createMessageRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if !requireField(w, req.Content, "content") {
		return
	}
	msgType, err := message.ParseType(req.Type)
	if err != nil {
		writeDomainError(w, err, "type")
		return
	}
	if _, err := h.store.GetAgent(r.Context(), req.AgentID); err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	m, err := h.store.CreateMessage(r.Context(), message.Message{
		AgentID: req.AgentID,
		Content: req.Content,
		Type:    msgType,
	})
	if err != nil {
		writeDomainError(w, err, "message")
		return
	}

	h.publisher.PublishUpdate(r.Context())
	writeJSON(w, http.StatusCreated, m)
}

// ---------------------------------------------------------------------------
// Alerts
// ---------------------------------------------------------------------------

func (h *Handlers) ListAlerts(w http.ResponseWriter, r *http.Request) {
	h.cachedList(w, r, cacheKeyAlerts, func(ctx context.Context) (any, error) {
		return h.store.ListAlerts(ctx)
	})
}

func (h *Handlers) ListAgentAlerts(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	alerts, err := h.store.ListAgentAlerts(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "alerts")
		return
	}
	writeJSON(w, http.StatusOK, alerts)
}

func (h *Handlers) ResolveAlert(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	a, err := h.store.ResolveAlert(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "alert not found")
		return
	}

	h.invalidatePolls(r.Context())
	h.publisher.PublishUpdate(r.Context())
	writeJSON(w, http.StatusOK, a)
}

// ---------------------------------------------------------------------------
// Commands
// ---------------------------------------------------------------------------

type createCommandRequest struct {
	AgentID int64  `json:"agentId"`
	Command string `json:"command"`
}

// CreateCommand runs the full command pipeline: persistence,
// interpretation, state transition, and broadcast.
func (h *Handlers) CreateCommand(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[createCommandRequest](w, r, maxBodyBytes)
	if !ok {
		return
	}
	if !requireField(w, req.Command, "command") {
		return
	}

	cmd, err := h.commands.HandleCommand(r.Context(), req.AgentID, req.Command)
	if err != nil {
		writeDomainError(w, err, "agent not found")
		return
	}

	h.invalidatePolls(r.Context())
	writeJSON(w, http.StatusCreated, cmd)
}

func (h *Handlers) ListCommands(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cmds, err := h.store.ListCommands(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "commands")
		return
	}
	writeJSON(w, http.StatusOK, cmds)
}

func (h *Handlers) ExecuteCommand(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	cmd, err := h.store.ExecuteCommand(r.Context(), id)
	if err != nil {
		writeDomainError(w, err, "command not found")
		return
	}
	h.publisher.PublishUpdate(r.Context())
	writeJSON(w, http.StatusOK, cmd)
}

// ---------------------------------------------------------------------------
// Poll cache
// ---------------------------------------------------------------------------

// cachedList serves a list endpoint through the byte cache. The TTL is
// sub-second: staleness is bounded well below the client poll interval,
// and the store sees one read per window no matter how many clients poll.
func (h *Handlers) cachedList(w http.ResponseWriter, r *http.Request, key string, list func(context.Context) (any, error)) {
	ctx := r.Context()

	if h.cache != nil {
		if data, ok, err := h.cache.Get(ctx, key); err == nil && ok {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write(data)
			return
		}
	}

	v, err := list(ctx)
	if err != nil {
		writeDomainError(w, err, "list")
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		writeDomainError(w, err, "list")
		return
	}

	if h.cache != nil {
		if err := h.cache.Set(ctx, key, data, h.cacheTTL); err != nil {
			slog.Debug("poll cache set failed", "key", key, "error", err)
		}
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write(data)
}

// invalidatePolls drops the cached poll lists after a mutation so the
// next poll observes it immediately instead of after the TTL.
func (h *Handlers) invalidatePolls(ctx context.Context) {
	if h.cache == nil {
		return
	}
	_ = h.cache.Delete(ctx, cacheKeyAgents)
	_ = h.cache.Delete(ctx, cacheKeyAlerts)
}
