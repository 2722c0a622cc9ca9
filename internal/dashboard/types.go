package dashboard

import (
	"time"

	"chainwatch/internal/analysis"
	"chainwatch/internal/catalog"
	"chainwatch/internal/chat"
	"chainwatch/internal/risk"
)

// APIResponse is the envelope for every JSON response.
type APIResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// HealthResponse is served by /healthz.
type HealthResponse struct {
	Status    string    `json:"status"`
	Service   string    `json:"service"`
	Breaker   string    `json:"breaker"`
	Sessions  int       `json:"sessions"`
	Timestamp time.Time `json:"timestamp"`
	Uptime    string    `json:"uptime"`
}

// RegionsResponse lists the catalog.
type RegionsResponse struct {
	Regions []risk.Region                     `json:"regions"`
	Default risk.Region                       `json:"default"`
	Source  catalog.Source                    `json:"source"`
	Details map[risk.Region]risk.RegionDetail `json:"details,omitempty"`
}

// SessionResponse describes one dashboard tab.
type SessionResponse struct {
	ID       string            `json:"id"`
	Created  time.Time         `json:"created"`
	Analysis analysis.Snapshot `json:"analysis"`
	Chat     chat.Snapshot     `json:"chat"`
}

// SelectRegionRequest is the body of PUT /api/sessions/:id/region.
type SelectRegionRequest struct {
	Region string `json:"region" binding:"required"`
}

// ChatRequest is the body of POST /api/sessions/:id/chat and of websocket frames.
type ChatRequest struct {
	Message string `json:"message"`
}

// ChatResponse reports how a message was handled.
type ChatResponse struct {
	Outcome chat.Outcome  `json:"outcome"`
	Chat    chat.Snapshot `json:"chat"`
}

// WebSocketMessage is one server-to-client frame.
type WebSocketMessage struct {
	Type      string    `json:"type"`
	Data      any       `json:"data,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	SessionID string    `json:"session_id,omitempty"`
}
