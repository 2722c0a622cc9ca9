package dashboard

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"chainwatch/internal/analysis"
	"chainwatch/internal/chat"
	cwerrors "chainwatch/internal/errors"
	"chainwatch/internal/risk"
	"chainwatch/internal/utils/id"
)

func respondError(c *gin.Context, status int, message string, data any) {
	c.JSON(status, APIResponse{Success: false, Error: message, Data: data})
}

func respond(c *gin.Context, status int, data any) {
	c.JSON(status, APIResponse{Success: true, Data: data})
}

func (s *Server) handleHealth(c *gin.Context) {
	respond(c, http.StatusOK, HealthResponse{
		Status:    "ok",
		Service:   s.container.Client.BaseURL(),
		Breaker:   s.container.Client.Breaker().State.String(),
		Sessions:  s.sessions.len(),
		Timestamp: time.Now(),
		Uptime:    time.Since(s.startTime).Round(time.Second).String(),
	})
}

func (s *Server) handleRegions(c *gin.Context) {
	regions := s.container.Catalog
	// Load is attempted once; later calls return the sticky outcome.
	_ = regions.Load(c.Request.Context())

	list := regions.Regions()
	details := make(map[risk.Region]risk.RegionDetail, len(list))
	for _, region := range list {
		if detail, ok := regions.Detail(region); ok {
			details[region] = detail
		}
	}
	respond(c, http.StatusOK, RegionsResponse{
		Regions: list,
		Default: regions.Default(),
		Source:  regions.Source(),
		Details: details,
	})
}

func (s *Server) handleCreateSession(c *gin.Context) {
	sessionID := id.NewSessionID()
	ctx := id.WithSessionID(c.Request.Context(), sessionID)

	controller := s.container.NewController()
	session := &tabSession{
		id:         sessionID,
		created:    time.Now(),
		controller: controller,
		chat:       s.container.NewChatSession(controller),
	}
	if err := s.container.Warmup(ctx, controller); err != nil {
		respondError(c, http.StatusServiceUnavailable, err.Error(), nil)
		return
	}
	s.sessions.add(session)
	s.logger.Info("session %s created", sessionID)

	respond(c, http.StatusCreated, session.response())
}

// lookup resolves :id or writes a 404.
func (s *Server) lookup(c *gin.Context) (*tabSession, bool) {
	session, ok := s.sessions.get(c.Param("id"))
	if !ok {
		respondError(c, http.StatusNotFound, fmt.Sprintf("session %q not found", c.Param("id")), nil)
		return nil, false
	}
	return session, true
}

func (s *Server) handleGetSession(c *gin.Context) {
	session, ok := s.lookup(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, session.response())
}

func (s *Server) handleDeleteSession(c *gin.Context) {
	if !s.sessions.remove(c.Param("id")) {
		respondError(c, http.StatusNotFound, fmt.Sprintf("session %q not found", c.Param("id")), nil)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleSelectRegion(c *gin.Context) {
	session, ok := s.lookup(c)
	if !ok {
		return
	}
	var req SelectRegionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err), nil)
		return
	}

	switch err := session.controller.SelectRegion(risk.Region(req.Region)); {
	case errors.Is(err, analysis.ErrBusy):
		respondError(c, http.StatusConflict, err.Error(), session.controller.Snapshot())
	case errors.Is(err, analysis.ErrUnknownRegion):
		respondError(c, http.StatusBadRequest, err.Error(), nil)
	case err != nil:
		respondError(c, http.StatusInternalServerError, err.Error(), nil)
	default:
		respond(c, http.StatusOK, session.controller.Snapshot())
	}
}

func (s *Server) handleAnalyze(c *gin.Context) {
	session, ok := s.lookup(c)
	if !ok {
		return
	}

	err := session.controller.Analyze(detached(c.Request.Context()))
	snapshot := session.controller.Snapshot()
	switch {
	case errors.Is(err, analysis.ErrBusy):
		respondError(c, http.StatusConflict, err.Error(), snapshot)
	case err != nil:
		_ = c.Error(err)
		respondError(c, http.StatusBadGateway, cwerrors.Reason(err), snapshot)
	default:
		respond(c, http.StatusOK, snapshot)
	}
}

func (s *Server) handleGetChat(c *gin.Context) {
	session, ok := s.lookup(c)
	if !ok {
		return
	}
	respond(c, http.StatusOK, session.chat.Snapshot())
}

func (s *Server) handleSendChat(c *gin.Context) {
	session, ok := s.lookup(c)
	if !ok {
		return
	}
	var req ChatRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondError(c, http.StatusBadRequest, fmt.Sprintf("invalid request: %v", err), nil)
		return
	}

	status, body := sendChat(detached(c.Request.Context()), session, req.Message)
	if status != http.StatusOK {
		respondError(c, status, body.errMessage, body.response)
		return
	}
	respond(c, status, body.response)
}

type chatResult struct {
	response   ChatResponse
	errMessage string
}

// detached keeps request values but not cancellation: an analyze or chat
// call runs to completion even if the tab goes away. The client's transport
// timeout still bounds it.
func detached(ctx context.Context) context.Context {
	return context.WithoutCancel(ctx)
}

func sendChat(ctx context.Context, session *tabSession, message string) (int, chatResult) {
	outcome, err := session.chat.Send(ctx, message)
	result := chatResult{response: ChatResponse{Outcome: outcome, Chat: session.chat.Snapshot()}}
	switch {
	case errors.Is(err, chat.ErrEmptyMessage):
		result.errMessage = err.Error()
		return http.StatusBadRequest, result
	case outcome == chat.OutcomeIgnored:
		result.errMessage = "a chat request is already in flight"
		return http.StatusConflict, result
	case err != nil:
		result.errMessage = err.Error()
		return http.StatusInternalServerError, result
	}
	return http.StatusOK, result
}

func (s *Server) handleOpenChat(c *gin.Context) {
	session, ok := s.lookup(c)
	if !ok {
		return
	}
	session.chat.Open()
	respond(c, http.StatusOK, session.chat.Snapshot())
}

func (s *Server) handleCloseChat(c *gin.Context) {
	session, ok := s.lookup(c)
	if !ok {
		return
	}
	session.chat.Close()
	respond(c, http.StatusOK, session.chat.Snapshot())
}
