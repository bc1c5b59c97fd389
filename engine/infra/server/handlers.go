package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/compozy/docqa/engine/core"
	"github.com/compozy/docqa/engine/infra/server/router"
	"github.com/compozy/docqa/engine/qa"
	"github.com/compozy/docqa/pkg/logger"
	"github.com/compozy/docqa/pkg/version"
)

const (
	sessionHeader      = "X-Session-ID"
	internalErrMessage = "An internal error occurred while processing the question"
	notFoundMessage    = "No relevant documents found"
	invalidInputPrefix = "Invalid input: "
)

// Asker answers questions in both modes.
type Asker interface {
	AskSingle(ctx context.Context, req qa.SingleRequest) (*qa.SingleResponse, error)
	AskConversational(ctx context.Context, req qa.ConversationalRequest) (*qa.ConversationalResponse, error)
}

// IndexCounter reports how many chunks the vector index holds.
type IndexCounter interface {
	Count(ctx context.Context) (int, error)
}

// askSingle answers one standalone question.
func (s *Server) askSingle(c *gin.Context) {
	var req qa.SingleRequest
	if !bindQuestion(c, &req) {
		return
	}
	resp, err := s.asker.AskSingle(c.Request.Context(), req)
	if err != nil {
		respondAskError(c, err)
		return
	}
	c.Header(sessionHeader, resp.SessionID)
	c.JSON(http.StatusOK, resp)
}

// askConversational answers a question in the light of the supplied chat history.
func (s *Server) askConversational(c *gin.Context) {
	var req qa.ConversationalRequest
	if !bindQuestion(c, &req) {
		return
	}
	resp, err := s.asker.AskConversational(c.Request.Context(), req)
	if err != nil {
		respondAskError(c, err)
		return
	}
	c.Header(sessionHeader, resp.SessionID)
	c.JSON(http.StatusOK, resp)
}

// health reports whether the vector index is reachable and how many chunks it holds.
func (s *Server) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), healthCheckTimeout)
	defer cancel()
	response := gin.H{
		"status":  statusReady,
		"ready":   true,
		"mode":    s.cfg.Server.Mode,
		"version": version.Get().Version,
	}
	status := http.StatusOK
	if s.index != nil {
		count, err := s.index.Count(ctx)
		if err != nil {
			logger.FromContext(ctx).Warn("Vector index health check failed", "error", err)
			response["status"] = statusNotReady
			response["ready"] = false
			status = http.StatusServiceUnavailable
		} else {
			response["documents"] = count
		}
	}
	c.JSON(status, gin.H{"data": response, "message": "Success"})
}

func bindQuestion(c *gin.Context, req any) bool {
	if err := c.ShouldBindJSON(req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			router.RespondProblemWithCode(c, http.StatusRequestEntityTooLarge, router.ErrPayloadTooLargeCode,
				invalidInputPrefix+"request body too large")
			return false
		}
		router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrBadRequestCode,
			invalidInputPrefix+"malformed request body")
		return false
	}
	return true
}

// respondAskError maps typed pipeline errors onto HTTP problems. Only
// validation messages reach the client; everything else is logged.
func respondAskError(c *gin.Context, err error) {
	var validation *core.ValidationError
	switch {
	case errors.As(err, &validation):
		router.RespondProblemWithCode(c, http.StatusBadRequest, router.ErrBadRequestCode,
			invalidInputPrefix+validation.Message)
	case core.IsNoRelevantDocuments(err):
		router.RespondProblemWithCode(c, http.StatusNotFound, router.ErrNotFoundCode, notFoundMessage)
	default:
		_ = c.Error(err) //nolint:errcheck // recorded for the request log
		router.RespondProblemWithCode(c, http.StatusInternalServerError, router.ErrInternalCode, internalErrMessage)
	}
}
