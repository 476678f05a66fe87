package web

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

type tokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) handleSync(c *gin.Context) {
	result, err := s.svc.SyncAll(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, result)
}

func (s *Server) handleStatus(c *gin.Context) {
	status, err := s.svc.ConnectionStatus(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, status)
}

func (s *Server) handleSetToken(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.svc.SetTodoistToken(c.Request.Context(), currentUser(c).ID, req.Token); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleClearToken(c *gin.Context) {
	if err := s.svc.ClearTodoistToken(c.Request.Context(), currentUser(c).ID); err != nil {
		s.writeError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) handleRemoteLabels(c *gin.Context) {
	labels, err := s.svc.RemoteLabels(c.Request.Context(), currentUser(c).ID)
	if err != nil {
		s.writeError(c, err)
		return
	}
	ok(c, http.StatusOK, labels)
}
