package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	commonerrors "github.com/vehicert/vehicert/internal/common/errors"
	"github.com/vehicert/vehicert/internal/common/middleware"
	"github.com/vehicert/vehicert/internal/flow"
)

// handleSession validates the caller's session against the provider and
// returns the profile together with its derived capabilities. A rejected
// session clears the local view and answers with the login URL.
func (s *Server) handleSession(c *gin.Context) {
	kc := s.kratosClient(c)
	az := s.authzService(c, kc)

	if err := az.Refresh(c.Request.Context()); err != nil {
		middleware.SessionRefreshTotal.WithLabelValues("rejected").Inc()
		if fe, ok := flow.AsError(err); ok && fe.Outcome == flow.OutcomeForbidden {
			if p := az.Profile(); p != nil {
				s.audit.LogSessionRejected(p.ID, c.ClientIP(), fe.Reason)
			}
		}
		s.handleFlowError(c, flow.KindLogin, err)
		return
	}
	middleware.SessionRefreshTotal.WithLabelValues("ok").Inc()

	resp := gin.H{
		"authenticated": az.Authenticated(),
		"profile":       az.Profile(),
		"capabilities": gin.H{
			"is_global_admin":  az.IsGlobalAdmin(),
			"has_admin_access": az.HasAdminAccess(),
			"has_mfa":          az.HasMFA(),
			"aal":              az.AAL(),
		},
	}
	if az.HasMFA() && az.AAL() != "aal2" {
		resp["step_up_url"] = az.RequireAAL2URL(c.Query("return_to"))
	}
	c.JSON(http.StatusOK, resp)
}

// handleLogout resolves the provider's logout URL for the current session.
// Local state is never cleared optimistically: the session ends only when the
// browser completes the provider's logout navigation.
func (s *Server) handleLogout(c *gin.Context) {
	kc := s.kratosClient(c)
	az := s.authzService(c, kc)

	url, err := az.LogoutURL(c.Request.Context())
	if err != nil {
		s.logger.Warn("Logout flow creation failed", zap.Error(err))
		s.handleFlowError(c, flow.KindLogin, err)
		return
	}

	if err := az.Refresh(c.Request.Context()); err == nil {
		if p := az.Profile(); p != nil {
			s.audit.LogLogout(p.ID, p.Email)
		}
	}

	c.JSON(http.StatusOK, gin.H{"logout_url": url})
}

// handleNotFound keeps unmatched routes on the JSON error contract
func (s *Server) handleNotFound(c *gin.Context) {
	commonerrors.HandleError(c, commonerrors.NotFound("route"))
}
