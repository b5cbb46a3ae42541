package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	commonerrors "github.com/vehicert/vehicert/internal/common/errors"
	"github.com/vehicert/vehicert/internal/flow"
	"github.com/vehicert/vehicert/internal/recovery"
)

// handleRecoveryBegin starts or resumes an account recovery flow
func (s *Server) handleRecoveryBegin(c *gin.Context) {
	w := recovery.NewWorkflow(s.kratosClient(c), s.logger)

	phase, err := w.Begin(c.Request.Context(), c.Query("flow"))
	if err != nil {
		s.handleFlowError(c, flow.KindRecovery, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"phase": phase.String(),
		"flow":  viewOf(w.Flow()),
	})
}

type recoverySubmitRequest struct {
	Flow  string `json:"flow" binding:"required"`
	Email string `json:"email"`
	Code  string `json:"code"`
}

// handleRecoverySubmit advances the recovery flow. An email submission asks
// the provider to send a recovery code; a code submission redeems it. When
// the code is accepted the provider hands off to a settings flow whose id is
// returned for the password reset step.
func (s *Server) handleRecoverySubmit(c *gin.Context) {
	var req recoverySubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		commonerrors.HandleError(c, commonerrors.BadRequest("flow is required"))
		return
	}

	w := recovery.NewWorkflow(s.kratosClient(c), s.logger)
	if _, err := w.Begin(c.Request.Context(), req.Flow); err != nil {
		s.handleFlowError(c, flow.KindRecovery, err)
		return
	}

	var (
		phase recovery.Phase
		err   error
	)
	switch {
	case req.Email != "":
		phase, err = w.SubmitEmail(c.Request.Context(), req.Email)
		if err == nil {
			s.audit.LogRecoveryRequested(req.Email, c.ClientIP())
		}
	case req.Code != "":
		phase, err = w.SubmitCode(c.Request.Context(), req.Code)
	default:
		commonerrors.HandleError(c, commonerrors.BadRequest("either email or code is required"))
		return
	}

	if err != nil {
		switch {
		case errors.Is(err, recovery.ErrEmptyEmail),
			errors.Is(err, recovery.ErrRecoveryCodeFormat),
			errors.Is(err, recovery.ErrWrongPhase):
			commonerrors.HandleError(c, commonerrors.BadRequest(err.Error()))
		default:
			s.handleFlowError(c, flow.KindRecovery, err)
		}
		return
	}

	resp := gin.H{
		"phase": phase.String(),
		"flow":  viewOf(w.Flow()),
	}
	if id, ok := w.SettingsFlowID(); ok {
		resp["settings_flow"] = id
	}
	c.JSON(http.StatusOK, resp)
}

type recoveryResendRequest struct {
	Email string `json:"email" binding:"required"`
}

// handleRecoveryResend issues a fresh recovery flow and re-sends the code.
// The old flow and its emailed code are abandoned.
func (s *Server) handleRecoveryResend(c *gin.Context) {
	var req recoveryResendRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		commonerrors.HandleError(c, commonerrors.BadRequest("email is required"))
		return
	}

	w := recovery.NewWorkflow(s.kratosClient(c), s.logger)
	if _, err := w.Begin(c.Request.Context(), ""); err != nil {
		s.handleFlowError(c, flow.KindRecovery, err)
		return
	}

	phase, err := w.SubmitEmail(c.Request.Context(), req.Email)
	if err != nil {
		if errors.Is(err, recovery.ErrEmptyEmail) {
			commonerrors.HandleError(c, commonerrors.BadRequest(err.Error()))
			return
		}
		s.handleFlowError(c, flow.KindRecovery, err)
		return
	}
	s.audit.LogRecoveryRequested(req.Email, c.ClientIP())

	c.JSON(http.StatusOK, gin.H{
		"phase": phase.String(),
		"flow":  viewOf(w.Flow()),
	})
}
