package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	commonerrors "github.com/vehicert/vehicert/internal/common/errors"
	"github.com/vehicert/vehicert/internal/common/middleware"
	"github.com/vehicert/vehicert/internal/flow"
	"github.com/vehicert/vehicert/internal/login"
)

// handleLoginBegin starts or resumes a login flow. Accepts refresh=true for
// re-authentication, aal=aal2 for step-up, and return_to for the post-login
// destination. An existing flow may be resumed by id via the flow parameter.
func (s *Server) handleLoginBegin(c *gin.Context) {
	kc := s.kratosClient(c)
	az := s.authzService(c, kc)
	seq := login.NewSequencer(kc, az, s.logger)

	state, err := seq.Begin(c.Request.Context(), c.Query("flow"), flow.CreateOptions{
		Refresh:  c.Query("refresh") == "true",
		AAL:      c.Query("aal"),
		ReturnTo: c.Query("return_to"),
	})
	if err != nil {
		s.handleFlowError(c, flow.KindLogin, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"state": state.String(),
		"flow":  viewOf(seq.Flow()),
	})
}

type loginSubmitRequest struct {
	Flow       string `json:"flow" binding:"required"`
	Method     string `json:"method" binding:"required"`
	Identifier string `json:"identifier"`
	Password   string `json:"password"`
	Code       string `json:"code"`
}

// handleLoginSubmit advances the login challenge sequence by one submission.
// Method selects the challenge: password, totp or backup_code. The sequencer
// re-derives its position from the live flow, so no challenge state is held
// between requests.
func (s *Server) handleLoginSubmit(c *gin.Context) {
	var req loginSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		commonerrors.HandleError(c, commonerrors.BadRequest("flow and method are required"))
		return
	}

	kc := s.kratosClient(c)
	az := s.authzService(c, kc)
	seq := login.NewSequencer(kc, az, s.logger)

	if _, err := seq.Begin(c.Request.Context(), req.Flow, flow.CreateOptions{}); err != nil {
		s.handleFlowError(c, flow.KindLogin, err)
		return
	}

	var (
		state login.State
		err   error
	)
	switch req.Method {
	case "password":
		state, err = seq.SubmitPassword(c.Request.Context(), req.Identifier, req.Password)
	case "totp":
		state, err = seq.SubmitTOTP(c.Request.Context(), req.Code)
	case "backup_code":
		if seq.State() == login.StateTOTP {
			if _, err := seq.UseBackupCode(); err != nil {
				commonerrors.HandleError(c, commonerrors.BadRequest(err.Error()))
				return
			}
		}
		state, err = seq.SubmitBackupCode(c.Request.Context(), req.Code)
	default:
		commonerrors.HandleError(c, commonerrors.BadRequest("unknown login method"))
		return
	}

	if err != nil {
		s.respondLoginFailure(c, seq, req, err)
		return
	}

	middleware.AuthAttemptsTotal.WithLabelValues(req.Method, "success").Inc()

	resp := gin.H{
		"state": state.String(),
		"flow":  viewOf(seq.Flow()),
	}
	if state == login.StateSuccess {
		if p := az.Profile(); p != nil {
			s.audit.LogLoginSuccess(p.ID, p.Email, c.ClientIP(), c.Request.UserAgent())
			resp["profile"] = p
		}
		if f := seq.Flow(); f != nil && f.ReturnTo != "" {
			resp["return_to"] = f.ReturnTo
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) respondLoginFailure(c *gin.Context, seq *login.Sequencer, req loginSubmitRequest, err error) {
	middleware.AuthAttemptsTotal.WithLabelValues(req.Method, "failure").Inc()

	switch {
	case errors.Is(err, login.ErrTOTPCodeFormat),
		errors.Is(err, login.ErrEmptyBackupCode),
		errors.Is(err, login.ErrWrongState):
		commonerrors.HandleError(c, commonerrors.BadRequest(err.Error()))
		return
	}

	if fe, ok := flow.AsError(err); ok && fe.Outcome == flow.OutcomeValidationFailed {
		s.audit.LogLoginFailure(req.Identifier, req.Method, c.ClientIP(), c.Request.UserAgent(), fe.Reason)
	} else {
		s.logger.Warn("Login submission failed",
			zap.String("method", req.Method),
			zap.Error(err))
	}
	s.handleFlowError(c, flow.KindLogin, err)
}
