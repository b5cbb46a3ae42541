package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vehicert/vehicert/internal/account"
	commonerrors "github.com/vehicert/vehicert/internal/common/errors"
	"github.com/vehicert/vehicert/internal/enrollment"
	"github.com/vehicert/vehicert/internal/flow"
)

// handleEnrollmentBegin starts authenticator enrollment from a settings flow
// and returns the QR code plus the manual-entry secret.
func (s *Server) handleEnrollmentBegin(c *gin.Context) {
	kc := s.kratosClient(c)
	az := s.authzService(c, kc)
	svc := enrollment.NewService(kc, az, s.logger)

	wf, err := svc.Start(c.Request.Context(), c.Query("flow"))
	if err != nil {
		if errors.Is(err, flow.ErrFieldMissing) {
			commonerrors.HandleError(c, commonerrors.BadRequest("authenticator already enrolled"))
			return
		}
		s.handleFlowError(c, flow.KindSettings, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"step":    wf.Step().String(),
		"qr_code": wf.QRCode(),
		"secret":  wf.Secret(),
		"flow":    viewOf(wf.Flow()),
	})
}

type enrollmentVerifyRequest struct {
	Flow string `json:"flow" binding:"required"`
	Code string `json:"code" binding:"required"`
}

// handleEnrollmentVerify redeems the first authenticator code. On success the
// provider's one-time backup codes, when issued, are returned in this
// response and nowhere else; they cannot be fetched again.
func (s *Server) handleEnrollmentVerify(c *gin.Context) {
	var req enrollmentVerifyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		commonerrors.HandleError(c, commonerrors.BadRequest("flow and code are required"))
		return
	}

	kc := s.kratosClient(c)
	az := s.authzService(c, kc)
	svc := enrollment.NewService(kc, az, s.logger)

	wf, err := svc.Start(c.Request.Context(), req.Flow)
	if err != nil {
		if errors.Is(err, flow.ErrFieldMissing) {
			commonerrors.HandleError(c, commonerrors.BadRequest("authenticator already enrolled"))
			return
		}
		s.handleFlowError(c, flow.KindSettings, err)
		return
	}
	if _, err := wf.Proceed(); err != nil {
		commonerrors.HandleError(c, commonerrors.BadRequest(err.Error()))
		return
	}

	step, err := wf.Verify(c.Request.Context(), req.Code)
	if err != nil {
		switch {
		case errors.Is(err, enrollment.ErrTOTPCodeFormat),
			errors.Is(err, enrollment.ErrWrongStep):
			commonerrors.HandleError(c, commonerrors.BadRequest(err.Error()))
		default:
			s.handleFlowError(c, flow.KindSettings, err)
		}
		return
	}

	resp := gin.H{
		"step": step.String(),
		"flow": viewOf(wf.Flow()),
	}
	if step == enrollment.StepComplete {
		if codes, ok := wf.BackupCodes(); ok {
			resp["backup_codes"] = codes
		}
		if p := az.Profile(); p != nil {
			s.audit.LogMFAEnrolled(p.ID, p.Email)
		}
		// Reveal is single-shot; drop the in-memory copy now that the
		// codes are on the wire.
		_ = wf.Confirm()
	} else {
		resp["qr_code"] = wf.QRCode()
		resp["secret"] = wf.Secret()
	}
	c.JSON(http.StatusOK, resp)
}

type totpUnlinkRequest struct {
	Confirm bool `json:"confirm"`
}

// handleTOTPUnlink removes the enrolled authenticator. Requires an explicit
// confirm flag; the fresh settings flow is returned so the UI can offer
// immediate re-enrollment.
func (s *Server) handleTOTPUnlink(c *gin.Context) {
	var req totpUnlinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		commonerrors.HandleError(c, commonerrors.BadRequest("invalid request body"))
		return
	}

	kc := s.kratosClient(c)
	az := s.authzService(c, kc)
	svc := enrollment.NewService(kc, az, s.logger)

	f, err := svc.Unlink(c.Request.Context(), req.Confirm)
	if err != nil {
		if errors.Is(err, enrollment.ErrUnlinkNotConfirmed) {
			commonerrors.HandleError(c, commonerrors.BadRequest(err.Error()))
			return
		}
		s.handleFlowError(c, flow.KindSettings, err)
		return
	}

	if p := az.Profile(); p != nil {
		s.audit.LogMFAUnlinked(p.ID, p.Email)
	}
	c.JSON(http.StatusOK, gin.H{"flow": viewOf(f)})
}

type passwordChangeRequest struct {
	Flow     string `json:"flow"`
	Password string `json:"password" binding:"required"`
}

// handlePasswordChange sets a new password through a settings flow. Used both
// from account settings and as the final step of recovery, where the flow id
// comes from the recovery handoff.
func (s *Server) handlePasswordChange(c *gin.Context) {
	var req passwordChangeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		commonerrors.HandleError(c, commonerrors.BadRequest("password is required"))
		return
	}

	kc := s.kratosClient(c)
	az := s.authzService(c, kc)
	svc := account.NewService(kc, az, s.logger)

	f, err := svc.ChangePassword(c.Request.Context(), req.Flow, req.Password)
	if err != nil {
		if errors.Is(err, account.ErrPasswordTooShort) {
			commonerrors.HandleError(c, commonerrors.BadRequest(err.Error()))
			return
		}
		s.handleFlowError(c, flow.KindSettings, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"flow": viewOf(f)})
}
