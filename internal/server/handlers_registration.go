package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/vehicert/vehicert/internal/account"
	commonerrors "github.com/vehicert/vehicert/internal/common/errors"
	"github.com/vehicert/vehicert/internal/flow"
)

// handleRegistrationBegin starts or resumes a registration flow
func (s *Server) handleRegistrationBegin(c *gin.Context) {
	kc := s.kratosClient(c)
	az := s.authzService(c, kc)
	svc := account.NewService(kc, az, s.logger)

	reg, err := svc.BeginRegistration(c.Request.Context(), c.Query("flow"))
	if err != nil {
		s.handleFlowError(c, flow.KindRegistration, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"flow": viewOf(reg.Flow())})
}

type registrationSubmitRequest struct {
	Flow     string `json:"flow" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// handleRegistrationSubmit creates the account with the password method
func (s *Server) handleRegistrationSubmit(c *gin.Context) {
	var req registrationSubmitRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		commonerrors.HandleError(c, commonerrors.BadRequest("flow, email and password are required"))
		return
	}

	kc := s.kratosClient(c)
	az := s.authzService(c, kc)
	svc := account.NewService(kc, az, s.logger)

	reg, err := svc.BeginRegistration(c.Request.Context(), req.Flow)
	if err != nil {
		s.handleFlowError(c, flow.KindRegistration, err)
		return
	}

	if err := reg.Submit(c.Request.Context(), req.Email, req.Password); err != nil {
		switch {
		case errors.Is(err, account.ErrEmptyEmail),
			errors.Is(err, account.ErrPasswordTooShort):
			commonerrors.HandleError(c, commonerrors.BadRequest(err.Error()))
		default:
			s.handleFlowError(c, flow.KindRegistration, err)
		}
		return
	}

	resp := gin.H{
		"done": reg.Done(),
		"flow": viewOf(reg.Flow()),
	}
	if reg.Done() {
		if p := az.Profile(); p != nil {
			s.audit.LogRegistration(p.ID, p.Email, c.ClientIP())
			resp["profile"] = p
		}
	}
	c.JSON(http.StatusOK, resp)
}
